package simbase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// pageSchema lists the field aliases used by different API versions for the
// three parts of a pagination envelope. Aliases are tried in order; the first
// present key wins.
type pageSchema struct {
	items   []string
	hasMore []string
	cursor  []string
}

var simcardPageSchema = pageSchema{
	items:   []string{"data", "simcards", "items", "results"},
	hasMore: []string{"has_more", "hasMore"},
	cursor:  []string{"cursor", "next_cursor", "nextCursor"},
}

var usagePageSchema = pageSchema{
	items:   []string{"data", "usage", "items", "results"},
	hasMore: []string{"has_more", "hasMore"},
	cursor:  []string{"cursor", "next_cursor", "nextCursor"},
}

// fetchAll walks a cursor-paginated list endpoint and accumulates every item.
// A raw array response is the final page. An envelope is unpacked via the
// schema's alias tables; the walk stops when has-more is false or no cursor is
// returned. Anything else ends the walk with whatever was gathered so far.
// Transport errors abort the fetch and propagate.
func (c *Client) fetchAll(ctx context.Context, path string, schema pageSchema) ([]map[string]any, error) {
	items := make([]map[string]any, 0)
	cursor := ""

	for {
		payload, err := c.requestPage(ctx, path, cursor, c.pageLimit)
		if err != nil {
			return nil, err
		}

		switch page := payload.(type) {
		case []any:
			// Raw array: the whole result in one page.
			items = appendObjects(items, page)
			c.log.Debug("fetched all items", zap.String("path", path), zap.Int("count", len(items)))
			return items, nil

		case map[string]any:
			switch list := firstPresent(page, schema.items).(type) {
			case []any:
				items = appendObjects(items, list)
			case map[string]any:
				// Single-item response.
				items = append(items, list)
			}

			if !firstBool(page, schema.hasMore) {
				return items, nil
			}
			next := firstString(page, schema.cursor)
			if next == "" {
				return items, nil
			}
			cursor = next

		default:
			c.log.Warn("unexpected page payload, stopping pagination",
				zap.String("path", path),
			)
			return items, nil
		}

		// Small delay between pages to avoid tripping provider rate limits.
		if c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}
}

func appendObjects(items []map[string]any, list []any) []map[string]any {
	for _, entry := range list {
		if obj, ok := entry.(map[string]any); ok {
			items = append(items, obj)
		}
	}
	return items
}

func firstPresent(m map[string]any, keys []string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstBool(m map[string]any, keys []string) bool {
	for _, key := range keys {
		if v, ok := m[key].(bool); ok && v {
			return true
		}
	}
	return false
}

func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
