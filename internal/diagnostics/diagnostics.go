// Package diagnostics produces a redacted dump of service state for support
// bundles. Identifiers and addressing data are masked before anything leaves
// the process.
package diagnostics

import (
	"encoding/json"

	"github.com/smallbiznis/simwatch/internal/config"
	"github.com/smallbiznis/simwatch/internal/coordinator"
)

const redactedPlaceholder = "**REDACTED**"

var redactedKeys = map[string]struct{}{
	"api_key":            {},
	"iccid":              {},
	"imei":               {},
	"msisdn":             {},
	"ip_address":         {},
	"ip":                 {},
	"public_ip":          {},
	"private_network_ip": {},
	"phone_number":       {},
}

// Report is the support-bundle payload.
type Report struct {
	Options       config.Options `json:"options"`
	SimcardCount  int            `json:"simcard_count"`
	LastRefreshOK bool           `json:"last_refresh_ok"`
	Snapshot      any            `json:"snapshot"`
}

// Build assembles a report from the coordinator's current state.
func Build(coord *coordinator.Coordinator, opts config.Options) Report {
	snap := coord.Snapshot()
	return Report{
		Options:       opts,
		SimcardCount:  len(snap.Devices),
		LastRefreshOK: coord.LastRefreshOK(),
		Snapshot:      Redact(flattenDeviceKeys(toTree(snap))),
	}
}

// flattenDeviceKeys turns the identifier-keyed device map into a list so the
// identifiers only appear under redactable keys.
func flattenDeviceKeys(tree any) any {
	root, ok := tree.(map[string]any)
	if !ok {
		return tree
	}
	devices, ok := root["simcards"].(map[string]any)
	if !ok {
		return tree
	}
	list := make([]any, 0, len(devices))
	for _, dev := range devices {
		list = append(list, dev)
	}
	root["simcards"] = list
	return root
}

// Redact walks a decoded JSON tree and masks values under sensitive keys.
// Container values under a sensitive key are masked wholesale.
func Redact(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, val := range node {
			if _, sensitive := redactedKeys[key]; sensitive {
				out[key] = redactedPlaceholder
				continue
			}
			out[key] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = Redact(item)
		}
		return out
	default:
		return v
	}
}

func toTree(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return tree
}
