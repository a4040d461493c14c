package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/simwatch/internal/dispatch"
	"github.com/smallbiznis/simwatch/internal/fields"
)

type fieldValue struct {
	Key        string         `json:"key"`
	Name       string         `json:"name"`
	Value      any            `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// GetSimcardFields renders the selected per-device display units for one SIM.
func (s *Server) GetSimcardFields(c *gin.Context) {
	dev, ok := s.coord.Device(c.Param("iccid"))
	if !ok {
		AbortWithError(c, fmt.Errorf("simcard %q: %w", c.Param("iccid"), dispatch.ErrDeviceNotFound))
		return
	}

	selected := s.opts().DeviceFields
	rendered := make([]fieldValue, 0, len(selected))
	for _, key := range selected {
		field, ok := fields.LookupDevice(key)
		if !ok {
			continue
		}
		fv := fieldValue{
			Key:   field.Key,
			Name:  field.Name,
			Value: field.Value(dev),
		}
		if field.Attrs != nil {
			fv.Attributes = field.Attrs(dev)
		}
		rendered = append(rendered, fv)
	}

	c.JSON(http.StatusOK, gin.H{
		"iccid":  dev.ICCID,
		"fields": rendered,
	})
}

// GetAccountFields renders the selected account-level display units.
func (s *Server) GetAccountFields(c *gin.Context) {
	snap := s.coord.Snapshot()

	selected := s.opts().AccountFields
	rendered := make([]fieldValue, 0, len(selected))
	for _, key := range selected {
		field, ok := fields.LookupAccount(key)
		if !ok {
			continue
		}
		fv := fieldValue{
			Key:   field.Key,
			Name:  field.Name,
			Value: field.Value(snap),
		}
		if field.Attrs != nil {
			fv.Attributes = field.Attrs(snap)
		}
		rendered = append(rendered, fv)
	}

	c.JSON(http.StatusOK, gin.H{"fields": rendered})
}
