package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/smallbiznis/simwatch/internal/coordinator"
	"github.com/smallbiznis/simwatch/internal/dispatch"
)

type simcardSummary struct {
	ICCID  string  `json:"iccid"`
	Name   string  `json:"name,omitempty"`
	State  string  `json:"state"`
	Active bool    `json:"active"`
	DataMB float64 `json:"data_usage_mb"`
}

type updateSimcardRequest struct {
	Name *string  `json:"name"`
	Tags []string `json:"tags"`
}

type sendSMSRequest struct {
	Message string `json:"message" binding:"required"`
}

type bulkResponse struct {
	Requested int                      `json:"requested"`
	Succeeded int                      `json:"succeeded"`
	Results   []coordinator.BulkResult `json:"results"`
}

func (s *Server) ListSimcards(c *gin.Context) {
	devices := s.coord.Devices()

	summaries := make([]simcardSummary, 0, len(devices))
	for _, dev := range devices {
		summaries = append(summaries, simcardSummary{
			ICCID:  dev.ICCID,
			Name:   dev.Name,
			State:  dev.State,
			Active: dev.Active(),
			DataMB: roundMB(dev.DataBytes()),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"simcards": summaries,
		"count":    len(summaries),
	})
}

func (s *Server) GetSimcard(c *gin.Context) {
	dev, ok := s.coord.Device(c.Param("iccid"))
	if !ok {
		AbortWithError(c, fmt.Errorf("simcard %q: %w", c.Param("iccid"), dispatch.ErrDeviceNotFound))
		return
	}
	c.JSON(http.StatusOK, dev)
}

func (s *Server) ActivateSimcard(c *gin.Context) {
	if !s.opts().EnableSwitch {
		AbortWithError(c, ErrControlDisabled)
		return
	}
	if err := s.dispatcher.Activate(c.Request.Context(), c.Param("iccid")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) DeactivateSimcard(c *gin.Context) {
	if !s.opts().EnableSwitch {
		AbortWithError(c, ErrControlDisabled)
		return
	}
	if err := s.dispatcher.Deactivate(c.Request.Context(), c.Param("iccid")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) SendSMS(c *gin.Context) {
	var req sendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	if err := s.dispatcher.SendSMS(c.Request.Context(), c.Param("iccid"), req.Message); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) UpdateSimcard(c *gin.Context) {
	var req updateSimcardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if req.Name == nil && req.Tags == nil {
		AbortWithError(c, fmt.Errorf("%w: no fields to update", ErrInvalidRequest))
		return
	}

	if err := s.dispatcher.Update(c.Request.Context(), c.Param("iccid"), req.Name, req.Tags); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) BulkActivate(c *gin.Context) {
	if !s.opts().EnableSwitch {
		AbortWithError(c, ErrControlDisabled)
		return
	}
	results, err := s.coord.BulkActivate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("bulk activation finished", zap.Int("requested", len(results)))
	c.JSON(http.StatusOK, toBulkResponse(results))
}

func (s *Server) BulkDeactivate(c *gin.Context) {
	if !s.opts().EnableSwitch {
		AbortWithError(c, ErrControlDisabled)
		return
	}
	results, err := s.coord.BulkDeactivate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("bulk deactivation finished", zap.Int("requested", len(results)))
	c.JSON(http.StatusOK, toBulkResponse(results))
}

func toBulkResponse(results []coordinator.BulkResult) bulkResponse {
	return bulkResponse{
		Requested: len(results),
		Succeeded: lo.CountBy(results, func(r coordinator.BulkResult) bool { return r.Success }),
		Results:   results,
	}
}

func roundMB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}

