package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/simwatch/internal/diagnostics"
)

func (s *Server) GetStatus(c *gin.Context) {
	snap := s.coord.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"service":         s.cfg.AppName,
		"version":         s.cfg.AppVersion,
		"environment":     s.cfg.Environment,
		"last_refresh_ok": s.coord.LastRefreshOK(),
		"stale":           !s.coord.LastRefreshOK(),
		"simcard_count":   len(snap.Devices),
		"entries":         s.registry.EntryIDs(),
	})
}

func (s *Server) PostRefresh(c *gin.Context) {
	s.coord.RequestRefresh()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh queued"})
}

func (s *Server) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts())
}

func (s *Server) GetDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, diagnostics.Build(s.coord, s.opts()))
}
