// Package server exposes the snapshot and device commands over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/simwatch/internal/config"
	"github.com/smallbiznis/simwatch/internal/coordinator"
	"github.com/smallbiznis/simwatch/internal/dispatch"
	"github.com/smallbiznis/simwatch/internal/observability"
	obslogger "github.com/smallbiznis/simwatch/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/simwatch/internal/observability/metrics"
	"github.com/smallbiznis/simwatch/internal/setup"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	coord      *coordinator.Coordinator
	dispatcher *dispatch.Dispatcher
	registry   *dispatch.Registry
	options    *config.OptionsHolder
	log        *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Coord      *coordinator.Coordinator
	Dispatcher *dispatch.Dispatcher
	Registry   *dispatch.Registry
	Options    *config.OptionsHolder
	Log        *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		coord:      p.Coord,
		dispatcher: p.Dispatcher,
		registry:   p.Registry,
		options:    p.Options,
		log:        p.Log.Named("server"),
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// opts returns the current selections, normalized against the known field
// tables. The holder hot-reloads underneath so this is read per request.
func (s *Server) opts() config.Options {
	return setup.NormalizeOptions(s.options.Get(), s.log)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.GET("/status", s.GetStatus)
	api.POST("/refresh", s.PostRefresh)

	// -------- Simcards --------
	api.GET("/simcards", s.ListSimcards)
	api.GET("/simcards/:iccid", s.GetSimcard)
	api.GET("/simcards/:iccid/fields", s.GetSimcardFields)
	api.PATCH("/simcards/:iccid", s.UpdateSimcard)
	api.POST("/simcards/:iccid/activate", s.ActivateSimcard)
	api.POST("/simcards/:iccid/deactivate", s.DeactivateSimcard)
	api.POST("/simcards/:iccid/sms", s.SendSMS)

	// -------- Bulk commands --------
	api.POST("/simcards/activate", s.BulkActivate)
	api.POST("/simcards/deactivate", s.BulkDeactivate)

	// -------- Account --------
	api.GET("/account", s.GetAccount)
	api.GET("/account/balance", s.GetBalance)
	api.GET("/account/fields", s.GetAccountFields)
	api.GET("/totals", s.GetTotals)

	api.GET("/options", s.GetOptions)
	api.GET("/diagnostics", s.GetDiagnostics)
}
