package server

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/simwatch/internal/clock"
	"github.com/smallbiznis/simwatch/internal/config"
	"github.com/smallbiznis/simwatch/internal/coordinator"
	"github.com/smallbiznis/simwatch/internal/dispatch"
)

type fakeAPI struct {
	devices     []map[string]any
	devicesErr  error
	usage       []map[string]any
	account     map[string]any
	balance     map[string]any
	activateErr error

	activated   []string
	deactivated []string
	sms         []string
	updates     []string
}

func (f *fakeAPI) ListAllSimcards(ctx context.Context) ([]map[string]any, error) {
	return f.devices, f.devicesErr
}

func (f *fakeAPI) ListAllUsage(ctx context.Context) ([]map[string]any, error) {
	return f.usage, nil
}

func (f *fakeAPI) GetAccount(ctx context.Context) (map[string]any, error) {
	return f.account, nil
}

func (f *fakeAPI) GetBalance(ctx context.Context) (map[string]any, error) {
	return f.balance, nil
}

func (f *fakeAPI) ActivateSimcard(ctx context.Context, iccid string) error {
	if f.activateErr != nil {
		return f.activateErr
	}
	f.activated = append(f.activated, iccid)
	return nil
}

func (f *fakeAPI) DeactivateSimcard(ctx context.Context, iccid string) error {
	f.deactivated = append(f.deactivated, iccid)
	return nil
}

func (f *fakeAPI) SendSMS(ctx context.Context, iccid, message string) error {
	f.sms = append(f.sms, iccid+":"+message)
	return nil
}

func (f *fakeAPI) UpdateSimcard(ctx context.Context, iccid string, name *string, tags []string) error {
	f.updates = append(f.updates, iccid)
	return nil
}

func newTestServer(t *testing.T, api *fakeAPI, opts config.Options) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	coord, err := coordinator.New(coordinator.Params{
		API:   api,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		GenID: node,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if err := coord.RunOnce(context.Background()); err != nil {
		t.Fatalf("priming refresh: %v", err)
	}

	registry := dispatch.NewRegistry()
	registry.Register("primary", coord)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	svc := &Server{
		engine:     engine,
		cfg:        config.Config{AppName: "simwatch", Environment: "test"},
		coord:      coord,
		dispatcher: dispatch.NewDispatcher(registry, nil),
		registry:   registry,
		options:    config.NewStaticOptionsHolder(opts),
		log:        zap.NewNop(),
	}
	svc.registerAPIRoutes()

	return svc, engine
}
