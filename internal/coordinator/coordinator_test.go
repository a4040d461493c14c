package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/smallbiznis/simwatch/internal/clock"
	obsmetrics "github.com/smallbiznis/simwatch/internal/observability/metrics"
	"github.com/smallbiznis/simwatch/internal/simbase"
)

type fakeAPI struct {
	mu sync.Mutex

	devices    []map[string]any
	devicesErr error
	usage      []map[string]any
	usageErr   error
	account    map[string]any
	accountErr error
	balance    map[string]any
	balanceErr error

	activated   []string
	deactivated []string
	sms         []string
	updates     []string

	activateErr map[string]error
	listCalls   int

	// listStarted signals each list call; listGate blocks it until released.
	listStarted chan struct{}
	listGate    chan struct{}
}

func (f *fakeAPI) ListAllSimcards(ctx context.Context) ([]map[string]any, error) {
	if f.listStarted != nil {
		f.listStarted <- struct{}{}
	}
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.devices, f.devicesErr
}

func (f *fakeAPI) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeAPI) ListAllUsage(ctx context.Context) ([]map[string]any, error) {
	return f.usage, f.usageErr
}

func (f *fakeAPI) GetAccount(ctx context.Context) (map[string]any, error) {
	return f.account, f.accountErr
}

func (f *fakeAPI) GetBalance(ctx context.Context) (map[string]any, error) {
	return f.balance, f.balanceErr
}

func (f *fakeAPI) ActivateSimcard(ctx context.Context, iccid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.activateErr[iccid]; ok {
		return err
	}
	f.activated = append(f.activated, iccid)
	return nil
}

func (f *fakeAPI) DeactivateSimcard(ctx context.Context, iccid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, iccid)
	return nil
}

func (f *fakeAPI) SendSMS(ctx context.Context, iccid, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sms = append(f.sms, iccid+":"+message)
	return nil
}

func (f *fakeAPI) UpdateSimcard(ctx context.Context, iccid string, name *string, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, iccid)
	return nil
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetRefreshMetricsForTest()
	}
}

func newTestCoordinator(t *testing.T, api *fakeAPI) *Coordinator {
	t.Helper()
	return newTestCoordinatorWithInterval(t, api, nil)
}

func newTestCoordinatorWithInterval(t *testing.T, api *fakeAPI, interval IntervalSource) *Coordinator {
	t.Helper()

	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetRefreshMetricsForTest()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	coord, err := New(Params{
		API:   api,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		GenID: node,
		Config: Config{
			ScanInterval: time.Hour,
			CycleTimeout: time.Second,
			BulkDelay:    0,
		},
		Interval: interval,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return coord
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunOncePublishesSnapshot(t *testing.T) {
	api := &fakeAPI{
		devices: []map[string]any{
			{"iccid": "A", "status": "enabled"},
			{"iccid": "B", "status": "disabled"},
		},
		usage:   []map[string]any{{"iccid": "A", "data": float64(2097152)}},
		account: map[string]any{"currency": "USD"},
		balance: map[string]any{"amount": 10.0},
	}
	coord := newTestCoordinator(t, api)

	if err := coord.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if !coord.LastRefreshOK() {
		t.Fatal("expected last refresh to be marked ok")
	}
	if len(coord.Devices()) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(coord.Devices()))
	}
	dev, ok := coord.Device("A")
	if !ok || dev.DataBytes() != 2097152 {
		t.Fatalf("expected device A with usage attached, got %+v", dev)
	}
	if coord.Totals().ActiveSims != 1 {
		t.Fatalf("expected 1 active sim, got %d", coord.Totals().ActiveSims)
	}
	if coord.Balance().Amount == nil || *coord.Balance().Amount != 10.0 {
		t.Fatalf("expected balance 10.0, got %+v", coord.Balance())
	}
}

func TestRunOnceDeviceFailureKeepsPreviousSnapshot(t *testing.T) {
	api := &fakeAPI{
		devices: []map[string]any{{"iccid": "A", "status": "enabled"}},
	}
	coord := newTestCoordinator(t, api)

	if err := coord.RunOnce(context.Background()); err != nil {
		t.Fatalf("priming run: %v", err)
	}

	api.mu.Lock()
	api.devicesErr = &simbase.APIError{Method: "GET", Path: "/simcards", Status: 500}
	api.mu.Unlock()

	err := coord.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if coord.LastRefreshOK() {
		t.Fatal("expected stale flag after failed cycle")
	}
	if len(coord.Devices()) != 1 {
		t.Fatalf("previous snapshot must stay published, got %d devices", len(coord.Devices()))
	}
}

func TestRunOnceAuthFailureRetainsSnapshot(t *testing.T) {
	api := &fakeAPI{
		devices: []map[string]any{{"iccid": "A", "status": "enabled"}},
	}
	coord := newTestCoordinator(t, api)

	if err := coord.RunOnce(context.Background()); err != nil {
		t.Fatalf("priming run: %v", err)
	}

	api.mu.Lock()
	api.devicesErr = simbase.ErrAuth
	api.mu.Unlock()

	err := coord.RunOnce(context.Background())
	if !errors.Is(err, simbase.ErrAuth) {
		t.Fatalf("expected wrapped auth error, got %v", err)
	}
	if len(coord.Devices()) != 1 {
		t.Fatal("auth failure must not clear the published snapshot")
	}
}

func TestRunOnceDegradedSectionsStillPublish(t *testing.T) {
	api := &fakeAPI{
		devices:    []map[string]any{{"iccid": "A", "status": "enabled"}},
		usageErr:   &simbase.APIError{Status: 502},
		accountErr: &simbase.APIError{Status: 404},
		balanceErr: &simbase.APIError{Status: 404},
	}
	coord := newTestCoordinator(t, api)

	if err := coord.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected degraded cycle to succeed, got %v", err)
	}
	if !coord.LastRefreshOK() {
		t.Fatal("degraded cycle must still count as a successful refresh")
	}
	if len(coord.Devices()) != 1 {
		t.Fatalf("expected snapshot with device, got %d", len(coord.Devices()))
	}
	if coord.Account().Present {
		t.Fatal("account must degrade to absent")
	}
}

func TestRequestRefreshCoalesces(t *testing.T) {
	coord := newTestCoordinator(t, &fakeAPI{})

	coord.RequestRefresh()
	coord.RequestRefresh()
	coord.RequestRefresh()

	if len(coord.refreshCh) != 1 {
		t.Fatalf("expected at most one pending refresh, got %d", len(coord.refreshCh))
	}
}

func TestRefreshRequestsDuringCycleYieldOneFollowUp(t *testing.T) {
	api := &fakeAPI{
		listStarted: make(chan struct{}),
		listGate:    make(chan struct{}),
	}
	coord := newTestCoordinator(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		coord.RunForever(ctx)
		close(done)
	}()

	// Two requests land while the first cycle is still in flight.
	<-api.listStarted
	coord.RequestRefresh()
	coord.RequestRefresh()
	api.listGate <- struct{}{}

	select {
	case <-api.listStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected one follow-up cycle after the in-flight requests")
	}
	api.listGate <- struct{}{}

	select {
	case <-api.listStarted:
		t.Fatal("coalesced requests must not trigger a second follow-up cycle")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunForever did not stop after cancel")
	}
	if got := api.listCallCount(); got != 2 {
		t.Fatalf("expected exactly 2 cycles, got %d", got)
	}
}

func TestMutationsRequestRefresh(t *testing.T) {
	api := &fakeAPI{}
	coord := newTestCoordinator(t, api)

	if err := coord.Activate(context.Background(), "A"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(coord.refreshCh) != 1 {
		t.Fatal("activation must queue a refresh")
	}
	<-coord.refreshCh

	if err := coord.SendSMS(context.Background(), "A", "ping"); err != nil {
		t.Fatalf("send sms: %v", err)
	}
	if len(coord.refreshCh) != 0 {
		t.Fatal("sms must not queue a refresh")
	}
	if len(api.sms) != 1 || api.sms[0] != "A:ping" {
		t.Fatalf("unexpected sms calls %v", api.sms)
	}
}

func TestBulkActivateFiltersByState(t *testing.T) {
	api := &fakeAPI{
		devices: []map[string]any{
			{"iccid": "A", "status": "disabled"},
			{"iccid": "B", "status": "enabled"},
			{"iccid": "C", "status": "inactive"},
			{"iccid": "D", "status": "suspended"},
		},
	}
	coord := newTestCoordinator(t, api)

	results, err := coord.BulkActivate(context.Background())
	if err != nil {
		t.Fatalf("bulk activate: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 state-matched devices, got %d", len(results))
	}
	if len(api.activated) != 2 || api.activated[0] != "A" || api.activated[1] != "C" {
		t.Fatalf("unexpected activations %v", api.activated)
	}
	if len(coord.refreshCh) != 1 {
		t.Fatal("bulk operation must queue exactly one refresh")
	}
}

func TestBulkActivateCapturesPerDeviceErrors(t *testing.T) {
	api := &fakeAPI{
		devices: []map[string]any{
			{"iccid": "A", "status": "disabled"},
			{"iccid": "B", "status": "disabled"},
		},
		activateErr: map[string]error{"A": &simbase.APIError{Status: 500}},
	}
	coord := newTestCoordinator(t, api)

	results, err := coord.BulkActivate(context.Background())
	if err != nil {
		t.Fatalf("batch must not abort on per-device failure, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Success || results[0].Error == "" {
		t.Fatalf("expected captured failure for A, got %+v", results[0])
	}
	if !results[1].Success {
		t.Fatalf("expected success for B, got %+v", results[1])
	}
}

func TestBulkDeactivateTargetsActiveStates(t *testing.T) {
	api := &fakeAPI{
		devices: []map[string]any{
			{"iccid": "A", "status": "enabled"},
			{"iccid": "B", "status": "active"},
			{"iccid": "C", "status": "disabled"},
		},
	}
	coord := newTestCoordinator(t, api)

	results, err := coord.BulkDeactivate(context.Background())
	if err != nil {
		t.Fatalf("bulk deactivate: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(api.deactivated) != 2 {
		t.Fatalf("unexpected deactivations %v", api.deactivated)
	}
}

func TestBulkTransitionFailsWhenListFails(t *testing.T) {
	api := &fakeAPI{devicesErr: simbase.ErrRateLimited}
	coord := newTestCoordinator(t, api)

	_, err := coord.BulkActivate(context.Background())
	if !errors.Is(err, simbase.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", simbase.ErrAuth, obsmetrics.RefreshErrorReasonAuth},
		{"rate limit", simbase.ErrRateLimited, obsmetrics.RefreshErrorReasonRateLimit},
		{"connection", &simbase.APIError{Err: errors.New("refused")}, obsmetrics.RefreshErrorReasonConnection},
		{"remote", &simbase.APIError{Status: 500}, obsmetrics.RefreshErrorReasonRemote},
		{"unknown", errors.New("boom"), obsmetrics.RefreshErrorReasonUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyReason(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestScanIntervalPrefersLiveOptions(t *testing.T) {
	coord := newTestCoordinatorWithInterval(t, &fakeAPI{}, func() time.Duration {
		return 45 * time.Second
	})
	if got := coord.scanInterval(); got != 45*time.Second {
		t.Fatalf("expected live interval 45s, got %v", got)
	}

	coord = newTestCoordinatorWithInterval(t, &fakeAPI{}, func() time.Duration {
		return 0
	})
	if got := coord.scanInterval(); got != time.Hour {
		t.Fatalf("expected fallback to configured interval, got %v", got)
	}
}

func TestRunForeverAppliesIntervalChange(t *testing.T) {
	api := &fakeAPI{}
	var intervalNanos atomic.Int64
	intervalNanos.Store(int64(time.Hour))
	coord := newTestCoordinatorWithInterval(t, api, func() time.Duration {
		return time.Duration(intervalNanos.Load())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		coord.RunForever(ctx)
		close(done)
	}()

	waitForListCalls(t, api, 1)

	// Shrinking the interval takes effect on the next loop iteration; the
	// manual refresh forces that iteration immediately.
	intervalNanos.Store(int64(5 * time.Millisecond))
	coord.RequestRefresh()

	waitForListCalls(t, api, 4)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunForever did not stop after cancel")
	}
}

func waitForListCalls(t *testing.T, api *fakeAPI, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if api.listCallCount() >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected at least %d list calls, got %d", want, api.listCallCount())
}

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	api := &fakeAPI{}
	coord := newTestCoordinator(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.RunForever(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunForever did not stop after cancel")
	}
}
