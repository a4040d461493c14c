package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simwatch/internal/clock"
	obsmetrics "github.com/smallbiznis/simwatch/internal/observability/metrics"
	"github.com/smallbiznis/simwatch/internal/simbase"
	"github.com/smallbiznis/simwatch/internal/snapshot"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrInvalidConfig marks a coordinator constructed without its dependencies.
var ErrInvalidConfig = errors.New("coordinator: invalid configuration")

// API is the slice of the remote client the coordinator depends on.
// *simbase.Client satisfies it.
type API interface {
	ListAllSimcards(ctx context.Context) ([]map[string]any, error)
	ListAllUsage(ctx context.Context) ([]map[string]any, error)
	GetAccount(ctx context.Context) (map[string]any, error)
	GetBalance(ctx context.Context) (map[string]any, error)
	ActivateSimcard(ctx context.Context, iccid string) error
	DeactivateSimcard(ctx context.Context, iccid string) error
	SendSMS(ctx context.Context, iccid, message string) error
	UpdateSimcard(ctx context.Context, iccid string, name *string, tags []string) error
}

// IntervalSource yields the refresh interval for the next loop iteration.
// Backed by the hot-reloaded options so interval changes apply without a
// restart.
type IntervalSource func() time.Duration

type Params struct {
	fx.In

	API      API
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Config   Config         `optional:"true"`
	Interval IntervalSource `optional:"true"`
}

// Coordinator owns the snapshot and drives the refresh cycle. The snapshot is
// published by replacement: readers always see a complete snapshot, never a
// partially merged one. At most one cycle runs at a time; refresh requests
// arriving while a cycle is in flight coalesce into a single follow-up cycle.
type Coordinator struct {
	api      API
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	genID    *snowflake.Node
	interval IntervalSource

	mu            sync.RWMutex
	snap          *snapshot.Snapshot
	lastRefreshOK bool

	runMu     sync.Mutex
	refreshCh chan struct{}
}

func New(p Params) (*Coordinator, error) {
	if p.API == nil || p.Log == nil || p.Clock == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	return &Coordinator{
		api:       p.API,
		log:       p.Log.Named("coordinator").With(zap.String("component", "coordinator")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		genID:     p.GenID,
		interval:  p.Interval,
		snap:      snapshot.Empty(),
		refreshCh: make(chan struct{}, 1),
	}, nil
}

// RunForever drives periodic refresh cycles until the context is canceled.
// A manual refresh request wakes the loop immediately instead of waiting for
// the next tick.
func (c *Coordinator) RunForever(ctx context.Context) {
	interval := c.scanInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.RunOnce(ctx); err != nil {
			c.log.Warn("refresh cycle failed", zap.Error(err))
		}

		if next := c.scanInterval(); next != interval {
			c.log.Info("scan interval changed",
				zap.Duration("previous", interval),
				zap.Duration("current", next),
			)
			interval = next
			ticker.Reset(interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refreshCh:
		}
	}
}

// scanInterval prefers the live options value over the construction-time
// config so interval edits take effect on the next iteration.
func (c *Coordinator) scanInterval() time.Duration {
	if c.interval != nil {
		if d := c.interval(); d > 0 {
			return d
		}
	}
	return c.cfg.ScanInterval
}

// RequestRefresh schedules an immediate cycle. Requests arriving while one is
// already pending are coalesced: the queue holds at most one entry.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
		obsmetrics.Refresh().IncCoalescedRequest()
	}
}

// RunOnce executes one refresh cycle. The device list is the hard dependency:
// if it cannot be fetched the cycle fails and the previous snapshot stays
// published, marked stale. Usage, account and balance each degrade to empty
// on their own failures without aborting the cycle.
func (c *Coordinator) RunOnce(parent context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	met := obsmetrics.Refresh()
	met.IncCycleRun()
	start := c.clock.Now()
	runID := c.genID.Generate().String()
	log := c.log.With(zap.String("run_id", runID))

	ctx, cancel := context.WithTimeout(parent, c.cfg.CycleTimeout)
	defer cancel()

	devices, err := c.api.ListAllSimcards(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastRefreshOK = false
		c.mu.Unlock()
		met.IncCycleError(classifyReason(err))
		log.Error("device fetch failed, keeping previous snapshot", zap.Error(err))
		return fmt.Errorf("refresh cycle: %w", err)
	}

	usage, err := c.api.ListAllUsage(ctx)
	if err != nil {
		log.Warn("usage fetch failed, continuing without usage", zap.Error(err))
		met.IncSectionDegraded("usage")
		usage = nil
	}

	account, err := c.api.GetAccount(ctx)
	if err != nil {
		log.Debug("account fetch failed", zap.Error(err))
		met.IncSectionDegraded("account")
		account = map[string]any{}
	}

	balance, err := c.api.GetBalance(ctx)
	if err != nil {
		log.Debug("balance fetch failed", zap.Error(err))
		met.IncSectionDegraded("balance")
		if embedded, ok := account["balance"]; ok {
			balance = map[string]any{"balance": embedded}
		} else {
			balance = map[string]any{}
		}
	}

	snap := snapshot.Merge(devices, usage, account, balance, log)

	c.mu.Lock()
	c.snap = snap
	c.lastRefreshOK = true
	c.mu.Unlock()

	met.SetDeviceCount(len(snap.Devices))
	met.ObserveCycleDuration(time.Since(start))
	log.Info("refresh cycle complete",
		zap.Int("devices", len(snap.Devices)),
		zap.Int("active", snap.Totals.ActiveSims),
		zap.Int("inactive", snap.Totals.InactiveSims),
	)
	return nil
}

// Snapshot returns the currently published snapshot. Callers must treat it as
// read-only.
func (c *Coordinator) Snapshot() *snapshot.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Device returns a single device by identifier.
func (c *Coordinator) Device(iccid string) (snapshot.DeviceRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dev, ok := c.snap.Devices[iccid]
	return dev, ok
}

// Devices returns the full device mapping of the current snapshot.
func (c *Coordinator) Devices() map[string]snapshot.DeviceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Devices
}

func (c *Coordinator) Account() snapshot.AccountRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Account
}

func (c *Coordinator) Balance() snapshot.BalanceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Balance
}

func (c *Coordinator) Totals() snapshot.AggregateTotals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Totals
}

// LastRefreshOK reports whether the most recent cycle succeeded. When false
// the published snapshot is stale but still served.
func (c *Coordinator) LastRefreshOK() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefreshOK
}

// Activate enables a device remotely, then requests a refresh so the local
// state is re-derived from the API rather than assumed.
func (c *Coordinator) Activate(ctx context.Context, iccid string) error {
	err := c.api.ActivateSimcard(ctx, iccid)
	obsmetrics.Refresh().IncMutation("activate", err == nil)
	if err != nil {
		return err
	}
	c.RequestRefresh()
	return nil
}

// Deactivate disables a device remotely, then requests a refresh.
func (c *Coordinator) Deactivate(ctx context.Context, iccid string) error {
	err := c.api.DeactivateSimcard(ctx, iccid)
	obsmetrics.Refresh().IncMutation("deactivate", err == nil)
	if err != nil {
		return err
	}
	c.RequestRefresh()
	return nil
}

// SendSMS sends a message to a device. No refresh: no local state changes.
func (c *Coordinator) SendSMS(ctx context.Context, iccid, message string) error {
	err := c.api.SendSMS(ctx, iccid, message)
	obsmetrics.Refresh().IncMutation("send_sms", err == nil)
	return err
}

// Update patches device name or tags remotely, then requests a refresh.
func (c *Coordinator) Update(ctx context.Context, iccid string, name *string, tags []string) error {
	err := c.api.UpdateSimcard(ctx, iccid, name, tags)
	obsmetrics.Refresh().IncMutation("update", err == nil)
	if err != nil {
		return err
	}
	c.RequestRefresh()
	return nil
}

// BulkResult records the outcome of one device within a bulk operation.
type BulkResult struct {
	ICCID   string `json:"iccid"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

var (
	bulkActivateTargets   = map[string]bool{"disabled": true, "inactive": true}
	bulkDeactivateTargets = map[string]bool{"enabled": true, "active": true}
)

// BulkActivate activates every currently inactive device, one call at a time
// with a fixed delay for rate-limit protection. Per-device failures are
// captured in the result list; the batch never aborts early. One refresh is
// requested after the batch.
func (c *Coordinator) BulkActivate(ctx context.Context) ([]BulkResult, error) {
	return c.bulkTransition(ctx, "bulk_activate", bulkActivateTargets, c.api.ActivateSimcard)
}

// BulkDeactivate deactivates every currently active device. Same batch
// semantics as BulkActivate.
func (c *Coordinator) BulkDeactivate(ctx context.Context) ([]BulkResult, error) {
	return c.bulkTransition(ctx, "bulk_deactivate", bulkDeactivateTargets, c.api.DeactivateSimcard)
}

func (c *Coordinator) bulkTransition(
	ctx context.Context,
	operation string,
	targets map[string]bool,
	transition func(context.Context, string) error,
) ([]BulkResult, error) {
	devices, err := c.api.ListAllSimcards(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	results := make([]BulkResult, 0, len(devices))
	for _, raw := range devices {
		dev, ok := snapshot.DecodeDevice(raw)
		if !ok || !targets[dev.State] {
			continue
		}

		if err := transition(ctx, dev.ICCID); err != nil {
			results = append(results, BulkResult{ICCID: dev.ICCID, Error: err.Error()})
		} else {
			results = append(results, BulkResult{ICCID: dev.ICCID, Success: true})
		}

		if c.cfg.BulkDelay > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(c.cfg.BulkDelay):
			}
		}
	}

	c.log.Info("bulk operation finished",
		zap.String("operation", operation),
		zap.Int("attempted", len(results)),
	)
	c.RequestRefresh()
	return results, nil
}

func classifyReason(err error) string {
	switch {
	case errors.Is(err, simbase.ErrAuth):
		return obsmetrics.RefreshErrorReasonAuth
	case errors.Is(err, simbase.ErrRateLimited):
		return obsmetrics.RefreshErrorReasonRateLimit
	default:
		var apiErr *simbase.APIError
		if errors.As(err, &apiErr) {
			if apiErr.ConnectionFailure() {
				return obsmetrics.RefreshErrorReasonConnection
			}
			return obsmetrics.RefreshErrorReasonRemote
		}
		return obsmetrics.RefreshErrorReasonUnknown
	}
}
