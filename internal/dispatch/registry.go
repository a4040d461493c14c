package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"
	"github.com/smallbiznis/simwatch/internal/coordinator"
	"go.uber.org/zap"
)

// ErrDeviceNotFound means no registered coordinator owns the identifier.
var ErrDeviceNotFound = errors.New("dispatch: device not found")

// Registry maps registered coordinators so device-addressed commands can be
// routed without a global. Coordinators register on start and deregister on
// stop.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*coordinator.Coordinator
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*coordinator.Coordinator)}
}

// Register adds a coordinator under an entry identifier. Re-registering an
// identifier replaces the previous coordinator.
func (r *Registry) Register(entryID string, coord *coordinator.Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entryID] = coord
}

// Deregister removes a coordinator.
func (r *Registry) Deregister(entryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, entryID)
}

// EntryIDs lists the registered entry identifiers.
func (r *Registry) EntryIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.entries)
}

// Find returns the coordinator whose snapshot contains the device.
func (r *Registry) Find(iccid string) (*coordinator.Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, coord := range r.entries {
		if _, ok := coord.Device(iccid); ok {
			return coord, true
		}
	}
	return nil, false
}

// Dispatcher resolves a device identifier to its owning coordinator and
// delegates the command.
type Dispatcher struct {
	registry *Registry
	log      *zap.Logger
}

func NewDispatcher(registry *Registry, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		log:      log.Named("dispatch"),
	}
}

func (d *Dispatcher) Activate(ctx context.Context, iccid string) error {
	coord, ok := d.registry.Find(iccid)
	if !ok {
		d.log.Error("device not found", zap.String("iccid", iccid))
		return ErrDeviceNotFound
	}
	return coord.Activate(ctx, iccid)
}

func (d *Dispatcher) Deactivate(ctx context.Context, iccid string) error {
	coord, ok := d.registry.Find(iccid)
	if !ok {
		d.log.Error("device not found", zap.String("iccid", iccid))
		return ErrDeviceNotFound
	}
	return coord.Deactivate(ctx, iccid)
}

func (d *Dispatcher) SendSMS(ctx context.Context, iccid, message string) error {
	coord, ok := d.registry.Find(iccid)
	if !ok {
		d.log.Error("device not found", zap.String("iccid", iccid))
		return ErrDeviceNotFound
	}
	return coord.SendSMS(ctx, iccid, message)
}

func (d *Dispatcher) Update(ctx context.Context, iccid string, name *string, tags []string) error {
	coord, ok := d.registry.Find(iccid)
	if !ok {
		d.log.Error("device not found", zap.String("iccid", iccid))
		return ErrDeviceNotFound
	}
	return coord.Update(ctx, iccid, name, tags)
}
