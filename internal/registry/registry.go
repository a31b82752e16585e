// Package registry keeps a durable mirror of each engine's last-known health
// for observability. The persisted store is allowed to lag; it is never used
// to reconstruct live engines.
package registry

import (
	"context"
	"sync"

	"engine-core/internal/engine"
	"engine-core/pkg/db"

	"go.uber.org/zap"
)

// Registry serializes writes to the backing store. Every write is
// best-effort: a failed persist is logged and never propagated to the engine
// cycle that triggered it.
type Registry struct {
	mu         sync.Mutex
	db         *db.Database
	log        *zap.Logger
	instanceID string
}

// New builds a registry over the given store. instanceID tags rows with the
// writing process's host identity.
func New(database *db.Database, log *zap.Logger, instanceID string) *Registry {
	return &Registry{db: database, log: log, instanceID: instanceID}
}

// Register persists the initial record for an engine that just started.
func (r *Registry) Register(ctx context.Context, h engine.Health) {
	r.write(ctx, h, "register")
}

// Update refreshes an engine's persisted record on each health tick.
func (r *Registry) Update(ctx context.Context, h engine.Health) {
	r.write(ctx, h, "update")
}

// Unregister removes the record for a stopped engine.
func (r *Registry) Unregister(ctx context.Context, symbol string) {
	if r.db == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.db.DeleteRegistryRow(ctx, symbol); err != nil {
		r.log.Warn("registry unregister failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// LoadSnapshot returns the last persisted view of the fleet, read once on
// process start for observability.
func (r *Registry) LoadSnapshot(ctx context.Context) ([]db.RegistryRow, error) {
	if r.db == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.ListRegistryRows(ctx)
}

func (r *Registry) write(ctx context.Context, h engine.Health, op string) {
	if r.db == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.UpsertRegistryRow(ctx, db.RegistryRow{
		Symbol:        h.Symbol,
		Status:        string(h.Status),
		UptimeSeconds: h.UptimeSeconds,
		LastHeartbeat: h.LastHeartbeat,
		ErrorCount:    h.ErrorCount,
		LastError:     h.LastError,
		Position:      h.Position,
		DailyPnL:      h.DailyPnL,
		TotalPnL:      h.TotalPnL,
		TradeCount:    h.TradeCount,
		InstanceID:    r.instanceID,
	})
	if err != nil {
		r.log.Warn("registry persist failed",
			zap.String("op", op),
			zap.String("symbol", h.Symbol),
			zap.Error(err))
	}
}
