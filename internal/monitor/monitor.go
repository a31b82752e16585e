package monitor

import (
	"context"
	"errors"
	"time"

	"engine-core/internal/engine"

	"go.uber.org/zap"
)

// Fleet is the slice of the manager the monitor needs.
type Fleet interface {
	Healths() []engine.Health
	RestartEngine(symbol string) error
}

// HealthMonitor inspects every engine on a fixed period and asks the manager
// to recover unhealthy ones. All restarts go through the manager's recovery
// gate; the monitor itself never touches an engine.
type HealthMonitor struct {
	Fleet            Fleet
	Log              *zap.Logger
	Interval         time.Duration
	HeartbeatTimeout time.Duration
	ErrorSpike       int
}

// NewHealthMonitor applies the default supervision thresholds.
func NewHealthMonitor(fleet Fleet, log *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		Fleet:            fleet,
		Log:              log,
		Interval:         30 * time.Second,
		HeartbeatTimeout: 60 * time.Second,
		ErrorSpike:       10,
	}
}

// Start runs the supervision loop until the context is cancelled.
func (m *HealthMonitor) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Tick()
			}
		}
	}()
}

// Tick inspects the fleet once. Only the first matching condition per engine
// is acted on.
func (m *HealthMonitor) Tick() {
	for _, h := range m.Fleet.Healths() {
		if reason, ok := m.Classify(h, time.Now()); ok {
			m.recover(h.Symbol, reason)
		}
	}
}

// Classify returns the recovery reason for a snapshot, if any, checking the
// conditions in priority order: crashed, stale heartbeat, error spike.
func (m *HealthMonitor) Classify(h engine.Health, now time.Time) (string, bool) {
	switch {
	case h.Status == engine.StatusCrashed:
		return "crashed", true
	case h.Status == engine.StatusRunning && h.LastHeartbeat != nil &&
		now.Sub(*h.LastHeartbeat) > m.HeartbeatTimeout:
		return "heartbeat timeout", true
	case h.Status == engine.StatusRunning && h.ErrorCount > m.ErrorSpike:
		return "error spike", true
	}
	return "", false
}

func (m *HealthMonitor) recover(symbol, reason string) {
	m.Log.Warn("engine unhealthy, attempting recovery",
		zap.String("symbol", symbol),
		zap.String("reason", reason))

	err := m.Fleet.RestartEngine(symbol)
	switch {
	case err == nil:
		m.Log.Info("engine recovered", zap.String("symbol", symbol))
	case errors.Is(err, engine.ErrRestartDenied):
		// Normal "not yet" outcome; the next tick will try again.
		m.Log.Info("recovery deferred", zap.String("symbol", symbol), zap.Error(err))
	default:
		m.Log.Error("recovery failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
