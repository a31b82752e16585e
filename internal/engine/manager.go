package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"engine-core/internal/events"
	"engine-core/internal/recovery"

	"go.uber.org/zap"
)

const (
	restartTimeout = 5 * time.Second
	restartPause   = 500 * time.Millisecond
)

// Manager is the composition root for the fleet: it owns the symbol→engine
// map, the shared market-data subscription, and the start/stop/restart
// operations the API and the health monitor both use.
type Manager struct {
	cfgFor   func(symbol string) Config
	deps     Deps
	policy   *recovery.Policy
	bus      *events.Bus
	log      *zap.Logger
	baseCtx  context.Context

	mu      sync.RWMutex
	engines map[string]*Engine
	opLocks map[string]*sync.Mutex

	unsubFeed   func()
	stopMonitor func()
}

// NewManager wires the fleet supervisor. cfgFor resolves per-symbol engine
// settings; deps are shared by every engine (one risk manager, one account).
func NewManager(ctx context.Context, cfgFor func(string) Config, deps Deps, policy *recovery.Policy, bus *events.Bus, log *zap.Logger) *Manager {
	return &Manager{
		cfgFor:  cfgFor,
		deps:    deps,
		policy:  policy,
		bus:     bus,
		log:     log,
		baseCtx: ctx,
		engines: make(map[string]*Engine),
		opLocks: make(map[string]*sync.Mutex),
	}
}

// SetMonitorStop registers the cancel function of the health-monitor task so
// StopAll can retire it before touching the fleet.
func (m *Manager) SetMonitorStop(stop func()) {
	m.mu.Lock()
	m.stopMonitor = stop
	m.mu.Unlock()
}

// StartAll creates and starts one engine per symbol, continuing past
// individual failures, then establishes the single market-data subscription
// for the whole set.
func (m *Manager) StartAll(symbols []string) {
	for _, sym := range symbols {
		if err := m.StartEngine(sym); err != nil {
			m.log.Error("engine start failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
	m.subscribeFeed()
}

// StartEngine creates a fresh engine for symbol and starts it. Engines are
// always built fresh; persisted registry state never reconstructs them.
func (m *Manager) StartEngine(symbol string) error {
	lock := m.opLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	existing := m.engines[symbol]
	m.mu.RUnlock()
	if existing != nil {
		if st := existing.currentStatus(); st != StatusStopped && st != StatusCrashed {
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, symbol)
		}
	}

	eng := New(symbol, m.cfgFor(symbol), m.log, m.deps)
	if err := eng.Start(m.baseCtx); err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[symbol] = eng
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Engine.Publish(events.EngineEvent{Symbol: symbol, Kind: "started"})
	}
	return nil
}

// StopEngine stops and removes the engine for symbol. The map entry is only
// removed after the cycle has joined.
func (m *Manager) StopEngine(symbol string, timeout time.Duration) error {
	lock := m.opLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	eng := m.engines[symbol]
	m.mu.RUnlock()
	if eng == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	if err := eng.Stop(timeout); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.engines, symbol)
	m.mu.Unlock()

	if m.deps.Registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		m.deps.Registry.Unregister(ctx, symbol)
		cancel()
	}
	if m.bus != nil {
		m.bus.Engine.Publish(events.EngineEvent{Symbol: symbol, Kind: "stopped"})
	}
	return nil
}

// RestartEngine is the single restart path for manual calls and monitor
// recovery alike: recovery-policy gate, stop if present, brief pause, fresh
// start. It ends with either a freshly RUNNING engine or a reported failure.
func (m *Manager) RestartEngine(symbol string) error {
	ok, reason := m.policy.ShouldRecover(symbol)
	if !ok {
		return fmt.Errorf("%w: %s: %s", ErrRestartDenied, symbol, reason)
	}

	if err := m.StopEngine(symbol, restartTimeout); err != nil && !isNotFound(err) {
		return fmt.Errorf("restart %s: stop: %w", symbol, err)
	}

	time.Sleep(restartPause)

	if err := m.StartEngine(symbol); err != nil {
		return fmt.Errorf("restart %s: start: %w", symbol, err)
	}

	if m.bus != nil {
		m.bus.Engine.Publish(events.EngineEvent{Symbol: symbol, Kind: "recovered"})
	}
	m.log.Info("engine restarted", zap.String("symbol", symbol))
	return nil
}

// StopAll retires the fleet: health monitor first so it cannot race the
// topology change, then the market-data subscription, then every engine
// concurrently with the given per-engine timeout.
func (m *Manager) StopAll(timeout time.Duration) {
	m.mu.Lock()
	stopMon := m.stopMonitor
	unsub := m.unsubFeed
	m.stopMonitor = nil
	m.unsubFeed = nil
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	if stopMon != nil {
		stopMon()
	}
	if unsub != nil {
		unsub()
	}

	var wg sync.WaitGroup
	for _, eng := range engines {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			if err := m.StopEngine(e.Symbol(), timeout); err != nil && !isNotFound(err) {
				m.log.Error("engine stop failed", zap.String("symbol", e.Symbol()), zap.Error(err))
			}
		}(eng)
	}
	wg.Wait()
	m.log.Info("fleet stopped", zap.Int("engines", len(engines)))
}

// EngineHealth returns the live snapshot for symbol, or nil when absent.
func (m *Manager) EngineHealth(symbol string) *Health {
	m.mu.RLock()
	eng := m.engines[symbol]
	m.mu.RUnlock()
	if eng == nil {
		return nil
	}
	h := eng.Health()
	return &h
}

// Healths snapshots every engine. Reads are passive, so the result is always
// complete and internally consistent.
func (m *Manager) Healths() []Health {
	m.mu.RLock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.RUnlock()

	out := make([]Health, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Health())
	}
	return out
}

// Summary derives fleet counts from the current snapshots on every call.
func (m *Manager) Summary() FleetSummary {
	healths := m.Healths()
	s := FleetSummary{Total: len(healths), Engines: healths}
	for _, h := range healths {
		switch h.Status {
		case StatusRunning, StatusStarting, StatusPaused:
			s.Running++
		case StatusCrashed:
			s.Crashed++
		case StatusStopped, StatusStopping:
			s.Stopped++
		}
	}
	return s
}

// subscribeFeed establishes exactly one bus subscription and the dispatch
// goroutine routing ticks to engines by symbol. An unknown symbol is dropped.
func (m *Manager) subscribeFeed() {
	m.mu.Lock()
	if m.unsubFeed != nil {
		m.mu.Unlock()
		return
	}
	ch, unsub := m.bus.Ticks.Subscribe(256)
	m.unsubFeed = unsub
	m.mu.Unlock()

	go func() {
		for tick := range ch {
			m.mu.RLock()
			eng := m.engines[tick.Symbol]
			m.mu.RUnlock()
			if eng != nil {
				eng.Push(tick)
			}
		}
	}()
}

func (m *Manager) opLock(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.opLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		m.opLocks[symbol] = lock
	}
	return lock
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
