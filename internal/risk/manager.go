package risk

import (
	"math"
	"sync"
	"time"

	"engine-core/internal/events"

	"go.uber.org/zap"
)

// payoffRatio is the assumed win/loss payoff for the Kelly calculation.
const payoffRatio = 1.2

const volEpsilon = 1e-9

// SymbolState tracks one symbol's position and realized PnL for the day.
// Mutated only through Manager event handlers.
type SymbolState struct {
	OpenPosition  float64   `json:"open_position"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedToday float64   `json:"realized_today"`
	RealizedTotal float64   `json:"realized_total"`
	LastTradeAt   time.Time `json:"last_trade_at"`
}

// EquityBook is the single account-level equity ledger shared by the fleet.
type EquityBook struct {
	EquityStartOfDay float64   `json:"equity_start_of_day"`
	EquityNow        float64   `json:"equity_now"`
	DayStart         time.Time `json:"day_start"`
}

// Manager converts signals into bounded position sizes and tracks the shared
// equity curve. One instance serves every engine, so all mutations happen
// behind a single writer lock while sizing and admission reads may run
// concurrently.
type Manager struct {
	mu      sync.RWMutex
	policy  Policy
	book    EquityBook
	symbols map[string]*SymbolState
	open    int
	log     *zap.Logger
	alerts  *events.Stream[events.RiskAlert]
}

// NewManager creates the shared risk manager seeded with starting equity.
func NewManager(policy Policy, initialEquity float64, log *zap.Logger) *Manager {
	return &Manager{
		policy: policy,
		book: EquityBook{
			EquityStartOfDay: initialEquity,
			EquityNow:        initialEquity,
			DayStart:         time.Now().UTC(),
		},
		symbols: make(map[string]*SymbolState),
		log:     log,
	}
}

// SetAlerts attaches the stream account-level guard events are published on.
func (m *Manager) SetAlerts(s *events.Stream[events.RiskAlert]) {
	m.mu.Lock()
	m.alerts = s
	m.mu.Unlock()
}

// Policy returns a copy of the active policy.
func (m *Manager) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// RealizedTodayPct is the day's realized return against the day-open equity.
func (m *Manager) RealizedTodayPct() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.realizedTodayPctLocked()
}

func (m *Manager) realizedTodayPctLocked() float64 {
	if m.book.EquityStartOfDay == 0 {
		return 0
	}
	return 100 * (m.book.EquityNow - m.book.EquityStartOfDay) / m.book.EquityStartOfDay
}

// IsGlobalStop reports whether the daily loss limit has been breached. Once
// true it stays true until the next day reset restores the baseline.
func (m *Manager) IsGlobalStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalStopLocked()
}

func (m *Manager) globalStopLocked() bool {
	return m.realizedTodayPctLocked() <= -math.Abs(m.policy.MaxDailyLossPct)
}

// CanOpenNewPosition applies the global stop and the concurrent-position
// ceiling. The global stop dominates regardless of position count.
func (m *Manager) CanOpenNewPosition(symbol string) bool {
	return m.Admit(symbol).Allowed
}

// Admit is the structured form of CanOpenNewPosition: a refusal carries the
// blocking reason for logging and the API.
func (m *Manager) Admit(symbol string) Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.globalStopLocked() {
		return Decision{Allowed: false, Reason: "global stop: daily loss limit breached"}
	}
	if m.open >= m.policy.MaxConcurrentPositions {
		return Decision{Allowed: false, Reason: "concurrent position limit reached"}
	}
	return Decision{Allowed: true}
}

// CalcPositionSize returns the bounded position size as a fraction of equity.
// The pipeline is: fractional Kelly from the win probability, scaled to the
// volatility target, scaled by model confidence, then capped per symbol.
// Clamp placement is part of the contract; do not reorder.
func (m *Manager) CalcPositionSize(symbol string, probUp, confidence, volAnnual float64) float64 {
	m.mu.RLock()
	pol := m.policy
	m.mu.RUnlock()

	p := clamp(probUp, 0, 1)
	kelly := clamp(p-(1-p)/payoffRatio, 0, 1) * pol.KellyFraction

	volScale := clamp(pol.VolTargetAnn/math.Max(volAnnual, volEpsilon), 0.05, 1.5)
	confScale := 0.5 + 0.5*clamp(confidence, 0, 1)

	raw := kelly * volScale * confScale
	return math.Min(pol.MaxSymbolRiskPct, raw)
}

// OnOrderFilled records a fill for a symbol, opening the position if it was
// flat. Buys add to the signed position, sells subtract.
func (m *Manager) OnOrderFilled(symbol, side string, notional float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.symbolLocked(symbol)
	wasFlat := st.OpenPosition == 0

	if side == "SELL" {
		notional = -notional
	}
	st.OpenPosition += notional
	st.LastTradeAt = time.Now().UTC()

	if wasFlat && st.OpenPosition != 0 {
		m.open++
	} else if !wasFlat && st.OpenPosition == 0 {
		// the fill exactly flattened an existing position
		m.open--
	}
}

// OnPositionClosed flattens a symbol and folds its realized PnL into the
// equity book and the symbol's daily counter.
func (m *Manager) OnPositionClosed(symbol string, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.symbolLocked(symbol)
	if st.OpenPosition != 0 {
		m.open--
	}
	wasStopped := m.globalStopLocked()
	st.OpenPosition = 0
	st.UnrealizedPnL = 0
	st.RealizedToday += realizedPnL
	st.RealizedTotal += realizedPnL
	m.book.EquityNow += realizedPnL

	if !wasStopped && m.globalStopLocked() {
		pct := m.realizedTodayPctLocked()
		m.log.Warn("global stop engaged",
			zap.Float64("realized_today_pct", pct),
			zap.Float64("max_daily_loss_pct", m.policy.MaxDailyLossPct))
		if m.alerts != nil {
			m.alerts.Publish(events.RiskAlert{
				Kind:   "global_stop",
				Detail: "daily loss limit breached",
				Value:  pct,
			})
		}
	}
}

// UpdateEquity folds a realized PnL delta into the equity book without
// touching any symbol state (funding payments, fees, manual adjustments).
func (m *Manager) UpdateEquity(realizedDelta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.book.EquityNow += realizedDelta
}

// SetUnrealized updates a symbol's mark-to-market PnL. Unrealized PnL never
// mutates EquityNow; it only feeds the computed total-equity view.
func (m *Manager) SetUnrealized(symbol string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbolLocked(symbol).UnrealizedPnL = pnl
}

// TotalEquity is the computed view: realized equity plus open mark-to-market.
func (m *Manager) TotalEquity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := m.book.EquityNow
	for _, st := range m.symbols {
		total += st.UnrealizedPnL
	}
	return total
}

// OnDayReset snapshots the day-open baseline and zeroes per-symbol daily
// counters. EquityNow itself is never reset.
func (m *Manager) OnDayReset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Info("day reset",
		zap.Float64("equity_prev_start", m.book.EquityStartOfDay),
		zap.Float64("equity_now", m.book.EquityNow),
		zap.Float64("realized_pct", m.realizedTodayPctLocked()))

	m.book.EquityStartOfDay = m.book.EquityNow
	m.book.DayStart = time.Now().UTC()
	for _, st := range m.symbols {
		st.RealizedToday = 0
	}
}

// Book returns a copy of the equity book.
func (m *Manager) Book() EquityBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book
}

// SymbolSnapshot returns a copy of a symbol's ledger state.
func (m *Manager) SymbolSnapshot(symbol string) SymbolState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.symbols[symbol]; ok {
		return *st
	}
	return SymbolState{}
}

// OpenPositions returns the current concurrent-position count.
func (m *Manager) OpenPositions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Summary assembles the operator-facing risk snapshot.
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Summary{
		EquityNow:        m.book.EquityNow,
		EquityStartOfDay: m.book.EquityStartOfDay,
		RealizedTodayPct: m.realizedTodayPctLocked(),
		PositionsOpen:    m.open,
		GlobalStop:       m.globalStopLocked(),
		Policy:           m.policy,
	}
}

func (m *Manager) symbolLocked(symbol string) *SymbolState {
	st, ok := m.symbols[symbol]
	if !ok {
		st = &SymbolState{}
		m.symbols[symbol] = st
	}
	return st
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
