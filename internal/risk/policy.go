package risk

// Policy holds the quantitative bounds applied to every order.
type Policy struct {
	MaxDailyLossPct        float64 `json:"max_daily_loss_pct"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	KellyFraction          float64 `json:"kelly_fraction"`
	VolTargetAnn           float64 `json:"vol_target_ann"`
	MaxSymbolRiskPct       float64 `json:"max_symbol_risk_pct"`
}

// DefaultPolicy returns conservative limits suitable for paper trading.
func DefaultPolicy() Policy {
	return Policy{
		MaxDailyLossPct:        2.0,
		MaxConcurrentPositions: 3,
		KellyFraction:          0.25,
		VolTargetAnn:           0.20,
		MaxSymbolRiskPct:       0.10,
	}
}

// Decision is the outcome of a pre-trade admission check. A refusal is
// expected control flow, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Summary is the fleet-wide risk snapshot exposed to operators.
type Summary struct {
	EquityNow        float64 `json:"equity_now"`
	EquityStartOfDay float64 `json:"equity_start_of_day"`
	RealizedTodayPct float64 `json:"realized_today_pct"`
	PositionsOpen    int     `json:"positions_open"`
	GlobalStop       bool    `json:"global_stop"`
	Policy           Policy  `json:"policy"`
}
