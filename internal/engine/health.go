package engine

import "time"

// Status is the engine lifecycle state.
type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusPaused   Status = "PAUSED"
	StatusStopping Status = "STOPPING"
	StatusCrashed  Status = "CRASHED"
)

// Health is a point-in-time snapshot of one engine. Producing it is a passive
// read of in-memory fields, so fleet status queries can never partially fail.
type Health struct {
	Symbol        string     `json:"symbol"`
	Status        Status     `json:"status"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	ErrorCount    int        `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
	Position      float64    `json:"position"`
	DailyPnL      float64    `json:"daily_pnl"`
	TotalPnL      float64    `json:"total_pnl"`
	TradeCount    int        `json:"trade_count"`
}

// FleetSummary aggregates engine health snapshots. Counts are derived from
// the snapshots on every call, never cached.
type FleetSummary struct {
	Total   int      `json:"total"`
	Running int      `json:"running"`
	Crashed int      `json:"crashed"`
	Stopped int      `json:"stopped"`
	Engines []Health `json:"engines"`
}
