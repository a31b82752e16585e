package db

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS engine_registry (
    symbol TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    uptime_seconds REAL DEFAULT 0,
    last_heartbeat DATETIME,
    error_count INTEGER DEFAULT 0,
    last_error TEXT,
    position REAL,
    daily_pnl REAL DEFAULT 0,
    total_pnl REAL DEFAULT 0,
    trade_count INTEGER DEFAULT 0,
    instance_id TEXT,
    registered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    notional REAL NOT NULL,
    price REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS risk_days (
    date TEXT PRIMARY KEY,
    equity_start REAL NOT NULL,
    equity_end REAL NOT NULL,
    realized_pct REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// migrate creates tables when missing. Statements are idempotent so repeated
// process starts are safe. Runs as part of Open.
func (d *Database) migrate() error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
