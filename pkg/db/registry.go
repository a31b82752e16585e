package db

import (
	"context"
	"database/sql"
	"time"
)

// RegistryRow is the persisted mirror of an engine's last-known health.
type RegistryRow struct {
	Symbol        string
	Status        string
	UptimeSeconds float64
	LastHeartbeat *time.Time
	ErrorCount    int
	LastError     string
	Position      float64
	DailyPnL      float64
	TotalPnL      float64
	TradeCount    int
	InstanceID    string
	RegisteredAt  time.Time
	UpdatedAt     time.Time
}

// UpsertRegistryRow creates or refreshes the row for a symbol. The
// registered_at timestamp is preserved on update.
func (d *Database) UpsertRegistryRow(ctx context.Context, r RegistryRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO engine_registry (
			symbol, status, uptime_seconds, last_heartbeat, error_count,
			last_error, position, daily_pnl, total_pnl, trade_count,
			instance_id, registered_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			status = excluded.status,
			uptime_seconds = excluded.uptime_seconds,
			last_heartbeat = excluded.last_heartbeat,
			error_count = excluded.error_count,
			last_error = excluded.last_error,
			position = excluded.position,
			daily_pnl = excluded.daily_pnl,
			total_pnl = excluded.total_pnl,
			trade_count = excluded.trade_count,
			instance_id = excluded.instance_id,
			updated_at = CURRENT_TIMESTAMP
	`,
		r.Symbol, r.Status, r.UptimeSeconds, nullableTime(r.LastHeartbeat),
		r.ErrorCount, r.LastError, r.Position, r.DailyPnL, r.TotalPnL,
		r.TradeCount, r.InstanceID,
	)
	return err
}

// DeleteRegistryRow removes the row for a symbol.
func (d *Database) DeleteRegistryRow(ctx context.Context, symbol string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM engine_registry WHERE symbol = ?`, symbol)
	return err
}

// ListRegistryRows returns every persisted engine record.
func (d *Database) ListRegistryRows(ctx context.Context) ([]RegistryRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, status, uptime_seconds, last_heartbeat, error_count,
		       COALESCE(last_error, ''), COALESCE(position, 0), daily_pnl,
		       total_pnl, trade_count, COALESCE(instance_id, ''),
		       registered_at, updated_at
		FROM engine_registry
		ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegistryRow
	for rows.Next() {
		var r RegistryRow
		var hb sql.NullTime
		if err := rows.Scan(
			&r.Symbol, &r.Status, &r.UptimeSeconds, &hb, &r.ErrorCount,
			&r.LastError, &r.Position, &r.DailyPnL, &r.TotalPnL,
			&r.TradeCount, &r.InstanceID, &r.RegisteredAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if hb.Valid {
			t := hb.Time
			r.LastHeartbeat = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertTrade journals an executed order.
func (d *Database) InsertTrade(ctx context.Context, id, symbol, side string, notional, price float64) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, side, notional, price)
		VALUES (?, ?, ?, ?, ?)
	`, id, symbol, side, notional, price)
	return err
}

// RecordDayRoll persists the equity book at a day boundary.
func (d *Database) RecordDayRoll(ctx context.Context, date string, equityStart, equityEnd, realizedPct float64) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_days (date, equity_start, equity_end, realized_pct)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			equity_end = excluded.equity_end,
			realized_pct = excluded.realized_pct
	`, date, equityStart, equityEnd, realizedPct)
	return err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
