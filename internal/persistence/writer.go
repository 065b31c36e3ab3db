// Package persistence records engine events and trade history in
// Postgres for reconstruction and querying.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventRow is a row in engine.events: the full event payload as JSON
// plus the columns needed to filter without unmarshalling.
type EventRow struct {
	EventID        string
	EventType      string
	IdempotencyKey string
	Asset          string
	Payload        []byte
	OccurredAt     time.Time
}

// TradeRow is a row in engine.trade_history: one position lifecycle
// step (open, close, liquidate) with its economic detail.
type TradeRow struct {
	ID             string
	IdempotencyKey string
	PositionID     int64
	OrderID        int64
	Trader         string
	Asset          string
	Direction      string
	Action         string
	Price          int64
	Size           int64
	Collateral     int64
	PnL            int64
	Funding        int64
	Fee            int64
	Keeper         string
	KeeperReward   int64
	OccurredAt     time.Time
}

// EventWriter batch-inserts rows with multi-row INSERT. Idempotency
// keys make redelivered writes no-ops.
type EventWriter struct {
	db *sql.DB
}

func NewEventWriter(db *sql.DB) *EventWriter {
	return &EventWriter{db: db}
}

// WriteEvents inserts a batch into engine.events.
func (w *EventWriter) WriteEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO engine.events
		(event_id, event_type, idempotency_key, asset, payload, occurred_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)
	for i, r := range rows {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, r.EventID, r.EventType, r.IdempotencyKey, r.Asset, r.Payload, r.OccurredAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (idempotency_key) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// WriteTrades inserts a batch into engine.trade_history.
func (w *EventWriter) WriteTrades(ctx context.Context, rows []TradeRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO engine.trade_history
		(id, idempotency_key, position_id, order_id, trader, asset, direction, action,
		 price, size, collateral, pnl, funding, fee, keeper, keeper_reward, occurred_at)
		VALUES `

	const cols = 17
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)
	for i, r := range rows {
		base := i * cols
		ph := make([]string, cols)
		for c := 0; c < cols; c++ {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			r.ID, r.IdempotencyKey, r.PositionID, r.OrderID, r.Trader, r.Asset,
			r.Direction, r.Action, r.Price, r.Size, r.Collateral, r.PnL,
			r.Funding, r.Fee, r.Keeper, r.KeeperReward, r.OccurredAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (idempotency_key) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}
