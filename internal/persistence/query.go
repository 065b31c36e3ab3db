package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Querier provides read-only access to the persisted event log and
// trade history. Reads see committed batches only; rows written by an
// in-flight flush appear once the flush commits.
type Querier struct {
	db *sql.DB
}

func NewQuerier(db *sql.DB) *Querier {
	return &Querier{db: db}
}

// TradeHistory returns a trader's lifecycle rows, newest first.
func (q *Querier) TradeHistory(ctx context.Context, trader string, limit int) ([]TradeRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, idempotency_key, position_id, order_id, trader, asset,
		       direction, action, price, size, collateral, pnl, funding,
		       fee, keeper, keeper_reward, occurred_at
		FROM engine.trade_history
		WHERE trader = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, trader, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(
			&t.ID, &t.IdempotencyKey, &t.PositionID, &t.OrderID, &t.Trader,
			&t.Asset, &t.Direction, &t.Action, &t.Price, &t.Size,
			&t.Collateral, &t.PnL, &t.Funding, &t.Fee, &t.Keeper,
			&t.KeeperReward, &t.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EventsForAsset returns events for one asset since a point in time,
// oldest first, suitable for replay.
func (q *Querier) EventsForAsset(ctx context.Context, asset string, since time.Time, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT event_id, event_type, idempotency_key, asset, payload, occurred_at
		FROM engine.events
		WHERE asset = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
		LIMIT $3
	`, asset, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.EventID, &e.EventType, &e.IdempotencyKey,
			&e.Asset, &e.Payload, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
