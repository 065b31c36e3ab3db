package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpEngine/internal/event"
)

// Worker drains committed engine events into Postgres. Emission from
// the engine side BLOCKS when the buffer fills: falling behind stalls
// the caller instead of losing history.
type Worker struct {
	writer       *EventWriter
	ch           chan event.Event
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
}

func NewWorker(db *sql.DB, buffer, batchSize int, flushTimeout time.Duration, log zerolog.Logger) *Worker {
	return &Worker{
		writer:       NewEventWriter(db),
		ch:           make(chan event.Event, buffer),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log.With().Str("component", "persistence_worker").Logger(),
	}
}

// Emit implements event.Sink with blocking hand-off.
func (w *Worker) Emit(e event.Event) { w.ch <- e }

// Close stops intake. Run flushes what remains and exits.
func (w *Worker) Close() { close(w.ch) }

var _ event.Sink = (*Worker)(nil)

// Run batches incoming events and flushes on batch size or timeout.
// Blocks until the context ends or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	events := make([]EventRow, 0, w.batchSize)
	trades := make([]TradeRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	flush := func(fctx context.Context) {
		if len(events) == 0 && len(trades) == 0 {
			return
		}
		if err := w.flushWithRetry(fctx, events, trades); err != nil {
			w.log.Error().Err(err).Int("events", len(events)).Msg("flush failed")
		}
		events = events[:0]
		trades = trades[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.Background())
			return ctx.Err()

		case evt, ok := <-w.ch:
			if !ok {
				flush(context.Background())
				return nil
			}
			row, err := eventRowFrom(evt)
			if err != nil {
				w.log.Error().Err(err).Str("event_type", evt.EventType().String()).Msg("encode event")
				continue
			}
			events = append(events, row)
			if tr, ok := tradeRowFrom(evt); ok {
				trades = append(trades, tr)
			}
			if len(events) >= w.batchSize {
				flush(ctx)
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			flush(ctx)
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds or the context ends. History is never dropped.
func (w *Worker) flushWithRetry(ctx context.Context, events []EventRow, trades []TradeRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(events)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.writer.WriteEvents(ctx, events); err != nil {
			w.log.Warn().Err(err).Msg("write events failed")
			continue
		}
		if err := w.writer.WriteTrades(ctx, trades); err != nil {
			w.log.Warn().Err(err).Msg("write trades failed")
			continue
		}
		return nil
	}
}

func eventRowFrom(e event.Event) (EventRow, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload: %w", err)
	}
	return EventRow{
		EventID:        uuid.NewString(),
		EventType:      e.EventType().String(),
		IdempotencyKey: e.IdempotencyKey(),
		Asset:          e.Asset(),
		Payload:        payload,
		OccurredAt:     e.OccurredAt(),
	}, nil
}

// tradeRowFrom projects position lifecycle events into trade history.
// Other event types live only in the event log.
func tradeRowFrom(e event.Event) (TradeRow, bool) {
	switch v := e.(type) {
	case *event.PositionOpened:
		return TradeRow{
			ID:             uuid.NewString(),
			IdempotencyKey: "trade:" + v.IdempotencyKey(),
			PositionID:     int64(v.PositionID),
			OrderID:        int64(v.OrderID),
			Trader:         v.Trader,
			Asset:          v.Market,
			Direction:      v.Direction,
			Action:         "open",
			Price:          v.EntryPrice,
			Size:           v.Size,
			Collateral:     v.Collateral,
			Fee:            v.TradingFee,
			OccurredAt:     v.Timestamp,
		}, true
	case *event.PositionClosed:
		return TradeRow{
			ID:             uuid.NewString(),
			IdempotencyKey: "trade:" + v.IdempotencyKey(),
			PositionID:     int64(v.PositionID),
			OrderID:        int64(v.OrderID),
			Trader:         v.Trader,
			Asset:          v.Market,
			Direction:      v.Direction,
			Action:         "close",
			Price:          v.ExitPrice,
			Size:           v.Size,
			Collateral:     v.Collateral,
			PnL:            v.PnL,
			Funding:        v.Funding,
			Fee:            v.KeeperFee,
			OccurredAt:     v.Timestamp,
		}, true
	case *event.PositionLiquidated:
		return TradeRow{
			ID:             uuid.NewString(),
			IdempotencyKey: "trade:" + v.IdempotencyKey(),
			PositionID:     int64(v.PositionID),
			Trader:         v.Trader,
			Asset:          v.Market,
			Direction:      v.Direction,
			Action:         "liquidate",
			Price:          v.MarkPrice,
			Size:           v.Size,
			Collateral:     v.Collateral,
			PnL:            v.PnL,
			Funding:        v.Funding,
			Keeper:         v.Keeper,
			KeeperReward:   v.KeeperReward,
			OccurredAt:     v.Timestamp,
		}, true
	default:
		return TradeRow{}, false
	}
}
