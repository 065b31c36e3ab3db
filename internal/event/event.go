// Package event defines the structured events emitted by the engine on
// every state transition. Each event carries the full economic detail
// needed to reconstruct trade history downstream.
package event

import "time"

// EventType discriminates event payloads.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePositionOpened
	EventTypeCollateralAdded
	EventTypePositionClosed
	EventTypePositionLiquidated
	EventTypeOrderPlaced
	EventTypeOrderExecuted
	EventTypeOrderCancelled
	EventTypeFundingRateUpdated
	EventTypeConfigUpdated
	EventTypeMarketPaused
	EventTypeAdminRotated
)

// Event is implemented by every engine event payload.
type Event interface {
	// EventType returns the discriminator.
	EventType() EventType

	// IdempotencyKey returns a stable dedup key for downstream consumers.
	IdempotencyKey() string

	// Asset returns the market asset context (empty for global events).
	Asset() string

	// OccurredAt returns the ledger time of the transition.
	OccurredAt() time.Time
}

func (et EventType) String() string {
	switch et {
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypeCollateralAdded:
		return "CollateralAdded"
	case EventTypePositionClosed:
		return "PositionClosed"
	case EventTypePositionLiquidated:
		return "PositionLiquidated"
	case EventTypeOrderPlaced:
		return "OrderPlaced"
	case EventTypeOrderExecuted:
		return "OrderExecuted"
	case EventTypeOrderCancelled:
		return "OrderCancelled"
	case EventTypeFundingRateUpdated:
		return "FundingRateUpdated"
	case EventTypeConfigUpdated:
		return "ConfigUpdated"
	case EventTypeMarketPaused:
		return "MarketPaused"
	case EventTypeAdminRotated:
		return "AdminRotated"
	default:
		return "Unknown"
	}
}

// Sink receives events as they are committed. Implementations must not
// block the engine; buffered hand-off is the publisher's concern.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}
