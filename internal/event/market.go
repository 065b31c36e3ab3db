package event

import (
	"fmt"
	"time"
)

// FundingRateUpdated is emitted whenever the hourly funding refresh
// recomputes the rate from open-interest imbalance.
type FundingRateUpdated struct {
	Market     string
	Rate       int64 // signed, funding-precision scale per hour
	TotalLong  int64
	TotalShort int64
	Timestamp  time.Time
}

func (e *FundingRateUpdated) EventType() EventType { return EventTypeFundingRateUpdated }
func (e *FundingRateUpdated) IdempotencyKey() string {
	return fmt.Sprintf("funding:%s:%d", e.Market, e.Timestamp.UnixNano())
}
func (e *FundingRateUpdated) Asset() string         { return e.Market }
func (e *FundingRateUpdated) OccurredAt() time.Time { return e.Timestamp }

// ConfigUpdated records an admin parameter change.
type ConfigUpdated struct {
	Market    string
	Admin     string
	Timestamp time.Time
}

func (e *ConfigUpdated) EventType() EventType { return EventTypeConfigUpdated }
func (e *ConfigUpdated) IdempotencyKey() string {
	return fmt.Sprintf("config:%s:%d", e.Market, e.Timestamp.UnixNano())
}
func (e *ConfigUpdated) Asset() string         { return e.Market }
func (e *ConfigUpdated) OccurredAt() time.Time { return e.Timestamp }

// MarketPaused records a pause or resume toggle.
type MarketPaused struct {
	Market    string
	Admin     string
	Paused    bool
	Timestamp time.Time
}

func (e *MarketPaused) EventType() EventType { return EventTypeMarketPaused }
func (e *MarketPaused) IdempotencyKey() string {
	return fmt.Sprintf("pause:%s:%d:%t", e.Market, e.Timestamp.UnixNano(), e.Paused)
}
func (e *MarketPaused) Asset() string         { return e.Market }
func (e *MarketPaused) OccurredAt() time.Time { return e.Timestamp }

// AdminRotated records a handover of the admin address.
type AdminRotated struct {
	Market    string
	OldAdmin  string
	NewAdmin  string
	Timestamp time.Time
}

func (e *AdminRotated) EventType() EventType { return EventTypeAdminRotated }
func (e *AdminRotated) IdempotencyKey() string {
	return fmt.Sprintf("admin:%s:%s", e.Market, e.NewAdmin)
}
func (e *AdminRotated) Asset() string         { return e.Market }
func (e *AdminRotated) OccurredAt() time.Time { return e.Timestamp }
