package event

import (
	"fmt"
	"time"
)

// PositionOpened is emitted when a position enters the ledger, whether by a
// direct open or by limit-entry execution.
type PositionOpened struct {
	PositionID       uint64
	Trader           string
	Market           string
	Direction        string
	Collateral       int64 // net of fees
	Size             int64
	Leverage         int64
	EntryPrice       int64
	LiquidationPrice int64
	TradingFee       int64
	OrderID          uint64 // 0 unless opened by limit-entry execution
	Timestamp        time.Time
}

func (e *PositionOpened) EventType() EventType { return EventTypePositionOpened }
func (e *PositionOpened) IdempotencyKey() string {
	return fmt.Sprintf("position:%d:opened", e.PositionID)
}
func (e *PositionOpened) Asset() string         { return e.Market }
func (e *PositionOpened) OccurredAt() time.Time { return e.Timestamp }

// CollateralAdded is emitted after a successful top-up.
type CollateralAdded struct {
	PositionID       uint64
	Trader           string
	Market           string
	Amount           int64
	NewCollateral    int64
	NewLeverage      int64 // effective, after truncating recompute
	LiquidationPrice int64
	Timestamp        time.Time
}

func (e *CollateralAdded) EventType() EventType { return EventTypeCollateralAdded }
func (e *CollateralAdded) IdempotencyKey() string {
	return fmt.Sprintf("position:%d:topup:%d", e.PositionID, e.Timestamp.UnixMicro())
}
func (e *CollateralAdded) Asset() string         { return e.Market }
func (e *CollateralAdded) OccurredAt() time.Time { return e.Timestamp }

// PositionClosed is emitted when a trader closes a position voluntarily or
// through stop-loss/take-profit execution.
type PositionClosed struct {
	PositionID uint64
	Trader     string
	Market     string
	Direction  string
	Size       int64
	Collateral int64
	EntryPrice int64
	ExitPrice  int64
	PnL        int64
	Funding    int64 // accumulated funding settled at close
	KeeperFee  int64 // non-zero only for SL/TP execution
	Payout     int64 // amount remitted to the trader
	OrderID    uint64 // 0 unless closed by SL/TP execution
	Timestamp  time.Time
}

func (e *PositionClosed) EventType() EventType { return EventTypePositionClosed }
func (e *PositionClosed) IdempotencyKey() string {
	return fmt.Sprintf("position:%d:closed", e.PositionID)
}
func (e *PositionClosed) Asset() string         { return e.Market }
func (e *PositionClosed) OccurredAt() time.Time { return e.Timestamp }

// PositionLiquidated is emitted on a forced close.
type PositionLiquidated struct {
	PositionID   uint64
	Trader       string
	Keeper       string
	Market       string
	Direction    string
	Size         int64
	Collateral   int64
	EntryPrice   int64
	MarkPrice    int64
	PnL          int64
	Funding      int64
	KeeperReward int64
	VaultShare   int64 // collateral remitted to the vault
	Timestamp    time.Time
}

func (e *PositionLiquidated) EventType() EventType { return EventTypePositionLiquidated }
func (e *PositionLiquidated) IdempotencyKey() string {
	return fmt.Sprintf("position:%d:liquidated", e.PositionID)
}
func (e *PositionLiquidated) Asset() string         { return e.Market }
func (e *PositionLiquidated) OccurredAt() time.Time { return e.Timestamp }
