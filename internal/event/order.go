package event

import (
	"fmt"
	"time"
)

// OrderPlaced is emitted when a conditional order enters Pending.
type OrderPlaced struct {
	OrderID              uint64
	Trader               string
	Market               string
	Kind                 string // LimitEntry | StopLoss | TakeProfit
	Direction            string
	Collateral           int64 // locked custody, LimitEntry only
	Leverage             int64
	TriggerPrice         int64
	TriggerCondition     string // Above | Below
	SlippageToleranceBps int64
	PositionID           uint64 // linked position for SL/TP, else 0
	Timestamp            time.Time
}

func (e *OrderPlaced) EventType() EventType { return EventTypeOrderPlaced }
func (e *OrderPlaced) IdempotencyKey() string {
	return fmt.Sprintf("order:%d:placed", e.OrderID)
}
func (e *OrderPlaced) Asset() string         { return e.Market }
func (e *OrderPlaced) OccurredAt() time.Time { return e.Timestamp }

// OrderExecuted is emitted when a pending order executes successfully.
type OrderExecuted struct {
	OrderID      uint64
	Trader       string
	Keeper       string
	Market       string
	Kind         string
	ExecPrice    int64
	TriggerPrice int64
	SlippageBps  int64
	KeeperFee    int64
	PositionID   uint64 // opened (LimitEntry) or closed (SL/TP) position
	Timestamp    time.Time
}

func (e *OrderExecuted) EventType() EventType { return EventTypeOrderExecuted }
func (e *OrderExecuted) IdempotencyKey() string {
	return fmt.Sprintf("order:%d:executed", e.OrderID)
}
func (e *OrderExecuted) Asset() string         { return e.Market }
func (e *OrderExecuted) OccurredAt() time.Time { return e.Timestamp }

// CancelReason distinguishes user cancellation from the slippage-abort path.
type CancelReason string

const (
	CancelReasonUser     CancelReason = "user"
	CancelReasonSlippage CancelReason = "slippage"
)

// OrderCancelled is emitted when a pending order terminates without
// executing, either by the trader or because realized slippage exceeded
// its tolerance at execution time.
type OrderCancelled struct {
	OrderID     uint64
	Trader      string
	Market      string
	Kind        string
	Reason      CancelReason
	Refund      int64 // returned custody, LimitEntry only
	SlippageBps int64 // realized slippage, slippage cancellations only
	Timestamp   time.Time
}

func (e *OrderCancelled) EventType() EventType { return EventTypeOrderCancelled }
func (e *OrderCancelled) IdempotencyKey() string {
	return fmt.Sprintf("order:%d:cancelled", e.OrderID)
}
func (e *OrderCancelled) Asset() string         { return e.Market }
func (e *OrderCancelled) OccurredAt() time.Time { return e.Timestamp }
