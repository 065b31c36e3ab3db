package market

import "time"

// OrderKind discriminates conditional orders.
type OrderKind int8

const (
	LimitEntry OrderKind = iota + 1
	StopLoss
	TakeProfit
)

func (k OrderKind) String() string {
	switch k {
	case LimitEntry:
		return "limit_entry"
	case StopLoss:
		return "stop_loss"
	case TakeProfit:
		return "take_profit"
	default:
		return "invalid"
	}
}

// TriggerCondition tells against which side of the trigger price the
// current price must land for the order to fire.
type TriggerCondition int8

const (
	TriggerAbove TriggerCondition = iota + 1
	TriggerBelow
)

func (t TriggerCondition) String() string {
	switch t {
	case TriggerAbove:
		return "above"
	case TriggerBelow:
		return "below"
	default:
		return "invalid"
	}
}

// OrderStatus is the order state machine. Pending is the only
// non-terminal state; terminal states are never left.
type OrderStatus int8

const (
	OrderPending OrderStatus = iota + 1
	OrderExecuted
	OrderCancelled
	OrderCancelledBySlippage
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderExecuted:
		return "executed"
	case OrderCancelled:
		return "cancelled"
	case OrderCancelledBySlippage:
		return "cancelled_by_slippage"
	default:
		return "invalid"
	}
}

// Order is a pending conditional instruction. Collateral is locked in
// engine custody only for LimitEntry orders, zero otherwise.
type Order struct {
	ID        uint64
	Trader    string
	Asset     string
	Kind      OrderKind
	Direction Direction

	Collateral int64
	Leverage   int64

	TriggerPrice         int64
	TriggerCondition     TriggerCondition
	SlippageToleranceBps int64

	// PositionID links StopLoss/TakeProfit orders to a live position;
	// zero for LimitEntry.
	PositionID uint64

	CreatedAt time.Time
	Status    OrderStatus
}

// Outcome tags an ExecuteOrder result so the slippage-abort path is
// distinguishable from a successful execution at the type level.
type Outcome int8

const (
	OutcomeExecuted Outcome = iota + 1
	OutcomeAbortedBySlippage
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeAbortedBySlippage:
		return "aborted_by_slippage"
	default:
		return "invalid"
	}
}

// ExecutionResult is returned by ExecuteOrder. On the slippage-abort
// path the order transition to CancelledBySlippage has committed and
// KeeperReward is zero.
type ExecutionResult struct {
	Outcome      Outcome
	KeeperReward int64

	// PositionID is the position opened (LimitEntry) or closed (SL/TP)
	// by the execution; zero on slippage abort.
	PositionID uint64

	// SlippageBps is the realized deviation from the trigger price.
	SlippageBps int64
}
