package market

import (
	"time"

	"PerpEngine/internal/fpmath"
)

// Direction of a position's exposure.
type Direction int8

const (
	Long Direction = iota + 1
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "invalid"
	}
}

func (d Direction) valid() bool { return d == Long || d == Short }

// sideSign maps the direction onto the signed multiplier used by the
// fixed-point helpers.
func (d Direction) sideSign() int64 {
	if d == Short {
		return fpmath.SideShort
	}
	return fpmath.SideLong
}

// Position is an open leveraged exposure. The engine is the sole owner
// of these records; callers only ever see copies.
type Position struct {
	ID        uint64
	Trader    string
	Asset     string
	Direction Direction

	// Collateral is net of fees and strictly positive while open.
	Collateral int64

	// Size is the notional exposure, collateral * leverage at open time.
	Size int64

	Leverage         int64
	EntryPrice       int64
	LiquidationPrice int64

	OpenedAt        time.Time
	LastFundingTime time.Time

	// AccumulatedFunding is signed: positive means the position owes
	// funding, negative means it is owed.
	AccumulatedFunding int64

	// StopLossID and TakeProfitID are the linked pending orders, zero
	// when unset. At most one of each kind per position.
	StopLossID   uint64
	TakeProfitID uint64
}
