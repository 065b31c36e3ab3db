package market

import (
	"errors"

	"PerpEngine/internal/fpmath"
	"PerpEngine/internal/gateway"
)

// Input validation errors. Checked before any mutation or transfer.
var (
	ErrInvalidLeverage          = errors.New("leverage outside allowed range")
	ErrInsufficientCollateral   = errors.New("collateral below required minimum")
	ErrPositionTooLarge         = errors.New("position size exceeds market maximum")
	ErrInvalidTriggerPrice      = errors.New("trigger price on wrong side of entry")
	ErrInvalidSlippageTolerance = errors.New("slippage tolerance outside 1..10000 bps")
	ErrInvalidAmount            = errors.New("amount must be positive")
)

// State errors. Signal caller misuse or stale information.
var (
	ErrPositionNotFound   = errors.New("position not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotPositionOwner   = errors.New("caller does not own position")
	ErrNotOrderOwner      = errors.New("caller does not own order")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrOrderAlreadyExists = errors.New("order of this kind already linked to position")
	ErrNotLiquidatable    = errors.New("position is not liquidatable")
	ErrOrderNotTriggered  = errors.New("trigger condition not met")
	ErrMarketPaused       = errors.New("market is paused")
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrNotAdmin           = errors.New("caller is not the admin")
)

// External dependency errors. Propagated unchanged so callers can retry.
var (
	ErrPriceStale                = errors.New("oracle price is stale")
	ErrInvalidPrice              = gateway.ErrInvalidPrice
	ErrFundingIntervalNotElapsed = errors.New("funding interval not elapsed")
)

// ErrArithmeticRange aborts a call whose fixed-point math left the
// representable domain. Never produces a partially applied result.
var ErrArithmeticRange = fpmath.ErrArithmeticRange
