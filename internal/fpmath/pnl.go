package fpmath

// PositionSize computes the notional size opened by collateral at the given
// integer leverage multiplier.
func PositionSize(collateral, leverage int64) (int64, error) {
	return CheckedMul(collateral, leverage)
}

// LiquidationPrice returns the price at which remaining equity equals the
// maintenance-margin fraction of notional.
//
// Long:  entry - entry/leverage + entry*mmBps/10000
// Short: entry + entry/leverage - entry*mmBps/10000
//
// leverage >= 1 is enforced by the caller; division here is truncating,
// matching the settlement arithmetic everywhere else.
func LiquidationPrice(entry, leverage, sideSign, maintenanceMarginBps int64) (int64, error) {
	marginTerm, err := MulDiv(entry, maintenanceMarginBps, BpsDenominator)
	if err != nil {
		return 0, err
	}

	buffer := entry / leverage

	if sideSign == SideLong {
		return entry - buffer + marginTerm, nil
	}
	return entry + buffer - marginTerm, nil
}

// PnL computes profit or loss for a position of the given size against the
// current price. The multiplication is carried in 128 bits; the result must
// fit the signed 64-bit domain or ErrArithmeticRange is returned.
func PnL(sideSign, entryPrice, currentPrice, size int64) (int64, error) {
	return MulDiv(sideSign*(currentPrice-entryPrice), size, Precision)
}

// TradingFee computes size * feeBps / 10000.
func TradingFee(size, feeBps int64) (int64, error) {
	return MulDiv(size, feeBps, BpsDenominator)
}

// KeeperReward computes the liquidation reward from remaining equity.
// Defined only for non-negative remaining equity; callers pass zero or
// positive values.
func KeeperReward(remainingEquity, liquidationFeeBps int64) (int64, error) {
	return MulDiv(remainingEquity, liquidationFeeBps, BpsDenominator)
}

// ShouldLiquidate reports whether the current price has crossed the
// liquidation price in the adverse direction for the position's side.
func ShouldLiquidate(sideSign, liquidationPrice, currentPrice int64) bool {
	if sideSign == SideLong {
		return currentPrice <= liquidationPrice
	}
	return currentPrice >= liquidationPrice
}

// SlippageBps returns the realized slippage of execPrice against
// triggerPrice in basis points (truncating).
func SlippageBps(triggerPrice, execPrice int64) (int64, error) {
	diff := execPrice - triggerPrice
	if diff < 0 {
		diff = -diff
	}
	return MulDiv(diff, BpsDenominator, triggerPrice)
}
