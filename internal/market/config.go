package market

import (
	"fmt"
	"time"

	"PerpEngine/internal/fpmath"
)

// Config holds the process-wide market tunables. Set at initialization
// and mutated only through UpdateConfig.
type Config struct {
	// MaxLeverage bounds the integer leverage multiplier, inclusive.
	MaxLeverage int64

	// MinCollateral is the smallest gross collateral accepted on open,
	// in fixed-point token units.
	MinCollateral int64

	// MaxPositionSize caps notional size (collateral * leverage).
	MaxPositionSize int64

	// TradingFeeBps is deducted from collateral on open and limit-entry
	// execution.
	TradingFeeBps int64

	// LiquidationFeeBps sets the keeper reward fraction of remaining
	// equity on liquidation.
	LiquidationFeeBps int64

	// MaintenanceMarginBps is the equity floor fraction of notional
	// used when computing liquidation prices.
	MaintenanceMarginBps int64

	// BaseFundingRateBps scales the open-interest imbalance into the
	// hourly funding rate.
	BaseFundingRateBps int64

	// MaxPriceStaleness rejects oracle observations older than this.
	MaxPriceStaleness time.Duration

	// KeeperBaseFee is the flat component of the order-execution fee,
	// in fixed-point token units.
	KeeperBaseFee int64

	// KeeperFeeBps is the size-proportional component of the
	// order-execution fee.
	KeeperFeeBps int64
}

// Validate rejects configurations that would make engine math
// degenerate. Applied on Initialize and on every UpdateConfig.
func (c Config) Validate() error {
	if c.MaxLeverage < 1 {
		return fmt.Errorf("max_leverage %d: %w", c.MaxLeverage, ErrInvalidLeverage)
	}
	if c.MinCollateral <= 0 {
		return fmt.Errorf("min_collateral %d: %w", c.MinCollateral, ErrInvalidAmount)
	}
	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("max_position_size %d: %w", c.MaxPositionSize, ErrInvalidAmount)
	}
	for _, b := range []struct {
		name string
		bps  int64
	}{
		{"trading_fee_bps", c.TradingFeeBps},
		{"liquidation_fee_bps", c.LiquidationFeeBps},
		{"maintenance_margin_bps", c.MaintenanceMarginBps},
		{"base_funding_rate_bps", c.BaseFundingRateBps},
		{"keeper_fee_bps", c.KeeperFeeBps},
	} {
		if b.bps < 0 || b.bps > fpmath.BpsDenominator {
			return fmt.Errorf("%s %d outside 0..%d: %w", b.name, b.bps, fpmath.BpsDenominator, ErrInvalidAmount)
		}
	}
	if c.MaxPriceStaleness <= 0 {
		return fmt.Errorf("max_price_staleness %s: %w", c.MaxPriceStaleness, ErrInvalidAmount)
	}
	if c.KeeperBaseFee < 0 {
		return fmt.Errorf("keeper_base_fee %d: %w", c.KeeperBaseFee, ErrInvalidAmount)
	}
	return nil
}

// Stats is a read-only snapshot of aggregate market state.
type Stats struct {
	TotalLongSize     int64
	TotalShortSize    int64
	OpenPositionCount int
	PendingOrderCount int
	FundingRate       int64
	LastFundingTime   time.Time
}
