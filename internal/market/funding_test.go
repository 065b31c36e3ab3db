package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpEngine/internal/event"
)

func TestApplyFunding_IntervalGate(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ApplyFunding()
	assert.ErrorIs(t, err, ErrFundingIntervalNotElapsed)

	f.clk.advance(59 * time.Minute)
	_, err = f.engine.ApplyFunding()
	assert.ErrorIs(t, err, ErrFundingIntervalNotElapsed)

	f.clk.advance(time.Minute)
	_, err = f.engine.ApplyFunding()
	require.NoError(t, err)

	// The gate resets from the successful application.
	_, err = f.engine.ApplyFunding()
	assert.ErrorIs(t, err, ErrFundingIntervalNotElapsed)
}

func TestApplyFunding_RateFromImbalance(t *testing.T) {
	f := newFixture(t)

	// 700 long vs 300 short notional.
	_, err := f.engine.Open(testTrader, testAsset, testCollateral, 7, Long)
	require.NoError(t, err)
	_, err = f.engine.Open(testTrader2, testAsset, testCollateral, 3, Short)
	require.NoError(t, err)

	f.clk.advance(time.Hour)
	rate, err := f.engine.ApplyFunding()
	require.NoError(t, err)

	// (7e9-3e9)/1e10 scaled to 1e6 = 400000; * 100/10000 = 4000
	assert.Equal(t, int64(4_000), rate)

	got, at := f.engine.FundingRate()
	assert.Equal(t, int64(4_000), got)
	assert.Equal(t, f.clk.now, at)

	updates := f.sink.ofType(event.EventTypeFundingRateUpdated)
	require.Len(t, updates, 1)
	fe := updates[0].(*event.FundingRateUpdated)
	assert.Equal(t, int64(7_000_000_000), fe.TotalLong)
	assert.Equal(t, int64(3_000_000_000), fe.TotalShort)
}

func TestApplyFunding_EmptyMarketZeroRate(t *testing.T) {
	f := newFixture(t)

	f.clk.advance(time.Hour)
	rate, err := f.engine.ApplyFunding()
	require.NoError(t, err)
	assert.Equal(t, int64(0), rate)
}

func TestClose_AccruesFundingLazily(t *testing.T) {
	f := newFixture(t)

	pos, err := f.engine.Open(testTrader, testAsset, testCollateral, 7, Long)
	require.NoError(t, err)
	_, err = f.engine.Open(testTrader2, testAsset, testCollateral, 3, Short)
	require.NoError(t, err)

	f.clk.advance(time.Hour)
	_, err = f.engine.ApplyFunding()
	require.NoError(t, err)

	// Close three whole hours after open; the long owes
	// 7e9*4000/1e6 = 28000000 per hour.
	f.clk.advance(2 * time.Hour)
	f.setPrice(t, testEntryPrice)

	traderBefore := f.tokens.Balance(testTrader)
	pnl, err := f.engine.Close(pos.ID, testTrader)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pnl)

	// Net collateral 993000000 minus 84000000 funding.
	assert.Equal(t, traderBefore+909_000_000, f.tokens.Balance(testTrader))

	closed := f.sink.ofType(event.EventTypePositionClosed)
	require.Len(t, closed, 1)
	ce := closed[0].(*event.PositionClosed)
	assert.Equal(t, int64(84_000_000), ce.Funding)
	assert.Equal(t, int64(909_000_000), ce.Payout)
}

func TestClose_FractionalHoursDropped(t *testing.T) {
	f := newFixture(t)

	pos, err := f.engine.Open(testTrader, testAsset, testCollateral, 7, Long)
	require.NoError(t, err)
	_, err = f.engine.Open(testTrader2, testAsset, testCollateral, 3, Short)
	require.NoError(t, err)

	f.clk.advance(time.Hour)
	_, err = f.engine.ApplyFunding()
	require.NoError(t, err)

	// 1h59m since open accrues exactly one whole hour.
	f.clk.advance(59 * time.Minute)
	f.setPrice(t, testEntryPrice)
	_, err = f.engine.Close(pos.ID, testTrader)
	require.NoError(t, err)

	closed := f.sink.ofType(event.EventTypePositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(28_000_000), closed[0].(*event.PositionClosed).Funding)
}

func TestClose_WithinSameHourNoFunding(t *testing.T) {
	f := newFixture(t)

	pos, err := f.engine.Open(testTrader, testAsset, testCollateral, 7, Long)
	require.NoError(t, err)

	f.clk.advance(30 * time.Minute)
	f.setPrice(t, testEntryPrice)
	_, err = f.engine.Close(pos.ID, testTrader)
	require.NoError(t, err)

	closed := f.sink.ofType(event.EventTypePositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(0), closed[0].(*event.PositionClosed).Funding)
}

func TestFunding_ShortReceivesWhenLongsPay(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Open(testTrader, testAsset, testCollateral, 7, Long)
	require.NoError(t, err)
	short, err := f.engine.Open(testTrader2, testAsset, testCollateral, 3, Short)
	require.NoError(t, err)

	f.clk.advance(time.Hour)
	_, err = f.engine.ApplyFunding()
	require.NoError(t, err)

	f.clk.advance(time.Hour)
	f.setPrice(t, testEntryPrice)

	// Short of size 3e9 receives 3e9*4000/1e6 = 12000000 per hour, two
	// whole hours since open. Payout exceeds its net collateral.
	traderBefore := f.tokens.Balance(testTrader2)
	_, err = f.engine.Close(short.ID, testTrader2)
	require.NoError(t, err)

	// net collateral 997000000 + 24000000 funding received
	assert.Equal(t, traderBefore+1_021_000_000, f.tokens.Balance(testTrader2))
}
