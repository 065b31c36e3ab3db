package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpEngine/internal/event"
)

// ----------------------------------------------------------------------------
// Placement
// ----------------------------------------------------------------------------

func TestPlaceLimitOrder_LocksCollateral(t *testing.T) {
	f := newFixture(t)

	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), o.ID)
	assert.Equal(t, LimitEntry, o.Kind)
	assert.Equal(t, OrderPending, o.Status)
	assert.Equal(t, testCollateral, o.Collateral)
	assert.Equal(t, int64(9_000_000_000), f.tokens.Balance(testTrader))
	assert.Equal(t, testCollateral, f.tokens.Balance(custodyAddr))
	assert.Equal(t, 1, f.engine.Stats().PendingOrderCount)
}

func TestPlaceLimitOrder_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.PlaceLimitOrder(testTrader, testAsset, 1_000, 5, Long, 14_000_000, TriggerBelow, 50)
	assert.ErrorIs(t, err, ErrInsufficientCollateral)

	_, err = f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 99, Long, 14_000_000, TriggerBelow, 50)
	assert.ErrorIs(t, err, ErrInvalidLeverage)

	_, err = f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 0, TriggerBelow, 50)
	assert.ErrorIs(t, err, ErrInvalidTriggerPrice)

	_, err = f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 0)
	assert.ErrorIs(t, err, ErrInvalidSlippageTolerance)

	_, err = f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 10_001)
	assert.ErrorIs(t, err, ErrInvalidSlippageTolerance)

	assert.Equal(t, int64(10_000_000_000), f.tokens.Balance(testTrader))
}

func TestSetStopLossAndTakeProfit_TriggerSides(t *testing.T) {
	f := newFixture(t)
	long := f.openLong(t)
	short, err := f.engine.Open(testTrader, testAsset, testCollateral, 5, Short)
	require.NoError(t, err)

	// Long: SL strictly below entry, TP strictly above.
	_, err = f.engine.SetStopLoss(long.ID, testTrader, testEntryPrice, 100)
	assert.ErrorIs(t, err, ErrInvalidTriggerPrice)
	_, err = f.engine.SetTakeProfit(long.ID, testTrader, testEntryPrice-1, 100)
	assert.ErrorIs(t, err, ErrInvalidTriggerPrice)

	sl, err := f.engine.SetStopLoss(long.ID, testTrader, 13_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, TriggerBelow, sl.TriggerCondition)
	tp, err := f.engine.SetTakeProfit(long.ID, testTrader, 17_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, TriggerAbove, tp.TriggerCondition)

	// Short: mirrored.
	_, err = f.engine.SetStopLoss(short.ID, testTrader, testEntryPrice-1, 100)
	assert.ErrorIs(t, err, ErrInvalidTriggerPrice)
	ssl, err := f.engine.SetStopLoss(short.ID, testTrader, 17_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, TriggerAbove, ssl.TriggerCondition)
	stp, err := f.engine.SetTakeProfit(short.ID, testTrader, 13_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, TriggerBelow, stp.TriggerCondition)

	// Links recorded on the position.
	got, err := f.engine.Get(long.ID)
	require.NoError(t, err)
	assert.Equal(t, sl.ID, got.StopLossID)
	assert.Equal(t, tp.ID, got.TakeProfitID)
}

func TestSetStopLoss_OnePerPosition(t *testing.T) {
	f := newFixture(t)
	pos := f.openLong(t)

	_, err := f.engine.SetStopLoss(pos.ID, testTrader, 13_000_000, 100)
	require.NoError(t, err)
	_, err = f.engine.SetStopLoss(pos.ID, testTrader, 12_500_000, 100)
	assert.ErrorIs(t, err, ErrOrderAlreadyExists)

	_, err = f.engine.SetTakeProfit(pos.ID, testTrader, 17_000_000, 100)
	require.NoError(t, err)
	_, err = f.engine.SetTakeProfit(pos.ID, testTrader, 18_000_000, 100)
	assert.ErrorIs(t, err, ErrOrderAlreadyExists)
}

func TestSetStopLoss_Ownership(t *testing.T) {
	f := newFixture(t)
	pos := f.openLong(t)

	_, err := f.engine.SetStopLoss(pos.ID, testTrader2, 13_000_000, 100)
	assert.ErrorIs(t, err, ErrNotPositionOwner)
	_, err = f.engine.SetStopLoss(99, testTrader, 13_000_000, 100)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

// ----------------------------------------------------------------------------
// Cancel
// ----------------------------------------------------------------------------

func TestCancelOrder_RefundsLimitEntry(t *testing.T) {
	f := newFixture(t)

	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelOrder(o.ID, testTrader))

	assert.Equal(t, int64(10_000_000_000), f.tokens.Balance(testTrader))
	got, err := f.engine.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, got.Status)

	// Terminal: a second cancel fails cleanly.
	assert.ErrorIs(t, f.engine.CancelOrder(o.ID, testTrader), ErrOrderNotPending)
}

func TestCancelOrder_UnlinksStopLoss(t *testing.T) {
	f := newFixture(t)
	pos := f.openLong(t)

	sl, err := f.engine.SetStopLoss(pos.ID, testTrader, 13_000_000, 100)
	require.NoError(t, err)
	require.NoError(t, f.engine.CancelOrder(sl.ID, testTrader))

	got, err := f.engine.Get(pos.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.StopLossID)

	// Slot freed: a replacement is accepted.
	_, err = f.engine.SetStopLoss(pos.ID, testTrader, 12_500_000, 100)
	require.NoError(t, err)
}

func TestCancelOrder_Ownership(t *testing.T) {
	f := newFixture(t)

	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.CancelOrder(o.ID, testTrader2), ErrNotOrderOwner)
	assert.ErrorIs(t, f.engine.CancelOrder(99, testTrader), ErrOrderNotFound)
}

// ----------------------------------------------------------------------------
// Execution
// ----------------------------------------------------------------------------

func TestExecuteOrder_LimitEntry(t *testing.T) {
	f := newFixture(t)

	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	f.setPrice(t, 14_000_000)
	res, err := f.engine.ExecuteOrder(o.ID, testKeeper)
	require.NoError(t, err)

	assert.Equal(t, OutcomeExecuted, res.Outcome)
	// base 1000000 + 5000000000*5/10000
	assert.Equal(t, int64(3_500_000), res.KeeperReward)
	assert.Equal(t, int64(0), res.SlippageBps)

	pos, err := f.engine.Get(res.PositionID)
	require.NoError(t, err)
	// Entry is the execution price, not the trigger price.
	assert.Equal(t, int64(14_000_000), pos.EntryPrice)
	assert.Equal(t, int64(5_000_000_000), pos.Size)
	// gross - trading fee - keeper fee
	assert.Equal(t, int64(991_500_000), pos.Collateral)

	assert.Equal(t, int64(3_500_000), f.tokens.Balance(testKeeper))
	assert.Equal(t, int64(991_500_000), f.tokens.Balance(custodyAddr))

	got, err := f.engine.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderExecuted, got.Status)
}

func TestExecuteOrder_NotTriggered(t *testing.T) {
	f := newFixture(t)

	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	// Mark is 15000000, above the buy trigger.
	_, err = f.engine.ExecuteOrder(o.ID, testKeeper)
	assert.ErrorIs(t, err, ErrOrderNotTriggered)

	got, err := f.engine.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderPending, got.Status)
}

func TestExecuteOrder_SlippageBoundary(t *testing.T) {
	f := newFixture(t)

	// Tolerance 50 bps on a 10.0 trigger: 10050000 passes, 10051000 aborts.
	place := func() Order {
		o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Short, 10_000_000, TriggerAbove, 50)
		require.NoError(t, err)
		return o
	}

	within := place()
	f.setPrice(t, 10_050_000)
	res, err := f.engine.ExecuteOrder(within.ID, testKeeper)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, res.Outcome)
	assert.Equal(t, int64(50), res.SlippageBps)

	beyond := place()
	traderBefore := f.tokens.Balance(testTrader)
	f.setPrice(t, 10_051_000)
	res, err = f.engine.ExecuteOrder(beyond.ID, testKeeper)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAbortedBySlippage, res.Outcome)
	assert.Equal(t, int64(51), res.SlippageBps)
	assert.Equal(t, int64(0), res.KeeperReward)

	// The abort committed: order terminal, collateral refunded.
	got, err := f.engine.GetOrder(beyond.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelledBySlippage, got.Status)
	assert.Equal(t, traderBefore+testCollateral, f.tokens.Balance(testTrader))

	cancelled := f.sink.ofType(event.EventTypeOrderCancelled)
	require.NotEmpty(t, cancelled)
	last := cancelled[len(cancelled)-1].(*event.OrderCancelled)
	assert.Equal(t, event.CancelReasonSlippage, last.Reason)
	assert.Equal(t, int64(51), last.SlippageBps)
}

func TestExecuteOrder_Idempotence(t *testing.T) {
	f := newFixture(t)

	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	f.setPrice(t, 14_000_000)
	_, err = f.engine.ExecuteOrder(o.ID, testKeeper)
	require.NoError(t, err)

	keeperBefore := f.tokens.Balance(testKeeper)
	custodyBefore := f.tokens.Balance(custodyAddr)
	statsBefore := f.engine.Stats()

	_, err = f.engine.ExecuteOrder(o.ID, testKeeper)
	assert.ErrorIs(t, err, ErrOrderNotPending)

	assert.Equal(t, keeperBefore, f.tokens.Balance(testKeeper))
	assert.Equal(t, custodyBefore, f.tokens.Balance(custodyAddr))
	assert.Equal(t, statsBefore, f.engine.Stats())

	// Same for a cancelled order.
	c, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)
	require.NoError(t, f.engine.CancelOrder(c.ID, testTrader))
	_, err = f.engine.ExecuteOrder(c.ID, testKeeper)
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestExecuteOrder_StopLossClosesPosition(t *testing.T) {
	f := newFixture(t)
	pos := f.openLong(t)

	sl, err := f.engine.SetStopLoss(pos.ID, testTrader, 14_000_000, 100)
	require.NoError(t, err)

	f.setPrice(t, 13_950_000)
	res, err := f.engine.ExecuteOrder(sl.ID, testKeeper)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, res.Outcome)
	assert.Equal(t, pos.ID, res.PositionID)
	// 50000 * 10000 / 14000000 truncates to 35 bps
	assert.Equal(t, int64(35), res.SlippageBps)
	assert.Equal(t, int64(3_500_000), res.KeeperReward)

	// pnl = -525000000; custody 995000000 - 525000000 = 470000000;
	// keeper fee 3500000 leaves 466500000 for the trader.
	assert.Equal(t, int64(9_466_500_000), f.tokens.Balance(testTrader))
	assert.Equal(t, int64(3_500_000), f.tokens.Balance(testKeeper))

	_, err = f.engine.Get(pos.ID)
	assert.ErrorIs(t, err, ErrPositionNotFound)
	got, err := f.engine.GetOrder(sl.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderExecuted, got.Status)
}

func TestExecuteOrder_StopLossSlippageAbortKeepsPosition(t *testing.T) {
	f := newFixture(t)
	pos := f.openLong(t)

	sl, err := f.engine.SetStopLoss(pos.ID, testTrader, 14_000_000, 30)
	require.NoError(t, err)

	// 50000 * 10000 / 14000000 truncates to 35 bps, beyond the 30 tolerance.
	f.setPrice(t, 13_950_000)
	res, err := f.engine.ExecuteOrder(sl.ID, testKeeper)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAbortedBySlippage, res.Outcome)
	assert.Equal(t, int64(35), res.SlippageBps)
	assert.Equal(t, int64(0), res.KeeperReward)

	got, err := f.engine.GetOrder(sl.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelledBySlippage, got.Status)

	// The position survives with its stop-loss slot free again.
	kept, err := f.engine.Get(pos.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), kept.StopLossID)
	_, err = f.engine.SetStopLoss(pos.ID, testTrader, 14_000_000, 100)
	require.NoError(t, err)

	// No funds moved on the abort.
	assert.Equal(t, int64(9_000_000_000), f.tokens.Balance(testTrader))
	assert.Equal(t, int64(0), f.tokens.Balance(testKeeper))

	cancelled := f.sink.ofType(event.EventTypeOrderCancelled)
	require.NotEmpty(t, cancelled)
	last := cancelled[len(cancelled)-1].(*event.OrderCancelled)
	assert.Equal(t, event.CancelReasonSlippage, last.Reason)
	assert.Equal(t, int64(0), last.Refund)
}

func TestExecuteOrder_MissingPositionCancelsOrder(t *testing.T) {
	f := newFixture(t)
	pos := f.openLong(t)

	sl, err := f.engine.SetStopLoss(pos.ID, testTrader, 14_000_000, 100)
	require.NoError(t, err)

	// Simulate a removal that skipped the unlink.
	delete(f.engine.positions, pos.ID)

	f.setPrice(t, 14_000_000)
	_, err = f.engine.ExecuteOrder(sl.ID, testKeeper)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	got, err := f.engine.GetOrder(sl.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, got.Status)

	cancelled := f.sink.ofType(event.EventTypeOrderCancelled)
	require.NotEmpty(t, cancelled)
	last := cancelled[len(cancelled)-1].(*event.OrderCancelled)
	assert.Equal(t, sl.ID, last.OrderID)
	assert.Equal(t, event.CancelReasonUser, last.Reason)
}

func TestShouldExecuteOrder(t *testing.T) {
	f := newFixture(t)

	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	ok, err := f.engine.ShouldExecuteOrder(o.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	f.setPrice(t, 13_900_000)
	ok, err = f.engine.ShouldExecuteOrder(o.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.engine.ShouldExecuteOrder(99)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderAndPositionCountersAreDisjoint(t *testing.T) {
	f := newFixture(t)

	pos := f.openLong(t)
	o, err := f.engine.PlaceLimitOrder(testTrader, testAsset, testCollateral, 5, Long, 14_000_000, TriggerBelow, 50)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), pos.ID)
	assert.Equal(t, uint64(1), o.ID)

	orders := f.engine.ListOrdersByTrader(testTrader)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
}
