package market

import (
	"fmt"
	"sort"
	"time"

	"PerpEngine/internal/event"
	"PerpEngine/internal/fpmath"
)

// PlaceLimitOrder creates a pending limit-entry order and locks the
// gross collateral into engine custody. Trading and keeper fees are
// deducted at execution time.
func (e *Engine) PlaceLimitOrder(trader, asset string, collateral, leverage int64, direction Direction, triggerPrice int64, triggerCondition TriggerCondition, slippageToleranceBps int64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return Order{}, err
	}
	if e.paused {
		return Order{}, ErrMarketPaused
	}
	if _, _, err := e.validateOpen(asset, collateral, leverage, direction); err != nil {
		return Order{}, err
	}
	if triggerPrice <= 0 {
		return Order{}, fmt.Errorf("trigger price %d: %w", triggerPrice, ErrInvalidTriggerPrice)
	}
	if triggerCondition != TriggerAbove && triggerCondition != TriggerBelow {
		return Order{}, fmt.Errorf("trigger condition %d: %w", triggerCondition, ErrInvalidTriggerPrice)
	}
	if err := validateSlippage(slippageToleranceBps); err != nil {
		return Order{}, err
	}

	if err := e.token.Transfer(trader, e.custodyAddr, collateral); err != nil {
		return Order{}, fmt.Errorf("lock order collateral: %w", err)
	}

	now := e.clock()
	o := e.insertOrder(Order{
		Trader:               trader,
		Asset:                asset,
		Kind:                 LimitEntry,
		Direction:            direction,
		Collateral:           collateral,
		Leverage:             leverage,
		TriggerPrice:         triggerPrice,
		TriggerCondition:     triggerCondition,
		SlippageToleranceBps: slippageToleranceBps,
		CreatedAt:            now,
		Status:               OrderPending,
	})

	e.emitOrderPlaced(o, now)
	return o, nil
}

// SetStopLoss attaches a stop-loss order to an open position. The
// trigger must sit on the losing side of the entry price.
func (e *Engine) SetStopLoss(positionID uint64, trader string, triggerPrice, slippageToleranceBps int64) (Order, error) {
	return e.setConditionalClose(positionID, trader, StopLoss, triggerPrice, slippageToleranceBps)
}

// SetTakeProfit attaches a take-profit order to an open position. The
// trigger must sit on the winning side of the entry price.
func (e *Engine) SetTakeProfit(positionID uint64, trader string, triggerPrice, slippageToleranceBps int64) (Order, error) {
	return e.setConditionalClose(positionID, trader, TakeProfit, triggerPrice, slippageToleranceBps)
}

func (e *Engine) setConditionalClose(positionID uint64, trader string, kind OrderKind, triggerPrice, slippageToleranceBps int64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return Order{}, err
	}
	p, ok := e.positions[positionID]
	if !ok {
		return Order{}, ErrPositionNotFound
	}
	if p.Trader != trader {
		return Order{}, ErrNotPositionOwner
	}
	if kind == StopLoss && p.StopLossID != 0 {
		return Order{}, ErrOrderAlreadyExists
	}
	if kind == TakeProfit && p.TakeProfitID != 0 {
		return Order{}, ErrOrderAlreadyExists
	}
	if err := validateSlippage(slippageToleranceBps); err != nil {
		return Order{}, err
	}
	cond, err := closeTrigger(p.Direction, kind, p.EntryPrice, triggerPrice)
	if err != nil {
		return Order{}, err
	}

	now := e.clock()
	o := e.insertOrder(Order{
		Trader:               trader,
		Asset:                p.Asset,
		Kind:                 kind,
		Direction:            p.Direction,
		TriggerPrice:         triggerPrice,
		TriggerCondition:     cond,
		SlippageToleranceBps: slippageToleranceBps,
		PositionID:           positionID,
		CreatedAt:            now,
		Status:               OrderPending,
	})
	if kind == StopLoss {
		p.StopLossID = o.ID
	} else {
		p.TakeProfitID = o.ID
	}

	e.emitOrderPlaced(o, now)
	return o, nil
}

// closeTrigger validates trigger placement against the entry price and
// derives the trigger condition from direction and order kind.
func closeTrigger(d Direction, kind OrderKind, entry, trigger int64) (TriggerCondition, error) {
	if trigger <= 0 {
		return 0, fmt.Errorf("trigger price %d: %w", trigger, ErrInvalidTriggerPrice)
	}
	switch {
	case d == Long && kind == StopLoss:
		if trigger >= entry {
			return 0, fmt.Errorf("long stop-loss %d not below entry %d: %w", trigger, entry, ErrInvalidTriggerPrice)
		}
		return TriggerBelow, nil
	case d == Long && kind == TakeProfit:
		if trigger <= entry {
			return 0, fmt.Errorf("long take-profit %d not above entry %d: %w", trigger, entry, ErrInvalidTriggerPrice)
		}
		return TriggerAbove, nil
	case d == Short && kind == StopLoss:
		if trigger <= entry {
			return 0, fmt.Errorf("short stop-loss %d not above entry %d: %w", trigger, entry, ErrInvalidTriggerPrice)
		}
		return TriggerAbove, nil
	case d == Short && kind == TakeProfit:
		if trigger >= entry {
			return 0, fmt.Errorf("short take-profit %d not below entry %d: %w", trigger, entry, ErrInvalidTriggerPrice)
		}
		return TriggerBelow, nil
	}
	return 0, fmt.Errorf("kind %s for direction %s: %w", kind, d, ErrInvalidTriggerPrice)
}

func validateSlippage(bps int64) error {
	if bps < 1 || bps > fpmath.BpsDenominator {
		return fmt.Errorf("slippage tolerance %d bps: %w", bps, ErrInvalidSlippageTolerance)
	}
	return nil
}

// insertOrder assigns the next order id and stores the record. Order
// and position ids are disjoint counters. Caller holds the lock.
func (e *Engine) insertOrder(o Order) Order {
	e.orderSeq++
	o.ID = e.orderSeq
	e.orders[o.ID] = &o
	return o
}

func (e *Engine) emitOrderPlaced(o Order, now time.Time) {
	e.events.Emit(&event.OrderPlaced{
		OrderID:              o.ID,
		Trader:               o.Trader,
		Market:               o.Asset,
		Kind:                 o.Kind.String(),
		Direction:            o.Direction.String(),
		Collateral:           o.Collateral,
		Leverage:             o.Leverage,
		TriggerPrice:         o.TriggerPrice,
		TriggerCondition:     o.TriggerCondition.String(),
		SlippageToleranceBps: o.SlippageToleranceBps,
		PositionID:           o.PositionID,
		Timestamp:            now,
	})
	e.log.Info().
		Uint64("order_id", o.ID).
		Str("trader", o.Trader).
		Str("kind", o.Kind.String()).
		Int64("trigger_price", o.TriggerPrice).
		Msg("order placed")
}

// CancelOrder terminates a pending order at the trader's request,
// refunding locked collateral for limit entries and unlinking
// stop-loss/take-profit slots.
func (e *Engine) CancelOrder(orderID uint64, trader string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Trader != trader {
		return ErrNotOrderOwner
	}
	if o.Status != OrderPending {
		return ErrOrderNotPending
	}

	if err := e.releaseOrder(o); err != nil {
		return err
	}
	o.Status = OrderCancelled

	e.events.Emit(&event.OrderCancelled{
		OrderID:   o.ID,
		Trader:    o.Trader,
		Market:    o.Asset,
		Kind:      o.Kind.String(),
		Reason:    event.CancelReasonUser,
		Refund:    o.Collateral,
		Timestamp: e.clock(),
	})
	e.log.Info().Uint64("order_id", o.ID).Str("reason", "user").Msg("order cancelled")
	return nil
}

// releaseOrder refunds limit-entry custody and unlinks the position
// slot of a stop-loss/take-profit. Caller holds the lock.
func (e *Engine) releaseOrder(o *Order) error {
	if o.Kind == LimitEntry {
		if o.Collateral > 0 {
			if err := e.token.Transfer(e.custodyAddr, o.Trader, o.Collateral); err != nil {
				return fmt.Errorf("refund order collateral: %w", err)
			}
		}
		return nil
	}
	if p, ok := e.positions[o.PositionID]; ok {
		if p.StopLossID == o.ID {
			p.StopLossID = 0
		}
		if p.TakeProfitID == o.ID {
			p.TakeProfitID = 0
		}
	}
	return nil
}

// triggered reports whether price satisfies the order's condition.
func triggered(o *Order, price int64) bool {
	if o.TriggerCondition == TriggerAbove {
		return price >= o.TriggerPrice
	}
	return price <= o.TriggerPrice
}

// ShouldExecuteOrder previews whether an execution attempt would pass
// the trigger check at the current price. Read-only; the answer can go
// stale as soon as it is returned.
func (e *Engine) ShouldExecuteOrder(orderID uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return false, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Status != OrderPending {
		return false, nil
	}
	price, err := e.markPrice(o.Asset)
	if err != nil {
		return false, err
	}
	return triggered(o, price), nil
}

// GetExecutableOrders scans the asset's pending orders and returns the
// ids whose trigger the current price satisfies, ascending. One price
// fetch serves the whole scan.
func (e *Engine) GetExecutableOrders(asset string) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return nil, err
	}
	price, err := e.markPrice(asset)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for id, o := range e.orders {
		if o.Asset != asset || o.Status != OrderPending {
			continue
		}
		if triggered(o, price) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ExecuteOrder attempts a pending order on behalf of a keeper. When
// realized slippage against the trigger price exceeds the order's
// tolerance the order commits to CancelledBySlippage instead of
// executing; rolling back would leave it stuck forever.
func (e *Engine) ExecuteOrder(orderID uint64, keeper string) (ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return ExecutionResult{}, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return ExecutionResult{}, ErrOrderNotFound
	}
	if o.Status != OrderPending {
		return ExecutionResult{}, ErrOrderNotPending
	}
	if e.paused && o.Kind == LimitEntry {
		return ExecutionResult{}, ErrMarketPaused
	}

	price, err := e.markPrice(o.Asset)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !triggered(o, price) {
		return ExecutionResult{}, fmt.Errorf("price %d vs trigger %s %d: %w", price, o.TriggerCondition, o.TriggerPrice, ErrOrderNotTriggered)
	}

	slippage, err := fpmath.SlippageBps(o.TriggerPrice, price)
	if err != nil {
		return ExecutionResult{}, err
	}
	if slippage > o.SlippageToleranceBps {
		if err := e.releaseOrder(o); err != nil {
			return ExecutionResult{}, err
		}
		o.Status = OrderCancelledBySlippage
		now := e.clock()
		e.events.Emit(&event.OrderCancelled{
			OrderID:     o.ID,
			Trader:      o.Trader,
			Market:      o.Asset,
			Kind:        o.Kind.String(),
			Reason:      event.CancelReasonSlippage,
			Refund:      o.Collateral,
			SlippageBps: slippage,
			Timestamp:   now,
		})
		e.log.Info().
			Uint64("order_id", o.ID).
			Int64("slippage_bps", slippage).
			Int64("tolerance_bps", o.SlippageToleranceBps).
			Msg("order cancelled by slippage")
		return ExecutionResult{Outcome: OutcomeAbortedBySlippage, SlippageBps: slippage}, nil
	}

	switch o.Kind {
	case LimitEntry:
		return e.executeLimitEntry(o, keeper, price, slippage)
	default:
		return e.executeConditionalClose(o, keeper, price, slippage)
	}
}

// executeLimitEntry opens a position from locked custody at the
// current price. The keeper fee and trading fee come out of the locked
// collateral; the entry price is the current price, not the trigger.
func (e *Engine) executeLimitEntry(o *Order, keeper string, price, slippage int64) (ExecutionResult, error) {
	size, tradingFee, err := e.validateOpen(o.Asset, o.Collateral, o.Leverage, o.Direction)
	if err != nil {
		return ExecutionResult{}, err
	}
	keeperFee, err := e.keeperFee(size)
	if err != nil {
		return ExecutionResult{}, err
	}
	net := o.Collateral - tradingFee - keeperFee
	if net <= 0 {
		return ExecutionResult{}, fmt.Errorf("collateral %d consumed by fees %d: %w", o.Collateral, tradingFee+keeperFee, ErrInsufficientCollateral)
	}
	if err := e.vault.ReserveForPosition(size); err != nil {
		return ExecutionResult{}, fmt.Errorf("vault liquidity check for size %d: %w", size, err)
	}
	liqPrice, err := fpmath.LiquidationPrice(price, o.Leverage, o.Direction.sideSign(), e.cfg.MaintenanceMarginBps)
	if err != nil {
		return ExecutionResult{}, err
	}

	// Custody already holds the gross collateral; fees move out of it.
	if tradingFee > 0 {
		if err := e.token.Transfer(e.custodyAddr, e.vaultAddr, tradingFee); err != nil {
			return ExecutionResult{}, fmt.Errorf("forward trading fee: %w", err)
		}
	}
	if keeperFee > 0 {
		if err := e.token.Transfer(e.custodyAddr, keeper, keeperFee); err != nil {
			return ExecutionResult{}, fmt.Errorf("pay keeper fee: %w", err)
		}
	}

	now := e.clock()
	pos := e.insertPosition(Position{
		Trader:           o.Trader,
		Asset:            o.Asset,
		Direction:        o.Direction,
		Collateral:       net,
		Size:             size,
		Leverage:         o.Leverage,
		EntryPrice:       price,
		LiquidationPrice: liqPrice,
		OpenedAt:         now,
		LastFundingTime:  now,
	})
	o.Status = OrderExecuted

	e.events.Emit(&event.PositionOpened{
		PositionID:       pos.ID,
		Trader:           o.Trader,
		Market:           o.Asset,
		Direction:        o.Direction.String(),
		Collateral:       net,
		Size:             size,
		Leverage:         o.Leverage,
		EntryPrice:       price,
		LiquidationPrice: liqPrice,
		TradingFee:       tradingFee,
		OrderID:          o.ID,
		Timestamp:        now,
	})
	e.emitOrderExecuted(o, keeper, price, slippage, keeperFee, pos.ID, now)
	return ExecutionResult{Outcome: OutcomeExecuted, KeeperReward: keeperFee, PositionID: pos.ID, SlippageBps: slippage}, nil
}

// executeConditionalClose closes the linked position with the keeper
// fee deducted from trader proceeds.
func (e *Engine) executeConditionalClose(o *Order, keeper string, price, slippage int64) (ExecutionResult, error) {
	p, ok := e.positions[o.PositionID]
	if !ok {
		// The position left the ledger without unlinking; terminal.
		o.Status = OrderCancelled
		e.events.Emit(&event.OrderCancelled{
			OrderID:   o.ID,
			Trader:    o.Trader,
			Market:    o.Asset,
			Kind:      o.Kind.String(),
			Reason:    event.CancelReasonUser,
			Timestamp: e.clock(),
		})
		return ExecutionResult{}, ErrPositionNotFound
	}
	keeperFee, err := e.keeperFee(p.Size)
	if err != nil {
		return ExecutionResult{}, err
	}

	// Unlink so removal does not re-cancel this order.
	if p.StopLossID == o.ID {
		p.StopLossID = 0
	}
	if p.TakeProfitID == o.ID {
		p.TakeProfitID = 0
	}
	_, _, feePaid, err := e.closeLocked(p, keeperFee, keeper, o.ID)
	if err != nil {
		// Re-link; the close did not happen.
		if o.Kind == StopLoss {
			p.StopLossID = o.ID
		} else {
			p.TakeProfitID = o.ID
		}
		return ExecutionResult{}, err
	}
	o.Status = OrderExecuted

	e.emitOrderExecuted(o, keeper, price, slippage, feePaid, p.ID, e.clock())
	return ExecutionResult{Outcome: OutcomeExecuted, KeeperReward: feePaid, PositionID: p.ID, SlippageBps: slippage}, nil
}

// keeperFee is the flat base plus the size-proportional component.
func (e *Engine) keeperFee(size int64) (int64, error) {
	variable, err := fpmath.MulDiv(size, e.cfg.KeeperFeeBps, fpmath.BpsDenominator)
	if err != nil {
		return 0, err
	}
	return fpmath.CheckedAdd(e.cfg.KeeperBaseFee, variable)
}

func (e *Engine) emitOrderExecuted(o *Order, keeper string, price, slippage, keeperFee int64, positionID uint64, now time.Time) {
	e.events.Emit(&event.OrderExecuted{
		OrderID:      o.ID,
		Trader:       o.Trader,
		Keeper:       keeper,
		Market:       o.Asset,
		Kind:         o.Kind.String(),
		ExecPrice:    price,
		TriggerPrice: o.TriggerPrice,
		SlippageBps:  slippage,
		KeeperFee:    keeperFee,
		PositionID:   positionID,
		Timestamp:    now,
	})
	e.log.Info().
		Uint64("order_id", o.ID).
		Str("keeper", keeper).
		Int64("exec_price", price).
		Int64("keeper_fee", keeperFee).
		Msg("order executed")
}

// GetOrder returns a copy of the order record.
func (e *Engine) GetOrder(orderID uint64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *o, nil
}

// ListOrdersByTrader returns the trader's orders ordered by id,
// including terminal ones.
func (e *Engine) ListOrdersByTrader(trader string) []Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Order
	for _, o := range e.orders {
		if o.Trader == trader {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
