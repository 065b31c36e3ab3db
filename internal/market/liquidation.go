package market

import (
	"fmt"
	"sort"

	"PerpEngine/internal/event"
	"PerpEngine/internal/fpmath"
)

// Liquidate force-closes an undercollateralized position and pays the
// keeper a reward from remaining equity. The remaining collateral goes
// to the vault. Callable while paused; liquidation reduces risk.
func (e *Engine) Liquidate(positionID uint64, keeper string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return 0, err
	}
	p, ok := e.positions[positionID]
	if !ok {
		return 0, ErrPositionNotFound
	}
	price, err := e.markPrice(p.Asset)
	if err != nil {
		return 0, err
	}
	if !fpmath.ShouldLiquidate(p.Direction.sideSign(), p.LiquidationPrice, price) {
		return 0, fmt.Errorf("price %d vs liquidation price %d: %w", price, p.LiquidationPrice, ErrNotLiquidatable)
	}

	now := e.clock()
	if err := e.accrueFunding(p, now); err != nil {
		return 0, err
	}
	funding := p.AccumulatedFunding
	pnl, err := fpmath.PnL(p.Direction.sideSign(), p.EntryPrice, price, p.Size)
	if err != nil {
		return 0, err
	}
	remaining, err := fpmath.CheckedAdd(p.Collateral, pnl)
	if err != nil {
		return 0, err
	}
	remaining, err = fpmath.CheckedAdd(remaining, -funding)
	if err != nil {
		return 0, err
	}

	var reward int64
	if remaining > 0 {
		reward, err = fpmath.KeeperReward(remaining, e.cfg.LiquidationFeeBps)
		if err != nil {
			return 0, err
		}
		// Safety ceiling: a reward derived from inconsistent equity
		// never exceeds a tenth of the original collateral.
		if ceiling := p.Collateral / 10; reward > ceiling {
			reward = ceiling
		}
	}

	vaultShare := p.Collateral - reward
	if vaultShare < 0 {
		vaultShare = 0
	}
	if vaultShare > 0 {
		if err := e.vault.SettlePnL(-vaultShare); err != nil {
			return 0, fmt.Errorf("vault settle %d: %w", -vaultShare, err)
		}
		if err := e.token.Transfer(e.custodyAddr, e.vaultAddr, vaultShare); err != nil {
			return 0, fmt.Errorf("remit to vault: %w", err)
		}
	}
	if reward > 0 {
		if err := e.token.Transfer(e.custodyAddr, keeper, reward); err != nil {
			return 0, fmt.Errorf("pay keeper reward: %w", err)
		}
	}

	e.removePosition(p, now)
	e.events.Emit(&event.PositionLiquidated{
		PositionID:   p.ID,
		Trader:       p.Trader,
		Keeper:       keeper,
		Market:       p.Asset,
		Direction:    p.Direction.String(),
		Size:         p.Size,
		Collateral:   p.Collateral,
		EntryPrice:   p.EntryPrice,
		MarkPrice:    price,
		PnL:          pnl,
		Funding:      funding,
		KeeperReward: reward,
		VaultShare:   vaultShare,
		Timestamp:    now,
	})
	e.log.Info().
		Uint64("position_id", p.ID).
		Str("keeper", keeper).
		Int64("mark_price", price).
		Int64("keeper_reward", reward).
		Int64("vault_share", vaultShare).
		Msg("position liquidated")
	return reward, nil
}

// IsLiquidatable reports whether the mark price has crossed the
// position's liquidation price in the adverse direction.
func (e *Engine) IsLiquidatable(positionID uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return false, err
	}
	p, ok := e.positions[positionID]
	if !ok {
		return false, ErrPositionNotFound
	}
	price, err := e.markPrice(p.Asset)
	if err != nil {
		return false, err
	}
	return fpmath.ShouldLiquidate(p.Direction.sideSign(), p.LiquidationPrice, price), nil
}

// GetLiquidatablePositions scans the asset's open positions and returns
// the ids whose liquidation price has been crossed, ascending. One
// price fetch serves the whole scan.
func (e *Engine) GetLiquidatablePositions(asset string) ([]uint64, error) {
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
	for id, p := range e.positions {
		if p.Asset != asset {
			continue
		}
		if fpmath.ShouldLiquidate(p.Direction.sideSign(), p.LiquidationPrice, price) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
