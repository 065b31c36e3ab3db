// Package vault implements the pooled-liquidity counterparty: liquidity
// providers deposit tokens and receive proportional pool shares; trader
// profits are paid out of the pool and trader losses accrue to it.
package vault

import (
	"fmt"
	"sync"

	"PerpEngine/internal/fpmath"
	"PerpEngine/internal/gateway"

	"github.com/rs/zerolog"
)

// Pool is the reference in-memory vault. It satisfies gateway.Vault for the
// engine and additionally exposes the liquidity-provider surface
// (deposit/withdraw with share mint/burn).
type Pool struct {
	mu sync.Mutex

	token      gateway.Token
	addr       string // the pool's holder address on the token
	engineAddr string // only destination SettlePnL may pay to

	shareSupply int64
	shares      map[string]int64

	// Cumulative settled trader PnL from the pool's perspective:
	// positive means the pool has paid out more than it absorbed.
	settledPnL int64

	log zerolog.Logger
}

func NewPool(token gateway.Token, addr, engineAddr string, log zerolog.Logger) *Pool {
	return &Pool{
		token:      token,
		addr:       addr,
		engineAddr: engineAddr,
		shares:     make(map[string]int64),
		log:        log,
	}
}

// Addr returns the pool's token holder address.
func (p *Pool) Addr() string { return p.addr }

// AUM is the pool's assets under management: its current token balance.
// Trader losses arrive as transfers and profits leave as transfers, so the
// balance is already net of settled PnL.
func (p *Pool) AUM() int64 {
	return p.token.Balance(p.addr)
}

// ReserveForPosition is the advisory liquidity check consulted before a
// position opens: the pool must be able to cover a worst-case payout equal
// to the position's full size. It never moves funds.
func (p *Pool) ReserveForPosition(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	if p.AUM() < amount {
		return fmt.Errorf("%w: aum=%d, need=%d", gateway.ErrInsufficientLiquidity, p.AUM(), amount)
	}
	return nil
}

// SettlePnL nets realized trader PnL against the pool. A positive amount is
// a trader profit: the pool sends it to the engine. A negative amount is a
// trader loss: only internal accounting changes here; the engine transfers
// the token amount to the pool separately, keeping the single
// failure-injection point (the transfer) at the end of the calling
// operation.
func (p *Pool) SettlePnL(amount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount == 0 {
		return nil
	}

	if amount > 0 {
		if err := p.token.Transfer(p.addr, p.engineAddr, amount); err != nil {
			return fmt.Errorf("vault payout: %w", err)
		}
	}

	p.settledPnL += amount
	p.log.Debug().Int64("amount", amount).Int64("settled_pnl", p.settledPnL).Msg("pnl settled")
	return nil
}

// SettledPnL returns cumulative settled trader PnL (pool perspective).
func (p *Pool) SettledPnL() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settledPnL
}

// DepositLiquidity transfers tokens from the provider into the pool and
// mints shares proportional to the pool's pre-deposit AUM. The first
// deposit mints 1:1.
func (p *Pool) DepositLiquidity(provider string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	aumBefore := p.token.Balance(p.addr)

	// The mint amount is fully determined before any tokens move, so a
	// failed computation cannot strand the deposit in the pool.
	var minted int64
	if p.shareSupply == 0 {
		minted = amount
	} else {
		if aumBefore <= 0 {
			// Outstanding shares against zero assets: the share price is
			// undefined, so no deposit can be priced fairly.
			return 0, fmt.Errorf("pool drained: %d shares outstanding against zero assets", p.shareSupply)
		}
		var err error
		minted, err = fpmath.MulDiv(amount, p.shareSupply, aumBefore)
		if err != nil {
			return 0, err
		}
	}

	if err := p.token.Transfer(provider, p.addr, amount); err != nil {
		return 0, fmt.Errorf("deposit transfer: %w", err)
	}

	p.shareSupply += minted
	p.shares[provider] += minted

	p.log.Info().
		Str("provider", provider).
		Int64("amount", amount).
		Int64("shares_minted", minted).
		Msg("liquidity deposited")
	return minted, nil
}

// WithdrawLiquidity burns the provider's shares and returns the
// proportional slice of AUM.
func (p *Pool) WithdrawLiquidity(provider string, shareAmount int64) (int64, error) {
	if shareAmount <= 0 {
		return 0, fmt.Errorf("share amount must be positive, got %d", shareAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.shares[provider]
	if shareAmount > held {
		return 0, fmt.Errorf("%w: holds %d shares, redeeming %d",
			gateway.ErrInsufficientBalance, held, shareAmount)
	}

	aum := p.token.Balance(p.addr)
	payout, err := fpmath.MulDiv(shareAmount, aum, p.shareSupply)
	if err != nil {
		return 0, err
	}

	p.shareSupply -= shareAmount
	p.shares[provider] = held - shareAmount

	if payout > 0 {
		if err := p.token.Transfer(p.addr, provider, payout); err != nil {
			// Roll back the burn; the transfer is the last step.
			p.shareSupply += shareAmount
			p.shares[provider] = held
			return 0, fmt.Errorf("withdraw transfer: %w", err)
		}
	}

	p.log.Info().
		Str("provider", provider).
		Int64("shares_burned", shareAmount).
		Int64("payout", payout).
		Msg("liquidity withdrawn")
	return payout, nil
}

// ShareBalance returns a provider's share holding.
func (p *Pool) ShareBalance(provider string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares[provider]
}

// ShareSupply returns total outstanding shares.
func (p *Pool) ShareSupply() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shareSupply
}

var _ gateway.Vault = (*Pool)(nil)
