package market

import (
	"fmt"
	"time"

	"PerpEngine/internal/event"
	"PerpEngine/internal/fpmath"
)

// fundingInterval is the minimum ledger time between global rate
// refreshes and the accrual granularity for per-position payments.
const fundingInterval = time.Hour

// ApplyFunding recomputes the global funding rate from open-interest
// imbalance. Callable by anyone, rate-limited to once per hour of
// ledger time. Positions are not touched here; accrual is lazy.
func (e *Engine) ApplyFunding() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return 0, err
	}
	now := e.clock()
	if now.Sub(e.lastFundingTime) < fundingInterval {
		return 0, fmt.Errorf("last applied %s: %w", e.lastFundingTime, ErrFundingIntervalNotElapsed)
	}

	rate, err := fpmath.FundingRate(e.totalLongSize, e.totalShortSize, e.cfg.BaseFundingRateBps)
	if err != nil {
		return 0, err
	}
	e.fundingRate = rate
	e.lastFundingTime = now

	e.events.Emit(&event.FundingRateUpdated{
		Market:     scopeGlobal,
		Rate:       rate,
		TotalLong:  e.totalLongSize,
		TotalShort: e.totalShortSize,
		Timestamp:  now,
	})
	e.log.Info().
		Int64("funding_rate", rate).
		Int64("total_long", e.totalLongSize).
		Int64("total_short", e.totalShortSize).
		Msg("funding rate updated")
	return rate, nil
}

// FundingRate returns the current scalar rate and when it was last
// recomputed.
func (e *Engine) FundingRate() (int64, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fundingRate, e.lastFundingTime
}

// fundingDelta computes the lazy accrual owed by a position since its
// last touch without mutating it. Whole hours only; fractional hours
// are dropped. Caller holds the lock.
func (e *Engine) fundingDelta(p *Position, now time.Time) (payment, hours int64, err error) {
	hours = int64(now.Sub(p.LastFundingTime) / fundingInterval)
	if hours <= 0 || e.fundingRate == 0 {
		return 0, hours, nil
	}
	payment, err = fpmath.FundingPayment(p.Size, e.fundingRate, p.Direction.sideSign(), hours)
	if err != nil {
		return 0, 0, err
	}
	return payment, hours, nil
}

// accrueFunding commits the lazy accrual onto a position and advances
// its funding clock. Caller holds the lock.
func (e *Engine) accrueFunding(p *Position, now time.Time) error {
	payment, hours, err := e.fundingDelta(p, now)
	if err != nil {
		return err
	}
	if hours <= 0 {
		return nil
	}
	acc, err := fpmath.CheckedAdd(p.AccumulatedFunding, payment)
	if err != nil {
		return err
	}
	p.AccumulatedFunding = acc
	p.LastFundingTime = p.LastFundingTime.Add(time.Duration(hours) * fundingInterval)
	return nil
}
