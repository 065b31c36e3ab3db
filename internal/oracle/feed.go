// Package oracle provides PriceOracle adapters: an in-memory feed updated
// by a price source (or directly by tests) and a websocket client that
// streams mark prices into it.
package oracle

import (
	"fmt"
	"sync"
	"time"

	"PerpEngine/internal/gateway"
)

// Feed is the in-memory latest-price store. Writers push observations;
// the engine reads through the gateway.PriceOracle interface. Staleness is
// judged by the engine against its own configuration, so the feed only
// rejects prices that are invalid at the source (non-positive).
type Feed struct {
	mu     sync.RWMutex
	prices map[string]gateway.PriceData
}

func NewFeed() *Feed {
	return &Feed{
		prices: make(map[string]gateway.PriceData),
	}
}

// SetPrice records an observation for an asset.
func (f *Feed) SetPrice(asset string, price int64, asOf time.Time) error {
	if price <= 0 {
		return fmt.Errorf("%w: %s=%d", gateway.ErrInvalidPrice, asset, price)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Out-of-order updates are dropped; the newest observation wins.
	if cur, ok := f.prices[asset]; ok && asOf.Before(cur.AsOf) {
		return nil
	}

	f.prices[asset] = gateway.PriceData{Price: price, AsOf: asOf}
	return nil
}

// PriceFor returns the latest observation for the asset.
func (f *Feed) PriceFor(asset string) (gateway.PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.prices[asset]
	if !ok {
		return gateway.PriceData{}, fmt.Errorf("%w: %s", gateway.ErrPriceUnavailable, asset)
	}
	if data.Price <= 0 {
		return gateway.PriceData{}, fmt.Errorf("%w: %s=%d", gateway.ErrInvalidPrice, asset, data.Price)
	}
	return data, nil
}

var _ gateway.PriceOracle = (*Feed)(nil)
