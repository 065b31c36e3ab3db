// Package gateway declares the external collaborator contracts the engine
// depends on: the price oracle, the liquidity vault and the funds-transfer
// token. The engine only ever talks to these interfaces; production
// adapters and test doubles live in their own packages.
package gateway

import (
	"errors"
	"time"
)

var (
	// ErrInvalidPrice is returned by oracle adapters for a non-positive price.
	ErrInvalidPrice = errors.New("oracle returned non-positive price")

	// ErrPriceUnavailable is returned when no price has been observed yet
	// for the requested asset.
	ErrPriceUnavailable = errors.New("no price available for asset")

	// ErrInsufficientLiquidity is returned by the vault when it cannot
	// cover the worst-case payout of a new position.
	ErrInsufficientLiquidity = errors.New("vault liquidity insufficient")

	// ErrInsufficientBalance is returned by the token on an uncovered transfer.
	ErrInsufficientBalance = errors.New("insufficient token balance")
)

// PriceData is a point-in-time observation from the oracle.
type PriceData struct {
	Price int64     // fixed-point, 7 decimals, always > 0
	AsOf  time.Time // observation time; staleness is judged by the caller's config
}

// PriceOracle supplies the current mark price per asset symbol.
type PriceOracle interface {
	PriceFor(asset string) (PriceData, error)
}

// Vault is the pooled-liquidity counterparty. ReserveForPosition is an
// advisory check and must not move funds; SettlePnL with a positive amount
// makes the vault send that amount to the engine, while a negative amount
// only updates the vault's internal accounting (the engine moves the token
// amount separately).
type Vault interface {
	ReserveForPosition(amount int64) error
	SettlePnL(amount int64) error
}

// Token is the funds-transfer medium.
type Token interface {
	Transfer(from, to string, amount int64) error
	Balance(holder string) int64
}
