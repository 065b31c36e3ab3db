package vault_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpEngine/internal/gateway"
	"PerpEngine/internal/token"
	"PerpEngine/internal/vault"
)

const (
	poolAddr   = "acct-pool"
	engineAddr = "acct-engine"
	lpA        = "acct-lp-a"
	lpB        = "acct-lp-b"
)

func newPool(t *testing.T) (*vault.Pool, *token.Ledger) {
	t.Helper()
	tokens := token.NewLedger()
	tokens.Mint(lpA, 10_000)
	tokens.Mint(lpB, 10_000)
	return vault.NewPool(tokens, poolAddr, engineAddr, zerolog.Nop()), tokens
}

func TestDepositLiquidity_FirstDepositMintsOneToOne(t *testing.T) {
	pool, tokens := newPool(t)

	minted, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), minted)
	assert.Equal(t, int64(1_000), pool.ShareSupply())
	assert.Equal(t, int64(1_000), pool.ShareBalance(lpA))
	assert.Equal(t, int64(1_000), tokens.Balance(poolAddr))
	assert.Equal(t, int64(1_000), pool.AUM())
}

func TestDepositLiquidity_ProportionalAfterGains(t *testing.T) {
	pool, tokens := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)

	// Trader losses doubled the pool without minting shares.
	tokens.Mint(poolAddr, 1_000)

	minted, err := pool.DepositLiquidity(lpB, 1_000)
	require.NoError(t, err)
	// 1000 * 1000 supply / 2000 aum
	assert.Equal(t, int64(500), minted)
	assert.Equal(t, int64(1_500), pool.ShareSupply())
}

func TestDepositLiquidity_DrainedPoolRejectsWithoutTransfer(t *testing.T) {
	pool, tokens := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)

	// Trader profit pays out the whole pool; shares stay outstanding.
	require.NoError(t, pool.SettlePnL(1_000))
	require.Equal(t, int64(0), tokens.Balance(poolAddr))
	require.Equal(t, int64(1_000), pool.ShareSupply())

	_, err = pool.DepositLiquidity(lpB, 1_000)
	assert.Error(t, err)

	// The rejection moved no tokens and minted no shares.
	assert.Equal(t, int64(10_000), tokens.Balance(lpB))
	assert.Equal(t, int64(0), tokens.Balance(poolAddr))
	assert.Equal(t, int64(0), pool.ShareBalance(lpB))
	assert.Equal(t, int64(1_000), pool.ShareSupply())
}

func TestDepositLiquidity_Validation(t *testing.T) {
	pool, _ := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 0)
	assert.Error(t, err)
	_, err = pool.DepositLiquidity(lpA, -5)
	assert.Error(t, err)
	// Transfer failure surfaces and mints nothing.
	_, err = pool.DepositLiquidity("acct-broke", 1_000)
	assert.ErrorIs(t, err, gateway.ErrInsufficientBalance)
	assert.Equal(t, int64(0), pool.ShareSupply())
}

func TestWithdrawLiquidity_Proportional(t *testing.T) {
	pool, tokens := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)
	tokens.Mint(poolAddr, 1_000) // pool gains

	payout, err := pool.WithdrawLiquidity(lpA, 500)
	require.NoError(t, err)
	// 500 shares of 1000 over a 2000 pool.
	assert.Equal(t, int64(1_000), payout)
	assert.Equal(t, int64(500), pool.ShareSupply())
	assert.Equal(t, int64(10_000), tokens.Balance(lpA))
}

func TestWithdrawLiquidity_MoreThanHeld(t *testing.T) {
	pool, _ := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)

	_, err = pool.WithdrawLiquidity(lpA, 1_001)
	assert.ErrorIs(t, err, gateway.ErrInsufficientBalance)
	assert.Equal(t, int64(1_000), pool.ShareBalance(lpA))
}

func TestSettlePnL_ProfitPaysEngine(t *testing.T) {
	pool, tokens := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)

	require.NoError(t, pool.SettlePnL(400))
	assert.Equal(t, int64(400), tokens.Balance(engineAddr))
	assert.Equal(t, int64(600), pool.AUM())
	assert.Equal(t, int64(400), pool.SettledPnL())
}

func TestSettlePnL_ProfitBeyondAUM(t *testing.T) {
	pool, tokens := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)

	err = pool.SettlePnL(5_000)
	assert.ErrorIs(t, err, gateway.ErrInsufficientBalance)
	assert.Equal(t, int64(0), tokens.Balance(engineAddr))
	assert.Equal(t, int64(0), pool.SettledPnL())
}

func TestSettlePnL_LossIsAccountingOnly(t *testing.T) {
	pool, tokens := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)

	require.NoError(t, pool.SettlePnL(-300))
	// No funds moved; the engine transfers the loss separately.
	assert.Equal(t, int64(1_000), tokens.Balance(poolAddr))
	assert.Equal(t, int64(-300), pool.SettledPnL())
}

func TestReserveForPosition_Advisory(t *testing.T) {
	pool, tokens := newPool(t)

	_, err := pool.DepositLiquidity(lpA, 1_000)
	require.NoError(t, err)

	require.NoError(t, pool.ReserveForPosition(1_000))
	assert.ErrorIs(t, pool.ReserveForPosition(1_001), gateway.ErrInsufficientLiquidity)
	assert.Error(t, pool.ReserveForPosition(0))
	// Advisory only: no balance changed.
	assert.Equal(t, int64(1_000), tokens.Balance(poolAddr))
}
