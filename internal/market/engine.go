package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"PerpEngine/internal/event"
	"PerpEngine/internal/fpmath"
	"PerpEngine/internal/gateway"
)

// Engine owns all position and order state for one market. Every public
// operation runs as a single atomic unit behind one mutex; concurrent
// callers racing on the same record observe already-mutated state and
// fail cleanly instead of double-spending.
type Engine struct {
	mu    sync.Mutex
	log   zerolog.Logger
	clock func() time.Time

	initialized bool
	paused      bool
	admin       string

	// custodyAddr holds locked collateral and order custody on the
	// funds-transfer medium; vaultAddr is the pooled counterparty.
	custodyAddr string
	vaultAddr   string

	cfg    Config
	oracle gateway.PriceOracle
	vault  gateway.Vault
	token  gateway.Token

	positions map[uint64]*Position
	byTrader  map[string]map[uint64]struct{}
	orders    map[uint64]*Order

	positionSeq uint64
	orderSeq    uint64

	// Aggregate open interest, maintained incrementally on every
	// insert and removal. AuditAggregates recomputes it by full scan.
	totalLongSize  int64
	totalShortSize int64

	fundingRate     int64
	lastFundingTime time.Time

	events event.Sink
}

// Deps are the external collaborators wired in at initialization.
type Deps struct {
	Admin       string
	Oracle      gateway.PriceOracle
	Vault       gateway.Vault
	VaultAddr   string
	Token       gateway.Token
	CustodyAddr string
}

// New returns an uninitialized engine. Initialize gates every other
// operation.
func New(log zerolog.Logger, sink event.Sink) *Engine {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Engine{
		log:       log.With().Str("component", "market_engine").Logger(),
		clock:     time.Now,
		positions: make(map[uint64]*Position),
		byTrader:  make(map[string]map[uint64]struct{}),
		orders:    make(map[uint64]*Order),
		events:    sink,
	}
}

// Initialize wires collaborators and the market configuration. It may
// succeed exactly once.
func (e *Engine) Initialize(deps Deps, cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if deps.Admin == "" || deps.CustodyAddr == "" || deps.VaultAddr == "" {
		return fmt.Errorf("admin, custody and vault addresses required: %w", ErrInvalidAmount)
	}
	if deps.Oracle == nil || deps.Vault == nil || deps.Token == nil {
		return fmt.Errorf("oracle, vault and token collaborators required: %w", ErrInvalidAmount)
	}

	e.admin = deps.Admin
	e.oracle = deps.Oracle
	e.vault = deps.Vault
	e.vaultAddr = deps.VaultAddr
	e.token = deps.Token
	e.custodyAddr = deps.CustodyAddr
	e.cfg = cfg
	e.lastFundingTime = e.clock()
	e.initialized = true

	e.log.Info().Str("admin", deps.Admin).Msg("engine initialized")
	return nil
}

func (e *Engine) requireInit() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (e *Engine) requireAdmin(caller string) error {
	if err := e.requireInit(); err != nil {
		return err
	}
	if caller != e.admin {
		return ErrNotAdmin
	}
	return nil
}

// markPrice fetches and validates the oracle price for an asset.
func (e *Engine) markPrice(asset string) (int64, error) {
	pd, err := e.oracle.PriceFor(asset)
	if err != nil {
		return 0, fmt.Errorf("oracle price for %s: %w", asset, err)
	}
	if pd.Price <= 0 {
		return 0, fmt.Errorf("oracle price %d for %s: %w", pd.Price, asset, ErrInvalidPrice)
	}
	if e.clock().Sub(pd.AsOf) > e.cfg.MaxPriceStaleness {
		return 0, fmt.Errorf("oracle price for %s as of %s: %w", asset, pd.AsOf, ErrPriceStale)
	}
	return pd.Price, nil
}

// Open creates a leveraged position. All validation and the vault
// liquidity check run before any funds move.
func (e *Engine) Open(trader, asset string, collateral, leverage int64, direction Direction) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return Position{}, err
	}
	if e.paused {
		return Position{}, ErrMarketPaused
	}

	size, fee, err := e.validateOpen(asset, collateral, leverage, direction)
	if err != nil {
		return Position{}, err
	}

	entry, err := e.markPrice(asset)
	if err != nil {
		return Position{}, err
	}
	if err := e.vault.ReserveForPosition(size); err != nil {
		return Position{}, fmt.Errorf("vault liquidity check for size %d: %w", size, err)
	}

	net := collateral - fee
	liqPrice, err := fpmath.LiquidationPrice(entry, leverage, direction.sideSign(), e.cfg.MaintenanceMarginBps)
	if err != nil {
		return Position{}, err
	}

	// Transfers are the last fallible step.
	if err := e.token.Transfer(trader, e.custodyAddr, collateral); err != nil {
		return Position{}, fmt.Errorf("lock collateral: %w", err)
	}
	if fee > 0 {
		// Custody just received the gross lock and fee < collateral, so
		// this transfer cannot fail on balance.
		if err := e.token.Transfer(e.custodyAddr, e.vaultAddr, fee); err != nil {
			return Position{}, fmt.Errorf("forward trading fee: %w", err)
		}
	}

	now := e.clock()
	pos := e.insertPosition(Position{
		Trader:           trader,
		Asset:            asset,
		Direction:        direction,
		Collateral:       net,
		Size:             size,
		Leverage:         leverage,
		EntryPrice:       entry,
		LiquidationPrice: liqPrice,
		OpenedAt:         now,
		LastFundingTime:  now,
	})

	e.events.Emit(&event.PositionOpened{
		PositionID:       pos.ID,
		Trader:           trader,
		Market:           asset,
		Direction:        direction.String(),
		Collateral:       net,
		Size:             size,
		Leverage:         leverage,
		EntryPrice:       entry,
		LiquidationPrice: liqPrice,
		TradingFee:       fee,
		Timestamp:        now,
	})
	e.log.Info().
		Uint64("position_id", pos.ID).
		Str("trader", trader).
		Str("asset", asset).
		Str("direction", direction.String()).
		Int64("size", size).
		Int64("entry_price", entry).
		Msg("position opened")
	return pos, nil
}

// validateOpen checks the open bounds shared by Open and limit-entry
// placement. Returns notional size and the trading fee.
func (e *Engine) validateOpen(asset string, collateral, leverage int64, direction Direction) (size, fee int64, err error) {
	if asset == "" {
		return 0, 0, fmt.Errorf("empty asset: %w", ErrInvalidAmount)
	}
	if !direction.valid() {
		return 0, 0, fmt.Errorf("direction %d: %w", direction, ErrInvalidAmount)
	}
	if collateral < e.cfg.MinCollateral {
		return 0, 0, fmt.Errorf("collateral %d below minimum %d: %w", collateral, e.cfg.MinCollateral, ErrInsufficientCollateral)
	}
	if leverage < 1 || leverage > e.cfg.MaxLeverage {
		return 0, 0, fmt.Errorf("leverage %d outside [1,%d]: %w", leverage, e.cfg.MaxLeverage, ErrInvalidLeverage)
	}
	size, err = fpmath.PositionSize(collateral, leverage)
	if err != nil {
		return 0, 0, err
	}
	if size > e.cfg.MaxPositionSize {
		return 0, 0, fmt.Errorf("size %d exceeds maximum %d: %w", size, e.cfg.MaxPositionSize, ErrPositionTooLarge)
	}
	fee, err = fpmath.TradingFee(size, e.cfg.TradingFeeBps)
	if err != nil {
		return 0, 0, err
	}
	if collateral-fee <= 0 {
		return 0, 0, fmt.Errorf("collateral %d consumed by fee %d: %w", collateral, fee, ErrInsufficientCollateral)
	}
	return size, fee, nil
}

// insertPosition assigns the next id, indexes the record and bumps
// aggregate open interest. Caller holds the lock.
func (e *Engine) insertPosition(p Position) Position {
	e.positionSeq++
	p.ID = e.positionSeq
	e.positions[p.ID] = &p

	idx, ok := e.byTrader[p.Trader]
	if !ok {
		idx = make(map[uint64]struct{})
		e.byTrader[p.Trader] = idx
	}
	idx[p.ID] = struct{}{}

	if p.Direction == Long {
		e.totalLongSize += p.Size
	} else {
		e.totalShortSize += p.Size
	}
	return p
}

// removePosition drops the record, its trader index entry, its linked
// conditional orders, and its open-interest contribution. Linked orders
// transition to Cancelled. Caller holds the lock.
func (e *Engine) removePosition(p *Position, now time.Time) {
	for _, oid := range []uint64{p.StopLossID, p.TakeProfitID} {
		if oid == 0 {
			continue
		}
		if o, ok := e.orders[oid]; ok && o.Status == OrderPending {
			o.Status = OrderCancelled
			e.events.Emit(&event.OrderCancelled{
				OrderID:   o.ID,
				Trader:    o.Trader,
				Market:    o.Asset,
				Kind:      o.Kind.String(),
				Reason:    event.CancelReasonUser,
				Timestamp: now,
			})
		}
	}

	delete(e.positions, p.ID)
	if idx, ok := e.byTrader[p.Trader]; ok {
		delete(idx, p.ID)
		if len(idx) == 0 {
			delete(e.byTrader, p.Trader)
		}
	}
	if p.Direction == Long {
		e.totalLongSize -= p.Size
	} else {
		e.totalShortSize -= p.Size
	}
}

// AddCollateral tops up a position and recomputes its liquidation
// price from the effective leverage. The truncating size/collateral
// division deliberately biases effective leverage down.
func (e *Engine) AddCollateral(positionID uint64, trader string, amount int64) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return Position{}, err
	}
	p, ok := e.positions[positionID]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	if p.Trader != trader {
		return Position{}, ErrNotPositionOwner
	}
	if amount <= 0 {
		return Position{}, fmt.Errorf("top-up %d: %w", amount, ErrInvalidAmount)
	}

	newCollateral, err := fpmath.CheckedAdd(p.Collateral, amount)
	if err != nil {
		return Position{}, err
	}
	effLeverage := p.Size / newCollateral
	if effLeverage < 1 {
		effLeverage = 1
	}
	if effLeverage > e.cfg.MaxLeverage {
		effLeverage = e.cfg.MaxLeverage
	}
	liqPrice, err := fpmath.LiquidationPrice(p.EntryPrice, effLeverage, p.Direction.sideSign(), e.cfg.MaintenanceMarginBps)
	if err != nil {
		return Position{}, err
	}

	if err := e.token.Transfer(trader, e.custodyAddr, amount); err != nil {
		return Position{}, fmt.Errorf("lock top-up: %w", err)
	}

	p.Collateral = newCollateral
	p.Leverage = effLeverage
	p.LiquidationPrice = liqPrice

	now := e.clock()
	e.events.Emit(&event.CollateralAdded{
		PositionID:       p.ID,
		Trader:           trader,
		Market:           p.Asset,
		Amount:           amount,
		NewCollateral:    newCollateral,
		NewLeverage:      effLeverage,
		LiquidationPrice: liqPrice,
		Timestamp:        now,
	})
	e.log.Info().
		Uint64("position_id", p.ID).
		Int64("amount", amount).
		Int64("new_collateral", newCollateral).
		Int64("effective_leverage", effLeverage).
		Msg("collateral added")
	return *p, nil
}

// Close settles a position at the current oracle price and remits the
// remaining equity to the trader.
func (e *Engine) Close(positionID uint64, trader string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInit(); err != nil {
		return 0, err
	}
	p, ok := e.positions[positionID]
	if !ok {
		return 0, ErrPositionNotFound
	}
	if p.Trader != trader {
		return 0, ErrNotPositionOwner
	}
	pnl, _, _, err := e.closeLocked(p, 0, "", 0)
	return pnl, err
}

// closeLocked settles and removes a position. keeperFee is deducted
// from trader proceeds when a stop-loss/take-profit execution closes
// the position on the trader's behalf. Caller holds the lock.
//
// Settlement nets PnL and funding into a single vault-facing amount:
// the vault pays out when the net favors the trader and absorbs the
// shortfall, capped at collateral, when it does not. Funding accrual
// commits before settlement; it is valid state even if a later
// transfer fails and the position survives.
func (e *Engine) closeLocked(p *Position, keeperFee int64, keeper string, orderID uint64) (pnl, payout, feePaid int64, err error) {
	price, err := e.markPrice(p.Asset)
	if err != nil {
		return 0, 0, 0, err
	}
	now := e.clock()
	if err := e.accrueFunding(p, now); err != nil {
		return 0, 0, 0, err
	}
	funding := p.AccumulatedFunding
	pnl, err = fpmath.PnL(p.Direction.sideSign(), p.EntryPrice, price, p.Size)
	if err != nil {
		return 0, 0, 0, err
	}

	// Amount the vault owes the trader beyond locked collateral
	// (negative when the trader owes the vault).
	netVault, err := fpmath.CheckedAdd(pnl, -funding)
	if err != nil {
		return 0, 0, 0, err
	}

	custody := p.Collateral
	if netVault > 0 {
		if err := e.vault.SettlePnL(netVault); err != nil {
			return 0, 0, 0, fmt.Errorf("vault settle %d: %w", netVault, err)
		}
		custody += netVault
	} else if netVault < 0 {
		owed := -netVault
		if owed > p.Collateral {
			owed = p.Collateral
		}
		if err := e.vault.SettlePnL(-owed); err != nil {
			return 0, 0, 0, fmt.Errorf("vault settle %d: %w", -owed, err)
		}
		if err := e.token.Transfer(e.custodyAddr, e.vaultAddr, owed); err != nil {
			return 0, 0, 0, fmt.Errorf("remit loss to vault: %w", err)
		}
		custody -= owed
	}

	// Keeper fee is capped by what settlement left in custody.
	feePaid = keeperFee
	if feePaid > custody {
		feePaid = custody
	}
	if feePaid > 0 {
		if err := e.token.Transfer(e.custodyAddr, keeper, feePaid); err != nil {
			return 0, 0, 0, fmt.Errorf("pay keeper fee: %w", err)
		}
	}
	payout = custody - feePaid
	if payout > 0 {
		if err := e.token.Transfer(e.custodyAddr, p.Trader, payout); err != nil {
			return 0, 0, 0, fmt.Errorf("remit payout: %w", err)
		}
	}

	e.removePosition(p, now)
	e.events.Emit(&event.PositionClosed{
		PositionID: p.ID,
		Trader:     p.Trader,
		Market:     p.Asset,
		Direction:  p.Direction.String(),
		Size:       p.Size,
		Collateral: p.Collateral,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		PnL:        pnl,
		Funding:    funding,
		KeeperFee:  feePaid,
		Payout:     payout,
		OrderID:    orderID,
		Timestamp:  now,
	})
	e.log.Info().
		Uint64("position_id", p.ID).
		Str("trader", p.Trader).
		Int64("exit_price", price).
		Int64("pnl", pnl).
		Int64("funding", funding).
		Int64("payout", payout).
		Msg("position closed")
	return pnl, payout, feePaid, nil
}

// Get returns a copy of the position record.
func (e *Engine) Get(positionID uint64) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[positionID]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	return *p, nil
}

// ListByTrader returns the trader's open positions ordered by id.
func (e *Engine) ListByTrader(trader string) []Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.byTrader[trader]
	out := make([]Position, 0, len(idx))
	for id := range idx {
		out = append(out, *e.positions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAllIDs returns every open position id in ascending order.
func (e *Engine) ListAllIDs() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]uint64, 0, len(e.positions))
	for id := range e.positions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetUnrealizedPnL prices a position at the current mark without
// touching funding.
func (e *Engine) GetUnrealizedPnL(positionID uint64) (int64, error) {
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
	return fpmath.PnL(p.Direction.sideSign(), p.EntryPrice, price, p.Size)
}

// Stats returns the aggregate market snapshot.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending := 0
	for _, o := range e.orders {
		if o.Status == OrderPending {
			pending++
		}
	}
	return Stats{
		TotalLongSize:     e.totalLongSize,
		TotalShortSize:    e.totalShortSize,
		OpenPositionCount: len(e.positions),
		PendingOrderCount: pending,
		FundingRate:       e.fundingRate,
		LastFundingTime:   e.lastFundingTime,
	}
}

// Config returns the active market configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}
