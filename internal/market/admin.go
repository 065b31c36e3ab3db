package market

import (
	"fmt"

	"PerpEngine/internal/event"
	"PerpEngine/internal/gateway"
)

// Admin operations check logical ownership only; caller authenticity
// is established by the boundary layer before reaching the engine.

// scopeGlobal marks events that concern the whole market rather than
// one asset.
const scopeGlobal = "global"

// UpdateConfig replaces the market configuration after validation.
func (e *Engine) UpdateConfig(caller string, cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	e.cfg = cfg
	e.events.Emit(&event.ConfigUpdated{Market: scopeGlobal, Admin: caller, Timestamp: e.clock()})
	e.log.Info().Str("admin", caller).Msg("config updated")
	return nil
}

// Pause halts risk-increasing operations. Close, cancel, liquidation
// and funding stay available.
func (e *Engine) Pause(caller string) error {
	return e.setPaused(caller, true)
}

// Unpause re-enables trading.
func (e *Engine) Unpause(caller string) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.paused = paused
	e.events.Emit(&event.MarketPaused{Market: scopeGlobal, Admin: caller, Paused: paused, Timestamp: e.clock()})
	e.log.Info().Str("admin", caller).Bool("paused", paused).Msg("pause flag set")
	return nil
}

// Paused reports whether risk-increasing operations are halted.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// SetAdmin hands the admin role to a new address.
func (e *Engine) SetAdmin(caller, newAdmin string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if newAdmin == "" {
		return fmt.Errorf("empty admin address: %w", ErrInvalidAmount)
	}
	old := e.admin
	e.admin = newAdmin
	e.events.Emit(&event.AdminRotated{Market: scopeGlobal, OldAdmin: old, NewAdmin: newAdmin, Timestamp: e.clock()})
	e.log.Info().Str("old_admin", old).Str("new_admin", newAdmin).Msg("admin rotated")
	return nil
}

// SetOracle swaps the pricing gateway.
func (e *Engine) SetOracle(caller string, oracle gateway.PriceOracle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if oracle == nil {
		return fmt.Errorf("nil oracle: %w", ErrInvalidAmount)
	}
	e.oracle = oracle
	e.events.Emit(&event.ConfigUpdated{Market: scopeGlobal, Admin: caller, Timestamp: e.clock()})
	e.log.Info().Str("admin", caller).Msg("oracle rotated")
	return nil
}

// SetVault swaps the settlement gateway and its custody address.
func (e *Engine) SetVault(caller string, vault gateway.Vault, vaultAddr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if vault == nil || vaultAddr == "" {
		return fmt.Errorf("nil vault or empty address: %w", ErrInvalidAmount)
	}
	e.vault = vault
	e.vaultAddr = vaultAddr
	e.events.Emit(&event.ConfigUpdated{Market: scopeGlobal, Admin: caller, Timestamp: e.clock()})
	e.log.Info().Str("admin", caller).Str("vault_addr", vaultAddr).Msg("vault rotated")
	return nil
}
