package oracle_test

import (
	"errors"
	"testing"
	"time"

	"PerpEngine/internal/gateway"
	"PerpEngine/internal/oracle"
)

func TestFeed_SetAndGet(t *testing.T) {
	f := oracle.NewFeed()
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := f.SetPrice("BTC", 15_000_000, asOf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pd, err := f.PriceFor("BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pd.Price != 15_000_000 {
		t.Errorf("price = %d, want 15000000", pd.Price)
	}
	if !pd.AsOf.Equal(asOf) {
		t.Errorf("as_of = %s, want %s", pd.AsOf, asOf)
	}
}

func TestFeed_RejectsNonPositivePrice(t *testing.T) {
	f := oracle.NewFeed()
	now := time.Now()

	if err := f.SetPrice("BTC", 0, now); !errors.Is(err, gateway.ErrInvalidPrice) {
		t.Errorf("got %v, want ErrInvalidPrice", err)
	}
	if err := f.SetPrice("BTC", -1, now); !errors.Is(err, gateway.ErrInvalidPrice) {
		t.Errorf("got %v, want ErrInvalidPrice", err)
	}
}

func TestFeed_DropsOutOfOrderObservation(t *testing.T) {
	f := oracle.NewFeed()
	t1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Second)

	if err := f.SetPrice("BTC", 15_000_000, t1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.SetPrice("BTC", 14_000_000, t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pd, err := f.PriceFor("BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pd.Price != 15_000_000 {
		t.Errorf("stale update replaced newer price: got %d", pd.Price)
	}
}

func TestFeed_UnknownAsset(t *testing.T) {
	f := oracle.NewFeed()

	_, err := f.PriceFor("DOGE")
	if !errors.Is(err, gateway.ErrPriceUnavailable) {
		t.Errorf("got %v, want ErrPriceUnavailable", err)
	}
}
