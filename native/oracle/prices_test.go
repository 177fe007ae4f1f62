package oracle

import (
	"math/big"
	"testing"
	"time"
)

func TestFeedStorePublishAndRead(t *testing.T) {
	store := NewFeedStore(time.Minute)
	now := time.Unix(1_000_000, 0)
	store.SetClock(func() time.Time { return now })

	if err := store.Publish("xrp", Price{Num: big.NewInt(53), Den: big.NewInt(100)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	price, err := store.GetPrice("XRP")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Num.Cmp(big.NewInt(53)) != 0 || price.Den.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected price: %s/%s", price.Num, price.Den)
	}
	if price.Timestamp != now.Unix() {
		t.Fatalf("expected clock timestamp, got %d", price.Timestamp)
	}
}

func TestFeedStoreRejectsStalePrice(t *testing.T) {
	store := NewFeedStore(time.Minute)
	now := time.Unix(1_000_000, 0)
	store.SetClock(func() time.Time { return now })

	if err := store.Publish("XRP", Price{Num: big.NewInt(1), Den: big.NewInt(2)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.GetPrice("XRP"); err != ErrPriceStale {
		t.Fatalf("expected stale rejection, got %v", err)
	}
}

func TestFeedStoreRejectsInvalidPrices(t *testing.T) {
	store := NewFeedStore(0)
	if err := store.Publish("XRP", Price{Num: big.NewInt(0), Den: big.NewInt(1)}); err != ErrPriceInvalid {
		t.Fatalf("expected invalid rejection for zero numerator, got %v", err)
	}
	if err := store.Publish("", Price{Num: big.NewInt(1), Den: big.NewInt(1)}); err != ErrPriceInvalid {
		t.Fatalf("expected invalid rejection for empty symbol, got %v", err)
	}
	if _, err := store.GetPrice("USDC"); err != ErrPriceUnknown {
		t.Fatalf("expected unknown rejection, got %v", err)
	}
}

func TestFeedStoreRejectsFutureTimestamps(t *testing.T) {
	store := NewFeedStore(time.Minute)
	now := time.Unix(1_000_000, 0)
	store.SetClock(func() time.Time { return now })
	future := Price{Num: big.NewInt(1), Den: big.NewInt(1), Timestamp: now.Add(time.Hour).Unix()}
	if err := store.Publish("XRP", future); err != ErrPriceInvalid {
		t.Fatalf("expected future rejection, got %v", err)
	}
}
