package oracle

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPriceUnknown indicates no feed has ever published the symbol.
	ErrPriceUnknown = errors.New("oracle: price unknown")
	// ErrPriceStale indicates the latest observation exceeded the trusted age.
	ErrPriceStale = errors.New("oracle: price stale")
	// ErrPriceInvalid indicates a non-positive or malformed published price.
	ErrPriceInvalid = errors.New("oracle: price invalid")
)

// Price is an exchange rate against USD expressed as an exact fraction, along
// with the publication time reported by the upstream feed. Ratio-critical
// callers must reject observations older than the trusted age.
type Price struct {
	Num       *big.Int
	Den       *big.Int
	Timestamp int64
}

// Clone returns a deep copy of the price to prevent accidental mutations.
func (p Price) Clone() Price {
	clone := Price{Timestamp: p.Timestamp}
	if p.Num != nil {
		clone.Num = new(big.Int).Set(p.Num)
	}
	if p.Den != nil {
		clone.Den = new(big.Int).Set(p.Den)
	}
	return clone
}

// PriceReader resolves the latest trusted price for an asset or collateral
// token symbol.
type PriceReader interface {
	GetPrice(symbol string) (Price, error)
}

// FeedStore keeps the latest observation per symbol and enforces the trusted
// age window on reads.
type FeedStore struct {
	mu              sync.RWMutex
	prices          map[string]Price
	maxAge          time.Duration
	futureTolerance time.Duration
	now             func() time.Time
}

// NewFeedStore constructs a feed store with the supplied trusted age window.
// A zero maxAge disables staleness checks.
func NewFeedStore(maxAge time.Duration) *FeedStore {
	return &FeedStore{
		prices:          make(map[string]Price),
		maxAge:          maxAge,
		futureTolerance: 30 * time.Second,
	}
}

// SetClock overrides the store clock, primarily for deterministic testing.
func (s *FeedStore) SetClock(now func() time.Time) {
	if s == nil {
		return
	}
	s.now = now
}

func (s *FeedStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Publish records a new observation for the symbol.
func (s *FeedStore) Publish(symbol string, price Price) error {
	if s == nil {
		return ErrPriceInvalid
	}
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return ErrPriceInvalid
	}
	if price.Num == nil || price.Num.Sign() <= 0 || price.Den == nil || price.Den.Sign() <= 0 {
		return ErrPriceInvalid
	}
	if price.Timestamp == 0 {
		price.Timestamp = s.clock().Unix()
	}
	if s.futureTolerance > 0 && price.Timestamp > s.clock().Add(s.futureTolerance).Unix() {
		return ErrPriceInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price.Clone()
	return nil
}

// GetPrice returns the latest observation, rejecting stale ones.
func (s *FeedStore) GetPrice(symbol string) (Price, error) {
	if s == nil {
		return Price{}, ErrPriceUnknown
	}
	s.mu.RLock()
	price, ok := s.prices[normalizeSymbol(symbol)]
	s.mu.RUnlock()
	if !ok {
		return Price{}, ErrPriceUnknown
	}
	if s.maxAge > 0 && s.clock().Unix()-price.Timestamp > int64(s.maxAge/time.Second) {
		return Price{}, ErrPriceStale
	}
	return price.Clone(), nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
