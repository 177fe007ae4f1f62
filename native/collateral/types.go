package collateral

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrTypeUnknown    = errors.New("collateral: unknown collateral type")
	ErrTypeExists     = errors.New("collateral: collateral type already registered")
	ErrTypeDeprecated = errors.New("collateral: collateral type deprecated")
	ErrTypeInvalid    = errors.New("collateral: invalid collateral type definition")
)

// Class separates agent-specific vault collateral from the shared pool
// collateral.
type Class uint8

const (
	ClassVault Class = iota + 1
	ClassPool
)

func (c Class) Valid() bool {
	return c == ClassVault || c == ClassPool
}

func (c Class) String() string {
	switch c {
	case ClassVault:
		return "vault"
	case ClassPool:
		return "pool"
	default:
		return "unknown"
	}
}

// Type describes one accepted collateral token. ValidUntil of zero means the
// type is valid indefinitely; a nonzero value marks the type deprecated, and
// once the timestamp passes, agents still using it become liquidatable by any
// third party.
type Type struct {
	Symbol                       string `yaml:"symbol" json:"symbol"`
	Class                        Class  `yaml:"class" json:"class"`
	Decimals                     uint8  `yaml:"decimals" json:"decimals"`
	MinCollateralRatioBIPS       uint64 `yaml:"minCollateralRatioBIPS" json:"minCollateralRatioBIPS"`
	SafetyMinCollateralRatioBIPS uint64 `yaml:"safetyMinCollateralRatioBIPS" json:"safetyMinCollateralRatioBIPS"`
	ValidUntil                   int64  `yaml:"validUntil" json:"validUntil"`
}

// Deprecated reports whether the type has been marked for retirement.
func (t Type) Deprecated() bool {
	return t.ValidUntil != 0
}

// Expired reports whether the deprecation deadline has passed.
func (t Type) Expired(now int64) bool {
	return t.ValidUntil != 0 && now >= t.ValidUntil
}

// Validate checks the definition bounds.
func (t Type) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return ErrTypeInvalid
	}
	if !t.Class.Valid() {
		return ErrTypeInvalid
	}
	if t.MinCollateralRatioBIPS <= MaxBIPS {
		return ErrTypeInvalid
	}
	if t.SafetyMinCollateralRatioBIPS < t.MinCollateralRatioBIPS {
		return ErrTypeInvalid
	}
	return nil
}

// Registry keeps the accepted collateral types keyed by symbol.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Add registers a new collateral type.
func (r *Registry) Add(t Type) error {
	if err := t.Validate(); err != nil {
		return err
	}
	symbol := normalizeSymbol(t.Symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[symbol]; ok {
		return ErrTypeExists
	}
	t.Symbol = symbol
	r.types[symbol] = t
	return nil
}

// Get returns the type registered under the symbol.
func (r *Registry) Get(symbol string) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[normalizeSymbol(symbol)]
	if !ok {
		return Type{}, ErrTypeUnknown
	}
	return t, nil
}

// Deprecate marks the type for retirement at the supplied timestamp.
func (r *Registry) Deprecate(symbol string, validUntil int64) error {
	if validUntil <= 0 {
		return ErrTypeInvalid
	}
	symbol = normalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[symbol]
	if !ok {
		return ErrTypeUnknown
	}
	t.ValidUntil = validUntil
	r.types[symbol] = t
	return nil
}

// PoolType returns the single POOL-class record. Exactly one is expected.
func (r *Registry) PoolType() (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.types {
		if t.Class == ClassPool {
			return t, nil
		}
	}
	return Type{}, ErrTypeUnknown
}

// List returns all registered types.
func (r *Registry) List() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	return out
}
