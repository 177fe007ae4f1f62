package common

import "errors"

var (
	ErrUpdateTooSoon  = errors.New("rate limit: too close to previous update")
	ErrIncreaseTooBig = errors.New("rate limit: increase too big")
	ErrDecreaseTooBig = errors.New("rate limit: decrease too big")
)

// RateLimited records the last accepted update time for a governed setting.
type RateLimited struct {
	LastUpdate int64 `json:"lastUpdate"`
}

// Check rejects updates that arrive before the repeat interval has elapsed and
// records the accepted update time otherwise.
func (r *RateLimited) Check(now, minRepeatSeconds int64) error {
	if r == nil {
		return nil
	}
	if r.LastUpdate != 0 && minRepeatSeconds > 0 && now-r.LastUpdate < minRepeatSeconds {
		return ErrUpdateTooSoon
	}
	r.LastUpdate = now
	return nil
}

// CheckBoundedUpdate enforces the growth/shrink envelope for a governed value:
// the new value may not exceed factor times the old value plus addend, and may
// not fall below the old value divided by factor (with a floor of 1). A zero
// old value only constrains growth through the addend.
func CheckBoundedUpdate(oldValue, newValue, factor, addend uint64) error {
	if factor == 0 {
		factor = 1
	}
	if newValue > oldValue*factor+addend {
		return ErrIncreaseTooBig
	}
	floor := oldValue / factor
	if floor < 1 {
		floor = 1
	}
	if newValue < floor {
		return ErrDecreaseTooBig
	}
	return nil
}
