package common

import "errors"

var (
	ErrPausedByGovernance  = errors.New("pause: active governance pause")
	ErrPauseInvalidSeconds = errors.New("pause: duration must be positive")
)

// PauseState captures the rolling emergency pause budget. Non-governance
// callers share a duration budget that refills once the reset window elapses;
// governance pauses bypass the budget entirely.
type PauseState struct {
	PausedUntil       int64 `json:"pausedUntil"`
	TotalDurationUsed int64 `json:"totalDurationUsed"`
	WindowStart       int64 `json:"windowStart"`
	ByGovernance      bool  `json:"byGovernance"`
}

// PauseLimits configures the non-governance budget.
type PauseLimits struct {
	MaxDurationSeconds int64
	ResetAfterSeconds  int64
}

// Active reports whether the pause window covers the supplied time.
func (s PauseState) Active(now int64) bool {
	return now < s.PausedUntil
}

// GovernanceActive reports whether an unexpired governance pause is in force.
func (s PauseState) GovernanceActive(now int64) bool {
	return s.ByGovernance && s.Active(now)
}

// ApplyPause extends the pause window by up to duration seconds. The returned
// bool reports whether the window actually moved: a non-governance call with
// an exhausted budget is clipped to zero effect and must not emit an event.
func ApplyPause(limits PauseLimits, prev PauseState, now int64, byGovernance bool, duration int64) (PauseState, bool, error) {
	if duration <= 0 {
		return prev, false, ErrPauseInvalidSeconds
	}
	next := prev

	if byGovernance {
		end := now + duration
		if end <= next.PausedUntil && next.ByGovernance {
			return prev, false, nil
		}
		if end > next.PausedUntil {
			next.PausedUntil = end
		}
		next.ByGovernance = true
		return next, true, nil
	}

	if prev.GovernanceActive(now) {
		return prev, false, ErrPausedByGovernance
	}

	// Roll the budget window before charging it.
	if limits.ResetAfterSeconds > 0 && now-next.WindowStart > limits.ResetAfterSeconds {
		next.WindowStart = now
		next.TotalDurationUsed = 0
	}
	if next.WindowStart == 0 {
		next.WindowStart = now
	}

	currentEnd := next.PausedUntil
	if currentEnd < now {
		currentEnd = now
	}
	requested := now + duration - currentEnd
	if requested <= 0 {
		// Window already extends past the requested end.
		return prev, false, nil
	}
	remaining := limits.MaxDurationSeconds - next.TotalDurationUsed
	if remaining <= 0 {
		return prev, false, nil
	}
	if requested > remaining {
		requested = remaining
	}

	next.PausedUntil = currentEnd + requested
	next.TotalDurationUsed += requested
	next.ByGovernance = false
	return next, true, nil
}

// Unpause clears the pause window. Non-governance callers are rejected while
// a governance pause is in force.
func Unpause(prev PauseState, now int64, byGovernance bool) (PauseState, error) {
	if !byGovernance && prev.GovernanceActive(now) {
		return prev, ErrPausedByGovernance
	}
	next := prev
	if next.PausedUntil > now {
		next.PausedUntil = now
	}
	next.ByGovernance = false
	return next, nil
}
