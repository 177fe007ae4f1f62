package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView exposes the current pause status to the engines. The concrete
// implementation lives in the state manager so every engine observes the same
// emergency pause window.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
