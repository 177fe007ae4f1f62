package params

import (
	"encoding/json"
	"fmt"

	"bridgemint/config"
	nativecommon "bridgemint/native/common"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled protocol settings.
// Runtime updates are rate limited per setting and bounded relative to the
// previous value, so a single governance action cannot jump a parameter far
// from its operating point.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetSettings persists the supplied settings snapshot without rate limiting.
// It is meant for boot-time initialization from the node configuration.
func (s *Store) SetSettings(settings config.Settings) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("params: encode settings: %w", err)
	}
	return state.ParamStoreSet(KeySettings, encoded)
}

// Settings loads the persisted settings snapshot. ok is false when no snapshot
// has been written yet.
func (s *Store) Settings() (config.Settings, bool, error) {
	state, err := s.withState()
	if err != nil {
		return config.Settings{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(KeySettings)
	if err != nil || !ok {
		return config.Settings{}, false, err
	}
	var settings config.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return config.Settings{}, false, fmt.Errorf("params: decode settings: %w", err)
	}
	return settings, true, nil
}

func (s *Store) updates() (map[string]*nativecommon.RateLimited, error) {
	state, err := s.withState()
	if err != nil {
		return nil, err
	}
	raw, ok, err := state.ParamStoreGet(KeyUpdates)
	if err != nil {
		return nil, err
	}
	updates := make(map[string]*nativecommon.RateLimited)
	if ok {
		if err := json.Unmarshal(raw, &updates); err != nil {
			return nil, fmt.Errorf("params: decode update records: %w", err)
		}
	}
	return updates, nil
}

func (s *Store) saveUpdates(updates map[string]*nativecommon.RateLimited) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("params: encode update records: %w", err)
	}
	return state.ParamStoreSet(KeyUpdates, encoded)
}

// boundedUpdateFactor caps how far a governed value may move in one update.
const boundedUpdateFactor = 4

func (s *Store) applyBoundedUpdate(name string, now int64, mutate func(*config.Settings) error) error {
	settings, ok, err := s.Settings()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("params: settings not initialized")
	}
	updates, err := s.updates()
	if err != nil {
		return err
	}
	record := updates[name]
	if record == nil {
		record = &nativecommon.RateLimited{}
		updates[name] = record
	}
	if err := record.Check(now, settings.MinUpdateRepeatTimeSeconds); err != nil {
		return err
	}
	if err := mutate(&settings); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.SetSettings(settings); err != nil {
		return err
	}
	return s.saveUpdates(updates)
}

// UpdateRedemptionPaymentExtensionSeconds moves the per-request redemption
// deadline extension. The addend of one average block time keeps a zero value
// recoverable.
func (s *Store) UpdateRedemptionPaymentExtensionSeconds(now int64, value uint64) error {
	return s.applyBoundedUpdate("redemptionPaymentExtensionSeconds", now, func(settings *config.Settings) error {
		addend := settings.AverageBlockTimeMS / 1000
		if addend == 0 {
			addend = 1
		}
		if err := nativecommon.CheckBoundedUpdate(settings.RedemptionPaymentExtensionSeconds, value, boundedUpdateFactor, addend); err != nil {
			return err
		}
		settings.RedemptionPaymentExtensionSeconds = value
		return nil
	})
}

// UpdateLotSizeAMG moves the lot size.
func (s *Store) UpdateLotSizeAMG(now int64, value uint64) error {
	return s.applyBoundedUpdate("lotSizeAMG", now, func(settings *config.Settings) error {
		if err := nativecommon.CheckBoundedUpdate(settings.LotSizeAMG, value, boundedUpdateFactor, 0); err != nil {
			return err
		}
		settings.LotSizeAMG = value
		return nil
	})
}

// UpdateCollateralReservationFeeBIPS moves the reservation fee.
func (s *Store) UpdateCollateralReservationFeeBIPS(now int64, value uint64) error {
	return s.applyBoundedUpdate("collateralReservationFeeBIPS", now, func(settings *config.Settings) error {
		if err := nativecommon.CheckBoundedUpdate(settings.CollateralReservationFeeBIPS, value, boundedUpdateFactor, 1); err != nil {
			return err
		}
		settings.CollateralReservationFeeBIPS = value
		return nil
	})
}

// UpdateRedemptionFeeBIPS moves the redemption fee.
func (s *Store) UpdateRedemptionFeeBIPS(now int64, value uint64) error {
	return s.applyBoundedUpdate("redemptionFeeBIPS", now, func(settings *config.Settings) error {
		if err := nativecommon.CheckBoundedUpdate(settings.RedemptionFeeBIPS, value, boundedUpdateFactor, 1); err != nil {
			return err
		}
		settings.RedemptionFeeBIPS = value
		return nil
	})
}
