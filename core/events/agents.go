package events

import (
	"math/big"

	"bridgemint/core/types"
	"bridgemint/crypto"
)

const (
	// TypeAgentCreated is emitted when a new agent vault is registered.
	TypeAgentCreated = "agent.created"
	// TypeAgentDestroyed is emitted after an announced destruction completes.
	TypeAgentDestroyed = "agent.destroyed"
	// TypeCollateralDeposited is emitted on vault collateral deposits.
	TypeCollateralDeposited = "agent.collateral.deposited"
	// TypeWithdrawalAnnounced is emitted when a collateral withdrawal enters its wait.
	TypeWithdrawalAnnounced = "agent.withdrawal.announced"
	// TypeCollateralWithdrawn is emitted when an announced withdrawal completes.
	TypeCollateralWithdrawn = "agent.collateral.withdrawn"
	// TypeVaultTokenSwitched is emitted when an agent changes its vault collateral token.
	TypeVaultTokenSwitched = "agent.vault.switched"
	// TypeUnderlyingToppedUp is emitted when a proven topup payment is credited.
	TypeUnderlyingToppedUp = "agent.topup"
	// TypeEmergencyPaused is emitted when the system pause window extends.
	TypeEmergencyPaused = "system.paused"
)

type AgentCreated struct {
	AgentID           [20]byte
	Owner             [20]byte
	UnderlyingAddress string
	VaultToken        string
}

func (AgentCreated) EventType() string { return TypeAgentCreated }

func (e AgentCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeAgentCreated,
		Attributes: map[string]string{
			"agent":      crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"owner":      crypto.MustNewAddress(crypto.AccountPrefix, e.Owner[:]).String(),
			"underlying": e.UnderlyingAddress,
			"vaultToken": e.VaultToken,
		},
	}
}

type AgentDestroyed struct {
	AgentID [20]byte
}

func (AgentDestroyed) EventType() string { return TypeAgentDestroyed }

func (e AgentDestroyed) Event() *types.Event {
	return &types.Event{
		Type: TypeAgentDestroyed,
		Attributes: map[string]string{
			"agent": crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
		},
	}
}

type CollateralDeposited struct {
	AgentID   [20]byte
	AmountWei *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralDeposited,
		Attributes: map[string]string{
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"amountWei": formatBig(e.AmountWei),
		},
	}
}

type WithdrawalAnnounced struct {
	AgentID        [20]byte
	AnnouncementID uint64
	AmountWei      *big.Int
	WithdrawableAt int64
}

func (WithdrawalAnnounced) EventType() string { return TypeWithdrawalAnnounced }

func (e WithdrawalAnnounced) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawalAnnounced,
		Attributes: map[string]string{
			"agent":          crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"announcementId": formatUint(e.AnnouncementID),
			"amountWei":      formatBig(e.AmountWei),
			"withdrawableAt": formatInt(e.WithdrawableAt),
		},
	}
}

type CollateralWithdrawn struct {
	AgentID   [20]byte
	AmountWei *big.Int
}

func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

func (e CollateralWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralWithdrawn,
		Attributes: map[string]string{
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"amountWei": formatBig(e.AmountWei),
		},
	}
}

type VaultTokenSwitched struct {
	AgentID  [20]byte
	OldToken string
	NewToken string
}

func (VaultTokenSwitched) EventType() string { return TypeVaultTokenSwitched }

func (e VaultTokenSwitched) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultTokenSwitched,
		Attributes: map[string]string{
			"agent":    crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"oldToken": e.OldToken,
			"newToken": e.NewToken,
		},
	}
}

type UnderlyingToppedUp struct {
	AgentID   [20]byte
	AmountUBA *big.Int
}

func (UnderlyingToppedUp) EventType() string { return TypeUnderlyingToppedUp }

func (e UnderlyingToppedUp) Event() *types.Event {
	return &types.Event{
		Type: TypeUnderlyingToppedUp,
		Attributes: map[string]string{
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"amountUBA": formatBig(e.AmountUBA),
		},
	}
}

type EmergencyPaused struct {
	PausedUntil  int64
	ByGovernance bool
}

func (EmergencyPaused) EventType() string { return TypeEmergencyPaused }

func (e EmergencyPaused) Event() *types.Event {
	return &types.Event{
		Type: TypeEmergencyPaused,
		Attributes: map[string]string{
			"pausedUntil":  formatInt(e.PausedUntil),
			"byGovernance": strconvBool(e.ByGovernance),
		},
	}
}
