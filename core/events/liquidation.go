package events

import (
	"math/big"

	"bridgemint/core/types"
	"bridgemint/crypto"
)

const (
	// TypeLiquidationStarted is emitted when an agent enters liquidation.
	TypeLiquidationStarted = "liquidation.started"
	// TypeLiquidationEnded is emitted when the collateral ratio recovers.
	TypeLiquidationEnded = "liquidation.ended"
	// TypeLiquidationPerformed is emitted per liquidate call.
	TypeLiquidationPerformed = "liquidation.performed"
	// TypeChallengeConfirmed is emitted when a payment challenge succeeds.
	TypeChallengeConfirmed = "liquidation.challenge"
)

type LiquidationStarted struct {
	AgentID [20]byte
	Full    bool
}

func (LiquidationStarted) EventType() string { return TypeLiquidationStarted }

func (e LiquidationStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidationStarted,
		Attributes: map[string]string{
			"agent": crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"full":  strconvBool(e.Full),
		},
	}
}

type LiquidationEnded struct {
	AgentID [20]byte
}

func (LiquidationEnded) EventType() string { return TypeLiquidationEnded }

func (e LiquidationEnded) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidationEnded,
		Attributes: map[string]string{
			"agent": crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
		},
	}
}

type LiquidationPerformed struct {
	AgentID      [20]byte
	Liquidator   [20]byte
	BurnedUBA    *big.Int
	VaultPaidWei *big.Int
	PoolPaidWei  *big.Int
}

func (LiquidationPerformed) EventType() string { return TypeLiquidationPerformed }

func (e LiquidationPerformed) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidationPerformed,
		Attributes: map[string]string{
			"agent":        crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"liquidator":   crypto.MustNewAddress(crypto.AccountPrefix, e.Liquidator[:]).String(),
			"burnedUBA":    formatBig(e.BurnedUBA),
			"vaultPaidWei": formatBig(e.VaultPaidWei),
			"poolPaidWei":  formatBig(e.PoolPaidWei),
		},
	}
}

type ChallengeConfirmed struct {
	AgentID    [20]byte
	Challenger [20]byte
	Kind       string
	RewardWei  *big.Int
}

func (ChallengeConfirmed) EventType() string { return TypeChallengeConfirmed }

func (e ChallengeConfirmed) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeConfirmed,
		Attributes: map[string]string{
			"agent":      crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"challenger": crypto.MustNewAddress(crypto.AccountPrefix, e.Challenger[:]).String(),
			"kind":       e.Kind,
			"rewardWei":  formatBig(e.RewardWei),
		},
	}
}
