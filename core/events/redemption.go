package events

import (
	"math/big"

	"bridgemint/core/types"
	"bridgemint/crypto"
)

const (
	// TypeRedemptionRequested is emitted per agent touched by a redeem call.
	TypeRedemptionRequested = "redemption.requested"
	// TypeRedemptionPerformed is emitted when a proven payment settles a request.
	TypeRedemptionPerformed = "redemption.performed"
	// TypeRedemptionDefaulted is emitted when the redeemer is compensated in collateral.
	TypeRedemptionDefaulted = "redemption.defaulted"
	// TypeRedemptionFailed is emitted when the proven payment failed or was blocked.
	TypeRedemptionFailed = "redemption.failed"
	// TypeRedemptionRejected is emitted when the agent rejects an invalid target address.
	TypeRedemptionRejected = "redemption.rejected"
	// TypeSelfClosed is emitted when an agent burns its own fassets to release backing.
	TypeSelfClosed = "redemption.selfclosed"
)

type RedemptionRequested struct {
	RequestID         uint64
	AgentID           [20]byte
	Redeemer          [20]byte
	UnderlyingAddress string
	ValueUBA          *big.Int
	FeeUBA            *big.Int
	LastBlock         uint64
	LastTimestamp     uint64
}

func (RedemptionRequested) EventType() string { return TypeRedemptionRequested }

func (e RedemptionRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionRequested,
		Attributes: map[string]string{
			"requestId":     formatUint(e.RequestID),
			"agent":         crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"redeemer":      crypto.MustNewAddress(crypto.AccountPrefix, e.Redeemer[:]).String(),
			"underlying":    e.UnderlyingAddress,
			"valueUBA":      formatBig(e.ValueUBA),
			"feeUBA":        formatBig(e.FeeUBA),
			"lastBlock":     formatUint(e.LastBlock),
			"lastTimestamp": formatUint(e.LastTimestamp),
		},
	}
}

type RedemptionPerformed struct {
	RequestID uint64
	AgentID   [20]byte
	PaidUBA   *big.Int
}

func (RedemptionPerformed) EventType() string { return TypeRedemptionPerformed }

func (e RedemptionPerformed) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionPerformed,
		Attributes: map[string]string{
			"requestId": formatUint(e.RequestID),
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"paidUBA":   formatBig(e.PaidUBA),
		},
	}
}

type RedemptionDefaulted struct {
	RequestID    uint64
	AgentID      [20]byte
	VaultPaidWei *big.Int
	PoolPaidWei  *big.Int
}

func (RedemptionDefaulted) EventType() string { return TypeRedemptionDefaulted }

func (e RedemptionDefaulted) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionDefaulted,
		Attributes: map[string]string{
			"requestId":    formatUint(e.RequestID),
			"agent":        crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"vaultPaidWei": formatBig(e.VaultPaidWei),
			"poolPaidWei":  formatBig(e.PoolPaidWei),
		},
	}
}

type RedemptionFailed struct {
	RequestID uint64
	AgentID   [20]byte
	Blocked   bool
}

func (RedemptionFailed) EventType() string { return TypeRedemptionFailed }

func (e RedemptionFailed) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionFailed,
		Attributes: map[string]string{
			"requestId": formatUint(e.RequestID),
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"blocked":   strconvBool(e.Blocked),
		},
	}
}

type RedemptionRejected struct {
	RequestID uint64
	AgentID   [20]byte
}

func (RedemptionRejected) EventType() string { return TypeRedemptionRejected }

func (e RedemptionRejected) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionRejected,
		Attributes: map[string]string{
			"requestId": formatUint(e.RequestID),
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
		},
	}
}

type SelfClosed struct {
	AgentID   [20]byte
	ClosedUBA *big.Int
}

func (SelfClosed) EventType() string { return TypeSelfClosed }

func (e SelfClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeSelfClosed,
		Attributes: map[string]string{
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"closedUBA": formatBig(e.ClosedUBA),
		},
	}
}

func strconvBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
