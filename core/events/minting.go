package events

import (
	"math/big"

	"bridgemint/core/types"
	"bridgemint/crypto"
)

const (
	// TypeCollateralReserved is emitted when a reservation ticket locks collateral.
	TypeCollateralReserved = "minting.reserved"
	// TypeMintingExecuted is emitted when a proven payment completes a reservation.
	TypeMintingExecuted = "minting.executed"
	// TypeMintingDefaulted is emitted when a proven non-payment closes a reservation.
	TypeMintingDefaulted = "minting.defaulted"
	// TypeMintingUnstuck is emitted when an unprovable reservation is force-closed.
	TypeMintingUnstuck = "minting.unstuck"
	// TypeSelfMinted is emitted when an agent mints against its own payment.
	TypeSelfMinted = "minting.self"
)

type CollateralReserved struct {
	ReservationID uint64
	AgentID       [20]byte
	Minter        [20]byte
	Lots          uint64
	ValueUBA      *big.Int
	FeeUBA        *big.Int
	LastBlock     uint64
	LastTimestamp uint64
}

func (CollateralReserved) EventType() string { return TypeCollateralReserved }

func (e CollateralReserved) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralReserved,
		Attributes: map[string]string{
			"reservationId": formatUint(e.ReservationID),
			"agent":         crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"minter":        crypto.MustNewAddress(crypto.AccountPrefix, e.Minter[:]).String(),
			"lots":          formatUint(e.Lots),
			"valueUBA":      formatBig(e.ValueUBA),
			"feeUBA":        formatBig(e.FeeUBA),
			"lastBlock":     formatUint(e.LastBlock),
			"lastTimestamp": formatUint(e.LastTimestamp),
		},
	}
}

type MintingExecuted struct {
	ReservationID uint64
	AgentID       [20]byte
	Minter        [20]byte
	MintedUBA     *big.Int
	AgentFeeUBA   *big.Int
	PoolFeeUBA    *big.Int
	TicketID      uint64
}

func (MintingExecuted) EventType() string { return TypeMintingExecuted }

func (e MintingExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeMintingExecuted,
		Attributes: map[string]string{
			"reservationId": formatUint(e.ReservationID),
			"agent":         crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"minter":        crypto.MustNewAddress(crypto.AccountPrefix, e.Minter[:]).String(),
			"mintedUBA":     formatBig(e.MintedUBA),
			"agentFeeUBA":   formatBig(e.AgentFeeUBA),
			"poolFeeUBA":    formatBig(e.PoolFeeUBA),
			"ticketId":      formatUint(e.TicketID),
		},
	}
}

type MintingDefaulted struct {
	ReservationID uint64
	AgentID       [20]byte
	ForfeitWei    *big.Int
}

func (MintingDefaulted) EventType() string { return TypeMintingDefaulted }

func (e MintingDefaulted) Event() *types.Event {
	return &types.Event{
		Type: TypeMintingDefaulted,
		Attributes: map[string]string{
			"reservationId": formatUint(e.ReservationID),
			"agent":         crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"forfeitWei":    formatBig(e.ForfeitWei),
		},
	}
}

type MintingUnstuck struct {
	ReservationID uint64
	AgentID       [20]byte
	PaidWei       *big.Int
}

func (MintingUnstuck) EventType() string { return TypeMintingUnstuck }

func (e MintingUnstuck) Event() *types.Event {
	return &types.Event{
		Type: TypeMintingUnstuck,
		Attributes: map[string]string{
			"reservationId": formatUint(e.ReservationID),
			"agent":         crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"paidWei":       formatBig(e.PaidWei),
		},
	}
}

type SelfMinted struct {
	AgentID   [20]byte
	MintedUBA *big.Int
	TopupUBA  *big.Int
	TicketID  uint64
}

func (SelfMinted) EventType() string { return TypeSelfMinted }

func (e SelfMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeSelfMinted,
		Attributes: map[string]string{
			"agent":     crypto.MustNewAddress(crypto.AgentPrefix, e.AgentID[:]).String(),
			"mintedUBA": formatBig(e.MintedUBA),
			"topupUBA":  formatBig(e.TopupUBA),
			"ticketId":  formatUint(e.TicketID),
		},
	}
}
