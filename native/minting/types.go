package minting

import (
	"math/big"

	"bridgemint/native/reference"
)

// CollateralReservation tracks one active reservation ticket. It exists only
// while the minter's payment window is open; every terminal transition
// (execute, default, unstick) deletes the record.
type CollateralReservation struct {
	ID                      uint64
	AgentID                 [20]byte
	Minter                  [20]byte
	Executor                [20]byte
	ExecutorFeeWei          *big.Int
	Lots                    uint64
	ValueUBA                *big.Int
	FeeUBA                  *big.Int
	ReservationFeeWei       *big.Int
	PaymentReference        reference.Reference
	FirstUnderlyingBlock    uint64
	LastUnderlyingBlock     uint64
	LastUnderlyingTimestamp uint64
	CreatedAt               int64
}

// Clone returns a deep copy safe to mutate independently.
func (cr *CollateralReservation) Clone() *CollateralReservation {
	if cr == nil {
		return nil
	}
	clone := *cr
	if cr.ExecutorFeeWei != nil {
		clone.ExecutorFeeWei = new(big.Int).Set(cr.ExecutorFeeWei)
	}
	if cr.ValueUBA != nil {
		clone.ValueUBA = new(big.Int).Set(cr.ValueUBA)
	}
	if cr.FeeUBA != nil {
		clone.FeeUBA = new(big.Int).Set(cr.FeeUBA)
	}
	if cr.ReservationFeeWei != nil {
		clone.ReservationFeeWei = new(big.Int).Set(cr.ReservationFeeWei)
	}
	return &clone
}

// Normalize replaces nil amounts with zero values.
func (cr *CollateralReservation) Normalize() *CollateralReservation {
	if cr == nil {
		return nil
	}
	if cr.ExecutorFeeWei == nil {
		cr.ExecutorFeeWei = big.NewInt(0)
	}
	if cr.ValueUBA == nil {
		cr.ValueUBA = big.NewInt(0)
	}
	if cr.FeeUBA == nil {
		cr.FeeUBA = big.NewInt(0)
	}
	if cr.ReservationFeeWei == nil {
		cr.ReservationFeeWei = big.NewInt(0)
	}
	return cr
}
