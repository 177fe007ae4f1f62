package redemption

import (
	"math/big"

	"bridgemint/native/reference"
)

// RedemptionTicket is one slice of minted backing waiting in the global FIFO
// queue. Ticket ids are monotonic, so oldest-first ordering is ordering by id.
type RedemptionTicket struct {
	ID       uint64
	AgentID  [20]byte
	ValueAMG *big.Int
}

// Clone returns a deep copy safe to mutate independently.
func (t *RedemptionTicket) Clone() *RedemptionTicket {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ValueAMG != nil {
		clone.ValueAMG = new(big.Int).Set(t.ValueAMG)
	}
	return &clone
}

// RequestStatus tracks a redemption request through its lifecycle.
type RequestStatus uint8

const (
	// RequestActive waits for the agent's underlying payment.
	RequestActive RequestStatus = iota + 1
	// RequestDefaultedUnconfirmed has paid out collateral but the underlying
	// payment, if one was made late, is still unaccounted.
	RequestDefaultedUnconfirmed
	// RequestSuccessful is the terminal happy state.
	RequestSuccessful
	// RequestDefaultedFailed is terminal: the redeemer was compensated in
	// collateral.
	RequestDefaultedFailed
	// RequestBlocked is terminal: the payment was blocked on the receiving
	// side and the agent keeps the value.
	RequestBlocked
	// RequestRejected is terminal: the agent proved the target address invalid.
	RequestRejected
)

// Terminal reports whether no further transition can touch the request.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestSuccessful, RequestDefaultedFailed, RequestBlocked, RequestRejected:
		return true
	}
	return false
}

func (s RequestStatus) String() string {
	switch s {
	case RequestActive:
		return "active"
	case RequestDefaultedUnconfirmed:
		return "defaulted-unconfirmed"
	case RequestSuccessful:
		return "successful"
	case RequestDefaultedFailed:
		return "defaulted"
	case RequestBlocked:
		return "blocked"
	case RequestRejected:
		return "rejected"
	}
	return "unknown"
}

// RedemptionRequest tracks one agent's share of a redeem call until the
// underlying payment is proven or defaulted.
type RedemptionRequest struct {
	ID                      uint64
	AgentID                 [20]byte
	Redeemer                [20]byte
	UnderlyingAddress       string
	ValueUBA                *big.Int
	FeeUBA                  *big.Int
	PaymentReference        reference.Reference
	FirstUnderlyingBlock    uint64
	LastUnderlyingBlock     uint64
	LastUnderlyingTimestamp uint64
	Executor                [20]byte
	ExecutorFeeWei          *big.Int
	Status                  RequestStatus
	CreatedAt               int64
}

// PaymentValueUBA is the amount the agent must deliver: value minus the
// redemption fee it retains.
func (r *RedemptionRequest) PaymentValueUBA() *big.Int {
	return new(big.Int).Sub(r.ValueUBA, r.FeeUBA)
}

// Clone returns a deep copy safe to mutate independently.
func (r *RedemptionRequest) Clone() *RedemptionRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if r.ValueUBA != nil {
		clone.ValueUBA = new(big.Int).Set(r.ValueUBA)
	}
	if r.FeeUBA != nil {
		clone.FeeUBA = new(big.Int).Set(r.FeeUBA)
	}
	if r.ExecutorFeeWei != nil {
		clone.ExecutorFeeWei = new(big.Int).Set(r.ExecutorFeeWei)
	}
	return &clone
}

// Normalize replaces nil amounts with zero values.
func (r *RedemptionRequest) Normalize() *RedemptionRequest {
	if r == nil {
		return nil
	}
	if r.ValueUBA == nil {
		r.ValueUBA = big.NewInt(0)
	}
	if r.FeeUBA == nil {
		r.FeeUBA = big.NewInt(0)
	}
	if r.ExecutorFeeWei == nil {
		r.ExecutorFeeWei = big.NewInt(0)
	}
	return r
}
