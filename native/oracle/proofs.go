package oracle

import (
	"math/big"

	"bridgemint/native/reference"
)

// The engines treat attestation proofs as ground truth once format-validated:
// cryptographic verification happens in the external attestation subsystem
// before a proof ever reaches this module. The engines only decide whether a
// proof is applicable to the operation being finalized.

// PaymentStatus reports the outcome of an external-chain transaction.
type PaymentStatus uint8

const (
	// PaymentSuccess means the payment settled at the receiving address.
	PaymentSuccess PaymentStatus = iota
	// PaymentFailed means the transaction executed but the transfer failed.
	PaymentFailed
	// PaymentBlocked means the receiver could not accept the payment.
	PaymentBlocked
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentSuccess:
		return "success"
	case PaymentFailed:
		return "failed"
	case PaymentBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// PaymentProof attests a single external-chain payment.
type PaymentProof struct {
	TransactionHash  string
	SourceAddress    string
	ReceivingAddress string
	Reference        reference.Reference
	// ReceivedUBA is the amount credited to the receiving address; for failed
	// or blocked payments it reflects the spent amount instead.
	ReceivedUBA    *big.Int
	SpentUBA       *big.Int
	Status         PaymentStatus
	BlockNumber    uint64
	BlockTimestamp uint64
}

// NonPaymentProof attests that no payment carrying the reference, amount and
// destination exists within the queried block/timestamp window.
type NonPaymentProof struct {
	DestinationAddress   string
	Reference            reference.Reference
	AmountUBA            *big.Int
	FirstCheckedBlock    uint64
	LastCheckedBlock     uint64
	LastCheckedTimestamp uint64
	// LowestQueryWindowBlock is the earliest block still covered by the
	// attestation retention horizon when the proof was produced.
	LowestQueryWindowBlock uint64
}

// BalanceDecreasingProof attests a transaction that reduced the balance of
// the source address, regardless of destination.
type BalanceDecreasingProof struct {
	TransactionHash string
	SourceAddress   string
	SpentUBA        *big.Int
	Reference       reference.Reference
	BlockNumber     uint64
	BlockTimestamp  uint64
}

// BlockHeightProof attests the current confirmed height of the external chain
// together with the earliest block still provable under the retention horizon.
type BlockHeightProof struct {
	BlockNumber                uint64
	BlockTimestamp             uint64
	NumberOfConfirmations      uint64
	LowestQueryWindowBlock     uint64
	LowestQueryWindowTimestamp uint64
}

// AddressValidityProof attests whether an underlying address is well-formed
// per the external chain's rules.
type AddressValidityProof struct {
	Address         string
	IsValid         bool
	StandardAddress string
}
