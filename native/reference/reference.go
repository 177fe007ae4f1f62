package reference

import (
	"bytes"
	"encoding/hex"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// A payment reference is the 32-byte tag attached to every external-chain
// payment. It is the sole binding between an external payment and a pending
// ledger operation: 4 bytes of kind tag followed by a 28-byte payload. Kinds
// carrying an operation id zero-pad the id into the payload; kinds bound to an
// agent embed the low 28 bytes of the keccak256 hash of the agent identifier.
type Reference [32]byte

// Kind enumerates the operation families a reference can bind to.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindTopup
	KindMinting
	KindRedemption
	KindAnnouncedWithdrawal
	KindSelfMint
)

var (
	ErrUnknownKind    = errors.New("payment reference: unknown kind tag")
	ErrMalformed      = errors.New("payment reference: malformed payload")
	ErrNotIDReference = errors.New("payment reference: reference does not carry an operation id")
)

// Kind tags. The first two bytes identify the protocol, the third the
// operation family, the fourth the encoding version.
var kindTags = map[Kind][4]byte{
	KindTopup:               {0x62, 0x6d, 0x01, 0x01},
	KindMinting:             {0x62, 0x6d, 0x02, 0x01},
	KindRedemption:          {0x62, 0x6d, 0x03, 0x01},
	KindAnnouncedWithdrawal: {0x62, 0x6d, 0x04, 0x01},
	KindSelfMint:            {0x62, 0x6d, 0x05, 0x01},
}

func (k Kind) String() string {
	switch k {
	case KindTopup:
		return "topup"
	case KindMinting:
		return "minting"
	case KindRedemption:
		return "redemption"
	case KindAnnouncedWithdrawal:
		return "announced-withdrawal"
	case KindSelfMint:
		return "self-mint"
	default:
		return "invalid"
	}
}

func encodeID(kind Kind, id uint64) Reference {
	var ref Reference
	tag := kindTags[kind]
	copy(ref[:4], tag[:])
	encoded := uint256.NewInt(id).Bytes32()
	copy(ref[4:], encoded[4:])
	return ref
}

func encodeAgent(kind Kind, agentID [20]byte) Reference {
	var ref Reference
	tag := kindTags[kind]
	copy(ref[:4], tag[:])
	hash := ethcrypto.Keccak256(agentID[:])
	copy(ref[4:], hash[4:])
	return ref
}

// Minting builds the reference bound to a collateral reservation.
func Minting(reservationID uint64) Reference {
	return encodeID(KindMinting, reservationID)
}

// Redemption builds the reference bound to a redemption request.
func Redemption(requestID uint64) Reference {
	return encodeID(KindRedemption, requestID)
}

// AnnouncedWithdrawal builds the reference bound to a withdrawal announcement.
func AnnouncedWithdrawal(announcementID uint64) Reference {
	return encodeID(KindAnnouncedWithdrawal, announcementID)
}

// Topup builds the reference an agent attaches to free-balance topups.
func Topup(agentID [20]byte) Reference {
	return encodeAgent(KindTopup, agentID)
}

// SelfMint builds the reference an agent attaches to self-mint payments.
func SelfMint(agentID [20]byte) Reference {
	return encodeAgent(KindSelfMint, agentID)
}

// DecodeKind returns the operation family encoded in the reference, rejecting
// unknown tags and, for id-carrying kinds, nonzero padding bytes.
func DecodeKind(ref Reference) (Kind, error) {
	var tag [4]byte
	copy(tag[:], ref[:4])
	for kind, candidate := range kindTags {
		if tag != candidate {
			continue
		}
		switch kind {
		case KindMinting, KindRedemption, KindAnnouncedWithdrawal:
			// 28-byte payload holds a uint64: the leading 20 bytes must be zero.
			if !bytes.Equal(ref[4:24], make([]byte, 20)) {
				return KindInvalid, ErrMalformed
			}
		}
		return kind, nil
	}
	return KindInvalid, ErrUnknownKind
}

// OperationID extracts the operation id from an id-carrying reference.
func OperationID(ref Reference) (uint64, error) {
	kind, err := DecodeKind(ref)
	if err != nil {
		return 0, err
	}
	switch kind {
	case KindMinting, KindRedemption, KindAnnouncedWithdrawal:
	default:
		return 0, ErrNotIDReference
	}
	var raw [32]byte
	copy(raw[4:], ref[4:])
	value := new(uint256.Int).SetBytes32(raw[:])
	if !value.IsUint64() {
		return 0, ErrMalformed
	}
	return value.Uint64(), nil
}

// FromHex parses a 0x-prefixed or bare hex reference string.
func FromHex(s string) (Reference, error) {
	var ref Reference
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ref, ErrMalformed
	}
	if len(raw) != 32 {
		return ref, ErrMalformed
	}
	copy(ref[:], raw)
	return ref, nil
}

func (r Reference) Hex() string {
	return "0x" + hex.EncodeToString(r[:])
}

// IsZero reports whether the reference is unset.
func (r Reference) IsZero() bool {
	return r == Reference{}
}
