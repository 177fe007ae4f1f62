package state

import (
	"encoding/binary"
	"encoding/hex"
)

// Key layout. Sequential records use big-endian identifiers so prefix
// iteration yields them oldest-first.
const (
	prefixAgent       = "agent/"
	prefixReservation = "cr/"
	prefixRequest     = "req/"
	prefixTicket      = "ticket/"
	prefixBalance     = "bal/"
	prefixSupply      = "supply/"
	prefixPause       = "pause/"
	prefixParam       = "param/"
	prefixRedeemWM    = "wm/redemption/"

	keyPaymentWatermark = "wm/payment"
	keyUnderlyingCursor = "cursor/underlying"
	keySeqAnnouncement  = "seq/announcement"
	keySeqReservation   = "seq/reservation"
	keySeqRequest       = "seq/request"
	keySeqTicket        = "seq/ticket"
)

func be64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func agentKey(id [20]byte) []byte {
	return append([]byte(prefixAgent), hex.EncodeToString(id[:])...)
}

func reservationKey(id uint64) []byte {
	return append([]byte(prefixReservation), be64(id)...)
}

func requestKey(id uint64) []byte {
	return append([]byte(prefixRequest), be64(id)...)
}

func ticketKey(id uint64) []byte {
	return append([]byte(prefixTicket), be64(id)...)
}

func balanceKey(symbol string, addr [20]byte) []byte {
	key := append([]byte(prefixBalance), symbol...)
	key = append(key, '/')
	return append(key, hex.EncodeToString(addr[:])...)
}

func supplyKey(symbol string) []byte {
	return append([]byte(prefixSupply), symbol...)
}

func pauseKey(module string) []byte {
	return append([]byte(prefixPause), module...)
}

func paramKey(name string) []byte {
	return append([]byte(prefixParam), name...)
}

func redemptionWatermarkKey(agentID [20]byte) []byte {
	return append([]byte(prefixRedeemWM), hex.EncodeToString(agentID[:])...)
}

func encodeCursor(block, timestamp uint64) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], block)
	binary.BigEndian.PutUint64(buf[8:], timestamp)
	return buf[:]
}

func decodeCursor(raw []byte) (uint64, uint64) {
	if len(raw) != 16 {
		return 0, 0
	}
	return binary.BigEndian.Uint64(raw[:8]), binary.BigEndian.Uint64(raw[8:])
}
