package events

import (
	"math/big"
	"strconv"
)

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
