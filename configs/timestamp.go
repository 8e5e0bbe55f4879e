package configs

import (
	"fmt"
	"sync/atomic"
)

var txnID = uint64(0)

// GetTxnID returns the next transaction id, wrapped at MaxTID.
func GetTxnID() uint64 {
	return atomic.AddUint64(&txnID, 1) % MaxTID
}

// GetXID builds a global transaction identity in the "address:tid" form.
func GetXID(address string, tid uint64) string {
	return fmt.Sprintf("%s:%d", address, tid)
}

func Max(x int, y int) int {
	if x > y {
		return x
	}
	return y
}

func Min(x int, y int) int {
	if x < y {
		return x
	}
	return y
}
