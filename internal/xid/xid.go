// Package xid mints prefixed, time-ordered identifiers for ledger entries,
// shifts, customers and transfers.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id like "tx-1725100000000000000-9f86d081884c7d65". The
// timestamp keeps ids roughly sortable by creation; the random suffix keeps
// them unique under concurrent minting.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
