// Package identity derives anonymous display names from connection
// fingerprints. Names are stable for a fingerprint but carry no security
// meaning.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
)

const prefixLen = 6

// Fingerprint combines the peer address and the declared user agent.
func Fingerprint(ip, userAgent string) string {
	return ip + strconv.Quote(userAgent)
}

// Deriver caches fingerprint -> username for the life of the process.
// Entries are never evicted.
type Deriver struct {
	names sync.Map
	size  atomic.Int64
}

func NewDeriver() *Deriver {
	return &Deriver{}
}

// Derive returns "user_" followed by the first six hex characters of the
// SHA-256 of the fingerprint.
func (d *Deriver) Derive(fingerprint string) string {
	if name, ok := d.names.Load(fingerprint); ok {
		return name.(string)
	}

	name, loaded := d.names.LoadOrStore(fingerprint, UsernameFromFingerprint(fingerprint))
	if !loaded {
		d.size.Add(1)
	}
	return name.(string)
}

// Len reports how many fingerprints have been seen.
func (d *Deriver) Len() int {
	return int(d.size.Load())
}

func UsernameFromFingerprint(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return "user_" + hex.EncodeToString(sum[:])[:prefixLen]
}
