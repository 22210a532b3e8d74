// Package ids generates identifiers for persisted entities.
//
// Entity IDs are a short type prefix plus a monotonic ULID, e.g.
// "ntf_01J9Z3...". They sort by creation time, which the notification
// listing relies on for a stable tiebreak.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entity prefixes.
const (
	PrefixNotification = "ntf"
	PrefixPreferences  = "ntp"
	PrefixPushToken    = "ptk"
	PrefixMessage      = "msg"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns prefix + "_" + ULID.
func New(prefix string) string {
	mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	mu.Unlock()
	return prefix + "_" + id.String()
}

// HasPrefix reports whether id was generated with prefix and carries a valid ULID.
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}
