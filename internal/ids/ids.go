// Package ids generates the request identifiers that tie a response header,
// its log lines, and its audit events together.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a fresh ULID. Within one process ids sort by issue order, so
// grepping a log window by id range follows request arrival.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with the given time.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
