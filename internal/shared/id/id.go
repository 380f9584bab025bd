// Package id issues the identifiers used for tree nodes and API requests.
//
// Node IDs are ULIDs drawn from a Generator that owns its entropy. The
// entropy is monotonic, so IDs from one generator sort in the order they
// were issued, and a builder walking a document in pre-order hands out IDs
// that sort in document order. Request IDs carry no order and are UUIDs.
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestPrefix starts every request ID.
const RequestPrefix = "req_"

// RequestID identifies an API request.
type RequestID string

func (r RequestID) String() string { return string(r) }

// NewRequestID returns a random request ID.
func NewRequestID() RequestID {
	return RequestID(RequestPrefix + uuid.NewString())
}

// Generator issues ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return newGenerator(rand.Reader, time.Now)
}

func newGenerator(entropy io.Reader, now func() time.Time) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0), now: now}
}

// NextID returns a new ULID string. It satisfies tree.IDSource.
func (g *Generator) NextID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}
