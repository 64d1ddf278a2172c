package wire

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator produces fresh MessageIDs on Enqueue. A single IDGenerator may
// be shared across reactor goroutines when a concurrent queue.Set is shared
// across Servers; its entropy source is guarded by a mutex so two
// concurrent Enqueues can never observe the same identifier.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator returns an IDGenerator ready for use.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns a new, globally unique MessageID.
func (g *IDGenerator) Next() MessageID {
	g.mu.Lock()
	defer g.mu.Unlock()

	var id, err = ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		// Monotonic entropy only errors on overflow after exhausting the
		// random tail within a single millisecond an implausible number of
		// times; a fresh ULID.New with crypto/rand entropy cannot fail.
		id = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	}
	return MessageID(id)
}
