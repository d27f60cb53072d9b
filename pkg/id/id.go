// Package id hands out time-sortable position identities.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces monotonic ULIDs. IDs generated within the same
// millisecond keep increasing, so sorting IDs sorts positions by open order.
type Generator struct {
	mu   sync.Mutex
	mono io.Reader
	now  func() time.Time
}

// NewGenerator seeds a generator from crypto/rand.
func NewGenerator() *Generator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewGeneratorWithSeed(seed, time.Now)
}

// NewGeneratorWithSeed builds a deterministic generator. Useful for tests and
// replays that must produce identical journals.
func NewGeneratorWithSeed(seed int64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		now:  now,
	}
}

// Next returns the next ULID string.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.mono)
	if err != nil {
		// Only possible when the clock runs backwards past the monotonic window
		// or entropy is exhausted.
		panic(err)
	}
	return id.String()
}

var std = NewGenerator()

// New returns a ULID from the package generator.
func New() string {
	return std.Next()
}
