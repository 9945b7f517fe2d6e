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

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID stamped with the current wall clock.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID stamped with t instead of the wall clock.
//
// Backtests stamp positions and trade log rows with simulated time so that
// identifiers sort in the same order as the bars that produced them.
// IDs minted for the same millisecond stay lexicographically increasing.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	ms := ulid.Timestamp(t.UTC())
	id, err := ulid.New(ms, mono)
	if err != nil {
		// Monotonic entropy overflow or a timestamp before the previous one in
		// the same millisecond; fall back to fresh entropy.
		id = ulid.MustNew(ms, cryptoRand.Reader)
	}
	return id.String()
}
