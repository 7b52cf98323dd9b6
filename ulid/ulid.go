// Package ulid makes the sortable run identifiers attached to stored
// selections.
package ulid

import (
	cryptorand "crypto/rand"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	oklid "github.com/oklog/ulid/v2"
	"go.ntppool.org/common/logger"
)

// Monotonic entropy sources aren't safe for concurrent use, so each
// goroutine borrows one from the pool.
var monotonicPool = sync.Pool{
	New: func() any {
		var seed [32]byte
		if _, err := cryptorand.Read(seed[:]); err != nil {
			logger.Setup().Error("crypto/rand error, using time seed", "err", err)
			binaryTime(seed[:])
		}
		return oklid.Monotonic(rand.NewChaCha8(seed), 0)
	},
}

func binaryTime(b []byte) {
	n := uint64(time.Now().UnixNano())
	for i := range b {
		b[i] = byte(n >> (8 * (i % 8)))
	}
}

// MakeULID returns a new ULID for time t. IDs made for the same
// millisecond from the same entropy source sort in creation order.
func MakeULID(t time.Time) (*oklid.ULID, error) {
	mono := monotonicPool.Get().(io.Reader)
	defer monotonicPool.Put(mono)

	id, err := oklid.New(oklid.Timestamp(t), mono)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// RunID returns the string form of a new ULID for t.
func RunID(t time.Time) (string, error) {
	id, err := MakeULID(t)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
