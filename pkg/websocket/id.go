package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

var connCounter uint64

// newConnID generates a unique connection identifier. The format is
// "conn-{timestamp_hex}-{counter}-{random}": sortable by accept time and
// collision-free under concurrent accepts.
func newConnID() string {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(time.Now().UnixNano()))

	counter := make([]byte, 4)
	binary.BigEndian.PutUint32(counter, uint32(atomic.AddUint64(&connCounter, 1)))

	random := make([]byte, 4)
	_, _ = rand.Read(random)

	return "conn-" + hex.EncodeToString(ts) + "-" + hex.EncodeToString(counter) + "-" + hex.EncodeToString(random)
}
