package ops

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// log is the package logger. Ops stay quiet by default; the entrypoint
// installs the real logger via SetLogger.
var log = zap.NewNop()

// SetLogger installs the logger used for best-effort side effects
// (e.g. audio cleanup failures).
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		log = logger
	}
}

// turnLocks serializes all mutations per turn id. State transitions
// read-then-write the current row; interleaving two writers on one turn
// can lose updates (e.g. two MarkReady calls racing on title auto-fill).
// Operations on distinct turns proceed concurrently.
var turnLocks = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

// lockTurn acquires the per-id mutex and returns its unlock func.
func lockTurn(id string) func() {
	turnLocks.mu.Lock()
	lock, ok := turnLocks.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		turnLocks.locks[id] = lock
	}
	turnLocks.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
