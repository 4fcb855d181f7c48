package userstore

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idOnce sync.Once
	ids    *idGenerator
)

// idGenerator safely generates ULIDs concurrently from a monotonic source.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *idGenerator) newAt(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// NewID returns a new lexicographically sortable ULID string.
func NewID() string {
	return NewIDAt(time.Now().UTC())
}

// NewIDAt returns a new ULID string carrying the timestamp t.
func NewIDAt(t time.Time) string {
	idOnce.Do(func() {
		ids = &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
	})
	return ids.newAt(t)
}

// ParseID validates s as a ULID and returns its canonical form.
func ParseID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return "", fmt.Errorf("%w: user id %q: %v", ErrInvalidInput, s, err)
	}
	return u.String(), nil
}

// IsID reports whether s is a valid user id.
func IsID(s string) bool {
	_, err := ParseID(s)
	return err == nil
}
