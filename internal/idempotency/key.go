package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"example.com/webshopsessions/internal/domain"
)

type KeySource string

const (
	KeyFromEventID   KeySource = "event_id"
	KeyFromComposite KeySource = "composite"
)

// DeriveKey returns a stable deduplication key and the source used.
// - Prefer the feed id when present (it is the table's primary key).
// - Fallback to composite (customer_id, event_type, timestamp).
// We return a hex-encoded SHA-256 when using the composite to guarantee fixed length.
func DeriveKey(ev *domain.NormalizedEvent) (key string, src KeySource) {
	if ev.ID != 0 {
		return strconv.FormatInt(ev.ID, 10), KeyFromEventID
	}
	composite := fmt.Sprintf("%s|%s|%s", ev.CustomerID, ev.EventType, ev.Timestamp.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:]), KeyFromComposite
}

// Seen tracks keys already accepted during one load.
type Seen struct {
	keys map[string]struct{}
}

func NewSeen() *Seen {
	return &Seen{keys: make(map[string]struct{})}
}

// Add records the event's key and reports whether it was new.
func (s *Seen) Add(ev *domain.NormalizedEvent) bool {
	k, _ := DeriveKey(ev)
	if _, dup := s.keys[k]; dup {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

func (s *Seen) Len() int { return len(s.keys) }
