package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// eventRecord is one entry served by GET /api/v1/events. Stamped with a
// UUID, mirroring the teacher's EventLog rows, so a client can dedupe
// against events it has already seen across successive polls.
type eventRecord struct {
	ID      uuid.UUID   `json:"id"`
	DevEUI  string      `json:"devEUI"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// eventRing is a small fixed-capacity ring buffer of recent events, since
// the debug API has no database to page through (unlike the teacher's
// storage-backed event log).
type eventRing struct {
	mu   sync.Mutex
	buf  []eventRecord
	next int
	full bool
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]eventRecord, capacity)}
}

func (r *eventRing) add(rec eventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = uuid.New()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// recent returns up to len(buf) events, oldest first.
func (r *eventRing) recent() []eventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]eventRecord, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]eventRecord, len(r.buf))
	copy(out, r.buf[r.next:])
	copy(out[len(r.buf)-r.next:], r.buf[:r.next])
	return out
}
