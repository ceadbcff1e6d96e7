package access

import (
	"sync"
	"time"

	"github.com/pantheon-ai/mnemo/memory"
)

// AuditLimit is the default ring capacity. Once full, each append
// overwrites the oldest record.
const AuditLimit = 10000

// Record is one audit entry. Every authentication, authorization
// decision, and absorbed backend failure produces one.
type Record struct {
	// Time is when the event happened, UTC.
	Time time.Time `json:"time"`

	// Persona is the acting identity.
	Persona memory.Persona `json:"persona"`

	// Operation names the attempted operation.
	Operation string `json:"operation"`

	// Success reports whether the operation was permitted or completed.
	Success bool `json:"success"`

	// Details carries operation context: target persona, kind, denial
	// reason, backend errors.
	Details map[string]any `json:"details,omitempty"`
}

// AuditQuery filters audit reads. Zero values match everything.
type AuditQuery struct {
	// Persona restricts to one acting identity.
	Persona memory.Persona

	// Operation restricts to one operation name.
	Operation string

	// Limit caps the number of returned records. Zero returns all
	// matches.
	Limit int
}

// AuditLog is a synchronized bounded ring of audit records. Appends are
// constant time; the ring keeps the most recent records up to its
// capacity.
type AuditLog struct {
	mu       sync.Mutex
	records  []Record
	next     int
	capacity int
}

// NewAuditLog creates a ring with the given capacity. Zero or negative
// means AuditLimit.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = AuditLimit
	}
	return &AuditLog{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Append records one event, overwriting the oldest once the ring is
// full.
func (l *AuditLog) Append(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) < l.capacity {
		l.records = append(l.records, rec)
		return
	}
	l.records[l.next] = rec
	l.next = (l.next + 1) % l.capacity
}

// Query returns matching records, newest first.
func (l *AuditLog) Query(q AuditQuery) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matches []Record
	for i := 0; i < len(l.records); i++ {
		rec := l.at(len(l.records) - 1 - i)
		if q.Persona != "" && rec.Persona != q.Persona {
			continue
		}
		if q.Operation != "" && rec.Operation != q.Operation {
			continue
		}
		matches = append(matches, rec)
		if q.Limit > 0 && len(matches) >= q.Limit {
			break
		}
	}
	return matches
}

// Len returns the number of records currently retained.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// at maps a chronological index (0 = oldest) onto the ring. Caller holds
// the lock.
func (l *AuditLog) at(i int) Record {
	if len(l.records) < l.capacity {
		return l.records[i]
	}
	return l.records[(l.next+i)%l.capacity]
}
