package access

import (
	"fmt"
	"testing"
	"time"

	"github.com/pantheon-ai/mnemo/memory"
)

func TestAuditLogRing(t *testing.T) {
	l := NewAuditLog(3)

	for i := 0; i < 5; i++ {
		l.Append(Record{
			Persona:   memory.PersonaAthena,
			Operation: fmt.Sprintf("op-%d", i),
			Success:   true,
		})
	}

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	// Newest first; the two oldest were overwritten.
	records := l.Query(AuditQuery{})
	if len(records) != 3 {
		t.Fatalf("Query() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"op-4", "op-3", "op-2"} {
		if records[i].Operation != want {
			t.Errorf("records[%d].Operation = %s, want %s", i, records[i].Operation, want)
		}
	}
}

func TestAuditLogQueryFilters(t *testing.T) {
	l := NewAuditLog(0)

	l.Append(Record{Persona: memory.PersonaAthena, Operation: "store", Success: true})
	l.Append(Record{Persona: memory.PersonaArtemis, Operation: "store", Success: true})
	l.Append(Record{Persona: memory.PersonaAthena, Operation: "retrieve", Success: false})

	byPersona := l.Query(AuditQuery{Persona: memory.PersonaAthena})
	if len(byPersona) != 2 {
		t.Errorf("persona filter returned %d records, want 2", len(byPersona))
	}

	byOp := l.Query(AuditQuery{Operation: "store"})
	if len(byOp) != 2 {
		t.Errorf("operation filter returned %d records, want 2", len(byOp))
	}

	both := l.Query(AuditQuery{Persona: memory.PersonaAthena, Operation: "store"})
	if len(both) != 1 {
		t.Errorf("combined filter returned %d records, want 1", len(both))
	}

	limited := l.Query(AuditQuery{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit returned %d records, want 1", len(limited))
	}
	if limited[0].Operation != "retrieve" {
		t.Errorf("limit should keep the newest record, got %s", limited[0].Operation)
	}
}

func TestAuditLogStampsTime(t *testing.T) {
	l := NewAuditLog(0)
	l.Append(Record{Persona: memory.PersonaSystem, Operation: "store"})

	records := l.Query(AuditQuery{})
	if records[0].Time.IsZero() {
		t.Error("Append should stamp a zero Time")
	}
	if time.Since(records[0].Time) > time.Minute {
		t.Error("stamped time should be recent")
	}
}

func TestAuditLogDefaultCapacity(t *testing.T) {
	l := NewAuditLog(0)
	if l.capacity != AuditLimit {
		t.Errorf("capacity = %d, want %d", l.capacity, AuditLimit)
	}
}
