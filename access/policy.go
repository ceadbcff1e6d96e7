package access

import (
	"fmt"

	"github.com/pantheon-ai/mnemo/memory"
)

// Level is an access tier. Levels nest: each grants every operation of
// the levels below it.
type Level string

const (
	// LevelRead grants retrieval, search, and listing.
	LevelRead Level = "READ"

	// LevelWrite adds storing, updating, and sharing.
	LevelWrite Level = "WRITE"

	// LevelDelete adds deletion of the persona's own items.
	LevelDelete Level = "DELETE"

	// LevelAdmin grants every operation plus cross-persona deletion and
	// audit queries.
	LevelAdmin Level = "ADMIN"
)

// Operations gated by the access matrix.
const (
	OpRetrieve = "retrieve"
	OpSearch   = "search"
	OpList     = "list"
	OpStore    = "store"
	OpUpdate   = "update"
	OpShare    = "share"
	OpDelete   = "delete"
)

// readOps are the operations the cross-persona read set governs;
// writeOps the write set. Share and delete have their own rules.
var (
	readOps  = []string{OpRetrieve, OpSearch, OpList}
	writeOps = []string{OpStore, OpUpdate}
)

// rank orders levels for nesting comparisons. Unknown levels rank below
// READ and therefore grant nothing.
func (l Level) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelDelete:
		return 3
	case LevelAdmin:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether the level is one of the defined tiers.
func (l Level) IsValid() bool {
	return l.rank() > 0
}

// String returns the level name.
func (l Level) String() string {
	return string(l)
}

// Ops returns the operations this level grants, in a stable order.
func (l Level) Ops() []string {
	var ops []string
	if l.rank() >= LevelRead.rank() {
		ops = append(ops, readOps...)
	}
	if l.rank() >= LevelWrite.rank() {
		ops = append(ops, writeOps...)
		ops = append(ops, OpShare)
	}
	if l.rank() >= LevelDelete.rank() {
		ops = append(ops, OpDelete)
	}
	return ops
}

// Allows reports whether the level grants the operation.
func (l Level) Allows(op string) bool {
	for _, granted := range l.Ops() {
		if granted == op {
			return true
		}
	}
	return false
}

// Policy is one persona's row of the access matrix: its level and which
// personas it may read from, write to, and share with. A persona always
// has full access to itself; the lists govern cross-persona requests
// only.
type Policy struct {
	// Persona owns this row.
	Persona memory.Persona `json:"persona"`

	// Level is the access tier granted to this persona's tokens.
	Level Level `json:"level"`

	// CanReadFrom lists the personas whose items may be read.
	CanReadFrom []memory.Persona `json:"can_read_from,omitempty"`

	// CanWriteTo lists the personas whose namespaces may be written.
	CanWriteTo []memory.Persona `json:"can_write_to,omitempty"`

	// CanShareWith lists the personas items may be copied to.
	CanShareWith []memory.Persona `json:"can_share_with,omitempty"`

	// RestrictedKinds lists the memory kinds this persona's tokens may
	// not touch.
	RestrictedKinds []memory.Kind `json:"restricted_kinds,omitempty"`
}

// AllowsReadFrom reports whether this persona may read the target's
// items.
func (p *Policy) AllowsReadFrom(target memory.Persona) bool {
	return target == p.Persona || containsPersona(p.CanReadFrom, target)
}

// AllowsWriteTo reports whether this persona may write into the target's
// namespace.
func (p *Policy) AllowsWriteTo(target memory.Persona) bool {
	return target == p.Persona || containsPersona(p.CanWriteTo, target)
}

// AllowsShareWith reports whether this persona may copy items to the
// target.
func (p *Policy) AllowsShareWith(target memory.Persona) bool {
	return target == p.Persona || containsPersona(p.CanShareWith, target)
}

// AllowedKinds returns every memory kind this persona's tokens may use.
func (p *Policy) AllowedKinds() []memory.Kind {
	var kinds []memory.Kind
	for _, kind := range memory.Kinds() {
		if !containsKind(p.RestrictedKinds, kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Validate checks the policy is usable: a known persona and a defined
// level.
func (p *Policy) Validate() error {
	if err := p.Persona.Validate(); err != nil {
		return err
	}
	if !p.Level.IsValid() {
		return fmt.Errorf("invalid access level %q for persona %s", p.Level, p.Persona)
	}
	return nil
}

// DefaultPolicies is the static access matrix. Athena and hestia hold
// admin tokens with visibility into every persona; the field personas
// hold write tokens scoped to themselves and the shared pool. Seshat
// additionally reads the system namespace, where service artifacts land.
// Shared tokens are read-only, and working memory never crosses out of
// an agent's own namespace.
func DefaultPolicies() map[memory.Persona]*Policy {
	all := memory.Personas()

	return map[memory.Persona]*Policy{
		memory.PersonaAthena: {
			Persona:     memory.PersonaAthena,
			Level:       LevelAdmin,
			CanReadFrom: all,
			CanWriteTo:  []memory.Persona{memory.PersonaShared},
			CanShareWith: []memory.Persona{
				memory.PersonaArtemis, memory.PersonaHestia,
				memory.PersonaBellona, memory.PersonaSeshat,
				memory.PersonaShared,
			},
		},
		memory.PersonaHestia: {
			Persona:     memory.PersonaHestia,
			Level:       LevelAdmin,
			CanReadFrom: all,
			CanWriteTo:  []memory.Persona{memory.PersonaShared, memory.PersonaSystem},
			CanShareWith: []memory.Persona{
				memory.PersonaAthena, memory.PersonaArtemis,
				memory.PersonaBellona, memory.PersonaSeshat,
				memory.PersonaShared,
			},
		},
		memory.PersonaArtemis: {
			Persona:      memory.PersonaArtemis,
			Level:        LevelWrite,
			CanReadFrom:  []memory.Persona{memory.PersonaShared},
			CanWriteTo:   []memory.Persona{memory.PersonaShared},
			CanShareWith: []memory.Persona{memory.PersonaShared},
		},
		memory.PersonaBellona: {
			Persona:      memory.PersonaBellona,
			Level:        LevelWrite,
			CanReadFrom:  []memory.Persona{memory.PersonaShared},
			CanWriteTo:   []memory.Persona{memory.PersonaShared},
			CanShareWith: []memory.Persona{memory.PersonaShared},
		},
		memory.PersonaSeshat: {
			Persona:      memory.PersonaSeshat,
			Level:        LevelWrite,
			CanReadFrom:  []memory.Persona{memory.PersonaShared, memory.PersonaSystem},
			CanWriteTo:   []memory.Persona{memory.PersonaShared},
			CanShareWith: []memory.Persona{memory.PersonaShared},
		},
		memory.PersonaShared: {
			Persona:         memory.PersonaShared,
			Level:           LevelRead,
			RestrictedKinds: []memory.Kind{memory.KindWorking},
		},
		memory.PersonaSystem: {
			Persona:         memory.PersonaSystem,
			Level:           LevelAdmin,
			CanReadFrom:     all,
			CanWriteTo:      all,
			CanShareWith:    all,
			RestrictedKinds: []memory.Kind{memory.KindWorking},
		},
	}
}

func containsPersona(list []memory.Persona, p memory.Persona) bool {
	for _, candidate := range list {
		if candidate == p {
			return true
		}
	}
	return false
}

func containsKind(list []memory.Kind, k memory.Kind) bool {
	for _, candidate := range list {
		if candidate == k {
			return true
		}
	}
	return false
}
