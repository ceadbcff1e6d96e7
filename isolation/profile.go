package isolation

import (
	"strings"
	"time"

	"github.com/pantheon-ai/mnemo/memory"
)

// Kind priority bounds. Priorities feed the forgetting curve: higher
// priority kinds decay slower for that persona.
const (
	PriorityMin     = 1
	PriorityMax     = 5
	PriorityDefault = 3
)

// Profile is the static per-persona configuration: which fast-tier
// namespace the persona owns, how its TTLs scale, which keywords mark
// content as consolidation-worthy, and how strongly each memory kind
// resists pruning.
type Profile struct {
	// Persona is the owning persona.
	Persona memory.Persona `json:"persona"`

	// NamespaceID is the fast-tier logical database reserved for this
	// persona. Each persona gets its own connection pool against it.
	NamespaceID int `json:"namespace_id"`

	// MaxItems is the soft item quota for this persona's namespace.
	MaxItems int `json:"max_items"`

	// TTLMultiplier scales the per-kind base TTLs before they are
	// applied. A zero value means no scaling.
	TTLMultiplier float64 `json:"ttl_multiplier"`

	// FocusKeywords marks content this persona cares about. A working
	// item matching any keyword is consolidated regardless of its
	// importance or access count.
	FocusKeywords []string `json:"focus_keywords,omitempty"`

	// KindPriority maps each memory kind to its retention priority in
	// [PriorityMin, PriorityMax]. Kinds absent from the map default to
	// PriorityDefault.
	KindPriority map[memory.Kind]int `json:"kind_priority,omitempty"`
}

// PriorityFor returns the retention priority of a kind for this persona,
// clamped into [PriorityMin, PriorityMax]. Missing kinds get
// PriorityDefault.
func (p *Profile) PriorityFor(kind memory.Kind) int {
	prio, ok := p.KindPriority[kind]
	if !ok {
		return PriorityDefault
	}
	if prio < PriorityMin {
		return PriorityMin
	}
	if prio > PriorityMax {
		return PriorityMax
	}
	return prio
}

// ScaleTTL applies the persona's TTL multiplier to a base duration.
// A zero or negative multiplier leaves the base unchanged.
func (p *Profile) ScaleTTL(base time.Duration) time.Duration {
	if p.TTLMultiplier <= 0 {
		return base
	}
	return time.Duration(float64(base) * p.TTLMultiplier)
}

// MatchesFocus reports whether the text contains any of the persona's
// focus keywords. Matching is case-insensitive.
func (p *Profile) MatchesFocus(text string) bool {
	if len(p.FocusKeywords) == 0 || text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range p.FocusKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// defaultProfiles is the static per-persona configuration table. The
// namespace assignment is fixed: logical databases 1 through 7 in
// persona declaration order, leaving database 0 for shared service
// state such as rate-limit keys.
func defaultProfiles() map[memory.Persona]*Profile {
	return map[memory.Persona]*Profile{
		memory.PersonaAthena: {
			Persona:       memory.PersonaAthena,
			NamespaceID:   1,
			MaxItems:      10000,
			TTLMultiplier: 1.0,
			FocusKeywords: []string{"strategy", "plan", "architecture", "decision", "design"},
			KindPriority: map[memory.Kind]int{
				memory.KindWorking:    2,
				memory.KindEpisodic:   3,
				memory.KindSemantic:   5,
				memory.KindProcedural: 4,
			},
		},
		memory.PersonaArtemis: {
			Persona:       memory.PersonaArtemis,
			NamespaceID:   2,
			MaxItems:      10000,
			TTLMultiplier: 0.5,
			FocusKeywords: []string{"discovery", "scan", "observation", "finding", "anomaly"},
			// Procedural is absent here; PriorityFor supplies the default.
			KindPriority: map[memory.Kind]int{
				memory.KindWorking:  2,
				memory.KindEpisodic: 4,
				memory.KindSemantic: 3,
			},
		},
		memory.PersonaHestia: {
			Persona:       memory.PersonaHestia,
			NamespaceID:   3,
			MaxItems:      10000,
			TTLMultiplier: 2.0,
			FocusKeywords: []string{"infrastructure", "deploy", "config", "incident", "maintenance"},
			KindPriority: map[memory.Kind]int{
				memory.KindWorking:    1,
				memory.KindEpisodic:   3,
				memory.KindSemantic:   4,
				memory.KindProcedural: 5,
			},
		},
		memory.PersonaBellona: {
			Persona:       memory.PersonaBellona,
			NamespaceID:   4,
			MaxItems:      10000,
			TTLMultiplier: 1.0,
			FocusKeywords: []string{"execution", "operation", "task", "campaign", "rollout"},
			KindPriority: map[memory.Kind]int{
				memory.KindWorking:    3,
				memory.KindEpisodic:   4,
				memory.KindProcedural: 5,
			},
		},
		memory.PersonaSeshat: {
			Persona:       memory.PersonaSeshat,
			NamespaceID:   5,
			MaxItems:      10000,
			TTLMultiplier: 1.5,
			FocusKeywords: []string{"record", "document", "summary", "reference", "glossary"},
			KindPriority: map[memory.Kind]int{
				memory.KindWorking:    1,
				memory.KindEpisodic:   2,
				memory.KindSemantic:   5,
				memory.KindProcedural: 4,
			},
		},
		memory.PersonaShared: {
			Persona:       memory.PersonaShared,
			NamespaceID:   6,
			MaxItems:      50000,
			TTLMultiplier: 1.0,
			KindPriority: map[memory.Kind]int{
				memory.KindEpisodic:   3,
				memory.KindSemantic:   3,
				memory.KindProcedural: 3,
			},
		},
		memory.PersonaSystem: {
			Persona:       memory.PersonaSystem,
			NamespaceID:   7,
			MaxItems:      100000,
			TTLMultiplier: 4.0,
			KindPriority: map[memory.Kind]int{
				memory.KindEpisodic:   5,
				memory.KindSemantic:   5,
				memory.KindProcedural: 5,
			},
		},
	}
}
