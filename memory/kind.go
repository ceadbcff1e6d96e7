package memory

import (
	"errors"
	"fmt"
)

// Kind classifies a memory item and drives how the router places it
// across the storage tiers.
//
// The four kinds map to different retention and retrieval behavior:
//
//   - KindWorking: Transient scratch state, short TTL in the fast tier
//   - KindEpisodic: Events and observations, archived when important
//   - KindSemantic: Concepts and facts, indexed for semantic search
//   - KindProcedural: How-to knowledge, durably stored and never auto-pruned
//
// Kind is immutable after creation. The lifecycle engine may promote a
// working item to a long-term kind, which re-creates the item under the
// inferred kind rather than mutating it in place.
//
// Example usage:
//
//	kind := memory.KindSemantic
//	if err := kind.Validate(); err != nil {
//	    return err
//	}
type Kind string

const (
	// KindWorking is transient scratch memory. Items live in the fast
	// tier under a short TTL and are either promoted by consolidation
	// or expire.
	KindWorking Kind = "working"

	// KindEpisodic records events and observations. Recent episodes stay
	// in the fast tier; important ones are archived durably.
	KindEpisodic Kind = "episodic"

	// KindSemantic holds concepts, facts, and definitions. The vector
	// tier is the system of record for semantic search.
	KindSemantic Kind = "semantic"

	// KindProcedural holds how-to knowledge. The durable tier is
	// canonical; the vector tier accelerates lookup. Procedural items
	// are never pruned automatically.
	KindProcedural Kind = "procedural"
)

// ErrInvalidKind is returned when a Kind value is not recognized.
var ErrInvalidKind = errors.New("memory: invalid kind")

// Kinds returns all valid kinds in routing-priority order.
func Kinds() []Kind {
	return []Kind{KindWorking, KindEpisodic, KindSemantic, KindProcedural}
}

// LongTermKinds returns the kinds that survive consolidation.
func LongTermKinds() []Kind {
	return []Kind{KindEpisodic, KindSemantic, KindProcedural}
}

// String returns the string representation of the Kind.
// This implements the fmt.Stringer interface.
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the Kind is one of the defined constants.
// This method is useful for validation in configuration parsing and
// request handling.
func (k Kind) IsValid() bool {
	switch k {
	case KindWorking, KindEpisodic, KindSemantic, KindProcedural:
		return true
	default:
		return false
	}
}

// IsLongTerm returns true for kinds that outlive the working tier.
func (k Kind) IsLongTerm() bool {
	switch k {
	case KindEpisodic, KindSemantic, KindProcedural:
		return true
	default:
		return false
	}
}

// Validate returns an error if the Kind is not valid.
// This is a convenience method that wraps IsValid() with a descriptive error.
//
// Example:
//
//	kind := memory.Kind(userInput)
//	if err := kind.Validate(); err != nil {
//	    return fmt.Errorf("bad request: %w", err)
//	}
func (k Kind) Validate() error {
	if !k.IsValid() {
		return fmt.Errorf("%w: %q (must be one of: working, episodic, semantic, procedural)", ErrInvalidKind, k)
	}
	return nil
}
