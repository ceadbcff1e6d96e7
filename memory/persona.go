package memory

import (
	"errors"
	"fmt"
	"strings"
)

// Persona identifies a named agent from the closed persona set and is the
// primary isolation boundary of the store. Items tagged with one persona
// are invisible to callers not authorized for it.
//
// Two personas are reserved for cross-cutting concerns:
//
//   - PersonaShared: cross-persona artifacts, also the fallback namespace
//     for unknown persona names
//   - PersonaSystem: audit and other service-owned artifacts
//
// Example usage:
//
//	p, known := memory.ParsePersona("Athena")
//	if !known {
//	    logger.Warn("unknown persona routed to shared", "input", "Athena")
//	}
type Persona string

const (
	PersonaAthena  Persona = "athena"
	PersonaArtemis Persona = "artemis"
	PersonaHestia  Persona = "hestia"
	PersonaBellona Persona = "bellona"
	PersonaSeshat  Persona = "seshat"

	// PersonaShared holds cross-persona artifacts and is the fallback
	// namespace for unknown persona names.
	PersonaShared Persona = "shared"

	// PersonaSystem holds service-owned artifacts such as audit state.
	PersonaSystem Persona = "system"
)

// ErrInvalidPersona is returned when a persona name is outside the closed set.
var ErrInvalidPersona = errors.New("memory: invalid persona")

// Personas returns the full closed persona set.
func Personas() []Persona {
	return []Persona{
		PersonaAthena,
		PersonaArtemis,
		PersonaHestia,
		PersonaBellona,
		PersonaSeshat,
		PersonaShared,
		PersonaSystem,
	}
}

// AgentPersonas returns the personas that represent agents, excluding the
// shared and system namespaces.
func AgentPersonas() []Persona {
	return []Persona{
		PersonaAthena,
		PersonaArtemis,
		PersonaHestia,
		PersonaBellona,
		PersonaSeshat,
	}
}

// ParsePersona lowercases the input and reports whether it names a member
// of the closed set. Unknown names resolve to PersonaShared so that
// callers always receive a usable namespace; the second return value lets
// them flag the fallback.
//
// Example:
//
//	p, known := memory.ParsePersona(req.Persona)
//	if !known {
//	    logger.Warn("unknown persona, routing to shared", "persona", req.Persona)
//	}
func ParsePersona(name string) (Persona, bool) {
	p := Persona(strings.ToLower(strings.TrimSpace(name)))
	if p.IsValid() {
		return p, true
	}
	return PersonaShared, false
}

// String returns the string representation of the Persona.
// This implements the fmt.Stringer interface.
func (p Persona) String() string {
	return string(p)
}

// IsValid returns true if the Persona is a member of the closed set.
func (p Persona) IsValid() bool {
	switch p {
	case PersonaAthena, PersonaArtemis, PersonaHestia, PersonaBellona,
		PersonaSeshat, PersonaShared, PersonaSystem:
		return true
	default:
		return false
	}
}

// IsAgent returns true for personas that represent agents rather than the
// shared or system namespaces.
func (p Persona) IsAgent() bool {
	switch p {
	case PersonaAthena, PersonaArtemis, PersonaHestia, PersonaBellona, PersonaSeshat:
		return true
	default:
		return false
	}
}

// Validate returns an error if the Persona is not a member of the closed set.
//
// Example:
//
//	persona := memory.Persona(input)
//	if err := persona.Validate(); err != nil {
//	    return fmt.Errorf("bad request: %w", err)
//	}
func (p Persona) Validate() error {
	if !p.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPersona, p)
	}
	return nil
}
