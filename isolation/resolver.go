package isolation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/pantheon-ai/mnemo/memory"
)

// ErrUnknownPersona is returned in production mode when a caller names a
// persona outside the closed set. Outside production the resolver falls
// back to the shared namespace instead.
var ErrUnknownPersona = errors.New("isolation: unknown persona")

// Options configures a Resolver.
type Options struct {
	// Logger receives the warning emitted on shared-namespace fallback.
	// Defaults to a JSON logger on stdout.
	Logger *slog.Logger

	// Production rejects unknown personas instead of falling back to
	// the shared namespace.
	Production bool
}

// Resolver maps personas to their isolation profiles. The profile table
// is static; the resolver adds the fallback policy on top: unknown
// personas resolve to the shared namespace with a logged warning, or to
// an error in production mode.
type Resolver struct {
	profiles   map[memory.Persona]*Profile
	logger     *slog.Logger
	production bool
}

// NewResolver creates a resolver over the static profile table.
func NewResolver(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	return &Resolver{
		profiles:   defaultProfiles(),
		logger:     logger,
		production: opts.Production,
	}
}

// Resolve returns the profile for a persona. Unknown personas resolve to
// the shared profile with a logged warning; resolution never fails
// outside production mode.
func (r *Resolver) Resolve(persona memory.Persona) (*Profile, error) {
	if profile, ok := r.profiles[persona]; ok {
		return profile, nil
	}

	if r.production {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, persona)
	}

	r.logger.Warn("unknown persona, routing to shared namespace",
		"persona", string(persona))
	return r.profiles[memory.PersonaShared], nil
}

// ResolveName parses a free-form persona name and resolves its profile.
// Parsing is case-insensitive; unknown names follow the same fallback
// policy as Resolve.
func (r *Resolver) ResolveName(name string) (*Profile, error) {
	persona, ok := memory.ParsePersona(name)
	if !ok {
		if r.production {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
		}
		r.logger.Warn("unknown persona, routing to shared namespace",
			"persona", name)
	}
	return r.Resolve(persona)
}

// Profiles returns every profile ordered by namespace ID. Useful for
// iterating personas in lifecycle sweeps.
func (r *Resolver) Profiles() []*Profile {
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NamespaceID < out[j].NamespaceID
	})
	return out
}
