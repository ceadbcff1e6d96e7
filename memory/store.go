package memory

import (
	"context"
	"errors"

	"github.com/pantheon-ai/mnemo/types"
)

// Common errors returned by backend operations. Backends wrap these with
// %w so callers can test with errors.Is regardless of which tier produced
// the failure.
var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("memory: item not found")

	// ErrInvalidID is returned when an item ID is empty or malformed.
	ErrInvalidID = errors.New("memory: invalid item id")

	// ErrInvalidItem is returned when an item fails validation before
	// storage.
	ErrInvalidItem = errors.New("memory: invalid item")

	// ErrInvalidQuery is returned when a search query fails validation.
	ErrInvalidQuery = errors.New("memory: invalid query")

	// ErrUnavailable is returned when a backend cannot be reached. The
	// router treats it as the signal to fall through to the next tier.
	ErrUnavailable = errors.New("memory: backend unavailable")

	// ErrStoreFailed is returned when a backend accepted a request but
	// could not complete the write.
	ErrStoreFailed = errors.New("memory: store operation failed")
)

// Backend is a single storage tier. Three implementations cooperate
// behind the router, each with different characteristics:
//
//   - Fast KV: Low-latency key-value storage with native TTL expiry
//   - Vector: Embedding-based similarity search for semantic recall
//   - Durable: Persistent storage that survives restarts
//
// Backend implementations are responsible for their own connection
// lifecycle and must be safe for concurrent use. All operations accept
// a context for cancellation and deadlines.
//
// Example usage:
//
//	backend := // ... obtain Backend implementation
//
//	if err := backend.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err := backend.Store(ctx, item)
//
//	results, err := backend.Search(ctx, memory.Query{
//	    Text:  "queue architecture decision",
//	    Limit: 5,
//	}, memory.PersonaAthena)
type Backend interface {
	// Name returns the short identifier used in stats, logs, and
	// Result.Source. One of "fast_kv", "vector", or "durable".
	Name() string

	// Initialize prepares the backend for use: opening connections,
	// creating schema, verifying reachability. It must be called once
	// before any other operation.
	Initialize(ctx context.Context) error

	// Store persists an item. Storing an existing ID replaces the
	// previous version. Returns ErrInvalidItem if validation fails and
	// ErrUnavailable if the tier cannot be reached.
	Store(ctx context.Context, item *Item) error

	// Retrieve fetches an item by ID.
	// Returns ErrNotFound if the item does not exist in this tier.
	Retrieve(ctx context.Context, id string) (*Item, error)

	// Search finds items relevant to the query within the given
	// persona's namespace, returning up to the query limit results
	// ordered by descending score.
	// Returns an empty slice if no matches are found.
	Search(ctx context.Context, q Query, persona Persona) ([]Result, error)

	// Delete removes an item by ID. Deleting an item this tier does not
	// hold is not an error: the router fans deletes out to every tier,
	// and most tiers will not hold any given item.
	Delete(ctx context.Context, id string) error

	// Stats reports backend-specific counters (item counts, capacity,
	// connectivity) as a loosely typed map.
	Stats(ctx context.Context) (map[string]any, error)

	// Health probes the backend and reports its current status.
	Health(ctx context.Context) types.HealthStatus

	// Close releases resources held by the backend. The backend must
	// not be used after Close returns.
	Close() error
}
