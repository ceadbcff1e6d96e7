package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pantheon-ai/mnemo/memerr"
	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/types"
)

const component = "router"

// DefaultRetryDelay is the pause before the single retry of an idempotent
// operation after a transient backend error.
const DefaultRetryDelay = 100 * time.Millisecond

// FailureFunc receives backend failures the router absorbed without
// failing the calling operation: secondary write errors, probe errors it
// routed around, and access-tracking write failures. The service wires
// this to the audit log.
type FailureFunc func(op, backend string, err error)

// Options configures a Router. All fields are optional except that at
// least one storage tier must be set.
type Options struct {
	// Fast, Vector, and Durable are the storage tiers. Any may be nil;
	// the router routes around missing tiers.
	Fast    memory.Backend
	Vector  memory.Backend
	Durable memory.Backend

	// CacheSize caps the local item cache. Zero means DefaultCacheSize,
	// negative disables the cache entirely.
	CacheSize int

	// CacheTTL bounds how long a cached item may be served without
	// consulting a backend. Zero means DefaultCacheTTL.
	CacheTTL time.Duration

	// RetryDelay is the backoff before retrying an idempotent operation
	// once after a transient error. Zero means DefaultRetryDelay.
	RetryDelay time.Duration

	// OnFailure, when set, is called for every absorbed backend failure.
	OnFailure FailureFunc

	// Logger receives routing decisions and absorbed failures.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Router fans memory operations out across the storage tiers. Writes are
// routed by item kind, reads probe the tiers from fastest to most
// authoritative, and searches compose results from the tiers that index
// the requested kinds.
//
// A Router keeps working as long as one tier remains reachable. Failures
// of tiers it could route around are logged and reported through the
// failure callback rather than surfaced to the caller.
type Router struct {
	fast    memory.Backend
	vector  memory.Backend
	durable memory.Backend

	cache      *itemCache
	retryDelay time.Duration
	onFailure  FailureFunc
	logger     *slog.Logger
}

// New creates a Router over the given tiers.
func New(opts Options) (*Router, error) {
	if opts.Fast == nil && opts.Vector == nil && opts.Durable == nil {
		return nil, fmt.Errorf("at least one storage tier is required")
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Router{
		fast:       opts.Fast,
		vector:     opts.Vector,
		durable:    opts.Durable,
		retryDelay: opts.RetryDelay,
		onFailure:  opts.OnFailure,
		logger:     opts.Logger.With("component", component),
	}

	if opts.CacheSize >= 0 {
		r.cache = newItemCache(opts.CacheSize, opts.CacheTTL)
	}

	return r, nil
}

// Initialize prepares every configured tier. A tier that fails to
// initialize is marked unavailable and routed around from then on; the
// error is returned only when no tier survives.
func (r *Router) Initialize(ctx context.Context) error {
	var lastErr error

	for _, tier := range []*memory.Backend{&r.fast, &r.vector, &r.durable} {
		b := *tier
		if b == nil {
			continue
		}
		if err := b.Initialize(ctx); err != nil {
			r.logger.Warn("tier failed to initialize, routing around it",
				"backend", b.Name(), "error", err)
			lastErr = err
			*tier = nil
		}
	}

	if r.fast == nil && r.vector == nil && r.durable == nil {
		return memerr.New(component, "initialize", memerr.ErrCodeBackendUnavailable,
			"no storage tier available").WithCause(lastErr)
	}
	return nil
}

// Store routes a write by item kind:
//
//   - working: fast tier, durable when fast is unavailable
//   - episodic: fast tier, archived to durable when importance > 0.5
//   - semantic: vector tier, cached in fast as a secondary
//   - procedural: vector tier, always written to durable as the canonical copy
//
// The primary write must succeed; when the primary tier is down the next
// tier in the chain takes the write instead. Secondary writes are best
// effort except the procedural durable write, whose failure fails the
// operation. Writes are never retried.
func (r *Router) Store(ctx context.Context, item *memory.Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", memory.ErrInvalidItem)
	}
	if err := item.Validate(); err != nil {
		return err
	}

	var took memory.Backend
	var err error

	switch item.Kind {
	case memory.KindWorking:
		took, err = r.writeFirst(ctx, item, r.fast, r.durable)

	case memory.KindEpisodic:
		took, err = r.writeFirst(ctx, item, r.fast, r.durable)
		if err == nil && item.Importance > 0.5 {
			err = r.writeSecondary(ctx, item, r.durable, took, false)
		}

	case memory.KindSemantic:
		took, err = r.writeFirst(ctx, item, r.vector, r.durable)
		if err == nil {
			cacheTier := r.fast
			if cacheTier == nil {
				cacheTier = r.durable
			}
			err = r.writeSecondary(ctx, item, cacheTier, took, false)
		}

	case memory.KindProcedural:
		took, err = r.writeFirst(ctx, item, r.vector, r.durable)
		if err == nil {
			err = r.writeSecondary(ctx, item, r.durable, took, true)
		}

	default:
		return fmt.Errorf("%w: unroutable kind %q", memory.ErrInvalidItem, item.Kind)
	}

	// The id may have changed in some tier even when the operation
	// failed partway, so invalidate unconditionally.
	r.invalidate(item.ID)

	if err != nil {
		return err
	}

	r.logger.Debug("routed write",
		"id", item.ID, "kind", item.Kind, "persona", item.Persona, "tier", took.Name())
	return nil
}

// Retrieve fetches an item by ID, probing the local cache, then the tiers
// from fastest to most authoritative. A hit outside the fast tier is
// written back to it; every successful retrieve bumps the item's access
// counters and persists them to the tier that served it.
//
// Tier errors are routed around; the probe is retried once when every
// reachable tier failed transiently.
func (r *Router) Retrieve(ctx context.Context, id string) (*memory.Item, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", memory.ErrInvalidID)
	}

	if item, source, ok := r.cacheGet(id); ok {
		r.touch(ctx, item, source)
		r.cachePut(item, source)
		return item, nil
	}

	item, source, err := r.probe(ctx, id)
	if err != nil && transient(err) {
		if werr := wait(ctx, r.retryDelay); werr != nil {
			return nil, werr
		}
		item, source, err = r.probe(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	r.touch(ctx, item, source)
	if r.fast != nil && source != r.fast.Name() {
		if werr := r.fast.Store(ctx, item); werr != nil {
			r.absorb("write_back", r.fast.Name(), werr)
		}
	}
	r.cachePut(item, source)

	return item, nil
}

// Search composes results from the tiers that index the requested kinds:
// the vector tier first for semantic and procedural kinds, the fast
// tier's importance index for episodic and working kinds, and the durable
// store to top up short result sets. Duplicates keep their first
// occurrence, so vector hits outrank recency hits; the merged list is
// truncated to the query limit.
func (r *Router) Search(ctx context.Context, q memory.Query, persona memory.Persona) ([]memory.Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	results, err := r.gather(ctx, q, persona)
	if err != nil && transient(err) {
		if werr := wait(ctx, r.retryDelay); werr != nil {
			return nil, werr
		}
		results, err = r.gather(ctx, q, persona)
	}
	return results, err
}

// Delete removes an item from every tier and the cache. A tier failure
// does not stop the fan-out, but it does fail the operation: a surviving
// copy would resurrect through write-back on the next retrieve. The
// fan-out is retried once on transient errors.
func (r *Router) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", memory.ErrInvalidID)
	}

	err := r.deleteAll(ctx, id)
	if err != nil && transient(err) {
		if werr := wait(ctx, r.retryDelay); werr != nil {
			return werr
		}
		err = r.deleteAll(ctx, id)
	}
	return err
}

// Stats aggregates per-tier stats under "backends" plus the local cache
// counters under "cache". A tier that cannot report is represented by its
// error rather than failing the whole call.
func (r *Router) Stats(ctx context.Context) map[string]any {
	backends := make(map[string]any)
	for _, b := range r.tiers() {
		s, err := b.Stats(ctx)
		if err != nil {
			backends[b.Name()] = map[string]any{"error": err.Error()}
			continue
		}
		backends[b.Name()] = s
	}

	stats := map[string]any{"backends": backends}
	if r.cache != nil {
		stats["cache"] = r.cache.stats()
	}
	return stats
}

// Health probes every configured tier and returns the statuses keyed by
// backend name. Tiers dropped during Initialize do not appear.
func (r *Router) Health(ctx context.Context) map[string]types.HealthStatus {
	statuses := make(map[string]types.HealthStatus, 3)
	for _, b := range r.tiers() {
		statuses[b.Name()] = b.Health(ctx)
	}
	return statuses
}

// Close stops the cache janitor and closes every tier. The first error
// wins; remaining tiers are still closed.
func (r *Router) Close() error {
	if r.cache != nil {
		r.cache.close()
	}

	var firstErr error
	for _, b := range r.tiers() {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeFirst stores the item in the first tier of the chain that accepts
// it. It returns the tier that took the write so conditional secondaries
// can avoid writing the same tier twice.
func (r *Router) writeFirst(ctx context.Context, item *memory.Item, chain ...memory.Backend) (memory.Backend, error) {
	var lastErr error
	for _, b := range chain {
		if b == nil {
			continue
		}
		if err := b.Store(ctx, item); err != nil {
			lastErr = err
			r.absorb("store", b.Name(), err)
			continue
		}
		return b, nil
	}

	if lastErr != nil {
		return nil, memerr.New(component, "store", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("no tier accepted %s write", item.Kind)).WithCause(lastErr)
	}
	return nil, memerr.New(component, "store", memerr.ErrCodeBackendUnavailable,
		fmt.Sprintf("no tier available for %s write", item.Kind))
}

// writeSecondary performs a secondary write. Failures are absorbed unless
// the write is mandatory. A secondary that is missing or already took the
// primary write is skipped.
func (r *Router) writeSecondary(ctx context.Context, item *memory.Item, b, took memory.Backend, mandatory bool) error {
	if b == nil || b == took {
		return nil
	}

	err := b.Store(ctx, item)
	if err == nil {
		return nil
	}
	if mandatory {
		return memerr.New(component, "store", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("canonical %s write failed for %s item", b.Name(), item.Kind)).WithCause(err)
	}
	r.absorb("store", b.Name(), err)
	return nil
}

// probe checks the tiers in read order. A tier error is absorbed and the
// probe falls through; it surfaces only when no later tier has the item.
func (r *Router) probe(ctx context.Context, id string) (*memory.Item, string, error) {
	var tierErr error

	for _, b := range r.tiers() {
		item, err := b.Retrieve(ctx, id)
		if err == nil {
			return item, b.Name(), nil
		}
		if errors.Is(err, memory.ErrNotFound) {
			continue
		}
		tierErr = err
		r.absorb("retrieve", b.Name(), err)
	}

	if tierErr != nil {
		return nil, "", memerr.New(component, "retrieve", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("no tier could serve id %q", id)).WithCause(tierErr)
	}
	return nil, "", fmt.Errorf("%w: id %q", memory.ErrNotFound, id)
}

// gather runs one composition pass over the tiers for Search.
func (r *Router) gather(ctx context.Context, q memory.Query, persona memory.Persona) ([]memory.Result, error) {
	var (
		merged    []memory.Result
		seen      = make(map[string]struct{})
		consulted int
		failed    int
		tierErr   error
	)

	add := func(results []memory.Result) {
		for _, res := range results {
			if _, dup := seen[res.ID]; dup {
				continue
			}
			seen[res.ID] = struct{}{}
			merged = append(merged, res)
		}
	}

	search := func(b memory.Backend, sub memory.Query) {
		consulted++
		results, err := b.Search(ctx, sub, persona)
		if err != nil {
			failed++
			tierErr = err
			r.absorb("search", b.Name(), err)
			return
		}
		add(results)
	}

	if r.vector != nil {
		if sub, ok := kindSubset(q, memory.KindSemantic, memory.KindProcedural); ok {
			search(r.vector, sub)
		}
	}
	if r.fast != nil {
		if sub, ok := kindSubset(q, memory.KindEpisodic, memory.KindWorking); ok {
			search(r.fast, sub)
		}
	}
	if r.durable != nil && len(merged) < q.Limit {
		search(r.durable, q)
	}

	if consulted > 0 && failed == consulted && len(merged) == 0 {
		return nil, memerr.New(component, "search", memerr.ErrCodeBackendUnavailable,
			"every consulted tier failed").WithCause(tierErr)
	}

	if len(merged) > q.Limit {
		merged = merged[:q.Limit]
	}
	return merged, nil
}

// deleteAll removes the id from the cache and every tier.
func (r *Router) deleteAll(ctx context.Context, id string) error {
	r.invalidate(id)

	var lastErr error
	for _, b := range r.tiers() {
		if err := b.Delete(ctx, id); err != nil && !errors.Is(err, memory.ErrNotFound) {
			lastErr = err
			r.absorb("delete", b.Name(), err)
		}
	}

	if lastErr != nil {
		return memerr.New(component, "delete", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("delete of id %q incomplete", id)).WithCause(lastErr)
	}
	return nil
}

// touch records the successful recall on the item and writes the bumped
// counters back to the tier that served it. Access tracking is best
// effort and never fails a read.
func (r *Router) touch(ctx context.Context, item *memory.Item, source string) {
	item.Touch(time.Now().UTC())

	b := r.tier(source)
	if b == nil {
		return
	}
	if err := b.Store(ctx, item); err != nil {
		r.absorb("touch", source, err)
	}
}

// tiers returns the configured tiers in read order.
func (r *Router) tiers() []memory.Backend {
	tiers := make([]memory.Backend, 0, 3)
	for _, b := range []memory.Backend{r.fast, r.vector, r.durable} {
		if b != nil {
			tiers = append(tiers, b)
		}
	}
	return tiers
}

// tier resolves a backend by its name.
func (r *Router) tier(name string) memory.Backend {
	for _, b := range r.tiers() {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// absorb records a backend failure that did not fail the calling
// operation.
func (r *Router) absorb(op, backend string, err error) {
	r.logger.Warn("backend failure absorbed", "op", op, "backend", backend, "error", err)
	if r.onFailure != nil {
		r.onFailure(op, backend, err)
	}
}

func (r *Router) cacheGet(id string) (*memory.Item, string, bool) {
	if r.cache == nil {
		return nil, "", false
	}
	return r.cache.get(id)
}

func (r *Router) cachePut(item *memory.Item, source string) {
	if r.cache != nil {
		r.cache.put(item, source)
	}
}

func (r *Router) invalidate(id string) {
	if r.cache != nil {
		r.cache.remove(id)
	}
}

// kindSubset restricts the query to the given kinds, honoring any explicit
// kind filter the query already carries. The second return is false when
// nothing remains.
func kindSubset(q memory.Query, kinds ...memory.Kind) (memory.Query, bool) {
	sub := q
	sub.Kinds = nil
	for _, k := range kinds {
		if q.WantsKind(k) {
			sub.Kinds = append(sub.Kinds, k)
		}
	}
	return sub, len(sub.Kinds) > 0
}

// transient reports whether a backend error is worth another attempt.
// Misses and validation failures are final; everything else defers to the
// error's classification.
func transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, memory.ErrInvalidID),
		errors.Is(err, memory.ErrInvalidItem),
		errors.Is(err, memory.ErrInvalidQuery):
		return false
	}
	return memerr.Retryable(err)
}

// wait sleeps for the given delay unless the context ends first.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
