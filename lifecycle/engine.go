package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/pantheon-ai/mnemo/isolation"
	"github.com/pantheon-ai/mnemo/memory"
)

const component = "lifecycle"

// Consolidation policy. A working item is promoted when any of the
// three conditions holds; both numeric thresholds are strict.
const (
	// ConsolidateImportance promotes items more important than 0.7.
	ConsolidateImportance = 0.7

	// ConsolidateAccessCount promotes items recalled more than 5 times.
	ConsolidateAccessCount = 5

	// WorkingMaxAge is how long a promoted item may linger in working
	// memory before the sweep removes its fast-tier copy.
	WorkingMaxAge = time.Hour
)

// Default sweep intervals.
const (
	DefaultConsolidationInterval = 5 * time.Minute
	DefaultPruneInterval         = time.Hour
)

// Store is the write surface the engine promotes and prunes through.
// The hybrid router satisfies it.
type Store interface {
	Store(ctx context.Context, item *memory.Item) error
	Delete(ctx context.Context, id string) error
}

// Lister enumerates a persona's items of one kind. Each storage driver
// satisfies it for the kinds it holds.
type Lister interface {
	List(ctx context.Context, persona memory.Persona, kind memory.Kind) ([]*memory.Item, error)
}

// Deleter removes an item from a single tier. The engine uses it to
// purge stale working copies from the fast tier without fanning the
// delete out to the tiers holding the promoted item.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// Gate decides whether this instance may run a persona's loops. The
// lease manager satisfies it; a nil Gate always admits.
type Gate interface {
	Holding(persona memory.Persona) bool
}

// Options configures an Engine.
type Options struct {
	// Router routes promoted items and fans prune deletes out across
	// the tiers. Required.
	Router Store

	// Working lists each persona's working memory for consolidation:
	// the fast tier normally, the durable store when the fast tier is
	// down. Required.
	Working Lister

	// WorkingPurge removes consolidated items' working copies from the
	// fast tier. Leave nil when working memory lives in the durable
	// store, whose upsert already replaced the row.
	WorkingPurge Deleter

	// Episodic lists the long-term episodic archive for pruning,
	// normally the durable store.
	Episodic Lister

	// Semantic lists the semantic index for pruning, normally the
	// vector tier.
	Semantic Lister

	// Resolver supplies persona profiles: focus keywords for
	// consolidation and kind priorities for the forgetting curve.
	// A default resolver is created when nil.
	Resolver *isolation.Resolver

	// ConsolidationInterval and PruneInterval schedule the background
	// sweeps. Zero values use the defaults.
	ConsolidationInterval time.Duration
	PruneInterval         time.Duration

	// Gate restricts loops to the personas this instance holds the
	// writer lease for. Nil admits every persona.
	Gate Gate

	// OnConsolidated and OnPruned receive per-sweep counts, for metric
	// instruments. Either may be nil.
	OnConsolidated func(persona memory.Persona, promoted int)
	OnPruned       func(persona memory.Persona, pruned int)

	// Logger receives sweep events. Defaults to a JSON logger on stdout.
	Logger *slog.Logger
}

// Engine runs the memory lifecycle: consolidation sweeps promoting
// working items into long-term kinds, and pruning sweeps destroying
// items the forgetting curve has let go of. Each persona owns one
// goroutine per sweep type; sweeps for the same persona never overlap,
// and every sweep checks cancellation between items so shutdown is
// prompt.
type Engine struct {
	router       Store
	working      Lister
	workingPurge Deleter
	episodic     Lister
	semantic     Lister
	resolver     *isolation.Resolver
	gate         Gate
	logger       *slog.Logger

	consolidationInterval time.Duration
	pruneInterval         time.Duration
	onConsolidated        func(memory.Persona, int)
	onPruned              func(memory.Persona, int)

	// guards serializes manual and scheduled runs of the same sweep for
	// the same persona.
	guards sync.Map // "persona/sweep" -> *sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// New creates an Engine. It does not start the background loops; call
// Start, or drive sweeps manually with ConsolidateOnce and PruneOnce.
func New(opts Options) (*Engine, error) {
	if opts.Router == nil {
		return nil, fmt.Errorf("lifecycle: router is required")
	}
	if opts.Working == nil {
		return nil, fmt.Errorf("lifecycle: working lister is required")
	}

	if opts.ConsolidationInterval <= 0 {
		opts.ConsolidationInterval = DefaultConsolidationInterval
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if opts.Resolver == nil {
		opts.Resolver = isolation.NewResolver(isolation.Options{Logger: opts.Logger})
	}

	return &Engine{
		router:                opts.Router,
		working:               opts.Working,
		workingPurge:          opts.WorkingPurge,
		episodic:              opts.Episodic,
		semantic:              opts.Semantic,
		resolver:              opts.Resolver,
		gate:                  opts.Gate,
		logger:                opts.Logger.With("component", component),
		consolidationInterval: opts.ConsolidationInterval,
		pruneInterval:         opts.PruneInterval,
		onConsolidated:        opts.OnConsolidated,
		onPruned:              opts.OnPruned,
	}, nil
}

// Start launches the background sweeps: one consolidator and one pruner
// goroutine per persona. Starting twice is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.closed {
		return
	}
	e.started = true

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for _, profile := range e.resolver.Profiles() {
		persona := profile.Persona

		e.wg.Add(2)
		go e.loop(ctx, persona, "consolidate", e.consolidationInterval, e.ConsolidateOnce)
		go e.loop(ctx, persona, "prune", e.pruneInterval, e.PruneOnce)
	}

	e.logger.Info("lifecycle engine started",
		"consolidation_interval", e.consolidationInterval,
		"prune_interval", e.pruneInterval)
}

// Close stops the background loops and waits for in-flight sweeps to
// finish at their next item boundary. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.logger.Info("lifecycle engine stopped")
	return nil
}

// ConsolidateOnce runs one consolidation sweep for a persona and
// returns how many items were promoted. An item is promoted when its
// importance exceeds 0.7, its access count exceeds 5, or its content
// matches one of the persona's focus keywords; the promoted copy keeps
// its id and takes the kind the classifier infers. Promoted items older
// than WorkingMaxAge have their working copy purged from the fast tier.
//
// A sweep already running for the persona makes this call a no-op.
func (e *Engine) ConsolidateOnce(ctx context.Context, persona memory.Persona) (int, error) {
	guard := e.guard(persona, "consolidate")
	if !guard.TryLock() {
		return 0, nil
	}
	defer guard.Unlock()

	profile, err := e.resolver.Resolve(persona)
	if err != nil {
		return 0, err
	}

	items, err := e.working.List(ctx, persona, memory.KindWorking)
	if err != nil {
		return 0, fmt.Errorf("failed to list working memory: %w", err)
	}

	now := time.Now().UTC()
	promoted := 0

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return promoted, err
		}
		if !shouldConsolidate(item, profile) {
			continue
		}

		text := item.Content.Flatten()
		clone := item.Clone()
		clone.Kind = InferLongTerm(text)

		if err := e.router.Store(ctx, clone); err != nil {
			e.logger.Warn("promotion failed",
				"persona", persona, "id", item.ID, "kind", clone.Kind, "error", err)
			continue
		}
		promoted++
		e.logger.Debug("item promoted",
			"persona", persona, "id", item.ID, "kind", clone.Kind)

		if e.workingPurge != nil && item.Age(now) > WorkingMaxAge {
			if err := e.workingPurge.Delete(ctx, item.ID); err != nil {
				e.logger.Warn("working purge failed",
					"persona", persona, "id", item.ID, "error", err)
			}
		}
	}

	if promoted > 0 {
		e.logger.Info("consolidation sweep finished",
			"persona", persona, "scanned", len(items), "promoted", promoted)
	}
	if e.onConsolidated != nil {
		e.onConsolidated(persona, promoted)
	}
	return promoted, nil
}

// PruneOnce runs one forgetting-curve sweep for a persona and returns
// how many items were destroyed. Episodic items fall below retention
// 0.10, semantic items below 0.05; procedural knowledge is never pruned
// automatically, and working memory is left to its TTL.
//
// A sweep already running for the persona makes this call a no-op.
func (e *Engine) PruneOnce(ctx context.Context, persona memory.Persona) (int, error) {
	guard := e.guard(persona, "prune")
	if !guard.TryLock() {
		return 0, nil
	}
	defer guard.Unlock()

	profile, err := e.resolver.Resolve(persona)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	pruned := 0

	sources := []struct {
		lister Lister
		kind   memory.Kind
	}{
		{e.episodic, memory.KindEpisodic},
		{e.semantic, memory.KindSemantic},
	}

	for _, src := range sources {
		if src.lister == nil {
			continue
		}
		threshold, prunable := PruneThreshold(src.kind)
		if !prunable {
			continue
		}

		items, err := src.lister.List(ctx, persona, src.kind)
		if err != nil {
			e.logger.Warn("prune scan failed",
				"persona", persona, "kind", src.kind, "error", err)
			continue
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return pruned, err
			}

			retention := Retention(now, item, profile.PriorityFor(item.Kind))
			if retention >= threshold {
				continue
			}

			if err := e.router.Delete(ctx, item.ID); err != nil {
				e.logger.Warn("prune delete failed",
					"persona", persona, "id", item.ID, "error", err)
				continue
			}
			pruned++
			e.logger.Debug("item pruned",
				"persona", persona, "id", item.ID, "kind", item.Kind,
				"retention", retention)
		}
	}

	if pruned > 0 {
		e.logger.Info("prune sweep finished", "persona", persona, "pruned", pruned)
	}
	if e.onPruned != nil {
		e.onPruned(persona, pruned)
	}
	return pruned, nil
}

// loop runs one sweep on its interval until the engine closes. The
// first run is jittered so a fleet of personas does not sweep in
// lockstep, and the gate is consulted before every run so a lost writer
// lease pauses the persona without stopping the goroutine.
func (e *Engine) loop(ctx context.Context, persona memory.Persona, sweep string,
	interval time.Duration, run func(context.Context, memory.Persona) (int, error)) {
	defer e.wg.Done()

	jitter := time.Duration(rand.Int64N(int64(interval/10) + 1))
	timer := time.NewTimer(interval + jitter)
	defer timer.Stop()

	logger := e.logger.With("persona", persona, "sweep", sweep)
	logger.Debug("sweep loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("sweep loop stopped")
			return
		case <-timer.C:
		}

		if e.gate == nil || e.gate.Holding(persona) {
			if _, err := run(ctx, persona); err != nil && ctx.Err() == nil {
				logger.Warn("sweep failed", "error", err)
			}
		} else {
			logger.Debug("sweep skipped, writer lease not held")
		}

		timer.Reset(interval)
	}
}

// guard returns the mutex serializing one persona's sweep of one type.
func (e *Engine) guard(persona memory.Persona, sweep string) *sync.Mutex {
	key := string(persona) + "/" + sweep
	mu, _ := e.guards.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// shouldConsolidate applies the promotion conditions to one working
// item.
func shouldConsolidate(item *memory.Item, profile *isolation.Profile) bool {
	if item.Kind != memory.KindWorking {
		return false
	}
	if item.Importance > ConsolidateImportance {
		return true
	}
	if item.AccessCount > ConsolidateAccessCount {
		return true
	}
	return profile.MatchesFocus(item.Content.Flatten())
}
