package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ai/mnemo/isolation"
	"github.com/pantheon-ai/mnemo/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore records the promotions and deletes the engine issues.
type fakeStore struct {
	mu       sync.Mutex
	stored   map[string]*memory.Item
	deleted  []string
	storeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{stored: make(map[string]*memory.Item)}
}

func (f *fakeStore) Store(ctx context.Context, item *memory.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored[item.ID] = item.Clone()
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) storedKind(id string) (memory.Kind, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.stored[id]
	if !ok {
		return "", false
	}
	return item.Kind, true
}

// fakeLister serves a fixed item set, filtered by persona and kind the
// way the real drivers do.
type fakeLister struct {
	items []*memory.Item
	err   error
}

func (f *fakeLister) List(ctx context.Context, persona memory.Persona, kind memory.Kind) ([]*memory.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*memory.Item
	for _, item := range f.items {
		if item.Persona == persona && item.Kind == kind {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

type fakePurge struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakePurge) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeGate struct{ hold bool }

func (f *fakeGate) Holding(memory.Persona) bool { return f.hold }

func workingItem(persona memory.Persona, text string, importance float64, accessCount int, age time.Duration) *memory.Item {
	now := time.Now().UTC()
	return &memory.Item{
		ID:          uuid.New().String(),
		Persona:     persona,
		Kind:        memory.KindWorking,
		Content:     memory.TextContent(text),
		Importance:  importance,
		CreatedAt:   now.Add(-age),
		LastAccess:  now.Add(-age),
		AccessCount: accessCount,
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	engine, err := New(opts)
	require.NoError(t, err)
	return engine
}

func TestNew_RequiresRouterAndWorking(t *testing.T) {
	_, err := New(Options{Working: &fakeLister{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router")

	_, err = New(Options{Router: newFakeStore()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "working")
}

func TestConsolidateOnce_PromotesByImportance(t *testing.T) {
	important := workingItem(memory.PersonaAthena, "met the platform team", 0.9, 0, time.Minute)
	dull := workingItem(memory.PersonaAthena, "lunch order", 0.1, 0, time.Minute)

	store := newFakeStore()
	engine := newTestEngine(t, Options{
		Router:  store,
		Working: &fakeLister{items: []*memory.Item{important, dull}},
	})

	promoted, err := engine.ConsolidateOnce(context.Background(), memory.PersonaAthena)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	// The promoted copy keeps its id and takes the classified kind;
	// unclassifiable content becomes an episode.
	kind, ok := store.storedKind(important.ID)
	require.True(t, ok)
	assert.Equal(t, memory.KindEpisodic, kind)

	_, ok = store.storedKind(dull.ID)
	assert.False(t, ok)
}

func TestConsolidateOnce_PromotesByAccessCount(t *testing.T) {
	hot := workingItem(memory.PersonaArtemis, "port table", 0.2, 6, time.Minute)
	warm := workingItem(memory.PersonaArtemis, "port table draft", 0.2, 5, time.Minute)

	store := newFakeStore()
	engine := newTestEngine(t, Options{
		Router:  store,
		Working: &fakeLister{items: []*memory.Item{hot, warm}},
	})

	promoted, err := engine.ConsolidateOnce(context.Background(), memory.PersonaArtemis)
	require.NoError(t, err)

	// The access threshold is strict: 6 promotes, 5 does not.
	assert.Equal(t, 1, promoted)
	_, ok := store.storedKind(hot.ID)
	assert.True(t, ok)
}

func TestConsolidateOnce_PromotesByFocusKeyword(t *testing.T) {
	// "architecture" is one of athena's focus keywords; importance and
	// access count are both below their thresholds.
	focus := workingItem(memory.PersonaAthena, "the steps of the new architecture review", 0.1, 0, time.Minute)

	store := newFakeStore()
	engine := newTestEngine(t, Options{
		Router:  store,
		Working: &fakeLister{items: []*memory.Item{focus}},
	})

	promoted, err := engine.ConsolidateOnce(context.Background(), memory.PersonaAthena)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	// "steps" classifies the promoted copy as procedural.
	kind, ok := store.storedKind(focus.ID)
	require.True(t, ok)
	assert.Equal(t, memory.KindProcedural, kind)
}

func TestConsolidateOnce_PurgesStaleWorkingCopies(t *testing.T) {
	stale := workingItem(memory.PersonaAthena, "stale", 0.9, 0, 2*time.Hour)
	fresh := workingItem(memory.PersonaAthena, "fresh", 0.9, 0, time.Minute)

	store := newFakeStore()
	purge := &fakePurge{}
	engine := newTestEngine(t, Options{
		Router:       store,
		Working:      &fakeLister{items: []*memory.Item{stale, fresh}},
		WorkingPurge: purge,
	})

	promoted, err := engine.ConsolidateOnce(context.Background(), memory.PersonaAthena)
	require.NoError(t, err)
	assert.Equal(t, 2, promoted)

	// Only the copy past WorkingMaxAge leaves the fast tier.
	assert.Equal(t, []string{stale.ID}, purge.deleted)
}

func TestConsolidateOnce_StoreFailureSkipsItem(t *testing.T) {
	item := workingItem(memory.PersonaAthena, "important", 0.9, 0, 2*time.Hour)

	store := newFakeStore()
	store.storeErr = context.DeadlineExceeded
	purge := &fakePurge{}
	engine := newTestEngine(t, Options{
		Router:       store,
		Working:      &fakeLister{items: []*memory.Item{item}},
		WorkingPurge: purge,
	})

	promoted, err := engine.ConsolidateOnce(context.Background(), memory.PersonaAthena)
	require.NoError(t, err)
	assert.Zero(t, promoted)

	// A failed promotion must not purge the only surviving copy.
	assert.Empty(t, purge.deleted)
}

func TestConsolidateOnce_OverlapIsNoOp(t *testing.T) {
	engine := newTestEngine(t, Options{
		Router:  newFakeStore(),
		Working: &fakeLister{},
	})

	guard := engine.guard(memory.PersonaAthena, "consolidate")
	guard.Lock()
	defer guard.Unlock()

	promoted, err := engine.ConsolidateOnce(context.Background(), memory.PersonaAthena)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}

func longTermItem(persona memory.Persona, kind memory.Kind, age time.Duration) *memory.Item {
	now := time.Now().UTC()
	return &memory.Item{
		ID:         uuid.New().String(),
		Persona:    persona,
		Kind:       kind,
		Content:    memory.TextContent("archived"),
		CreatedAt:  now.Add(-age),
		LastAccess: now.Add(-age),
	}
}

func TestPruneOnce_DestroysForgottenEpisodes(t *testing.T) {
	// seshat's episodic priority of 2 leaves a floor of 0.08, so a
	// 400-day untouched episode falls under the 0.10 threshold.
	ancient := longTermItem(memory.PersonaSeshat, memory.KindEpisodic, 400*24*time.Hour)
	recent := longTermItem(memory.PersonaSeshat, memory.KindEpisodic, 24*time.Hour)

	store := newFakeStore()
	engine := newTestEngine(t, Options{
		Router:   store,
		Working:  &fakeLister{},
		Episodic: &fakeLister{items: []*memory.Item{ancient, recent}},
	})

	pruned, err := engine.PruneOnce(context.Background(), memory.PersonaSeshat)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, []string{ancient.ID}, store.deleted)
}

func TestPruneOnce_SemanticThresholdIsLower(t *testing.T) {
	// Athena's semantic priority of 5 alone buys 0.2 of retention, so
	// even a long-dormant concept stays above the 0.05 floor.
	item := longTermItem(memory.PersonaAthena, memory.KindSemantic, 200*24*time.Hour)
	item.Importance = 0

	now := time.Now().UTC()
	require.GreaterOrEqual(t, Retention(now, item, 5), SemanticPruneThreshold)

	store := newFakeStore()
	engine := newTestEngine(t, Options{
		Router:   store,
		Working:  &fakeLister{},
		Semantic: &fakeLister{items: []*memory.Item{item}},
	})

	pruned, err := engine.PruneOnce(context.Background(), memory.PersonaAthena)
	require.NoError(t, err)
	assert.Zero(t, pruned)
	assert.Empty(t, store.deleted)
}

func TestPruneOnce_ScanFailureContinues(t *testing.T) {
	ancient := longTermItem(memory.PersonaSeshat, memory.KindEpisodic, 400*24*time.Hour)

	store := newFakeStore()
	engine := newTestEngine(t, Options{
		Router:   store,
		Working:  &fakeLister{},
		Episodic: &fakeLister{items: []*memory.Item{ancient}},
		Semantic: &fakeLister{err: context.DeadlineExceeded},
	})

	// A failing semantic scan must not abort the episodic pass.
	pruned, err := engine.PruneOnce(context.Background(), memory.PersonaSeshat)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
}

func TestEngine_StartRunsSweeps(t *testing.T) {
	item := workingItem(memory.PersonaAthena, "hot observation", 0.9, 0, time.Minute)

	var mu sync.Mutex
	consolidated := make(map[memory.Persona]int)

	engine := newTestEngine(t, Options{
		Router:                newFakeStore(),
		Working:               &fakeLister{items: []*memory.Item{item}},
		ConsolidationInterval: 10 * time.Millisecond,
		PruneInterval:         10 * time.Millisecond,
		OnConsolidated: func(p memory.Persona, n int) {
			mu.Lock()
			consolidated[p] += n
			mu.Unlock()
		},
	})

	engine.Start()
	defer engine.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return consolidated[memory.PersonaAthena] > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_GateBlocksSweeps(t *testing.T) {
	item := workingItem(memory.PersonaAthena, "hot observation", 0.9, 0, time.Minute)
	store := newFakeStore()

	engine := newTestEngine(t, Options{
		Router:                store,
		Working:               &fakeLister{items: []*memory.Item{item}},
		ConsolidationInterval: 5 * time.Millisecond,
		PruneInterval:         5 * time.Millisecond,
		Gate:                  &fakeGate{hold: false},
	})

	engine.Start()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, engine.Close())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.stored)
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	engine := newTestEngine(t, Options{
		Router:  newFakeStore(),
		Working: &fakeLister{},
	})

	engine.Start()
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	// Starting after close is a no-op rather than a restart.
	engine.Start()
	require.NoError(t, engine.Close())
}

func TestConsolidateOnce_UnknownPersonaInProduction(t *testing.T) {
	resolver := isolation.NewResolver(isolation.Options{
		Logger:     quietLogger(),
		Production: true,
	})
	engine := newTestEngine(t, Options{
		Router:   newFakeStore(),
		Working:  &fakeLister{},
		Resolver: resolver,
	})

	_, err := engine.ConsolidateOnce(context.Background(), memory.Persona("loki"))
	require.Error(t, err)
}
