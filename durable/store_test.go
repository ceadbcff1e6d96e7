package durable

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ai/mnemo/memory"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(Options{
		Path:   filepath.Join(t.TempDir(), "mnemo.db"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func newItem(persona memory.Persona, kind memory.Kind, text string, importance float64) *memory.Item {
	return &memory.Item{
		ID:         uuid.New().String(),
		Persona:    persona,
		Kind:       kind,
		Content:    memory.TextContent(text),
		Importance: importance,
		CreatedAt:  time.Now().UTC(),
		LastAccess: time.Now().UTC(),
	}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestDurableStoreRetrieve(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	item := newItem(memory.PersonaHestia, memory.KindProcedural, "steps: 1) drain 2) deploy 3) verify", 0.85)
	item.Tags = []string{"runbook", "deploy"}
	item.Metadata = map[string]any{"service": "gateway"}
	item.AccessCount = 7
	item.Embedding = []float32{0.1, 0.2, 0.3}

	require.NoError(t, store.Store(ctx, item))

	got, err := store.Retrieve(ctx, item.ID)
	require.NoError(t, err)

	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, memory.PersonaHestia, got.Persona)
	assert.Equal(t, memory.KindProcedural, got.Kind)
	assert.Equal(t, item.Content.Text, got.Content.Text)
	assert.Equal(t, 0.85, got.Importance)
	assert.Equal(t, []string{"runbook", "deploy"}, got.Tags)
	assert.Equal(t, "gateway", got.Metadata["service"])
	assert.Equal(t, 7, got.AccessCount)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.WithinDuration(t, item.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestWorkingFallbackKeepsKind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	item := newItem(memory.PersonaAthena, memory.KindWorking, "scratch thought", 0.4)
	require.NoError(t, store.Store(ctx, item))

	// Working rows live in the episodic table but keep their kind.
	var n int
	err := store.db.QueryRow(
		"SELECT COUNT(*) FROM memories_episodic WHERE id = ? AND kind = 'working'",
		item.ID).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Retrieve(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.KindWorking, got.Kind)
}

func TestStoreKindChangeClearsStaleCopy(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	item := newItem(memory.PersonaArtemis, memory.KindWorking, "steps: profile then optimize", 0.8)
	require.NoError(t, store.Store(ctx, item))

	// Consolidation promotes the item under the same id.
	promoted := item.Clone()
	promoted.Kind = memory.KindProcedural
	require.NoError(t, store.Store(ctx, promoted))

	got, err := store.Retrieve(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.KindProcedural, got.Kind)

	var stale int
	err = store.db.QueryRow(
		"SELECT COUNT(*) FROM memories_episodic WHERE id = ?", item.ID).Scan(&stale)
	require.NoError(t, err)
	assert.Equal(t, 0, stale)
}

func TestDurableRetrieveNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Retrieve(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, memory.ErrNotFound)

	_, err = store.Retrieve(context.Background(), "")
	assert.ErrorIs(t, err, memory.ErrInvalidID)
}

func TestDurableSearchText(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	deploy := newItem(memory.PersonaHestia, memory.KindEpisodic, "the deploy on friday went fine", 0.6)
	incident := newItem(memory.PersonaHestia, memory.KindEpisodic, "database outage traced to dns", 0.9)

	require.NoError(t, store.Store(ctx, deploy))
	require.NoError(t, store.Store(ctx, incident))

	results, err := store.Search(ctx, memory.Query{Text: "Deploy"}, memory.PersonaHestia)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, deploy.ID, results[0].ID)
	assert.Equal(t, "durable", results[0].Source)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestDurableSearchTags(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tagged := newItem(memory.PersonaSeshat, memory.KindSemantic, "tagged fact", 0.5)
	tagged.Tags = []string{"glossary", "networking"}
	other := newItem(memory.PersonaSeshat, memory.KindSemantic, "untagged fact", 0.5)

	require.NoError(t, store.Store(ctx, tagged))
	require.NoError(t, store.Store(ctx, other))

	results, err := store.Search(ctx, memory.Query{
		Tags: []string{"glossary"},
	}, memory.PersonaSeshat)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tagged.ID, results[0].ID)
}

func TestDurableSearchKindSpansTables(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	working := newItem(memory.PersonaAthena, memory.KindWorking, "draft", 0.5)
	episodic := newItem(memory.PersonaAthena, memory.KindEpisodic, "event", 0.5)
	semantic := newItem(memory.PersonaAthena, memory.KindSemantic, "fact", 0.5)

	for _, item := range []*memory.Item{working, episodic, semantic} {
		require.NoError(t, store.Store(ctx, item))
	}

	t.Run("working only", func(t *testing.T) {
		results, err := store.Search(ctx, memory.Query{
			Kinds: []memory.Kind{memory.KindWorking},
		}, memory.PersonaAthena)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, working.ID, results[0].ID)
	})

	t.Run("episodic excludes working", func(t *testing.T) {
		results, err := store.Search(ctx, memory.Query{
			Kinds: []memory.Kind{memory.KindEpisodic},
		}, memory.PersonaAthena)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, episodic.ID, results[0].ID)
	})

	t.Run("all kinds", func(t *testing.T) {
		results, err := store.Search(ctx, memory.Query{}, memory.PersonaAthena)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})
}

func TestDurableSearchOrderingAndLimit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	older := newItem(memory.PersonaAthena, memory.KindEpisodic, "older but equal", 0.5)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newItem(memory.PersonaAthena, memory.KindEpisodic, "newer but equal", 0.5)
	top := newItem(memory.PersonaAthena, memory.KindEpisodic, "most important", 0.9)

	for _, item := range []*memory.Item{older, newer, top} {
		require.NoError(t, store.Store(ctx, item))
	}

	results, err := store.Search(ctx, memory.Query{}, memory.PersonaAthena)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, top.ID, results[0].ID)
	assert.Equal(t, newer.ID, results[1].ID, "ties break by recency")
	assert.Equal(t, older.ID, results[2].ID)

	limited, err := store.Search(ctx, memory.Query{Limit: 2}, memory.PersonaAthena)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDurableSearchMinImportance(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	weak := newItem(memory.PersonaAthena, memory.KindEpisodic, "weak", 0.2)
	strong := newItem(memory.PersonaAthena, memory.KindEpisodic, "strong", 0.8)

	require.NoError(t, store.Store(ctx, weak))
	require.NoError(t, store.Store(ctx, strong))

	results, err := store.Search(ctx, memory.Query{MinScore: 0.5}, memory.PersonaAthena)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, strong.ID, results[0].ID)
}

func TestDurableSearchPersonaIsolation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mine := newItem(memory.PersonaAthena, memory.KindEpisodic, "mine", 0.5)
	theirs := newItem(memory.PersonaBellona, memory.KindEpisodic, "theirs", 0.5)

	require.NoError(t, store.Store(ctx, mine))
	require.NoError(t, store.Store(ctx, theirs))

	results, err := store.Search(ctx, memory.Query{}, memory.PersonaAthena)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, mine.ID, results[0].ID)
}

func TestDurableDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	item := newItem(memory.PersonaAthena, memory.KindSemantic, "forget me", 0.5)
	require.NoError(t, store.Store(ctx, item))

	require.NoError(t, store.Delete(ctx, item.ID))

	_, err := store.Retrieve(ctx, item.ID)
	assert.ErrorIs(t, err, memory.ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, item.ID))

	err = store.Delete(ctx, "")
	assert.ErrorIs(t, err, memory.ErrInvalidID)
}

func TestDurableList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := newItem(memory.PersonaSeshat, memory.KindEpisodic, "important record", 0.9)
	second := newItem(memory.PersonaSeshat, memory.KindEpisodic, "minor record", 0.2)
	working := newItem(memory.PersonaSeshat, memory.KindWorking, "draft", 0.5)

	for _, item := range []*memory.Item{first, second, working} {
		require.NoError(t, store.Store(ctx, item))
	}

	items, err := store.List(ctx, memory.PersonaSeshat, memory.KindEpisodic)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)

	drafts, err := store.List(ctx, memory.PersonaSeshat, memory.KindWorking)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, working.ID, drafts[0].ID)
}

func TestDurableStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, newItem(memory.PersonaAthena, memory.KindEpisodic, "a", 0.5)))
	require.NoError(t, store.Store(ctx, newItem(memory.PersonaAthena, memory.KindWorking, "b", 0.5)))
	require.NoError(t, store.Store(ctx, newItem(memory.PersonaAthena, memory.KindSemantic, "c", 0.5)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, "durable", stats["backend"])
	assert.Equal(t, int64(3), stats["total"])

	counts, ok := stats["tables"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(2), counts["memories_episodic"])
	assert.Equal(t, int64(1), counts["memories_semantic"])
	assert.Equal(t, int64(0), counts["memories_procedural"])
}

func TestDurableHealth(t *testing.T) {
	store := setupTestStore(t)

	status := store.Health(context.Background())
	assert.True(t, status.IsHealthy())
	assert.Equal(t, store.path, status.Details["path"])
}

func TestDurableInitializeIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.Initialize(ctx))
}
