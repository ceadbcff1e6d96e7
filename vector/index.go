package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pantheon-ai/mnemo/health"
	"github.com/pantheon-ai/mnemo/memerr"
	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/types"
)

// backendName identifies this driver in results, stats and errors.
const backendName = "vector"

// Options configures the vector index.
type Options struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string

	// Embedder generates embeddings for items stored without one and for
	// query text. Defaults to the hash embedder at DefaultDimensions.
	Embedder Embedder

	// MinSimilarity is the floor below which similarity hits are dropped.
	// A query's MinScore raises the floor for that search.
	MinSimilarity float64

	// Logger receives structured logs. Defaults to a JSON logger on stdout.
	Logger *slog.Logger
}

// Index implements memory.Backend as the semantic tier: one SQLite table
// per kind holding documents and their embeddings, searched brute-force
// by cosine similarity.
type Index struct {
	db            *sql.DB
	path          string
	embedder      Embedder
	minSimilarity float64
	logger        *slog.Logger
}

var _ memory.Backend = (*Index)(nil)

// New opens (or creates) the index database and ensures its schema.
func New(opts Options) (*Index, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("vector: database path cannot be empty")
	}

	// Ensure directory exists
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	// NORMAL is safe under WAL and considerably faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	embedder := opts.Embedder
	if embedder == nil {
		embedder = NewHashEmbedder(DefaultDimensions)
	}

	idx := &Index{
		db:            db,
		path:          opts.Path,
		embedder:      embedder,
		minSimilarity: opts.MinSimilarity,
		logger:        logger,
	}

	if err := idx.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return idx, nil
}

// ensureSchema creates the per-kind tables.
func (x *Index) ensureSchema(ctx context.Context) error {
	for _, kind := range memory.Kinds() {
		table := tableFor(kind)
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			persona TEXT NOT NULL,
			content TEXT NOT NULL,
			document TEXT NOT NULL,
			embedding TEXT,
			importance REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_access TEXT,
			access_count INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_%s_persona ON %s(persona);
		`, table, table, table)

		if _, err := x.db.ExecContext(ctx, schema); err != nil {
			return memerr.New(backendName, "initialize", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to create %s", table)).WithCause(err)
		}
	}
	return nil
}

// tableFor maps a kind to its collection table. Kinds are a closed enum,
// so interpolation is safe.
func tableFor(kind memory.Kind) string {
	return "vectors_" + kind.String()
}

// Name returns the backend identifier.
func (x *Index) Name() string {
	return backendName
}

// Initialize verifies the database is usable and the schema exists.
func (x *Index) Initialize(ctx context.Context) error {
	if err := x.db.PingContext(ctx); err != nil {
		return memerr.New(backendName, "initialize", memerr.ErrCodeBackendUnavailable,
			"database ping failed").WithCause(err)
	}
	return x.ensureSchema(ctx)
}

// Store upserts an item into its kind's collection, embedding the
// document lazily when the item carries no vector.
func (x *Index) Store(ctx context.Context, item *memory.Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", memory.ErrInvalidItem)
	}
	if err := item.Validate(); err != nil {
		return err
	}

	document := item.Content.Flatten()

	embedding := item.Embedding
	if len(embedding) == 0 {
		vec, err := x.embedder.Embed(ctx, document)
		if err != nil {
			return memerr.New(backendName, "store", memerr.ErrCodeInternal,
				"failed to embed document").WithCause(err)
		}
		embedding = vec
	}

	contentJSON, err := json.Marshal(item.Content)
	if err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeInternal,
			"failed to marshal content").WithCause(err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeInternal,
			"failed to marshal embedding").WithCause(err)
	}
	tagsJSON, _ := json.Marshal(item.Tags)
	metaJSON, _ := json.Marshal(item.Metadata)

	query := fmt.Sprintf(`
	INSERT OR REPLACE INTO %s
		(id, persona, content, document, embedding, importance, created_at, last_access, access_count, tags, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableFor(item.Kind))

	_, err = x.db.ExecContext(ctx, query,
		item.ID,
		item.Persona.String(),
		string(contentJSON),
		document,
		string(embeddingJSON),
		item.Importance,
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
		item.LastAccess.UTC().Format(time.RFC3339Nano),
		item.AccessCount,
		string(tagsJSON),
		string(metaJSON),
	)
	if err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to write item %s", item.ID)).WithCause(err)
	}

	return nil
}

const itemColumns = "id, persona, content, embedding, importance, created_at, last_access, access_count, tags, metadata"

// scanItem reconstructs an item from a row of itemColumns. The kind comes
// from the table the row was read from. It also returns the stored
// embedding for similarity scoring.
func scanItem(rows *sql.Rows, kind memory.Kind) (*memory.Item, []float32, error) {
	var (
		item          memory.Item
		persona       string
		contentJSON   string
		embeddingJSON sql.NullString
		createdAt     string
		lastAccess    sql.NullString
		tagsJSON      sql.NullString
		metaJSON      sql.NullString
	)

	if err := rows.Scan(&item.ID, &persona, &contentJSON, &embeddingJSON,
		&item.Importance, &createdAt, &lastAccess, &item.AccessCount,
		&tagsJSON, &metaJSON); err != nil {
		return nil, nil, err
	}

	item.Kind = kind
	item.Persona = memory.Persona(persona)

	if err := json.Unmarshal([]byte(contentJSON), &item.Content); err != nil {
		return nil, nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		item.CreatedAt = t
	}
	if lastAccess.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAccess.String); err == nil {
			item.LastAccess = t
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &item.Tags)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		json.Unmarshal([]byte(metaJSON.String), &item.Metadata)
	}

	var embedding []float32
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		json.Unmarshal([]byte(embeddingJSON.String), &embedding)
	}
	item.Embedding = embedding

	return &item, embedding, nil
}

// Retrieve loads an item by id, checking each kind's collection.
func (x *Index) Retrieve(ctx context.Context, id string) (*memory.Item, error) {
	if id == "" {
		return nil, memory.ErrInvalidID
	}

	for _, kind := range memory.Kinds() {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", itemColumns, tableFor(kind))

		rows, err := x.db.QueryContext(ctx, query, id)
		if err != nil {
			return nil, memerr.New(backendName, "retrieve", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to read item %s", id)).WithCause(err)
		}

		if rows.Next() {
			item, _, scanErr := scanItem(rows, kind)
			rows.Close()
			if scanErr != nil {
				return nil, memerr.New(backendName, "retrieve", memerr.ErrCodeInternal,
					fmt.Sprintf("corrupt row for item %s", id)).WithCause(scanErr)
			}
			return item, nil
		}
		rows.Close()
	}

	return nil, fmt.Errorf("%w: id %q", memory.ErrNotFound, id)
}

// Search embeds the query text and brute-forces cosine similarity over
// the persona's rows in each requested collection. Without query text it
// degrades to an importance-ordered scan. Hits below the similarity
// floor are dropped.
func (x *Index) Search(ctx context.Context, q memory.Query, persona memory.Persona) ([]memory.Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = memory.Kinds()
	}

	var queryVec []float32
	if q.Text != "" {
		vec, err := x.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, memerr.New(backendName, "search", memerr.ErrCodeInternal,
				"failed to embed query").WithCause(err)
		}
		queryVec = vec
	}

	floor := x.minSimilarity
	if q.MinScore > floor {
		floor = q.MinScore
	}

	var results []memory.Result
	for _, kind := range kinds {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE persona = ?", itemColumns, tableFor(kind))

		rows, err := x.db.QueryContext(ctx, query, persona.String())
		if err != nil {
			return nil, memerr.New(backendName, "search", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to scan %s", tableFor(kind))).WithCause(err)
		}

		for rows.Next() {
			item, embedding, scanErr := scanItem(rows, kind)
			if scanErr != nil {
				continue
			}
			if !q.Matches(item) {
				continue
			}

			score := item.Importance
			if queryVec != nil {
				if len(embedding) == 0 {
					continue
				}
				sim, simErr := CosineSimilarity(queryVec, embedding)
				if simErr != nil {
					// Dimension drift, e.g. the embedder changed width.
					continue
				}
				score = sim
			}

			if score < floor {
				continue
			}

			results = append(results, memory.Result{
				Item:   *item,
				Score:  score,
				Source: backendName,
			})
		}
		rows.Close()
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results, nil
}

// List returns every item of a kind for a persona, ordered by descending
// importance. The lifecycle pruner scans collections through this.
func (x *Index) List(ctx context.Context, persona memory.Persona, kind memory.Kind) ([]*memory.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE persona = ? ORDER BY importance DESC, created_at DESC",
		itemColumns, tableFor(kind))

	rows, err := x.db.QueryContext(ctx, query, persona.String())
	if err != nil {
		return nil, memerr.New(backendName, "list", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to scan %s", tableFor(kind))).WithCause(err)
	}
	defer rows.Close()

	var items []*memory.Item
	for rows.Next() {
		item, _, scanErr := scanItem(rows, kind)
		if scanErr != nil {
			continue
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Delete removes an item from every collection. Absent ids are not an
// error.
func (x *Index) Delete(ctx context.Context, id string) error {
	if id == "" {
		return memory.ErrInvalidID
	}

	for _, kind := range memory.Kinds() {
		query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", tableFor(kind))
		if _, err := x.db.ExecContext(ctx, query, id); err != nil {
			return memerr.New(backendName, "delete", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to delete item %s", id)).WithCause(err)
		}
	}

	return nil
}

// Stats reports per-collection row counts and the embedder in use.
func (x *Index) Stats(ctx context.Context) (map[string]any, error) {
	kinds := make(map[string]int64)
	var total int64

	for _, kind := range memory.Kinds() {
		var n int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", tableFor(kind))
		if err := x.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, memerr.New(backendName, "stats", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to count %s", tableFor(kind))).WithCause(err)
		}
		kinds[kind.String()] = n
		total += n
	}

	return map[string]any{
		"backend":    backendName,
		"path":       x.path,
		"embedder":   x.embedder.Name(),
		"dimensions": x.embedder.Dimensions(),
		"kinds":      kinds,
		"total":      total,
	}, nil
}

// Health combines a database ping with a check that the index file is
// still on disk.
func (x *Index) Health(ctx context.Context) types.HealthStatus {
	ping := types.NewHealthyStatus("database responding")
	if err := x.db.PingContext(ctx); err != nil {
		ping = types.NewUnhealthyStatus("database ping failed", map[string]any{
			"error": err.Error(),
		})
	}

	return health.Combine(ping, health.FileCheck(x.path)).WithDetail("path", x.path)
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}
