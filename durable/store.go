package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pantheon-ai/mnemo/health"
	"github.com/pantheon-ai/mnemo/memerr"
	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/types"
)

// backendName identifies this driver in results, stats and errors.
const backendName = "durable"

// tables holds the three collection tables. Working items have no table
// of their own: they land in the episodic table with their kind column
// preserving the truth.
var tables = []string{
	"memories_episodic",
	"memories_semantic",
	"memories_procedural",
}

// Options configures the durable store.
type Options struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string

	// Logger receives structured logs. Defaults to a JSON logger on stdout.
	Logger *slog.Logger
}

// Store implements memory.Backend as the durable tier, the authoritative
// long-term record of every consolidated item.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ memory.Backend = (*Store)(nil)

// New opens (or creates) the durable database and ensures its schema.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("durable: database path cannot be empty")
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

	store := &Store{db: db, path: opts.Path, logger: logger}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// ensureSchema creates the collection tables and their indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	for _, table := range tables {
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			persona TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_access TEXT,
			access_count INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			metadata TEXT,
			embedding TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_%s_persona ON %s(persona);
		CREATE INDEX IF NOT EXISTS idx_%s_kind ON %s(kind);
		CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at);
		CREATE INDEX IF NOT EXISTS idx_%s_importance ON %s(importance);
		`, table, table, table, table, table, table, table, table, table)

		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return memerr.New(backendName, "initialize", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to create %s", table)).WithCause(err)
		}
	}
	return nil
}

// tableFor maps a kind to its collection table.
func tableFor(kind memory.Kind) string {
	switch kind {
	case memory.KindSemantic:
		return "memories_semantic"
	case memory.KindProcedural:
		return "memories_procedural"
	default:
		// episodic, and the working fallback
		return "memories_episodic"
	}
}

// Name returns the backend identifier.
func (s *Store) Name() string {
	return backendName
}

// Initialize verifies the database is usable and the schema exists.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return memerr.New(backendName, "initialize", memerr.ErrCodeBackendUnavailable,
			"database ping failed").WithCause(err)
	}
	return s.ensureSchema(ctx)
}

// Store upserts an item. The id is kept unique across all three tables
// in one transaction, so a consolidation that changed an item's kind
// leaves no stale copy behind.
func (s *Store) Store(ctx context.Context, item *memory.Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", memory.ErrInvalidItem)
	}
	if err := item.Validate(); err != nil {
		return err
	}

	contentJSON, err := json.Marshal(item.Content)
	if err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeInternal,
			"failed to marshal content").WithCause(err)
	}
	tagsJSON, _ := json.Marshal(item.Tags)
	metaJSON, _ := json.Marshal(item.Metadata)
	embeddingJSON, _ := json.Marshal(item.Embedding)

	target := tableFor(item.Kind)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
			"failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if table == target {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), item.ID); err != nil {
			return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to clear stale copy of %s", item.ID)).WithCause(err)
		}
	}

	query := fmt.Sprintf(`
	INSERT OR REPLACE INTO %s
		(id, persona, kind, content, importance, created_at, last_access, access_count, tags, metadata, embedding)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, target)

	_, err = tx.ExecContext(ctx, query,
		item.ID,
		item.Persona.String(),
		item.Kind.String(),
		string(contentJSON),
		item.Importance,
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
		item.LastAccess.UTC().Format(time.RFC3339Nano),
		item.AccessCount,
		string(tagsJSON),
		string(metaJSON),
		string(embeddingJSON),
	)
	if err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to write item %s", item.ID)).WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to commit item %s", item.ID)).WithCause(err)
	}

	return nil
}

const itemColumns = "id, persona, kind, content, importance, created_at, last_access, access_count, tags, metadata, embedding"

// scanItem reconstructs an item from a row of itemColumns.
func scanItem(rows *sql.Rows) (*memory.Item, error) {
	var (
		item          memory.Item
		persona       string
		kind          string
		contentJSON   string
		createdAt     string
		lastAccess    sql.NullString
		tagsJSON      sql.NullString
		metaJSON      sql.NullString
		embeddingJSON sql.NullString
	)

	if err := rows.Scan(&item.ID, &persona, &kind, &contentJSON,
		&item.Importance, &createdAt, &lastAccess, &item.AccessCount,
		&tagsJSON, &metaJSON, &embeddingJSON); err != nil {
		return nil, err
	}

	item.Persona = memory.Persona(persona)
	item.Kind = memory.Kind(kind)

	if err := json.Unmarshal([]byte(contentJSON), &item.Content); err != nil {
		return nil, err
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
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		json.Unmarshal([]byte(embeddingJSON.String), &item.Embedding)
	}

	return &item, nil
}

// Retrieve loads an item by id, checking each collection table.
func (s *Store) Retrieve(ctx context.Context, id string) (*memory.Item, error) {
	if id == "" {
		return nil, memory.ErrInvalidID
	}

	for _, table := range tables {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", itemColumns, table)

		rows, err := s.db.QueryContext(ctx, query, id)
		if err != nil {
			return nil, memerr.New(backendName, "retrieve", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to read item %s", id)).WithCause(err)
		}

		if rows.Next() {
			item, scanErr := scanItem(rows)
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

// Search filters by persona, kind, content text (LIKE), tag membership
// and minimum importance, ordered by importance then recency. Scores are
// descending match ranks.
func (s *Store) Search(ctx context.Context, q memory.Query, persona memory.Persona) ([]memory.Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = memory.Kinds()
	}

	// Group the requested kinds by the table that holds them. Working
	// and episodic rows share a table and differ in the kind column.
	kindsByTable := make(map[string][]memory.Kind)
	for _, kind := range kinds {
		table := tableFor(kind)
		kindsByTable[table] = append(kindsByTable[table], kind)
	}

	var items []*memory.Item
	for _, table := range tables {
		tableKinds, ok := kindsByTable[table]
		if !ok {
			continue
		}

		where := []string{"persona = ?"}
		args := []any{persona.String()}

		placeholders := make([]string, len(tableKinds))
		for i, kind := range tableKinds {
			placeholders[i] = "?"
			args = append(args, kind.String())
		}
		where = append(where, fmt.Sprintf("kind IN (%s)", strings.Join(placeholders, ", ")))

		if q.Text != "" {
			where = append(where, "LOWER(content) LIKE ?")
			args = append(args, "%"+strings.ToLower(q.Text)+"%")
		}

		for _, tag := range q.Tags {
			where = append(where, "tags LIKE ?")
			args = append(args, fmt.Sprintf("%%%q%%", tag))
		}

		if q.MinScore > 0 {
			where = append(where, "importance >= ?")
			args = append(args, q.MinScore)
		}

		query := fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s ORDER BY importance DESC, created_at DESC LIMIT ?",
			itemColumns, table, strings.Join(where, " AND "))
		args = append(args, q.Limit)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, memerr.New(backendName, "search", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to search %s", table)).WithCause(err)
		}

		for rows.Next() {
			item, scanErr := scanItem(rows)
			if scanErr != nil {
				continue
			}
			items = append(items, item)
		}
		rows.Close()
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Importance != items[j].Importance {
			return items[i].Importance > items[j].Importance
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}

	results := make([]memory.Result, len(items))
	for i, item := range items {
		results[i] = memory.Result{
			Item:   *item,
			Score:  1.0 / float64(i+1),
			Source: backendName,
		}
	}

	return results, nil
}

// List returns every item of a kind for a persona, ordered by descending
// importance. The lifecycle pruner scans collections through this.
func (s *Store) List(ctx context.Context, persona memory.Persona, kind memory.Kind) ([]*memory.Item, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE persona = ? AND kind = ? ORDER BY importance DESC, created_at DESC",
		itemColumns, tableFor(kind))

	rows, err := s.db.QueryContext(ctx, query, persona.String(), kind.String())
	if err != nil {
		return nil, memerr.New(backendName, "list", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to scan %s", tableFor(kind))).WithCause(err)
	}
	defer rows.Close()

	var items []*memory.Item
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			continue
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// Delete removes an item from all three tables. Absent ids are not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return memory.ErrInvalidID
	}

	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
		if _, err := s.db.ExecContext(ctx, query, id); err != nil {
			return memerr.New(backendName, "delete", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to delete item %s", id)).WithCause(err)
		}
	}

	return nil
}

// Stats reports per-table row counts.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	counts := make(map[string]int64)
	var total int64

	for _, table := range tables {
		var n int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, memerr.New(backendName, "stats", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to count %s", table)).WithCause(err)
		}
		counts[table] = n
		total += n
	}

	return map[string]any{
		"backend": backendName,
		"path":    s.path,
		"tables":  counts,
		"total":   total,
	}, nil
}

// Health combines a database ping with a check that the database file is
// still on disk.
func (s *Store) Health(ctx context.Context) types.HealthStatus {
	ping := types.NewHealthyStatus("database responding")
	if err := s.db.PingContext(ctx); err != nil {
		ping = types.NewUnhealthyStatus("database ping failed", map[string]any{
			"error": err.Error(),
		})
	}

	return health.Combine(ping, health.FileCheck(s.path)).WithDetail("path", s.path)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
