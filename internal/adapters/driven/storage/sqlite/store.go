package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/quire/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/quire/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

const (
	metaEmbeddingModel      = "embedding_model"
	metaEmbeddingDimensions = "embedding_dimensions"
)

// Store is a unified SQLite-based storage that provides access to
// the vector and page store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string

	// writeMu orders database writes with their in-memory index updates.
	writeMu sync.Mutex
	index   *memory.VectorStore
}

// NewStore creates a new SQLite store at the specified data directory and
// loads every stored embedding into the query index.
// If dataDir is empty, defaults to ~/.quire/data/quire.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".quire", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "quire.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:    db,
		path:  dbPath,
		index: memory.NewVectorStore(),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.load(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// VectorStore returns a VectorStore interface backed by this store.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// PageStore returns a PageStore interface backed by this store.
func (s *Store) PageStore() driven.PageStore {
	return &pageStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// load restores the bound profile and rebuilds the query index in rowid order.
func (s *Store) load(ctx context.Context) error {
	profile, err := s.readProfile(ctx)
	if err != nil {
		return err
	}
	if !profile.IsZero() {
		if err := s.index.Bind(ctx, profile); err != nil {
			return err
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, source_url, title, category, sequence_index, text, vector
		FROM embeddings ORDER BY rowid
	`)
	if err != nil {
		return fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var records []domain.EmbeddingRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&r.ChunkID, &r.Metadata.DocumentID, &r.Metadata.SourceURL,
			&r.Metadata.Title, &r.Metadata.Category, &r.Metadata.SequenceIndex, &r.Text, &blob); err != nil {
			return fmt.Errorf("scanning embedding: %w", err)
		}
		r.Vector = bytesToFloat32Slice(blob)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating embeddings: %w", err)
	}

	return s.index.Upsert(ctx, records)
}

func (s *Store) readProfile(ctx context.Context) (domain.StoreProfile, error) {
	var p domain.StoreProfile
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM store_meta WHERE key IN (?, ?)`,
		metaEmbeddingModel, metaEmbeddingDimensions)
	if err != nil {
		return p, fmt.Errorf("querying store meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return p, fmt.Errorf("scanning store meta: %w", err)
		}
		switch key {
		case metaEmbeddingModel:
			p.Model = value
		case metaEmbeddingDimensions:
			n, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("parsing %s: %w", key, err)
			}
			p.Dimensions = n
		}
	}
	return p, rows.Err()
}

// ==================== Vector Store ====================

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// Upsert validates the whole batch, writes it in one transaction and then
// applies it to the query index.
func (v *vectorStore) Upsert(ctx context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	s := v.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.index.Check(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, document_id, source_url, title, category, sequence_index, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			source_url = excluded.source_url,
			title = excluded.title,
			category = excluded.category,
			sequence_index = excluded.sequence_index,
			text = excluded.text,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		m := r.Metadata
		if _, err := stmt.ExecContext(ctx, r.ChunkID, m.DocumentID, m.SourceURL, m.Title, m.Category,
			m.SequenceIndex, r.Text, float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("saving embedding %s: %w", r.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", domain.ErrStoreUnavailable, err)
	}
	return s.index.Upsert(ctx, records)
}

// Query answers from the in-memory index.
func (v *vectorStore) Query(ctx context.Context, vector []float32, k int) (*domain.QueryResult, error) {
	return v.store.index.Query(ctx, vector, k)
}

// PruneDocument deletes the document's stale tail.
func (v *vectorStore) PruneDocument(ctx context.Context, documentID string, keep int) error {
	s := v.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE document_id = ? AND sequence_index >= ?", documentID, keep); err != nil {
		return fmt.Errorf("pruning document %s: %w", documentID, err)
	}
	return s.index.PruneDocument(ctx, documentID, keep)
}

// Count returns the number of stored records.
func (v *vectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting embeddings: %w", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

// Profile returns the bound embedding profile.
func (v *vectorStore) Profile() domain.StoreProfile {
	return v.store.index.Profile()
}

// Bind persists the profile on first use.
func (v *vectorStore) Bind(ctx context.Context, profile domain.StoreProfile) error {
	s := v.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.index.CanBind(profile); err != nil {
		return err
	}
	if !s.index.Profile().IsZero() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, value := range map[string]string{
		metaEmbeddingModel:      profile.Model,
		metaEmbeddingDimensions: strconv.Itoa(profile.Dimensions),
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO store_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("saving %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", domain.ErrStoreUnavailable, err)
	}
	// writeMu is held, so the index still accepts what CanBind accepted.
	return s.index.Bind(ctx, profile)
}

// Ping checks the database responds.
func (v *vectorStore) Ping(ctx context.Context) error {
	if err := v.store.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the database.
func (v *vectorStore) Close() error { return nil }

// ==================== Page Store ====================

// pageStore implements driven.PageStore.
type pageStore struct {
	store *Store
}

var _ driven.PageStore = (*pageStore)(nil)

// SavePage stores or replaces a page and clears its failure record.
func (p *pageStore) SavePage(ctx context.Context, page *domain.RawPage) error {
	if page == nil || page.URL == "" {
		return domain.ErrInvalidInput
	}
	tx, err := p.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	content := page.Content
	if content == nil {
		content = []byte{}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO raw_pages (url, content, content_type, status_code, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			content = excluded.content,
			content_type = excluded.content_type,
			status_code = excluded.status_code,
			fetched_at = excluded.fetched_at
	`, page.URL, content, page.ContentType, page.StatusCode, page.FetchedAt.UTC()); err != nil {
		return fmt.Errorf("saving page: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM crawl_failures WHERE url = ?", page.URL); err != nil {
		return fmt.Errorf("clearing failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetPage retrieves a page by URL.
func (p *pageStore) GetPage(ctx context.Context, url string) (*domain.RawPage, error) {
	var page domain.RawPage
	err := p.store.db.QueryRowContext(ctx, `
		SELECT url, content, content_type, status_code, fetched_at FROM raw_pages WHERE url = ?
	`, url).Scan(&page.URL, &page.Content, &page.ContentType, &page.StatusCode, &page.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting page: %w", err)
	}
	return &page, nil
}

// HasPage reports whether a page is stored.
func (p *pageStore) HasPage(ctx context.Context, url string) (bool, error) {
	var n int
	if err := p.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_pages WHERE url = ?", url).Scan(&n); err != nil {
		return false, fmt.Errorf("checking page: %w", err)
	}
	return n > 0, nil
}

// ListPageURLs returns stored URLs in lexical order.
func (p *pageStore) ListPageURLs(ctx context.Context) ([]string, error) {
	rows, err := p.store.db.QueryContext(ctx, "SELECT url FROM raw_pages ORDER BY url")
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var urls []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning page url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pages: %w", err)
	}
	return urls, nil
}

// RecordFailure replaces the failure recorded for the URL.
func (p *pageStore) RecordFailure(ctx context.Context, failure domain.FetchFailure) error {
	_, err := p.store.db.ExecContext(ctx, `
		INSERT INTO crawl_failures (url, attempts, error, failed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			attempts = excluded.attempts,
			error = excluded.error,
			failed_at = excluded.failed_at
	`, failure.URL, failure.Attempts, failure.Err, failure.FailedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}
	return nil
}

// ListFailures returns failures ordered by URL.
func (p *pageStore) ListFailures(ctx context.Context) ([]domain.FetchFailure, error) {
	rows, err := p.store.db.QueryContext(ctx,
		"SELECT url, attempts, error, failed_at FROM crawl_failures ORDER BY url")
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var out []domain.FetchFailure //nolint:prealloc // size unknown from query
	for rows.Next() {
		var f domain.FetchFailure
		if err := rows.Scan(&f.URL, &f.Attempts, &f.Err, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("scanning failure: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failures: %w", err)
	}
	return out, nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
