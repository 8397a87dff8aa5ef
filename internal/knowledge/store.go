package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// QueryHit is one raw similarity match from the store. Distance is cosine
// distance in [0, 2]; lower is closer.
type QueryHit struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64
}

// VectorStore is the similarity-index capability the rest of the system
// depends on. Collections are lazily materialized namespaces: querying or
// upserting against a name that does not exist yet simply creates it.
type VectorStore interface {
	// Upsert adds or replaces documents in a collection. The three slices
	// must have equal lengths; the whole batch is written atomically.
	Upsert(ctx context.Context, collection string, documents []string, metadatas []map[string]string, ids []string) error

	// Query returns at most k hits per query text, ordered by ascending
	// distance. filter, when non-empty, restricts hits to documents whose
	// metadata matches every given key/value pair exactly. Backend failures
	// degrade to empty result sets: retrieval is advisory, never required.
	Query(ctx context.Context, collection string, queryTexts []string, k int, filter map[string]string) [][]QueryHit

	DeleteCollection(ctx context.Context, name string) error
	Count(ctx context.Context, collection string) (int, error)
	ListCollections(ctx context.Context) ([]string, error)
}

// SQLiteStore is a directory-backed VectorStore over modernc.org/sqlite.
// Embeddings are stored as little-endian float32 blobs and similarity is
// computed in-process, which keeps the store dependency-free of native code
// and is plenty for knowledge bases of a few thousand chunks.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder

	mu      sync.Mutex // guards writers
	writers map[string]*sync.Mutex
}

// OpenStore opens (or creates) the store under dir. Re-opening the same
// directory reconstitutes all previously written collections.
func OpenStore(dir string, embedder Embedder) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	path := filepath.Join(dir, "knowledge.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// modernc.org/sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY churn under concurrent indexing runs.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log.Info().Str("path", path).Msg("Opened knowledge store")

	return &SQLiteStore{
		db:       db,
		embedder: embedder,
		writers:  make(map[string]*sync.Mutex),
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			embedding  BLOB NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// collectionLock returns the writer mutex for one collection, creating it on
// first use. Writes to the same collection serialize; reads never lock.
func (s *SQLiteStore) collectionLock(collection string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.writers[collection]
	if !ok {
		m = &sync.Mutex{}
		s.writers[collection] = m
	}
	return m
}

// Upsert embeds and writes a batch of documents in a single transaction.
// Re-upserting an existing id replaces its content and metadata.
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, documents []string, metadatas []map[string]string, ids []string) error {
	if len(documents) != len(metadatas) || len(documents) != len(ids) {
		return fmt.Errorf("upsert length mismatch: %d documents, %d metadatas, %d ids",
			len(documents), len(metadatas), len(ids))
	}
	if len(documents) == 0 {
		return nil
	}

	embeddings, err := s.embedder.Embed(ctx, documents)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(embeddings) != len(documents) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(embeddings), len(documents))
	}

	lock := s.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (collection, id, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range documents {
		metaJSON, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", ids[i], err)
		}
		if _, err := stmt.ExecContext(ctx, collection, ids[i], documents[i], string(metaJSON), encodeVector(embeddings[i])); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", ids[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	log.Debug().
		Str("collection", collection).
		Int("documents", len(documents)).
		Msg("Upserted document batch")
	return nil
}

// Query runs a similarity search per query text. Any failure is logged and
// degraded to empty results so a broken index never blocks a review.
func (s *SQLiteStore) Query(ctx context.Context, collection string, queryTexts []string, k int, filter map[string]string) [][]QueryHit {
	results := make([][]QueryHit, len(queryTexts))
	if len(queryTexts) == 0 || k <= 0 {
		return results
	}

	queryVectors, err := s.embedder.Embed(ctx, queryTexts)
	if err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("Query embedding failed, returning empty results")
		return results
	}
	if len(queryVectors) != len(queryTexts) {
		log.Warn().Str("collection", collection).Msg("Embedder returned wrong vector count, returning empty results")
		return results
	}

	rows, err := s.loadCollection(ctx, collection, filter)
	if err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("Collection scan failed, returning empty results")
		return results
	}

	for qi, queryVector := range queryVectors {
		hits := make([]QueryHit, 0, len(rows))
		for _, row := range rows {
			hits = append(hits, QueryHit{
				ID:       row.id,
				Content:  row.content,
				Metadata: row.metadata,
				Distance: cosineDistance(queryVector, row.embedding),
			})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
		if len(hits) > k {
			hits = hits[:k]
		}
		results[qi] = hits
	}

	return results
}

type storedRow struct {
	id        string
	content   string
	metadata  map[string]string
	embedding []float32
}

func (s *SQLiteStore) loadCollection(ctx context.Context, collection string, filter map[string]string) ([]storedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata, embedding FROM documents WHERE collection = ?", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedRow
	for rows.Next() {
		var row storedRow
		var metaJSON string
		var blob []byte
		if err := rows.Scan(&row.id, &row.content, &metaJSON, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaJSON), &row.metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for %s: %w", row.id, err)
		}
		if !matchesFilter(row.metadata, filter) {
			continue
		}
		row.embedding = decodeVector(blob)
		out = append(out, row)
	}
	return out, rows.Err()
}

// matchesFilter applies exact-match AND semantics over all filter keys.
func matchesFilter(metadata, filter map[string]string) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// DeleteCollection removes a collection and all its documents.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	lock := s.collectionLock(name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	log.Info().Str("collection", name).Msg("Deleted collection")
	return nil
}

// Count returns the number of documents in a collection. A collection that
// was never written to counts zero rather than erroring.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", collection, err)
	}
	return n, nil
}

// ListCollections returns the names of all collections with documents.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// encodeVector packs a float32 vector into a little-endian blob.
func encodeVector(vector []float32) []byte {
	blob := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// decodeVector unpacks a little-endian blob into a float32 vector.
func decodeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineDistance returns 1 minus the cosine similarity of two vectors,
// clamped to [0, 2]. Mismatched or zero-norm vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}

	distance := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	if distance < 0 {
		return 0
	}
	if distance > 2 {
		return 2
	}
	return distance
}
