package knowledge

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// The three fixed knowledge collections.
const (
	CollectionBestPractices  = "best_practices"
	CollectionCodePatterns   = "code_patterns"
	CollectionReviewExamples = "review_examples"
)

// Collections lists every fixed collection name.
var Collections = []string{
	CollectionBestPractices,
	CollectionCodePatterns,
	CollectionReviewExamples,
}

// Indexer chunks markdown reference documents and loads them into the
// vector store.
type Indexer struct {
	store     VectorStore
	baseDir   string
	chunkSize int
}

// NewIndexer creates an indexer rooted at baseDir. Each fixed collection
// maps to the subdirectory of the same name.
func NewIndexer(store VectorStore, baseDir string, chunkSize int) *Indexer {
	return &Indexer{
		store:     store,
		baseDir:   baseDir,
		chunkSize: chunkSize,
	}
}

// documentID derives the deterministic id for a chunk. It is a pure function
// of content and source, so re-indexing identical content replaces rather
// than duplicates.
func documentID(content, source string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(content+source)))
}

// Index chunks every markdown file in directory and upserts the chunks into
// the named collection in one batch. A missing directory is a warning, not
// an error: indexing is best-effort over a configured knowledge tree.
func (ix *Indexer) Index(ctx context.Context, directory, collection string, extraMetadata map[string]string) error {
	if _, err := os.Stat(directory); os.IsNotExist(err) {
		log.Warn().Str("directory", directory).Msg("Knowledge directory not found, skipping")
		return nil
	}

	files, err := filepath.Glob(filepath.Join(directory, "*.md"))
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", directory, err)
	}

	var documents []string
	var metadatas []map[string]string
	var ids []string

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to read knowledge file, skipping")
			continue
		}

		source := filepath.Base(path)
		chunks := Chunk(string(raw), ix.chunkSize)

		for i, chunk := range chunks {
			metadata := map[string]string{
				"source":       source,
				"chunk_index":  strconv.Itoa(i),
				"total_chunks": strconv.Itoa(len(chunks)),
			}
			for k, v := range extraMetadata {
				metadata[k] = v
			}

			documents = append(documents, chunk)
			metadatas = append(metadatas, metadata)
			ids = append(ids, documentID(chunk, source))
		}

		log.Info().Str("file", source).Int("chunks", len(chunks)).Msg("Chunked knowledge file")
	}

	if len(documents) == 0 {
		return nil
	}

	if err := ix.store.Upsert(ctx, collection, documents, metadatas, ids); err != nil {
		return fmt.Errorf("failed to index %s: %w", collection, err)
	}

	log.Info().Str("collection", collection).Int("documents", len(documents)).Msg("Indexed collection")
	return nil
}

// IndexAll indexes the three fixed collections. A failure in one collection
// does not abort the others; all failures are joined into the returned error.
func (ix *Indexer) IndexAll(ctx context.Context) error {
	jobs := []struct {
		collection string
		typeTag    string
	}{
		{CollectionBestPractices, "best_practice"},
		{CollectionCodePatterns, "code_pattern"},
		{CollectionReviewExamples, "review_example"},
	}

	var errs []error
	for _, job := range jobs {
		dir := filepath.Join(ix.baseDir, job.collection)
		if err := ix.Index(ctx, dir, job.collection, map[string]string{"type": job.typeTag}); err != nil {
			log.Error().Err(err).Str("collection", job.collection).Msg("Collection indexing failed")
			errs = append(errs, err)
		}
	}

	for _, collection := range Collections {
		if count, err := ix.store.Count(ctx, collection); err == nil {
			log.Info().Str("collection", collection).Int("documents", count).Msg("Collection status")
		}
	}

	return errors.Join(errs...)
}

// ResetAndReindex deletes the three fixed collections, then reindexes.
// Destructive and non-atomic: a crash mid-way can leave collections empty.
func (ix *Indexer) ResetAndReindex(ctx context.Context) error {
	for _, collection := range Collections {
		if err := ix.store.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("failed to reset %s: %w", collection, err)
		}
	}
	return ix.IndexAll(ctx)
}
