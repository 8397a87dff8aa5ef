package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKnowledgeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDocumentIDDeterministic(t *testing.T) {
	a := documentID("content", "file.md")
	b := documentID("content", "file.md")
	c := documentID("content", "other.md")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestIndexAll(t *testing.T) {
	store := newTestStore(t)
	base := t.TempDir()

	writeKnowledgeFile(t, filepath.Join(base, CollectionBestPractices), "errors.md",
		"Wrap errors with context.\n\nNever ignore returned errors.")
	writeKnowledgeFile(t, filepath.Join(base, CollectionCodePatterns), "retry.md",
		"Retry with exponential backoff and a timeout.")
	// review_examples directory intentionally absent.

	ix := NewIndexer(store, base, 1000)
	require.NoError(t, ix.IndexAll(context.Background()))

	ctx := context.Background()
	bpCount, err := store.Count(ctx, CollectionBestPractices)
	require.NoError(t, err)
	assert.Equal(t, 1, bpCount)

	cpCount, err := store.Count(ctx, CollectionCodePatterns)
	require.NoError(t, err)
	assert.Equal(t, 1, cpCount)

	reCount, err := store.Count(ctx, CollectionReviewExamples)
	require.NoError(t, err)
	assert.Zero(t, reCount)

	results := store.Query(ctx, CollectionBestPractices, []string{"error"}, 5, nil)
	require.Len(t, results[0], 1)
	meta := results[0][0].Metadata
	assert.Equal(t, "errors.md", meta["source"])
	assert.Equal(t, "best_practice", meta["type"])
	assert.Equal(t, "0", meta["chunk_index"])
	assert.Equal(t, "1", meta["total_chunks"])
}

func TestIndexChunksLargeFiles(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()

	writeKnowledgeFile(t, dir, "big.md",
		"first paragraph about error handling\n\nsecond paragraph about retry logic\n\nthird paragraph about sql safety")

	ix := NewIndexer(store, dir, 40)
	require.NoError(t, ix.Index(context.Background(), dir, "c", nil))

	count, err := store.Count(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndexReRunDoesNotDuplicate(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	writeKnowledgeFile(t, dir, "a.md", "stable error content")

	ix := NewIndexer(store, dir, 1000)
	require.NoError(t, ix.Index(context.Background(), dir, "c", nil))
	require.NoError(t, ix.Index(context.Background(), dir, "c", nil))

	count, err := store.Count(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResetAndReindex(t *testing.T) {
	store := newTestStore(t)
	base := t.TempDir()
	dir := filepath.Join(base, CollectionBestPractices)
	writeKnowledgeFile(t, dir, "old.md", "old error content")

	ix := NewIndexer(store, base, 1000)
	require.NoError(t, ix.IndexAll(context.Background()))

	// Replace the knowledge tree and reset.
	require.NoError(t, os.Remove(filepath.Join(dir, "old.md")))
	writeKnowledgeFile(t, dir, "new.md", "new retry content")
	require.NoError(t, ix.ResetAndReindex(context.Background()))

	results := store.Query(context.Background(), CollectionBestPractices, []string{"retry"}, 5, nil)
	require.Len(t, results[0], 1)
	assert.Equal(t, "new.md", results[0][0].Metadata["source"])
}
