package knowledge

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Hit is one ranked retrieval result. Relevance is 1 minus distance,
// clamped to [0, 1]; higher is more relevant.
type Hit struct {
	Content   string
	Metadata  map[string]string
	Distance  float64
	Relevance float64
}

// Retriever is a query-construction layer over the vector store. Every
// method degrades to an empty result on failure; retrieval is advisory.
type Retriever struct {
	store    VectorStore
	defaultK int
}

// NewRetriever creates a retriever with the given default result count.
func NewRetriever(store VectorStore, defaultK int) *Retriever {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &Retriever{store: store, defaultK: defaultK}
}

// Retrieve runs a similarity query against one collection. k <= 0 applies
// the default; keys in filters with empty values are dropped rather than
// matched against the empty string.
func (r *Retriever) Retrieve(ctx context.Context, query, collection string, k int, filters map[string]string) []Hit {
	if k <= 0 {
		k = r.defaultK
	}

	filter := make(map[string]string, len(filters))
	for key, value := range filters {
		if value != "" {
			filter[key] = value
		}
	}

	resultSets := r.store.Query(ctx, collection, []string{query}, k, filter)
	if len(resultSets) == 0 || len(resultSets[0]) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(resultSets[0]))
	for _, raw := range resultSets[0] {
		hits = append(hits, Hit{
			Content:   raw.Content,
			Metadata:  raw.Metadata,
			Distance:  raw.Distance,
			Relevance: clampRelevance(1 - raw.Distance),
		})
	}

	log.Debug().
		Str("collection", collection).
		Int("hits", len(hits)).
		Msg("Retrieved documents")
	return hits
}

// ByLanguage retrieves documents filtered by programming language.
func (r *Retriever) ByLanguage(ctx context.Context, query, collection, language string, k int) []Hit {
	return r.Retrieve(ctx, query, collection, k, map[string]string{"language": language})
}

// ByCategory retrieves documents filtered by category (e.g. "security").
func (r *Retriever) ByCategory(ctx context.Context, query, collection, category string, k int) []Hit {
	return r.Retrieve(ctx, query, collection, k, map[string]string{"category": category})
}

// BestPractices retrieves best-practice documents, optionally narrowed to a
// language.
func (r *Retriever) BestPractices(ctx context.Context, query, language string, k int) []Hit {
	return r.Retrieve(ctx, query, CollectionBestPractices, k, map[string]string{
		"type":     "best_practice",
		"language": language,
	})
}

// CodePatterns retrieves code-pattern documents, optionally narrowed to a
// pattern type (e.g. "anti-pattern").
func (r *Retriever) CodePatterns(ctx context.Context, query, patternType string, k int) []Hit {
	return r.Retrieve(ctx, query, CollectionCodePatterns, k, map[string]string{
		"pattern_type": patternType,
	})
}

// ReviewExamples retrieves similar past review examples, optionally narrowed
// to an issue type.
func (r *Retriever) ReviewExamples(ctx context.Context, query, issueType string, k int) []Hit {
	return r.Retrieve(ctx, query, CollectionReviewExamples, k, map[string]string{
		"issue_type": issueType,
	})
}

func clampRelevance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
