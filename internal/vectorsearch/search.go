package vectorsearch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tphakala/echofind/internal/embedding"
	"github.com/tphakala/echofind/internal/errors"
	"github.com/tphakala/echofind/internal/logging"
	"github.com/tphakala/echofind/internal/observability/metrics"
)

// Match is one corpus clip with its similarity to the query set.
type Match struct {
	ID         uint
	Similarity float64
}

// Searcher performs top-K similarity search over an embedding corpus.
// It is a pure query layer: it never mutates the corpus.
type Searcher struct {
	corpus  embedding.Corpus
	log     *slog.Logger
	metrics *metrics.SearchMetrics
}

// New creates a Searcher over the given corpus.
func New(corpus embedding.Corpus) *Searcher {
	log := logging.ForService("vectorsearch")
	if log == nil {
		log = slog.Default().With("service", "vectorsearch")
	}
	return &Searcher{corpus: corpus, log: log}
}

// SetMetrics attaches a metrics collector to the searcher.
func (s *Searcher) SetMetrics(m *metrics.SearchMetrics) {
	s.metrics = m
}

// Search returns the corpus clips most similar to any of the query embeddings.
//
// Multiple query embeddings come from sliding-window reference sounds: a clip
// matches if it matches any window, so its reported similarity is the maximum
// over all queries. Results below minSimilarity are dropped before ranking,
// then sorted by similarity descending with ties broken by ascending clip id,
// and finally capped to topK entries.
func (s *Searcher) Search(ctx context.Context, queries [][]float64, filter embedding.ScopeFilter, topK int, minSimilarity float64) ([]Match, error) {
	if len(queries) == 0 {
		return nil, errors.Newf("search requires at least one query embedding").
			Component("vectorsearch").
			Category(errors.CategoryValidation).
			Build()
	}

	dim := s.corpus.Dimension()
	for i, q := range queries {
		if len(q) != dim {
			return nil, errors.Newf("%w: query %d has dimension %d, corpus has %d",
				ErrDimensionMismatch, i, len(q), dim).
				Component("vectorsearch").
				Category(errors.CategoryDimensionMismatch).
				Context("query_index", i).
				Build()
		}
	}

	start := time.Now()

	ids, err := s.corpus.List(ctx, filter)
	if err != nil {
		return nil, errors.New(err).
			Component("vectorsearch").
			Category(errors.CategoryVectorSearch).
			Context("operation", "corpus_list").
			Build()
	}

	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vector, err := s.corpus.Embedding(ctx, id)
		if err != nil {
			return nil, errors.New(err).
				Component("vectorsearch").
				Category(errors.CategoryVectorSearch).
				Context("clip_id", id).
				Build()
		}

		best := -1.0
		for _, q := range queries {
			sim, err := CosineSimilarity(q, vector)
			if err != nil {
				return nil, err
			}
			if sim > best {
				best = sim
			}
		}

		if best >= minSimilarity {
			matches = append(matches, Match{ID: id, Similarity: best})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	if s.metrics != nil {
		s.metrics.RecordSearch(scopeLabel(filter), time.Since(start).Seconds(), len(matches), nil)
	}

	s.log.Debug("similarity search completed",
		"queries", len(queries),
		"candidates", len(ids),
		"matches", len(matches),
		"min_similarity", minSimilarity,
		"duration_ms", time.Since(start).Milliseconds())

	return matches, nil
}

// scopeLabel keeps metric label cardinality low: the scope kind, not its ids.
func scopeLabel(filter embedding.ScopeFilter) string {
	switch {
	case len(filter.DatasetIDs) > 0:
		return "dataset"
	case len(filter.RecordingIDs) > 0:
		return "recording"
	default:
		return "all"
	}
}

// Score computes the max-over-queries similarity for a single clip, reusing
// the same aggregation rule as Search. Used when re-ranking an existing pool.
func (s *Searcher) Score(ctx context.Context, queries [][]float64, id uint) (float64, error) {
	vector, err := s.corpus.Embedding(ctx, id)
	if err != nil {
		return 0, err
	}

	best := -1.0
	for _, q := range queries {
		sim, err := CosineSimilarity(q, vector)
		if err != nil {
			return 0, err
		}
		if sim > best {
			best = sim
		}
	}
	return best, nil
}
