package chromem

import (
	"context"
	"fmt"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
)

// scored is an intermediate search hit, cloned into a SearchResult only
// after ranking and truncation.
type scored struct {
	id  string
	sim float64
	pos int // insertion position, the tie-breaker
}

// SearchByText embeds the query and returns up to limit records ranked by
// cosine similarity, descending, ties broken by insertion order. Equality
// filters are pushed down into the chromem index; filters with range
// operators fall back to a full scan with Go-side cosine scoring. A query
// that embeds to the zero vector matches nothing.
func (s *Store) SearchByText(ctx context.Context, collection, query string, limit int, filter storage.Filter) ([]storage.SearchResult, error) {
	queryVec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chromem: failed to embed query: %w", err)
	}
	if embedding.IsZero(queryVec) {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.get(collection)
	if col == nil {
		return nil, nil
	}

	var hits []scored
	if filter.EqualityOnly() {
		hits, err = s.searchIndex(ctx, col, queryVec, limit, filter)
		if err != nil {
			return nil, err
		}
	} else {
		hits = s.searchScan(col, queryVec, filter)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].sim != hits[j].sim {
			return hits[i].sim > hits[j].sim
		}
		return hits[i].pos < hits[j].pos
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]storage.SearchResult, 0, len(hits))
	for _, hit := range hits {
		out = append(out, storage.SearchResult{
			Record:     col.records[hit.id].Clone(),
			Similarity: hit.sim,
		})
	}
	return out, nil
}

// searchIndex runs the query through the chromem index with the filter
// pushed down as a where clause. chromem rejects nResults larger than the
// matching document count, so the exact candidate count is computed from the
// authoritative records first; the retry loop guards against drift between
// the two views.
func (s *Store) searchIndex(ctx context.Context, col *collection, queryVec []float32, limit int, filter storage.Filter) ([]scored, error) {
	candidates := 0
	for _, id := range col.order {
		rec := col.records[id]
		if filter.Matches(rec) && !embedding.IsZero(rec.Embedding) {
			candidates++
		}
	}
	if candidates == 0 {
		return nil, nil
	}

	n := limit
	if n <= 0 || n > candidates {
		n = candidates
	}

	where := whereClause(filter)
	var results []chromem.Result
	for ; n >= 1; n-- {
		raw, err := col.index.QueryEmbedding(ctx, queryVec, n, where, nil)
		if err == nil {
			results = raw
			break
		}
		if !isInsufficientResults(err) {
			return nil, fmt.Errorf("chromem: query failed: %w", err)
		}
		if n == 1 {
			return nil, nil
		}
	}

	positions := make(map[string]int, len(col.order))
	for i, id := range col.order {
		positions[id] = i
	}

	hits := make([]scored, 0, len(results))
	for _, res := range results {
		pos, ok := positions[res.ID]
		if !ok {
			continue
		}
		hits = append(hits, scored{id: res.ID, sim: clampSimilarity(float64(res.Similarity)), pos: pos})
	}
	return hits, nil
}

// searchScan scores every matching record directly. Zero-norm embeddings are
// skipped, matching the index path where they are never added.
func (s *Store) searchScan(col *collection, queryVec []float32, filter storage.Filter) []scored {
	var hits []scored
	for pos, id := range col.order {
		rec := col.records[id]
		if !filter.Matches(rec) {
			continue
		}
		if embedding.IsZero(rec.Embedding) {
			continue
		}
		hits = append(hits, scored{
			id:  id,
			sim: embedding.CosineSimilarity(queryVec, rec.Embedding),
			pos: pos,
		})
	}
	return hits
}

// whereClause converts an equality-only filter into chromem's where map.
// Returns nil for an empty filter.
func whereClause(filter storage.Filter) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	where := make(map[string]string, len(filter))
	for key, cond := range filter {
		if str, ok := cond.Value.(string); ok {
			where[key] = str
		}
	}
	return where
}

// isInsufficientResults reports whether the error is chromem's complaint
// about nResults exceeding the matching document count.
func isInsufficientResults(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

func clampSimilarity(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
