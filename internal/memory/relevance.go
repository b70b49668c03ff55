package memory

import (
	"sort"
	"time"

	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// RetrievalWeights tunes GetRelevantMemories. The three weights combine
// similarity, recency, and importance into a single score; the threshold
// excludes low-importance records from the candidate pool up front.
type RetrievalWeights struct {
	// ImportanceThreshold is the minimum importance a record needs to enter
	// the candidate pool (0 disables the cut).
	ImportanceThreshold float64

	// RelevanceWeight scales the query similarity component.
	RelevanceWeight float64

	// RecencyWeight scales the recency component (normalized over the
	// candidate window).
	RecencyWeight float64

	// ImportanceWeight scales the record's importance component.
	ImportanceWeight float64

	// MaxResults is the result cap used when the caller passes no limit.
	MaxResults int
}

// DefaultRetrievalWeights returns the standard retrieval tuning.
func DefaultRetrievalWeights() RetrievalWeights {
	return RetrievalWeights{
		ImportanceThreshold: 0.5,
		RelevanceWeight:     0.5,
		RecencyWeight:       0.3,
		ImportanceWeight:    0.2,
		MaxResults:          10,
	}
}

// ScoreComponents breaks a relevance score into its factors, each in
// [0, 1].
type ScoreComponents struct {
	// Similarity is the cosine similarity to the query.
	Similarity float64

	// Recency is the record's position in the candidate time window
	// (1.0 = newest candidate, 0.0 = oldest).
	Recency float64

	// Importance is the record's stored importance.
	Importance float64
}

// RelevantMemory pairs a record with its weighted retrieval score.
type RelevantMemory struct {
	Record     *types.MemoryRecord
	Score      float64
	Components ScoreComponents
}

// rankByWeights turns search hits into weighted, sorted RelevantMemory
// entries. Recency is min-max normalized over the candidates; when all
// candidates share a timestamp every record gets full recency credit.
func rankByWeights(hits []storage.SearchResult, weights RetrievalWeights) []RelevantMemory {
	if len(hits) == 0 {
		return nil
	}

	oldest, newest := hits[0].Record.Metadata.Timestamp, hits[0].Record.Metadata.Timestamp
	for _, hit := range hits[1:] {
		ts := hit.Record.Metadata.Timestamp
		if ts.Before(oldest) {
			oldest = ts
		}
		if ts.After(newest) {
			newest = ts
		}
	}
	window := newest.Sub(oldest)

	ranked := make([]RelevantMemory, 0, len(hits))
	for _, hit := range hits {
		components := ScoreComponents{
			Similarity: hit.Similarity,
			Recency:    recencyScore(hit.Record.Metadata.Timestamp, oldest, window),
			Importance: hit.Record.Metadata.Importance,
		}
		score := weights.RelevanceWeight*components.Similarity +
			weights.RecencyWeight*components.Recency +
			weights.ImportanceWeight*components.Importance
		ranked = append(ranked, RelevantMemory{
			Record:     hit.Record,
			Score:      score,
			Components: components,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func recencyScore(ts, oldest time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 1.0
	}
	return float64(ts.Sub(oldest)) / float64(window)
}
