package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/scrypster/strata/pkg/types"
)

// Concept extraction parameters.
const (
	// conceptMinWordLen excludes short function words from concept names.
	conceptMinWordLen = 4

	// conceptWordShare is the fraction of cluster members a word must
	// appear in to qualify for the concept name.
	conceptWordShare = 0.5

	// conceptNameWords is how many qualifying words form the concept name.
	conceptNameWords = 3

	// conceptImportance is the importance of extracted concept records.
	conceptImportance = 0.7
)

// extractConcepts re-clusters a module's candidates at the looser concept
// threshold and stores a semantic concept for each cluster of recurring
// content. Returns the number of concepts stored.
func (c *Consolidator) extractConcepts(ctx context.Context, module Module) (int, error) {
	candidates, err := c.candidates(ctx, module)
	if err != nil {
		return 0, err
	}
	important := candidates[:0]
	for _, rec := range candidates {
		if rec.Metadata.Importance >= c.cfg.ConceptMinImportance {
			important = append(important, rec)
		}
	}
	if len(important) < c.cfg.ConceptMinCluster {
		return 0, nil
	}

	stored := 0
	for i, cluster := range clusterBySimilarity(important, c.cfg.ConceptThreshold) {
		if len(cluster) < c.cfg.ConceptMinCluster {
			continue
		}
		name := conceptName(cluster)
		if name == "" {
			continue
		}

		// The cluster's most important member stands in for its content.
		exemplar := cluster[0]
		for _, rec := range cluster[1:] {
			if rec.Metadata.Importance > exemplar.Metadata.Importance {
				exemplar = rec
			}
		}

		text := fmt.Sprintf("Recurring theme across %d memories: %s", len(cluster), exemplar.Text)
		tags := []string{"extracted", "concept", fmt.Sprintf("cluster_%d", i)}
		if _, err := c.concepts.StoreConcept(ctx, text, name, "extracted_concept", nil, conceptImportance, tags); err != nil {
			return stored, fmt.Errorf("failed to store concept %q: %w", name, err)
		}
		stored++
	}
	return stored, nil
}

// conceptName derives a name from the words shared by at least half the
// cluster members: the top three by total frequency, joined with
// underscores. Returns "" when no word qualifies.
func conceptName(cluster []*types.MemoryRecord) string {
	memberCount := make(map[string]int) // word -> members containing it
	frequency := make(map[string]int)   // word -> total occurrences

	for _, rec := range cluster {
		seen := make(map[string]bool)
		for _, word := range tokenize(rec.Text) {
			frequency[word]++
			if !seen[word] {
				seen[word] = true
				memberCount[word]++
			}
		}
	}

	need := int(float64(len(cluster))*conceptWordShare + 0.5)
	if need < 1 {
		need = 1
	}
	var qualifying []string
	for word, members := range memberCount {
		if members >= need {
			qualifying = append(qualifying, word)
		}
	}
	if len(qualifying) == 0 {
		return ""
	}

	sort.Slice(qualifying, func(i, j int) bool {
		if frequency[qualifying[i]] != frequency[qualifying[j]] {
			return frequency[qualifying[i]] > frequency[qualifying[j]]
		}
		return qualifying[i] < qualifying[j]
	})
	if len(qualifying) > conceptNameWords {
		qualifying = qualifying[:conceptNameWords]
	}
	return strings.Join(qualifying, "_")
}

// tokenize lowercases the text and splits it into words of at least
// conceptMinWordLen letters or digits.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	words := fields[:0]
	for _, f := range fields {
		if len(f) >= conceptMinWordLen {
			words = append(words, f)
		}
	}
	return words
}
