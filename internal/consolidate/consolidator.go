// Package consolidate implements the batch maintenance job that merges
// near-duplicate memories, archives related-but-distinct ones, and extracts
// recurring concepts into semantic memory.
//
// Clustering is single-link over pairwise cosine similarity: O(n²) per
// collection, acceptable because candidate sets are bounded to a few hundred
// records per run. All record access goes through the typed memory modules,
// never the vector store directly, so metadata invariants hold.
package consolidate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/pkg/types"
)

// Config holds the consolidation thresholds. The merge-boost formula and the
// archive-confidence rule are tunable policy, not fixed semantics; the
// defaults reproduce the standard behavior.
type Config struct {
	// SimilarityThreshold is the single-link clustering bound: a record
	// joins a cluster when its similarity to any member reaches it.
	SimilarityThreshold float64

	// MergeThreshold is the similarity to the cluster primary at which a
	// secondary is merged (deleted) rather than archived.
	MergeThreshold float64

	// MergeBoostStep and MergeBoostCap set the primary's importance boost
	// per run: min(MergeBoostCap, MergeBoostStep × merges).
	MergeBoostStep float64
	MergeBoostCap  float64

	// ArchiveMinMerges gates archiving: a cluster archives its outliers only
	// after producing at least this many merges.
	ArchiveMinMerges int

	// ArchiveFactor and ArchiveFloor control the importance reduction
	// applied to archived records.
	ArchiveFactor float64
	ArchiveFloor  float64

	// ConceptThreshold is the looser clustering bound used for concept
	// extraction; ConceptMinCluster is the minimum cluster size.
	ConceptThreshold  float64
	ConceptMinCluster int

	// ConceptMinImportance filters the episodic candidates considered for
	// concept extraction.
	ConceptMinImportance float64

	// PersonalMinGroup is the minimum size of a personal subtype group
	// before it is consolidated at all.
	PersonalMinGroup int

	// MaxCandidates bounds the records examined per collection per run.
	MaxCandidates int
}

// DefaultConfig returns the standard consolidation tuning.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:  0.85,
		MergeThreshold:       0.92,
		MergeBoostStep:       0.05,
		MergeBoostCap:        0.2,
		ArchiveMinMerges:     2,
		ArchiveFactor:        0.7,
		ArchiveFloor:         0.1,
		ConceptThreshold:     0.75,
		ConceptMinCluster:    3,
		ConceptMinImportance: 0.5,
		PersonalMinGroup:     3,
		MaxCandidates:        300,
	}
}

// Module is the typed-memory surface consolidation operates through.
type Module interface {
	Collection() string
	GetAll(ctx context.Context, limit int) ([]*types.MemoryRecord, error)
	UpdateMetadata(ctx context.Context, id string, meta types.Metadata) (bool, error)
	DeleteRecord(ctx context.Context, id string) (bool, error)
}

// ConceptSink receives extracted concepts.
type ConceptSink interface {
	StoreConcept(ctx context.Context, text, conceptName, category string, relatedConcepts []string, importance float64, tags []string) (string, error)
}

// CollectionReport summarizes one collection's consolidation pass.
type CollectionReport struct {
	Collection string `json:"collection"`
	Candidates int    `json:"candidates"` // Records examined
	Clusters   int    `json:"clusters"`   // Clusters of size ≥ 2 found
	Merged     int    `json:"merged"`     // Secondaries deleted into primaries
	Archived   int    `json:"archived"`   // Records archived in place
	Concepts   int    `json:"concepts"`   // Concepts extracted (episodic/semantic only)
}

// Report summarizes a full consolidation run.
type Report struct {
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
	Collections []CollectionReport `json:"collections"`
	Errors      []string           `json:"errors,omitempty"`
}

// TotalMerged returns the run's merge count across collections.
func (r *Report) TotalMerged() int {
	total := 0
	for _, c := range r.Collections {
		total += c.Merged
	}
	return total
}

// TotalArchived returns the run's archive count across collections.
func (r *Report) TotalArchived() int {
	total := 0
	for _, c := range r.Collections {
		total += c.Archived
	}
	return total
}

// Consolidator runs the merge/archive/extract pass over the typed memory
// modules.
type Consolidator struct {
	episodic Module
	semantic Module
	personal Module
	concepts ConceptSink
	cfg      Config
	logger   *log.Logger

	now func() time.Time
}

// New wires a consolidator over the episodic, semantic, and personal memory
// modules. The concept sink is usually the semantic module itself; nil
// disables concept extraction. Core memory is never consolidated.
func New(episodic, semantic, personal Module, concepts ConceptSink, cfg Config) *Consolidator {
	if cfg.SimilarityThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Consolidator{
		episodic: episodic,
		semantic: semantic,
		personal: personal,
		concepts: concepts,
		cfg:      cfg,
		logger:   log.Default(),
		now:      time.Now,
	}
}

// SetLogger replaces the consolidator's log destination.
func (c *Consolidator) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Run executes one consolidation pass over every eligible collection and
// returns the report. Per-collection failures are recorded in the report and
// do not stop the remaining collections.
func (c *Consolidator) Run(ctx context.Context) *Report {
	report := &Report{StartedAt: c.now().UTC()}

	for _, module := range []Module{c.episodic, c.semantic} {
		if module == nil {
			continue
		}
		cr, err := c.consolidateModule(ctx, module)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", module.Collection(), err))
			continue
		}
		if c.concepts != nil {
			n, err := c.extractConcepts(ctx, module)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s concepts: %v", module.Collection(), err))
			}
			cr.Concepts = n
		}
		report.Collections = append(report.Collections, cr)
	}

	if c.personal != nil {
		cr, err := c.consolidatePersonal(ctx)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", c.personal.Collection(), err))
		} else {
			report.Collections = append(report.Collections, cr)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	c.logger.Printf("consolidate: run finished in %v: %d merged, %d archived",
		report.Duration.Round(time.Millisecond), report.TotalMerged(), report.TotalArchived())
	return report
}

// ExtractConcepts runs only the concept-extraction pass over the episodic
// and semantic collections. Returns the number of concepts stored.
func (c *Consolidator) ExtractConcepts(ctx context.Context) (int, error) {
	if c.concepts == nil {
		return 0, fmt.Errorf("consolidate: no concept sink configured")
	}
	total := 0
	for _, module := range []Module{c.episodic, c.semantic} {
		if module == nil {
			continue
		}
		n, err := c.extractConcepts(ctx, module)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// consolidateModule runs the merge/archive pass over one collection.
func (c *Consolidator) consolidateModule(ctx context.Context, module Module) (CollectionReport, error) {
	cr := CollectionReport{Collection: module.Collection()}

	candidates, err := c.candidates(ctx, module)
	if err != nil {
		return cr, err
	}
	cr.Candidates = len(candidates)
	if len(candidates) < 2 {
		return cr, nil
	}

	clusters := clusterBySimilarity(candidates, c.cfg.SimilarityThreshold)
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		cr.Clusters++
		merged, archived, err := c.processCluster(ctx, module, cluster)
		if err != nil {
			return cr, err
		}
		cr.Merged += merged
		cr.Archived += archived
	}
	return cr, nil
}

// consolidatePersonal groups personal memories by subtype and refinement and
// consolidates each sufficiently large group separately, so a user's traits
// never merge into their preferences.
func (c *Consolidator) consolidatePersonal(ctx context.Context) (CollectionReport, error) {
	cr := CollectionReport{Collection: c.personal.Collection()}

	candidates, err := c.candidates(ctx, c.personal)
	if err != nil {
		return cr, err
	}
	cr.Candidates = len(candidates)

	groups := make(map[string][]*types.MemoryRecord)
	for _, rec := range candidates {
		key := rec.Metadata.UserID + "|" + rec.Metadata.Subtype + "|" + rec.Metadata.Refinement
		groups[key] = append(groups[key], rec)
	}

	for _, group := range groups {
		if len(group) < c.cfg.PersonalMinGroup {
			continue
		}
		for _, cluster := range clusterBySimilarity(group, c.cfg.SimilarityThreshold) {
			if len(cluster) < 2 {
				continue
			}
			cr.Clusters++
			merged, archived, err := c.processCluster(ctx, c.personal, cluster)
			if err != nil {
				return cr, err
			}
			cr.Merged += merged
			cr.Archived += archived
		}
	}
	return cr, nil
}

// candidates loads the bounded candidate set, excluding records that cannot
// be clustered: archived ones and those with degraded (zero) embeddings.
func (c *Consolidator) candidates(ctx context.Context, module Module) ([]*types.MemoryRecord, error) {
	records, err := module.GetAll(ctx, c.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	out := records[:0]
	for _, rec := range records {
		if rec.Metadata.Archived || embedding.IsZero(rec.Embedding) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// processCluster picks the primary, merges close secondaries into it, and
// archives the rest when the cluster merged confidently.
func (c *Consolidator) processCluster(ctx context.Context, module Module, cluster []*types.MemoryRecord) (merged, archived int, err error) {
	ordered := make([]*types.MemoryRecord, len(cluster))
	copy(ordered, cluster)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Metadata, ordered[j].Metadata
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return a.Timestamp.After(b.Timestamp)
	})
	primary := ordered[0]

	var mergedIDs []string
	var archiveCandidates []*types.MemoryRecord
	for _, rec := range ordered[1:] {
		sim := embedding.CosineSimilarity(primary.Embedding, rec.Embedding)
		if sim >= c.cfg.MergeThreshold {
			ok, err := module.DeleteRecord(ctx, rec.ID)
			if err != nil {
				return merged, archived, fmt.Errorf("failed to delete merged record %s: %w", rec.ID, err)
			}
			if ok {
				mergedIDs = append(mergedIDs, rec.ID)
				merged++
			}
		} else if sim >= c.cfg.SimilarityThreshold {
			archiveCandidates = append(archiveCandidates, rec)
		}
	}

	if merged > 0 {
		now := c.now().UTC()
		meta := primary.Metadata.Clone()
		boost := c.cfg.MergeBoostStep * float64(merged)
		if boost > c.cfg.MergeBoostCap {
			boost = c.cfg.MergeBoostCap
		}
		meta.Importance = types.ClampImportance(meta.Importance + boost)
		meta.MergedIDs = append(meta.MergedIDs, mergedIDs...)
		meta.MergedCount += merged
		meta.LastConsolidated = &now
		if _, err := module.UpdateMetadata(ctx, primary.ID, meta); err != nil {
			return merged, archived, fmt.Errorf("failed to update primary %s: %w", primary.ID, err)
		}
	}

	// Archive only when the cluster merged confidently. Archive candidates
	// are reduced in importance, never deleted.
	if merged >= c.cfg.ArchiveMinMerges {
		now := c.now().UTC()
		for _, rec := range archiveCandidates {
			meta := rec.Metadata.Clone()
			meta.Importance = meta.Importance * c.cfg.ArchiveFactor
			if meta.Importance < c.cfg.ArchiveFloor {
				meta.Importance = c.cfg.ArchiveFloor
			}
			meta.Archived = true
			meta.ArchiveTime = &now
			if _, err := module.UpdateMetadata(ctx, rec.ID, meta); err != nil {
				return merged, archived, fmt.Errorf("failed to archive record %s: %w", rec.ID, err)
			}
			archived++
		}
	}

	return merged, archived, nil
}

// clusterBySimilarity performs single-link clustering: a record joins the
// first cluster containing any member whose similarity reaches the
// threshold, otherwise it starts a new one.
func clusterBySimilarity(records []*types.MemoryRecord, threshold float64) [][]*types.MemoryRecord {
	var clusters [][]*types.MemoryRecord

next:
	for _, rec := range records {
		for i, cluster := range clusters {
			for _, member := range cluster {
				if embedding.CosineSimilarity(rec.Embedding, member.Embedding) >= threshold {
					clusters[i] = append(clusters[i], rec)
					continue next
				}
			}
		}
		clusters = append(clusters, []*types.MemoryRecord{rec})
	}
	return clusters
}
