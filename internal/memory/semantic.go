package memory

import (
	"context"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Semantic memory defaults.
const (
	defaultSemanticCategory   = "general"
	defaultSemanticImportance = 0.6
	defaultFactImportance     = 0.5
	defaultConceptImportance  = 0.6
	defaultRuleCategory       = "rules"
	defaultRuleImportance     = 0.7
)

// SemanticMemory stores facts, concepts, and rules: knowledge that is not
// tied to a point in time.
type SemanticMemory struct {
	base
}

// NewSemanticMemory creates the semantic memory module over the given store
// and embedding provider.
func NewSemanticMemory(store storage.VectorStore, provider embedding.Provider) *SemanticMemory {
	return &SemanticMemory{base: base{
		store:      store,
		provider:   provider,
		collection: storage.CollectionSemantic,
	}}
}

// AddRecord stores a semantic memory. Category defaults to "general",
// importance to 0.6, and subtype to "fact" when unset.
func (s *SemanticMemory) AddRecord(ctx context.Context, rec *types.MemoryRecord) (string, error) {
	rec.Type = types.TypeSemantic
	if rec.Metadata.Category == "" {
		rec.Metadata.Category = defaultSemanticCategory
	}
	if rec.Metadata.Importance == 0 {
		rec.Metadata.Importance = defaultSemanticImportance
	}
	if rec.Metadata.Subtype == "" {
		rec.Metadata.Subtype = types.SubtypeFact
	}
	return s.add(ctx, rec)
}

// StoreFact stores a factual statement. Source and tags are optional;
// importance defaults to 0.5.
func (s *SemanticMemory) StoreFact(ctx context.Context, text, category, source string, importance float64, tags []string) (string, error) {
	if category == "" {
		category = defaultSemanticCategory
	}
	if importance == 0 {
		importance = defaultFactImportance
	}
	rec := &types.MemoryRecord{
		Text: text,
		Type: types.TypeSemantic,
		Metadata: types.Metadata{
			Subtype:    types.SubtypeFact,
			Category:   category,
			Source:     source,
			Importance: importance,
			Tags:       tags,
		},
	}
	return s.add(ctx, rec)
}

// StoreConcept stores a concept definition under the given name. Related
// concept names and tags are optional; importance defaults to 0.6.
func (s *SemanticMemory) StoreConcept(ctx context.Context, text, conceptName, category string, relatedConcepts []string, importance float64, tags []string) (string, error) {
	if category == "" {
		category = defaultSemanticCategory
	}
	if importance == 0 {
		importance = defaultConceptImportance
	}
	rec := &types.MemoryRecord{
		Text: text,
		Type: types.TypeSemantic,
		Metadata: types.Metadata{
			Subtype:         types.SubtypeConcept,
			Category:        category,
			ConceptName:     conceptName,
			RelatedConcepts: relatedConcepts,
			Importance:      importance,
			Tags:            tags,
		},
	}
	return s.add(ctx, rec)
}

// StoreRule stores a rule or guideline under the given name. Category
// defaults to "rules" and importance to 0.7.
func (s *SemanticMemory) StoreRule(ctx context.Context, text, ruleName, category string, importance float64, tags []string) (string, error) {
	if category == "" {
		category = defaultRuleCategory
	}
	if importance == 0 {
		importance = defaultRuleImportance
	}
	rec := &types.MemoryRecord{
		Text: text,
		Type: types.TypeSemantic,
		Metadata: types.Metadata{
			Subtype:    types.SubtypeRule,
			Category:   category,
			Importance: importance,
			Tags:       tags,
			Extra:      map[string]any{"rule_name": ruleName},
		},
	}
	return s.add(ctx, rec)
}

// GetByCategory returns semantic memories in the given category, in
// insertion order.
func (s *SemanticMemory) GetByCategory(ctx context.Context, category string, limit int) ([]*types.MemoryRecord, error) {
	return s.SearchByMetadata(ctx, storage.Filter{"category": storage.Eq(category)}, limit)
}

// GetByTags returns semantic memories carrying any of the given tags, in
// insertion order.
func (s *SemanticMemory) GetByTags(ctx context.Context, tags []string, limit int) ([]*types.MemoryRecord, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	return s.SearchByMetadata(ctx, storage.Filter{"tags": storage.InStrings(tags)}, limit)
}

// GetConcept returns the stored concepts with the given name, in insertion
// order. Names are not unique; extraction may produce the same name twice.
func (s *SemanticMemory) GetConcept(ctx context.Context, conceptName string, limit int) ([]*types.MemoryRecord, error) {
	return s.SearchByMetadata(ctx, storage.Filter{"concept_name": storage.Eq(conceptName)}, limit)
}
