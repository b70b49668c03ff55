// Package types defines the shared data model for the strata memory
// subsystem: memory records with typed metadata, backup catalog entries,
// reflection documents, and the result objects returned across the
// subsystem boundary.
package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation indicates that a record or request failed validation.
var ErrValidation = errors.New("validation failed")

// Memory type constants. The type determines the owning collection and the
// metadata defaults applied at creation.
const (
	TypeCore     = "core"     // Identity, values, personality, capabilities
	TypeEpisodic = "episodic" // Time-stamped interactions and events
	TypeSemantic = "semantic" // Facts, concepts, and rules
	TypePersonal = "personal" // Per-user information, preferences, traits
)

// ValidMemoryTypes contains all valid memory type values.
var ValidMemoryTypes = []string{TypeCore, TypeEpisodic, TypeSemantic, TypePersonal}

// IsValidMemoryType checks if the given type is a valid memory type.
func IsValidMemoryType(memoryType string) bool {
	for _, t := range ValidMemoryTypes {
		if memoryType == t {
			return true
		}
	}
	return false
}

// Episodic subtype constants.
const (
	SubtypeInteraction = "interaction"
	SubtypeEvent       = "event"
)

// Semantic subtype constants.
const (
	SubtypeFact    = "fact"
	SubtypeConcept = "concept"
	SubtypeRule    = "rule"
)

// Personal subtype constants.
const (
	SubtypeInfo               = "info"
	SubtypePreference         = "preference"
	SubtypeTrait              = "trait"
	SubtypeInteractionSummary = "interaction_summary"
)

// MemoryRecord is the core entity of the subsystem: a piece of text with an
// embedding vector and typed metadata, stored in the collection named by its
// memory type.
type MemoryRecord struct {
	// Core identification fields
	ID        string    `json:"id"`        // Unique identifier, immutable for the record's lifetime
	Text      string    `json:"text"`      // UTF-8 content; changing it requires re-embedding
	Type      string    `json:"type"`      // Memory type (core, episodic, semantic, personal); immutable
	Embedding []float32 `json:"embedding"` // Fixed-dimension vector; all zeros marks a degraded embedding

	// Metadata carries the per-type attributes plus consolidation bookkeeping.
	Metadata Metadata `json:"metadata"`
}

// Metadata holds the typed attribute set of a memory record. Which fields are
// meaningful depends on the record's memory type; consolidation bookkeeping
// fields are shared by all types. Fields outside this schema live in Extra.
type Metadata struct {
	Timestamp  time.Time `json:"timestamp"`  // Creation time, set once, never updated on mutation
	Importance float64   `json:"importance"` // Always clamped to [0, 1]

	Category        string   `json:"category,omitempty"`         // core and semantic records
	Subtype         string   `json:"subtype,omitempty"`          // interaction/event, fact/concept/rule, info/preference/trait/interaction_summary
	EventType       string   `json:"event_type,omitempty"`       // episodic events
	UserID          string   `json:"user_id,omitempty"`          // required for personal, optional for episodic
	Refinement      string   `json:"refinement,omitempty"`       // personal subtype refinement (e.g. trait type)
	Date            string   `json:"date,omitempty"`             // personal interaction summaries (YYYY-MM-DD)
	ConceptName     string   `json:"concept_name,omitempty"`     // semantic concepts
	RelatedConcepts []string `json:"related_concepts,omitempty"` // semantic concepts
	Tags            []string `json:"tags,omitempty"`             // semantic records
	Source          string   `json:"source,omitempty"`           // semantic facts

	// Consolidation bookkeeping
	MergedCount      int        `json:"merged_count,omitempty"`      // Number of records merged into this one
	MergedIDs        []string   `json:"merged_ids,omitempty"`        // IDs of the deleted secondaries
	Archived         bool       `json:"archived,omitempty"`          // Set when archived by consolidation
	LastConsolidated *time.Time `json:"last_consolidated,omitempty"` // Most recent merge into this record
	ArchiveTime      *time.Time `json:"archive_time,omitempty"`      // When the record was archived

	// Extra is a small open extension map for attributes outside the schema.
	// Values must survive a JSON round trip.
	Extra map[string]any `json:"extra,omitempty"`
}

// ClampImportance returns v limited to the [0, 1] range.
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Validate checks the structural invariants of a memory record. It does not
// check the embedding dimension; that is enforced by the store, which knows
// the provider's dimension.
func (r *MemoryRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: record ID is required", ErrValidation)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: record text is required", ErrValidation)
	}
	if !IsValidMemoryType(r.Type) {
		return fmt.Errorf("%w: unknown memory type %q", ErrValidation, r.Type)
	}
	if r.Type == TypePersonal && r.Metadata.UserID == "" {
		return fmt.Errorf("%w: personal memory requires a user_id", ErrValidation)
	}
	if r.Metadata.Importance < 0 || r.Metadata.Importance > 1 {
		return fmt.Errorf("%w: importance %.3f outside [0, 1]", ErrValidation, r.Metadata.Importance)
	}
	return nil
}

// Clone returns a deep copy of the record. Stores hand out clones so callers
// can mutate results without corrupting shared state.
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Embedding != nil {
		out.Embedding = make([]float32, len(r.Embedding))
		copy(out.Embedding, r.Embedding)
	}
	out.Metadata = r.Metadata.Clone()
	return &out
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := m
	if m.RelatedConcepts != nil {
		out.RelatedConcepts = append([]string(nil), m.RelatedConcepts...)
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.MergedIDs != nil {
		out.MergedIDs = append([]string(nil), m.MergedIDs...)
	}
	if m.LastConsolidated != nil {
		t := *m.LastConsolidated
		out.LastConsolidated = &t
	}
	if m.ArchiveTime != nil {
		t := *m.ArchiveTime
		out.ArchiveTime = &t
	}
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// HasTag reports whether the metadata carries the given tag.
func (m *Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ApplyPatch shallow-merges an open key/value patch onto the typed metadata.
// Known keys set their struct fields (with importance clamping and numeric
// coercion where needed); unknown keys land in Extra. Timestamp is immutable
// and cannot be patched.
func (m *Metadata) ApplyPatch(patch map[string]any) {
	for key, value := range patch {
		switch key {
		case "timestamp":
			// Creation time is set once and never updated.
		case "importance":
			if f, ok := toFloat(value); ok {
				m.Importance = ClampImportance(f)
			}
		case "category":
			m.Category = toString(value)
		case "subtype":
			m.Subtype = toString(value)
		case "event_type":
			m.EventType = toString(value)
		case "user_id":
			m.UserID = toString(value)
		case "refinement":
			m.Refinement = toString(value)
		case "date":
			m.Date = toString(value)
		case "concept_name":
			m.ConceptName = toString(value)
		case "related_concepts":
			m.RelatedConcepts = toStringSlice(value)
		case "tags":
			m.Tags = toStringSlice(value)
		case "source":
			m.Source = toString(value)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[key] = value
		}
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
