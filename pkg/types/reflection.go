package types

import "time"

// Reflection type constants.
const (
	ReflectionDaily  = "daily"  // 24-hour window, one document per calendar day
	ReflectionWeekly = "weekly" // 168-hour window, one document per ISO week
)

// IsValidReflectionType checks if the given type is a valid reflection type.
func IsValidReflectionType(reflectionType string) bool {
	return reflectionType == ReflectionDaily || reflectionType == ReflectionWeekly
}

// Insight is a single observation extracted from a reflection window.
type Insight struct {
	Text       string  `json:"text"`       // The observation itself
	Category   string  `json:"category"`   // activity, user_interaction, time_analysis, or a summarizer-supplied category
	Importance float64 `json:"importance"` // [0, 1]; insights ≥ 0.6 are promoted to semantic memory
}

// MainEvent is one of the top-ranked source memories included in a
// reflection for reference.
type MainEvent struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Importance float64   `json:"importance"`
}

// ReflectionRecord is a periodically generated summary document derived from
// a time window of episodic memories. Records are immutable once written; a
// re-run for the same period replaces the prior document wholesale.
type ReflectionRecord struct {
	ID          string      `json:"id"`                    // "<type>-<period key>", e.g. "daily-2026-08-24"
	Type        string      `json:"type"`                  // daily or weekly
	Timestamp   time.Time   `json:"timestamp"`             // When the reflection was generated
	Title       string      `json:"title"`                 // "Daily Reflection" / "Weekly Reflection"
	Summary     string      `json:"summary"`               // Narrative summary of the window
	Insights    []Insight   `json:"insights"`              // Extracted observations
	MainEvents  []MainEvent `json:"main_events,omitempty"` // Top-ranked source memories (≤ 10)
	Patterns    []string    `json:"patterns,omitempty"`    // Summarizer-identified recurring patterns
	Themes      []string    `json:"themes,omitempty"`      // Summarizer-identified themes
	FocusAreas  []string    `json:"focus_areas,omitempty"` // Summarizer-suggested focus areas
	MemoryCount int         `json:"memory_count"`          // Number of memories analyzed (0 for an empty window)
}

// ReflectionInfo is a metadata-only view of a stored reflection, used by
// listing calls so the dashboard can enumerate documents without loading
// their full contents.
type ReflectionInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Title       string    `json:"title"`
	MemoryCount int       `json:"memory_count"`
}
