package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Episodic memory defaults.
const (
	defaultEpisodicImportance = 0.5

	// Activity summaries keep the rendering bounded.
	activitySummaryLimit         = 10
	activitySummaryMinImportance = 0.3
)

// EpisodicMemory stores time-stamped interactions and events. It is the
// busiest collection and the main input for reflection and consolidation.
type EpisodicMemory struct {
	base
}

// NewEpisodicMemory creates the episodic memory module over the given store
// and embedding provider.
func NewEpisodicMemory(store storage.VectorStore, provider embedding.Provider) *EpisodicMemory {
	return &EpisodicMemory{base: base{
		store:      store,
		provider:   provider,
		collection: storage.CollectionEpisodic,
	}}
}

// AddRecord stores an episodic memory. Importance defaults to 0.5 and
// subtype to "event" when unset.
func (e *EpisodicMemory) AddRecord(ctx context.Context, rec *types.MemoryRecord) (string, error) {
	rec.Type = types.TypeEpisodic
	if rec.Metadata.Importance == 0 {
		rec.Metadata.Importance = defaultEpisodicImportance
	}
	if rec.Metadata.Subtype == "" {
		rec.Metadata.Subtype = types.SubtypeEvent
	}
	return e.add(ctx, rec)
}

// LogInteraction records an interaction with a user. The user ID is optional;
// interactions without one are still logged for activity tracking.
func (e *EpisodicMemory) LogInteraction(ctx context.Context, text, userID string, importance float64) (string, error) {
	if importance == 0 {
		importance = defaultEpisodicImportance
	}
	rec := &types.MemoryRecord{
		Text: text,
		Type: types.TypeEpisodic,
		Metadata: types.Metadata{
			Subtype:    types.SubtypeInteraction,
			UserID:     userID,
			Importance: importance,
		},
	}
	return e.add(ctx, rec)
}

// LogEvent records a non-interaction event of the given type (startup,
// alarm, maintenance, and so on).
func (e *EpisodicMemory) LogEvent(ctx context.Context, text, eventType, userID string, importance float64) (string, error) {
	if importance == 0 {
		importance = defaultEpisodicImportance
	}
	rec := &types.MemoryRecord{
		Text: text,
		Type: types.TypeEpisodic,
		Metadata: types.Metadata{
			Subtype:    types.SubtypeEvent,
			EventType:  eventType,
			UserID:     userID,
			Importance: importance,
		},
	}
	return e.add(ctx, rec)
}

// GetRecent returns episodic memories created in the last `hours` hours,
// most recent first. When minImportance is positive, records below it are
// excluded.
func (e *EpisodicMemory) GetRecent(ctx context.Context, hours float64, limit int, minImportance float64) ([]*types.MemoryRecord, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(hours * float64(time.Hour)))
	filter := storage.Filter{"timestamp": storage.Gte(cutoff)}
	if minImportance > 0 {
		filter["importance"] = storage.Gte(minImportance)
	}

	records, err := e.SearchByMetadata(ctx, filter, 0)
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(records)
	return truncateRecords(records, limit), nil
}

// GetUserInteractions returns interactions with the given user, most recent
// first.
func (e *EpisodicMemory) GetUserInteractions(ctx context.Context, userID string, limit int) ([]*types.MemoryRecord, error) {
	filter := storage.Filter{
		"user_id": storage.Eq(userID),
		"subtype": storage.Eq(types.SubtypeInteraction),
	}
	records, err := e.SearchByMetadata(ctx, filter, 0)
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(records)
	return truncateRecords(records, limit), nil
}

// GetEventsByType returns events of the given type, most recent first.
func (e *EpisodicMemory) GetEventsByType(ctx context.Context, eventType string, limit int) ([]*types.MemoryRecord, error) {
	filter := storage.Filter{
		"subtype":    storage.Eq(types.SubtypeEvent),
		"event_type": storage.Eq(eventType),
	}
	records, err := e.SearchByMetadata(ctx, filter, 0)
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(records)
	return truncateRecords(records, limit), nil
}

// SummarizeRecentActivity renders a plain-text digest of significant
// episodic memories from the last `hours` hours. Only records with
// importance at or above 0.3 are included, at most ten of them.
func (e *EpisodicMemory) SummarizeRecentActivity(ctx context.Context, hours float64) (string, error) {
	records, err := e.GetRecent(ctx, hours, activitySummaryLimit, activitySummaryMinImportance)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "No significant activity in the specified time period.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent activity in the past %g hours:\n\n", hours)
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, rec.Metadata.Timestamp.Format(timestampFormat), rec.Text)
	}
	return b.String(), nil
}
