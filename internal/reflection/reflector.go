package reflection

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/strata/internal/llm"
	"github.com/scrypster/strata/pkg/types"
)

// Window parameters per reflection type.
const (
	dailyWindowHours  = 24
	weeklyWindowHours = 168

	dailyCandidateCap  = 100
	weeklyCandidateCap = 300

	// minWindowImportance excludes noise from the reflection window.
	minWindowImportance = 0.3

	// Ranking weights: importance dominates, recency breaks the rest.
	rankImportanceWeight = 0.8
	rankRecencyWeight    = 0.2

	// maxMainEvents caps the source memories embedded in the document.
	maxMainEvents = 10

	// localSummaryEntries is how many memories the fallback summary quotes.
	localSummaryEntries = 5

	// promotionThreshold is the minimum importance (insights) or confidence
	// (patterns) for promotion into semantic memory.
	promotionThreshold = 0.6
)

// EpisodicSource is the slice of the episodic memory module the reflector
// reads its window from.
type EpisodicSource interface {
	GetRecent(ctx context.Context, hours float64, limit int, minImportance float64) ([]*types.MemoryRecord, error)
}

// SemanticSink receives promoted insights and patterns.
type SemanticSink interface {
	StoreFact(ctx context.Context, text, category, source string, importance float64, tags []string) (string, error)
	StoreConcept(ctx context.Context, text, conceptName, category string, relatedConcepts []string, importance float64, tags []string) (string, error)
}

// Reflector generates reflection documents: it selects a window of episodic
// memories, ranks them, summarizes (via the configured generator, or locally
// when that fails or is absent), persists the document, and promotes
// high-value insights into semantic memory.
type Reflector struct {
	episodic  EpisodicSource
	semantic  SemanticSink
	repo      *Repository
	generator llm.TextGenerator
	logger    *log.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewReflector wires a reflector. The generator is optional; without one
// every reflection uses the local summarizer.
func NewReflector(episodic EpisodicSource, semantic SemanticSink, repo *Repository, generator llm.TextGenerator) *Reflector {
	return &Reflector{
		episodic:  episodic,
		semantic:  semantic,
		repo:      repo,
		generator: generator,
		logger:    log.Default(),
		now:       time.Now,
	}
}

// SetLogger replaces the reflector's log destination.
func (r *Reflector) SetLogger(logger *log.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Reflect generates and persists a reflection of the given type over the
// recent episodic window. Summarizer failures are not errors; they fall back
// to the local path. Only window selection and persistence can fail.
func (r *Reflector) Reflect(ctx context.Context, reflectionType string) (*types.ReflectionRecord, error) {
	if !types.IsValidReflectionType(reflectionType) {
		return nil, fmt.Errorf("%w: unknown reflection type %q", types.ErrValidation, reflectionType)
	}

	hours, limit := windowFor(reflectionType)
	window, err := r.episodic.GetRecent(ctx, hours, limit, minWindowImportance)
	if err != nil {
		return nil, fmt.Errorf("reflector: failed to select %s window: %w", reflectionType, err)
	}

	rec := r.newRecord(reflectionType)
	if len(window) == 0 {
		rec.Summary = fmt.Sprintf("No significant memories found in the past %d days.", int(hours)/24)
		rec.Insights = []types.Insight{}
		if err := r.repo.Save(rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	ranked := rankWindow(window)
	rec.MemoryCount = len(ranked)
	rec.MainEvents = mainEvents(ranked)

	resp := r.summarize(ctx, reflectionType, ranked)
	if resp != nil {
		rec.Summary = resp.Summary
		for _, insight := range resp.Insights {
			rec.Insights = append(rec.Insights, types.Insight(insight))
		}
		for _, pattern := range resp.Patterns {
			rec.Patterns = append(rec.Patterns, pattern.Pattern)
		}
		rec.Themes = resp.Themes
		rec.FocusAreas = resp.FocusAreas
	} else {
		rec.Summary = localSummary(reflectionType, ranked)
		rec.Insights = localInsights(ranked, hours)
	}

	if err := r.repo.Save(rec); err != nil {
		return nil, err
	}

	r.promote(ctx, rec, resp)
	return rec, nil
}

func (r *Reflector) newRecord(reflectionType string) *types.ReflectionRecord {
	rec := &types.ReflectionRecord{
		Type:      reflectionType,
		Timestamp: r.now().UTC(),
		Title:     "Daily Reflection",
	}
	if reflectionType == types.ReflectionWeekly {
		rec.Title = "Weekly Reflection"
	}
	rec.ID = fmt.Sprintf("%s-%s", reflectionType, periodKey(reflectionType, *rec))
	return rec
}

// summarize runs the external summarizer when one is configured. Any
// provider or parse failure logs and returns nil, selecting the local path.
func (r *Reflector) summarize(ctx context.Context, reflectionType string, ranked []*types.MemoryRecord) *llm.ReflectionResponse {
	if r.generator == nil {
		return nil
	}

	prompt := llm.ReflectionPrompt(reflectionType, llm.FormatMemoriesForReflection(ranked))
	raw, err := r.generator.Complete(ctx, prompt)
	if err != nil {
		r.logger.Printf("reflector: summarizer failed, using local summary: %v", err)
		return nil
	}
	resp, err := llm.ParseReflectionResponse(raw)
	if err != nil {
		r.logger.Printf("reflector: unparseable summarizer response, using local summary: %v", err)
		return nil
	}
	if resp.Summary == "" {
		r.logger.Printf("reflector: summarizer returned an empty summary, using local summary")
		return nil
	}
	return resp
}

// promote stores high-value insights as semantic facts and high-confidence
// patterns as semantic concepts. Promotion failures are logged, never fatal:
// the reflection document is already persisted.
func (r *Reflector) promote(ctx context.Context, rec *types.ReflectionRecord, resp *llm.ReflectionResponse) {
	if r.semantic == nil {
		return
	}

	for _, insight := range rec.Insights {
		if insight.Importance < promotionThreshold {
			continue
		}
		tags := []string{"reflection"}
		if insight.Category != "" {
			tags = append(tags, insight.Category)
		}
		if _, err := r.semantic.StoreFact(ctx, insight.Text, "reflection_insight", "reflection", insight.Importance, tags); err != nil {
			r.logger.Printf("reflector: failed to promote insight: %v", err)
		}
	}

	if resp == nil {
		return
	}
	for i, pattern := range resp.Patterns {
		if pattern.Confidence < promotionThreshold {
			continue
		}
		text := pattern.Pattern
		if pattern.Evidence != "" {
			text = fmt.Sprintf("%s (evidence: %s)", pattern.Pattern, pattern.Evidence)
		}
		name := fmt.Sprintf("pattern_%s_%d", periodKey(rec.Type, *rec), i+1)
		if _, err := r.semantic.StoreConcept(ctx, text, name, "pattern", nil, pattern.Confidence, []string{"reflection", "pattern"}); err != nil {
			r.logger.Printf("reflector: failed to promote pattern: %v", err)
		}
	}
}

func windowFor(reflectionType string) (hours float64, limit int) {
	if reflectionType == types.ReflectionWeekly {
		return weeklyWindowHours, weeklyCandidateCap
	}
	return dailyWindowHours, dailyCandidateCap
}

// rankWindow orders the window by the composite score
// importance*0.8 + recency*0.2, descending. Recency is min-max normalized
// over the window; a single-timestamp window gives everyone full credit.
func rankWindow(window []*types.MemoryRecord) []*types.MemoryRecord {
	oldest, newest := window[0].Metadata.Timestamp, window[0].Metadata.Timestamp
	for _, rec := range window[1:] {
		ts := rec.Metadata.Timestamp
		if ts.Before(oldest) {
			oldest = ts
		}
		if ts.After(newest) {
			newest = ts
		}
	}
	span := newest.Sub(oldest)

	scored := make([]*types.MemoryRecord, len(window))
	copy(scored, window)
	sort.SliceStable(scored, func(i, j int) bool {
		return windowScore(scored[i], oldest, span) > windowScore(scored[j], oldest, span)
	})
	return scored
}

func windowScore(rec *types.MemoryRecord, oldest time.Time, span time.Duration) float64 {
	recency := 1.0
	if span > 0 {
		recency = float64(rec.Metadata.Timestamp.Sub(oldest)) / float64(span)
	}
	return rec.Metadata.Importance*rankImportanceWeight + recency*rankRecencyWeight
}

func mainEvents(ranked []*types.MemoryRecord) []types.MainEvent {
	n := len(ranked)
	if n > maxMainEvents {
		n = maxMainEvents
	}
	events := make([]types.MainEvent, 0, n)
	for _, rec := range ranked[:n] {
		events = append(events, types.MainEvent{
			Text:       rec.Text,
			Timestamp:  rec.Metadata.Timestamp,
			Importance: rec.Metadata.Importance,
		})
	}
	return events
}

// localSummary is the deterministic fallback: the top memories by importance,
// quoted with their timestamps.
func localSummary(reflectionType string, ranked []*types.MemoryRecord) string {
	byImportance := make([]*types.MemoryRecord, len(ranked))
	copy(byImportance, ranked)
	sort.SliceStable(byImportance, func(i, j int) bool {
		return byImportance[i].Metadata.Importance > byImportance[j].Metadata.Importance
	})
	n := len(byImportance)
	if n > localSummaryEntries {
		n = localSummaryEntries
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Key memories from this %s reflection period:\n\n", reflectionType)
	for i, rec := range byImportance[:n] {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, rec.Metadata.Timestamp.Format("2006-01-02 15:04:05"), rec.Text)
	}
	fmt.Fprintf(&b, "\nAnalyzed %d memories in total.", len(ranked))
	return b.String()
}

// localInsights derives simple statistics from the window: overall activity,
// the most-interacted-with user, and the activity rate.
func localInsights(ranked []*types.MemoryRecord, hours float64) []types.Insight {
	insights := []types.Insight{{
		Text:       fmt.Sprintf("Recorded %d significant memories during this period.", len(ranked)),
		Category:   "activity",
		Importance: 0.5,
	}}

	userCounts := make(map[string]int)
	for _, rec := range ranked {
		if rec.Metadata.Subtype == types.SubtypeInteraction && rec.Metadata.UserID != "" {
			userCounts[rec.Metadata.UserID]++
		}
	}
	topUser, topCount := "", 0
	for user, count := range userCounts {
		if count > topCount || (count == topCount && user < topUser) {
			topUser, topCount = user, count
		}
	}
	if topUser != "" {
		insights = append(insights, types.Insight{
			Text:       fmt.Sprintf("Most interactions were with user %s (%d interactions).", topUser, topCount),
			Category:   "user_interaction",
			Importance: 0.6,
		})
	}

	if hours > 0 {
		insights = append(insights, types.Insight{
			Text:       fmt.Sprintf("Activity rate was %.2f memories per hour.", float64(len(ranked))/hours),
			Category:   "time_analysis",
			Importance: 0.5,
		})
	}
	return insights
}
