package memory_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/strata/pkg/types"
)

func TestCoreGetIdentity(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Core().Add(ctx, "I specialize in horticulture questions.", "domain", 0.6)
	require.NoError(t, err)

	identity, err := mgr.Core().GetIdentity(ctx)
	require.NoError(t, err)

	assert.Contains(t, identity, "Identity:")
	assert.Contains(t, identity, "Values:")
	assert.Contains(t, identity, "Personality:")
	assert.Contains(t, identity, "Core knowledge:")
	assert.Contains(t, identity, "horticulture")
	assert.Less(t, strings.Index(identity, "Identity:"), strings.Index(identity, "Values:"),
		"sections render in a fixed order")
}

func TestCoreAddDefaults(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Core().Add(ctx, "a plain core note", "", 0)
	require.NoError(t, err)

	rec, err := mgr.Core().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "general", rec.Metadata.Category)
	assert.Equal(t, 0.7, rec.Metadata.Importance)
}

func TestEpisodicGetRecentWindowAndImportance(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	add := func(text string, age time.Duration, importance float64) {
		t.Helper()
		_, err := mgr.Episodic().AddRecord(ctx, &types.MemoryRecord{
			Text: text,
			Metadata: types.Metadata{
				Timestamp:  now.Add(-age),
				Importance: importance,
			},
		})
		require.NoError(t, err)
	}
	add("high importance, recent", 1*time.Hour, 0.9)
	add("medium importance, older", 5*time.Hour, 0.6)
	add("below the cut", 2*time.Hour, 0.3)
	add("outside the window", 30*time.Hour, 0.9)

	records, err := mgr.Episodic().GetRecent(ctx, 24, 0, 0.5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "high importance, recent", records[0].Text, "most recent first")
	assert.Equal(t, "medium importance, older", records[1].Text)

	// Without the importance cut the low record joins the window.
	records, err = mgr.Episodic().GetRecent(ctx, 24, 0, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestEpisodicLogHelpers(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Episodic().LogInteraction(ctx, "chatted about compost", "user-1", 0)
	require.NoError(t, err)
	_, err = mgr.Episodic().LogEvent(ctx, "subsystem started", "startup", "", 0.4)
	require.NoError(t, err)

	interactions, err := mgr.Episodic().GetUserInteractions(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, types.SubtypeInteraction, interactions[0].Metadata.Subtype)
	assert.Equal(t, 0.5, interactions[0].Metadata.Importance, "interaction importance defaults to 0.5")

	events, err := mgr.Episodic().GetEventsByType(ctx, "startup", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "subsystem started", events[0].Text)
}

func TestEpisodicSummarizeRecentActivity(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	summary, err := mgr.Episodic().SummarizeRecentActivity(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, "No significant activity in the specified time period.", summary)

	for i := 0; i < 12; i++ {
		_, err := mgr.Episodic().LogEvent(ctx, fmt.Sprintf("event %d", i), "maintenance", "", 0.5)
		require.NoError(t, err)
	}
	summary, err = mgr.Episodic().SummarizeRecentActivity(ctx, 24)
	require.NoError(t, err)
	assert.Contains(t, summary, "Recent activity in the past 24 hours")
	assert.Contains(t, summary, "10. [", "digest is capped at ten entries")
	assert.NotContains(t, summary, "11. [")
}

func TestSemanticStoreHelpers(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	factID, err := mgr.Semantic().StoreFact(ctx, "tomatoes are fruit", "botany", "conversation", 0, []string{"plants"})
	require.NoError(t, err)
	fact, err := mgr.Semantic().Get(ctx, factID)
	require.NoError(t, err)
	assert.Equal(t, types.SubtypeFact, fact.Metadata.Subtype)
	assert.Equal(t, 0.5, fact.Metadata.Importance)
	assert.Equal(t, "conversation", fact.Metadata.Source)

	conceptID, err := mgr.Semantic().StoreConcept(ctx, "composting turns waste into soil",
		"composting", "gardening", []string{"soil_health"}, 0, nil)
	require.NoError(t, err)
	concept, err := mgr.Semantic().Get(ctx, conceptID)
	require.NoError(t, err)
	assert.Equal(t, types.SubtypeConcept, concept.Metadata.Subtype)
	assert.Equal(t, "composting", concept.Metadata.ConceptName)
	assert.Equal(t, 0.6, concept.Metadata.Importance)

	found, err := mgr.Semantic().GetConcept(ctx, "composting", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, conceptID, found[0].ID)

	ruleID, err := mgr.Semantic().StoreRule(ctx, "water in the morning", "watering_schedule", "", 0, nil)
	require.NoError(t, err)
	rule, err := mgr.Semantic().Get(ctx, ruleID)
	require.NoError(t, err)
	assert.Equal(t, types.SubtypeRule, rule.Metadata.Subtype)
	assert.Equal(t, "rules", rule.Metadata.Category)
	assert.Equal(t, 0.7, rule.Metadata.Importance)
	assert.Equal(t, "watering_schedule", rule.Metadata.Extra["rule_name"])

	tagged, err := mgr.Semantic().GetByTags(ctx, []string{"plants"}, 0)
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, factID, tagged[0].ID)
}

func TestPersonalRequiresUserID(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Personal().StoreUserInfo(ctx, "", "lives in Lisbon", "location", 0)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = mgr.Personal().AddRecord(ctx, &types.MemoryRecord{Text: "no user"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestPersonalProfileBuckets(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Personal().StoreUserTrait(ctx, "user-1", "patient and methodical", "", 0.8)
	require.NoError(t, err)
	_, err = mgr.Personal().StoreUserPreference(ctx, "user-1", "prefers email over chat", "communication", 0)
	require.NoError(t, err)
	_, err = mgr.Personal().StoreUserInfo(ctx, "user-1", "lives in Lisbon", "location", 0)
	require.NoError(t, err)
	_, err = mgr.Personal().StoreInteractionSummary(ctx, "user-1", "discussed the rose garden", "2026-08-20", 0)
	require.NoError(t, err)
	_, err = mgr.Personal().StoreInteractionSummary(ctx, "user-1", "discussed pruning", "2026-08-25", 0)
	require.NoError(t, err)

	profile, err := mgr.Personal().GetUserProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", profile.UserID)
	assert.Equal(t, 5, profile.Total())

	require.Len(t, profile.Traits, 1)
	assert.Equal(t, "personality", profile.Traits[0].Type, "trait refinement defaults to personality")
	require.Len(t, profile.Preferences, 1)
	assert.Equal(t, 0.7, profile.Preferences[0].Importance, "preference importance defaults to 0.7")
	require.Len(t, profile.Info, 1)
	require.Len(t, profile.InteractionSummaries, 2)
	assert.Equal(t, "discussed pruning", profile.InteractionSummaries[0].Text,
		"summaries are most recent first")
	assert.Equal(t, "2026-08-25", profile.InteractionSummaries[0].Date)
}

func TestPersonalGetUserSummary(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	summary, err := mgr.Personal().GetUserSummary(ctx, "ghost", 500)
	require.NoError(t, err)
	assert.Equal(t, "No stored memories about user ghost.", summary)

	for i := 0; i < 5; i++ {
		_, err := mgr.Personal().StoreUserPreference(ctx, "user-1",
			fmt.Sprintf("preference number %d", i), "", 0.5+float64(i)*0.1)
		require.NoError(t, err)
	}
	summary, err = mgr.Personal().GetUserSummary(ctx, "user-1", 500)
	require.NoError(t, err)
	assert.Contains(t, summary, "Summary for user user-1")
	assert.Contains(t, summary, "preference number 4", "top preferences by importance")
	assert.NotContains(t, summary, "preference number 0", "sections cap at three entries")

	truncated, err := mgr.Personal().GetUserSummary(ctx, "user-1", 40)
	require.NoError(t, err)
	assert.Len(t, truncated, 40)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}

func TestPersonalGetUserMemoriesSortedByImportance(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Personal().StoreUserInfo(ctx, "user-1", "minor detail", "", 0.3)
	require.NoError(t, err)
	_, err = mgr.Personal().StoreUserTrait(ctx, "user-1", "defining trait", "", 0.9)
	require.NoError(t, err)

	records, err := mgr.Personal().GetUserMemories(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "defining trait", records[0].Text)
}
