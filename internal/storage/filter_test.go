package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/strata/pkg/types"
)

func testRecord() *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:   "rec-1",
		Text: "went hiking with the group",
		Type: types.TypeEpisodic,
		Metadata: types.Metadata{
			Timestamp:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
			Importance: 0.6,
			Subtype:    types.SubtypeEvent,
			EventType:  "outing",
			UserID:     "u1",
			Tags:       []string{"outdoors", "social"},
			Extra:      map[string]any{"location": "ridge trail"},
		},
	}
}

func TestFilterMatchesEquality(t *testing.T) {
	rec := testRecord()

	assert.True(t, Filter{"user_id": Eq("u1")}.Matches(rec))
	assert.False(t, Filter{"user_id": Eq("u2")}.Matches(rec))
	assert.True(t, Filter{"subtype": Eq("event"), "event_type": Eq("outing")}.Matches(rec))
	assert.False(t, Filter{"subtype": Eq("event"), "event_type": Eq("meeting")}.Matches(rec))
	assert.True(t, Filter{"archived": Eq(false)}.Matches(rec))
	assert.True(t, Filter{"importance": Eq(0.6)}.Matches(rec))
}

func TestFilterMatchesOrdered(t *testing.T) {
	rec := testRecord()

	assert.True(t, Filter{"importance": Gte(0.5)}.Matches(rec))
	assert.True(t, Filter{"importance": Gt(0.5)}.Matches(rec))
	assert.False(t, Filter{"importance": Gt(0.6)}.Matches(rec))
	assert.True(t, Filter{"importance": Lte(0.6)}.Matches(rec))
	assert.False(t, Filter{"importance": Lt(0.6)}.Matches(rec))
	assert.True(t, Filter{"merged_count": Gte(0)}.Matches(rec))
}

func TestFilterMatchesTimestamps(t *testing.T) {
	rec := testRecord()
	cutoffBefore := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	cutoffAfter := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	assert.True(t, Filter{"timestamp": Gte(cutoffBefore)}.Matches(rec))
	assert.False(t, Filter{"timestamp": Gte(cutoffAfter)}.Matches(rec))
	assert.True(t, Filter{"timestamp": Lt(cutoffAfter)}.Matches(rec))

	// Numeric cutoffs (unix seconds) coerce against time.Time fields.
	unixCutoff := float64(cutoffBefore.Unix())
	assert.True(t, Filter{"timestamp": Gte(unixCutoff)}.Matches(rec))
}

func TestFilterMatchesIn(t *testing.T) {
	rec := testRecord()

	// Scalar field against a candidate list.
	assert.True(t, Filter{"user_id": In("u1", "u2")}.Matches(rec))
	assert.False(t, Filter{"user_id": In("u3")}.Matches(rec))

	// List field: any shared member matches.
	assert.True(t, Filter{"tags": In("social")}.Matches(rec))
	assert.True(t, Filter{"tags": InStrings([]string{"unknown", "outdoors"})}.Matches(rec))
	assert.False(t, Filter{"tags": In("indoors")}.Matches(rec))
}

func TestFilterExtraKeys(t *testing.T) {
	rec := testRecord()

	assert.True(t, Filter{"location": Eq("ridge trail")}.Matches(rec))
	assert.False(t, Filter{"location": Eq("summit")}.Matches(rec))
	// Unknown key absent from Extra never matches.
	assert.False(t, Filter{"weather": Eq("sunny")}.Matches(rec))
}

func TestFilterNilAndEmpty(t *testing.T) {
	rec := testRecord()

	var nilFilter Filter
	assert.True(t, nilFilter.Matches(rec))
	assert.True(t, Filter{}.Matches(rec))
}

func TestFilterEqualityOnly(t *testing.T) {
	assert.True(t, Filter{"user_id": Eq("u1"), "subtype": Eq("event")}.EqualityOnly())
	assert.False(t, Filter{"importance": Gte(0.5)}.EqualityOnly())
	assert.False(t, Filter{"importance": Eq(0.5)}.EqualityOnly()) // non-string equality
	assert.False(t, Filter{"user_id": Eq("u1"), "timestamp": Lt(time.Now())}.EqualityOnly())
}

func TestExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := []*types.MemoryRecord{
		testRecord(),
		{
			ID:        "rec-2",
			Text:      "likes tea",
			Type:      types.TypePersonal,
			Embedding: []float32{0.1, 0.2},
			Metadata: types.Metadata{
				Timestamp:  time.Date(2026, 8, 21, 8, 0, 0, 0, time.UTC),
				Importance: 0.7,
				UserID:     "u1",
				Subtype:    types.SubtypePreference,
			},
		},
	}

	require.NoError(t, WriteExport(dir, CollectionPersonal, records))

	export, err := ReadExport(dir, CollectionPersonal)
	require.NoError(t, err)
	assert.Equal(t, CollectionPersonal, export.Collection)
	assert.Equal(t, 2, export.Count)
	require.Len(t, export.Records, 2)
	assert.Equal(t, "rec-2", export.Records[1].ID)
	assert.Equal(t, []float32{0.1, 0.2}, export.Records[1].Embedding)
}

func TestReadExportMissing(t *testing.T) {
	_, err := ReadExport(t.TempDir(), CollectionCore)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionFor(t *testing.T) {
	name, err := CollectionFor(types.TypeCore)
	require.NoError(t, err)
	assert.Equal(t, CollectionCore, name)

	_, err = CollectionFor("working")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
