package chromem_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/internal/storage/chromem"
	"github.com/scrypster/strata/pkg/types"
)

const testDimension = 64

// newTestStore creates an in-memory store with a deterministic local
// embedding provider.
func newTestStore(t *testing.T) (*chromem.Store, embedding.Provider) {
	t.Helper()

	provider := embedding.NewLocalProvider(testDimension)
	store, err := chromem.New("", provider)
	require.NoError(t, err, "New should succeed")
	t.Cleanup(func() {
		store.Close()
	})
	return store, provider
}

// newTestRecord builds a valid episodic record with an embedding.
func newTestRecord(t *testing.T, provider embedding.Provider, id, text string) *types.MemoryRecord {
	t.Helper()

	vec, err := provider.Embed(context.Background(), text)
	require.NoError(t, err, "embed fixture text")
	return &types.MemoryRecord{
		ID:        id,
		Text:      text,
		Type:      types.TypeEpisodic,
		Embedding: vec,
		Metadata: types.Metadata{
			Timestamp:  time.Now().UTC(),
			Importance: 0.5,
			Category:   "general",
		},
	}
}

func TestStore_AddAndGet(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, provider, "mem-001", "the deploy finished at noon")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))

	got, err := store.Get(ctx, storage.CollectionEpisodic, "mem-001")
	require.NoError(t, err)
	assert.Equal(t, rec.Text, got.Text)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Embedding, got.Embedding)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, provider, "mem-001", "original text")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))

	got, err := store.Get(ctx, storage.CollectionEpisodic, "mem-001")
	require.NoError(t, err)
	got.Text = "mutated"
	got.Metadata.Tags = append(got.Metadata.Tags, "mutated")

	again, err := store.Get(ctx, storage.CollectionEpisodic, "mem-001")
	require.NoError(t, err)
	assert.Equal(t, "original text", again.Text)
	assert.Empty(t, again.Metadata.Tags)
}

func TestStore_AddRejectsDuplicateID(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, provider, "mem-001", "first")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))

	dup := newTestRecord(t, provider, "mem-001", "second")
	err := store.Add(ctx, storage.CollectionEpisodic, dup)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStore_AddRejectsInvalidRecord(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	t.Run("nil record", func(t *testing.T) {
		err := store.Add(ctx, storage.CollectionEpisodic, nil)
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("empty text", func(t *testing.T) {
		rec := newTestRecord(t, provider, "mem-002", "valid")
		rec.Text = ""
		err := store.Add(ctx, storage.CollectionEpisodic, rec)
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("wrong embedding dimension", func(t *testing.T) {
		rec := newTestRecord(t, provider, "mem-003", "valid")
		rec.Embedding = []float32{1, 2, 3}
		err := store.Add(ctx, storage.CollectionEpisodic, rec)
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), storage.CollectionEpisodic, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Update(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, provider, "mem-001", "initial content")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))

	t.Run("empty patch is a no-op", func(t *testing.T) {
		changed, err := store.Update(ctx, storage.CollectionEpisodic, "mem-001", storage.UpdatePatch{})
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("text update requires embedding", func(t *testing.T) {
		text := "replacement"
		_, err := store.Update(ctx, storage.CollectionEpisodic, "mem-001", storage.UpdatePatch{Text: &text})
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("text and metadata update", func(t *testing.T) {
		text := "replacement content"
		vec, err := provider.Embed(ctx, text)
		require.NoError(t, err)

		meta := rec.Metadata
		meta.Importance = 0.9
		changed, err := store.Update(ctx, storage.CollectionEpisodic, "mem-001", storage.UpdatePatch{
			Text:      &text,
			Embedding: vec,
			Metadata:  &meta,
		})
		require.NoError(t, err)
		assert.True(t, changed)

		got, err := store.Get(ctx, storage.CollectionEpisodic, "mem-001")
		require.NoError(t, err)
		assert.Equal(t, "replacement content", got.Text)
		assert.Equal(t, 0.9, got.Metadata.Importance)
		assert.Equal(t, vec, got.Embedding)
	})

	t.Run("missing record", func(t *testing.T) {
		meta := rec.Metadata
		_, err := store.Update(ctx, storage.CollectionEpisodic, "missing", storage.UpdatePatch{Metadata: &meta})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStore_Delete(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, provider, "mem-001", "to be deleted")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))

	deleted, err := store.Delete(ctx, storage.CollectionEpisodic, "mem-001")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.Get(ctx, storage.CollectionEpisodic, "mem-001")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	deleted, err = store.Delete(ctx, storage.CollectionEpisodic, "mem-001")
	require.NoError(t, err)
	assert.False(t, deleted, "second delete should report not found without error")
}

func TestStore_GetAllInsertionOrder(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := newTestRecord(t, provider, fmt.Sprintf("mem-%03d", i), fmt.Sprintf("entry number %d", i))
		require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))
	}

	all, err := store.GetAll(ctx, storage.CollectionEpisodic, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, rec := range all {
		assert.Equal(t, fmt.Sprintf("mem-%03d", i), rec.ID)
	}

	limited, err := store.GetAll(ctx, storage.CollectionEpisodic, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "mem-000", limited[0].ID)
	assert.Equal(t, "mem-001", limited[1].ID)
}

func TestStore_SearchByMetadata(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		rec := newTestRecord(t, provider, fmt.Sprintf("mem-%03d", i), fmt.Sprintf("entry %d", i))
		rec.Metadata.Importance = float64(i) * 0.25
		rec.Metadata.Timestamp = now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))
	}

	matches, err := store.SearchByMetadata(ctx, storage.CollectionEpisodic, storage.Filter{
		"importance": storage.Gte(0.5),
	}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "mem-002", matches[0].ID)
	assert.Equal(t, "mem-003", matches[1].ID)

	cutoff := now.Add(90 * time.Second)
	recent, err := store.SearchByMetadata(ctx, storage.CollectionEpisodic, storage.Filter{
		"timestamp": storage.Gte(cutoff),
	}, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "mem-002", recent[0].ID)
}

func TestStore_SearchByTextRanksBySimilarity(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	texts := map[string]string{
		"mem-cats":   "the cat slept on the warm windowsill all afternoon",
		"mem-deploy": "the production deploy completed without any errors",
		"mem-kitty":  "a cat napping in the sun by the windowsill",
	}
	for id, text := range texts {
		require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, newTestRecord(t, provider, id, text)))
	}

	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "cat sleeping near the windowsill", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, []string{"mem-cats", "mem-kitty"}, results[0].Record.ID)
	assert.Contains(t, []string{"mem-cats", "mem-kitty"}, results[1].Record.ID)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Similarity, 0.0)
		assert.LessOrEqual(t, res.Similarity, 1.0)
	}
}

func TestStore_SearchByTextEqualityFilter(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	interaction := newTestRecord(t, provider, "mem-001", "user asked about the weather")
	interaction.Metadata.Subtype = types.SubtypeInteraction
	interaction.Metadata.UserID = "user-1"
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, interaction))

	event := newTestRecord(t, provider, "mem-002", "user asked about the forecast")
	event.Metadata.Subtype = types.SubtypeEvent
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, event))

	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "weather question", 10, storage.Filter{
		"subtype": storage.Eq(types.SubtypeInteraction),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-001", results[0].Record.ID)
}

func TestStore_SearchByTextRangeFilter(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rec := newTestRecord(t, provider, fmt.Sprintf("mem-%03d", i), "a recurring observation about response latency")
		rec.Metadata.Importance = float64(i) * 0.3
		require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))
	}

	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "response latency", 10, storage.Filter{
		"importance": storage.Gte(0.6),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Record.Metadata.Importance, 0.6)
	}
}

func TestStore_SearchByTextTiesBreakByInsertionOrder(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	// Identical text yields identical similarity; insertion order decides.
	first := newTestRecord(t, provider, "mem-first", "identical note about backups")
	second := newTestRecord(t, provider, "mem-second", "identical note about backups")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, first))
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, second))

	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "identical note about backups", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mem-first", results[0].Record.ID)
	assert.Equal(t, "mem-second", results[1].Record.ID)
}

func TestStore_SearchExcludesZeroEmbeddings(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	degraded := newTestRecord(t, provider, "mem-degraded", "stored while the embedder was down")
	degraded.Embedding = embedding.ZeroVector(testDimension)
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, degraded))

	healthy := newTestRecord(t, provider, "mem-healthy", "stored while the embedder was healthy")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, healthy))

	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "embedder status", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-healthy", results[0].Record.ID)

	// The degraded record is still retrievable directly and by scan.
	_, err = store.Get(ctx, storage.CollectionEpisodic, "mem-degraded")
	assert.NoError(t, err)
	all, err := store.GetAll(ctx, storage.CollectionEpisodic, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_SearchZeroQueryMatchesNothing(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(t, provider, "mem-001", "some stored content")
	require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))

	// Punctuation-only text embeds to the zero vector.
	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "...", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchEmptyCollection(t *testing.T) {
	store, _ := newTestStore(t)

	results, err := store.SearchByText(context.Background(), storage.CollectionEpisodic, "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_CountAndClear(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := newTestRecord(t, provider, fmt.Sprintf("mem-%03d", i), fmt.Sprintf("entry %d", i))
		require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))
	}

	count, err := store.Count(ctx, storage.CollectionEpisodic)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, store.Clear(ctx, storage.CollectionEpisodic))

	count, err = store.Count(ctx, storage.CollectionEpisodic)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "entry", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	provider := embedding.NewLocalProvider(testDimension)
	ctx := context.Background()

	store, err := chromem.New(dir, provider)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		rec := &types.MemoryRecord{
			ID:   fmt.Sprintf("mem-%03d", i),
			Text: fmt.Sprintf("persisted entry %d about nightly backups", i),
			Type: types.TypeSemantic,
			Metadata: types.Metadata{
				Timestamp:  time.Now().UTC(),
				Importance: 0.6,
				Category:   "general",
			},
		}
		vec, err := provider.Embed(ctx, rec.Text)
		require.NoError(t, err)
		rec.Embedding = vec
		require.NoError(t, store.Add(ctx, storage.CollectionSemantic, rec))
	}
	require.NoError(t, store.Close())

	reopened, err := chromem.New(dir, provider)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.GetAll(ctx, storage.CollectionSemantic, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, rec := range all {
		assert.Equal(t, fmt.Sprintf("mem-%03d", i), rec.ID, "insertion order should survive reload")
	}

	results, err := reopened.SearchByText(ctx, storage.CollectionSemantic, "nightly backups", 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2, "similarity index should be rebuilt on reload")
}

func TestStore_BackupAndRestore(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()
	dest := t.TempDir()

	for i := 0; i < 3; i++ {
		rec := newTestRecord(t, provider, fmt.Sprintf("mem-%03d", i), fmt.Sprintf("entry %d", i))
		require.NoError(t, store.Add(ctx, storage.CollectionEpisodic, rec))
	}
	require.NoError(t, store.Backup(ctx, storage.CollectionEpisodic, dest))

	export, err := storage.ReadExport(dest, storage.CollectionEpisodic)
	require.NoError(t, err)
	assert.Equal(t, 3, export.Count)

	require.NoError(t, store.Clear(ctx, storage.CollectionEpisodic))
	require.NoError(t, store.Restore(ctx, storage.CollectionEpisodic, dest))

	all, err := store.GetAll(ctx, storage.CollectionEpisodic, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "mem-000", all[0].ID)
}

func TestStore_RestoreReembedsMissingVectors(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()
	dest := t.TempDir()

	// Hand-write an export whose record carries no embedding.
	rec := newTestRecord(t, provider, "mem-001", "restored without a vector")
	rec.Embedding = nil
	require.NoError(t, storage.WriteExport(dest, storage.CollectionEpisodic, []*types.MemoryRecord{rec}))

	require.NoError(t, store.Restore(ctx, storage.CollectionEpisodic, dest))

	got, err := store.Get(ctx, storage.CollectionEpisodic, "mem-001")
	require.NoError(t, err)
	require.Len(t, got.Embedding, testDimension)
	assert.False(t, embedding.IsZero(got.Embedding), "restore should re-embed the text")

	results, err := store.SearchByText(ctx, storage.CollectionEpisodic, "restored without a vector", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-001", results[0].Record.ID)
}
