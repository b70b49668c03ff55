package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Core memory defaults.
const (
	defaultCoreCategory   = "general"
	defaultCoreImportance = 0.7
)

// coreSeeds are the records a fresh core collection starts with. The agent
// needs an identity to speak from before any memories have been written.
var coreSeeds = []struct {
	id         string
	text       string
	category   string
	importance float64
}{
	{
		id:         "identity-001",
		text:       "I am a long-running assistant agent. I keep layered memories of my interactions so I can stay consistent across sessions.",
		category:   "identity",
		importance: 1.0,
	},
	{
		id:         "values-001",
		text:       "I value honesty, helpfulness, and continuity. I aim to be supportive and accurate in every interaction.",
		category:   "values",
		importance: 1.0,
	},
	{
		id:         "personality-001",
		text:       "I have a calm, curious disposition. I ask questions when context is missing and remember the answers.",
		category:   "personality",
		importance: 0.9,
	},
	{
		id:         "capabilities-001",
		text:       "I can hold conversations, recall past interactions, track user preferences, and summarize what has happened recently.",
		category:   "capabilities",
		importance: 0.8,
	},
}

// CoreMemory stores the agent's identity, values, personality, and
// capabilities. Records here change rarely and carry high importance.
type CoreMemory struct {
	base
}

// NewCoreMemory creates the core memory module over the given store and
// embedding provider.
func NewCoreMemory(store storage.VectorStore, provider embedding.Provider) *CoreMemory {
	return &CoreMemory{base: base{
		store:      store,
		provider:   provider,
		collection: storage.CollectionCore,
	}}
}

// EnsureDefaults seeds the identity/values/personality/capabilities records
// when the collection is empty. Calling it on a populated collection is a
// no-op, so it is safe to run at every startup.
func (c *CoreMemory) EnsureDefaults(ctx context.Context) error {
	count, err := c.Count(ctx)
	if err != nil {
		return fmt.Errorf("memory: failed to count core memories: %w", err)
	}
	if count > 0 {
		return nil
	}

	log.Printf("memory: seeding %d default core memories", len(coreSeeds))
	for _, seed := range coreSeeds {
		rec := &types.MemoryRecord{
			ID:   seed.id,
			Text: seed.text,
			Type: types.TypeCore,
			Metadata: types.Metadata{
				Category:   seed.category,
				Importance: seed.importance,
			},
		}
		if _, err := c.add(ctx, rec); err != nil {
			return fmt.Errorf("memory: failed to seed core memory %s: %w", seed.id, err)
		}
	}
	return nil
}

// Add stores a core memory. Category defaults to "general" and importance to
// 0.7 when unset.
func (c *CoreMemory) Add(ctx context.Context, text, category string, importance float64) (string, error) {
	rec := &types.MemoryRecord{
		Text: text,
		Type: types.TypeCore,
		Metadata: types.Metadata{
			Category:   category,
			Importance: importance,
		},
	}
	return c.AddRecord(ctx, rec)
}

// AddRecord stores a core memory. Category defaults to "general" and
// importance to 0.7 when unset.
func (c *CoreMemory) AddRecord(ctx context.Context, rec *types.MemoryRecord) (string, error) {
	rec.Type = types.TypeCore
	if rec.Metadata.Category == "" {
		rec.Metadata.Category = defaultCoreCategory
	}
	if rec.Metadata.Importance == 0 {
		rec.Metadata.Importance = defaultCoreImportance
	}
	return c.add(ctx, rec)
}

// GetByCategory returns core memories in the given category, in insertion
// order.
func (c *CoreMemory) GetByCategory(ctx context.Context, category string, limit int) ([]*types.MemoryRecord, error) {
	return c.SearchByMetadata(ctx, storage.Filter{"category": storage.Eq(category)}, limit)
}

// GetIdentity renders a consolidated identity document from the core
// collection: the identity, values, and personality sections followed by any
// remaining core knowledge.
func (c *CoreMemory) GetIdentity(ctx context.Context) (string, error) {
	records, err := c.GetAll(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("memory: failed to load core memories: %w", err)
	}

	sections := []struct {
		heading  string
		category string
	}{
		{"Identity", "identity"},
		{"Values", "values"},
		{"Personality", "personality"},
	}

	var b strings.Builder
	seen := map[string]bool{"identity": true, "values": true, "personality": true}
	for _, section := range sections {
		var texts []string
		for _, rec := range records {
			if rec.Metadata.Category == section.category {
				texts = append(texts, rec.Text)
			}
		}
		if len(texts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", section.heading, strings.Join(texts, "\n"))
	}

	var other []string
	for _, rec := range records {
		if !seen[rec.Metadata.Category] {
			other = append(other, rec.Text)
		}
	}
	if len(other) > 0 {
		fmt.Fprintf(&b, "Core knowledge:\n%s\n", strings.Join(other, "\n"))
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
