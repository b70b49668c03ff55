package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Personal memory defaults.
const (
	defaultInfoImportance       = 0.6
	defaultPreferenceImportance = 0.7
	defaultTraitImportance      = 0.6
	defaultSummaryImportance    = 0.8
	defaultTraitRefinement      = "personality"
	defaultRefinement           = "general"
)

// ProfileEntry is one memory inside a user profile bucket.
type ProfileEntry struct {
	Text       string    `json:"text"`
	Type       string    `json:"type"`           // Refinement of the subtype (e.g. trait type)
	Date       string    `json:"date,omitempty"` // Interaction summaries only
	Importance float64   `json:"importance"`
	Timestamp  time.Time `json:"timestamp"`
}

// UserProfile groups a user's personal memories by subtype.
type UserProfile struct {
	UserID               string         `json:"user_id"`
	Traits               []ProfileEntry `json:"traits"`
	Preferences          []ProfileEntry `json:"preferences"`
	Info                 []ProfileEntry `json:"info"`
	InteractionSummaries []ProfileEntry `json:"interaction_summaries"`
}

// Total returns the number of memories across all buckets.
func (p *UserProfile) Total() int {
	return len(p.Traits) + len(p.Preferences) + len(p.Info) + len(p.InteractionSummaries)
}

// PersonalMemory stores per-user information, preferences, traits, and
// interaction summaries. Every record here carries a user ID.
type PersonalMemory struct {
	base
}

// NewPersonalMemory creates the personal memory module over the given store
// and embedding provider.
func NewPersonalMemory(store storage.VectorStore, provider embedding.Provider) *PersonalMemory {
	return &PersonalMemory{base: base{
		store:      store,
		provider:   provider,
		collection: storage.CollectionPersonal,
	}}
}

// AddRecord stores a personal memory. The record must carry a user ID;
// importance defaults to 0.6 and subtype to "info" when unset.
func (p *PersonalMemory) AddRecord(ctx context.Context, rec *types.MemoryRecord) (string, error) {
	rec.Type = types.TypePersonal
	if rec.Metadata.UserID == "" {
		return "", fmt.Errorf("%w: personal memory requires a user_id", types.ErrValidation)
	}
	if rec.Metadata.Importance == 0 {
		rec.Metadata.Importance = defaultInfoImportance
	}
	if rec.Metadata.Subtype == "" {
		rec.Metadata.Subtype = types.SubtypeInfo
	}
	return p.add(ctx, rec)
}

// StoreUserInfo stores a piece of information about a user. infoType
// classifies the information ("location", "occupation", ...) and defaults to
// "general".
func (p *PersonalMemory) StoreUserInfo(ctx context.Context, userID, text, infoType string, importance float64) (string, error) {
	if importance == 0 {
		importance = defaultInfoImportance
	}
	return p.storePersonal(ctx, userID, text, types.SubtypeInfo, refinementOr(infoType, defaultRefinement), "", importance)
}

// StoreUserPreference stores a user preference. preferenceType defaults to
// "general".
func (p *PersonalMemory) StoreUserPreference(ctx context.Context, userID, text, preferenceType string, importance float64) (string, error) {
	if importance == 0 {
		importance = defaultPreferenceImportance
	}
	return p.storePersonal(ctx, userID, text, types.SubtypePreference, refinementOr(preferenceType, defaultRefinement), "", importance)
}

// StoreUserTrait stores an observed personality trait. traitType defaults to
// "personality".
func (p *PersonalMemory) StoreUserTrait(ctx context.Context, userID, text, traitType string, importance float64) (string, error) {
	if importance == 0 {
		importance = defaultTraitImportance
	}
	return p.storePersonal(ctx, userID, text, types.SubtypeTrait, refinementOr(traitType, defaultTraitRefinement), "", importance)
}

// StoreInteractionSummary stores a summary of a conversation with the user.
// The date ("2006-01-02") defaults to today.
func (p *PersonalMemory) StoreInteractionSummary(ctx context.Context, userID, text, date string, importance float64) (string, error) {
	if importance == 0 {
		importance = defaultSummaryImportance
	}
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	return p.storePersonal(ctx, userID, text, types.SubtypeInteractionSummary, "", date, importance)
}

func (p *PersonalMemory) storePersonal(ctx context.Context, userID, text, subtype, refinement, date string, importance float64) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: personal memory requires a user_id", types.ErrValidation)
	}
	rec := &types.MemoryRecord{
		Text: text,
		Type: types.TypePersonal,
		Metadata: types.Metadata{
			UserID:     userID,
			Subtype:    subtype,
			Refinement: refinement,
			Date:       date,
			Importance: importance,
		},
	}
	return p.add(ctx, rec)
}

// GetUserMemories returns a user's personal memories, most important first.
func (p *PersonalMemory) GetUserMemories(ctx context.Context, userID string, limit int) ([]*types.MemoryRecord, error) {
	records, err := p.SearchByMetadata(ctx, storage.Filter{"user_id": storage.Eq(userID)}, 0)
	if err != nil {
		return nil, err
	}
	sortByImportanceDesc(records)
	return truncateRecords(records, limit), nil
}

// GetUserProfile groups a user's personal memories into trait, preference,
// info, and interaction-summary buckets. The first three are sorted by
// importance descending; summaries by timestamp descending. Records with an
// unknown subtype land in the info bucket.
func (p *PersonalMemory) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	records, err := p.SearchByMetadata(ctx, storage.Filter{"user_id": storage.Eq(userID)}, 0)
	if err != nil {
		return nil, err
	}

	profile := &UserProfile{UserID: userID}
	for _, rec := range records {
		entry := ProfileEntry{
			Text:       rec.Text,
			Type:       refinementOr(rec.Metadata.Refinement, defaultRefinement),
			Importance: rec.Metadata.Importance,
			Timestamp:  rec.Metadata.Timestamp,
		}
		switch rec.Metadata.Subtype {
		case types.SubtypeTrait:
			entry.Type = refinementOr(rec.Metadata.Refinement, defaultTraitRefinement)
			profile.Traits = append(profile.Traits, entry)
		case types.SubtypePreference:
			profile.Preferences = append(profile.Preferences, entry)
		case types.SubtypeInteractionSummary:
			entry.Date = rec.Metadata.Date
			profile.InteractionSummaries = append(profile.InteractionSummaries, entry)
		default:
			profile.Info = append(profile.Info, entry)
		}
	}

	sortEntriesByImportance(profile.Traits)
	sortEntriesByImportance(profile.Preferences)
	sortEntriesByImportance(profile.Info)
	sort.SliceStable(profile.InteractionSummaries, func(i, j int) bool {
		return profile.InteractionSummaries[i].Timestamp.After(profile.InteractionSummaries[j].Timestamp)
	})

	return profile, nil
}

// GetUserSummary renders a bounded plain-text summary of what is known about
// a user: top three traits, preferences, and info items plus the most recent
// interaction summary. Output longer than maxLength is truncated with "...".
func (p *PersonalMemory) GetUserSummary(ctx context.Context, userID string, maxLength int) (string, error) {
	profile, err := p.GetUserProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.Total() == 0 {
		return fmt.Sprintf("No stored memories about user %s.", userID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summary for user %s:\n\n", userID)
	writeProfileSection(&b, "Key traits:", profile.Traits, 3)
	writeProfileSection(&b, "Preferences:", profile.Preferences, 3)
	writeProfileSection(&b, "Additional information:", profile.Info, 3)
	writeProfileSection(&b, "Recent interactions:", profile.InteractionSummaries, 1)

	summary := strings.TrimRight(b.String(), "\n")
	if maxLength > 3 && len(summary) > maxLength {
		summary = summary[:maxLength-3] + "..."
	}
	return summary, nil
}

func writeProfileSection(b *strings.Builder, heading string, entries []ProfileEntry, max int) {
	if len(entries) == 0 {
		return
	}
	if len(entries) > max {
		entries = entries[:max]
	}
	b.WriteString(heading + "\n")
	for _, entry := range entries {
		fmt.Fprintf(b, "- %s\n", entry.Text)
	}
	b.WriteString("\n")
}

func sortEntriesByImportance(entries []ProfileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Importance > entries[j].Importance
	})
}

func refinementOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
