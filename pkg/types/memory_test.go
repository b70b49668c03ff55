package types_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/strata/pkg/types"
)

func TestIsValidMemoryType(t *testing.T) {
	for _, valid := range types.ValidMemoryTypes {
		t.Run("valid_"+valid, func(t *testing.T) {
			if !types.IsValidMemoryType(valid) {
				t.Errorf("IsValidMemoryType(%q) = false, want true", valid)
			}
		})
	}

	invalid := []string{"", "CORE", "episodic ", "working", "procedural", "core_memories"}
	for _, bad := range invalid {
		t.Run("invalid_"+bad, func(t *testing.T) {
			if types.IsValidMemoryType(bad) {
				t.Errorf("IsValidMemoryType(%q) = true, want false", bad)
			}
		})
	}
}

func TestClampImportance(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.7, 1},
	}
	for _, tc := range cases {
		if got := types.ClampImportance(tc.in); got != tc.want {
			t.Errorf("ClampImportance(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMemoryRecordValidate(t *testing.T) {
	valid := func() *types.MemoryRecord {
		return &types.MemoryRecord{
			ID:   "rec-1",
			Text: "hello",
			Type: types.TypeEpisodic,
			Metadata: types.Metadata{
				Timestamp:  time.Now(),
				Importance: 0.5,
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid record failed validation: %v", err)
	}

	t.Run("missing_id", func(t *testing.T) {
		rec := valid()
		rec.ID = ""
		if err := rec.Validate(); !errors.Is(err, types.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("missing_text", func(t *testing.T) {
		rec := valid()
		rec.Text = ""
		if err := rec.Validate(); !errors.Is(err, types.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown_type", func(t *testing.T) {
		rec := valid()
		rec.Type = "working"
		if err := rec.Validate(); !errors.Is(err, types.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("personal_without_user", func(t *testing.T) {
		rec := valid()
		rec.Type = types.TypePersonal
		if err := rec.Validate(); !errors.Is(err, types.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		rec.Metadata.UserID = "u1"
		if err := rec.Validate(); err != nil {
			t.Errorf("personal record with user_id should validate, got %v", err)
		}
	})

	t.Run("importance_out_of_range", func(t *testing.T) {
		rec := valid()
		rec.Metadata.Importance = 1.5
		if err := rec.Validate(); !errors.Is(err, types.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestMemoryRecordClone(t *testing.T) {
	now := time.Now()
	rec := &types.MemoryRecord{
		ID:        "rec-1",
		Text:      "original",
		Type:      types.TypeSemantic,
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata: types.Metadata{
			Timestamp:  now,
			Importance: 0.7,
			Tags:       []string{"a", "b"},
			MergedIDs:  []string{"x"},
			Extra:      map[string]any{"k": "v"},
		},
	}

	clone := rec.Clone()
	clone.Text = "changed"
	clone.Embedding[0] = 9
	clone.Metadata.Tags[0] = "z"
	clone.Metadata.Extra["k"] = "w"

	if rec.Text != "original" {
		t.Error("clone mutation leaked into original text")
	}
	if rec.Embedding[0] != 0.1 {
		t.Error("clone mutation leaked into original embedding")
	}
	if rec.Metadata.Tags[0] != "a" {
		t.Error("clone mutation leaked into original tags")
	}
	if rec.Metadata.Extra["k"] != "v" {
		t.Error("clone mutation leaked into original extra map")
	}
}

func TestMetadataApplyPatch(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := types.Metadata{
		Timestamp:  created,
		Importance: 0.5,
		Category:   "general",
	}

	meta.ApplyPatch(map[string]any{
		"importance": 1.8, // clamped
		"category":   "identity",
		"tags":       []any{"one", "two"},
		"timestamp":  time.Now(), // immutable, ignored
		"mood":       "curious",  // unknown key goes to Extra
	})

	if meta.Importance != 1.0 {
		t.Errorf("importance = %v, want clamped 1.0", meta.Importance)
	}
	if meta.Category != "identity" {
		t.Errorf("category = %q, want identity", meta.Category)
	}
	if len(meta.Tags) != 2 || meta.Tags[0] != "one" {
		t.Errorf("tags = %v, want [one two]", meta.Tags)
	}
	if !meta.Timestamp.Equal(created) {
		t.Error("timestamp should be immutable under patching")
	}
	if meta.Extra["mood"] != "curious" {
		t.Errorf("unknown key not preserved in Extra: %v", meta.Extra)
	}
}

func TestMetadataJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC)
	rec := &types.MemoryRecord{
		ID:        "rec-2",
		Text:      "user prefers concise answers",
		Type:      types.TypePersonal,
		Embedding: []float32{0.5, 0.5},
		Metadata: types.Metadata{
			Timestamp:  now,
			Importance: 0.7,
			UserID:     "u1",
			Subtype:    types.SubtypePreference,
			Refinement: "communication",
		},
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back types.MemoryRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.ID != rec.ID || back.Type != rec.Type || back.Metadata.UserID != "u1" {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if !back.Metadata.Timestamp.Equal(now) {
		t.Errorf("timestamp round trip mismatch: %v", back.Metadata.Timestamp)
	}
}

func TestBackupRecordHelpers(t *testing.T) {
	rec := &types.BackupRecord{
		Timestamp:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		RetentionDays: 7,
		MemoryCounts:  map[string]int{"core": 4, "episodic": 10},
	}

	if got := rec.TotalMemories(); got != 14 {
		t.Errorf("TotalMemories = %d, want 14", got)
	}

	want := time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC)
	if got := rec.ExpiresAt(); !got.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got, want)
	}
}

func TestIsValidBackupType(t *testing.T) {
	for _, valid := range types.ValidBackupTypes {
		if !types.IsValidBackupType(valid) {
			t.Errorf("IsValidBackupType(%q) = false, want true", valid)
		}
	}
	if types.IsValidBackupType("hourly") {
		t.Error("IsValidBackupType(hourly) = true, want false")
	}
}
