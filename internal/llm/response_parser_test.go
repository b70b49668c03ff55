package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/scrypster/strata/pkg/types"
)

// ============================================================================
// Tests for extractJSON
// ============================================================================

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON string
	}{
		{
			name:     "plain JSON object",
			input:    `{"key": "value"}`,
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with markdown code block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with triple backticks",
			input:    "```\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with surrounding text",
			input:    "Here is the reflection:\n{\"key\": \"value\"}\nEnd of reflection",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "nested JSON object",
			input:    `{"outer": {"inner": "value"}}`,
			wantJSON: `{"outer": {"inner": "value"}}`,
		},
		{
			name:     "braces inside strings",
			input:    `prefix {"summary": "uses { and } inside"} suffix`,
			wantJSON: `{"summary": "uses { and } inside"}`,
		},
		{
			name:     "JSON with escaped quotes in string",
			input:    `{"text": "He said \"hello\""}`,
			wantJSON: `{"text": "He said \"hello\""}`,
		},
		{
			name:     "JSON with backslash escapes",
			input:    `{"path": "C:\\Users\\test"}`,
			wantJSON: `{"path": "C:\\Users\\test"}`,
		},
		{
			name:     "no JSON present",
			input:    "just some text without json",
			wantJSON: "just some text without json",
		},
		{
			name:     "empty string",
			input:    "",
			wantJSON: "",
		},
		{
			name:     "JSON with newlines in strings",
			input:    `{"text": "line1\nline2"}`,
			wantJSON: `{"text": "line1\nline2"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSON(tt.input)
			if got != tt.wantJSON {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.wantJSON)
			}
		})
	}
}

// ============================================================================
// Tests for ParseReflectionResponse
// ============================================================================

func TestParseReflectionResponse(t *testing.T) {
	tests := []struct {
		name         string
		jsonStr      string
		wantErr      bool
		wantSummary  string
		wantInsights int
		wantPatterns int
		wantThemes   int
	}{
		{
			name: "valid full response",
			jsonStr: `{
				"summary": "A quiet day dominated by deployment work.",
				"insights": [{"text": "Deploys cluster in the afternoon", "category": "operations", "importance": 0.8}],
				"patterns": [{"pattern": "Questions repeat after releases", "evidence": "Three post-release requests", "confidence": 0.7}],
				"themes": ["deployment", "support"],
				"focus_areas": ["release notes"]
			}`,
			wantSummary:  "A quiet day dominated by deployment work.",
			wantInsights: 1,
			wantPatterns: 1,
			wantThemes:   2,
		},
		{
			name:        "markdown code block",
			jsonStr:     "```json\n{\"summary\": \"fenced\", \"insights\": [], \"patterns\": []}\n```",
			wantSummary: "fenced",
		},
		{
			name:        "surrounding prose",
			jsonStr:     "Here is the reflection you asked for:\n{\"summary\": \"wrapped\"}\nHope this helps!",
			wantSummary: "wrapped",
		},
		{
			name:        "summary is trimmed",
			jsonStr:     `{"summary": "  padded  "}`,
			wantSummary: "padded",
		},
		{
			name:         "empty insight text is dropped",
			jsonStr:      `{"summary": "s", "insights": [{"text": "", "category": "noise", "importance": 0.9}, {"text": "kept", "category": "work", "importance": 0.5}]}`,
			wantSummary:  "s",
			wantInsights: 1,
		},
		{
			name:         "blank pattern is dropped",
			jsonStr:      `{"summary": "s", "patterns": [{"pattern": "   ", "evidence": "none", "confidence": 0.5}]}`,
			wantSummary:  "s",
			wantPatterns: 0,
		},
		{
			name:        "empty theme strings are filtered",
			jsonStr:     `{"summary": "s", "themes": ["", "theme", "  "]}`,
			wantSummary: "s",
			wantThemes:  1,
		},
		{
			name:    "malformed JSON",
			jsonStr: `{"summary": "unterminated`,
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			jsonStr: "the model refused to answer",
			wantErr: true,
		},
		{
			name:    "empty string",
			jsonStr: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReflectionResponse(tt.jsonStr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseReflectionResponse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Summary != tt.wantSummary {
				t.Errorf("ParseReflectionResponse() summary = %q, want %q", got.Summary, tt.wantSummary)
			}
			if len(got.Insights) != tt.wantInsights {
				t.Errorf("ParseReflectionResponse() got %d insights, want %d", len(got.Insights), tt.wantInsights)
			}
			if len(got.Patterns) != tt.wantPatterns {
				t.Errorf("ParseReflectionResponse() got %d patterns, want %d", len(got.Patterns), tt.wantPatterns)
			}
			if len(got.Themes) != tt.wantThemes {
				t.Errorf("ParseReflectionResponse() got %d themes, want %d", len(got.Themes), tt.wantThemes)
			}
		})
	}
}

func TestParseReflectionResponse_Sanitization(t *testing.T) {
	raw := `{
		"summary": "s",
		"insights": [{"text": "kept", "category": "", "importance": 1.7}],
		"patterns": [{"pattern": "kept pattern", "evidence": "some", "confidence": -0.2}]
	}`
	got, err := ParseReflectionResponse(raw)
	if err != nil {
		t.Fatalf("ParseReflectionResponse() unexpected error: %v", err)
	}
	if len(got.Insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got.Insights))
	}
	if got.Insights[0].Category != "general" {
		t.Errorf("missing category should default to %q, got %q", "general", got.Insights[0].Category)
	}
	if got.Insights[0].Importance != 1.0 {
		t.Errorf("importance should clamp to 1.0, got %v", got.Insights[0].Importance)
	}
	if len(got.Patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(got.Patterns))
	}
	if got.Patterns[0].Confidence != 0.0 {
		t.Errorf("confidence should clamp to 0.0, got %v", got.Patterns[0].Confidence)
	}
}

// ============================================================================
// Tests for prompt construction
// ============================================================================

func TestFormatMemoriesForReflection(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	records := []*types.MemoryRecord{
		{
			Text: "first memory",
			Type: types.TypeEpisodic,
			Metadata: types.Metadata{
				Timestamp:  ts,
				Importance: 0.75,
			},
		},
		{
			Text: "second memory",
			Type: types.TypeSemantic,
			Metadata: types.Metadata{
				Timestamp:  ts.Add(time.Hour),
				Importance: 0.5,
			},
		},
	}

	out := FormatMemoriesForReflection(records)
	for _, want := range []string{
		"1. [2026-03-14 09:30:00] (Importance: 0.75, Type: episodic)",
		"   first memory",
		"2. [2026-03-14 10:30:00] (Importance: 0.50, Type: semantic)",
		"   second memory",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatMemoriesForReflection() output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestReflectionPrompt(t *testing.T) {
	prompt := ReflectionPrompt("weekly", "1. [ts] memory list")
	for _, want := range []string{"weekly", "1. [ts] memory list", `"focus_areas"`, "ONLY the JSON object"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("ReflectionPrompt() missing %q", want)
		}
	}
}
