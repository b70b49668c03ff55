package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scrypster/strata/pkg/types"
)

// ReflectionInsight is a single insight extracted from an LLM reflection.
type ReflectionInsight struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Importance float64 `json:"importance"`
}

// ReflectionPattern is a recurring pattern the LLM observed across memories.
type ReflectionPattern struct {
	Pattern    string  `json:"pattern"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}

// ReflectionResponse is the complete parsed reflection payload.
type ReflectionResponse struct {
	Summary    string              `json:"summary"`
	Insights   []ReflectionInsight `json:"insights"`
	Patterns   []ReflectionPattern `json:"patterns"`
	Themes     []string            `json:"themes"`
	FocusAreas []string            `json:"focus_areas"`
}

// extractJSON extracts the first valid JSON object from a string that may
// contain extra text. This handles cases where LLMs add explanations before
// or after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	// Find the matching closing brace, ignoring braces inside strings.
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseReflectionResponse parses a reflection JSON payload and sanitizes its
// entries. Insights without text and patterns without a description are
// dropped rather than failing the whole reflection; importance and
// confidence values are clamped to [0, 1]. Only malformed JSON is an error.
func ParseReflectionResponse(raw string) (*ReflectionResponse, error) {
	jsonStr := extractJSON(raw)

	var resp ReflectionResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse reflection response: %w", err)
	}

	resp.Summary = strings.TrimSpace(resp.Summary)

	insights := resp.Insights[:0]
	for _, insight := range resp.Insights {
		insight.Text = strings.TrimSpace(insight.Text)
		if insight.Text == "" {
			continue
		}
		if insight.Category == "" {
			insight.Category = "general"
		}
		insight.Importance = types.ClampImportance(insight.Importance)
		insights = append(insights, insight)
	}
	resp.Insights = insights

	patterns := resp.Patterns[:0]
	for _, pattern := range resp.Patterns {
		pattern.Pattern = strings.TrimSpace(pattern.Pattern)
		if pattern.Pattern == "" {
			continue
		}
		pattern.Confidence = types.ClampImportance(pattern.Confidence)
		patterns = append(patterns, pattern)
	}
	resp.Patterns = patterns

	resp.Themes = dropEmpty(resp.Themes)
	resp.FocusAreas = dropEmpty(resp.FocusAreas)
	return &resp, nil
}

func dropEmpty(items []string) []string {
	out := items[:0]
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
