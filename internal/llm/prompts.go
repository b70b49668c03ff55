package llm

import (
	"fmt"
	"strings"

	"github.com/scrypster/strata/pkg/types"
)

// memoryTimestampFormat is the human-readable timestamp used when listing
// memories inside a prompt.
const memoryTimestampFormat = "2006-01-02 15:04:05"

// FormatMemoriesForReflection renders records as a numbered list for the
// reflection prompt. Each entry carries its timestamp, importance, and type
// so the model can weigh recency and significance.
func FormatMemoriesForReflection(records []*types.MemoryRecord) string {
	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. [%s] (Importance: %.2f, Type: %s)\n",
			i+1, rec.Metadata.Timestamp.Format(memoryTimestampFormat), rec.Metadata.Importance, rec.Type)
		fmt.Fprintf(&b, "   %s\n\n", rec.Text)
	}
	return b.String()
}

// ReflectionPrompt generates the analysis prompt for a daily or weekly
// reflection over the formatted memory list.
//
// Parameters:
//   - reflectionType: "daily" or "weekly"
//   - memoryText: output of FormatMemoriesForReflection
//
// Returns:
//   - A prompt string that will elicit a JSON-only reflection from the LLM
func ReflectionPrompt(reflectionType, memoryText string) string {
	return fmt.Sprintf(`You are an advanced reflection system that analyzes memories and generates insights. Analyze the provided memories and create a comprehensive reflection. Be insightful, thoughtful, and look for patterns, themes, and important information. Focus on extracting meaningful insights rather than just summarizing individual memories.

Please analyze these memories and create a %s reflection:

%s

Please format your response as a JSON object with the following structure:
{
  "summary": "A comprehensive summary of key events and activities",
  "insights": [
    {"text": "First insight", "category": "category1", "importance": 0.8},
    {"text": "Second insight", "category": "category2", "importance": 0.6}
  ],
  "patterns": [
    {"pattern": "Description of pattern", "evidence": "Evidence from memories", "confidence": 0.7}
  ],
  "themes": ["theme1", "theme2", "theme3"],
  "focus_areas": ["area1", "area2"]
}

Make sure the JSON is valid and properly formatted. Respond with ONLY the JSON object, no markdown and no extra text.`,
		reflectionType, memoryText)
}
