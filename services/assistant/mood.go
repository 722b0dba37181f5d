package assistant

import (
	"encoding/json"
	"strings"

	"github.com/upb/maternal-assistant/services/providers"
)

// MoodNeutral is reported whenever the reply cannot be understood
const MoodNeutral = "neutral"

const defaultConfidence = 0.5

var knownMoods = map[string]struct{}{
	"happy":       {},
	"calm":        {},
	"neutral":     {},
	"anxious":     {},
	"sad":         {},
	"stressed":    {},
	"overwhelmed": {},
	"angry":       {},
	"tired":       {},
}

var defaultSuggestions = []string{
	"Take a few slow, deep breaths and notice how you feel.",
	"Reach out to someone you trust and share how your day is going.",
	"Rest when you can, even a short break helps.",
}

// MoodAnalysis is the structured result of a mood classification
type MoodAnalysis struct {
	Mood        string            `json:"mood"`
	Confidence  float64           `json:"confidence"`
	Suggestions []string          `json:"suggestions"`
	Degraded    bool              `json:"degraded"`
	Result      *providers.Result `json:"-"`
}

// DefaultMoodAnalysis is returned when the provider reply is not usable JSON
func DefaultMoodAnalysis() *MoodAnalysis {
	return &MoodAnalysis{
		Mood:        MoodNeutral,
		Confidence:  defaultConfidence,
		Suggestions: append([]string(nil), defaultSuggestions...),
		Degraded:    true,
	}
}

type moodPayload struct {
	Mood        string   `json:"mood"`
	Confidence  *float64 `json:"confidence"`
	Suggestions []string `json:"suggestions"`
}

// ParseMoodAnalysis reads the JSON object out of a model reply. Code fences
// and surrounding prose are tolerated. It reports false when no known mood
// can be extracted.
func ParseMoodAnalysis(text string) (*MoodAnalysis, bool) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, false
	}

	var payload moodPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false
	}

	mood := strings.ToLower(strings.TrimSpace(payload.Mood))
	if _, ok := knownMoods[mood]; !ok {
		return nil, false
	}

	analysis := &MoodAnalysis{
		Mood:       mood,
		Confidence: defaultConfidence,
	}
	if payload.Confidence != nil {
		analysis.Confidence = clamp(*payload.Confidence, 0, 1)
	}
	for _, s := range payload.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			analysis.Suggestions = append(analysis.Suggestions, s)
		}
	}
	if len(analysis.Suggestions) == 0 {
		analysis.Suggestions = append([]string(nil), defaultSuggestions...)
	}
	return analysis, true
}

func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
