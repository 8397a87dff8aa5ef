package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// Finding is one validated issue from the Critique stage.
type Finding struct {
	Issue     string  `json:"issue"`
	Severity  string  `json:"severity"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Severity levels, highest first.
const (
	SeverityCritical   = "critical"
	SeverityWarning    = "warning"
	SeveritySuggestion = "suggestion"
)

// ParseFindings extracts structured findings from raw Critique output.
// Model output is frequently wrapped in prose or markdown fences, so the
// text is trimmed to its outermost JSON array and repaired before
// unmarshalling. When no array can be recovered, the findings are nil and
// the caller falls back to the raw text.
func ParseFindings(raw string) []Finding {
	candidate := extractJSONArray(raw)
	if candidate == "" {
		log.Debug().Msg("critique output carries no JSON array, keeping raw text")
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		log.Warn().Err(err).Msg("critique JSON repair failed")
		return nil
	}

	var findings []Finding
	if err := json.Unmarshal([]byte(repaired), &findings); err != nil {
		log.Warn().Err(err).Msg("critique JSON unmarshal failed after repair")
		return nil
	}

	out := findings[:0]
	for _, f := range findings {
		if strings.TrimSpace(f.Issue) == "" {
			continue
		}
		f.Severity = normalizeSeverity(f.Severity)
		out = append(out, f)
	}
	return out
}

// extractJSONArray returns the substring spanning the first '[' through the
// last ']', stripping markdown fences first.
func extractJSONArray(raw string) string {
	s := raw
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = strings.ReplaceAll(s, "```json", "")
		s = strings.ReplaceAll(s, "```", "")
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityWarning:
		return SeverityWarning
	case SeveritySuggestion:
		return SeveritySuggestion
	default:
		return SeveritySuggestion
	}
}
