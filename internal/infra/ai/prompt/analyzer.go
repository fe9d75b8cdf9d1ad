package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

const (
	maxRecommendations = 15
	maxAdditional      = 10
)

// reply is the loose wire shape; every field is optional.
type reply struct {
	Summary          string          `json:"summary"`
	Recommendations  json.RawMessage `json:"recommendations"`
	AdditionalIssues []issue         `json:"additional_issues"`
}

type issue struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	LawRef         string `json:"law_ref"`
	Recommendation string `json:"recommendation"`
}

var reSlug = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ExtractJSON returns the first balanced {...} block of raw, skipping braces
// inside string literals.
func ExtractJSON(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	for start >= 0 {
		if end := matchBrace(raw, start); end > 0 {
			return raw[start : end+1], nil
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ai.ErrNoJSON
}

func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseReply turns a raw backend reply into a typed result. Missing fields
// take empty defaults; a reply with nothing usable is an error.
func ParseReply(provider, raw string) (audit.AIResult, error) {
	if strings.TrimSpace(raw) == "" {
		return audit.AIResult{}, ai.ErrEmptyReply
	}
	block, err := ExtractJSON(raw)
	if err != nil {
		return audit.AIResult{}, err
	}
	var r reply
	if err := json.Unmarshal([]byte(block), &r); err != nil {
		return audit.AIResult{}, fmt.Errorf("%w: %v", ai.ErrNoJSON, err)
	}

	res := audit.AIResult{
		Provider:           provider,
		Summary:            strings.TrimSpace(r.Summary),
		Recommendations:    recommendations(r.Recommendations),
		AdditionalFindings: []audit.Finding{},
	}
	for _, is := range r.AdditionalIssues {
		if len(res.AdditionalFindings) == maxAdditional {
			break
		}
		if f, ok := toFinding(is); ok {
			res.AdditionalFindings = append(res.AdditionalFindings, f)
		}
	}
	if res.Summary == "" && len(res.Recommendations) == 0 && len(res.AdditionalFindings) == 0 {
		return audit.AIResult{}, ai.ErrEmptyReply
	}
	return res, nil
}

// recommendations accepts either a list of strings or a list of objects with
// a text-like field, which some models return despite the schema.
func recommendations(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var single string
		if json.Unmarshal(raw, &single) == nil && strings.TrimSpace(single) != "" {
			out = append(out, strings.TrimSpace(single))
		}
		return out
	}
	for _, it := range items {
		if len(out) == maxRecommendations {
			break
		}
		var s string
		if json.Unmarshal(it, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]any
		if json.Unmarshal(it, &obj) != nil {
			continue
		}
		for _, k := range []string{"text", "recommendation", "action", "title"} {
			if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
				out = append(out, strings.TrimSpace(v))
				break
			}
		}
	}
	return out
}

func toFinding(is issue) (audit.Finding, bool) {
	title := strings.TrimSpace(is.Title)
	if title == "" {
		return audit.Finding{}, false
	}
	status := audit.StatusWarning
	switch strings.ToLower(strings.TrimSpace(is.Severity)) {
	case "critical", "high":
		status = audit.StatusFailed
	}
	category := strings.ToLower(strings.TrimSpace(is.Category))
	if category == "" {
		category = "ai"
	}
	key := "ai:" + strings.Trim(reSlug.ReplaceAllString(strings.ToLower(title), "_"), "_")

	f := audit.Finding{
		ID:             uuid.NewString(),
		CheckID:        "ai_analysis",
		Name:           title,
		Category:       category,
		Status:         status,
		Description:    strings.TrimSpace(is.Description),
		AggregationKey: key,
	}
	if is.LawRef != "" {
		f.LawRefs = []audit.LawRef{{Law: strings.TrimSpace(is.LawRef)}}
	}
	if is.Recommendation != "" {
		f.RemediationSteps = []string{strings.TrimSpace(is.Recommendation)}
	}
	return f, true
}

// UnavailableNote opens a summary written without a model answer.
const UnavailableNote = "AI analysis is unavailable; the summary is built from automated checks only."

// FallbackSummary is the deterministic summary used when no backend answered.
// note says why; an empty note means UnavailableNote.
func FallbackSummary(note string, findings []audit.Finding) string {
	var failed, warned []string
	for _, f := range findings {
		switch f.Status {
		case audit.StatusFailed:
			failed = append(failed, f.Name)
		case audit.StatusWarning:
			warned = append(warned, f.Name)
		}
	}
	if note = strings.TrimSpace(note); note == "" {
		note = UnavailableNote
	}
	var b strings.Builder
	b.WriteString(note)
	b.WriteString(" ")
	switch {
	case len(failed) > 0:
		fmt.Fprintf(&b, "Critical issues (%d): %s.", len(failed), strings.Join(failed, ", "))
		if len(warned) > 0 {
			fmt.Fprintf(&b, " Also %d warning(s).", len(warned))
		}
	case len(warned) > 0:
		fmt.Fprintf(&b, "No critical issues. Warnings (%d): %s.", len(warned), strings.Join(warned, ", "))
	default:
		b.WriteString("All automated checks passed.")
	}
	return b.String()
}
