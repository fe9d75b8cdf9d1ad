package audit

import (
	"fmt"
	"sort"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

const (
	maxBriefFindings = 11

	registryPenalty = 20
	hostingPenalty  = 15
)

// Highlight levels shown in the brief.
const (
	HighlightCritical = "critical"
	HighlightWarning  = "warning"
	HighlightOK       = "ok"
)

// Highlight is the compact shape of one item in the brief.
type Highlight struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Level       string `json:"level"`
	Description string `json:"description"`
	LawRef      string `json:"law_ref,omitempty"`
}

// CallToAction closes the brief with the upsell block.
type CallToAction struct {
	Title  string `json:"title"`
	Text   string `json:"text"`
	Action string `json:"action"`
}

// BriefReport is the condensed teaser view of an audit.
type BriefReport struct {
	URL         string       `json:"url"`
	Score       ScoreResult  `json:"score"`
	Highlights  []Highlight  `json:"highlights"`
	HiddenCount int          `json:"hidden_count"`
	CTA         CallToAction `json:"cta"`
}

// BriefInput carries everything the composer needs.
type BriefInput struct {
	URL      string
	Findings []Finding
	Score    ScoreResult
	Registry *registry.Result
	Hosting  *HostingInfo
}

// ComposeBrief builds the highlights list. Score adjustments are applied to a
// copy; in.Score is left untouched.
func ComposeBrief(in BriefInput) BriefReport {
	score := in.Score
	var highlights []Highlight

	if reg := in.Registry; reg != nil {
		switch {
		case reg.IsRegistered:
			score.Passed++
			highlights = append(highlights, Highlight{
				ID:          "registry",
				Title:       "Operator is listed in the personal-data operators registry",
				Level:       HighlightOK,
				Description: registryOKText(reg),
				LawRef:      "152-FZ art. 22",
			})
		case reg.Confidence != registry.ConfidenceNone:
			score.Percent = clampPercent(score.Percent - registryPenalty)
			score.Severity = SeverityCritical
			highlights = append([]Highlight{{
				ID:          "registry",
				Title:       "Operator not found in the personal-data operators registry",
				Level:       HighlightCritical,
				Description: fmt.Sprintf("No registry record was found for tax ID %s. Processing personal data without notifying the regulator is an administrative offence.", reg.TaxID),
				LawRef:      "152-FZ art. 22",
			}}, highlights...)
		}
	}

	if h := in.Hosting; h != nil {
		switch h.Class {
		case HostingForeign:
			score.Percent = clampPercent(score.Percent - hostingPenalty)
			score.Severity = worse(score.Severity, SeverityHigh)
			highlights = append(highlights, Highlight{
				ID:          "hosting",
				Title:       "Website is hosted outside the country",
				Level:       HighlightCritical,
				Description: hostingText(h),
				LawRef:      "152-FZ art. 18 p. 5",
			})
		case HostingDomestic:
			highlights = append(highlights, Highlight{
				ID:          "hosting",
				Title:       "Website is hosted domestically",
				Level:       HighlightOK,
				Description: hostingText(h),
				LawRef:      "152-FZ art. 18 p. 5",
			})
		}
	}
	score.Severity = worse(score.Severity, Band(score.Percent))

	ordered := orderForBrief(in.Findings)
	shown := ordered
	if len(shown) > maxBriefFindings {
		shown = shown[:maxBriefFindings]
	}
	for _, f := range shown {
		highlights = append(highlights, toHighlight(f))
	}

	return BriefReport{
		URL:         in.URL,
		Score:       score,
		Highlights:  highlights,
		HiddenCount: len(ordered) - len(shown),
		CTA:         callToAction(score),
	}
}

func orderForBrief(findings []Finding) []Finding {
	out := make([]Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Status.rank() > out[j].Status.rank()
	})
	return out
}

func toHighlight(f Finding) Highlight {
	h := Highlight{
		ID:          f.ID,
		Title:       f.Name,
		Description: f.Description,
	}
	switch f.Status {
	case StatusFailed:
		h.Level = HighlightCritical
	case StatusWarning:
		h.Level = HighlightWarning
	default:
		h.Level = HighlightOK
	}
	if len(f.LawRefs) > 0 {
		h.LawRef = f.LawRefs[0].Law + " " + f.LawRefs[0].Article
	}
	return h
}

func callToAction(score ScoreResult) CallToAction {
	cta := CallToAction{
		Title:  "Get the full compliance report",
		Action: "order_full_report",
	}
	if score.Failed > 0 {
		cta.Text = fmt.Sprintf("%d critical issue(s) found. The full report lists every finding with evidence, legal references and step-by-step remediation.", score.Failed)
	} else {
		cta.Text = "The full report lists every check with evidence, legal references and recommendations to keep the site compliant."
	}
	return cta
}

func registryOKText(reg *registry.Result) string {
	if reg.RegistrationNumber != "" {
		return fmt.Sprintf("Registry record %s (%s).", reg.RegistrationNumber, reg.CompanyName)
	}
	return reg.Details
}

func hostingText(h *HostingInfo) string {
	if h.Reason != "" {
		return h.Reason
	}
	return "Server address " + h.IP
}

func worse(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
