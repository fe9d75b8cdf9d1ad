package audit

import (
	"time"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusFailed:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Severity band derived from the score.
type Severity string

const (
	SeverityCritical  Severity = "critical"
	SeverityHigh      Severity = "high"
	SeverityMedium    Severity = "medium"
	SeverityLow       Severity = "low"
	SeverityExcellent Severity = "excellent"
)

// Rank grows with risk: excellent=0 ... critical=4.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// TLSInfo describes the peer certificate of an https target.
type TLSInfo struct {
	Valid    bool      `json:"valid"`
	Issuer   string    `json:"issuer,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Protocol string    `json:"protocol,omitempty"`
}

// Snapshot is one faithful rendering of the target page. Immutable once built.
type Snapshot struct {
	URL            string            `json:"url"`
	HTML           string            `json:"-"`
	StatusCode     int               `json:"status_code"`
	Headers        map[string]string `json:"headers"`
	TLS            *TLSInfo          `json:"tls,omitempty"`
	ResponseTimeMS int64             `json:"response_time_ms"`
	Truncated      bool              `json:"truncated,omitempty"`
	Rendered       bool              `json:"rendered,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Failed reports whether the snapshot carries a fetch error.
func (s Snapshot) Failed() bool { return s.Error != "" }

// Header returns a header value by lower-case name.
func (s Snapshot) Header(name string) (string, bool) {
	v, ok := s.Headers[name]
	return v, ok
}

// LawRef cites the legal basis of a finding.
type LawRef struct {
	Law     string `json:"law"`
	Article string `json:"article"`
	Note    string `json:"note,omitempty"`
}

// Finding is one structured result of a single compliance check.
type Finding struct {
	ID               string   `json:"id"`
	CheckID          string   `json:"check_id"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	Status           Status   `json:"status"`
	Description      string   `json:"description"`
	Details          string   `json:"details,omitempty"`
	Evidence         []string `json:"evidence,omitempty"`
	LawRefs          []LawRef `json:"law_refs,omitempty"`
	AggregationKey   string   `json:"aggregation_key"`
	RemediationSteps []string `json:"remediation_steps,omitempty"`
}

// ScoreResult is derived from a finding list; never stored incrementally.
type ScoreResult struct {
	Percent       int      `json:"percent"`
	Severity      Severity `json:"severity"`
	Passed        int      `json:"passed"`
	Warning       int      `json:"warning"`
	Failed        int      `json:"failed"`
	CriticalCount int      `json:"critical_count"`
}

// HostingClass is the data-localization signal for the target host.
type HostingClass string

const (
	HostingDomestic HostingClass = "domestic"
	HostingForeign  HostingClass = "foreign"
	HostingUnknown  HostingClass = "unknown"
)

// HostingInfo is supplied by the hosting classifier collaborator.
type HostingInfo struct {
	Class  HostingClass `json:"class"`
	IP     string       `json:"ip,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// AIResult is the typed, validated reply of one language-model backend.
type AIResult struct {
	Provider           string    `json:"provider"`
	Summary            string    `json:"summary"`
	Recommendations    []string  `json:"recommendations"`
	AdditionalFindings []Finding `json:"additional_findings"`
	// Unavailable marks a placeholder produced when no backend answered.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Score ranks a reply for the race strategy: one point for a substantive
// summary, one per recommendation, two per additional finding.
func (r AIResult) Score() int {
	score := 0
	if len([]rune(r.Summary)) > 20 {
		score++
	}
	score += len(r.Recommendations)
	score += 2 * len(r.AdditionalFindings)
	return score
}

// Report is the aggregate root returned by a single audit run.
type Report struct {
	ID         string           `json:"id"`
	URL        string           `json:"url"`
	Level2     bool             `json:"level2"`
	Snapshot   Snapshot         `json:"snapshot"`
	Findings   []Finding        `json:"findings"`
	Evidence   EvidenceBundle   `json:"evidence"`
	Registry   *registry.Result `json:"registry,omitempty"`
	Hosting    *HostingInfo     `json:"hosting,omitempty"`
	AI         *AIResult        `json:"ai,omitempty"`
	AISummary  string           `json:"ai_summary,omitempty"`
	Score      ScoreResult      `json:"score"`
	Brief      BriefReport      `json:"brief"`
	ArchiveURL string           `json:"archive_url,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}
