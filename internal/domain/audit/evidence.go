package audit

import (
	"strings"
	"unicode/utf8"
)

const (
	BucketCap      = 10
	maxSnippetLen  = 350
	maxMarkersLen  = 200
	markersJoinSep = "; "
)

// Bucket names of the evidence bundle, in routing priority order.
const (
	BucketPolicy    = "policy"
	BucketConsent   = "consent"
	BucketCookies   = "cookies"
	BucketContacts  = "contacts"
	BucketTechnical = "technical"
)

// EvidenceItem is a compact view of one finding for the language-model layer.
type EvidenceItem struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Markers  string `json:"markers,omitempty"`
	Status   Status `json:"status"`
	Category string `json:"category"`
}

// EvidenceBundle buckets findings into five fixed semantic categories.
type EvidenceBundle struct {
	Policy    []EvidenceItem `json:"policy"`
	Consent   []EvidenceItem `json:"consent"`
	Cookies   []EvidenceItem `json:"cookies"`
	Contacts  []EvidenceItem `json:"contacts"`
	Technical []EvidenceItem `json:"technical"`
}

// Len returns the total number of items across buckets.
func (b EvidenceBundle) Len() int {
	return len(b.Policy) + len(b.Consent) + len(b.Cookies) + len(b.Contacts) + len(b.Technical)
}

type bucketRule struct {
	name     string
	keywords []string
}

// routing order is significant: first match wins.
var bucketRules = []bucketRule{
	{BucketPolicy, []string{"privacy_policy", "privacy policy", "privacy notice", "политик"}},
	{BucketConsent, []string{"consent", "согласи"}},
	{BucketCookies, []string{"cookie", "tracking", "tracker", "analytics", "pixel", "метрик"}},
	{BucketContacts, []string{"contact", "registration", "company", "operator", "terms", "legal", "реквизит", "оферт"}},
	{BucketTechnical, []string{"security", "https", "tls", "header", "hsts", "csp", "transport"}},
}

// Bundle routes each finding into at most one bucket. Findings matching no
// bucket are left out; a full bucket ignores further matches.
func Bundle(findings []Finding, url string) EvidenceBundle {
	var b EvidenceBundle
	for _, f := range findings {
		bucket := routeBucket(f)
		if bucket == nil {
			continue
		}
		slot := b.slot(*bucket)
		if len(*slot) >= BucketCap {
			continue
		}
		*slot = append(*slot, EvidenceItem{
			ID:       f.ID,
			URL:      url,
			Snippet:  truncate(snippetOf(f), maxSnippetLen),
			Markers:  truncate(strings.Join(f.Evidence, markersJoinSep), maxMarkersLen),
			Status:   f.Status,
			Category: f.Category,
		})
	}
	return b
}

func routeBucket(f Finding) *string {
	hay := strings.ToLower(f.Category + " " + f.Name)
	for i := range bucketRules {
		for _, kw := range bucketRules[i].keywords {
			if strings.Contains(hay, kw) {
				return &bucketRules[i].name
			}
		}
	}
	return nil
}

func (b *EvidenceBundle) slot(name string) *[]EvidenceItem {
	switch name {
	case BucketPolicy:
		return &b.Policy
	case BucketConsent:
		return &b.Consent
	case BucketCookies:
		return &b.Cookies
	case BucketContacts:
		return &b.Contacts
	default:
		return &b.Technical
	}
}

func snippetOf(f Finding) string {
	if f.Details == "" {
		return f.Description
	}
	return f.Description + " " + f.Details
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
