package compliance

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

// Finding categories.
const (
	CategorySecurity      = "security"
	CategoryPrivacyPolicy = "privacy_policy"
	CategoryConsent       = "consent"
	CategoryCookies       = "cookies"
	CategoryContacts      = "contacts"
	CategoryLegal         = "legal"
	CategoryTracking      = "tracking"
)

// Check is one named, stateless predicate over a parsed page.
type Check struct {
	ID       string
	Name     string
	Category string
	Run      func(p *Page) []audit.Finding
}

// DefaultChecks is the fixed, ordered battery run for every audit.
func DefaultChecks() []Check {
	return []Check{
		{ID: "https", Name: "HTTPS transport", Category: CategorySecurity, Run: checkHTTPS},
		{ID: "hsts", Name: "Strict-Transport-Security header", Category: CategorySecurity, Run: checkHSTS},
		{ID: "csp", Name: "Content-Security-Policy header", Category: CategorySecurity, Run: checkCSP},
		{ID: "x_frame_options", Name: "X-Frame-Options header", Category: CategorySecurity, Run: checkXFrameOptions},
		{ID: "x_content_type_options", Name: "X-Content-Type-Options header", Category: CategorySecurity, Run: checkXContentTypeOptions},
		{ID: "referrer_policy", Name: "Referrer-Policy header", Category: CategorySecurity, Run: checkReferrerPolicy},
		{ID: "permissions_policy", Name: "Permissions-Policy header", Category: CategorySecurity, Run: checkPermissionsPolicy},
		{ID: "privacy_policy", Name: "Privacy policy", Category: CategoryPrivacyPolicy, Run: checkPrivacyPolicy},
		{ID: "consent_checkbox", Name: "Consent to personal data processing", Category: CategoryConsent, Run: checkConsent},
		{ID: "cookie_banner", Name: "Cookie notice", Category: CategoryCookies, Run: checkCookieBanner},
		{ID: "contacts", Name: "Operator contact information", Category: CategoryContacts, Run: checkContacts},
		{ID: "company_registration", Name: "Company registration number", Category: CategoryLegal, Run: checkRegistration},
		{ID: "terms_of_service", Name: "Terms of service", Category: CategoryLegal, Run: checkTerms},
		{ID: "tracker_google_analytics", Name: "Google Analytics tracking", Category: CategoryTracking, Run: checkGoogleAnalytics},
		{ID: "tracker_yandex_metrica", Name: "Yandex.Metrica tracking", Category: CategoryTracking, Run: checkYandexMetrica},
		{ID: "tracker_social_pixel", Name: "Social network pixel tracking", Category: CategoryTracking, Run: checkSocialPixel},
	}
}

// Checker runs an ordered battery of checks.
type Checker struct {
	checks []Check
}

// NewChecker uses DefaultChecks when none are given.
func NewChecker(checks ...Check) *Checker {
	if len(checks) == 0 {
		checks = DefaultChecks()
	}
	return &Checker{checks: checks}
}

// Run evaluates every check in order against one snapshot.
func (c *Checker) Run(s audit.Snapshot) []audit.Finding {
	return c.RunPage(ParsePage(s))
}

// RunPage evaluates every check against an already parsed page. A panicking
// check yields a synthetic finding and never stops the batch.
func (c *Checker) RunPage(p *Page) []audit.Finding {
	out := make([]audit.Finding, 0, len(c.checks))
	for _, chk := range c.checks {
		out = append(out, runIsolated(chk, p)...)
	}
	return out
}

func runIsolated(chk Check, p *Page) (res []audit.Finding) {
	defer func() {
		if r := recover(); r != nil {
			res = []audit.Finding{{
				ID:             uuid.NewString(),
				CheckID:        chk.ID,
				Name:           chk.Name + " (check errored)",
				Category:       chk.Category,
				Status:         audit.StatusWarning,
				Description:    "The check could not be completed; the result needs manual review.",
				Details:        fmt.Sprint(r),
				AggregationKey: chk.ID,
			}}
		}
	}()
	return chk.Run(p)
}

// rule holds the static texts of one check.
type rule struct {
	id          string
	name        string
	category    string
	lawRefs     []audit.LawRef
	remediation []string
}

func (r rule) finding(status audit.Status, description, details string, evidence ...string) audit.Finding {
	f := audit.Finding{
		ID:             uuid.NewString(),
		CheckID:        r.id,
		Name:           r.name,
		Category:       r.category,
		Status:         status,
		Description:    description,
		Details:        details,
		Evidence:       evidence,
		LawRefs:        r.lawRefs,
		AggregationKey: r.id,
	}
	if status != audit.StatusPassed {
		f.RemediationSteps = r.remediation
	}
	return f
}

func (r rule) one(status audit.Status, description, details string, evidence ...string) []audit.Finding {
	return []audit.Finding{r.finding(status, description, details, evidence...)}
}

const (
	law152   = "152-FZ"
	law149   = "149-FZ"
	lawKoAP  = "KoAP RF"
	lawZoZPP = "Consumer Protection Law"
	lawCivil = "Civil Code RF"
)
