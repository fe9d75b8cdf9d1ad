package compliance

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

var securityLaw = []audit.LawRef{
	{Law: law152, Article: "art. 19", Note: "operator must apply technical measures to protect personal data"},
}

var (
	httpsRule = rule{
		id: "https", name: "HTTPS transport", category: CategorySecurity,
		lawRefs: []audit.LawRef{
			{Law: law152, Article: "art. 19", Note: "personal data must be protected in transit"},
			{Law: lawKoAP, Article: "art. 13.12"},
		},
		remediation: []string{
			"Issue a TLS certificate for the domain (for example with Let's Encrypt).",
			"Redirect every http:// request to https:// with a 301 response.",
			"Renew certificates automatically before they expire.",
		},
	}
	hstsRule = rule{
		id: "hsts", name: "Strict-Transport-Security header", category: CategorySecurity,
		lawRefs:     securityLaw,
		remediation: []string{"Send Strict-Transport-Security: max-age=31536000; includeSubDomains on every https response."},
	}
	cspRule = rule{
		id: "csp", name: "Content-Security-Policy header", category: CategorySecurity,
		lawRefs:     securityLaw,
		remediation: []string{"Define a Content-Security-Policy that whitelists script, style and frame sources."},
	}
	xfoRule = rule{
		id: "x_frame_options", name: "X-Frame-Options header", category: CategorySecurity,
		lawRefs:     securityLaw,
		remediation: []string{"Send X-Frame-Options: DENY (or SAMEORIGIN) to prevent clickjacking on forms."},
	}
	xctoRule = rule{
		id: "x_content_type_options", name: "X-Content-Type-Options header", category: CategorySecurity,
		lawRefs:     securityLaw,
		remediation: []string{"Send X-Content-Type-Options: nosniff."},
	}
	referrerRule = rule{
		id: "referrer_policy", name: "Referrer-Policy header", category: CategorySecurity,
		lawRefs:     securityLaw,
		remediation: []string{"Send Referrer-Policy: strict-origin-when-cross-origin so URLs with personal data do not leak to third parties."},
	}
	permissionsRule = rule{
		id: "permissions_policy", name: "Permissions-Policy header", category: CategorySecurity,
		lawRefs:     securityLaw,
		remediation: []string{"Send a Permissions-Policy that disables camera, microphone and geolocation unless required."},
	}
)

var reMaxAge = regexp.MustCompile(`max-age\s*=\s*"?(\d+)`)

func checkHTTPS(p *Page) []audit.Finding {
	u, err := url.Parse(p.Snapshot.URL)
	if err != nil || u.Scheme != "https" {
		return httpsRule.one(audit.StatusFailed,
			"The site is served over plain HTTP; form data and cookies travel unencrypted.",
			"final url: "+p.Snapshot.URL)
	}
	tlsInfo := p.Snapshot.TLS
	if tlsInfo == nil {
		return httpsRule.one(audit.StatusPassed, "The site is served over HTTPS.", "")
	}
	if !tlsInfo.Valid {
		return httpsRule.one(audit.StatusFailed,
			"The TLS certificate is invalid or expired.",
			certDetails(tlsInfo))
	}
	if !tlsInfo.Expires.IsZero() && time.Until(tlsInfo.Expires) < 14*24*time.Hour {
		return httpsRule.one(audit.StatusWarning,
			"The TLS certificate expires in less than two weeks.",
			certDetails(tlsInfo))
	}
	return httpsRule.one(audit.StatusPassed, "The site is served over HTTPS with a valid certificate.", certDetails(tlsInfo))
}

func certDetails(t *audit.TLSInfo) string {
	parts := make([]string, 0, 3)
	if t.Issuer != "" {
		parts = append(parts, "issuer: "+t.Issuer)
	}
	if !t.Expires.IsZero() {
		parts = append(parts, "expires: "+t.Expires.Format("2006-01-02"))
	}
	if t.Protocol != "" {
		parts = append(parts, "protocol: "+t.Protocol)
	}
	return strings.Join(parts, ", ")
}

func checkHSTS(p *Page) []audit.Finding {
	v, ok := p.Snapshot.Header("strict-transport-security")
	if !ok {
		return hstsRule.one(audit.StatusWarning, "Strict-Transport-Security header is missing.", "")
	}
	m := reMaxAge.FindStringSubmatch(strings.ToLower(v))
	if m == nil || m[1] == "0" {
		return hstsRule.one(audit.StatusWarning, "Strict-Transport-Security header does not set a positive max-age.", "", v)
	}
	return hstsRule.one(audit.StatusPassed, "Strict-Transport-Security header is set.", "", v)
}

func checkCSP(p *Page) []audit.Finding {
	v, ok := p.Snapshot.Header("content-security-policy")
	if !ok || strings.TrimSpace(v) == "" {
		return cspRule.one(audit.StatusWarning, "Content-Security-Policy header is missing.", "")
	}
	return cspRule.one(audit.StatusPassed, "Content-Security-Policy header is set.", "", truncateEvidence(v))
}

func checkXFrameOptions(p *Page) []audit.Finding {
	if v, ok := p.Snapshot.Header("x-frame-options"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "deny", "sameorigin":
			return xfoRule.one(audit.StatusPassed, "X-Frame-Options header is set.", "", v)
		}
		return xfoRule.one(audit.StatusWarning, fmt.Sprintf("X-Frame-Options has an unsupported value %q.", v), "", v)
	}
	if csp, ok := p.Snapshot.Header("content-security-policy"); ok && strings.Contains(strings.ToLower(csp), "frame-ancestors") {
		return xfoRule.one(audit.StatusPassed, "Framing is restricted through CSP frame-ancestors.", "")
	}
	return xfoRule.one(audit.StatusWarning, "X-Frame-Options header is missing.", "")
}

func checkXContentTypeOptions(p *Page) []audit.Finding {
	v, ok := p.Snapshot.Header("x-content-type-options")
	if ok && strings.EqualFold(strings.TrimSpace(v), "nosniff") {
		return xctoRule.one(audit.StatusPassed, "X-Content-Type-Options header is set to nosniff.", "", v)
	}
	return xctoRule.one(audit.StatusWarning, "X-Content-Type-Options: nosniff is missing.", "")
}

var safeReferrerPolicies = map[string]bool{
	"no-referrer":                     true,
	"no-referrer-when-downgrade":      true,
	"same-origin":                     true,
	"origin":                          true,
	"strict-origin":                   true,
	"origin-when-cross-origin":        true,
	"strict-origin-when-cross-origin": true,
}

func checkReferrerPolicy(p *Page) []audit.Finding {
	v, ok := p.Snapshot.Header("referrer-policy")
	if !ok {
		return referrerRule.one(audit.StatusWarning, "Referrer-Policy header is missing.", "")
	}
	// comma lists are browser fallbacks; one safe token is enough
	for _, tok := range strings.Split(v, ",") {
		if safeReferrerPolicies[strings.ToLower(strings.TrimSpace(tok))] {
			return referrerRule.one(audit.StatusPassed, "Referrer-Policy header is set.", "", v)
		}
	}
	return referrerRule.one(audit.StatusWarning, "Referrer-Policy allows full URLs to leak to third parties.", "", v)
}

func checkPermissionsPolicy(p *Page) []audit.Finding {
	if v, ok := p.Snapshot.Header("permissions-policy"); ok && strings.TrimSpace(v) != "" {
		return permissionsRule.one(audit.StatusPassed, "Permissions-Policy header is set.", "", truncateEvidence(v))
	}
	if v, ok := p.Snapshot.Header("feature-policy"); ok && strings.TrimSpace(v) != "" {
		return permissionsRule.one(audit.StatusPassed, "Legacy Feature-Policy header is set.", "", truncateEvidence(v))
	}
	return permissionsRule.one(audit.StatusWarning, "Permissions-Policy header is missing.", "")
}

func truncateEvidence(s string) string {
	const max = 160
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
