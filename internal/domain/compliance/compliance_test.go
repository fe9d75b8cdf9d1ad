package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

const nonCompliantHTML = `<html><head><title>Shop</title></head><body>
<h1>Best prices</h1>
<p>Call us: +7 (495) 123-45-67</p>
<form action="/lead"><input type="text" name="name"><input type="tel" name="phone"><button>Send</button></form>
</body></html>`

const compliantHTML = `<html><head><title>Shop</title></head><body>
<div class="cookie-banner">Мы используем файлы cookie для улучшения работы сайта. <button>Принять</button></div>
<form action="/lead">
  <input type="email" name="email">
  <label><input type="checkbox" name="agree"> Я даю согласие на обработку персональных данных</label>
  <button>Send</button>
</form>
<footer>
  <a href="/privacy">Политика конфиденциальности</a>
  <p>ООО «Ромашка», ОГРН 1027700132195, ИНН 7707083893</p>
  <p>info@romashka.ru, +7 (495) 123-45-67</p>
</footer>
</body></html>`

func compliantHeaders() map[string]string {
	return map[string]string{
		"strict-transport-security": "max-age=31536000; includeSubDomains",
		"content-security-policy":   "default-src 'self'",
		"x-frame-options":           "DENY",
		"x-content-type-options":    "nosniff",
		"referrer-policy":           "strict-origin-when-cross-origin",
		"permissions-policy":        "camera=(), microphone=()",
	}
}

func byCheck(findings []audit.Finding) map[string]audit.Finding {
	out := make(map[string]audit.Finding, len(findings))
	for _, f := range findings {
		out[f.CheckID] = f
	}
	return out
}

func TestChecker_NonCompliantSiteScoresCritical(t *testing.T) {
	snap := audit.Snapshot{
		URL:        "http://shop.example/",
		HTML:       nonCompliantHTML,
		StatusCode: 200,
		Headers:    map[string]string{},
	}

	findings := NewChecker().Run(snap)
	score := audit.Score(findings)

	assert.GreaterOrEqual(t, score.Failed, 3)
	assert.LessOrEqual(t, score.Percent, 19)
	assert.Equal(t, audit.SeverityCritical, score.Severity)

	got := byCheck(findings)
	assert.Equal(t, audit.StatusFailed, got["https"].Status)
	assert.Equal(t, audit.StatusFailed, got["privacy_policy"].Status)
	assert.Equal(t, audit.StatusFailed, got["consent_checkbox"].Status)
	assert.Equal(t, audit.StatusWarning, got["hsts"].Status)
	assert.NotEmpty(t, got["https"].RemediationSteps)
}

func TestChecker_CompliantSiteScoresExcellent(t *testing.T) {
	snap := audit.Snapshot{
		URL:        "https://shop.example/",
		HTML:       compliantHTML,
		StatusCode: 200,
		Headers:    compliantHeaders(),
		TLS:        &audit.TLSInfo{Valid: true, Issuer: "R3", Expires: time.Now().Add(90 * 24 * time.Hour), Protocol: "TLS 1.3"},
	}

	findings := NewChecker().Run(snap)
	score := audit.Score(findings)

	assert.Equal(t, 0, score.Failed)
	assert.GreaterOrEqual(t, score.Percent, 80)
	assert.Equal(t, audit.SeverityExcellent, score.Severity)

	got := byCheck(findings)
	for _, id := range []string{"https", "hsts", "csp", "x_frame_options", "x_content_type_options",
		"referrer_policy", "permissions_policy", "privacy_policy", "consent_checkbox",
		"cookie_banner", "contacts", "company_registration"} {
		assert.Equal(t, audit.StatusPassed, got[id].Status, id)
		assert.Empty(t, got[id].RemediationSteps, id)
	}
}

func TestChecker_TrackersOnlyReportWhenPresent(t *testing.T) {
	clean := NewChecker().Run(audit.Snapshot{URL: "https://a.example/", HTML: compliantHTML, Headers: compliantHeaders()})
	for _, f := range clean {
		assert.NotEqual(t, CategoryTracking, f.Category)
	}

	html := compliantHTML + `<script src="https://www.googletagmanager.com/gtag/js?id=G-1"></script>
<script>(function(m,e,t,r,i,k,a){})(window, document, "script", "https://mc.yandex.ru/metrika/tag.js", "ym"); ym(1, "init");</script>
<script>!function(f,b,e,v,n,t,s){}(window, document,'script','https://connect.facebook.net/en_US/fbevents.js');</script>`
	got := byCheck(NewChecker().Run(audit.Snapshot{URL: "https://a.example/", HTML: html, Headers: compliantHeaders()}))

	for _, id := range []string{"tracker_google_analytics", "tracker_yandex_metrica", "tracker_social_pixel"} {
		f, ok := got[id]
		require.True(t, ok, id)
		assert.Equal(t, audit.StatusWarning, f.Status)
		assert.NotEmpty(t, f.Evidence)
	}
}

func TestConsent_NoFormAutoPasses(t *testing.T) {
	p := ParsePage(audit.Snapshot{HTML: `<html><body><p>About us</p></body></html>`})
	res := checkConsent(p)
	require.Len(t, res, 1)
	assert.Equal(t, audit.StatusPassed, res[0].Status)
}

func TestCookieBanner_ScriptIndicatorDemotesToWarning(t *testing.T) {
	p := ParsePage(audit.Snapshot{HTML: `<html><head><script src="https://consent.cookiebot.com/uc.js"></script></head><body><p>Hello</p></body></html>`})
	res := checkCookieBanner(p)
	require.Len(t, res, 1)
	assert.Equal(t, audit.StatusWarning, res[0].Status)
	assert.Equal(t, []string{"cookiebot"}, res[0].Evidence)

	p = ParsePage(audit.Snapshot{HTML: `<html><body><p>Hello</p></body></html>`})
	assert.Equal(t, audit.StatusFailed, checkCookieBanner(p)[0].Status)
}

func TestCookieBanner_SpecificPhraseAndNoGenericAcceptance(t *testing.T) {
	p := ParsePage(audit.Snapshot{HTML: `<html><body><div>Мы используем файлы cookie. <a href="/cookie-policy">Cookie policy</a></div></body></html>`})
	res := checkCookieBanner(p)
	require.Len(t, res, 1)
	assert.Equal(t, audit.StatusPassed, res[0].Status)
	assert.Equal(t, []string{"мы используем файлы cookie"}, res[0].Evidence)

	// acceptance wording for terms or consent is not a cookie notice
	p = ParsePage(audit.Snapshot{HTML: `<html><body><form><label><input type="checkbox"> Я принимаю условия пользовательского соглашения</label><button>Accept all terms</button></form></body></html>`})
	assert.Equal(t, audit.StatusFailed, checkCookieBanner(p)[0].Status)
}

func TestPrivacyPolicy_LinkOnly(t *testing.T) {
	p := ParsePage(audit.Snapshot{HTML: `<html><body><a href="/docs/privacy.pdf">Документы</a></body></html>`})
	assert.Equal(t, audit.StatusPassed, checkPrivacyPolicy(p)[0].Status)
}

func TestSecurityHeaders(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		run     func(*Page) []audit.Finding
		want    audit.Status
	}{
		{"hsts zero max-age", map[string]string{"strict-transport-security": "max-age=0"}, checkHSTS, audit.StatusWarning},
		{"hsts ok", map[string]string{"strict-transport-security": "max-age=63072000"}, checkHSTS, audit.StatusPassed},
		{"xfo allow-from", map[string]string{"x-frame-options": "ALLOW-FROM https://x"}, checkXFrameOptions, audit.StatusWarning},
		{"xfo via csp", map[string]string{"content-security-policy": "frame-ancestors 'none'"}, checkXFrameOptions, audit.StatusPassed},
		{"referrer unsafe", map[string]string{"referrer-policy": "unsafe-url"}, checkReferrerPolicy, audit.StatusWarning},
		{"referrer fallback list", map[string]string{"referrer-policy": "unsafe-url, no-referrer"}, checkReferrerPolicy, audit.StatusPassed},
		{"feature policy", map[string]string{"feature-policy": "camera 'none'"}, checkPermissionsPolicy, audit.StatusPassed},
		{"nosniff wrong", map[string]string{"x-content-type-options": "sniff"}, checkXContentTypeOptions, audit.StatusWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ParsePage(audit.Snapshot{URL: "https://a.example/", Headers: tc.headers})
			assert.Equal(t, tc.want, tc.run(p)[0].Status)
		})
	}
}

func TestHTTPS_InvalidCertificateFails(t *testing.T) {
	p := ParsePage(audit.Snapshot{URL: "https://a.example/", TLS: &audit.TLSInfo{Valid: false, Issuer: "self"}})
	res := checkHTTPS(p)
	assert.Equal(t, audit.StatusFailed, res[0].Status)
	assert.Contains(t, res[0].Details, "issuer: self")
}

func TestRegistration_SoleProprietor(t *testing.T) {
	p := ParsePage(audit.Snapshot{HTML: `<p>ИП Иванов И.И., ОГРНИП 304500116000157</p>`})
	res := checkRegistration(p)
	assert.Equal(t, audit.StatusPassed, res[0].Status)
	assert.Equal(t, []string{"ОГРНИП 304500116000157"}, res[0].Evidence)
}

func TestRunPage_PanickingCheckBecomesWarning(t *testing.T) {
	boom := Check{ID: "boom", Name: "Boom", Category: CategoryLegal, Run: func(*Page) []audit.Finding { panic("nil map") }}
	ok := Check{ID: "ok", Name: "Ok", Category: CategoryLegal, Run: func(*Page) []audit.Finding {
		return []audit.Finding{{CheckID: "ok", Status: audit.StatusPassed}}
	}}

	res := NewChecker(boom, ok).Run(audit.Snapshot{})
	require.Len(t, res, 2)
	assert.Equal(t, audit.StatusWarning, res[0].Status)
	assert.Equal(t, "Boom (check errored)", res[0].Name)
	assert.Equal(t, "ok", res[1].CheckID)
}

func TestRun_IsDeterministic(t *testing.T) {
	snap := audit.Snapshot{URL: "https://a.example/", HTML: compliantHTML, Headers: compliantHeaders()}
	a := NewChecker().Run(snap)
	b := NewChecker().Run(snap)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].CheckID, b[i].CheckID)
		assert.Equal(t, a[i].Status, b[i].Status)
	}
}
