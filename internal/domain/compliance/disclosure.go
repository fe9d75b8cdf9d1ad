package compliance

import (
	"fmt"
	"regexp"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

var (
	privacyRule = rule{
		id: "privacy_policy", name: "Privacy policy", category: CategoryPrivacyPolicy,
		lawRefs: []audit.LawRef{
			{Law: law152, Article: "art. 18.1 p. 2", Note: "the policy must be published on the site that collects data"},
			{Law: lawKoAP, Article: "art. 13.11 p. 3"},
		},
		remediation: []string{
			"Publish a personal data processing policy on a dedicated page.",
			"Link the policy from the site footer and from every form.",
			"List purposes, categories of data, retention periods and data subject rights in the policy.",
		},
	}
	consentRule = rule{
		id: "consent_checkbox", name: "Consent to personal data processing", category: CategoryConsent,
		lawRefs: []audit.LawRef{
			{Law: law152, Article: "art. 9", Note: "consent must be specific, informed and conscious"},
			{Law: lawKoAP, Article: "art. 13.11 p. 2"},
		},
		remediation: []string{
			"Add an unchecked consent checkbox next to every form submit button.",
			"Link the consent text to the processing policy.",
			"Store the fact and the time of consent together with the submitted data.",
		},
	}
	cookieRule = rule{
		id: "cookie_banner", name: "Cookie notice", category: CategoryCookies,
		lawRefs: []audit.LawRef{
			{Law: law152, Article: "art. 9", Note: "cookies combined with identifiers are personal data"},
		},
		remediation: []string{
			"Show a cookie notice on the first visit that explains which cookies are set and why.",
			"Load analytics only after the visitor accepts.",
		},
	}
	contactsRule = rule{
		id: "contacts", name: "Operator contact information", category: CategoryContacts,
		lawRefs: []audit.LawRef{
			{Law: law149, Article: "art. 10 p. 2", Note: "owner of a site must disclose name and contacts"},
			{Law: law152, Article: "art. 14"},
		},
		remediation: []string{"Publish an e-mail address and a phone number for personal data requests."},
	}
	registrationRule = rule{
		id: "company_registration", name: "Company registration number", category: CategoryLegal,
		lawRefs: []audit.LawRef{
			{Law: lawZoZPP, Article: "art. 9"},
			{Law: law149, Article: "art. 10 p. 2"},
		},
		remediation: []string{"Publish the legal entity name, OGRN and INN in the footer or on the contacts page."},
	}
	termsRule = rule{
		id: "terms_of_service", name: "Terms of service", category: CategoryLegal,
		lawRefs: []audit.LawRef{
			{Law: lawCivil, Article: "art. 437", Note: "a public offer must be available to the customer"},
		},
		remediation: []string{"Publish the user agreement or public offer and link it from the footer."},
	}
)

var privacyTextPatterns = []string{
	"политика конфиденциальности",
	"политика обработки персональных данных",
	"политикой обработки персональных данных",
	"политика в отношении обработки персональных данных",
	"обработки персональных данных",
	"privacy policy",
	"privacy notice",
}

var privacyHrefPatterns = []string{
	"privacy",
	"politika",
	"policy",
}

func checkPrivacyPolicy(p *Page) []audit.Finding {
	if m, ok := p.textContains(privacyTextPatterns...); ok {
		return privacyRule.one(audit.StatusPassed, "A privacy policy is referenced on the page.", "", m)
	}
	if h, ok := p.hrefContains(privacyHrefPatterns...); ok {
		return privacyRule.one(audit.StatusPassed, "A link to the privacy policy was found.", "", h)
	}
	return privacyRule.one(audit.StatusFailed,
		"No privacy policy text or link was found on the page.",
		"Operators that collect personal data online must publish their processing policy.")
}

var consentPatterns = []string{
	"согласие на обработку персональных данных",
	"согласен на обработку",
	"согласна на обработку",
	"даю согласие",
	"соглашаюсь с",
	"consent to the processing",
	"i agree to the processing",
	"i consent",
}

func checkConsent(p *Page) []audit.Finding {
	if !p.HasForm() {
		return consentRule.one(audit.StatusPassed, "The page has no input forms; no consent is collected here.", "")
	}
	boxes := p.CountCheckboxes()
	if m, ok := p.textContains(consentPatterns...); ok {
		details := fmt.Sprintf("checkboxes on page: %d", boxes)
		if boxes == 0 {
			details += "; consent text is present but no checkbox, so consent may be implied rather than explicit"
		}
		return consentRule.one(audit.StatusPassed, "Consent wording accompanies the form.", details, m)
	}
	return consentRule.one(audit.StatusFailed,
		"The page collects data through a form but asks for no consent to processing.",
		fmt.Sprintf("checkboxes on page: %d", boxes))
}

// most specific first; the matched phrase becomes the evidence
var cookiePatterns = []string{
	"мы используем файлы cookie",
	"сайт использует файлы cookie",
	"используем файлы cookie",
	"использует файлы cookie",
	"использование файлов cookie",
	"согласие на использование cookie",
	"принять cookie",
	"принимаю cookie",
	"this website uses cookies",
	"this site uses cookies",
	"we use cookies",
	"accept all cookies",
	"accept cookies",
	"cookie settings",
	"cookie policy",
	"файлы cookie",
	"файлов cookie",
	"куки",
	"cookie",
}

var cookieScriptIndicators = []string{
	"cookiebot",
	"onetrust",
	"cookieyes",
	"klaro",
	"tarteaucitron",
	"osano",
	"cookie-script",
	"iubenda",
	"complianz",
	"usercentrics",
}

func checkCookieBanner(p *Page) []audit.Finding {
	if m, ok := p.textContains(cookiePatterns...); ok {
		return cookieRule.one(audit.StatusPassed, "A cookie notice is shown on the page.", "", m)
	}
	if m, ok := p.rawContains(cookieScriptIndicators...); ok {
		return cookieRule.one(audit.StatusWarning,
			"No cookie notice text was found, but a consent management script is loaded.",
			"A script-rendered banner cannot be seen in static markup; verify it in a browser.",
			m)
	}
	return cookieRule.one(audit.StatusFailed,
		"No cookie notice was found.",
		"Visitors are not told that cookies are used.")
}

var (
	reEmail = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	rePhone = regexp.MustCompile(`(?:\+7|8)[\s\-(]*\d{3}[\s\-)]*\d{3}[\s\-]*\d{2}[\s\-]*\d{2}`)
)

func checkContacts(p *Page) []audit.Finding {
	var evidence []string
	if m := reEmail.FindString(p.text); m != "" {
		evidence = append(evidence, m)
	} else if h, ok := p.hrefContains("mailto:"); ok {
		evidence = append(evidence, h)
	}
	if m := rePhone.FindString(p.text); m != "" {
		evidence = append(evidence, m)
	} else if h, ok := p.hrefContains("tel:"); ok {
		evidence = append(evidence, h)
	}
	if len(evidence) == 0 {
		return contactsRule.one(audit.StatusWarning, "No e-mail address or phone number was found.", "")
	}
	return contactsRule.one(audit.StatusPassed, "Operator contact details are published.", "", evidence...)
}

var (
	reOGRN   = regexp.MustCompile(`(?:огрн|ogrn)[\s:№#]*(\d{13})(?:\D|$)`)
	reOGRNIP = regexp.MustCompile(`(?:огрнип|ogrnip)[\s:№#]*(\d{15})(?:\D|$)`)
)

func checkRegistration(p *Page) []audit.Finding {
	if m := reOGRNIP.FindStringSubmatch(p.text); m != nil {
		return registrationRule.one(audit.StatusPassed, "A sole proprietor registration number (OGRNIP) is published.", "", "ОГРНИП "+m[1])
	}
	if m := reOGRN.FindStringSubmatch(p.text); m != nil {
		return registrationRule.one(audit.StatusPassed, "A company registration number (OGRN) is published.", "", "ОГРН "+m[1])
	}
	if inn, ok := registry.ExtractTaxID(p.text); ok {
		return registrationRule.one(audit.StatusPassed, "A taxpayer number (INN) is published.", "", "ИНН "+inn)
	}
	return registrationRule.one(audit.StatusWarning, "No company registration number or taxpayer number was found.", "")
}

var termsPatterns = []string{
	"пользовательское соглашение",
	"пользовательского соглашения",
	"публичная оферта",
	"публичной оферты",
	"договор оферты",
	"условия использования",
	"terms of service",
	"terms of use",
	"terms and conditions",
}

func checkTerms(p *Page) []audit.Finding {
	if m, ok := p.textContains(termsPatterns...); ok {
		return termsRule.one(audit.StatusPassed, "Terms of service are referenced on the page.", "", m)
	}
	if h, ok := p.hrefContains("terms", "oferta", "offer", "agreement", "soglashenie"); ok {
		return termsRule.one(audit.StatusPassed, "A link to the terms of service was found.", "", h)
	}
	return termsRule.one(audit.StatusWarning, "No terms of service or public offer were found.", "")
}

// hasAny is used by tracker checks that look at both markup and links.
func (p *Page) hasAny(needles ...string) (string, bool) {
	if m, ok := p.rawContains(needles...); ok {
		return m, true
	}
	return p.hrefContains(needles...)
}
