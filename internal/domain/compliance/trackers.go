package compliance

import (
	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

// Tracker checks only report when a tracker is present. A page without
// trackers yields no finding at all.

var trackerLaw = []audit.LawRef{
	{Law: law152, Article: "art. 12", Note: "cross-border transfer of visitor data"},
	{Law: law152, Article: "art. 9", Note: "analytics identifiers require consent"},
}

var (
	gaRule = rule{
		id: "tracker_google_analytics", name: "Google Analytics tracking", category: CategoryTracking,
		lawRefs: trackerLaw,
		remediation: []string{
			"Mention Google Analytics and the cross-border transfer in the privacy policy.",
			"Load the tag only after the visitor consents, or replace it with a domestic analytics service.",
		},
	}
	metricaRule = rule{
		id: "tracker_yandex_metrica", name: "Yandex.Metrica tracking", category: CategoryTracking,
		lawRefs: []audit.LawRef{
			{Law: law152, Article: "art. 9", Note: "analytics identifiers require consent"},
		},
		remediation: []string{
			"Mention Yandex.Metrica in the privacy policy and the cookie notice.",
			"Disable Webvisor session recording on pages with forms.",
		},
	}
	pixelRule = rule{
		id: "tracker_social_pixel", name: "Social network pixel tracking", category: CategoryTracking,
		lawRefs: trackerLaw,
		remediation: []string{
			"Remove social network pixels or load them only after explicit consent.",
			"List every advertising pixel as a data recipient in the privacy policy.",
		},
	}
)

func checkGoogleAnalytics(p *Page) []audit.Finding {
	m, ok := p.hasAny("google-analytics.com", "googletagmanager.com", "gtag(")
	if !ok {
		return nil
	}
	return gaRule.one(audit.StatusWarning,
		"Google Analytics is loaded; visitor data is transferred abroad.",
		"", m)
}

func checkYandexMetrica(p *Page) []audit.Finding {
	m, ok := p.hasAny("mc.yandex.ru", "mc.yandex.com", "ym(")
	if !ok {
		return nil
	}
	return metricaRule.one(audit.StatusWarning,
		"Yandex.Metrica is loaded; it must be disclosed and consented to.",
		"", m)
}

func checkSocialPixel(p *Page) []audit.Finding {
	m, ok := p.hasAny("connect.facebook.net", "fbq(", "vk.com/rtrg", "top-fwz1.mail.ru")
	if !ok {
		return nil
	}
	return pixelRule.one(audit.StatusWarning,
		"A social network pixel is loaded and tracks visitors for advertising.",
		"", m)
}
