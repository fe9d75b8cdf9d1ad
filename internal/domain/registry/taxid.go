package registry

import (
	"regexp"
	"strings"
)

var (
	reTaxIDLabeled = regexp.MustCompile(`(?i)(?:ИНН|INN)[\s:№#]*([0-9]{12}|[0-9]{10})(?:[^0-9]|$)`)
	reCompanyQuoted = regexp.MustCompile(`(ООО|ОАО|ЗАО|ПАО|АО|НКО|АНО)\s*[«"“]([^»"”]{2,120})[»"”]`)
	reSoleTrader    = regexp.MustCompile(`ИП\s+([А-ЯЁ][а-яё-]+(?:\s+[А-ЯЁ][а-яё-]+){1,2})`)
)

// NormalizeTaxID drops separators commonly typed inside a tax identifier.
func NormalizeTaxID(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// ValidTaxID reports whether s is 10 or 12 ASCII digits.
func ValidTaxID(s string) bool {
	if len(s) != 10 && len(s) != 12 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExtractTaxID finds the first labelled tax identifier in page text.
func ExtractTaxID(text string) (string, bool) {
	m := reTaxIDLabeled.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractCompanyName finds a legal-entity name such as ООО «Ромашка».
func ExtractCompanyName(text string) (string, bool) {
	if m := reCompanyQuoted.FindStringSubmatch(text); m != nil {
		return m[1] + " «" + strings.TrimSpace(m[2]) + "»", true
	}
	if m := reSoleTrader.FindStringSubmatch(text); m != nil {
		return "ИП " + m[1], true
	}
	return "", false
}
