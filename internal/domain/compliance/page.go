package compliance

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

// Page is a read-only parse of a snapshot shared by all checks of one run.
type Page struct {
	Snapshot audit.Snapshot

	doc   *goquery.Document
	raw   string   // lower-cased markup
	plain string   // visible text as written
	text  string   // lower-cased visible text
	hrefs []string // lower-cased link targets
}

// ParsePage parses the snapshot markup once. Malformed markup still yields a
// usable page; the html tokenizer never rejects input.
func ParsePage(s audit.Snapshot) *Page {
	p := &Page{Snapshot: s, raw: strings.ToLower(s.HTML)}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
	if err != nil {
		p.plain, p.text = s.HTML, p.raw
		return p
	}
	p.doc = doc
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			p.hrefs = append(p.hrefs, strings.ToLower(href))
		}
	})
	p.plain = VisibleText(doc)
	p.text = strings.ToLower(p.plain)
	return p
}

// VisibleText returns the collapsed body text with script-like nodes removed.
// It mutates doc.
func VisibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template").Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return strings.Join(strings.Fields(body.Text()), " ")
}

// Text is the lower-cased visible text.
func (p *Page) Text() string { return p.text }

// PlainText is the visible text in its original case.
func (p *Page) PlainText() string { return p.plain }

// HasForm reports whether the page collects user input.
func (p *Page) HasForm() bool {
	if p.doc == nil {
		return strings.Contains(p.raw, "<form")
	}
	if p.doc.Find("form").Length() > 0 {
		return true
	}
	return p.doc.Find(`input[type="email"], input[type="tel"], textarea`).Length() > 0
}

// CountCheckboxes counts checkbox inputs on the page.
func (p *Page) CountCheckboxes() int {
	if p.doc == nil {
		return strings.Count(p.raw, `type="checkbox"`)
	}
	return p.doc.Find(`input[type="checkbox"]`).Length()
}

func (p *Page) hrefContains(needles ...string) (string, bool) {
	for _, h := range p.hrefs {
		for _, n := range needles {
			if strings.Contains(h, n) {
				return h, true
			}
		}
	}
	return "", false
}

func (p *Page) rawContains(needles ...string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(p.raw, n) {
			return n, true
		}
	}
	return "", false
}

func (p *Page) textContains(needles ...string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(p.text, n) {
			return n, true
		}
	}
	return "", false
}
