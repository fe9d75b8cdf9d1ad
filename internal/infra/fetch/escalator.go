package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/compliance"
)

const minVisibleText = 100

// single-page-app mount points that are empty until scripts run
var spaRoots = []string{"#root", "#app", "#__next", "#__nuxt", "[ng-app]", "app-root", "[data-reactroot]"}

// IsEmptyShell reports whether html looks like a page whose content is built
// by client-side scripts.
func IsEmptyShell(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	for _, sel := range spaRoots {
		root := doc.Find(sel).First()
		if root.Length() == 0 {
			continue
		}
		root.Find("script, style, noscript, template").Remove()
		if strings.TrimSpace(root.Text()) == "" {
			return true
		}
	}
	return utf8.RuneCountInString(compliance.VisibleText(doc)) < minVisibleText
}

// PageFetcher is the static half of the escalator.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) audit.Snapshot
}

// Escalator upgrades an empty static page to one headless render.
type Escalator struct {
	log      *logrus.Entry
	fetcher  PageFetcher
	renderer audit.Renderer
}

// NewEscalator accepts a nil renderer, in which case pages are never rendered.
func NewEscalator(log *logrus.Entry, fetcher PageFetcher, renderer audit.Renderer) *Escalator {
	return &Escalator{log: log, fetcher: fetcher, renderer: renderer}
}

// SmartFetch returns the static snapshot unless it is an empty shell and a
// render succeeds. The renderer is tried at most once.
func (e *Escalator) SmartFetch(ctx context.Context, url string) audit.Snapshot {
	static := e.fetcher.Fetch(ctx, url, StaticTimeout)
	if static.Failed() || e.renderer == nil || !IsEmptyShell(static.HTML) {
		return static
	}

	log := e.log.WithField("url", static.URL)
	log.Info("static page is an empty shell, rendering")
	res, err := e.render(ctx, static.URL)
	if err != nil {
		log.WithError(err).Warn("render failed, keeping static snapshot")
		return static
	}

	rendered := static
	rendered.HTML = res.HTML
	rendered.Rendered = true
	if res.StatusCode != 0 {
		rendered.StatusCode = res.StatusCode
	}
	return rendered
}

func (e *Escalator) render(ctx context.Context, url string) (res audit.RenderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return e.renderer.Render(ctx, url, RenderTimeout)
}
