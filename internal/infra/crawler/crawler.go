package crawler

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/infra/fetch"
)

const (
	DefaultMaxPages   = 10
	DefaultDepthLimit = 2
	DefaultTimeout    = 60 * time.Second

	maxNestedSitemaps = 3
	pageTimeout       = fetch.StaticTimeout
)

// Page sources.
const (
	SourceRoot    = "root"
	SourceSitemap = "sitemap"
	SourceLink    = "link"
)

// Stop reasons.
const (
	StopExhausted  = "frontier exhausted"
	StopPageBudget = "page budget reached"
	StopTimeBudget = "time budget reached"
	StopRootFailed = "root unreachable"
)

var ErrBadRoot = errors.New("crawl root must be an absolute http(s) url")

var skipExts = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".zip", ".rar", ".7z", ".gz",
	".mp3", ".mp4", ".avi", ".mov", ".js", ".css", ".xml", ".json", ".txt",
	".woff", ".woff2", ".ttf",
}

type Options struct {
	MaxPages   int
	DepthLimit int
	Timeout    time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.DepthLimit < 0 {
		o.DepthLimit = 0
	} else if o.DepthLimit == 0 {
		o.DepthLimit = DefaultDepthLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

type Page struct {
	URL      string         `json:"url"`
	Depth    int            `json:"depth"`
	Source   string         `json:"source"`
	Snapshot audit.Snapshot `json:"snapshot"`
}

type Stats struct {
	PagesFetched    int           `json:"pages_fetched"`
	PagesFailed     int           `json:"pages_failed"`
	LinksDiscovered int           `json:"links_discovered"`
	SitemapURLs     int           `json:"sitemap_urls"`
	SitemapUsed     bool          `json:"sitemap_used"`
	StopReason      string        `json:"stop_reason"`
	Duration        time.Duration `json:"duration_ns"`
}

type Result struct {
	Pages []Page `json:"pages"`
	Stats Stats  `json:"stats"`
}

// Crawler walks one site within page and time budgets. Every request goes
// through the safe fetcher, so unsafe targets are refused there.
type Crawler struct {
	log     *logrus.Entry
	fetcher fetch.PageFetcher
	limiter *rate.Limiter
}

// New builds a crawler issuing at most ratePerSecond requests per second.
func New(log *logrus.Entry, fetcher fetch.PageFetcher, ratePerSecond float64) *Crawler {
	if ratePerSecond <= 0 {
		ratePerSecond = 2
	}
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Crawler{log: log, fetcher: fetcher, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

type item struct {
	url    string
	depth  int
	source string
}

// Crawl fetches the root, then the sitemap's pages when a sitemap exists and
// otherwise discovers same-host links breadth first.
func (c *Crawler) Crawl(ctx context.Context, root string, opts Options) (Result, error) {
	opts.applyDefaults()
	base, err := url.Parse(root)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return Result{}, ErrBadRoot
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	log := c.log.WithField("url", root)
	res := Result{Pages: []Page{}}
	visited := map[string]bool{}
	var queue []item

	enqueue := func(it item) {
		key := normalize(it.url)
		if visited[key] {
			return
		}
		visited[key] = true
		queue = append(queue, it)
	}
	enqueue(item{url: root, source: SourceRoot})

	// the root goes first so the sitemap is only consulted for a live site
	if !c.visit(ctx, &res, &queue, enqueue, base, opts, false) {
		if res.Stats.StopReason == "" {
			res.Stats.StopReason = StopRootFailed
		}
		res.Stats.Duration = time.Since(start)
		return res, nil
	}

	if locs := c.sitemap(ctx, base); len(locs) > 0 {
		res.Stats.SitemapUsed = true
		res.Stats.SitemapURLs = len(locs)
		for _, loc := range locs {
			enqueue(item{url: loc, depth: 1, source: SourceSitemap})
		}
	} else {
		for _, link := range extractLinks(res.Pages[0].Snapshot.HTML, root, base.Hostname()) {
			res.Stats.LinksDiscovered++
			enqueue(item{url: link, depth: 1, source: SourceLink})
		}
	}

	for c.visit(ctx, &res, &queue, enqueue, base, opts, !res.Stats.SitemapUsed) {
	}
	res.Stats.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"pages":   res.Stats.PagesFetched,
		"failed":  res.Stats.PagesFailed,
		"sitemap": res.Stats.SitemapUsed,
		"reason":  res.Stats.StopReason,
	}).Info("crawl finished")
	return res, nil
}

// visit processes the next frontier item and reports whether crawling can go on.
func (c *Crawler) visit(ctx context.Context, res *Result, queue *[]item, enqueue func(item), base *url.URL, opts Options, discover bool) bool {
	if len(*queue) == 0 {
		res.Stats.StopReason = StopExhausted
		return false
	}
	if len(res.Pages) >= opts.MaxPages {
		res.Stats.StopReason = StopPageBudget
		return false
	}
	if err := c.limiter.Wait(ctx); err != nil {
		res.Stats.StopReason = StopTimeBudget
		return false
	}

	it := (*queue)[0]
	*queue = (*queue)[1:]
	snap := c.fetcher.Fetch(ctx, it.url, pageTimeout)
	res.Pages = append(res.Pages, Page{URL: it.url, Depth: it.depth, Source: it.source, Snapshot: snap})
	if snap.Failed() || snap.StatusCode >= 400 {
		res.Stats.PagesFailed++
		if ctx.Err() != nil {
			res.Stats.StopReason = StopTimeBudget
			return false
		}
		return it.source != SourceRoot
	}
	res.Stats.PagesFetched++

	if discover && it.depth < opts.DepthLimit {
		for _, link := range extractLinks(snap.HTML, it.url, base.Hostname()) {
			res.Stats.LinksDiscovered++
			enqueue(item{url: link, depth: it.depth + 1, source: SourceLink})
		}
	}
	return true
}

func extractLinks(html, pageURL, host string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(u)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !sameSite(abs.Hostname(), host) || skipPath(abs.Path) {
			return
		}
		abs.Fragment = ""
		out = append(out, abs.String())
	})
	return out
}

func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b
}

func skipPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range skipExts {
		if ext == e {
			return true
		}
	}
	return false
}

// normalize drops the fragment and a trailing slash for de-duplication.
func normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}
