package crawler

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"
)

type urlset struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// sitemap returns same-host page URLs from /sitemap.xml, following a sitemap
// index one level deep.
func (c *Crawler) sitemap(ctx context.Context, base *url.URL) []string {
	root := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/sitemap.xml"}
	body, ok := c.fetchXML(ctx, root.String())
	if !ok {
		return nil
	}

	host := base.Hostname()
	if strings.Contains(body, "<sitemapindex") {
		var idx sitemapIndex
		if err := xml.Unmarshal([]byte(body), &idx); err != nil {
			c.log.WithError(err).Debug("sitemap index unreadable")
			return nil
		}
		var out []string
		for i, sm := range idx.Sitemaps {
			if i == maxNestedSitemaps {
				break
			}
			loc := strings.TrimSpace(sm.Loc)
			u, err := url.Parse(loc)
			if err != nil || !sameSite(u.Hostname(), host) {
				continue
			}
			if nested, ok := c.fetchXML(ctx, loc); ok {
				out = append(out, parseURLSet(nested, host)...)
			}
		}
		return out
	}
	return parseURLSet(body, host)
}

func (c *Crawler) fetchXML(ctx context.Context, target string) (string, bool) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", false
	}
	snap := c.fetcher.Fetch(ctx, target, pageTimeout)
	if snap.Failed() || snap.StatusCode != 200 {
		return "", false
	}
	return snap.HTML, true
}

func parseURLSet(body, host string) []string {
	var set urlset
	if err := xml.Unmarshal([]byte(body), &set); err != nil {
		return nil
	}
	out := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		pu, err := url.Parse(loc)
		if err != nil || !sameSite(pu.Hostname(), host) || skipPath(pu.Path) {
			continue
		}
		out = append(out, loc)
	}
	return out
}
