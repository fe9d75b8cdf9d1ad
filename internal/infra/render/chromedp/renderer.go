package chromedp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/infra/fetch"
)

// settle gives client-side frameworks time to mount after DOMContentLoaded.
const settle = 1500 * time.Millisecond

// Renderer drives a headless Chrome. Each call gets a fresh browser so no
// cookies or storage leak between audits.
type Renderer struct {
	log       *logrus.Entry
	allocOpts []chromedp.ExecAllocatorOption
	sem       chan struct{}
	resolver  fetch.Resolver
}

// New limits concurrent browsers to maxConcurrent. execPath may be empty to
// let chromedp locate Chrome.
func New(log *logrus.Entry, execPath string, maxConcurrent int) *Renderer {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.UserAgent("Mozilla/5.0 (compatible; pdaudit/1.0; +https://pdaudit.ru/bot)"),
		chromedp.WindowSize(1366, 900),
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	return &Renderer{
		log:       log,
		allocOpts: opts,
		sem:       make(chan struct{}, maxConcurrent),
		resolver:  net.DefaultResolver,
	}
}

func (r *Renderer) Render(ctx context.Context, url string, timeout time.Duration) (audit.RenderResult, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return audit.RenderResult{}, ctx.Err()
	}
	defer func() { <-r.sem }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var (
		mu         sync.Mutex
		status     int64
		blockedDoc atomic.Bool
	)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type != network.ResourceTypeDocument {
				return
			}
			mu.Lock()
			if status == 0 {
				status = e.Response.Status
			}
			mu.Unlock()
		case *cdpfetch.EventRequestPaused:
			// handler runs on the event loop; CDP calls must not block it
			go r.gate(browserCtx, e, func() {
				if e.ResourceType == network.ResourceTypeDocument {
					blockedDoc.Store(true)
				}
			})
		}
	})

	start := time.Now()
	var html string
	err := chromedp.Run(browserCtx,
		network.Enable(),
		cdpfetch.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if blockedDoc.Load() {
		return audit.RenderResult{}, fmt.Errorf("render %s: %w", url, fetch.ErrUnsafeHost)
	}
	if err != nil {
		return audit.RenderResult{}, fmt.Errorf("render %s: %w", url, err)
	}

	mu.Lock()
	code := int(status)
	mu.Unlock()
	r.log.WithFields(logrus.Fields{
		"url":    url,
		"status": code,
		"bytes":  len(html),
		"ms":     time.Since(start).Milliseconds(),
	}).Debug("rendered")
	return audit.RenderResult{HTML: html, StatusCode: code}, nil
}

// gate lets a paused browser request continue only when its host passes the
// same address policy as the static fetcher.
// onBlock runs before the request is failed.
func (r *Renderer) gate(ctx context.Context, e *cdpfetch.EventRequestPaused, onBlock func()) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	exec := cdp.WithExecutor(ctx, c.Target)

	if err := fetch.CheckResolvedURL(ctx, r.resolver, e.Request.URL); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"request": e.Request.URL,
			"type":    e.ResourceType,
		}).Warn("browser request blocked")
		onBlock()
		if ferr := cdpfetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(exec); ferr != nil {
			r.log.WithError(ferr).Debug("fail request")
		}
		return
	}
	if err := cdpfetch.ContinueRequest(e.RequestID).Do(exec); err != nil {
		r.log.WithError(err).Debug("continue request")
	}
}
