package audit

import (
	"context"
	"time"
)

// RenderResult is what a headless browser hands back for one page.
type RenderResult struct {
	HTML       string
	StatusCode int
}

// Renderer executes client-side scripts and returns the resulting markup.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (RenderResult, error)
}

// HostingClassifier tells whether a host serves from domestic infrastructure.
type HostingClassifier interface {
	Classify(ctx context.Context, host string) HostingInfo
}

// ReportArchive keeps finished reports outside the process.
type ReportArchive interface {
	Archive(ctx context.Context, r *Report) (string, error)
}
