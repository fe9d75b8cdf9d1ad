package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	appaudit "github.com/bryanwahyu/pdaudit/internal/application/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/infra/metrics"
	"github.com/bryanwahyu/pdaudit/internal/middleware"
)

const maxBodyBytes = 64 << 10

// AuditService is the application surface the router exposes.
type AuditService interface {
	RunAudit(ctx context.Context, url string, opts appaudit.Options) (*domain.Report, error)
	RunExpressAudit(ctx context.Context, url string, onProgress appaudit.ProgressFunc) (*domain.Report, error)
	CheckWebsiteExists(ctx context.Context, url string) appaudit.SiteStatus
	RunDebugAudit(ctx context.Context, url string, opts appaudit.DebugOptions) (*appaudit.DebugReport, error)
	GetReport(ctx context.Context, id string) (*domain.Report, error)
	ListReports(ctx context.Context, host string, page, pageSize int) (domain.PaginatedReports, error)
}

// Options carries the router's collaborators besides the service.
type Options struct {
	Log         *logrus.Entry
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	APIKeys     map[string]string
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	Health      map[string]middleware.HealthChecker
}

type Router struct {
	svc AuditService
	log *logrus.Entry
}

func NewRouter(svc AuditService, opts Options) http.Handler {
	r := &Router{svc: svc, log: opts.Log}
	mux := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	mux.Use(middleware.Logging(opts.Log))
	mux.Use(middleware.Metrics(opts.Metrics))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimit(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/audits", r.wrap(r.handleAudit))
		rt.Post("/audits/express", r.wrap(r.handleExpress))
		rt.Post("/audits/debug", r.wrap(r.handleDebug))
		rt.Get("/audits", r.wrap(r.handleList))
		rt.Get("/audits/{id}", r.wrap(r.handleGet))
		rt.Get("/sites/check", r.wrap(r.handleSiteCheck))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.As(err, &br), errors.Is(err, appaudit.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrReportNotFound):
			writeError(w, http.StatusNotFound, "report not found")
		case errors.Is(err, appaudit.ErrSiteUnreachable):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			r.log.WithError(err).WithField("path", req.URL.Path).Error("request failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func decode(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{"invalid json body: " + err.Error()}
	}
	return nil
}

func targetURL(raw string) (string, error) {
	u, err := middleware.ValidateURL(raw)
	if err != nil {
		return "", badRequest{err.Error()}
	}
	return u, nil
}

// progressLogger records checkpoints at debug level.
func (r *Router) progressLogger(url string) appaudit.ProgressFunc {
	log := r.log.WithField("url", url)
	return func(p appaudit.Progress) {
		log.WithFields(logrus.Fields{"stage": int(p.Stage), "percent": p.Percent}).Debug(p.Message)
	}
}

// POST /v1/audits
// Body: {"url": "...", "level2": true, "ai_mode": "race"}
func (r *Router) handleAudit(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL    string `json:"url"`
		Level2 *bool  `json:"level2"`
		AIMode string `json:"ai_mode"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	target, err := targetURL(body.URL)
	if err != nil {
		return err
	}
	opts := appaudit.Options{Level2: true, OnProgress: r.progressLogger(target)}
	if body.Level2 != nil {
		opts.Level2 = *body.Level2
	}
	if body.AIMode != "" {
		opts.AIMode = ai.ParseMode(body.AIMode)
	}

	rep, err := r.svc.RunAudit(req.Context(), target, opts)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rep)
	return nil
}

// POST /v1/audits/express
func (r *Router) handleExpress(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	target, err := targetURL(body.URL)
	if err != nil {
		return err
	}
	rep, err := r.svc.RunExpressAudit(req.Context(), target, r.progressLogger(target))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rep)
	return nil
}

// POST /v1/audits/debug
// Body: {"url": "...", "max_pages": 10, "depth_limit": 2, "timeout_ms": 60000}
func (r *Router) handleDebug(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL        string `json:"url"`
		MaxPages   int    `json:"max_pages"`
		DepthLimit int    `json:"depth_limit"`
		TimeoutMS  int64  `json:"timeout_ms"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	target, err := targetURL(body.URL)
	if err != nil {
		return err
	}
	pages, depth, timeout := middleware.ClampCrawl(body.MaxPages, body.DepthLimit, time.Duration(body.TimeoutMS)*time.Millisecond)

	rep, err := r.svc.RunDebugAudit(req.Context(), target, appaudit.DebugOptions{
		MaxPages:   pages,
		DepthLimit: depth,
		Timeout:    timeout,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rep)
	return nil
}

// GET /v1/sites/check?url=
func (r *Router) handleSiteCheck(w http.ResponseWriter, req *http.Request) error {
	target, err := targetURL(req.URL.Query().Get("url"))
	if err != nil {
		writeJSON(w, http.StatusOK, appaudit.SiteStatus{Error: err.Error()})
		return nil
	}
	writeJSON(w, http.StatusOK, r.svc.CheckWebsiteExists(req.Context(), target))
	return nil
}

// GET /v1/audits/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateReportID(id); err != nil {
		return badRequest{err.Error()}
	}
	rep, err := r.svc.GetReport(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rep)
	return nil
}

// GET /v1/audits?host=&page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	list, err := r.svc.ListReports(req.Context(), middleware.SanitizeString(q.Get("host")),
		middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
