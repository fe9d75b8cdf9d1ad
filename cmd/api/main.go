package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/application"
	appai "github.com/bryanwahyu/pdaudit/internal/application/ai"
	appaudit "github.com/bryanwahyu/pdaudit/internal/application/audit"
	"github.com/bryanwahyu/pdaudit/internal/config"
	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/compliance"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/credential"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/gigachat"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/openai"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/tokencache"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/yandex"
	"github.com/bryanwahyu/pdaudit/internal/infra/crawler"
	"github.com/bryanwahyu/pdaudit/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/pdaudit/internal/infra/db/mysql"
	"github.com/bryanwahyu/pdaudit/internal/infra/db/postgres"
	"github.com/bryanwahyu/pdaudit/internal/infra/fetch"
	"github.com/bryanwahyu/pdaudit/internal/infra/hosting"
	"github.com/bryanwahyu/pdaudit/internal/infra/httpserver"
	"github.com/bryanwahyu/pdaudit/internal/infra/metrics"
	"github.com/bryanwahyu/pdaudit/internal/infra/registry/rkn"
	"github.com/bryanwahyu/pdaudit/internal/infra/render/chromedp"
	"github.com/bryanwahyu/pdaudit/internal/infra/secrets"
	minioStore "github.com/bryanwahyu/pdaudit/internal/infra/storage"
	"github.com/bryanwahyu/pdaudit/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	logger := cfg.NewLogger()
	log := logrus.NewEntry(logger).WithField("service", "pdaudit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

// storage bundles the persistence choices made from config.
type storage struct {
	registry registry.Store
	reports  domain.ReportRepository
	db       *sql.DB
}

func openStorage(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory storage; registry cache and reports are lost on restart")
		return &storage{registry: memory.NewStore(), reports: memory.NewReports()}, nil
	}

	box, err := secrets.NewBoxFromBase64(cfg.AI.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	var (
		db      *sql.DB
		migrate func(context.Context, *sql.DB) error
		st      = &storage{}
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		migrate = mysqlp.Migrate
		if err == nil {
			st.registry, st.reports = mysqlp.NewStore(db, box), mysqlp.NewReportRepository(db)
		}
	case "postgres":
		db, err = postgres.Connect(ctx, cfg.PostgresDSN())
		migrate = postgres.Migrate
		if err == nil {
			st.registry, st.reports = postgres.NewStore(db, box), postgres.NewReportRepository(db)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
	}
	if cfg.Database.Migrate {
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s migrate: %w", cfg.Database.Driver, err)
		}
	}
	st.db = db
	return st, nil
}

func buildBackends(cfg *config.Config, store registry.Store, tokens ai.TokenCache, log *logrus.Entry) ([]ai.Backend, error) {
	byName := map[string]func() (ai.Backend, error){
		"openai": func() (ai.Backend, error) {
			c := openai.NewClient(credential.FromStore(store, "openai", cfg.AI.OpenAI.APIKey, log), cfg.AI.OpenAI.Model)
			c.BaseURL = cfg.AI.OpenAI.BaseURL
			return c, nil
		},
		"gigachat": func() (ai.Backend, error) {
			return gigachat.New(gigachat.Config{
				Scope:  cfg.AI.GigaChat.Scope,
				Model:  cfg.AI.GigaChat.Model,
				CAFile: cfg.AI.GigaChat.CAFile,
			}, credential.FromStore(store, "gigachat", cfg.AI.GigaChat.AuthKey, log), tokens, log.WithField("provider", "gigachat"))
		},
		"yandexgpt": func() (ai.Backend, error) {
			return yandex.New(yandex.Config{
				FolderID: cfg.AI.Yandex.FolderID,
				Model:    cfg.AI.Yandex.Model,
			}, credential.FromStore(store, "yandexgpt", cfg.AI.Yandex.OAuthToken, log), tokens, log.WithField("provider", "yandexgpt")), nil
		},
	}

	backends := make([]ai.Backend, 0, len(cfg.AI.Order))
	for _, name := range cfg.AI.Order {
		b, err := byName[name]()
		if err != nil {
			return nil, fmt.Errorf("ai backend %s: %w", name, err)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Entry) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	health := map[string]middleware.HealthChecker{}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
		health["database"] = &middleware.DatabaseHealthChecker{DB: st.db}
	}

	// token cache: redis kalau ada, selain itu in-process
	var tokens ai.TokenCache = tokencache.NewMemory(time.Now)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		tokens = tokencache.NewRedis(rdb, log.WithField("component", "tokencache"))
		health["redis"] = &middleware.RedisHealthChecker{Client: rdb}
	}

	backends, err := buildBackends(cfg, st.registry, tokens, log)
	if err != nil {
		return err
	}

	fetcher := fetch.New(log.WithField("component", "fetch"))
	var renderer domain.Renderer
	if cfg.Renderer.Enabled {
		renderer = chromedp.New(log.WithField("component", "render"), cfg.Renderer.ExecPath, cfg.Renderer.MaxConcurrent)
	}

	classifier, err := hosting.New(log.WithField("component", "hosting"), cfg.Hosting.DomesticCIDRs, nil)
	if err != nil {
		return err
	}

	svc := &appaudit.Service{
		Fetcher: fetch.NewEscalator(log.WithField("component", "escalator"), fetcher, renderer),
		Probe:   fetcher,
		Checker: compliance.NewChecker(),
		Registry: rkn.New(log.WithField("component", "registry"), st.registry, rkn.Config{
			BaseURL:        cfg.Registry.BaseURL,
			Attempts:       cfg.Registry.Attempts,
			Delay:          cfg.Registry.Delay,
			AttemptTimeout: cfg.Registry.AttemptTimeout,
		}, rkn.WithMetrics(m)),
		AI:            appai.NewService(log.WithField("component", "ai"), m, backends...),
		Hosting:       classifier,
		Crawler:       crawler.New(log.WithField("component", "crawler"), fetcher, cfg.Crawler.RatePerSecond),
		Reports:       st.reports,
		Metrics:       m,
		Log:           log.WithField("component", "audit"),
		Clock:         application.SystemClock{},
		DefaultAIMode: ai.ParseMode(cfg.AI.Mode),
	}

	if cfg.Minio.Enabled {
		archive, err := minioStore.New(ctx, log.WithField("component", "archive"),
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		svc.Archive = archive
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	go limiter.Run(ctx)

	handler := httpserver.NewRouter(svc, httpserver.Options{
		Log:         log.WithField("component", "http"),
		Metrics:     m,
		Gatherer:    reg,
		APIKeys:     cfg.Auth.APIKeys,
		RateLimiter: limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Health:      health,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     addr,
			"db":       cfg.Database.Driver,
			"ai_mode":  cfg.AI.Mode,
			"backends": cfg.AI.Order,
			"render":   renderer != nil,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
