package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		LogLevel        string        `yaml:"logLevel"`
		LogFormat       string        `yaml:"logFormat"` // text | json
		CORSOrigins     []string      `yaml:"corsOrigins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | memory
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	AI struct {
		Mode string `yaml:"mode"` // single | fallback | race
		// Order lists backend names by priority; the first is the single-mode backend.
		Order         []string `yaml:"order"`
		EncryptionKey string   `yaml:"encryptionKey"`

		OpenAI struct {
			APIKey  string `yaml:"apiKey"`
			Model   string `yaml:"model"`
			BaseURL string `yaml:"baseURL"`
		} `yaml:"openai"`

		GigaChat struct {
			AuthKey string `yaml:"authKey"`
			Scope   string `yaml:"scope"`
			Model   string `yaml:"model"`
			CAFile  string `yaml:"caFile"`
		} `yaml:"gigachat"`

		Yandex struct {
			OAuthToken string `yaml:"oauthToken"`
			FolderID   string `yaml:"folderID"`
			Model      string `yaml:"model"`
		} `yaml:"yandex"`
	} `yaml:"ai"`

	Registry struct {
		BaseURL        string        `yaml:"baseURL"`
		Attempts       int           `yaml:"attempts"`
		Delay          time.Duration `yaml:"delay"`
		AttemptTimeout time.Duration `yaml:"attemptTimeout"`
	} `yaml:"registry"`

	Hosting struct {
		DomesticCIDRs []string `yaml:"domesticCIDRs"`
	} `yaml:"hosting"`

	Renderer struct {
		Enabled       bool   `yaml:"enabled"`
		ExecPath      string `yaml:"execPath"`
		MaxConcurrent int    `yaml:"maxConcurrent"`
	} `yaml:"renderer"`

	Crawler struct {
		RatePerSecond float64 `yaml:"ratePerSecond"`
	} `yaml:"crawler"`

	Auth struct {
		// APIKeys maps a client name to its key, plain or bcrypt-hashed.
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		PerMinute int `yaml:"perMinute"`
		Burst     int `yaml:"burst"`
	} `yaml:"rateLimit"`
}

// Load baca file config.yaml, lalu env override dan default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets stay out of the file.
func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("PDAUDIT_DB_DRIVER", &c.Database.Driver)
	str("PDAUDIT_DB_HOST", &c.Database.Host)
	str("PDAUDIT_DB_USER", &c.Database.User)
	str("PDAUDIT_DB_PASSWORD", &c.Database.Password)
	str("PDAUDIT_DB_NAME", &c.Database.Name)
	str("PDAUDIT_MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("PDAUDIT_MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("PDAUDIT_REDIS_ADDR", &c.Redis.Addr)
	str("PDAUDIT_REDIS_PASSWORD", &c.Redis.Password)
	str("PDAUDIT_AI_MODE", &c.AI.Mode)
	str("PDAUDIT_ENCRYPTION_KEY", &c.AI.EncryptionKey)
	str("OPENAI_API_KEY", &c.AI.OpenAI.APIKey)
	str("GIGACHAT_AUTH_KEY", &c.AI.GigaChat.AuthKey)
	str("YANDEX_OAUTH_TOKEN", &c.AI.Yandex.OAuthToken)
	str("YANDEX_FOLDER_ID", &c.AI.Yandex.FolderID)
	str("PDAUDIT_LOG_LEVEL", &c.Server.LogLevel)
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("PDAUDIT_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Database.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	// full audits with rendering and three AI backends take minutes
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 3 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "pdaudit-reports"
	}
	if c.AI.Mode == "" {
		c.AI.Mode = "single"
	}
	if len(c.AI.Order) == 0 {
		c.AI.Order = []string{"openai", "gigachat", "yandexgpt"}
	}
	if c.Renderer.MaxConcurrent == 0 {
		c.Renderer.MaxConcurrent = 2
	}
	if c.Crawler.RatePerSecond == 0 {
		c.Crawler.RatePerSecond = 2
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 30
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
}

// Validate rejects settings that would only fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "memory", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want mysql, postgres or memory", c.Database.Driver))
	}
	switch c.AI.Mode {
	case "single", "fallback", "race":
	default:
		errs = append(errs, fmt.Errorf("ai.mode %q: want single, fallback or race", c.AI.Mode))
	}
	for _, name := range c.AI.Order {
		switch name {
		case "openai", "gigachat", "yandexgpt":
		default:
			errs = append(errs, fmt.Errorf("ai.order: unknown backend %q", name))
		}
	}
	if c.Database.Driver != "memory" && c.AI.EncryptionKey == "" {
		errs = append(errs, errors.New("ai.encryptionKey is required with a database driver"))
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		errs = append(errs, errors.New("minio.endpoint is required when minio is enabled"))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection url.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}

// NewLogger builds the root logrus logger from the server section.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(strings.ToLower(c.Server.LogLevel)); err == nil {
		log.SetLevel(lvl)
	}
	if c.Server.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
