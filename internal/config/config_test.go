package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	p := writeConfig(t, `
server:
  port: 9090
ai:
  mode: race
  openai:
    model: gpt-4o
registry:
  attempts: 2
  delay: 500ms
hosting:
  domesticCIDRs: ["95.213.0.0/16"]
auth:
  apiKeys:
    web: plain-key
`)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("YANDEX_FOLDER_ID", "b1gfolder")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "race", cfg.AI.Mode)
	assert.Equal(t, []string{"openai", "gigachat", "yandexgpt"}, cfg.AI.Order)
	assert.Equal(t, "sk-from-env", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.AI.OpenAI.Model)
	assert.Equal(t, "b1gfolder", cfg.AI.Yandex.FolderID)
	assert.Equal(t, 500*time.Millisecond, cfg.Registry.Delay)
	assert.Equal(t, []string{"95.213.0.0/16"}, cfg.Hosting.DomesticCIDRs)
	assert.Equal(t, "plain-key", cfg.Auth.APIKeys["web"])
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "ai:\n  mode: lottery\n  order: [openai, claude]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lottery")
	assert.Contains(t, err.Error(), "claude")

	_, err = Load(writeConfig(t, "database:\n  driver: mysql\n"))
	assert.ErrorContains(t, err, "encryptionKey")
}

func TestDSNs(t *testing.T) {
	var c Config
	c.Database.Host, c.Database.User, c.Database.Password, c.Database.Name = "db", "audit", "p@ss", "pdaudit"

	c.Database.Driver = "mysql"
	c.applyDefaults()
	assert.Equal(t, "audit:p@ss@tcp(db:3306)/pdaudit?parseTime=true&charset=utf8mb4&loc=UTC", c.MySQLDSN())

	var pg Config
	pg.Database.Host, pg.Database.User, pg.Database.Password, pg.Database.Name = "db", "audit", "p@ss", "pdaudit"
	pg.Database.Driver = "postgres"
	pg.applyDefaults()
	assert.Equal(t, "postgres://audit:p%40ss@db:5432/pdaudit?sslmode=disable", pg.PostgresDSN())
}

func TestNewLogger(t *testing.T) {
	var c Config
	c.Server.LogLevel = "debug"
	c.Server.LogFormat = "json"
	log := c.NewLogger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}
