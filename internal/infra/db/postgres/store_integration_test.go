//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/secrets"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pdaudit"),
		tcpostgres.WithUsername("pdaudit"),
		tcpostgres.WithPassword("pdaudit"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	db, err := Connect(ctx, startPostgres(t))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))

	key, _ := secrets.GenerateKey()
	box, err := secrets.NewBoxFromBase64(key)
	require.NoError(t, err)
	store := NewStore(db, box)

	_, err = store.GetCachedRegistryEntry(ctx, "7707083893")
	assert.ErrorIs(t, err, registry.ErrCacheMiss)

	checked := time.Now().UTC().Truncate(time.Millisecond)
	entry := &registry.CacheEntry{
		TaxID:     "7707083893",
		Result:    registry.Result{TaxID: "7707083893", IsRegistered: true, Confidence: registry.ConfidenceHigh},
		Attempts:  2,
		CheckedAt: checked,
	}
	require.NoError(t, store.SaveCachedRegistryEntry(ctx, entry))
	entry.Negative = true
	require.NoError(t, store.SaveCachedRegistryEntry(ctx, entry))

	got, err := store.GetCachedRegistryEntry(ctx, "7707083893")
	require.NoError(t, err)
	assert.True(t, got.Negative)
	assert.True(t, got.Result.IsRegistered)
	assert.WithinDuration(t, checked, got.CheckedAt, time.Millisecond)

	_, err = store.GetDecryptedCredential(ctx, "gigachat")
	assert.ErrorIs(t, err, registry.ErrCredentialNotFound)
	require.NoError(t, store.SaveCredential(ctx, "gigachat", "secret-key"))
	v, err := store.GetDecryptedCredential(ctx, "gigachat")
	require.NoError(t, err)
	assert.Equal(t, "secret-key", v)

	reports := NewReportRepository(db)
	rep := &audit.Report{
		ID:         "0b8f3a52-8c1e-4e7a-9d59-3f1c2f7d0a11",
		URL:        "https://Shop.example.ru/catalog",
		Score:      audit.ScoreResult{Failed: 2},
		Brief:      audit.BriefReport{Score: audit.ScoreResult{Percent: 15, Severity: audit.SeverityCritical}},
		FinishedAt: time.Now(),
	}
	require.NoError(t, reports.Save(ctx, rep))

	loaded, err := reports.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.URL, loaded.URL)

	page, err := reports.Paginate(ctx, "shop.example.ru", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, audit.SeverityCritical, page.Data[0].Severity)

	_, err = reports.Get(ctx, "6a0e0c1e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, audit.ErrReportNotFound)
}
