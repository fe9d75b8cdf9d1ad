package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

func TestStore_RegistryCacheAndCredentials(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.GetCachedRegistryEntry(ctx, "7707083893")
	assert.ErrorIs(t, err, registry.ErrCacheMiss)

	require.NoError(t, s.SaveCachedRegistryEntry(ctx, &registry.CacheEntry{TaxID: "7707083893", Attempts: 1}))
	require.NoError(t, s.SaveCachedRegistryEntry(ctx, &registry.CacheEntry{TaxID: "7707083893", Attempts: 5, Negative: true}))
	e, err := s.GetCachedRegistryEntry(ctx, "7707083893")
	require.NoError(t, err)
	assert.Equal(t, 5, e.Attempts)
	assert.True(t, e.Negative)

	_, err = s.GetDecryptedCredential(ctx, "openai")
	assert.ErrorIs(t, err, registry.ErrCredentialNotFound)
	s.SetCredential("openai", "sk")
	v, _ := s.GetDecryptedCredential(ctx, "openai")
	assert.Equal(t, "sk", v)
}

func TestReports_PaginateNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewReports()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, &audit.Report{
			ID:         fmt.Sprintf("r%d", i),
			URL:        "https://shop.example.ru/",
			FinishedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.Save(ctx, &audit.Report{ID: "other", URL: "https://other.ru/", FinishedAt: base}))

	p, err := s.Paginate(ctx, "shop.example.ru", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Total)
	assert.Equal(t, 3, p.TotalPages)
	require.Len(t, p.Data, 2)
	assert.Equal(t, "r4", p.Data[0].ID)

	p, _ = s.Paginate(ctx, "", 4, 2)
	assert.Empty(t, p.Data)
	assert.Equal(t, int64(6), p.Total)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, audit.ErrReportNotFound)
}
