package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/db/memory"
)

type brokenStore struct{ *memory.Store }

func (brokenStore) GetDecryptedCredential(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestFromStore(t *testing.T) {
	l, hook := logtest.NewNullLogger()
	log := logrus.NewEntry(l)
	ctx := context.Background()

	store := memory.NewStore()
	store.SetCredential("openai", "from-db")
	v, err := FromStore(store, "openai", "from-config", log)(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "from-db", v)

	v, err = FromStore(store, "gigachat", "from-config", log)(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "from-config", v)
	assert.Empty(t, hook.AllEntries())

	v, err = FromStore(brokenStore{memory.NewStore()}, "openai", "from-config", log)(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "from-config", v)
	assert.Len(t, hook.AllEntries(), 1)

	_, err = FromStore(store, "yandexgpt", "", log)(ctx)
	assert.ErrorIs(t, err, ai.ErrMissingCredentials)

	var _ registry.Store = brokenStore{}
}

func TestStatic(t *testing.T) {
	_, err := Static("")(context.Background())
	assert.ErrorIs(t, err, ai.ErrMissingCredentials)
	v, _ := Static("k")(context.Background())
	assert.Equal(t, "k", v)
}
