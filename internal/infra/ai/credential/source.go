package credential

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

// Static always returns value, or ErrMissingCredentials when it is empty.
func Static(value string) ai.CredentialSource {
	return func(context.Context) (string, error) {
		if value == "" {
			return "", ai.ErrMissingCredentials
		}
		return value, nil
	}
}

// FromStore reads the provider credential from storage and falls back to the
// configured value when storage has none or is unavailable.
func FromStore(store registry.Store, provider, fallback string, log *logrus.Entry) ai.CredentialSource {
	return func(ctx context.Context) (string, error) {
		if store != nil {
			v, err := store.GetDecryptedCredential(ctx, provider)
			switch {
			case err == nil && v != "":
				return v, nil
			case err != nil && !errors.Is(err, registry.ErrCredentialNotFound):
				log.WithError(err).WithField("provider", provider).Warn("credential lookup failed, using config")
			}
		}
		if fallback == "" {
			return "", ai.ErrMissingCredentials
		}
		return fallback, nil
	}
}
