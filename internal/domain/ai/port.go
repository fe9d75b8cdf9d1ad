package ai

import (
	"context"
	"time"
)

// Backend is one language-model provider.
type Backend interface {
	Name() string
	// Configured reports whether credentials are available without a network call.
	Configured(ctx context.Context) bool
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Mode selects the orchestration strategy.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeFallback Mode = "fallback"
	ModeRace     Mode = "race"
)

// ParseMode maps a config or request value onto a Mode, defaulting to single.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeFallback, ModeRace:
		return Mode(s)
	default:
		return ModeSingle
	}
}

// TokenSafetyMargin is subtracted from a token's stated expiry.
const TokenSafetyMargin = 60 * time.Second

// TokenCache keeps exchanged bearer tokens until shortly before they expire.
// Implementations apply TokenSafetyMargin themselves.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, token string, expiresAt time.Time)
}

// CredentialSource resolves a provider secret at call time so rotated keys
// are picked up without a restart.
type CredentialSource func(ctx context.Context) (string, error)
