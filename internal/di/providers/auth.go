package providers

import (
	"github.com/samber/do/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/invitarr/invitarr-server/internal/auth"
	"github.com/invitarr/invitarr-server/internal/config"
	"github.com/invitarr/invitarr-server/internal/logger"
)

// AuthKey wraps the hex-encoded step token key.
type AuthKey string

// IdempotencySecret keys the tokens sent to vendors with account creation.
type IdempotencySecret []byte

// ProvideAuthKey loads or generates the step token key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.App.DataPath)
	if err != nil {
		return "", err
	}

	// Update config with the loaded key
	cfg.Auth.StepTokenKey = key

	log.Info("Step token key loaded", "step_token_lifetime", cfg.Auth.StepTokenLifetime)

	return AuthKey(key), nil
}

// ProvideStepTokenService provides the PASETO step token service.
func ProvideStepTokenService(i do.Injector) (*auth.StepTokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	key := do.MustInvoke[AuthKey](i)

	return auth.NewStepTokenService(string(key), cfg.Auth.StepTokenLifetime)
}

// ProvideIdempotencySecret returns IDEMPOTENCY_SECRET, or a value derived
// from the step key when it is unset. Either way it is stable across restarts.
func ProvideIdempotencySecret(i do.Injector) (IdempotencySecret, error) {
	cfg := do.MustInvoke[*config.Config](i)
	key := do.MustInvoke[AuthKey](i)

	if cfg.Auth.IdempotencySecret != "" {
		return IdempotencySecret(cfg.Auth.IdempotencySecret), nil
	}
	sum := blake2b.Sum256([]byte("invitarr/idempotency/" + string(key)))
	return IdempotencySecret(sum[:]), nil
}
