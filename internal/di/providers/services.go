package providers

import (
	"github.com/samber/do/v2"

	"github.com/invitarr/invitarr-server/internal/auth"
	"github.com/invitarr/invitarr-server/internal/config"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/logger"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/service"
)

func retryPolicy(cfg *config.Config) mediaclient.RetryPolicy {
	return mediaclient.RetryPolicy{
		MaxAttempts:     cfg.Redemption.MaxAttempts,
		InitialInterval: cfg.Redemption.InitialBackoff,
		MaxInterval:     cfg.Redemption.MaxBackoff,
	}
}

// ProvideInvitationService provides the invitation service.
func ProvideInvitationService(i do.Injector) (*service.InvitationService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewInvitationService(storeHandle.Store, log.Logger), nil
}

// ProvideWizardService provides the wizard service.
func ProvideWizardService(i do.Injector) (*service.WizardService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	interactions := do.MustInvoke[*interaction.Registry](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewWizardService(storeHandle.Store, interactions, log.Logger), nil
}

// ProvideServerService provides the media server service.
func ProvideServerService(i do.Injector) (*service.ServerService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	clients := do.MustInvoke[*service.ClientFactory](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewServerService(storeHandle.Store, clients, retryPolicy(cfg), log.Logger), nil
}

// ProvideAccountService provides the provisioned account service.
func ProvideAccountService(i do.Injector) (*service.AccountService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	clients := do.MustInvoke[*service.ClientFactory](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAccountService(storeHandle.Store, clients, retryPolicy(cfg), log.Logger), nil
}

// ProvideRedemptionService provides the redemption state machine.
func ProvideRedemptionService(i do.Injector) (*service.RedemptionService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	progressHandle := do.MustInvoke[*ProgressHandle](i)
	clients := do.MustInvoke[*service.ClientFactory](i)
	interactions := do.MustInvoke[*interaction.Registry](i)
	tokens := do.MustInvoke[*auth.StepTokenService](i)
	m := do.MustInvoke[*MetricsHandle](i)
	secret := do.MustInvoke[IdempotencySecret](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewRedemptionService(
		storeHandle.Store,
		progressHandle.Store,
		clients,
		interactions,
		tokens,
		m.Metrics,
		service.RedemptionConfig{
			Retry:             retryPolicy(cfg),
			Timeout:           cfg.Redemption.Timeout,
			IdempotencySecret: secret,
		},
		log.Logger,
	), nil
}
