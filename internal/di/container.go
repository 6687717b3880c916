// Package di provides dependency injection configuration for the invitation server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/invitarr/invitarr-server/internal/auth"
	"github.com/invitarr/invitarr-server/internal/config"
	"github.com/invitarr/invitarr-server/internal/di/providers"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/logger"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Auth layer
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideStepTokenService)
	do.Provide(injector, providers.ProvideIdempotencySecret)

	// Database layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideProgress)

	// Vendor layer
	do.Provide(injector, providers.ProvideVendorRegistry)
	do.Provide(injector, providers.ProvideInteractionRegistry)
	do.Provide(injector, providers.ProvideClientFactory)

	// Business services
	do.Provide(injector, providers.ProvideInvitationService)
	do.Provide(injector, providers.ProvideWizardService)
	do.Provide(injector, providers.ProvideServerService)
	do.Provide(injector, providers.ProvideAccountService)
	do.Provide(injector, providers.ProvideRedemptionService)

	// Workers
	do.Provide(injector, providers.ProvideSweeper)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.MetricsHandle](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*auth.StepTokenService](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.ProgressHandle](injector)
	_ = do.MustInvoke[*mediaclient.Registry](injector)
	_ = do.MustInvoke[*interaction.Registry](injector)
	_ = do.MustInvoke[*service.ClientFactory](injector)

	// Business services
	_ = do.MustInvoke[*service.InvitationService](injector)
	_ = do.MustInvoke[*service.WizardService](injector)
	_ = do.MustInvoke[*service.ServerService](injector)
	_ = do.MustInvoke[*service.AccountService](injector)
	_ = do.MustInvoke[*service.RedemptionService](injector)

	// Workers
	_ = do.MustInvoke[*providers.SweeperHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
