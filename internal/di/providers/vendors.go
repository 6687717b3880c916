package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"

	"github.com/invitarr/invitarr-server/internal/config"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/logger"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/mediaclient/jellyfin"
	"github.com/invitarr/invitarr-server/internal/mediaclient/plex"
	"github.com/invitarr/invitarr-server/internal/metrics"
	"github.com/invitarr/invitarr-server/internal/ratelimit"
	"github.com/invitarr/invitarr-server/internal/service"
)

// MetricsHandle pairs the application metrics with the registry that serves them.
type MetricsHandle struct {
	*metrics.Metrics
	Registry *prometheus.Registry
}

// ProvideMetrics provides the Prometheus metrics.
func ProvideMetrics(i do.Injector) (*MetricsHandle, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &MetricsHandle{Metrics: metrics.New(reg), Registry: reg}, nil
}

// ProvideVendorRegistry registers every supported vendor and seals the registry.
func ProvideVendorRegistry(i do.Injector) (*mediaclient.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	registry := mediaclient.NewRegistry()
	ledger := mediaclient.NewLedger()

	if err := jellyfin.Register(registry, jellyfin.Options{Ledger: ledger}); err != nil {
		return nil, err
	}
	if err := plex.Register(registry, plex.Options{
		AccountURL: cfg.Vendor.PlexAccountURL,
		ClientID:   cfg.Vendor.PlexClientID,
		Ledger:     ledger,
	}); err != nil {
		return nil, err
	}
	registry.Seal()

	log.Info("Vendor clients registered", "vendors", registry.Vendors())
	return registry, nil
}

// ProvideInteractionRegistry provides the step validators.
func ProvideInteractionRegistry(i do.Injector) (*interaction.Registry, error) {
	return interaction.DefaultRegistry(), nil
}

// ProvideClientFactory provides the rate-limited, instrumented vendor client factory.
func ProvideClientFactory(i do.Injector) (*service.ClientFactory, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*mediaclient.Registry](i)
	m := do.MustInvoke[*MetricsHandle](i)

	limiter := ratelimit.New(cfg.Vendor.RPS, cfg.Vendor.Burst)
	return service.NewClientFactory(registry, limiter, cfg.Vendor.RequestTimeout, m.Metrics, log.Logger), nil
}
