package providers

import (
	"github.com/samber/do/v2"

	"github.com/invitarr/invitarr-server/internal/config"
	"github.com/invitarr/invitarr-server/internal/logger"
	"github.com/invitarr/invitarr-server/internal/service"
)

// SweeperHandle wraps the expiration sweeper with shutdown capability.
type SweeperHandle struct {
	*service.Sweeper
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *SweeperHandle) Shutdown() error {
	if h.started {
		h.Stop()
	}
	return nil
}

// ProvideSweeper provides the expiration sweeper and starts it when enabled.
// A disabled sweeper still backs the admin sweep route.
func ProvideSweeper(i do.Injector) (*SweeperHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	clients := do.MustInvoke[*service.ClientFactory](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	sweeper := service.NewSweeper(storeHandle.Store, clients, m.Metrics, service.SweeperConfig{
		Interval:        cfg.Sweeper.Interval,
		Action:          service.ExpiryAction(cfg.Sweeper.ExpiryAction),
		DisableFallback: service.DisableFallback(cfg.Sweeper.DisableFallback),
	}, log.Logger)

	handle := &SweeperHandle{Sweeper: sweeper}
	if cfg.Sweeper.Enabled {
		sweeper.Start()
		handle.started = true
	} else {
		log.Info("Expiration sweeper disabled")
	}
	return handle, nil
}
