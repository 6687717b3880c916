package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/invitarr/invitarr-server/internal/api"
	"github.com/invitarr/invitarr-server/internal/config"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/logger"
	"github.com/invitarr/invitarr-server/internal/ratelimit"
	"github.com/invitarr/invitarr-server/internal/service"
)

// Version is stamped at build time.
var Version = "dev"

// shutdownTimeout bounds draining HTTP requests and detached provisioning.
const shutdownTimeout = 30 * time.Second

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	redemptions *service.RedemptionService
}

// Shutdown implements do.Shutdownable. Detached provisioning is given the
// same deadline to finish once the listener has drained.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	return errors.Join(err, h.redemptions.Wait(ctx))
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	progressHandle := do.MustInvoke[*ProgressHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	redemptions := do.MustInvoke[*service.RedemptionService](i)
	sweeperHandle := do.MustInvoke[*SweeperHandle](i)

	services := &api.Services{
		Invitations:  do.MustInvoke[*service.InvitationService](i),
		Wizards:      do.MustInvoke[*service.WizardService](i),
		Servers:      do.MustInvoke[*service.ServerService](i),
		Redemptions:  redemptions,
		Accounts:     do.MustInvoke[*service.AccountService](i),
		Sweeper:      sweeperHandle.Sweeper,
		Interactions: do.MustInvoke[*interaction.Registry](i),
	}

	opts := api.Options{
		Version:     Version,
		AdminToken:  cfg.Server.AdminToken,
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    m.Registry,
	}
	if cfg.Server.PublicRPS > 0 {
		opts.PublicLimiter = ratelimit.New(cfg.Server.PublicRPS, cfg.Server.PublicBurst)
	}
	if opts.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is not set, the admin API is disabled")
	}

	handler := api.NewServer(storeHandle.Store, progressHandle.Store, services, opts, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr, "version", Version)

	return &HTTPServerHandle{Server: srv, redemptions: redemptions}, nil
}
