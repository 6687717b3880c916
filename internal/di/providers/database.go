package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/invitarr/invitarr-server/internal/config"
	"github.com/invitarr/invitarr-server/internal/logger"
	"github.com/invitarr/invitarr-server/internal/progress"
	"github.com/invitarr/invitarr-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the SQLite store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Path, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.Database.Path)

	return &StoreHandle{Store: db}, nil
}

// ProgressHandle wraps the redemption session store with shutdown capability.
type ProgressHandle struct {
	*progress.Store
}

// Shutdown implements do.Shutdownable.
func (h *ProgressHandle) Shutdown() error {
	return h.Close()
}

// ProvideProgress provides the redemption session store.
func ProvideProgress(i do.Injector) (*ProgressHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Progress.InMemory {
		log.Warn("Redemption sessions are kept in memory and will not survive a restart")
		sessions, err := progress.OpenInMemory(cfg.Progress.SessionTTL, log.Logger)
		if err != nil {
			return nil, err
		}
		return &ProgressHandle{Store: sessions}, nil
	}

	if err := os.MkdirAll(cfg.Progress.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create progress directory: %w", err)
	}
	sessions, err := progress.Open(cfg.Progress.Path, cfg.Progress.SessionTTL, log.Logger)
	if err != nil {
		return nil, err
	}
	return &ProgressHandle{Store: sessions}, nil
}
