package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/metrics"
	"github.com/invitarr/invitarr-server/internal/store"
)

// ExpiryAction is what the sweeper does to an expired account.
type ExpiryAction string

// Expiry actions.
const (
	ExpiryDisable ExpiryAction = "disable"
	ExpiryDelete  ExpiryAction = "delete"
)

// DisableFallback is applied when an account should be disabled but its
// vendor has no disable primitive.
type DisableFallback string

// Disable fallbacks.
const (
	FallbackDelete DisableFallback = "delete"
	FallbackReport DisableFallback = "report"
)

// Sweep outcomes, also used as metric labels.
const (
	sweepDisabled    = "disabled"
	sweepDeleted     = "deleted"
	sweepReported    = "reported"
	sweepFailed      = "failed"
	sweepUnsupported = "unsupported"
)

// SweeperConfig configures the expiration sweeper.
type SweeperConfig struct {
	Interval        time.Duration
	Action          ExpiryAction
	DisableFallback DisableFallback
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Checked  int `json:"checked"`
	Disabled int `json:"disabled"`
	Deleted  int `json:"deleted"`

	// Reported counts accounts that stayed active because their vendor could
	// not disable them and the fallback is report.
	Reported int      `json:"reported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Sweeper disables or deletes accounts whose access window has closed.
type Sweeper struct {
	store   store.Store
	clients *ClientFactory
	metrics *metrics.Metrics
	cfg     SweeperConfig
	logger  *slog.Logger
	now     Clock

	mu     sync.Mutex // serializes sweeps
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a new sweeper. m may be nil.
func NewSweeper(s store.Store, clients *ClientFactory, m *metrics.Metrics, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Action == "" {
		cfg.Action = ExpiryDisable
	}
	if cfg.DisableFallback == "" {
		cfg.DisableFallback = FallbackReport
	}
	return &Sweeper{
		store:   s,
		clients: clients,
		metrics: m,
		cfg:     cfg,
		logger:  orDiscard(logger),
		now:     systemClock,
	}
}

// Start runs a sweep now and then every Interval until Stop is called.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.runLogged(ctx)
		for {
			select {
			case <-ticker.C:
				s.runLogged(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("Expiration sweeper started", "interval", s.cfg.Interval, "action", s.cfg.Action)
}

// Stop cancels the loop and waits for a running sweep to return.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Sweeper) runLogged(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("Expiration sweep failed", "error", err)
		}
		return
	}
	if report.Checked > 0 {
		s.logger.Info("Expiration sweep completed",
			"checked", report.Checked,
			"disabled", report.Disabled,
			"deleted", report.Deleted,
			"reported", report.Reported,
			"failed", report.Failed,
		)
	}
}

// RunOnce processes every active user whose expiry is at or before now.
// A failure on one account is counted and the sweep moves on; a failed
// account stays expired and is retried on the next sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { s.metrics.SweepFinished(time.Since(start)) }()

	users, err := s.store.ListExpiredUsers(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list expired users: %w", err)
	}

	report := &SweepReport{}
	servers := make(map[string]*domain.MediaServer)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if u.Status != domain.UserActive && s.cfg.Action == ExpiryDisable {
			continue
		}
		report.Checked++

		outcome, err := s.expire(ctx, u, servers)
		s.metrics.SweepAction(outcome)
		switch outcome {
		case sweepDisabled:
			report.Disabled++
		case sweepDeleted:
			report.Deleted++
		case sweepReported:
			report.Reported++
		default:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: %s", u.ID, publicError(err)))
			s.logger.Warn("Could not expire account", "user_id", u.ID, "server_id", u.ServerID, "error", err)
		}
	}
	return report, nil
}

// expire applies the configured action to one user and returns the outcome.
func (s *Sweeper) expire(ctx context.Context, u *domain.User, servers map[string]*domain.MediaServer) (string, error) {
	server, ok := servers[u.ServerID]
	if !ok {
		var err error
		server, err = s.store.GetMediaServer(ctx, u.ServerID)
		if err != nil {
			return sweepFailed, fmt.Errorf("get server: %w", err)
		}
		servers[u.ServerID] = server
	}
	client, err := s.clients.For(server)
	if err != nil {
		return sweepFailed, err
	}

	if s.cfg.Action == ExpiryDelete {
		return s.delete(ctx, client, u)
	}

	err = client.DisableAccount(ctx, u.ExternalID)
	switch {
	case err == nil:
		u.Status = domain.UserDisabled
		u.Stamp(s.now())
		if err := s.store.UpdateUser(ctx, u); err != nil {
			return sweepFailed, fmt.Errorf("update user: %w", err)
		}
		s.logger.Info("Expired account disabled", "user_id", u.ID, "server_id", u.ServerID)
		return sweepDisabled, nil
	case mediaclient.IsCapabilityUnsupported(err):
		return s.fallback(ctx, client, u, server)
	default:
		return sweepFailed, err
	}
}

func (s *Sweeper) fallback(ctx context.Context, client mediaclient.Client, u *domain.User, server *domain.MediaServer) (string, error) {
	switch s.cfg.DisableFallback {
	case FallbackDelete:
		s.logger.Warn("Vendor cannot disable accounts, deleting instead",
			"user_id", u.ID,
			"server_id", u.ServerID,
			"vendor", server.Type,
		)
		return s.delete(ctx, client, u)
	default:
		s.logger.Warn("Vendor cannot disable accounts, expired account left active",
			"user_id", u.ID,
			"server_id", u.ServerID,
			"vendor", server.Type,
		)
		return sweepReported, nil
	}
}

func (s *Sweeper) delete(ctx context.Context, client mediaclient.Client, u *domain.User) (string, error) {
	if err := deleteRemote(ctx, client, u.ExternalID); err != nil {
		if mediaclient.IsCapabilityUnsupported(err) {
			return sweepUnsupported, err
		}
		return sweepFailed, err
	}
	if err := s.store.DeleteUser(ctx, u.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return sweepFailed, fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info("Expired account deleted", "user_id", u.ID, "server_id", u.ServerID)
	return sweepDeleted, nil
}

// publicError describes err without vendor detail.
func publicError(err error) string {
	var ve *mediaclient.VendorError
	if errors.As(err, &ve) {
		return fmt.Sprintf("%s %s failed: %s", ve.Vendor, ve.Op, ve.Kind)
	}
	return err.Error()
}
