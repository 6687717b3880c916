package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/invitarr/invitarr-server/internal/auth"
	"github.com/invitarr/invitarr-server/internal/domain"
	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/id"
	"github.com/invitarr/invitarr-server/internal/interaction"
	"github.com/invitarr/invitarr-server/internal/mediaclient"
	"github.com/invitarr/invitarr-server/internal/metrics"
	"github.com/invitarr/invitarr-server/internal/progress"
	"github.com/invitarr/invitarr-server/internal/store"
)

// Failure categories decided locally, before any vendor call.
const (
	kindServerDisabled        = "server_disabled"
	kindServerMissing         = "server_missing"
	kindUnknownVendor         = "unknown_vendor"
	kindCapabilityUnsupported = "capability_unsupported"
	kindNoLibraries           = "no_libraries"
)

// DefaultProvisionTimeout bounds a provisioning run that outlives its caller.
const DefaultProvisionTimeout = 2 * time.Minute

const unknownMessage = "Your accounts are still being set up. Check back in a moment."

var errNoLibraries = errors.New("none of the requested libraries exist on the server")

// Phase tells whether a step belongs to the pre- or post-redemption wizard.
type Phase string

// Wizard phases.
const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// RedemptionConfig tunes provisioning.
type RedemptionConfig struct {
	Retry             mediaclient.RetryPolicy
	Timeout           time.Duration
	IdempotencySecret []byte
}

// RedemptionService drives an invitation from code entry through the
// guided steps to account provisioning.
//
// Per-invitation serialization comes from the store's atomic use-count
// increment; per-session serialization from optimistic session updates.
// Redemptions of different invitations share no locks.
type RedemptionService struct {
	store        store.Store
	sessions     *progress.Store
	clients      *ClientFactory
	interactions *interaction.Registry
	tokens       *auth.StepTokenService
	metrics      *metrics.Metrics
	cfg          RedemptionConfig
	logger       *slog.Logger
	now          Clock

	inflight sync.WaitGroup
}

// NewRedemptionService creates a new redemption service. tokens and m may be nil.
func NewRedemptionService(
	s store.Store,
	sessions *progress.Store,
	clients *ClientFactory,
	interactions *interaction.Registry,
	tokens *auth.StepTokenService,
	m *metrics.Metrics,
	cfg RedemptionConfig,
	logger *slog.Logger,
) *RedemptionService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProvisionTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = mediaclient.DefaultRetryPolicy
	}
	return &RedemptionService{
		store:        s,
		sessions:     sessions,
		clients:      clients,
		interactions: interactions,
		tokens:       tokens,
		metrics:      m,
		cfg:          cfg,
		logger:       orDiscard(logger),
		now:          systemClock,
	}
}

// StepView is a step as presented to the redeemer.
type StepView struct {
	ID              string          `json:"id"`
	Phase           Phase           `json:"phase"`
	Position        int             `json:"position"`
	Total           int             `json:"total"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	InteractionType string          `json:"interaction_type"`
	Config          json.RawMessage `json:"config"`

	// StartedAt is an opaque token recording when the server presented the
	// step. Clients echo it back with their response.
	StartedAt string `json:"started_at,omitempty"`
}

// ServerResult is the per-server provisioning result shown to callers.
// It names the vendor and a failure category, never vendor error detail.
type ServerResult struct {
	ServerID  string                `json:"server_id"`
	Name      string                `json:"name"`
	Vendor    string                `json:"vendor"`
	Status    progress.ServerStatus `json:"status"`
	ErrorKind string                `json:"error_kind,omitempty"`
	Retryable bool                  `json:"retryable,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
}

// RedemptionView is the state of a redemption as returned to callers.
type RedemptionView struct {
	ID          string                  `json:"id"`
	State       progress.State          `json:"state"`
	Reason      domain.InvitationReason `json:"reason,omitempty"`
	Message     string                  `json:"message,omitempty"`
	CurrentStep *StepView               `json:"current_step,omitempty"`
	Servers     []ServerResult          `json:"servers,omitempty"`
}

// StepSubmission is a redeemer's response to one step.
type StepSubmission struct {
	StepID    string          `json:"step_id" validate:"required"`
	Response  json.RawMessage `json:"response"`
	StartedAt string          `json:"started_at,omitempty"`
}

// StepResult is the outcome of a step submission. Duplicate is set when the
// same response had already completed the step; nothing was recorded again.
type StepResult struct {
	Valid      bool            `json:"valid"`
	Pending    bool            `json:"pending,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duplicate  bool            `json:"duplicate,omitempty"`
	Redemption *RedemptionView `json:"redemption"`
}

// AccountRequest is the account the redeemer asks for.
// The password is passed to vendors and never stored.
type AccountRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"max=256"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

// stepRef locates the step a session is waiting on.
type stepRef struct {
	step  *domain.WizardStep
	phase Phase
	index int
	total int
	next  string // ID of the following step, "" when last
}

// Begin validates a code and opens a redemption session.
// A rejected code yields an *InvitationInvalidError and no session.
func (s *RedemptionService) Begin(ctx context.Context, code string) (*RedemptionView, error) {
	now := s.now()
	inv, err := redeemable(ctx, s.store, code, now)
	if err != nil {
		if reason, ok := InvitationReasonOf(err); ok {
			s.metrics.RedemptionRejected(string(reason))
			s.logger.Info("Redemption rejected", "reason", reason)
		}
		return nil, err
	}

	pre, err := s.wizard(ctx, inv.PreWizardID)
	if err != nil {
		return nil, err
	}

	sess := progress.NewSession(uuid.NewString(), inv.ID, inv.Code, now)
	sess.PreWizardID = inv.PreWizardID
	sess.PostWizardID = inv.PostWizardID
	if pre != nil && len(pre.Steps) > 0 {
		sess.State = progress.StateStepSequence
		sess.PresentedAt[pre.Steps[0].ID] = now
	} else {
		sess.State = progress.StateReady
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save redemption: %w", err)
	}

	s.metrics.RedemptionStarted()
	s.logger.Info("Redemption started", "redemption", sess.ID, "invitation_id", inv.ID, "state", sess.State)
	return s.view(ctx, sess)
}

// Get returns the current view of a redemption.
func (s *RedemptionService) Get(ctx context.Context, redemptionID string) (*RedemptionView, error) {
	sess, err := s.load(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sess)
}

// List returns the live redemptions in any of states, or all when none given.
func (s *RedemptionService) List(ctx context.Context, states ...progress.State) ([]*RedemptionView, error) {
	sessions, err := s.sessions.List(ctx, states...)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	views := make([]*RedemptionView, 0, len(sessions))
	for _, sess := range sessions {
		v, err := s.view(ctx, sess)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// SubmitStep validates a response to the current step and advances the
// session when it passes. Re-submitting the response that already completed
// a step returns the prior result without recording anything.
func (s *RedemptionService) SubmitStep(ctx context.Context, redemptionID string, sub StepSubmission) (*StepResult, error) {
	if err := validate.Validate(sub); err != nil {
		return nil, err
	}

	sess, err := s.load(ctx, redemptionID)
	if err != nil {
		return nil, err
	}

	fp := fingerprint(sub.StepID, sub.Response)
	if prior, ok := sess.Completions[sub.StepID]; ok {
		if prior.Fingerprint != fp {
			return nil, domainerrors.Conflict("this step was already completed with a different response")
		}
		return s.duplicate(ctx, sess, sub.StepID)
	}

	ref, err := s.currentStep(ctx, sess)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, domainerrors.Conflict("no step is waiting for a response")
	}
	if ref.step.ID != sub.StepID {
		return nil, &interaction.StepValidationError{StepID: sub.StepID, Reason: "This is not the current step."}
	}

	now := s.now()
	startedAt := s.startedAt(sess, sub.StepID, sub.StartedAt)
	res, err := s.interactions.Validate(ref.step.InteractionType, ref.step.Config, sub.Response, startedAt, now)
	if err != nil {
		return nil, fmt.Errorf("validate step %s: %w", ref.step.ID, err)
	}

	switch {
	case res.Pending:
		s.metrics.StepSubmitted(ref.step.InteractionType, "pending")
		view, err := s.view(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &StepResult{Pending: true, Redemption: view}, nil
	case !res.Valid:
		s.metrics.StepSubmitted(ref.step.InteractionType, "invalid")
		view, err := s.view(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &StepResult{Error: res.Reason, Redemption: view}, nil
	}

	duplicate := false
	updated, err := s.sessions.Update(ctx, redemptionID, func(cur *progress.Session) error {
		duplicate = false
		if prior, ok := cur.Completions[ref.step.ID]; ok {
			if prior.Fingerprint != fp {
				return domainerrors.Conflict("this step was already completed with a different response")
			}
			duplicate = true
			return nil
		}
		if !stillCurrent(cur, ref) {
			return domainerrors.Conflict("the redemption moved on; reload and try again")
		}

		cur.Completions[ref.step.ID] = progress.Completion{
			StepID:      ref.step.ID,
			Fingerprint: fp,
			CompletedAt: now,
		}
		switch ref.phase {
		case PhasePre:
			cur.PreStepIndex++
			if cur.PreStepIndex >= ref.total {
				cur.State = progress.StateReady
			}
		case PhasePost:
			cur.PostStepIndex++
		}
		if ref.next != "" {
			cur.PresentedAt[ref.next] = now
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.sessionError(err, redemptionID)
	}

	result := "valid"
	if duplicate {
		result = "duplicate"
	}
	s.metrics.StepSubmitted(ref.step.InteractionType, result)

	view, err := s.view(ctx, updated)
	if err != nil {
		return nil, err
	}
	return &StepResult{Valid: true, Duplicate: duplicate, Redemption: view}, nil
}

// Provision reserves one use of the invitation and creates an account on
// every target server in parallel.
//
// If ctx ends first the caller gets StateUnknown. Provisioning continues in
// the background and nothing is rolled back: vendor calls may already have
// taken effect. The final state can be read later with Get.
func (s *RedemptionService) Provision(ctx context.Context, redemptionID string, req AccountRequest) (*RedemptionView, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	sess, err := s.load(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if sess.State == progress.StateStepSequence {
		ref, err := s.currentStep(ctx, sess)
		if err != nil {
			return nil, err
		}
		stepID := ""
		if ref != nil {
			stepID = ref.step.ID
		}
		return nil, &interaction.StepValidationError{StepID: stepID, Reason: "Complete the remaining steps first."}
	}

	now := s.now()
	sess, err = s.sessions.Update(ctx, redemptionID, func(cur *progress.Session) error {
		if err := readyForProvisioning(cur.State); err != nil {
			return err
		}
		cur.State = progress.StateProvisioning
		cur.Account = &progress.Account{Username: req.Username, Email: req.Email}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.sessionError(err, redemptionID)
	}

	inv, err := s.store.GetInvitation(ctx, sess.InvitationID)
	if err != nil {
		s.restoreState(ctx, redemptionID, progress.StateReady)
		return nil, fmt.Errorf("get invitation: %w", err)
	}

	reserved, err := s.store.AtomicIncrementUseCount(ctx, sess.InvitationCode, now)
	if err != nil {
		s.restoreState(ctx, redemptionID, progress.StateReady)
		return nil, fmt.Errorf("reserve invitation use: %w", err)
	}
	if !reserved {
		return nil, s.reject(ctx, redemptionID, inv.ID, now)
	}

	servers, err := s.store.FindMediaServersByIDs(ctx, inv.ServerIDs)
	if err != nil {
		s.releaseUse(context.WithoutCancel(ctx), sess.InvitationCode)
		s.restoreState(ctx, redemptionID, progress.StateReady)
		return nil, fmt.Errorf("find servers: %w", err)
	}

	var missing []progress.ServerOutcome
	sess, err = s.sessions.Update(context.WithoutCancel(ctx), redemptionID, func(cur *progress.Session) error {
		missing = missing[:0]
		cur.UseReserved = true
		for _, server := range servers {
			cur.Servers[server.ID] = progress.ServerOutcome{
				ServerID:  server.ID,
				Name:      server.Name,
				Vendor:    string(server.Type),
				Status:    progress.ServerPending,
				UpdatedAt: now,
			}
		}
		for _, serverID := range missingIDs(inv.ServerIDs, serverIDsOf(servers)) {
			out := progress.ServerOutcome{
				ServerID:  serverID,
				Status:    progress.ServerFailed,
				ErrorKind: kindServerMissing,
				UpdatedAt: now,
			}
			cur.Servers[serverID] = out
			missing = append(missing, out)
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.releaseUse(context.WithoutCancel(ctx), inv.Code)
		return nil, s.sessionError(err, redemptionID)
	}

	s.logger.Info("Provisioning started",
		"redemption", redemptionID,
		"invitation_id", inv.ID,
		"servers", len(servers),
	)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	done := make(chan *progress.Session, 1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		done <- s.provisionAll(runCtx, sess, inv, servers, req.Password, missing)
	}()

	select {
	case final := <-done:
		return s.view(ctx, final)
	case <-ctx.Done():
		s.markUnknown(redemptionID)
		s.logger.Warn("Caller left during provisioning", "redemption", redemptionID, "error", ctx.Err())
		return &RedemptionView{ID: redemptionID, State: progress.StateUnknown, Message: unknownMessage}, nil
	}
}

// RetryServer re-runs provisioning for one failed server of a finished
// redemption. The invitation's use is only taken again if it was released
// because every server had failed.
func (s *RedemptionService) RetryServer(ctx context.Context, redemptionID, serverID, password string) (*RedemptionView, error) {
	now := s.now()
	var (
		prior       progress.ServerOutcome
		priorState  progress.State
		needReserve bool
	)
	sess, err := s.sessions.Update(ctx, redemptionID, func(cur *progress.Session) error {
		if cur.State != progress.StatePartiallyCompleted && cur.State != progress.StateFailed {
			return domainerrors.Conflictf("redemption is %s; only failed servers of a finished redemption can be retried", cur.State)
		}
		out, ok := cur.Servers[serverID]
		if !ok {
			return domainerrors.NotFoundf("server %s is not a target of this redemption", serverID)
		}
		if out.Status != progress.ServerFailed {
			return domainerrors.Conflictf("server %s did not fail", serverID)
		}
		prior = out
		priorState = cur.State
		needReserve = !cur.UseReserved

		out.Status = progress.ServerPending
		out.UpdatedAt = now
		cur.Servers[serverID] = out
		cur.State = progress.StateProvisioning
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.sessionError(err, redemptionID)
	}

	undo := func() {
		s.update(context.WithoutCancel(ctx), redemptionID, func(cur *progress.Session) {
			cur.Servers[serverID] = prior
			cur.State = priorState
		})
	}

	inv, err := s.store.GetInvitation(ctx, sess.InvitationID)
	if err != nil {
		undo()
		return nil, fmt.Errorf("get invitation: %w", err)
	}

	if needReserve {
		reserved, err := s.store.AtomicIncrementUseCount(ctx, inv.Code, now)
		if err != nil {
			undo()
			return nil, fmt.Errorf("reserve invitation use: %w", err)
		}
		if !reserved {
			undo()
			reason := rejectionReason(ctx, s.store, inv.ID, now)
			return nil, &InvitationInvalidError{Reason: reason}
		}
		s.update(context.WithoutCancel(ctx), redemptionID, func(cur *progress.Session) {
			cur.UseReserved = true
		})
	}

	server, err := s.store.GetMediaServer(ctx, serverID)
	if err != nil {
		undo()
		if needReserve {
			s.releaseUse(context.WithoutCancel(ctx), inv.Code)
		}
		return nil, notFound(err, "server", serverID)
	}

	identityID := s.identity(ctx, sess.Account, now)
	out := s.provisionServer(ctx, sess, inv, server, identityID, password)
	out.Attempts += prior.Attempts

	s.logger.Info("Server retry finished",
		"redemption", redemptionID,
		"server_id", serverID,
		"status", out.Status,
		"error_kind", out.ErrorKind,
	)

	final := s.finish(ctx, redemptionID, inv, []progress.ServerOutcome{out})
	return s.view(ctx, final)
}

// Wait blocks until background provisioning runs have finished or ctx ends.
func (s *RedemptionService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// provisionAll provisions every server in parallel and records the result.
func (s *RedemptionService) provisionAll(ctx context.Context, sess *progress.Session, inv *domain.Invitation, servers []*domain.MediaServer, password string, extra []progress.ServerOutcome) *progress.Session {
	identityID := s.identity(ctx, sess.Account, s.now())

	outcomes := make([]progress.ServerOutcome, len(servers))
	var wg sync.WaitGroup
	for i, server := range servers {
		wg.Go(func() {
			outcomes[i] = s.provisionServer(ctx, sess, inv, server, identityID, password)
		})
	}
	wg.Wait()

	return s.finish(ctx, sess.ID, inv, append(outcomes, extra...))
}

// provisionServer creates the account on one server and persists the User.
func (s *RedemptionService) provisionServer(ctx context.Context, sess *progress.Session, inv *domain.Invitation, server *domain.MediaServer, identityID, password string) progress.ServerOutcome {
	out := progress.ServerOutcome{
		ServerID: server.ID,
		Name:     server.Name,
		Vendor:   string(server.Type),
		Status:   progress.ServerFailed,
	}
	defer func() { out.UpdatedAt = s.now() }()

	log := s.logger.With("redemption", sess.ID, "server_id", server.ID, "vendor", server.Type)

	if !server.Enabled {
		out.ErrorKind = kindServerDisabled
		return out
	}
	caps, err := s.clients.Capabilities(server)
	if err != nil {
		out.ErrorKind = kindUnknownVendor
		return out
	}
	if !caps.Has(mediaclient.CapCreateAccount) {
		out.ErrorKind = kindCapabilityUnsupported
		return out
	}
	client, err := s.clients.For(server)
	if err != nil {
		out.ErrorKind = string(mediaclient.KindOf(err))
		log.Warn("Could not create vendor client", "error", err)
		return out
	}

	libraryIDs, warnings, err := s.resolveLibraries(ctx, client, server, inv)
	out.Warnings = warnings
	if err != nil {
		out.ErrorKind = kindNoLibraries
		if !errors.Is(err, errNoLibraries) {
			out.ErrorKind = string(mediaclient.KindUnknown)
		}
		log.Warn("Library restriction failed", "error", err)
		return out
	}

	account := progress.Account{}
	if sess.Account != nil {
		account = *sess.Account
	}
	req := mediaclient.ProvisionRequest{
		IdempotencyToken: mediaclient.IdempotencyToken(s.cfg.IdempotencySecret, sess.ID, server.ID),
		Username:         account.Username,
		Password:         password,
		Email:            account.Email,
		LibraryIDs:       libraryIDs,
		Permissions:      inv.Permissions,
	}

	acct, attempts, err := mediaclient.Retry(ctx, s.cfg.Retry, func(ctx context.Context) (*mediaclient.ExternalAccount, error) {
		return client.CreateAccount(ctx, req)
	})
	out.Attempts = attempts
	if err != nil {
		out.ErrorKind = string(mediaclient.KindOf(err))
		out.Retryable = mediaclient.IsRetryable(err)
		if mediaclient.IsCapabilityUnsupported(err) {
			out.ErrorKind = kindCapabilityUnsupported
		}
		log.Warn("Account provisioning failed",
			"error_kind", out.ErrorKind,
			"attempts", attempts,
			"error", err,
		)
		return out
	}

	now := s.now()
	userID, err := id.Generate("usr")
	if err != nil {
		userID = uuid.NewString()
	}
	username := acct.Username
	if username == "" {
		username = account.Username
	}
	user := &domain.User{
		Record:       domain.Record{ID: userID},
		ServerID:     server.ID,
		InvitationID: inv.ID,
		IdentityID:   identityID,
		ExternalID:   acct.ID,
		Username:     username,
		Email:        account.Email,
		Permissions:  inv.Permissions,
		LibraryIDs:   libraryIDs,
		Status:       domain.UserActive,
		ExpiresAt:    inv.AccountExpiry(now),
	}
	user.Stamp(now)

	// The account exists on the vendor now; record it even if the caller left.
	if err := s.store.CreateUser(context.WithoutCancel(ctx), user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			out.Warnings = append(out.Warnings, "The account was already linked to an existing user.")
		} else {
			log.Error("Account created but user record not saved", "external_id", acct.ID, "error", err)
			out.Warnings = append(out.Warnings, "The account was created but could not be recorded.")
		}
	} else {
		out.UserID = user.ID
	}

	out.Status = progress.ServerSucceeded
	out.ExternalID = acct.ID
	out.ErrorKind = ""
	out.Retryable = false
	log.Info("Account provisioned", "user_id", out.UserID, "attempts", attempts)
	return out
}

// resolveLibraries intersects the invitation's libraries for server with
// the libraries the vendor actually has. nil means every library.
// Missing libraries produce warnings; an empty intersection is an error.
func (s *RedemptionService) resolveLibraries(ctx context.Context, client mediaclient.Client, server *domain.MediaServer, inv *domain.Invitation) ([]string, []string, error) {
	if len(inv.LibraryIDs) == 0 {
		return nil, nil, nil
	}
	libs, err := s.store.FindLibrariesByIDs(ctx, inv.LibraryIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("find libraries: %w", err)
	}
	var wanted []*domain.Library
	for _, lib := range libs {
		if lib.ServerID == server.ID {
			wanted = append(wanted, lib)
		}
	}
	if len(wanted) == 0 {
		return nil, nil, nil
	}

	var warnings []string
	present := make(map[string]bool)
	live, _, err := mediaclient.Retry(ctx, s.cfg.Retry, client.ListLibraries)
	if err != nil {
		warnings = append(warnings, "Could not list libraries on the server; used the last synced list.")
		stored, err := s.store.ListLibraries(ctx, server.ID)
		if err != nil {
			return nil, warnings, fmt.Errorf("list stored libraries: %w", err)
		}
		for _, lib := range stored {
			present[lib.ExternalID] = true
		}
	} else {
		for _, lib := range live {
			present[lib.ExternalID] = true
		}
	}

	var ids []string
	for _, lib := range wanted {
		if present[lib.ExternalID] {
			ids = append(ids, lib.ExternalID)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("Library %q is not available on %s.", lib.Name, server.Name))
	}
	if len(ids) == 0 {
		return nil, warnings, errNoLibraries
	}
	return ids, warnings, nil
}

// finish merges outcomes into the session, resolves the overall state and
// releases the reserved use when no server can have created an account.
func (s *RedemptionService) finish(ctx context.Context, redemptionID string, inv *domain.Invitation, outcomes []progress.ServerOutcome) *progress.Session {
	ctx = context.WithoutCancel(ctx)
	now := s.now()

	post, err := s.wizard(ctx, inv.PostWizardID)
	if err != nil {
		s.logger.Error("Could not load post-redemption wizard", "redemption", redemptionID, "error", err)
	}

	release := false
	final, err := s.sessions.Update(ctx, redemptionID, func(cur *progress.Session) error {
		release = false
		for _, out := range outcomes {
			cur.Servers[out.ServerID] = out
		}
		cur.State = cur.Resolve()
		if cur.State == progress.StateFailed && cur.UseReserved && noAccountCreated(cur.Servers) {
			cur.UseReserved = false
			release = true
		}
		if cur.State.Provisioned() && post != nil && len(post.Steps) > 0 && cur.PostStepIndex == 0 {
			first := post.Steps[0].ID
			if _, ok := cur.PresentedAt[first]; !ok {
				cur.PresentedAt[first] = now
			}
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.Error("Could not save provisioning result", "redemption", redemptionID, "error", err)
		return &progress.Session{ID: redemptionID, State: progress.StateUnknown}
	}

	if release {
		s.releaseUse(ctx, final.InvitationCode)
	}

	s.metrics.RedemptionFinished(string(final.State))
	s.logger.Info("Provisioning finished",
		"redemption", redemptionID,
		"state", final.State,
		"failed_servers", len(final.FailedServers()),
		"use_released", release,
	)
	return final
}

// noAccountCreated reports whether every server failed in a way that
// guarantees no account exists on it. Timeouts and server errors may have
// taken effect and keep the use reserved.
func noAccountCreated(servers map[string]progress.ServerOutcome) bool {
	for _, out := range servers {
		if out.Status != progress.ServerFailed {
			return false
		}
		switch out.ErrorKind {
		case kindServerDisabled, kindServerMissing, kindUnknownVendor, kindCapabilityUnsupported, kindNoLibraries,
			string(mediaclient.KindAuth),
			string(mediaclient.KindConflict),
			string(mediaclient.KindInvalidRequest),
			string(mediaclient.KindNotFound),
			string(mediaclient.KindRateLimited):
		default:
			return false
		}
	}
	return true
}

func (s *RedemptionService) reject(ctx context.Context, redemptionID, invitationID string, now time.Time) error {
	reason := rejectionReason(ctx, s.store, invitationID, now)
	s.update(context.WithoutCancel(ctx), redemptionID, func(cur *progress.Session) {
		cur.State = progress.StateRejected
		cur.Reason = string(reason)
	})
	s.metrics.RedemptionRejected(string(reason))
	s.logger.Info("Redemption rejected at provisioning", "redemption", redemptionID, "reason", reason)
	return &InvitationInvalidError{Reason: reason}
}

// rejectionReason explains why a use could not be reserved.
func rejectionReason(ctx context.Context, st store.InvitationStore, invitationID string, now time.Time) domain.InvitationReason {
	inv, err := st.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.ReasonNotFound
	}
	if reason := inv.Redeemability(now); reason != "" {
		return reason
	}
	// The limit was hit between the increment and this read and a use was
	// released since.
	return domain.ReasonExhausted
}

func (s *RedemptionService) releaseUse(ctx context.Context, code string) {
	if err := s.store.ReleaseUseCount(ctx, code, s.now()); err != nil {
		s.logger.Error("Could not release invitation use", "error", err)
	}
}

func (s *RedemptionService) markUnknown(redemptionID string) {
	s.update(context.Background(), redemptionID, func(cur *progress.Session) {
		if cur.State == progress.StateProvisioning {
			cur.State = progress.StateUnknown
		}
	})
}

func (s *RedemptionService) restoreState(ctx context.Context, redemptionID string, state progress.State) {
	s.update(context.WithoutCancel(ctx), redemptionID, func(cur *progress.Session) {
		cur.State = state
	})
}

// update applies a best-effort session change and logs failures.
func (s *RedemptionService) update(ctx context.Context, redemptionID string, fn func(*progress.Session)) {
	now := s.now()
	_, err := s.sessions.Update(ctx, redemptionID, func(cur *progress.Session) error {
		fn(cur)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.Error("Could not update redemption", "redemption", redemptionID, "error", err)
	}
}

// identity groups accounts of the same person by email. Failures only cost
// the grouping, so they are logged and ignored.
func (s *RedemptionService) identity(ctx context.Context, account *progress.Account, now time.Time) string {
	if account == nil || account.Email == "" {
		return ""
	}
	identityID, err := id.Generate("idn")
	if err != nil {
		return ""
	}
	ident, err := s.store.GetOrCreateIdentity(context.WithoutCancel(ctx), &domain.Identity{
		ID:          identityID,
		Email:       account.Email,
		DisplayName: account.Username,
		CreatedAt:   now,
	})
	if err != nil {
		s.logger.Warn("Could not resolve identity", "error", err)
		return ""
	}
	return ident.ID
}

func (s *RedemptionService) duplicate(ctx context.Context, sess *progress.Session, stepID string) (*StepResult, error) {
	interactionType := ""
	if ref, err := s.findStep(ctx, sess, stepID); err == nil && ref != nil {
		interactionType = ref.InteractionType
	}
	s.metrics.StepSubmitted(interactionType, "duplicate")
	view, err := s.view(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &StepResult{Valid: true, Duplicate: true, Redemption: view}, nil
}

// startedAt resolves when a step was presented. A supplied token must verify;
// otherwise the time recorded in the session is used. nil fails closed.
func (s *RedemptionService) startedAt(sess *progress.Session, stepID, token string) *time.Time {
	if token != "" {
		if s.tokens == nil {
			return nil
		}
		t, err := s.tokens.Verify(token, sess.ID, stepID)
		if err != nil {
			s.logger.Debug("Rejected step token", "redemption", sess.ID, "step_id", stepID, "error", err)
			return nil
		}
		return &t
	}
	if t, ok := sess.PresentedAt[stepID]; ok {
		return &t
	}
	return nil
}

func (s *RedemptionService) load(ctx context.Context, redemptionID string) (*progress.Session, error) {
	sess, err := s.sessions.Get(ctx, redemptionID)
	if err != nil {
		return nil, s.sessionError(err, redemptionID)
	}
	return sess, nil
}

func (s *RedemptionService) sessionError(err error, redemptionID string) error {
	if errors.Is(err, progress.ErrNotFound) {
		return domainerrors.NotFoundf("redemption %s not found", redemptionID)
	}
	return err
}

func (s *RedemptionService) wizard(ctx context.Context, wizardID string) (*domain.Wizard, error) {
	if wizardID == "" {
		return nil, nil
	}
	w, err := s.store.FindWizardWithSteps(ctx, wizardID)
	if err != nil {
		return nil, fmt.Errorf("load wizard %s: %w", wizardID, err)
	}
	return w, nil
}

// currentStep returns the step the session waits on, or nil.
func (s *RedemptionService) currentStep(ctx context.Context, sess *progress.Session) (*stepRef, error) {
	var (
		wizardID string
		index    int
		phase    Phase
	)
	switch {
	case sess.State == progress.StateStepSequence:
		wizardID, index, phase = sess.PreWizardID, sess.PreStepIndex, PhasePre
	case sess.State.Provisioned() && sess.PostWizardID != "":
		wizardID, index, phase = sess.PostWizardID, sess.PostStepIndex, PhasePost
	default:
		return nil, nil
	}

	w, err := s.wizard(ctx, wizardID)
	if err != nil {
		return nil, err
	}
	if index >= len(w.Steps) {
		return nil, nil
	}
	ref := &stepRef{step: &w.Steps[index], phase: phase, index: index, total: len(w.Steps)}
	if index+1 < len(w.Steps) {
		ref.next = w.Steps[index+1].ID
	}
	return ref, nil
}

func (s *RedemptionService) findStep(ctx context.Context, sess *progress.Session, stepID string) (*domain.WizardStep, error) {
	for _, wizardID := range []string{sess.PreWizardID, sess.PostWizardID} {
		w, err := s.wizard(ctx, wizardID)
		if err != nil || w == nil {
			continue
		}
		if step, _, ok := w.Step(stepID); ok {
			return step, nil
		}
	}
	return nil, nil
}

func stillCurrent(cur *progress.Session, ref *stepRef) bool {
	switch ref.phase {
	case PhasePre:
		return cur.State == progress.StateStepSequence && cur.PreStepIndex == ref.index
	case PhasePost:
		return cur.State.Provisioned() && cur.PostStepIndex == ref.index
	}
	return false
}

func readyForProvisioning(state progress.State) error {
	switch state {
	case progress.StateReady:
		return nil
	case progress.StateProvisioning, progress.StateUnknown:
		return domainerrors.Conflict("provisioning is already in progress")
	case progress.StateStepSequence:
		return &interaction.StepValidationError{Reason: "Complete the remaining steps first."}
	default:
		return domainerrors.Conflictf("redemption is already %s", state)
	}
}

func (s *RedemptionService) view(ctx context.Context, sess *progress.Session) (*RedemptionView, error) {
	v := &RedemptionView{ID: sess.ID, State: sess.State}
	switch sess.State {
	case progress.StateRejected:
		reason := domain.InvitationReason(sess.Reason)
		v.Reason = reason
		v.Message = reason.Message()
	case progress.StateUnknown:
		v.Message = unknownMessage
	}

	ref, err := s.currentStep(ctx, sess)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		v.CurrentStep = &StepView{
			ID:              ref.step.ID,
			Phase:           ref.phase,
			Position:        ref.index,
			Total:           ref.total,
			Title:           ref.step.Title,
			Body:            ref.step.Body,
			InteractionType: ref.step.InteractionType,
			Config:          ref.step.Config,
		}
		if s.tokens != nil {
			presented, ok := sess.PresentedAt[ref.step.ID]
			if !ok {
				presented = sess.UpdatedAt
			}
			v.CurrentStep.StartedAt = s.tokens.Issue(sess.ID, ref.step.ID, presented)
		}
	}

	for _, out := range sess.Servers {
		v.Servers = append(v.Servers, ServerResult{
			ServerID:  out.ServerID,
			Name:      out.Name,
			Vendor:    out.Vendor,
			Status:    out.Status,
			ErrorKind: out.ErrorKind,
			Retryable: out.Retryable,
			Warnings:  out.Warnings,
		})
	}
	slices.SortFunc(v.Servers, func(a, b ServerResult) int {
		switch {
		case a.ServerID < b.ServerID:
			return -1
		case a.ServerID > b.ServerID:
			return 1
		}
		return 0
	})
	return v, nil
}

// redeemable returns the invitation for code, or an *InvitationInvalidError
// naming the first failing check: not found, expired, disabled, exhausted.
func redeemable(ctx context.Context, st store.InvitationStore, code string, now time.Time) (*domain.Invitation, error) {
	inv, err := st.FindInvitationByCode(ctx, NormalizeCode(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, &InvitationInvalidError{Reason: domain.ReasonNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	if reason := inv.Redeemability(now); reason != "" {
		return nil, &InvitationInvalidError{Reason: reason}
	}
	return inv, nil
}

// fingerprint identifies a response to a step independent of JSON whitespace.
func fingerprint(stepID string, response json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, response); err != nil {
		buf.Reset()
		buf.Write(response)
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(stepID))
	h.Write([]byte{0})
	h.Write(buf.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}
