package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/invitarr/invitarr-server/internal/domain"
	domainerrors "github.com/invitarr/invitarr-server/internal/errors"
	"github.com/invitarr/invitarr-server/internal/id"
	"github.com/invitarr/invitarr-server/internal/store"
)

// codeAttempts bounds retries when a generated code collides.
const codeAttempts = 3

// InvitationService handles invitation authoring and public lookup.
type InvitationService struct {
	store  store.Store
	logger *slog.Logger
	now    Clock
}

// NewInvitationService creates a new invitation service.
func NewInvitationService(s store.Store, logger *slog.Logger) *InvitationService {
	return &InvitationService{store: s, logger: orDiscard(logger), now: systemClock}
}

// CreateInvitationRequest contains the data needed to create an invitation.
type CreateInvitationRequest struct {
	Code                  string             `json:"code,omitempty" validate:"omitempty,min=4,max=32,alphanum"`
	ExpiresAt             *time.Time         `json:"expires_at,omitempty"`
	MaxUses               *int               `json:"max_uses,omitempty" validate:"omitempty,gte=1"`
	ServerIDs             []string           `json:"server_ids" validate:"required,min=1,dive,required"`
	LibraryIDs            []string           `json:"library_ids,omitempty" validate:"dive,required"`
	PreWizardID           string             `json:"pre_wizard_id,omitempty"`
	PostWizardID          string             `json:"post_wizard_id,omitempty"`
	AccessDurationSeconds *int64             `json:"access_duration_seconds,omitempty" validate:"omitempty,gt=0"`
	Permissions           domain.Permissions `json:"permissions"`
}

// InvitationCheck is the public view of an invitation code. It never
// carries internal identifiers.
type InvitationCheck struct {
	Code          string                  `json:"code"`
	Valid         bool                    `json:"valid"`
	Reason        domain.InvitationReason `json:"reason,omitempty"`
	Message       string                  `json:"message,omitempty"`
	ExpiresAt     *time.Time              `json:"expires_at,omitempty"`
	RemainingUses *int                    `json:"remaining_uses,omitempty"`
	HasPreWizard  bool                    `json:"has_pre_wizard"`
}

// NormalizeCode canonicalizes a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create validates references and stores a new invitation.
func (s *InvitationService) Create(ctx context.Context, req CreateInvitationRequest) (*domain.Invitation, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, domainerrors.Validation("expires_at must be in the future")
	}

	serverIDs := dedupe(req.ServerIDs)
	servers, err := s.store.FindMediaServersByIDs(ctx, serverIDs)
	if err != nil {
		return nil, fmt.Errorf("find servers: %w", err)
	}
	if len(servers) != len(serverIDs) {
		return nil, domainerrors.Validationf("unknown server in %v", missingIDs(serverIDs, serverIDsOf(servers)))
	}

	libraryIDs := dedupe(req.LibraryIDs)
	if len(libraryIDs) > 0 {
		libs, err := s.store.FindLibrariesByIDs(ctx, libraryIDs)
		if err != nil {
			return nil, fmt.Errorf("find libraries: %w", err)
		}
		found := make([]string, 0, len(libs))
		for _, lib := range libs {
			if !slices.Contains(serverIDs, lib.ServerID) {
				return nil, domainerrors.Validationf("library %s does not belong to a target server", lib.ID)
			}
			found = append(found, lib.ID)
		}
		if missing := missingIDs(libraryIDs, found); len(missing) > 0 {
			return nil, domainerrors.Validationf("unknown library in %v", missing)
		}
	}

	for _, wizardID := range []string{req.PreWizardID, req.PostWizardID} {
		if wizardID == "" {
			continue
		}
		if _, err := s.store.FindWizardWithSteps(ctx, wizardID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, domainerrors.Validationf("wizard %s not found", wizardID)
			}
			return nil, fmt.Errorf("find wizard: %w", err)
		}
	}

	invitationID, err := id.Generate("inv")
	if err != nil {
		return nil, fmt.Errorf("generate invitation ID: %w", err)
	}

	inv := &domain.Invitation{
		Record:       domain.Record{ID: invitationID},
		ExpiresAt:    req.ExpiresAt,
		MaxUses:      req.MaxUses,
		Enabled:      true,
		ServerIDs:    serverIDs,
		LibraryIDs:   libraryIDs,
		PreWizardID:  req.PreWizardID,
		PostWizardID: req.PostWizardID,
		Permissions:  req.Permissions,
	}
	if req.AccessDurationSeconds != nil {
		d := time.Duration(*req.AccessDurationSeconds) * time.Second
		inv.AccessDuration = &d
	}
	inv.Stamp(now)

	for attempt := 1; ; attempt++ {
		inv.Code = NormalizeCode(req.Code)
		if inv.Code == "" {
			if inv.Code, err = id.NewCode(0); err != nil {
				return nil, err
			}
		}

		err = s.store.CreateInvitation(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("create invitation: %w", err)
		}
		if req.Code != "" {
			return nil, domainerrors.Conflictf("invitation code %s is already in use", inv.Code)
		}
		if attempt == codeAttempts {
			return nil, domainerrors.Conflict("invitation code collision, please try again")
		}
	}

	s.logger.Info("Invitation created",
		"invitation_id", inv.ID,
		"servers", len(inv.ServerIDs),
		"max_uses", inv.MaxUses,
	)
	return inv, nil
}

// Get returns an invitation by ID.
func (s *InvitationService) Get(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, notFound(err, "invitation", invitationID)
	}
	return inv, nil
}

// List returns all invitations.
func (s *InvitationService) List(ctx context.Context) ([]*domain.Invitation, error) {
	return s.store.ListInvitations(ctx)
}

// Disable prevents further redemptions. Existing accounts are untouched.
func (s *InvitationService) Disable(ctx context.Context, invitationID string) error {
	if err := s.store.DisableInvitation(ctx, invitationID, s.now()); err != nil {
		return notFound(err, "invitation", invitationID)
	}
	s.logger.Info("Invitation disabled", "invitation_id", invitationID)
	return nil
}

// Check looks up a code the way a redeemer sees it.
func (s *InvitationService) Check(ctx context.Context, code string) (*InvitationCheck, error) {
	code = NormalizeCode(code)
	inv, err := s.Redeemable(ctx, code)
	check := &InvitationCheck{Code: code}
	if reason, ok := InvitationReasonOf(err); ok {
		check.Reason = reason
		check.Message = reason.Message()
		return check, nil
	}
	if err != nil {
		return nil, err
	}

	check.Valid = true
	check.ExpiresAt = inv.ExpiresAt
	check.HasPreWizard = inv.PreWizardID != ""
	if inv.MaxUses != nil {
		remaining := *inv.MaxUses - inv.UseCount
		check.RemainingUses = &remaining
	}
	return check, nil
}

// Redeemable returns the invitation for code, or an *InvitationInvalidError
// naming the first failing check: not found, expired, disabled, exhausted.
func (s *InvitationService) Redeemable(ctx context.Context, code string) (*domain.Invitation, error) {
	return redeemable(ctx, s.store, code, s.now())
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func missingIDs(want, have []string) []string {
	var missing []string
	for _, v := range want {
		if !slices.Contains(have, v) {
			missing = append(missing, v)
		}
	}
	return missing
}

func serverIDsOf(servers []*domain.MediaServer) []string {
	ids := make([]string, len(servers))
	for i, srv := range servers {
		ids[i] = srv.ID
	}
	return ids
}
