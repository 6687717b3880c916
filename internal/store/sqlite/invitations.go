package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/store"
)

// invitationColumns must match the scan order in scanInvitation.
const invitationColumns = `id, created_at, updated_at, code, expires_at, max_uses, use_count, enabled,
	server_ids, library_ids, pre_wizard_id, post_wizard_id, access_duration_seconds, permissions`

func scanInvitation(row scanner) (*domain.Invitation, error) {
	var inv domain.Invitation

	var (
		createdAt    string
		updatedAt    string
		expiresAt    sql.NullString
		maxUses      sql.NullInt64
		enabled      int
		serverIDs    string
		libraryIDs   string
		preWizardID  sql.NullString
		postWizardID sql.NullString
		accessSecs   sql.NullInt64
		permissions  string
	)

	err := row.Scan(
		&inv.ID,
		&createdAt,
		&updatedAt,
		&inv.Code,
		&expiresAt,
		&maxUses,
		&inv.UseCount,
		&enabled,
		&serverIDs,
		&libraryIDs,
		&preWizardID,
		&postWizardID,
		&accessSecs,
		&permissions,
	)
	if err != nil {
		return nil, err
	}

	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if inv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if inv.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, err
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		inv.MaxUses = &n
	}
	if accessSecs.Valid {
		d := time.Duration(accessSecs.Int64) * time.Second
		inv.AccessDuration = &d
	}
	inv.Enabled = enabled == 1
	inv.PreWizardID = preWizardID.String
	inv.PostWizardID = postWizardID.String

	if err := json.Unmarshal([]byte(serverIDs), &inv.ServerIDs); err != nil {
		return nil, fmt.Errorf("decode server_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(libraryIDs), &inv.LibraryIDs); err != nil {
		return nil, fmt.Errorf("decode library_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(permissions), &inv.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	return &inv, nil
}

// CreateInvitation inserts a new invitation.
// Returns store.ErrAlreadyExists if the code is taken.
func (s *Store) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	serverIDs, err := encodeJSON(inv.ServerIDs)
	if err != nil {
		return err
	}
	libraryIDs, err := encodeJSON(inv.LibraryIDs)
	if err != nil {
		return err
	}
	permissions, err := encodeJSON(inv.Permissions)
	if err != nil {
		return err
	}

	var maxUses, accessSecs sql.NullInt64
	if inv.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: int64(*inv.MaxUses), Valid: true}
	}
	if inv.AccessDuration != nil {
		accessSecs = sql.NullInt64{Int64: int64(inv.AccessDuration.Seconds()), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		formatTime(inv.CreatedAt),
		formatTime(inv.UpdatedAt),
		inv.Code,
		nullTimeString(inv.ExpiresAt),
		maxUses,
		inv.UseCount,
		boolToInt(inv.Enabled),
		serverIDs,
		libraryIDs,
		nullString(inv.PreWizardID),
		nullString(inv.PostWizardID),
		accessSecs,
		permissions,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithMessage("invitation code already exists")
	}
	return err
}

// GetInvitation retrieves an invitation by ID.
func (s *Store) GetInvitation(ctx context.Context, id string) (*domain.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return inv, err
}

// FindInvitationByCode retrieves an invitation by its code.
func (s *Store) FindInvitationByCode(ctx context.Context, code string) (*domain.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE code = ?`, code)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return inv, err
}

// ListInvitations returns all invitations, newest first.
func (s *Store) ListInvitations(ctx context.Context) ([]*domain.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// DisableInvitation turns an invitation off. Disabling is permanent.
func (s *Store) DisableInvitation(ctx context.Context, id string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET enabled = 0, updated_at = ? WHERE id = ?`,
		formatTime(now), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AtomicIncrementUseCount takes one use with a single conditional UPDATE.
// SQLite serializes writers, so two callers racing for the last slot cannot
// both match the WHERE clause.
func (s *Store) AtomicIncrementUseCount(ctx context.Context, code string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations
		SET use_count = use_count + 1, updated_at = ?
		WHERE code = ?
		  AND enabled = 1
		  AND (max_uses IS NULL OR use_count < max_uses)
		  AND (expires_at IS NULL OR expires_at > ?)`,
		formatTime(now), code, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("increment use count: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseUseCount gives back one use. It never drops below zero.
func (s *Store) ReleaseUseCount(ctx context.Context, code string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE invitations
		SET use_count = use_count - 1, updated_at = ?
		WHERE code = ? AND use_count > 0`,
		formatTime(now), code)
	if err != nil {
		return fmt.Errorf("release use count: %w", err)
	}
	return nil
}
