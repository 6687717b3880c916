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

const userColumns = `id, created_at, updated_at, server_id, invitation_id, identity_id, external_id,
	username, email, permissions, library_ids, status, expires_at`

func scanUser(row scanner) (*domain.User, error) {
	var (
		u           domain.User
		createdAt   string
		updatedAt   string
		identityID  sql.NullString
		permissions string
		libraryIDs  string
		status      string
		expiresAt   sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&createdAt,
		&updatedAt,
		&u.ServerID,
		&u.InvitationID,
		&identityID,
		&u.ExternalID,
		&u.Username,
		&u.Email,
		&permissions,
		&libraryIDs,
		&status,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if u.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, err
	}
	u.IdentityID = identityID.String
	u.Status = domain.UserStatus(status)

	if err := json.Unmarshal([]byte(permissions), &u.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if err := json.Unmarshal([]byte(libraryIDs), &u.LibraryIDs); err != nil {
		return nil, fmt.Errorf("decode library_ids: %w", err)
	}
	return &u, nil
}

func userArgs(u *domain.User) ([]any, error) {
	permissions, err := encodeJSON(u.Permissions)
	if err != nil {
		return nil, err
	}
	libraryIDs, err := encodeJSON(u.LibraryIDs)
	if err != nil {
		return nil, err
	}
	return []any{
		u.ID,
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
		u.ServerID,
		u.InvitationID,
		nullString(u.IdentityID),
		u.ExternalID,
		u.Username,
		u.Email,
		permissions,
		libraryIDs,
		string(u.Status),
		nullTimeString(u.ExpiresAt),
	}, nil
}

// CreateUser inserts a user.
// Returns store.ErrAlreadyExists if the external account is already linked.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	args, err := userArgs(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithMessage("account already linked")
	}
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

// UpdateUser writes the mutable fields of a user.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	permissions, err := encodeJSON(u.Permissions)
	if err != nil {
		return err
	}
	libraryIDs, err := encodeJSON(u.LibraryIDs)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			updated_at = ?,
			identity_id = ?,
			permissions = ?,
			library_ids = ?,
			status = ?,
			expires_at = ?
		WHERE id = ?`,
		formatTime(u.UpdatedAt),
		nullString(u.IdentityID),
		permissions,
		libraryIDs,
		string(u.Status),
		nullTimeString(u.ExpiresAt),
		u.ID,
	)
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

// DeleteUser removes a user record.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
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

// ListUsers returns all users, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
}

// ListExpiredUsers returns users whose expiry is at or before now, oldest expiry first.
func (s *Store) ListExpiredUsers(ctx context.Context, now time.Time) ([]*domain.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at, id`, formatTime(now))
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetOrCreateIdentity inserts identity unless one with the same email
// (case-insensitive) exists, then returns the stored identity.
func (s *Store) GetOrCreateIdentity(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, email, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING`,
		identity.ID, identity.Email, identity.DisplayName, formatTime(identity.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert identity: %w", err)
	}

	var (
		out       domain.Identity
		createdAt string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, created_at FROM identities WHERE email = ?`, identity.Email).
		Scan(&out.ID, &out.Email, &out.DisplayName, &createdAt)
	if err != nil {
		return nil, err
	}
	if out.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &out, nil
}
