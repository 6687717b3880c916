package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/store"
)

const serverColumns = `id, created_at, updated_at, name, type, url, credential, enabled`

func scanServer(row scanner) (*domain.MediaServer, error) {
	var (
		srv       domain.MediaServer
		createdAt string
		updatedAt string
		vendor    string
		enabled   int
	)
	err := row.Scan(&srv.ID, &createdAt, &updatedAt, &srv.Name, &vendor, &srv.URL, &srv.Credential, &enabled)
	if err != nil {
		return nil, err
	}
	if srv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if srv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	srv.Type = domain.VendorType(vendor)
	srv.Enabled = enabled == 1
	return &srv, nil
}

// CreateMediaServer inserts a media server.
func (s *Store) CreateMediaServer(ctx context.Context, srv *domain.MediaServer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_servers (`+serverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.ID,
		formatTime(srv.CreatedAt),
		formatTime(srv.UpdatedAt),
		srv.Name,
		string(srv.Type),
		srv.URL,
		srv.Credential,
		boolToInt(srv.Enabled),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// UpdateMediaServer replaces the mutable fields of a media server.
func (s *Store) UpdateMediaServer(ctx context.Context, srv *domain.MediaServer) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE media_servers
		SET updated_at = ?, name = ?, url = ?, credential = ?, enabled = ?
		WHERE id = ?`,
		formatTime(srv.UpdatedAt),
		srv.Name,
		srv.URL,
		srv.Credential,
		boolToInt(srv.Enabled),
		srv.ID,
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

// GetMediaServer retrieves a media server by ID.
func (s *Store) GetMediaServer(ctx context.Context, id string) (*domain.MediaServer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM media_servers WHERE id = ?`, id)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return srv, err
}

// FindMediaServersByIDs returns the existing servers among ids, in the order given.
func (s *Store) FindMediaServersByIDs(ctx context.Context, ids []string) ([]*domain.MediaServer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM media_servers WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.MediaServer, len(ids))
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		byID[srv.ID] = srv
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	servers := make([]*domain.MediaServer, 0, len(byID))
	for _, id := range ids {
		if srv, ok := byID[id]; ok {
			servers = append(servers, srv)
			delete(byID, id)
		}
	}
	return servers, nil
}

// ListMediaServers returns all media servers ordered by name.
func (s *Store) ListMediaServers(ctx context.Context) ([]*domain.MediaServer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM media_servers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []*domain.MediaServer
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

const libraryColumns = `id, server_id, external_id, name, kind, synced_at`

func scanLibrary(row scanner) (*domain.Library, error) {
	var (
		lib      domain.Library
		syncedAt string
	)
	if err := row.Scan(&lib.ID, &lib.ServerID, &lib.ExternalID, &lib.Name, &lib.Kind, &syncedAt); err != nil {
		return nil, err
	}
	var err error
	if lib.SyncedAt, err = parseTime(syncedAt); err != nil {
		return nil, err
	}
	return &lib, nil
}

// ReplaceLibraries upserts libs by (server_id, external_id) and removes the
// server's libraries that are no longer reported. Existing rows keep their ID.
func (s *Store) ReplaceLibraries(ctx context.Context, serverID string, libs []*domain.Library) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_servers WHERE id = ?`, serverID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	keep := make([]any, 0, len(libs)+1)
	keep = append(keep, serverID)
	for _, lib := range libs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO libraries (`+libraryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (server_id, external_id) DO UPDATE SET
				name = excluded.name,
				kind = excluded.kind,
				synced_at = excluded.synced_at`,
			lib.ID, serverID, lib.ExternalID, lib.Name, lib.Kind, formatTime(lib.SyncedAt))
		if err != nil {
			return fmt.Errorf("upsert library %s: %w", lib.ExternalID, err)
		}
		keep = append(keep, lib.ExternalID)
	}

	query := `DELETE FROM libraries WHERE server_id = ?`
	if len(libs) > 0 {
		query += ` AND external_id NOT IN (` + placeholders(len(libs)) + `)`
	}
	if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
		return fmt.Errorf("prune libraries: %w", err)
	}

	return tx.Commit()
}

// ListLibraries returns the libraries of one server ordered by name.
func (s *Store) ListLibraries(ctx context.Context, serverID string) ([]*domain.Library, error) {
	return s.queryLibraries(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE server_id = ? ORDER BY name, id`, serverID)
}

// FindLibrariesByIDs returns the existing libraries among ids.
func (s *Store) FindLibrariesByIDs(ctx context.Context, ids []string) ([]*domain.Library, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryLibraries(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE id IN (`+placeholders(len(ids))+`) ORDER BY server_id, name`,
		stringArgs(ids)...)
}

func (s *Store) queryLibraries(ctx context.Context, query string, args ...any) ([]*domain.Library, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var libs []*domain.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}
