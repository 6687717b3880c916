package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invitarr/invitarr-server/internal/domain"
	"github.com/invitarr/invitarr-server/internal/store"
)

// SaveWizard inserts or updates a wizard and replaces all of its steps in one
// transaction. Steps are written in slice order with their Position as given.
func (s *Store) SaveWizard(ctx context.Context, w *domain.Wizard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wizards (id, created_at, updated_at, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			updated_at = excluded.updated_at,
			name = excluded.name`,
		w.ID, formatTime(w.CreatedAt), formatTime(w.UpdatedAt), w.Name)
	if err != nil {
		return fmt.Errorf("upsert wizard: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM wizard_steps WHERE wizard_id = ?`, w.ID); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}

	for _, step := range w.Steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO wizard_steps (id, wizard_id, position, title, body, interaction_type, config)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			step.ID, w.ID, step.Position, step.Title, step.Body, step.InteractionType, string(step.Config))
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrAlreadyExists.WithMessage("duplicate step position or id").WithCause(err)
			}
			return fmt.Errorf("insert step %d: %w", step.Position, err)
		}
	}

	return tx.Commit()
}

// FindWizardWithSteps loads a wizard and its steps ordered by position.
func (s *Store) FindWizardWithSteps(ctx context.Context, id string) (*domain.Wizard, error) {
	var (
		w         domain.Wizard
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, name FROM wizards WHERE id = ?`, id).
		Scan(&w.ID, &createdAt, &updatedAt, &w.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wizard_id, position, title, body, interaction_type, config
		FROM wizard_steps WHERE wizard_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	w.Steps = []domain.WizardStep{}
	for rows.Next() {
		var (
			step   domain.WizardStep
			config string
		)
		if err := rows.Scan(&step.ID, &step.WizardID, &step.Position, &step.Title, &step.Body, &step.InteractionType, &config); err != nil {
			return nil, err
		}
		step.Config = json.RawMessage(config)
		w.Steps = append(w.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWizards returns all wizards with their steps, ordered by name.
func (s *Store) ListWizards(ctx context.Context) ([]*domain.Wizard, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM wizards ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	wizards := make([]*domain.Wizard, 0, len(ids))
	for _, id := range ids {
		w, err := s.FindWizardWithSteps(ctx, id)
		if err != nil {
			return nil, err
		}
		wizards = append(wizards, w)
	}
	return wizards, nil
}
