// Package domain holds the persisted entities of the invitation server.
package domain

import "time"

// Record provides the identity and audit fields shared by persisted entities.
// It gets embedded in every domain type the store writes.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stamp sets CreatedAt on first call and UpdatedAt on every call.
func (r *Record) Stamp(now time.Time) {
	now = now.UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
