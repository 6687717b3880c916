package domain

import (
	"encoding/json"
	"sort"
)

// Wizard is an ordered, reusable sequence of guided steps.
// Steps are always replaced as a whole on edit.
type Wizard struct {
	Record
	Name  string       `json:"name"`
	Steps []WizardStep `json:"steps"`
}

// WizardStep is one guided interaction. Config is the canonical JSON of the
// typed configuration for InteractionType and has been schema-checked before
// it was persisted.
type WizardStep struct {
	ID              string          `json:"id"`
	WizardID        string          `json:"wizard_id"`
	Position        int             `json:"position"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	InteractionType string          `json:"interaction_type"`
	Config          json.RawMessage `json:"config"`
}

// SortSteps orders steps by position.
func (w *Wizard) SortSteps() {
	sort.SliceStable(w.Steps, func(a, b int) bool {
		return w.Steps[a].Position < w.Steps[b].Position
	})
}

// Step returns the step with the given ID.
func (w *Wizard) Step(id string) (*WizardStep, int, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], i, true
		}
	}
	return nil, -1, false
}
