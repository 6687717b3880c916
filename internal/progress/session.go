// Package progress persists in-flight redemption sessions.
package progress

import "time"

// State is the position of a redemption in its state machine.
type State string

// Redemption states.
const (
	StateValidating         State = "validating"
	StateRejected           State = "rejected"
	StateStepSequence       State = "step_sequence"
	StateReady              State = "ready"
	StateProvisioning       State = "provisioning"
	StateCompleted          State = "completed"
	StatePartiallyCompleted State = "partially_completed"
	StateFailed             State = "failed"
	StateUnknown            State = "unknown"
)

// IsTerminal reports whether provisioning has finished for the session.
func (s State) IsTerminal() bool {
	switch s {
	case StateRejected, StateCompleted, StatePartiallyCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// Provisioned reports whether at least one account exists for the session.
func (s State) Provisioned() bool {
	return s == StateCompleted || s == StatePartiallyCompleted
}

// ServerStatus is the per-server provisioning result.
type ServerStatus string

// Server statuses.
const (
	ServerPending   ServerStatus = "pending"
	ServerSucceeded ServerStatus = "succeeded"
	ServerFailed    ServerStatus = "failed"
)

// Completion records a step that validated successfully.
type Completion struct {
	StepID      string    `json:"step_id"`
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// ServerOutcome is what happened on one target server.
// ErrorKind is a vendor-agnostic category; vendor messages are never stored here.
type ServerOutcome struct {
	ServerID   string       `json:"server_id"`
	Name       string       `json:"name"`
	Vendor     string       `json:"vendor"`
	Status     ServerStatus `json:"status"`
	UserID     string       `json:"user_id,omitempty"`
	ExternalID string       `json:"external_id,omitempty"`
	ErrorKind  string       `json:"error_kind,omitempty"`
	Retryable  bool         `json:"retryable,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`
	Attempts   int          `json:"attempts"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Account is the account request of a redemption. The password is never persisted.
type Account struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Session is one redemption attempt of one invitation.
type Session struct {
	ID             string `json:"id"`
	InvitationID   string `json:"invitation_id"`
	InvitationCode string `json:"invitation_code"`
	State          State  `json:"state"`
	Reason         string `json:"reason,omitempty"`

	PreWizardID   string `json:"pre_wizard_id,omitempty"`
	PostWizardID  string `json:"post_wizard_id,omitempty"`
	PreStepIndex  int    `json:"pre_step_index"`
	PostStepIndex int    `json:"post_step_index"`

	Completions map[string]Completion `json:"completions"`
	PresentedAt map[string]time.Time  `json:"presented_at"`

	// UseReserved is set once the invitation's use count was incremented for
	// this session. It is never incremented twice.
	UseReserved bool                     `json:"use_reserved"`
	Servers     map[string]ServerOutcome `json:"servers"`
	Account     *Account                 `json:"account,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an empty session in the validating state.
func NewSession(id, invitationID, code string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:             id,
		InvitationID:   invitationID,
		InvitationCode: code,
		State:          StateValidating,
		Completions:    map[string]Completion{},
		PresentedAt:    map[string]time.Time{},
		Servers:        map[string]ServerOutcome{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// FailedServers returns the IDs of servers whose provisioning failed.
func (s *Session) FailedServers() []string {
	var ids []string
	for id, out := range s.Servers {
		if out.Status == ServerFailed {
			ids = append(ids, id)
		}
	}
	return ids
}

// Resolve derives the overall state from the per-server outcomes.
// Returns StateProvisioning while any server is still pending.
func (s *Session) Resolve() State {
	var succeeded, failed int
	for _, out := range s.Servers {
		switch out.Status {
		case ServerSucceeded:
			succeeded++
		case ServerFailed:
			failed++
		default:
			return StateProvisioning
		}
	}
	switch {
	case succeeded > 0 && failed == 0:
		return StateCompleted
	case succeeded > 0:
		return StatePartiallyCompleted
	default:
		return StateFailed
	}
}

func (s *Session) ensureMaps() {
	if s.Completions == nil {
		s.Completions = map[string]Completion{}
	}
	if s.PresentedAt == nil {
		s.PresentedAt = map[string]time.Time{}
	}
	if s.Servers == nil {
		s.Servers = map[string]ServerOutcome{}
	}
}
