package audit

import "time"

// Event is an immutable, append-only audit log record of a management action.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the client IP as resolved by gin.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	ScheduledCallID string `json:"scheduled_call_id,omitempty" db:"scheduled_call_id"`
	CallLogID       string `json:"call_log_id,omitempty" db:"call_log_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventScheduledCallCreated EventType = "scheduled_call.created"
	EventScheduledCallUpdated EventType = "scheduled_call.updated"
	EventScheduledCallPaused  EventType = "scheduled_call.paused"
	EventScheduledCallResumed EventType = "scheduled_call.resumed"
	EventScheduledCallDeleted EventType = "scheduled_call.deleted"
	EventCallTriggered        EventType = "call.triggered"
	EventCallRetried          EventType = "call.retried"
	EventSettingsChanged      EventType = "settings.changed"
)

// Filter narrows event listings. Zero values mean "no filter".
type Filter struct {
	Type            EventType
	ScheduledCallID string
	Limit           int
}

func (f Filter) matches(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.ScheduledCallID != "" && e.ScheduledCallID != f.ScheduledCallID {
		return false
	}
	return true
}
