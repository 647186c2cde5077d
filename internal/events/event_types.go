package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated          EventType = "ticket_created"
	EventTicketStatusChanged    EventType = "ticket_status_changed"
	EventTicketDeleted          EventType = "ticket_deleted"
	EventPasswordResetRequested EventType = "password_reset_requested"
)

// Actor identifies who caused an event. SubjectID is nil for anonymous intake.
type Actor struct {
	SubjectID *string     `json:"subject_id,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
}

// ActorOf builds an Actor from an optional identity.
func ActorOf(identity *domain.Identity) Actor {
	if identity == nil {
		return Actor{}
	}
	id := identity.SubjectID
	return Actor{SubjectID: &id, Role: identity.Role}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(eventType EventType, ticketID string, actor Actor, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload carries a snapshot of the new ticket.
type TicketCreatedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Ticket    domain.Ticket       `json:"ticket"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketDeletedPayload carries the ticket as it was before deletion.
type TicketDeletedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
}

// PasswordResetRequestedPayload is delivered by email only. Code never leaves
// the process through any other channel.
type PasswordResetRequestedPayload struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}
