package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusClosed     TicketStatus = "Closed"
)

// Valid reports whether s is one of the three legal literals.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// TicketStatuses lists the legal statuses in workflow order.
func TicketStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed}
}

// TicketPriority is optional; the empty value means unset.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid accepts the empty priority as well as the three levels.
func (p TicketPriority) Valid() bool {
	switch p {
	case "", TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Attachment is metadata for a file kept in object storage.
type Attachment struct {
	FileName    string `json:"filename" bson:"filename"`
	ContentType string `json:"content_type" bson:"content_type"`
	Size        int64  `json:"size" bson:"size"`
	StorageRef  string `json:"storage_ref" bson:"storage_ref"`
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	Token       string
	OwnerID     *string
	Name        string
	Phone       string
	Email       string
	Subject     string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Attachments []Attachment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnedBy reports whether subjectID created the ticket.
func (t *Ticket) OwnedBy(subjectID string) bool {
	return t.OwnerID != nil && subjectID != "" && *t.OwnerID == subjectID
}
