package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload. Form tags serve multipart submissions.
type CreateTicketRequest struct {
	Name        string `json:"name" form:"name"`
	Phone       string `json:"phone" form:"phone"`
	Email       string `json:"email" form:"email"`
	Subject     string `json:"subject" form:"subject"`
	Description string `json:"description" form:"description"`
	Priority    string `json:"priority" form:"priority"`
}

// UpdateStatusRequest payload for PATCH /tickets/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// TicketListQuery captures query filters. Status may be comma separated.
type TicketListQuery struct {
	Status   string `query:"status"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	FileName    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	StorageRef  string `json:"storageRef"`
}

// TicketResponse is the API view of a ticket.
type TicketResponse struct {
	ID          string               `json:"id"`
	Token       string               `json:"token"`
	OwnerID     *string              `json:"ownerId"`
	Name        string               `json:"name"`
	Phone       string               `json:"phone"`
	Email       string               `json:"email"`
	Subject     string               `json:"subject"`
	Description string               `json:"description"`
	Status      domain.TicketStatus  `json:"status"`
	Priority    string               `json:"priority,omitempty"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// PageMeta describes a paged listing.
type PageMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Count    int `json:"count"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	attachments := make([]AttachmentResponse, 0, len(t.Attachments))
	for _, a := range t.Attachments {
		attachments = append(attachments, AttachmentResponse{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Size:        a.Size,
			StorageRef:  a.StorageRef,
		})
	}
	return TicketResponse{
		ID:          t.ID,
		Token:       t.Token,
		OwnerID:     t.OwnerID,
		Name:        t.Name,
		Phone:       t.Phone,
		Email:       t.Email,
		Subject:     t.Subject,
		Description: t.Description,
		Status:      t.Status,
		Priority:    string(t.Priority),
		Attachments: attachments,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTicketList maps a slice of tickets.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}
