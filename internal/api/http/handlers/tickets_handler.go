package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const (
	attachmentField = "attachment"
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 1_000_000
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets. Accepts JSON or multipart with an optional
// "attachment" file part.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	identity, _ := auth.IdentityFromContext(c)

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.CreateTicketInput{
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
	}

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart form", nil)
		}
		uploads, closeAll, err := openUploads(form.File[attachmentField])
		defer closeAll()
		if err != nil {
			return apperrors.NewValidationError("unreadable attachment", nil)
		}
		input.Attachments = uploads
	}

	ticket, err := h.service.Create(c.UserContext(), identity, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"ticket": dto.NewTicketResponse(ticket)}})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.ErrNoToken
	}

	var q dto.TicketListQuery
	if err := c.QueryParser(&q); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}

	input := service.ListTicketsInput{Statuses: splitList(q.Status)}
	paged := q.Page > 0 || q.PageSize > 0
	if paged {
		page, size, err := normalizePage(q.Page, q.PageSize)
		if err != nil {
			return err
		}
		input.Limit = size
		input.Offset = (page - 1) * size
		q.Page, q.PageSize = page, size
	}

	tickets, err := h.service.List(c.UserContext(), *identity, input)
	if err != nil {
		return err
	}

	resp := fiber.Map{"data": dto.NewTicketList(tickets)}
	if paged {
		resp["meta"] = dto.PageMeta{Page: q.Page, PageSize: q.PageSize, Count: len(tickets)}
	}
	return c.JSON(resp)
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.ErrNoToken
	}
	ticket, err := h.service.Get(c.UserContext(), *identity, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket": dto.NewTicketResponse(ticket)}})
}

// GetTicketByToken GET /tickets/token/:token.
func (h *TicketsHandler) GetTicketByToken(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.ErrNoToken
	}
	ticket, err := h.service.GetByToken(c.UserContext(), *identity, c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket": dto.NewTicketResponse(ticket)}})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.ErrNoToken
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), *identity, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket": dto.NewTicketResponse(ticket)}})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.ErrNoToken
	}
	if err := h.service.Delete(c.UserContext(), *identity, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "ticket deleted"}})
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// openUploads opens every file part. The returned func closes whatever was opened.
func openUploads(headers []*multipart.FileHeader) ([]service.AttachmentUpload, func(), error) {
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	uploads := make([]service.AttachmentUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		files = append(files, f)
		uploads = append(uploads, service.AttachmentUpload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizePage(page, size int) (int, int, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		return 0, 0, apperrors.NewValidationError("page out of range", map[string]any{"max_page": maxPage})
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size, nil
}
