package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const defaultTokenAttempts = 5

// TicketService is the ticket lifecycle engine. Every operation consults the
// access policy before touching the store.
type TicketService struct {
	tickets        repository.TicketRepository
	objects        persistence.ObjectStore
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	metrics        *observability.Metrics
	newToken       TokenGenerator
	now            func() time.Time
	maxAttempts    int
	maxAttachment  int64
	allowAnonymous bool
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	ObjectStore persistence.ObjectStore
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	// TokenGenerator defaults to GenerateTicketToken.
	TokenGenerator     TokenGenerator
	MaxTokenAttempts   int
	MaxAttachmentBytes int64
	AllowAnonymous     bool
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Name        string
	Phone       string
	Email       string
	Subject     string
	Description string
	Priority    string
	Attachments []AttachmentUpload
}

// AttachmentUpload is a file received with a new ticket.
type AttachmentUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ListTicketsInput narrows a listing. A zero Limit returns every match.
type ListTicketsInput struct {
	Statuses []string
	Limit    int
	Offset   int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:        deps.TicketRepo,
		objects:        deps.ObjectStore,
		dispatcher:     deps.Dispatcher,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		newToken:       deps.TokenGenerator,
		now:            time.Now,
		maxAttempts:    deps.MaxTokenAttempts,
		maxAttachment:  deps.MaxAttachmentBytes,
		allowAnonymous: deps.AllowAnonymous,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.newToken == nil {
		s.newToken = GenerateTicketToken
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultTokenAttempts
	}
	return s
}

// Create opens a ticket. identity is nil for anonymous intake, which is only
// accepted when the service allows it.
func (s *TicketService) Create(ctx context.Context, identity *domain.Identity, input CreateTicketInput) (*domain.Ticket, error) {
	if identity == nil && !s.allowAnonymous {
		return nil, apperrors.ErrNoToken
	}
	if identity != nil {
		if err := auth.Authorize(*identity, auth.OpCreateTicket, nil); err != nil {
			return nil, err
		}
	}

	ticket, err := s.newTicket(identity, input)
	if err != nil {
		return nil, err
	}

	attachments, err := s.storeAttachments(ctx, input.Attachments)
	if err != nil {
		return nil, err
	}
	ticket.Attachments = attachments

	if err := s.insertWithUniqueToken(ctx, ticket); err != nil {
		s.discardObjects(attachments)
		return nil, err
	}

	s.metrics.RecordTicketCreated()
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("token", ticket.Token),
		zap.Bool("anonymous", ticket.OwnerID == nil))

	s.publishEvent(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.ActorOf(identity),
		events.TicketCreatedPayload{Ticket: *ticket}))
	return ticket, nil
}

func (s *TicketService) newTicket(identity *domain.Identity, input CreateTicketInput) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		Name:        strings.TrimSpace(input.Name),
		Phone:       strings.TrimSpace(input.Phone),
		Email:       strings.TrimSpace(input.Email),
		Subject:     strings.TrimSpace(input.Subject),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriority(strings.ToLower(strings.TrimSpace(input.Priority))),
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", ticket.Name},
		{"phone", ticket.Phone},
		{"email", ticket.Email},
		{"subject", ticket.Subject},
		{"description", ticket.Description},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingField(missing...)
	}
	if !ticket.Priority.Valid() {
		return nil, apperrors.ErrInvalidPriority.WithDetails(map[string]any{"priority": input.Priority})
	}

	if identity != nil {
		owner := identity.SubjectID
		ticket.OwnerID = &owner
	}
	return ticket, nil
}

// insertWithUniqueToken draws tokens until one is accepted by the store's
// unique constraint or the attempt budget runs out.
func (s *TicketService) insertWithUniqueToken(ctx context.Context, ticket *domain.Ticket) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		token, err := s.newToken(s.now())
		if err != nil {
			return apperrors.NewInternalError(fmt.Errorf("generate ticket token: %w", err))
		}

		taken, err := s.tickets.TokenExists(ctx, token)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if !taken {
			ticket.Token = token
			err = s.tickets.Create(ctx, ticket)
			if err == nil {
				return nil
			}
			if !errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewInternalError(err)
			}
		}

		s.metrics.RecordTokenCollision()
		s.logger.Warn("ticket token collision", zap.String("token", token), zap.Int("attempt", attempt))
	}

	ticket.Token = ""
	s.logger.Error("ticket token attempts exhausted", zap.Int("attempts", s.maxAttempts))
	return apperrors.ErrTokenGenerationFailed
}

func (s *TicketService) storeAttachments(ctx context.Context, uploads []AttachmentUpload) ([]domain.Attachment, error) {
	if len(uploads) == 0 {
		return []domain.Attachment{}, nil
	}
	if s.objects == nil {
		return nil, apperrors.NewValidationError("attachments are not enabled", nil)
	}

	stored := make([]domain.Attachment, 0, len(uploads))
	for _, upload := range uploads {
		if s.maxAttachment > 0 && upload.Size > s.maxAttachment {
			s.discardObjects(stored)
			return nil, apperrors.NewValidationError("attachment too large", map[string]any{
				"filename":  upload.FileName,
				"max_bytes": s.maxAttachment,
			})
		}

		name := path.Base(strings.ReplaceAll(upload.FileName, "\\", "/"))
		if name == "." || name == "/" {
			name = "attachment"
		}
		key := fmt.Sprintf("tickets/%s/%s", uuid.NewString(), name)
		if err := s.objects.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
			s.discardObjects(stored)
			return nil, apperrors.NewInternalError(err)
		}
		stored = append(stored, domain.Attachment{
			FileName:    name,
			ContentType: upload.ContentType,
			Size:        upload.Size,
			StorageRef:  key,
		})
	}
	return stored, nil
}

// discardObjects removes stored blobs on a detached context.
func (s *TicketService) discardObjects(attachments []domain.Attachment) {
	if s.objects == nil || len(attachments) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, a := range attachments {
		if err := s.objects.Delete(ctx, a.StorageRef); err != nil {
			s.logger.Warn("attachment cleanup failed", zap.String("key", a.StorageRef), zap.Error(err))
		}
	}
}

// Get returns a single ticket the caller may read.
func (s *TicketService) Get(ctx context.Context, identity domain.Identity, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, auth.OpReadTicket, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// GetByToken looks a ticket up by its human-readable token under the same
// read policy as Get. Malformed tokens never reach the store.
func (s *TicketService) GetByToken(ctx context.Context, identity domain.Identity, token string) (*domain.Ticket, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if !ValidTicketToken(token) {
		return nil, apperrors.ErrTicketNotFound
	}
	ticket, err := s.tickets.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.Authorize(identity, auth.OpReadTicket, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// List returns tickets newest first. Non-staff callers only ever see their own.
func (s *TicketService) List(ctx context.Context, identity domain.Identity, input ListTicketsInput) ([]domain.Ticket, error) {
	if err := auth.Authorize(identity, auth.OpListTickets, nil); err != nil {
		return nil, err
	}

	filter := repository.TicketFilter{
		OwnerID: auth.ListScope(identity),
		Limit:   input.Limit,
		Offset:  input.Offset,
	}
	for _, raw := range input.Statuses {
		status := domain.TicketStatus(raw)
		if !status.Valid() {
			return nil, apperrors.ErrInvalidStatus.WithDetails(map[string]any{"status": raw})
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// UpdateStatus moves a ticket to any of the three statuses. The literal is
// checked before the ticket is looked up, and the lookup before the policy.
func (s *TicketService) UpdateStatus(ctx context.Context, identity domain.Identity, ticketID, status string) (*domain.Ticket, error) {
	next := domain.TicketStatus(status)
	if !next.Valid() {
		return nil, apperrors.ErrInvalidStatus.WithDetails(map[string]any{"status": status})
	}

	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, auth.OpUpdateStatus, current); err != nil {
		return nil, err
	}

	updated, err := s.tickets.UpdateStatus(ctx, ticketID, next)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("ticket status updated",
		zap.String("ticket_id", ticketID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next)),
		zap.String("by", identity.SubjectID))

	s.publishEvent(ctx, events.NewEvent(events.EventTicketStatusChanged, updated.ID, events.ActorOf(&identity),
		events.TicketStatusChangedPayload{Ticket: *updated, OldStatus: current.Status, NewStatus: next}))
	return updated, nil
}

// Delete removes a ticket the caller owns, or any ticket for staff.
func (s *TicketService) Delete(ctx context.Context, identity domain.Identity, ticketID string) error {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := auth.Authorize(identity, auth.OpDeleteTicket, ticket); err != nil {
		return err
	}

	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrTicketNotFound
		}
		return apperrors.NewInternalError(err)
	}
	s.discardObjects(ticket.Attachments)

	s.logger.Info("ticket deleted", zap.String("ticket_id", ticketID), zap.String("by", identity.SubjectID))
	s.publishEvent(ctx, events.NewEvent(events.EventTicketDeleted, ticket.ID, events.ActorOf(&identity),
		events.TicketDeletedPayload{Ticket: *ticket}))
	return nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, apperrors.NewInternalError(err)
	}
	return ticket, nil
}

// publishEvent never fails the caller; delivery problems are logged.
func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event not published",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
