package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/notify"
	"github.com/spec-kit/support-desk/internal/observability"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const (
	channelEmail   = "email"
	channelWebhook = "webhook"
)

// NotificationService turns domain events into emails and webhook calls.
// Failures are returned to the dispatcher, which logs them; they never reach
// the request that caused the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     notify.Mailer
	webhook    notify.Poster
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
	resetTTL   time.Duration
}

// NotificationDependencies bundles collaborators. Webhook may be nil.
type NotificationDependencies struct {
	Dispatcher   events.Dispatcher
	Mailer       notify.Mailer
	Webhook      notify.Poster
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Config       config.NotificationConfig
	ResetCodeTTL time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		mailer:     deps.Mailer,
		webhook:    deps.Webhook,
		logger:     logger,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		resetTTL:   deps.ResetCodeTTL,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketDeleted, n.handleTicketDeleted)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return unexpectedPayload(event)
	}

	var errs []error
	if payload.Ticket.Email != "" {
		msg, err := notify.TicketCreatedEmail(payload.Ticket, n.cfg.SupportCC)
		if err == nil {
			err = n.sendEmail(ctx, msg)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.postWebhook(ctx, event, payload.Ticket, nil); err != nil {
		errs = append(errs, err)
	}
	return dispatchFailure(errs)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	change := &statusChange{Old: payload.OldStatus, New: payload.NewStatus}
	return dispatchFailure([]error{n.postWebhook(ctx, event, payload.Ticket, change)})
}

func (n *NotificationService) handleTicketDeleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketDeletedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	return dispatchFailure([]error{n.postWebhook(ctx, event, payload.Ticket, nil)})
}

func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	ttl := n.resetTTL
	if !payload.ExpiresAt.IsZero() {
		ttl = time.Until(payload.ExpiresAt)
	}
	msg, err := notify.ResetCodeEmail(payload.Email, payload.Name, payload.Code, ttl)
	if err == nil {
		err = n.sendEmail(ctx, msg)
	}
	return dispatchFailure([]error{err})
}

func (n *NotificationService) sendEmail(ctx context.Context, msg notify.Message) error {
	if n.mailer == nil {
		return nil
	}
	err := n.mailer.Send(ctx, msg)
	n.metrics.RecordNotification(channelEmail, err)
	if err != nil {
		return fmt.Errorf("email %q: %w", msg.Subject, err)
	}
	n.logger.Debug("email sent", zap.String("subject", msg.Subject))
	return nil
}

func (n *NotificationService) postWebhook(ctx context.Context, event events.Event, ticket domain.Ticket, change *statusChange) error {
	if n.webhook == nil {
		return nil
	}
	err := n.webhook.Post(ctx, newWebhookEvent(event, ticket, change))
	n.metrics.RecordNotification(channelWebhook, err)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", event.Type, err)
	}
	return nil
}

func unexpectedPayload(event events.Event) error {
	return apperrors.ErrNotificationDispatchFailed.Wrap(
		fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type))
}

func dispatchFailure(errs []error) error {
	if err := errors.Join(errs...); err != nil {
		return apperrors.ErrNotificationDispatchFailed.Wrap(err)
	}
	return nil
}

type statusChange struct {
	Old domain.TicketStatus `json:"old"`
	New domain.TicketStatus `json:"new"`
}

type webhookTicket struct {
	ID          string              `json:"id"`
	Token       string              `json:"token"`
	OwnerID     *string             `json:"owner_id,omitempty"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Subject     string              `json:"subject"`
	Status      domain.TicketStatus `json:"status"`
	Priority    string              `json:"priority,omitempty"`
	Attachments int                 `json:"attachments"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type webhookEvent struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Actor     events.Actor     `json:"actor"`
	Ticket    webhookTicket    `json:"ticket"`
	Status    *statusChange    `json:"status_change,omitempty"`
}

// newWebhookEvent omits phone and description from the outbound document.
func newWebhookEvent(event events.Event, t domain.Ticket, change *statusChange) webhookEvent {
	return webhookEvent{
		ID:        event.ID,
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Actor:     event.Actor,
		Ticket: webhookTicket{
			ID:          t.ID,
			Token:       t.Token,
			OwnerID:     t.OwnerID,
			Name:        t.Name,
			Email:       t.Email,
			Subject:     t.Subject,
			Status:      t.Status,
			Priority:    string(t.Priority),
			Attachments: len(t.Attachments),
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		},
		Status: change,
	}
}
