package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/notify"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message{}, m.sent...)
}

type fakePoster struct {
	mu     sync.Mutex
	bodies []any
	err    error
}

func (p *fakePoster) Post(_ context.Context, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, body)
	return p.err
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeObjectStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// blindExistsRepo hides existing tokens from the pre-check so that only the
// insert's unique constraint can catch a collision.
type blindExistsRepo struct {
	repository.TicketRepository
}

func (blindExistsRepo) TokenExists(context.Context, string) (bool, error) {
	return false, nil
}

// sequenceTokens returns the given tokens in order, repeating the last one.
func sequenceTokens(tokens ...string) TokenGenerator {
	var mu sync.Mutex
	i := 0
	return func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		t := tokens[i]
		if i < len(tokens)-1 {
			i++
		}
		return t, nil
	}
}

type harness struct {
	store      *repository.MemoryStore
	codes      repository.ResetCodeStore
	dispatcher events.Dispatcher
	mailer     *fakeMailer
	poster     *fakePoster
	objects    *fakeObjectStore
	metrics    *observability.Metrics
	tokens     *auth.TokenManager
	tickets    *TicketService
	auth       *AuthService
}

type harnessOption func(*TicketDependencies)

func withTokens(gen TokenGenerator) harnessOption {
	return func(d *TicketDependencies) { d.TokenGenerator = gen }
}

func withAnonymous() harnessOption {
	return func(d *TicketDependencies) { d.AllowAnonymous = true }
}

func withMaxAttempts(n int) harnessOption {
	return func(d *TicketDependencies) { d.MaxTokenAttempts = n }
}

func withRepo(wrap func(repository.TicketRepository) repository.TicketRepository) harnessOption {
	return func(d *TicketDependencies) { d.TicketRepo = wrap(d.TicketRepo) }
}

func newHarness(opts ...harnessOption) *harness {
	return newHarnessWithCodes(repository.NewMemoryResetCodeStore(), opts...)
}

func newHarnessWithCodes(codes repository.ResetCodeStore, opts ...harnessOption) *harness {
	h := &harness{
		store:      repository.NewMemoryStore(),
		codes:      codes,
		dispatcher: events.NewInMemoryDispatcher(zap.NewNop()),
		mailer:     &fakeMailer{},
		poster:     &fakePoster{},
		objects:    newFakeObjectStore(),
		metrics:    observability.NewMetrics(),
		tokens:     auth.NewTokenManager("test-secret", time.Hour),
	}

	deps := TicketDependencies{
		TicketRepo:         h.store.Tickets(),
		ObjectStore:        h.objects,
		Dispatcher:         h.dispatcher,
		Metrics:            h.metrics,
		MaxAttachmentBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.tickets = NewTicketService(deps)

	h.auth = NewAuthService(config.AuthConfig{BcryptCost: 4, ResetCodeTTLMinutes: 10}, AuthDependencies{
		UserRepo:     h.store.Users(),
		ResetCodes:   h.codes,
		TokenManager: h.tokens,
		Dispatcher:   h.dispatcher,
	})

	NewNotificationService(NotificationDependencies{
		Dispatcher:   h.dispatcher,
		Mailer:       h.mailer,
		Webhook:      h.poster,
		Metrics:      h.metrics,
		Config:       config.NotificationConfig{SupportCC: "support@x.com"},
		ResetCodeTTL: 10 * time.Minute,
	}).RegisterHandlers()
	return h
}

func userIdentity(id string) domain.Identity {
	return domain.Identity{SubjectID: id, Email: id + "@x.com", Role: domain.RoleUser}
}

func supportIdentity(id string) domain.Identity {
	return domain.Identity{SubjectID: id, Email: id + "@x.com", Role: domain.RoleSupport}
}

func janeInput() CreateTicketInput {
	return CreateTicketInput{
		Name:        "Jane",
		Phone:       "555-0100",
		Email:       "jane@x.com",
		Subject:     "Login broken",
		Description: "Cannot log in",
	}
}

func upload(name string, body string) AttachmentUpload {
	return AttachmentUpload{
		FileName:    name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Body:        bytes.NewBufferString(body),
	}
}

var errBoom = errors.New("boom")
