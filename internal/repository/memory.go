package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/domain"
)

// MemoryStore is an in-process store for development and tests. Users and
// tickets share one lock so unique checks and inserts are atomic.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	usersByEmail map[string]string
	tickets      map[string]memoryTicket
	tokens       map[string]string
	seq          int64
	now          func() time.Time
}

type memoryTicket struct {
	ticket domain.Ticket
	seq    int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]domain.User),
		usersByEmail: make(map[string]string),
		tickets:      make(map[string]memoryTicket),
		tokens:       make(map[string]string),
		now:          time.Now,
	}
}

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository {
	return memoryUsers{s}
}

// Tickets exposes the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository {
	return memoryTickets{s}
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.usersByEmail[user.Email]; taken {
		return ErrDuplicate
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user
	r.s.usersByEmail[user.Email] = user.ID
	return nil
}

func (r memoryUsers) UpdateProfile(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Email != user.Email {
		if _, taken := r.s.usersByEmail[user.Email]; taken {
			return ErrDuplicate
		}
		delete(r.s.usersByEmail, existing.Email)
		r.s.usersByEmail[user.Email] = user.ID
	}
	existing.Name = user.Name
	existing.Email = user.Email
	existing.UpdatedAt = r.s.now()
	r.s.users[user.ID] = existing
	user.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r memoryUsers) SetPassword(_ context.Context, id, passwordHash string) error {
	return r.modify(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

func (r memoryUsers) SetRole(_ context.Context, id string, role domain.Role) error {
	return r.modify(id, func(u *domain.User) { u.Role = role })
}

func (r memoryUsers) modify(id string, apply func(*domain.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[id]
	if !ok {
		return ErrNotFound
	}
	apply(&existing)
	existing.UpdatedAt = r.s.now()
	r.s.users[id] = existing
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.usersByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	user := r.s.users[id]
	return &user, nil
}

type memoryTickets struct{ s *MemoryStore }

func (r memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.tokens[ticket.Token]; taken {
		return ErrDuplicate
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Attachments == nil {
		ticket.Attachments = []domain.Attachment{}
	}
	now := r.s.now()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	r.s.seq++
	r.s.tickets[ticket.ID] = memoryTicket{ticket: cloneTicket(*ticket), seq: r.s.seq}
	r.s.tokens[ticket.Token] = ticket.ID
	return nil
}

func (r memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entry, ok := r.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	ticket := cloneTicket(entry.ticket)
	return &ticket, nil
}

func (r memoryTickets) GetByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	id, ok := r.s.tokens[token]
	r.s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r memoryTickets) TokenExists(_ context.Context, token string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.tokens[token]
	return ok, nil
}

func (r memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	entries := make([]memoryTicket, 0, len(r.s.tickets))
	for _, entry := range r.s.tickets {
		if !matchesFilter(entry.ticket, filter) {
			continue
		}
		entries = append(entries, entry)
	}
	r.s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
			return a.ticket.CreatedAt.After(b.ticket.CreatedAt)
		}
		return a.seq > b.seq
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			entries = nil
		} else {
			entries = entries[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	result := make([]domain.Ticket, 0, len(entries))
	for _, entry := range entries {
		result = append(result, cloneTicket(entry.ticket))
	}
	return result, nil
}

func (r memoryTickets) UpdateStatus(_ context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry, ok := r.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	entry.ticket.Status = status
	entry.ticket.UpdatedAt = r.s.now()
	r.s.tickets[id] = entry
	ticket := cloneTicket(entry.ticket)
	return &ticket, nil
}

func (r memoryTickets) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry, ok := r.s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.s.tickets, id)
	delete(r.s.tokens, entry.ticket.Token)
	return nil
}

func matchesFilter(ticket domain.Ticket, filter TicketFilter) bool {
	if filter.OwnerID != nil && (ticket.OwnerID == nil || *ticket.OwnerID != *filter.OwnerID) {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, status := range filter.Statuses {
		if ticket.Status == status {
			return true
		}
	}
	return false
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.OwnerID != nil {
		owner := *t.OwnerID
		t.OwnerID = &owner
	}
	t.Attachments = append([]domain.Attachment{}, t.Attachments...)
	return t
}

// MemoryResetCodeStore keeps reset codes in process memory.
type MemoryResetCodeStore struct {
	mu    sync.Mutex
	codes map[string]memoryResetCode
	now   func() time.Time
}

type memoryResetCode struct {
	code      string
	expiresAt time.Time
}

// NewMemoryResetCodeStore creates an empty store.
func NewMemoryResetCodeStore() *MemoryResetCodeStore {
	return &MemoryResetCodeStore{codes: make(map[string]memoryResetCode), now: time.Now}
}

func (s *MemoryResetCodeStore) Save(_ context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[strings.ToLower(email)] = memoryResetCode{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryResetCodeStore) Get(_ context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(strings.ToLower(email))
	if !ok {
		return "", ErrNotFound
	}
	return entry.code, nil
}

func (s *MemoryResetCodeStore) Consume(_ context.Context, email, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	entry, ok := s.live(key)
	if !ok || entry.code != code {
		return false, nil
	}
	delete(s.codes, key)
	return true, nil
}

// live must be called with mu held.
func (s *MemoryResetCodeStore) live(key string) (memoryResetCode, bool) {
	entry, ok := s.codes[key]
	if !ok {
		return memoryResetCode{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.codes, key)
		return memoryResetCode{}, false
	}
	return entry, true
}
