package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
)

func ownerPtr(s string) *string { return &s }

func newTicket(token, owner string) *domain.Ticket {
	t := &domain.Ticket{
		Token:       token,
		Name:        "Jane",
		Phone:       "555-0100",
		Email:       "jane@x.com",
		Subject:     "Login broken",
		Description: "Cannot log in",
		Status:      domain.TicketStatusOpen,
	}
	if owner != "" {
		t.OwnerID = ownerPtr(owner)
	}
	return t
}

func TestMemoryUsersUniqueEmail(t *testing.T) {
	users := NewMemoryStore().Users()
	ctx := context.Background()

	u := &domain.User{Name: "Jane", Email: "jane@x.com", PasswordHash: "h", Role: domain.RoleUser}
	require.NoError(t, users.Create(ctx, u))
	assert.NotEmpty(t, u.ID)

	err := users.Create(ctx, &domain.User{Name: "Other", Email: "jane@x.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := users.GetByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUsersUpdateProfile(t *testing.T) {
	users := NewMemoryStore().Users()
	ctx := context.Background()

	a := &domain.User{Name: "A", Email: "a@x.com", PasswordHash: "hash-a", Role: domain.RoleUser}
	b := &domain.User{Name: "B", Email: "b@x.com", Role: domain.RoleUser}
	require.NoError(t, users.Create(ctx, a))
	require.NoError(t, users.Create(ctx, b))

	edit := &domain.User{ID: a.ID, Name: "Alice", Email: "alice@x.com", PasswordHash: "ignored", Role: domain.RoleAdmin}
	require.NoError(t, users.UpdateProfile(ctx, edit))

	got, err := users.GetByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "hash-a", got.PasswordHash)
	assert.Equal(t, domain.RoleUser, got.Role)
	_, err = users.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrNotFound)

	edit.Email = "b@x.com"
	assert.ErrorIs(t, users.UpdateProfile(ctx, edit), ErrDuplicate)
	assert.ErrorIs(t, users.UpdateProfile(ctx, &domain.User{ID: "nope"}), ErrNotFound)
}

func TestMemoryUsersColumnWritesDoNotClobber(t *testing.T) {
	users := NewMemoryStore().Users()
	ctx := context.Background()

	u := &domain.User{Name: "Jane", Email: "jane@x.com", PasswordHash: "old", Role: domain.RoleUser}
	require.NoError(t, users.Create(ctx, u))

	require.NoError(t, users.SetRole(ctx, u.ID, domain.RoleSupport))
	require.NoError(t, users.SetPassword(ctx, u.ID, "new"))

	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSupport, got.Role)
	assert.Equal(t, "new", got.PasswordHash)

	assert.ErrorIs(t, users.SetRole(ctx, "nope", domain.RoleAdmin), ErrNotFound)
	assert.ErrorIs(t, users.SetPassword(ctx, "nope", "x"), ErrNotFound)
}

func TestMemoryTicketsUniqueToken(t *testing.T) {
	tickets := NewMemoryStore().Tickets()
	ctx := context.Background()

	require.NoError(t, tickets.Create(ctx, newTicket("202508180143ABCD", "u1")))
	err := tickets.Create(ctx, newTicket("202508180143ABCD", "u2"))
	assert.ErrorIs(t, err, ErrDuplicate)

	exists, err := tickets.TokenExists(ctx, "202508180143ABCD")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := tickets.GetByToken(ctx, "202508180143ABCD")
	require.NoError(t, err)
	assert.Equal(t, "u1", *got.OwnerID)
}

func TestMemoryTicketsConcurrentInsertsKeepTokensUnique(t *testing.T) {
	tickets := NewMemoryStore().Tickets()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tickets.Create(ctx, newTicket("SAME", "u1")); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestMemoryTicketsListScopedAndOrdered(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, 8, 18, 1, 43, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	tickets := store.Tickets()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		owner := "u1"
		if i%2 == 1 {
			owner = "u2"
		}
		require.NoError(t, tickets.Create(ctx, newTicket(fmt.Sprintf("T%d", i), owner)))
	}
	require.NoError(t, tickets.Create(ctx, newTicket("ANON", "")))

	all, err := tickets.List(ctx, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}
	assert.Equal(t, "ANON", all[0].Token)

	mine, err := tickets.List(ctx, TicketFilter{OwnerID: ownerPtr("u1")})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	for _, ticket := range mine {
		assert.Equal(t, "u1", *ticket.OwnerID)
	}
	assert.Equal(t, []string{"T4", "T2", "T0"}, []string{mine[0].Token, mine[1].Token, mine[2].Token})

	page, err := tickets.List(ctx, TicketFilter{OwnerID: ownerPtr("u1"), Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "T2", page[0].Token)

	empty, err := tickets.List(ctx, TicketFilter{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryTicketsStatusFilterAndUpdate(t *testing.T) {
	tickets := NewMemoryStore().Tickets()
	ctx := context.Background()

	a := newTicket("A", "u1")
	b := newTicket("B", "u1")
	require.NoError(t, tickets.Create(ctx, a))
	require.NoError(t, tickets.Create(ctx, b))

	updated, err := tickets.UpdateStatus(ctx, b.ID, domain.TicketStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Equal(t, "u1", *updated.OwnerID)
	assert.Equal(t, b.CreatedAt, updated.CreatedAt)

	open, err := tickets.List(ctx, TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "A", open[0].Token)

	_, err = tickets.UpdateStatus(ctx, "missing", domain.TicketStatusClosed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTicketsDeleteReleasesToken(t *testing.T) {
	tickets := NewMemoryStore().Tickets()
	ctx := context.Background()

	ticket := newTicket("A", "u1")
	require.NoError(t, tickets.Create(ctx, ticket))
	require.NoError(t, tickets.Delete(ctx, ticket.ID))
	assert.ErrorIs(t, tickets.Delete(ctx, ticket.ID), ErrNotFound)
	_, err := tickets.GetByID(ctx, ticket.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTicketsReturnCopies(t *testing.T) {
	tickets := NewMemoryStore().Tickets()
	ctx := context.Background()

	ticket := newTicket("A", "u1")
	ticket.Attachments = []domain.Attachment{{FileName: "shot.png"}}
	require.NoError(t, tickets.Create(ctx, ticket))

	got, err := tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	*got.OwnerID = "intruder"
	got.Attachments[0].FileName = "changed"

	again, err := tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", *again.OwnerID)
	assert.Equal(t, "shot.png", again.Attachments[0].FileName)
}

func TestMemoryResetCodeStore(t *testing.T) {
	store := NewMemoryResetCodeStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "Jane@x.com", "111111", 10*time.Minute))
	require.NoError(t, store.Save(ctx, "jane@x.com", "222222", 10*time.Minute))

	code, err := store.Get(ctx, "jane@x.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", code)

	ok, err := store.Consume(ctx, "jane@x.com", "111111")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Consume(ctx, "jane@x.com", "222222")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "jane@x.com", "222222")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "jane@x.com", "333333", 10*time.Minute))
	now = now.Add(11 * time.Minute)
	_, err = store.Get(ctx, "jane@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
