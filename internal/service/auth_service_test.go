package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func TestRegisterLoginRoundTrip(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	reg, err := h.auth.Register(ctx, "Jane", "Jane@X.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", reg.User.Email)
	assert.Equal(t, domain.RoleUser, reg.User.Role)
	assert.NotEqual(t, "secret1", reg.User.PasswordHash)

	login, err := h.auth.Login(ctx, "jane@x.com", "secret1")
	require.NoError(t, err)

	identity, err := h.tokens.Validate(login.Credential.Token)
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", identity.Email)
	assert.Equal(t, domain.RoleUser, identity.Role)
	assert.Equal(t, reg.User.ID, identity.SubjectID)
	assert.WithinDuration(t, login.Credential.IssuedAt.Add(time.Hour), login.Credential.ExpiresAt, time.Second)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.auth.Register(ctx, "", "jane@x.com", "")
	require.ErrorIs(t, err, apperrors.ErrMissingField)
	assert.Equal(t, []string{"name", "password"}, apperrors.ToDomainError(err).Details["fields"])

	_, err = h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	_, err = h.auth.Register(ctx, "Jane Again", "JANE@x.com", "other1")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)

	_, wrongPassword := h.auth.Login(ctx, "jane@x.com", "nope")
	_, unknownEmail := h.auth.Login(ctx, "ghost@x.com", "nope")
	require.ErrorIs(t, wrongPassword, apperrors.ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, apperrors.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	h.auth.newCode = func() (string, error) { return "123456", nil }

	assert.ErrorIs(t, h.auth.RequestPasswordReset(ctx, "ghost@x.com"), apperrors.ErrUserNotFound)
	require.NoError(t, h.auth.RequestPasswordReset(ctx, "jane@x.com"))

	sent := h.mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"jane@x.com"}, sent[0].To)
	assert.Contains(t, sent[0].HTML, "123456")
	assert.Empty(t, h.poster.bodies)

	assert.ErrorIs(t, h.auth.VerifyResetCode(ctx, "jane@x.com", "000000"), apperrors.ErrInvalidOrExpiredCode)
	require.NoError(t, h.auth.VerifyResetCode(ctx, "jane@x.com", "123456"))

	require.NoError(t, h.auth.ResetPassword(ctx, "jane@x.com", "123456", "newpass1"))
	_, err = h.auth.Login(ctx, "jane@x.com", "newpass1")
	require.NoError(t, err)
	_, err = h.auth.Login(ctx, "jane@x.com", "secret1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	err = h.auth.ResetPassword(ctx, "jane@x.com", "123456", "another1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredCode)
}

func TestPasswordResetNewestCodeWins(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)

	codes := []string{"111111", "222222"}
	h.auth.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	require.NoError(t, h.auth.RequestPasswordReset(ctx, "jane@x.com"))
	require.NoError(t, h.auth.RequestPasswordReset(ctx, "jane@x.com"))

	assert.ErrorIs(t, h.auth.VerifyResetCode(ctx, "jane@x.com", "111111"), apperrors.ErrInvalidOrExpiredCode)
	assert.NoError(t, h.auth.VerifyResetCode(ctx, "jane@x.com", "222222"))
}

func TestPasswordResetRejectsShortPasswordWithoutSpendingCode(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	h.auth.newCode = func() (string, error) { return "123456", nil }
	require.NoError(t, h.auth.RequestPasswordReset(ctx, "jane@x.com"))

	assert.ErrorIs(t, h.auth.ResetPassword(ctx, "jane@x.com", "123456", "abc"), apperrors.ErrValidation)
	assert.NoError(t, h.auth.VerifyResetCode(ctx, "jane@x.com", "123456"))
}

func TestPasswordResetCodeExpires(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHarnessWithCodes(repository.NewRedisResetCodeStore(client, "test"))
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	h.auth.newCode = func() (string, error) { return "123456", nil }
	require.NoError(t, h.auth.RequestPasswordReset(ctx, "jane@x.com"))

	require.NoError(t, h.auth.VerifyResetCode(ctx, "jane@x.com", "123456"))
	m.FastForward(11 * time.Minute)
	assert.ErrorIs(t, h.auth.VerifyResetCode(ctx, "jane@x.com", "123456"), apperrors.ErrInvalidOrExpiredCode)
	assert.ErrorIs(t, h.auth.ResetPassword(ctx, "jane@x.com", "123456", "newpass1"), apperrors.ErrInvalidOrExpiredCode)
}

func TestChangePassword(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	reg, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	me := domain.IdentityOf(reg.User)

	assert.ErrorIs(t, h.auth.ChangePassword(ctx, me, "wrong", "newpass1"), apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, h.auth.ChangePassword(ctx, me, "secret1", "123"), apperrors.ErrValidation)
	assert.ErrorIs(t, h.auth.ChangePassword(ctx, me, "", "newpass1"), apperrors.ErrMissingField)
	require.NoError(t, h.auth.ChangePassword(ctx, me, "secret1", "newpass1"))

	_, err = h.auth.Login(ctx, "jane@x.com", "newpass1")
	assert.NoError(t, err)
}

func TestMe(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	reg, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)

	user, err := h.auth.Me(ctx, domain.IdentityOf(reg.User))
	require.NoError(t, err)
	assert.Equal(t, "Jane", user.Name)

	_, err = h.auth.Me(ctx, userIdentity("ghost"))
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestChangeRoleAppliesAtNextLogin(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	reg, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	oldToken := reg.Credential.Token

	_, err = h.auth.ChangeRole(ctx, userIdentity("u9"), reg.User.ID, "support")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	admin := domain.Identity{SubjectID: "a1", Role: domain.RoleAdmin}
	_, err = h.auth.ChangeRole(ctx, admin, reg.User.ID, "superuser")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = h.auth.ChangeRole(ctx, admin, "ghost", "support")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	updated, err := h.auth.ChangeRole(ctx, admin, reg.User.ID, "support")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSupport, updated.Role)

	stale, err := h.tokens.Validate(oldToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, stale.Role)

	login, err := h.auth.Login(ctx, "jane@x.com", "secret1")
	require.NoError(t, err)
	fresh, err := h.tokens.Validate(login.Credential.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSupport, fresh.Role)
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	jane, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	_, err = h.auth.Register(ctx, "Bob", "bob@x.com", "secret1")
	require.NoError(t, err)
	me := domain.Identity{SubjectID: jane.User.ID, Role: domain.RoleUser}

	updated, err := h.auth.UpdateProfile(ctx, me, "  Jane Doe ", "")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", updated.Name)
	assert.Equal(t, "jane@x.com", updated.Email)

	_, err = h.auth.UpdateProfile(ctx, me, "", "BOB@x.com")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

	updated, err = h.auth.UpdateProfile(ctx, me, "", " Jane.Doe@X.com ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@x.com", updated.Email)

	_, err = h.auth.Login(ctx, "jane.doe@x.com", "secret1")
	assert.NoError(t, err)
	_, err = h.auth.Login(ctx, "jane@x.com", "secret1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = h.auth.UpdateProfile(ctx, userIdentity("ghost"), "X", "")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestChangeEmail(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	jane, err := h.auth.Register(ctx, "Jane", "jane@x.com", "secret1")
	require.NoError(t, err)
	_, err = h.auth.Register(ctx, "Bob", "bob@x.com", "secret1")
	require.NoError(t, err)
	me := domain.Identity{SubjectID: jane.User.ID, Role: domain.RoleUser}

	_, err = h.auth.ChangeEmail(ctx, me, "", "")
	assert.ErrorIs(t, err, apperrors.ErrMissingField)

	_, err = h.auth.ChangeEmail(ctx, me, "new@x.com", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = h.auth.ChangeEmail(ctx, me, "bob@x.com", "secret1")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

	updated, err := h.auth.ChangeEmail(ctx, me, "New@X.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", updated.Email)

	stored, err := h.store.Users().GetByID(ctx, jane.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", stored.Email)
	assert.Equal(t, domain.RoleUser, stored.Role)
	assert.NotEmpty(t, stored.PasswordHash)
}
