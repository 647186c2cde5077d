package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	identity := domain.Identity{SubjectID: "u1", Email: "jane@x.com", Role: domain.RoleSupport}

	cred, err := tm.Issue(identity)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cred.ExpiresAt.Sub(cred.IssuedAt))

	got, err := tm.Validate(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestValidateMissingToken(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	_, err := tm.Validate("")
	assert.ErrorIs(t, err, apperrors.ErrNoToken)
}

func TestValidateExpiredTokenIsExpiredNotMalformed(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	cred, err := tm.Issue(domain.Identity{SubjectID: "u1", Email: "a@b.c"})
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.Validate(cred.Token)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestValidateTamperedToken(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	cred, err := tm.Issue(domain.Identity{SubjectID: "u1", Email: "a@b.c"})
	require.NoError(t, err)

	parts := strings.Split(cred.Token, ".")
	require.Len(t, parts, 3)
	forged, err := NewTokenManager("other-secret", time.Hour).Issue(domain.Identity{SubjectID: "u1", Role: domain.RoleAdmin})
	require.NoError(t, err)
	forgedParts := strings.Split(forged.Token, ".")
	tampered := parts[0] + "." + forgedParts[1] + "." + parts[2]

	_, err = tm.Validate(tampered)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = tm.Validate("not-a-jwt")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = tm.Validate(forged.Token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestValidateRejectsOtherSigningMethods(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tm.Validate(raw)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestValidateDefaultsMissingRoleToUser(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	claims := &Claims{Email: "a@b.c", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	identity, err := tm.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, identity.Role)
}

func TestValidateRequiresSubjectAndExpiry(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.Validate(noSubject)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "u1",
	}}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.Validate(noExpiry)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}
