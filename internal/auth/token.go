package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const defaultTokenTTL = 24 * time.Hour

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Claims describes JWT payload.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issue builds and signs a credential for the identity.
func (tm *TokenManager) Issue(identity domain.Identity) (domain.Credential, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		Email: identity.Email,
		Role:  string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return domain.Credential{}, err
	}
	return domain.Credential{Token: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Validate verifies a raw bearer token and returns the identity it carries.
// It fails with ErrNoToken, ErrInvalidToken or ErrTokenExpired.
func (tm *TokenManager) Validate(raw string) (domain.Identity, error) {
	if raw == "" {
		return domain.Identity{}, apperrors.ErrNoToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, apperrors.ErrTokenExpired
		}
		return domain.Identity{}, apperrors.ErrInvalidToken.Wrap(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return domain.Identity{}, apperrors.ErrInvalidToken
	}

	return domain.Identity{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      domain.ParseRole(claims.Role),
	}, nil
}
