package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// AuthMiddleware validates bearer tokens and stores the caller identity.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	identity, err := m.authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	c.Locals(identityKey, &identity)
	return c.Next()
}

// Optional authenticates when a credential is presented and lets anonymous
// requests through. A presented but invalid credential is still rejected.
func (m *AuthMiddleware) Optional(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if strings.TrimSpace(header) == "" {
		return c.Next()
	}
	return m.Handle(c)
}

func (m *AuthMiddleware) authenticate(header string) (domain.Identity, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return domain.Identity{}, err
	}
	return m.tokens.Validate(raw)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperrors.ErrNoToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", apperrors.ErrInvalidToken.WithMessage("invalid authorization header")
	}
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", apperrors.ErrNoToken
	}
	return token, nil
}

// RequireRole ensures the caller holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.ErrNoToken
		}
		if _, exists := allowedSet[identity.Role]; !exists {
			return apperrors.ErrForbidden
		}
		return c.Next()
	}
}

// IdentityFromContext retrieves the authenticated caller.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	identity, ok := val.(*domain.Identity)
	return identity, ok
}
