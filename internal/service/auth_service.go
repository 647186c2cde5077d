package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// MinPasswordLength applies to password changes and resets.
const MinPasswordLength = 6

// AuthResult is returned by registration and login.
type AuthResult struct {
	User       *domain.User
	Credential domain.Credential
}

// AuthService coordinates registration, login and password recovery.
type AuthService struct {
	users      repository.UserRepository
	codes      repository.ResetCodeStore
	tokenMgr   *auth.TokenManager
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
	resetTTL   time.Duration
	newCode    func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	ResetCodes   repository.ResetCodeStore
	TokenManager *auth.TokenManager
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resetTTL := cfg.ResetCodeTTL()
	if resetTTL <= 0 {
		resetTTL = 10 * time.Minute
	}
	return &AuthService{
		users:      deps.UserRepo,
		codes:      deps.ResetCodes,
		tokenMgr:   deps.TokenManager,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		bcryptCost: cfg.BcryptCost,
		resetTTL:   resetTTL,
		newCode:    auth.GenerateResetCode,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with the default role and signs them in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingField(missing...)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrDuplicateEmail
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password are
// indistinguishable, including in timing.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		var missing []string
		if email == "" {
			missing = append(missing, "email")
		}
		if password == "" {
			missing = append(missing, "password")
		}
		return nil, apperrors.NewMissingField(missing...)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInternalError(err)
		}
		_ = auth.ComparePassword(s.placeholderHash(), password)
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Me loads the caller's current profile.
func (s *AuthService) Me(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	return s.userByID(ctx, identity.SubjectID)
}

// RequestPasswordReset stores a fresh one-time code for email, replacing any
// earlier one, and queues it for delivery.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperrors.NewMissingField("email")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.NewInternalError(err)
	}

	code, err := s.newCode()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.codes.Save(ctx, email, code, s.resetTTL); err != nil {
		return apperrors.NewInternalError(err)
	}

	if s.dispatcher == nil {
		s.logger.Warn("no dispatcher configured, reset code not delivered", zap.String("user_id", user.ID))
		return nil
	}
	actor := events.ActorOf(&domain.Identity{SubjectID: user.ID, Role: user.Role})
	err = s.dispatcher.Publish(ctx, events.NewEvent(events.EventPasswordResetRequested, "", actor, events.PasswordResetRequestedPayload{
		Email:     user.Email,
		Name:      user.Name,
		Code:      code,
		ExpiresAt: time.Now().Add(s.resetTTL),
	}))
	if err != nil {
		s.logger.Warn("reset code delivery not queued", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// VerifyResetCode checks the code without consuming it.
func (s *AuthService) VerifyResetCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return apperrors.ErrInvalidOrExpiredCode
	}
	stored, err := s.codes.Get(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrInvalidOrExpiredCode
		}
		return apperrors.NewInternalError(err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return apperrors.ErrInvalidOrExpiredCode
	}
	return nil
}

// ResetPassword consumes the code and sets a new password. The code is spent
// before the hash is written, so a failed write means requesting a new code.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return apperrors.ErrInvalidOrExpiredCode
	}
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}

	ok, err := s.codes.Consume(ctx, email, code)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		return apperrors.ErrInvalidOrExpiredCode
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.NewInternalError(err)
	}
	return s.setPassword(ctx, user, newPassword)
}

// ChangePassword verifies the current password before storing the new one.
func (s *AuthService) ChangePassword(ctx context.Context, identity domain.Identity, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return apperrors.NewMissingField("currentPassword")
	}
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}

	user, err := s.userByID(ctx, identity.SubjectID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.ErrInvalidCredentials.WithMessage("current password is incorrect")
	}
	return s.setPassword(ctx, user, newPassword)
}

// ChangeRole sets another user's role. Only admins may call it; the change is
// visible in credentials issued from the next login.
func (s *AuthService) ChangeRole(ctx context.Context, actor domain.Identity, userID string, role string) (*domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	newRole := domain.Role(strings.ToLower(strings.TrimSpace(role)))
	if !newRole.Valid() {
		return nil, apperrors.NewValidationError("role must be one of user, support, admin", map[string]any{"role": role})
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == newRole {
		return user, nil
	}
	if err := s.users.SetRole(ctx, user.ID, newRole); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound.WithMessage("user not found")
		}
		return nil, apperrors.NewInternalError(err)
	}
	user.Role = newRole
	s.logger.Info("user role changed",
		zap.String("user_id", user.ID),
		zap.String("role", string(newRole)),
		zap.String("by", actor.SubjectID))
	return user, nil
}

// UpdateProfile changes the caller's display name and email. Blank values
// keep the current ones.
func (s *AuthService) UpdateProfile(ctx context.Context, identity domain.Identity, name, email string) (*domain.User, error) {
	user, err := s.userByID(ctx, identity.SubjectID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if email = normalizeEmail(email); email != "" {
		user.Email = email
	}
	if err := s.saveProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangeEmail moves the account to newEmail after re-checking the password.
func (s *AuthService) ChangeEmail(ctx context.Context, identity domain.Identity, newEmail, password string) (*domain.User, error) {
	newEmail = normalizeEmail(newEmail)
	var missing []string
	if newEmail == "" {
		missing = append(missing, "newEmail")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingField(missing...)
	}

	user, err := s.userByID(ctx, identity.SubjectID)
	if err != nil {
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.ErrInvalidCredentials.WithMessage("current password is incorrect")
	}
	if newEmail == user.Email {
		return user, nil
	}
	user.Email = newEmail
	if err := s.saveProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) saveProfile(ctx context.Context, user *domain.User) error {
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return apperrors.ErrDuplicateEmail.WithMessage("email is already taken")
		case errors.Is(err, repository.ErrNotFound):
			return apperrors.ErrUserNotFound.WithMessage("user not found")
		}
		return apperrors.NewInternalError(err)
	}
	s.logger.Info("profile updated", zap.String("user_id", user.ID))
	return nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	cred, err := s.tokenMgr.Issue(domain.IdentityOf(user))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Credential: cred}, nil
}

func (s *AuthService) userByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound.WithMessage("user not found")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

func (s *AuthService) setPassword(ctx context.Context, user *domain.User, password string) error {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	return nil
}

// placeholderHash is compared against when the email is unknown.
func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		hash, err := auth.HashPassword("placeholder-password", s.bcryptCost)
		if err != nil {
			s.logger.Error("placeholder hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func validateNewPassword(password string) error {
	if password == "" {
		return apperrors.NewMissingField("newPassword")
	}
	if len(password) < MinPasswordLength {
		return apperrors.NewValidationError("password must be at least 6 characters", map[string]any{"min_length": MinPasswordLength})
	}
	return nil
}
