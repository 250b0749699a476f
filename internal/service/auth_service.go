package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/config"
	"storefront/internal/apperrors"
	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService registers accounts and issues access tokens
type AuthService struct {
	users  UserRepository
	cfg    config.AuthConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(users UserRepository, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		users:  users,
		cfg:    cfg,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// RegisterRequest is the sign up form. Roles are not client supplied.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest is the sign in form
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Role    string    `json:"role"`
	Token   string    `json:"token"`
	Message string    `json:"message"`
}

// Register creates an account and signs it in. Emails listed in the seller
// allowlist get the seller role, everyone else is a customer.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}
	role := models.RoleCustomer
	if s.cfg.IsSellerEmail(req.Email) {
		role = models.RoleSeller
	}

	if _, err := s.users.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, userExists()
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, userExists()
		}
		return nil, apperrors.Internal(err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	return s.respond(user, "Registration successful")
}

// Login verifies credentials and issues a token
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, apperrors.InvalidInput("Email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, invalidCredentials()
	}

	return s.respond(user, "Login successful")
}

// Profile returns the account behind identity
func (s *AuthService) Profile(ctx context.Context, identity *models.Identity) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Profile")
	defer span.End()

	if identity == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	user, err := s.users.GetUserByID(ctx, identity.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Unauthorized("User no longer exists")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// Authenticate turns a bearer token into an identity
func (s *AuthService) Authenticate(token string) (*models.Identity, error) {
	claims, err := auth.ParseAccessToken(s.cfg, token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthorized, err, "Not authorized, token failed")
	}
	identity, err := claims.Identity()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthorized, err, "Not authorized, token failed")
	}
	return identity, nil
}

func (s *AuthService) respond(user *models.User, message string) (*AuthResponse, error) {
	token, err := auth.MintAccessToken(s.cfg, s.now(), user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &AuthResponse{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Role:    user.Role,
		Token:   token,
		Message: message,
	}, nil
}

func userExists() error {
	return apperrors.InvalidInput("User already exists")
}

func invalidCredentials() error {
	return apperrors.Unauthorized("Invalid credentials")
}
