// Package auth logs users in with email and password and issues the
// bearer tokens the API authenticates with.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/session"
	"github.com/bannerdesk/banner-service/internal/validation"
)

type Service struct {
	users   database.UserStore
	tokens  *TokenIssuer
	revoked session.RevocationStore
	logger  *zerolog.Logger
}

func NewService(users database.UserStore, tokens *TokenIssuer, revoked session.RevocationStore, logger *zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, revoked: revoked, logger: logger}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      database.User `json:"user"`
}

var errInvalidCredentials = apperr.Unauthorized("invalid email or password")

// Login checks the password and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, database.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u.PasswordHash == "" || CheckPassword(password, u.PasswordHash) != nil {
		s.logger.Warn().Int64("user_id", u.ID).Msg("Login failed")
		return nil, errInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(u.Identity())
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("User logged in")
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u.Public()}, nil
}

// Logout revokes token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return apperr.Wrap(apperr.Unauthorized("invalid token"), err)
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	s.logger.Info().Str("subject", claims.Subject).Msg("User logged out")
	return nil
}

// Authenticate resolves a bearer token to the current user. Role and scope
// are read from the store so changes apply without a new login.
func (s *Service) Authenticate(ctx context.Context, token string) (*identity.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized("invalid token"), err)
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, apperr.Unauthorized("token has been revoked")
	}

	id, err := claims.UserID()
	if err != nil {
		return nil, apperr.Unauthorized("invalid token subject")
	}
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u.Identity(), nil
}

// Me returns the stored account of actor.
func (s *Service) Me(ctx context.Context, actor *identity.User) (*database.User, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("login required")
	}
	u, err := s.users.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("user %d", actor.ID))
	}
	public := u.Public()
	return &public, nil
}

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Email          string        `json:"email" validate:"required,email"`
	Name           string        `json:"name" validate:"required,max=100"`
	Password       string        `json:"password" validate:"required,min=8"`
	Role           identity.Role `json:"role" validate:"required"`
	MunicipalityID *int64        `json:"municipalityId,omitempty"`
	BusinessID     *int64        `json:"businessId,omitempty"`
}

// CreateUser registers an account. A nil actor is the bootstrap path used
// by the CLI; otherwise only super admins may create users.
func (s *Service) CreateUser(ctx context.Context, actor *identity.User, in CreateUserInput) (*database.User, error) {
	if actor != nil && actor.Role != identity.RoleSuperAdmin {
		return nil, apperr.Forbidden("only super admins can create users")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	scope := identity.User{Role: in.Role, MunicipalityID: in.MunicipalityID, BusinessID: in.BusinessID}
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.AddUser(ctx, database.User{
		Email:          strings.TrimSpace(in.Email),
		Name:           in.Name,
		PasswordHash:   hash,
		Role:           in.Role,
		MunicipalityID: in.MunicipalityID,
		BusinessID:     in.BusinessID,
	})
	if err != nil {
		return nil, apperr.FromStore(err, fmt.Sprintf("user %s", in.Email))
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("User created")
	public := u.Public()
	return &public, nil
}

// ListUsers returns every account. Super admins only.
func (s *Service) ListUsers(ctx context.Context, actor *identity.User) ([]database.User, error) {
	if actor == nil || actor.Role != identity.RoleSuperAdmin {
		return nil, apperr.Forbidden("only super admins can list users")
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, nil
}
