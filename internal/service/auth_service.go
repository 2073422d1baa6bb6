package service

import (
	"context"
	"fmt"
	"time"

	"notes-backend/internal/domain"
)

const TokenTypeBearer = "Bearer"

type TokenIssuer interface {
	Issue(userID, username string, expiresAt time.Time) (string, error)
	DefaultLifetime() time.Duration
}

// AuthService turns a successful signup or login into a bearer token.
type AuthService struct {
	identity *IdentityService
	tokens   TokenIssuer
	now      func() time.Time
}

func NewAuthService(identity *IdentityService, tokens TokenIssuer) *AuthService {
	return &AuthService{
		identity: identity,
		tokens:   tokens,
		now:      time.Now,
	}
}

func (s *AuthService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.AuthResponse, error) {
	user, err := s.identity.CreateUser(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	user, err := s.identity.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*domain.AuthResponse, error) {
	// tokens carry whole seconds
	expiresAt := s.now().UTC().Add(s.tokens.DefaultLifetime()).Truncate(time.Second)

	token, err := s.tokens.Issue(user.ID, user.Username, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &domain.AuthResponse{
		Token:        token,
		TokenType:    TokenTypeBearer,
		ExpiresAtUTC: expiresAt,
	}, nil
}
