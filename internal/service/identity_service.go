package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"notes-backend/internal/domain"
	"notes-backend/internal/repository"
	"notes-backend/pkg/hash"

	"github.com/google/uuid"
)

// IdentityService registers users and checks their credentials.
type IdentityService struct {
	userRepo repository.UserRepository
	now      func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

func NewIdentityService(userRepo repository.UserRepository) *IdentityService {
	return &IdentityService{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// CreateUser stores a new user with a hashed password. The returned user
// carries no digest.
func (s *IdentityService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "must not be blank"}
	}

	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		return nil, domain.ErrUsernameTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	digest, err := hash.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:             uuid.New().String(),
		Username:       username,
		PasswordDigest: digest,
		CreatedAt:      s.now().UTC(),
	}

	// a concurrent signup may still win between the lookup and here
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.PasswordDigest = ""
	return user, nil
}

// Authenticate returns the user whose credentials match. Unknown usernames
// and wrong passwords both yield domain.ErrInvalidCredentials.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		// spend the same hashing work as a real comparison
		_ = hash.Compare(s.dummy(), password)
		return nil, domain.ErrInvalidCredentials
	}

	if err := hash.Compare(user.PasswordDigest, password); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	user.PasswordDigest = ""
	return user, nil
}

func (s *IdentityService) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := hash.Hash(uuid.New().String())
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}
