package repository

import (
	"context"
	"strings"
	"sync"

	"notes-backend/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// memoryUserRepository keeps users in process memory. The username index is
// keyed by the lowercased username, so uniqueness is case-insensitive.
type memoryUserRepository struct {
	mu         sync.RWMutex
	users      map[string]*domain.User
	byUsername map[string]string
}

func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		users:      make(map[string]*domain.User),
		byUsername: make(map[string]string),
	}
}

func (r *memoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	key := usernameKey(user.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[key]; exists {
		return domain.ErrUsernameTaken
	}

	stored := *user
	r.users[user.ID] = &stored
	r.byUsername[key] = user.ID

	return nil
}

func (r *memoryUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	found := *user
	return &found, nil
}

func (r *memoryUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[usernameKey(username)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	found := *r.users[id]
	return &found, nil
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
