package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"notes-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		existing []*domain.User
		user     *domain.User
		wantErr  error
	}{
		{
			name: "new username",
			user: &domain.User{ID: "u1", Username: "alice", PasswordDigest: "d"},
		},
		{
			name:     "exact duplicate",
			existing: []*domain.User{{ID: "u1", Username: "alice"}},
			user:     &domain.User{ID: "u2", Username: "alice"},
			wantErr:  domain.ErrUsernameTaken,
		},
		{
			name:     "case-insensitive duplicate",
			existing: []*domain.User{{ID: "u1", Username: "Alice"}},
			user:     &domain.User{ID: "u2", Username: "aLICE"},
			wantErr:  domain.ErrUsernameTaken,
		},
		{
			name:     "different username",
			existing: []*domain.User{{ID: "u1", Username: "alice"}},
			user:     &domain.User{ID: "u2", Username: "bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryUserRepository()
			for _, u := range tt.existing {
				require.NoError(t, repo.Create(ctx, u))
			}

			err := repo.Create(ctx, tt.user)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				// the rejected user must not be reachable
				_, findErr := repo.FindByID(ctx, tt.user.ID)
				assert.ErrorIs(t, findErr, domain.ErrUserNotFound)
				return
			}

			require.NoError(t, err)
			found, err := repo.FindByID(ctx, tt.user.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.user.Username, found.Username)
		})
	}
}

func TestMemoryUserRepository_FindByUsername(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u1", Username: "Alice", PasswordDigest: "digest"}))

	for _, name := range []string{"Alice", "alice", "ALICE", " alice "} {
		found, err := repo.FindByUsername(ctx, name)
		require.NoError(t, err, name)
		assert.Equal(t, "u1", found.ID)
		assert.Equal(t, "digest", found.PasswordDigest)
	}

	_, err := repo.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestMemoryUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user := &domain.User{ID: "u1", Username: "alice"}
	require.NoError(t, repo.Create(ctx, user))
	user.Username = "mallory"

	found, err := repo.FindByID(ctx, "u1")
	require.NoError(t, err)
	found.Username = "eve"

	again, err := repo.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)
}

func TestMemoryUserRepository_ConcurrentCreateSameUsername(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	const workers = 64
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "racer"
			if i%2 == 0 {
				name = "RACER"
			}
			err := repo.Create(ctx, &domain.User{ID: fmt.Sprintf("u%d", i), Username: name})
			switch err {
			case nil:
				successes.Add(1)
			case domain.ErrUsernameTaken:
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, workers-1, conflicts.Load())
}
