package repository

import (
	"context"
	"fmt"
	"time"

	"notes-backend/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type userDoc struct {
	ID             string    `json:"_id,omitempty"`
	Rev            string    `json:"_rev,omitempty"`
	Type           string    `json:"type"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	PasswordDigest string    `json:"password_digest"`
	CreatedAt      time.Time `json:"created_at"`
}

// usernameDoc reserves a lowercased username. Creating it without a _rev
// fails with 409 when it already exists, which is what makes the
// uniqueness check and the insert a single step.
type usernameDoc struct {
	ID     string `json:"_id,omitempty"`
	Rev    string `json:"_rev,omitempty"`
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type couchUserRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchUserRepository(client *kivik.Client, dbName string) UserRepository {
	return &couchUserRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *couchUserRepository) Create(ctx context.Context, user *domain.User) error {
	db := r.client.DB(r.dbName)

	reservationID := fmt.Sprintf("username:%s", usernameKey(user.Username))
	reservationRev, err := db.Put(ctx, reservationID, usernameDoc{
		Type:   docTypeUsername,
		UserID: user.ID,
	})
	if err != nil {
		if isConflict(err) {
			return domain.ErrUsernameTaken
		}
		return fmt.Errorf("failed to reserve username: %w", err)
	}

	docID := fmt.Sprintf("user:%s", user.ID)
	_, err = db.Put(ctx, docID, userDoc{
		Type:           docTypeUser,
		UserID:         user.ID,
		Username:       user.Username,
		PasswordDigest: user.PasswordDigest,
		CreatedAt:      user.CreatedAt,
	})
	if err != nil {
		if _, delErr := db.Delete(ctx, reservationID, reservationRev); delErr != nil {
			return fmt.Errorf("failed to create user: %w (username reservation left behind: %v)", err, delErr)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *couchUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("user:%s", id)

	var doc userDoc
	if err := db.Get(ctx, docID).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return &domain.User{
		ID:             doc.UserID,
		Username:       doc.Username,
		PasswordDigest: doc.PasswordDigest,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

func (r *couchUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	db := r.client.DB(r.dbName)

	reservationID := fmt.Sprintf("username:%s", usernameKey(username))

	var reservation usernameDoc
	if err := db.Get(ctx, reservationID).ScanDoc(&reservation); err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user by username: %w", err)
	}

	return r.FindByID(ctx, reservation.UserID)
}
