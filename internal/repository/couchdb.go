package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

const (
	docTypeUser     = "user"
	docTypeUsername = "username"
	docTypeNote     = "note"

	// maxConflictRetries bounds how often an optimistic write is retried
	// after CouchDB answers 409 because another writer got there first.
	maxConflictRetries = 5
)

// EnsureDatabase creates dbName if it is missing and installs the Mango
// index used to list notes by owner.
func EnsureDatabase(ctx context.Context, client *kivik.Client, dbName string) (created bool, err error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return false, fmt.Errorf("failed to create database: %w", err)
		}
		created = true
	}

	index := map[string]interface{}{
		"fields": []string{"type", "owner_id"},
	}
	if err := client.DB(dbName).CreateIndex(ctx, "notes-by-owner", "type-owner", index); err != nil {
		return created, fmt.Errorf("failed to create notes index: %w", err)
	}

	return created, nil
}

func isNotFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusConflict
}
