package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notes-backend/internal/domain"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"
)

type noteDoc struct {
	ID        string    `json:"_id,omitempty"`
	Rev       string    `json:"_rev,omitempty"`
	Type      string    `json:"type"`
	NoteID    string    `json:"note_id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *noteDoc) toNote() *domain.Note {
	return &domain.Note{
		ID:        d.NoteID,
		OwnerID:   d.OwnerID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

var errConflictRetriesExhausted = errors.New("too many concurrent writes")

const defaultListPageSize = 100

type couchNoteRepository struct {
	client   *kivik.Client
	dbName   string
	pageSize int
	now      func() time.Time
}

func NewCouchNoteRepository(client *kivik.Client, dbName string) NoteRepository {
	return &couchNoteRepository{
		client:   client,
		dbName:   dbName,
		pageSize: defaultListPageSize,
		now:      time.Now,
	}
}

func noteDocID(id string) string {
	return fmt.Sprintf("note:%s", id)
}

func (r *couchNoteRepository) Create(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	db := r.client.DB(r.dbName)

	doc := noteDoc{
		Type:      docTypeNote,
		NoteID:    note.ID,
		OwnerID:   note.OwnerID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
	if doc.NoteID == "" {
		doc.NoteID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now().UTC()
	}
	if doc.UpdatedAt.Before(doc.CreatedAt) {
		doc.UpdatedAt = doc.CreatedAt
	}

	if _, err := db.Put(ctx, noteDocID(doc.NoteID), doc); err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("note %s already exists", doc.NoteID)
		}
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	return doc.toNote(), nil
}

func (r *couchNoteRepository) GetByOwner(ctx context.Context, ownerID, noteID string) (*domain.Note, error) {
	doc, err := r.getOwned(ctx, ownerID, noteID)
	if err != nil {
		return nil, err
	}
	return doc.toNote(), nil
}

func (r *couchNoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	notes := make([]*domain.Note, 0)
	bookmark := ""

	for {
		page, next, err := r.findPage(ctx, ownerID, bookmark)
		if err != nil {
			return nil, err
		}
		notes = append(notes, page...)
		if len(page) < r.pageSize || next == "" {
			break
		}
		bookmark = next
	}

	SortByRecent(notes)
	return notes, nil
}

// findPage fetches one page of the owner's notes. _find caps every response
// at its limit, so callers follow the returned bookmark until a short page.
func (r *couchNoteRepository) findPage(ctx context.Context, ownerID, bookmark string) ([]*domain.Note, string, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type":     docTypeNote,
			"owner_id": ownerID,
		},
		"limit": r.pageSize,
	}
	if bookmark != "" {
		query["bookmark"] = bookmark
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*domain.Note, 0, r.pageSize)
	for rows.Next() {
		var doc noteDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, "", fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, doc.toNote())
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list notes: %w", err)
	}

	meta, err := rows.Metadata()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read list bookmark: %w", err)
	}

	return notes, meta.Bookmark, nil
}

func (r *couchNoteRepository) Update(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	db := r.client.DB(r.dbName)

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		doc, err := r.getOwned(ctx, note.OwnerID, note.ID)
		if err != nil {
			return nil, err
		}

		doc.Title = note.Title
		doc.Content = note.Content
		doc.UpdatedAt = nextUpdatedAt(doc.UpdatedAt, r.now())

		if _, err := db.Put(ctx, noteDocID(note.ID), doc); err != nil {
			if isConflict(err) {
				continue
			}
			return nil, fmt.Errorf("failed to update note: %w", err)
		}

		return doc.toNote(), nil
	}

	return nil, fmt.Errorf("failed to update note %s: %w", note.ID, errConflictRetriesExhausted)
}

func (r *couchNoteRepository) Delete(ctx context.Context, ownerID, noteID string) error {
	db := r.client.DB(r.dbName)

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		doc, err := r.getOwned(ctx, ownerID, noteID)
		if err != nil {
			return err
		}

		if _, err := db.Delete(ctx, noteDocID(noteID), doc.Rev); err != nil {
			if isConflict(err) {
				continue
			}
			if isNotFound(err) {
				return domain.ErrNoteNotFound
			}
			return fmt.Errorf("failed to delete note: %w", err)
		}

		return nil
	}

	return fmt.Errorf("failed to delete note %s: %w", noteID, errConflictRetriesExhausted)
}

func (r *couchNoteRepository) getOwned(ctx context.Context, ownerID, noteID string) (*noteDoc, error) {
	db := r.client.DB(r.dbName)

	var doc noteDoc
	if err := db.Get(ctx, noteDocID(noteID)).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	if doc.Type != docTypeNote || doc.OwnerID != ownerID {
		return nil, domain.ErrNoteNotFound
	}

	return &doc, nil
}
