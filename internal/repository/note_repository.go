package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"notes-backend/internal/domain"

	"github.com/google/uuid"
)

// NoteRepository scopes every read and write to an owner. A note owned by
// someone else is reported as domain.ErrNoteNotFound, exactly like a note
// that does not exist.
type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) (*domain.Note, error)
	GetByOwner(ctx context.Context, ownerID, noteID string) (*domain.Note, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error)
	Update(ctx context.Context, note *domain.Note) (*domain.Note, error)
	Delete(ctx context.Context, ownerID, noteID string) error
}

type memoryNoteRepository struct {
	mu      sync.RWMutex
	notes   map[string]*domain.Note
	byOwner map[string]map[string]struct{}
	now     func() time.Time
}

func NewMemoryNoteRepository() NoteRepository {
	return newMemoryNoteRepository(time.Now)
}

func newMemoryNoteRepository(now func() time.Time) *memoryNoteRepository {
	return &memoryNoteRepository{
		notes:   make(map[string]*domain.Note),
		byOwner: make(map[string]map[string]struct{}),
		now:     now,
	}
}

func (r *memoryNoteRepository) Create(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	stored := *note
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}
	if stored.UpdatedAt.Before(stored.CreatedAt) {
		stored.UpdatedAt = stored.CreatedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notes[stored.ID]; exists {
		return nil, fmt.Errorf("note %s already exists", stored.ID)
	}

	r.notes[stored.ID] = &stored
	if r.byOwner[stored.OwnerID] == nil {
		r.byOwner[stored.OwnerID] = make(map[string]struct{})
	}
	r.byOwner[stored.OwnerID][stored.ID] = struct{}{}

	created := stored
	return &created, nil
}

func (r *memoryNoteRepository) GetByOwner(ctx context.Context, ownerID, noteID string) (*domain.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	note, ok := r.owned(ownerID, noteID)
	if !ok {
		return nil, domain.ErrNoteNotFound
	}

	found := *note
	return &found, nil
}

func (r *memoryNoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	r.mu.RLock()
	notes := make([]*domain.Note, 0, len(r.byOwner[ownerID]))
	for id := range r.byOwner[ownerID] {
		n := *r.notes[id]
		notes = append(notes, &n)
	}
	r.mu.RUnlock()

	SortByRecent(notes)
	return notes, nil
}

// Update replaces title and content of a note matching both id and owner.
// UpdatedAt is always set here; the caller's timestamps are ignored.
func (r *memoryNoteRepository) Update(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.owned(note.OwnerID, note.ID)
	if !ok {
		return nil, domain.ErrNoteNotFound
	}

	existing.Title = note.Title
	existing.Content = note.Content
	existing.UpdatedAt = nextUpdatedAt(existing.UpdatedAt, r.now())

	updated := *existing
	return &updated, nil
}

func (r *memoryNoteRepository) Delete(ctx context.Context, ownerID, noteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned(ownerID, noteID); !ok {
		return domain.ErrNoteNotFound
	}

	delete(r.notes, noteID)
	delete(r.byOwner[ownerID], noteID)
	if len(r.byOwner[ownerID]) == 0 {
		delete(r.byOwner, ownerID)
	}

	return nil
}

// owned must be called with r.mu held.
func (r *memoryNoteRepository) owned(ownerID, noteID string) (*domain.Note, bool) {
	note, ok := r.notes[noteID]
	if !ok || note.OwnerID != ownerID {
		return nil, false
	}
	return note, true
}

// nextUpdatedAt keeps UpdatedAt strictly increasing per note even when the
// clock does not advance between two writes.
func nextUpdatedAt(previous, now time.Time) time.Time {
	now = now.UTC()
	if !now.After(previous) {
		return previous.Add(time.Microsecond)
	}
	return now
}

// SortByRecent orders notes most recently updated first. Ties fall back to
// creation time and then id so the order is stable.
func SortByRecent(notes []*domain.Note) {
	sort.Slice(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
