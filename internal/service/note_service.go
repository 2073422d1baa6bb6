package service

import (
	"context"

	"notes-backend/internal/domain"
	"notes-backend/internal/repository"

	"github.com/google/uuid"
)

// NoteNotifier is told about every successful note mutation.
type NoteNotifier interface {
	NoteCreated(ownerID string, note *domain.NoteResponse)
	NoteUpdated(ownerID string, note *domain.NoteResponse)
	NoteDeleted(ownerID, noteID string)
}

// NoteService runs every note operation on behalf of ownerID, the subject
// of a verified token. It never accepts an owner from request bodies.
type NoteService struct {
	repo     repository.NoteRepository
	notifier NoteNotifier
}

func NewNoteService(repo repository.NoteRepository, notifier NoteNotifier) *NoteService {
	return &NoteService{
		repo:     repo,
		notifier: notifier,
	}
}

func (s *NoteService) List(ctx context.Context, ownerID string) ([]*domain.NoteResponse, error) {
	notes, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.NoteResponse, 0, len(notes))
	for _, n := range notes {
		responses = append(responses, domain.NewNoteResponse(n))
	}

	return responses, nil
}

func (s *NoteService) Get(ctx context.Context, ownerID, noteID string) (*domain.NoteResponse, error) {
	if !validNoteID(noteID) {
		return nil, domain.ErrNoteNotFound
	}

	note, err := s.repo.GetByOwner(ctx, ownerID, noteID)
	if err != nil {
		return nil, err
	}

	return domain.NewNoteResponse(note), nil
}

func (s *NoteService) Create(ctx context.Context, ownerID string, req *domain.CreateNoteRequest) (*domain.NoteResponse, error) {
	note, err := s.repo.Create(ctx, &domain.Note{
		OwnerID: ownerID,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return nil, err
	}

	response := domain.NewNoteResponse(note)
	if s.notifier != nil {
		s.notifier.NoteCreated(ownerID, response)
	}

	return response, nil
}

func (s *NoteService) Update(ctx context.Context, ownerID, noteID string, req *domain.UpdateNoteRequest) (*domain.NoteResponse, error) {
	if !validNoteID(noteID) {
		return nil, domain.ErrNoteNotFound
	}

	note, err := s.repo.Update(ctx, &domain.Note{
		ID:      noteID,
		OwnerID: ownerID,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return nil, err
	}

	response := domain.NewNoteResponse(note)
	if s.notifier != nil {
		s.notifier.NoteUpdated(ownerID, response)
	}

	return response, nil
}

func (s *NoteService) Delete(ctx context.Context, ownerID, noteID string) error {
	if !validNoteID(noteID) {
		return domain.ErrNoteNotFound
	}

	if err := s.repo.Delete(ctx, ownerID, noteID); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.NoteDeleted(ownerID, noteID)
	}

	return nil
}

func validNoteID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
