package service

import (
	"context"
	"fmt"
	"time"

	"notes-backend/internal/domain"
	"notes-backend/internal/repository"
	"notes-backend/internal/websocket"

	"go.uber.org/zap"
)

const syncQueryTimeout = 5 * time.Second

// SyncService pushes note changes to the owner's open websocket connections
// and answers messages those connections send.
type SyncService struct {
	noteRepo  repository.NoteRepository
	wsManager *websocket.Manager
	logger    *zap.Logger
}

func NewSyncService(noteRepo repository.NoteRepository, wsManager *websocket.Manager, logger *zap.Logger) *SyncService {
	return &SyncService{
		noteRepo:  noteRepo,
		wsManager: wsManager,
		logger:    logger,
	}
}

func (s *SyncService) NoteCreated(ownerID string, note *domain.NoteResponse) {
	s.broadcast(ownerID, websocket.TypeNoteCreated, note)
}

func (s *SyncService) NoteUpdated(ownerID string, note *domain.NoteResponse) {
	s.broadcast(ownerID, websocket.TypeNoteUpdated, note)
}

func (s *SyncService) NoteDeleted(ownerID, noteID string) {
	s.broadcast(ownerID, websocket.TypeNoteDeleted, &websocket.NoteDeletedPayload{NoteID: noteID})
}

func (s *SyncService) broadcast(ownerID string, msgType websocket.MessageType, payload interface{}) {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		s.logger.Error("failed to build message", zap.String("type", string(msgType)), zap.Error(err))
		return
	}

	if err := s.wsManager.BroadcastToUser(ownerID, msg); err != nil {
		s.logger.Error("failed to broadcast", zap.String("type", string(msgType)), zap.Error(err))
	}
}

// GetChangesSince returns the owner's notes updated strictly after since,
// most recent first.
func (s *SyncService) GetChangesSince(ctx context.Context, ownerID string, since time.Time) ([]*domain.NoteResponse, error) {
	notes, err := s.noteRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	changes := make([]*domain.NoteResponse, 0)
	for _, n := range notes {
		if n.UpdatedAt.After(since) {
			changes = append(changes, domain.NewNoteResponse(n))
		}
	}

	return changes, nil
}

func (s *SyncService) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypePing:
		return s.reply(client, websocket.TypePong, nil)

	case websocket.TypeSyncRequest:
		var req websocket.SyncRequestPayload
		if err := msg.UnmarshalPayload(&req); err != nil {
			return s.reply(client, websocket.TypeError, &websocket.ErrorPayload{Error: "invalid sync request"})
		}

		ctx, cancel := context.WithTimeout(context.Background(), syncQueryTimeout)
		defer cancel()

		syncTime := time.Now().UTC()
		notes, err := s.GetChangesSince(ctx, client.UserID, req.Since)
		if err != nil {
			return fmt.Errorf("failed to collect changes: %w", err)
		}

		return s.reply(client, websocket.TypeSyncResponse, &websocket.SyncResponsePayload{
			Notes:    notes,
			SyncTime: syncTime,
		})

	default:
		return s.reply(client, websocket.TypeError, &websocket.ErrorPayload{
			Error: fmt.Sprintf("unsupported message type %q", msg.Type),
		})
	}
}

func (s *SyncService) reply(client *websocket.Client, msgType websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return s.wsManager.SendToClient(client, msg)
}
