package handler

import (
	"net/http"
	"time"

	"notes-backend/internal/service"
	"notes-backend/pkg/response"

	"go.uber.org/zap"
)

type SyncHandler struct {
	syncService *service.SyncService
	logger      *zap.Logger
}

func NewSyncHandler(syncService *service.SyncService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		logger:      logger,
	}
}

type changesResponse struct {
	Notes    interface{} `json:"notes"`
	SyncTime time.Time   `json:"sync_time"`
}

// GetChanges lists the caller's notes updated after the optional since
// query parameter (RFC 3339).
func (h *SyncHandler) GetChanges(w http.ResponseWriter, r *http.Request, userID string) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.BadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		since = parsed
	}

	syncTime := time.Now().UTC()
	notes, err := h.syncService.GetChangesSince(r.Context(), userID, since)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, changesResponse{
		Notes:    notes,
		SyncTime: syncTime,
	})
}
