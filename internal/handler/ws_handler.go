package handler

import (
	"errors"
	"net/http"

	"notes-backend/internal/middleware"
	"notes-backend/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	gate     *middleware.Gate
	upgrader ws.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, gate *middleware.Gate, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		gate:    gate,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// HandleConnection authenticates before upgrading; browsers cannot set
// headers on the handshake, so the token may also come as ?token=.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.AuthenticateQuery(r)
	if err != nil {
		h.logger.Debug("websocket handshake rejected", zap.Error(err))
		h.gate.Reject(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := websocket.NewClient(uuid.New().String(), userID, conn, h.manager)
	if err := h.manager.Register(client); err != nil {
		closeCode := ws.CloseInternalServerErr
		switch {
		case errors.Is(err, websocket.ErrTooManyConnections):
			closeCode = ws.ClosePolicyViolation
		case errors.Is(err, websocket.ErrManagerClosed):
			closeCode = ws.CloseGoingAway
		}
		conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(closeCode, err.Error()))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
