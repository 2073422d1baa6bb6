package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrTooManyConnections = errors.New("too many connections for user")
	ErrManagerClosed      = errors.New("websocket manager is shut down")
)

const invalidMessageError = "invalid message"

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type Options struct {
	MaxConnPerUser int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

// Manager tracks live connections per user. Messages are only ever fanned
// out to the connections of the user they belong to.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]struct{}
	clientsMutex   sync.RWMutex
	HandleMessage  chan *ClientMessage
	done           chan struct{}
	closed         bool
	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	messageHandler MessageHandler
	logger         *zap.Logger
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	if opts.MaxConnPerUser <= 0 {
		opts.MaxConnPerUser = 1
	}

	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]struct{}),
		HandleMessage:  make(chan *ClientMessage),
		done:           make(chan struct{}),
		maxConnPerUser: opts.MaxConnPerUser,
		writeWait:      opts.WriteWait,
		pongWait:       opts.PongWait,
		pingPeriod:     opts.PingPeriod,
		logger:         logger,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

// Run processes inbound messages until ctx is done, then closes every
// connection.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

// Register adds client to its user's set, refusing it once the user is at
// the connection limit or the manager has shut down.
func (m *Manager) Register(client *Client) error {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	if len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		m.logger.Warn("max connections reached", zap.String("user_id", client.UserID))
		return ErrTooManyConnections
	}

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]struct{})
	}
	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = struct{}{}

	m.logger.Debug("client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
	)
	return nil
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) Unregister(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.removeLocked(client)
}

// removeLocked must be called with clientsMutex held.
func (m *Manager) removeLocked(client *Client) {
	if _, ok := m.clients[client.ID]; !ok {
		return
	}

	delete(m.clients, client.ID)
	delete(m.userIndex[client.UserID], client.ID)
	if len(m.userIndex[client.UserID]) == 0 {
		delete(m.userIndex, client.UserID)
	}

	close(client.Send)
	m.logger.Debug("client unregistered", zap.String("client_id", client.ID))
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.closed = true

	for _, client := range m.clients {
		m.removeLocked(client)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Debug("malformed message",
			zap.String("client_id", clientMsg.Client.ID),
			zap.Error(err),
		)
		m.replyInvalid(clientMsg.Client)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			m.logger.Warn("error handling message",
				zap.String("client_id", clientMsg.Client.ID),
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) replyInvalid(client *Client) {
	reply, err := NewMessage(TypeError, &ErrorPayload{Error: invalidMessageError})
	if err != nil {
		m.logger.Error("failed to build error message", zap.Error(err))
		return
	}
	if err := m.SendToClient(client, reply); err != nil {
		m.logger.Error("failed to send error message", zap.String("client_id", client.ID), zap.Error(err))
	}
}

// BroadcastToUser queues message on every connection of userID. A
// connection whose buffer is full is dropped.
func (m *Manager) BroadcastToUser(userID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Warn("send buffer full, closing connection", zap.String("client_id", clientID))
			m.removeLocked(client)
		}
	}

	return nil
}

func (m *Manager) SendToClient(client *Client, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if _, exists := m.clients[client.ID]; !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("send buffer full", zap.String("client_id", client.ID))
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}
