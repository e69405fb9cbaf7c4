package websocket

import (
	"context"
	"log"
	"sync"
	"time"
)

type Manager struct {
	clients        map[string]*Client
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	done           chan struct{}
	maxConnections int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	messageHandler MessageHandler
}

// MessageHandler handles the frames of every client. HandleWebSocketMessage
// runs on the read goroutine of the sending client.
type MessageHandler interface {
	HandleWebSocketMessage(client *Client, data []byte) error
	ClientDisconnected(client *Client)
}

func NewManager(maxConnections int, maxMessageSize int64, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		done:           make(chan struct{}),
		maxConnections: maxConnections,
		maxMessageSize: maxMessageSize,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

// Run serves registrations until ctx is done, then closes every client.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case <-ctx.Done():
			m.closeAll()
			return
		}
	}
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.maxConnections > 0 && len(m.clients) >= m.maxConnections {
		log.Printf("[WebSocket] Max connections reached, rejecting client %s", client.ID)
		client.close()
		return
	}

	m.clients[client.ID] = client
	log.Printf("[WebSocket] Client registered: %s (user: %s)", client.ID, client.UserID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	_, ok := m.clients[client.ID]
	if ok {
		delete(m.clients, client.ID)
	}
	m.clientsMutex.Unlock()

	if !ok {
		return
	}

	client.close()
	if m.messageHandler != nil {
		m.messageHandler.ClientDisconnected(client)
	}
	log.Printf("[WebSocket] Client unregistered: %s", client.ID)
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		client.close()
		delete(m.clients, id)
	}
}

func (m *Manager) processMessage(client *Client, data []byte) {
	if m.messageHandler == nil {
		return
	}
	if err := m.messageHandler.HandleWebSocketMessage(client, data); err != nil {
		log.Printf("[WebSocket] Error handling message from client %s: %v", client.ID, err)
	}
}

// register and unregister give up once Run has stopped.
func (m *Manager) register(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

// Serve registers client and starts its pumps.
func (m *Manager) Serve(client *Client) {
	if !m.register(client) {
		client.Conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}
