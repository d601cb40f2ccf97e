package websocket

import (
	"context"
	"sync"
	"time"

	"detectionui/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

type envelope struct {
	client  *websocket.Conn
	message []byte
}

type registration struct {
	client *websocket.Conn
	id     string
}

// HubService owns every viewer connection and is their only writer.
type HubService struct {
	clients    map[*websocket.Conn]string
	broadcast  chan []byte
	direct     chan envelope
	register   chan registration
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan []byte, 4),
		direct:     make(chan envelope, 4),
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and writes until ctx is cancelled, then closes all viewers.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case reg := <-h.register:
			h.mutex.Lock()
			h.clients[reg.client] = reg.id
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer %s connected. Total: %d", reg.id, total)

		case client := <-h.unregister:
			h.remove(client)

		case env := <-h.direct:
			h.write(env.client, env.message)

		case message := <-h.broadcast:
			h.mutex.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mutex.RUnlock()

			for _, client := range clients {
				h.write(client, message)
			}
		}
	}
}

// write sends one message and drops the viewer on failure.
func (h *HubService) write(client *websocket.Conn, message []byte) {
	h.mutex.RLock()
	_, ok := h.clients[client]
	h.mutex.RUnlock()
	if !ok {
		return
	}

	client.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
		h.logger.Error("Error sending message: %v", err)
		h.remove(client)
	}
}

func (h *HubService) remove(client *websocket.Conn) {
	h.mutex.Lock()
	id, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	if ok {
		client.Close()
		h.logger.Info("Viewer %s disconnected. Total: %d", id, total)
	}
}

func (h *HubService) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]string)
}

// Register adds a viewer and returns its id.
func (h *HubService) Register(client *websocket.Conn) string {
	id := uuid.NewString()
	select {
	case h.register <- registration{client: client, id: id}:
	case <-h.done:
	}
	return id
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for every viewer.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Send queues a message for a single viewer.
func (h *HubService) Send(client *websocket.Conn, message []byte) {
	select {
	case h.direct <- envelope{client: client, message: message}:
	case <-h.done:
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
