package httpapi

import "sync"

// Hub manages SSE client connections and broadcasts events published on the
// daemon's event bus. It runs an event loop in a separate goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}

	register   chan *sseClient
	unregister chan *sseClient
	broadcast  chan sseMessage

	done chan struct{}
}

// sseClient represents one connected SSE subscriber.
type sseClient struct {
	id     string
	events chan sseMessage
}

// sseMessage is a ready-to-write SSE frame.
type sseMessage struct {
	eventType string
	data      []byte
}

// NewHub creates a new SSE hub with initialized channels. Call Run() to
// start the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*sseClient]struct{}),
		register:   make(chan *sseClient),
		unregister: make(chan *sseClient),
		broadcast:  make(chan sseMessage),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. Blocks until Stop() is called - run in a
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.events)
			}
			h.clients = make(map[*sseClient]struct{})
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.events)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.events <- msg:
				default:
					// Buffer full, drop the event for this slow client.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop signals the hub to stop processing and closes all client channels.
func (h *Hub) Stop() {
	close(h.done)
}

// Broadcast sends a message to every connected client. Non-blocking: the
// message is dropped if the hub's event loop is not ready to receive it
// (not yet running, stopped, or busy with another request).
func (h *Hub) Broadcast(eventType string, data []byte) {
	select {
	case h.broadcast <- sseMessage{eventType: eventType, data: data}:
	default:
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func newSSEClient(id string) *sseClient {
	return &sseClient{id: id, events: make(chan sseMessage, 256)}
}
