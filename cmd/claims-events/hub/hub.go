package hub

import (
	"context"
	"strconv"
	"sync"

	"github.com/lyzr/claims/common/logger"
)

// AllClaims is the topic of clients that did not filter by claim
const AllClaims = "*"

// Message is one event payload routed to a claim topic
type Message struct {
	ClaimID int64
	Data    []byte
}

// Hub maintains active WebSocket connections and broadcasts claim events
type Hub struct {
	// Map: topic (claim id or AllClaims) → clients
	topics map[string][]*Client
	mutex  sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}

	log *logger.Logger
}

// New creates a new Hub instance
func New(log *logger.Logger) *Hub {
	return &Hub{
		topics:     make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run is the hub's main loop. On exit every client's send channel is closed
// so write pumps send a close frame.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.log.Info("hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Publish queues a message for the claim's subscribers and AllClaims
func (h *Hub) Publish(ctx context.Context, msg *Message) {
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Register adds a client; it returns false once the hub has stopped
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client if the hub is still running
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.topics[client.topic] = append(h.topics[client.topic], client)
	h.log.Debug("client registered", "topic", client.topic, "total_for_topic", len(h.topics[client.topic]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.remove(client)
}

// remove must be called with the write lock held. A client already dropped
// for a full buffer is not closed twice.
func (h *Hub) remove(client *Client) {
	clients := h.topics[client.topic]
	for i, c := range clients {
		if c == client {
			h.topics[client.topic] = append(clients[:i], clients[i+1:]...)
			close(client.send)

			if len(h.topics[client.topic]) == 0 {
				delete(h.topics, client.topic)
			}
			h.log.Debug("client unregistered", "topic", client.topic, "remaining_for_topic", len(h.topics[client.topic]))
			return
		}
	}
}

func (h *Hub) deliver(message *Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, topic := range []string{strconv.FormatInt(message.ClaimID, 10), AllClaims} {
		// copy: remove mutates the slice
		clients := append([]*Client(nil), h.topics[topic]...)
		for _, client := range clients {
			select {
			case client.send <- message.Data:
			default:
				h.log.Warn("client send buffer full, dropping connection", "topic", client.topic)
				h.remove(client)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for topic, clients := range h.topics {
		for _, c := range clients {
			close(c.send)
		}
		delete(h.topics, topic)
	}
}

// ConnectionCount returns the total number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for _, clients := range h.topics {
		count += len(clients)
	}
	return count
}

// TopicCount returns the number of distinct topics with subscribers
func (h *Hub) TopicCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.topics)
}
