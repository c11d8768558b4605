package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hub tracks connected clients, their topic subscriptions and the users bound
// to them.
type Hub struct {
	clients    map[*Client]bool
	topics     map[string]map[*Client]bool
	users      map[string]map[*Client]bool
	broadcast  chan *Frame
	unregister chan *Client
	done       chan struct{}
	stopped    bool
	mu         sync.RWMutex
	log        logrus.FieldLogger
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		topics:     make(map[string]map[*Client]bool),
		users:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Frame, 256),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run owns client registration until ctx is cancelled, then closes every
// client's send queue.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.unregister:
			h.remove(client)

		case frame := <-h.broadcast:
			h.deliver(frame)

		case <-ticker.C:
			stats := h.Stats()
			h.log.WithFields(logrus.Fields{"clients": stats.Clients, "topics": stats.Topics, "users": stats.Users}).Debug("hub stats")

		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.topics = make(map[string]map[*Client]bool)
			h.users = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// add registers a client. It reports false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.clients[client] = true
	h.log.WithField("client_id", client.id).Debug("client registered")
	return true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for topic := range client.topics {
		dropMember(h.topics, topic, client)
	}
	if client.principal != nil {
		dropMember(h.users, client.principal.UserID, client)
	}
	close(client.send)

	h.log.WithField("client_id", client.id).Debug("client unregistered")
}

func dropMember(index map[string]map[*Client]bool, key string, client *Client) {
	members, ok := index[key]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(index, key)
	}
}

// bind indexes an authenticated client under its user id so /user/<id>
// destinations reach every session of that user.
func (h *Hub) bind(client *Client, p *Principal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.principal = p
	if p == nil {
		return
	}
	id := p.UserID
	if h.users[id] == nil {
		h.users[id] = make(map[*Client]bool)
	}
	h.users[id][client] = true
}

func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true
	client.topics[topic] = true
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropMember(h.topics, topic, client)
	delete(client.topics, topic)
}

// Publish queues a MESSAGE frame for fan-out. It reports false when the hub
// is stopped or its queue is full.
func (h *Hub) Publish(frame *Frame) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- frame:
		return true
	default:
		h.log.WithField("destination", frame.Destination).Warn("hub broadcast queue full")
		return false
	}
}

func (h *Hub) deliver(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var members map[*Client]bool
	switch {
	case strings.HasPrefix(frame.Destination, TopicPrefix):
		members = h.topics[frame.Destination]
	case strings.HasPrefix(frame.Destination, UserPrefix):
		members = h.users[strings.TrimPrefix(frame.Destination, UserPrefix)]
	}

	for client := range members {
		select {
		case client.send <- data:
		default:
			h.log.WithField("client_id", client.id).Warn("client send buffer full")
		}
	}
}

// sendTo queues data for a single client. Clients already removed are skipped.
func (h *Hub) sendTo(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		h.log.WithField("client_id", client.id).Warn("client send buffer full")
	}
}

type Stats struct {
	Clients int `json:"clients"`
	Topics  int `json:"topics"`
	Users   int `json:"users"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Clients: len(h.clients), Topics: len(h.topics), Users: len(h.users)}
}
