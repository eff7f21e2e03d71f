package event

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub is an in-memory Broadcaster. Slow subscribers lose events rather
// than stall the room.
type Hub struct {
	clients map[string]map[chan Event]bool
	events  chan Event
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[chan Event]bool),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
}

// Register subscribes client to topic.
func (h *Hub) Register(topic string, client chan Event) {
	h.mu.Lock()
	if _, ok := h.clients[topic]; !ok {
		h.clients[topic] = make(map[chan Event]bool)
	}
	h.clients[topic][client] = true
	total := len(h.clients[topic])
	h.mu.Unlock()

	log.Debug().Str("topic", topic).Int("clients", total).Msg("client registered")
}

// Unregister removes client from topic. The channel is not closed; a
// client may be registered to several topics at once.
func (h *Hub) Unregister(topic string, client chan Event) {
	h.mu.Lock()
	remaining := 0
	if clients, ok := h.clients[topic]; ok {
		delete(clients, client)
		remaining = len(clients)
		if remaining == 0 {
			delete(h.clients, topic)
		}
	}
	h.mu.Unlock()

	log.Debug().Str("topic", topic).Int("clients", remaining).Msg("client unregistered")
}

// Subscribers returns how many clients watch topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[topic])
}

// Broadcast queues event for delivery to every client of event.Topic.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.events <- event:
	case <-h.done:
	}
}

// Run delivers queued events until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) deliver(event Event) {
	h.mu.Lock()
	clients := make([]chan Event, 0, len(h.clients[event.Topic]))
	for client := range h.clients[event.Topic] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		select {
		case client <- event:
		default:
			log.Warn().Str("topic", event.Topic).Str("type", event.Type).Msg("subscriber is too slow, dropping event")
		}
	}
}
