package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/service"
)

// StaffRoom receives every order event.
const StaffRoom = "staff"

// EventSubscribed is the first message on every connection.
const EventSubscribed = "subscribed"

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// roomEvent routes an event to one or more rooms
type roomEvent struct {
	Rooms []string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Students sit in a room named after their username, staff in StaffRoom.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomEvent
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled,
// closing every connected client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for room, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			seen := make(map[*Client]bool)
			for _, room := range event.Rooms {
				for client := range h.rooms[room] {
					if seen[client] {
						continue
					}
					seen[client] = true
					select {
					case client.send <- message:
					default:
						// Slow consumer, drop it
						h.removeLocked(client)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// join and leave are no-ops once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
}

// Broadcast queues event for every client in the given rooms. A client in
// several of them gets it once. Events are dropped when the queue is full.
func (h *Hub) Broadcast(rooms []string, event Event) {
	select {
	case h.broadcast <- &roomEvent{Rooms: rooms, Event: event}:
	default:
		log.Printf("WARN: websocket broadcast queue full, dropping %s", event.Type)
	}
}

// PublishOrderEvent pushes an order event to the order owner's room and to
// staff.
func (h *Hub) PublishOrderEvent(_ context.Context, eventType string, order database.Order) {
	payload, err := json.Marshal(service.NewOrderView(order))
	if err != nil {
		log.Printf("WARN: websocket: marshal %s for order %s: %v", eventType, order.ID, err)
		return
	}
	h.Broadcast([]string{order.Username, StaffRoom}, Event{Type: eventType, Payload: payload})
}
