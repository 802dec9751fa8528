// Package realtime pushes route status changes to websocket subscribers.
package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// StatusEvent is sent to subscribers after a route's photo state is persisted.
type StatusEvent struct {
	RouteID          uint     `json:"routeId"`
	Status           string   `json:"status"`
	TotalPoints      int      `json:"totalPoints"`
	PointsWithPhotos int      `json:"pointsWithPhotos"`
	MissingPhotos    []string `json:"missingPhotos"`
}

// Client is one subscriber of a route's events.
type Client struct {
	RouteID uint
	send    chan StatusEvent
}

// Events delivers the client's events. It is closed when the client is
// unregistered or dropped for falling behind.
func (c *Client) Events() <-chan StatusEvent { return c.send }

// Hub fans route events out to the clients registered for that route.
type Hub struct {
	clients   map[uint]map[*Client]bool
	broadcast chan StatusEvent
	done      chan struct{}
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewHub creates a Hub and starts its broadcast loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[uint]map[*Client]bool),
		broadcast: make(chan StatusEvent, 100),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[ev.RouteID] {
		select {
		case c.send <- ev:
		default:
			logrus.WithField("route_id", ev.RouteID).Warn("Subscriber is not keeping up, dropping it")
			h.removeLocked(c)
		}
	}
}

// Register subscribes a new client to a route.
func (h *Hub) Register(routeID uint) *Client {
	c := &Client{RouteID: routeID, send: make(chan StatusEvent, 16)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[routeID]; !ok {
		h.clients[routeID] = make(map[*Client]bool)
	}
	h.clients[routeID][c] = true
	logrus.WithField("route_id", routeID).Debug("Route status subscriber registered")
	return c
}

// Unregister removes a client. Unregistering twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	clients, ok := h.clients[c.RouteID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.RouteID)
	}
}

// Subscribers reports how many clients follow a route.
func (h *Hub) Subscribers(routeID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[routeID])
}

// Publish queues an event without blocking. Events are dropped when the
// queue is full.
func (h *Hub) Publish(ev StatusEvent) {
	select {
	case h.broadcast <- ev:
	default:
		logrus.WithField("route_id", ev.RouteID).Warn("Route status queue full, dropping event")
	}
}

// Close stops the broadcast loop.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
