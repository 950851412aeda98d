// Package websocket terminates client connections: an upgrade server, one
// read and one write pump per connection, and a hub that delivers room
// events to connection send buffers.
package websocket

import (
	"context"
	"sync"

	"coauthor-backend/internal/collab/session"
	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/infrastructure/observability"

	"go.uber.org/zap"
)

// MessageHandler receives every inbound frame and every closed connection.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sess *session.Session, data []byte) error
	HandleDisconnect(ctx context.Context, sess *session.Session)
}

// Hub maintains active connections and fans deliveries out to them.
type Hub struct {
	clients   map[string]*Client // connectionID -> client
	bySubject map[string]int
	mu        sync.RWMutex

	unregister chan *Client
	deliveries chan messaging.Delivery

	handler MessageHandler
	metrics *observability.Collector

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// NewHub creates a hub. metrics may be nil.
func NewHub(handler MessageHandler, metrics *observability.Collector, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		bySubject:  make(map[string]int),
		unregister: make(chan *Client, 100),
		deliveries: make(chan messaging.Delivery, 1000),
		handler:    handler,
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.Named("hub"),
	}
}

// Run is the hub's event loop. It returns once Stop is called and every
// connection has been closed.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.unregister:
			h.unregisterClient(client)

		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

// Stop shuts the hub down and waits for Run to return.
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
	<-h.done
}

// Deliver queues a delivery. It is the room bus subscriber, so it blocks
// rather than reorder or drop deliveries.
func (h *Hub) Deliver(d messaging.Delivery) {
	select {
	case h.deliveries <- d:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return false
	}
	h.clients[client.id] = client
	h.bySubject[client.session.Subject]++
	total := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Inc()
	}
	h.logger.Info("Client registered",
		zap.String("connectionID", client.id),
		zap.String("participantID", client.session.Subject),
		zap.Int("connections", total),
	)
	return true
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	if h.bySubject[client.session.Subject]--; h.bySubject[client.session.Subject] <= 0 {
		delete(h.bySubject, client.session.Subject)
	}
	close(client.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Dec()
	}
	h.logger.Info("Client unregistered", zap.String("connectionID", client.id))
	h.handler.HandleDisconnect(h.ctx, client.session)
}

// deliver copies one encoded event into each addressed send buffer. A
// connection whose buffer is full is closed instead of stalling the room.
func (h *Hub) deliver(d messaging.Delivery) {
	data := []byte(d.Payload)

	h.mu.RLock()
	var slow []*Client
	for _, id := range d.ConnectionIDs {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Closing slow client",
			zap.String("connectionID", client.id),
			zap.String("roomID", d.RoomID),
		)
		if h.metrics != nil {
			h.metrics.SlowClients.Inc()
		}
		h.unregisterClient(client)
		client.conn.Close()
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregisterClient(c)
		c.conn.Close()
	}
	h.logger.Info("All connections closed", zap.Int("closed", len(clients)))
}

// Count returns the number of active connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubjectCount returns the number of active connections for one subject.
func (h *Hub) SubjectCount(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bySubject[subject]
}

// Stats is a snapshot of the hub.
type Stats struct {
	Connections int `json:"connections"`
	Subjects    int `json:"subjects"`
}

// Stats reports the hub's current size.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Connections: len(h.clients), Subjects: len(h.bySubject)}
}
