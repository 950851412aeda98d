// Package session carries per-connection identity and the outbound path
// shared by the document and graph channels.
package session

import (
	"context"
	"sort"
	"sync"

	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/pkg/protocol"

	"go.uber.org/zap"
)

// RoomKind tells document rooms from graph rooms.
type RoomKind string

const (
	DocumentRoom RoomKind = "document"
	GraphRoom    RoomKind = "graph"
)

// Session is one client connection. Subject is the authenticated
// participant id, empty when authentication is disabled.
type Session struct {
	ConnectionID string
	Subject      string

	mu    sync.Mutex
	rooms map[RoomKind]map[string]struct{}
}

// New creates a session.
func New(connectionID, subject string) *Session {
	return &Session{
		ConnectionID: connectionID,
		Subject:      subject,
		rooms:        make(map[RoomKind]map[string]struct{}),
	}
}

// Touch records that the connection sent a message for a room, so the room
// can be told when the connection goes away.
func (s *Session) Touch(kind RoomKind, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[kind] == nil {
		s.rooms[kind] = make(map[string]struct{})
	}
	s.rooms[kind][roomID] = struct{}{}
}

// Rooms lists the rooms of one kind the connection has touched.
func (s *Session) Rooms(kind RoomKind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms[kind]))
	for id := range s.rooms[kind] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Authorize checks a claimed participant id against the authenticated one.
func (s *Session) Authorize(participantID string) bool {
	return s.Subject == "" || s.Subject == participantID
}

// Outbound delivers encoded events to connections.
type Outbound interface {
	Send(ctx context.Context, roomID string, connectionIDs []string, t protocol.EventType, payload any) error
}

// Publisher is the room bus as seen by the outbound path.
type Publisher interface {
	Publish(ctx context.Context, d messaging.Delivery) error
}

// BusOutbound encodes events once and publishes them on the room bus.
type BusOutbound struct {
	bus     Publisher
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewBusOutbound creates the production outbound. metrics may be nil.
func NewBusOutbound(bus Publisher, metrics *observability.Collector, logger *zap.Logger) *BusOutbound {
	return &BusOutbound{bus: bus, metrics: metrics, logger: logger}
}

func (o *BusOutbound) Send(ctx context.Context, roomID string, connectionIDs []string, t protocol.EventType, payload any) error {
	if len(connectionIDs) == 0 {
		return nil
	}
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	if err := o.bus.Publish(ctx, messaging.Delivery{
		RoomID:        roomID,
		ConnectionIDs: connectionIDs,
		Payload:       frame,
	}); err != nil {
		o.logger.Error("Failed to publish delivery",
			zap.String("roomID", roomID),
			zap.String("event", string(t)),
			zap.Error(err),
		)
		return err
	}
	if o.metrics != nil {
		o.metrics.OutboundEvents.Add(float64(len(connectionIDs)))
	}
	return nil
}
