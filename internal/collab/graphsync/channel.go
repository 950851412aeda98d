// Package graphsync is the server side of the concept-map channel. Graph
// updates are full-state replacements: the server persists them and relays
// them verbatim. Node selections are advisory hints and are never persisted.
package graphsync

import (
	"context"
	"time"

	"coauthor-backend/internal/collab/session"
	"coauthor-backend/internal/domain/graph"
	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/infrastructure/concurrency"
	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/internal/presence"
	apperrors "coauthor-backend/pkg/errors"
	"coauthor-backend/pkg/protocol"

	"go.uber.org/zap"
)

// Channel handles graph rooms.
type Channel struct {
	store      gateway.GraphStore
	presence   *presence.Registry
	selections *Selections
	lanes      concurrency.Executor
	out        session.Outbound
	activity   messaging.ActivityPublisher
	metrics    *observability.Collector
	logger     *zap.Logger
}

// NewChannel wires a graph channel. metrics may be nil.
func NewChannel(
	store gateway.GraphStore,
	registry *presence.Registry,
	selections *Selections,
	lanes concurrency.Executor,
	out session.Outbound,
	activity messaging.ActivityPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Channel {
	return &Channel{
		store:      store,
		presence:   registry,
		selections: selections,
		lanes:      lanes,
		out:        out,
		activity:   activity,
		metrics:    metrics,
		logger:     logger.Named("graphsync"),
	}
}

// Presence exposes the channel's registry.
func (c *Channel) Presence() *presence.Registry {
	return c.presence
}

// Selections exposes the advisory selection table.
func (c *Channel) Selections() *Selections {
	return c.selections
}

func laneKey(graphID string) string {
	return "graph:" + graphID
}

func (c *Channel) submit(ctx context.Context, sess *session.Session, event protocol.EventType, graphID string, fn func(ctx context.Context)) error {
	sess.Touch(session.GraphRoom, graphID)
	ctx = context.WithoutCancel(ctx)
	return c.lanes.Submit(laneKey(graphID), func() {
		ctx, span := session.StartSpan(ctx, session.GraphRoom, graphID, event)
		defer span.End()
		fn(ctx)
	})
}

// Join adds the participant to the graph room. The joiner gets the stored
// graph with its members, then one node-selected per current selection.
func (c *Channel) Join(ctx context.Context, sess *session.Session, msg *protocol.JoinGraphMessage) error {
	return c.submit(ctx, sess, protocol.JoinGraph, msg.GraphID, func(ctx context.Context) {
		if !sess.Authorize(msg.ParticipantID) {
			c.reply(ctx, sess, protocol.JoinGraph, msg.GraphID,
				apperrors.NewInvalidOperationError("participant id does not match the authenticated identity"))
			return
		}

		g, err := c.store.LoadGraph(ctx, msg.GraphID)
		if err != nil {
			c.reply(ctx, sess, protocol.JoinGraph, msg.GraphID, err)
			return
		}
		if !g.Roles.Has(msg.ParticipantID) {
			g, err = c.store.SaveGraph(ctx, msg.GraphID, graph.AddMember(msg.ParticipantID))
			if err != nil {
				c.reply(ctx, sess, protocol.JoinGraph, msg.GraphID, err)
				return
			}
		}

		participants := c.presence.Join(msg.GraphID, msg.ParticipantID, msg.DisplayName, sess.ConnectionID)
		// A rejoin starts without a selection; the others drop the old one.
		if sel, ok := c.selections.Clear(msg.GraphID, msg.ParticipantID); ok {
			c.send(ctx, msg.GraphID, c.presence.ConnectionIDs(msg.GraphID, sess.ConnectionID),
				protocol.NodeSelected, protocol.NodeSelectedMessage{
					GraphID:         msg.GraphID,
					NodeID:          nil,
					ParticipantName: sel.ParticipantName,
				})
		}
		c.logger.Info("Participant joined graph",
			zap.String("roomID", msg.GraphID),
			zap.String("participantID", msg.ParticipantID),
			zap.String("connectionID", sess.ConnectionID),
		)

		self := []string{sess.ConnectionID}
		c.send(ctx, msg.GraphID, self, protocol.LoadGraph, protocol.LoadGraphMessage{
			GraphID:    g.ID,
			DocumentID: g.DocumentID,
			State:      g.State,
			Members:    g.Roles.Members(),
		})
		c.broadcastParticipants(ctx, msg.GraphID, participants)
		for _, sel := range c.selections.Room(msg.GraphID) {
			nodeID := sel.NodeID
			c.send(ctx, msg.GraphID, self, protocol.NodeSelected, protocol.NodeSelectedMessage{
				GraphID:         msg.GraphID,
				NodeID:          &nodeID,
				ParticipantName: sel.ParticipantName,
			})
		}

		c.trackRooms()
		c.record(ctx, messaging.ParticipantJoined, msg.GraphID, msg.ParticipantID)
	})
}

// NodeSelected records the sender's advisory selection and relays it. A nil
// node id clears the sender from every node.
func (c *Channel) NodeSelected(ctx context.Context, sess *session.Session, msg *protocol.NodeSelectedMessage) error {
	return c.submit(ctx, sess, protocol.NodeSelected, msg.GraphID, func(ctx context.Context) {
		p, ok := c.presence.Lookup(msg.GraphID, sess.ConnectionID)
		if !ok {
			c.reply(ctx, sess, protocol.NodeSelected, msg.GraphID, errNotJoined)
			return
		}

		if msg.NodeID == nil {
			c.selections.Clear(msg.GraphID, p.ParticipantID)
		} else {
			c.selections.Set(msg.GraphID, Selection{
				ParticipantID:   p.ParticipantID,
				ParticipantName: msg.ParticipantName,
				NodeID:          *msg.NodeID,
			})
		}
		c.send(ctx, msg.GraphID, c.presence.ConnectionIDs(msg.GraphID, sess.ConnectionID), protocol.NodeSelected, *msg)
	})
}

// GraphUpdate persists a full graph state and relays it verbatim to the
// rest of the room.
func (c *Channel) GraphUpdate(ctx context.Context, sess *session.Session, msg *protocol.GraphUpdateMessage) error {
	return c.submit(ctx, sess, protocol.GraphUpdate, msg.GraphID, func(ctx context.Context) {
		p, ok := c.presence.Lookup(msg.GraphID, sess.ConnectionID)
		if !ok {
			c.reply(ctx, sess, protocol.GraphUpdate, msg.GraphID, errNotJoined)
			return
		}

		if _, err := c.store.SaveGraph(ctx, msg.GraphID, graph.ReplaceState(msg.State)); err != nil {
			c.reply(ctx, sess, protocol.GraphUpdate, msg.GraphID, err)
			return
		}

		c.send(ctx, msg.GraphID, c.presence.ConnectionIDs(msg.GraphID, sess.ConnectionID), protocol.GraphUpdate, *msg)
		c.record(ctx, messaging.GraphSaved, msg.GraphID, p.ParticipantID)
	})
}

// Leave removes the participant's own entry from the room.
func (c *Channel) Leave(ctx context.Context, sess *session.Session, msg *protocol.LeaveGraphMessage) error {
	return c.submit(ctx, sess, protocol.LeaveGraph, msg.GraphID, func(ctx context.Context) {
		p, ok := c.presence.Lookup(msg.GraphID, sess.ConnectionID)
		if !ok || p.ParticipantID != msg.ParticipantID {
			return
		}
		remaining, removed := c.presence.Leave(msg.GraphID, msg.ParticipantID)
		if !removed {
			return
		}
		c.departed(ctx, msg.GraphID, p, remaining)
	})
}

// Disconnect removes the connection from every graph room it touched.
func (c *Channel) Disconnect(ctx context.Context, sess *session.Session) {
	ctx = context.WithoutCancel(ctx)
	for _, graphID := range sess.Rooms(session.GraphRoom) {
		graphID := graphID
		err := c.lanes.Submit(laneKey(graphID), func() {
			for {
				d, ok := c.presence.DisconnectFrom(graphID, sess.ConnectionID)
				if !ok {
					return
				}
				c.departed(ctx, graphID, d.Participant, d.Remaining)
			}
		})
		if err != nil {
			c.logger.Warn("Dropping disconnect", zap.String("roomID", graphID), zap.Error(err))
		}
	}
}

// departed clears the participant's hint for everyone left, then sends the
// new participant list.
func (c *Channel) departed(ctx context.Context, graphID string, p presence.Participant, remaining []presence.Participant) {
	c.logger.Info("Participant left graph",
		zap.String("roomID", graphID),
		zap.String("participantID", p.ParticipantID),
		zap.String("connectionID", p.ConnectionID),
	)

	name := p.DisplayName
	if sel, ok := c.selections.Clear(graphID, p.ParticipantID); ok && sel.ParticipantName != "" {
		name = sel.ParticipantName
	}
	if name == "" {
		name = p.ParticipantID
	}
	if len(remaining) == 0 {
		c.selections.Drop(graphID)
	} else {
		c.send(ctx, graphID, c.presence.ConnectionIDs(graphID, ""), protocol.NodeSelected, protocol.NodeSelectedMessage{
			GraphID:         graphID,
			NodeID:          nil,
			ParticipantName: name,
		})
	}

	c.broadcastParticipants(ctx, graphID, remaining)
	c.trackRooms()
	c.record(ctx, messaging.ParticipantLeft, graphID, p.ParticipantID)
}

var errNotJoined = apperrors.NewInvalidOperationError("join the room first")

func (c *Channel) broadcastParticipants(ctx context.Context, graphID string, participants []presence.Participant) {
	infos := make([]protocol.ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		infos = append(infos, protocol.ParticipantInfo{ParticipantID: p.ParticipantID, DisplayName: p.DisplayName})
	}
	c.send(ctx, graphID, c.presence.ConnectionIDs(graphID, ""), protocol.UpdateParticipants,
		protocol.UpdateParticipantsMessage(infos))
}

func (c *Channel) send(ctx context.Context, graphID string, connectionIDs []string, t protocol.EventType, payload any) {
	if err := c.out.Send(ctx, graphID, connectionIDs, t, payload); err != nil {
		c.logger.Warn("Failed to send event",
			zap.String("roomID", graphID),
			zap.String("event", string(t)),
			zap.Error(err),
		)
	}
}

func (c *Channel) reply(ctx context.Context, sess *session.Session, event protocol.EventType, graphID string, err error) {
	session.ReplyError(ctx, c.out, c.logger, sess, event, graphID, err)
}

func (c *Channel) trackRooms() {
	if c.metrics != nil {
		c.metrics.Rooms.WithLabelValues(string(session.GraphRoom)).Set(float64(c.presence.Rooms()))
	}
}

func (c *Channel) record(ctx context.Context, eventType, graphID, participantID string) {
	err := c.activity.Publish(ctx, messaging.ActivityEvent{
		Type:          eventType,
		RoomKind:      string(session.GraphRoom),
		RoomID:        graphID,
		ParticipantID: participantID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		c.logger.Debug("Activity event dropped", zap.String("type", eventType), zap.Error(err))
	}
}
