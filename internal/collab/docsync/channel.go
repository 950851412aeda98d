// Package docsync is the server side of the document channel: presence,
// section relays, cursor relays and whole-document saves for one room per
// document.
//
// Every operation runs on its room's serial lane. A change is broadcast
// only after the gateway has persisted it; when persisting fails the
// sender gets an error event and nobody else hears about the change.
package docsync

import (
	"context"
	"time"

	"coauthor-backend/internal/collab/session"
	"coauthor-backend/internal/domain/document"
	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/infrastructure/concurrency"
	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/internal/presence"
	"coauthor-backend/pkg/colors"
	apperrors "coauthor-backend/pkg/errors"
	"coauthor-backend/pkg/protocol"

	"go.uber.org/zap"
)

// Channel handles document rooms.
type Channel struct {
	store    gateway.DocumentStore
	presence *presence.Registry
	lanes    concurrency.Executor
	out      session.Outbound
	activity messaging.ActivityPublisher
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewChannel wires a document channel. metrics may be nil.
func NewChannel(
	store gateway.DocumentStore,
	registry *presence.Registry,
	lanes concurrency.Executor,
	out session.Outbound,
	activity messaging.ActivityPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Channel {
	return &Channel{
		store:    store,
		presence: registry,
		lanes:    lanes,
		out:      out,
		activity: activity,
		metrics:  metrics,
		logger:   logger.Named("docsync"),
	}
}

// Presence exposes the channel's registry.
func (c *Channel) Presence() *presence.Registry {
	return c.presence
}

func laneKey(documentID string) string {
	return "document:" + documentID
}

// submit runs fn on the room lane. The handler context outlives the
// connection: a message accepted before a disconnect is still processed.
func (c *Channel) submit(ctx context.Context, sess *session.Session, event protocol.EventType, documentID string, fn func(ctx context.Context)) error {
	sess.Touch(session.DocumentRoom, documentID)
	ctx = context.WithoutCancel(ctx)
	return c.lanes.Submit(laneKey(documentID), func() {
		ctx, span := session.StartSpan(ctx, session.DocumentRoom, documentID, event)
		defer span.End()
		fn(ctx)
	})
}

// Join adds the participant to the room, granting document membership on
// first join, and sends the snapshot to the joiner.
func (c *Channel) Join(ctx context.Context, sess *session.Session, msg *protocol.JoinDocumentMessage) error {
	return c.submit(ctx, sess, protocol.JoinDocument, msg.DocumentID, func(ctx context.Context) {
		if !sess.Authorize(msg.ParticipantID) {
			c.reply(ctx, sess, protocol.JoinDocument, msg.DocumentID,
				apperrors.NewInvalidOperationError("participant id does not match the authenticated identity"))
			return
		}

		doc, err := c.store.LoadDocument(ctx, msg.DocumentID)
		if err != nil {
			c.reply(ctx, sess, protocol.JoinDocument, msg.DocumentID, err)
			return
		}
		if !doc.Roles.Has(msg.ParticipantID) {
			doc, err = c.store.SaveDocument(ctx, msg.DocumentID, document.AddMember(msg.ParticipantID))
			if err != nil {
				c.reply(ctx, sess, protocol.JoinDocument, msg.DocumentID, err)
				return
			}
		}

		participants := c.presence.Join(msg.DocumentID, msg.ParticipantID, msg.DisplayName, sess.ConnectionID)
		c.logger.Info("Participant joined document",
			zap.String("roomID", msg.DocumentID),
			zap.String("participantID", msg.ParticipantID),
			zap.String("connectionID", sess.ConnectionID),
		)

		c.send(ctx, msg.DocumentID, []string{sess.ConnectionID}, protocol.LoadDocument, snapshot(doc))
		c.broadcastParticipants(ctx, msg.DocumentID, participants)

		for _, p := range c.presence.Cursors(msg.DocumentID) {
			if p.ParticipantID == msg.ParticipantID {
				continue
			}
			c.send(ctx, msg.DocumentID, []string{sess.ConnectionID}, protocol.RemoteCursor, remoteCursor(p.ParticipantID, *p.Location))
		}

		c.trackRooms()
		c.record(ctx, messaging.ParticipantJoined, msg.DocumentID, msg.ParticipantID, nil)
	})
}

// SectionChange overwrites one section's content and relays the full
// content to everyone else in the room.
func (c *Channel) SectionChange(ctx context.Context, sess *session.Session, msg *protocol.SectionChangeMessage) error {
	return c.submit(ctx, sess, protocol.SectionChange, msg.DocumentID, func(ctx context.Context) {
		if !c.joined(ctx, sess, protocol.SectionChange, msg.DocumentID, msg.ParticipantID) {
			return
		}

		patch := document.ReplaceSection(msg.SectionID, msg.SubsectionID, msg.FullContent)
		if _, err := c.store.SaveDocument(ctx, msg.DocumentID, patch); err != nil {
			if apperrors.IsStaleReference(err) {
				c.logger.Debug("Dropping change to a removed section",
					zap.String("roomID", msg.DocumentID),
					zap.String("sectionID", msg.SectionID),
					zap.String("subsectionID", msg.SubsectionID),
					zap.String("participantID", msg.ParticipantID),
				)
				if c.metrics != nil {
					c.metrics.StaleDrops.WithLabelValues(string(protocol.SectionChange)).Inc()
				}
				return
			}
			c.reply(ctx, sess, protocol.SectionChange, msg.DocumentID, err)
			return
		}

		if msg.Cursor != nil {
			nodeID := msg.SectionID
			if msg.SubsectionID != "" {
				nodeID = msg.SubsectionID
			}
			c.presence.SetCursor(msg.DocumentID, msg.ParticipantID, &presence.Location{
				NodeID: nodeID,
				Cursor: presence.Cursor{Index: msg.Cursor.Index, Length: msg.Cursor.Length},
			})
		}

		c.send(ctx, msg.DocumentID, c.presence.ConnectionIDs(msg.DocumentID, sess.ConnectionID),
			protocol.SectionChangeBroadcast, protocol.SectionChangeBroadcastMessage{
				SectionID:     msg.SectionID,
				SubsectionID:  msg.SubsectionID,
				FullContent:   msg.FullContent,
				ParticipantID: msg.ParticipantID,
				Cursor:        msg.Cursor,
			})
		c.record(ctx, messaging.SectionSaved, msg.DocumentID, msg.ParticipantID, map[string]string{
			"sectionId":    msg.SectionID,
			"subsectionId": msg.SubsectionID,
		})
	})
}

// CursorSelection records the participant's one cursor and relays it with
// the participant's color.
func (c *Channel) CursorSelection(ctx context.Context, sess *session.Session, msg *protocol.CursorSelectionMessage) error {
	return c.submit(ctx, sess, protocol.CursorSelection, msg.DocumentID, func(ctx context.Context) {
		if !c.joined(ctx, sess, protocol.CursorSelection, msg.DocumentID, msg.ParticipantID) {
			return
		}
		loc := presence.Location{
			NodeID: msg.NodeID,
			Cursor: presence.Cursor{Index: msg.Cursor.Index, Length: msg.Cursor.Length},
		}
		c.presence.SetCursor(msg.DocumentID, msg.ParticipantID, &loc)
		c.send(ctx, msg.DocumentID, c.presence.ConnectionIDs(msg.DocumentID, sess.ConnectionID),
			protocol.RemoteCursor, remoteCursor(msg.ParticipantID, loc))
	})
}

// WholeDocumentSave replaces the document contents and sends the new
// snapshot to the whole room, sender included.
func (c *Channel) WholeDocumentSave(ctx context.Context, sess *session.Session, msg *protocol.WholeDocumentSaveMessage) error {
	return c.submit(ctx, sess, protocol.WholeDocumentSave, msg.DocumentID, func(ctx context.Context) {
		p, ok := c.presence.Lookup(msg.DocumentID, sess.ConnectionID)
		if !ok {
			c.reply(ctx, sess, protocol.WholeDocumentSave, msg.DocumentID, errNotJoined)
			return
		}

		doc, err := c.store.SaveDocument(ctx, msg.DocumentID, document.ReplaceContents(msg.Contents))
		if err != nil {
			c.reply(ctx, sess, protocol.WholeDocumentSave, msg.DocumentID, err)
			return
		}

		c.send(ctx, msg.DocumentID, c.presence.ConnectionIDs(msg.DocumentID, ""),
			protocol.LoadDocumentBroadcast, snapshot(doc))
		c.record(ctx, messaging.DocumentSaved, msg.DocumentID, p.ParticipantID, nil)
	})
}

// Leave removes the participant from the room. Leaving a room one is not in
// is not an error.
func (c *Channel) Leave(ctx context.Context, sess *session.Session, msg *protocol.LeaveDocumentMessage) error {
	return c.submit(ctx, sess, protocol.LeaveDocument, msg.DocumentID, func(ctx context.Context) {
		p, ok := c.presence.Lookup(msg.DocumentID, sess.ConnectionID)
		if !ok || p.ParticipantID != msg.ParticipantID {
			return
		}
		remaining, removed := c.presence.Leave(msg.DocumentID, msg.ParticipantID)
		if !removed {
			return
		}
		c.departed(ctx, msg.DocumentID, p, remaining)
	})
}

// Disconnect removes the connection from every document room it touched.
func (c *Channel) Disconnect(ctx context.Context, sess *session.Session) {
	ctx = context.WithoutCancel(ctx)
	for _, documentID := range sess.Rooms(session.DocumentRoom) {
		documentID := documentID
		err := c.lanes.Submit(laneKey(documentID), func() {
			for {
				d, ok := c.presence.DisconnectFrom(documentID, sess.ConnectionID)
				if !ok {
					return
				}
				c.departed(ctx, documentID, d.Participant, d.Remaining)
			}
		})
		if err != nil {
			c.logger.Warn("Dropping disconnect", zap.String("roomID", documentID), zap.Error(err))
		}
	}
}

func (c *Channel) departed(ctx context.Context, documentID string, p presence.Participant, remaining []presence.Participant) {
	c.logger.Info("Participant left document",
		zap.String("roomID", documentID),
		zap.String("participantID", p.ParticipantID),
		zap.String("connectionID", p.ConnectionID),
	)
	c.broadcastParticipants(ctx, documentID, remaining)
	c.trackRooms()
	c.record(ctx, messaging.ParticipantLeft, documentID, p.ParticipantID, nil)
}

var errNotJoined = apperrors.NewInvalidOperationError("join the room first")

// joined checks that the connection holds participantID's entry in the room.
func (c *Channel) joined(ctx context.Context, sess *session.Session, event protocol.EventType, documentID, participantID string) bool {
	p, ok := c.presence.Lookup(documentID, sess.ConnectionID)
	if ok && p.ParticipantID == participantID {
		return true
	}
	c.reply(ctx, sess, event, documentID, errNotJoined)
	return false
}

func (c *Channel) broadcastParticipants(ctx context.Context, documentID string, participants []presence.Participant) {
	c.send(ctx, documentID, c.presence.ConnectionIDs(documentID, ""),
		protocol.UpdateParticipants, protocol.UpdateParticipantsMessage(participantInfos(participants)))
}

func (c *Channel) send(ctx context.Context, documentID string, connectionIDs []string, t protocol.EventType, payload any) {
	if err := c.out.Send(ctx, documentID, connectionIDs, t, payload); err != nil {
		c.logger.Warn("Failed to send event",
			zap.String("roomID", documentID),
			zap.String("event", string(t)),
			zap.Error(err),
		)
	}
}

func (c *Channel) reply(ctx context.Context, sess *session.Session, event protocol.EventType, documentID string, err error) {
	session.ReplyError(ctx, c.out, c.logger, sess, event, documentID, err)
}

func (c *Channel) trackRooms() {
	if c.metrics != nil {
		c.metrics.Rooms.WithLabelValues(string(session.DocumentRoom)).Set(float64(c.presence.Rooms()))
	}
}

func (c *Channel) record(ctx context.Context, eventType, documentID, participantID string, detail map[string]string) {
	err := c.activity.Publish(ctx, messaging.ActivityEvent{
		Type:          eventType,
		RoomKind:      string(session.DocumentRoom),
		RoomID:        documentID,
		ParticipantID: participantID,
		Detail:        detail,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		c.logger.Debug("Activity event dropped", zap.String("type", eventType), zap.Error(err))
	}
}

func snapshot(doc *document.Document) protocol.LoadDocumentMessage {
	return protocol.LoadDocumentMessage{
		DocumentID: doc.ID,
		Contents:   doc.Contents,
		Published:  doc.Published,
	}
}

func remoteCursor(participantID string, loc presence.Location) protocol.RemoteCursorMessage {
	return protocol.RemoteCursorMessage{
		ParticipantID: participantID,
		Cursor:        protocol.Cursor{Index: loc.Cursor.Index, Length: loc.Cursor.Length},
		Color:         colors.ColorFor(participantID),
		NodeID:        loc.NodeID,
	}
}

func participantInfos(participants []presence.Participant) []protocol.ParticipantInfo {
	out := make([]protocol.ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		out = append(out, protocol.ParticipantInfo{ParticipantID: p.ParticipantID, DisplayName: p.DisplayName})
	}
	return out
}
