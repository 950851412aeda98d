// Package dispatch routes decoded client frames to the room channels.
package dispatch

import (
	"context"
	"fmt"

	"coauthor-backend/internal/collab/docsync"
	"coauthor-backend/internal/collab/graphsync"
	"coauthor-backend/internal/collab/session"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/pkg/protocol"

	"go.uber.org/zap"
)

// Inbound outcomes reported to metrics.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeDropped  = "dropped"
)

// Router implements the message handler the websocket layer calls for
// every frame and every closed connection.
type Router struct {
	documents *docsync.Channel
	graphs    *graphsync.Channel
	out       session.Outbound
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewRouter creates a router. metrics may be nil.
func NewRouter(documents *docsync.Channel, graphs *graphsync.Channel, out session.Outbound, metrics *observability.Collector, logger *zap.Logger) *Router {
	return &Router{
		documents: documents,
		graphs:    graphs,
		out:       out,
		metrics:   metrics,
		logger:    logger.Named("dispatch"),
	}
}

// HandleMessage decodes one frame and queues it on its room. A frame that
// fails to decode is answered with an error event and otherwise ignored.
// The returned error means the frame could not be queued at all.
func (r *Router) HandleMessage(ctx context.Context, sess *session.Session, data []byte) error {
	t, msg, err := protocol.Decode(data)
	if err != nil {
		r.count(t, outcomeRejected)
		session.ReplyError(ctx, r.out, r.logger, sess, t, "", err)
		return nil
	}

	switch m := msg.(type) {
	case *protocol.JoinDocumentMessage:
		err = r.documents.Join(ctx, sess, m)
	case *protocol.SectionChangeMessage:
		err = r.documents.SectionChange(ctx, sess, m)
	case *protocol.CursorSelectionMessage:
		err = r.documents.CursorSelection(ctx, sess, m)
	case *protocol.WholeDocumentSaveMessage:
		err = r.documents.WholeDocumentSave(ctx, sess, m)
	case *protocol.LeaveDocumentMessage:
		err = r.documents.Leave(ctx, sess, m)
	case *protocol.JoinGraphMessage:
		err = r.graphs.Join(ctx, sess, m)
	case *protocol.NodeSelectedMessage:
		err = r.graphs.NodeSelected(ctx, sess, m)
	case *protocol.GraphUpdateMessage:
		err = r.graphs.GraphUpdate(ctx, sess, m)
	case *protocol.LeaveGraphMessage:
		err = r.graphs.Leave(ctx, sess, m)
	default:
		err = fmt.Errorf("no handler for %s", t)
	}

	if err != nil {
		r.count(t, outcomeDropped)
		r.logger.Warn("Dropping message",
			zap.String("event", string(t)),
			zap.String("connectionID", sess.ConnectionID),
			zap.Error(err),
		)
		return err
	}
	r.count(t, outcomeAccepted)
	return nil
}

// HandleDisconnect removes the connection from every room it touched.
func (r *Router) HandleDisconnect(ctx context.Context, sess *session.Session) {
	r.documents.Disconnect(ctx, sess)
	r.graphs.Disconnect(ctx, sess)
}

func (r *Router) count(t protocol.EventType, outcome string) {
	if r.metrics == nil {
		return
	}
	label := string(t)
	if !protocol.IsInbound(t) {
		label = "unknown"
	}
	r.metrics.InboundEvents.WithLabelValues(label, outcome).Inc()
}
