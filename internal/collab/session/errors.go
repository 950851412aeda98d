package session

import (
	"context"

	apperrors "coauthor-backend/pkg/errors"
	"coauthor-backend/pkg/protocol"

	"go.uber.org/zap"
)

// ErrorEvent maps a handler error to the error event the sender receives.
// Stale references are dropped silently and report false.
func ErrorEvent(err error, event protocol.EventType, roomID string) (protocol.ErrorMessage, bool) {
	msg := protocol.ErrorMessage{Message: err.Error(), Event: event, RoomID: roomID}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		msg.Message = appErr.Message
	}

	switch {
	case apperrors.IsStaleReference(err):
		return protocol.ErrorMessage{}, false
	case apperrors.IsNotFound(err):
		msg.Code = protocol.CodeNotFound
	case apperrors.IsInvalidOperation(err), apperrors.IsValidation(err), apperrors.IsUnauthorized(err):
		msg.Code = protocol.CodeInvalidOperation
	default:
		msg.Code = protocol.CodePersistenceFailure
	}
	return msg, true
}

// ReplyError sends the error event for err to the session alone.
func ReplyError(ctx context.Context, out Outbound, logger *zap.Logger, sess *Session, event protocol.EventType, roomID string, err error) {
	msg, ok := ErrorEvent(err, event, roomID)
	if !ok {
		return
	}
	if msg.Code == protocol.CodePersistenceFailure {
		logger.Error("Request failed",
			zap.String("event", string(event)),
			zap.String("roomID", roomID),
			zap.String("connectionID", sess.ConnectionID),
			zap.Error(err),
		)
	} else {
		logger.Debug("Request rejected",
			zap.String("event", string(event)),
			zap.String("roomID", roomID),
			zap.String("connectionID", sess.ConnectionID),
			zap.String("code", msg.Code),
			zap.Error(err),
		)
	}
	if sendErr := out.Send(ctx, roomID, []string{sess.ConnectionID}, protocol.Error, msg); sendErr != nil {
		logger.Warn("Failed to deliver error event", zap.Error(sendErr))
	}
}
