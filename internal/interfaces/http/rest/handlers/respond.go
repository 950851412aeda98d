// Package handlers implements the REST resources for documents, graphs and
// live room participants.
package handlers

import (
	"encoding/json"
	"net/http"

	"coauthor-backend/internal/domain/membership"
	"coauthor-backend/pkg/auth"
	"coauthor-backend/pkg/errors"
	"coauthor-backend/pkg/protocol"

	"go.uber.org/zap"
)

func respondJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// decodeBody reads a JSON body into v and checks its validate tags.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewValidationError("Invalid request body")
	}
	return protocol.ValidateStruct(v)
}

// caller returns the authenticated participant, or fallback when the
// request is not authenticated.
func caller(r *http.Request, fallback string) (string, error) {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.ParticipantID(), nil
	}
	if fallback == "" {
		return "", errors.NewValidationError("ownerId is required")
	}
	return fallback, nil
}

// requireOwner rejects authenticated callers who do not own roles.
func requireOwner(r *http.Request, roles membership.Roles) error {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return nil
	}
	if roles.Owner() != claims.ParticipantID() {
		return errors.NewUnauthorizedError("Only the owner can do this")
	}
	return nil
}
