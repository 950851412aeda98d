package handlers

import (
	"net/http"

	"coauthor-backend/internal/domain/graph"
	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/presence"
	"coauthor-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// GraphHandler handles graph-related HTTP requests
type GraphHandler struct {
	store        gateway.GraphStore
	presence     *presence.Registry
	logger       *zap.Logger
	errorHandler *errors.ErrorHandler
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(store gateway.GraphStore, registry *presence.Registry, logger *zap.Logger, errorHandler *errors.ErrorHandler) *GraphHandler {
	return &GraphHandler{
		store:        store,
		presence:     registry,
		logger:       logger,
		errorHandler: errorHandler,
	}
}

// CreateGraphRequest is the body of POST /graphs.
type CreateGraphRequest struct {
	DocumentID string `json:"documentId"`
	OwnerID    string `json:"ownerId"`
}

// CreateGraph handles POST /graphs
func (h *GraphHandler) CreateGraph(w http.ResponseWriter, r *http.Request) {
	var req CreateGraphRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	owner, err := caller(r, req.OwnerID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	g := graph.New(ulid.Make().String(), req.DocumentID, owner)
	if err := h.store.CreateGraph(r.Context(), g); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.Info("Graph created",
		zap.String("graphID", g.ID),
		zap.String("documentID", g.DocumentID),
		zap.String("participantID", owner),
	)
	respondJSON(h.logger, w, http.StatusCreated, g)
}

// GetGraph handles GET /graphs/{graphID}
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := h.store.LoadGraph(r.Context(), chi.URLParam(r, "graphID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, g)
}

// DeleteGraph handles DELETE /graphs/{graphID}
func (h *GraphHandler) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "graphID")
	g, err := h.store.LoadGraph(r.Context(), graphID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := requireOwner(r, g.Roles); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := h.store.DeleteGraph(r.Context(), graphID); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(h.logger, w, http.StatusNoContent, nil)
}

// ListParticipants handles GET /graphs/{graphID}/participants
func (h *GraphHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "graphID")
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"roomId":       graphID,
		"participants": h.presence.Participants(graphID),
	})
}
