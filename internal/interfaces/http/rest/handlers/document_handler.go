package handlers

import (
	"net/http"

	"coauthor-backend/internal/domain/document"
	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/presence"
	"coauthor-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// DocumentHandler handles document-related HTTP requests
type DocumentHandler struct {
	store        gateway.DocumentStore
	presence     *presence.Registry
	logger       *zap.Logger
	errorHandler *errors.ErrorHandler
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(store gateway.DocumentStore, registry *presence.Registry, logger *zap.Logger, errorHandler *errors.ErrorHandler) *DocumentHandler {
	return &DocumentHandler{
		store:        store,
		presence:     registry,
		logger:       logger,
		errorHandler: errorHandler,
	}
}

// CreateDocumentRequest is the body of POST /documents. OwnerID is only
// read when authentication is disabled.
type CreateDocumentRequest struct {
	Title   string `json:"title" validate:"max=500"`
	OwnerID string `json:"ownerId"`
}

// PublishRequest is the body of PUT /documents/{documentID}/published.
type PublishRequest struct {
	Published *bool `json:"published" validate:"required"`
}

// CreateDocument handles POST /documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	owner, err := caller(r, req.OwnerID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	doc := document.New(ulid.Make().String(), owner, req.Title)
	if err := h.store.CreateDocument(r.Context(), doc); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.Info("Document created",
		zap.String("documentID", doc.ID),
		zap.String("participantID", owner),
	)
	respondJSON(h.logger, w, http.StatusCreated, doc)
}

// GetDocument handles GET /documents/{documentID}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.LoadDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /documents/{documentID}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	doc, err := h.store.LoadDocument(r.Context(), documentID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := requireOwner(r, doc.Roles); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := h.store.DeleteDocument(r.Context(), documentID); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(h.logger, w, http.StatusNoContent, nil)
}

// SetPublished handles PUT /documents/{documentID}/published
func (h *DocumentHandler) SetPublished(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	var req PublishRequest
	if err := decodeBody(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	current, err := h.store.LoadDocument(r.Context(), documentID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := requireOwner(r, current.Roles); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	doc, err := h.store.SaveDocument(r.Context(), documentID, document.SetPublished(*req.Published))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, doc)
}

// ListParticipants handles GET /documents/{documentID}/participants
func (h *DocumentHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"roomId":       documentID,
		"participants": h.presence.Participants(documentID),
	})
}
