package errors_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "coauthor-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", apperrors.NewNotFoundError("document"), apperrors.IsNotFound},
		{"stale reference", apperrors.NewStaleReferenceError("section", "s1"), apperrors.IsStaleReference},
		{"invalid operation", apperrors.NewInvalidOperationError("source equals target"), apperrors.IsInvalidOperation},
		{"conflict", apperrors.NewConflictError("version mismatch"), apperrors.IsConflict},
		{"wrapped not found", fmt.Errorf("load: %w", apperrors.NewNotFoundError("graph")), apperrors.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}

	assert.False(t, apperrors.IsNotFound(fmt.Errorf("plain")))
}

func TestWrapKeepsType(t *testing.T) {
	err := apperrors.Wrap(apperrors.NewStaleReferenceError("section", "s9"), "save section")

	assert.True(t, apperrors.IsStaleReference(err))
	assert.Contains(t, err.Error(), "save section")
	assert.Nil(t, apperrors.Wrap(nil, "noop"))
}

func TestErrorHandler(t *testing.T) {
	handler := apperrors.NewErrorHandler(zap.NewNop(), false)

	t.Run("app error uses its status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/d1", nil)

		handler.Handle(rec, req, apperrors.NewNotFoundError("document"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var body apperrors.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Error)
		assert.Equal(t, "NOT_FOUND", body.Type)
		assert.Equal(t, "document not found", body.Message)
	})

	t.Run("generic error hides message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		handler.Handle(rec, req, fmt.Errorf("boom"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}
