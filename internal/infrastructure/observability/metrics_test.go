package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("coauthor")
	b := NewCollector("coauthor")

	a.SlowClients.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.SlowClients))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SlowClients))
}

func TestObserveStore(t *testing.T) {
	c := NewCollector("coauthor")

	c.ObserveStore("save", "document", time.Now(), nil)
	c.ObserveStore("save", "document", time.Now(), errors.New("boom"))
	c.ObserveStore("load", "graph", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.StoreOperations.WithLabelValues("save", "document", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StoreOperations.WithLabelValues("save", "document", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.StoreDuration))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector("coauthor")
	c.Connections.Set(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "coauthor_websocket_connections 3"))
}

func TestInitTracingDisabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)

	_, span := tp.Tracer().Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, tp.Shutdown(context.Background()))
}
