package gateway

import (
	"context"
	"encoding/json"
	"time"

	"coauthor-backend/internal/domain/document"
	"coauthor-backend/internal/domain/graph"
	"coauthor-backend/internal/infrastructure/observability"
	apperrors "coauthor-backend/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DocumentStore is the document half of the persistence contract.
type DocumentStore interface {
	LoadDocument(ctx context.Context, id string) (*document.Document, error)
	SaveDocument(ctx context.Context, id string, patch document.Patch) (*document.Document, error)
	CreateDocument(ctx context.Context, doc *document.Document) error
	DeleteDocument(ctx context.Context, id string) error
}

// GraphStore is the graph half of the persistence contract.
type GraphStore interface {
	LoadGraph(ctx context.Context, id string) (*graph.Graph, error)
	SaveGraph(ctx context.Context, id string, patch graph.Patch) (*graph.Graph, error)
	CreateGraph(ctx context.Context, g *graph.Graph) error
	DeleteGraph(ctx context.Context, id string) error
}

// DefaultMaxAttempts bounds the read-modify-write loop when the stored
// version keeps moving underneath a save.
const DefaultMaxAttempts = 3

// Gateway implements DocumentStore and GraphStore over a RecordStore.
//
// Errors leave the gateway as AppErrors: NotFound for a missing aggregate,
// StaleReference or InvalidOperation when the patch does not fit the stored
// state, and PersistenceFailure for everything the store itself reports.
type Gateway struct {
	store       RecordStore
	logger      *zap.Logger
	metrics     *observability.Collector
	tracer      trace.Tracer
	maxAttempts int
}

// New creates a gateway. metrics may be nil.
func New(store RecordStore, logger *zap.Logger, metrics *observability.Collector, tracer trace.Tracer) *Gateway {
	return &Gateway{
		store:       store,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Ping checks the underlying store.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}

func (g *Gateway) LoadDocument(ctx context.Context, id string) (doc *document.Document, err error) {
	ctx, done := g.observe(ctx, "load", KindDocument, id)
	defer func() { done(err) }()

	doc, _, err = g.loadDocument(ctx, id)
	return doc, err
}

func (g *Gateway) loadDocument(ctx context.Context, id string) (*document.Document, int64, error) {
	rec, err := g.store.Get(ctx, KindDocument, id)
	if err != nil {
		return nil, 0, g.translate("load document", err)
	}
	var doc document.Document
	if err := json.Unmarshal(rec.Body, &doc); err != nil {
		return nil, 0, apperrors.NewPersistenceFailure("decode document", err)
	}
	doc.Version = rec.Version
	return &doc, rec.Version, nil
}

// SaveDocument applies patch to the stored document and writes it back. A
// patch that changes nothing is not written.
func (g *Gateway) SaveDocument(ctx context.Context, id string, patch document.Patch) (doc *document.Document, err error) {
	ctx, done := g.observe(ctx, "save", KindDocument, id)
	defer func() { done(err) }()

	for attempt := 1; ; attempt++ {
		doc, version, err := g.loadDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := doc.Apply(patch)
		if err != nil {
			return nil, err
		}
		if !changed {
			return doc, nil
		}

		err = g.write(ctx, KindDocument, id, doc, version, func(v int64, t time.Time) {
			doc.Version, doc.UpdatedAt = v, t
		})
		if err == nil {
			return doc, nil
		}
		if !apperrors.IsConflict(err) || attempt >= g.maxAttempts {
			return nil, g.translate("save document", err)
		}
		g.logger.Debug("Document version moved, retrying save",
			zap.String("documentID", id),
			zap.Int("attempt", attempt),
		)
	}
}

func (g *Gateway) CreateDocument(ctx context.Context, doc *document.Document) (err error) {
	ctx, done := g.observe(ctx, "create", KindDocument, doc.ID)
	defer func() { done(err) }()

	if err := doc.Validate(); err != nil {
		return err
	}
	err = g.write(ctx, KindDocument, doc.ID, doc, 0, func(v int64, t time.Time) {
		doc.Version, doc.UpdatedAt = v, t
	})
	if err != nil && apperrors.IsConflict(err) {
		return err
	}
	return g.translate("create document", err)
}

func (g *Gateway) DeleteDocument(ctx context.Context, id string) (err error) {
	ctx, done := g.observe(ctx, "delete", KindDocument, id)
	defer func() { done(err) }()

	return g.translate("delete document", g.store.Delete(ctx, KindDocument, id))
}

func (g *Gateway) LoadGraph(ctx context.Context, id string) (gr *graph.Graph, err error) {
	ctx, done := g.observe(ctx, "load", KindGraph, id)
	defer func() { done(err) }()

	gr, _, err = g.loadGraph(ctx, id)
	return gr, err
}

func (g *Gateway) loadGraph(ctx context.Context, id string) (*graph.Graph, int64, error) {
	rec, err := g.store.Get(ctx, KindGraph, id)
	if err != nil {
		return nil, 0, g.translate("load graph", err)
	}
	var gr graph.Graph
	if err := json.Unmarshal(rec.Body, &gr); err != nil {
		return nil, 0, apperrors.NewPersistenceFailure("decode graph", err)
	}
	gr.Version = rec.Version
	return &gr, rec.Version, nil
}

// SaveGraph applies patch to the stored graph and writes it back.
func (g *Gateway) SaveGraph(ctx context.Context, id string, patch graph.Patch) (gr *graph.Graph, err error) {
	ctx, done := g.observe(ctx, "save", KindGraph, id)
	defer func() { done(err) }()

	for attempt := 1; ; attempt++ {
		gr, version, err := g.loadGraph(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := gr.Apply(patch)
		if err != nil {
			return nil, err
		}
		if !changed {
			return gr, nil
		}

		err = g.write(ctx, KindGraph, id, gr, version, func(v int64, t time.Time) {
			gr.Version, gr.UpdatedAt = v, t
		})
		if err == nil {
			return gr, nil
		}
		if !apperrors.IsConflict(err) || attempt >= g.maxAttempts {
			return nil, g.translate("save graph", err)
		}
		g.logger.Debug("Graph version moved, retrying save",
			zap.String("graphID", id),
			zap.Int("attempt", attempt),
		)
	}
}

func (g *Gateway) CreateGraph(ctx context.Context, gr *graph.Graph) (err error) {
	ctx, done := g.observe(ctx, "create", KindGraph, gr.ID)
	defer func() { done(err) }()

	if err := gr.Validate(); err != nil {
		return err
	}
	err = g.write(ctx, KindGraph, gr.ID, gr, 0, func(v int64, t time.Time) {
		gr.Version, gr.UpdatedAt = v, t
	})
	if err != nil && apperrors.IsConflict(err) {
		return err
	}
	return g.translate("create graph", err)
}

func (g *Gateway) DeleteGraph(ctx context.Context, id string) (err error) {
	ctx, done := g.observe(ctx, "delete", KindGraph, id)
	defer func() { done(err) }()

	return g.translate("delete graph", g.store.Delete(ctx, KindGraph, id))
}

// write stamps the next version onto the aggregate through stamp, then
// stores it conditioned on expected.
func (g *Gateway) write(ctx context.Context, kind Kind, id string, aggregate any, expected int64, stamp func(int64, time.Time)) error {
	now := time.Now().UTC()
	stamp(expected+1, now)

	body, err := json.Marshal(aggregate)
	if err != nil {
		return apperrors.NewPersistenceFailure("encode "+string(kind), err)
	}
	return g.store.Put(ctx, Record{
		Kind:      kind,
		ID:        id,
		Body:      body,
		Version:   expected + 1,
		UpdatedAt: now,
	}, expected)
}

// translate keeps NotFound and PersistenceFailure as they are and wraps
// every other store error as a PersistenceFailure.
func (g *Gateway) translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsNotFound(err) || apperrors.IsType(err, apperrors.ErrorTypePersistenceFailure) {
		return err
	}
	return apperrors.NewPersistenceFailure(operation, err)
}

func (g *Gateway) observe(ctx context.Context, operation string, kind Kind, id string) (context.Context, func(error)) {
	started := time.Now()
	var span trace.Span
	if g.tracer != nil {
		ctx, span = g.tracer.Start(ctx, "gateway."+operation+"_"+string(kind),
			trace.WithAttributes(
				attribute.String("coauthor.kind", string(kind)),
				attribute.String("coauthor.id", id),
			),
		)
	}
	return ctx, func(err error) {
		if g.metrics != nil {
			g.metrics.ObserveStore(operation, string(kind), started, err)
		}
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}
	}
}
