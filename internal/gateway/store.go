// Package gateway is the persistence boundary of the sync layer.
//
// Documents and graphs are stored as versioned JSON records in a
// RecordStore. Every write is a read-modify-write guarded by the record
// version, so two processes writing the same record never silently
// interleave.
package gateway

import (
	"context"
	"time"
)

// Kind partitions records.
type Kind string

const (
	KindDocument Kind = "document"
	KindGraph    Kind = "graph"
)

// Record is one stored aggregate.
type Record struct {
	Kind      Kind
	ID        string
	Body      []byte
	Version   int64
	UpdatedAt time.Time
}

// RecordStore is implemented by every storage backend.
//
// Get returns a NotFound AppError for a missing record. Put writes rec only
// if the stored version equals expectedVersion, where 0 means the record
// must not exist yet; otherwise it returns a Conflict AppError. Delete
// returns NotFound for a missing record.
type RecordStore interface {
	Get(ctx context.Context, kind Kind, id string) (*Record, error)
	Put(ctx context.Context, rec Record, expectedVersion int64) error
	Delete(ctx context.Context, kind Kind, id string) error
	Ping(ctx context.Context) error
}
