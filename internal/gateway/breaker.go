package gateway

import (
	"context"
	"time"

	apperrors "coauthor-backend/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the production settings.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakerStore fails fast while the wrapped store is unhealthy. Outcomes
// that describe the data rather than the store (not found, version
// conflicts) never count as failures.
type BreakerStore struct {
	next RecordStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next.
func NewBreakerStore(next RecordStore, config BreakerConfig, logger *zap.Logger) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Store circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.IsNotFound(err) || apperrors.IsConflict(err)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (s *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := s.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperrors.NewUnavailableError("record store").WithCause(err)
	}
	return out, err
}

func (s *BreakerStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	out, err := s.execute(func() (interface{}, error) {
		return s.next.Get(ctx, kind, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Record), nil
}

func (s *BreakerStore) Put(ctx context.Context, rec Record, expectedVersion int64) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.Put(ctx, rec, expectedVersion)
	})
	return err
}

func (s *BreakerStore) Delete(ctx context.Context, kind Kind, id string) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.Delete(ctx, kind, id)
	})
	return err
}

func (s *BreakerStore) Ping(ctx context.Context) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.Ping(ctx)
	})
	return err
}

// State reports the breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}
