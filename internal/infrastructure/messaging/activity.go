package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// Activity event types.
const (
	ParticipantJoined = "participant.joined"
	ParticipantLeft   = "participant.left"
	SectionSaved      = "section.saved"
	DocumentSaved     = "document.saved"
	GraphSaved        = "graph.saved"
)

// SourceCoauthor is the EventBridge source of every activity event.
const SourceCoauthor = "coauthor.sync"

// eventBridgeBatchSize is the PutEvents entry limit.
const eventBridgeBatchSize = 10

// ErrQueueFull is returned when the async queue cannot take more events.
var ErrQueueFull = errors.New("activity queue is full")

// ActivityEvent records something a participant did in a room.
type ActivityEvent struct {
	Type          string            `json:"type"`
	RoomKind      string            `json:"roomKind"`
	RoomID        string            `json:"roomId"`
	ParticipantID string            `json:"participantId,omitempty"`
	Detail        map[string]string `json:"detail,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
}

// ActivityPublisher ships activity events out of the process.
type ActivityPublisher interface {
	Publish(ctx context.Context, events ...ActivityEvent) error
}

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher sends activity events with PutEvents.
type EventBridgePublisher struct {
	client       EventBridgeAPI
	eventBusName string
	source       string
	logger       *zap.Logger
}

// NewEventBridgePublisher creates a publisher for eventBusName.
func NewEventBridgePublisher(client EventBridgeAPI, eventBusName string, logger *zap.Logger) *EventBridgePublisher {
	if eventBusName == "" {
		eventBusName = "default"
	}
	return &EventBridgePublisher{
		client:       client,
		eventBusName: eventBusName,
		source:       SourceCoauthor,
		logger:       logger,
	}
}

// Publish sends events in batches of ten.
func (p *EventBridgePublisher) Publish(ctx context.Context, events ...ActivityEvent) error {
	for i := 0; i < len(events); i += eventBridgeBatchSize {
		end := i + eventBridgeBatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := p.publishBatch(ctx, events[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, events []ActivityEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	for _, event := range events {
		detail, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal activity event",
				zap.Error(err),
				zap.String("eventType", event.Type),
			)
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.Type),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.OccurredAt),
			Resources:    []string{fmt.Sprintf("coauthor:%s:%s", event.RoomKind, event.RoomID)},
		})
	}
	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil && i < len(events) {
				p.logger.Error("Failed to publish activity event",
					zap.String("eventType", events[i].Type),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d activity events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Published activity events", zap.Int("count", len(entries)))
	return nil
}

// AsyncPublisher queues events and flushes them from a background worker,
// so room handlers never wait on EventBridge.
type AsyncPublisher struct {
	publisher     ActivityPublisher
	queue         chan ActivityEvent
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
	flushInterval time.Duration
	logger        *zap.Logger
}

// NewAsyncPublisher starts the background worker.
func NewAsyncPublisher(publisher ActivityPublisher, queueSize int, flushInterval time.Duration, logger *zap.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = 100 * time.Millisecond
	}
	p := &AsyncPublisher{
		publisher:     publisher,
		queue:         make(chan ActivityEvent, queueSize),
		done:          make(chan struct{}),
		flushInterval: flushInterval,
		logger:        logger,
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

// Publish enqueues events without blocking.
func (p *AsyncPublisher) Publish(ctx context.Context, events ...ActivityEvent) error {
	for _, event := range events {
		select {
		case <-p.done:
			return ErrQueueFull
		default:
		}
		select {
		case p.queue <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			return ErrQueueFull
		}
	}
	return nil
}

func (p *AsyncPublisher) worker() {
	defer p.wg.Done()
	batch := make([]ActivityEvent, 0, eventBridgeBatchSize)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.publishBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case event := <-p.queue:
			batch = append(batch, event)
			if len(batch) >= eventBridgeBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.done:
			for {
				select {
				case event := <-p.queue:
					batch = append(batch, event)
					if len(batch) >= eventBridgeBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (p *AsyncPublisher) publishBatch(events []ActivityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.publisher.Publish(ctx, events...); err != nil {
		p.logger.Error("Failed to publish activity events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

// Close flushes queued events and stops the worker.
func (p *AsyncPublisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, ...ActivityEvent) error { return nil }
