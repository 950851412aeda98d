// Package client is a Go SDK for the collaboration service: a websocket
// connection speaking the event protocol, plus the client-side halves of
// document and graph synchronization.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"coauthor-backend/pkg/protocol"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DialInitialInterval is the first wait between dial attempts.
	DialInitialInterval = 200 * time.Millisecond
	// DialMaxInterval caps the wait between dial attempts.
	DialMaxInterval = 5 * time.Second
	// DefaultDialRetries bounds the attempts after the first one.
	DefaultDialRetries = 5

	eventBufferSize = 256
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("client: connection closed")

// Event is one decoded server frame.
type Event struct {
	Type    protocol.EventType
	Payload any
}

// Options configure Dial.
type Options struct {
	// Token is sent as a bearer token on the upgrade request.
	Token string
	// MaxRetries bounds redials after the first failure.
	MaxRetries uint64
	Logger     *zap.Logger
	Dialer     *websocket.Dialer
}

// Conn is a websocket connection to the service. Sends are safe for
// concurrent use; events are read by a background goroutine and queued.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	events  chan Event
	done    chan struct{}
	err     error
	once    sync.Once
	logger  *zap.Logger
}

// Dial connects to url, retrying with exponential backoff until ctx ends or
// the retry budget is spent. Authentication failures are not retried.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultDialRetries
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	var ws *websocket.Conn
	operation := func() error {
		conn, resp, err := opts.Dialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(fmt.Errorf("dial rejected: %s", resp.Status))
			}
			return err
		}
		ws = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		opts.Logger.Debug("Dial failed, retrying",
			zap.String("url", url),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(operation, newDialBackoff(ctx, opts.MaxRetries), notify); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Conn{
		ws:     ws,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
	go c.readLoop()
	return c, nil
}

func newDialBackoff(ctx context.Context, retries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DialInitialInterval
	b.MaxInterval = DialMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		t, payload, err := protocol.DecodeServer(data)
		if err != nil {
			c.logger.Warn("Skipping undecodable frame", zap.Error(err))
			continue
		}
		select {
		case c.events <- Event{Type: t, Payload: payload}:
		case <-c.done:
			return
		}
	}
}

// Send encodes and writes one event.
func (c *Conn) Send(t protocol.EventType, payload any) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Events returns the queue of decoded server events. It is closed when the
// connection ends.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Next waits for the next event.
func (c *Conn) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return Event{}, c.Err()
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Expect waits for the next event of type t, discarding others.
func (c *Conn) Expect(ctx context.Context, t protocol.EventType) (Event, error) {
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return Event{}, err
		}
		if ev.Type == t {
			return ev, nil
		}
	}
}

// Err reports why the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a close frame and releases the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.fail(ErrClosed)
	return c.ws.Close()
}

func (c *Conn) fail(err error) {
	c.once.Do(func() {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			err = ErrClosed
		}
		c.err = err
		close(c.done)
	})
}
