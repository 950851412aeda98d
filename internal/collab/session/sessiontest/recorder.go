// Package sessiontest provides an in-memory outbound for channel tests.
package sessiontest

import (
	"context"
	"encoding/json"
	"sync"

	"coauthor-backend/pkg/protocol"
)

// Sent is one recorded delivery.
type Sent struct {
	RoomID        string
	ConnectionIDs []string
	Type          protocol.EventType
	Payload       any
}

// Recorder records every Send.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) Send(_ context.Context, roomID string, connectionIDs []string, t protocol.EventType, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{
		RoomID:        roomID,
		ConnectionIDs: append([]string(nil), connectionIDs...),
		Type:          t,
		Payload:       payload,
	})
	return nil
}

// All returns every delivery in order.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// To returns the deliveries addressed to connectionID.
func (r *Recorder) To(connectionID string) []Sent {
	var out []Sent
	for _, s := range r.All() {
		for _, id := range s.ConnectionIDs {
			if id == connectionID {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// OfType filters deliveries addressed to connectionID by event type.
func (r *Recorder) OfType(connectionID string, t protocol.EventType) []Sent {
	var out []Sent
	for _, s := range r.To(connectionID) {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// Decode round-trips a payload through JSON into out, as a client would
// see it.
func Decode(payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
