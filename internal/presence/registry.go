// Package presence tracks which participants are connected to which room.
//
// A Registry is an explicit session store: construct one per room kind and
// inject it into the channel handlers. Rooms exist only while they have at
// least one participant.
package presence

import (
	"sort"
	"sync"
)

// Cursor is a selection inside one rich-text node.
type Cursor struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// Location places a cursor on a section or subsection.
type Location struct {
	NodeID string `json:"nodeId"`
	Cursor Cursor `json:"cursor"`
}

// Participant is a presence entry.
type Participant struct {
	ParticipantID string    `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	ConnectionID  string    `json:"-"`
	Location      *Location `json:"location,omitempty"`
}

// Departure describes a participant removed by Disconnect.
type Departure struct {
	RoomID      string
	Participant Participant
	Remaining   []Participant
}

type room struct {
	order   []string
	entries map[string]*Participant
}

// Registry maps room ids to their connected participants.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join registers or overwrites participantID in roomID and returns the room
// snapshot. Rejoining keeps the participant's original position.
func (r *Registry) Join(roomID, participantID, displayName, connectionID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{entries: make(map[string]*Participant)}
		r.rooms[roomID] = rm
	}
	if existing, ok := rm.entries[participantID]; ok {
		existing.DisplayName = displayName
		existing.ConnectionID = connectionID
		existing.Location = nil
	} else {
		rm.entries[participantID] = &Participant{
			ParticipantID: participantID,
			DisplayName:   displayName,
			ConnectionID:  connectionID,
		}
		rm.order = append(rm.order, participantID)
	}
	return rm.snapshot()
}

// Leave removes participantID from roomID. It returns the remaining
// participants and whether an entry was removed.
func (r *Registry) Leave(roomID, participantID string) ([]Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, ok := rm.entries[participantID]; !ok {
		return rm.snapshot(), false
	}
	r.remove(roomID, rm, participantID)
	return rm.snapshot(), true
}

// Disconnect removes every entry owned by connectionID, across all rooms.
func (r *Registry) Disconnect(connectionID string) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	var departures []Departure
	for roomID := range r.rooms {
		for {
			d, ok := r.disconnectFrom(roomID, connectionID)
			if !ok {
				break
			}
			departures = append(departures, d)
		}
	}
	sort.SliceStable(departures, func(i, j int) bool {
		return departures[i].RoomID < departures[j].RoomID
	})
	return departures
}

// DisconnectFrom removes one entry connectionID holds in a room. Call it
// until it reports false to remove them all.
func (r *Registry) DisconnectFrom(roomID, connectionID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnectFrom(roomID, connectionID)
}

func (r *Registry) disconnectFrom(roomID, connectionID string) (Departure, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return Departure{}, false
	}
	for _, pid := range rm.order {
		p := rm.entries[pid]
		if p.ConnectionID != connectionID {
			continue
		}
		gone := *p
		r.remove(roomID, rm, pid)
		return Departure{RoomID: roomID, Participant: gone, Remaining: rm.snapshot()}, true
	}
	return Departure{}, false
}

// Participants returns the room snapshot in join order.
func (r *Registry) Participants(roomID string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return []Participant{}
	}
	return rm.snapshot()
}

// Lookup finds the entry a connection holds in a room.
func (r *Registry) Lookup(roomID, connectionID string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return Participant{}, false
	}
	for _, pid := range rm.order {
		if p := rm.entries[pid]; p.ConnectionID == connectionID {
			return *p, true
		}
	}
	return Participant{}, false
}

// SetCursor records a participant's single cursor, replacing any previous
// one. A nil location clears it.
func (r *Registry) SetCursor(roomID, participantID string, loc *Location) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	p, ok := rm.entries[participantID]
	if !ok {
		return false
	}
	if loc != nil {
		copied := *loc
		loc = &copied
	}
	p.Location = loc
	return true
}

// Cursors returns the participants of a room that have a known cursor.
func (r *Registry) Cursors(roomID string) []Participant {
	var out []Participant
	for _, p := range r.Participants(roomID) {
		if p.Location != nil {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionIDs lists the connections in a room, optionally skipping one.
func (r *Registry) ConnectionIDs(roomID, except string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rm.order))
	for _, pid := range rm.order {
		if cid := rm.entries[pid].ConnectionID; cid != except {
			ids = append(ids, cid)
		}
	}
	return ids
}

// Rooms returns the number of live rooms.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) remove(roomID string, rm *room, participantID string) {
	delete(rm.entries, participantID)
	for i, pid := range rm.order {
		if pid == participantID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	if len(rm.order) == 0 {
		delete(r.rooms, roomID)
	}
}

func (rm *room) snapshot() []Participant {
	out := make([]Participant, 0, len(rm.order))
	for _, pid := range rm.order {
		p := *rm.entries[pid]
		if p.Location != nil {
			loc := *p.Location
			p.Location = &loc
		}
		out = append(out, p)
	}
	return out
}
