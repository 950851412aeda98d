package graphsync

import (
	"sort"
	"sync"
)

// Selection is the node a participant advertises editing.
type Selection struct {
	ParticipantID   string
	ParticipantName string
	NodeID          string
}

// Selections is the per-room table of advisory node selections. It never
// blocks writes; it only lets late joiners render who is editing what.
type Selections struct {
	mu    sync.Mutex
	rooms map[string]map[string]Selection
}

// NewSelections creates an empty table.
func NewSelections() *Selections {
	return &Selections{rooms: make(map[string]map[string]Selection)}
}

// Set records a participant's selection, replacing the previous one.
func (s *Selections) Set(graphID string, sel Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[graphID]
	if !ok {
		room = make(map[string]Selection)
		s.rooms[graphID] = room
	}
	room[sel.ParticipantID] = sel
}

// Clear forgets a participant's selection and returns it.
func (s *Selections) Clear(graphID, participantID string) (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[graphID]
	if !ok {
		return Selection{}, false
	}
	sel, ok := room[participantID]
	delete(room, participantID)
	if len(room) == 0 {
		delete(s.rooms, graphID)
	}
	return sel, ok
}

// Room lists the current selections of a room ordered by participant id.
func (s *Selections) Room(graphID string) []Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Selection, 0, len(s.rooms[graphID]))
	for _, sel := range s.rooms[graphID] {
		out = append(out, sel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// Drop removes a whole room.
func (s *Selections) Drop(graphID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, graphID)
}

// Rooms returns the number of rooms with at least one selection.
func (s *Selections) Rooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
