package client

import (
	"sort"
	"sync"

	"coauthor-backend/internal/domain/graph"
	"coauthor-backend/pkg/colors"
	apperrors "coauthor-backend/pkg/errors"
	"coauthor-backend/pkg/protocol"

	"github.com/oklog/ulid/v2"
)

// RelationMode is the state of the interactive add-relation gesture.
type RelationMode int

const (
	Idle RelationMode = iota
	SourceArmed
)

func (m RelationMode) String() string {
	if m == SourceArmed {
		return "source-armed"
	}
	return "idle"
}

// GraphEditor is the client-side state of one concept map: the graph, the
// advisory map of who is editing which node, the local selection and the
// add-relation gesture. Every mutation recomputes depths, fills in missing
// depth colors and returns the graph-update to send.
type GraphEditor struct {
	mu              sync.RWMutex
	graphID         string
	participantID   string
	participantName string
	state           graph.State
	members         map[string]string
	editors         map[string]map[string]struct{}
	selected        string
	mode            RelationMode
	source          string
	relation        string
}

// NewGraphEditor creates an editor for graphID.
func NewGraphEditor(graphID, participantID, participantName string) *GraphEditor {
	return &GraphEditor{
		graphID:         graphID,
		participantID:   participantID,
		participantName: participantName,
		members:         make(map[string]string),
		editors:         make(map[string]map[string]struct{}),
	}
}

// JoinMessage is the join-graph request for this editor.
func (e *GraphEditor) JoinMessage() protocol.JoinGraphMessage {
	return protocol.JoinGraphMessage{GraphID: e.graphID, ParticipantID: e.participantID, DisplayName: e.participantName}
}

// LeaveMessage is the leave-graph request for this editor.
func (e *GraphEditor) LeaveMessage() protocol.LeaveGraphMessage {
	return protocol.LeaveGraphMessage{GraphID: e.graphID, ParticipantID: e.participantID, DisplayName: e.participantName}
}

// Handle applies a server event for this graph.
func (e *GraphEditor) Handle(ev Event) {
	switch msg := ev.Payload.(type) {
	case *protocol.LoadGraphMessage:
		if msg.GraphID != e.graphID {
			return
		}
		e.mu.Lock()
		e.members = make(map[string]string, len(msg.Members))
		for _, m := range msg.Members {
			e.members[m.ParticipantID] = string(m.Role)
		}
		e.replace(msg.State)
		e.mu.Unlock()
	case *protocol.GraphUpdateMessage:
		if msg.GraphID != e.graphID {
			return
		}
		e.mu.Lock()
		e.replace(msg.State)
		e.mu.Unlock()
	case *protocol.NodeSelectedMessage:
		if msg.GraphID == e.graphID {
			e.MarkEditing(msg.ParticipantName, msg.NodeID)
		}
	}
}

// replace discards the local graph for s. Selections on nodes that are gone
// are dropped.
func (e *GraphEditor) replace(s graph.State) {
	prev := e.state.DepthColors
	e.state = s.Clone()
	if e.state.DepthColors == nil {
		e.state.DepthColors = prev
	}
	for nodeID := range e.editors {
		if _, ok := e.state.Node(nodeID); !ok {
			delete(e.editors, nodeID)
		}
	}
	if _, ok := e.state.Node(e.selected); !ok {
		e.selected = ""
	}
	if _, ok := e.state.Node(e.source); !ok {
		e.mode, e.source = Idle, ""
	}
}

// MarkEditing moves name onto nodeID in the advisory map, removing it from
// every other node. A nil nodeID clears name everywhere.
func (e *GraphEditor) MarkEditing(name string, nodeID *string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, names := range e.editors {
		if nodeID != nil && id == *nodeID {
			continue
		}
		delete(names, name)
		if len(names) == 0 {
			delete(e.editors, id)
		}
	}
	if nodeID == nil {
		return
	}
	names, ok := e.editors[*nodeID]
	if !ok {
		names = make(map[string]struct{})
		e.editors[*nodeID] = names
	}
	names[name] = struct{}{}
}

// Editors returns who is advertising edits on nodeID, sorted.
func (e *GraphEditor) Editors(nodeID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.editors[nodeID]))
	for name := range e.editors[nodeID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Select makes nodeID the local selection and returns the node-selected to
// send.
func (e *GraphEditor) Select(nodeID string) (protocol.NodeSelectedMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.state.Node(nodeID); !ok {
		return protocol.NodeSelectedMessage{}, apperrors.NewStaleReferenceError("node", nodeID)
	}
	e.selected = nodeID
	id := nodeID
	return protocol.NodeSelectedMessage{GraphID: e.graphID, NodeID: &id, ParticipantName: e.participantName}, nil
}

// ClearSelection drops the local selection and returns the node-selected
// that clears it for everyone.
func (e *GraphEditor) ClearSelection() protocol.NodeSelectedMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = ""
	return protocol.NodeSelectedMessage{GraphID: e.graphID, ParticipantName: e.participantName}
}

// Selected returns the local selection.
func (e *GraphEditor) Selected() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selected, e.selected != ""
}

// StartRelation arms the add-relation gesture with the selected node as
// source.
func (e *GraphEditor) StartRelation(relation string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected == "" {
		return apperrors.NewInvalidOperationError("select a source node first")
	}
	e.mode, e.source, e.relation = SourceArmed, e.selected, relation
	return nil
}

// ClickNode completes an armed relation at target. Picking the source
// again, or a target the relation cannot reach, is rejected and leaves the
// gesture armed. With no gesture armed it returns nil.
func (e *GraphEditor) ClickNode(target string) (*protocol.GraphUpdateMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != SourceArmed {
		return nil, nil
	}
	if target == e.source {
		return nil, apperrors.NewInvalidOperationError("a relation needs two different nodes")
	}
	if err := e.state.AddRelation(e.source, target, e.relation); err != nil {
		return nil, err
	}
	e.mode, e.source, e.relation = Idle, "", ""
	msg := e.update()
	return &msg, nil
}

// CancelRelation returns to Idle without changing the graph, as when the
// participant clicks empty space.
func (e *GraphEditor) CancelRelation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode, e.source, e.relation = Idle, "", ""
}

// Mode reports the add-relation state.
func (e *GraphEditor) Mode() RelationMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// AddNode creates a standalone node with a fresh id.
func (e *GraphEditor) AddNode(text string, x, y float64) (string, protocol.GraphUpdateMessage, error) {
	id := ulid.Make().String()
	msg, err := e.mutate(func(s *graph.State) error {
		return s.AddNode(graph.Node{ID: id, Text: text, X: x, Y: y})
	})
	return id, msg, err
}

// AddRelation links source to target directly, outside the gesture.
func (e *GraphEditor) AddRelation(source, target, relation string) (protocol.GraphUpdateMessage, error) {
	return e.mutate(func(s *graph.State) error { return s.AddRelation(source, target, relation) })
}

// DeleteNode removes a node and its links.
func (e *GraphEditor) DeleteNode(id string) (protocol.GraphUpdateMessage, error) {
	return e.mutate(func(s *graph.State) error { return s.DeleteNode(id) })
}

// DeleteLink removes one relation.
func (e *GraphEditor) DeleteLink(source, target string) (protocol.GraphUpdateMessage, error) {
	return e.mutate(func(s *graph.State) error { return s.DeleteLink(source, target) })
}

// RenameNode changes a node's text.
func (e *GraphEditor) RenameNode(id, text string) (protocol.GraphUpdateMessage, error) {
	return e.mutate(func(s *graph.State) error { return s.RenameNode(id, text) })
}

// MoveNode repositions a node; pin fixes it in place.
func (e *GraphEditor) MoveNode(id string, x, y float64, pin bool) (protocol.GraphUpdateMessage, error) {
	return e.mutate(func(s *graph.State) error { return s.MoveNode(id, x, y, pin) })
}

// MarkImageDeleted flags a node's image as removed.
func (e *GraphEditor) MarkImageDeleted(id string) (protocol.GraphUpdateMessage, error) {
	return e.mutate(func(s *graph.State) error { return s.MarkImageDeleted(id) })
}

// SetDepthColor recolors a depth level.
func (e *GraphEditor) SetDepthColor(depth int, color string) (protocol.GraphUpdateMessage, error) {
	return e.mutate(func(s *graph.State) error { return s.SetDepthColor(depth, color) })
}

// mutate applies fn to a copy of the graph and adopts it only on success.
func (e *GraphEditor) mutate(fn func(*graph.State) error) (protocol.GraphUpdateMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	if err := fn(&next); err != nil {
		return protocol.GraphUpdateMessage{}, err
	}
	e.state = next
	if _, ok := e.state.Node(e.selected); !ok {
		e.selected = ""
	}
	return e.update(), nil
}

func (e *GraphEditor) update() protocol.GraphUpdateMessage {
	e.state.EnsureDepthColors(colors.DepthColor)
	return protocol.GraphUpdateMessage{GraphID: e.graphID, State: e.state.Clone()}
}

// State returns a copy of the graph.
func (e *GraphEditor) State() graph.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Role returns a member's role from the last load.
func (e *GraphEditor) Role(participantID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.members[participantID]
	return r, ok
}
