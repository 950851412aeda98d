// Package graph models the shared concept map: nodes, typed links and the
// derived depth of every node.
package graph

import (
	"time"

	"coauthor-backend/internal/domain/membership"
	apperrors "coauthor-backend/pkg/errors"
)

// Node is a concept on the map. FX/FY pin the node when set.
type Node struct {
	ID           string   `json:"id" validate:"required"`
	Text         string   `json:"text"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	FX           *float64 `json:"fx,omitempty"`
	FY           *float64 `json:"fy,omitempty"`
	Depth        int      `json:"depth" validate:"gte=0"`
	Image        string   `json:"image,omitempty"`
	ImageDeleted bool     `json:"imageDeleted,omitempty"`
}

// Link is a directed relation between two nodes.
type Link struct {
	Source   string `json:"source" validate:"required"`
	Target   string `json:"target" validate:"required"`
	Relation string `json:"relation"`
}

// DepthColors assigns one color per depth level.
type DepthColors map[int]string

// State is the replaceable part of a graph: what a graph-update carries.
type State struct {
	Nodes       []Node      `json:"nodes" validate:"dive"`
	Links       []Link      `json:"links" validate:"dive"`
	DepthColors DepthColors `json:"depthColors,omitempty"`
}

// Graph is the persisted aggregate.
type Graph struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId,omitempty"`
	State
	Roles     membership.Roles `json:"roles"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// New creates an empty graph owned by ownerID.
func New(id, documentID, ownerID string) *Graph {
	now := time.Now().UTC()
	return &Graph{
		ID:         id,
		DocumentID: documentID,
		State:      State{Nodes: []Node{}, Links: []Link{}, DepthColors: DepthColors{}},
		Roles:      membership.NewRoles(ownerID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks ids and role invariants.
func (g *Graph) Validate() error {
	if g.ID == "" {
		return apperrors.NewValidationError("graph id is required")
	}
	if err := g.Roles.Validate(); err != nil {
		return err
	}
	return g.State.Validate()
}

// Validate checks that node ids are unique and that every link joins two
// existing nodes.
func (s *State) Validate() error {
	ids := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return apperrors.NewInvalidOperationError("node id is required")
		}
		if _, dup := ids[n.ID]; dup {
			return apperrors.NewInvalidOperationError("duplicate node id '" + n.ID + "'")
		}
		ids[n.ID] = struct{}{}
	}
	for _, l := range s.Links {
		if _, ok := ids[l.Source]; !ok {
			return apperrors.NewInvalidOperationError("link source '" + l.Source + "' does not exist")
		}
		if _, ok := ids[l.Target]; !ok {
			return apperrors.NewInvalidOperationError("link target '" + l.Target + "' does not exist")
		}
	}
	return nil
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := State{
		Nodes: make([]Node, len(s.Nodes)),
		Links: append([]Link{}, s.Links...),
	}
	for i, n := range s.Nodes {
		if n.FX != nil {
			fx := *n.FX
			n.FX = &fx
		}
		if n.FY != nil {
			fy := *n.FY
			n.FY = &fy
		}
		out.Nodes[i] = n
	}
	if s.DepthColors != nil {
		out.DepthColors = make(DepthColors, len(s.DepthColors))
		for k, v := range s.DepthColors {
			out.DepthColors[k] = v
		}
	}
	return out
}

// Node returns the node with the given id.
func (s *State) Node(id string) (*Node, bool) {
	i := s.index(id)
	if i < 0 {
		return nil, false
	}
	return &s.Nodes[i], true
}

func (s *State) index(id string) int {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Patch is a change persisted through the gateway. Exactly one field is set.
type Patch struct {
	State     *State
	AddMember string
}

// ReplaceState builds a full-state patch.
func ReplaceState(s State) Patch {
	return Patch{State: &s}
}

// AddMember builds a patch granting the editor role.
func AddMember(participantID string) Patch {
	return Patch{AddMember: participantID}
}

// Apply mutates g and reports whether anything changed.
func (g *Graph) Apply(p Patch) (bool, error) {
	changed := false
	switch {
	case p.State != nil:
		if err := p.State.Validate(); err != nil {
			return false, err
		}
		colors := g.DepthColors
		g.State = p.State.Clone()
		if g.DepthColors == nil {
			g.DepthColors = colors
		}
		if g.Nodes == nil {
			g.Nodes = []Node{}
		}
		if g.Links == nil {
			g.Links = []Link{}
		}
		changed = true
	case p.AddMember != "":
		if g.Roles == nil {
			return false, apperrors.NewInvalidOperationError("graph has no owner")
		}
		changed = g.Roles.AddEditor(p.AddMember)
	default:
		return false, apperrors.NewInvalidOperationError("empty graph patch")
	}

	if changed {
		g.UpdatedAt = time.Now().UTC()
	}
	return changed, nil
}
