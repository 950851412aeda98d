package graph

import (
	apperrors "coauthor-backend/pkg/errors"
)

// AddNode appends a standalone node at depth 0.
func (s *State) AddNode(n Node) error {
	if n.ID == "" {
		return apperrors.NewInvalidOperationError("node id is required")
	}
	if s.index(n.ID) >= 0 {
		return apperrors.NewInvalidOperationError("node '" + n.ID + "' already exists")
	}
	n.Depth = 0
	s.Nodes = append(s.Nodes, n)
	return nil
}

// AddRelation links source to target. The new link becomes target's parent,
// so target and its descendants move to source.depth+1 and below.
func (s *State) AddRelation(source, target, relation string) error {
	if source == target {
		return apperrors.NewInvalidOperationError("a relation needs two different nodes")
	}
	if s.index(source) < 0 {
		return apperrors.NewInvalidOperationError("node '" + source + "' does not exist")
	}
	if s.index(target) < 0 {
		return apperrors.NewInvalidOperationError("node '" + target + "' does not exist")
	}
	for _, l := range s.Links {
		if l.Source == source && l.Target == target {
			return apperrors.NewInvalidOperationError("relation already exists")
		}
	}
	if s.reaches(target, source) {
		return apperrors.NewInvalidOperationError("relation would create a cycle")
	}

	s.Links = append(s.Links, Link{Source: source, Target: target, Relation: relation})
	s.RecomputeDepths()
	return nil
}

// DeleteNode removes a node and every link touching it. Former children
// fall back to another parent if they have one, otherwise become roots.
func (s *State) DeleteNode(id string) error {
	i := s.index(id)
	if i < 0 {
		return apperrors.NewStaleReferenceError("node", id)
	}
	s.Nodes = append(s.Nodes[:i], s.Nodes[i+1:]...)

	links := s.Links[:0]
	for _, l := range s.Links {
		if l.Source != id && l.Target != id {
			links = append(links, l)
		}
	}
	s.Links = links
	s.RecomputeDepths()
	return nil
}

// DeleteLink removes the relation from source to target.
func (s *State) DeleteLink(source, target string) error {
	found := false
	links := s.Links[:0]
	for _, l := range s.Links {
		if l.Source == source && l.Target == target {
			found = true
			continue
		}
		links = append(links, l)
	}
	s.Links = links
	if !found {
		return apperrors.NewStaleReferenceError("link", source+"->"+target)
	}
	s.RecomputeDepths()
	return nil
}

// RenameNode changes a node's display text.
func (s *State) RenameNode(id, text string) error {
	n, ok := s.Node(id)
	if !ok {
		return apperrors.NewStaleReferenceError("node", id)
	}
	n.Text = text
	return nil
}

// MoveNode sets a node's position; pin fixes it there.
func (s *State) MoveNode(id string, x, y float64, pin bool) error {
	n, ok := s.Node(id)
	if !ok {
		return apperrors.NewStaleReferenceError("node", id)
	}
	n.X, n.Y = x, y
	if pin {
		fx, fy := x, y
		n.FX, n.FY = &fx, &fy
	} else {
		n.FX, n.FY = nil, nil
	}
	return nil
}

// MarkImageDeleted flags a node's image as removed.
func (s *State) MarkImageDeleted(id string) error {
	n, ok := s.Node(id)
	if !ok {
		return apperrors.NewStaleReferenceError("node", id)
	}
	n.ImageDeleted = true
	return nil
}

// SetDepthColor recolors a depth level.
func (s *State) SetDepthColor(depth int, color string) error {
	if depth < 0 {
		return apperrors.NewInvalidOperationError("depth must not be negative")
	}
	if s.DepthColors == nil {
		s.DepthColors = DepthColors{}
	}
	s.DepthColors[depth] = color
	return nil
}

// EnsureDepthColors assigns palette(depth) to every depth level in use that
// has no color yet. It reports whether any color was added.
func (s *State) EnsureDepthColors(palette func(depth int) string) bool {
	added := false
	for _, n := range s.Nodes {
		if _, ok := s.DepthColors[n.Depth]; ok {
			continue
		}
		if s.DepthColors == nil {
			s.DepthColors = DepthColors{}
		}
		s.DepthColors[n.Depth] = palette(n.Depth)
		added = true
	}
	return added
}
