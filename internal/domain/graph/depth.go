package graph

// Parent returns the resolved parent of a node: the source of the most
// recently added link into it whose source still exists.
func (s *State) Parent(id string) (string, bool) {
	parents := s.parents()
	p, ok := parents[id]
	return p, ok
}

func (s *State) parents() map[string]string {
	exists := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		exists[n.ID] = struct{}{}
	}

	parents := make(map[string]string)
	for _, l := range s.Links {
		if l.Source == l.Target {
			continue
		}
		if _, ok := exists[l.Source]; !ok {
			continue
		}
		if _, ok := exists[l.Target]; !ok {
			continue
		}
		parents[l.Target] = l.Source
	}
	return parents
}

// RecomputeDepths sets every node's depth by breadth-first traversal from
// the roots along resolved parent links. Nodes caught in a parent cycle have
// no root to descend from and get depth 0.
func (s *State) RecomputeDepths() {
	parents := s.parents()
	children := make(map[string][]string)
	for _, n := range s.Nodes {
		if p, ok := parents[n.ID]; ok {
			children[p] = append(children[p], n.ID)
		}
	}

	depth := make(map[string]int, len(s.Nodes))
	queue := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if _, ok := parents[n.ID]; !ok {
			depth[n.ID] = 0
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if _, seen := depth[child]; seen {
				continue
			}
			depth[child] = depth[cur] + 1
			queue = append(queue, child)
		}
	}

	for i := range s.Nodes {
		s.Nodes[i].Depth = depth[s.Nodes[i].ID]
	}
}

// reaches reports whether a directed path of links leads from "from" to
// "to". Keeping the link set acyclic means no sequence of deletions can turn
// a fallback parent into a cycle.
func (s *State) reaches(from, to string) bool {
	out := make(map[string][]string)
	for _, l := range s.Links {
		out[l.Source] = append(out[l.Source], l.Target)
	}

	seen := map[string]struct{}{from: {}}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, next := range out[cur] {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	return false
}
