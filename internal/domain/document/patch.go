package document

import (
	"slices"
	"time"

	"coauthor-backend/pkg/delta"
	apperrors "coauthor-backend/pkg/errors"
)

// SectionPatch overwrites one section's content.
type SectionPatch struct {
	SectionID    string
	SubsectionID string
	Content      delta.Delta
}

// Patch is a change persisted through the gateway. Exactly one field is set.
type Patch struct {
	Section   *SectionPatch
	Contents  *Contents
	AddMember string
	Published *bool
}

// ReplaceSection builds a section-content patch.
func ReplaceSection(sectionID, subsectionID string, content delta.Delta) Patch {
	return Patch{Section: &SectionPatch{SectionID: sectionID, SubsectionID: subsectionID, Content: content}}
}

// ReplaceContents builds a whole-document patch.
func ReplaceContents(c Contents) Patch {
	return Patch{Contents: &c}
}

// AddMember builds a patch granting the editor role.
func AddMember(participantID string) Patch {
	return Patch{AddMember: participantID}
}

// SetPublished builds a patch toggling the published flag.
func SetPublished(published bool) Patch {
	return Patch{Published: &published}
}

// Apply mutates d. A section patch whose target no longer exists fails with
// a stale reference error and leaves d unchanged. It reports whether
// anything changed.
func (d *Document) Apply(p Patch) (bool, error) {
	changed := false
	switch {
	case p.Section != nil:
		node, err := d.Node(p.Section.SectionID, p.Section.SubsectionID)
		if err != nil {
			if node, err = d.createNode(p.Section.SectionID, p.Section.SubsectionID); err != nil {
				return false, err
			}
		}
		node.Content = p.Section.Content
		changed = true
	case p.Contents != nil:
		if err := ValidateSections(p.Contents.Sections); err != nil {
			return false, err
		}
		d.Removed = tombstones(d.Removed, d.Sections, p.Contents.Sections)
		d.Contents = normalizeContents(*p.Contents)
		changed = true
	case p.AddMember != "":
		if d.Roles == nil {
			return false, apperrors.NewInvalidOperationError("document has no owner")
		}
		changed = d.Roles.AddEditor(p.AddMember)
	case p.Published != nil:
		changed = d.Published != *p.Published
		d.Published = *p.Published
	default:
		return false, apperrors.NewInvalidOperationError("empty document patch")
	}

	if changed {
		d.UpdatedAt = time.Now().UTC()
	}
	return changed, nil
}

// createNode adds a section, or a subsection under it, that has never
// existed. Ids that were removed, or that live elsewhere in the tree, are
// stale.
func (d *Document) createNode(sectionID, subsectionID string) (*Section, error) {
	ids := sectionIDs(d.Sections)
	for _, id := range []string{sectionID, subsectionID} {
		if id == "" {
			continue
		}
		if slices.Contains(d.Removed, id) {
			return nil, apperrors.NewStaleReferenceError("section", id)
		}
	}

	if subsectionID != "" {
		if _, elsewhere := ids[subsectionID]; elsewhere {
			return nil, apperrors.NewStaleReferenceError("subsection", subsectionID)
		}
	}

	parent := -1
	for i := range d.Sections {
		if d.Sections[i].ID == sectionID {
			parent = i
			break
		}
	}
	if parent < 0 {
		if _, elsewhere := ids[sectionID]; elsewhere {
			return nil, apperrors.NewStaleReferenceError("section", sectionID)
		}
		d.Sections = append(d.Sections, Section{ID: sectionID})
		parent = len(d.Sections) - 1
	}
	if subsectionID == "" {
		return &d.Sections[parent], nil
	}

	s := &d.Sections[parent]
	s.Subsections = append(s.Subsections, Section{ID: subsectionID})
	return &s.Subsections[len(s.Subsections)-1], nil
}

func sectionIDs(sections []Section) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, s := range sections {
		ids[s.ID] = struct{}{}
		for _, sub := range s.Subsections {
			ids[sub.ID] = struct{}{}
		}
	}
	return ids
}

// tombstones adds ids present in before but not in after, and forgets ids
// that after brings back.
func tombstones(removed []string, before, after []Section) []string {
	kept := sectionIDs(after)
	set := make(map[string]struct{}, len(removed))
	for _, id := range removed {
		if _, back := kept[id]; !back {
			set[id] = struct{}{}
		}
	}
	for id := range sectionIDs(before) {
		if _, ok := kept[id]; !ok {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func normalizeContents(c Contents) Contents {
	if c.Sections == nil {
		c.Sections = []Section{}
	}
	if c.Authors == nil {
		c.Authors = []Author{}
	}
	if c.References == nil {
		c.References = []Reference{}
	}
	return c
}
