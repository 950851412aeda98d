// Package document models a collaboratively edited paper: a tree of
// sections holding rich-text content, with authors, references, metadata and
// a role map.
package document

import (
	"time"

	"coauthor-backend/internal/domain/membership"
	"coauthor-backend/pkg/delta"
	apperrors "coauthor-backend/pkg/errors"
)

// Section is a titled node of rich-text content. Subsections share the
// shape but nest only one level deep.
type Section struct {
	ID          string      `json:"id" validate:"required"`
	Title       string      `json:"title"`
	Content     delta.Delta `json:"content"`
	Subsections []Section   `json:"subsections,omitempty" validate:"dive"`
}

// Author of the document.
type Author struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Reference is a citation entry; Fields holds the bibliographic fields.
type Reference struct {
	ID     string            `json:"id" validate:"required"`
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Metadata holds the scalar document fields.
type Metadata struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Keyword  string `json:"keyword"`
}

// Contents is everything a whole-document save replaces.
type Contents struct {
	Sections   []Section   `json:"sections" validate:"dive"`
	Authors    []Author    `json:"authors" validate:"dive"`
	References []Reference `json:"references" validate:"dive"`
	Metadata
}

// Document is the persisted aggregate.
type Document struct {
	ID string `json:"id"`
	Contents
	Roles     membership.Roles `json:"roles"`
	Published bool             `json:"published"`
	// Removed lists section ids dropped by whole-document saves. A change
	// addressed to one of them is stale; a change to an id never seen
	// before creates the section.
	Removed   []string  `json:"removedSections,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates an empty document owned by ownerID.
func New(id, ownerID, title string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID: id,
		Contents: Contents{
			Sections:   []Section{},
			Authors:    []Author{},
			References: []Reference{},
			Metadata:   Metadata{Title: title},
		},
		Roles:     membership.NewRoles(ownerID),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the role invariant and the section tree shape.
func (d *Document) Validate() error {
	if d.ID == "" {
		return apperrors.NewValidationError("document id is required")
	}
	if err := d.Roles.Validate(); err != nil {
		return err
	}
	return ValidateSections(d.Sections)
}

// ValidateSections checks that section and subsection ids are unique across
// the whole tree and that subsections do not nest further.
func ValidateSections(sections []Section) error {
	seen := make(map[string]struct{})
	mark := func(id string) error {
		if id == "" {
			return apperrors.NewValidationError("section id is required")
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewValidationError("duplicate section id '" + id + "'")
		}
		seen[id] = struct{}{}
		return nil
	}

	for _, s := range sections {
		if err := mark(s.ID); err != nil {
			return err
		}
		for _, sub := range s.Subsections {
			if err := mark(sub.ID); err != nil {
				return err
			}
			if len(sub.Subsections) > 0 {
				return apperrors.NewValidationError("subsection '" + sub.ID + "' cannot have subsections")
			}
		}
	}
	return nil
}

// Node resolves a section, or a subsection of it when subsectionID is set.
func (d *Document) Node(sectionID, subsectionID string) (*Section, error) {
	for i := range d.Sections {
		s := &d.Sections[i]
		if s.ID != sectionID {
			continue
		}
		if subsectionID == "" {
			return s, nil
		}
		for j := range s.Subsections {
			if s.Subsections[j].ID == subsectionID {
				return &s.Subsections[j], nil
			}
		}
		return nil, apperrors.NewStaleReferenceError("subsection", subsectionID)
	}
	return nil, apperrors.NewStaleReferenceError("section", sectionID)
}
