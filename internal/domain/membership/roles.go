// Package membership holds participant roles shared by documents and graphs.
package membership

import (
	"sort"

	apperrors "coauthor-backend/pkg/errors"
)

// Role is a participant's role on a document or graph.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
)

// Member pairs a participant with a role.
type Member struct {
	ParticipantID string `json:"participantId"`
	Role          Role   `json:"role"`
}

// Roles maps participant ids to roles.
type Roles map[string]Role

// NewRoles starts a role map with a single owner.
func NewRoles(ownerID string) Roles {
	return Roles{ownerID: RoleOwner}
}

// Has reports whether the participant holds any role.
func (r Roles) Has(participantID string) bool {
	_, ok := r[participantID]
	return ok
}

// AddEditor grants the editor role to a participant that has no role yet.
// It reports whether the map changed.
func (r Roles) AddEditor(participantID string) bool {
	if participantID == "" || r.Has(participantID) {
		return false
	}
	r[participantID] = RoleEditor
	return true
}

// Owner returns the owning participant, or "" when there is none.
func (r Roles) Owner() string {
	for id, role := range r {
		if role == RoleOwner {
			return id
		}
	}
	return ""
}

// Validate enforces exactly one owner and known role values.
func (r Roles) Validate() error {
	owners := 0
	for id, role := range r {
		switch role {
		case RoleOwner:
			owners++
		case RoleEditor:
		default:
			return apperrors.NewValidationError("unknown role '" + string(role) + "' for participant " + id)
		}
	}
	if owners != 1 {
		return apperrors.NewValidationError("exactly one owner is required")
	}
	return nil
}

// Members lists the roles with the owner first, then editors by id.
func (r Roles) Members() []Member {
	members := make([]Member, 0, len(r))
	for id, role := range r {
		members = append(members, Member{ParticipantID: id, Role: role})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Role != members[j].Role {
			return members[i].Role == RoleOwner
		}
		return members[i].ParticipantID < members[j].ParticipantID
	})
	return members
}
