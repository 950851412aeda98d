// Package protocol defines the messages exchanged over a sync connection.
//
// Every frame is an Envelope: a type tag and a payload whose shape is fixed
// by the tag. Decode maps each inbound tag to its Go type and validates it
// before any handler sees it.
package protocol

import (
	"coauthor-backend/internal/domain/document"
	"coauthor-backend/internal/domain/graph"
	"coauthor-backend/internal/domain/membership"
	"coauthor-backend/pkg/delta"
)

// EventType tags an envelope.
type EventType string

const (
	JoinDocument           EventType = "join-document"
	LoadDocument           EventType = "load-document"
	UpdateParticipants     EventType = "update-participants"
	SectionChange          EventType = "section-change"
	SectionChangeBroadcast EventType = "section-change-broadcast"
	CursorSelection        EventType = "cursor-selection"
	RemoteCursor           EventType = "remote-cursor"
	WholeDocumentSave      EventType = "whole-document-save"
	LoadDocumentBroadcast  EventType = "load-document-broadcast"
	LeaveDocument          EventType = "leave-document"

	JoinGraph    EventType = "join-graph"
	LoadGraph    EventType = "load-graph"
	LeaveGraph   EventType = "leave-graph"
	NodeSelected EventType = "node-selected"
	GraphUpdate  EventType = "graph-update"

	Error EventType = "error"
)

// Error codes carried by ErrorMessage.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidOperation   = "INVALID_OPERATION"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
)

// Cursor is a selection inside one rich-text node.
type Cursor struct {
	Index  int `json:"index" validate:"gte=0"`
	Length int `json:"length" validate:"gte=0"`
}

// ParticipantInfo is one entry of a participant list.
type ParticipantInfo struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

type JoinDocumentMessage struct {
	DocumentID    string `json:"documentId" validate:"required"`
	ParticipantID string `json:"participantId" validate:"required"`
	DisplayName   string `json:"displayName"`
}

// LoadDocumentMessage is the full document snapshot, sent on join and after
// a whole-document save.
type LoadDocumentMessage struct {
	DocumentID string `json:"documentId"`
	document.Contents
	Published bool `json:"published"`
}

// UpdateParticipantsMessage is the room's participant list, sent as a bare
// array. The room is the one the receiving connection joined.
type UpdateParticipantsMessage []ParticipantInfo

type SectionChangeMessage struct {
	DocumentID    string      `json:"documentId" validate:"required"`
	SectionID     string      `json:"sectionId" validate:"required"`
	SubsectionID  string      `json:"subsectionId,omitempty"`
	FullContent   delta.Delta `json:"fullContent"`
	ParticipantID string      `json:"participantId" validate:"required"`
	Cursor        *Cursor     `json:"cursor,omitempty"`
}

// SectionChangeBroadcastMessage relays a section's full content to the rest
// of the room.
type SectionChangeBroadcastMessage struct {
	SectionID     string      `json:"sectionId"`
	SubsectionID  string      `json:"subsectionId,omitempty"`
	FullContent   delta.Delta `json:"fullContent"`
	ParticipantID string      `json:"participantId"`
	Cursor        *Cursor     `json:"cursor,omitempty"`
}

type CursorSelectionMessage struct {
	DocumentID    string `json:"documentId" validate:"required"`
	ParticipantID string `json:"participantId" validate:"required"`
	Cursor        Cursor `json:"cursor"`
	NodeID        string `json:"nodeId" validate:"required"`
}

type RemoteCursorMessage struct {
	ParticipantID string `json:"participantId"`
	Cursor        Cursor `json:"cursor"`
	Color         string `json:"color"`
	NodeID        string `json:"nodeId"`
}

type WholeDocumentSaveMessage struct {
	DocumentID string `json:"documentId" validate:"required"`
	document.Contents
}

type LeaveDocumentMessage struct {
	DocumentID    string `json:"documentId" validate:"required"`
	ParticipantID string `json:"participantId" validate:"required"`
}

type JoinGraphMessage struct {
	GraphID       string `json:"graphId" validate:"required"`
	ParticipantID string `json:"participantId" validate:"required"`
	DisplayName   string `json:"displayName"`
}

// LoadGraphMessage is the graph snapshot plus the authorized participants.
type LoadGraphMessage struct {
	GraphID    string `json:"graphId"`
	DocumentID string `json:"documentId,omitempty"`
	graph.State
	Members []membership.Member `json:"members"`
}

type LeaveGraphMessage struct {
	GraphID       string `json:"graphId" validate:"required"`
	ParticipantID string `json:"participantId" validate:"required"`
	DisplayName   string `json:"displayName"`
}

// NodeSelectedMessage advertises the one node a participant is editing. A
// nil NodeID clears the participant from every node.
type NodeSelectedMessage struct {
	GraphID         string  `json:"graphId" validate:"required"`
	NodeID          *string `json:"nodeId"`
	ParticipantName string  `json:"participantName" validate:"required"`
}

// GraphUpdateMessage is a full graph state replacement.
type GraphUpdateMessage struct {
	GraphID string `json:"graphId" validate:"required"`
	graph.State
}

// ErrorMessage is unicast to a client whose request failed.
type ErrorMessage struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Event   EventType `json:"event,omitempty"`
	RoomID  string    `json:"roomId,omitempty"`
}
