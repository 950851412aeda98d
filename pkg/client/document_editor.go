package client

import (
	"sort"
	"sync"

	"coauthor-backend/internal/domain/document"
	"coauthor-backend/pkg/colors"
	"coauthor-backend/pkg/delta"
	apperrors "coauthor-backend/pkg/errors"
	"coauthor-backend/pkg/protocol"
)

// LocalCursor is this participant's own caret.
type LocalCursor struct {
	SectionID    string
	SubsectionID string
	Cursor       protocol.Cursor
}

func (c LocalCursor) nodeID() string {
	if c.SubsectionID != "" {
		return c.SubsectionID
	}
	return c.SectionID
}

// Marker is a remote participant's rendered cursor.
type Marker struct {
	ParticipantID string
	NodeID        string
	Cursor        protocol.Cursor
	Color         string
}

// DocumentEditor is the client-side state of one document: its contents,
// the local cursor and the remote cursor markers. It is safe for concurrent
// use.
//
// An editor owns its connection. Participant lists, section changes and
// remote cursors carry no room id, so a Conn feeding an editor must not be
// joined to any other document.
type DocumentEditor struct {
	mu            sync.RWMutex
	documentID    string
	participantID string
	displayName   string
	doc           document.Document
	loaded        bool
	cursor        *LocalCursor
	markers       map[string]Marker
	participants  []protocol.ParticipantInfo
}

// NewDocumentEditor creates an editor for documentID.
func NewDocumentEditor(documentID, participantID, displayName string) *DocumentEditor {
	return &DocumentEditor{
		documentID:    documentID,
		participantID: participantID,
		displayName:   displayName,
		markers:       make(map[string]Marker),
	}
}

// JoinMessage is the join-document request for this editor.
func (e *DocumentEditor) JoinMessage() protocol.JoinDocumentMessage {
	return protocol.JoinDocumentMessage{
		DocumentID:    e.documentID,
		ParticipantID: e.participantID,
		DisplayName:   e.displayName,
	}
}

// LeaveMessage is the leave-document request for this editor.
func (e *DocumentEditor) LeaveMessage() protocol.LeaveDocumentMessage {
	return protocol.LeaveDocumentMessage{DocumentID: e.documentID, ParticipantID: e.participantID}
}

// Handle applies a server event. Snapshots of other documents and unrelated
// types are ignored. Room events that carry no document id are ignored until
// this editor's own snapshot has loaded.
func (e *DocumentEditor) Handle(ev Event) error {
	if msg, ok := ev.Payload.(*protocol.LoadDocumentMessage); ok {
		if msg.DocumentID == e.documentID {
			e.Load(msg)
		}
		return nil
	}
	if !e.Loaded() {
		return nil
	}
	switch msg := ev.Payload.(type) {
	case *protocol.UpdateParticipantsMessage:
		e.SetParticipants(*msg)
	case *protocol.SectionChangeBroadcastMessage:
		return e.ApplyRemote(msg)
	case *protocol.RemoteCursorMessage:
		e.ShowCursor(msg)
	}
	return nil
}

// Load replaces the whole document, as on join or after a whole-document
// save. The local cursor survives only if its node and offset still exist.
func (e *DocumentEditor) Load(msg *protocol.LoadDocumentMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.doc = document.Document{ID: msg.DocumentID, Contents: msg.Contents, Published: msg.Published}
	e.loaded = true
	if e.cursor != nil && !e.cursorValid(*e.cursor) {
		e.cursor = nil
	}
}

// ApplyRemote merges another participant's section content into the local
// copy with diff and apply, so content outside the changed span and the
// local cursor are left where they were. A section never seen locally is
// created; a change the local tree cannot place is dropped. A change that
// carries the sender's cursor moves the sender's marker to the changed node.
func (e *DocumentEditor) ApplyRemote(msg *protocol.SectionChangeBroadcastMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.doc.Node(msg.SectionID, msg.SubsectionID)
	if err != nil {
		if _, err := e.doc.Apply(document.ReplaceSection(msg.SectionID, msg.SubsectionID, delta.Delta{})); err != nil {
			if apperrors.IsStaleReference(err) {
				return nil
			}
			return err
		}
		if node, err = e.doc.Node(msg.SectionID, msg.SubsectionID); err != nil {
			return err
		}
	}

	patch, err := delta.Diff(node.Content, msg.FullContent)
	if err != nil {
		// Content that is not a plain document cannot be diffed; take the
		// remote value as is.
		node.Content = msg.FullContent
	} else {
		node.Content = delta.Apply(node.Content, patch)
	}

	if e.cursor != nil && !e.cursorValid(*e.cursor) {
		e.cursor = nil
	}
	if msg.Cursor != nil && msg.ParticipantID != "" && msg.ParticipantID != e.participantID {
		nodeID := msg.SectionID
		if msg.SubsectionID != "" {
			nodeID = msg.SubsectionID
		}
		e.placeMarker(msg.ParticipantID, nodeID, *msg.Cursor, colors.ColorFor(msg.ParticipantID))
	}
	return nil
}

// Edit records a local change to a section and returns the section-change
// to send.
func (e *DocumentEditor) Edit(sectionID, subsectionID string, content delta.Delta, cursor *protocol.Cursor) (protocol.SectionChangeMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.doc.Apply(document.ReplaceSection(sectionID, subsectionID, content)); err != nil {
		return protocol.SectionChangeMessage{}, err
	}
	if cursor != nil {
		e.cursor = &LocalCursor{SectionID: sectionID, SubsectionID: subsectionID, Cursor: *cursor}
	}
	return protocol.SectionChangeMessage{
		DocumentID:    e.documentID,
		SectionID:     sectionID,
		SubsectionID:  subsectionID,
		FullContent:   content,
		ParticipantID: e.participantID,
		Cursor:        cursor,
	}, nil
}

// SaveAll returns the whole-document save for contents and adopts them
// locally.
func (e *DocumentEditor) SaveAll(contents document.Contents) protocol.WholeDocumentSaveMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.Contents = contents
	return protocol.WholeDocumentSaveMessage{DocumentID: e.documentID, Contents: contents}
}

// MoveCursor places the local cursor and returns the cursor-selection to
// send.
func (e *DocumentEditor) MoveCursor(sectionID, subsectionID string, cursor protocol.Cursor) protocol.CursorSelectionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	local := LocalCursor{SectionID: sectionID, SubsectionID: subsectionID, Cursor: cursor}
	e.cursor = &local
	return protocol.CursorSelectionMessage{
		DocumentID:    e.documentID,
		ParticipantID: e.participantID,
		Cursor:        cursor,
		NodeID:        local.nodeID(),
	}
}

// ShowCursor renders a remote participant's cursor. Any marker that
// participant had elsewhere is cleared first.
func (e *DocumentEditor) ShowCursor(msg *protocol.RemoteCursorMessage) {
	if msg.ParticipantID == e.participantID {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	color := msg.Color
	if color == "" {
		color = colors.ColorFor(msg.ParticipantID)
	}
	e.placeMarker(msg.ParticipantID, msg.NodeID, msg.Cursor, color)
}

// placeMarker clears the participant's marker and sets it on nodeID. The
// caller holds e.mu.
func (e *DocumentEditor) placeMarker(participantID, nodeID string, cursor protocol.Cursor, color string) {
	delete(e.markers, participantID)
	e.markers[participantID] = Marker{
		ParticipantID: participantID,
		NodeID:        nodeID,
		Cursor:        cursor,
		Color:         color,
	}
}

// SetParticipants replaces the participant list and removes markers of
// participants who are gone.
func (e *DocumentEditor) SetParticipants(participants []protocol.ParticipantInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.participants = append([]protocol.ParticipantInfo(nil), participants...)
	present := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		present[p.ParticipantID] = struct{}{}
	}
	for pid := range e.markers {
		if _, ok := present[pid]; !ok {
			delete(e.markers, pid)
		}
	}
}

// Content returns a node's current content.
func (e *DocumentEditor) Content(sectionID, subsectionID string) (delta.Delta, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	node, err := e.doc.Node(sectionID, subsectionID)
	if err != nil {
		return delta.Delta{}, false
	}
	return node.Content, true
}

// Contents returns a copy of the document contents.
func (e *DocumentEditor) Contents() document.Contents {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c := e.doc.Contents
	c.Sections = append([]document.Section(nil), c.Sections...)
	return c
}

// Loaded reports whether a snapshot has been received.
func (e *DocumentEditor) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// Cursor returns the local cursor, if any.
func (e *DocumentEditor) Cursor() (LocalCursor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cursor == nil {
		return LocalCursor{}, false
	}
	return *e.cursor, true
}

// Markers returns the remote cursors sorted by participant id.
func (e *DocumentEditor) Markers() []Marker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Marker, 0, len(e.markers))
	for _, m := range e.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// MarkersOn returns the participants whose cursor is on nodeID.
func (e *DocumentEditor) MarkersOn(nodeID string) []string {
	var out []string
	for _, m := range e.Markers() {
		if m.NodeID == nodeID {
			out = append(out, m.ParticipantID)
		}
	}
	return out
}

// Participants returns the last participant list received.
func (e *DocumentEditor) Participants() []protocol.ParticipantInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]protocol.ParticipantInfo(nil), e.participants...)
}

func (e *DocumentEditor) cursorValid(c LocalCursor) bool {
	node, err := e.doc.Node(c.SectionID, c.SubsectionID)
	if err != nil {
		return false
	}
	return c.Cursor.Index+c.Cursor.Length <= node.Content.Length()
}
