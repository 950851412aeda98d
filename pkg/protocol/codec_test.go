package protocol

import (
	"encoding/json"
	"testing"

	"coauthor-backend/internal/domain/document"
	"coauthor-backend/internal/domain/graph"
	"coauthor-backend/pkg/delta"
	apperrors "coauthor-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSectionChange(t *testing.T) {
	frame := `{"type":"section-change","payload":{
		"documentId":"d1","sectionId":"s1","participantId":"alice",
		"fullContent":{"ops":[{"insert":"hello"}]},"cursor":{"index":5,"length":0}}}`

	typ, msg, err := Decode([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, SectionChange, typ)

	change, ok := msg.(*SectionChangeMessage)
	require.True(t, ok)
	assert.Equal(t, "s1", change.SectionID)
	assert.True(t, delta.Equal(delta.Text("hello"), change.FullContent))
	require.NotNil(t, change.Cursor)
	assert.Equal(t, 5, change.Cursor.Index)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantTyp EventType
	}{
		{"malformed json", `{"type":`, ""},
		{"unknown type", `{"type":"explode","payload":{}}`, "explode"},
		{"server-only type", `{"type":"load-document","payload":{}}`, LoadDocument},
		{"missing identity", `{"type":"join-document","payload":{"documentId":"d1"}}`, JoinDocument},
		{"negative cursor", `{"type":"cursor-selection","payload":{"documentId":"d","participantId":"p","nodeId":"s1","cursor":{"index":-1,"length":0}}}`, CursorSelection},
		{"bad delta", `{"type":"section-change","payload":{"documentId":"d","sectionId":"s","participantId":"p","fullContent":{"ops":[{"retain":0}]}}}`, SectionChange},
		{"node without id", `{"type":"graph-update","payload":{"graphId":"g","nodes":[{"text":"x"}],"links":[]}}`, GraphUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, msg, err := Decode([]byte(tt.frame))
			assert.Nil(t, msg)
			assert.Equal(t, tt.wantTyp, typ)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestNodeSelectedNullRoundTrip(t *testing.T) {
	data, err := Encode(NodeSelected, NodeSelectedMessage{GraphID: "g1", ParticipantName: "Alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"node-selected","payload":{"graphId":"g1","nodeId":null,"participantName":"Alice"}}`, string(data))

	_, msg, err := Decode(data)
	require.NoError(t, err)
	assert.Nil(t, msg.(*NodeSelectedMessage).NodeID)
}

func TestUpdateParticipantsIsABareArray(t *testing.T) {
	data, err := Encode(UpdateParticipants, UpdateParticipantsMessage{
		{ParticipantID: "a", DisplayName: "A"},
		{ParticipantID: "b", DisplayName: "B"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"update-participants","payload":[
		{"participantId":"a","displayName":"A"},
		{"participantId":"b","displayName":"B"}]}`, string(data))

	empty, err := Encode(UpdateParticipants, UpdateParticipantsMessage{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"update-participants","payload":[]}`, string(empty))

	typ, msg, err := DecodeServer(data)
	require.NoError(t, err)
	assert.Equal(t, UpdateParticipants, typ)
	list, ok := msg.(*UpdateParticipantsMessage)
	require.True(t, ok)
	require.Len(t, *list, 2)
	assert.Equal(t, "b", (*list)[1].ParticipantID)
}

func TestLoadDocumentIsFlat(t *testing.T) {
	payload := LoadDocumentMessage{
		DocumentID: "d1",
		Contents: document.Contents{
			Sections:   []document.Section{},
			Authors:    []document.Author{},
			References: []document.Reference{},
			Metadata:   document.Metadata{Title: "Paper X"},
		},
	}
	data, err := Encode(LoadDocument, payload)
	require.NoError(t, err)

	var env struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "load-document", env.Type)
	assert.Equal(t, "Paper X", env.Payload["title"])
	assert.Contains(t, env.Payload, "sections")
	assert.Contains(t, env.Payload, "abstract")

	typ, msg, err := DecodeServer(data)
	require.NoError(t, err)
	assert.Equal(t, LoadDocument, typ)
	assert.Equal(t, "Paper X", msg.(*LoadDocumentMessage).Title)
}

func TestGraphUpdateCarriesState(t *testing.T) {
	frame := `{"type":"graph-update","payload":{"graphId":"g1",
		"nodes":[{"id":"root","text":"Root","depth":0},{"id":"n1","text":"Child","depth":1}],
		"links":[{"source":"root","target":"n1","relation":"has"}],
		"depthColors":{"0":"#1f77b4"}}}`

	_, msg, err := Decode([]byte(frame))
	require.NoError(t, err)
	update := msg.(*GraphUpdateMessage)
	assert.Len(t, update.Nodes, 2)
	assert.Equal(t, []graph.Link{{Source: "root", Target: "n1", Relation: "has"}}, update.Links)
	assert.Equal(t, "#1f77b4", update.DepthColors[0])
}

func TestIsInbound(t *testing.T) {
	assert.True(t, IsInbound(SectionChange))
	assert.True(t, IsInbound(NodeSelected))
	assert.False(t, IsInbound(LoadDocument))
	assert.False(t, IsInbound("bogus"))
}
