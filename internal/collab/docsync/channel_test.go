package docsync

import (
	"context"
	"errors"
	"testing"

	"coauthor-backend/internal/collab/session"
	"coauthor-backend/internal/collab/session/sessiontest"
	"coauthor-backend/internal/domain/document"
	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/infrastructure/concurrency"
	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/presence"
	"coauthor-backend/pkg/colors"
	"coauthor-backend/pkg/delta"
	apperrors "coauthor-backend/pkg/errors"
	"coauthor-backend/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	channel *Channel
	store   *gateway.Gateway
	out     *sessiontest.Recorder
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := gateway.New(gateway.NewMemoryStore(), zap.NewNop(), nil, nil)
	require.NoError(t, store.CreateDocument(context.Background(), document.New("D", "owner", "")))
	out := &sessiontest.Recorder{}
	return &fixture{
		channel: NewChannel(store, presence.NewRegistry(), concurrency.Inline{}, out, messaging.NopPublisher{}, nil, zap.NewNop()),
		store:   store,
		out:     out,
		ctx:     context.Background(),
	}
}

func (f *fixture) join(t *testing.T, conn, participant string) *session.Session {
	t.Helper()
	sess := session.New(conn, "")
	require.NoError(t, f.channel.Join(f.ctx, sess, &protocol.JoinDocumentMessage{
		DocumentID:    "D",
		ParticipantID: participant,
		DisplayName:   participant,
	}))
	return sess
}

func participantIDs(t *testing.T, s sessiontest.Sent) []string {
	t.Helper()
	msg, ok := s.Payload.(protocol.UpdateParticipantsMessage)
	require.True(t, ok)
	var ids []string
	for _, p := range msg {
		ids = append(ids, p.ParticipantID)
	}
	return ids
}

func TestJoinEditAndBroadcastScenario(t *testing.T) {
	f := newFixture(t)

	f.join(t, "cA", "A")
	loads := f.out.OfType("cA", protocol.LoadDocument)
	require.Len(t, loads, 1)
	assert.Empty(t, loads[0].Payload.(protocol.LoadDocumentMessage).Sections)
	assert.NotNil(t, loads[0].Payload.(protocol.LoadDocumentMessage).Sections)

	f.out.Reset()
	f.join(t, "cB", "B")
	for _, conn := range []string{"cA", "cB"} {
		updates := f.out.OfType(conn, protocol.UpdateParticipants)
		require.Len(t, updates, 1, conn)
		assert.Equal(t, []string{"A", "B"}, participantIDs(t, updates[0]))
	}
	assert.Empty(t, f.out.OfType("cA", protocol.LoadDocument), "load is unicast to the joiner")

	f.out.Reset()
	sessA := session.New("cA", "")
	sessA.Touch(session.DocumentRoom, "D")
	hello := delta.Text("hello")
	require.NoError(t, f.channel.SectionChange(f.ctx, sessA, &protocol.SectionChangeMessage{
		DocumentID:    "D",
		SectionID:     "s1",
		FullContent:   hello,
		ParticipantID: "A",
		Cursor:        &protocol.Cursor{Index: 5},
	}))

	relayed := f.out.OfType("cB", protocol.SectionChangeBroadcast)
	require.Len(t, relayed, 1)
	msg := relayed[0].Payload.(protocol.SectionChangeBroadcastMessage)
	assert.Equal(t, "s1", msg.SectionID)
	assert.Equal(t, "A", msg.ParticipantID)
	assert.True(t, delta.Equal(hello, msg.FullContent))
	assert.Empty(t, f.out.To("cA"), "no echo to the sender")

	doc, err := f.store.LoadDocument(f.ctx, "D")
	require.NoError(t, err)
	assert.True(t, doc.Roles.Has("A"))
	assert.True(t, doc.Roles.Has("B"))
	node, err := doc.Node("s1", "")
	require.NoError(t, err)
	assert.True(t, delta.Equal(hello, node.Content))
}

func TestWholeDocumentSaveReachesEveryone(t *testing.T) {
	f := newFixture(t)
	sessA := f.join(t, "cA", "A")
	f.join(t, "cB", "B")
	f.out.Reset()

	require.NoError(t, f.channel.WholeDocumentSave(f.ctx, sessA, &protocol.WholeDocumentSaveMessage{
		DocumentID: "D",
		Contents:   document.Contents{Metadata: document.Metadata{Title: "Paper X"}},
	}))

	for _, conn := range []string{"cA", "cB"} {
		got := f.out.OfType(conn, protocol.LoadDocumentBroadcast)
		require.Len(t, got, 1, conn)
		assert.Equal(t, "Paper X", got[0].Payload.(protocol.LoadDocumentMessage).Title)
	}
}

func TestSectionChangesAreLastWriteWins(t *testing.T) {
	f := newFixture(t)
	sessA := f.join(t, "cA", "A")
	sessB := f.join(t, "cB", "B")

	send := func(sess *session.Session, who, text string) {
		require.NoError(t, f.channel.SectionChange(f.ctx, sess, &protocol.SectionChangeMessage{
			DocumentID: "D", SectionID: "s1", FullContent: delta.Text(text), ParticipantID: who,
		}))
	}
	send(sessA, "A", "from A")
	send(sessB, "B", "from B")

	doc, err := f.store.LoadDocument(f.ctx, "D")
	require.NoError(t, err)
	assert.True(t, delta.Equal(delta.Text("from B"), doc.Sections[0].Content))
}

func TestChangeToRemovedSectionIsDroppedSilently(t *testing.T) {
	f := newFixture(t)
	sessA := f.join(t, "cA", "A")
	f.join(t, "cB", "B")

	require.NoError(t, f.channel.SectionChange(f.ctx, sessA, &protocol.SectionChangeMessage{
		DocumentID: "D", SectionID: "s1", FullContent: delta.Text("x"), ParticipantID: "A",
	}))
	require.NoError(t, f.channel.WholeDocumentSave(f.ctx, sessA, &protocol.WholeDocumentSaveMessage{DocumentID: "D"}))
	f.out.Reset()

	require.NoError(t, f.channel.SectionChange(f.ctx, sessA, &protocol.SectionChangeMessage{
		DocumentID: "D", SectionID: "s1", FullContent: delta.Text("late"), ParticipantID: "A",
	}))

	assert.Empty(t, f.out.All(), "no broadcast and no error event")
}

func TestJoinUnknownDocumentIsNotFound(t *testing.T) {
	f := newFixture(t)
	sess := session.New("cA", "")

	require.NoError(t, f.channel.Join(f.ctx, sess, &protocol.JoinDocumentMessage{DocumentID: "nope", ParticipantID: "A"}))

	sent := f.out.All()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.Error, sent[0].Type)
	assert.Equal(t, []string{"cA"}, sent[0].ConnectionIDs)
	assert.Equal(t, protocol.CodeNotFound, sent[0].Payload.(protocol.ErrorMessage).Code)
	assert.Empty(t, f.channel.Presence().Participants("nope"))
}

// failingStore fails every save.
type failingStore struct {
	gateway.DocumentStore
}

func (failingStore) SaveDocument(context.Context, string, document.Patch) (*document.Document, error) {
	return nil, apperrors.NewPersistenceFailure("save document", errors.New("disk full"))
}

func TestPersistenceFailureStopsBroadcast(t *testing.T) {
	f := newFixture(t)
	f.join(t, "cA", "A")
	f.join(t, "cB", "B")

	broken := NewChannel(failingStore{f.store}, f.channel.Presence(), concurrency.Inline{}, f.out, messaging.NopPublisher{}, nil, zap.NewNop())
	f.out.Reset()

	sessA := session.New("cA", "")
	require.NoError(t, broken.SectionChange(f.ctx, sessA, &protocol.SectionChangeMessage{
		DocumentID: "D", SectionID: "s1", FullContent: delta.Text("x"), ParticipantID: "A",
	}))

	assert.Empty(t, f.out.To("cB"))
	errs := f.out.OfType("cA", protocol.Error)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.CodePersistenceFailure, errs[0].Payload.(protocol.ErrorMessage).Code)
	assert.Len(t, f.channel.Presence().Participants("D"), 2, "room state unchanged")
}

func TestCursorSelection(t *testing.T) {
	f := newFixture(t)
	sessA := f.join(t, "cA", "A")
	f.join(t, "cB", "B")
	f.out.Reset()

	require.NoError(t, f.channel.CursorSelection(f.ctx, sessA, &protocol.CursorSelectionMessage{
		DocumentID: "D", ParticipantID: "A", NodeID: "s1", Cursor: protocol.Cursor{Index: 2, Length: 3},
	}))
	require.NoError(t, f.channel.CursorSelection(f.ctx, sessA, &protocol.CursorSelectionMessage{
		DocumentID: "D", ParticipantID: "A", NodeID: "s2", Cursor: protocol.Cursor{Index: 0},
	}))

	got := f.out.OfType("cB", protocol.RemoteCursor)
	require.Len(t, got, 2)
	last := got[1].Payload.(protocol.RemoteCursorMessage)
	assert.Equal(t, "s2", last.NodeID)
	assert.Equal(t, colors.ColorFor("A"), last.Color)
	assert.Empty(t, f.out.To("cA"))

	f.out.Reset()
	f.join(t, "cC", "C")
	late := f.out.OfType("cC", protocol.RemoteCursor)
	require.Len(t, late, 1, "late joiners see the one current cursor")
	assert.Equal(t, "s2", late[0].Payload.(protocol.RemoteCursorMessage).NodeID)
}

func TestLeaveAndDisconnect(t *testing.T) {
	f := newFixture(t)
	sessA := f.join(t, "cA", "A")
	sessB := f.join(t, "cB", "B")
	f.out.Reset()

	require.NoError(t, f.channel.Leave(f.ctx, sessB, &protocol.LeaveDocumentMessage{DocumentID: "D", ParticipantID: "A"}))
	assert.Empty(t, f.out.All(), "a connection cannot remove someone else")

	require.NoError(t, f.channel.Leave(f.ctx, sessA, &protocol.LeaveDocumentMessage{DocumentID: "D", ParticipantID: "A"}))
	updates := f.out.OfType("cB", protocol.UpdateParticipants)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"B"}, participantIDs(t, updates[0]))

	f.channel.Disconnect(f.ctx, sessB)
	assert.Equal(t, 0, f.channel.Presence().Rooms(), "empty rooms are torn down")
}

func TestRequestsRequireJoinAndMatchingIdentity(t *testing.T) {
	f := newFixture(t)

	stranger := session.New("cX", "")
	require.NoError(t, f.channel.SectionChange(f.ctx, stranger, &protocol.SectionChangeMessage{
		DocumentID: "D", SectionID: "s1", FullContent: delta.Text("x"), ParticipantID: "X",
	}))
	errs := f.out.OfType("cX", protocol.Error)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.CodeInvalidOperation, errs[0].Payload.(protocol.ErrorMessage).Code)

	impostor := session.New("cY", "alice")
	require.NoError(t, f.channel.Join(f.ctx, impostor, &protocol.JoinDocumentMessage{DocumentID: "D", ParticipantID: "bob"}))
	errs = f.out.OfType("cY", protocol.Error)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.CodeInvalidOperation, errs[0].Payload.(protocol.ErrorMessage).Code)
	assert.Empty(t, f.channel.Presence().Participants("D"))
}
