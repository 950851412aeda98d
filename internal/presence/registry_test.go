package presence

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(ps []Participant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ParticipantID)
	}
	return out
}

func TestJoinAndLeave(t *testing.T) {
	r := NewRegistry()

	got := r.Join("doc-1", "alice", "Alice", "c1")
	assert.Equal(t, []string{"alice"}, ids(got))

	got = r.Join("doc-1", "bob", "Bob", "c2")
	assert.Equal(t, []string{"alice", "bob"}, ids(got))

	remaining, removed := r.Leave("doc-1", "alice")
	assert.True(t, removed)
	assert.Equal(t, []string{"bob"}, ids(remaining))

	_, removed = r.Leave("doc-1", "alice")
	assert.False(t, removed, "leaving twice is not an error")

	_, removed = r.Leave("unknown", "alice")
	assert.False(t, removed)
}

func TestRejoinOverwritesInPlace(t *testing.T) {
	r := NewRegistry()
	r.Join("doc-1", "alice", "Alice", "c1")
	r.Join("doc-1", "bob", "Bob", "c2")

	got := r.Join("doc-1", "alice", "Alice B.", "c3")

	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].ParticipantID)
	assert.Equal(t, "Alice B.", got[0].DisplayName)
	assert.Equal(t, "c3", got[0].ConnectionID)

	assert.Empty(t, r.Disconnect("c1"), "the stale connection no longer owns the entry")
	assert.Len(t, r.Participants("doc-1"), 2)
}

func TestDisconnectScansAllRooms(t *testing.T) {
	r := NewRegistry()
	r.Join("doc-1", "alice", "Alice", "c1")
	r.Join("doc-2", "alice", "Alice", "c1")
	r.Join("doc-2", "bob", "Bob", "c2")

	departures := r.Disconnect("c1")

	require.Len(t, departures, 2)
	assert.Equal(t, "doc-1", departures[0].RoomID)
	assert.Empty(t, departures[0].Remaining)
	assert.Equal(t, "doc-2", departures[1].RoomID)
	assert.Equal(t, []string{"bob"}, ids(departures[1].Remaining))
	assert.Equal(t, "alice", departures[1].Participant.ParticipantID)
}

func TestDisconnectFromOneRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("doc-1", "alice", "Alice", "c1")
	r.Join("doc-2", "alice", "Alice", "c1")

	d, ok := r.DisconnectFrom("doc-1", "c1")
	require.True(t, ok)
	assert.Equal(t, "alice", d.Participant.ParticipantID)
	assert.Empty(t, d.Remaining)
	assert.Len(t, r.Participants("doc-2"), 1)

	_, ok = r.DisconnectFrom("doc-1", "c1")
	assert.False(t, ok)
}

func TestEmptyRoomsAreTornDown(t *testing.T) {
	r := NewRegistry()
	r.Join("doc-1", "alice", "Alice", "c1")
	r.Join("doc-2", "bob", "Bob", "c2")
	assert.Equal(t, 2, r.Rooms())

	r.Leave("doc-1", "alice")
	r.Disconnect("c2")

	assert.Equal(t, 0, r.Rooms())
	assert.Empty(t, r.Participants("doc-1"))
}

func TestSetCursorKeepsOneLocation(t *testing.T) {
	r := NewRegistry()
	r.Join("doc-1", "alice", "Alice", "c1")

	require.True(t, r.SetCursor("doc-1", "alice", &Location{NodeID: "s1", Cursor: Cursor{Index: 3}}))
	require.True(t, r.SetCursor("doc-1", "alice", &Location{NodeID: "s2", Cursor: Cursor{Index: 1, Length: 2}}))

	p := r.Participants("doc-1")[0]
	require.NotNil(t, p.Location)
	assert.Equal(t, "s2", p.Location.NodeID)

	r.Join("doc-1", "bob", "Bob", "c2")
	cursors := r.Cursors("doc-1")
	require.Len(t, cursors, 1)
	assert.Equal(t, "alice", cursors[0].ParticipantID)

	assert.False(t, r.SetCursor("doc-1", "ghost", &Location{}))
	assert.True(t, r.SetCursor("doc-1", "alice", nil))
	assert.Nil(t, r.Participants("doc-1")[0].Location)
}

func TestConnectionIDsAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Join("g1", "alice", "Alice", "c1")
	r.Join("g1", "bob", "Bob", "c2")

	assert.Equal(t, []string{"c1", "c2"}, r.ConnectionIDs("g1", ""))
	assert.Equal(t, []string{"c2"}, r.ConnectionIDs("g1", "c1"))
	assert.Nil(t, r.ConnectionIDs("nope", ""))

	p, ok := r.Lookup("g1", "c2")
	require.True(t, ok)
	assert.Equal(t, "bob", p.ParticipantID)
	_, ok = r.Lookup("g1", "c9")
	assert.False(t, ok)
}

// After any sequence of join/leave/disconnect, the room holds exactly the
// participants who joined and have not left or disconnected since.
func TestPresenceMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRegistry()

	type entry struct{ conn string }
	model := map[string]map[string]entry{}
	rooms := []string{"r1", "r2", "r3"}

	for step := 0; step < 2000; step++ {
		room := rooms[rng.Intn(len(rooms))]
		pid := fmt.Sprintf("p%d", rng.Intn(6))
		conn := fmt.Sprintf("c%d", rng.Intn(8))

		switch rng.Intn(3) {
		case 0:
			r.Join(room, pid, pid, conn)
			if model[room] == nil {
				model[room] = map[string]entry{}
			}
			model[room][pid] = entry{conn: conn}
		case 1:
			r.Leave(room, pid)
			delete(model[room], pid)
		default:
			r.Disconnect(conn)
			for _, members := range model {
				for p, e := range members {
					if e.conn == conn {
						delete(members, p)
					}
				}
			}
		}

		for _, rm := range rooms {
			var want []string
			for p := range model[rm] {
				want = append(want, p)
			}
			got := ids(r.Participants(rm))
			sort.Strings(want)
			sort.Strings(got)
			assert.Equal(t, len(want), len(got), "room %s at step %d", rm, step)
			if len(want) > 0 {
				assert.Equal(t, want, got, "room %s at step %d", rm, step)
			}
		}
	}
}
