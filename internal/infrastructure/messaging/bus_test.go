package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRoomBusDeliversInPublishOrder(t *testing.T) {
	bus := NewRoomBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Delivery
	done, err := bus.Subscribe(ctx, func(d Delivery) {
		mu.Lock()
		got = append(got, d)
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(ctx, Delivery{
			RoomID:        "doc-1",
			ConnectionIDs: []string{"c1", "c2"},
			Payload:       json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		}))
	}

	require.NoError(t, bus.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}

	require.Len(t, got, 20)
	for i, d := range got {
		assert.Equal(t, []string{"c1", "c2"}, d.ConnectionIDs)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(d.Payload))
	}
}

func TestRoomBusSkipsEmptyAudience(t *testing.T) {
	bus := NewRoomBus(zap.NewNop())
	defer bus.Close()

	calls := 0
	_, err := bus.Subscribe(context.Background(), func(Delivery) { calls++ })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Delivery{Payload: json.RawMessage(`{}`)}))
	assert.Zero(t, calls)
}
