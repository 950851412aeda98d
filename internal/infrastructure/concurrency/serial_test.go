package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSerialExecutorKeepsOrderPerKey(t *testing.T) {
	e := NewSerialExecutor(zap.NewNop())

	var mu sync.Mutex
	seen := map[string][]int{}
	for i := 0; i < 200; i++ {
		for _, key := range []string{"doc:a", "doc:b", "graph:c"} {
			key, i := key, i
			require.NoError(t, e.Submit(key, func() {
				mu.Lock()
				seen[key] = append(seen[key], i)
				mu.Unlock()
			}))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))

	for key, got := range seen {
		require.Len(t, got, 200, key)
		for i, v := range got {
			assert.Equal(t, i, v, "key %s", key)
		}
	}
}

func TestSerialExecutorNeverOverlapsWithinKey(t *testing.T) {
	e := NewSerialExecutor(zap.NewNop())

	var running, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit("room", func() {
			defer wg.Done()
			if atomic.AddInt32(&running, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
		}))
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlaps))
}

func TestSerialExecutorTearsDownIdleLanes(t *testing.T) {
	e := NewSerialExecutor(zap.NewNop())

	done := make(chan struct{})
	require.NoError(t, e.Submit("room", func() { close(done) }))
	<-done

	assert.Eventually(t, func() bool { return e.Lanes() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSerialExecutorSurvivesPanics(t *testing.T) {
	e := NewSerialExecutor(zap.NewNop())

	ran := make(chan struct{})
	require.NoError(t, e.Submit("room", func() { panic("boom") }))
	require.NoError(t, e.Submit("room", func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job after panic did not run")
	}
}

func TestSerialExecutorRejectsAfterClose(t *testing.T) {
	e := NewSerialExecutor(zap.NewNop())
	require.NoError(t, e.Close(context.Background()))

	assert.ErrorIs(t, e.Submit("room", func() {}), ErrClosed)
}

func TestInlineRunsImmediately(t *testing.T) {
	ran := false
	require.NoError(t, Inline{}.Submit("k", func() { ran = true }))
	assert.True(t, ran)
}
