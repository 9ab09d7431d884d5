package statusstream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierDeliversLatestLineOnTick(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []string
	n := New(20*time.Millisecond, func(line string) {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
	})
	defer n.Stop()

	n.Set("step one")
	n.Set("step two") // coalesced, only the latest should fire

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "step two", got[len(got)-1])
}

func TestNotifierStopIsIdempotent(t *testing.T) {
	t.Parallel()
	n := New(10*time.Millisecond, func(string) {})

	assert.NotPanics(t, func() {
		n.Stop()
		n.Stop()
	})
}

func TestNotifierStopFlushesPendingLine(t *testing.T) {
	t.Parallel()

	done := make(chan string, 1)
	n := New(time.Hour, func(line string) { // long interval: only Stop's flush should fire
		select {
		case done <- line:
		default:
		}
	})
	n.Set("final status")
	n.Stop()

	select {
	case line := <-done:
		assert.Equal(t, "final status", line)
	case <-time.After(time.Second):
		t.Fatal("Stop did not flush pending line")
	}
}
