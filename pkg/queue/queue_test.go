package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
)

func TestSubmitRejectsDuplicateUser(t *testing.T) {
	t.Parallel()
	q := New(10)

	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u1"}))
	err := q.Submit(&chatdata.ConversationRequest{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.AlreadyActive))
}

func TestSubmitRejectsOverCapacity(t *testing.T) {
	t.Parallel()
	q := New(1)

	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u1"}))
	err := q.Submit(&chatdata.ConversationRequest{UserID: "u2"})
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.CapacityExceeded))
}

func TestPopReturnsFIFOOrder(t *testing.T) {
	t.Parallel()
	q := New(10)
	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u1"}))
	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u2"}))

	ctx := context.Background()
	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, chatdata.UserID("u1"), first.UserID)
	assert.Equal(t, chatdata.StatusProcessing, first.Status)

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, chatdata.UserID("u2"), second.UserID)
}

func TestPopBlocksUntilSubmit(t *testing.T) {
	t.Parallel()
	q := New(10)

	done := make(chan *chatdata.ConversationRequest, 1)
	go func() {
		req, err := q.Pop(context.Background())
		if err == nil {
			done <- req
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u1"}))

	select {
	case req := <-done:
		assert.Equal(t, chatdata.UserID("u1"), req.UserID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Submit")
	}
}

func TestPopReturnsErrorOnContextDone(t *testing.T) {
	t.Parallel()
	q := New(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Timeout))
}

func TestCompleteReleasesUserSlot(t *testing.T) {
	t.Parallel()
	q := New(10)
	req := &chatdata.ConversationRequest{UserID: "u1"}
	require.NoError(t, q.Submit(req))

	q.Complete(req, chatdata.StatusCompleted)
	assert.Equal(t, chatdata.StatusCompleted, req.Status)

	// user slot freed, resubmission allowed
	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u1"}))
}

func TestPositionAndDepth(t *testing.T) {
	t.Parallel()
	q := New(10)
	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u1"}))
	require.NoError(t, q.Submit(&chatdata.ConversationRequest{UserID: "u2"}))

	assert.Equal(t, 1, q.Position("u1"))
	assert.Equal(t, 2, q.Position("u2"))
	assert.Equal(t, 0, q.Position("u3"))
	assert.Equal(t, 2, q.Depth())
}
