// Package queue implements the Conversation Queue: a
// bounded FIFO of ConversationRequest with a one-request-per-user
// invariant, so one chatty user can't starve everyone else.
package queue

import (
	"context"
	"sync"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
)

// Queue is a bounded FIFO enforcing at most one in-flight-or-queued
// request per user.
type Queue struct {
	mu sync.Mutex
	notEmpty chan struct{}
	items []*chatdata.ConversationRequest
	byUser map[chatdata.UserID]*chatdata.ConversationRequest
	capacity int
}

// New creates a Queue with the given bounded capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		notEmpty: make(chan struct{}, 1),
		byUser: make(map[chatdata.UserID]*chatdata.ConversationRequest),
		capacity: capacity,
	}
}

// Submit enqueues req. Returns boxerr.AlreadyActive if the user already
// has a request queued or processing, and boxerr.CapacityExceeded if the
// queue is full.
func (q *Queue) Submit(req *chatdata.ConversationRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byUser[req.UserID]; exists {
		return boxerr.New(boxerr.AlreadyActive, "request already queued for user "+string(req.UserID))
	}
	if len(q.items) >= q.capacity {
		return boxerr.New(boxerr.CapacityExceeded, "conversation queue full")
	}

	req.Status = chatdata.StatusQueued
	q.items = append(q.items, req)
	q.byUser[req.UserID] = req

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	return nil
}

// Pop blocks until a request is available or ctx is done, then removes
// and returns the oldest one.
func (q *Queue) Pop(ctx context.Context) (*chatdata.ConversationRequest, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items = q.items[1:]
			req.Status = chatdata.StatusProcessing
			q.mu.Unlock()
			return req, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notEmpty:
			continue
		case <-ctx.Done():
			return nil, boxerr.Wrap(boxerr.Timeout, "pop conversation request", ctx.Err())
		}
	}
}

// Complete releases the one-per-user slot for req's user, allowing them
// to submit another request.
func (q *Queue) Complete(req *chatdata.ConversationRequest, status chatdata.RequestStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req.Status = status
	delete(q.byUser, req.UserID)
}

// Position reports a user's 1-indexed position in the queue, or 0 if they
// have no queued (not yet processing) request — used by the `status`
// command surface.
func (q *Queue) Position(user chatdata.UserID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.items {
		if r.UserID == user {
			return i + 1
		}
	}
	return 0
}

// Depth reports the current queued (not yet popped) length.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
