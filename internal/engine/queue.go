package engine

import (
	"time"

	"github.com/omitech/livetalk/internal/signal"
)

// QueuedCall is one call request parked because this participant was busy
// when it arrived.
type QueuedCall struct {
	Origin        string
	OriginIsAdmin bool
	DisplayName   string
	CallType      signal.CallType
	CreatedAt     time.Time
}

// CallQueue is a FIFO of call requests pending for one participant. It is not
// safe for concurrent use; the engine loop is its only caller.
type CallQueue struct {
	entries []QueuedCall
}

func NewCallQueue() *CallQueue {
	return &CallQueue{}
}

// Enqueue appends the request. A second request from an origin that already
// has an entry replaces that entry in place, keeping its queue position, so an
// origin never holds more than one slot.
func (q *CallQueue) Enqueue(req QueuedCall) {
	for i := range q.entries {
		if q.entries[i].Origin == req.Origin {
			q.entries[i] = req
			return
		}
	}
	q.entries = append(q.entries, req)
}

// PopNext removes and returns the oldest entry whose origin is still
// reachable. Entries for vanished origins are dropped silently as they are
// encountered.
func (q *CallQueue) PopNext(reachable func(origin string) bool) (QueuedCall, bool) {
	for len(q.entries) > 0 {
		head := q.entries[0]
		q.entries = q.entries[1:]
		if reachable == nil || reachable(head.Origin) {
			return head, true
		}
	}
	return QueuedCall{}, false
}

// Remove drops the entry for origin, if any. Used when the origin cancels or
// times out before being promoted.
func (q *CallQueue) Remove(origin string) bool {
	for i := range q.entries {
		if q.entries[i].Origin == origin {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *CallQueue) Len() int { return len(q.entries) }
