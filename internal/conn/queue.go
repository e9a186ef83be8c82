package conn

import (
	"github.com/roach88/coedit/internal/protocol"
)

// outboundQueue is a bounded FIFO of messages waiting for authentication.
//
// Pushing onto a full queue evicts the oldest message. The queue is not
// safe for concurrent use; the Manager guards it with its own lock.
type outboundQueue struct {
	msgs []protocol.Message
	max  int
}

func newOutboundQueue(max int) *outboundQueue {
	return &outboundQueue{msgs: make([]protocol.Message, 0, min(max, 64)), max: max}
}

// Push appends m. If the queue was full the evicted message is returned.
func (q *outboundQueue) Push(m protocol.Message) (protocol.Message, bool) {
	var dropped protocol.Message
	evicted := false
	if len(q.msgs) >= q.max {
		dropped = q.msgs[0]
		q.msgs[0] = protocol.Message{}
		q.msgs = q.msgs[1:]
		evicted = true
	}
	q.msgs = append(q.msgs, m)
	return dropped, evicted
}

// PushFront puts messages back at the head in their original order, used
// when a flush is interrupted. Messages beyond capacity are dropped from
// the tail and counted.
func (q *outboundQueue) PushFront(msgs []protocol.Message) int {
	merged := make([]protocol.Message, 0, len(msgs)+len(q.msgs))
	merged = append(merged, msgs...)
	merged = append(merged, q.msgs...)
	dropped := 0
	if len(merged) > q.max {
		dropped = len(merged) - q.max
		merged = merged[:q.max]
	}
	q.msgs = merged
	return dropped
}

// Drain removes and returns every queued message in FIFO order.
func (q *outboundQueue) Drain() []protocol.Message {
	out := q.msgs
	q.msgs = make([]protocol.Message, 0, min(q.max, 64))
	return out
}

// Len returns the number of queued messages.
func (q *outboundQueue) Len() int {
	return len(q.msgs)
}
