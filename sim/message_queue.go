package sim

import (
	"container/heap"
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

// messageInFlight is a message or timer event awaiting delivery.
type messageInFlight struct {
	source    pbft.ReplicaID
	dest      pbft.ReplicaID
	payload   any // *pbft.SignedMessage or pbft.TimerEvent
	deliverAt time.Time

	seq uint64
}

func (m *messageInFlight) isTimer() bool {
	_, ok := m.payload.(pbft.TimerEvent)
	return ok
}

// before orders deliveries by time. At equal times timers go first so that a
// replica sees its own deadlines before messages that arrive with them, and
// insertion order breaks the remaining ties.
func (m *messageInFlight) before(other *messageInFlight) bool {
	if !m.deliverAt.Equal(other.deliverAt) {
		return m.deliverAt.Before(other.deliverAt)
	}
	if m.isTimer() != other.isTimer() {
		return m.isTimer()
	}
	return m.seq < other.seq
}

type inFlightHeap []*messageInFlight

func (h inFlightHeap) Len() int           { return len(h) }
func (h inFlightHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h inFlightHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *inFlightHeap) Push(x any)        { *h = append(*h, x.(*messageInFlight)) }
func (h *inFlightHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return last
}

// messageQueue delivers in-flight messages and timers in a deterministic order.
type messageQueue struct {
	pending inFlightHeap
	nextSeq uint64
}

func newMessagePriorityQueue() *messageQueue { return &messageQueue{} }

func (q *messageQueue) Len() int { return len(q.pending) }

func (q *messageQueue) Insert(m *messageInFlight) {
	m.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.pending, m)
}

// Remove pops the next delivery, or returns nil when nothing is in flight.
func (q *messageQueue) Remove() *messageInFlight {
	if len(q.pending) == 0 {
		return nil
	}
	return heap.Pop(&q.pending).(*messageInFlight)
}

func (q *messageQueue) Peek() *messageInFlight {
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}
