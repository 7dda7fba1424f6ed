package sim

import (
	"testing"
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/stretchr/testify/require"
)

func TestMessageQueue_DeliversInTimeOrder(t *testing.T) {
	subject := newMessagePriorityQueue()
	require.Nil(t, subject.Peek())
	require.Nil(t, subject.Remove())

	start := time.Unix(0, 0)
	var want []*messageInFlight
	for _, offset := range []time.Duration{time.Second, 13 * time.Second, 30 * time.Second, 130 * time.Second} {
		want = append(want, &messageInFlight{dest: 1, payload: &pbft.SignedMessage{}, deliverAt: start.Add(offset)})
	}
	for _, i := range []int{1, 3, 0, 2} {
		subject.Insert(want[i])
	}

	require.Equal(t, 4, subject.Len())
	require.Same(t, want[0], subject.Peek())
	for _, m := range want {
		require.Same(t, m, subject.Remove())
	}
	require.Zero(t, subject.Len())
	require.Nil(t, subject.Remove())
}

func TestMessageQueue_TimersFirstThenInsertionOrder(t *testing.T) {
	at := time.Unix(60, 0)
	var (
		first  = &messageInFlight{source: 1, dest: 2, payload: &pbft.SignedMessage{}, deliverAt: at}
		second = &messageInFlight{source: 3, dest: 2, payload: &pbft.SignedMessage{}, deliverAt: at}
		timer  = &messageInFlight{source: 2, dest: 2, payload: pbft.TimerEvent{Type: pbft.PUBLISH}, deliverAt: at}
		later  = &messageInFlight{source: 2, dest: 2, payload: pbft.TimerEvent{Type: pbft.PUBLISH}, deliverAt: at.Add(time.Nanosecond)}
	)
	subject := newMessagePriorityQueue()
	for _, m := range []*messageInFlight{later, first, second, timer} {
		subject.Insert(m)
	}
	for _, m := range []*messageInFlight{timer, first, second, later} {
		require.Same(t, m, subject.Remove())
	}
}
