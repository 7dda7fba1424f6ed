// Package timer schedules typed consensus timer events on a clock and
// delivers them over a bounded channel.
package timer

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft/internal/clock"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var log = logging.Logger("ledgerbft/timer")

var _ pbft.Scheduler = (*Service)(nil)

// Service implements pbft.Scheduler. Timer callbacks never block: an event
// that does not fit in the channel is dropped and counted.
type Service struct {
	clock  clock.Clock
	events chan pbft.TimerEvent

	mu     sync.Mutex
	closed bool
	nextID pbft.TimerID
	timers map[pbft.TimerID]*scheduled
}

type scheduled struct {
	timer    *clock.Timer
	kind     pbft.TimerType
	payload  int64
	interval time.Duration
}

// NewService creates a scheduler on the clock carried by ctx, delivering at
// most capacity undelivered events.
func NewService(ctx context.Context, capacity int) *Service {
	return &Service{
		clock:  clock.GetClock(ctx),
		events: make(chan pbft.TimerEvent, max(1, capacity)),
		timers: make(map[pbft.TimerID]*scheduled),
	}
}

// Events returns the channel fired timers are delivered on.
func (s *Service) Events() <-chan pbft.TimerEvent { return s.events }

func (s *Service) ScheduleDelay(d time.Duration, t pbft.TimerType, payload int64) pbft.TimerID {
	return s.schedule(&scheduled{kind: t, payload: payload}, d)
}

func (s *Service) ScheduleRepeating(interval time.Duration, t pbft.TimerType) pbft.TimerID {
	return s.schedule(&scheduled{kind: t, interval: interval}, interval)
}

func (s *Service) schedule(entry *scheduled, d time.Duration) pbft.TimerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.closed {
		return id
	}
	entry.timer = s.clock.AfterFunc(d, func() { s.fire(id) })
	s.timers[id] = entry
	return id
}

// Cancel stops a timer. A timer that fires concurrently with Cancel is either
// delivered before Cancel returns true, or not at all.
func (s *Service) Cancel(id pbft.TimerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, found := s.timers[id]
	if !found {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, id)
	return true
}

func (s *Service) fire(id pbft.TimerID) {
	s.mu.Lock()
	entry, found := s.timers[id]
	if !found {
		s.mu.Unlock()
		return
	}
	if entry.interval > 0 {
		entry.timer = s.clock.AfterFunc(entry.interval, func() { s.fire(id) })
	} else {
		delete(s.timers, id)
	}
	ev := pbft.TimerEvent{ID: id, Type: entry.kind, Payload: entry.payload, Timestamp: s.clock.Now()}
	select {
	case s.events <- ev:
	default:
		metrics.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", ev.Type.String())))
		log.Warnw("timer event dropped: channel full", "id", id, "type", ev.Type)
	}
	s.mu.Unlock()
}

// Close stops every timer. Events already delivered stay in the channel.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	s.closed = true
}
