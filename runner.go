package ledgerbft

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerbft/go-ledgerbft/internal/clock"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	errInboxClosed = errors.New("transport inbox closed")

	attrResultAccepted = attribute.String("result", "accepted")
	attrResultRejected = attribute.String("result", "rejected")
	attrResultInvalid  = attribute.String("result", "invalid")
	attrResultPanic    = attribute.String("result", "panic")
)

// runner passes every concurrent event to the coordinator from a single
// goroutine.
type runner struct {
	coordinator *pbft.Coordinator
	clock       clock.Clock
	timers      <-chan pbft.TimerEvent
	inbox       <-chan *pbft.SignedMessage
}

// run returns nil once ctx is done, or an error if the inbox is closed.
func (r *runner) run(ctx context.Context) error {
	for {
		// prioritise timer delivery
		select {
		case ev := <-r.timers:
			r.handleTimer(ctx, ev)
		default:
		}

		select {
		case ev := <-r.timers:
			r.handleTimer(ctx, ev)
		case msg, ok := <-r.inbox:
			if !ok {
				return errInboxClosed
			}
			r.handleMessage(ctx, msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *runner) handleTimer(ctx context.Context, ev pbft.TimerEvent) {
	start := r.clock.Now()
	err := r.coordinator.ReceiveTimer(ctx, ev)
	r.record(ctx, attrKindTimer, start, err)
	if err != nil {
		log.Errorw("failed to process timer", "type", ev.Type, "id", ev.ID, "err", err)
	}
}

func (r *runner) handleMessage(ctx context.Context, msg *pbft.SignedMessage) {
	start := r.clock.Now()
	err := r.coordinator.Receive(ctx, msg)
	r.record(ctx, attrKindMessage, start, err)

	var panicErr *pbft.PanicError
	switch {
	case err == nil:
	case errors.As(err, &panicErr):
		log.Errorw("coordinator panicked processing message", "msg", msg, "err", err)
	default:
		// Rejections are routine: duplicates, stale views, late votes.
		log.Debugw("message not accepted", "msg", msg, "err", err)
	}
}

func (r *runner) record(ctx context.Context, kind attribute.KeyValue, start time.Time, err error) {
	var result attribute.KeyValue
	var panicErr *pbft.PanicError
	var validationErr pbft.ValidationError
	switch {
	case err == nil:
		result = attrResultAccepted
	case errors.As(err, &panicErr):
		result = attrResultPanic
	case errors.As(err, &validationErr):
		result = attrResultInvalid
	default:
		result = attrResultRejected
	}
	metrics.events.Add(ctx, 1, metric.WithAttributes(kind, result))
	metrics.eventTime.Record(ctx, r.clock.Since(start).Seconds(), metric.WithAttributes(kind))
}
