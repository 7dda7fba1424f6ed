package pbft

import (
	"errors"

	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrKeyPhase = "phase"
	attrKeyKind  = "kind"
	attrKeyErr   = "err"
)

var (
	meter = otel.Meter("ledgerbft/pbft")

	attrPhase = map[Phase]attribute.KeyValue{
		NONE_PHASE:         attribute.String(attrKeyPhase, NONE_PHASE.String()),
		PRE_PREPARED_PHASE: attribute.String(attrKeyPhase, PRE_PREPARED_PHASE.String()),
		PREPARED_PHASE:     attribute.String(attrKeyPhase, PREPARED_PHASE.String()),
		COMMITTED_PHASE:    attribute.String(attrKeyPhase, COMMITTED_PHASE.String()),
	}
	attrKind = map[MessageKind]attribute.KeyValue{
		KIND_UNKNOWN:     attribute.String(attrKeyKind, KIND_UNKNOWN.String()),
		KIND_PRE_PREPARE: attribute.String(attrKeyKind, KIND_PRE_PREPARE.String()),
		KIND_PREPARE:     attribute.String(attrKeyKind, KIND_PREPARE.String()),
		KIND_COMMIT:      attribute.String(attrKeyKind, KIND_COMMIT.String()),
		KIND_VIEW_CHANGE: attribute.String(attrKeyKind, KIND_VIEW_CHANGE.String()),
		KIND_NEW_VIEW:    attribute.String(attrKeyKind, KIND_NEW_VIEW.String()),
	}

	attrCacheHit  = attribute.String("cache", "hit")
	attrCacheMiss = attribute.String("cache", "miss")

	attrTriggerTimeout    = attribute.String("trigger", "ledger_close_timeout")
	attrTriggerJoin       = attribute.String("trigger", "join")
	attrTriggerNoNewView  = attribute.String("trigger", "new_view_timeout")
	attrViewChangeRequest = attribute.String("step", "request")
	attrViewChangeAdopt   = attribute.String("step", "adopt")

	metrics = struct {
		phaseCounter       metric.Int64Counter
		broadcastCounter   metric.Int64Counter
		reBroadcastCounter metric.Int64Counter
		errorCounter       metric.Int64Counter
		viewChangeCounter  metric.Int64Counter
		executedCounter    metric.Int64Counter
		pendingDropped     metric.Int64Counter
		currentView        metric.Int64Gauge
		lastExecuted       metric.Int64Gauge
		validationCache    metric.Int64Counter
	}{
		phaseCounter:       measurements.Must(meter.Int64Counter("ledgerbft_pbft_phase_counter", metric.WithDescription("Number of times instances reach a phase"))),
		broadcastCounter:   measurements.Must(meter.Int64Counter("ledgerbft_pbft_broadcast_counter", metric.WithDescription("Number of broadcasted messages"))),
		reBroadcastCounter: measurements.Must(meter.Int64Counter("ledgerbft_pbft_rebroadcast_counter", metric.WithDescription("Number of rebroadcasted messages"))),
		errorCounter:       measurements.Must(meter.Int64Counter("ledgerbft_pbft_error_counter", metric.WithDescription("Number of errors"))),
		viewChangeCounter: measurements.Must(meter.Int64Counter("ledgerbft_pbft_view_change_counter",
			metric.WithDescription("Number of view change steps labelled by step and trigger"))),
		executedCounter: measurements.Must(meter.Int64Counter("ledgerbft_pbft_executed_counter", metric.WithDescription("Number of executed sequences"))),
		pendingDropped: measurements.Must(meter.Int64Counter("ledgerbft_pbft_pending_dropped_counter",
			metric.WithDescription("Number of future view messages dropped because the pending queue was full"))),
		currentView:  measurements.Must(meter.Int64Gauge("ledgerbft_pbft_current_view", metric.WithDescription("The current view number"))),
		lastExecuted: measurements.Must(meter.Int64Gauge("ledgerbft_pbft_last_executed", metric.WithDescription("The last executed sequence number"))),
		validationCache: measurements.Must(meter.Int64Counter("ledgerbft_pbft_validation_cache",
			metric.WithDescription("The number of times the validation cache resulted in hit or miss."))),
	}
)

func metricAttributeFromError(err error) attribute.KeyValue {
	var v string
	var panicErr *PanicError
	switch {
	case errors.Is(err, ErrValidationMalformed):
		v = "invalid_malformed"
	case errors.Is(err, ErrValidationUnknownReplica):
		v = "invalid_unknown_replica"
	case errors.Is(err, ErrValidationNotPrimary):
		v = "invalid_not_primary"
	case errors.Is(err, ErrValidationInvalidSignature):
		v = "invalid_signature"
	case errors.Is(err, ErrValidationTooOld):
		v = "invalid_too_old"
	case errors.Is(err, ErrValidationInvalid):
		v = "invalid_msg"
	case errors.As(err, &ValidationError{}):
		v = "type_invalid"
	case errors.Is(err, ErrDigestMismatch):
		v = "digest_mismatch"
	case errors.Is(err, ErrConflictingProposal):
		v = "conflicting_proposal"
	case errors.Is(err, ErrReceivedRejected):
		v = "rejected"
	case errors.Is(err, ErrReceivedInternalError):
		v = "internal"
	case errors.As(err, &panicErr):
		v = "recovered_panic"
	default:
		v = "unknown"
	}
	return attribute.KeyValue{Key: attrKeyErr, Value: attribute.StringValue(v)}
}
