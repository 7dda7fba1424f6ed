package pbft

import (
	"context"
	"time"
)

// Network is the endpoint through which a replica exchanges signed messages
// with its peers. Both Broadcast and Send are fire-and-forget: they must not
// block on delivery and report only whether the message was handed to the
// transport.
type Network interface {
	// NetworkName returns the network's name, used for signature separation.
	NetworkName() NetworkName
	// Broadcast sends the message to all peers. The message is not delivered
	// locally; the coordinator handles its own messages.
	Broadcast(msg *SignedMessage) error
	// Send sends the message to the validator with the given address.
	Send(to Address, msg *SignedMessage) error
}

// TimerType names the kinds of timer events consumed by the coordinator.
type TimerType uint8

const (
	// CONSENSUS_CHECK drives resends of votes that have not made progress.
	CONSENSUS_CHECK TimerType = iota + 1
	// PUBLISH prompts the primary to propose the next value.
	PUBLISH
	// LEDGER_CLOSE_CHECK detects a primary that stopped making progress.
	LEDGER_CLOSE_CHECK
	// NEW_VIEW_RESPONSE_TIMEOUT fires when no new view arrived in time after a
	// view change was requested. The payload carries the requested view.
	NEW_VIEW_RESPONSE_TIMEOUT
)

func (t TimerType) String() string {
	switch t {
	case CONSENSUS_CHECK:
		return "CONSENSUS_CHECK"
	case PUBLISH:
		return "PUBLISH"
	case LEDGER_CLOSE_CHECK:
		return "LEDGER_CLOSE_CHECK"
	case NEW_VIEW_RESPONSE_TIMEOUT:
		return "NEW_VIEW_RESPONSE_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

type TimerID uint64

// TimerEvent is delivered once per firing of a scheduled timer.
type TimerEvent struct {
	ID        TimerID
	Type      TimerType
	Payload   int64
	Timestamp time.Time
}

// Scheduler schedules timer events. Fired events are delivered to the
// coordinator by the host's event loop, never by calling into it from the
// timer goroutine.
type Scheduler interface {
	ScheduleDelay(d time.Duration, t TimerType, payload int64) TimerID
	ScheduleRepeating(interval time.Duration, t TimerType) TimerID
	// Cancel removes a timer before it fires. Returns false if the timer is
	// unknown or has already fired.
	Cancel(id TimerID) bool
}

type Clock interface {
	// Now returns the current network time.
	Now() time.Time
}

type Signer interface {
	// Sign signs a message with the secret key corresponding to a public key.
	Sign(ctx context.Context, sender PubKey, msg []byte) ([]byte, error)
}

type Verifier interface {
	// Verify verifies a signature for the given public key.
	Verify(pubKey PubKey, msg, sig []byte) error
}

type Digester interface {
	// Digest hashes a proposed value.
	Digest(value []byte) Digest
}

// ViewStore persists the last adopted view for crash recovery.
type ViewStore interface {
	StoreView(ctx context.Context, view int64) error
	// LoadView returns false if no view was ever stored.
	LoadView(ctx context.Context) (int64, bool, error)
}

// Executor receives committed values, exactly once per sequence and in
// sequence order.
type Executor interface {
	Execute(ctx context.Context, cert *CommitCertificate) error
}

// ValueSource supplies the values the primary proposes.
type ValueSource interface {
	NextValue(ctx context.Context, sequence uint64) ([]byte, error)
}

// ValueChecker validates proposed values at the application level.
type ValueChecker interface {
	CheckValue(ctx context.Context, value []byte) ValueCheck
}

// Tracer collects trace logs that capture logical state changes.
// The primary purpose of Tracer is to aid debugging and simulation.
type Tracer interface {
	Log(format string, args ...any)
}

// Host provides the coordinator with access to system resources.
type Host interface {
	Network
	Scheduler
	Clock
	Signer
	Verifier
	Digester
	ViewStore
	Executor
	ValueSource
	ValueChecker
}
