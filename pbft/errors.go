package pbft

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	_ error = (*ValidationError)(nil)

	// ErrValidationMalformed signals that a message is missing its payload, or
	// carries an invalid view or sequence number.
	ErrValidationMalformed = newValidationError("message malformed")
	// ErrValidationUnknownReplica signals that the sender is not part of the
	// current validator set, or does not match the replica id in the payload.
	ErrValidationUnknownReplica = newValidationError("unknown replica")
	// ErrValidationNotPrimary signals a pre-prepare or new-view from a replica
	// that is not the primary of the view it addresses.
	ErrValidationNotPrimary = newValidationError("sender is not primary")
	// ErrValidationInvalidSignature signals that the envelope signature does not
	// verify against the sender's public key.
	ErrValidationInvalidSignature = newValidationError("invalid signature")
	// ErrValidationTooOld signals that a message belongs to a prior view.
	ErrValidationTooOld = newValidationError("message is for prior view")
	// ErrValidationInvalid signals that a message violates the validity rules
	// of the protocol.
	ErrValidationInvalid = newValidationError("message invalid")

	// ErrDigestMismatch signals that a digest does not match the value or the
	// stored pre-prepare.
	ErrDigestMismatch = errors.New("digest mismatch")
	// ErrConflictingProposal signals a second, different proposal for the same
	// instance.
	ErrConflictingProposal = errors.New("conflicting proposal")
	// ErrReceivedRejected signals that a handler did not accept a valid message.
	ErrReceivedRejected = errors.New("message rejected")
	// ErrReceivedInternalError signals that an error has occurred during message
	// processing.
	ErrReceivedInternalError = errors.New("error processing message")
	// ErrNotStarted signals a call on a coordinator that has not been started.
	ErrNotStarted = errors.New("coordinator not started")
	// ErrNoValue is returned by a ValueSource that has nothing to propose. The
	// primary skips the publish round, or fills a sequence gap with an empty
	// value.
	ErrNoValue = errors.New("no value to propose")
)

// ValidationError signals that an error has occurred while validating a
// SignedMessage.
type ValidationError struct{ message string }

type PanicError struct {
	Cause      any
	stackTrace string
}

func newValidationError(message string) ValidationError { return ValidationError{message: message} }
func (e ValidationError) Error() string                 { return e.message }

func newPanicError(cause any) *PanicError {
	return &PanicError{
		Cause:      cause,
		stackTrace: string(debug.Stack()),
	}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coordinator panicked: %v\n%v", e.Cause, e.stackTrace)
}
