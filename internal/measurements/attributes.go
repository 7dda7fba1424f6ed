package measurements

import (
	"context"
	"errors"
	"os"

	"github.com/ipfs/go-datastore"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"go.opentelemetry.io/otel/attribute"
)

const statusKey = attribute.Key("status")

var (
	AttrStatusSuccess  = statusKey.String("success")
	AttrStatusError    = statusKey.String("error-other")
	AttrStatusPanic    = statusKey.String("error-panic")
	AttrStatusCanceled = statusKey.String("error-canceled")
	AttrStatusTimeout  = statusKey.String("error-timeout")
	AttrStatusNotFound = statusKey.String("error-not-found")
)

// Status classifies the outcome of an operation run under ctx.
func Status(ctx context.Context, err error) attribute.KeyValue {
	if err == nil {
		return AttrStatusSuccess
	}
	ctxErr := ctx.Err()
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		return AttrStatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctxErr, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded), os.IsTimeout(err):
		return AttrStatusTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctxErr, context.Canceled):
		return AttrStatusCanceled
	}
	return AttrStatusError
}

var validationResults = map[pubsub.ValidationResult]attribute.KeyValue{
	pubsub.ValidationAccept: attribute.String("result", "accepted"),
	pubsub.ValidationReject: attribute.String("result", "rejected"),
	pubsub.ValidationIgnore: attribute.String("result", "ignored"),
}

// AttrFromPubSubValidationResult labels the verdict of a gossip validator.
func AttrFromPubSubValidationResult(result pubsub.ValidationResult) attribute.KeyValue {
	if attr, ok := validationResults[result]; ok {
		return attr
	}
	return attribute.String("result", "unknown")
}
