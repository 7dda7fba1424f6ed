package ledger

import (
	"context"
	"errors"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

type Option func(*options) error

type options struct {
	maxValueSize int
	maxQueueSize int
	check        func(context.Context, []byte) pbft.ValueCheck
}

func newOptions(o ...Option) (*options, error) {
	opts := &options{
		maxValueSize: 1 << 20,
		maxQueueSize: 10_000,
	}
	for _, apply := range o {
		if err := apply(opts); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// WithMaxValueSize sets the largest accepted value in bytes. Defaults to 1MiB.
func WithMaxValueSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return errors.New("max value size must be at least 1")
		}
		o.maxValueSize = size
		return nil
	}
}

func WithMaxQueueSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return errors.New("max queue size must be at least 1")
		}
		o.maxQueueSize = size
		return nil
	}
}

// WithValueCheck sets an application check applied to every proposed value.
func WithValueCheck(check func(context.Context, []byte) pbft.ValueCheck) Option {
	return func(o *options) error {
		o.check = check
		return nil
	}
}
