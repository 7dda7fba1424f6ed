package ledgerbft

import (
	"errors"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

type Option func(*options) error

type options struct {
	pbftOptions      []pbft.Option
	datastorePrefix  string
	timerCapacity    int
	walPath          string
	walPurgeInterval uint64
}

func newOptions(o ...Option) (*options, error) {
	opts := &options{
		datastorePrefix:  "/ledgerbft",
		timerCapacity:    256,
		walPurgeInterval: 64,
	}
	for _, apply := range o {
		if err := apply(opts); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// WithPbftOptions passes options through to the coordinator.
func WithPbftOptions(o ...pbft.Option) Option {
	return func(opts *options) error {
		opts.pbftOptions = append(opts.pbftOptions, o...)
		return nil
	}
}

// WithDatastorePrefix sets the datastore namespace of the node's view store.
// Defaults to "/ledgerbft".
func WithDatastorePrefix(prefix string) Option {
	return func(o *options) error {
		if prefix == "" {
			return errors.New("datastore prefix cannot be empty")
		}
		o.datastorePrefix = prefix
		return nil
	}
}

// WithTimerCapacity sets how many fired timer events may wait for the runner
// before further ones are dropped.
func WithTimerCapacity(capacity int) Option {
	return func(o *options) error {
		if capacity < 1 {
			return errors.New("timer capacity must be at least 1")
		}
		o.timerCapacity = capacity
		return nil
	}
}

// WithWriteAheadLog enables the log of own signed messages at the given
// directory. Without it a restarted replica may equivocate.
func WithWriteAheadLog(path string) Option {
	return func(o *options) error {
		o.walPath = path
		return nil
	}
}

// WithWriteAheadLogPurgeInterval sets every how many executed sequences the
// write-ahead log is purged. Defaults to 64.
func WithWriteAheadLogPurgeInterval(interval uint64) Option {
	return func(o *options) error {
		if interval == 0 {
			return errors.New("purge interval must be at least 1")
		}
		o.walPurgeInterval = interval
		return nil
	}
}
