package pbft

import (
	"errors"
	"fmt"
	"time"
)

var (
	defaultConsensusCheckInterval     = time.Second
	defaultPublishInterval            = 2 * time.Second
	defaultLedgerCloseCheckInterval   = time.Second
	defaultLedgerCloseTimeout         = 15 * time.Second
	defaultViewChangeTimeout          = 10 * time.Second
	defaultNewViewResponseTimeout     = 20 * time.Second
	defaultNewViewResendInterval      = 5 * time.Second
	defaultCommitResendInterval       = 3 * time.Second
	defaultPrePrepareResendInterval   = 3 * time.Second
	defaultMaxBufferedMessagesPerInst = 1024
	defaultMaxPendingMessages         = 4096
	defaultMaxCachedViews             = 5
	defaultMaxCachedMessagesPerView   = 25_000
	defaultMaxInstancesInFlight       = 1
)

const defaultExecutedRetention uint64 = 1024

// Option represents a configurable parameter.
type Option func(*options) error

type options struct {
	consensusCheckInterval   time.Duration
	publishInterval          time.Duration
	ledgerCloseCheckInterval time.Duration
	ledgerCloseTimeout       time.Duration
	viewChangeTimeout        time.Duration
	newViewResponseTimeout   time.Duration
	newViewResendInterval    time.Duration
	commitResendInterval     time.Duration
	prePrepareResendInterval time.Duration

	maxBufferedMessagesPerInstance int
	maxPendingMessages             int
	maxCachedViews                 int
	maxCachedMessagesPerView       int
	maxInstancesInFlight           int
	executedRetention              uint64

	// lastExecuted is the sequence the executor has already applied when the
	// coordinator starts.
	lastExecuted uint64

	// checkOwnProposals makes the primary run its own proposals through the
	// ValueChecker, as backups do.
	checkOwnProposals bool

	// tracer traces logic logs for debugging and simulation purposes.
	tracer Tracer
}

func newOptions(o ...Option) (*options, error) {
	opts := &options{
		consensusCheckInterval:         defaultConsensusCheckInterval,
		publishInterval:                defaultPublishInterval,
		ledgerCloseCheckInterval:       defaultLedgerCloseCheckInterval,
		ledgerCloseTimeout:             defaultLedgerCloseTimeout,
		viewChangeTimeout:              defaultViewChangeTimeout,
		newViewResponseTimeout:         defaultNewViewResponseTimeout,
		newViewResendInterval:          defaultNewViewResendInterval,
		commitResendInterval:           defaultCommitResendInterval,
		prePrepareResendInterval:       defaultPrePrepareResendInterval,
		maxBufferedMessagesPerInstance: defaultMaxBufferedMessagesPerInst,
		maxPendingMessages:             defaultMaxPendingMessages,
		maxCachedViews:                 defaultMaxCachedViews,
		maxCachedMessagesPerView:       defaultMaxCachedMessagesPerView,
		maxInstancesInFlight:           defaultMaxInstancesInFlight,
		executedRetention:              defaultExecutedRetention,
	}
	for _, apply := range o {
		if err := apply(opts); err != nil {
			return nil, err
		}
	}
	if opts.newViewResponseTimeout < opts.viewChangeTimeout {
		return nil, fmt.Errorf("new view response timeout %s must not be shorter than view change timeout %s",
			opts.newViewResponseTimeout, opts.viewChangeTimeout)
	}
	return opts, nil
}

func positiveDuration(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be greater than zero; got: %s", name, d)
	}
	return nil
}

// WithConsensusCheckInterval sets how often the CONSENSUS_CHECK timer fires to
// resend stalled votes. Defaults to 1 second.
func WithConsensusCheckInterval(d time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("consensus check interval", d); err != nil {
			return err
		}
		o.consensusCheckInterval = d
		return nil
	}
}

// WithPublishInterval sets how often the primary is prompted to propose.
// Defaults to 2 seconds.
func WithPublishInterval(d time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("publish interval", d); err != nil {
			return err
		}
		o.publishInterval = d
		return nil
	}
}

// WithLedgerCloseTimeout sets how long a replica waits for an executed value
// before suspecting the primary, and how often it checks. Defaults to a 15
// second timeout checked every second.
func WithLedgerCloseTimeout(timeout, checkInterval time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("ledger close timeout", timeout); err != nil {
			return err
		}
		if err := positiveDuration("ledger close check interval", checkInterval); err != nil {
			return err
		}
		if checkInterval > timeout {
			return errors.New("ledger close check interval cannot exceed ledger close timeout")
		}
		o.ledgerCloseTimeout = timeout
		o.ledgerCloseCheckInterval = checkInterval
		return nil
	}
}

// WithViewChangeTimeout sets the age after which an unanswered view change
// vote is rebroadcast. Defaults to 10 seconds.
func WithViewChangeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("view change timeout", d); err != nil {
			return err
		}
		o.viewChangeTimeout = d
		return nil
	}
}

// WithNewViewResponseTimeout sets how long a replica waits for a new view
// after requesting a view change before moving on to the next view. Defaults
// to 20 seconds.
func WithNewViewResponseTimeout(d time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("new view response timeout", d); err != nil {
			return err
		}
		o.newViewResponseTimeout = d
		return nil
	}
}

// WithNewViewResendInterval sets the interval at which a primary resends its
// new view until the view makes progress. Defaults to 5 seconds.
func WithNewViewResendInterval(d time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("new view resend interval", d); err != nil {
			return err
		}
		o.newViewResendInterval = d
		return nil
	}
}

// WithCommitResendInterval sets the minimum interval between two commits sent
// for the same prepared instance. Defaults to 3 seconds.
func WithCommitResendInterval(d time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("commit resend interval", d); err != nil {
			return err
		}
		o.commitResendInterval = d
		return nil
	}
}

// WithPrePrepareResendInterval sets the interval after which the primary
// resends a pre-prepare that has not been prepared, with its round bumped.
// Defaults to 3 seconds.
func WithPrePrepareResendInterval(d time.Duration) Option {
	return func(o *options) error {
		if err := positiveDuration("pre-prepare resend interval", d); err != nil {
			return err
		}
		o.prePrepareResendInterval = d
		return nil
	}
}

// WithMaxBufferedMessagesPerInstance sets the maximum number of messages kept
// for replay per consensus instance. Defaults to 1024.
func WithMaxBufferedMessagesPerInstance(v int) Option {
	return func(o *options) error {
		if v < 1 {
			return fmt.Errorf("max buffered messages per instance must be at least 1; got: %d", v)
		}
		o.maxBufferedMessagesPerInstance = v
		return nil
	}
}

// WithMaxPendingMessages sets the maximum number of messages for future views
// held until the view is adopted. Defaults to 4096.
func WithMaxPendingMessages(v int) Option {
	return func(o *options) error {
		if v < 0 {
			return fmt.Errorf("max pending messages cannot be negative; got: %d", v)
		}
		o.maxPendingMessages = v
		return nil
	}
}

// WithMaxCachedViews sets the maximum number of views for which validated
// messages are cached. Defaults to 5.
func WithMaxCachedViews(v int) Option {
	return func(o *options) error {
		o.maxCachedViews = v
		return nil
	}
}

// WithMaxCachedMessagesPerView sets the maximum number of validated messages
// that are cached per view. Defaults to 25K.
func WithMaxCachedMessagesPerView(v int) Option {
	return func(o *options) error {
		o.maxCachedMessagesPerView = v
		return nil
	}
}

// WithMaxInstancesInFlight sets how many proposed but unexecuted instances the
// primary may have before it stops proposing. Defaults to 1.
func WithMaxInstancesInFlight(v int) Option {
	return func(o *options) error {
		if v < 1 {
			return fmt.Errorf("max instances in flight must be at least 1; got: %d", v)
		}
		o.maxInstancesInFlight = v
		return nil
	}
}

// WithExecutedInstanceRetention sets how many executed sequences are kept in
// the instance log to answer late votes. Defaults to 1024.
func WithExecutedInstanceRetention(n uint64) Option {
	return func(o *options) error {
		o.executedRetention = n
		return nil
	}
}

// WithLastExecuted sets the last sequence already applied by the Executor,
// typically the height of the local ledger. Agreement resumes at the next
// sequence. Defaults to 0.
func WithLastExecuted(seq uint64) Option {
	return func(o *options) error {
		o.lastExecuted = seq
		return nil
	}
}

// WithCheckOwnProposals makes the primary validate its own proposals with the
// ValueChecker. By default values from the ValueSource are trusted.
func WithCheckOwnProposals(check bool) Option {
	return func(o *options) error {
		o.checkOwnProposals = check
		return nil
	}
}

// WithTracer sets the Tracer for this coordinator, which receives diagnostic
// logs about the state mutation. Defaults to no tracer if unspecified.
func WithTracer(t Tracer) Option {
	return func(o *options) error {
		o.tracer = t
		return nil
	}
}
