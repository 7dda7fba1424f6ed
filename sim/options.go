package sim

import (
	"errors"
	"time"

	"github.com/ledgerbft/go-ledgerbft/ledger"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/ledgerbft/go-ledgerbft/sim/latency"
)

const (
	defaultSimNetworkName = "sim"
	defaultLatencySeed    = 0x264803e715714f95 // Seed from Drand.
	defaultReplicaCount   = 4
)

type Option func(*options) error

type options struct {
	// latencyModel models the cross replica communication latency throughout a
	// simulation.
	latencyModel latency.Model
	replicaCount int
	// If nil then FakeBackend is used.
	signingBackend signing.Backend
	dropRule       DropRule
	traceLevel     int
	networkName    pbft.NetworkName
	pbftOptions    []pbft.Option
	ledgerOptions  []ledger.Option
}

func newOptions(o ...Option) (*options, error) {
	var opts options
	for _, apply := range o {
		if err := apply(&opts); err != nil {
			return nil, err
		}
	}
	if opts.replicaCount == 0 {
		opts.replicaCount = defaultReplicaCount
	}
	if opts.latencyModel == nil {
		var err error
		if opts.latencyModel, err = latency.NewLogNormal(defaultLatencySeed, 50*time.Millisecond); err != nil {
			return nil, err
		}
	}
	if opts.signingBackend == nil {
		opts.signingBackend = signing.NewFakeBackend()
	}
	if opts.networkName == "" {
		opts.networkName = defaultSimNetworkName
	}
	return &opts, nil
}

// WithReplicaCount sets the number of replicas. Defaults to 4.
func WithReplicaCount(count int) Option {
	return func(o *options) error {
		if count < 1 {
			return errors.New("replica count must be at least 1")
		}
		o.replicaCount = count
		return nil
	}
}

// WithLatencyModel sets the latency model. Defaults to a log normal
// distribution with a 50ms mean and a fixed seed.
func WithLatencyModel(lm latency.Model) Option {
	return func(o *options) error {
		o.latencyModel = lm
		return nil
	}
}

func WithSigningBackend(sb signing.Backend) Option {
	return func(o *options) error {
		o.signingBackend = sb
		return nil
	}
}

// WithDropRule sets a rule deciding which messages are lost in transit.
func WithDropRule(rule DropRule) Option {
	return func(o *options) error {
		o.dropRule = rule
		return nil
	}
}

func WithTraceLevel(level int) Option {
	return func(o *options) error {
		o.traceLevel = level
		return nil
	}
}

func WithNetworkName(nn pbft.NetworkName) Option {
	return func(o *options) error {
		o.networkName = nn
		return nil
	}
}

// WithPbftOptions passes options to every replica's coordinator.
func WithPbftOptions(opts ...pbft.Option) Option {
	return func(o *options) error {
		o.pbftOptions = append(o.pbftOptions, opts...)
		return nil
	}
}

// WithLedgerOptions passes options to every replica's ledger.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(o *options) error {
		o.ledgerOptions = append(o.ledgerOptions, opts...)
		return nil
	}
}
