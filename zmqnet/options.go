package zmqnet

import (
	"errors"
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

type Option func(*options) error

type options struct {
	self                pbft.Address
	networkName         pbft.NetworkName
	listenAddress       string
	peers               map[pbft.Address]string
	inboxSize           int
	compression         bool
	breakerMaxFailures  int
	breakerResetTimeout time.Duration
}

func newOptions(o ...Option) (*options, error) {
	opts := &options{
		listenAddress:       "tcp://127.0.0.1:0",
		peers:               make(map[pbft.Address]string),
		inboxSize:           1024,
		breakerMaxFailures:  3,
		breakerResetTimeout: 10 * time.Second,
	}
	for _, apply := range o {
		if err := apply(opts); err != nil {
			return nil, err
		}
	}
	if opts.networkName == "" {
		return nil, errors.New("network name must be set")
	}
	return opts, nil
}

// WithSelf sets the address of the local validator, used as the socket
// identity and excluded from broadcasts.
func WithSelf(addr pbft.Address) Option {
	return func(o *options) error {
		o.self = addr
		return nil
	}
}

func WithNetworkName(nn pbft.NetworkName) Option {
	return func(o *options) error {
		o.networkName = nn
		return nil
	}
}

// WithListenAddress sets the ZeroMQ endpoint the ROUTER socket binds to.
func WithListenAddress(endpoint string) Option {
	return func(o *options) error {
		if endpoint == "" {
			return errors.New("listen address cannot be empty")
		}
		o.listenAddress = endpoint
		return nil
	}
}

// WithPeer registers the endpoint of a validator.
func WithPeer(addr pbft.Address, endpoint string) Option {
	return func(o *options) error {
		if endpoint == "" {
			return errors.New("peer endpoint cannot be empty")
		}
		o.peers[addr] = endpoint
		return nil
	}
}

func WithInboxSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return errors.New("inbox size must be at least 1")
		}
		o.inboxSize = size
		return nil
	}
}

func WithCompression(enabled bool) Option {
	return func(o *options) error {
		o.compression = enabled
		return nil
	}
}

func WithCircuitBreaker(maxFailures int, resetTimeout time.Duration) Option {
	return func(o *options) error {
		if maxFailures < 1 {
			return errors.New("max failures must be at least 1")
		}
		if resetTimeout <= 0 {
			return errors.New("reset timeout must be positive")
		}
		o.breakerMaxFailures = maxFailures
		o.breakerResetTimeout = resetTimeout
		return nil
	}
}
