package pubsubnet

import (
	"errors"
	"fmt"
	"time"

	"github.com/ledgerbft/go-ledgerbft/internal/encoding"
	"github.com/ledgerbft/go-ledgerbft/internal/psutil"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

type Option func(*options) error

type options struct {
	host                   host.Host
	pubsub                 *pubsub.PubSub
	networkName            pbft.NetworkName
	topicName              string
	topicScoreParams       *pubsub.TopicScoreParams
	subscriptionBufferSize int
	inboxSize              int
	compression            bool
	peers                  map[pbft.Address]peer.ID
	sendQueueSize          int
	sendWorkers            int
	sendTimeout            time.Duration
	maxMessageSize         int64
	breakerMaxFailures     int
	breakerResetTimeout    time.Duration
	maxBreakers            int
	duplicateWindow        int
}

func newOptions(o ...Option) (*options, error) {
	opts := &options{
		topicScoreParams:       psutil.TopicScoreParams,
		subscriptionBufferSize: 128,
		inboxSize:              1024,
		peers:                  make(map[pbft.Address]peer.ID),
		sendQueueSize:          256,
		sendWorkers:            4,
		sendTimeout:            5 * time.Second,
		maxMessageSize:         encoding.DefaultMaxSize,
		breakerMaxFailures:     3,
		breakerResetTimeout:    10 * time.Second,
		maxBreakers:            256,
		duplicateWindow:        4096,
	}
	for _, apply := range o {
		if err := apply(opts); err != nil {
			return nil, err
		}
	}
	if opts.host == nil {
		return nil, errors.New("host must be set")
	}
	if opts.pubsub == nil {
		return nil, errors.New("pubsub must be set")
	}
	if opts.networkName == "" {
		return nil, errors.New("network name must be set")
	}
	if opts.topicName == "" {
		opts.topicName = TopicName(opts.networkName)
	}
	return opts, nil
}

// TopicName is the default gossip topic of a network.
func TopicName(nn pbft.NetworkName) string {
	return "/ledgerbft/consensus/" + string(nn)
}

func WithHost(h host.Host) Option {
	return func(o *options) error {
		if h == nil {
			return errors.New("host cannot be nil")
		}
		o.host = h
		return nil
	}
}

func WithPubSub(ps *pubsub.PubSub) Option {
	return func(o *options) error {
		if ps == nil {
			return errors.New("pubsub cannot be nil")
		}
		o.pubsub = ps
		return nil
	}
}

func WithNetworkName(nn pbft.NetworkName) Option {
	return func(o *options) error {
		o.networkName = nn
		return nil
	}
}

func WithTopicName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return errors.New("topic name cannot be empty")
		}
		o.topicName = name
		return nil
	}
}

func WithTopicScoreParams(params *pubsub.TopicScoreParams) Option {
	return func(o *options) error {
		o.topicScoreParams = params
		return nil
	}
}

func WithSubscriptionBufferSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return errors.New("subscription buffer size must be at least 1")
		}
		o.subscriptionBufferSize = size
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

// WithPeer maps a validator address to the libp2p peer that direct messages
// for it are sent to.
func WithPeer(addr pbft.Address, id peer.ID) Option {
	return func(o *options) error {
		if id == "" {
			return fmt.Errorf("peer ID of %s cannot be empty", addr)
		}
		o.peers[addr] = id
		return nil
	}
}

func WithSendQueue(size, workers int) Option {
	return func(o *options) error {
		if size < 1 || workers < 1 {
			return errors.New("send queue size and workers must be at least 1")
		}
		o.sendQueueSize = size
		o.sendWorkers = workers
		return nil
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("send timeout must be positive")
		}
		o.sendTimeout = d
		return nil
	}
}

// WithCircuitBreaker configures the per-peer breakers guarding direct sends.
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

func WithMaxBreakers(max int) Option {
	return func(o *options) error {
		if max < 1 {
			return errors.New("max breakers must be at least 1")
		}
		o.maxBreakers = max
		return nil
	}
}
