// Package pubsubnet carries consensus messages over libp2p: broadcasts are
// gossiped on a pubsub topic and direct messages use a stream protocol.
package pubsubnet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft/internal/caching"
	"github.com/ledgerbft/go-ledgerbft/internal/circuitbreaker"
	"github.com/ledgerbft/go-ledgerbft/internal/clock"
	"github.com/ledgerbft/go-ledgerbft/internal/encoding"
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"github.com/ledgerbft/go-ledgerbft/internal/psutil"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	log = logging.Logger("ledgerbft/pubsubnet")

	_ pbft.Network       = (*Network)(nil)
	_ pubsub.ValidatorEx = (*Network)(nil).validatePubSubMessage

	// ErrNotRunning is returned by sends before Start or after Stop.
	ErrNotRunning = errors.New("network is not running")
	// ErrUnknownPeer is returned when no peer is mapped to the destination.
	ErrUnknownPeer = errors.New("no peer for validator address")
	// ErrSendQueueFull is returned when a direct message cannot be queued.
	ErrSendQueueFull = errors.New("send queue is full")
)

type outbound struct {
	to   peer.ID
	data []byte
}

// Network implements pbft.Network over libp2p.
type Network struct {
	*options

	clk        clock.Clock
	encoding   encoding.EncodeDecoder[*pbft.SignedMessage]
	inbox      chan *pbft.SignedMessage
	duplicates *caching.Set

	// mu guards topic, sendQueue and stop.
	mu        sync.RWMutex
	topic     *pubsub.Topic
	sendQueue chan outbound
	stop      func() error

	breakers *lru.Cache[peer.ID, *circuitbreaker.CircuitBreaker]
}

func New(o ...Option) (*Network, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	enc, err := encoding.New[*pbft.SignedMessage](opts.compression, int(opts.maxMessageSize))
	if err != nil {
		return nil, err
	}
	breakers, err := lru.New[peer.ID, *circuitbreaker.CircuitBreaker](opts.maxBreakers)
	if err != nil {
		return nil, err
	}
	return &Network{
		options:    opts,
		encoding:   enc,
		inbox:      make(chan *pbft.SignedMessage, opts.inboxSize),
		duplicates: caching.NewSet(opts.duplicateWindow),
		breakers:   breakers,
	}, nil
}

func (n *Network) NetworkName() pbft.NetworkName { return n.networkName }

// Inbox returns the channel on which messages from other peers are delivered.
// Messages published by this node are never delivered to it.
func (n *Network) Inbox() <-chan *pbft.SignedMessage { return n.inbox }

func (n *Network) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		return errors.New("network already started")
	}
	n.clk = clock.GetClock(ctx)

	if err := n.pubsub.RegisterTopicValidator(n.topicName, n.validatePubSubMessage); err != nil {
		return fmt.Errorf("failed to register topic validator: %w", err)
	}
	topic, err := n.pubsub.Join(n.topicName, pubsub.WithTopicMessageIdFn(psutil.ConsensusMessageIdFn))
	if err != nil {
		_ = n.pubsub.UnregisterTopicValidator(n.topicName)
		return fmt.Errorf("failed to join topic '%s': %w", n.topicName, err)
	}
	if n.topicScoreParams != nil {
		if err := topic.SetScoreParams(n.topicScoreParams); err != nil {
			// Most likely the router does not support peer scoring.
			log.Warnw("failed to set topic score params", "err", err)
		}
	}
	subscription, err := topic.Subscribe(pubsub.WithBufferSize(n.subscriptionBufferSize))
	if err != nil {
		_ = topic.Close()
		_ = n.pubsub.UnregisterTopicValidator(n.topicName)
		return fmt.Errorf("failed to subscribe to topic '%s': %w", n.topicName, err)
	}

	n.topic = topic
	n.sendQueue = make(chan outbound, n.sendQueueSize)
	n.host.SetStreamHandler(DirectProtocolName(n.networkName), n.handleStream)

	runCtx, cancel := context.WithCancel(context.Background())
	eg, runCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error {
		n.readSubscription(runCtx, subscription)
		return nil
	})
	for i := 0; i < n.sendWorkers; i++ {
		queue := n.sendQueue
		eg.Go(func() error {
			n.sendLoop(runCtx, queue)
			return nil
		})
	}

	n.stop = func() error {
		cancel()
		subscription.Cancel()
		n.host.RemoveStreamHandler(DirectProtocolName(n.networkName))
		err := multierr.Combine(
			eg.Wait(),
			n.pubsub.UnregisterTopicValidator(n.topicName),
		)
		if cerr := topic.Close(); cerr != nil {
			// Subscription cancellation is asynchronous and may still be in flight.
			log.Debugw("failed to close topic", "topic", n.topicName, "err", cerr)
		}
		return err
	}
	log.Infow("joined consensus topic", "topic", n.topicName, "peer", n.host.ID())
	return nil
}

func (n *Network) Stop(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop == nil {
		return nil
	}
	err := n.stop()
	n.stop = nil
	n.topic = nil
	n.sendQueue = nil
	return err
}

func (n *Network) Broadcast(msg *pbft.SignedMessage) (_err error) {
	ctx := context.Background()
	defer func() {
		metrics.sent.Add(ctx, 1, metric.WithAttributes(attrPathGossip, measurements.Status(ctx, _err)))
	}()

	n.mu.RLock()
	topic := n.topic
	n.mu.RUnlock()
	if topic == nil {
		return ErrNotRunning
	}
	encoded, err := n.encoding.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := topic.Publish(ctx, encoded); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (n *Network) Send(to pbft.Address, msg *pbft.SignedMessage) error {
	id, found := n.peers[to]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	encoded, err := n.encoding.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.sendQueue == nil {
		return ErrNotRunning
	}
	select {
	case n.sendQueue <- outbound{to: id, data: encoded}:
		return nil
	default:
		metrics.sent.Add(context.Background(), 1, metric.WithAttributes(attrPathDirect, measurements.AttrStatusError))
		return ErrSendQueueFull
	}
}

func (n *Network) validatePubSubMessage(ctx context.Context, _ peer.ID, msg *pubsub.Message) (_result pubsub.ValidationResult) {
	defer func(start time.Time) {
		attr := measurements.AttrFromPubSubValidationResult(_result)
		metrics.validatedMessages.Add(ctx, 1, metric.WithAttributes(attr))
		metrics.validationTime.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attr))
	}(time.Now())

	decoded, err := n.decode(msg.Data)
	if err != nil {
		log.Debugw("failed to decode message", "from", msg.GetFrom(), "err", err)
		return pubsub.ValidationReject
	}
	// Signatures are checked by the coordinator against the validator set.
	msg.ValidatorData = decoded
	return pubsub.ValidationAccept
}

func (n *Network) decode(data []byte) (*pbft.SignedMessage, error) {
	var msg pbft.SignedMessage
	if err := n.encoding.Decode(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind() == pbft.KIND_UNKNOWN {
		return nil, errors.New("message has no payload")
	}
	if len(msg.Signature) == 0 {
		return nil, errors.New("message is not signed")
	}
	return &msg, nil
}

func (n *Network) readSubscription(ctx context.Context, subscription *pubsub.Subscription) {
	for ctx.Err() == nil {
		msg, err := subscription.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Debugw("failed to read next message from subscription", "err", err)
			}
			continue
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		smsg, ok := msg.ValidatorData.(*pbft.SignedMessage)
		if !ok {
			continue
		}
		n.deliver(ctx, smsg, attrPathGossip)
	}
	log.Debug("stopped reading messages from consensus subscription")
}

func (n *Network) deliver(ctx context.Context, msg *pbft.SignedMessage, path attribute.KeyValue) {
	if n.duplicates.ContainsOrAdd(nil, msg.Signature) {
		metrics.duplicates.Add(ctx, 1, metric.WithAttributes(path))
	}
	select {
	case n.inbox <- msg:
		metrics.received.Add(ctx, 1, metric.WithAttributes(path, attrFromDropped(false)))
	default:
		metrics.received.Add(ctx, 1, metric.WithAttributes(path, attrFromDropped(true)))
		log.Warnw("inbox full, dropping message", "kind", msg.Kind(), "sender", msg.Sender)
	}
}

func (n *Network) breakerFor(id peer.ID) *circuitbreaker.CircuitBreaker {
	if cb, found := n.breakers.Get(id); found {
		return cb
	}
	cb := circuitbreaker.NewNamed(id.String(), n.clk, n.breakerMaxFailures, n.breakerResetTimeout)
	if existing, found, _ := n.breakers.PeekOrAdd(id, cb); found {
		return existing
	}
	return cb
}
