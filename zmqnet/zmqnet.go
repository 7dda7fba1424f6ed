// Package zmqnet carries consensus messages over ZeroMQ. Every node binds a
// ROUTER socket and dials one DEALER socket per peer.
package zmqnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft/internal/circuitbreaker"
	"github.com/ledgerbft/go-ledgerbft/internal/clock"
	"github.com/ledgerbft/go-ledgerbft/internal/encoding"
	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
)

var (
	log   = logging.Logger("ledgerbft/zmqnet")
	meter = otel.Meter("ledgerbft/zmqnet")

	_ pbft.Network = (*Network)(nil)

	ErrNotRunning  = errors.New("network is not running")
	ErrUnknownPeer = errors.New("no endpoint for validator address")

	metrics = struct {
		sent     metric.Int64Counter
		received metric.Int64Counter
	}{
		sent: measurements.Must(meter.Int64Counter(
			"ledgerbft_zmqnet_sent_messages",
			metric.WithDescription("Number of messages sent, labelled by status."),
			metric.WithUnit("{message}"))),
		received: measurements.Must(meter.Int64Counter(
			"ledgerbft_zmqnet_received_messages",
			metric.WithDescription("Number of messages received, labelled by whether they were dropped."),
			metric.WithUnit("{message}"))),
	}
)

type dealer struct {
	socket  zmq4.Socket
	breaker *circuitbreaker.CircuitBreaker
}

// Network implements pbft.Network over ZeroMQ.
type Network struct {
	*options

	encoding encoding.EncodeDecoder[*pbft.SignedMessage]
	inbox    chan *pbft.SignedMessage

	// mu guards everything below.
	mu      sync.RWMutex
	clk     clock.Clock
	ctx     context.Context
	cancel  context.CancelFunc
	router  zmq4.Socket
	dealers map[pbft.Address]*dealer
	done    chan struct{}
}

func New(o ...Option) (*Network, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	enc, err := encoding.New[*pbft.SignedMessage](opts.compression, 0)
	if err != nil {
		return nil, err
	}
	return &Network{
		options:  opts,
		encoding: enc,
		inbox:    make(chan *pbft.SignedMessage, opts.inboxSize),
		dealers:  make(map[pbft.Address]*dealer),
	}, nil
}

func (n *Network) NetworkName() pbft.NetworkName { return n.networkName }

// Inbox returns the channel on which received messages are delivered.
func (n *Network) Inbox() <-chan *pbft.SignedMessage { return n.inbox }

// Addr returns the bound ROUTER endpoint, or empty if not running.
func (n *Network) Addr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.router == nil || n.router.Addr() == nil {
		return ""
	}
	return "tcp://" + n.router.Addr().String()
}

// AddPeer registers or replaces the endpoint of a validator.
func (n *Network) AddPeer(addr pbft.Address, endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, found := n.dealers[addr]; found {
		_ = existing.socket.Close()
		delete(n.dealers, addr)
	}
	n.peers[addr] = endpoint
}

func (n *Network) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.router != nil {
		return errors.New("network already started")
	}
	n.clk = clock.GetClock(ctx)
	n.ctx, n.cancel = context.WithCancel(context.Background())
	router := zmq4.NewRouter(n.ctx, zmq4.WithID(n.identity()))
	if err := router.Listen(n.listenAddress); err != nil {
		n.cancel()
		return fmt.Errorf("failed to bind router to %s: %w", n.listenAddress, err)
	}
	n.router = router
	n.done = make(chan struct{})
	go n.receiveLoop(n.ctx, router, n.done)
	log.Infow("zmq network started", "endpoint", "tcp://"+router.Addr().String())
	return nil
}

func (n *Network) Stop(context.Context) error {
	n.mu.Lock()
	if n.router == nil {
		n.mu.Unlock()
		return nil
	}
	n.cancel()
	err := n.router.Close()
	for addr, d := range n.dealers {
		err = multierr.Append(err, d.socket.Close())
		delete(n.dealers, addr)
	}
	n.router = nil
	done := n.done
	n.mu.Unlock()

	<-done
	return err
}

func (n *Network) identity() zmq4.SocketIdentity {
	return zmq4.SocketIdentity(n.self.String())
}

func (n *Network) Broadcast(msg *pbft.SignedMessage) error {
	n.mu.RLock()
	peers := make([]pbft.Address, 0, len(n.peers))
	for addr := range n.peers {
		if addr != n.self {
			peers = append(peers, addr)
		}
	}
	n.mu.RUnlock()

	data, err := n.encoding.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	var errs error
	for _, addr := range peers {
		errs = multierr.Append(errs, n.send(addr, data))
	}
	return errs
}

func (n *Network) Send(to pbft.Address, msg *pbft.SignedMessage) error {
	data, err := n.encoding.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return n.send(to, data)
}

func (n *Network) send(to pbft.Address, data []byte) (_err error) {
	defer func() {
		metrics.sent.Add(context.Background(), 1, metric.WithAttributes(measurements.Status(context.Background(), _err)))
	}()
	d, err := n.dealerFor(to)
	if err != nil {
		return err
	}
	return d.breaker.Run(func() error {
		return d.socket.Send(zmq4.NewMsg(data))
	})
}

func (n *Network) dealerFor(to pbft.Address) (*dealer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.router == nil {
		return nil, ErrNotRunning
	}
	if d, found := n.dealers[to]; found {
		return d, nil
	}
	endpoint, found := n.peers[to]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	socket := zmq4.NewDealer(n.ctx, zmq4.WithID(n.identity()))
	if err := socket.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	d := &dealer{
		socket:  socket,
		breaker: circuitbreaker.NewNamed(endpoint, n.clk, n.breakerMaxFailures, n.breakerResetTimeout),
	}
	n.dealers[to] = d
	return d, nil
}

func (n *Network) receiveLoop(ctx context.Context, router zmq4.Socket, done chan<- struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		zmsg, err := router.Recv()
		if err != nil {
			if ctx.Err() == nil {
				log.Debugw("failed to receive message", "err", err)
			}
			continue
		}
		if len(zmsg.Frames) == 0 {
			continue
		}
		// The ROUTER prepends the sender identity frame.
		var msg pbft.SignedMessage
		if err := n.encoding.Decode(zmsg.Frames[len(zmsg.Frames)-1], &msg); err != nil {
			log.Debugw("failed to decode message", "err", err)
			continue
		}
		if msg.Kind() == pbft.KIND_UNKNOWN {
			continue
		}
		select {
		case n.inbox <- &msg:
			metrics.received.Add(ctx, 1, metric.WithAttributes(attribute.Bool("dropped", false)))
		default:
			metrics.received.Add(ctx, 1, metric.WithAttributes(attribute.Bool("dropped", true)))
			log.Warnw("inbox full, dropping message", "kind", msg.Kind(), "sender", msg.Sender)
		}
	}
}
