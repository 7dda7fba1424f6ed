package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/sim/latency"
)

const (
	TraceNone = iota
	TraceSent
	TraceRecvd
	TraceLogic
	TraceAll
)

const _ = TraceAll // Suppress unused constant warning.

// DropRule decides whether a message from one replica to another is lost.
type DropRule func(from, to pbft.ReplicaID, msg *pbft.SignedMessage) bool

// Network delivers messages and timer events to simulated replicas in order
// of delivery time, one at a time, on a simulated clock.
type Network struct {
	hosts     []*simHost
	addresses map[pbft.Address]pbft.ReplicaID
	// Messages and timer events not yet delivered.
	queue   *messageQueue
	latency latency.Model
	drop    DropRule
	// Timestamp of last event.
	clock       time.Time
	traceLevel  int
	networkName pbft.NetworkName

	delivered int
	dropped   int
}

func newNetwork(latency latency.Model, drop DropRule, traceLevel int, nn pbft.NetworkName) *Network {
	return &Network{
		addresses:   make(map[pbft.Address]pbft.ReplicaID),
		queue:       newMessagePriorityQueue(),
		latency:     latency,
		drop:        drop,
		clock:       time.Unix(0, 0).UTC(),
		traceLevel:  traceLevel,
		networkName: nn,
	}
}

func (n *Network) addHost(h *simHost, addr pbft.Address) {
	if _, found := n.addresses[addr]; found {
		panic("duplicate replica address")
	}
	n.addresses[addr] = h.id
	n.hosts = append(n.hosts, h)
}

func (n *Network) Time() time.Time { return n.clock }

// Delivered returns the number of messages delivered so far.
func (n *Network) Delivered() int { return n.delivered }

// Dropped returns the number of messages lost to crashed replicas or the drop
// rule.
func (n *Network) Dropped() int { return n.dropped }

func (n *Network) broadcast(from pbft.ReplicaID, msg *pbft.SignedMessage) error {
	n.log(TraceSent, "P%d ↗ %v", from, msg)
	for _, h := range n.hosts {
		if h.id != from {
			if err := n.enqueue(from, h.id, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Network) send(from pbft.ReplicaID, to pbft.Address, msg *pbft.SignedMessage) error {
	dest, found := n.addresses[to]
	if !found {
		return fmt.Errorf("unknown replica address %s", to)
	}
	n.log(TraceSent, "P%d → P%d %v", from, dest, msg)
	return n.enqueue(from, dest, msg)
}

// enqueue copies msg through its wire encoding, so that replicas never share
// message state.
func (n *Network) enqueue(from, to pbft.ReplicaID, msg *pbft.SignedMessage) error {
	var buf bytes.Buffer
	if err := msg.MarshalCBOR(&buf); err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	var clone pbft.SignedMessage
	if err := clone.UnmarshalCBOR(&buf); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	n.queue.Insert(&messageInFlight{
		source:    from,
		dest:      to,
		payload:   &clone,
		deliverAt: n.clock.Add(n.latency.Sample(n.clock, from, to)),
	})
	return nil
}

func (n *Network) scheduleTimer(h *simHost, ev pbft.TimerEvent, at time.Time) {
	n.queue.Insert(&messageInFlight{
		source:    h.id,
		dest:      h.id,
		payload:   ev,
		deliverAt: at,
	})
}

// Tick delivers the earliest message or timer event. It returns false when
// nothing is left in flight. Rejected messages are expected and only traced;
// an error is returned only when a replica panics.
func (n *Network) Tick(ctx context.Context) (bool, error) {
	msg := n.queue.Remove()
	if msg == nil {
		return false, nil
	}
	n.clock = msg.deliverAt
	dest := n.hosts[msg.dest]

	var err error
	switch payload := msg.payload.(type) {
	case pbft.TimerEvent:
		err = dest.deliverTimer(ctx, payload)
	case *pbft.SignedMessage:
		switch {
		case dest.crashed:
			n.dropped++
			n.log(TraceRecvd, "P%d ✗ P%d: %v (crashed)", msg.dest, msg.source, payload)
		case n.drop != nil && n.drop(msg.source, msg.dest, payload):
			n.dropped++
			n.log(TraceRecvd, "P%d ✗ P%d: %v (dropped)", msg.dest, msg.source, payload)
		default:
			n.delivered++
			n.log(TraceRecvd, "P%d ← P%d: %v", msg.dest, msg.source, payload)
			if rErr := dest.coordinator.Receive(ctx, payload); rErr != nil {
				n.log(TraceRecvd, "P%d rejected %v: %v", msg.dest, payload, rErr)
				err = rErr
			}
		}
	}
	var panicErr *pbft.PanicError
	if errors.As(err, &panicErr) {
		return false, fmt.Errorf("replica %d: %w", msg.dest, err)
	}
	return n.queue.Len() > 0, nil
}

// Log fulfills pbft.Tracer.
func (n *Network) Log(format string, args ...any) {
	n.log(TraceLogic, format, args...)
}

func (n *Network) log(level int, format string, args ...any) {
	if level <= n.traceLevel {
		fmt.Printf("net [%.3f]: ", n.clock.Sub(time.Unix(0, 0)).Seconds())
		fmt.Printf(format, args...)
		fmt.Printf("\n")
	}
}
