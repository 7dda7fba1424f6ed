package sim

import (
	"context"
	"time"

	"github.com/ledgerbft/go-ledgerbft/ledger"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/ledgerbft/go-ledgerbft/viewstore"
)

var _ pbft.Host = (*simHost)(nil)

// One replica's host. It knows the replica's id and exposes the simulated
// network, clock and timers from its point of view.
type simHost struct {
	signing.Backend
	*viewstore.Store
	*ledger.Ledger

	network     *Network
	coordinator *pbft.Coordinator
	id          pbft.ReplicaID
	crashed     bool

	nextTimer pbft.TimerID
	timers    map[pbft.TimerID]*simTimer
}

type simTimer struct {
	kind     pbft.TimerType
	payload  int64
	interval time.Duration
}

func newHost(id pbft.ReplicaID, network *Network, backend signing.Backend, views *viewstore.Store, l *ledger.Ledger) *simHost {
	return &simHost{
		Backend: backend,
		Store:   views,
		Ledger:  l,
		network: network,
		id:      id,
		timers:  make(map[pbft.TimerID]*simTimer),
	}
}

func (h *simHost) NetworkName() pbft.NetworkName { return h.network.networkName }

func (h *simHost) Broadcast(msg *pbft.SignedMessage) error {
	return h.network.broadcast(h.id, msg)
}

func (h *simHost) Send(to pbft.Address, msg *pbft.SignedMessage) error {
	return h.network.send(h.id, to, msg)
}

func (h *simHost) Now() time.Time { return h.network.Time() }

func (h *simHost) ScheduleDelay(d time.Duration, t pbft.TimerType, payload int64) pbft.TimerID {
	return h.schedule(&simTimer{kind: t, payload: payload}, d)
}

func (h *simHost) ScheduleRepeating(interval time.Duration, t pbft.TimerType) pbft.TimerID {
	return h.schedule(&simTimer{kind: t, interval: interval}, interval)
}

func (h *simHost) schedule(timer *simTimer, d time.Duration) pbft.TimerID {
	h.nextTimer++
	id := h.nextTimer
	h.timers[id] = timer
	h.fireAfter(id, timer, d)
	return id
}

func (h *simHost) fireAfter(id pbft.TimerID, timer *simTimer, d time.Duration) {
	at := h.network.Time().Add(d)
	h.network.scheduleTimer(h, pbft.TimerEvent{ID: id, Type: timer.kind, Payload: timer.payload, Timestamp: at}, at)
}

func (h *simHost) Cancel(id pbft.TimerID) bool {
	if _, found := h.timers[id]; !found {
		return false
	}
	delete(h.timers, id)
	return true
}

// deliverTimer hands a fired timer to the coordinator unless it was
// cancelled. Repeating timers are re-armed first.
func (h *simHost) deliverTimer(ctx context.Context, ev pbft.TimerEvent) error {
	timer, found := h.timers[ev.ID]
	if !found || h.crashed {
		return nil
	}
	if timer.interval > 0 {
		h.fireAfter(ev.ID, timer, timer.interval)
	} else {
		delete(h.timers, ev.ID)
	}
	h.network.log(TraceRecvd, "P%d ⏰ %s", h.id, ev.Type)
	return h.coordinator.ReceiveTimer(ctx, ev)
}
