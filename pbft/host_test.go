package pbft

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const testNetworkName NetworkName = "test"

var _ Host = (*fakeHost)(nil)

// fakeHost records everything the coordinator asks of its host. Signatures
// are sha256(pubKey || msg).
type fakeHost struct {
	clock *clock.Mock

	broadcasts []*SignedMessage
	sent       map[Address][]*SignedMessage

	nextTimer TimerID
	timers    map[TimerID]TimerEvent
	cancelled []TimerID

	storedView int64
	hasView    bool

	executed  []*CommitCertificate
	execute   func(*CommitCertificate) error
	values    map[uint64][]byte
	valueErrs map[uint64]error
	exhausted bool
	check     ValueCheck
	checkedBy [][]byte
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		clock:  clock.NewMock(),
		sent:   make(map[Address][]*SignedMessage),
		timers: make(map[TimerID]TimerEvent),
		values: make(map[uint64][]byte),
		check:  VALUE_VALID,
	}
}

func (h *fakeHost) NetworkName() NetworkName { return testNetworkName }

func (h *fakeHost) Broadcast(msg *SignedMessage) error {
	h.broadcasts = append(h.broadcasts, msg)
	return nil
}

func (h *fakeHost) Send(to Address, msg *SignedMessage) error {
	h.sent[to] = append(h.sent[to], msg)
	return nil
}

func (h *fakeHost) ScheduleDelay(d time.Duration, t TimerType, payload int64) TimerID {
	h.nextTimer++
	h.timers[h.nextTimer] = TimerEvent{ID: h.nextTimer, Type: t, Payload: payload, Timestamp: h.clock.Now().Add(d)}
	return h.nextTimer
}

func (h *fakeHost) ScheduleRepeating(interval time.Duration, t TimerType) TimerID {
	h.nextTimer++
	h.timers[h.nextTimer] = TimerEvent{ID: h.nextTimer, Type: t, Timestamp: h.clock.Now().Add(interval)}
	return h.nextTimer
}

func (h *fakeHost) Cancel(id TimerID) bool {
	if _, found := h.timers[id]; !found {
		return false
	}
	delete(h.timers, id)
	h.cancelled = append(h.cancelled, id)
	return true
}

func (h *fakeHost) Now() time.Time { return h.clock.Now() }

func (h *fakeHost) Sign(_ context.Context, sender PubKey, msg []byte) ([]byte, error) {
	return fakeSignature(sender, msg), nil
}

func (h *fakeHost) Verify(pubKey PubKey, msg, sig []byte) error {
	if !bytes.Equal(fakeSignature(pubKey, msg), sig) {
		return errors.New("signature mismatch")
	}
	return nil
}

func (h *fakeHost) Digest(value []byte) Digest { return sha256.Sum256(value) }

func (h *fakeHost) StoreView(_ context.Context, view int64) error {
	h.storedView, h.hasView = view, true
	return nil
}

func (h *fakeHost) LoadView(context.Context) (int64, bool, error) {
	return h.storedView, h.hasView, nil
}

func (h *fakeHost) Execute(_ context.Context, cert *CommitCertificate) error {
	if h.execute != nil {
		if err := h.execute(cert); err != nil {
			return err
		}
	}
	h.executed = append(h.executed, cert)
	return nil
}

func (h *fakeHost) NextValue(_ context.Context, seq uint64) ([]byte, error) {
	if h.exhausted {
		return nil, ErrNoValue
	}
	if err, found := h.valueErrs[seq]; found {
		return nil, err
	}
	if v, found := h.values[seq]; found {
		return v, nil
	}
	return []byte(fmt.Sprintf("value-%d", seq)), nil
}

func (h *fakeHost) CheckValue(_ context.Context, value []byte) ValueCheck {
	h.checkedBy = append(h.checkedBy, value)
	return h.check
}

// broadcastsOf returns the broadcast messages of the given kind, in order.
func (h *fakeHost) broadcastsOf(kind MessageKind) []*SignedMessage {
	var out []*SignedMessage
	for _, msg := range h.broadcasts {
		if msg.Kind() == kind {
			out = append(out, msg)
		}
	}
	return out
}

func (h *fakeHost) resetBroadcasts() { h.broadcasts = nil }

func (h *fakeHost) timerOf(t TimerType) (TimerEvent, bool) {
	for _, ev := range h.timers {
		if ev.Type == t {
			return ev, true
		}
	}
	return TimerEvent{}, false
}

func fakeSignature(pubKey PubKey, msg []byte) []byte {
	hash := sha256.New()
	_, _ = hash.Write(pubKey)
	_, _ = hash.Write(msg)
	return hash.Sum(nil)
}

func testValidators(n int) []Validator {
	validators := make([]Validator, n)
	for i := range validators {
		validators[i] = Validator{
			Address: Address{0xaa, byte(i)},
			PubKey:  PubKey(fmt.Sprintf("pubkey-%d", i)),
		}
	}
	return validators
}

// testNetwork is a coordinator under test running as one replica of an n
// validator set, plus helpers to forge messages from the other replicas.
type testNetwork struct {
	t           *testing.T
	ctx         context.Context
	host        *fakeHost
	validators  []Validator
	coordinator *Coordinator
}

func newTestNetwork(t *testing.T, n int, self ReplicaID, o ...Option) *testNetwork {
	t.Helper()
	host := newFakeHost()
	validators := testValidators(n)
	addr := Address{0xbb}
	if self >= 0 {
		addr = validators[self].Address
	}
	coordinator, err := NewCoordinator(addr, validators, host, o...)
	require.NoError(t, err)
	return &testNetwork{
		t:           t,
		ctx:         context.Background(),
		host:        host,
		validators:  validators,
		coordinator: coordinator,
	}
}

func (tn *testNetwork) start() *testNetwork {
	tn.t.Helper()
	require.NoError(tn.t, tn.coordinator.Start(tn.ctx))
	return tn
}

// signAs signs msg as the given replica.
func (tn *testNetwork) signAs(from ReplicaID, msg *SignedMessage) *SignedMessage {
	tn.t.Helper()
	msg.Sender = int64(from)
	payload, err := msg.MarshalForSigning(testNetworkName)
	require.NoError(tn.t, err)
	msg.Signature = fakeSignature(tn.validators[from].PubKey, payload)
	return msg
}

func (tn *testNetwork) prePrepare(from ReplicaID, view int64, seq uint64, value string) *SignedMessage {
	return tn.signAs(from, &SignedMessage{PrePrepare: &PrePrepare{
		View:        view,
		Sequence:    seq,
		ReplicaID:   int64(from),
		Round:       1,
		Value:       []byte(value),
		ValueDigest: sha256.Sum256([]byte(value)),
	}})
}

func (tn *testNetwork) prepare(from ReplicaID, view int64, seq uint64, value string) *SignedMessage {
	return tn.signAs(from, &SignedMessage{Prepare: &Prepare{
		View:        view,
		Sequence:    seq,
		ReplicaID:   int64(from),
		Round:       1,
		ValueDigest: sha256.Sum256([]byte(value)),
	}})
}

func (tn *testNetwork) commit(from ReplicaID, view int64, seq uint64, value string) *SignedMessage {
	return tn.signAs(from, &SignedMessage{Commit: &Commit{
		View:        view,
		Sequence:    seq,
		ReplicaID:   int64(from),
		Round:       1,
		ValueDigest: sha256.Sum256([]byte(value)),
	}})
}

func (tn *testNetwork) viewChange(from ReplicaID, view int64, prepared ...*SignedMessage) *SignedMessage {
	return tn.signAs(from, &SignedMessage{ViewChange: &ViewChange{
		View:      view,
		ReplicaID: int64(from),
		Prepared:  prepared,
	}})
}

func (tn *testNetwork) newView(from ReplicaID, view int64, votes ...*SignedMessage) *SignedMessage {
	return tn.signAs(from, &SignedMessage{NewView: &NewView{
		View:        view,
		ReplicaID:   int64(from),
		ViewChanges: votes,
	}})
}

func (tn *testNetwork) receive(msg *SignedMessage) error {
	return tn.coordinator.Receive(tn.ctx, msg)
}

func (tn *testNetwork) requireReceive(msg *SignedMessage) {
	tn.t.Helper()
	require.NoError(tn.t, tn.receive(msg))
}

func (tn *testNetwork) fire(t TimerType, payload int64) error {
	return tn.coordinator.ReceiveTimer(tn.ctx, TimerEvent{Type: t, Payload: payload, Timestamp: tn.host.Now()})
}

func (tn *testNetwork) requirePhase(key InstanceKey, want Phase) {
	tn.t.Helper()
	got, _ := tn.coordinator.InstancePhase(key)
	require.Equal(tn.t, want, got, "phase of %s", key)
}
