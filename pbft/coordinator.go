package pbft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/filecoin-project/go-bitfield"
	"github.com/ledgerbft/go-ledgerbft/internal/caching"
	"go.opentelemetry.io/otel/metric"
)

// Coordinator runs the PBFT agreement protocol for one replica.
//
// All state is owned by the coordinator and mutated under a single lock, one
// event at a time. Events are inbound signed messages (Receive) and timer
// events (ReceiveTimer). Messages broadcast by the coordinator are queued in
// an inbox and processed locally before the triggering call returns.
type Coordinator struct {
	self      Address
	host      Host
	opts      *options
	validator *cachingValidator

	mu      sync.RWMutex
	started bool

	directory *ValidatorDirectory
	// replicaID is -1 when this node is not in the validator set.
	replicaID ReplicaID

	view       int64
	viewActive bool
	// vcTarget is the highest view this replica has voted for or adopted.
	vcTarget     int64
	lastExecuted uint64
	// nextSequence is the next sequence the primary proposes.
	nextSequence uint64
	// lastProgress is the last time a sequence was executed or a view adopted.
	lastProgress time.Time

	instances   *instanceLog
	viewChanges map[int64]*viewChangeInstance

	newViewTimer    TimerID
	newViewTimerSet bool
	timers          []TimerID

	// reproposals maps sequences prepared before the current view to the digest
	// the new primary must re-propose.
	reproposals map[uint64]Digest
	// pending holds instance messages for views not yet adopted.
	pending []*SignedMessage
	// executable holds committed certificates waiting for their predecessors.
	executable map[uint64]*CommitCertificate
	// inbox holds this replica's own messages, processed after the current
	// event.
	inbox []*SignedMessage
}

// NewCoordinator creates a coordinator for the validator with address self.
// A node whose address is not in validators follows agreement but never votes.
func NewCoordinator(self Address, validators []Validator, host Host, o ...Option) (*Coordinator, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	directory, err := NewValidatorDirectory(validators)
	if err != nil {
		return nil, err
	}
	replicaID, found := directory.ReplicaID(self)
	if !found {
		replicaID = -1
	}
	cache := caching.NewViewCache(opts.maxCachedViews, opts.maxCachedMessagesPerView)
	return &Coordinator{
		self:         self,
		host:         host,
		opts:         opts,
		validator:    newValidator(host, cache),
		directory:    directory,
		replicaID:    replicaID,
		lastExecuted: opts.lastExecuted,
		instances:    newInstanceLog(),
		viewChanges:  make(map[int64]*viewChangeInstance),
		reproposals:  make(map[uint64]Digest),
		executable:   make(map[uint64]*CommitCertificate),
	}, nil
}

// Start loads the last adopted view and schedules the periodic timers.
func (c *Coordinator) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("coordinator already started")
	}
	view, found, err := c.host.LoadView(ctx)
	if err != nil {
		return fmt.Errorf("loading view: %w", err)
	}
	if found {
		c.view = view
		c.vcTarget = view
	}
	c.viewActive = true
	c.lastProgress = c.host.Now()
	c.nextSequence = c.lastExecuted + 1
	c.timers = append(c.timers[:0],
		c.host.ScheduleRepeating(c.opts.consensusCheckInterval, CONSENSUS_CHECK),
		c.host.ScheduleRepeating(c.opts.publishInterval, PUBLISH),
		c.host.ScheduleRepeating(c.opts.ledgerCloseCheckInterval, LEDGER_CLOSE_CHECK),
	)
	c.started = true

	metrics.currentView.Record(ctx, c.view)
	metrics.lastExecuted.Record(ctx, int64(c.lastExecuted))
	log.Infow("started coordinator", "replica", c.replicaID, "validators", c.directory.Size(),
		"view", c.view, "restored", found, "lastExecuted", c.lastExecuted)
	return nil
}

// Stop cancels every timer owned by the coordinator. Events received after
// Stop return ErrNotStarted.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.timers {
		c.host.Cancel(id)
	}
	c.timers = nil
	c.cancelNewViewTimer()
	c.started = false
}

// Receive validates and processes a signed message from a peer.
//
// The returned error is informational: the coordinator never stops on a
// rejected message.
func (c *Coordinator) Receive(ctx context.Context, msg *SignedMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
		if err != nil {
			metrics.errorCounter.Add(ctx, 1, metric.WithAttributes(metricAttributeFromError(err)))
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	if err := c.validator.ValidateMessage(c.directory, msg); err != nil {
		c.trace("invalid message %s: %v", msg, err)
		return err
	}
	err = c.receive(ctx, msg)
	c.drainInbox(ctx)
	return err
}

// ReceiveTimer processes a fired timer.
func (c *Coordinator) ReceiveTimer(ctx context.Context, ev TimerEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
		if err != nil {
			metrics.errorCounter.Add(ctx, 1, metric.WithAttributes(metricAttributeFromError(err)))
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	switch ev.Type {
	case CONSENSUS_CHECK:
		c.consensusCheck(ctx)
	case PUBLISH:
		c.propose(ctx)
	case LEDGER_CLOSE_CHECK:
		c.ledgerCloseCheck(ctx)
	case NEW_VIEW_RESPONSE_TIMEOUT:
		c.newViewResponseTimeout(ctx, ev)
	default:
		return fmt.Errorf("unknown timer type %d: %w", ev.Type, ErrReceivedInternalError)
	}
	c.drainInbox(ctx)
	return nil
}

// SetValidators replaces the validator set. Returns false if the new set
// assigns the same replica ids to the same keys. A change discards all
// unexecuted agreement state, since votes are indexed by replica id.
func (c *Coordinator) SetValidators(validators []Validator) (bool, error) {
	directory, err := NewValidatorDirectory(validators)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.directory.Changed(directory) {
		return false, nil
	}
	c.directory = directory
	replicaID, found := directory.ReplicaID(c.self)
	if !found {
		replicaID = -1
	}
	for key, inst := range c.instances.instances {
		if key.Sequence > c.lastExecuted && inst.phase != COMMITTED_PHASE {
			delete(c.instances.instances, key)
		}
	}
	clear(c.viewChanges)
	c.cancelNewViewTimer()
	c.pending = nil
	c.viewActive = true
	c.vcTarget = c.view
	c.lastProgress = c.host.Now()
	log.Infow("validator set changed", "from", c.replicaID, "to", replicaID, "validators", directory.Size(), "view", c.view)
	c.replicaID = replicaID
	return true, nil
}

func (c *Coordinator) receive(ctx context.Context, msg *SignedMessage) error {
	var accepted bool
	switch msg.Kind() {
	case KIND_VIEW_CHANGE:
		accepted = c.handleViewChange(ctx, msg)
	case KIND_NEW_VIEW:
		accepted = c.handleNewView(ctx, msg)
	case KIND_PRE_PREPARE, KIND_PREPARE, KIND_COMMIT:
		return c.receiveInstanceMessage(ctx, msg)
	default:
		return fmt.Errorf("%s: %w", msg, ErrValidationMalformed)
	}
	if !accepted {
		return fmt.Errorf("%w: %s", ErrReceivedRejected, msg)
	}
	return nil
}

func (c *Coordinator) receiveInstanceMessage(ctx context.Context, msg *SignedMessage) error {
	key, _ := msg.InstanceKey()
	switch {
	case key.View > c.view:
		c.park(ctx, msg)
		return nil
	case key.View < c.view:
		return fmt.Errorf("%s at view %d: %w", msg, c.view, ErrValidationTooOld)
	case !c.viewActive:
		return fmt.Errorf("%w: %s during view change from %d", ErrReceivedRejected, msg, c.view)
	}

	inst := c.instances.get(key)
	if inst == nil && key.Sequence <= c.lastExecuted {
		// Late vote for an executed and collected sequence.
		return nil
	}
	if msg.Kind() == KIND_PRE_PREPARE {
		if want, found := c.reproposals[key.Sequence]; found && want != msg.PrePrepare.ValueDigest {
			return fmt.Errorf("re-proposal of %s with digest %s, prepared %s: %w",
				key, msg.PrePrepare.ValueDigest, want, ErrConflictingProposal)
		}
	}
	if inst == nil {
		inst = c.instances.getOrCreate(key, c.host.Now())
	}

	var accepted bool
	if c.appendMessage(inst, msg) {
		accepted = c.handleInstance(ctx, inst)
	} else {
		accepted = c.dispatchInstance(ctx, inst, msg)
	}
	if !accepted {
		return fmt.Errorf("%w: %s", ErrReceivedRejected, msg)
	}
	if msg.Kind() == KIND_PRE_PREPARE && ReplicaID(msg.Sender) == c.replicaID && key.Sequence >= c.nextSequence {
		// Own proposal replayed after a restart.
		c.nextSequence = key.Sequence + 1
	}
	return nil
}

// park holds a message for a view this replica has not adopted yet.
func (c *Coordinator) park(ctx context.Context, msg *SignedMessage) {
	if len(c.pending) >= c.opts.maxPendingMessages {
		metrics.pendingDropped.Add(ctx, 1, metric.WithAttributes(attrKind[msg.Kind()]))
		c.trace("dropping future message %s: pending queue full", msg)
		return
	}
	c.pending = append(c.pending, msg)
}

// broadcast signs msg as this replica, sends it to peers and queues it for
// local processing. Returns nil if the message could not be signed.
func (c *Coordinator) broadcast(ctx context.Context, msg *SignedMessage) *SignedMessage {
	if !c.isValidator() {
		return nil
	}
	if err := c.sign(ctx, msg); err != nil {
		log.Errorw("failed to sign message", "msg", msg, "err", err)
		return nil
	}
	if err := c.host.Broadcast(msg); err != nil {
		log.Warnw("failed to broadcast message", "msg", msg, "err", err)
	}
	metrics.broadcastCounter.Add(ctx, 1, metric.WithAttributes(attrKind[msg.Kind()]))
	c.inbox = append(c.inbox, msg)
	return msg
}

// rebroadcast sends an already signed message again without processing it
// locally.
func (c *Coordinator) rebroadcast(ctx context.Context, msg *SignedMessage) {
	if err := c.host.Broadcast(msg); err != nil {
		log.Warnw("failed to rebroadcast message", "msg", msg, "err", err)
	}
	metrics.reBroadcastCounter.Add(ctx, 1, metric.WithAttributes(attrKind[msg.Kind()]))
}

func (c *Coordinator) sign(ctx context.Context, msg *SignedMessage) error {
	self, found := c.directory.Get(c.replicaID)
	if !found {
		return fmt.Errorf("replica %d has no key", c.replicaID)
	}
	msg.Sender = int64(c.replicaID)
	payload, err := msg.MarshalForSigning(c.host.NetworkName())
	if err != nil {
		return err
	}
	msg.Signature, err = c.host.Sign(ctx, self.PubKey, payload)
	return err
}

// drainInbox processes this replica's own messages. They are trusted and
// skip validation.
func (c *Coordinator) drainInbox(ctx context.Context) {
	for len(c.inbox) > 0 {
		msg := c.inbox[0]
		c.inbox[0] = nil
		c.inbox = c.inbox[1:]
		if err := c.receive(ctx, msg); err != nil {
			c.trace("own message %s not accepted: %v", msg, err)
		}
	}
	c.inbox = nil
}

// propose asks the value source for the next value, if this replica is the
// active primary and has room for another instance in flight.
func (c *Coordinator) propose(ctx context.Context) {
	if !c.viewActive || !c.isPrimaryFor(c.view) {
		return
	}
	if inFlight := c.nextSequence - 1 - c.lastExecuted; inFlight >= uint64(c.opts.maxInstancesInFlight) {
		return
	}
	seq := c.nextSequence
	if inst := c.instances.get(InstanceKey{View: c.view, Sequence: seq}); inst != nil && inst.prePrepare != nil {
		c.nextSequence = seq + 1
		return
	}
	value, err := c.host.NextValue(ctx, seq)
	switch {
	case errors.Is(err, ErrNoValue):
		return
	case err != nil:
		log.Errorw("failed to get next value", "view", c.view, "seq", seq, "err", err)
		return
	}
	c.proposeValue(ctx, seq, value)
	c.nextSequence = seq + 1
}

func (c *Coordinator) proposeValue(ctx context.Context, seq uint64, value []byte) {
	pp := &PrePrepare{
		View:        c.view,
		Sequence:    seq,
		ReplicaID:   int64(c.replicaID),
		Round:       1,
		Value:       value,
		ValueDigest: c.host.Digest(value),
	}
	c.trace("proposing %s", InstanceKey{View: pp.View, Sequence: pp.Sequence})
	if c.directory.Size() == 1 {
		c.commitSolo(ctx, pp)
		return
	}
	c.broadcast(ctx, &SignedMessage{PrePrepare: pp})
}

// commitSolo commits a proposal directly: a single validator is its own
// quorum.
func (c *Coordinator) commitSolo(ctx context.Context, pp *PrePrepare) {
	msg := &SignedMessage{PrePrepare: pp}
	if err := c.sign(ctx, msg); err != nil {
		log.Errorw("failed to sign proposal", "seq", pp.Sequence, "err", err)
		return
	}
	inst := c.instances.getOrCreate(InstanceKey{View: pp.View, Sequence: pp.Sequence}, c.host.Now())
	if inst.phase != NONE_PHASE {
		return
	}
	inst.prePrepare = pp
	inst.prePrepareMsg = msg
	inst.checkValue = VALUE_VALID
	inst.round = pp.Round
	inst.setPhase(COMMITTED_PHASE)
	inst.endTime = c.host.Now()
	inst.commitComplete = true
	c.committed(ctx, inst)
}

// committed queues the value of a newly committed instance for execution.
func (c *Coordinator) committed(ctx context.Context, inst *instance) {
	seq := inst.key.Sequence
	if seq <= c.lastExecuted {
		return
	}
	if _, queued := c.executable[seq]; queued {
		return
	}
	signers := make([]uint64, 0, len(inst.commits))
	for id := range inst.commits {
		signers = append(signers, uint64(id))
	}
	if len(signers) == 0 && c.isValidator() {
		signers = append(signers, uint64(c.replicaID))
	}
	c.executable[seq] = &CommitCertificate{
		View:        inst.key.View,
		Sequence:    seq,
		Value:       inst.prePrepare.Value,
		ValueDigest: inst.prePrepare.ValueDigest,
		Signers:     bitfield.NewFromSet(signers),
	}
	c.trace("committed %s after %s", inst.key, inst.endTime.Sub(inst.startTime))
	c.executeReady(ctx)
}

// executeReady hands committed values to the executor in sequence order.
// A failed execution is retried on the next consensus check.
func (c *Coordinator) executeReady(ctx context.Context) {
	for {
		next := c.lastExecuted + 1
		cert, found := c.executable[next]
		if !found {
			return
		}
		if err := c.host.Execute(ctx, cert); err != nil {
			log.Errorw("failed to execute committed value", "seq", next, "view", cert.View, "err", err)
			return
		}
		delete(c.executable, next)
		c.lastExecuted = next
		c.nextSequence = max(c.nextSequence, next+1)
		c.lastProgress = c.host.Now()
		delete(c.reproposals, next)

		metrics.executedCounter.Add(ctx, 1)
		metrics.lastExecuted.Record(ctx, int64(next))
		log.Debugw("executed", "replica", c.replicaID, "seq", next, "view", cert.View)

		if c.lastExecuted > c.opts.executedRetention {
			c.instances.removeUpTo(c.lastExecuted - c.opts.executedRetention)
		}
	}
}

// consensusCheck resends votes for instances and view changes that have not
// made progress, and retries pending executions.
func (c *Coordinator) consensusCheck(ctx context.Context) {
	now := c.host.Now()
	c.checkViewChanges(ctx, now)

	if c.viewActive && c.isValidator() {
		primary := c.isPrimaryFor(c.view)
		inFlight := c.instances.sorted(func(inst *instance) bool {
			return inst.key.View == c.view && inst.key.Sequence > c.lastExecuted
		})
		for _, inst := range inFlight {
			switch {
			case inst.phase == PRE_PREPARED_PHASE && inst.checkValue == VALUE_PENDING:
				inst.checkValue = c.host.CheckValue(ctx, inst.prePrepare.Value)
				if inst.checkValue == VALUE_VALID {
					c.broadcastPrepare(ctx, inst, inst.round)
				}
			case inst.phase == PREPARED_PHASE && inst.checkValue == VALUE_VALID && !inst.commitComplete &&
				now.Sub(inst.lastCommitSendTime) >= c.opts.commitResendInterval:
				c.resendCommit(ctx, inst, now)
			}
			if primary && inst.phase == PRE_PREPARED_PHASE && inst.prePrepareMsg != nil &&
				ReplicaID(inst.prePrepareMsg.Sender) == c.replicaID &&
				now.Sub(inst.lastPrePrepareSendTime) >= c.opts.prePrepareResendInterval {
				c.resendPrePrepare(ctx, inst, now)
			}
		}
	}
	c.executeReady(ctx)
}

func (c *Coordinator) resendCommit(ctx context.Context, inst *instance, now time.Time) {
	msg := &SignedMessage{Commit: &Commit{
		View:        inst.key.View,
		Sequence:    inst.key.Sequence,
		ReplicaID:   int64(c.replicaID),
		Round:       max(1, inst.commitRound),
		ValueDigest: inst.prePrepare.ValueDigest,
	}}
	if err := c.sign(ctx, msg); err != nil {
		log.Errorw("failed to sign commit resend", "instance", inst.key, "err", err)
		return
	}
	inst.lastCommitSendTime = now
	c.rebroadcast(ctx, msg)
}

// resendPrePrepare sends the primary's proposal again with a higher round,
// prompting backups to send their prepares again.
func (c *Coordinator) resendPrePrepare(ctx context.Context, inst *instance, now time.Time) {
	pp := *inst.prePrepare
	pp.Round = inst.round + 1
	msg := &SignedMessage{PrePrepare: &pp}
	if err := c.sign(ctx, msg); err != nil {
		log.Errorw("failed to sign pre-prepare resend", "instance", inst.key, "err", err)
		return
	}
	inst.round = pp.Round
	inst.lastPrePrepareSendTime = now
	c.rebroadcast(ctx, msg)
}

// ledgerCloseCheck suspects the primary when nothing was executed for longer
// than the ledger close timeout.
func (c *Coordinator) ledgerCloseCheck(ctx context.Context) {
	if !c.viewActive || !c.isValidator() || c.directory.Size() == 1 {
		return
	}
	if stalled := c.host.Now().Sub(c.lastProgress); stalled >= c.opts.ledgerCloseTimeout {
		log.Infow("no progress within ledger close timeout", "replica", c.replicaID, "view", c.view,
			"primary", c.directory.Primary(c.view), "stalled", stalled)
		c.requestViewChange(ctx, c.view+1, attrTriggerTimeout)
	}
}

func (c *Coordinator) newViewResponseTimeout(ctx context.Context, ev TimerEvent) {
	if c.newViewTimerSet && c.newViewTimer == ev.ID {
		c.newViewTimerSet = false
	}
	target := ev.Payload
	if c.view >= target || target < c.vcTarget {
		return
	}
	log.Infow("no new view in time", "replica", c.replicaID, "view", c.view, "target", target)
	c.requestViewChange(ctx, target+1, attrTriggerNoNewView)
}

func (c *Coordinator) isValidator() bool { return c.replicaID >= 0 }

func (c *Coordinator) isPrimaryFor(view int64) bool {
	return c.isValidator() && c.directory.Primary(view) == c.replicaID
}

func (c *Coordinator) trace(format string, args ...any) {
	if c.opts.tracer != nil {
		c.opts.tracer.Log("{%d}: "+format, append([]any{c.replicaID}, args...)...)
	}
}

// View returns the current view.
func (c *Coordinator) View() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// ViewActive reports whether the replica participates in agreement in the
// current view, as opposed to waiting for a new view.
func (c *Coordinator) ViewActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewActive
}

// LastExecuted returns the highest sequence handed to the Executor.
func (c *Coordinator) LastExecuted() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastExecuted
}

func (c *Coordinator) ReplicaID() ReplicaID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.replicaID
}

func (c *Coordinator) IsValidator() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isValidator()
}

// IsPrimary reports whether this replica is the primary of the current view.
func (c *Coordinator) IsPrimary() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isPrimaryFor(c.view)
}

// InstancePhase returns the phase of the instance with the given key.
func (c *Coordinator) InstancePhase(key InstanceKey) (Phase, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst := c.instances.get(key)
	if inst == nil {
		return NONE_PHASE, false
	}
	return inst.phase, true
}

// Describe returns a one line summary of the coordinator state.
func (c *Coordinator) Describe() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("replica:%d view:%d active:%t lastExecuted:%d instances:%d viewChanges:%d pending:%d",
		c.replicaID, c.view, c.viewActive, c.lastExecuted, c.instances.len(), len(c.viewChanges), len(c.pending))
}
