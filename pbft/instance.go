package pbft

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// instance is the agreement state for one (view, sequence) pair.
type instance struct {
	key   InstanceKey
	phase Phase
	// phaseItem is the replay cursor into msgBuf: the number of buffered
	// messages already dispatched.
	phaseItem int
	msgBuf    []*SignedMessage

	prePrepare    *PrePrepare
	prePrepareMsg *SignedMessage
	prepares      map[ReplicaID]*Prepare
	commits       map[ReplicaID]*Commit
	checkValue    ValueCheck
	// round is the highest pre-prepare round seen for this instance.
	round          uint64
	commitRound    uint64
	commitComplete bool
	// duplicatePrepares counts prepares re-delivered by a replica that already
	// voted. Diagnostics only.
	duplicatePrepares int

	startTime              time.Time
	endTime                time.Time
	lastCommitSendTime     time.Time
	lastPrePrepareSendTime time.Time
}

func newInstance(key InstanceKey, now time.Time) *instance {
	return &instance{
		key:       key,
		prepares:  make(map[ReplicaID]*Prepare),
		commits:   make(map[ReplicaID]*Commit),
		startTime: now,
	}
}

func (i *instance) setPhase(p Phase) {
	i.phase = p
	metrics.phaseCounter.Add(context.TODO(), 1, metric.WithAttributes(attrPhase[p]))
}

// instanceLog indexes consensus instances by key. It is owned by the
// coordinator and never shared.
type instanceLog struct {
	instances map[InstanceKey]*instance
}

func newInstanceLog() *instanceLog {
	return &instanceLog{instances: make(map[InstanceKey]*instance)}
}

func (l *instanceLog) get(key InstanceKey) *instance {
	return l.instances[key]
}

func (l *instanceLog) getOrCreate(key InstanceKey, now time.Time) *instance {
	inst, found := l.instances[key]
	if !found {
		inst = newInstance(key, now)
		l.instances[key] = inst
	}
	return inst
}

func (l *instanceLog) len() int { return len(l.instances) }

// sorted returns the instances matching the filter in key order.
func (l *instanceLog) sorted(filter func(*instance) bool) []*instance {
	var out []*instance
	for _, inst := range l.instances {
		if filter == nil || filter(inst) {
			out = append(out, inst)
		}
	}
	slices.SortFunc(out, func(a, b *instance) int { return a.key.Compare(b.key) })
	return out
}

// preparedAbove returns the signed pre-prepares of instances that reached
// PREPARED above the given sequence. When a sequence was prepared in more than
// one view, the highest view wins.
func (l *instanceLog) preparedAbove(seq uint64) []*SignedMessage {
	bySeq := make(map[uint64]*instance)
	for _, inst := range l.instances {
		if inst.key.Sequence <= seq || !inst.phase.AtLeast(PREPARED_PHASE) || inst.prePrepareMsg == nil {
			continue
		}
		if existing, found := bySeq[inst.key.Sequence]; !found || existing.key.View < inst.key.View {
			bySeq[inst.key.Sequence] = inst
		}
	}
	seqs := make([]uint64, 0, len(bySeq))
	for s := range bySeq {
		seqs = append(seqs, s)
	}
	slices.Sort(seqs)
	out := make([]*SignedMessage, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, bySeq[s].prePrepareMsg)
	}
	return out
}

// prune drops instances after a view change. An instance is retained if it is
// committed, or if it is prepared and above the last executed sequence.
func (l *instanceLog) prune(lastExecuted uint64) int {
	var removed int
	for key, inst := range l.instances {
		committed := inst.phase == COMMITTED_PHASE
		prepared := inst.phase == PREPARED_PHASE
		if committed || (prepared && key.Sequence > lastExecuted) {
			continue
		}
		delete(l.instances, key)
		removed++
	}
	return removed
}

// removeUpTo drops every instance at or below the given sequence.
func (l *instanceLog) removeUpTo(seq uint64) {
	for key := range l.instances {
		if key.Sequence <= seq {
			delete(l.instances, key)
		}
	}
}

// appendMessage buffers msg for replay. Returns false if the buffer is full.
func (c *Coordinator) appendMessage(inst *instance, msg *SignedMessage) bool {
	if len(inst.msgBuf) >= c.opts.maxBufferedMessagesPerInstance {
		return false
	}
	inst.msgBuf = append(inst.msgBuf, msg)
	return true
}

// handleInstance dispatches every buffered message beyond the replay cursor
// and returns the result of the last dispatch. On the primary, a message whose
// phase precedes the instance phase is dispatched once and dropped from the
// buffer without moving the cursor.
func (c *Coordinator) handleInstance(ctx context.Context, inst *instance) bool {
	var accepted bool
	primary := c.isPrimaryFor(inst.key.View)
	for inst.phaseItem < len(inst.msgBuf) {
		idx := inst.phaseItem
		msg := inst.msgBuf[idx]
		if primary && msg.Phase().Precedes(inst.phase) {
			inst.msgBuf = slices.Delete(inst.msgBuf, idx, idx+1)
		} else {
			inst.phaseItem = idx + 1
		}
		accepted = c.dispatchInstance(ctx, inst, msg)
	}
	return accepted
}

func (c *Coordinator) dispatchInstance(ctx context.Context, inst *instance, msg *SignedMessage) bool {
	var accepted, triggerCommitted bool
	switch msg.Kind() {
	case KIND_PRE_PREPARE:
		accepted = c.handlePrePrepare(ctx, inst, msg, c.checkValueFor(ctx, inst, msg))
	case KIND_PREPARE:
		accepted, triggerCommitted = c.handlePrepare(ctx, inst, msg.Prepare)
	case KIND_COMMIT:
		accepted, triggerCommitted = c.handleCommit(inst, msg.Commit)
	default:
		log.Errorw("unexpected message dispatched to instance", "instance", inst.key, "msg", msg)
	}
	if triggerCommitted {
		c.committed(ctx, inst)
	}
	return accepted
}

// checkValueFor returns the application check of a pre-prepare value. The
// check runs once, the first time the instance sees a pre-prepare whose
// digest matches its value.
func (c *Coordinator) checkValueFor(ctx context.Context, inst *instance, msg *SignedMessage) ValueCheck {
	if inst.phase != NONE_PHASE {
		return inst.checkValue
	}
	pp := msg.PrePrepare
	if c.host.Digest(pp.Value) != pp.ValueDigest {
		return VALUE_PENDING
	}
	if ReplicaID(msg.Sender) == c.replicaID && !c.opts.checkOwnProposals {
		return VALUE_VALID
	}
	return c.host.CheckValue(ctx, pp.Value)
}

// handlePrePrepare applies a pre-prepare to the instance. check is the
// application check of the proposed value.
func (c *Coordinator) handlePrePrepare(ctx context.Context, inst *instance, msg *SignedMessage, check ValueCheck) bool {
	pp := msg.PrePrepare
	if c.directory.Size() == 1 {
		return true
	}
	if digest := c.host.Digest(pp.Value); digest != pp.ValueDigest {
		log.Warnw("pre-prepare digest mismatch", "instance", inst.key, "computed", digest, "claimed", pp.ValueDigest)
		return false
	}
	if check == VALUE_INVALID {
		c.trace("rejecting invalid value at %s", inst.key)
		return false
	}

	if inst.phase != NONE_PHASE {
		if inst.prePrepare.ValueDigest != pp.ValueDigest {
			log.Errorw("conflicting pre-prepare for instance", "instance", inst.key, "from", pp.ReplicaID,
				"stored", inst.prePrepare.ValueDigest, "received", pp.ValueDigest, "err", ErrConflictingProposal)
			return false
		}
		if check == VALUE_VALID && pp.Round > inst.round {
			inst.round = pp.Round
			c.broadcastPrepare(ctx, inst, pp.Round)
		}
		return true
	}

	inst.setPhase(PRE_PREPARED_PHASE)
	inst.phaseItem = 0
	inst.prePrepare = pp
	inst.prePrepareMsg = msg
	inst.checkValue = check
	inst.round = max(1, pp.Round)
	if ReplicaID(msg.Sender) == c.replicaID {
		inst.lastPrePrepareSendTime = c.host.Now()
	}
	if check == VALUE_VALID {
		c.broadcastPrepare(ctx, inst, 1)
	}
	return true
}

func (c *Coordinator) handlePrepare(ctx context.Context, inst *instance, p *Prepare) (accepted, triggerCommitted bool) {
	if p == nil || inst.prePrepare == nil {
		return false, false
	}
	if p.ValueDigest != inst.prePrepare.ValueDigest {
		log.Warnw("prepare digest mismatch", "instance", inst.key, "from", p.ReplicaID,
			"stored", inst.prePrepare.ValueDigest, "received", p.ValueDigest)
		return false, false
	}
	from := ReplicaID(p.ReplicaID)
	if _, voted := inst.prepares[from]; voted {
		inst.duplicatePrepares++
		return true, false
	}
	inst.prepares[from] = p
	if !hasPrepareQuorum(len(inst.prepares), c.directory.Size()) {
		return true, false
	}

	var transitioned bool
	if inst.phase.Precedes(PREPARED_PHASE) {
		inst.setPhase(PREPARED_PHASE)
		transitioned = true
	}
	if inst.checkValue == VALUE_VALID &&
		(transitioned || c.host.Now().Sub(inst.lastCommitSendTime) >= c.opts.commitResendInterval) {
		c.broadcastCommit(ctx, inst, p.Round)
	}
	// Commits may have reached quorum before this replica prepared.
	return true, c.tryCommit(inst)
}

func (c *Coordinator) handleCommit(inst *instance, cm *Commit) (accepted, triggerCommitted bool) {
	if cm == nil || inst.prePrepare == nil {
		return false, false
	}
	if cm.ValueDigest != inst.prePrepare.ValueDigest {
		log.Warnw("commit digest mismatch", "instance", inst.key, "from", cm.ReplicaID,
			"stored", inst.prePrepare.ValueDigest, "received", cm.ValueDigest)
		return false, false
	}
	from := ReplicaID(cm.ReplicaID)
	if _, voted := inst.commits[from]; voted {
		return true, false
	}
	inst.commits[from] = cm
	return true, c.tryCommit(inst)
}

// tryCommit moves a prepared instance with a commit quorum to COMMITTED.
// Returns true only on the transition.
func (c *Coordinator) tryCommit(inst *instance) bool {
	if inst.commitComplete ||
		!inst.phase.AtLeast(PREPARED_PHASE) ||
		!hasPrepareQuorum(len(inst.commits), c.directory.Size()) {
		return false
	}
	inst.setPhase(COMMITTED_PHASE)
	inst.endTime = c.host.Now()
	inst.commitComplete = true
	return true
}

func (c *Coordinator) broadcastPrepare(ctx context.Context, inst *instance, round uint64) {
	c.broadcast(ctx, &SignedMessage{Prepare: &Prepare{
		View:        inst.key.View,
		Sequence:    inst.key.Sequence,
		ReplicaID:   int64(c.replicaID),
		Round:       round,
		ValueDigest: inst.prePrepare.ValueDigest,
	}})
}

func (c *Coordinator) broadcastCommit(ctx context.Context, inst *instance, round uint64) {
	inst.commitRound = max(inst.commitRound, round)
	inst.lastCommitSendTime = c.host.Now()
	c.broadcast(ctx, &SignedMessage{Commit: &Commit{
		View:        inst.key.View,
		Sequence:    inst.key.Sequence,
		ReplicaID:   int64(c.replicaID),
		Round:       round,
		ValueDigest: inst.prePrepare.ValueDigest,
	}})
}
