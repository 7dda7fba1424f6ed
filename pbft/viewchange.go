package pbft

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// viewChangeInstance collects the view change votes for one candidate view.
type viewChangeInstance struct {
	view int64
	// viewChanges holds the latest vote of each replica. A replica is counted
	// once, however many times it votes.
	viewChanges map[ReplicaID]*ViewChange
	// prePreparedEnvSet holds, per sequence, the highest-view prepared
	// pre-prepare claimed by any voter.
	prePreparedEnvSet map[uint64]*SignedMessage
	// msgBuf holds the accepted vote envelopes in arrival order, one per
	// replica, and forms the body of the new view.
	msgBuf  []*SignedMessage
	ownVote *SignedMessage
	newView *SignedMessage

	startTime       time.Time
	lastProposeTime time.Time
	endTime         time.Time
	lastNewViewTime time.Time
	newViewRound    uint64
	// executedAtNewView is the last executed sequence when the new view was
	// adopted. The primary stops resending the new view once it moves.
	executedAtNewView uint64
}

func newViewChangeInstance(view int64, now time.Time) *viewChangeInstance {
	return &viewChangeInstance{
		view:              view,
		viewChanges:       make(map[ReplicaID]*ViewChange),
		prePreparedEnvSet: make(map[uint64]*SignedMessage),
		startTime:         now,
	}
}

func (v *viewChangeInstance) complete() bool { return !v.endTime.IsZero() }

// record adds a vote. Returns true if the replica had not voted before.
func (v *viewChangeInstance) record(msg *SignedMessage, lastExecuted uint64) bool {
	vc := msg.ViewChange
	from := ReplicaID(vc.ReplicaID)
	_, seen := v.viewChanges[from]
	v.viewChanges[from] = vc
	if seen {
		for i, buffered := range v.msgBuf {
			if buffered.ViewChange.ReplicaID == vc.ReplicaID {
				v.msgBuf[i] = msg
				break
			}
		}
	} else {
		v.msgBuf = append(v.msgBuf, msg)
	}
	v.mergePrepared(vc.Prepared, lastExecuted)
	return !seen
}

func (v *viewChangeInstance) mergePrepared(prepared []*SignedMessage, lastExecuted uint64) {
	for _, pp := range prepared {
		seq := pp.PrePrepare.Sequence
		if seq <= lastExecuted {
			continue
		}
		if existing, found := v.prePreparedEnvSet[seq]; !found || existing.PrePrepare.View < pp.PrePrepare.View {
			v.prePreparedEnvSet[seq] = pp
		}
	}
}

// reproposals returns the prepared set ordered by sequence.
func (v *viewChangeInstance) reproposals() []*PrePrepare {
	out := make([]*PrePrepare, 0, len(v.prePreparedEnvSet))
	for _, msg := range v.prePreparedEnvSet {
		out = append(out, msg.PrePrepare)
	}
	slices.SortFunc(out, func(a, b *PrePrepare) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (c *Coordinator) getOrCreateViewChange(view int64) *viewChangeInstance {
	vc, found := c.viewChanges[view]
	if !found {
		vc = newViewChangeInstance(view, c.host.Now())
		c.viewChanges[view] = vc
	}
	return vc
}

// requestViewChange stops trusting the current primary and votes for target.
func (c *Coordinator) requestViewChange(ctx context.Context, target int64, trigger attribute.KeyValue) {
	if target <= c.view || !c.isValidator() {
		return
	}
	vc := c.getOrCreateViewChange(target)
	if vc.ownVote != nil {
		return
	}
	c.viewActive = false
	c.vcTarget = max(c.vcTarget, target)

	vote := &SignedMessage{ViewChange: &ViewChange{
		View:      target,
		Sequence:  c.lastExecuted,
		ReplicaID: int64(c.replicaID),
		Prepared:  c.instances.preparedAbove(c.lastExecuted),
	}}
	sent := c.broadcast(ctx, vote)
	if sent == nil {
		return
	}
	vc.ownVote = sent
	vc.lastProposeTime = c.host.Now()
	c.armNewViewTimer(target)
	log.Infow("requested view change", "replica", c.replicaID, "from", c.view, "to", target, "prepared", len(vote.ViewChange.Prepared))
	metrics.viewChangeCounter.Add(ctx, 1, metric.WithAttributes(attrViewChangeRequest, trigger))
}

func (c *Coordinator) handleViewChange(ctx context.Context, msg *SignedMessage) bool {
	target := msg.ViewChange.View
	if target <= c.view {
		c.trace("ignoring stale view change to %d at view %d", target, c.view)
		return false
	}
	vc := c.getOrCreateViewChange(target)
	if vc.complete() {
		return true
	}
	if !vc.record(msg, c.lastExecuted) {
		return true
	}

	n := c.directory.Size()
	if vc.ownVote == nil && target > c.vcTarget && hasWeakQuorum(len(vc.viewChanges), n) {
		// At least one correct replica gave up on the current primary.
		c.requestViewChange(ctx, target, attrTriggerJoin)
	}
	if c.isPrimaryFor(target) && vc.newView == nil && hasNewViewQuorum(len(vc.viewChanges), n) {
		c.sendNewView(ctx, vc)
	}
	return true
}

func (c *Coordinator) sendNewView(ctx context.Context, vc *viewChangeInstance) {
	sent := c.broadcast(ctx, &SignedMessage{NewView: &NewView{
		View:        vc.view,
		Sequence:    c.lastExecuted,
		ReplicaID:   int64(c.replicaID),
		Round:       vc.newViewRound,
		ViewChanges: slices.Clone(vc.msgBuf),
	}})
	if sent == nil {
		return
	}
	vc.newView = sent
	vc.lastNewViewTime = c.host.Now()
	// The primary does not process its own new view.
	c.adoptView(ctx, vc)
}

// handleNewView accepts a new view from the primary of a later view.
func (c *Coordinator) handleNewView(ctx context.Context, msg *SignedMessage) bool {
	nv := msg.NewView
	switch {
	case nv.View == c.view:
		return true
	case nv.View < c.view:
		c.trace("rejecting stale new view %d at view %d", nv.View, c.view)
		return false
	}
	c.cancelNewViewTimer()
	if c.isPrimaryFor(nv.View) {
		return true
	}

	voters := make(map[ReplicaID]struct{}, len(nv.ViewChanges))
	for _, vote := range nv.ViewChanges {
		if vote == nil || vote.Kind() != KIND_VIEW_CHANGE {
			log.Warnw("new view carries a non view change vote", "view", nv.View, "from", nv.ReplicaID)
			return false
		}
		if err := c.validator.ValidateMessage(c.directory, vote); err != nil {
			log.Warnw("new view carries an invalid vote", "view", nv.View, "from", nv.ReplicaID, "err", err)
			return false
		}
		if vote.ViewChange.View != nv.View {
			log.Warnw("new view carries a vote for another view", "view", nv.View, "voteView", vote.ViewChange.View)
			return false
		}
		voters[ReplicaID(vote.ViewChange.ReplicaID)] = struct{}{}
	}
	if !hasNewViewQuorum(len(voters), c.directory.Size()) {
		log.Warnw("new view without quorum", "view", nv.View, "voters", len(voters), "quorum", QuorumSize(c.directory.Size()))
		return false
	}

	// Rebuild the view change state from the bundle so that every backup
	// derives the same prepared set as the primary.
	vc := newViewChangeInstance(nv.View, c.host.Now())
	if existing, found := c.viewChanges[nv.View]; found {
		vc.ownVote = existing.ownVote
		vc.startTime = existing.startTime
		vc.lastProposeTime = existing.lastProposeTime
	}
	for _, vote := range nv.ViewChanges {
		vc.record(vote, c.lastExecuted)
	}
	vc.newView = msg
	vc.lastNewViewTime = c.host.Now()
	c.viewChanges[nv.View] = vc
	c.adoptView(ctx, vc)
	return true
}

// adoptView moves the replica into the view of vc, which must have a new view.
func (c *Coordinator) adoptView(ctx context.Context, vc *viewChangeInstance) {
	removed := c.instances.prune(c.lastExecuted)
	from := c.view
	c.view = vc.view
	c.viewActive = true
	c.vcTarget = vc.view
	if err := c.host.StoreView(ctx, c.view); err != nil {
		log.Errorw("failed to persist view", "view", c.view, "err", err)
	}

	now := c.host.Now()
	vc.endTime = now
	vc.executedAtNewView = c.lastExecuted
	for view := range c.viewChanges {
		if view != vc.view {
			delete(c.viewChanges, view)
		}
	}
	c.cancelNewViewTimer()
	c.lastProgress = now
	c.validator.cache.Prune(c.view)

	log.Infow("adopted view", "replica", c.replicaID, "from", from, "to", c.view, "primary", c.directory.Primary(c.view), "pruned", removed)
	metrics.viewChangeCounter.Add(ctx, 1, metric.WithAttributes(attrViewChangeAdopt))
	metrics.currentView.Record(ctx, c.view)
	c.viewChanged(ctx, vc)
}

// viewChanged resumes agreement in the adopted view: the primary re-proposes
// the prepared set, and buffered messages for the view are replayed.
func (c *Coordinator) viewChanged(ctx context.Context, vc *viewChangeInstance) {
	c.reproposals = make(map[uint64]Digest, len(vc.prePreparedEnvSet))
	for seq, msg := range vc.prePreparedEnvSet {
		c.reproposals[seq] = msg.PrePrepare.ValueDigest
	}

	if c.isPrimaryFor(c.view) {
		high := c.lastExecuted
		values := make(map[uint64][]byte, len(vc.prePreparedEnvSet))
		for _, pp := range vc.reproposals() {
			values[pp.Sequence] = pp.Value
			high = max(high, pp.Sequence)
		}
		// Gaps below the highest prepared sequence get fresh values so that
		// execution can proceed in order.
		for seq := c.lastExecuted + 1; seq <= high; seq++ {
			value, found := values[seq]
			if !found {
				var err error
				value, err = c.host.NextValue(ctx, seq)
				if err != nil {
					if !errors.Is(err, ErrNoValue) {
						log.Errorw("failed to get value for gap in new view, proposing empty value", "view", c.view, "seq", seq, "err", err)
					}
					value = nil
				}
			}
			c.proposeValue(ctx, seq, value)
		}
		c.nextSequence = high + 1
	}

	pending := c.pending
	c.pending = nil
	for _, msg := range pending {
		switch view := msg.View(); {
		case view == c.view:
			if err := c.receive(ctx, msg); err != nil {
				c.trace("replayed message %s not accepted: %v", msg, err)
			}
		case view > c.view:
			c.pending = append(c.pending, msg)
		}
	}
}

func (c *Coordinator) armNewViewTimer(target int64) {
	c.cancelNewViewTimer()
	c.newViewTimer = c.host.ScheduleDelay(c.opts.newViewResponseTimeout, NEW_VIEW_RESPONSE_TIMEOUT, target)
	c.newViewTimerSet = true
}

func (c *Coordinator) cancelNewViewTimer() {
	if c.newViewTimerSet {
		c.host.Cancel(c.newViewTimer)
		c.newViewTimerSet = false
	}
}

// checkViewChanges resends stalled view change votes and new views.
func (c *Coordinator) checkViewChanges(ctx context.Context, now time.Time) {
	for _, vc := range c.viewChanges {
		switch {
		case !vc.complete():
			if vc.ownVote != nil && now.Sub(vc.lastProposeTime) >= c.opts.viewChangeTimeout {
				c.rebroadcast(ctx, vc.ownVote)
				vc.lastProposeTime = now
			}
		case vc.newView != nil && vc.view == c.view && c.isPrimaryFor(vc.view) &&
			c.lastExecuted == vc.executedAtNewView &&
			now.Sub(vc.lastNewViewTime) >= c.opts.newViewResendInterval:
			vc.newViewRound++
			resend := &SignedMessage{NewView: &NewView{
				View:        vc.view,
				Sequence:    c.lastExecuted,
				ReplicaID:   int64(c.replicaID),
				Round:       vc.newViewRound,
				ViewChanges: vc.newView.NewView.ViewChanges,
			}}
			if err := c.sign(ctx, resend); err != nil {
				log.Errorw("failed to sign new view resend", "view", vc.view, "err", err)
				continue
			}
			vc.newView = resend
			vc.lastNewViewTime = now
			c.rebroadcast(ctx, resend)
		}
	}
}
