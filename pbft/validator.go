package pbft

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledgerbft/go-ledgerbft/internal/caching"
	"go.opentelemetry.io/otel/metric"
)

var messageCacheNamespace = []byte("message")

type cachingValidator struct {
	// cache is a bounded cache that stores the encoded form of messages already
	// validated by this validator, grouped by view. A message found in the cache
	// skips signature verification.
	cache       *caching.ViewCache
	networkName NetworkName
	verifier    Verifier
	digester    Digester
}

func newValidator(host Host, cache *caching.ViewCache) *cachingValidator {
	return &cachingValidator{
		cache:       cache,
		networkName: host.NetworkName(),
		verifier:    host,
		digester:    host,
	}
}

// ValidateMessage checks that the message is well formed and signed by the
// validator it claims to come from. It does not check the message against any
// instance state.
func (v *cachingValidator) ValidateMessage(dir *ValidatorDirectory, msg *SignedMessage) error {
	if err := v.validateShape(dir, msg); err != nil {
		return err
	}

	var buf bytes.Buffer
	var cacheMessage bool
	if err := msg.MarshalCBOR(&buf); err != nil {
		log.Errorw("failed to marshal message for caching", "err", err)
	} else if v.cache.Contains(msg.View(), messageCacheNamespace, buf.Bytes()) {
		metrics.validationCache.Add(context.TODO(), 1, metric.WithAttributes(attrCacheHit))
		return nil
	} else {
		cacheMessage = true
		metrics.validationCache.Add(context.TODO(), 1, metric.WithAttributes(attrCacheMiss))
	}

	if err := v.verifySignature(dir, msg); err != nil {
		return err
	}

	// Pre-prepare digests are checked by the handler, against the instance.
	if msg.Kind() == KIND_VIEW_CHANGE {
		for i, prepared := range msg.ViewChange.Prepared {
			if err := v.validatePrepared(dir, msg.ViewChange.View, prepared); err != nil {
				return fmt.Errorf("prepared entry %d: %w", i, err)
			}
		}
	}

	if cacheMessage {
		v.cache.Add(msg.View(), messageCacheNamespace, buf.Bytes())
	}
	return nil
}

func (v *cachingValidator) validateShape(dir *ValidatorDirectory, msg *SignedMessage) error {
	if msg == nil {
		return ErrValidationMalformed
	}
	kind := msg.Kind()
	if kind == KIND_UNKNOWN {
		return fmt.Errorf("envelope must carry exactly one payload: %w", ErrValidationMalformed)
	}
	view := msg.View()
	if view < 0 {
		return fmt.Errorf("negative view %d: %w", view, ErrValidationMalformed)
	}
	if key, ok := msg.InstanceKey(); ok && key.Sequence == 0 {
		return fmt.Errorf("zero sequence in %s: %w", kind, ErrValidationMalformed)
	}
	if ReplicaID(msg.Sender) != msg.ReplicaID() {
		return fmt.Errorf("sender %d does not match payload replica %d: %w", msg.Sender, msg.ReplicaID(), ErrValidationUnknownReplica)
	}
	if !dir.Has(ReplicaID(msg.Sender)) {
		return fmt.Errorf("sender %d not in validator set of size %d: %w", msg.Sender, dir.Size(), ErrValidationUnknownReplica)
	}
	switch kind {
	case KIND_PRE_PREPARE, KIND_NEW_VIEW:
		if primary := dir.Primary(view); ReplicaID(msg.Sender) != primary {
			return fmt.Errorf("%s from %d for view %d with primary %d: %w", kind, msg.Sender, view, primary, ErrValidationNotPrimary)
		}
	case KIND_VIEW_CHANGE:
		if view == 0 {
			return fmt.Errorf("view change to initial view: %w", ErrValidationMalformed)
		}
	}
	return nil
}

func (v *cachingValidator) verifySignature(dir *ValidatorDirectory, msg *SignedMessage) error {
	validator, _ := dir.Get(ReplicaID(msg.Sender))
	payload, err := msg.MarshalForSigning(v.networkName)
	if err != nil {
		return fmt.Errorf("%w: %w", err, ErrValidationMalformed)
	}
	if err := v.verifier.Verify(validator.PubKey, payload, msg.Signature); err != nil {
		return fmt.Errorf("message from %d: %w: %w", msg.Sender, err, ErrValidationInvalidSignature)
	}
	return nil
}

// validatePrepared checks a pre-prepare carried by a view change vote: it must
// be a properly signed proposal from an earlier view's primary with a matching
// digest.
func (v *cachingValidator) validatePrepared(dir *ValidatorDirectory, targetView int64, prepared *SignedMessage) error {
	if prepared == nil || prepared.Kind() != KIND_PRE_PREPARE {
		return fmt.Errorf("not a pre-prepare: %w", ErrValidationInvalid)
	}
	if prepared.PrePrepare.View >= targetView {
		return fmt.Errorf("pre-prepare view %d not below target view %d: %w", prepared.PrePrepare.View, targetView, ErrValidationInvalid)
	}
	if err := v.validateShape(dir, prepared); err != nil {
		return err
	}
	if got := v.digester.Digest(prepared.PrePrepare.Value); got != prepared.PrePrepare.ValueDigest {
		return fmt.Errorf("value digest %s, claimed %s: %w", got, prepared.PrePrepare.ValueDigest, ErrDigestMismatch)
	}
	return v.verifySignature(dir, prepared)
}
