package pbft

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/filecoin-project/go-bitfield"
)

// ReplicaID is the dense, zero-based index of a validator within the current
// validator set.
type ReplicaID int64

type PubKey []byte

// Address is the stable identity of a validator, independent of its position
// in the validator set.
type Address [20]byte

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// AddressFromBytes truncates or left-pads b into an Address.
func AddressFromBytes(b []byte) Address {
	var a Address
	if len(b) > len(a) {
		b = b[len(b)-len(a):]
	}
	copy(a[len(a)-len(b):], b)
	return a
}

// Digest is the fixed-length hash of a proposed value.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// NetworkName provides separation between different networks. It is
// implicitly included in all signatures.
type NetworkName string

func (nn NetworkName) SignatureDomain() []byte {
	return []byte(DomainSeparationTag + ":" + string(nn) + ":")
}

const DomainSeparationTag = "LEDGERBFT"

// Phase is the progress of a consensus instance. Phases are compared with
// Rank, never by their numeric value.
type Phase uint8

const (
	NONE_PHASE Phase = iota
	PRE_PREPARED_PHASE
	PREPARED_PHASE
	COMMITTED_PHASE
)

func (p Phase) String() string {
	switch p {
	case NONE_PHASE:
		return "NONE"
	case PRE_PREPARED_PHASE:
		return "PRE_PREPARED"
	case PREPARED_PHASE:
		return "PREPARED"
	case COMMITTED_PHASE:
		return "COMMITTED"
	default:
		return "UNKNOWN"
	}
}

// Rank returns the position of the phase in the three-phase protocol.
func (p Phase) Rank() uint8 {
	switch p {
	case NONE_PHASE:
		return 0
	case PRE_PREPARED_PHASE:
		return 1
	case PREPARED_PHASE:
		return 2
	case COMMITTED_PHASE:
		return 3
	default:
		return 0
	}
}

// Precedes reports whether p comes strictly before o.
func (p Phase) Precedes(o Phase) bool { return p.Rank() < o.Rank() }

// AtLeast reports whether p has reached o.
func (p Phase) AtLeast(o Phase) bool { return p.Rank() >= o.Rank() }

// ValueCheck is the result of application level validation of a proposed
// value.
type ValueCheck uint8

const (
	VALUE_PENDING ValueCheck = iota
	VALUE_VALID
	VALUE_INVALID
)

func (v ValueCheck) String() string {
	switch v {
	case VALUE_PENDING:
		return "PENDING"
	case VALUE_VALID:
		return "VALID"
	case VALUE_INVALID:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// InstanceKey identifies a consensus instance.
type InstanceKey struct {
	View     int64
	Sequence uint64
}

// Compare orders keys by view, then by sequence.
func (k InstanceKey) Compare(o InstanceKey) int {
	switch {
	case k.View < o.View:
		return -1
	case k.View > o.View:
		return 1
	case k.Sequence < o.Sequence:
		return -1
	case k.Sequence > o.Sequence:
		return 1
	default:
		return 0
	}
}

func (k InstanceKey) String() string { return fmt.Sprintf("{view:%d, seq:%d}", k.View, k.Sequence) }

// PrePrepare is the primary's proposal of a value for a sequence number.
type PrePrepare struct {
	View        int64
	Sequence    uint64
	ReplicaID   int64
	Round       uint64
	Value       []byte `cborgen:"maxlen=2097152"`
	ValueDigest Digest
}

// Prepare is a replica's acceptance of a pre-prepare.
type Prepare struct {
	View        int64
	Sequence    uint64
	ReplicaID   int64
	Round       uint64
	ValueDigest Digest
}

// Commit is a replica's vote to commit a prepared value.
type Commit struct {
	View        int64
	Sequence    uint64
	ReplicaID   int64
	Round       uint64
	ValueDigest Digest
}

// ViewChange is a vote to move to View. Sequence is the last sequence executed
// by the voter and Prepared carries the signed pre-prepares the voter has
// prepared above it.
type ViewChange struct {
	View      int64
	Sequence  uint64
	ReplicaID int64
	Round     uint64
	Prepared  []*SignedMessage
}

// NewView is sent by the primary of View, justified by the bundled view change
// votes. Round is bumped on every resend.
type NewView struct {
	View        int64
	Sequence    uint64
	ReplicaID   int64
	Round       uint64
	ViewChanges []*SignedMessage
}

// SignedMessage is the envelope exchanged between replicas. Exactly one of the
// payload fields is set.
type SignedMessage struct {
	Sender     int64
	PrePrepare *PrePrepare
	Prepare    *Prepare
	Commit     *Commit
	ViewChange *ViewChange
	NewView    *NewView
	Signature  []byte `cborgen:"maxlen=96"`
}

// MessageKind names the payload carried by a SignedMessage.
type MessageKind uint8

const (
	KIND_UNKNOWN MessageKind = iota
	KIND_PRE_PREPARE
	KIND_PREPARE
	KIND_COMMIT
	KIND_VIEW_CHANGE
	KIND_NEW_VIEW
)

func (k MessageKind) String() string {
	switch k {
	case KIND_PRE_PREPARE:
		return "PRE_PREPARE"
	case KIND_PREPARE:
		return "PREPARE"
	case KIND_COMMIT:
		return "COMMIT"
	case KIND_VIEW_CHANGE:
		return "VIEW_CHANGE"
	case KIND_NEW_VIEW:
		return "NEW_VIEW"
	default:
		return "UNKNOWN"
	}
}

// Kind returns the kind of the payload, or KIND_UNKNOWN if the envelope
// carries zero or more than one payload.
func (m *SignedMessage) Kind() MessageKind {
	kind, count := KIND_UNKNOWN, 0
	if m.PrePrepare != nil {
		kind, count = KIND_PRE_PREPARE, count+1
	}
	if m.Prepare != nil {
		kind, count = KIND_PREPARE, count+1
	}
	if m.Commit != nil {
		kind, count = KIND_COMMIT, count+1
	}
	if m.ViewChange != nil {
		kind, count = KIND_VIEW_CHANGE, count+1
	}
	if m.NewView != nil {
		kind, count = KIND_NEW_VIEW, count+1
	}
	if count != 1 {
		return KIND_UNKNOWN
	}
	return kind
}

// View returns the view number of whichever payload the envelope carries.
func (m *SignedMessage) View() int64 {
	switch m.Kind() {
	case KIND_PRE_PREPARE:
		return m.PrePrepare.View
	case KIND_PREPARE:
		return m.Prepare.View
	case KIND_COMMIT:
		return m.Commit.View
	case KIND_VIEW_CHANGE:
		return m.ViewChange.View
	case KIND_NEW_VIEW:
		return m.NewView.View
	default:
		return -1
	}
}

// ReplicaID returns the replica id claimed by the payload.
func (m *SignedMessage) ReplicaID() ReplicaID {
	switch m.Kind() {
	case KIND_PRE_PREPARE:
		return ReplicaID(m.PrePrepare.ReplicaID)
	case KIND_PREPARE:
		return ReplicaID(m.Prepare.ReplicaID)
	case KIND_COMMIT:
		return ReplicaID(m.Commit.ReplicaID)
	case KIND_VIEW_CHANGE:
		return ReplicaID(m.ViewChange.ReplicaID)
	case KIND_NEW_VIEW:
		return ReplicaID(m.NewView.ReplicaID)
	default:
		return -1
	}
}

// InstanceKey returns the key of the consensus instance addressed by a
// pre-prepare, prepare or commit. ok is false for any other payload.
func (m *SignedMessage) InstanceKey() (key InstanceKey, ok bool) {
	switch m.Kind() {
	case KIND_PRE_PREPARE:
		return InstanceKey{View: m.PrePrepare.View, Sequence: m.PrePrepare.Sequence}, true
	case KIND_PREPARE:
		return InstanceKey{View: m.Prepare.View, Sequence: m.Prepare.Sequence}, true
	case KIND_COMMIT:
		return InstanceKey{View: m.Commit.View, Sequence: m.Commit.Sequence}, true
	default:
		return InstanceKey{}, false
	}
}

// Phase returns the phase an instance reaches by processing this message.
func (m *SignedMessage) Phase() Phase {
	switch m.Kind() {
	case KIND_PRE_PREPARE:
		return PRE_PREPARED_PHASE
	case KIND_PREPARE:
		return PREPARED_PHASE
	case KIND_COMMIT:
		return COMMITTED_PHASE
	default:
		return NONE_PHASE
	}
}

// Round returns the resend round of the payload.
func (m *SignedMessage) Round() uint64 {
	switch m.Kind() {
	case KIND_PRE_PREPARE:
		return m.PrePrepare.Round
	case KIND_PREPARE:
		return m.Prepare.Round
	case KIND_COMMIT:
		return m.Commit.Round
	case KIND_VIEW_CHANGE:
		return m.ViewChange.Round
	case KIND_NEW_VIEW:
		return m.NewView.Round
	default:
		return 0
	}
}

// MarshalForSigning returns the bytes covered by the envelope signature: the
// network domain followed by the CBOR encoding of the unsigned envelope.
func (m *SignedMessage) MarshalForSigning(nn NetworkName) ([]byte, error) {
	unsigned := *m
	unsigned.Signature = nil
	var buf bytes.Buffer
	buf.Write(nn.SignatureDomain())
	if err := unsigned.MarshalCBOR(&buf); err != nil {
		return nil, fmt.Errorf("marshalling message for signing: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *SignedMessage) String() string {
	switch m.Kind() {
	case KIND_PRE_PREPARE:
		return fmt.Sprintf("PRE_PREPARE{view:%d, seq:%d, from:%d, round:%d, digest:%s}",
			m.PrePrepare.View, m.PrePrepare.Sequence, m.PrePrepare.ReplicaID, m.PrePrepare.Round, m.PrePrepare.ValueDigest)
	case KIND_PREPARE:
		return fmt.Sprintf("PREPARE{view:%d, seq:%d, from:%d, round:%d, digest:%s}",
			m.Prepare.View, m.Prepare.Sequence, m.Prepare.ReplicaID, m.Prepare.Round, m.Prepare.ValueDigest)
	case KIND_COMMIT:
		return fmt.Sprintf("COMMIT{view:%d, seq:%d, from:%d, round:%d, digest:%s}",
			m.Commit.View, m.Commit.Sequence, m.Commit.ReplicaID, m.Commit.Round, m.Commit.ValueDigest)
	case KIND_VIEW_CHANGE:
		return fmt.Sprintf("VIEW_CHANGE{view:%d, lastExec:%d, from:%d, round:%d, prepared:%d}",
			m.ViewChange.View, m.ViewChange.Sequence, m.ViewChange.ReplicaID, m.ViewChange.Round, len(m.ViewChange.Prepared))
	case KIND_NEW_VIEW:
		return fmt.Sprintf("NEW_VIEW{view:%d, seq:%d, from:%d, round:%d, votes:%d}",
			m.NewView.View, m.NewView.Sequence, m.NewView.ReplicaID, m.NewView.Round, len(m.NewView.ViewChanges))
	default:
		return "MALFORMED{}"
	}
}

// CommitCertificate is handed to the Executor once a value is committed.
type CommitCertificate struct {
	View        int64
	Sequence    uint64
	Value       []byte `cborgen:"maxlen=2097152"`
	ValueDigest Digest
	// Signers is the set of replica ids whose commits formed the quorum.
	Signers bitfield.BitField
}
