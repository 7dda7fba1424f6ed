package writeaheadlog

import (
	"io"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

var _ Entry = (*MessageEntry)(nil)

// MessageEntry is a signed consensus message sent by this replica.
type MessageEntry struct {
	Message *pbft.SignedMessage
}

// WALEpoch is the sequence the message is about. View change and new view
// messages use the last executed sequence they carry.
func (e *MessageEntry) WALEpoch() uint64 {
	if key, ok := e.Message.InstanceKey(); ok {
		return key.Sequence
	}
	switch e.Message.Kind() {
	case pbft.KIND_VIEW_CHANGE:
		return e.Message.ViewChange.Sequence
	case pbft.KIND_NEW_VIEW:
		return e.Message.NewView.Sequence
	default:
		return 0
	}
}

func (e *MessageEntry) MarshalCBOR(w io.Writer) error {
	return e.Message.MarshalCBOR(w)
}

func (e *MessageEntry) UnmarshalCBOR(r io.Reader) error {
	e.Message = &pbft.SignedMessage{}
	return e.Message.UnmarshalCBOR(r)
}
