package writeaheadlog

import "github.com/ledgerbft/go-ledgerbft/pbft"

// MessageWriteAheadLog records the messages a replica signs, so that after a
// restart it repeats them instead of signing conflicting ones.
type MessageWriteAheadLog struct {
	delegate *WriteAheadLog[MessageEntry, *MessageEntry]
}

func OpenMessageWriteAheadLog(path string) (*MessageWriteAheadLog, error) {
	delegate, err := Open[MessageEntry](path)
	if err != nil {
		return nil, err
	}
	return &MessageWriteAheadLog{delegate: delegate}, nil
}

func (mwal *MessageWriteAheadLog) ForEach(apply func(*pbft.SignedMessage) bool) error {
	return mwal.delegate.ForEach(func(entry MessageEntry) bool {
		return apply(entry.Message)
	})
}

func (mwal *MessageWriteAheadLog) Append(msg *pbft.SignedMessage) error {
	return mwal.delegate.Append(MessageEntry{Message: msg})
}

// Purge drops files holding only messages about sequences below keep.
func (mwal *MessageWriteAheadLog) Purge(keep uint64) error {
	return mwal.delegate.Purge(keep)
}

// FindMessages returns the logged messages of the given kind for an instance.
func (mwal *MessageWriteAheadLog) FindMessages(key pbft.InstanceKey, kind pbft.MessageKind) []*pbft.SignedMessage {
	var matches []*pbft.SignedMessage
	_ = mwal.ForEach(func(subject *pbft.SignedMessage) bool {
		if k, ok := subject.InstanceKey(); ok && k == key && subject.Kind() == kind {
			matches = append(matches, subject)
		}
		return true
	})
	return matches
}

func (mwal *MessageWriteAheadLog) Close() error {
	return mwal.delegate.Close()
}
