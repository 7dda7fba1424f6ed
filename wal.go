package ledgerbft

import (
	"context"
	"fmt"

	"github.com/ledgerbft/go-ledgerbft/internal/writeaheadlog"
	"github.com/ledgerbft/go-ledgerbft/pbft"
)

// logMessage durably records an own message, if the log is enabled.
func (h *nodeHost) logMessage(msg *pbft.SignedMessage) error {
	wal := h.wal.Load()
	if wal == nil {
		return nil
	}
	if err := wal.Append(msg); err != nil {
		return fmt.Errorf("logging own message %s: %w", msg, err)
	}
	metrics.walAppends.Add(context.Background(), 1)
	return nil
}

// purgeLog drops log files that only hold messages about executed sequences.
func (h *nodeHost) purgeLog(executed uint64) {
	wal := h.wal.Load()
	if wal == nil {
		return
	}
	if err := wal.Purge(executed); err != nil {
		log.Warnw("failed to purge write-ahead log", "executed", executed, "err", err)
		return
	}
	metrics.walPurges.Add(context.Background(), 1)
}

func (n *Node) openLog() (*writeaheadlog.MessageWriteAheadLog, error) {
	if n.walPath == "" {
		return nil, nil
	}
	wal, err := writeaheadlog.OpenMessageWriteAheadLog(n.walPath)
	if err != nil {
		return nil, fmt.Errorf("opening write-ahead log: %w", err)
	}
	return wal, nil
}

// replayLog feeds own logged messages back to the started coordinator, which
// restores its votes and moves past sequences it already proposed.
func (n *Node) replayLog(ctx context.Context, wal *writeaheadlog.MessageWriteAheadLog) error {
	var logged []*pbft.SignedMessage
	// Collect first: receiving a message may append to the log.
	if err := wal.ForEach(func(msg *pbft.SignedMessage) bool {
		logged = append(logged, msg)
		return true
	}); err != nil {
		return fmt.Errorf("reading write-ahead log: %w", err)
	}
	var replayed int
	for _, msg := range logged {
		if err := n.coordinator.Receive(ctx, msg); err != nil {
			log.Debugw("logged message not replayed", "msg", msg, "err", err)
			continue
		}
		replayed++
	}
	metrics.walReplayed.Add(ctx, int64(replayed))
	log.Infow("replayed write-ahead log", "logged", len(logged), "replayed", replayed)
	return nil
}
