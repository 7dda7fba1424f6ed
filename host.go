package ledgerbft

import (
	"context"
	"time"

	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	_ pbft.Host = (*nodeHost)(nil)

	attrPathBroadcast = attribute.String("path", "broadcast")
	attrPathSend      = attribute.String("path", "send")
)

// nodeHost is a newtype of Node exposing the APIs required by the
// pbft.Coordinator.
type nodeHost Node

func (h *nodeHost) NetworkName() pbft.NetworkName { return h.transport.NetworkName() }

// Broadcast logs the message before handing it to the transport, so that
// a restarted replica repeats it rather than signing a conflicting one.
func (h *nodeHost) Broadcast(msg *pbft.SignedMessage) error {
	if err := h.logMessage(msg); err != nil {
		return err
	}
	err := h.transport.Broadcast(msg)
	metrics.transportSend.Add(context.Background(), 1, metric.WithAttributes(attrPathBroadcast, measurements.Status(context.Background(), err)))
	return err
}

func (h *nodeHost) Send(to pbft.Address, msg *pbft.SignedMessage) error {
	if err := h.logMessage(msg); err != nil {
		return err
	}
	err := h.transport.Send(to, msg)
	metrics.transportSend.Add(context.Background(), 1, metric.WithAttributes(attrPathSend, measurements.Status(context.Background(), err)))
	return err
}

func (h *nodeHost) ScheduleDelay(d time.Duration, t pbft.TimerType, payload int64) pbft.TimerID {
	return h.timers.ScheduleDelay(d, t, payload)
}

func (h *nodeHost) ScheduleRepeating(interval time.Duration, t pbft.TimerType) pbft.TimerID {
	return h.timers.ScheduleRepeating(interval, t)
}

func (h *nodeHost) Cancel(id pbft.TimerID) bool { return h.timers.Cancel(id) }

func (h *nodeHost) Now() time.Time { return h.clock.Now() }

func (h *nodeHost) Sign(ctx context.Context, sender pbft.PubKey, msg []byte) ([]byte, error) {
	return h.backend.Sign(ctx, sender, msg)
}

func (h *nodeHost) Verify(pubKey pbft.PubKey, msg, sig []byte) error {
	return h.backend.Verify(pubKey, msg, sig)
}

func (h *nodeHost) Digest(value []byte) pbft.Digest { return h.backend.Digest(value) }

func (h *nodeHost) StoreView(ctx context.Context, view int64) error {
	return h.views.StoreView(ctx, view)
}

func (h *nodeHost) LoadView(ctx context.Context) (int64, bool, error) {
	return h.views.LoadView(ctx)
}

// Execute hands the certificate to the application, then notifies commit
// subscribers and periodically purges the write-ahead log.
func (h *nodeHost) Execute(ctx context.Context, cert *pbft.CommitCertificate) error {
	if err := h.app.Execute(ctx, cert); err != nil {
		return err
	}
	metrics.executed.Add(ctx, 1)
	h.busCommits.Publish(cert)
	if cert.Sequence%h.walPurgeInterval == 0 {
		h.purgeLog(cert.Sequence)
	}
	return nil
}

func (h *nodeHost) NextValue(ctx context.Context, seq uint64) ([]byte, error) {
	return h.app.NextValue(ctx, seq)
}

func (h *nodeHost) CheckValue(ctx context.Context, value []byte) pbft.ValueCheck {
	return h.app.CheckValue(ctx, value)
}
