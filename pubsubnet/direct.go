package pubsubnet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/ledgerbft/go-ledgerbft/internal/measurements"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"
	"go.opentelemetry.io/otel/metric"
)

// DirectProtocolName is the stream protocol carrying one message per stream
// between two validators.
func DirectProtocolName(nn pbft.NetworkName) protocol.ID {
	return protocol.ID("/ledgerbft/direct/1/" + string(nn))
}

func (n *Network) sendLoop(ctx context.Context, queue <-chan outbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-queue:
			start := time.Now()
			err := n.breakerFor(out.to).Run(func() error {
				return n.sendDirect(ctx, out)
			})
			attrs := metric.WithAttributes(attrPathDirect, measurements.Status(ctx, err))
			metrics.sent.Add(ctx, 1, attrs)
			metrics.sendTime.Record(ctx, time.Since(start).Seconds(), attrs)
			if err != nil {
				log.Debugw("failed to send direct message", "to", out.to, "err", err)
			}
		}
	}
}

func (n *Network) sendDirect(ctx context.Context, out outbound) (_err error) {
	defer func() {
		if perr := recover(); perr != nil {
			_err = fmt.Errorf("panicked sending to peer %s: %v", out.to, perr)
			log.Errorf("%s\n%s", _err, string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()

	stream, err := n.host.NewStream(ctx, out.to, DirectProtocolName(n.networkName))
	if err != nil {
		return err
	}
	defer context.AfterFunc(ctx, func() { _ = stream.Reset() })()
	if deadline, ok := ctx.Deadline(); ok {
		// Not all transports support deadlines.
		_ = stream.SetDeadline(deadline)
	}
	bw := bufio.NewWriter(stream)
	if _, err := bw.Write(out.data); err != nil {
		_ = stream.Reset()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = stream.Reset()
		return err
	}
	return stream.Close()
}

func (n *Network) handleStream(stream network.Stream) {
	ctx := context.Background()
	defer func() {
		if perr := recover(); perr != nil {
			log.Errorf("panicked handling direct message: %v\n%s", perr, string(debug.Stack()))
			_ = stream.Reset()
		}
	}()
	_ = stream.SetReadDeadline(time.Now().Add(n.sendTimeout))

	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(stream), n.maxMessageSize+1))
	if err != nil {
		log.Debugw("failed to read direct message", "from", stream.Conn().RemotePeer(), "err", err)
		_ = stream.Reset()
		return
	}
	_ = stream.Close()
	if int64(len(data)) > n.maxMessageSize {
		log.Debugw("direct message too large", "from", stream.Conn().RemotePeer(), "size", len(data))
		return
	}
	msg, err := n.decode(data)
	if err != nil {
		log.Debugw("failed to decode direct message", "from", stream.Conn().RemotePeer(), "err", err)
		return
	}
	n.deliver(ctx, msg, attrPathDirect)
}
