package ledgerbft

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft/pbft"
)

var log = logging.Logger("ledgerbft")
var tracer pbft.Tracer = (*pbftTracer)(logging.WithSkip(logging.Logger("ledgerbft/trace"), 2))

// Tracer used by the coordinator, backed by a Zap logger.
type pbftTracer logging.ZapEventLogger

// Log fulfills the pbft.Tracer interface
func (h *pbftTracer) Log(fmt string, args ...any) {
	(*logging.ZapEventLogger)(h).Debugf(fmt, args...)
}
