package latency

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

var _ Model = (*LogNormal)(nil)

// LogNormal represents a log normal latency distribution with a configurable
// mean latency. It does not specialise based on time nor replicas.
type LogNormal struct {
	rng  *rand.Rand
	mean time.Duration
}

// NewLogNormal instantiates a new latency model of log normal latency
// distribution with the given mean.
func NewLogNormal(seed int64, mean time.Duration) (*LogNormal, error) {
	if mean < 0 {
		return nil, errors.New("mean duration cannot be negative")
	}
	return &LogNormal{rng: rand.New(rand.NewSource(seed)), mean: mean}, nil
}

// Sample returns a log normal sample with the configured mean. A replica
// reaches itself with zero latency.
func (l *LogNormal) Sample(_ time.Time, from pbft.ReplicaID, to pbft.ReplicaID) time.Duration {
	if from == to {
		return 0
	}
	norm := l.rng.NormFloat64()
	lognorm := math.Exp(norm)
	return time.Duration(lognorm * float64(l.mean))
}
