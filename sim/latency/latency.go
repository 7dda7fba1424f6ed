// Package latency models message delivery delay between simulated replicas.
package latency

import (
	"time"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

// Model samples the delay of a message sent at a given time from one replica
// to another.
type Model interface {
	Sample(at time.Time, from pbft.ReplicaID, to pbft.ReplicaID) time.Duration
}
