package psutil

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pubsub_pb "github.com/libp2p/go-libp2p-pubsub/pb"
)

// ConsensusMessageIdFn derives a pubsub message ID from the topic and data.
// Consensus messages carry their own signature, so the same envelope relayed
// by different peers is one message.
func ConsensusMessageIdFn(m *pubsub_pb.Message) string {
	hasher := newHasher()
	writeLengthPrefixed(hasher, []byte(m.GetTopic()))
	_, _ = hasher.Write(m.Data)
	return string(hasher.Sum(nil))
}

func newHasher() hashWriter {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		panic("failed to construct hasher")
	}
	return hasher
}

type hashWriter interface {
	Write([]byte) (int, error)
	Sum([]byte) []byte
}

func writeLengthPrefixed(h hashWriter, b []byte) {
	if err := binary.Write(h, binary.BigEndian, uint32(len(b))); err != nil {
		panic(err)
	}
	if _, err := h.Write(b); err != nil {
		panic(err)
	}
}

// TopicScoreParams scores peers on the consensus topic. A small validator set
// exchanges a few messages per sequence, so deliveries are capped low and a
// single invalid message is heavily penalised.
var TopicScoreParams = &pubsub.TopicScoreParams{
	TopicWeight: 0.1,

	// 1 tick per second, maxes at 1 hour
	TimeInMeshWeight:  0.0002778, // ~1/3600
	TimeInMeshQuantum: time.Second,
	TimeInMeshCap:     1,

	// deliveries decay after 10min, cap at 100 messages
	FirstMessageDeliveriesWeight: 0.5, // max value is 50
	FirstMessageDeliveriesDecay:  pubsub.ScoreParameterDecay(10 * time.Minute),
	FirstMessageDeliveriesCap:    100,

	// invalid messages decay after 1 hour
	InvalidMessageDeliveriesWeight: -1000,
	InvalidMessageDeliveriesDecay:  pubsub.ScoreParameterDecay(time.Hour),
}
