package psutil_test

import (
	"testing"

	"github.com/ledgerbft/go-ledgerbft/internal/psutil"
	pubsub_pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/stretchr/testify/require"
)

func message(topic, from, data string) *pubsub_pb.Message {
	return &pubsub_pb.Message{Topic: &topic, From: []byte(from), Data: []byte(data)}
}

func TestConsensusMessageIdFn(t *testing.T) {
	id := psutil.ConsensusMessageIdFn

	t.Run("relayed envelope keeps its id", func(t *testing.T) {
		require.Equal(t,
			id(message("/ledgerbft/consensus/test", "12D3KooWA", "prepare-7")),
			id(message("/ledgerbft/consensus/test", "12D3KooWB", "prepare-7")))
	})
	t.Run("data is part of the id", func(t *testing.T) {
		require.NotEqual(t,
			id(message("/ledgerbft/consensus/test", "12D3KooWA", "prepare-7")),
			id(message("/ledgerbft/consensus/test", "12D3KooWA", "commit-7")))
	})
	t.Run("topic is part of the id", func(t *testing.T) {
		require.NotEqual(t,
			id(message("/ledgerbft/consensus/test", "12D3KooWA", "prepare-7")),
			id(message("/ledgerbft/consensus/other", "12D3KooWA", "prepare-7")))
	})
	t.Run("topic and data do not run into each other", func(t *testing.T) {
		require.NotEqual(t,
			id(message("ab", "", "c")),
			id(message("a", "", "bc")))
	})
	t.Run("id is a blake2b-256 digest", func(t *testing.T) {
		require.Len(t, id(message("t", "", "")), 32)
	})
}

func TestTopicScoreParams(t *testing.T) {
	require.Negative(t, psutil.TopicScoreParams.InvalidMessageDeliveriesWeight)
	require.Positive(t, psutil.TopicScoreParams.FirstMessageDeliveriesWeight)
}
