package ledgerbft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	t.Parallel()

	opts, err := newOptions()
	require.NoError(t, err)
	require.Equal(t, "/ledgerbft", opts.datastorePrefix)
	require.Empty(t, opts.walPath)

	for _, test := range []struct {
		name   string
		option Option
	}{
		{name: "empty prefix", option: WithDatastorePrefix("")},
		{name: "zero timer capacity", option: WithTimerCapacity(0)},
		{name: "zero purge interval", option: WithWriteAheadLogPurgeInterval(0)},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := newOptions(test.option)
			require.Error(t, err)
		})
	}
}
