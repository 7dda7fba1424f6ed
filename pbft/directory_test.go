package pbft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatorDirectory(t *testing.T) {
	validators := testValidators(4)
	subject, err := NewValidatorDirectory(validators)
	require.NoError(t, err)
	require.Equal(t, 4, subject.Size())

	t.Run("replica ids follow order", func(t *testing.T) {
		for i, v := range validators {
			id, found := subject.ReplicaID(v.Address)
			require.True(t, found)
			require.Equal(t, ReplicaID(i), id)
			got, found := subject.Get(id)
			require.True(t, found)
			require.Equal(t, v, got)
		}
		_, found := subject.ReplicaID(Address{0xff})
		require.False(t, found)
		require.False(t, subject.Has(4))
		require.False(t, subject.Has(-1))
	})
	t.Run("primary rotates with view", func(t *testing.T) {
		require.Equal(t, ReplicaID(0), subject.Primary(0))
		require.Equal(t, ReplicaID(1), subject.Primary(5))
		require.Equal(t, ReplicaID(3), subject.Primary(-1))
	})
	t.Run("changed", func(t *testing.T) {
		same, err := NewValidatorDirectory(testValidators(4))
		require.NoError(t, err)
		require.False(t, subject.Changed(same))

		smaller, err := NewValidatorDirectory(testValidators(3))
		require.NoError(t, err)
		require.True(t, subject.Changed(smaller))

		swapped := testValidators(4)
		swapped[0], swapped[1] = swapped[1], swapped[0]
		reordered, err := NewValidatorDirectory(swapped)
		require.NoError(t, err)
		require.True(t, subject.Changed(reordered))

		rekeyed := testValidators(4)
		rekeyed[2].PubKey = PubKey("rotated")
		other, err := NewValidatorDirectory(rekeyed)
		require.NoError(t, err)
		require.True(t, subject.Changed(other))
	})
	t.Run("validators are copied", func(t *testing.T) {
		got := subject.Validators()
		got[0].PubKey[0] = 'x'
		first, _ := subject.Get(0)
		require.Equal(t, validators[0].PubKey, first.PubKey)
	})
}

func TestValidatorDirectory_Invalid(t *testing.T) {
	_, err := NewValidatorDirectory(nil)
	require.Error(t, err)

	duplicate := testValidators(2)
	duplicate[1].Address = duplicate[0].Address
	_, err = NewValidatorDirectory(duplicate)
	require.Error(t, err)

	keyless := testValidators(2)
	keyless[1].PubKey = nil
	_, err = NewValidatorDirectory(keyless)
	require.Error(t, err)
}
