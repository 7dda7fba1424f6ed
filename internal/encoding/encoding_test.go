package encoding_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/ledgerbft/go-ledgerbft/internal/encoding"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"
)

type testValue struct {
	Value string
}

func (m *testValue) MarshalCBOR(w io.Writer) error {
	return cbg.WriteByteArray(w, []byte(m.Value))
}

func (m *testValue) UnmarshalCBOR(r io.Reader) error {
	data, err := cbg.ReadByteArray(r, 8<<20)
	if err != nil {
		return err
	}
	m.Value = string(data)
	return nil
}

func TestCodec(t *testing.T) {
	for _, compress := range []bool{false, true} {
		subject, err := encoding.New[*testValue](compress, 0)
		require.NoError(t, err)
		require.Equal(t, compress, subject.Compressed())

		data := &testValue{Value: string(bytes.Repeat([]byte("ledger-entry"), 100))}
		encoded, err := subject.Encode(data)
		require.NoError(t, err)
		if compress {
			require.Less(t, len(encoded), len(data.Value))
		}
		var decoded testValue
		require.NoError(t, subject.Decode(encoded, &decoded))
		require.Equal(t, data.Value, decoded.Value)
	}
}

func TestCodec_MaxSize(t *testing.T) {
	const maxSize = 1 << 10
	for _, compress := range []bool{false, true} {
		subject, err := encoding.New[*testValue](compress, maxSize)
		require.NoError(t, err)
		_, err = subject.Encode(&testValue{Value: string(make([]byte, maxSize))})
		require.ErrorContains(t, err, "exceeds maximum")

		// Payloads produced by a more permissive peer are rejected too.
		permissive, err := encoding.New[*testValue](compress, 0)
		require.NoError(t, err)
		encoded, err := permissive.Encode(&testValue{Value: string(make([]byte, maxSize))})
		require.NoError(t, err)
		require.Error(t, subject.Decode(encoded, &testValue{}))
	}
}

func TestCodec_DefaultFitsLargeValues(t *testing.T) {
	subject, err := encoding.New[*testValue](true, 0)
	require.NoError(t, err)
	big := &testValue{Value: string(bytes.Repeat([]byte{7}, 2<<20))}
	encoded, err := subject.Encode(big)
	require.NoError(t, err)
	var decoded testValue
	require.NoError(t, subject.Decode(encoded, &decoded))
	require.Len(t, decoded.Value, 2<<20)
}

func TestCodec_CompressionMismatch(t *testing.T) {
	plain, err := encoding.New[*testValue](false, 0)
	require.NoError(t, err)
	compressed, err := encoding.New[*testValue](true, 0)
	require.NoError(t, err)
	encoded, err := compressed.Encode(&testValue{Value: "x"})
	require.NoError(t, err)
	require.Error(t, plain.Decode(encoded, &testValue{}))
}
