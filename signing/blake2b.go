package signing

import (
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"golang.org/x/crypto/blake2b"
)

var _ pbft.Digester = Blake2bDigester{}

// Blake2bDigester digests values with blake2b-256.
type Blake2bDigester struct{}

func (Blake2bDigester) Digest(value []byte) pbft.Digest {
	return blake2b.Sum256(value)
}

// addressFromDigest takes the trailing 20 bytes of the blake2b digest of the
// public key.
func addressFromDigest(pubKey pbft.PubKey) pbft.Address {
	sum := blake2b.Sum256(pubKey)
	return pbft.AddressFromBytes(sum[len(sum)-20:])
}
