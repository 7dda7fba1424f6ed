// Package signing provides the signature schemes a replica can sign its
// consensus messages with.
package signing

import (
	"fmt"

	"github.com/ledgerbft/go-ledgerbft/pbft"
)

const (
	SchemeBLS       = "bls"
	SchemeSecp256k1 = "secp256k1"
	SchemeFake      = "fake"
)

type Backend interface {
	pbft.Signer
	pbft.Verifier
	pbft.Digester
	// GenerateKey creates a key pair, registers it for signing and returns the
	// public key together with the marshalled private key.
	GenerateKey() (pbft.PubKey, []byte)
	// ImportKey registers a marshalled private key for signing.
	ImportKey(privKey []byte) (pbft.PubKey, error)
	// Address derives the validator address of a public key.
	Address(pubKey pbft.PubKey) (pbft.Address, error)
}

// New returns the backend for the named scheme.
func New(scheme string) (Backend, error) {
	switch scheme {
	case SchemeBLS:
		return NewBLSBackend(), nil
	case SchemeSecp256k1:
		return NewEthBackend(), nil
	case SchemeFake:
		return NewFakeBackend(), nil
	default:
		return nil, fmt.Errorf("unknown signing scheme: %q", scheme)
	}
}
