package signing

import (
	"context"
	"errors"
	"sync"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
	"github.com/drand/kyber/sign/bdn"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"golang.org/x/xerrors"
)

var _ Backend = (*BLSBackend)(nil)

// BLSBackend signs with BLS12-381, public keys on G2 and signatures on G1.
type BLSBackend struct {
	Blake2bDigester

	suite  pairing.Suite
	scheme *bdn.Scheme

	// signersMutex guards access to signersByPubKey.
	signersMutex    sync.RWMutex
	signersByPubKey map[string]kyber.Scalar
}

func NewBLSBackend() *BLSBackend {
	suite := bls12381.NewBLS12381Suite()
	return &BLSBackend{
		suite:           suite,
		scheme:          bdn.NewSchemeOnG1(suite),
		signersByPubKey: make(map[string]kyber.Scalar),
	}
}

func (b *BLSBackend) GenerateKey() (pbft.PubKey, []byte) {
	priv, pub := b.scheme.NewKeyPair(b.suite.RandomStream())
	pubKeyB, err := pub.MarshalBinary()
	if err != nil {
		panic(err)
	}
	privKeyB, err := priv.MarshalBinary()
	if err != nil {
		panic(err)
	}
	b.register(pubKeyB, priv)
	return pubKeyB, privKeyB
}

func (b *BLSBackend) ImportKey(privKey []byte) (pbft.PubKey, error) {
	priv := b.suite.G2().Scalar()
	if err := priv.UnmarshalBinary(privKey); err != nil {
		return nil, xerrors.Errorf("unmarshalling private key: %w", err)
	}
	pubKeyB, err := b.suite.G2().Point().Mul(priv, nil).MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("marshalling public key: %w", err)
	}
	b.register(pubKeyB, priv)
	return pubKeyB, nil
}

func (b *BLSBackend) register(pubKey pbft.PubKey, priv kyber.Scalar) {
	b.signersMutex.Lock()
	defer b.signersMutex.Unlock()
	b.signersByPubKey[string(pubKey)] = priv
}

func (b *BLSBackend) Sign(_ context.Context, sender pbft.PubKey, msg []byte) ([]byte, error) {
	b.signersMutex.RLock()
	priv, known := b.signersByPubKey[string(sender)]
	b.signersMutex.RUnlock()

	if !known {
		return nil, errors.New("cannot sign: unknown sender")
	}
	return b.scheme.Sign(priv, msg)
}

func (b *BLSBackend) Verify(pubKey pbft.PubKey, msg, sig []byte) error {
	pubKeyPoint, err := b.pubKeyPoint(pubKey)
	if err != nil {
		return err
	}
	return b.scheme.Verify(pubKeyPoint, msg, sig)
}

func (b *BLSBackend) Address(pubKey pbft.PubKey) (pbft.Address, error) {
	if _, err := b.pubKeyPoint(pubKey); err != nil {
		return pbft.Address{}, err
	}
	return addressFromDigest(pubKey), nil
}

func (b *BLSBackend) pubKeyPoint(pubKey pbft.PubKey) (kyber.Point, error) {
	keyGroup := b.suite.G2()
	point := keyGroup.Point()
	if err := point.UnmarshalBinary(pubKey); err != nil {
		return nil, xerrors.Errorf("unmarshalling public key: %w", err)
	}
	if point.Equal(keyGroup.Point().Null()) {
		return nil, xerrors.Errorf("the public key is a null point")
	}
	return point, nil
}
