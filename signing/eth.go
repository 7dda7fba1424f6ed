package signing

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"golang.org/x/xerrors"
)

var _ Backend = (*EthBackend)(nil)

// EthBackend signs the Keccak-256 hash of messages with secp256k1 keys.
// Public keys are 33-byte compressed points, addresses follow Ethereum.
type EthBackend struct {
	// mu guards keys.
	mu   sync.RWMutex
	keys map[string]*ecdsa.PrivateKey
}

func NewEthBackend() *EthBackend {
	return &EthBackend{keys: make(map[string]*ecdsa.PrivateKey)}
}

func (e *EthBackend) GenerateKey() (pbft.PubKey, []byte) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return e.register(priv), crypto.FromECDSA(priv)
}

func (e *EthBackend) ImportKey(privKey []byte) (pbft.PubKey, error) {
	priv, err := crypto.ToECDSA(privKey)
	if err != nil {
		return nil, xerrors.Errorf("unmarshalling private key: %w", err)
	}
	return e.register(priv), nil
}

func (e *EthBackend) register(priv *ecdsa.PrivateKey) pbft.PubKey {
	pubKey := crypto.CompressPubkey(&priv.PublicKey)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys[string(pubKey)] = priv
	return pubKey
}

func (e *EthBackend) Sign(_ context.Context, sender pbft.PubKey, msg []byte) ([]byte, error) {
	e.mu.RLock()
	priv, known := e.keys[string(sender)]
	e.mu.RUnlock()
	if !known {
		return nil, errors.New("cannot sign: unknown sender")
	}
	return crypto.Sign(crypto.Keccak256(msg), priv)
}

func (e *EthBackend) Verify(pubKey pbft.PubKey, msg, sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return xerrors.Errorf("invalid signature length: %d", len(sig))
	}
	// The recovery id is not needed against a known key.
	if !crypto.VerifySignature(pubKey, crypto.Keccak256(msg), sig[:crypto.RecoveryIDOffset]) {
		return errors.New("signature is not valid")
	}
	return nil
}

func (e *EthBackend) Digest(value []byte) pbft.Digest {
	return pbft.Digest(crypto.Keccak256Hash(value))
}

func (e *EthBackend) Address(pubKey pbft.PubKey) (pbft.Address, error) {
	pub, err := crypto.DecompressPubkey(pubKey)
	if err != nil {
		return pbft.Address{}, xerrors.Errorf("decompressing public key: %w", err)
	}
	var addr common.Address = crypto.PubkeyToAddress(*pub)
	return pbft.Address(addr), nil
}
