package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ledgerbft/go-ledgerbft/config"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// keyFile holds the secrets of one validator.
type keyFile struct {
	Scheme     string
	PrivateKey string
	PublicKey  string
	Address    string
	// Marshalled libp2p identity.
	Libp2pKey []byte
	PeerID    string
}

func loadKeyFile(path string) (*keyFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("decoding key file: %w", err)
	}
	return &kf, nil
}

func (kf *keyFile) save(path string) error {
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}

// importInto registers the signing key with backend and returns the
// validator's address.
func (kf *keyFile) importInto(backend signing.Backend) (pbft.Address, error) {
	priv, err := hex.DecodeString(kf.PrivateKey)
	if err != nil {
		return pbft.Address{}, fmt.Errorf("decoding private key: %w", err)
	}
	pubKey, err := backend.ImportKey(priv)
	if err != nil {
		return pbft.Address{}, fmt.Errorf("importing private key: %w", err)
	}
	return backend.Address(pubKey)
}

func (kf *keyFile) libp2pIdentity() (crypto.PrivKey, error) {
	return crypto.UnmarshalPrivateKey(kf.Libp2pKey)
}

// validator returns the configuration entry other validators need.
func (kf *keyFile) validator() config.Validator {
	return config.Validator{
		PubKey:  kf.PublicKey,
		Address: kf.Address,
		PeerID:  kf.PeerID,
	}
}

func newKeyFile(scheme string, backend signing.Backend, libp2pKey crypto.PrivKey) (*keyFile, error) {
	pubKey, priv := backend.GenerateKey()
	addr, err := backend.Address(pubKey)
	if err != nil {
		return nil, err
	}
	id, err := peer.IDFromPrivateKey(libp2pKey)
	if err != nil {
		return nil, err
	}
	marshalled, err := crypto.MarshalPrivateKey(libp2pKey)
	if err != nil {
		return nil, err
	}
	return &keyFile{
		Scheme:     scheme,
		PrivateKey: hex.EncodeToString(priv),
		PublicKey:  hex.EncodeToString(pubKey),
		Address:    hex.EncodeToString(addr[:]),
		Libp2pKey:  marshalled,
		PeerID:     id.String(),
	}, nil
}
