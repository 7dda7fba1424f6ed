package signing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ledgerbft/go-ledgerbft/pbft"
	"golang.org/x/xerrors"
)

var _ Backend = (*FakeBackend)(nil)

const (
	fakePubKeyPrefix  = "pubkey::"
	fakePrivKeyPrefix = "privkey:"
)

// FakeBackend produces deterministic, insecure signatures for tests and
// simulations.
type FakeBackend struct {
	Blake2bDigester

	// mu guards both i and allowed.
	mu      sync.RWMutex
	i       int
	allowed map[string]struct{}
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{allowed: make(map[string]struct{})}
}

func (s *FakeBackend) GenerateKey() (pbft.PubKey, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pubKey := pbft.PubKey(fmt.Sprintf(fakePubKeyPrefix+"%08x", s.i))
	privKey := []byte(fmt.Sprintf(fakePrivKeyPrefix+"%08x", s.i))
	s.allowed[string(pubKey)] = struct{}{}
	s.i++
	return pubKey, privKey
}

func (s *FakeBackend) ImportKey(privKey []byte) (pbft.PubKey, error) {
	suffix, found := strings.CutPrefix(string(privKey), fakePrivKeyPrefix)
	if !found {
		return nil, errors.New("not a fake private key")
	}
	pubKey := pbft.PubKey(fakePubKeyPrefix + suffix)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[string(pubKey)] = struct{}{}
	return pubKey, nil
}

// Allow registers the i-th generated key for signing without advancing the
// generator.
func (s *FakeBackend) Allow(i int) pbft.PubKey {
	pubKey := pbft.PubKey(fmt.Sprintf(fakePubKeyPrefix+"%08x", i))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[string(pubKey)] = struct{}{}
	return pubKey
}

func (s *FakeBackend) Sign(_ context.Context, signer pbft.PubKey, msg []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.allowed[string(signer)]; !ok {
		return nil, xerrors.Errorf("cannot sign: unknown sender")
	}
	return s.generateSignature(signer, msg)
}

func (s *FakeBackend) generateSignature(signer pbft.PubKey, msg []byte) ([]byte, error) {
	suffix, found := strings.CutPrefix(string(signer), fakePubKeyPrefix)
	if !found {
		return nil, xerrors.Errorf("not a fake public key: %x", []byte(signer))
	}
	hasher := sha256.New()
	hasher.Write(signer)
	hasher.Write([]byte(fakePrivKeyPrefix + suffix))
	hasher.Write(msg)
	return hasher.Sum(nil), nil
}

func (s *FakeBackend) Verify(signer pbft.PubKey, msg, sig []byte) error {
	switch wantSig, err := s.generateSignature(signer, msg); {
	case err != nil:
		return fmt.Errorf("cannot verify: %w", err)
	case !bytes.Equal(wantSig, sig):
		return errors.New("signature is not valid")
	default:
		return nil
	}
}

func (s *FakeBackend) Address(pubKey pbft.PubKey) (pbft.Address, error) {
	if !strings.HasPrefix(string(pubKey), fakePubKeyPrefix) {
		return pbft.Address{}, xerrors.Errorf("not a fake public key: %x", []byte(pubKey))
	}
	return addressFromDigest(pubKey), nil
}
