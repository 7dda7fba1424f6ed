package signing_test

import (
	"context"
	"testing"

	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SigningTestSuite struct {
	suite.Suite
	newSubject func() signing.Backend
	subject    signing.Backend
}

func NewSigningTestSuite(newSubject func() signing.Backend) *SigningTestSuite {
	return &SigningTestSuite{newSubject: newSubject}
}

func TestFake(t *testing.T) {
	t.Parallel()
	suite.Run(t, NewSigningTestSuite(func() signing.Backend { return signing.NewFakeBackend() }))
}

func TestBLS(t *testing.T) {
	t.Parallel()
	suite.Run(t, NewSigningTestSuite(func() signing.Backend { return signing.NewBLSBackend() }))
}

func TestSecp256k1(t *testing.T) {
	t.Parallel()
	suite.Run(t, NewSigningTestSuite(func() signing.Backend { return signing.NewEthBackend() }))
}

func (s *SigningTestSuite) SetupTest() {
	s.subject = s.newSubject()
}

func (s *SigningTestSuite) TestSignAndVerify() {
	ctx := context.Background()
	t := s.T()
	pubKey, _ := s.subject.GenerateKey()
	msg := []byte("test message")
	sig, err := s.subject.Sign(ctx, pubKey, msg)
	require.NoError(t, err)
	require.LessOrEqual(t, len(sig), 96)

	err = s.subject.Verify(pubKey, msg, sig)
	require.NoError(t, err)

	err = s.subject.Verify(pubKey, []byte("other message"), sig)
	require.Error(t, err)

	pubKey2, _ := s.subject.GenerateKey()
	err = s.subject.Verify(pubKey2, msg, sig)
	require.Error(t, err)

	err = s.subject.Verify(pubKey, msg, nil)
	require.Error(t, err)

	err = s.subject.Verify(pubKey, msg, []byte("short sig"))
	require.Error(t, err)

	sig2, err := s.subject.Sign(ctx, pubKey2, msg)
	require.NoError(t, err)

	err = s.subject.Verify(pubKey, msg, sig2)
	require.Error(t, err)
}

func (s *SigningTestSuite) TestSignWithUnknownKey() {
	pubKey, _ := s.newSubject().GenerateKey()
	_, err := s.subject.Sign(context.Background(), pubKey, []byte("test message"))
	require.Error(s.T(), err)
}

func (s *SigningTestSuite) TestImportKey() {
	ctx := context.Background()
	t := s.T()
	pubKey, privKey := s.subject.GenerateKey()

	other := s.newSubject()
	imported, err := other.ImportKey(privKey)
	require.NoError(t, err)
	require.Equal(t, pubKey, imported)

	msg := []byte("test message")
	sig, err := other.Sign(ctx, imported, msg)
	require.NoError(t, err)
	require.NoError(t, s.subject.Verify(pubKey, msg, sig))

	_, err = other.ImportKey([]byte("garbage"))
	require.Error(t, err)
}

func (s *SigningTestSuite) TestAddress() {
	t := s.T()
	pubKey1, _ := s.subject.GenerateKey()
	pubKey2, _ := s.subject.GenerateKey()

	addr1, err := s.subject.Address(pubKey1)
	require.NoError(t, err)
	again, err := s.subject.Address(pubKey1)
	require.NoError(t, err)
	require.Equal(t, addr1, again)

	addr2, err := s.subject.Address(pubKey2)
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr2)

	_, err = s.subject.Address([]byte("not a key"))
	require.Error(t, err)
}

func (s *SigningTestSuite) TestDigest() {
	t := s.T()
	one := s.subject.Digest([]byte("block 1"))
	require.Equal(t, one, s.subject.Digest([]byte("block 1")))
	require.NotEqual(t, one, s.subject.Digest([]byte("block 2")))
}

func TestNew(t *testing.T) {
	for _, scheme := range []string{signing.SchemeBLS, signing.SchemeSecp256k1, signing.SchemeFake} {
		backend, err := signing.New(scheme)
		require.NoError(t, err, scheme)
		require.NotNil(t, backend)
	}
	_, err := signing.New("rsa")
	require.ErrorContains(t, err, "unknown signing scheme")
}
