package main

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func TestKeyFile_SaveLoadImport(t *testing.T) {
	for _, scheme := range []string{signing.SchemeBLS, signing.SchemeSecp256k1, signing.SchemeFake} {
		t.Run(scheme, func(t *testing.T) {
			generator, err := signing.New(scheme)
			require.NoError(t, err)
			libp2pKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
			require.NoError(t, err)

			kf, err := newKeyFile(scheme, generator, libp2pKey)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), "key.json")
			require.NoError(t, kf.save(path))

			loaded, err := loadKeyFile(path)
			require.NoError(t, err)
			require.Equal(t, kf, loaded)

			backend, err := signing.New(scheme)
			require.NoError(t, err)
			addr, err := loaded.importInto(backend)
			require.NoError(t, err)
			require.Equal(t, kf.Address, hex.EncodeToString(addr[:]))

			identity, err := loaded.libp2pIdentity()
			require.NoError(t, err)
			id, err := peer.IDFromPrivateKey(identity)
			require.NoError(t, err)
			require.Equal(t, kf.PeerID, id.String())

			v := loaded.validator()
			require.Equal(t, kf.PublicKey, v.PubKey)
			require.Equal(t, kf.PeerID, v.PeerID)
		})
	}
}

func TestKeyFile_ImportRejectsGarbage(t *testing.T) {
	backend, err := signing.New(signing.SchemeFake)
	require.NoError(t, err)
	_, err = (&keyFile{PrivateKey: "zz"}).importInto(backend)
	require.ErrorContains(t, err, "decoding private key")
}
