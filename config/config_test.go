package config_test

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ledgerbft/go-ledgerbft/config"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/stretchr/testify/require"
)

var base = config.Config{
	NetworkName:   "test",
	SigningScheme: signing.SchemeFake,
	Transport:     config.TransportZMQ,
	Validators: []config.Validator{
		{PubKey: hex.EncodeToString([]byte("pubkey::00000000")), ZMQEndpoint: "tcp://127.0.0.1:7000"},
		{PubKey: hex.EncodeToString([]byte("pubkey::00000001")), ZMQEndpoint: "tcp://127.0.0.1:7001"},
		{
			PubKey:      hex.EncodeToString([]byte("pubkey::00000002")),
			Address:     "0x00000000000000000000000000000000000000ff",
			ZMQEndpoint: "tcp://127.0.0.1:7002",
		},
	},
	PbftConfig: &config.PbftConfig{
		PublishInterval:          time.Second,
		LedgerCloseTimeout:       10 * time.Second,
		LedgerCloseCheckInterval: time.Second,
		MaxInstancesInFlight:     2,
	},
}

func TestConfig_Validation(t *testing.T) {
	require.NoError(t, base.Validate())

	cpy := base
	cpy.NetworkName = ""
	require.ErrorContains(t, cpy.Validate(), "network name")

	cpy = base
	cpy.SigningScheme = "rsa"
	require.Error(t, cpy.Validate())

	cpy = base
	cpy.Transport = "carrier-pigeon"
	require.ErrorContains(t, cpy.Validate(), "unknown transport")

	cpy = base
	cpy.Validators = nil
	require.Error(t, cpy.Validate())

	cpy = base
	cpy.Validators = append([]config.Validator{}, base.Validators...)
	cpy.Validators[1].ZMQEndpoint = ""
	require.ErrorContains(t, cpy.Validate(), "zmq endpoint")

	cpy = base
	cpy.Validators = append([]config.Validator{}, base.Validators...)
	cpy.Validators[1] = cpy.Validators[0]
	require.ErrorContains(t, cpy.Validate(), "duplicate validator address")

	cpy = base
	cpy.Validators = append([]config.Validator{}, base.Validators...)
	cpy.Validators[0].PubKey = "not hex"
	require.Error(t, cpy.Validate())

	cpy = base
	cpy.Validators = append([]config.Validator{}, base.Validators...)
	cpy.Validators[2].Address = "0x01"
	require.ErrorContains(t, cpy.Validate(), "address must be 20 bytes")
}

func TestConfig_PbftValidators(t *testing.T) {
	backend := signing.NewFakeBackend()
	validators, err := base.PbftValidators(backend)
	require.NoError(t, err)
	require.Len(t, validators, 3)

	wantAddr, err := backend.Address(pbft.PubKey("pubkey::00000000"))
	require.NoError(t, err)
	require.Equal(t, wantAddr, validators[0].Address)
	require.Equal(t, pbft.PubKey("pubkey::00000000"), validators[0].PubKey)
	require.Equal(t, pbft.Address{19: 0xff}, validators[2].Address)
}

func TestConfig_PbftOptions(t *testing.T) {
	require.Len(t, base.PbftOptions(), 3)

	cpy := base
	cpy.PbftConfig = nil
	require.Empty(t, cpy.PbftOptions())
}

func TestConfig_RoundTrip(t *testing.T) {
	b, err := base.Marshal()
	require.NoError(t, err)

	var decoded config.Config
	require.NoError(t, decoded.Unmarshal(bytes.NewReader(b)))
	require.Equal(t, base, decoded)

	v1, err := base.Version()
	require.NoError(t, err)
	v2, err := decoded.Version()
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	decoded.NetworkName = "other"
	v3, err := decoded.Version()
	require.NoError(t, err)
	require.NotEqual(t, v1, v3)

	require.Error(t, decoded.Unmarshal(strings.NewReader(`{"Unknown": 1}`)))
}

func TestLoad(t *testing.T) {
	b, err := base.Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, base, *loaded)
	require.Equal(t, "/ledgerbft/test", loaded.DatastorePrefix().String())
	require.Equal(t, "/ledgerbft/consensus/test", loaded.PubSubTopic())

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
