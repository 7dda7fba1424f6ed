// Package config holds the static configuration of a ledgerbft network: its
// validator set, transport and consensus timing.
package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/xerrors"
)

const (
	TransportLibp2p = "libp2p"
	TransportZMQ    = "zmq"
)

type Version string

// Validator identifies one member of the validator set and how to reach it.
type Validator struct {
	// Hex encoded public key.
	PubKey string
	// Hex encoded address. Derived from PubKey by the signing scheme if empty.
	Address string `json:",omitempty"`
	// libp2p peer ID, used by the libp2p transport for direct messages.
	PeerID string `json:",omitempty"`
	// Multiaddrs the peer listens on.
	Multiaddrs []string `json:",omitempty"`
	// ZeroMQ ROUTER endpoint, used by the zmq transport.
	ZMQEndpoint string `json:",omitempty"`
}

type PbftConfig struct {
	ConsensusCheckInterval   time.Duration
	PublishInterval          time.Duration
	LedgerCloseTimeout       time.Duration
	LedgerCloseCheckInterval time.Duration
	ViewChangeTimeout        time.Duration
	NewViewResponseTimeout   time.Duration
	NewViewResendInterval    time.Duration
	CommitResendInterval     time.Duration
	PrePrepareResendInterval time.Duration
	MaxInstancesInFlight     int
	MaxPendingMessages       int
}

// Config identifies the configuration shared by every validator of a network.
type Config struct {
	// Network name, used for signature domain separation and topic names.
	NetworkName pbft.NetworkName
	// Signature scheme of the validator keys. See signing.New.
	SigningScheme string
	// Transport is either "libp2p" or "zmq".
	Transport string
	// Compress messages on the wire with zstd.
	Compression bool
	Validators  []Validator
	// Consensus timing. Zero values keep the defaults.
	*PbftConfig
}

// Version uniquely identifies the configuration.
func (c Config) Version() (Version, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", xerrors.Errorf("computing config version: %w", err)
	}
	sum := blake2b.Sum256(b)
	mh, err := multihash.Encode(sum[:], multihash.BLAKE2B_MIN+31)
	if err != nil {
		return "", xerrors.Errorf("encoding config version: %w", err)
	}
	return Version(cid.NewCidV1(cid.Raw, mh).String()), nil
}

func (c Config) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, xerrors.Errorf("marshaling JSON: %w", err)
	}
	return b, nil
}

func (c *Config) Unmarshal(r io.Reader) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return xerrors.Errorf("decoding JSON: %w", err)
	}
	return nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var c Config
	if err := c.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return &c, nil
}

func (c Config) Validate() error {
	if c.NetworkName == "" {
		return errors.New("network name must be set")
	}
	backend, err := signing.New(c.SigningScheme)
	if err != nil {
		return err
	}
	switch c.Transport {
	case TransportLibp2p, TransportZMQ:
	default:
		return fmt.Errorf("unknown transport: %q", c.Transport)
	}
	if len(c.Validators) == 0 {
		return errors.New("at least one validator must be configured")
	}
	for i, v := range c.Validators {
		if c.Transport == TransportZMQ && v.ZMQEndpoint == "" && len(c.Validators) > 1 {
			return fmt.Errorf("validator %d: zmq endpoint must be set", i)
		}
	}
	validators, err := c.PbftValidators(backend)
	if err != nil {
		return err
	}
	_, err = pbft.NewValidatorDirectory(validators)
	return err
}

func (c Config) DatastorePrefix() datastore.Key {
	return datastore.NewKey("/ledgerbft/" + string(c.NetworkName))
}

func (c Config) PubSubTopic() string {
	return "/ledgerbft/consensus/" + string(c.NetworkName)
}

// PbftValidators resolves the validator set, deriving missing addresses with
// the signing backend.
func (c Config) PbftValidators(backend signing.Backend) ([]pbft.Validator, error) {
	validators := make([]pbft.Validator, 0, len(c.Validators))
	for i, v := range c.Validators {
		pubKey, err := hex.DecodeString(strings.TrimPrefix(v.PubKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("validator %d: decoding public key: %w", i, err)
		}
		addr, err := v.address(backend, pubKey)
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		validators = append(validators, pbft.Validator{Address: addr, PubKey: pubKey})
	}
	return validators, nil
}

func (v Validator) address(backend signing.Backend, pubKey pbft.PubKey) (pbft.Address, error) {
	if v.Address == "" {
		return backend.Address(pubKey)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(v.Address, "0x"))
	if err != nil {
		return pbft.Address{}, fmt.Errorf("decoding address: %w", err)
	}
	if len(b) != len(pbft.Address{}) {
		return pbft.Address{}, fmt.Errorf("address must be %d bytes, got %d", len(pbft.Address{}), len(b))
	}
	return pbft.AddressFromBytes(b), nil
}

func (c Config) PbftOptions() []pbft.Option {
	if c.PbftConfig == nil {
		return nil
	}
	var opts []pbft.Option
	if c.ConsensusCheckInterval != 0 {
		opts = append(opts, pbft.WithConsensusCheckInterval(c.ConsensusCheckInterval))
	}
	if c.PublishInterval != 0 {
		opts = append(opts, pbft.WithPublishInterval(c.PublishInterval))
	}
	if c.LedgerCloseTimeout != 0 && c.LedgerCloseCheckInterval != 0 {
		opts = append(opts, pbft.WithLedgerCloseTimeout(c.LedgerCloseTimeout, c.LedgerCloseCheckInterval))
	}
	if c.ViewChangeTimeout != 0 {
		opts = append(opts, pbft.WithViewChangeTimeout(c.ViewChangeTimeout))
	}
	if c.NewViewResponseTimeout != 0 {
		opts = append(opts, pbft.WithNewViewResponseTimeout(c.NewViewResponseTimeout))
	}
	if c.NewViewResendInterval != 0 {
		opts = append(opts, pbft.WithNewViewResendInterval(c.NewViewResendInterval))
	}
	if c.CommitResendInterval != 0 {
		opts = append(opts, pbft.WithCommitResendInterval(c.CommitResendInterval))
	}
	if c.PrePrepareResendInterval != 0 {
		opts = append(opts, pbft.WithPrePrepareResendInterval(c.PrePrepareResendInterval))
	}
	if c.MaxInstancesInFlight != 0 {
		opts = append(opts, pbft.WithMaxInstancesInFlight(c.MaxInstancesInFlight))
	}
	if c.MaxPendingMessages != 0 {
		opts = append(opts, pbft.WithMaxPendingMessages(c.MaxPendingMessages))
	}
	return opts
}
