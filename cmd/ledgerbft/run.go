package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	leveldb "github.com/ipfs/go-ds-leveldb"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ledgerbft/go-ledgerbft"
	"github.com/ledgerbft/go-ledgerbft/config"
	"github.com/ledgerbft/go-ledgerbft/internal/encoding"
	"github.com/ledgerbft/go-ledgerbft/ledger"
	"github.com/ledgerbft/go-ledgerbft/pbft"
	"github.com/ledgerbft/go-ledgerbft/pubsubnet"
	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/ledgerbft/go-ledgerbft/zmqnet"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const DiscoveryTag = "ledgerbft-standalone"

var runCmd = cli.Command{
	Name:  "run",
	Usage: "starts a replica; values read from stdin, one per line, are submitted to the ledger",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "key",
			Usage: "path to the validator key file",
			Value: "key.json",
		},
		&cli.StringFlag{
			Name:  "repo",
			Usage: "directory holding the datastore and write-ahead log; a temporary one if empty",
		},
		&cli.StringSliceFlag{
			Name:  "listen",
			Usage: "libp2p listen multiaddrs",
			Value: cli.NewStringSlice("/ip4/0.0.0.0/udp/0/quic-v1"),
		},
		&cli.BoolFlag{
			Name:  "mdns",
			Usage: "discover local libp2p peers with mDNS",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
		},
	},
	Action: func(c *cli.Context) error {
		ctx := c.Context
		if err := logging.SetLogLevelRegex("ledgerbft.*", c.String("log-level")); err != nil {
			return xerrors.Errorf("setting log level: %w", err)
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		kf, err := loadKeyFile(c.String("key"))
		if err != nil {
			return err
		}
		if kf.Scheme != cfg.SigningScheme {
			return xerrors.Errorf("key scheme %q does not match network scheme %q", kf.Scheme, cfg.SigningScheme)
		}
		backend, err := signing.New(cfg.SigningScheme)
		if err != nil {
			return err
		}
		self, err := kf.importInto(backend)
		if err != nil {
			return err
		}
		validators, err := cfg.PbftValidators(backend)
		if err != nil {
			return err
		}

		repo := c.String("repo")
		if repo == "" {
			if repo, err = os.MkdirTemp("", "ledgerbft-*"); err != nil {
				return xerrors.Errorf("creating temp dir: %w", err)
			}
		}
		ds, err := leveldb.NewDatastore(filepath.Join(repo, "datastore"), nil)
		if err != nil {
			return xerrors.Errorf("creating a datastore: %w", err)
		}
		defer func() { _ = ds.Close() }()

		transport, closer, err := newTransport(ctx, c, cfg, kf, self, validators)
		if err != nil {
			return err
		}
		defer closer()

		app, err := ledger.New(ctx, ds, cfg.DatastorePrefix().String())
		if err != nil {
			return xerrors.Errorf("opening ledger: %w", err)
		}
		node, err := ledgerbft.New(ctx, self, validators, transport, backend, app, ds,
			ledgerbft.WithPbftOptions(cfg.PbftOptions()...),
			ledgerbft.WithDatastorePrefix(cfg.DatastorePrefix().String()),
			ledgerbft.WithWriteAheadLog(filepath.Join(repo, "wal")),
		)
		if err != nil {
			return xerrors.Errorf("creating node: %w", err)
		}
		if err := node.Start(ctx); err != nil {
			return xerrors.Errorf("starting node: %w", err)
		}
		log.Infow("replica running", "self", self, "repo", repo, "height", app.LastExecuted())

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error { return submitLines(ctx, app) })
		eg.Go(func() error { return printCommits(ctx, node) })
		err = eg.Wait()
		return multierr.Append(err, node.Close(context.Background()))
	},
}

func newTransport(ctx context.Context, c *cli.Context, cfg *config.Config, kf *keyFile, self pbft.Address,
	validators []pbft.Validator) (ledgerbft.Transport, func(), error) {
	switch cfg.Transport {
	case config.TransportZMQ:
		opts := []zmqnet.Option{
			zmqnet.WithSelf(self),
			zmqnet.WithNetworkName(cfg.NetworkName),
			zmqnet.WithCompression(cfg.Compression),
		}
		for i, v := range cfg.Validators {
			if validators[i].Address == self {
				opts = append(opts, zmqnet.WithListenAddress(v.ZMQEndpoint))
				continue
			}
			opts = append(opts, zmqnet.WithPeer(validators[i].Address, v.ZMQEndpoint))
		}
		network, err := zmqnet.New(opts...)
		if err != nil {
			return nil, nil, xerrors.Errorf("creating zmq transport: %w", err)
		}
		return network, func() {}, nil
	default:
		identity, err := kf.libp2pIdentity()
		if err != nil {
			return nil, nil, xerrors.Errorf("decoding libp2p identity: %w", err)
		}
		cm, err := connmgr.NewConnManager(32, 128, connmgr.WithGracePeriod(time.Minute))
		if err != nil {
			return nil, nil, xerrors.Errorf("creating connection manager: %w", err)
		}
		h, err := libp2p.New(
			libp2p.Identity(identity),
			libp2p.ListenAddrStrings(c.StringSlice("listen")...),
			libp2p.ConnectionManager(cm),
		)
		if err != nil {
			return nil, nil, xerrors.Errorf("creating libp2p host: %w", err)
		}
		ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithMaxMessageSize(encoding.DefaultMaxSize))
		if err != nil {
			return nil, nil, xerrors.Errorf("creating gossipsub: %w", err)
		}
		closer := func() { _ = h.Close() }
		if c.Bool("mdns") {
			stopDiscovery, err := setupDiscovery(h)
			if err != nil {
				closer()
				return nil, nil, xerrors.Errorf("setting up discovery: %w", err)
			}
			closer = func() {
				stopDiscovery()
				_ = h.Close()
			}
		}
		opts := []pubsubnet.Option{
			pubsubnet.WithHost(h),
			pubsubnet.WithPubSub(ps),
			pubsubnet.WithNetworkName(cfg.NetworkName),
			pubsubnet.WithCompression(cfg.Compression),
		}
		for i, v := range cfg.Validators {
			if v.PeerID == "" || validators[i].Address == self {
				continue
			}
			id, err := peer.Decode(v.PeerID)
			if err != nil {
				closer()
				return nil, nil, xerrors.Errorf("validator %d: decoding peer ID: %w", i, err)
			}
			opts = append(opts, pubsubnet.WithPeer(validators[i].Address, id))
			h.ConnManager().Protect(id, "validator")
			connectPeer(ctx, h, id, v.Multiaddrs)
		}
		network, err := pubsubnet.New(opts...)
		if err != nil {
			closer()
			return nil, nil, xerrors.Errorf("creating libp2p transport: %w", err)
		}
		return network, closer, nil
	}
}

// connectPeer dials a configured validator in the background.
func connectPeer(ctx context.Context, h host.Host, id peer.ID, addrs []string) {
	info := peer.AddrInfo{ID: id}
	for _, s := range addrs {
		addr, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			log.Warnw("skipping invalid multiaddr", "peer", id, "addr", s, "err", err)
			continue
		}
		info.Addrs = append(info.Addrs, addr)
	}
	if len(info.Addrs) == 0 {
		return
	}
	go func() {
		if err := h.Connect(ctx, info); err != nil {
			log.Infow("error connecting to validator", "peer", id, "err", err)
		}
	}()
}

func submitLines(ctx context.Context, app *ledger.Ledger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Keep running after stdin is closed.
				<-ctx.Done()
				return nil
			}
			if line == "" {
				continue
			}
			if err := app.Submit([]byte(line)); err != nil {
				log.Warnw("value not submitted", "err", err)
			}
		}
	}
}

func printCommits(ctx context.Context, node *ledgerbft.Node) error {
	commits := make(chan *pbft.CommitCertificate, 64)
	_, closer := node.SubscribeForCommits(commits)
	defer closer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cert, ok := <-commits:
			if !ok {
				// Dropped for falling behind; subscribe again.
				return printCommits(ctx, node)
			}
			fmt.Printf("%d\t%s\t%q\n", cert.Sequence, cert.ValueDigest, cert.Value)
		}
	}
}

type discoveryNotifee struct {
	h host.Host
}

func (n *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	log.Infof("discovered new peer %s", pi.ID)
	if err := n.h.Connect(context.Background(), pi); err != nil {
		log.Infof("error connecting to peer %s: %s", pi.ID, err)
	}
}

func setupDiscovery(h host.Host) (closer func(), err error) {
	// setup mDNS discovery to find local peers
	s := mdns.NewMdnsService(h, DiscoveryTag, &discoveryNotifee{h: h})
	return func() { _ = s.Close() }, s.Start()
}
