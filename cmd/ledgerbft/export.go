package main

import (
	"bufio"
	"os"
	"path/filepath"

	leveldb "github.com/ipfs/go-ds-leveldb"
	"github.com/ledgerbft/go-ledgerbft/ledger"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"
)

var exportCmd = cli.Command{
	Name:  "export",
	Usage: "writes executed commit certificates as an Arrow IPC stream",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "repo",
			Usage:    "replica directory, as given to run",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:  "from",
			Value: 1,
		},
		&cli.Uint64Flag{
			Name:  "to",
			Usage: "last sequence to export, the latest one if zero",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Value: 1024,
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "output file, stdout if empty",
		},
	},
	Action: func(c *cli.Context) (_err error) {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ds, err := leveldb.NewDatastore(filepath.Join(c.String("repo"), "datastore"), nil)
		if err != nil {
			return xerrors.Errorf("opening datastore: %w", err)
		}
		defer func() { _err = multierr.Append(_err, ds.Close()) }()

		store, err := ledger.NewStore(c.Context, ds, cfg.DatastorePrefix().String())
		if err != nil {
			return err
		}
		to := c.Uint64("to")
		if to == 0 {
			to = store.Height()
		}
		if to == 0 {
			return xerrors.New("nothing executed yet")
		}

		out := os.Stdout
		if path := c.String("out"); path != "" {
			if out, err = os.Create(path); err != nil {
				return xerrors.Errorf("creating output: %w", err)
			}
			defer func() { _err = multierr.Append(_err, out.Close()) }()
		}
		w := bufio.NewWriter(out)
		if err := store.Export(c.Context, w, c.Uint64("from"), to, c.Int("batch-size")); err != nil {
			return err
		}
		return w.Flush()
	},
}
