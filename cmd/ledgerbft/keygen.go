package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ledgerbft/go-ledgerbft/signing"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/urfave/cli/v2"
)

var keygenCmd = cli.Command{
	Name:  "keygen",
	Usage: "generates a validator key file and prints its configuration entry",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "scheme",
			Usage: "signature scheme: bls, secp256k1 or fake",
			Value: signing.SchemeBLS,
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "path to write the key file to",
			Value: "key.json",
		},
	},
	Action: func(c *cli.Context) error {
		scheme := c.String("scheme")
		backend, err := signing.New(scheme)
		if err != nil {
			return err
		}
		libp2pKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return fmt.Errorf("generating libp2p identity: %w", err)
		}
		kf, err := newKeyFile(scheme, backend, libp2pKey)
		if err != nil {
			return fmt.Errorf("generating key: %w", err)
		}
		if err := kf.save(c.String("out")); err != nil {
			return fmt.Errorf("writing key file: %w", err)
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(kf.validator())
	},
}
