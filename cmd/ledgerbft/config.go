package main

import (
	"fmt"

	"github.com/ledgerbft/go-ledgerbft/config"
	"github.com/urfave/cli/v2"
)

var configCmd = cli.Command{
	Name: "config",
	Subcommands: []*cli.Command{
		&configValidateCmd,
	},
}

var configValidateCmd = cli.Command{
	Name:  "validate",
	Usage: "validates the configuration and prints its version",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		version, err := cfg.Version()
		if err != nil {
			return err
		}
		fmt.Printf("network %s with %d validators, version %s\n", cfg.NetworkName, len(cfg.Validators), version)
		return nil
	},
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
