// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// opendoor presses the "Abrir" button of the lab door ESPHome node.
//
// Without arguments, it connects to the lab door with the built-in settings,
// presses the button and exits.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"periph.io/x/opendoor/client"
	"periph.io/x/opendoor/config"
	"periph.io/x/opendoor/door"
)

// flags are the command line overrides of the configuration.
type flags struct {
	configFile string
	host       string
	port       int
	name       string
	key        string
	password   string
	entity     string
	settle     time.Duration
	verbose    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "opendoor",
		Short:         "Open the lab door",
		Long:          "Connects to the door ESPHome node, presses the \"Abrir\" button and disconnects.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			dev, err := dial(cmd.Context(), cfg, f.verbose)
			if err != nil {
				return err
			}
			_, err = door.Open(cmd.Context(), dev, doorOptions(cfg, out))
			return err
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.configFile, "config", "c", "", "YAML configuration file")
	pf.StringVar(&f.host, "host", "", "node address; empty to look it up by name over zeroconf")
	pf.IntVar(&f.port, "port", 0, "node native API port")
	pf.StringVar(&f.name, "name", "", "node name")
	pf.StringVar(&f.key, "key", "", "base64 encoded encryption key; empty for plaintext")
	pf.StringVar(&f.password, "password", "", "legacy API password")
	pf.StringVar(&f.entity, "entity", "", "name of the button to press")
	pf.DurationVar(&f.settle, "settle", 0, "delay after the press before disconnecting")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log the exchanged messages")
	root.AddCommand(newListCmd(f, out), newInfoCmd(f, out), newServeCmd(f, out))
	return root
}

// load returns the configuration with the flags set on the command line
// applied last.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	if f.verbose {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Host = f.host
	}
	if changed("port") {
		cfg.Port = f.port
	}
	if changed("name") {
		cfg.Name = f.name
	}
	if changed("key") {
		cfg.Key = f.key
	}
	if changed("password") {
		cfg.Password = f.password
	}
	if changed("entity") {
		cfg.Entity = f.entity
	}
	if changed("settle") {
		cfg.Settle = f.settle
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// dial connects to the configured node, looking it up first if no host is
// set.
func dial(ctx context.Context, cfg *config.Config, verbose bool) (*client.Client, error) {
	addr := cfg.Addr()
	if addr == "" {
		ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
		found, err := client.Resolve(ctx2, cfg.Name)
		cancel()
		if err != nil {
			return nil, err
		}
		addr = found.Addr()
	}
	opts := []client.Option{
		client.WithPassword(cfg.Password),
		client.WithEncryptionKey(cfg.Key),
		client.WithExpectedName(cfg.Name),
	}
	if verbose {
		opts = append(opts, client.WithLogger(log.Default()))
	}
	return client.Dial(ctx, addr, opts...)
}

func doorOptions(cfg *config.Config, out io.Writer) door.Options {
	settle := cfg.Settle
	if settle == 0 {
		settle = -1
	}
	return door.Options{Target: cfg.Entity, Settle: settle, Out: out}
}

func mainImpl() error {
	// A missing .env file is fine.
	_ = godotenv.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return newRootCmd(os.Stdout).ExecuteContext(ctx)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "opendoor: %s\n", err)
		os.Exit(1)
	}
}
