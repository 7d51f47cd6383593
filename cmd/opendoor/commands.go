// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/maruel/natural"
	"github.com/spf13/cobra"
	"periph.io/x/opendoor/door"
	"periph.io/x/opendoor/server"
)

func newListCmd(f *flags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the entities and services of the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			c, err := dial(cmd.Context(), cfg, f.verbose)
			if err != nil {
				return err
			}
			defer c.Close()
			if err = c.Connect(cmd.Context(), true); err != nil {
				return err
			}
			entities, services, err := c.ListEntitiesServices(cmd.Context())
			if err != nil {
				return err
			}
			sort.SliceStable(entities, func(i, j int) bool {
				return natural.Less(entities[i].Name, entities[j].Name)
			})
			fmt.Fprintf(out, "%d entities:\n", len(entities))
			for i := range entities {
				fmt.Fprintf(out, "- %s\n", &entities[i])
			}
			if len(services) != 0 {
				fmt.Fprintf(out, "%d services:\n", len(services))
				for i := range services {
					fmt.Fprintf(out, "- %s\n", &services[i])
				}
			}
			return c.Close()
		},
	}
}

func newInfoCmd(f *flags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the node description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			c, err := dial(cmd.Context(), cfg, f.verbose)
			if err != nil {
				return err
			}
			defer c.Close()
			if err = c.Connect(cmd.Context(), false); err != nil {
				return err
			}
			info, err := c.DeviceInfo(cmd.Context())
			if err != nil {
				return err
			}
			h := c.Hello()
			fmt.Fprintf(out, "Name:         %s\n", info.Name)
			fmt.Fprintf(out, "Server:       %s (API %d.%d)\n", h.ServerInfo, h.APIVersionMajor, h.APIVersionMinor)
			fmt.Fprintf(out, "MAC:          %s\n", info.MacAddress)
			fmt.Fprintf(out, "Version:      %s\n", info.EsphomeVersion)
			fmt.Fprintf(out, "Model:        %s\n", info.Model)
			fmt.Fprintf(out, "Compiled:     %s\n", info.CompilationTime)
			fmt.Fprintf(out, "Password:     %t\n", info.UsesPassword)
			return c.Close()
		},
	}
}

func newServeCmd(f *flags, out io.Writer) *cobra.Command {
	listen := ""
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API opening the door",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Serve.Listen = listen
			}
			open := func(ctx context.Context) (door.Result, error) {
				dev, err := dial(ctx, cfg, f.verbose)
				if err != nil {
					return door.Result{}, err
				}
				return door.Open(ctx, dev, doorOptions(cfg, out))
			}
			return server.New(open, cfg.Serve.Token).ListenAndServe(cmd.Context(), cfg.Serve.Listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default from config, \":8080\")")
	return cmd
}
