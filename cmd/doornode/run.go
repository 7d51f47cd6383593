// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"log"

	"periph.io/x/opendoor/node"
	"periph.io/x/opendoor/node/config"
)

func run(ctx context.Context, cfg *config.Root) error {
	n, err := node.New(ctx, cfg)
	if err != nil {
		return err
	}
	log.Printf("node listening on %s with %d button(s)", n.Addr(), len(cfg.Buttons))
	<-ctx.Done()
	log.Printf("closing node, %d press(es) served", len(n.Presses()))
	return n.Close()
}
