// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"

	"periph.io/x/opendoor/node/config"
)

func (n *Node) loadButtonFake(ctx context.Context, cfg *config.Button) error {
	if cfg.Pin.Number != "" {
		return errors.New("fake doesn't support pin number")
	}
	return n.addEntity(ctx, &buttonFake{
		buttonBase: buttonBase{
			componentBase: componentBase{
				name:          cfg.Name,
				componentType: buttonComponent,
			},
			icon:        cfg.Icon,
			deviceClass: cfg.DeviceClass,
		},
	})
}

// buttonFake only logs; the node records the press.
type buttonFake struct {
	buttonBase
}

func (b *buttonFake) Close() error {
	return nil
}

func (b *buttonFake) press() error {
	logf("%s: fake press", b.name)
	return nil
}
