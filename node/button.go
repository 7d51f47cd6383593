// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"
	"log"

	"periph.io/x/opendoor/api"
	"periph.io/x/opendoor/node/config"
)

const buttonComponent = api.Button

func (n *Node) loadButton(ctx context.Context, cfg *config.Button) error {
	log.Printf("loading button %s", cfg.Platform)
	switch cfg.Platform {
	case "fake":
		if err := n.loadButtonFake(ctx, cfg); err != nil {
			return fmt.Errorf("button(%s): %w", cfg.Name, err)
		}
		return nil
	case "gpio":
		if err := n.loadButtonGPIO(ctx, cfg); err != nil {
			return fmt.Errorf("button(%s): %w", cfg.Name, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown platform %q", cfg.Platform)
	}
}

// buttonBase is the part shared by all button platforms.
type buttonBase struct {
	componentBase
	icon        string
	deviceClass string
}

func (b *buttonBase) describe() *api.EntityInfo {
	return &api.EntityInfo{
		Kind:        buttonComponent,
		ObjectID:    b.objectID,
		Key:         b.key,
		Name:        b.name,
		UniqueID:    b.uniqueID,
		Icon:        b.icon,
		DeviceClass: b.deviceClass,
	}
}
