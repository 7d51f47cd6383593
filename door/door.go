// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package door runs the "open door" sequence against an ESPHome node.
//
// It connects, looks up the button named "Abrir" and presses it.
package door

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"periph.io/x/opendoor/api"
)

// DefaultTarget is the name of the button opening the door.
const DefaultTarget = "abrir"

// DefaultSettle is the time waited after the button press.
const DefaultSettle = 500 * time.Millisecond

// Device is the connection to the node, as implemented by *client.Client.
type Device interface {
	Connect(ctx context.Context, login bool) error
	ListEntitiesServices(ctx context.Context) ([]api.EntityInfo, []api.ServiceInfo, error)
	ButtonCommand(ctx context.Context, key uint32) error
	Ping(ctx context.Context) error
	Close() error
}

// Options tunes Open.
type Options struct {
	// Target is the entity name to press, compared case insensitively.
	// Defaults to DefaultTarget.
	Target string
	// Settle is the delay after the press before disconnecting. Defaults to
	// DefaultSettle. Use a negative value to not wait.
	Settle time.Duration
	// Out receives the human readable outcome. Defaults to io.Discard.
	Out io.Writer

	_ struct{}
}

// Result is the outcome of Open.
type Result struct {
	// Found is true if the target entity exists and was pressed.
	Found bool
	// Entity is the entity pressed, valid when Found is true.
	Entity api.EntityInfo
}

// Open connects to dev, presses the first entity named opts.Target and
// closes dev.
//
// dev is closed exactly once, including when a step fails. Not finding the
// entity is not an error.
func Open(ctx context.Context, dev Device, opts Options) (res Result, err error) {
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}
	if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	defer func() {
		if err2 := dev.Close(); err == nil && err2 != nil {
			err = fmt.Errorf("close: %w", err2)
		}
	}()

	if err = dev.Connect(ctx, true); err != nil {
		return res, fmt.Errorf("connect: %w", err)
	}
	entities, _, err := dev.ListEntitiesServices(ctx)
	if err != nil {
		return res, fmt.Errorf("list entities: %w", err)
	}
	e := Find(entities, opts.Target)
	if e == nil {
		fmt.Fprintf(opts.Out, "Button %q not found\n", opts.Target)
		return res, nil
	}
	fmt.Fprintf(opts.Out, "Button found: %s\n", e)
	if err = dev.ButtonCommand(ctx, e.Key); err != nil {
		return res, fmt.Errorf("press %q: %w", e.Name, err)
	}
	res = Result{Found: true, Entity: *e}
	// The node handles messages in order: once the ping is answered, the
	// press was received.
	if err = dev.Ping(ctx); err != nil {
		return res, fmt.Errorf("press %q: %w", e.Name, err)
	}
	if opts.Settle > 0 {
		t := time.NewTimer(opts.Settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
	return res, nil
}

// Find returns the first entity whose name equals name, ignoring case.
func Find(entities []api.EntityInfo, name string) *api.EntityInfo {
	for i := range entities {
		if strings.EqualFold(entities[i].Name, name) {
			return &entities[i]
		}
	}
	return nil
}
