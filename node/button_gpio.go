// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/opendoor/node/config"
)

// errBusy is returned when a press happens while the relay is still held.
var errBusy = errors.New("relay is already pulsing")

func (n *Node) loadButtonGPIO(ctx context.Context, cfg *config.Button) error {
	p := gpioreg.ByName(cfg.Pin.Number)
	if p == nil {
		return fmt.Errorf("unknown pin %q", cfg.Pin.Number)
	}
	pulse := cfg.Pulse
	if pulse == 0 {
		pulse = 500 * time.Millisecond
	}
	b := &buttonGPIO{
		buttonBase: buttonBase{
			componentBase: componentBase{
				name:          cfg.Name,
				componentType: buttonComponent,
			},
			icon:        cfg.Icon,
			deviceClass: cfg.DeviceClass,
		},
		p:        p,
		inverted: cfg.Pin.Inverted,
		pulse:    pulse,
	}
	// Make sure the relay is released on startup.
	if err := p.Out(b.level(false)); err != nil {
		return err
	}
	return n.addEntity(ctx, b)
}

// buttonGPIO drives a relay connected to a GPIO pin for a short pulse.
type buttonGPIO struct {
	buttonBase
	p        gpio.PinIO
	inverted bool
	pulse    time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
	stop   chan struct{}
}

func (b *buttonGPIO) init(ctx context.Context, n *Node) error {
	if err := b.componentBase.init(ctx, n); err != nil {
		return err
	}
	b.stop = make(chan struct{})
	return nil
}

func (b *buttonGPIO) Close() error {
	close(b.stop)
	b.wg.Wait()
	err := b.p.Out(b.level(false))
	if err2 := b.p.Halt(); err == nil {
		err = err2
	}
	return err
}

// press engages the relay and releases it after the pulse duration.
//
// It returns before the pulse is over.
func (b *buttonGPIO) press() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return errBusy
	}
	if err := b.p.Out(b.level(true)); err != nil {
		return err
	}
	b.active = true
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		t := time.NewTimer(b.pulse)
		defer t.Stop()
		select {
		case <-t.C:
		case <-b.stop:
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.active = false
		if err := b.p.Out(b.level(false)); err != nil {
			logf("%s: release: %s", b.name, err)
		}
	}()
	return nil
}

func (b *buttonGPIO) level(engaged bool) gpio.Level {
	return gpio.Level(engaged != b.inverted)
}
