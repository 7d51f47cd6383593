// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// Service is the zeroconf service advertised by ESPHome nodes.
const Service = "_esphomelib._tcp"

// ErrNotFound is returned by Resolve when no node answered.
var ErrNotFound = errors.New("client: node not found")

// Found is a node found on the network.
type Found struct {
	Name     string
	Hostname string
	IP       net.IP
	Port     int
	Text     []string

	_ struct{}
}

func (f *Found) String() string {
	return fmt.Sprintf("%s (%s / %s:%d): %s", f.Name, f.Hostname, f.IP, f.Port, f.Text)
}

// Addr returns the "ip:port" to pass to Dial.
func (f *Found) Addr() string {
	return net.JoinHostPort(f.IP.String(), strconv.Itoa(f.Port))
}

// Resolve looks up the node with the instance name on the local network.
//
// This is done via zeroconf, which use 224.0.0.251 on port 5353. It returns
// as soon as the node answered, or ErrNotFound once ctx is done.
func Resolve(ctx context.Context, name string) (*Found, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}
	c := make(chan *zeroconf.ServiceEntry)
	var out *Found
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range c {
			if out != nil {
				continue
			}
			f := &Found{
				Name:     e.Instance,
				Hostname: strings.TrimRight(e.HostName, "."),
				Port:     e.Port,
				Text:     e.Text,
			}
			if len(e.AddrIPv4) != 0 {
				f.IP = e.AddrIPv4[0]
			} else if len(e.AddrIPv6) != 0 {
				f.IP = e.AddrIPv6[0]
			} else {
				continue
			}
			out = f
			cancel()
		}
	}()

	if err = r.Lookup(ctx, name, Service, "local.", c); err != nil {
		return nil, err
	}
	<-ctx.Done()
	wg.Wait()
	if out == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return out, nil
}
