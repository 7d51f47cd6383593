// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/grandcat/zeroconf"
	"periph.io/x/opendoor/api"
	"periph.io/x/opendoor/node/config"
	"periph.io/x/opendoor/wire"
)

const version = "0.2"

// service is the zeroconf service type of ESPHome nodes.
const service = "_esphomelib._tcp"

// New loads a configuration and instantiate a node.
func New(ctx context.Context, cfg *config.Root) (*Node, error) {
	ifa, mac := getMainAddr()
	ctx, cancel := context.WithCancel(ctx)
	n := &Node{
		cancel: cancel,
		cfg:    cfg,
		name:   cfg.Node.Name,
		lookup: map[uint32]component{},
		mac:    mac,
	}

	hostname, err := os.Hostname()
	if err != nil {
		cancel()
		return nil, err
	}
	if n.name == "" {
		n.name = hostname
	}
	if k := cfg.API.Encryption.Key; k != "" {
		if n.key, err = wire.DecodeKey(k); err != nil {
			cancel()
			return nil, err
		}
	}

	for i := range cfg.Buttons {
		if err = n.loadButton(ctx, &cfg.Buttons[i]); err != nil {
			// Since we're partially initialized, take the time to close the
			// components that were initialized.
			_ = n.Close()
			return nil, err
		}
	}

	// Start the native API server.
	port := cfg.API.Port
	if port == 0 {
		port = 6053
	}
	if err := n.apiServer(ctx, port); err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("failed to start api server: %w", err)
	}

	// Make the device discoverable via zeroconf unless bound to a specific
	// address, e.g. the loopback in unit tests.
	if cfg.API.Bind == "" {
		text := []string{
			"address=" + hostname + ".local",
			"version=" + version,
		}
		if n.mac != "" {
			text = append(text, "mac="+strings.ReplaceAll(n.mac, ":", ""))
		}
		if n.key != nil {
			text = append(text, "api_encryption=Noise_NNpsk0_25519_ChaChaPoly_SHA256")
		}
		log.Printf("Advertizing via zeroconf %v", text)
		var ifas []net.Interface
		if ifa != nil {
			ifas = append(ifas, *ifa)
		}
		zc, err := zeroconf.Register(n.name, service, "local.", port, text, ifas)
		if err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("failed to advertise with zeroconf: %w", err)
		}
		n.zc = zc
	}
	return n, nil
}

// Node is a door node: an ESPHome compatible device exposing buttons.
type Node struct {
	cancel func()
	cfg    *config.Root
	name   string
	mac    string
	key    []byte

	// Components.
	entities []component
	// For native API requests.
	lookup map[uint32]component

	// Discovery.
	zc *zeroconf.Server

	// API server.
	ln net.Listener
	wg sync.WaitGroup

	mu      sync.Mutex
	presses []string
}

// Addr returns the address the native API listens on.
func (n *Node) Addr() string {
	return n.ln.Addr().String()
}

// Presses returns the names of the buttons pressed so far, in order.
func (n *Node) Presses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.presses...)
}

// Close stops all the buttons and close the API server as relevant.
func (n *Node) Close() error {
	// Close in the reverse order of New(). Has to handle partially initialized
	// object when New() is failing.
	if n.zc != nil {
		log.Printf("shutting down zeroconf")
		n.zc.Shutdown()
	}
	var err error
	if n.ln != nil {
		log.Printf("shutting down api")
		err = n.ln.Close()
	}
	// Disconnects the clients.
	n.cancel()
	logf("waiting for goroutines")
	if os.Getenv("GOTRACEBACK") == "all" {
		// This code exists to catch when there's a shutdown bug.
		t := time.AfterFunc(time.Minute, func() {
			panic("Took too long to shutdown, panicking")
		})
		n.wg.Wait()
		t.Stop()
	} else {
		n.wg.Wait()
	}
	// Components are closed last so a press in flight can complete.
	for i := range n.entities {
		logf("closing component %s", n.entities[i].getName())
		if err2 := n.entities[i].Close(); err == nil {
			err = err2
		}
	}
	return err
}

func (n *Node) addEntity(ctx context.Context, c component) error {
	if err := c.init(ctx, n); err != nil {
		return err
	}
	if _, ok := n.lookup[c.getHash()]; ok {
		return fmt.Errorf("%s: key collision", c.getName())
	}
	n.entities = append(n.entities, c)
	n.lookup[c.getHash()] = c
	return nil
}

func (n *Node) onPress(name string) {
	n.mu.Lock()
	n.presses = append(n.presses, name)
	n.mu.Unlock()
}

// apiServer starts the API server as documented at
// https://esphome.io/components/api.html and implemented at
// https://github.com/esphome/aioesphomeapi.
func (n *Node) apiServer(ctx context.Context, port int) error {
	log.Printf("loading API server on port %d", port)
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(n.cfg.API.Bind, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	logf("listening on %s", ln.Addr())

	n.ln = ln
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.apiServerLoop(ctx)
	}()
	return nil
}

func (n *Node) apiServerLoop(ctx context.Context) {
	for {
		c, err := n.ln.Accept()
		if err != nil {
			return
		}
		logf("New connection: %s", c.RemoteAddr())
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			(&conn{c: c, n: n}).handleConnection(ctx)
		}()
	}
}

type component interface {
	Close() error
	init(ctx context.Context, n *Node) error
	getName() string
	getHash() uint32
	describe() *api.EntityInfo
	// press is called when a client sends a button command.
	press() error
}

type componentBase struct {
	name          string
	componentType api.EntityKind

	// Calculated in init():
	objectID string
	uniqueID string
	key      uint32
}

func (c *componentBase) init(ctx context.Context, n *Node) error {
	if c.name == "" {
		return errors.New("internal error: name not set")
	}
	if c.componentType == "" {
		return errors.New("internal error: componentType not set")
	}

	c.objectID = strings.Map(func(r rune) rune {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r == '-' || r == '_' {
			return r
		}
		if 'A' <= r && r <= 'Z' {
			return unicode.ToLower(r)
		}
		if r == ' ' {
			return '_'
		}
		return -1
	}, c.name)
	if c.objectID == "" {
		return errors.New("internal error: objectID is empty")
	}
	// Default uniqueID is Node.Name + component type + object_id.
	c.uniqueID = n.name + string(c.componentType) + c.objectID

	h := fnv.New32()
	if _, err := h.Write([]byte(c.objectID)); err != nil {
		return err
	}
	if c.key = h.Sum32(); c.key == 0 {
		// I observed that if the hash value is 0, it is replaced with 1 by the
		// client.
		c.key = 1
	}
	return nil
}

func (c *componentBase) getName() string {
	return c.name
}

func (c *componentBase) getHash() uint32 {
	return c.key
}

// getMainAddr returns the first IP and mac addresses that are not a loopback
// and support multicast.
//
// This assumes that lesser use network adapters like docker and tailscale are
// after the base one. Still it's not clear which one is useful to return so
// this code will likely have to change.
func getMainAddr() (*net.Interface, string) {
	ifas, _ := net.Interfaces()
	for _, ifa := range ifas {
		if ifa.Flags&net.FlagLoopback != 0 || ifa.Flags&net.FlagUp == 0 || ifa.Flags&net.FlagMulticast == 0 {
			continue
		}
		mac := ifa.HardwareAddr.String()
		if mac == "" {
			continue
		}
		addrs, err := ifa.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return &ifa, mac
	}
	return nil, ""
}
