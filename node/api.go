// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package node implements the common code to present itself as an ESPHome
// node exposing door buttons.
//
// It is used to drive a door relay from a Raspberry Pi and, with the fake
// platform, as the device side in tests.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"runtime"
	"time"

	"periph.io/x/opendoor/api"
	"periph.io/x/opendoor/wire"
)

// errNotAuthenticated is returned for a request needing a login first.
var errNotAuthenticated = errors.New("not authenticated")

// conn is a native API TCP connection.
type conn struct {
	c     net.Conn
	n     *Node
	codec wire.Codec

	helloDone     bool
	authenticated bool
}

func (c *conn) handleConnection(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.c.Close()
	if c.n.key != nil {
		_ = c.c.SetDeadline(time.Now().Add(30 * time.Second))
		codec, err := wire.ServerHandshake(c.c, c.n.key, wire.ServerHello{Name: c.n.name, MAC: c.n.mac})
		if err != nil {
			log.Printf("handshake with %s: %s", c.c.RemoteAddr(), err)
			return
		}
		_ = c.c.SetDeadline(time.Time{})
		c.codec = codec
	} else {
		c.codec = wire.NewPlaintext(c.c)
	}
	type msg struct {
		id  uint32
		raw []byte
		err error
	}
	done := ctx.Done()
	onMsg := make(chan msg, 1)
	for {
		go func() {
			id, raw, err := c.codec.ReadFrame()
			onMsg <- msg{id, raw, err}
		}()
		select {
		case <-done:
			if err := c.reply(&api.DisconnectRequest{}); err != nil {
				// Then don't wait for a reply.
				return
			}
			// Wait for the reply which should be a DisconnectResponse.
			select {
			case <-onMsg:
			case <-time.After(5 * time.Second):
			}
			return
		case m := <-onMsg:
			if m.err != nil {
				if errors.Is(m.err, wire.ErrRequiresEncryption) {
					// The client wants encryption; answer in plaintext so it
					// knows this node has no key.
					_ = c.reply(&api.DisconnectRequest{})
				}
				if !wire.IsEOF(m.err) {
					log.Printf("readMsg: %s", m.err)
				} else {
					logf("readMsg: %s", m.err)
				}
				return
			}
			if err := c.handleRPC(ctx, m.id, m.raw); err != nil {
				if !wire.IsEOF(err) {
					log.Printf("handleRPC: %s", err)
				} else {
					logf("handleRPC: %s", err)
				}
				return
			}
		}
	}
}

func (c *conn) handleRPC(ctx context.Context, id uint32, raw []byte) error {
	v, err := api.Unmarshal(id, raw)
	if err != nil {
		if errors.Is(err, api.ErrUnknownMessage) {
			// Newer clients send messages this node has no use for.
			logf("handleRPC: ignoring %d", id)
			return nil
		}
		return err
	}
	logf("handleRPC(%T)", v)
	switch m := v.(type) {
	case *api.HelloRequest:
		return c.Hello(m)
	case *api.ConnectRequest:
		return c.Connect(m)
	case *api.DisconnectRequest:
		return c.Disconnect(m)
	case *api.DisconnectResponse:
		// Reply to our own DisconnectRequest.
		return io.EOF
	case *api.PingRequest:
		return c.reply(&api.PingResponse{})
	case *api.PingResponse:
		return nil
	case *api.DeviceInfoRequest:
		return c.DeviceInfo(m)
	case *api.ListEntitiesRequest:
		return c.ListEntities(m)
	case *api.SubscribeStatesRequest:
		// Buttons are stateless.
		return c.requireAuth()
	case *api.GetTimeResponse:
		return nil
	case *api.ButtonCommandRequest:
		return c.ButtonCommand(m)
	default:
		return fmt.Errorf("internal error: implement %T", v)
	}
}

func (c *conn) Hello(in *api.HelloRequest) error {
	logf("hello from %q API %d.%d", in.ClientInfo, in.APIVersionMajor, in.APIVersionMinor)
	c.helloDone = true
	return c.reply(&api.HelloResponse{
		APIVersionMajor: api.VersionMajor,
		APIVersionMinor: api.VersionMinor,
		ServerInfo:      "opendoor node " + version,
		Name:            c.n.name,
	})
}

func (c *conn) Connect(in *api.ConnectRequest) error {
	resp := api.ConnectResponse{
		InvalidPassword: c.n.cfg.API.Password != in.Password,
	}
	if err := c.reply(&resp); err != nil {
		return err
	}
	if resp.InvalidPassword {
		return errors.New("invalid password")
	}
	c.authenticated = true
	return nil
}

func (c *conn) Disconnect(in *api.DisconnectRequest) error {
	if err := c.reply(&api.DisconnectResponse{}); err != nil {
		return err
	}
	// Signal the caller that the connection has to be torn down if it hasn't
	// already.
	return io.EOF
}

func (c *conn) DeviceInfo(in *api.DeviceInfoRequest) error {
	return c.reply(&api.DeviceInfoResponse{
		UsesPassword:    c.n.cfg.API.Password != "",
		Name:            c.n.name,
		MacAddress:      c.n.mac,
		EsphomeVersion:  "opendoor " + version,
		CompilationTime: c.n.cfg.Node.Comment,
		Model:           runtime.GOOS,
		Manufacturer:    "periph",
	})
}

func (c *conn) ListEntities(in *api.ListEntitiesRequest) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	for _, e := range c.n.entities {
		if err := c.reply(e.describe()); err != nil {
			return err
		}
	}
	return c.reply(&api.ListEntitiesDoneResponse{})
}

func (c *conn) ButtonCommand(in *api.ButtonCommandRequest) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	e := c.n.lookup[in.Key]
	if e == nil {
		return fmt.Errorf("unknown item %x", in.Key)
	}
	log.Printf("%s pressed by %s", e.getName(), c.c.RemoteAddr())
	if err := e.press(); err != nil {
		// A failing relay doesn't warrant dropping the connection.
		log.Printf("%s: %s", e.getName(), err)
		return nil
	}
	c.n.onPress(e.getName())
	return nil
}

// requireAuth returns an error unless the client logged in, or said hello to
// a node without a password.
func (c *conn) requireAuth() error {
	if c.authenticated || (c.helloDone && c.n.cfg.API.Password == "") {
		return nil
	}
	return errNotAuthenticated
}

func (c *conn) reply(msg api.Message) error {
	id, raw, err := api.Marshal(msg)
	if err != nil {
		return err
	}
	logf("reply(%T)", msg)
	if err := c.codec.WriteFrame(id, raw); err != nil {
		logf("failed to write")
		return err
	}
	return nil
}

// shouldLog is set to true in unit test when testing.Verbose() is true.
var shouldLog = true

func logf(fmt string, v ...interface{}) {
	if shouldLog {
		log.Printf(fmt, v...)
	}
}
