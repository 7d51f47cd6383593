// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package client implements the client side of the ESPHome native API.
//
// It implements enough of the protocol to log in, list the entities of a node
// and press a button, over a plaintext or a Noise encrypted connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"periph.io/x/opendoor/api"
	"periph.io/x/opendoor/wire"
)

var (
	// ErrNotConnected is returned when a request needs Connect() to have
	// succeeded first.
	ErrNotConnected = errors.New("client: not connected")
	// ErrInvalidPassword is returned by Connect when the node refused the
	// password.
	ErrInvalidPassword = errors.New("client: invalid password")
	// ErrDisconnected is returned once the node closed the session.
	ErrDisconnected = errors.New("client: disconnected by node")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")
)

type state int

const (
	dialed state = iota
	helloDone
	connected
)

// Client is a connection to one ESPHome node.
//
// It is safe to call its methods concurrently but requests are answered in
// order, so concurrent requests of the same kind are not supported.
type Client struct {
	conn  net.Conn
	codec wire.Codec
	addr  string
	cfg   *clientConfig

	wmu sync.Mutex
	in  chan api.Message
	// done is closed when readLoop returns, after readErr is set.
	done    chan struct{}
	readErr error
	closing chan struct{}

	mu     sync.Mutex
	state  state
	closed bool
	hello  api.HelloResponse
	server *wire.ServerHello
}

// Dial connects to the node at addr ("host:port") and runs the encryption
// handshake when a key is set.
//
// The connection is not logged in yet; call Connect.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.connectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		addr:    addr,
		cfg:     cfg,
		in:      make(chan api.Message, 32),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	if cfg.key == nil {
		c.codec = wire.NewPlaintext(conn)
	} else {
		dl, _ := ctx.Deadline()
		_ = conn.SetDeadline(dl)
		// Closing the connection is the only way to interrupt the handshake.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		c.codec, c.server, err = wire.ClientHandshake(conn, cfg.key, cfg.expectedName)
		stop()
		if err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil, fmt.Errorf("handshake with %s: %w", addr, ctx.Err())
			}
			return nil, fmt.Errorf("handshake with %s: %w", addr, err)
		}
		_ = conn.SetDeadline(time.Time{})
		c.logf("encrypted session with %q (%s)", c.server.Name, c.server.MAC)
	}
	go c.readLoop()
	return c, nil
}

// Addr returns the address of the node.
func (c *Client) Addr() string {
	return c.addr
}

// Hello returns the node's answer to the hello message, valid after Connect.
func (c *Client) Hello() api.HelloResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hello
}

// Connect sends the hello message and, if login is true, logs in.
//
// Newer nodes don't require login but older ones only accept requests after
// it.
func (c *Client) Connect(ctx context.Context, login bool) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.send(&api.HelloRequest{
		ClientInfo:      c.cfg.clientInfo,
		APIVersionMajor: api.VersionMajor,
		APIVersionMinor: api.VersionMinor,
	}); err != nil {
		return err
	}
	hello, err := waitFor[*api.HelloResponse](ctx, c)
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	if hello.APIVersionMajor != api.VersionMajor {
		return fmt.Errorf("hello: incompatible API version %d.%d", hello.APIVersionMajor, hello.APIVersionMinor)
	}
	c.logf("connected to %q (%s) API %d.%d", hello.Name, hello.ServerInfo, hello.APIVersionMajor, hello.APIVersionMinor)
	c.mu.Lock()
	c.hello = *hello
	c.state = helloDone
	c.mu.Unlock()
	if !login {
		c.setState(connected)
		return nil
	}

	if err = c.send(&api.ConnectRequest{Password: c.cfg.password}); err != nil {
		return err
	}
	resp, err := waitFor[*api.ConnectResponse](ctx, c)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.InvalidPassword {
		return ErrInvalidPassword
	}
	c.setState(connected)
	return nil
}

// DeviceInfo returns the description of the node.
func (c *Client) DeviceInfo(ctx context.Context) (*api.DeviceInfoResponse, error) {
	if err := c.require(helloDone); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.send(&api.DeviceInfoRequest{}); err != nil {
		return nil, err
	}
	return waitFor[*api.DeviceInfoResponse](ctx, c)
}

// ListEntitiesServices returns all the entities and user defined services of
// the node, in the order the node sent them.
func (c *Client) ListEntitiesServices(ctx context.Context) ([]api.EntityInfo, []api.ServiceInfo, error) {
	if err := c.require(connected); err != nil {
		return nil, nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.send(&api.ListEntitiesRequest{}); err != nil {
		return nil, nil, err
	}
	var entities []api.EntityInfo
	var services []api.ServiceInfo
	for {
		m, err := c.recv(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list entities: %w", err)
		}
		switch v := m.(type) {
		case *api.EntityInfo:
			entities = append(entities, *v)
		case *api.ServiceInfo:
			services = append(services, *v)
		case *api.ListEntitiesDoneResponse:
			return entities, services, nil
		default:
			c.logf("ignoring %T while listing entities", m)
		}
	}
}

// ButtonCommand presses the button.
//
// The node doesn't acknowledge it; use Ping to know it was received.
func (c *Client) ButtonCommand(ctx context.Context, key uint32) error {
	if err := c.require(connected); err != nil {
		return err
	}
	return c.send(&api.ButtonCommandRequest{Key: key})
}

// Ping does a round trip with the node.
//
// Since the node processes the messages in order, a reply proves that all
// the previous messages were read.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.require(helloDone); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.send(&api.PingRequest{}); err != nil {
		return err
	}
	_, err := waitFor[*api.PingResponse](ctx, c)
	return err
}

// Disconnect ends the session gracefully. The connection stays open until
// Close.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	s := c.state
	c.state = dialed
	c.mu.Unlock()
	if s == dialed {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.send(&api.DisconnectRequest{}); err != nil {
		return err
	}
	_, err := waitFor[*api.DisconnectResponse](ctx, c)
	if errors.Is(err, ErrDisconnected) || wire.IsEOF(err) {
		// The node may close the connection right after answering.
		return nil
	}
	return err
}

// Close disconnects if needed then closes the connection.
//
// It is safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	if err := c.Disconnect(context.Background()); err != nil {
		c.logf("disconnect: %s", err)
	}
	close(c.closing)
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		id, raw, err := c.codec.ReadFrame()
		if err != nil {
			c.readErr = err
			return
		}
		msg, err := api.Unmarshal(id, raw)
		if err != nil {
			if errors.Is(err, api.ErrUnknownMessage) {
				c.logf("ignoring message %d", id)
				continue
			}
			c.readErr = err
			return
		}
		c.logf("recv(%T)", msg)
		switch msg.(type) {
		case *api.PingRequest:
			err = c.send(&api.PingResponse{})
		case *api.GetTimeRequest:
			err = c.send(&api.GetTimeResponse{EpochSeconds: uint32(time.Now().Unix())})
		case *api.DisconnectRequest:
			_ = c.send(&api.DisconnectResponse{})
			c.readErr = ErrDisconnected
			return
		default:
			select {
			case c.in <- msg:
			case <-c.closing:
				c.readErr = ErrClosed
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// recv returns the next message not handled by readLoop.
func (c *Client) recv(ctx context.Context) (api.Message, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.done:
		// Messages read before the loop stopped are still valid.
		select {
		case m := <-c.in:
			return m, nil
		default:
		}
		return nil, c.readErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// waitFor skips messages until one of type T is received.
func waitFor[T api.Message](ctx context.Context, c *Client) (T, error) {
	for {
		m, err := c.recv(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		if v, ok := m.(T); ok {
			return v, nil
		}
		c.logf("ignoring %T", m)
	}
}

func (c *Client) send(msg api.Message) error {
	id, raw, err := api.Marshal(msg)
	if err != nil {
		return err
	}
	c.logf("send(%T)", msg)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.codec.WriteFrame(id, raw)
}

func (c *Client) require(s state) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state < s {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) setState(s state) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// withTimeout applies the request timeout if ctx has no deadline.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.requestTimeout)
}

func (c *Client) logf(format string, v ...interface{}) {
	if c.cfg.logger != nil {
		c.cfg.logger.Printf(format, v...)
	}
}
