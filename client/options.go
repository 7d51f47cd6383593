// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package client

import (
	"errors"
	"log"
	"time"

	"periph.io/x/opendoor/wire"
)

// Option configures a Client.
type Option func(*clientConfig) error

type clientConfig struct {
	password       string
	key            []byte
	expectedName   string
	clientInfo     string
	connectTimeout time.Duration
	requestTimeout time.Duration
	logger         *log.Logger
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		clientInfo:     "opendoor",
		connectTimeout: 10 * time.Second,
		requestTimeout: 5 * time.Second,
	}
}

// WithPassword sets the legacy API password sent on login.
func WithPassword(password string) Option {
	return func(c *clientConfig) error {
		c.password = password
		return nil
	}
}

// WithEncryptionKey enables Noise encryption with the base64 encoded
// pre-shared key. An empty key keeps the connection in plaintext.
func WithEncryptionKey(key string) Option {
	return func(c *clientConfig) error {
		if key == "" {
			c.key = nil
			return nil
		}
		k, err := wire.DecodeKey(key)
		if err != nil {
			return err
		}
		c.key = k
		return nil
	}
}

// WithExpectedName makes the encrypted handshake fail if the node announces
// another name.
func WithExpectedName(name string) Option {
	return func(c *clientConfig) error {
		c.expectedName = name
		return nil
	}
}

// WithClientInfo sets the client name shown in the node's logs.
func WithClientInfo(info string) Option {
	return func(c *clientConfig) error {
		if info == "" {
			return errors.New("client info must not be empty")
		}
		c.clientInfo = info
		return nil
	}
}

// WithConnectTimeout sets the timeout for the TCP connection and the
// encryption handshake. Default is 10 seconds.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		c.connectTimeout = d
		return nil
	}
}

// WithRequestTimeout sets the timeout for a request when the context has no
// deadline. Default is 5 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// WithLogger enables debug logging of the exchanged messages.
func WithLogger(l *log.Logger) Option {
	return func(c *clientConfig) error {
		c.logger = l
		return nil
	}
}
