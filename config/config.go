// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config contains the opendoor client configuration.
//
// The defaults target the lab door node. They can be overridden by a YAML
// file then by environment variables prefixed with OPENDOOR_, e.g.
// OPENDOOR_HOST.
//
// Configuration
//
// The configuration yaml file is expected to look like this:
//
//   host: 10.0.5.5
//   port: 6053
//   name: arturito
//   key: "t/VoqhqIBGp+oA08m3II5lZDM+ws3zsAlP7tc5oLm9k="
//   entity: abrir
//   settle: 500ms
//   serve:
//     listen: ":8080"
//
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
	"periph.io/x/opendoor/wire"
)

// EnvPrefix is the prefix of the environment variables overriding the
// configuration.
const EnvPrefix = "opendoor"

// Config is the opendoor configuration.
type Config struct {
	// Host is the node address. When empty, the node is looked up by Name
	// over zeroconf.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Name is the node name, checked during the encrypted handshake.
	Name string `yaml:"name"`
	// Key is the base64 encoded pre-shared key. When empty the connection is
	// in plaintext.
	Key      string `yaml:"key"`
	Password string `yaml:"password"`
	// Entity is the name of the button to press.
	Entity string `yaml:"entity"`
	// Settle is the delay after the press before disconnecting.
	Settle time.Duration `yaml:"settle"`
	Serve  Serve         `yaml:"serve"`

	_ struct{}
}

// Serve is the "serve" section, used by "opendoor serve".
type Serve struct {
	// Listen is the address of the HTTP server.
	Listen string `yaml:"listen"`
	// Token, when set, must be sent as a bearer token.
	Token string `yaml:"token"`

	_ struct{}
}

// Default returns the configuration of the lab door.
func Default() *Config {
	return &Config{
		Host:   "10.0.5.5",
		Port:   6053,
		Name:   "arturito",
		Key:    "t/VoqhqIBGp+oA08m3II5lZDM+ws3zsAlP7tc5oLm9k=",
		Entity: "abrir",
		Settle: 500 * time.Millisecond,
		Serve:  Serve{Listen: ":8080"},
	}
}

// Load returns the defaults, overridden by the YAML file at path if not
// empty, then by the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := c.LoadYaml(b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadYaml overrides the config with serialized yaml.
//
// Unknown fields are rejected.
func (c *Config) LoadYaml(b []byte) error {
	d := yaml.NewDecoder(bytes.NewReader(b))
	d.SetStrict(true)
	if err := d.Decode(c); err != nil {
		return err
	}
	return c.Validate()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port >= 65536 {
		return errors.New("port is invalid")
	}
	if c.Host == "" && c.Name == "" {
		return errors.New("host or name is required")
	}
	if c.Key != "" {
		if _, err := wire.DecodeKey(c.Key); err != nil {
			return err
		}
	}
	if c.Entity == "" {
		return errors.New("entity is required")
	}
	if c.Settle < 0 || c.Settle > time.Minute {
		return errors.New("settle must be between 0 and 1m")
	}
	return nil
}

// Addr returns "host:port", or "" when the host has to be resolved.
func (c *Config) Addr() string {
	if c.Host == "" {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
