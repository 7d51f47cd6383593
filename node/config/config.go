// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config contains all the structures used to represent the YAML file
// to load a door node.
//
// The file schema starts with the type Root.
//
// Configuration
//
// The configuration yaml file is expected to look like this:
//
//   node:
//     name: arturito
//
//   api:
//     encryption:
//       key: "t/VoqhqIBGp+oA08m3II5lZDM+ws3zsAlP7tc5oLm9k="
//
//   button:
//     - platform: gpio
//       name: "Abrir"
//       icon: "mdi:door-open"
//       pin:
//         number: GPIO17
//       pulse: 500ms
//
package config

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v2"
	"periph.io/x/opendoor/wire"
)

// Root is the configuration file format.
//
// It is designed to look like ESPHome configuration yaml but has differences
// where appropriate.
type Root struct {
	Node    Node     `yaml:"node"`
	API     API      `yaml:"api"`
	Buttons []Button `yaml:"button"`

	_ struct{}
}

// LoadYaml loads the config from serialized yaml.
//
// It is a utility function that deserialize the yaml with strict checking. It
// also performs validation.
//
// The validation is not strict, it could still fail loading when passed to
// node.New().
func (r *Root) LoadYaml(b []byte) error {
	d := yaml.NewDecoder(bytes.NewReader(b))
	// Save the user trouble when they are doing a typo.
	d.SetStrict(true)
	if err := d.Decode(r); err != nil {
		return err
	}
	return r.validate()
}

// validate validates the configuration.
func (r *Root) validate() error {
	if err := r.Node.validate(); err != nil {
		return err
	}
	if err := r.API.validate(); err != nil {
		return err
	}
	names := map[string]bool{}
	for i := range r.Buttons {
		if err := r.Buttons[i].validate(); err != nil {
			return err
		}
		if names[r.Buttons[i].Name] {
			return fmt.Errorf("button: duplicate name %q", r.Buttons[i].Name)
		}
		names[r.Buttons[i].Name] = true
	}
	return nil
}

// Node is the "node" section.
type Node struct {
	// Name is the name announced to clients and over zeroconf.
	// Defaults to the hostname.
	Name    string
	Comment string

	_ struct{}
}

// validate validates the configuration.
func (n *Node) validate() error {
	if len(n.Name) > 63 {
		return errors.New("node: name is too long")
	}
	return nil
}

// API is the "api" section.
type API struct {
	// Port is the TCP port for the native API.
	//
	// Defaults to 6053.
	Port int
	// Bind is the address to listen on. When set, the node is not advertised
	// over zeroconf.
	Bind string
	// Password is the legacy login password. It provides a very weak
	// protection, prefer Encryption.
	Password   string
	Encryption Encryption

	// IsPresent is set to true if the field was present when the configuration
	// is deserialized from yaml.
	IsPresent bool `yaml:"-"`
	_         struct{}
}

type api struct {
	Port       int
	Bind       string
	Password   string
	Encryption Encryption
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *API) UnmarshalYAML(unmarshal func(interface{}) error) error {
	t := api{}
	if err := unmarshal(&t); err != nil {
		return err
	}
	a.Port = t.Port
	a.Bind = t.Bind
	a.Password = t.Password
	a.Encryption = t.Encryption
	a.IsPresent = true
	return nil
}

// validate validates the configuration.
func (a *API) validate() error {
	if a.Port < 0 || a.Port >= 65536 {
		return errors.New("api: port is invalid")
	}
	if a.Encryption.Key != "" {
		if _, err := wire.DecodeKey(a.Encryption.Key); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	return nil
}

// Encryption is the "api/encryption" section.
type Encryption struct {
	// Key is the base64 encoded 32 bytes pre-shared key.
	Key string

	_ struct{}
}

// Button is an element in the "button" section.
type Button struct {
	Platform    string
	Name        string
	Icon        string
	DeviceClass string `yaml:"device_class"`
	Pin         Pin
	// Pulse is how long the relay is held for gpio buttons.
	//
	// Defaults to 500ms.
	Pulse time.Duration

	_ struct{}
}

// validate validates the configuration.
func (b *Button) validate() error {
	if b.Platform == "" {
		return errors.New("button: platform is required")
	}
	if b.Name == "" {
		return errors.New("button: name is required")
	}
	if b.Pulse < 0 || b.Pulse > time.Minute {
		return fmt.Errorf("button(%s): pulse must be between 0 and 1m", b.Name)
	}
	return nil
}

// Pin is a "pin" section.
type Pin struct {
	Number string
	// Inverted drives the pin low while pulsing, for active low relay boards.
	Inverted bool

	_ struct{}
}
