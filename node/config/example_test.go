// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config_test

import (
	"fmt"
	"log"

	"periph.io/x/opendoor/node/config"
)

const sampleConf = `
node:
  name: arturito

api:

button:
  - platform: fake
    name: "Abrir"
`

func Example() {
	cfg := config.Root{}
	if err := cfg.LoadYaml([]byte(sampleConf)); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Device: %s\n", cfg.Node.Name)
	for _, b := range cfg.Buttons {
		fmt.Printf("- %s (%s)\n", b.Name, b.Platform)
	}

	// Output:
	// Device: arturito
	// - Abrir (fake)
}
