// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config_test

import (
	"fmt"
	"log"

	"periph.io/x/opendoor/config"
)

func Example() {
	c := config.Default()
	if err := c.LoadYaml([]byte("host: 192.168.1.20\nentity: Timbre\n")); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Pressing %q on %s (%s)\n", c.Entity, c.Name, c.Addr())
	// Output:
	// Pressing "Timbre" on arturito (192.168.1.20:6053)
}
