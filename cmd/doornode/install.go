// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"text/template"
)

const unitName = "doornode.service"

func install(config string) error {
	if _, err := os.Stat("/run/systemd/system"); err != nil {
		return fmt.Errorf("installing is only supported with systemd, not on %s", runtime.GOOS)
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	u, err := user.Current()
	if err != nil {
		return err
	}
	buf := bytes.Buffer{}
	if err = unitTmpl.Execute(&buf, unitData{
		User:    u.Username,
		Command: exe + " " + config + " run",
	}); err != nil {
		return err
	}
	steps := [][]string{
		{"sudo", "tee", "/etc/systemd/system/" + unitName},
		{"sudo", "systemctl", "daemon-reload"},
		{"sudo", "systemctl", "enable", unitName},
	}
	for i, s := range steps {
		cmd := exec.Command(s[0], s[1:]...)
		if i == 0 {
			cmd.Stdin = &buf
		}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", s[1], err)
		}
	}
	fmt.Printf("Run \"sudo systemctl start %s\" to start the node or reboot.\n", unitName)
	return nil
}

type unitData struct {
	User    string
	Command string
}

// The node exits when its binary or config changes; systemd restarts it.
var unitTmpl = template.Must(template.New("").Parse(`[Unit]
Description=Door relay ESPHome node
Wants=network-online.target
After=network-online.target

[Service]
User={{.User}}
Group={{.User}}
SupplementaryGroups=gpio
KillMode=mixed
Restart=always
TimeoutStopSec=20s
ExecStart={{.Command}}
Environment=GOTRACEBACK=all

[Install]
WantedBy=default.target
`))
