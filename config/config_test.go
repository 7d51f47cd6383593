// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestLoad_Default(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), got, cmpopts.IgnoreUnexported(Config{}, Serve{})); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
	if got.Addr() != "10.0.5.5:6053" {
		t.Fatal(got.Addr())
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "opendoor.yaml")
	data := "host: door.local\nkey: \"\"\nsettle: 1s\nserve:\n  token: secret\n"
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENDOOR_PORT", "6054")
	t.Setenv("OPENDOOR_ENTITY", "timbre")
	got, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Host = "door.local"
	want.Port = 6054
	want.Key = ""
	want.Entity = "timbre"
	want.Settle = time.Second
	want.Serve.Token = "secret"
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(Config{}, Serve{})); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
	if got.Addr() != "door.local:6054" {
		t.Fatal(got.Addr())
	}
}

func TestLoad_Err(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
	t.Setenv("OPENDOOR_PORT", "port")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfigLoadYaml_Invalid(t *testing.T) {
	data := []string{
		"unexpected: false\n",
		"port: 0\n",
		"host: \"\"\nname: \"\"\n",
		"key: c2hvcnQ=\n",
		"entity: \"\"\n",
		"settle: -1s\n",
		"settle: 2m\n",
	}
	for i, line := range data {
		c := Default()
		if err := c.LoadYaml([]byte(line)); err == nil {
			t.Errorf("#%d: expected error", i)
		}
	}
}

func TestConfigAddr_Resolve(t *testing.T) {
	c := Default()
	if err := c.LoadYaml([]byte("host: \"\"\n")); err != nil {
		t.Fatal(err)
	}
	if c.Addr() != "" {
		t.Fatal(c.Addr())
	}
}
