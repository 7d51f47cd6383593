// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// doornode runs an ESPHome compatible node driving the door relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"periph.io/x/host/v3"
	"periph.io/x/opendoor/node/config"
)

// watchContext returns a context canceled on SIGINT / SIGTERM or when one of
// the files is modified, so the service manager restarts the node with the
// new binary or configuration.
func watchContext(files ...string) (context.Context, func(), error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ctx, cancel, err
	}
	modTimes := map[string]time.Time{}
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			_ = watcher.Close()
			return ctx, cancel, err
		}
		if err = watcher.Add(f); err != nil {
			_ = watcher.Close()
			return ctx, cancel, err
		}
		modTimes[f] = fi.ModTime()
		log.Printf("watching %s @ %s", f, fi.ModTime())
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-watcher.Errors:
				log.Printf("watching files failed, exiting: %s", err)
				cancel()
				return
			case e := <-watcher.Events:
				fi, err := os.Stat(e.Name)
				if err != nil {
					log.Printf("%s disappeared, ignoring", e.Name)
					continue
				}
				if !fi.ModTime().Equal(modTimes[e.Name]) {
					log.Printf("%s was modified, exiting", e.Name)
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel, nil
}

func mainImpl() error {
	flag.Usage = func() {
		o := flag.CommandLine.Output()
		fmt.Fprintf(o, "usage: %s <config.yaml> <command>\n", os.Args[0])
		fmt.Fprintf(o, "\nCommands are:\n")
		fmt.Fprintf(o, "  install  Install the node to run on boot\n")
		fmt.Fprintf(o, "  run      Run the node\n")
		fmt.Fprintf(o, "\n")
		flag.PrintDefaults()
	}
	verbose := flag.Bool("v", false, "log with microseconds and source lines")
	flag.Parse()
	if flag.NArg() != 2 {
		return errors.New("expect 2 arguments. Use -help for more information")
	}
	if *verbose {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}

	// The relay is driven through periph; without it there isn't much to do.
	if _, err := host.Init(); err != nil {
		return err
	}

	configFile, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		return err
	}
	/* #nosec G304 */
	b, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	cfg := config.Root{}
	if err = cfg.LoadYaml(b); err != nil {
		return fmt.Errorf("%s: %w", configFile, err)
	}

	switch cmd := flag.Arg(1); cmd {
	case "install":
		return install(configFile)
	case "run":
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		ctx, cancel, err := watchContext(exe, configFile)
		defer cancel()
		if err != nil {
			return err
		}
		return run(ctx, &cfg)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "doornode: %s.\n", err)
		os.Exit(1)
	}
}
