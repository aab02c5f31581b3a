/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/rhi/engine/config"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/testbed"
)

func main() {
	configPath := flag.String("config", "", "path of the TOML config, watched for changes")
	frames := flag.Int("frames", 600, "frames to render, 0 runs until interrupted")
	backend := flag.String("backend", "", "overrides the backend of the config (recorder, vulkan)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			core.LogFatal("loading config: %s", err)
		}
	}
	if *backend != "" {
		cfg.Backend.Type = config.BackendType(*backend)
		if err := cfg.Validate(); err != nil {
			core.LogFatal("%s", err)
		}
	}
	core.SetLogLevel(cfg.LogLevel())

	tb, err := testbed.New(cfg)
	if err != nil {
		core.LogFatal("creating testbed: %s", err)
	}
	if *configPath != "" {
		if err := tb.Device().WatchConfig(*configPath); err != nil {
			core.LogWarn("config will not be reloaded: %s", err)
		}
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	status := 0
loop:
	for n := 0; *frames == 0 || n < *frames; n++ {
		select {
		case <-sigCh:
			break loop
		default:
		}
		if err := tb.Frame(n); err != nil {
			core.LogError("frame %d: %s", n, err)
			status = 1
			break
		}
	}

	tb.Stats()
	if err := tb.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
		status = 1
	}
	os.Exit(status)
}
