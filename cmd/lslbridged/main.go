// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// lslbridged runs a headless bridge session: it wires the settings
// store, inventory model, restriction registry, and bridge manager,
// then serves until interrupted. It exists for soak testing the
// bridge lifecycle outside the viewer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/firestorm-community/lslbridge/lib/config"
	"github.com/firestorm-community/lslbridge/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lslbridged:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		capability string
	)
	pflag.StringVar(&configPath, "config", "", "path to the daemon configuration file")
	pflag.StringVar(&capability, "upload-capability", "", "script upload capability URL")
	pflag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := session.New(*cfg, logger, session.Options{})
	if err != nil {
		return err
	}
	if capability != "" {
		sess.SetUploadCapability(capability)
	}

	if err := sess.Start(ctx); err != nil {
		return err
	}
	logger.Info("session started", "state_dir", cfg.StateDir)

	<-ctx.Done()
	sess.Close()
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
