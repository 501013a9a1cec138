// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	hwsigner "github.com/luxfi/hwsigner-go"
)

// loadConfig merges the config file, environment and global flags.
func loadConfig(cmd *cli.Command) (hwsigner.Config, error) {
	cfg, err := hwsigner.LoadConfig(cmd.String("config"))
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := cmd.String("port"); v != "" {
		cfg.Port = v
	}
	if v := cmd.String("backend"); v != "" {
		cfg.Backend = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := hwsigner.SetLogLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newAdmin(cmd *cli.Command) (hwsigner.DeviceAdmin, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return openAdmin(cfg)
}

func openAdmin(cfg hwsigner.Config) (hwsigner.DeviceAdmin, func(), error) {
	admin, err := hwsigner.NewDeviceAdmin(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up %s backend: %w", cfg.Backend, err)
	}
	release := func() {
		if c, ok := admin.(io.Closer); ok {
			c.Close()
		}
	}
	return admin, release, nil
}

// withWallet connects a wallet for the duration of fn.
func withWallet(ctx context.Context, cmd *cli.Command, fn func(*hwsigner.HardwareWallet) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	admin, release, err := openAdmin(cfg)
	if err != nil {
		return err
	}
	defer release()

	wallet := hwsigner.NewHardwareWallet(admin, hwsigner.WithSignatureLength(cfg.SignatureLength))
	if err := wallet.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer wallet.Disconnect(context.Background())

	return fn(wallet)
}
