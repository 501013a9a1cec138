// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "hwsigner",
		Usage: "Talk to an ESP32 hardware signing device",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a TOML config file",
				Sources: cli.EnvVars("HWSIGNER_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Serial port to use instead of scanning",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Device backend (serial, usb)",
			},
		},
		Commands: []*cli.Command{
			DevicesCommand(),
			CheckCommand(),
			PubkeyCommand(),
			SignCommand(),
			KeygenCommand(),
			SignLocalCommand(),
		},
	}
}
