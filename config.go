// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/naoina/toml"
)

const (
	BackendSerial = "serial"
	BackendUSB    = "usb"
)

// Duration is a time.Duration that reads and writes as "100ms" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds the tunables of the link and the signer.
type Config struct {
	LogLevel        string
	Backend         string   // "serial" or "usb"
	Port            string   // explicit port, skips allow-list filtering
	BaudRate        int      // 115200 for every supported firmware
	ReadSlice       Duration // one read poll
	MaxEmptyReads   int      // consecutive empty polls before ErrReadTimeout
	MaxFrameSize    int      // bytes accepted without a terminator
	SignatureLength int
}

// DefaultConfig returns the settings the device firmware expects.
func DefaultConfig() Config {
	return Config{
		LogLevel:        "info",
		Backend:         BackendSerial,
		BaudRate:        115200,
		ReadSlice:       Duration(100 * time.Millisecond),
		MaxEmptyReads:   100,
		MaxFrameSize:    1024,
		SignatureLength: SignatureLength,
	}
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// LoadConfig reads a TOML file over DefaultConfig, then applies environment
// overrides and validates the result.
func LoadConfig(file string) (Config, error) {
	cfg := DefaultConfig()
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return cfg, err
		}
		defer f.Close()

		err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
		// Add file name to errors that have a line number.
		if _, ok := err.(*toml.LineError); ok {
			err = errors.New(file + ", " + err.Error())
		}
		if err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from HWSIGNER_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("HWSIGNER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HWSIGNER_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("HWSIGNER_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("HWSIGNER_BAUD_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HWSIGNER_BAUD_RATE: %w", err)
		}
		c.BaudRate = n
	}
	if v := os.Getenv("HWSIGNER_READ_SLICE"); v != "" {
		if err := c.ReadSlice.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("HWSIGNER_READ_SLICE: %w", err)
		}
	}
	return nil
}

// Validate rejects settings the transports cannot run with.
func (c Config) Validate() error {
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch {
	case c.Backend != BackendSerial && c.Backend != BackendUSB:
		return fmt.Errorf("unknown backend %q", c.Backend)
	case c.BaudRate <= 0:
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	case c.ReadSlice <= 0:
		return fmt.Errorf("invalid read slice %s", time.Duration(c.ReadSlice))
	case c.MaxEmptyReads <= 0:
		return fmt.Errorf("invalid max empty reads %d", c.MaxEmptyReads)
	case c.MaxFrameSize <= 0:
		return fmt.Errorf("invalid max frame size %d", c.MaxFrameSize)
	case c.SignatureLength <= 0:
		return fmt.Errorf("invalid signature length %d", c.SignatureLength)
	}
	return nil
}

func (c Config) frameLimits() frameLimits {
	return frameLimits{
		slice:    time.Duration(c.ReadSlice),
		maxEmpty: c.MaxEmptyReads,
		maxFrame: c.MaxFrameSize,
	}
}
