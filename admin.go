//go:build !hwsigner_mock
// +build !hwsigner_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwsigner

import "fmt"

// NewDeviceAdmin returns the DeviceAdmin for cfg.Backend. A BridgeAdmin must
// be closed by the caller to stop its bridge thread.
func NewDeviceAdmin(cfg Config) (DeviceAdmin, error) {
	switch cfg.Backend {
	case BackendSerial, "":
		return NewSerialAdmin(cfg), nil
	case BackendUSB:
		host, err := NewHIDHost()
		if err != nil {
			return nil, err
		}
		return NewBridgeAdmin(NewBridge(), host, cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
