// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

// Package hwsigner talks to an ESP32-class signing device over a serial or
// USB link using a newline-framed text protocol, and exposes it, next to an
// in-process key, behind a single Signer interface.
package hwsigner

import "fmt"

// DeviceAdmin defines the interface for finding and opening signing devices.
type DeviceAdmin interface {
	ListDevices() ([]DeviceDescriptor, error)
	CheckDevicePresence() bool
	Open(desc DeviceDescriptor) (Transport, error)
}

// Transport defines the interface for exchanging frames with an open device.
// Only one SendAndReceive may be in flight at a time; the owner serializes.
type Transport interface {
	SendAndReceive(command []byte) ([]byte, error)
	Close() error
}

// DeviceDescriptor identifies a candidate device found during discovery.
type DeviceDescriptor struct {
	Path         string // serial port name or USB device path
	VendorID     uint16
	ProductID    uint16
	Name         string // chipset family from the allow-list
	Manufacturer string
	Product      string
	Serial       string
}

func (d DeviceDescriptor) String() string {
	return fmt.Sprintf("%s (%04x:%04x %s)", d.Path, d.VendorID, d.ProductID, d.Name)
}
