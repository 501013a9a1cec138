// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// USBHost is a native USB stack that owns at most one open device. Every
// method must be called from the bridge thread; the device handle never
// leaves the implementation.
type USBHost interface {
	Scan() ([]DeviceDescriptor, error)
	Connect(desc DeviceDescriptor, baudRate int) error
	Write(p []byte) (int, error)
	// Read waits up to timeout for data and returns (0, nil) if none came.
	Read(p []byte, timeout time.Duration) (int, error)
	// Reset drops input that arrived outside an exchange.
	Reset() error
	Disconnect() error
}

// BridgeAdmin is a DeviceAdmin that reaches devices through a USBHost driven
// on a Bridge.
type BridgeAdmin struct {
	bridge *Bridge
	host   USBHost
	cfg    Config
}

// NewBridgeAdmin wraps host. The admin owns bridge and stops it on Close.
func NewBridgeAdmin(bridge *Bridge, host USBHost, cfg Config) *BridgeAdmin {
	return &BridgeAdmin{bridge: bridge, host: host, cfg: cfg}
}

// ListDevices scans on the bridge thread and keeps allow-listed devices.
func (admin *BridgeAdmin) ListDevices() ([]DeviceDescriptor, error) {
	found, err := bridgeCall(context.Background(), admin.bridge, admin.host.Scan)
	if err != nil {
		return nil, fmt.Errorf("usb scan: %w", err)
	}
	var devices []DeviceDescriptor
	for _, d := range found {
		name, ok := ChipsetName(d.VendorID, d.ProductID)
		if !ok {
			continue
		}
		if d.Name == "" {
			d.Name = name
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// CheckDevicePresence reports whether a compatible device is attached.
func (admin *BridgeAdmin) CheckDevicePresence() bool {
	devices, err := admin.ListDevices()
	if err != nil {
		log.Debugf("device presence check failed: %v", err)
		return false
	}
	return len(devices) > 0
}

// Open connects the host to desc on the bridge thread.
func (admin *BridgeAdmin) Open(desc DeviceDescriptor) (Transport, error) {
	err := admin.bridge.Do(context.Background(), func() error {
		return admin.host.Connect(desc, admin.cfg.BaudRate)
	})
	if err != nil {
		return nil, fmt.Errorf("usb connect %s: %w", desc.Path, err)
	}
	return &bridgeTransport{
		bridge: admin.bridge,
		host:   admin.host,
		path:   desc.Path,
		limits: admin.cfg.frameLimits(),
	}, nil
}

// Close stops the bridge thread.
func (admin *BridgeAdmin) Close() error {
	return admin.bridge.Close()
}

// bridgeTransport runs each exchange as a single task on the bridge thread.
type bridgeTransport struct {
	bridge *Bridge
	host   USBHost
	path   string
	limits frameLimits

	mu     sync.Mutex
	closed bool
}

func (t *bridgeTransport) SendAndReceive(command []byte) ([]byte, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrDeviceDisconnected
	}
	if len(command) == 0 || command[len(command)-1] != FrameTerminator {
		return nil, errors.New("command must be a terminated frame")
	}

	log.Debugf("[USB] => %q", command)
	response, err := bridgeCall(context.Background(), t.bridge, func() ([]byte, error) {
		if err := t.host.Reset(); err != nil {
			return nil, err
		}
		if err := writeFull(hostWriter{t.host}, command); err != nil {
			return nil, err
		}
		return readFrame(hostReader{host: t.host, slice: t.limits.slice}, t.limits)
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("[USB] <= %q", response)
	return response, nil
}

func (t *bridgeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	err := t.bridge.Do(context.Background(), t.host.Disconnect)
	if errors.Is(err, ErrBridgeClosed) {
		return nil
	}
	return err
}

type hostWriter struct{ host USBHost }

func (w hostWriter) Write(p []byte) (int, error) { return w.host.Write(p) }

type hostReader struct {
	host  USBHost
	slice time.Duration
}

func (r hostReader) Read(p []byte) (int, error) { return r.host.Read(p, r.slice) }
