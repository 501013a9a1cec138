// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zondax/hid"
)

// hidDevice is the part of *hid.Device the host uses.
type hidDevice interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

var (
	_ hidDevice = (*hid.Device)(nil)
	_ USBHost   = (*HIDHost)(nil)
)

// HIDHost is a USBHost for boards whose native USB (ESP32-S2/S3) exposes the
// line protocol as raw HID reports.
type HIDHost struct {
	device      hidDevice
	readCo      *sync.Once
	readChannel chan []byte
	quit        chan struct{}
	pending     []byte
}

// NewHIDHost returns a HID backed USBHost.
func NewHIDHost() (*HIDHost, error) {
	if !hid.Supported() {
		return nil, errors.New("hid: unsupported platform")
	}
	return &HIDHost{}, nil
}

func (h *HIDHost) Scan() ([]DeviceDescriptor, error) {
	devices := hid.Enumerate(0, 0)
	if len(devices) == 0 {
		log.Debug("No HID devices. Another program may have control of the device.")
	}

	var found []DeviceDescriptor
	for _, d := range devices {
		logDeviceInfo(d)
		if !IsCompatible(d.VendorID, d.ProductID) {
			continue
		}
		found = append(found, DeviceDescriptor{
			Path:         d.Path,
			VendorID:     d.VendorID,
			ProductID:    d.ProductID,
			Manufacturer: d.Manufacturer,
			Product:      d.Product,
			Serial:       d.Serial,
		})
	}
	return found, nil
}

func logDeviceInfo(d hid.DeviceInfo) {
	log.Debugf("============ %s", d.Path)
	log.Debugf("VendorID      : %x", d.VendorID)
	log.Debugf("ProductID     : %x", d.ProductID)
	log.Debugf("Release       : %x", d.Release)
	log.Debugf("Serial        : %s", d.Serial)
	log.Debugf("Manufacturer  : %s", d.Manufacturer)
	log.Debugf("Product       : %s", d.Product)
	log.Debugf("Interface     : %d", d.Interface)
}

// Connect opens the device at desc.Path. HID has no line settings, so
// baudRate is ignored.
func (h *HIDHost) Connect(desc DeviceDescriptor, baudRate int) error {
	if h.device != nil {
		return errors.New("hid host already connected")
	}
	for _, d := range hid.Enumerate(desc.VendorID, desc.ProductID) {
		if d.Path != desc.Path {
			continue
		}
		device, err := d.Open()
		if err != nil {
			return err
		}
		h.attach(device)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDeviceNotFound, desc.Path)
}

func (h *HIDHost) attach(device hidDevice) {
	h.device = device
	h.readCo = &sync.Once{}
	h.readChannel = make(chan []byte, 16)
	h.quit = make(chan struct{})
	h.pending = nil
}

func (h *HIDHost) Write(p []byte) (int, error) {
	if h.device == nil {
		return 0, ErrDeviceDisconnected
	}
	chunks, err := WrapReports(p, ReportSize)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, chunk := range chunks {
		if _, err := h.device.Write(chunk); err != nil {
			return written, err
		}
		written += int(chunk[0])
	}
	return written, nil
}

func (h *HIDHost) read() <-chan []byte {
	h.readCo.Do(func() {
		go h.readThread(h.device, h.readChannel, h.quit)
	})
	return h.readChannel
}

func (h *HIDHost) readThread(device hidDevice, out chan<- []byte, quit <-chan struct{}) {
	defer close(out)
	for {
		buffer := make([]byte, ReportSize)
		readBytes, err := device.Read(buffer)
		if err != nil {
			return
		}
		select {
		case out <- buffer[:readBytes]:
		case <-quit:
			return
		}
	}
}

// Read hands out bytes from pending reports, waiting up to timeout for the
// next report when none are buffered.
func (h *HIDHost) Read(p []byte, timeout time.Duration) (int, error) {
	if h.device == nil {
		return 0, ErrDeviceDisconnected
	}
	if len(h.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case report, ok := <-h.read():
			if !ok {
				return 0, fmt.Errorf("%w: read channel closed", ErrDeviceDisconnected)
			}
			payload, err := UnwrapReport(report)
			if err != nil {
				return 0, err
			}
			h.pending = append(h.pending, payload...)
		case <-timer.C:
			return 0, nil
		}
	}
	n := copy(p, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

// Reset discards buffered bytes and every report already queued by the
// reader, such as a late reply to an exchange that timed out.
func (h *HIDHost) Reset() error {
	h.pending = nil
	if h.device == nil {
		return nil
	}
	reports := h.read()
	for {
		select {
		case report, ok := <-reports:
			if !ok {
				return nil
			}
			log.Debugf("[USB] dropped stale report %x", report)
		default:
			return nil
		}
	}
}

func (h *HIDHost) Disconnect() error {
	if h.device == nil {
		return nil
	}
	close(h.quit)
	err := h.device.Close()
	h.device = nil
	h.pending = nil
	return err
}
