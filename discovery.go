// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"fmt"
	"strconv"

	"go.bug.st/serial/enumerator"
)

// SupportedDevice is one USB bridge chip known to ship on compatible boards.
type SupportedDevice struct {
	VendorID  uint16
	ProductID uint16
	Name      string
}

// SupportedDevices is the vendor:product allow-list shared by every backend.
var SupportedDevices = []SupportedDevice{
	{0x0403, 0x6001, "FTDI FT232R"},
	{0x0403, 0x6010, "FTDI FT2232"},
	{0x0403, 0x6011, "FTDI FT4232"},
	{0x0403, 0x6014, "FTDI FT232H"},
	{0x0403, 0x6015, "FTDI FT-X"},
	{0x10c4, 0xea60, "Silicon Labs CP210x"},
	{0x10c4, 0xea70, "Silicon Labs CP2105"},
	{0x10c4, 0xea71, "Silicon Labs CP2108"},
	{0x1a86, 0x7523, "WinChipHead CH340"},
	{0x1a86, 0x5523, "WinChipHead CH341"},
	{0x303a, 0x1001, "Espressif ESP32-S3 USB"},
	{0x303a, 0x0002, "Espressif ESP32-S2 USB"},
}

var supportedDeviceNames = func() map[[2]uint16]string {
	m := make(map[[2]uint16]string, len(SupportedDevices))
	for _, d := range SupportedDevices {
		m[[2]uint16{d.VendorID, d.ProductID}] = d.Name
	}
	return m
}()

// IsCompatible reports whether vendor:product is on the allow-list.
func IsCompatible(vendorID, productID uint16) bool {
	_, ok := supportedDeviceNames[[2]uint16{vendorID, productID}]
	return ok
}

// ChipsetName returns the allow-list name for vendor:product.
func ChipsetName(vendorID, productID uint16) (string, bool) {
	name, ok := supportedDeviceNames[[2]uint16{vendorID, productID}]
	return name, ok
}

// SerialAdmin finds signing devices among the host's serial ports and opens
// them as SerialTransports.
type SerialAdmin struct {
	cfg       Config
	listPorts func() ([]*enumerator.PortDetails, error)
	open      func(path string, cfg Config) (Transport, error)
}

// NewSerialAdmin returns a DeviceAdmin for USB-serial devices.
func NewSerialAdmin(cfg Config) *SerialAdmin {
	return &SerialAdmin{
		cfg:       cfg,
		listPorts: enumerator.GetDetailedPortsList,
		open: func(path string, cfg Config) (Transport, error) {
			return OpenSerial(path, cfg)
		},
	}
}

// ListDevices returns compatible ports in enumeration order. It never keeps a
// port open. A configured Port is returned on its own, even when enumeration
// fails or does not list it.
func (admin *SerialAdmin) ListDevices() ([]DeviceDescriptor, error) {
	ports, err := admin.listPorts()
	if admin.cfg.Port != "" {
		if err != nil {
			log.Debugf("enumeration failed, using configured port %s: %v", admin.cfg.Port, err)
		}
		desc, _ := admin.explicitPort(ports)
		return []DeviceDescriptor{desc}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var devices []DeviceDescriptor
	for _, p := range ports {
		logPortInfo(p)
		desc, ok := describePort(p)
		if !ok {
			continue
		}
		devices = append(devices, desc)
	}
	if len(devices) == 0 {
		log.Debug("No compatible devices. Check the cable and that no other program holds the port.")
	}
	return devices, nil
}

// explicitPort describes the configured port. found is false when the port
// was not enumerated and the descriptor carries only the path.
func (admin *SerialAdmin) explicitPort(ports []*enumerator.PortDetails) (desc DeviceDescriptor, found bool) {
	for _, p := range ports {
		if p.Name != admin.cfg.Port {
			continue
		}
		vid, pid, _ := parseUSBIDs(p)
		name, _ := ChipsetName(vid, pid)
		return DeviceDescriptor{Path: p.Name, VendorID: vid, ProductID: pid, Name: name, Product: p.Product, Serial: p.SerialNumber}, true
	}
	return DeviceDescriptor{Path: admin.cfg.Port, Name: "configured port"}, false
}

// CheckDevicePresence reports whether a device is plugged in: the configured
// Port if one is set, otherwise any compatible port. Enumeration failures
// count as absent.
func (admin *SerialAdmin) CheckDevicePresence() bool {
	ports, err := admin.listPorts()
	if err != nil {
		log.Debugf("device presence check failed: %v", err)
		return false
	}
	if admin.cfg.Port != "" {
		_, found := admin.explicitPort(ports)
		return found
	}
	for _, p := range ports {
		if _, ok := describePort(p); ok {
			return true
		}
	}
	return false
}

// Open opens a Transport to desc.
func (admin *SerialAdmin) Open(desc DeviceDescriptor) (Transport, error) {
	return admin.open(desc.Path, admin.cfg)
}

func describePort(p *enumerator.PortDetails) (DeviceDescriptor, bool) {
	if !p.IsUSB {
		return DeviceDescriptor{}, false
	}
	vid, pid, err := parseUSBIDs(p)
	if err != nil {
		log.Debugf("skipping %s: %v", p.Name, err)
		return DeviceDescriptor{}, false
	}
	name, ok := ChipsetName(vid, pid)
	if !ok {
		return DeviceDescriptor{}, false
	}
	return DeviceDescriptor{
		Path:      p.Name,
		VendorID:  vid,
		ProductID: pid,
		Name:      name,
		Product:   p.Product,
		Serial:    p.SerialNumber,
	}, true
}

func parseUSBIDs(p *enumerator.PortDetails) (uint16, uint16, error) {
	vid, err := strconv.ParseUint(p.VID, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad vendor id %q", p.VID)
	}
	pid, err := strconv.ParseUint(p.PID, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad product id %q", p.PID)
	}
	return uint16(vid), uint16(pid), nil
}

func logPortInfo(p *enumerator.PortDetails) {
	log.Debugf("============ %s", p.Name)
	log.Debugf("IsUSB         : %v", p.IsUSB)
	log.Debugf("VendorID      : %s", p.VID)
	log.Debugf("ProductID     : %s", p.PID)
	log.Debugf("Serial        : %s", p.SerialNumber)
	log.Debugf("Product       : %s", p.Product)
}
