// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost is a USBHost that answers every complete line with reply, handing
// it out chunk bytes per Read.
type fakeHost struct {
	devices    []DeviceDescriptor
	scanErr    error
	connectErr error
	reply      string
	chunk      int

	connected   *DeviceDescriptor
	baud        int
	written     []byte
	pending     []byte
	resets      int
	disconnects int
}

func (h *fakeHost) Scan() ([]DeviceDescriptor, error) { return h.devices, h.scanErr }

func (h *fakeHost) Connect(desc DeviceDescriptor, baudRate int) error {
	if h.connectErr != nil {
		return h.connectErr
	}
	h.connected, h.baud = &desc, baudRate
	return nil
}

func (h *fakeHost) Write(p []byte) (int, error) {
	if h.connected == nil {
		return 0, ErrDeviceDisconnected
	}
	h.written = append(h.written, p...)
	if len(p) > 0 && p[len(p)-1] == FrameTerminator {
		h.pending = append(h.pending, h.reply...)
	}
	return len(p), nil
}

func (h *fakeHost) Read(p []byte, timeout time.Duration) (int, error) {
	if h.connected == nil {
		return 0, ErrDeviceDisconnected
	}
	if len(h.pending) == 0 {
		time.Sleep(timeout)
		return 0, nil
	}
	n := h.chunk
	if n <= 0 || n > len(h.pending) {
		n = len(h.pending)
	}
	n = copy(p, h.pending[:n])
	h.pending = h.pending[n:]
	return n, nil
}

func (h *fakeHost) Reset() error {
	h.pending = nil
	h.resets++
	return nil
}

func (h *fakeHost) Disconnect() error {
	h.connected = nil
	h.disconnects++
	return nil
}

func testUSBConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendUSB
	cfg.ReadSlice = Duration(time.Millisecond)
	cfg.MaxEmptyReads = 20
	return cfg
}

func TestBridgeAdminListDevices(t *testing.T) {
	host := &fakeHost{devices: []DeviceDescriptor{
		{Path: "hid-1", VendorID: 0x2c97, ProductID: 0x0001},
		{Path: "hid-2", VendorID: 0x303a, ProductID: 0x1001},
		{Path: "hid-3", VendorID: 0x10c4, ProductID: 0xea60, Name: "custom"},
	}}
	admin := NewBridgeAdmin(NewBridge(), host, testUSBConfig())
	defer admin.Close()

	devices, err := admin.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "hid-2", devices[0].Path)
	assert.Equal(t, "Espressif ESP32-S3 USB", devices[0].Name)
	assert.Equal(t, "custom", devices[1].Name)
	assert.True(t, admin.CheckDevicePresence())

	host.scanErr = errors.New("libusb busy")
	_, err = admin.ListDevices()
	assert.ErrorContains(t, err, "libusb busy")
	assert.False(t, admin.CheckDevicePresence())
}

func TestBridgeTransportExchange(t *testing.T) {
	host := &fakeHost{reply: "PUBKEY:ABC123\n", chunk: 3}
	admin := NewBridgeAdmin(NewBridge(), host, testUSBConfig())
	defer admin.Close()

	transport, err := admin.Open(DeviceDescriptor{Path: "hid-2"})
	require.NoError(t, err)
	require.NotNil(t, host.connected)
	assert.Equal(t, 115200, host.baud)

	reply, err := transport.SendAndReceive([]byte("GET_PUBKEY\n"))
	require.NoError(t, err)
	assert.Equal(t, "PUBKEY:ABC123\n", string(reply))
	assert.Equal(t, "GET_PUBKEY\n", string(host.written))

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.Equal(t, 1, host.disconnects)

	_, err = transport.SendAndReceive([]byte("GET_PUBKEY\n"))
	assert.ErrorIs(t, err, ErrDeviceDisconnected)
}

func TestBridgeTransportTimeout(t *testing.T) {
	host := &fakeHost{}
	admin := NewBridgeAdmin(NewBridge(), host, testUSBConfig())
	defer admin.Close()

	transport, err := admin.Open(DeviceDescriptor{Path: "hid-2"})
	require.NoError(t, err)

	_, err = transport.SendAndReceive([]byte("GET_PUBKEY\n"))
	assert.ErrorIs(t, err, ErrReadTimeout)

	_, err = transport.SendAndReceive([]byte("GET_PUBKEY"))
	assert.Error(t, err)
}

func TestBridgeTransportDropsStaleReply(t *testing.T) {
	host := &fakeHost{reply: "SIGNATURE:AQID\n", chunk: 5}
	admin := NewBridgeAdmin(NewBridge(), host, testUSBConfig())
	defer admin.Close()

	transport, err := admin.Open(DeviceDescriptor{Path: "hid-2"})
	require.NoError(t, err)

	// Late reply to an exchange that already timed out.
	host.pending = []byte("SIGNATURE:c3RhbGU=\n")

	reply, err := transport.SendAndReceive([]byte("SIGN:aGVsbG8=\n"))
	require.NoError(t, err)
	assert.Equal(t, "SIGNATURE:AQID\n", string(reply))
	assert.Equal(t, 1, host.resets)
}

func TestBridgeAdminOpenFailure(t *testing.T) {
	host := &fakeHost{connectErr: ErrPermissionDenied}
	admin := NewBridgeAdmin(NewBridge(), host, testUSBConfig())
	defer admin.Close()

	_, err := admin.Open(DeviceDescriptor{Path: "hid-2"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestBridgeTransportCloseAfterBridgeStops(t *testing.T) {
	host := &fakeHost{}
	admin := NewBridgeAdmin(NewBridge(), host, testUSBConfig())

	transport, err := admin.Open(DeviceDescriptor{Path: "hid-2"})
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	assert.NoError(t, transport.Close())
}

func TestWalletOverBridge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	device, err := GenerateSoftwareSigner()
	require.NoError(t, err)
	pubkey, _ := device.PublicKey(ctx)

	host := &fakeHost{
		devices: []DeviceDescriptor{{Path: "hid-2", VendorID: 0x303a, ProductID: 0x1001}},
		reply:   "PUBKEY:" + pubkey + "\n",
		chunk:   7,
	}
	admin := NewBridgeAdmin(NewBridge(), host, testUSBConfig())
	defer admin.Close()

	wallet := NewHardwareWallet(admin)
	require.NoError(t, wallet.Connect(ctx))

	got, err := wallet.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, pubkey, got)

	require.NoError(t, wallet.Disconnect(ctx))
	assert.Equal(t, 1, host.disconnects)
}
