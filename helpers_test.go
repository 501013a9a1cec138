// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// stubTransport answers frames from a script or a responder and records
// every write.
type stubTransport struct {
	mu      sync.Mutex
	replies []string
	respond func(command []byte) ([]byte, error)
	writes  [][]byte
	closed  int

	delay      time.Duration
	inFlight   atomic.Int32
	overlapped atomic.Bool
}

func (s *stubTransport) SendAndReceive(command []byte) ([]byte, error) {
	if s.inFlight.Add(1) > 1 {
		s.overlapped.Store(true)
	}
	defer s.inFlight.Add(-1)

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes = append(s.writes, append([]byte(nil), command...))
	if s.respond != nil {
		return s.respond(command)
	}
	if len(s.replies) == 0 {
		return nil, ErrReadTimeout
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return []byte(reply), nil
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubTransport) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubTransport) recordedWrites() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

// simulatedDevice answers like the firmware, signing with signer.
func simulatedDevice(signer *SoftwareSigner) func([]byte) ([]byte, error) {
	return func(command []byte) ([]byte, error) {
		cmd, err := DecodeCommand(command)
		if err != nil {
			return EncodeResponse(Response{Kind: RespError, Text: err.Error()})
		}
		ctx := context.Background()
		if cmd.Kind == CmdGetPubkey {
			pubkey, _ := signer.PublicKey(ctx)
			return EncodeResponse(Response{Kind: RespPubkey, Text: pubkey})
		}
		sig, _ := signer.SignMessage(ctx, cmd.Payload)
		return EncodeResponse(Response{Kind: RespSignature, Signature: sig})
	}
}

// stubAdmin hands out transports per device path.
type stubAdmin struct {
	mu      sync.Mutex
	devices []DeviceDescriptor
	listErr error
	open    func(desc DeviceDescriptor) (Transport, error)
	opened  []string
}

func (a *stubAdmin) ListDevices() ([]DeviceDescriptor, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.devices, nil
}

func (a *stubAdmin) CheckDevicePresence() bool {
	devices, err := a.ListDevices()
	return err == nil && len(devices) > 0
}

func (a *stubAdmin) Open(desc DeviceDescriptor) (Transport, error) {
	a.mu.Lock()
	a.opened = append(a.opened, desc.Path)
	a.mu.Unlock()
	if a.open == nil {
		return nil, errors.New("no transport")
	}
	return a.open(desc)
}

// singleDeviceAdmin serves one device backed by transport.
func singleDeviceAdmin(transport *stubTransport) *stubAdmin {
	return &stubAdmin{
		devices: []DeviceDescriptor{{Path: "/dev/ttyUSB0", VendorID: 0x10c4, ProductID: 0xea60, Name: "Silicon Labs CP210x"}},
		open: func(DeviceDescriptor) (Transport, error) {
			return transport, nil
		},
	}
}

// fakePort is a serialPort driven by a read function.
type fakePort struct {
	mu      sync.Mutex
	read    func(p []byte) (int, error)
	written []byte
	writeFn func(p []byte) (int, error)
	drained int
	resets  int
	closed  int
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeFn != nil {
		return p.writeFn(b)
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Drain() error            { p.drained++; return nil }
func (p *fakePort) ResetInputBuffer() error { p.resets++; return nil }
func (p *fakePort) Close() error            { p.closed++; return nil }

// scriptedReader returns data one byte per call, then polls empty with a
// short sleep, like a serial port with a read timeout.
func scriptedReader(data string, slice time.Duration) func([]byte) (int, error) {
	var (
		mu  sync.Mutex
		pos int
	)
	return func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		if pos >= len(data) {
			time.Sleep(slice)
			return 0, nil
		}
		p[0] = data[pos]
		pos++
		return 1, nil
	}
}

func testLimits() frameLimits {
	return frameLimits{slice: time.Millisecond, maxEmpty: 20, maxFrame: 1024}
}
