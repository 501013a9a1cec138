// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.bug.st/serial"
)

// serialPort is the part of serial.Port the transport uses.
type serialPort interface {
	io.ReadWriteCloser
	Drain() error
	ResetInputBuffer() error
}

// SerialTransport is a Transport over a USB-serial port.
type SerialTransport struct {
	port   serialPort
	path   string
	limits frameLimits

	closeOnce sync.Once
	closeErr  error
}

// OpenSerial opens path as 8N1 at the configured baud rate.
func OpenSerial(path string, cfg Config) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	if err := port.SetReadTimeout(time.Duration(cfg.ReadSlice)); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	log.Debugf("opened serial port %s at %d baud", path, cfg.BaudRate)
	return newSerialTransport(port, path, cfg.frameLimits()), nil
}

func newSerialTransport(port serialPort, path string, limits frameLimits) *SerialTransport {
	return &SerialTransport{port: port, path: path, limits: limits}
}

func classifyOpenError(path string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, path, err)
	}
	var portErrValue serial.PortError
	if errors.As(err, &portErrValue) && portErrValue.Code() == serial.PermissionDenied {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, path, err)
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, path, err)
	}
	return fmt.Errorf("open %s: %w", path, err)
}

// SendAndReceive writes one command frame and blocks for one reply frame.
func (t *SerialTransport) SendAndReceive(command []byte) ([]byte, error) {
	if len(command) == 0 || command[len(command)-1] != FrameTerminator {
		return nil, errors.New("command must be a terminated frame")
	}

	log.Debugf("[SERIAL] => %q", command)

	// Drop bytes left over from an exchange a caller abandoned.
	if err := t.port.ResetInputBuffer(); err != nil {
		log.Debugf("reset input buffer on %s: %v", t.path, err)
	}
	if err := writeFull(t.port, command); err != nil {
		return nil, err
	}
	if err := t.port.Drain(); err != nil {
		return nil, fmt.Errorf("%w: drain: %v", ErrWriteFailed, err)
	}

	response, err := readFrame(t.port, t.limits)
	if err != nil {
		return nil, err
	}

	log.Debugf("[SERIAL] <= %q", response)
	return response, nil
}

// Close releases the port. Calling it more than once is safe.
func (t *SerialTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.port.Close()
		log.Debugf("closed serial port %s", t.path)
	})
	return t.closeErr
}
