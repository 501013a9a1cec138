// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

// frameLimits bounds one framed read.
type frameLimits struct {
	slice    time.Duration // wait per poll
	maxEmpty int           // consecutive empty or failed polls before giving up
	maxFrame int           // bytes accepted without a terminator
}

func defaultFrameLimits() frameLimits {
	return DefaultConfig().frameLimits()
}

// writeFull writes all of buffer, looping over short writes.
func writeFull(w io.Writer, buffer []byte) error {
	totalBytes := len(buffer)
	totalWrittenBytes := 0
	for totalBytes > totalWrittenBytes {
		writtenBytes, err := w.Write(buffer[totalWrittenBytes:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		if writtenBytes == 0 {
			return fmt.Errorf("%w: %v", ErrWriteFailed, io.ErrShortWrite)
		}
		totalWrittenBytes += writtenBytes
	}
	return nil
}

// readFrame reads one byte at a time from r until the frame terminator.
// r must return (0, nil) when a poll slice elapses without data, which is what
// a serial port with a read timeout does. The returned frame includes the
// terminator.
func readFrame(r io.Reader, limits frameLimits) ([]byte, error) {
	var (
		response []byte
		buffer   = make([]byte, 1)
		empty    int
	)
	for {
		readBytes, err := r.Read(buffer)
		if err != nil {
			if isUnplugError(err) {
				return nil, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
			}
			empty++
			if empty >= limits.maxEmpty {
				return nil, fmt.Errorf("%w: %v", ErrReadTimeout, err)
			}
			log.Debugf("read failed, retrying: %v", err)
			time.Sleep(limits.slice)
			continue
		}
		if readBytes == 0 {
			empty++
			if empty >= limits.maxEmpty {
				return nil, fmt.Errorf("%w after %d polls", ErrReadTimeout, empty)
			}
			continue
		}
		empty = 0

		response = append(response, buffer[0])
		if buffer[0] == FrameTerminator {
			return response, nil
		}
		if len(response) > limits.maxFrame {
			return nil, fmt.Errorf("%w: %d bytes without terminator", ErrFrameTooLarge, len(response))
		}
	}
}

// isUnplugError reports whether err means the link is gone for good, in which
// case waiting out the read budget is pointless.
func isUnplugError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, ErrDeviceDisconnected) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}
	var portErrValue serial.PortError
	if errors.As(err, &portErrValue) {
		return portErrValue.Code() == serial.PortClosed
	}
	return false
}
