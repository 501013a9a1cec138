// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when no compatible device passed discovery
	// or every candidate failed its handshake.
	ErrDeviceNotFound = errors.New("signing device not found")

	// ErrPermissionDenied is returned when the host refused to open the device.
	ErrPermissionDenied = errors.New("permission denied opening device")

	// ErrWriteFailed is returned when a command could not be written to the link.
	ErrWriteFailed = errors.New("failed to write to device")

	// ErrReadTimeout is returned when no frame terminator arrived within the
	// transport's read budget.
	ErrReadTimeout = errors.New("timeout reading from device")

	// ErrDeviceDisconnected is returned when the link went away mid-exchange.
	ErrDeviceDisconnected = errors.New("device disconnected")

	// ErrMalformedResponse is returned when a reply does not parse.
	ErrMalformedResponse = errors.New("malformed device response")

	// ErrFrameTooLarge is returned when a reply outgrows the frame cap
	// without a terminator.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrMalformedResponse)

	// ErrDeviceReported matches every *DeviceError.
	ErrDeviceReported = errors.New("device reported an error")

	// ErrProtocolViolation is returned when the device answered with a reply
	// kind that does not belong to the command.
	ErrProtocolViolation = errors.New("unexpected response from device")

	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = errors.New("hardware wallet not connected")

	// ErrInvalidSignatureLength is returned when a signature reply has the
	// wrong size.
	ErrInvalidSignatureLength = errors.New("invalid signature length")

	// ErrInvalidAddress is returned when the device public key fails validation.
	ErrInvalidAddress = errors.New("invalid public key address")

	// ErrBridgeClosed is returned by calls submitted to a stopped bridge.
	ErrBridgeClosed = errors.New("usb bridge closed")

	// ErrWalletUnavailable is the signer-level error for a missing key backend.
	ErrWalletUnavailable = errors.New("wallet not available")

	// ErrSigningFailed is the signer-level error for a failed signature.
	ErrSigningFailed = errors.New("signing failed")
)

// DeviceError carries the message of a well-formed ERROR: reply.
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string {
	return "device error: " + e.Message
}

// Is makes errors.Is(err, ErrDeviceReported) true for any DeviceError.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceReported
}

// MalformedResponseError keeps the raw reply text for diagnostics.
type MalformedResponseError struct {
	Raw    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (raw %q)", ErrMalformedResponse, e.Reason, e.Raw)
	}
	return fmt.Sprintf("%s: %q", ErrMalformedResponse, e.Raw)
}

func (e *MalformedResponseError) Unwrap() error {
	return ErrMalformedResponse
}
