// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// SignatureLength is the size of an ed25519 signature returned by the device.
const SignatureLength = 64

// ConnectionState is the lifecycle state of a HardwareWallet.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// ValidateAddress checks that addr is non-empty base58 text.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if _, err := base58.Decode(addr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	return nil
}

// Option configures a HardwareWallet.
type Option func(*HardwareWallet)

// WithLogger replaces the package logger for this wallet.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(w *HardwareWallet) { w.log = logger }
}

// WithAddressValidator replaces ValidateAddress for the connect handshake.
func WithAddressValidator(validate func(string) error) Option {
	return func(w *HardwareWallet) { w.validateAddress = validate }
}

// WithSignatureLength sets the signature size accepted from the device.
func WithSignatureLength(n int) Option {
	return func(w *HardwareWallet) { w.signatureLength = n }
}

// HardwareWallet owns the link to one signing device and its cached public
// key. It is created once per session and may be connected and disconnected
// any number of times.
type HardwareWallet struct {
	admin           DeviceAdmin
	validateAddress func(string) error
	signatureLength int
	log             *zap.SugaredLogger

	// Two locks, as with any slow device: commsLock gives exclusive use of the
	// link for a whole exchange and may be waited on with a context; stateLock
	// protects the fields below and is never held across I/O. commsLock is
	// always taken first, and the fields below only change while it is held.
	commsLock *semaphore.Weighted
	stateLock sync.RWMutex

	state      ConnectionState
	transport  Transport
	pubkey     string
	descriptor DeviceDescriptor
}

// NewHardwareWallet returns a disconnected wallet that finds devices via admin.
func NewHardwareWallet(admin DeviceAdmin, opts ...Option) *HardwareWallet {
	w := &HardwareWallet{
		admin:           admin,
		validateAddress: ValidateAddress,
		signatureLength: SignatureLength,
		log:             log,
		commsLock:       semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Connect finds a device, performs the public key handshake and installs the
// link. Candidates are tried in discovery order and the first one to
// complete the handshake wins. A wallet that is already connected drops its
// link first. On failure the wallet is left disconnected.
func (w *HardwareWallet) Connect(ctx context.Context) error {
	if err := w.commsLock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.commsLock.Release(1)

	w.stateLock.Lock()
	old := w.transport
	w.transport, w.pubkey, w.descriptor = nil, "", DeviceDescriptor{}
	w.state = StateConnecting
	w.stateLock.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			w.log.Debugf("closing previous link: %v", err)
		}
	}

	transport, desc, pubkey, err := w.handshake()

	w.stateLock.Lock()
	defer w.stateLock.Unlock()

	if err != nil {
		w.state = StateDisconnected
		return err
	}
	w.transport, w.pubkey, w.descriptor = transport, pubkey, desc
	w.state = StateConnected
	w.log.Infow("hardware wallet connected", "device", desc.Path, "chip", desc.Name, "pubkey", pubkey)
	return nil
}

func (w *HardwareWallet) handshake() (Transport, DeviceDescriptor, string, error) {
	devices, err := w.admin.ListDevices()
	if err != nil {
		return nil, DeviceDescriptor{}, "", fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}
	if len(devices) == 0 {
		return nil, DeviceDescriptor{}, "", ErrDeviceNotFound
	}

	var failures error
	for _, desc := range devices {
		transport, pubkey, err := w.tryCandidate(desc)
		if err != nil {
			w.log.Warnw("candidate device failed", "device", desc.Path, "err", err)
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", desc.Path, err))
			continue
		}
		return transport, desc, pubkey, nil
	}
	return nil, DeviceDescriptor{}, "", fmt.Errorf("%w: %w", ErrDeviceNotFound, failures)
}

func (w *HardwareWallet) tryCandidate(desc DeviceDescriptor) (Transport, string, error) {
	transport, err := w.admin.Open(desc)
	if err != nil {
		return nil, "", err
	}
	resp, err := exchange(transport, GetPubkey())
	if err == nil {
		err = w.validateAddress(resp.Text)
	}
	if err != nil {
		return nil, "", multierr.Append(err, transport.Close())
	}
	return transport, resp.Text, nil
}

// exchange runs one command and checks the reply kind against it.
func exchange(transport Transport, cmd Command) (Response, error) {
	frame, err := EncodeCommand(cmd)
	if err != nil {
		return Response{}, err
	}
	raw, err := transport.SendAndReceive(frame)
	if err != nil {
		return Response{}, err
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		return Response{}, err
	}
	if resp.Kind == RespError {
		return Response{}, &DeviceError{Message: resp.Text}
	}
	if resp.Kind != cmd.Expects() {
		return Response{}, fmt.Errorf("%w: %s reply to %s", ErrProtocolViolation, resp.Kind, cmd.Kind)
	}
	return resp, nil
}

// Disconnect drops the link and the cached key. It waits for an exchange in
// flight to finish and is a no-op on a disconnected wallet.
func (w *HardwareWallet) Disconnect(ctx context.Context) error {
	if err := w.commsLock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.commsLock.Release(1)

	w.stateLock.Lock()
	transport := w.transport
	w.transport, w.pubkey, w.descriptor = nil, "", DeviceDescriptor{}
	w.state = StateDisconnected
	w.stateLock.Unlock()

	if transport == nil {
		return nil
	}
	w.log.Info("hardware wallet disconnected")
	return transport.Close()
}

// IsConnected reports whether a link and a cached key are installed.
func (w *HardwareWallet) IsConnected() bool {
	return w.State() == StateConnected
}

// State returns the current lifecycle state.
func (w *HardwareWallet) State() ConnectionState {
	w.stateLock.RLock() // No device communication, state lock is enough
	defer w.stateLock.RUnlock()
	return w.state
}

// Descriptor returns the connected device, if any.
func (w *HardwareWallet) Descriptor() (DeviceDescriptor, bool) {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.descriptor, w.state == StateConnected
}

// PublicKey returns the key cached at connect time. It never touches the link.
func (w *HardwareWallet) PublicKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()

	if w.state != StateConnected {
		return "", ErrNotConnected
	}
	return w.pubkey, nil
}

// SignMessage asks the device to sign message. Concurrent calls queue on the
// link; ctx only bounds the wait for it; an exchange in flight runs until the
// transport's read budget ends.
func (w *HardwareWallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := w.commsLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer w.commsLock.Release(1)

	w.stateLock.RLock()
	transport := w.transport
	w.stateLock.RUnlock()

	if transport == nil {
		return nil, ErrNotConnected
	}

	resp, err := exchange(transport, SignMessage(message))
	if err != nil {
		w.log.Debugw("sign request failed", "err", err)
		return nil, err
	}
	if len(resp.Signature) != w.signatureLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignatureLength, len(resp.Signature), w.signatureLength)
	}
	return resp.Signature, nil
}

// CheckDevicePresence reports whether a compatible device is plugged in.
func (w *HardwareWallet) CheckDevicePresence() bool {
	return w.admin.CheckDevicePresence()
}

// isNotConnected reports whether err means the wallet has no live link.
func isNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
