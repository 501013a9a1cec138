//go:build hwsigner_mock
// +build hwsigner_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"context"
	"errors"
)

// MockAdmin exposes one simulated device that signs with an in-process key.
type MockAdmin struct {
	signer *SoftwareSigner
}

// MockDevice answers protocol frames the way the firmware does.
type MockDevice struct {
	signer *SoftwareSigner
	closed bool
}

func NewDeviceAdmin(cfg Config) (DeviceAdmin, error) {
	signer, err := GenerateSoftwareSigner()
	if err != nil {
		return nil, err
	}
	return &MockAdmin{signer: signer}, nil
}

func (admin *MockAdmin) ListDevices() ([]DeviceDescriptor, error) {
	return []DeviceDescriptor{{Path: "mock", VendorID: 0x303a, ProductID: 0x1001, Name: "mock"}}, nil
}

func (admin *MockAdmin) CheckDevicePresence() bool {
	return true
}

func (admin *MockAdmin) Open(desc DeviceDescriptor) (Transport, error) {
	if desc.Path != "mock" {
		return nil, errors.New("device not found")
	}
	return &MockDevice{signer: admin.signer}, nil
}

func (device *MockDevice) SendAndReceive(command []byte) ([]byte, error) {
	if device.closed {
		return nil, ErrDeviceDisconnected
	}
	cmd, err := DecodeCommand(command)
	if err != nil {
		return EncodeResponse(Response{Kind: RespError, Text: err.Error()})
	}
	ctx := context.Background()
	switch cmd.Kind {
	case CmdGetPubkey:
		pubkey, _ := device.signer.PublicKey(ctx)
		return EncodeResponse(Response{Kind: RespPubkey, Text: pubkey})
	default:
		sig, err := device.signer.SignMessage(ctx, cmd.Payload)
		if err != nil {
			return EncodeResponse(Response{Kind: RespError, Text: err.Error()})
		}
		return EncodeResponse(Response{Kind: RespSignature, Signature: sig})
	}
}

func (device *MockDevice) Close() error {
	device.closed = true
	return nil
}
