// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// Signer is what transaction-building code needs from a key backend.
type Signer interface {
	// PublicKey returns the base58 address of the signing key.
	PublicKey(ctx context.Context) (string, error)

	// SignMessage returns a signature over message.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

var (
	_ Signer = (*SoftwareSigner)(nil)
	_ Signer = (*HardwareSigner)(nil)
)

// SoftwareSigner holds an ed25519 key in process memory.
type SoftwareSigner struct {
	key ed25519.PrivateKey
}

// NewSoftwareSigner wraps a 64 byte ed25519 private key.
func NewSoftwareSigner(key ed25519.PrivateKey) (*SoftwareSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrWalletUnavailable, ed25519.PrivateKeySize, len(key))
	}
	return &SoftwareSigner{key: key}, nil
}

// GenerateSoftwareSigner creates a signer with a fresh random key.
func GenerateSoftwareSigner() (*SoftwareSigner, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &SoftwareSigner{key: key}, nil
}

// NewSoftwareSignerFromBase58 accepts a base58 encoded 64 byte keypair or a
// 32 byte seed.
func NewSoftwareSignerFromBase58(secret string) (*SoftwareSigner, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: decode secret: %v", ErrWalletUnavailable, err)
	}
	return signerFromBytes(raw)
}

// NewSoftwareSignerFromKeypairFile reads a keypair file holding a JSON array
// of 64 byte values (secret seed followed by public key).
func NewSoftwareSignerFromKeypairFile(path string) (*SoftwareSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: parse keypair file %s: %v", ErrWalletUnavailable, path, err)
	}
	raw := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: keypair file %s: value %d out of range", ErrWalletUnavailable, path, v)
		}
		raw[i] = byte(v)
	}
	return signerFromBytes(raw)
}

func signerFromBytes(raw []byte) (*SoftwareSigner, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return &SoftwareSigner{key: ed25519.NewKeyFromSeed(raw)}, nil
	case ed25519.PrivateKeySize:
		key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("%w: keypair public half does not match seed", ErrWalletUnavailable)
		}
		return &SoftwareSigner{key: key}, nil
	default:
		return nil, fmt.Errorf("%w: key must be %d or %d bytes, got %d", ErrWalletUnavailable, ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// WriteKeypairFile stores the key in the format NewSoftwareSignerFromKeypairFile reads.
func (s *SoftwareSigner) WriteKeypairFile(path string) error {
	values := make([]int, len(s.key))
	for i, b := range s.key {
		values[i] = int(b)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (s *SoftwareSigner) PublicKey(ctx context.Context) (string, error) {
	if s == nil || len(s.key) != ed25519.PrivateKeySize {
		return "", ErrWalletUnavailable
	}
	return base58.Encode(s.key.Public().(ed25519.PublicKey)), nil
}

func (s *SoftwareSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if s == nil || len(s.key) != ed25519.PrivateKeySize {
		return nil, ErrWalletUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return ed25519.Sign(s.key, message), nil
}

// HardwareSigner forwards to a shared HardwareWallet. It never connects on
// its own; the owner of the wallet manages the connection.
type HardwareSigner struct {
	wallet *HardwareWallet
}

// NewHardwareSigner wraps wallet.
func NewHardwareSigner(wallet *HardwareWallet) *HardwareSigner {
	return &HardwareSigner{wallet: wallet}
}

func (s *HardwareSigner) PublicKey(ctx context.Context) (string, error) {
	if s == nil || s.wallet == nil {
		return "", ErrWalletUnavailable
	}
	pubkey, err := s.wallet.PublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWalletUnavailable, err)
	}
	return pubkey, nil
}

func (s *HardwareSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if s == nil || s.wallet == nil {
		return nil, ErrWalletUnavailable
	}
	if !s.wallet.IsConnected() {
		return nil, fmt.Errorf("%w: %w", ErrWalletUnavailable, ErrNotConnected)
	}
	sig, err := s.wallet.SignMessage(ctx, message)
	switch {
	case err == nil:
		return sig, nil
	case isNotConnected(err):
		return nil, fmt.Errorf("%w: %w", ErrWalletUnavailable, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
}

// Verify checks sig over message against a base58 ed25519 public key.
func Verify(pubkey string, message, sig []byte) bool {
	raw, err := base58.Decode(pubkey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(raw), message, sig)
}
