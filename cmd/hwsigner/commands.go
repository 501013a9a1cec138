// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v3"

	hwsigner "github.com/luxfi/hwsigner-go"
)

// DevicesCommand lists compatible devices
func DevicesCommand() *cli.Command {
	return &cli.Command{
		Name:   "devices",
		Usage:  "List compatible signing devices",
		Action: runDevicesCommand,
	}
}

func runDevicesCommand(ctx context.Context, cmd *cli.Command) error {
	admin, release, err := newAdmin(cmd)
	if err != nil {
		return err
	}
	defer release()

	devices, err := admin.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(cmd.Root().Writer, "No compatible devices found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tVID:PID\tCHIP\tPRODUCT\tSERIAL")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%04x:%04x\t%s\t%s\t%s\n", d.Path, d.VendorID, d.ProductID, d.Name, d.Product, d.Serial)
	}
	return w.Flush()
}

// CheckCommand reports whether a device is plugged in
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Check whether a compatible device is plugged in",
		Action: runCheckCommand,
	}
}

func runCheckCommand(ctx context.Context, cmd *cli.Command) error {
	admin, release, err := newAdmin(cmd)
	if err != nil {
		return err
	}
	defer release()

	if !admin.CheckDevicePresence() {
		return cli.Exit("no compatible device found", 1)
	}
	fmt.Fprintln(cmd.Root().Writer, "device present")
	return nil
}

// PubkeyCommand prints the device public key
func PubkeyCommand() *cli.Command {
	return &cli.Command{
		Name:   "pubkey",
		Usage:  "Connect and print the device public key",
		Action: runPubkeyCommand,
	}
}

func runPubkeyCommand(ctx context.Context, cmd *cli.Command) error {
	return withWallet(ctx, cmd, func(wallet *hwsigner.HardwareWallet) error {
		return printPubkey(ctx, cmd, hwsigner.NewHardwareSigner(wallet))
	})
}

func printPubkey(ctx context.Context, cmd *cli.Command, signer hwsigner.Signer) error {
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, pubkey)
	return nil
}

func messageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "message",
			Usage: "Message text to sign",
		},
		&cli.StringFlag{
			Name:  "hex",
			Usage: "Hex-encoded message bytes to sign",
		},
		&cli.BoolFlag{
			Name:  "verify",
			Usage: "Verify the signature against the signer public key",
		},
	}
}

func messageFromFlags(cmd *cli.Command) ([]byte, error) {
	text := cmd.String("message")
	hexMsg := cmd.String("hex")

	if text == "" && hexMsg == "" {
		return nil, fmt.Errorf("either --message or --hex must be provided")
	}
	if text != "" && hexMsg != "" {
		return nil, fmt.Errorf("only one of --message or --hex should be provided")
	}
	if hexMsg != "" {
		msg, err := hex.DecodeString(hexMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode --hex: %w", err)
		}
		return msg, nil
	}
	return []byte(text), nil
}

// SignCommand signs a message on the device
func SignCommand() *cli.Command {
	return &cli.Command{
		Name:   "sign",
		Usage:  "Sign a message with the hardware device",
		Flags:  messageFlags(),
		Action: runSignCommand,
	}
}

func runSignCommand(ctx context.Context, cmd *cli.Command) error {
	msg, err := messageFromFlags(cmd)
	if err != nil {
		return err
	}
	return withWallet(ctx, cmd, func(wallet *hwsigner.HardwareWallet) error {
		return signAndPrint(ctx, cmd, hwsigner.NewHardwareSigner(wallet), msg)
	})
}

// signAndPrint works the same for every Signer backend.
func signAndPrint(ctx context.Context, cmd *cli.Command, signer hwsigner.Signer, msg []byte) error {
	sig, err := signer.SignMessage(ctx, msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, base58.Encode(sig))

	if !cmd.Bool("verify") {
		return nil
	}
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return err
	}
	if !hwsigner.Verify(pubkey, msg, sig) {
		return errors.New("signature does not verify against " + pubkey)
	}
	fmt.Fprintln(cmd.Root().Writer, "signature verified")
	return nil
}

// KeygenCommand writes a software keypair file
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a software keypair file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Path of the keypair file to write",
				Required: true,
			},
		},
		Action: runKeygenCommand,
	}
}

func runKeygenCommand(ctx context.Context, cmd *cli.Command) error {
	signer, err := hwsigner.GenerateSoftwareSigner()
	if err != nil {
		return err
	}
	if err := signer.WriteKeypairFile(cmd.String("out")); err != nil {
		return fmt.Errorf("failed to write keypair: %w", err)
	}
	return printPubkey(ctx, cmd, signer)
}

// SignLocalCommand signs with a software keypair
func SignLocalCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:     "keypair",
			Usage:    "Path to a keypair file",
			Required: true,
		},
	}, messageFlags()...)

	return &cli.Command{
		Name:   "sign-local",
		Usage:  "Sign a message with a software keypair",
		Flags:  flags,
		Action: runSignLocalCommand,
	}
}

func runSignLocalCommand(ctx context.Context, cmd *cli.Command) error {
	msg, err := messageFromFlags(cmd)
	if err != nil {
		return err
	}
	signer, err := hwsigner.NewSoftwareSignerFromKeypairFile(cmd.String("keypair"))
	if err != nil {
		return err
	}
	return signAndPrint(ctx, cmd, signer, msg)
}
