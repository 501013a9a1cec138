// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// Wire literals of the line protocol. Every frame ends with FrameTerminator.
const (
	FrameTerminator = '\n'

	getPubkeyLiteral = "GET_PUBKEY"
	signPrefix       = "SIGN:"
	pubkeyPrefix     = "PUBKEY:"
	signaturePrefix  = "SIGNATURE:"
	errorPrefix      = "ERROR:"
)

// CommandKind tags a Command.
type CommandKind int

const (
	CmdGetPubkey CommandKind = iota
	CmdSignMessage
)

func (k CommandKind) String() string {
	switch k {
	case CmdGetPubkey:
		return "GetPubkey"
	case CmdSignMessage:
		return "SignMessage"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// ResponseKind tags a Response.
type ResponseKind int

const (
	RespPubkey ResponseKind = iota
	RespSignature
	RespError
)

func (k ResponseKind) String() string {
	switch k {
	case RespPubkey:
		return "Pubkey"
	case RespSignature:
		return "Signature"
	case RespError:
		return "Error"
	default:
		return fmt.Sprintf("ResponseKind(%d)", int(k))
	}
}

// Command is a host to device request.
type Command struct {
	Kind    CommandKind
	Payload []byte // SignMessage only
}

// GetPubkey builds the public key request.
func GetPubkey() Command {
	return Command{Kind: CmdGetPubkey}
}

// SignMessage builds a signature request over payload.
func SignMessage(payload []byte) Command {
	return Command{Kind: CmdSignMessage, Payload: payload}
}

// Expects returns the only reply kind, besides RespError, that is valid for c.
func (c Command) Expects() ResponseKind {
	if c.Kind == CmdSignMessage {
		return RespSignature
	}
	return RespPubkey
}

// Response is a device to host reply.
type Response struct {
	Kind      ResponseKind
	Text      string // public key for RespPubkey, message for RespError
	Signature []byte // RespSignature only
}

// EncodeCommand turns c into one newline-terminated frame.
func EncodeCommand(c Command) ([]byte, error) {
	switch c.Kind {
	case CmdGetPubkey:
		return []byte(getPubkeyLiteral + "\n"), nil
	case CmdSignMessage:
		enc := base64.StdEncoding.EncodeToString(c.Payload)
		buf := make([]byte, 0, len(signPrefix)+len(enc)+1)
		buf = append(buf, signPrefix...)
		buf = append(buf, enc...)
		return append(buf, FrameTerminator), nil
	default:
		return nil, fmt.Errorf("unknown command kind %d", int(c.Kind))
	}
}

// DecodeResponse parses one reply frame. Surrounding whitespace, including
// the terminator and any carriage return, is ignored.
func DecodeResponse(frame []byte) (Response, error) {
	line := string(bytes.TrimSpace(frame))

	switch {
	case strings.HasPrefix(line, pubkeyPrefix):
		return Response{Kind: RespPubkey, Text: strings.TrimPrefix(line, pubkeyPrefix)}, nil
	case strings.HasPrefix(line, signaturePrefix):
		sig, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, signaturePrefix))
		if err != nil {
			return Response{}, &MalformedResponseError{Raw: line, Reason: "bad signature encoding"}
		}
		return Response{Kind: RespSignature, Signature: sig}, nil
	case strings.HasPrefix(line, errorPrefix):
		return Response{Kind: RespError, Text: strings.TrimPrefix(line, errorPrefix)}, nil
	default:
		return Response{}, &MalformedResponseError{Raw: line}
	}
}

// EncodeResponse is the device side of the codec. The mock device and test
// stubs use it to produce replies.
func EncodeResponse(r Response) ([]byte, error) {
	var line string
	switch r.Kind {
	case RespPubkey:
		line = pubkeyPrefix + r.Text
	case RespSignature:
		line = signaturePrefix + base64.StdEncoding.EncodeToString(r.Signature)
	case RespError:
		line = errorPrefix + r.Text
	default:
		return nil, fmt.Errorf("unknown response kind %d", int(r.Kind))
	}
	if strings.ContainsRune(line, FrameTerminator) {
		return nil, fmt.Errorf("response text contains frame terminator")
	}
	return []byte(line + "\n"), nil
}

// DecodeCommand is the device side parser for host frames.
func DecodeCommand(frame []byte) (Command, error) {
	line := string(bytes.TrimSpace(frame))

	switch {
	case line == getPubkeyLiteral:
		return GetPubkey(), nil
	case strings.HasPrefix(line, signPrefix):
		payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, signPrefix))
		if err != nil {
			return Command{}, fmt.Errorf("bad sign payload encoding: %w", err)
		}
		return SignMessage(payload), nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", line)
	}
}
