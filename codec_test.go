// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"get pubkey", GetPubkey(), "GET_PUBKEY\n"},
		{"sign text", SignMessage([]byte("hello")), "SIGN:aGVsbG8=\n"},
		{"sign empty", SignMessage(nil), "SIGN:\n"},
		{"sign newline payload", SignMessage([]byte("a\nb")), "SIGN:YQpi\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, 1, bytes.Count(got, []byte{FrameTerminator}), "exactly one terminator")
		})
	}
}

func TestEncodeCommandBinaryPayloadHasSingleTerminator(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame, err := EncodeCommand(SignMessage(payload))
	require.NoError(t, err)
	assert.Equal(t, len(frame)-1, bytes.IndexByte(frame, FrameTerminator))
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Response
	}{
		{"pubkey", "PUBKEY:ABC123\n", Response{Kind: RespPubkey, Text: "ABC123"}},
		{"pubkey crlf", "PUBKEY:ABC123\r\n", Response{Kind: RespPubkey, Text: "ABC123"}},
		{"signature", "SIGNATURE:AQID\n", Response{Kind: RespSignature, Signature: []byte{1, 2, 3}}},
		{"error", "ERROR:insufficient funds\n", Response{Kind: RespError, Text: "insufficient funds"}},
		{"leading noise whitespace", "  PUBKEY:xyz  \n", Response{Kind: RespPubkey, Text: "xyz"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		raw   string
	}{
		{"unknown prefix", "HELLO\n", "HELLO"},
		{"empty", "\n", ""},
		{"lowercase prefix", "pubkey:abc\n", "pubkey:abc"},
		{"bad base64", "SIGNATURE:!!!\n", "SIGNATURE:!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse([]byte(tt.frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)

			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.raw, malformed.Raw)
		})
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("transfer 1 SOL"),
		bytes.Repeat([]byte{0x00, 0xff, '\n', '\r'}, 64),
	}

	for _, payload := range payloads {
		frame, err := EncodeCommand(SignMessage(payload))
		require.NoError(t, err)

		// A device that echoes the encoded payload back as its signature.
		echo := append([]byte("SIGNATURE:"), bytes.TrimPrefix(frame, []byte("SIGN:"))...)

		resp, err := DecodeResponse(echo)
		require.NoError(t, err)
		assert.Equal(t, RespSignature, resp.Kind)
		assert.True(t, bytes.Equal(payload, resp.Signature), "payload must survive bit for bit")
	}
}

func TestDeviceSideCodec(t *testing.T) {
	t.Run("commands", func(t *testing.T) {
		for _, cmd := range []Command{GetPubkey(), SignMessage([]byte{9, 8, 7})} {
			frame, err := EncodeCommand(cmd)
			require.NoError(t, err)
			got, err := DecodeCommand(frame)
			require.NoError(t, err)
			assert.Equal(t, cmd.Kind, got.Kind)
			assert.Equal(t, len(cmd.Payload), len(got.Payload))
		}
	})

	t.Run("responses", func(t *testing.T) {
		for _, resp := range []Response{
			{Kind: RespPubkey, Text: "ABC123"},
			{Kind: RespSignature, Signature: bytes.Repeat([]byte{7}, 64)},
			{Kind: RespError, Text: "user rejected"},
		} {
			frame, err := EncodeResponse(resp)
			require.NoError(t, err)
			got, err := DecodeResponse(frame)
			require.NoError(t, err)
			assert.Equal(t, resp, got)
		}
	})

	t.Run("terminator in text rejected", func(t *testing.T) {
		_, err := EncodeResponse(Response{Kind: RespError, Text: "a\nb"})
		assert.Error(t, err)
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := DecodeCommand([]byte("REBOOT\n"))
		assert.Error(t, err)
	})
}

func TestCommandExpects(t *testing.T) {
	assert.Equal(t, RespPubkey, GetPubkey().Expects())
	assert.Equal(t, RespSignature, SignMessage(nil).Expects())
}
