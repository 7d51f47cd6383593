// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package wire implements the framing of the ESPHome native API, both the
// plaintext one and the Noise encrypted one.
//
// The same codecs are used by the client and by the node, only the handshake
// differs.
package wire

import (
	"errors"
	"io"
	"net"
	"os"
	"runtime"
	"syscall"
)

// Codec reads and writes native API messages.
//
// ReadFrame and WriteFrame may be called concurrently with each other but
// WriteFrame must not be called concurrently with itself.
type Codec interface {
	// ReadFrame returns the next message type and its serialized payload.
	ReadFrame() (uint32, []byte, error)
	// WriteFrame sends one message.
	WriteFrame(id uint32, payload []byte) error
}

// Indicator bytes starting every frame.
const (
	plaintextIndicator = 0x00
	noiseIndicator     = 0x01
)

var (
	// ErrRequiresEncryption is returned to a plaintext client when the node
	// has an encryption key.
	ErrRequiresEncryption = errors.New("wire: the node requires encryption")
	// ErrRequiresPlaintext is returned to an encrypting client when the node
	// has no encryption key.
	ErrRequiresPlaintext = errors.New("wire: the node requires plaintext")
	// ErrInvalidKey is returned when the Noise handshake fails authentication,
	// which happens when the pre-shared keys differ.
	ErrInvalidKey = errors.New("wire: invalid encryption key")
	// ErrNameMismatch is returned when the node announced another name than
	// the expected one.
	ErrNameMismatch = errors.New("wire: unexpected node name")
)

// IsEOF returns true if the error is functionally equivalent to io.EOF.
//
// This is needed because the error is different on Windows.
func IsEOF(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if runtime.GOOS == "windows" {
		if oe, ok := err.(*net.OpError); ok && oe.Op == "read" {
			// Created by os.NewSyscallError()
			if se, ok := oe.Err.(*os.SyscallError); ok && se.Syscall == "wsarecv" {
				const WSAECONNABORTED = 10053
				const WSAECONNRESET = 10054
				if n, ok := se.Err.(syscall.Errno); ok {
					return n == WSAECONNRESET || n == WSAECONNABORTED
				}
			}
		}
	}
	return false
}
