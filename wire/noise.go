// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wire

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

// KeySize is the size of the decoded pre-shared key.
const KeySize = 32

// maxNoiseFrame is the largest frame; the size is sent on 16 bits.
const maxNoiseFrame = 0xFFFF

// handshakeFailure is the reason sent by nodes when the client's handshake
// message doesn't authenticate.
const handshakeFailure = "Handshake MAC failure"

var prologue = []byte("NoiseAPIInit\x00\x00")

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// DecodeKey decodes a base64 encoded pre-shared key, as shown in the
// "api: encryption: key:" section of an ESPHome configuration.
func DecodeKey(s string) ([]byte, error) {
	k, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("wire: invalid encryption key: %w", err)
	}
	if len(k) != KeySize {
		return nil, fmt.Errorf("wire: invalid encryption key: expected %d bytes, got %d", KeySize, len(k))
	}
	return k, nil
}

// HandshakeError is the reason sent by the node to reject the handshake.
type HandshakeError struct {
	Reason string
}

func (h *HandshakeError) Error() string {
	return "wire: handshake rejected: " + h.Reason
}

// Is makes errors.Is(err, ErrInvalidKey) work for MAC failures.
func (h *HandshakeError) Is(target error) bool {
	return target == ErrInvalidKey && h.Reason == handshakeFailure
}

// ServerHello is the information the node sends before the handshake.
type ServerHello struct {
	Name string
	MAC  string
}

func newHandshake(psk []byte, initiator bool) (*noise.HandshakeState, error) {
	return noise.NewHandshakeState(noise.Config{
		CipherSuite:           cipherSuite,
		Random:                rand.Reader,
		Pattern:               noise.HandshakeNN,
		Initiator:             initiator,
		Prologue:              prologue,
		PresharedKey:          psk,
		PresharedKeyPlacement: 0,
	})
}

// ClientHandshake runs the client side of the Noise_NNpsk0 handshake.
//
// If expectedName is not empty, the handshake fails with ErrNameMismatch when
// the node announces another name.
func ClientHandshake(rw io.ReadWriter, psk []byte, expectedName string) (Codec, *ServerHello, error) {
	hs, err := newHandshake(psk, true)
	if err != nil {
		return nil, nil, err
	}
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, err
	}
	n := &noiseCodec{r: bufio.NewReader(rw), w: rw}
	// The empty client hello and the handshake are sent in one write.
	b := appendNoiseFrame(nil, nil)
	b = appendNoiseFrame(b, append([]byte{0}, msg...))
	if _, err = rw.Write(b); err != nil {
		return nil, nil, err
	}

	hello, err := n.readRaw()
	if err != nil {
		return nil, nil, err
	}
	sh, err := parseServerHello(hello)
	if err != nil {
		return nil, nil, err
	}
	if expectedName != "" && sh.Name != expectedName {
		return nil, sh, fmt.Errorf("%w: got %q, expected %q", ErrNameMismatch, sh.Name, expectedName)
	}

	resp, err := n.readRaw()
	if err != nil {
		return nil, sh, err
	}
	if len(resp) == 0 {
		return nil, sh, errors.New("wire: empty handshake response")
	}
	if resp[0] != 0 {
		return nil, sh, &HandshakeError{Reason: string(resp[1:])}
	}
	_, enc, dec, err := hs.ReadMessage(nil, resp[1:])
	if err != nil {
		return nil, sh, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if enc == nil || dec == nil {
		return nil, sh, errors.New("wire: handshake did not complete")
	}
	n.enc = enc
	n.dec = dec
	return n, sh, nil
}

// ServerHandshake runs the node side of the Noise_NNpsk0 handshake.
func ServerHandshake(rw io.ReadWriter, psk []byte, hello ServerHello) (Codec, error) {
	hs, err := newHandshake(psk, false)
	if err != nil {
		return nil, err
	}
	n := &noiseCodec{r: bufio.NewReader(rw), w: rw}
	if _, err = n.readRaw(); err != nil {
		if errors.Is(err, ErrRequiresPlaintext) {
			// The client talks plaintext; tell it encryption is needed.
			_ = n.writeRaw(append([]byte{1}, "Bad indicator byte"...))
			return nil, errors.New("wire: client did not request encryption")
		}
		return nil, err
	}
	sh := []byte{noiseIndicator}
	sh = append(sh, hello.Name...)
	sh = append(sh, 0)
	sh = append(sh, hello.MAC...)
	sh = append(sh, 0)
	if err = n.writeRaw(sh); err != nil {
		return nil, err
	}

	req, err := n.readRaw()
	if err != nil {
		return nil, err
	}
	if len(req) == 0 || req[0] != 0 {
		_ = n.writeRaw(append([]byte{1}, "Bad handshake packet"...))
		return nil, errors.New("wire: invalid handshake packet")
	}
	if _, _, _, err = hs.ReadMessage(nil, req[1:]); err != nil {
		_ = n.writeRaw(append([]byte{1}, handshakeFailure...))
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	msg, dec, enc, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, err
	}
	if err = n.writeRaw(append([]byte{0}, msg...)); err != nil {
		return nil, err
	}
	n.enc = enc
	n.dec = dec
	return n, nil
}

func parseServerHello(b []byte) (*ServerHello, error) {
	if len(b) == 0 {
		return nil, errors.New("wire: empty server hello")
	}
	if b[0] != noiseIndicator {
		return nil, fmt.Errorf("wire: unknown protocol %d selected by node", b[0])
	}
	sh := &ServerHello{}
	parts := bytes.SplitN(b[1:], []byte{0}, 3)
	sh.Name = string(parts[0])
	if len(parts) > 1 {
		sh.MAC = string(parts[1])
	}
	return sh, nil
}

// noiseCodec encrypts frames once the handshake completed.
type noiseCodec struct {
	r   *bufio.Reader
	w   io.Writer
	enc *noise.CipherState
	dec *noise.CipherState
}

// WriteFrame implements Codec.
func (n *noiseCodec) WriteFrame(id uint32, msg []byte) error {
	if len(msg) > maxNoiseFrame-4-16 {
		return fmt.Errorf("wire: msg size too large %d", len(msg))
	}
	pt := make([]byte, 4, 4+len(msg))
	pt[0] = byte(id >> 8)
	pt[1] = byte(id)
	pt[2] = byte(len(msg) >> 8)
	pt[3] = byte(len(msg))
	pt = append(pt, msg...)
	ct, err := n.enc.Encrypt(nil, nil, pt)
	if err != nil {
		return err
	}
	return n.writeRaw(ct)
}

// ReadFrame implements Codec.
func (n *noiseCodec) ReadFrame() (uint32, []byte, error) {
	ct, err := n.readRaw()
	if err != nil {
		return 0, nil, err
	}
	pt, err := n.dec.Decrypt(nil, nil, ct)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: decrypt: %w", err)
	}
	if len(pt) < 4 {
		return 0, nil, errors.New("wire: frame too short")
	}
	id := uint32(pt[0])<<8 | uint32(pt[1])
	size := int(pt[2])<<8 | int(pt[3])
	if size != len(pt)-4 {
		return 0, nil, fmt.Errorf("wire: invalid size %d for %d bytes", size, len(pt)-4)
	}
	if size == 0 {
		return id, nil, nil
	}
	return id, pt[4:], nil
}

func (n *noiseCodec) writeRaw(payload []byte) error {
	_, err := n.w.Write(appendNoiseFrame(nil, payload))
	return err
}

// readRaw reads one noise frame and returns its payload.
func (n *noiseCodec) readRaw() ([]byte, error) {
	c, err := n.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch c {
	case noiseIndicator:
	case plaintextIndicator:
		return nil, ErrRequiresPlaintext
	default:
		return nil, fmt.Errorf("wire: invalid indicator byte %d", c)
	}
	var hdr [2]byte
	if _, err = io.ReadFull(n.r, hdr[:]); err != nil {
		return nil, err
	}
	size := int(hdr[0])<<8 | int(hdr[1])
	if size == 0 {
		return nil, nil
	}
	b := make([]byte, size)
	if _, err = io.ReadFull(n.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func appendNoiseFrame(b, payload []byte) []byte {
	b = append(b, noiseIndicator, byte(len(payload)>>8), byte(len(payload)))
	return append(b, payload...)
}
