// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPlaintext_Write(t *testing.T) {
	buf := bytes.Buffer{}
	p := NewPlaintext(&buf)
	if err := p.WriteFrame(62, []byte{0x0d, 1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteFrame(300, nil); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 5, 62, 0x0d, 1, 2, 3, 4, 0, 0, 0xac, 0x02}
	if diff := cmp.Diff(want, buf.Bytes()); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}

	id, msg, err := p.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if id != 62 {
		t.Fatalf("id = %d", id)
	}
	if diff := cmp.Diff([]byte{0x0d, 1, 2, 3, 4}, msg); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if id, msg, err = p.ReadFrame(); err != nil || id != 300 || msg != nil {
		t.Fatalf("got %d, %v, %v", id, msg, err)
	}
	if _, _, err = p.ReadFrame(); !IsEOF(err) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestPlaintext_Read_Err(t *testing.T) {
	data := []struct {
		in  []byte
		err error
	}{
		{[]byte{1, 0, 0}, ErrRequiresEncryption},
		{[]byte{2}, nil},
		// 2 MiB.
		{[]byte{0, 0x80, 0x80, 0x80, 0x01, 1}, nil},
		// Truncated payload.
		{[]byte{0, 5, 1, 0}, nil},
	}
	for i, line := range data {
		p := NewPlaintext(bytes.NewBuffer(line.in))
		_, _, err := p.ReadFrame()
		if err == nil {
			t.Fatalf("#%d: expected error", i)
		}
		if line.err != nil && !errors.Is(err, line.err) {
			t.Fatalf("#%d: got %v, want %v", i, err, line.err)
		}
	}
}

func TestDecodeKey(t *testing.T) {
	k, err := DecodeKey("t/VoqhqIBGp+oA08m3II5lZDM+ws3zsAlP7tc5oLm9k=")
	if err != nil {
		t.Fatal(err)
	}
	if len(k) != KeySize {
		t.Fatal(len(k))
	}
	if _, err = DecodeKey("not base64!"); err == nil {
		t.Fatal("expected error")
	}
	if _, err = DecodeKey("c2hvcnQ="); err == nil {
		t.Fatal("expected error")
	}
}

type handshakeResult struct {
	c   Codec
	err error
}

// handshake runs both sides of the handshake over an in-memory connection.
func handshake(t *testing.T, clientKey, serverKey []byte, expected string) (handshakeResult, *ServerHello, handshakeResult) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	done := make(chan handshakeResult, 1)
	go func() {
		c, err := ServerHandshake(b, serverKey, ServerHello{Name: "arturito", MAC: "AA:BB"})
		if err != nil {
			// Unblock the client.
			_ = b.Close()
		}
		done <- handshakeResult{c, err}
	}()
	c, sh, err := ClientHandshake(a, clientKey, expected)
	if err != nil {
		_ = a.Close()
	}
	return handshakeResult{c, err}, sh, <-done
}

func TestNoise(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	cr, sh, sr := handshake(t, key, key, "arturito")
	if cr.err != nil {
		t.Fatal(cr.err)
	}
	if sr.err != nil {
		t.Fatal(sr.err)
	}
	client, server := cr.c, sr.c
	if diff := cmp.Diff(&ServerHello{Name: "arturito", MAC: "AA:BB"}, sh); diff != "" {
		t.Fatalf("hello mismatch (-want +got):\n%s", diff)
	}

	// net.Pipe is synchronous so the writes have to be concurrent to the reads.
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.WriteFrame(62, []byte{0x0d, 1, 0, 0, 0})
	}()
	id, msg, err := server.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if err = <-errCh; err != nil {
		t.Fatal(err)
	}
	if id != 62 {
		t.Fatalf("id = %d", id)
	}
	if diff := cmp.Diff([]byte{0x0d, 1, 0, 0, 0}, msg); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	go func() {
		errCh <- server.WriteFrame(8, nil)
	}()
	if id, msg, err = client.ReadFrame(); err != nil || id != 8 || msg != nil {
		t.Fatalf("got %d, %v, %v", id, msg, err)
	}
	if err = <-errCh; err != nil {
		t.Fatal(err)
	}
}

func TestNoise_InvalidKey(t *testing.T) {
	cr, _, sr := handshake(t, bytes.Repeat([]byte{1}, KeySize), bytes.Repeat([]byte{2}, KeySize), "")
	err, serr := cr.err, sr.err
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("client: got %v", err)
	}
	var he *HandshakeError
	if !errors.As(err, &he) || he.Reason != "Handshake MAC failure" {
		t.Fatalf("client: got %v", err)
	}
	if !errors.Is(serr, ErrInvalidKey) {
		t.Fatalf("server: got %v", serr)
	}
}

func TestNoise_NameMismatch(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	cr, sh, _ := handshake(t, key, key, "portero")
	if !errors.Is(cr.err, ErrNameMismatch) {
		t.Fatalf("got %v", cr.err)
	}
	if sh == nil || sh.Name != "arturito" {
		t.Fatalf("got %v", sh)
	}
}

func TestNoise_PlaintextClient(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(b, bytes.Repeat([]byte{7}, KeySize), ServerHello{Name: "arturito"})
		done <- err
	}()
	p := NewPlaintext(a)
	if err := p.WriteFrame(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.ReadFrame(); !errors.Is(err, ErrRequiresEncryption) {
		t.Fatalf("got %v", err)
	}
	if err := <-done; err == nil {
		t.Fatal("expected error")
	}
}

func TestNoise_PlaintextServer(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go func() {
		p := NewPlaintext(b)
		// The node refuses the hello by sending a plaintext frame.
		if _, _, err := p.ReadFrame(); errors.Is(err, ErrRequiresEncryption) {
			_ = p.WriteFrame(5, nil)
		}
	}()
	_, _, err := ClientHandshake(a, bytes.Repeat([]byte{7}, KeySize), "")
	if !errors.Is(err, ErrRequiresPlaintext) {
		t.Fatalf("got %v", err)
	}
}
