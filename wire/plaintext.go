// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxPlaintextSize is the largest payload accepted on a plaintext connection.
const maxPlaintextSize = 1024 * 1024

// NewPlaintext returns a codec for an unencrypted connection.
//
// There is no handshake; the first frame read tells if the peer expected
// encryption.
func NewPlaintext(rw io.ReadWriter) Codec {
	return &plaintext{r: bufio.NewReader(rw), w: rw}
}

type plaintext struct {
	r *bufio.Reader
	w io.Writer
}

// WriteFrame writes one message: zero byte, size, type then payload.
func (p *plaintext) WriteFrame(id uint32, msg []byte) error {
	b := make([]byte, 1, 1+binary.MaxVarintLen32*2+len(msg))
	b = binary.AppendUvarint(b, uint64(len(msg)))
	b = binary.AppendUvarint(b, uint64(id))
	b = append(b, msg...)
	_, err := p.w.Write(b)
	return err
}

// ReadFrame reads one message and returns it.
func (p *plaintext) ReadFrame() (uint32, []byte, error) {
	c, err := p.r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	switch c {
	case plaintextIndicator:
	case noiseIndicator:
		return 0, nil, ErrRequiresEncryption
	default:
		return 0, nil, errors.New("wire: expected byte zero")
	}
	msgsize, err := binary.ReadUvarint(p.r)
	if err != nil {
		return 0, nil, err
	}
	if msgsize > maxPlaintextSize {
		return 0, nil, fmt.Errorf("wire: msg size too large %d", msgsize)
	}
	id, err := binary.ReadUvarint(p.r)
	if err != nil {
		return 0, nil, err
	}
	if id > 0xFFFF {
		return 0, nil, fmt.Errorf("wire: invalid message type %d", id)
	}
	var msg []byte
	if msgsize != 0 {
		msg = make([]byte, msgsize)
		if _, err = io.ReadFull(p.r, msg); err != nil {
			return 0, nil, err
		}
	}
	return uint32(id), msg, nil
}
