// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package wire implements the runtime's small binary framing layer (§4.1 of
// the design): fixed-width little-endian int32s and length-prefixed byte
// arrays, with the length prefix encoded as a 7-bit varint (the same
// encoding produced by encoding/binary's Uvarint functions). There are no
// checksums and no versioning — connections are point-to-point and trusted
// once established.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

// maxByteArrayLen bounds a single frame's payload to guard against a
// corrupt or hostile length prefix causing an enormous allocation.
const maxByteArrayLen = 256 << 20 // 256MiB

// WriteInt32 writes v to w as 4 little-endian bytes.
func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt32 reads 4 little-endian bytes from r.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteErrorCode writes a core.Error as its int32 wire representation.
func WriteErrorCode(w io.Writer, e core.Error) error {
	return WriteInt32(w, int32(e))
}

// ReadErrorCode reads a core.Error from its int32 wire representation.
func ReadErrorCode(r io.Reader) (core.Error, error) {
	v, err := ReadInt32(r)
	if err != nil {
		return core.ErrRPC, err
	}
	return core.Error(v), nil
}

// WriteBool writes b as a single byte, 1 or 0.
func WriteBool(w io.Writer, b bool) error {
	var buf [1]byte
	if b {
		buf[0] = 1
	}
	_, err := w.Write(buf[:])
	return err
}

// ReadBool reads a single byte written by WriteBool.
func ReadBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// WriteByteArray writes a 7-bit-varint length prefix followed by b. An
// empty (or nil) array is a single zero byte.
func WriteByteArray(w io.Writer, b []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

// WriteString writes s as a UTF-8 byte array.
func WriteString(w io.Writer, s string) error {
	return WriteByteArray(w, []byte(s))
}

// varintByteReader adapts an io.Reader to io.ByteReader one byte at a time,
// which is all binary.ReadUvarint requires.
type varintByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (v *varintByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(v.r, v.buf[:]); err != nil {
		return 0, err
	}
	return v.buf[0], nil
}

// ReadByteArray reads a length-prefixed byte array written by WriteByteArray.
func ReadByteArray(r io.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(&varintByteReader{r: r})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n > maxByteArrayLen {
		return nil, io.ErrShortBuffer
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a UTF-8 byte array written by WriteString.
func ReadString(r io.Reader) (string, error) {
	b, err := ReadByteArray(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
