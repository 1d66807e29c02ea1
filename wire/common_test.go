// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"
)

// TestVarIntWire tests encode and decode for variable length integers.
func TestVarIntWire(t *testing.T) {
	tests := []struct {
		in  uint64 // Value to encode
		buf []byte // Wire encoding
	}{
		// Single byte
		{0, []byte{0x00}},
		// Max single byte
		{0xfc, []byte{0xfc}},
		// Min 2-byte
		{0xfd, []byte{0xfd, 0xfd, 0x00}},
		// Max 2-byte
		{0xffff, []byte{0xfd, 0xff, 0xff}},
		// Min 4-byte
		{0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
		// Max 4-byte
		{0xffffffff, []byte{0xfe, 0xff, 0xff, 0xff, 0xff}},
		// Min 8-byte
		{
			0x100000000,
			[]byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
		},
		// Max 8-byte
		{
			0xffffffffffffffff,
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
	}

	for i, test := range tests {
		var buf bytes.Buffer
		if err := WriteVarInt(&buf, test.in); err != nil {
			t.Errorf("WriteVarInt #%d error %v", i, err)
			continue
		}
		if !bytes.Equal(buf.Bytes(), test.buf) {
			t.Errorf("WriteVarInt #%d got: %x want: %x", i,
				buf.Bytes(), test.buf)
			continue
		}

		rd := bytes.NewReader(test.buf)
		val, err := ReadVarInt(rd)
		if err != nil {
			t.Errorf("ReadVarInt #%d error %v", i, err)
			continue
		}
		if val != test.in {
			t.Errorf("ReadVarInt #%d got: %d want: %d", i, val, test.in)
		}
	}
}

// TestVarIntNonCanonical ensures variable length integers that are not
// encoded canonically are rejected.
func TestVarIntNonCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"0 encoded with 3 bytes", []byte{0xfd, 0x00, 0x00}},
		{"max single-byte encoded with 3 bytes", []byte{0xfd, 0xfc, 0x00}},
		{
			"0 encoded with 5 bytes",
			[]byte{0xfe, 0x00, 0x00, 0x00, 0x00},
		},
		{
			"max 2-byte encoded with 5 bytes",
			[]byte{0xfe, 0xff, 0xff, 0x00, 0x00},
		},
		{
			"0 encoded with 9 bytes",
			[]byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			"max 4-byte encoded with 9 bytes",
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00},
		},
	}

	for _, test := range tests {
		rd := bytes.NewReader(test.in)
		if val, err := ReadVarInt(rd); err == nil {
			t.Errorf("%s: accepted non-canonical value %d", test.name,
				val)
		}
	}
}

// TestVarIntSerializeSize performs tests to ensure the serialize size for
// variable length integers works as intended.
func TestVarIntSerializeSize(t *testing.T) {
	tests := []struct {
		val  uint64
		size int
	}{
		{0, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
		{0xffffffffffffffff, 9},
	}

	for i, test := range tests {
		if got := VarIntSerializeSize(test.val); got != test.size {
			t.Errorf("VarIntSerializeSize #%d got: %d want: %d", i,
				got, test.size)
		}
	}
}

// TestVarBytes exercises the byte slice wrappers including the maximum size
// protection.
func TestVarBytes(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0x5a}, 300)
	if err := WriteVarBytes(&buf, payload); err != nil {
		t.Fatalf("WriteVarBytes: %v", err)
	}

	got, err := ReadVarBytes(bytes.NewReader(buf.Bytes()), 1024, "payload")
	if err != nil {
		t.Fatalf("ReadVarBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch after round trip")
	}

	// The declared length exceeds the allowed maximum.
	if _, err := ReadVarBytes(bytes.NewReader(buf.Bytes()), 100, "payload"); err == nil {
		t.Fatal("ReadVarBytes accepted an oversized payload")
	}
}
