// Copyright (c) 2014-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"testing"
	"time"

	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// TestBigToCompact ensures BigToCompact converts big integers to the expected
// compact representation.
func TestBigToCompact(t *testing.T) {
	tests := []struct {
		in  int64
		out uint32
	}{
		{0, 0},
		{-1, 25231360},
	}

	for x, test := range tests {
		n := big.NewInt(test.in)
		r := BigToCompact(n)
		if r != test.out {
			t.Errorf("TestBigToCompact test #%d failed: got %d want %d\n",
				x, r, test.out)
			return
		}
	}
}

// TestCompactToBig ensures CompactToBig converts numbers using the compact
// representation to the expected big integers.
func TestCompactToBig(t *testing.T) {
	tests := []struct {
		in  uint32
		out int64
	}{
		{10000000, 0},
	}

	for x, test := range tests {
		n := CompactToBig(test.in)
		want := big.NewInt(test.out)
		if n.Cmp(want) != 0 {
			t.Errorf("TestCompactToBig test #%d failed: got %d want %d\n",
				x, n.Int64(), want.Int64())
			return
		}
	}
}

// TestCalcWork ensures CalcWork calculates the expected work value from values
// in compact representation.
func TestCalcWork(t *testing.T) {
	tests := []struct {
		in  uint32
		out int64
	}{
		{10000000, 0},
		// The bitcoin genesis difficulty.
		{0x1d00ffff, 4295032833},
	}

	for x, test := range tests {
		bits := uint32(test.in)

		r := CalcWork(bits)
		if r.Int64() != test.out {
			t.Errorf("TestCalcWork test #%d failed: got %v want %d\n",
				x, r.Int64(), test.out)
			return
		}
	}
}

// TestCheckProofOfWork ensures hashes and claimed difficulties that are below
// or above the required target are handled correctly.
func TestCheckProofOfWork(t *testing.T) {
	// A target of exactly 2^255 in compact form. Headers whose hash has the
	// top bit clear satisfy it.
	const halfRangeBits = 0x21008000

	tests := []struct {
		name     string
		bits     uint32
		nonce    uint32
		powLimit uint32
		valid    bool
	}{
		{"hash meets target", halfRangeBits, 0, halfRangeBits, true},
		{"hash above target", halfRangeBits, 2, halfRangeBits, false},
		{"zero target", 0, 0, halfRangeBits, false},
		{"target above limit", halfRangeBits, 0, 0x1d00ffff, false},
	}

	for _, test := range tests {
		header := wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(1000000000, 0),
			Bits:      test.bits,
			Nonce:     test.nonce,
		}
		err := checkProofOfWork(&header, CompactToBig(test.powLimit))
		if test.valid {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", test.name, err)
			}
			continue
		}
		rerr, ok := err.(RuleError)
		if !ok {
			t.Errorf("%s: got %T, want RuleError", test.name, err)
			continue
		}
		if rerr.Reason != "high-hash" {
			t.Errorf("%s: got reason %q, want high-hash", test.name,
				rerr.Reason)
		}
		if rerr.BanScore != 50 {
			t.Errorf("%s: got ban score %d, want 50", test.name,
				rerr.BanScore)
		}
	}
}

func TestCalcNextRequiredDifficulty(t *testing.T) {
	params := &chaincfg.MainNetParams
	b := &ChainState{chainParams: params}
	limitBits := BigToCompact(params.PowLimit)

	// Build a mined chain with the given timestamps, all at the limit
	// target.
	buildChain := func(timestamps ...int64) *blockNode {
		var tip *blockNode
		for _, ts := range timestamps {
			header := &wire.BlockHeader{
				Timestamp: time.Unix(ts, 0),
				Bits:      limitBits,
			}
			tip = newBlockNode(header, tip, false)
		}
		return tip
	}

	// Without a previous block the target starts at the limit.
	if got := b.calcNextRequiredDifficulty(nil, false); got != limitBits {
		t.Errorf("genesis difficulty: got %08x, want %08x", got, limitBits)
	}

	// The first blocks of a kind also start from the limit.
	short := buildChain(1400000000, 1400000045)
	if got := b.calcNextRequiredDifficulty(short, false); got != limitBits {
		t.Errorf("short chain difficulty: got %08x, want %08x", got,
			limitBits)
	}

	// Blocks arriving faster than the target spacing tighten the target.
	fast := buildChain(1400000000, 1400000045, 1400000090, 1400000091)
	got := b.calcNextRequiredDifficulty(fast, false)
	if CompactToBig(got).Cmp(params.PowLimit) >= 0 {
		t.Errorf("fast blocks: got %08x, want below the limit", got)
	}

	// Blocks arriving slower than the target spacing loosen the target,
	// but never beyond the limit.
	slow := buildChain(1400000000, 1400000045, 1400000090, 1400100000)
	if got := b.calcNextRequiredDifficulty(slow, false); got != limitBits {
		t.Errorf("slow blocks: got %08x, want clamp at %08x", got,
			limitBits)
	}

	// Test networks carry the previous target forward unchanged.
	noRetarget := &ChainState{chainParams: &chaincfg.RegressionNetParams}
	header := &wire.BlockHeader{
		Timestamp: time.Unix(1400000000, 0),
		Bits:      0x1d00ffff,
	}
	node := newBlockNode(header, nil, false)
	if got := noRetarget.calcNextRequiredDifficulty(node, false); got != 0x1d00ffff {
		t.Errorf("no retargeting: got %08x, want 1d00ffff", got)
	}
}

// TestHashToBig ensures the byte order is reversed when interpreting a hash as
// a number.
func TestHashToBig(t *testing.T) {
	hash, err := chainhash.NewHashFromStr(
		"0000000000000000000000000000000000000000000000000000000000000010")
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	if got := HashToBig(hash); got.Cmp(big.NewInt(16)) != 0 {
		t.Errorf("HashToBig: got %v, want 16", got)
	}
}
