// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/wire"
)

// testTx returns a minimal distinct transaction keyed by the passed value.
func testTx(value int64) *util.Tx {
	msgTx := wire.NewMsgTx(1)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, []byte{0x04, 0x31}))
	msgTx.AddTxOut(wire.NewTxOut(value, []byte{0x51}))
	return util.NewTx(msgTx)
}

func TestCalcMerkleRoot(t *testing.T) {
	txA := testTx(1)
	txB := testTx(2)
	txC := testTx(3)

	// A single transaction is its own merkle root.
	root, mutated := CalcMerkleRoot([]*util.Tx{txA})
	if root != *txA.Hash() {
		t.Errorf("single tx root: got %v, want %v", root, txA.Hash())
	}
	if mutated {
		t.Error("single tx reported mutated")
	}

	// A pair hashes together.
	root, mutated = CalcMerkleRoot([]*util.Tx{txA, txB})
	if want := hashMerkleBranches(txA.Hash(), txB.Hash()); root != *want {
		t.Errorf("pair root: got %v, want %v", root, want)
	}
	if mutated {
		t.Error("pair reported mutated")
	}

	// An odd count duplicates the final hash, which is expected and must
	// not count as mutation.
	oddRoot, mutated := CalcMerkleRoot([]*util.Tx{txA, txB, txC})
	if mutated {
		t.Error("odd count reported mutated")
	}

	// Explicitly repeating the final transaction produces the same root
	// but is a mutation (CVE-2012-2459).
	dupRoot, mutated := CalcMerkleRoot([]*util.Tx{txA, txB, txC, txC})
	if dupRoot != oddRoot {
		t.Errorf("duplicated pair root: got %v, want %v", dupRoot, oddRoot)
	}
	if !mutated {
		t.Error("duplicated pair not reported mutated")
	}

	// No transactions yields the zero hash.
	root, mutated = CalcMerkleRoot(nil)
	if root != zeroHash {
		t.Errorf("empty root: got %v, want zero hash", root)
	}
	if mutated {
		t.Error("empty list reported mutated")
	}
}
