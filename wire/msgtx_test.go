// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/eccnet/eccd/util/chainhash"
)

// TestTxHash tests the ability to generate the hash of a transaction
// accurately.
func TestTxHash(t *testing.T) {
	// A minimal coinbase transaction with a known hash.
	msgTx := NewMsgTx(1)
	msgTx.Time = 1393221660
	msgTx.AddTxIn(&TxIn{
		PreviousOutPoint: OutPoint{Index: 0xffffffff},
		SignatureScript:  []byte{0x04, 0x31, 0x32, 0x33},
		Sequence:         0xffffffff,
	})
	msgTx.AddTxOut(NewTxOut(0, []byte{0x51}))

	wantHash := chainhash.Hash{
		0x2e, 0xee, 0x87, 0xea, 0xe4, 0x3a, 0x18, 0x42,
		0x41, 0x25, 0x7c, 0x98, 0x09, 0x45, 0x41, 0x49,
		0xc6, 0x0e, 0x66, 0x7d, 0x92, 0x8e, 0x8d, 0xc8,
		0x4b, 0xed, 0xa4, 0x73, 0xc4, 0xf9, 0x11, 0x56,
	}
	if got := msgTx.TxHash(); got != wantHash {
		t.Fatalf("TxHash: got %v, want %v", got, wantHash)
	}
}

func TestIsCoinBase(t *testing.T) {
	coinbase := NewMsgTx(1)
	coinbase.AddTxIn(&TxIn{
		PreviousOutPoint: OutPoint{Index: 0xffffffff},
		SignatureScript:  []byte{0x04, 0x31, 0x32, 0x33},
		Sequence:         0xffffffff,
	})
	coinbase.AddTxOut(NewTxOut(100, []byte{0x51}))
	if !coinbase.IsCoinBase() {
		t.Fatal("null prevout transaction not recognized as coinbase")
	}

	// An additional input disqualifies the transaction.
	twoInputs := coinbase.Copy()
	twoInputs.AddTxIn(NewTxIn(&OutPoint{Hash: chainhash.Hash{0x01}},
		[]byte{0x51}))
	if twoInputs.IsCoinBase() {
		t.Fatal("two input transaction recognized as coinbase")
	}

	// A non-null previous outpoint disqualifies the transaction.
	spend := NewMsgTx(1)
	spend.AddTxIn(NewTxIn(&OutPoint{Hash: chainhash.Hash{0x01}},
		[]byte{0x51}))
	spend.AddTxOut(NewTxOut(100, []byte{0x51}))
	if spend.IsCoinBase() {
		t.Fatal("ordinary spend recognized as coinbase")
	}

	// A null hash with a non-max index is not a null outpoint.
	partial := NewMsgTx(1)
	partial.AddTxIn(NewTxIn(&OutPoint{Index: 0}, []byte{0x51}))
	partial.AddTxOut(NewTxOut(100, []byte{0x51}))
	if partial.IsCoinBase() {
		t.Fatal("zero hash with index 0 recognized as coinbase")
	}
}

func TestIsCoinStake(t *testing.T) {
	// The canonical coinstake shape: a real input and an empty marker
	// output followed by the staked payout.
	coinstake := NewMsgTx(1)
	coinstake.AddTxIn(NewTxIn(&OutPoint{Hash: chainhash.Hash{0x01}},
		[]byte{0x51}))
	coinstake.AddTxOut(NewTxOut(0, nil))
	coinstake.AddTxOut(NewTxOut(100, []byte{0x51}))
	if !coinstake.IsCoinStake() {
		t.Fatal("canonical coinstake not recognized")
	}

	// A non-empty first output makes it an ordinary transaction.
	ordinary := coinstake.Copy()
	ordinary.TxOut[0] = NewTxOut(50, []byte{0x51})
	if ordinary.IsCoinStake() {
		t.Fatal("transaction with value in its first output recognized " +
			"as coinstake")
	}

	// A single output is not enough.
	single := NewMsgTx(1)
	single.AddTxIn(NewTxIn(&OutPoint{Hash: chainhash.Hash{0x01}},
		[]byte{0x51}))
	single.AddTxOut(NewTxOut(0, nil))
	if single.IsCoinStake() {
		t.Fatal("single output transaction recognized as coinstake")
	}

	// A null first input marks a coinbase, not a coinstake.
	nullIn := coinstake.Copy()
	nullIn.TxIn[0] = &TxIn{
		PreviousOutPoint: OutPoint{Index: 0xffffffff},
		SignatureScript:  []byte{0x04, 0x31, 0x32, 0x33},
		Sequence:         0xffffffff,
	}
	if nullIn.IsCoinStake() {
		t.Fatal("null input transaction recognized as coinstake")
	}
}

// TestTxSerialize tests serialization round trips for both legacy
// transactions and service transactions which carry a reference hash.
func TestTxSerialize(t *testing.T) {
	legacy := NewMsgTx(1)
	legacy.Time = 1393221600
	legacy.AddTxIn(NewTxIn(&OutPoint{Hash: chainhash.Hash{0x01}, Index: 2},
		[]byte{0x51, 0x52}))
	legacy.AddTxOut(NewTxOut(5000000000, []byte{0x76, 0xa9}))
	legacy.LockTime = 42

	var buf bytes.Buffer
	if err := legacy.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if buf.Len() != legacy.SerializeSize() {
		t.Fatalf("serialized length: got %d, want %d", buf.Len(),
			legacy.SerializeSize())
	}

	var gotLegacy MsgTx
	if err := gotLegacy.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(&gotLegacy, legacy) {
		t.Fatalf("legacy round trip mismatch: got %+v, want %+v",
			gotLegacy, legacy)
	}

	// Service transactions additionally carry the referenced hash, which
	// costs exactly one hash of extra space on the wire.
	service := legacy.Copy()
	service.Version = ServiceTxVersion
	service.ServiceReference = chainhash.Hash{0xab, 0xcd}
	if !service.IsServiceTransaction() {
		t.Fatal("version 2 transaction not recognized as service tx")
	}
	if got, want := service.SerializeSize(), legacy.SerializeSize()+chainhash.HashSize; got != want {
		t.Fatalf("service tx size: got %d, want %d", got, want)
	}

	buf.Reset()
	if err := service.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var gotService MsgTx
	if err := gotService.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if gotService.ServiceReference != service.ServiceReference {
		t.Fatalf("service reference: got %v, want %v",
			gotService.ServiceReference, service.ServiceReference)
	}
	if !reflect.DeepEqual(&gotService, service) {
		t.Fatalf("service round trip mismatch: got %+v, want %+v",
			gotService, service)
	}
}
