// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/eccnet/eccd/wire"
)

func TestBlockIndexEntrySerialization(t *testing.T) {
	parent := newBlockNode(&wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(1000, 0),
		Bits:      0x207fffff,
	}, nil, false)
	node := newBlockNode(&wire.BlockHeader{
		Version:   2,
		PrevBlock: parent.hash,
		Timestamp: time.Unix(1045, 0),
		Bits:      0x207fffff,
		Nonce:     7,
	}, parent, true)
	node.status = statusDataStored | statusUndoStored | statusValidScripts
	node.numTx = 3
	node.file = 2
	node.dataPos = 1024
	node.undoPos = 512
	node.moneySupply = 49500000000000008

	serialized, err := serializeBlockIndexEntry(node)
	if err != nil {
		t.Fatalf("serializeBlockIndexEntry: %v", err)
	}
	if len(serialized) != blockIndexEntrySize {
		t.Fatalf("serialized size: got %d, want %d", len(serialized),
			blockIndexEntrySize)
	}

	header, status, numTx, file, dataPos, undoPos, moneySupply, proofOfStake, err :=
		deserializeBlockIndexEntry(serialized)
	if err != nil {
		t.Fatalf("deserializeBlockIndexEntry: %v", err)
	}
	if header.BlockHash() != node.hash {
		t.Errorf("header hash: got %v, want %v", header.BlockHash(), node.hash)
	}
	if header.PrevBlock != parent.hash {
		t.Errorf("prev block: got %v, want %v", header.PrevBlock, parent.hash)
	}
	if status != node.status {
		t.Errorf("status: got %#x, want %#x", status, node.status)
	}
	if numTx != 3 || file != 2 || dataPos != 1024 || undoPos != 512 {
		t.Errorf("positions: got (%d, %d, %d, %d), want (3, 2, 1024, 512)",
			numTx, file, dataPos, undoPos)
	}
	if moneySupply != node.moneySupply {
		t.Errorf("money supply: got %d, want %d", moneySupply, node.moneySupply)
	}
	if !proofOfStake {
		t.Error("proof of stake flag lost")
	}

	// Short entries are rejected.
	if _, _, _, _, _, _, _, _, err := deserializeBlockIndexEntry(serialized[:40]); err == nil {
		t.Error("deserializeBlockIndexEntry accepted a short entry")
	}
}

func TestSpentTxOutSerialization(t *testing.T) {
	stxos := []SpentTxOut{
		{
			Amount:     5000000000,
			PkScript:   []byte{0x76, 0xa9, 0x14},
			Height:     1,
			Time:       1000,
			IsCoinBase: true,
		},
		{
			Amount:      1234567,
			PkScript:    nil,
			Height:      300000,
			Time:        2000,
			IsCoinStake: true,
		},
	}

	serialized, err := serializeSpentTxOuts(stxos)
	if err != nil {
		t.Fatalf("serializeSpentTxOuts: %v", err)
	}
	got, err := deserializeSpentTxOuts(serialized)
	if err != nil {
		t.Fatalf("deserializeSpentTxOuts: %v", err)
	}
	// An empty script round trips as an empty slice.
	if len(got) == 2 && got[1].PkScript != nil && len(got[1].PkScript) == 0 {
		got[1].PkScript = nil
	}
	if !reflect.DeepEqual(got, stxos) {
		t.Fatalf("spent txouts mismatch: got %s want %s", spew.Sdump(got),
			spew.Sdump(stxos))
	}

	// A count pointing past the payload is rejected instead of causing a
	// huge allocation.
	if _, err := deserializeSpentTxOuts([]byte{0xfd, 0xff, 0xff}); err == nil {
		t.Error("deserializeSpentTxOuts accepted an oversized count")
	}
}

func TestUtxoEntrySerialization(t *testing.T) {
	entry := &UtxoEntry{
		amount:      1500000000,
		pkScript:    []byte{0x51},
		blockHeight: 42,
		blockTime:   1234,
		packedFlags: tfCoinStake,
	}

	serialized, err := serializeUtxoEntry(entry)
	if err != nil {
		t.Fatalf("serializeUtxoEntry: %v", err)
	}
	got, err := deserializeUtxoEntry(serialized)
	if err != nil {
		t.Fatalf("deserializeUtxoEntry: %v", err)
	}
	if got.Amount() != entry.amount || got.BlockHeight() != 42 ||
		got.BlockTime() != 1234 || !got.IsCoinStake() || got.IsCoinBase() {

		t.Fatalf("utxo entry mismatch: %s", spew.Sdump(got))
	}

	// Spent entries are deleted, never serialized.
	entry.Spend()
	if _, err := serializeUtxoEntry(entry); err == nil {
		t.Error("serializeUtxoEntry accepted a spent entry")
	}
}

func TestBlockFileInfoSerialization(t *testing.T) {
	info := &blockFileInfo{}
	info.addBlock(10, 5000)
	info.addBlock(8, 4500)
	info.addBlock(11, 5100)
	info.size = 4096
	info.undoSize = 256

	if info.blockCount != 3 || info.heightFirst != 8 || info.heightLast != 11 ||
		info.timeFirst != 4500 || info.timeLast != 5100 {

		t.Fatalf("addBlock bookkeeping mismatch: %+v", info)
	}

	got, err := deserializeBlockFileInfo(serializeBlockFileInfo(info))
	if err != nil {
		t.Fatalf("deserializeBlockFileInfo: %v", err)
	}
	if !reflect.DeepEqual(got, info) {
		t.Fatalf("file info mismatch: got %+v, want %+v", got, info)
	}
}
