// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// TestViewpointConnectDisconnect exercises connecting a block's transactions
// to a view and rolling them back with the recorded spend journal.
func TestViewpointConnectDisconnect(t *testing.T) {
	// A confirmed transaction whose first output is about to be spent.
	fundingTx := wire.NewMsgTx(1)
	fundingTx.Time = 1000
	fundingTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff},
		[]byte{0x04, 0x31}))
	fundingTx.AddTxOut(wire.NewTxOut(50*util.SatoshiPerCoin, []byte{0x51}))
	funding := util.NewTx(fundingTx)

	view := NewUtxoViewpoint()
	view.AddTxOuts(funding, 1)

	fundingOut := wire.OutPoint{Hash: *funding.Hash(), Index: 0}
	entry := view.LookupEntry(fundingOut)
	if entry == nil || entry.IsSpent() {
		t.Fatal("funding output missing from view")
	}
	if !entry.IsCoinBase() {
		t.Fatal("funding output not marked coinbase")
	}
	if entry.BlockTime() != 1000 {
		t.Fatalf("funding output time: got %d, want 1000", entry.BlockTime())
	}

	// The next block spends the funding output.
	coinbaseTx := wire.NewMsgTx(1)
	coinbaseTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff},
		[]byte{0x04, 0x32}))
	coinbaseTx.AddTxOut(wire.NewTxOut(100, []byte{0x51}))

	spendTx := wire.NewMsgTx(1)
	spendTx.Time = 2000
	spendTx.AddTxIn(wire.NewTxIn(&fundingOut, []byte{0x51}))
	spendTx.AddTxOut(wire.NewTxOut(20*util.SatoshiPerCoin, []byte{0x51}))
	spendTx.AddTxOut(wire.NewTxOut(29*util.SatoshiPerCoin, []byte{0x51}))

	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: chainhash.Hash{0x01},
			Timestamp: time.Unix(2000, 0),
		},
		Transactions: []*wire.MsgTx{coinbaseTx, spendTx},
	}
	block := util.NewBlock(msgBlock)
	block.SetHeight(2)

	var stxos []SpentTxOut
	if err := view.connectTransactions(block, &stxos); err != nil {
		t.Fatalf("connectTransactions: %v", err)
	}

	if len(stxos) != 1 {
		t.Fatalf("spend journal: got %d entries, want 1: %s", len(stxos),
			spew.Sdump(stxos))
	}
	if stxos[0].Amount != 50*util.SatoshiPerCoin || !stxos[0].IsCoinBase ||
		stxos[0].Height != 1 || stxos[0].Time != 1000 {

		t.Fatalf("spend journal entry mismatch: %s", spew.Sdump(stxos[0]))
	}

	// The funding output is spent, the new outputs are available, and the
	// view moved to the connected block.
	if entry := view.LookupEntry(fundingOut); entry == nil || !entry.IsSpent() {
		t.Fatal("funding output not spent after connect")
	}
	spendOut := wire.OutPoint{Hash: *block.Transactions()[1].Hash(), Index: 1}
	entry = view.LookupEntry(spendOut)
	if entry == nil || entry.IsSpent() {
		t.Fatal("spend output missing after connect")
	}
	if entry.Amount() != 29*util.SatoshiPerCoin {
		t.Fatalf("spend output amount: got %d, want %d", entry.Amount(),
			29*util.SatoshiPerCoin)
	}
	if entry.BlockHeight() != 2 || entry.BlockTime() != 2000 {
		t.Fatalf("spend output provenance: got (%d, %d), want (2, 2000)",
			entry.BlockHeight(), entry.BlockTime())
	}
	if *view.BestHash() != *block.Hash() {
		t.Fatalf("view best hash: got %v, want %v", view.BestHash(),
			block.Hash())
	}

	// Rolling the block back restores the funding output and removes the
	// block's outputs.
	if err := view.disconnectTransactions(block, stxos); err != nil {
		t.Fatalf("disconnectTransactions: %v", err)
	}
	entry = view.LookupEntry(fundingOut)
	if entry == nil || entry.IsSpent() {
		t.Fatal("funding output not restored after disconnect")
	}
	if entry.Amount() != 50*util.SatoshiPerCoin || !entry.IsCoinBase() {
		t.Fatalf("restored entry mismatch: %s", spew.Sdump(entry))
	}
	if entry := view.LookupEntry(spendOut); entry != nil && !entry.IsSpent() {
		t.Fatal("spend output still unspent after disconnect")
	}
	if *view.BestHash() != msgBlock.Header.PrevBlock {
		t.Fatalf("view best hash: got %v, want %v", view.BestHash(),
			msgBlock.Header.PrevBlock)
	}

	// Disconnecting with a short journal is an assertion failure.
	if err := view.disconnectTransactions(block, nil); err == nil {
		t.Fatal("disconnectTransactions accepted a short journal")
	}
}
