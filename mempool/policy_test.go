// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/eccnet/eccd/blockchain"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// dummyPkScript is a syntactically plausible pay-to-pubkey-hash script used
// where the tests only care about the script size.
var dummyPkScript = []byte{
	0x76, 0xa9, 0x14, 0xb1, 0x2d, 0x11, 0xa7, 0x6f,
	0xf1, 0x6f, 0x4d, 0x1c, 0xf5, 0x6e, 0x14, 0x6e,
	0x0f, 0x52, 0xfe, 0xd8, 0x70, 0x38, 0xe0, 0x88,
	0xac,
}

func TestCalcMinRequiredTxRelayFee(t *testing.T) {
	tests := []struct {
		name     string // test description.
		size     int64  // Transaction size in bytes.
		relayFee util.Amount
		want     int64 // Expected fee.
	}{
		{
			"zero value with default minimum relay fee",
			0,
			DefaultMinRelayTxFee,
			int64(DefaultMinRelayTxFee),
		},
		{
			"100 bytes with default minimum relay fee",
			100,
			DefaultMinRelayTxFee,
			1000,
		},
		{
			"max standard tx size with default minimum relay fee",
			maxStandardTxSize,
			DefaultMinRelayTxFee,
			1000000,
		},
		{
			"max standard tx size with max satoshi relay fee",
			maxStandardTxSize,
			util.Amount(util.MaxSatoshi),
			util.MaxSatoshi,
		},
		{
			"1500 bytes with 5000 relay fee",
			1500,
			5000,
			7500,
		},
		{
			"1500 bytes with 3000 relay fee",
			1500,
			3000,
			4500,
		},
		{
			"782 bytes with 11000 relay fee",
			782,
			11000,
			8602,
		},
		{
			"zero relay fee",
			1000,
			0,
			0,
		},
	}

	for _, test := range tests {
		got := calcMinRequiredTxRelayFee(test.size, test.relayFee)
		if got != test.want {
			t.Errorf("%s: got %d, want %d", test.name, got, test.want)
		}
	}
}

func TestDust(t *testing.T) {
	tests := []struct {
		name     string
		txOut    wire.TxOut
		relayFee util.Amount
		isDust   bool
	}{
		{
			// Any value is allowed with a zero relay fee.
			"zero value with zero relay fee",
			wire.TxOut{Value: 0, PkScript: dummyPkScript},
			0,
			false,
		},
		{
			"zero value with default relay fee",
			wire.TxOut{Value: 0, PkScript: dummyPkScript},
			DefaultMinRelayTxFee,
			true,
		},
		{
			"whole coin is never dust",
			wire.TxOut{Value: util.SatoshiPerCoin, PkScript: dummyPkScript},
			DefaultMinRelayTxFee,
			false,
		},
		{
			// The output costs 182 bytes to create and spend, so
			// 5460 is the smallest non-dust payment at the default
			// relay fee.
			"just above the dust threshold",
			wire.TxOut{Value: 5460, PkScript: dummyPkScript},
			DefaultMinRelayTxFee,
			false,
		},
		{
			"just below the dust threshold",
			wire.TxOut{Value: 5459, PkScript: dummyPkScript},
			DefaultMinRelayTxFee,
			true,
		},
		{
			// Unspendable outputs are dust no matter the amount.
			"op return with a large value",
			wire.TxOut{
				Value:    util.SatoshiPerCoin,
				PkScript: []byte{0x6a, 0x04, 0x74, 0x65, 0x73, 0x74},
			},
			DefaultMinRelayTxFee,
			true,
		},
	}

	for _, test := range tests {
		if got := isDust(&test.txOut, test.relayFee); got != test.isDust {
			t.Errorf("%s: got %v, want %v", test.name, got, test.isDust)
		}
	}
}

func TestCheckTransactionStandard(t *testing.T) {
	const height = 300000
	medianTimePast := time.Unix(1600000000, 0)
	const maxTxVersion = 2

	// standardTx builds a transaction that passes every standardness check
	// before the optional mutation is applied.
	standardTx := func(mutate func(*wire.MsgTx)) *util.Tx {
		msgTx := wire.NewMsgTx(1)
		msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x01}},
			[]byte{0x51}))
		msgTx.AddTxOut(wire.NewTxOut(util.SatoshiPerCoin, dummyPkScript))
		if mutate != nil {
			mutate(msgTx)
		}
		return util.NewTx(msgTx)
	}

	tests := []struct {
		name   string
		mutate func(*wire.MsgTx)
		reason string
		code   blockchain.RejectCode
	}{
		{"standard v1", nil, "", 0},
		{"standard v2", func(tx *wire.MsgTx) {
			tx.Version = 2
		}, "", 0},
		{"version too high", func(tx *wire.MsgTx) {
			tx.Version = maxTxVersion + 1
		}, "version", blockchain.RejectNonstandard},
		{"version too low", func(tx *wire.MsgTx) {
			tx.Version = 0
		}, "version", blockchain.RejectNonstandard},
		{"not finalized", func(tx *wire.MsgTx) {
			tx.LockTime = height + 1
			tx.TxIn[0].Sequence = 0
		}, "non-final", blockchain.RejectNonstandard},
		{"transaction too large", func(tx *wire.MsgTx) {
			for i := 0; i < 3000; i++ {
				tx.AddTxOut(wire.NewTxOut(util.SatoshiPerCoin,
					dummyPkScript))
			}
		}, "tx-size", blockchain.RejectNonstandard},
		{"signature script too large", func(tx *wire.MsgTx) {
			tx.TxIn[0].SignatureScript = bytes.Repeat([]byte{0x00},
				maxStandardSigScriptSize+1)
		}, "scriptsig-size", blockchain.RejectNonstandard},
		{"dust output", func(tx *wire.MsgTx) {
			tx.TxOut[0].Value = 5459
		}, "dust", blockchain.RejectDust},
		{"empty output outside a coinstake", func(tx *wire.MsgTx) {
			tx.TxOut[0] = wire.NewTxOut(0, nil)
		}, "dust", blockchain.RejectDust},
		// The empty first output of a coinstake marks the transaction
		// kind and is exempt from the dust rule.
		{"coinstake empty output", func(tx *wire.MsgTx) {
			tx.TxOut = []*wire.TxOut{
				wire.NewTxOut(0, nil),
				wire.NewTxOut(util.SatoshiPerCoin, dummyPkScript),
			}
		}, "", 0},
	}

	for _, test := range tests {
		tx := standardTx(test.mutate)
		err := checkTransactionStandard(tx, height, medianTimePast,
			DefaultMinRelayTxFee, maxTxVersion)
		if test.reason == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", test.name, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("%s: expected rejection for %q", test.name,
				test.reason)
			continue
		}
		if reason := ErrorReason(err); reason != test.reason {
			t.Errorf("%s: got reason %q, want %q", test.name, reason,
				test.reason)
		}
		var txRuleErr TxRuleError
		if !errors.As(err, &txRuleErr) {
			t.Errorf("%s: got %T, want TxRuleError", test.name, err)
			continue
		}
		if txRuleErr.RejectCode != test.code {
			t.Errorf("%s: got reject code %#x, want %#x", test.name,
				txRuleErr.RejectCode, test.code)
		}
	}
}

func TestCalcPriority(t *testing.T) {
	fundingOut := wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 0}

	spendTx := wire.NewMsgTx(1)
	spendTx.AddTxIn(wire.NewTxIn(&fundingOut, []byte{0x51}))
	spendTx.AddTxOut(wire.NewTxOut(5000000000, dummyPkScript))

	view := blockchain.NewUtxoViewpoint()
	fundingTx := wire.NewMsgTx(1)
	fundingTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x03}},
		[]byte{0x51}))
	fundingTx.AddTxOut(wire.NewTxOut(5000000000, dummyPkScript))
	fundingUtil := util.NewTx(fundingTx)
	view.AddTxOuts(fundingUtil, 1000)
	spendTx.TxIn[0].PreviousOutPoint = wire.OutPoint{
		Hash: *fundingUtil.Hash(), Index: 0,
	}

	// One confirmation per block after the funding height.
	serializedSize := spendTx.SerializeSize()
	overhead := 41 + 1 // input overhead plus the one byte script
	wantAge := float64(5000000000 * 100)
	want := wantAge / float64(serializedSize-overhead)
	if got := calcPriority(spendTx, view, 1100); got != want {
		t.Errorf("calcPriority: got %g, want %g", got, want)
	}

	// Inputs still in the mempool contribute no age.
	view = blockchain.NewUtxoViewpoint()
	view.AddTxOuts(fundingUtil, mempoolHeight)
	if got := calcPriority(spendTx, view, 1100); got != 0 {
		t.Errorf("calcPriority with mempool input: got %g, want 0", got)
	}
}
