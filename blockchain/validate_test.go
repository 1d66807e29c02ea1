// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"testing"
	"time"

	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// sanityTestTx builds transactions for TestCheckTransactionSanity.
func sanityTestTx(mutate func(*wire.MsgTx)) *util.Tx {
	msgTx := wire.NewMsgTx(1)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x01}},
		[]byte{0x51}))
	msgTx.AddTxOut(wire.NewTxOut(1*util.SatoshiPerCoin, []byte{0x51}))
	if mutate != nil {
		mutate(msgTx)
	}
	return util.NewTx(msgTx)
}

func TestCheckTransactionSanity(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*wire.MsgTx)
		reason   string
		banScore int
	}{
		{"ok", nil, "", 0},
		{"no inputs", func(tx *wire.MsgTx) {
			tx.TxIn = nil
		}, "bad-txns-vin-empty", 10},
		{"no outputs", func(tx *wire.MsgTx) {
			tx.TxOut = nil
		}, "bad-txns-vout-empty", 10},
		{"negative output", func(tx *wire.MsgTx) {
			tx.TxOut[0].Value = -1
		}, "bad-txns-vout-negative", 100},
		{"output too large", func(tx *wire.MsgTx) {
			tx.TxOut[0].Value = util.MaxSatoshi + 1
		}, "bad-txns-vout-toolarge", 100},
		{"output total too large", func(tx *wire.MsgTx) {
			tx.TxOut[0].Value = util.MaxSatoshi
			tx.AddTxOut(wire.NewTxOut(util.MaxSatoshi, []byte{0x51}))
		}, "bad-txns-txouttotal-toolarge", 100},
		{"duplicate inputs", func(tx *wire.MsgTx) {
			tx.AddTxIn(wire.NewTxIn(&tx.TxIn[0].PreviousOutPoint,
				[]byte{0x51}))
		}, "bad-txns-inputs-duplicate", 100},
		{"short coinbase script", func(tx *wire.MsgTx) {
			tx.TxIn[0].PreviousOutPoint = wire.OutPoint{Index: 0xffffffff}
			tx.TxIn[0].SignatureScript = []byte{0x00}
		}, "bad-cb-length", 100},
		{"long coinbase script", func(tx *wire.MsgTx) {
			tx.TxIn[0].PreviousOutPoint = wire.OutPoint{Index: 0xffffffff}
			tx.TxIn[0].SignatureScript = bytes.Repeat([]byte{0x00}, 101)
		}, "bad-cb-length", 100},
		{"null prevout", func(tx *wire.MsgTx) {
			tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff},
				[]byte{0x51}))
		}, "bad-txns-prevout-null", 10},
	}

	for _, test := range tests {
		err := CheckTransactionSanity(sanityTestTx(test.mutate))
		if test.reason == "" {
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
		if rerr.Reason != test.reason {
			t.Errorf("%s: got reason %q, want %q", test.name,
				rerr.Reason, test.reason)
		}
		if rerr.BanScore != test.banScore {
			t.Errorf("%s: got ban score %d, want %d", test.name,
				rerr.BanScore, test.banScore)
		}
	}
}

func TestCheckBlockSanity(t *testing.T) {
	newCoinbase := func(script byte) *wire.MsgTx {
		coinbase := wire.NewMsgTx(1)
		coinbase.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff},
			[]byte{0x04, 0x31, 0x32, script}))
		coinbase.AddTxOut(wire.NewTxOut(100000*util.SatoshiPerCoin,
			[]byte{0x51}))
		return coinbase
	}

	buildBlock := func(txns ...*wire.MsgTx) *util.Block {
		utilTxns := make([]*util.Tx, 0, len(txns))
		for _, tx := range txns {
			utilTxns = append(utilTxns, util.NewTx(tx))
		}
		merkleRoot, _ := CalcMerkleRoot(utilTxns)
		return util.NewBlock(&wire.MsgBlock{
			Header: wire.BlockHeader{
				Version:    1,
				PrevBlock:  chainhash.Hash{0x01},
				MerkleRoot: merkleRoot,
				Timestamp:  time.Unix(time.Now().Unix(), 0),
				Bits:       0x207fffff,
			},
			Transactions: txns,
		})
	}

	powLimit := chaincfg.RegressionNetParams.PowLimit
	timeSource := NewMedianTime()

	// A minimal coinbase-only block passes the sanity checks.
	valid := buildBlock(newCoinbase(0x33))
	if err := checkBlockSanity(valid, powLimit, timeSource, BFNoPoWCheck); err != nil {
		t.Fatalf("valid block: %v", err)
	}

	// A second coinbase anywhere after the first is rejected outright.
	double := buildBlock(newCoinbase(0x33), newCoinbase(0x34))
	err := checkBlockSanity(double, powLimit, timeSource, BFNoPoWCheck)
	rerr, ok := err.(RuleError)
	if !ok || rerr.Reason != "bad-cb-multiple" {
		t.Fatalf("second coinbase: got %v, want bad-cb-multiple", err)
	}
	if rerr.BanScore != 100 {
		t.Fatalf("second coinbase ban score: got %d, want 100",
			rerr.BanScore)
	}

	// A block whose first transaction is not a coinbase is rejected too.
	spend := wire.NewMsgTx(1)
	spend.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x02}},
		[]byte{0x51}))
	spend.AddTxOut(wire.NewTxOut(util.SatoshiPerCoin, []byte{0x51}))
	missing := buildBlock(spend)
	err = checkBlockSanity(missing, powLimit, timeSource, BFNoPoWCheck)
	if rerr, ok := err.(RuleError); !ok || rerr.Reason != "bad-cb-missing" {
		t.Fatalf("missing coinbase: got %v, want bad-cb-missing", err)
	}

	// A tampered merkle root no longer matches the transaction list.
	tampered := buildBlock(newCoinbase(0x33))
	tampered.MsgBlock().Header.MerkleRoot[0] ^= 0xff
	err = checkBlockSanity(tampered, powLimit, timeSource, BFNoPoWCheck)
	if rerr, ok := err.(RuleError); !ok || rerr.Reason != "bad-txnmrklroot" {
		t.Fatalf("tampered merkle root: got %v, want bad-txnmrklroot", err)
	}
}

func TestSerializedHeightScript(t *testing.T) {
	tests := []struct {
		height int32
		want   []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x51}},
		{16, []byte{0x60}},
		{17, []byte{0x01, 0x11}},
		{127, []byte{0x01, 0x7f}},
		// The high bit of the last byte forces a sign byte.
		{128, []byte{0x02, 0x80, 0x00}},
		{255, []byte{0x02, 0xff, 0x00}},
		{256, []byte{0x02, 0x00, 0x01}},
		{300000, []byte{0x03, 0xe0, 0x93, 0x04}},
		{1600000, []byte{0x03, 0x00, 0x6a, 0x18}},
	}

	for _, test := range tests {
		got := serializedHeightScript(test.height)
		if !bytes.Equal(got, test.want) {
			t.Errorf("height %d: got %x, want %x", test.height, got,
				test.want)
		}
	}
}

func TestIsFinalizedTransaction(t *testing.T) {
	blockTime := time.Unix(1600000000, 0)
	const blockHeight = 500

	tests := []struct {
		name     string
		lockTime uint32
		sequence uint32
		final    bool
	}{
		{"zero lock time", 0, 0, true},
		{"height lock in the past", blockHeight - 1, 0, true},
		{"height lock at the boundary", blockHeight, 0, false},
		{"height lock in the future", blockHeight + 1, 0, false},
		{"time lock in the past", 1599999999, 0, true},
		{"time lock in the future", 1600000001, 0, false},
		{"future lock disabled by sequence", blockHeight + 1,
			wire.MaxTxInSequenceNum, true},
	}

	for _, test := range tests {
		msgTx := wire.NewMsgTx(1)
		msgTx.LockTime = test.lockTime
		txIn := wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x01}}, nil)
		txIn.Sequence = test.sequence
		msgTx.AddTxIn(txIn)
		msgTx.AddTxOut(wire.NewTxOut(100, []byte{0x51}))

		got := IsFinalizedTransaction(util.NewTx(msgTx), blockHeight, blockTime)
		if got != test.final {
			t.Errorf("%s: got %v, want %v", test.name, got, test.final)
		}
	}
}

func TestCalcSequenceLock(t *testing.T) {
	// Fabricate a short mined chain with 100 second block spacing.
	var tip *blockNode
	baseTime := int64(1600000000)
	for height := int32(0); height <= 20; height++ {
		header := &wire.BlockHeader{
			Timestamp: time.Unix(baseTime+int64(height)*100, 0),
			Bits:      0x207fffff,
		}
		tip = newBlockNode(header, tip, false)
	}

	confirmedOut := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	mempoolOut := wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 0}
	view := NewUtxoViewpoint()
	view.addTxOut(confirmedOut, wire.NewTxOut(util.SatoshiPerCoin,
		[]byte{0x51}), false, false, 5, 0)
	view.addTxOut(mempoolOut, wire.NewTxOut(util.SatoshiPerCoin,
		[]byte{0x51}), false, false, 0x7fffffff, 0)

	// Seconds based locks of an input confirmed at height five count from
	// the median time of the block before it.
	medianTime := tip.Ancestor(4).CalcPastMedianTime().Unix()

	spend := func(version int32, prevOut wire.OutPoint, sequence uint32) *util.Tx {
		msgTx := wire.NewMsgTx(version)
		txIn := wire.NewTxIn(&prevOut, []byte{0x51})
		txIn.Sequence = sequence
		msgTx.AddTxIn(txIn)
		msgTx.AddTxOut(wire.NewTxOut(util.SatoshiPerCoin/2, []byte{0x51}))
		return util.NewTx(msgTx)
	}

	tests := []struct {
		name       string
		tx         *util.Tx
		wantSecs   int64
		wantHeight int32
	}{
		{
			"version 1 transactions have no relative locks",
			spend(1, confirmedOut, 3),
			-1, -1,
		},
		{
			"disable flag turns the lock off",
			spend(2, confirmedOut, wire.SequenceLockTimeDisabled|3),
			-1, -1,
		},
		{
			"block based lock counts from the input height",
			spend(2, confirmedOut, 3),
			-1, 7,
		},
		{
			"seconds based lock counts from the prior median time",
			spend(2, confirmedOut, wire.SequenceLockTimeIsSeconds|2),
			medianTime + (2 << wire.SequenceLockTimeGranularity) - 1, -1,
		},
		{
			"unconfirmed inputs count from the next height",
			spend(2, mempoolOut, 1),
			-1, 21,
		},
	}

	b := &ChainState{}
	for _, test := range tests {
		lock, err := b.calcSequenceLock(tip, test.tx, view, true)
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		if lock.Seconds != test.wantSecs || lock.BlockHeight != test.wantHeight {
			t.Errorf("%s: got (%d, %d), want (%d, %d)", test.name,
				lock.Seconds, lock.BlockHeight, test.wantSecs,
				test.wantHeight)
		}
	}

	// A missing input is an error rather than a lock.
	missing := spend(2, wire.OutPoint{Hash: chainhash.Hash{0x09}}, 1)
	_, err := b.calcSequenceLock(tip, missing, view, true)
	if rerr, ok := err.(RuleError); !ok ||
		rerr.Reason != "bad-txns-inputs-missingorspent" {

		t.Errorf("missing input: got %v, want bad-txns-inputs-missingorspent",
			err)
	}
}

func TestSequenceLockActive(t *testing.T) {
	medianTime := time.Unix(1600000000, 0)

	tests := []struct {
		name   string
		lock   SequenceLock
		height int32
		active bool
	}{
		{"no locks", SequenceLock{Seconds: -1, BlockHeight: -1}, 100, true},
		{"height lock met", SequenceLock{Seconds: -1, BlockHeight: 99}, 100, true},
		{"height lock unmet", SequenceLock{Seconds: -1, BlockHeight: 100}, 100, false},
		{"time lock met", SequenceLock{Seconds: 1599999999, BlockHeight: -1}, 100, true},
		{"time lock unmet", SequenceLock{Seconds: 1600000000, BlockHeight: -1}, 100, false},
	}

	for _, test := range tests {
		lock := test.lock
		got := SequenceLockActive(&lock, test.height, medianTime)
		if got != test.active {
			t.Errorf("%s: got %v, want %v", test.name, got, test.active)
		}
	}
}

func TestCheckTxInputs(t *testing.T) {
	params := &chaincfg.MainNetParams

	fundingOut := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	minedOut := wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 0}

	view := NewUtxoViewpoint()
	view.addTxOut(fundingOut, wire.NewTxOut(50*util.SatoshiPerCoin,
		[]byte{0x51}), false, false, 100, 0)
	view.addTxOut(minedOut, wire.NewTxOut(50*util.SatoshiPerCoin,
		[]byte{0x51}), true, false, 100, 0)

	spend := func(prevOut wire.OutPoint, value int64) *util.Tx {
		msgTx := wire.NewMsgTx(1)
		msgTx.AddTxIn(wire.NewTxIn(&prevOut, []byte{0x51}))
		msgTx.AddTxOut(wire.NewTxOut(value, []byte{0x51}))
		return util.NewTx(msgTx)
	}

	// An ordinary spend pays the difference as fee.
	fee, err := CheckTxInputs(spend(fundingOut, 49*util.SatoshiPerCoin), 110,
		view, params, 110, 0)
	if err != nil {
		t.Fatalf("ordinary spend: %v", err)
	}
	if fee != 1*util.SatoshiPerCoin {
		t.Errorf("ordinary spend fee: got %d, want %d", fee,
			1*util.SatoshiPerCoin)
	}

	// Spending more than the inputs provide is rejected.
	_, err = CheckTxInputs(spend(fundingOut, 51*util.SatoshiPerCoin), 110,
		view, params, 110, 0)
	if rerr, ok := err.(RuleError); !ok || rerr.Reason != "bad-txns-in-belowout" {
		t.Errorf("overspend: got %v, want bad-txns-in-belowout", err)
	}

	// Missing inputs are rejected without a ban score.
	missing := wire.OutPoint{Hash: chainhash.Hash{0x07}, Index: 0}
	_, err = CheckTxInputs(spend(missing, 1), 110, view, params, 110, 0)
	rerr, ok := err.(RuleError)
	if !ok || rerr.Reason != "bad-txns-inputs-missingorspent" {
		t.Fatalf("missing input: got %v, want bad-txns-inputs-missingorspent", err)
	}
	if rerr.BanScore != 0 {
		t.Errorf("missing input ban score: got %d, want 0", rerr.BanScore)
	}

	// Spending a young coinbase is only rejected once the tip has passed
	// the maturity enforcement height.
	_, err = CheckTxInputs(spend(minedOut, 1*util.SatoshiPerCoin), 110,
		view, params, 110, 0)
	if err != nil {
		t.Errorf("young coinbase before enforcement: %v", err)
	}
	_, err = CheckTxInputs(spend(minedOut, 1*util.SatoshiPerCoin), 110,
		view, params, params.MaturityEnforcementHeight+1, 0)
	if rerr, ok := err.(RuleError); !ok ||
		rerr.Reason != "bad-txns-premature-spend-of-coinbase" {

		t.Errorf("young coinbase after enforcement: got %v, want "+
			"bad-txns-premature-spend-of-coinbase", err)
	}
}

func TestCheckTxInputsCoinStake(t *testing.T) {
	const day = 60 * 60 * 24
	params := &chaincfg.MainNetParams

	stakeOut := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	view := NewUtxoViewpoint()
	view.addTxOut(stakeOut, wire.NewTxOut(1000*util.SatoshiPerCoin,
		[]byte{0x51}), false, false, 100, 0)

	// 1000 coins aged 40 days destroy 40000 coin-days.
	coinstake := func(reward int64) *util.Tx {
		msgTx := wire.NewMsgTx(1)
		msgTx.Time = 40 * day
		msgTx.AddTxIn(wire.NewTxIn(&stakeOut, []byte{0x51}))
		msgTx.AddTxOut(wire.NewTxOut(0, nil))
		msgTx.AddTxOut(wire.NewTxOut(1000*util.SatoshiPerCoin+reward,
			[]byte{0x51}))
		return util.NewTx(msgTx)
	}
	if !coinstake(0).IsCoinStake() {
		t.Fatal("test transaction is not a coinstake")
	}

	maxReward := CalcProofOfStakeReward(40000, 110, 0) + minTransactionFee

	fee, err := CheckTxInputs(coinstake(maxReward), 110, view, params, 110, 0)
	if err != nil {
		t.Fatalf("coinstake at max reward: %v", err)
	}
	if fee != 0 {
		t.Errorf("coinstake fee: got %d, want 0", fee)
	}

	_, err = CheckTxInputs(coinstake(maxReward+1), 110, view, params, 110, 0)
	if rerr, ok := err.(RuleError); !ok ||
		rerr.Reason != "bad-txns-stake-reward-too-high" {

		t.Errorf("excessive stake reward: got %v, want "+
			"bad-txns-stake-reward-too-high", err)
	}
}
