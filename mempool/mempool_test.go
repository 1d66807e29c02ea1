// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"sync"
	"testing"
	"time"

	"github.com/eccnet/eccd/blockchain"
	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// fakeChain is a fake chain backend that provides utxos, the best height, and
// the median time past to the pool under test.
type fakeChain struct {
	sync.RWMutex
	utxos          *blockchain.UtxoViewpoint
	currentHeight  int32
	medianTimePast time.Time
	moneySupply    int64

	// nextLockPoints, when set, is handed out by CalcSequenceLock in place
	// of the always-active default. lockPointsValid is what LockPointsValid
	// reports for cached lock points.
	nextLockPoints  *blockchain.LockPoints
	lockPointsValid bool
}

// FetchUtxoView loads utxo details about the inputs referenced by the passed
// transaction from the fake chain. It also adds entries for the outputs of
// the transaction itself so the pool can detect duplicates.
func (s *fakeChain) FetchUtxoView(tx *util.Tx) (*blockchain.UtxoViewpoint, error) {
	s.RLock()
	defer s.RUnlock()

	viewpoint := blockchain.NewUtxoViewpoint()
	prevOut := wire.OutPoint{Hash: *tx.Hash()}
	for txOutIdx := range tx.MsgTx().TxOut {
		prevOut.Index = uint32(txOutIdx)
		entry := s.utxos.LookupEntry(prevOut)
		viewpoint.Entries()[prevOut] = entry.Clone()
	}
	for _, txIn := range tx.MsgTx().TxIn {
		entry := s.utxos.LookupEntry(txIn.PreviousOutPoint)
		viewpoint.Entries()[txIn.PreviousOutPoint] = entry.Clone()
	}
	return viewpoint, nil
}

// BestHeight returns the current height associated with the fake chain.
func (s *fakeChain) BestHeight() int32 {
	s.RLock()
	defer s.RUnlock()
	return s.currentHeight
}

// MedianTimePast returns the median time past associated with the fake chain.
func (s *fakeChain) MedianTimePast() time.Time {
	s.RLock()
	defer s.RUnlock()
	return s.medianTimePast
}

// MoneySupply returns the total minted coins of the fake chain.
func (s *fakeChain) MoneySupply() int64 {
	s.RLock()
	defer s.RUnlock()
	return s.moneySupply
}

// CalcSequenceLock returns a sequence lock that is always active unless the
// fake chain was primed with explicit lock points.
func (s *fakeChain) CalcSequenceLock(tx *util.Tx, view *blockchain.UtxoViewpoint) (*blockchain.SequenceLock, *blockchain.LockPoints, error) {
	s.RLock()
	defer s.RUnlock()

	lp := s.nextLockPoints
	if lp == nil {
		lp = &blockchain.LockPoints{Height: -1, Time: -1}
	}
	seqLock := &blockchain.SequenceLock{
		Seconds:     lp.Time,
		BlockHeight: lp.Height,
	}
	return seqLock, lp, nil
}

// LockPointsValid reports whether cached lock points still hold on the fake
// chain.
func (s *fakeChain) LockPointsValid(lp *blockchain.LockPoints) bool {
	s.RLock()
	defer s.RUnlock()
	return s.lockPointsValid
}

// spendableOutpoint is a convenience type that houses a particular utxo and
// the amount associated with it.
type spendableOutpoint struct {
	outPoint wire.OutPoint
	amount   util.Amount
}

// poolHarness provides a harness that includes functionality for creating and
// signing transactions as well as a fake chain that provides utxos for use in
// generating valid transactions.
type poolHarness struct {
	chain  *fakeChain
	txPool *TxPool
}

// createTx creates a transaction that spends the passed outpoints, pays the
// passed fee, and splits the remainder evenly over the requested number of
// outputs.
func (p *poolHarness) createTx(fee util.Amount, inputs []spendableOutpoint, numOutputs int) *util.Tx {
	msgTx := wire.NewMsgTx(1)
	var total util.Amount
	for i := range inputs {
		total += inputs[i].amount
		msgTx.AddTxIn(wire.NewTxIn(&inputs[i].outPoint, []byte{0x51}))
	}
	amountPerOutput := int64(total-fee) / int64(numOutputs)
	for i := 0; i < numOutputs; i++ {
		msgTx.AddTxOut(wire.NewTxOut(amountPerOutput, dummyPkScript))
	}
	return util.NewTx(msgTx)
}

// chainedOutpoint returns a spendable outpoint for the given output of a
// transaction previously created with createTx.
func chainedOutpoint(tx *util.Tx, index uint32) spendableOutpoint {
	return spendableOutpoint{
		outPoint: wire.OutPoint{Hash: *tx.Hash(), Index: index},
		amount:   util.Amount(tx.MsgTx().TxOut[index].Value),
	}
}

// newPoolHarness returns a new instance of a pool harness initialized with a
// fake chain that holds the requested number of spendable outputs of 1000
// coins each.
func newPoolHarness(t *testing.T, numOutputs int) (*poolHarness, []spendableOutpoint) {
	t.Helper()

	fundingTx := wire.NewMsgTx(1)
	fundingTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x01}},
		[]byte{0x51}))
	for i := 0; i < numOutputs; i++ {
		fundingTx.AddTxOut(wire.NewTxOut(1000*util.SatoshiPerCoin,
			dummyPkScript))
	}
	funding := util.NewTx(fundingTx)

	chain := &fakeChain{
		utxos:           blockchain.NewUtxoViewpoint(),
		currentHeight:   200,
		medianTimePast:  time.Unix(1600000000, 0),
		lockPointsValid: true,
	}
	chain.utxos.AddTxOuts(funding, 100)

	harness := &poolHarness{
		chain: chain,
		txPool: New(&Config{
			Policy: Policy{
				DisableRelayPriority: true,
				FreeTxRelayLimit:     15.0,
				MaxOrphanTxs:         5,
				MaxOrphanTxSize:      DefaultMaxOrphanTxSize,
				MaxSigOpsPerTx:       20,
				MaxTxVersion:         2,
				LimitAncestorCount:   maxStandardTxChainLength,
				LimitDescendantCount: maxStandardTxChainLength,
				MinRelayTxFee:        1000,
				MaxMempoolSize:       DefaultMaxMempoolSize,
			},
			ChainParams:      &chaincfg.RegressionNetParams,
			FetchUtxoView:    chain.FetchUtxoView,
			BestHeight:       chain.BestHeight,
			MedianTimePast:   chain.MedianTimePast,
			CalcSequenceLock: chain.CalcSequenceLock,
			LockPointsValid:  chain.LockPointsValid,
			MoneySupply:      chain.MoneySupply,
		}),
	}

	outpoints := make([]spendableOutpoint, 0, numOutputs)
	for i := 0; i < numOutputs; i++ {
		outpoints = append(outpoints, spendableOutpoint{
			outPoint: wire.OutPoint{Hash: *funding.Hash(), Index: uint32(i)},
			amount:   util.Amount(1000 * util.SatoshiPerCoin),
		})
	}
	return harness, outpoints
}

// testPoolMembership tests the transaction pool associated with the provided
// test harness to determine if the passed transaction matches the provided
// orphan pool and transaction pool status.
func testPoolMembership(t *testing.T, p *poolHarness, tx *util.Tx, inOrphanPool, inTxPool bool) {
	t.Helper()

	txHash := tx.Hash()
	if got := p.txPool.IsOrphanInPool(txHash); got != inOrphanPool {
		t.Fatalf("IsOrphanInPool(%v): got %v, want %v", txHash, got,
			inOrphanPool)
	}
	if got := p.txPool.IsTransactionInPool(txHash); got != inTxPool {
		t.Fatalf("IsTransactionInPool(%v): got %v, want %v", txHash, got,
			inTxPool)
	}
	if got := p.txPool.HaveTransaction(txHash); got != (inOrphanPool || inTxPool) {
		t.Fatalf("HaveTransaction(%v): got %v", txHash, got)
	}
}

func TestProcessTransaction(t *testing.T) {
	harness, outputs := newPoolHarness(t, 2)

	tx := harness.createTx(10000, outputs[:1], 1)
	acceptedTxs, err := harness.txPool.ProcessTransaction(tx, false, false, 0)
	if err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}
	if len(acceptedTxs) != 1 || !acceptedTxs[0].Tx.Hash().IsEqual(tx.Hash()) {
		t.Fatalf("accepted %d transactions, want the submitted one",
			len(acceptedTxs))
	}
	if acceptedTxs[0].Fee != 10000 {
		t.Fatalf("recorded fee: got %d, want 10000", acceptedTxs[0].Fee)
	}
	testPoolMembership(t, harness, tx, false, true)
	if harness.txPool.Count() != 1 {
		t.Fatalf("pool count: got %d, want 1", harness.txPool.Count())
	}

	// Resubmitting the same transaction is rejected as a duplicate.
	_, err = harness.txPool.ProcessTransaction(tx, false, false, 0)
	if reason := ErrorReason(err); reason != "txn-already-in-mempool" {
		t.Fatalf("duplicate submit: got %v, want txn-already-in-mempool", err)
	}

	// A different transaction spending the same output conflicts. There is
	// no replacement, the first spender stays.
	conflict := harness.createTx(20000, outputs[:1], 2)
	_, err = harness.txPool.ProcessTransaction(conflict, false, false, 0)
	if reason := ErrorReason(err); reason != "txn-mempool-conflict" {
		t.Fatalf("conflicting spend: got %v, want txn-mempool-conflict", err)
	}
	testPoolMembership(t, harness, tx, false, true)

	// Standalone coinbase transactions never belong in the pool.
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff},
		[]byte{0x04, 0x31, 0x32, 0x33}))
	coinbase.AddTxOut(wire.NewTxOut(1000*util.SatoshiPerCoin, dummyPkScript))
	_, err = harness.txPool.ProcessTransaction(util.NewTx(coinbase), false,
		false, 0)
	if reason := ErrorReason(err); reason != "coinbase" {
		t.Fatalf("coinbase submit: got %v, want coinbase", err)
	}
}

func TestOrphanProcessing(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)

	parent := harness.createTx(10000, outputs[:1], 1)
	child := harness.createTx(10000, []spendableOutpoint{
		chainedOutpoint(parent, 0),
	}, 1)

	// The child arrives first and lands in the orphan pool.
	acceptedTxs, err := harness.txPool.ProcessTransaction(child, true, false, 1)
	if err != nil {
		t.Fatalf("ProcessTransaction orphan: %v", err)
	}
	if len(acceptedTxs) != 0 {
		t.Fatalf("orphan accepted into the main pool: %d txns",
			len(acceptedTxs))
	}
	testPoolMembership(t, harness, child, true, false)

	// Accepting the parent pulls the orphan into the main pool with it.
	acceptedTxs, err = harness.txPool.ProcessTransaction(parent, false, false, 0)
	if err != nil {
		t.Fatalf("ProcessTransaction parent: %v", err)
	}
	if len(acceptedTxs) != 2 {
		t.Fatalf("accepted %d transactions, want 2", len(acceptedTxs))
	}
	if !acceptedTxs[0].Tx.Hash().IsEqual(parent.Hash()) {
		t.Fatal("parent must be reported before the promoted orphan")
	}
	testPoolMembership(t, harness, parent, false, true)
	testPoolMembership(t, harness, child, false, true)
}

func TestOrphanRejection(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)

	parent := harness.createTx(10000, outputs[:1], 1)
	orphan := harness.createTx(10000, []spendableOutpoint{
		chainedOutpoint(parent, 0),
	}, 1)

	// Orphans are rejected outright when the caller disallows them.
	_, err := harness.txPool.ProcessTransaction(orphan, false, false, 0)
	if reason := ErrorReason(err); reason != "bad-txns-inputs-spent" {
		t.Fatalf("disallowed orphan: got %v, want bad-txns-inputs-spent", err)
	}
	testPoolMembership(t, harness, orphan, false, false)
}

func TestRemoveOrphansByTag(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)

	parent := harness.createTx(10000, outputs[:1], 1)
	orphan := harness.createTx(10000, []spendableOutpoint{
		chainedOutpoint(parent, 0),
	}, 1)
	if _, err := harness.txPool.ProcessTransaction(orphan, true, false, 7); err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}
	testPoolMembership(t, harness, orphan, true, false)

	if evicted := harness.txPool.RemoveOrphansByTag(7); evicted != 1 {
		t.Fatalf("RemoveOrphansByTag: evicted %d, want 1", evicted)
	}
	testPoolMembership(t, harness, orphan, false, false)
}

func TestAncestorChainLimit(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)

	// Build a chain of zero confirmation spends. Transaction number i has
	// i unconfirmed ancestors, so the chain is cut off once a transaction
	// would exceed the ancestor limit.
	prevOut := outputs[0]
	for i := 0; i <= maxStandardTxChainLength; i++ {
		tx := harness.createTx(10000, []spendableOutpoint{prevOut}, 1)
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("chained transaction %d: %v", i, err)
		}
		prevOut = chainedOutpoint(tx, 0)
	}

	overLimit := harness.createTx(10000, []spendableOutpoint{prevOut}, 1)
	_, err := harness.txPool.ProcessTransaction(overLimit, false, false, 0)
	if reason := ErrorReason(err); reason != "too-long-mempool-chain" {
		t.Fatalf("over-limit chain: got %v, want too-long-mempool-chain", err)
	}
	testPoolMembership(t, harness, overLimit, false, false)
}

func TestAbsurdFeeRejection(t *testing.T) {
	harness, outputs := newPoolHarness(t, 3)

	// The bound scales with the minimum required fee of the transaction, so
	// a small spend paying a fifth of a coin is far beyond it.
	tx := harness.createTx(util.Amount(20*util.SatoshiPerCent), outputs[:1], 1)
	_, err := harness.txPool.ProcessTransaction(tx, false, false, 0)
	if reason := ErrorReason(err); reason != "absurdly-high-fee" {
		t.Fatalf("absurd fee: got %v, want absurdly-high-fee", err)
	}
	testPoolMembership(t, harness, tx, false, false)

	// Version 2 transactions pay for their referenced data, only the flat
	// one coin bound applies and the same fee passes.
	v2 := harness.createTx(util.Amount(20*util.SatoshiPerCent), outputs[1:2], 1)
	v2.MsgTx().Version = 2
	v2 = util.NewTx(v2.MsgTx())
	if _, err := harness.txPool.ProcessTransaction(v2, false, false, 0); err != nil {
		t.Fatalf("version 2 high fee: %v", err)
	}
	testPoolMembership(t, harness, v2, false, true)

	// Above the flat bound even a version 2 fee is refused.
	over := harness.createTx(util.Amount(2*util.SatoshiPerCoin), outputs[2:3], 1)
	over.MsgTx().Version = 2
	over = util.NewTx(over.MsgTx())
	_, err = harness.txPool.ProcessTransaction(over, false, false, 0)
	if reason := ErrorReason(err); reason != "absurdly-high-fee" {
		t.Fatalf("version 2 absurd fee: got %v, want absurdly-high-fee", err)
	}
	testPoolMembership(t, harness, over, false, false)
}

func TestExpire(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)
	harness.txPool.cfg.Policy.MempoolExpiry = time.Hour

	tx := harness.createTx(10000, outputs[:1], 1)
	if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}

	// Nothing is old enough to expire yet.
	if removed := harness.txPool.Expire(); removed != 0 {
		t.Fatalf("Expire: removed %d, want 0", removed)
	}

	// Backdate the entry past the expiry and try again.
	harness.txPool.mtx.Lock()
	harness.txPool.pool[*tx.Hash()].Added = time.Now().Add(-2 * time.Hour)
	harness.txPool.mtx.Unlock()
	if removed := harness.txPool.Expire(); removed != 1 {
		t.Fatalf("Expire: removed %d, want 1", removed)
	}
	testPoolMembership(t, harness, tx, false, false)
}

// fakeScriptVerifier is a script engine stand-in that reports a fixed legacy
// sigop count and passes every script.
type fakeScriptVerifier struct {
	sigOps int
}

func (v *fakeScriptVerifier) VerifyTxIn(tx *util.Tx, txInIdx int, entry *blockchain.UtxoEntry, flags blockchain.ScriptFlags) error {
	return nil
}

func (v *fakeScriptVerifier) GetLegacySigOpCount(tx *util.Tx) int {
	return v.sigOps
}

func (v *fakeScriptVerifier) GetP2SHSigOpCount(tx *util.Tx, view *blockchain.UtxoViewpoint) (int, error) {
	return 0, nil
}

func (v *fakeScriptVerifier) VerifyBlockSignature(block *wire.MsgBlock) error {
	return nil
}

func TestSigOpDensityLimit(t *testing.T) {
	harness, outputs := newPoolHarness(t, 2)

	// A 90 byte transaction affords four signature operations at twenty
	// bytes each. One more is packed too densely even though the absolute
	// per-transaction limit is far away.
	verifier := &fakeScriptVerifier{sigOps: 5}
	harness.txPool.cfg.ScriptVerifier = verifier

	tx := harness.createTx(10000, outputs[:1], 1)
	_, err := harness.txPool.ProcessTransaction(tx, false, false, 0)
	if reason := ErrorReason(err); reason != "bad-txns-too-many-sigops" {
		t.Fatalf("dense sigops: got %v, want bad-txns-too-many-sigops", err)
	}
	testPoolMembership(t, harness, tx, false, false)

	verifier.sigOps = 4
	tx2 := harness.createTx(10000, outputs[1:2], 1)
	if _, err := harness.txPool.ProcessTransaction(tx2, false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}
	testPoolMembership(t, harness, tx2, false, true)
}

func TestAdaptiveFeeLimiter(t *testing.T) {
	harness, _ := newPoolHarness(t, 1)
	mp := harness.txPool
	mp.cfg.Policy.BlockMaxSize = 1000

	rateAt := func(poolBytes int64) (int64, float64) {
		mp.mtx.Lock()
		defer mp.mtx.Unlock()
		mp.totalTxSize = poolBytes
		rate := mp.updateFeeLimiter()
		return rate, mp.freeRelayLimit
	}

	// Below one block worth of transactions the cutoff sits at the relay
	// fee and the full free relay allowance is granted.
	if rate, free := rateAt(0); rate != 1000 || free != 15.0 {
		t.Fatalf("empty pool: got rate %d, allowance %g; want 1000, 15",
			rate, free)
	}

	// Halfway between one and ten blocks worth both values interpolate
	// linearly: the cutoff to 5.5 satoshi per byte and the allowance down
	// to 8 kB per minute.
	if rate, free := rateAt(5500); rate != 5500 || free != 8.0 {
		t.Fatalf("half-full pool: got rate %d, allowance %g; want 5500, 8",
			rate, free)
	}

	// At ten blocks worth and beyond the maximum cutoff and the minimum
	// allowance apply.
	if rate, free := rateAt(20000); rate != 10000 || free != 1.0 {
		t.Fatalf("full pool: got rate %d, allowance %g; want 10000, 1",
			rate, free)
	}

	// After a day with the pool drained the cutoff has decayed noticeably
	// toward the floor and the allowance recovered toward the configured
	// limit.
	mp.mtx.Lock()
	mp.lastLimiterTime = time.Now().Add(-24 * time.Hour)
	mp.mtx.Unlock()
	rate, free := rateAt(0)
	if rate <= 1000 || rate >= 10000 {
		t.Fatalf("decayed cutoff: got rate %d, want within (1000, 10000)",
			rate)
	}
	if free <= 1.0 || free >= 15.0 {
		t.Fatalf("recovered allowance: got %g, want within (1, 15)", free)
	}
}

func TestFreeRelayThrottling(t *testing.T) {
	harness, outputs := newPoolHarness(t, 2)
	mp := harness.txPool
	mp.cfg.Policy.BlockMaxSize = 1000

	// With an empty pool a feeless spend slips under the relay fee and is
	// accepted on the free relay allowance.
	tx := harness.createTx(50, outputs[:1], 1)
	if _, err := mp.ProcessTransaction(tx, false, true, 0); err != nil {
		t.Fatalf("free transaction on empty pool: %v", err)
	}
	testPoolMembership(t, harness, tx, false, true)

	// Fill the pool past ten blocks worth so the allowance collapses to
	// its minimum, and exhaust the remaining budget. The next feeless
	// spend is throttled.
	mp.mtx.Lock()
	mp.totalTxSize = 20000
	mp.pennyTotal = 10001
	mp.lastPennyUnix = time.Now().Unix()
	mp.mtx.Unlock()

	tx2 := harness.createTx(50, outputs[1:2], 1)
	_, err := mp.ProcessTransaction(tx2, false, true, 0)
	if reason := ErrorReason(err); reason != "rate limited free transaction" {
		t.Fatalf("throttled free transaction: got %v, want rate limited "+
			"free transaction", err)
	}
	testPoolMembership(t, harness, tx2, false, false)
}

func TestAncestorDescendantAggregates(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)

	parent := harness.createTx(10000, outputs[:1], 1)
	child := harness.createTx(20000, []spendableOutpoint{
		chainedOutpoint(parent, 0),
	}, 1)
	for _, tx := range []*util.Tx{parent, child} {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction(%v): %v", tx.Hash(), err)
		}
	}

	harness.txPool.mtx.RLock()
	parentDesc := harness.txPool.pool[*parent.Hash()]
	childDesc := harness.txPool.pool[*child.Hash()]
	harness.txPool.mtx.RUnlock()

	txSize := parentDesc.Size
	if parentDesc.DescendantCount != 2 ||
		parentDesc.DescendantSize != 2*txSize ||
		parentDesc.DescendantFees != 30000 {
		t.Fatalf("parent descendants: got (%d, %d, %d), want (2, %d, 30000)",
			parentDesc.DescendantCount, parentDesc.DescendantSize,
			parentDesc.DescendantFees, 2*txSize)
	}
	if childDesc.AncestorCount != 2 || childDesc.AncestorSize != 2*txSize ||
		childDesc.AncestorFees != 30000 {
		t.Fatalf("child ancestors: got (%d, %d, %d), want (2, %d, 30000)",
			childDesc.AncestorCount, childDesc.AncestorSize,
			childDesc.AncestorFees, 2*txSize)
	}

	// Removing the child rolls its contribution out of the parent.
	harness.txPool.RemoveTransaction(child, false)
	harness.txPool.mtx.RLock()
	parentDesc = harness.txPool.pool[*parent.Hash()]
	harness.txPool.mtx.RUnlock()
	if parentDesc.DescendantCount != 1 || parentDesc.DescendantSize != txSize ||
		parentDesc.DescendantFees != 10000 {
		t.Fatalf("parent after child removal: got (%d, %d, %d), want "+
			"(1, %d, 10000)", parentDesc.DescendantCount,
			parentDesc.DescendantSize, parentDesc.DescendantFees, txSize)
	}
}

func TestPackageEviction(t *testing.T) {
	harness, outputs := newPoolHarness(t, 2)
	harness.txPool.cfg.Policy.MaxMempoolSize = 250

	// The cheap parent is propped up by its well-paying child: judged as a
	// package it outbids the middling standalone newcomer, which is the
	// one evicted when the pool overflows.
	parent := harness.createTx(500, outputs[:1], 1)
	child := harness.createTx(10000, []spendableOutpoint{
		chainedOutpoint(parent, 0),
	}, 1)
	for _, tx := range []*util.Tx{parent, child} {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction(%v): %v", tx.Hash(), err)
		}
	}

	newcomer := harness.createTx(2000, outputs[1:2], 1)
	_, err := harness.txPool.ProcessTransaction(newcomer, false, false, 0)
	if reason := ErrorReason(err); reason != "mempool full" {
		t.Fatalf("overflowing submit: got %v, want mempool full", err)
	}
	testPoolMembership(t, harness, parent, false, true)
	testPoolMembership(t, harness, child, false, true)
	testPoolMembership(t, harness, newcomer, false, false)

	// The eviction raised the rolling minimum fee rate for future entries.
	harness.txPool.mtx.Lock()
	rolling := harness.txPool.minPoolFeeRate()
	harness.txPool.mtx.Unlock()
	if rolling == 0 {
		t.Fatal("rolling minimum fee rate not raised by eviction")
	}
}

func TestReorgLockPointRevalidation(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)

	tx := harness.createTx(10000, outputs[:1], 1)
	if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}
	testPoolMembership(t, harness, tx, false, true)

	// Prime the chain so a fresh calculation would yield an unmet height
	// lock. While the cached lock points remain valid the reorg pass
	// reuses them and keeps the entry.
	harness.chain.Lock()
	harness.chain.nextLockPoints = &blockchain.LockPoints{Height: 400, Time: -1}
	harness.chain.Unlock()
	harness.txPool.RemoveForReorg()
	testPoolMembership(t, harness, tx, false, true)

	// Once the recorded block left the active chain the locks are
	// evaluated again and the unmet lock evicts the entry.
	harness.chain.Lock()
	harness.chain.lockPointsValid = false
	harness.chain.Unlock()
	harness.txPool.RemoveForReorg()
	testPoolMembership(t, harness, tx, false, false)
}

func TestUncacheOnRemoval(t *testing.T) {
	harness, outputs := newPoolHarness(t, 1)

	var uncached []chainhash.Hash
	harness.txPool.cfg.Uncache = func(tx *util.Tx) {
		uncached = append(uncached, *tx.Hash())
	}

	parent := harness.createTx(10000, outputs[:1], 1)
	child := harness.createTx(10000, []spendableOutpoint{
		chainedOutpoint(parent, 0),
	}, 1)
	for _, tx := range []*util.Tx{parent, child} {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction(%v): %v", tx.Hash(), err)
		}
	}

	// Removing the parent with its redeemers releases the cached coins of
	// both transactions.
	harness.txPool.RemoveTransaction(parent, true)
	if len(uncached) != 2 {
		t.Fatalf("uncache hook: got %d calls, want 2", len(uncached))
	}
	seen := map[chainhash.Hash]bool{uncached[0]: true, uncached[1]: true}
	if !seen[*parent.Hash()] || !seen[*child.Hash()] {
		t.Fatalf("uncache hook: released %v, want parent and child",
			uncached)
	}
}
