// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"time"

	"github.com/eccnet/eccd/blockchain"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/wire"
)

const (
	// maxStandardTxSize is the maximum size allowed for transactions that
	// are considered standard and will therefore be relayed and
	// considered for mining.
	maxStandardTxSize = 100000

	// maxStandardSigScriptSize is the maximum size allowed for a
	// transaction input signature script to be considered standard.
	maxStandardSigScriptSize = 1650

	// DefaultMinRelayTxFee is the minimum fee in satoshi that is required
	// for a transaction to be treated as free for relay and mining
	// purposes. It is also used to help determine if a transaction is
	// considered dust and as a base for calculating minimum required
	// fees for larger transactions. This value is in satoshi/1000 bytes.
	DefaultMinRelayTxFee = util.Amount(10000)

	// maxStandardTxChainLength is the maximum number of unconfirmed
	// ancestors or descendants a transaction in the pool may have.
	maxStandardTxChainLength = 25

	// maxStandardTxChainSize is the maximum combined size, in bytes, of
	// the unconfirmed ancestors or descendants of a transaction in the
	// pool.
	maxStandardTxChainSize = 101000

	// DefaultMempoolExpiry is how long a transaction may sit in the pool
	// before it is evicted.
	DefaultMempoolExpiry = 14 * 24 * time.Hour

	// DefaultMaxOrphanTxSize is the default maximum size allowed for an
	// orphan transaction.
	DefaultMaxOrphanTxSize = 100000

	// DefaultMaxMempoolSize is the default maximum memory the pool
	// dedicates to holding transactions.
	DefaultMaxMempoolSize = 300 * 1024 * 1024

	// absurdFeeMultiplier scales the minimum required fee into the bound
	// above which a fee is considered a mistake rather than a payment.
	absurdFeeMultiplier = 10000

	// absurdFeeCeiling is the flat absurd fee bound for service
	// transactions, which pay for their referenced data.
	absurdFeeCeiling = util.SatoshiPerCoin

	// bytesPerSigOp is the minimum number of transaction bytes a standard
	// transaction must carry per signature operation.
	bytesPerSigOp = 20

	// poolSizeBlockMultiplier is the pool occupancy, expressed in
	// multiples of the block size, at which the fee limiter demands its
	// maximum cutoff and grants only the minimum free relay allowance.
	poolSizeBlockMultiplier = 10

	// feeCutoffCeilingMultiplier scales the relay fee into the largest
	// fee cutoff the limiter demands under a full pool.
	feeCutoffCeilingMultiplier = 10

	// minFreeRelayLimit is the free relay allowance, in thousands of
	// bytes per minute, the limiter never drops below.
	minFreeRelayLimit = 1.0

	// feeLimiterWindow is the length, in seconds, of the exponentially
	// decaying window the fee cutoff and free relay allowance recover
	// over.
	feeLimiterWindow = 86400
)

// calcMinRequiredTxRelayFee returns the minimum transaction fee required for
// a transaction with the passed serialized size to be accepted into the
// memory pool and relayed.
func calcMinRequiredTxRelayFee(serializedSize int64, minRelayTxFee util.Amount) int64 {
	// Calculate the minimum fee for a transaction to be allowed into the
	// mempool and relayed by scaling the base fee (which is the minimum
	// free transaction relay fee). minRelayTxFee is in Satoshi/kB so
	// multiply by serializedSize (which is in bytes) and divide by 1000
	// to get minimum Satoshis.
	minFee := (serializedSize * int64(minRelayTxFee)) / 1000

	if minFee == 0 && minRelayTxFee > 0 {
		minFee = int64(minRelayTxFee)
	}

	// Set the minimum fee to the maximum possible value if the calculated
	// fee is not in the valid range for monetary amounts.
	if minFee < 0 || minFee > util.MaxSatoshi {
		minFee = util.MaxSatoshi
	}

	return minFee
}

// isDust returns whether or not the passed transaction output amount is
// considered dust or not based on the passed minimum transaction relay fee.
// Dust is defined in terms of the minimum transaction relay fee. In
// particular, if the cost to the network to spend coins is more than 1/3 of
// the minimum transaction relay fee, it is considered dust.
func isDust(txOut *wire.TxOut, minRelayTxFee util.Amount) bool {
	// Unspendable outputs are considered dust.
	if len(txOut.PkScript) > 0 && txOut.PkScript[0] == 0x6a { // OP_RETURN
		return true
	}

	// The total serialized size consists of the output and the associated
	// input script to redeem it. Spending a typical pay-to-pubkey-hash
	// output requires a 148 byte input.
	totalSize := txOut.SerializeSize() + 148

	// The output is considered dust if the cost to the network to spend
	// the coins is more than 1/3 of the minimum free transaction relay
	// fee. minFreeTxRelayFee is in Satoshi/KB, so multiply by 1000 to
	// convert to bytes.
	return txOut.Value*1000/(3*int64(totalSize)) < int64(minRelayTxFee)
}

// checkTransactionStandard performs a series of checks on a transaction to
// ensure it is a "standard" transaction. A standard transaction is one that
// conforms to several best practices about what is considered safe to relay
// and mine. Script-level standardness is left to the script verifier which
// applies the standard flag set during input validation.
func checkTransactionStandard(tx *util.Tx, height int32, medianTimePast time.Time, minRelayTxFee util.Amount, maxTxVersion int32) error {
	// The transaction must be a currently supported version.
	msgTx := tx.MsgTx()
	if msgTx.Version > maxTxVersion || msgTx.Version < 1 {
		str := fmt.Sprintf("transaction version %d is not in the "+
			"valid range of %d-%d", msgTx.Version, 1, maxTxVersion)
		return txRuleError(blockchain.RejectNonstandard, "version", str)
	}

	// The transaction must be finalized to be standard and therefore
	// considered for inclusion in a block.
	if !blockchain.IsFinalizedTransaction(tx, height, medianTimePast) {
		return txRuleError(blockchain.RejectNonstandard, "non-final",
			"transaction is not finalized")
	}

	// Since extremely large transactions with a lot of inputs can cost
	// almost as much to process as the sender fees, limit the maximum
	// size of a transaction. This also helps mitigate CPU exhaustion
	// attacks.
	serializedLen := msgTx.SerializeSize()
	if serializedLen > maxStandardTxSize {
		str := fmt.Sprintf("transaction size of %v is larger than max "+
			"allowed size of %v", serializedLen, maxStandardTxSize)
		return txRuleError(blockchain.RejectNonstandard, "tx-size", str)
	}

	for i, txIn := range msgTx.TxIn {
		// Each transaction input signature script must not exceed the
		// maximum size allowed for a standard transaction.
		sigScriptLen := len(txIn.SignatureScript)
		if sigScriptLen > maxStandardSigScriptSize {
			str := fmt.Sprintf("transaction input %d: signature "+
				"script size of %d bytes is large than max "+
				"allowed size of %d bytes", i, sigScriptLen,
				maxStandardSigScriptSize)
			return txRuleError(blockchain.RejectNonstandard,
				"scriptsig-size", str)
		}
	}

	// None of the outputs may hold an amount considered dust. The empty
	// output of a coinstake is exempt, it marks the transaction kind.
	for i, txOut := range msgTx.TxOut {
		if txOut.IsEmpty() && tx.IsCoinStake() {
			continue
		}
		if isDust(txOut, minRelayTxFee) {
			str := fmt.Sprintf("transaction output %d: payment "+
				"of %d is dust", i, txOut.Value)
			return txRuleError(blockchain.RejectDust, "dust", str)
		}
	}

	return nil
}

// calcInputValueAge is a helper function used to calculate the input age of
// a transaction. The input age for a txin is the number of confirmations
// since the referenced txout multiplied by its output value. The total input
// age is the sum of this value for each txin.
func calcInputValueAge(tx *wire.MsgTx, utxoView *blockchain.UtxoViewpoint, nextBlockHeight int32) float64 {
	var totalInputAge float64
	for _, txIn := range tx.TxIn {
		// Don't attempt to accumulate the total input age if the
		// referenced transaction output doesn't exist.
		entry := utxoView.LookupEntry(txIn.PreviousOutPoint)
		if entry != nil && !entry.IsSpent() {
			// Inputs with dependencies currently in the mempool
			// have their block height set to a special constant.
			// Their input age should be computed as zero since
			// their parent hasn't made it into a block yet.
			var inputAge int32
			originHeight := entry.BlockHeight()
			if originHeight == mempoolHeight {
				inputAge = 0
			} else {
				inputAge = nextBlockHeight - originHeight
			}

			// Sum the input value times age.
			inputValue := entry.Amount()
			totalInputAge += float64(inputValue * int64(inputAge))
		}
	}

	return totalInputAge
}

// calcPriority returns a transaction priority given a transaction and the
// sum of each of its input values multiplied by their age (number of
// confirmations). Thus, the final formula for the priority is:
// sum(inputValue * inputAge) / adjustedTxSize
func calcPriority(tx *wire.MsgTx, utxoView *blockchain.UtxoViewpoint, nextBlockHeight int32) float64 {
	// In order to encourage spending multiple old unspent transaction
	// outputs thereby reducing the total set, don't count the constant
	// overhead for each input as well as enough bytes of the signature
	// script to cover a pay-to-script-hash redemption with a compressed
	// pubkey. This makes additional inputs free by boosting the priority
	// of the transaction accordingly. No more incentive is given to avoid
	// encouraging gaming future transactions through the use of junk
	// outputs. This is the same logic used in the reference
	// implementation.
	//
	// A compressed pubkey pay-to-script-hash redemption with a maximum
	// len signature is of the form:
	// [OP_DATA_73 <73-byte sig> + OP_DATA_35 + {OP_DATA_33
	// <33 byte compressed pubkey> + OP_CHECKSIG}]
	//
	// Thus 1 + 73 + 1 + 1 + 33 + 1 = 110
	overhead := 0
	for _, txIn := range tx.TxIn {
		// Max inputs + size can't possibly overflow here.
		overhead += 41 + minInt(110, len(txIn.SignatureScript))
	}

	serializedTxSize := tx.SerializeSize()
	if overhead >= serializedTxSize {
		return 0.0
	}

	inputValueAge := calcInputValueAge(tx, utxoView, nextBlockHeight)
	return inputValueAge / float64(serializedTxSize-overhead)
}

// minInt is a helper function to return the minimum of two ints.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
