// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

const (
	// MaxBlockSize is the maximum number of bytes a serialized block may
	// occupy. The transaction count shares the same bound.
	MaxBlockSize = wire.MaxBlockPayload

	// MaxBlockSigOps is the maximum number of legacy signature operations
	// allowed in a block.
	MaxBlockSigOps = 20000

	// MaxCoinbaseScriptLen is the maximum length a coinbase signature
	// script may be.
	MaxCoinbaseScriptLen = 100

	// MinCoinbaseScriptLen is the minimum length a coinbase signature
	// script must be.
	MinCoinbaseScriptLen = 2

	// maxFutureBlockTime is how far into the future a block timestamp may
	// reach before the block is rejected outright.
	maxFutureBlockTime = 2 * time.Hour

	// serviceTxFirstVersion marks the first transaction version carrying
	// a service reference.
	serviceTxFirstVersion = 2

	// coinbaseHeightRuleVersion is the block version whose supermajority
	// makes the serialized-height-in-coinbase rule mandatory.
	coinbaseHeightRuleVersion = 2
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFFastAdd may be set to indicate that several checks can be avoided
	// for the block since it is already known to fit into the chain due
	// to already proving it correct links into the chain up to a known
	// checkpoint.
	BFFastAdd BehaviorFlags = 1 << iota

	// BFNoPoWCheck may be set to indicate the proof of work check which
	// ensures a block hashes to a value less than the required target
	// will not be performed.
	BFNoPoWCheck

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

// SequenceLock represents the converted relative lock-time in seconds, and
// absolute block-height for a transaction input's relative lock-times.
// According to SequenceLock, after the referenced input has been confirmed
// within a block, a transaction spending that input can be included into a
// block either after 'seconds' (according to past median time), or once the
// 'BlockHeight' has been reached.
type SequenceLock struct {
	Seconds     int64
	BlockHeight int32
}

// LockPoints records the point on the chain a transaction's sequence locks
// were last evaluated against. As long as the recorded block is still on the
// active chain the evaluation remains valid and does not need to be redone.
type LockPoints struct {
	Height int32
	Time   int64

	// MaxInputBlock is the highest block an input of the transaction is
	// confirmed in among those that participate in the lock calculation.
	// It is nil when no input constrains the lock.
	MaxInputBlock *chainhash.Hash
}

// IsFinalizedTransaction determines whether or not a transaction is finalized.
func IsFinalizedTransaction(tx *util.Tx, blockHeight int32, blockTime time.Time) bool {
	msgTx := tx.MsgTx()

	// Lock time of zero means the transaction is finalized.
	lockTime := msgTx.LockTime
	if lockTime == 0 {
		return true
	}

	// The lock time field of a transaction is either a block height at
	// which the transaction is finalized or a timestamp depending on if
	// the value is before the lock time threshold. When it is under the
	// threshold it is a block height.
	blockTimeOrHeight := int64(0)
	if lockTime < wire.LockTimeThreshold {
		blockTimeOrHeight = int64(blockHeight)
	} else {
		blockTimeOrHeight = blockTime.Unix()
	}
	if int64(lockTime) < blockTimeOrHeight {
		return true
	}

	// At this point, the transaction's lock time hasn't occurred yet, but
	// the transaction might still be finalized if the sequence number
	// for all transaction inputs is maxed out.
	for _, txIn := range msgTx.TxIn {
		if txIn.Sequence != wire.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}

// CheckTransactionSanity performs some preliminary checks on a transaction to
// ensure it is sane. These checks are context free.
func CheckTransactionSanity(tx *util.Tx) error {
	// A transaction must have at least one input.
	msgTx := tx.MsgTx()
	if len(msgTx.TxIn) == 0 {
		return dosError(10, RejectInvalid, "bad-txns-vin-empty",
			"transaction has no inputs")
	}

	// A transaction must have at least one output.
	if len(msgTx.TxOut) == 0 {
		return dosError(10, RejectInvalid, "bad-txns-vout-empty",
			"transaction has no outputs")
	}

	// A transaction must not exceed the maximum allowed block size when
	// serialized.
	serializedTxSize := msgTx.SerializeSize()
	if serializedTxSize > MaxBlockSize {
		str := fmt.Sprintf("serialized transaction is too big - got "+
			"%d, max %d", serializedTxSize, MaxBlockSize)
		return dosError(100, RejectInvalid, "bad-txns-oversize", str)
	}

	// Ensure the transaction amounts are in range. Each transaction
	// output must not be negative or more than the max allowed per
	// transaction. Also, the total of all outputs must abide by the same
	// restrictions.
	var totalSatoshi int64
	for _, txOut := range msgTx.TxOut {
		satoshi := txOut.Value
		if satoshi < 0 {
			str := fmt.Sprintf("transaction output has negative "+
				"value of %v", satoshi)
			return dosError(100, RejectInvalid, "bad-txns-vout-negative", str)
		}
		if satoshi > util.MaxSatoshi {
			str := fmt.Sprintf("transaction output value of %v is "+
				"higher than max allowed value of %v", satoshi,
				util.MaxSatoshi)
			return dosError(100, RejectInvalid, "bad-txns-vout-toolarge", str)
		}

		// Binary arithmetic guarantees that any overflow is detected
		// and reported. This is impossible for Bitcoin, but perhaps
		// possible if an alt increases the total money supply.
		totalSatoshi += satoshi
		if totalSatoshi < 0 || totalSatoshi > util.MaxSatoshi {
			str := fmt.Sprintf("total value of all transaction "+
				"outputs is %v which is higher than max "+
				"allowed value of %v", totalSatoshi,
				util.MaxSatoshi)
			return dosError(100, RejectInvalid, "bad-txns-txouttotal-toolarge", str)
		}
	}

	// Check for duplicate transaction inputs.
	existingTxOut := make(map[wire.OutPoint]struct{})
	for _, txIn := range msgTx.TxIn {
		if _, exists := existingTxOut[txIn.PreviousOutPoint]; exists {
			return dosError(100, RejectInvalid, "bad-txns-inputs-duplicate",
				"transaction contains duplicate inputs")
		}
		existingTxOut[txIn.PreviousOutPoint] = struct{}{}
	}

	// Coinbase script length must be between min and max length.
	if tx.IsCoinBase() {
		slen := len(msgTx.TxIn[0].SignatureScript)
		if slen < MinCoinbaseScriptLen || slen > MaxCoinbaseScriptLen {
			str := fmt.Sprintf("coinbase transaction script length "+
				"of %d is out of range (min: %d, max: %d)",
				slen, MinCoinbaseScriptLen, MaxCoinbaseScriptLen)
			return dosError(100, RejectInvalid, "bad-cb-length", str)
		}
	} else {
		// Previous transaction outputs referenced by the inputs to this
		// transaction must not be null.
		for _, txIn := range msgTx.TxIn {
			if isNullOutPoint(&txIn.PreviousOutPoint) {
				return dosError(10, RejectInvalid, "bad-txns-prevout-null",
					"transaction input refers to previous output that is null")
			}
		}
	}

	return nil
}

// isNullOutPoint determines whether or not a previous transaction outpoint is
// set.
func isNullOutPoint(outpoint *wire.OutPoint) bool {
	if outpoint.Index == 0xffffffff && outpoint.Hash == zeroHash {
		return true
	}
	return false
}

// checkBlockHeaderSanity performs some preliminary checks on a block header
// to ensure it is sane before continuing with processing. These checks are
// context free.
func checkBlockHeaderSanity(header *wire.BlockHeader, powLimit *big.Int, timeSource MedianTimeSource, proofOfStake bool, flags BehaviorFlags) error {
	// Ensure the proof of work bits in the block header is in min/max
	// range and the block hash is less than the target value described by
	// the bits. Staked blocks prove themselves through their coinstake
	// kernel instead.
	if !proofOfStake && flags&BFNoPoWCheck != BFNoPoWCheck {
		err := checkProofOfWork(header, powLimit)
		if err != nil {
			return err
		}
	}

	// A block timestamp must not have a greater precision than one second.
	// This check is necessary because Go time.Time values support
	// nanosecond precision whereas the consensus rules only apply to
	// seconds and it's much nicer to deal with standard Go time values
	// instead of converting to seconds everywhere.
	if !header.Timestamp.Equal(time.Unix(header.Timestamp.Unix(), 0)) {
		str := fmt.Sprintf("block timestamp of %v has a higher "+
			"precision than one second", header.Timestamp)
		return ruleError(RejectInvalid, "time-too-new", str)
	}

	// Ensure the block time is not too far in the future.
	maxTimestamp := timeSource.AdjustedTime().Add(maxFutureBlockTime)
	if header.Timestamp.After(maxTimestamp) {
		str := fmt.Sprintf("block timestamp of %v is too far in the "+
			"future", header.Timestamp)
		return ruleError(RejectInvalid, "time-too-new", str)
	}

	return nil
}

// checkBlockSanity performs some preliminary checks on a block to ensure it
// is sane before continuing with block processing. These checks are context
// free.
func checkBlockSanity(block *util.Block, powLimit *big.Int, timeSource MedianTimeSource, flags BehaviorFlags) error {
	msgBlock := block.MsgBlock()
	header := &msgBlock.Header
	proofOfStake := block.IsProofOfStake()

	err := checkBlockHeaderSanity(header, powLimit, timeSource, proofOfStake, flags)
	if err != nil {
		return err
	}

	// A block must have at least one transaction.
	numTx := len(msgBlock.Transactions)
	if numTx == 0 {
		return dosError(100, RejectInvalid, "bad-blk-length",
			"block does not contain any transactions")
	}

	// A block must not have more transactions than the max block payload.
	if numTx > MaxBlockSize {
		str := fmt.Sprintf("block contains too many transactions - "+
			"got %d, max %d", numTx, MaxBlockSize)
		return dosError(100, RejectInvalid, "bad-blk-length", str)
	}

	// A block must not exceed the maximum allowed block payload when
	// serialized.
	serializedSize := msgBlock.SerializeSize()
	if serializedSize > MaxBlockSize {
		str := fmt.Sprintf("serialized block is too big - got %d, "+
			"max %d", serializedSize, MaxBlockSize)
		return dosError(100, RejectInvalid, "bad-blk-length", str)
	}

	// The first transaction in a block must be a coinbase.
	transactions := block.Transactions()
	if !transactions[0].IsCoinBase() {
		return dosError(100, RejectInvalid, "bad-cb-missing",
			"first transaction in block is not a coinbase")
	}

	// A block must not have more than one coinbase.
	for i, tx := range transactions[1:] {
		if tx.IsCoinBase() {
			str := fmt.Sprintf("block contains second coinbase at "+
				"index %d", i+1)
			return dosError(100, RejectInvalid, "bad-cb-multiple", str)
		}
	}

	// Only the second transaction may be the optional coinstake.
	for i, tx := range transactions {
		if i > 1 && tx.IsCoinStake() {
			str := fmt.Sprintf("block contains coinstake at index %d", i)
			return dosError(100, RejectInvalid, "bad-cs-position", str)
		}
	}

	// The coinbase of a staked block carries no reward itself, it must
	// have exactly one empty output.
	if proofOfStake {
		coinbaseOuts := transactions[0].MsgTx().TxOut
		if len(coinbaseOuts) != 1 || !coinbaseOuts[0].IsEmpty() {
			return ruleError(RejectInvalid, "bad-cb-notempty",
				"coinbase output not empty for proof-of-stake block")
		}
	}

	// Check the merkle root. The calculated merkle root must match the
	// entry in the block header. A mutated transaction list yields the
	// same root as a valid one, so it is rejected as well.
	calculatedMerkleRoot, mutated := CalcMerkleRoot(transactions)
	if header.MerkleRoot != calculatedMerkleRoot {
		str := fmt.Sprintf("block merkle root is invalid - block "+
			"header indicates %v, but calculated value is %v",
			header.MerkleRoot, calculatedMerkleRoot)
		return dosError(100, RejectInvalid, "bad-txnmrklroot", str)
	}
	if mutated {
		return dosError(100, RejectInvalid, "bad-txns-duplicate",
			"block contains a mutated transaction list")
	}

	// Do some preliminary checks on each transaction to ensure they are
	// sane before continuing. A transaction claiming a timestamp after
	// its block cannot be valid either.
	blockTime := header.Timestamp.Unix()
	for _, tx := range transactions {
		err := CheckTransactionSanity(tx)
		if err != nil {
			return err
		}
		if blockTime < int64(tx.MsgTx().Time) {
			str := fmt.Sprintf("block timestamp %d is earlier than "+
				"timestamp %d of transaction %v", blockTime,
				tx.MsgTx().Time, tx.Hash())
			return dosError(50, RejectInvalid, "bad-txns-time", str)
		}
	}

	return nil
}

// CheckBlockSanity performs some preliminary checks on a block to ensure it
// is sane before continuing with block processing. These checks are context
// free.
func CheckBlockSanity(block *util.Block, powLimit *big.Int, timeSource MedianTimeSource) error {
	return checkBlockSanity(block, powLimit, timeSource, BFNone)
}

// checkServiceTransactions resolves the service references carried by
// version 2 transactions in the block. A reference that cannot be resolved
// locally is requested from the network and left alone, and a resolved
// reference that fails its own check only logs. Neither outcome fails the
// block, paid-for service data never holds up coin validity.
func (b *ChainState) checkServiceTransactions(block *util.Block) {
	if b.serviceTxPool == nil {
		return
	}

	for _, tx := range block.Transactions() {
		msgTx := tx.MsgTx()
		if msgTx.Version < serviceTxFirstVersion {
			continue
		}

		if !b.serviceTxPool.Have(&msgTx.ServiceReference) {
			log.Infof("Transaction %v pays for service transaction "+
				"%v but none can be found", tx.Hash(),
				msgTx.ServiceReference)
			if b.txRequester != nil {
				log.Infof("Requesting service transaction %v",
					msgTx.ServiceReference)
				b.txRequester.RequestServiceTransaction(&msgTx.ServiceReference)
			}
			continue
		}

		if err := b.serviceTxPool.Check(&msgTx.ServiceReference, tx); err != nil {
			log.Infof("Service transaction check of %v failed "+
				"with %v. This is a non fatal error", tx.Hash(), err)
		}
	}
}

// checkBlockSignature verifies the signature a block carries through the
// configured script verifier.
func (b *ChainState) checkBlockSignature(block *util.Block) error {
	if b.scriptVerifier == nil {
		return nil
	}
	if err := b.scriptVerifier.VerifyBlockSignature(block.MsgBlock()); err != nil {
		return dosError(100, RejectInvalid, "bad-block-sig", err.Error())
	}
	return nil
}

// checkIndexAgainstCheckpoint rejects blocks that would fork the chain
// before the most recent checkpoint.
func (b *ChainState) checkIndexAgainstCheckpoint(prevNode *blockNode) error {
	if prevNode.hash == *b.chainParams.GenesisHash {
		return nil
	}

	blockHeight := prevNode.height + 1
	checkpoint := b.latestCheckpoint()
	if checkpoint != nil && blockHeight < checkpoint.Height {
		str := fmt.Sprintf("forked chain older than last checkpoint "+
			"(height %d)", blockHeight)
		return dosError(100, RejectCheckpoint, "checkpoint-mismatch", str)
	}

	return nil
}

// checkBlockHeaderContext performs several validation checks on the block
// header which depend on its position within the block chain.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) checkBlockHeaderContext(header *wire.BlockHeader, prevNode *blockNode, proofOfStake bool, flags BehaviorFlags) error {
	if flags&BFFastAdd != BFFastAdd {
		// Ensure the difficulty specified in the block header matches
		// the calculated difficulty based on the previous block and
		// difficulty retarget rules.
		expectedDifficulty := b.calcNextRequiredDifficulty(prevNode, proofOfStake)
		blockDifficulty := header.Bits
		if blockDifficulty != expectedDifficulty {
			str := fmt.Sprintf("block difficulty of %d is not the "+
				"expected value of %d", blockDifficulty,
				expectedDifficulty)
			return dosError(100, RejectInvalid, "bad-diffbits", str)
		}

		// Ensure the timestamp for the block header is after the
		// median time of the last several blocks (medianTimeBlocks).
		medianTime := prevNode.CalcPastMedianTime()
		if !header.Timestamp.After(medianTime) {
			str := fmt.Sprintf("block timestamp of %v is not after "+
				"expected %v", header.Timestamp, medianTime)
			return ruleError(RejectInvalid, "time-too-old", str)
		}
	}

	return nil
}

// checkBlockContext peforms several validation checks on the block which
// depend on its position within the block chain.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) checkBlockContext(block *util.Block, prevNode *blockNode, flags BehaviorFlags) error {
	err := b.checkBlockHeaderContext(&block.MsgBlock().Header, prevNode,
		block.IsProofOfStake(), flags)
	if err != nil {
		return err
	}

	if flags&BFFastAdd == BFFastAdd {
		return nil
	}

	// The height of this block is one more than the referenced previous
	// block.
	blockHeight := prevNode.height + 1

	// All transactions must be finalized against the median time of the
	// previous block.
	blockTime := prevNode.CalcPastMedianTime()
	for _, tx := range block.Transactions() {
		if !IsFinalizedTransaction(tx, blockHeight, blockTime) {
			str := fmt.Sprintf("block contains unfinalized "+
				"transaction %v", tx.Hash())
			return dosError(10, RejectInvalid, "bad-txns-nonfinal", str)
		}
	}

	// Once a supermajority of the recent blocks carry version 2 or newer,
	// the coinbase signature script must start with the serialized block
	// height.
	if block.MsgBlock().Header.Version >= coinbaseHeightRuleVersion &&
		b.isSuperMajority(coinbaseHeightRuleVersion, prevNode,
			b.chainParams.BlockEnforceNumRequired) {

		expect := serializedHeightScript(blockHeight)
		coinbaseScript := block.Transactions()[0].MsgTx().TxIn[0].SignatureScript
		if len(coinbaseScript) < len(expect) ||
			!bytes.Equal(coinbaseScript[:len(expect)], expect) {
			return dosError(100, RejectInvalid, "bad-cb-height",
				"block height mismatch in coinbase")
		}
	}

	return nil
}

// isSuperMajority determines if a previous number of blocks in the chain
// starting with startNode are at least the minimum passed version.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) isSuperMajority(minVersion int32, startNode *blockNode, numRequired uint64) bool {
	numFound := uint64(0)
	iterNode := startNode
	numToCheck := b.chainParams.BlockUpgradeNumToCheck
	for i := uint64(0); i < numToCheck && numFound < numRequired &&
		iterNode != nil; i++ {

		// This node has a version that is at least the minimum version.
		if iterNode.version >= minVersion {
			numFound++
		}

		iterNode = iterNode.parent
	}

	return numFound >= numRequired
}

// serializedHeightScript returns the minimal script number push for the
// given block height, the form a coinbase script is required to begin with.
func serializedHeightScript(height int32) []byte {
	if height == 0 {
		return []byte{0x00} // OP_0
	}
	if height >= 1 && height <= 16 {
		return []byte{0x50 + byte(height)} // OP_1 .. OP_16
	}

	// Little endian with a sign byte when the high bit of the last byte
	// is set, preceded by the data push opcode for the length.
	n := uint64(height)
	var num []byte
	for n > 0 {
		num = append(num, byte(n&0xff))
		n >>= 8
	}
	if num[len(num)-1]&0x80 != 0 {
		num = append(num, 0x00)
	}
	script := make([]byte, 0, len(num)+1)
	script = append(script, byte(len(num)))
	script = append(script, num...)
	return script
}

// CheckTxInputs performs a series of checks on the inputs to a transaction to
// ensure they are valid. An example of some of the checks include verifying
// all inputs exist, ensuring the coinbase and coinstake maturity is met, the
// values are in range, and the transaction does not create more coins than
// its inputs and reward allow. It returns the fee of the transaction.
//
// tipHeight is the height of the current best tip, maturity of minted coins
// is only enforced once it exceeds the maturity enforcement height of the
// network. moneySupply is the coin supply at the tip and bounds the stake
// reward.
func CheckTxInputs(tx *util.Tx, spendHeight int32, view *UtxoViewpoint, chainParams *chaincfg.Params, tipHeight int32, moneySupply int64) (int64, error) {
	msgTx := tx.MsgTx()

	var totalSatoshiIn int64
	for _, txIn := range msgTx.TxIn {
		// Ensure the referenced input transaction is available. A
		// missing input does not carry a ban score on purpose, a
		// rejection here would make it easier to split the network.
		entry := view.LookupEntry(txIn.PreviousOutPoint)
		if entry == nil || entry.IsSpent() {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %s does not exist or has already "+
				"been spent", txIn.PreviousOutPoint, tx.Hash())
			return 0, ruleError(RejectInvalid, "bad-txns-inputs-missingorspent", str)
		}

		// Minted coins, both mined and staked, need to mature before
		// they can be spent.
		if entry.IsCoinBase() || tx.IsCoinStake() {
			originHeight := entry.BlockHeight()
			blocksSincePrev := spendHeight - originHeight
			if blocksSincePrev < int32(chainParams.CoinbaseMaturity) &&
				tipHeight > chainParams.MaturityEnforcementHeight {
				str := fmt.Sprintf("tried to spend coinbase at depth %d",
					blocksSincePrev)
				return 0, ruleError(RejectInvalid,
					"bad-txns-premature-spend-of-coinbase", str)
			}
		}

		// Ensure the transaction amounts are in range.
		totalSatoshiIn += entry.Amount()
		if entry.Amount() < 0 || entry.Amount() > util.MaxSatoshi ||
			totalSatoshiIn < 0 || totalSatoshiIn > util.MaxSatoshi {
			return 0, dosError(100, RejectInvalid,
				"bad-txns-inputvalues-outofrange",
				"transaction input values out of range")
		}
	}

	// Calculate the total output amount for this transaction.
	var totalSatoshiOut int64
	for _, txOut := range msgTx.TxOut {
		totalSatoshiOut += txOut.Value
	}

	// A coinstake mints its reward on top of its inputs, so the ordinary
	// in >= out rule does not apply. Instead the minted amount is bounded
	// by the reward its coin age earns.
	if tx.IsCoinStake() {
		coinAge, err := CalcCoinAge(tx, view)
		if err != nil {
			if IsRuleError(err) {
				return 0, dosError(100, RejectInvalid,
					"bad-txns-cant-get-coin-age",
					fmt.Sprintf("%s unable to get coin age for coinstake",
						tx.Hash().String()[:10]))
			}
			return 0, err
		}

		stakeReward := totalSatoshiOut - totalSatoshiIn
		maxReward := CalcProofOfStakeReward(coinAge, spendHeight, moneySupply) +
			minTransactionFee
		if stakeReward > maxReward {
			str := fmt.Sprintf("%s stake reward exceeded",
				tx.Hash().String()[:10])
			return 0, dosError(100, RejectInvalid,
				"bad-txns-stake-reward-too-high", str)
		}
		return 0, nil
	}

	// Ensure the transaction does not spend more than its inputs.
	if totalSatoshiIn < totalSatoshiOut {
		str := fmt.Sprintf("value in (%v) < value out (%v)",
			totalSatoshiIn, totalSatoshiOut)
		return 0, dosError(100, RejectInvalid, "bad-txns-in-belowout", str)
	}

	txFee := totalSatoshiIn - totalSatoshiOut
	if txFee < 0 {
		return 0, dosError(100, RejectInvalid, "bad-txns-fee-negative",
			"transaction fee is negative")
	}
	if txFee > util.MaxSatoshi {
		return 0, dosError(100, RejectInvalid, "bad-txns-fee-outofrange",
			"transaction fee is out of range")
	}
	return txFee, nil
}

// minTransactionFee is the default minimum fee, in satoshi, a transaction
// pays. The stake reward bound allows the staker to reclaim it.
const minTransactionFee = 10000

// CalcSequenceLock computes a relative lock-time SequenceLock for the passed
// transaction using the passed UtxoViewpoint to obtain the past median time
// for blocks in which the referenced inputs of the transactions were
// included within. The generated SequenceLock lock can be used in
// conjunction with a block height, and adjusted median block time to
// determine if all the inputs referenced within a transaction have reached
// sufficient maturity allowing the candidate transaction to be included in a
// block.
//
// This function is safe for concurrent access.
func (b *ChainState) CalcSequenceLock(tx *util.Tx, view *UtxoViewpoint, mempool bool) (*SequenceLock, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	return b.calcSequenceLock(b.bestChain.Tip(), tx, view, mempool)
}

// calcSequenceLock computes the relative lock-times for the passed
// transaction. See the exported version, CalcSequenceLock for further
// details.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) calcSequenceLock(node *blockNode, tx *util.Tx, view *UtxoViewpoint, mempool bool) (*SequenceLock, error) {
	// A value of -1 for each relative lock type represents a relative time
	// lock value that will allow a transaction to be included in a block
	// at any given height or time.
	sequenceLock := &SequenceLock{Seconds: -1, BlockHeight: -1}

	// Sequence locks don't apply to coinbase transactions and they are
	// only active for version 2 transactions onward.
	mTx := tx.MsgTx()
	sequenceLockActive := mTx.Version >= 2
	if !sequenceLockActive || tx.IsCoinBase() {
		return sequenceLock, nil
	}

	// Grab the next height from the PoV of the passed blockNode to use for
	// inputs present in the mempool.
	nextHeight := node.height + 1

	for txInIndex, txIn := range mTx.TxIn {
		entry := view.LookupEntry(txIn.PreviousOutPoint)
		if entry == nil {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %s:%d either does not exist or "+
				"has already been spent",
				txIn.PreviousOutPoint, tx.Hash(), txInIndex)
			return sequenceLock, ruleError(RejectInvalid,
				"bad-txns-inputs-missingorspent", str)
		}

		// If the input height is set to the mempool height, then we
		// assume the transaction makes it into the next block when
		// evaluating its sequence blocks.
		inputHeight := entry.BlockHeight()
		if inputHeight == 0x7fffffff {
			inputHeight = nextHeight
		}

		// Given a sequence number, we apply the relative time lock
		// mask in order to obtain the time lock delta required before
		// this input can be spent.
		sequenceNum := txIn.Sequence
		relativeLock := int64(sequenceNum & wire.SequenceLockTimeMask)

		switch {
		// Relative time locks are disabled for this input, so we can
		// skip any further calculation.
		case sequenceNum&wire.SequenceLockTimeDisabled == wire.SequenceLockTimeDisabled:
			continue
		case sequenceNum&wire.SequenceLockTimeIsSeconds == wire.SequenceLockTimeIsSeconds:
			// This input requires a relative time lock expressed
			// in seconds before it can be spent. Therefore, we
			// need to query for the block prior to the one in
			// which this input was included within so we can
			// compute the past median time for the block prior to
			// the one which included this referenced output.
			prevInputHeight := inputHeight - 1
			if prevInputHeight < 0 {
				prevInputHeight = 0
			}
			blockNode := node.Ancestor(prevInputHeight)
			medianTime := blockNode.CalcPastMedianTime()

			// Time based relative time-locks as defined by BIP 68
			// have a time granularity of RelativeLockSeconds, so
			// we shift left by this amount to convert to the
			// proper relative time-lock. We also subtract one from
			// the relative lock to maintain the original lockTime
			// semantics.
			timeLockSeconds := (relativeLock << wire.SequenceLockTimeGranularity) - 1
			timeLock := medianTime.Unix() + timeLockSeconds
			if timeLock > sequenceLock.Seconds {
				sequenceLock.Seconds = timeLock
			}
		default:
			// The relative lock-time for this input is expressed
			// in blocks so we calculate the relative offset from
			// the input's height as its converted absolute
			// lock-time. We subtract one from the relative lock in
			// order to maintain the original lockTime semantics.
			blockHeight := inputHeight + int32(relativeLock-1)
			if blockHeight > sequenceLock.BlockHeight {
				sequenceLock.BlockHeight = blockHeight
			}
		}
	}

	return sequenceLock, nil
}

// CalcSequenceLockPoints computes the sequence lock for the passed transaction
// the same way CalcSequenceLock does and additionally returns the lock points
// recording the chain context the calculation used. The caller may cache the
// lock points and skip recomputing the sequence lock until LockPointsValid
// reports that the recorded block left the active chain.
//
// This function is safe for concurrent access.
func (b *ChainState) CalcSequenceLockPoints(tx *util.Tx, view *UtxoViewpoint) (*SequenceLock, *LockPoints, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	tip := b.bestChain.Tip()
	seqLock, err := b.calcSequenceLock(tip, tx, view, true)
	if err != nil {
		return nil, nil, err
	}

	lockPoints := &LockPoints{
		Height: seqLock.BlockHeight,
		Time:   seqLock.Seconds,
	}

	// Record the highest confirmed input among those that took part in the
	// calculation. While the block at that height stays on the active
	// chain the recorded lock remains valid. Inputs with the disable flag
	// set and inputs still in the mempool never constrain the lock.
	maxInputHeight := int32(-1)
	mTx := tx.MsgTx()
	if mTx.Version >= 2 && !tx.IsCoinBase() {
		for _, txIn := range mTx.TxIn {
			if txIn.Sequence&wire.SequenceLockTimeDisabled != 0 {
				continue
			}
			entry := view.LookupEntry(txIn.PreviousOutPoint)
			if entry == nil {
				continue
			}
			inputHeight := entry.BlockHeight()
			if inputHeight == 0x7fffffff {
				continue
			}
			if inputHeight > maxInputHeight {
				maxInputHeight = inputHeight
			}
		}
	}
	if maxInputHeight >= 0 && tip != nil {
		if node := tip.Ancestor(maxInputHeight); node != nil {
			hash := node.hash
			lockPoints.MaxInputBlock = &hash
		}
	}

	return seqLock, lockPoints, nil
}

// LockPointsValid returns whether previously computed lock points still hold
// from the point of view of the current best chain, which is the case while
// the block the highest constraining input was confirmed in remains part of
// it. Lock points without a constraining block are always valid.
//
// This function is safe for concurrent access.
func (b *ChainState) LockPointsValid(lp *LockPoints) bool {
	if lp == nil || lp.MaxInputBlock == nil {
		return true
	}

	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node := b.index.LookupNode(lp.MaxInputBlock)
	if node == nil {
		return false
	}
	return b.bestChain.Contains(node)
}

// SequenceLockActive determines if a transaction's sequence locks have been
// met, meaning that all the inputs of a given transaction have reached a
// height or time sufficient for their relative lock-time maturity.
func SequenceLockActive(sequenceLock *SequenceLock, blockHeight int32, medianTimePast time.Time) bool {
	// If either the seconds, or height relative-lock time has not yet
	// reached, then the transaction is not yet mature according to its
	// sequence locks.
	if sequenceLock.Seconds >= medianTimePast.Unix() ||
		sequenceLock.BlockHeight >= blockHeight {
		return false
	}

	return true
}
