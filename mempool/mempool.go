// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/eccnet/eccd/blockchain"
	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

const (
	// orphanTTL is the maximum amount of time an orphan is allowed to
	// stay in the orphan pool before it expires and is evicted during the
	// next scan.
	orphanTTL = time.Minute * 15

	// orphanExpireScanInterval is the minimum amount of time in between
	// scans of the orphan pool to evict expired transactions.
	orphanExpireScanInterval = time.Minute * 5

	// mempoolHeight is the block height the outputs of unconfirmed
	// transactions carry inside a utxo viewpoint.
	mempoolHeight = 0x7fffffff

	// rollingFeeHalflife is the decay halflife of the rolling minimum fee
	// rate the pool starts demanding after it had to evict transactions.
	rollingFeeHalflife = 12 * time.Hour
)

// Tag represents an identifier to use for tagging orphan transactions. The
// caller may choose any scheme it desires, however it is common to use peer
// IDs so that orphans can be identified by which peer first relayed them.
type Tag uint64

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// Policy defines the various mempool configuration options related
	// to policy.
	Policy Policy

	// ChainParams identifies which chain parameters the mempool is
	// associated with.
	ChainParams *chaincfg.Params

	// FetchUtxoView defines the function to use to fetch unspent
	// transaction output information.
	FetchUtxoView func(*util.Tx) (*blockchain.UtxoViewpoint, error)

	// BestHeight defines the function to use to access the block height
	// of the current best chain.
	BestHeight func() int32

	// MedianTimePast defines the function to use in order to access the
	// median time past calculated from the point-of-view of the current
	// best chain.
	MedianTimePast func() time.Time

	// CalcSequenceLock defines the function to use in order to generate
	// the current sequence lock for the given transaction using the
	// passed utxo view. It also returns the lock points recording the
	// chain context the calculation used so the result can be cached.
	CalcSequenceLock func(*util.Tx, *blockchain.UtxoViewpoint) (*blockchain.SequenceLock, *blockchain.LockPoints, error)

	// LockPointsValid defines the function to use to check whether
	// previously computed lock points still hold on the current best
	// chain.
	LockPointsValid func(*blockchain.LockPoints) bool

	// Uncache defines the function to use to release the chain's cached
	// coin entries that were fetched for a transaction the pool no longer
	// holds. It may be nil.
	Uncache func(*util.Tx)

	// MoneySupply defines the function to use to access the total amount
	// of coins minted as of the current best chain, which bounds stake
	// rewards.
	MoneySupply func() int64

	// ScriptVerifier supplies script execution for input validation.
	ScriptVerifier blockchain.ScriptVerifier
}

// Policy houses the policy (configuration parameters) which is used to
// control the mempool.
type Policy struct {
	// AcceptNonStd defines whether to accept non-standard transactions.
	// If true, non-standard transactions will be accepted into the
	// mempool.
	AcceptNonStd bool

	// DisableRelayPriority defines whether to relay free or low-fee
	// transactions that do not have enough priority to be relayed.
	DisableRelayPriority bool

	// FreeTxRelayLimit defines the given amount in thousands of bytes
	// per minute that transactions with no fee are rate limited to.
	FreeTxRelayLimit float64

	// MaxOrphanTxs is the maximum number of orphan transactions that can
	// be queued.
	MaxOrphanTxs int

	// MaxOrphanTxSize is the maximum size allowed for orphan
	// transactions. This helps prevent memory exhaustion attacks from
	// sending a lot of big orphans.
	MaxOrphanTxSize int

	// MaxSigOpsPerTx is the maximum number of signature operations in a
	// single transaction we will relay or mine. It is a fraction of the
	// max signature operations for a block.
	MaxSigOpsPerTx int

	// MaxTxVersion is the transaction version that the mempool should
	// accept. All transactions above this version are rejected as
	// non-standard.
	MaxTxVersion int32

	// LimitAncestorCount is the maximum number of unconfirmed ancestors
	// a transaction in the pool may have.
	LimitAncestorCount int

	// LimitDescendantCount is the maximum number of unconfirmed
	// descendants an in-pool ancestor may be given.
	LimitDescendantCount int

	// MinRelayTxFee defines the minimum transaction fee in satoshi/kB to
	// be considered a non-zero fee. It is also the floor of the dynamic
	// fee cutoff the pool demands as it fills.
	MinRelayTxFee util.Amount

	// BlockMaxSize is the maximum block size the node would create. The
	// occupancy bands of the pool's fee limiter are expressed as
	// multiples of it.
	BlockMaxSize int64

	// MempoolExpiry is how long a transaction may sit in the pool before
	// it is evicted.
	MempoolExpiry time.Duration

	// MaxMempoolSize is the maximum total size, in bytes, of the
	// transactions the pool holds before the cheapest ones are evicted.
	MaxMempoolSize int64
}

// TxDesc is a descriptor containing a transaction in the mempool along with
// additional metadata.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx *util.Tx

	// Added is the time when the entry was added to the source pool.
	Added time.Time

	// Height is the block height when the entry was added to the source
	// pool.
	Height int32

	// Fee is the total fee the transaction associated with the entry
	// pays.
	Fee int64

	// FeePerKB is the fee the transaction pays in satoshi per 1000 bytes.
	FeePerKB int64

	// Size is the serialized size of the transaction in bytes.
	Size int64

	// StartingPriority is the priority of the transaction when it was
	// added to the pool.
	StartingPriority float64

	// LockPoints records the chain context the sequence locks of the
	// transaction were evaluated against at admission. After a reorg the
	// evaluation only needs to be redone when the recorded block left
	// the active chain.
	LockPoints *blockchain.LockPoints

	// AncestorCount, AncestorSize, and AncestorFees aggregate the
	// unconfirmed ancestry of the entry including the entry itself. The
	// descendant counterparts aggregate the in-pool transactions that
	// spend from the entry, again including the entry itself. They are
	// kept current as relatives enter and leave the pool.
	AncestorCount int
	AncestorSize  int64
	AncestorFees  int64

	DescendantCount int
	DescendantSize  int64
	DescendantFees  int64
}

// orphanTx is normal transaction that references an ancestor transaction
// that is not yet available. It also contains additional information related
// to it such as an expiration time to help prevent caching the orphan
// forever.
type orphanTx struct {
	tx         *util.Tx
	tag        Tag
	expiration time.Time
}

// TxPool is used as a source of transactions that need to be mined into
// blocks and relayed to other peers. It is safe for concurrent access from
// multiple peers.
type TxPool struct {
	// The following variables must only be used atomically.
	lastUpdated int64 // last time pool was updated

	mtx           sync.RWMutex
	cfg           Config
	pool          map[chainhash.Hash]*TxDesc
	orphans       map[chainhash.Hash]*orphanTx
	orphansByPrev map[wire.OutPoint]map[chainhash.Hash]*util.Tx
	outpoints     map[wire.OutPoint]*util.Tx
	totalTxSize   int64

	pennyTotal    float64 // exponentially decaying total for penny spends.
	lastPennyUnix int64   // unix time of last ``penny spend''

	// rollingFeeRate is the decaying minimum fee rate, in satoshi/kB, the
	// pool demands after evicting transactions for size.
	rollingFeeRate       float64
	lastRollingFeeUpdate time.Time

	// feeCutoff is the fee rate, in satoshi per byte, below which a
	// transaction is treated as free. freeRelayLimit is the matching free
	// relay allowance in thousands of bytes per minute. Both adapt to the
	// pool occupancy and relax back over a day.
	feeCutoff       float64
	freeRelayLimit  float64
	lastLimiterTime time.Time

	// nextExpireScan is the time after which the orphan pool will be
	// scanned in order to evict orphans. This is NOT a hard deadline as
	// the scan will only run when an orphan is added to the pool as
	// opposed to on an unconditional timer.
	nextExpireScan time.Time
}

// New returns a new memory pool for validating and storing standalone
// transactions until they are mined into a block.
func New(cfg *Config) *TxPool {
	return &TxPool{
		cfg:             *cfg,
		pool:            make(map[chainhash.Hash]*TxDesc),
		orphans:         make(map[chainhash.Hash]*orphanTx),
		orphansByPrev:   make(map[wire.OutPoint]map[chainhash.Hash]*util.Tx),
		outpoints:       make(map[wire.OutPoint]*util.Tx),
		feeCutoff:       float64(cfg.Policy.MinRelayTxFee) / 1000,
		freeRelayLimit:  cfg.Policy.FreeTxRelayLimit,
		lastLimiterTime: time.Now(),
		nextExpireScan:  time.Now().Add(orphanExpireScanInterval),
	}
}

// removeOrphan removes the passed orphan transaction from the orphan pool
// and previous orphan index.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeOrphan(tx *util.Tx, removeRedeemers bool) {
	// Nothing to do if passed tx is not an orphan.
	txHash := tx.Hash()
	otx, exists := mp.orphans[*txHash]
	if !exists {
		return
	}

	// Remove the reference from the previous orphan index.
	for _, txIn := range otx.tx.MsgTx().TxIn {
		orphans, exists := mp.orphansByPrev[txIn.PreviousOutPoint]
		if exists {
			delete(orphans, *txHash)

			// Remove the map entry altogether if there are no
			// longer any orphans which depend on it.
			if len(orphans) == 0 {
				delete(mp.orphansByPrev, txIn.PreviousOutPoint)
			}
		}
	}

	// Remove any orphans that redeem outputs from this one if requested.
	if removeRedeemers {
		prevOut := wire.OutPoint{Hash: *txHash}
		for txOutIdx := range tx.MsgTx().TxOut {
			prevOut.Index = uint32(txOutIdx)
			for _, orphan := range mp.orphansByPrev[prevOut] {
				mp.removeOrphan(orphan, true)
			}
		}
	}

	// Remove the transaction from the orphan pool.
	delete(mp.orphans, *txHash)
}

// RemoveOrphan removes the passed orphan transaction from the orphan pool
// and previous orphan index.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveOrphan(tx *util.Tx) {
	mp.mtx.Lock()
	mp.removeOrphan(tx, false)
	mp.mtx.Unlock()
}

// RemoveOrphansByTag removes all orphan transactions tagged with the provided
// identifier.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveOrphansByTag(tag Tag) uint64 {
	var numEvicted uint64
	mp.mtx.Lock()
	for _, otx := range mp.orphans {
		if otx.tag == tag {
			mp.removeOrphan(otx.tx, true)
			numEvicted++
		}
	}
	mp.mtx.Unlock()
	return numEvicted
}

// limitNumOrphans limits the number of orphan transactions by evicting a
// random orphan if adding a new one would cause it to overflow the max
// allowed.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) limitNumOrphans() {
	// Scan through the orphan pool and remove any expired orphans when
	// it's time. This is done for efficiency so the scan only happens
	// periodically instead of on every orphan added to the pool.
	if now := time.Now(); now.After(mp.nextExpireScan) {
		origNumOrphans := len(mp.orphans)
		for _, otx := range mp.orphans {
			if now.After(otx.expiration) {
				// Remove redeemers too because the missing
				// parents are very unlikely to ever materialize
				// since the orphan has already been around more
				// than long enough for them to be delivered.
				mp.removeOrphan(otx.tx, true)
			}
		}

		// Set next expiration scan to occur after the scan interval.
		mp.nextExpireScan = now.Add(orphanExpireScanInterval)

		numOrphans := len(mp.orphans)
		if numExpired := origNumOrphans - numOrphans; numExpired > 0 {
			log.Debugf("Expired %d orphans (remaining: %d)",
				numExpired, numOrphans)
		}
	}

	// Nothing to do if adding another orphan will not cause the pool to
	// exceed the limit.
	if len(mp.orphans)+1 <= mp.cfg.Policy.MaxOrphanTxs {
		return
	}

	// Remove a random entry from the map. For most compilers, Go's range
	// statement iterates starting at a random item although that is not
	// 100% guaranteed by the spec. The iteration order is not important
	// here because an adversary would have to be able to pull off
	// preimage attacks on the hashing function in order to target
	// eviction of specific entries anyways.
	for _, otx := range mp.orphans {
		// Don't remove redeemers in the case of a random eviction
		// since it is quite possible it might be needed again shortly.
		mp.removeOrphan(otx.tx, false)
		break
	}
}

// addOrphan adds an orphan transaction to the orphan pool.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) addOrphan(tx *util.Tx, tag Tag) {
	// Nothing to do if no orphans are allowed.
	if mp.cfg.Policy.MaxOrphanTxs <= 0 {
		return
	}

	// Limit the number orphan transactions to prevent memory exhaustion.
	// This will periodically remove any expired orphans and evict a
	// random orphan if space is still needed.
	mp.limitNumOrphans()

	mp.orphans[*tx.Hash()] = &orphanTx{
		tx:         tx,
		tag:        tag,
		expiration: time.Now().Add(orphanTTL),
	}
	for _, txIn := range tx.MsgTx().TxIn {
		if _, exists := mp.orphansByPrev[txIn.PreviousOutPoint]; !exists {
			mp.orphansByPrev[txIn.PreviousOutPoint] =
				make(map[chainhash.Hash]*util.Tx)
		}
		mp.orphansByPrev[txIn.PreviousOutPoint][*tx.Hash()] = tx
	}

	log.Debugf("Stored orphan transaction %v (total: %d)", tx.Hash(),
		len(mp.orphans))
}

// maybeAddOrphan potentially adds an orphan to the orphan pool.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAddOrphan(tx *util.Tx, tag Tag) error {
	// Ignore orphan transactions that are too large. This helps avoid a
	// memory exhaustion attack based on sending a lot of really large
	// orphans.
	serializedLen := tx.MsgTx().SerializeSize()
	if serializedLen > mp.cfg.Policy.MaxOrphanTxSize {
		str := fmt.Sprintf("orphan transaction size of %d bytes is "+
			"larger than max allowed size of %d bytes",
			serializedLen, mp.cfg.Policy.MaxOrphanTxSize)
		return txRuleError(blockchain.RejectNonstandard, "tx-size", str)
	}

	// Add the orphan if the none of the above disqualified it.
	mp.addOrphan(tx, tag)

	return nil
}

// removeOrphanDoubleSpends removes all orphans which spend outputs spent by
// the passed transaction from the orphan pool. Removing those orphans then
// leads to removing all orphans which rely on them, recursively. This is
// necessary when a transaction is added to the main pool because it may
// spend outputs orphans also spend.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeOrphanDoubleSpends(tx *util.Tx) {
	msgTx := tx.MsgTx()
	for _, txIn := range msgTx.TxIn {
		for _, orphan := range mp.orphansByPrev[txIn.PreviousOutPoint] {
			mp.removeOrphan(orphan, true)
		}
	}
}

// isTransactionInPool returns whether or not the passed transaction already
// exists in the main pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) isTransactionInPool(hash *chainhash.Hash) bool {
	if _, exists := mp.pool[*hash]; exists {
		return true
	}

	return false
}

// IsTransactionInPool returns whether or not the passed transaction already
// exists in the main pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) IsTransactionInPool(hash *chainhash.Hash) bool {
	mp.mtx.RLock()
	inPool := mp.isTransactionInPool(hash)
	mp.mtx.RUnlock()

	return inPool
}

// isOrphanInPool returns whether or not the passed transaction already
// exists in the orphan pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) isOrphanInPool(hash *chainhash.Hash) bool {
	if _, exists := mp.orphans[*hash]; exists {
		return true
	}

	return false
}

// IsOrphanInPool returns whether or not the passed transaction already
// exists in the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) IsOrphanInPool(hash *chainhash.Hash) bool {
	mp.mtx.RLock()
	inPool := mp.isOrphanInPool(hash)
	mp.mtx.RUnlock()

	return inPool
}

// haveTransaction returns whether or not the passed transaction already
// exists in the main pool or in the orphan pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) haveTransaction(hash *chainhash.Hash) bool {
	return mp.isTransactionInPool(hash) || mp.isOrphanInPool(hash)
}

// HaveTransaction returns whether or not the passed transaction already
// exists in the main pool or in the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(hash *chainhash.Hash) bool {
	mp.mtx.RLock()
	haveTx := mp.haveTransaction(hash)
	mp.mtx.RUnlock()

	return haveTx
}

// removeTransaction is the internal function which implements the public
// RemoveTransaction. See the comment for RemoveTransaction for more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeTransaction(tx *util.Tx, removeRedeemers bool) {
	txHash := tx.Hash()
	if removeRedeemers {
		// Remove any transactions which rely on this one.
		for i := uint32(0); i < uint32(len(tx.MsgTx().TxOut)); i++ {
			prevOut := wire.OutPoint{Hash: *txHash, Index: i}
			if txRedeemer, exists := mp.outpoints[prevOut]; exists {
				mp.removeTransaction(txRedeemer, true)
			}
		}
	}

	// Remove the transaction if needed.
	if txDesc, exists := mp.pool[*txHash]; exists {
		// Deduct the entry from the aggregates of its remaining
		// relatives.
		for _, anc := range mp.ancestorsOf(txDesc.Tx) {
			anc.DescendantCount--
			anc.DescendantSize -= txDesc.Size
			anc.DescendantFees -= txDesc.Fee
		}
		for _, dep := range mp.descendantsOf(txDesc.Tx) {
			dep.AncestorCount--
			dep.AncestorSize -= txDesc.Size
			dep.AncestorFees -= txDesc.Fee
		}

		// Mark the referenced outpoints as unspent by the pool.
		for _, txIn := range txDesc.Tx.MsgTx().TxIn {
			delete(mp.outpoints, txIn.PreviousOutPoint)
		}
		delete(mp.pool, *txHash)
		mp.totalTxSize -= txDesc.Size
		atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())

		// Release the coin cache entries that were pulled in for the
		// transaction.
		if mp.cfg.Uncache != nil {
			mp.cfg.Uncache(txDesc.Tx)
		}
	}
}

// RemoveTransaction removes the passed transaction from the mempool. When
// the removeRedeemers flag is set, any transactions that redeem outputs from
// the removed transaction will also be removed recursively from the mempool,
// as they would otherwise become orphans.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveTransaction(tx *util.Tx, removeRedeemers bool) {
	mp.mtx.Lock()
	mp.removeTransaction(tx, removeRedeemers)
	mp.mtx.Unlock()
}

// RemoveDoubleSpends removes all transactions which spend outputs spent by
// the passed transaction from the memory pool. Removing those transactions
// then leads to removing all transactions which rely on them, recursively.
// This is necessary when a block is connected to the main chain because the
// block may contain transactions which were previously unknown to the memory
// pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveDoubleSpends(tx *util.Tx) {
	mp.mtx.Lock()
	for _, txIn := range tx.MsgTx().TxIn {
		if txRedeemer, ok := mp.outpoints[txIn.PreviousOutPoint]; ok {
			if !txRedeemer.Hash().IsEqual(tx.Hash()) {
				mp.removeTransaction(txRedeemer, true)
			}
		}
	}
	mp.mtx.Unlock()
}

// addTransaction adds the passed transaction to the memory pool. It should
// not be called directly as it doesn't perform any validation. This is a
// helper for maybeAcceptTransaction.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) addTransaction(utxoView *blockchain.UtxoViewpoint, tx *util.Tx, height int32, fee int64, lockPoints *blockchain.LockPoints) *TxDesc {
	// Add the transaction to the pool and mark the referenced outpoints
	// as spent by the pool.
	serializedSize := int64(tx.MsgTx().SerializeSize())
	txD := &TxDesc{
		Tx:               tx,
		Added:            time.Now(),
		Height:           height,
		Fee:              fee,
		FeePerKB:         fee * 1000 / serializedSize,
		Size:             serializedSize,
		StartingPriority: calcPriority(tx.MsgTx(), utxoView, height+1),
		LockPoints:       lockPoints,
		AncestorCount:    1,
		AncestorSize:     serializedSize,
		AncestorFees:     fee,
		DescendantCount:  1,
		DescendantSize:   serializedSize,
		DescendantFees:   fee,
	}

	mp.pool[*tx.Hash()] = txD
	for _, txIn := range tx.MsgTx().TxIn {
		mp.outpoints[txIn.PreviousOutPoint] = tx
	}
	mp.totalTxSize += serializedSize

	// Fold the new entry into the aggregates of its unconfirmed ancestry.
	// A freshly admitted transaction has no in-pool descendants yet.
	for _, anc := range mp.ancestorsOf(tx) {
		txD.AncestorCount++
		txD.AncestorSize += anc.Size
		txD.AncestorFees += anc.Fee
		anc.DescendantCount++
		anc.DescendantSize += serializedSize
		anc.DescendantFees += fee
	}

	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())

	return txD
}

// checkPoolDoubleSpend checks whether or not the passed transaction is
// attempting to spend coins already spent by other transactions in the pool.
// There is no replacement, the first spender wins.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkPoolDoubleSpend(tx *util.Tx) error {
	for _, txIn := range tx.MsgTx().TxIn {
		if txR, exists := mp.outpoints[txIn.PreviousOutPoint]; exists {
			str := fmt.Sprintf("output %v already spent by "+
				"transaction %v in the memory pool",
				txIn.PreviousOutPoint, txR.Hash())
			return txRuleError(blockchain.RejectDuplicate,
				"txn-mempool-conflict", str)
		}
	}

	return nil
}

// fetchInputUtxos loads utxo details about the input transactions referenced
// by the passed transaction. First, it loads the details from the viewpoint
// of the main chain, then it adjusts them based upon the contents of the
// transaction pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) fetchInputUtxos(tx *util.Tx) (*blockchain.UtxoViewpoint, error) {
	utxoView, err := mp.cfg.FetchUtxoView(tx)
	if err != nil {
		return nil, err
	}

	// Attempt to populate any missing inputs from the transaction pool.
	for _, txIn := range tx.MsgTx().TxIn {
		prevOut := &txIn.PreviousOutPoint
		entry := utxoView.LookupEntry(*prevOut)
		if entry != nil && !entry.IsSpent() {
			continue
		}

		if poolTxDesc, exists := mp.pool[prevOut.Hash]; exists {
			// AddTxOut ignores out of range index values, so it is
			// safe to call without bounds checking here.
			utxoView.AddTxOut(poolTxDesc.Tx, prevOut.Index,
				mempoolHeight)
		}
	}

	return utxoView, nil
}

// FetchTransaction returns the requested transaction from the transaction
// pool. This only fetches from the main transaction pool and does not
// include orphans.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTransaction(txHash *chainhash.Hash) (*util.Tx, error) {
	// Protect concurrent access.
	mp.mtx.RLock()
	txDesc, exists := mp.pool[*txHash]
	mp.mtx.RUnlock()

	if exists {
		return txDesc.Tx, nil
	}

	return nil, errors.Errorf("transaction is not in the pool")
}

// ancestorsOf returns the descriptors of every unconfirmed ancestor of the
// passed transaction in the pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) ancestorsOf(tx *util.Tx) map[chainhash.Hash]*TxDesc {
	ancestors := make(map[chainhash.Hash]*TxDesc)
	queue := []*util.Tx{tx}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, txIn := range current.MsgTx().TxIn {
			parent, exists := mp.pool[txIn.PreviousOutPoint.Hash]
			if !exists {
				continue
			}
			if _, dup := ancestors[*parent.Tx.Hash()]; !dup {
				ancestors[*parent.Tx.Hash()] = parent
				queue = append(queue, parent.Tx)
			}
		}
	}
	return ancestors
}

// descendantsOf returns the descriptors of every unconfirmed transaction in
// the pool that directly or indirectly spends an output of the passed
// transaction.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) descendantsOf(tx *util.Tx) map[chainhash.Hash]*TxDesc {
	descendants := make(map[chainhash.Hash]*TxDesc)
	queue := []*util.Tx{tx}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		prevOut := wire.OutPoint{Hash: *current.Hash()}
		for i := range current.MsgTx().TxOut {
			prevOut.Index = uint32(i)
			child, exists := mp.outpoints[prevOut]
			if !exists {
				continue
			}
			if _, dup := descendants[*child.Hash()]; !dup {
				descendants[*child.Hash()] = mp.pool[*child.Hash()]
				queue = append(queue, child)
			}
		}
	}
	return descendants
}

// checkAncestorLimits walks the unconfirmed ancestry of the passed
// transaction through the pool and enforces the chain length and size
// limits. The direct parents additionally must not exceed their descendant
// limits with the new transaction counted in, which is answered from the
// aggregates the entries carry.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkAncestorLimits(tx *util.Tx) error {
	limitAncestors := mp.cfg.Policy.LimitAncestorCount
	if limitAncestors <= 0 {
		limitAncestors = maxStandardTxChainLength
	}
	limitDescendants := mp.cfg.Policy.LimitDescendantCount
	if limitDescendants <= 0 {
		limitDescendants = maxStandardTxChainLength
	}

	var totalSize int64
	ancestors := mp.ancestorsOf(tx)
	for _, anc := range ancestors {
		totalSize += anc.Size
	}
	if len(ancestors) > limitAncestors || totalSize > maxStandardTxChainSize {
		str := fmt.Sprintf("transaction %v has too many or too "+
			"large unconfirmed ancestors [limit: %d]",
			tx.Hash(), limitAncestors)
		return txRuleError(blockchain.RejectNonstandard,
			"too-long-mempool-chain", str)
	}

	// Each direct parent must also tolerate one more descendant.
	for _, txIn := range tx.MsgTx().TxIn {
		parent, exists := mp.pool[txIn.PreviousOutPoint.Hash]
		if !exists {
			continue
		}
		if parent.DescendantCount+1 > limitDescendants {
			str := fmt.Sprintf("transaction %v would exceed the "+
				"descendant limit of ancestor %v [limit: %d]",
				tx.Hash(), parent.Tx.Hash(), limitDescendants)
			return txRuleError(blockchain.RejectNonstandard,
				"too-long-mempool-chain", str)
		}
	}

	return nil
}

// minPoolFeeRate returns the decayed rolling minimum fee rate, in
// satoshi/kB, the pool currently demands on top of the static relay fee.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) minPoolFeeRate() int64 {
	if mp.rollingFeeRate == 0 {
		return 0
	}

	elapsed := time.Since(mp.lastRollingFeeUpdate)
	if elapsed > 0 {
		mp.rollingFeeRate *= math.Pow(0.5,
			elapsed.Seconds()/rollingFeeHalflife.Seconds())
		mp.lastRollingFeeUpdate = time.Now()
	}

	// Once the rate decays below half the relay fee it no longer serves
	// a purpose, drop it entirely.
	if mp.rollingFeeRate < float64(mp.cfg.Policy.MinRelayTxFee)/2 {
		mp.rollingFeeRate = 0
		return 0
	}
	return int64(mp.rollingFeeRate)
}

// updateFeeLimiter recomputes the fee cutoff and the free relay allowance
// from the current pool occupancy and returns the effective relay fee rate in
// satoshi/kB. While the pool holds less than one block worth of transactions
// the cutoff sits at the configured relay fee. Between one and
// poolSizeBlockMultiplier blocks worth both values are interpolated linearly,
// and beyond that the maximum cutoff and minimum allowance apply. Changes
// relax back over an exponentially decaying day-long window.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) updateFeeLimiter() int64 {
	minCutoff := float64(mp.cfg.Policy.MinRelayTxFee) / 1000
	maxCutoff := minCutoff * feeCutoffCeilingMultiplier
	limitFreeRelay := mp.cfg.Policy.FreeTxRelayLimit

	now := time.Now()
	elapsed := now.Sub(mp.lastLimiterTime).Seconds()
	mp.lastLimiterTime = now

	// The allowance recovers upward and the cutoff decays downward over
	// the same window.
	decay := math.Pow(1.0-1.0/feeLimiterWindow, elapsed)
	if decay > 0 {
		mp.freeRelayLimit /= decay
	}
	mp.feeCutoff *= decay

	blockBytes := mp.cfg.Policy.BlockMaxSize
	if blockBytes <= 0 {
		blockBytes = blockchain.MaxBlockSize
	}
	poolBytes := float64(mp.totalTxSize)

	switch {
	case poolBytes < float64(blockBytes):
		mp.feeCutoff = math.Max(mp.feeCutoff, minCutoff)
		mp.freeRelayLimit = math.Min(mp.freeRelayLimit, limitFreeRelay)
	case poolBytes < float64(blockBytes*poolSizeBlockMultiplier):
		// Gradually choke off what is considered free.
		fill := (poolBytes - float64(blockBytes)) /
			float64(blockBytes*(poolSizeBlockMultiplier-1))
		mp.feeCutoff = math.Max(mp.feeCutoff,
			minCutoff+(maxCutoff-minCutoff)*fill)
		mp.freeRelayLimit = math.Min(mp.freeRelayLimit,
			limitFreeRelay-(limitFreeRelay-minFreeRelayLimit)*fill)
		if mp.freeRelayLimit < minFreeRelayLimit {
			mp.freeRelayLimit = minFreeRelayLimit
		}
	default:
		mp.feeCutoff = maxCutoff
		mp.freeRelayLimit = minFreeRelayLimit
	}

	return int64(mp.feeCutoff * 1000)
}

// maybeAcceptTransaction is the internal function which implements the
// public MaybeAcceptTransaction. See the comment for MaybeAcceptTransaction
// for more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAcceptTransaction(tx *util.Tx, isNew, rateLimit, rejectDupOrphans bool) ([]*chainhash.Hash, *TxDesc, error) {
	txHash := tx.Hash()

	// Don't accept the transaction if it already exists in the pool. This
	// applies to orphan transactions as well when the reject duplicate
	// orphans flag is set. This check is intended to be a quick check to
	// weed out duplicates.
	if mp.isTransactionInPool(txHash) || (rejectDupOrphans &&
		mp.isOrphanInPool(txHash)) {

		str := fmt.Sprintf("already have transaction %v", txHash)
		return nil, nil, txRuleError(blockchain.RejectDuplicate,
			"txn-already-in-mempool", str)
	}

	// Perform preliminary sanity checks on the transaction. This makes
	// use of blockchain which contains the invariant rules for what
	// transactions are allowed into blocks.
	err := blockchain.CheckTransactionSanity(tx)
	if err != nil {
		var cErr blockchain.RuleError
		if errors.As(err, &cErr) {
			return nil, nil, chainRuleError(cErr)
		}
		return nil, nil, err
	}

	// A standalone transaction must not be a coinbase or coinstake
	// transaction.
	if tx.IsCoinBase() || tx.IsCoinStake() {
		str := fmt.Sprintf("transaction %v is an individual coinbase "+
			"or coinstake", txHash)
		return nil, nil, txDosError(100, blockchain.RejectInvalid,
			"coinbase", str)
	}

	// Get the current height of the main chain. A standalone transaction
	// will be mined into the next block at best, so its height is at
	// least one more than the current height.
	bestHeight := mp.cfg.BestHeight()
	nextBlockHeight := bestHeight + 1

	medianTimePast := mp.cfg.MedianTimePast()

	// Don't allow non-standard transactions if the network parameters
	// forbid their acceptance.
	if !mp.cfg.Policy.AcceptNonStd {
		err = checkTransactionStandard(tx, nextBlockHeight,
			medianTimePast, mp.cfg.Policy.MinRelayTxFee,
			mp.cfg.Policy.MaxTxVersion)
		if err != nil {
			// Attempt to extract a reject code from the error so
			// it can be retained. When not possible, fall back to
			// a non standard error.
			rejectCode := blockchain.RejectNonstandard
			var txRuleErr TxRuleError
			if errors.As(err, &txRuleErr) {
				rejectCode = txRuleErr.RejectCode
			}
			str := fmt.Sprintf("transaction %v is not standard: %v",
				txHash, err)
			return nil, nil, txRuleError(rejectCode,
				ErrorReason(err), str)
		}
	}

	// The transaction may not use any of the same outputs as other
	// transactions already in the pool as that would ultimately result in
	// a double spend. This check is intended to be quick and therefore
	// only detects double spends within the transaction pool itself. The
	// transaction could still be double spending coins from the main
	// chain at this point. There is a more in-depth check that happens
	// later after fetching the referenced transaction inputs from the
	// main chain which examines the actual spend data and prevents double
	// spends.
	err = mp.checkPoolDoubleSpend(tx)
	if err != nil {
		return nil, nil, err
	}

	// Fetch all of the unspent transaction outputs referenced by the
	// inputs to this transaction. This function also attempts to fetch
	// the transaction itself to be used for detecting a duplicate
	// transaction without needing to do a separate lookup.
	utxoView, err := mp.fetchInputUtxos(tx)
	if err != nil {
		var cErr blockchain.RuleError
		if errors.As(err, &cErr) {
			return nil, nil, chainRuleError(cErr)
		}
		return nil, nil, err
	}

	// Don't allow the transaction if it exists in the main chain and is
	// not already fully spent.
	prevOut := wire.OutPoint{Hash: *txHash}
	for txOutIdx := range tx.MsgTx().TxOut {
		prevOut.Index = uint32(txOutIdx)
		entry := utxoView.LookupEntry(prevOut)
		if entry != nil && !entry.IsSpent() {
			return nil, nil, txRuleError(blockchain.RejectDuplicate,
				"txn-already-known", "transaction already exists")
		}
		utxoView.RemoveEntry(prevOut)
	}

	// Transaction is an orphan if any of the referenced transaction
	// outputs don't exist or are already spent. Adding orphans to the
	// orphan pool is not handled by this function, and the caller should
	// use maybeAddOrphan if this behavior is desired.
	var missingParents []*chainhash.Hash
	for outpoint, entry := range utxoView.Entries() {
		if entry == nil || entry.IsSpent() {
			// Must make a copy of the hash here since the iterated
			// entry is not guaranteed to remain valid.
			hashCopy := outpoint.Hash
			missingParents = append(missingParents, &hashCopy)
		}
	}
	if len(missingParents) > 0 {
		return missingParents, nil, nil
	}

	// Don't allow the transaction into the mempool unless its sequence
	// lock is active, meaning that it'll be allowed into the next block
	// with respect to its defined relative lock times. The lock points
	// the calculation produces are kept on the entry so the result can
	// be reused until a reorg invalidates them.
	sequenceLock, lockPoints, err := mp.cfg.CalcSequenceLock(tx, utxoView)
	if err != nil {
		var cErr blockchain.RuleError
		if errors.As(err, &cErr) {
			return nil, nil, chainRuleError(cErr)
		}
		return nil, nil, err
	}
	if !blockchain.SequenceLockActive(sequenceLock, nextBlockHeight,
		medianTimePast) {
		return nil, nil, txRuleError(blockchain.RejectNonstandard,
			"non-BIP68-final",
			"transaction's sequence locks on inputs not met")
	}

	// Perform several checks on the transaction inputs using the invariant
	// rules in blockchain for what transactions are allowed into blocks.
	// Also returns the fees associated with the transaction which will be
	// used later.
	txFee, err := blockchain.CheckTxInputs(tx, nextBlockHeight, utxoView,
		mp.cfg.ChainParams, bestHeight, mp.cfg.MoneySupply())
	if err != nil {
		var cErr blockchain.RuleError
		if errors.As(err, &cErr) {
			return nil, nil, chainRuleError(cErr)
		}
		return nil, nil, err
	}

	// Don't allow transactions with an excessive number of signature
	// operations, either in absolute terms or packed too densely per
	// byte, which would result in making it impossible to mine.
	serializedSize := int64(tx.MsgTx().SerializeSize())
	var sigOpCount int
	if mp.cfg.ScriptVerifier != nil {
		sigOpCount = mp.cfg.ScriptVerifier.GetLegacySigOpCount(tx)
		p2shSigOps, err := mp.cfg.ScriptVerifier.GetP2SHSigOpCount(tx,
			utxoView)
		if err != nil {
			var cErr blockchain.RuleError
			if errors.As(err, &cErr) {
				return nil, nil, chainRuleError(cErr)
			}
			return nil, nil, err
		}
		sigOpCount += p2shSigOps
	}
	if sigOpCount > mp.cfg.Policy.MaxSigOpsPerTx ||
		sigOpCount > int(serializedSize)/bytesPerSigOp {

		str := fmt.Sprintf("transaction %v sigop count is too high: %d",
			txHash, sigOpCount)
		return nil, nil, txRuleError(blockchain.RejectNonstandard,
			"bad-txns-too-many-sigops", str)
	}

	// Don't allow transactions whose fee is under the rolling minimum the
	// pool demands after recent evictions.
	if minPoolFee := mp.minPoolFeeRate(); minPoolFee > 0 {
		required := calcMinRequiredTxRelayFee(serializedSize,
			util.Amount(minPoolFee))
		if txFee < required {
			str := fmt.Sprintf("mempool min fee not met %d < %d",
				txFee, required)
			return nil, nil, txRuleError(
				blockchain.RejectInsufficientFee,
				"mempool min fee not met", str)
		}
	}

	// Adapt the fee cutoff and free relay allowance to the pool occupancy
	// before judging the fee. Transactions below the resulting minimum are
	// treated as free.
	minFee := calcMinRequiredTxRelayFee(serializedSize,
		util.Amount(mp.updateFeeLimiter()))
	if isNew && !mp.cfg.Policy.DisableRelayPriority && txFee < minFee {
		currentPriority := calcPriority(tx.MsgTx(), utxoView,
			nextBlockHeight)
		if currentPriority <= minHighPriority {
			str := fmt.Sprintf("transaction %v has insufficient "+
				"priority (%g <= %g)", txHash, currentPriority,
				minHighPriority)
			return nil, nil, txRuleError(
				blockchain.RejectInsufficientFee,
				"insufficient priority", str)
		}
	}

	// Free-to-relay transactions are rate limited here to prevent
	// penny-flooding with tiny transactions as a form of attack.
	if rateLimit && txFee < minFee {
		nowUnix := time.Now().Unix()
		// Decay passed data with an exponentially decaying ~10 minute
		// window.
		mp.pennyTotal *= math.Pow(1.0-1.0/600.0,
			float64(nowUnix-mp.lastPennyUnix))
		mp.lastPennyUnix = nowUnix

		// Are we still over the limit? The allowance shrinks while the
		// pool is full.
		if mp.pennyTotal >= mp.freeRelayLimit*10*1000 {
			str := fmt.Sprintf("transaction %v has been rejected "+
				"by the rate limiter due to low fees", txHash)
			return nil, nil, txRuleError(
				blockchain.RejectInsufficientFee,
				"rate limited free transaction", str)
		}
		oldTotal := mp.pennyTotal

		mp.pennyTotal += float64(serializedSize)
		log.Tracef("rate limit: curTotal %v, nextTotal: %v, limit %v",
			oldTotal, mp.pennyTotal, mp.freeRelayLimit*10*1000)
	}

	// A fee far beyond what moving the transaction could possibly cost is
	// a mistake, refuse to throw the user's coins away. Version 2
	// transactions pay for their referenced service transaction so they
	// get the flat bound only.
	if isNew {
		absurdFee := minFee * absurdFeeMultiplier
		if tx.MsgTx().Version >= 2 {
			absurdFee = absurdFeeCeiling
		}
		if txFee > absurdFee {
			str := fmt.Sprintf("absurdly-high-fee %d > %d", txFee,
				absurdFee)
			return nil, nil, txRuleError(
				blockchain.RejectInsufficientFee,
				"absurdly-high-fee", str)
		}
	}

	// Enforce the unconfirmed chain limits.
	if err := mp.checkAncestorLimits(tx); err != nil {
		return nil, nil, err
	}

	// Verify crypto signatures for each input and reject the transaction
	// if any don't verify. The standard rule set is tried first, and a
	// failure there is downgraded to a non-DoS rejection when the
	// mandatory rules alone would have passed.
	if mp.cfg.ScriptVerifier != nil {
		err = blockchain.ValidateTransactionScripts(tx, utxoView,
			blockchain.ScriptVerifyStandard, mp.cfg.ScriptVerifier)
		if err != nil {
			mandatoryErr := blockchain.ValidateTransactionScripts(
				tx, utxoView, blockchain.ScriptVerifyMandatory,
				mp.cfg.ScriptVerifier)
			if mandatoryErr != nil {
				str := fmt.Sprintf(
					"mandatory-script-verify-flag-failed (%v)",
					mandatoryErr)
				return nil, nil, txDosError(100,
					blockchain.RejectInvalid,
					"mandatory-script-verify-flag-failed", str)
			}
			str := fmt.Sprintf(
				"non-mandatory-script-verify-flag (%v)", err)
			return nil, nil, txRuleError(
				blockchain.RejectNonstandard,
				"non-mandatory-script-verify-flag", str)
		}
	}

	// Add to transaction pool.
	txD := mp.addTransaction(utxoView, tx, bestHeight, txFee, lockPoints)

	// Evict the cheapest transactions when the pool outgrew its budget.
	if err := mp.limitMempoolSize(); err != nil {
		return nil, nil, err
	}
	if !mp.isTransactionInPool(txHash) {
		return nil, nil, txRuleError(blockchain.RejectInsufficientFee,
			"mempool full", "transaction evicted for low fee")
	}

	log.Debugf("Accepted transaction %v (pool size: %v)", txHash,
		len(mp.pool))

	return nil, txD, nil
}

// minHighPriority is the minimum priority value that allows a transaction
// which does not pay the relay fee into the pool. It is the priority of a
// one-coin output aged one day in a 250 byte transaction.
const minHighPriority = 1e8 * 1440.0 / 250.0

// MaybeAcceptTransaction is the main workhorse for handling insertion of new
// free-standing transactions into a memory pool. It includes functionality
// such as rejecting duplicate transactions, ensuring transactions follow all
// rules, detecting orphan transactions, and insertion into the memory pool.
//
// If the transaction is an orphan (missing parent transactions), the
// transaction is NOT added to the orphan pool, but each unknown referenced
// parent is returned. Use ProcessTransaction instead if new orphans should
// be added to the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) MaybeAcceptTransaction(tx *util.Tx, isNew, rateLimit bool) ([]*chainhash.Hash, *TxDesc, error) {
	// Protect concurrent access.
	mp.mtx.Lock()
	hashes, txD, err := mp.maybeAcceptTransaction(tx, isNew, rateLimit, true)
	mp.mtx.Unlock()

	return hashes, txD, err
}

// processOrphans is the internal function which implements the public
// ProcessOrphans. See the comment for ProcessOrphans for more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) processOrphans(acceptedTx *util.Tx) []*TxDesc {
	var acceptedTxns []*TxDesc

	// Start with processing at least the passed transaction.
	processList := []*util.Tx{acceptedTx}
	for len(processList) > 0 {
		// Pop the transaction to process from the front of the list.
		processItem := processList[0]
		processList[0] = nil
		processList = processList[1:]

		prevOut := wire.OutPoint{Hash: *processItem.Hash()}
		for txOutIdx := range processItem.MsgTx().TxOut {
			// Look up all orphans that redeem the output that is
			// now available. This will typically only be one, but
			// it could be multiple if the orphan pool contains
			// double spends. While it may seem odd that the orphan
			// pool would allow this since there can only possibly
			// ultimately be a single redeemer, it's important to
			// track it this way to prevent malicious actors from
			// being able to purposely construct orphans that
			// would otherwise make outputs unspendable.
			prevOut.Index = uint32(txOutIdx)
			for _, tx := range mp.orphansByPrev[prevOut] {
				// Potentially accept the transaction into the
				// transaction pool.
				missing, txD, err := mp.maybeAcceptTransaction(
					tx, true, true, false)
				if err != nil {
					// The orphan is now invalid, so there
					// is no way any other orphans which
					// redeem any of its outputs can be
					// accepted. Remove them.
					mp.removeOrphan(tx, true)
					break
				}

				// Transaction is still an orphan. Try the next
				// orphan which redeems this output.
				if len(missing) > 0 {
					continue
				}

				// Transaction was accepted into the main pool.
				//
				// Add it to the list of accepted transactions
				// that are no longer orphans, remove it from
				// the orphan pool, and add it to the list of
				// transactions to process so any orphans that
				// depend on it are handled too.
				acceptedTxns = append(acceptedTxns, txD)
				mp.removeOrphan(tx, false)
				processList = append(processList, tx)

				// Only one transaction for this outpoint can be
				// accepted, so the rest are now double spends
				// and are removed later.
				break
			}
		}
	}

	// Recursively remove any orphans that also redeem any outputs redeemed
	// by the accepted transactions since those are now definitive double
	// spends.
	mp.removeOrphanDoubleSpends(acceptedTx)
	for _, txD := range acceptedTxns {
		mp.removeOrphanDoubleSpends(txD.Tx)
	}

	return acceptedTxns
}

// ProcessOrphans determines if there are any orphans which depend on the
// passed transaction hash (it is possible that they are no longer orphans)
// and potentially accepts them to the memory pool. It repeats the process
// for the newly accepted transactions (to detect further orphans which may
// no longer be orphans) until there are no more.
//
// It returns a slice of transactions added to the mempool. A nil slice means
// no transactions were moved from the orphan pool to the mempool.
//
// This function is safe for concurrent access.
func (mp *TxPool) ProcessOrphans(acceptedTx *util.Tx) []*TxDesc {
	mp.mtx.Lock()
	acceptedTxns := mp.processOrphans(acceptedTx)
	mp.mtx.Unlock()

	return acceptedTxns
}

// ProcessTransaction is the main workhorse for handling insertion of new
// free-standing transactions into the memory pool. It includes functionality
// such as rejecting duplicate transactions, ensuring transactions follow all
// rules, orphan transaction handling, and insertion into the memory pool.
//
// It returns a slice of transactions added to the mempool. When the error is
// nil, the list will include the passed transaction itself along with any
// additional orphan transactions that were added as a result of the passed
// one being accepted.
//
// This function is safe for concurrent access.
func (mp *TxPool) ProcessTransaction(tx *util.Tx, allowOrphan, rateLimit bool, tag Tag) ([]*TxDesc, error) {
	log.Tracef("Processing transaction %v", tx.Hash())

	// Protect concurrent access.
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	// Potentially accept the transaction to the memory pool.
	missingParents, txD, err := mp.maybeAcceptTransaction(tx, true,
		rateLimit, true)
	if err != nil {
		return nil, err
	}

	if len(missingParents) == 0 {
		// Accept any orphan transactions that depend on this
		// transaction (they may no longer be orphans if all inputs
		// are now available) and repeat for those accepted
		// transactions until there are no more.
		newTxs := mp.processOrphans(tx)
		acceptedTxs := make([]*TxDesc, len(newTxs)+1)

		// Add the parent transaction first so remote nodes do not add
		// orphans.
		acceptedTxs[0] = txD
		copy(acceptedTxs[1:], newTxs)

		return acceptedTxs, nil
	}

	// The transaction is an orphan (has inputs missing). Reject it if the
	// flag to allow orphans is not set.
	if !allowOrphan {
		// Only use the first missing parent transaction in the error
		// message.
		//
		// NOTE: RejectDuplicate is really not an accurate reject code
		// here, but it matches the reference implementation and there
		// isn't a better choice due to the limited number of reject
		// codes. Missing inputs is assumed to mean they are already
		// spent which is not really always the case.
		str := fmt.Sprintf("orphan transaction %v references "+
			"outputs of unknown or fully-spent transaction %v",
			tx.Hash(), missingParents[0])
		return nil, txRuleError(blockchain.RejectDuplicate,
			"bad-txns-inputs-spent", str)
	}

	// Potentially add the orphan transaction to the orphan pool.
	err = mp.maybeAddOrphan(tx, tag)
	return nil, err
}

// limitMempoolSize evicts the package with the lowest descendant fee rate,
// the entry together with everything that spends from it, until the pool fits
// inside its memory budget again. Judging entries by their package rate keeps
// a cheap parent from being saved by an expensive child while the child alone
// would be evicted and orphaned. Each eviction raises the rolling minimum fee
// rate the pool demands.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) limitMempoolSize() error {
	maxSize := mp.cfg.Policy.MaxMempoolSize
	if maxSize <= 0 {
		return nil
	}

	for mp.totalTxSize > maxSize {
		// Find the entry whose package pays the lowest fee rate, oldest
		// first on ties.
		var victim *TxDesc
		var victimRate int64
		for _, txD := range mp.pool {
			rate := txD.DescendantFees * 1000 / txD.DescendantSize
			if victim == nil || rate < victimRate ||
				(rate == victimRate &&
					txD.Added.Before(victim.Added)) {
				victim = txD
				victimRate = rate
			}
		}
		if victim == nil {
			break
		}

		// Future entries must pay more than the evicted package did.
		newRollingFee := float64(victimRate) +
			float64(mp.cfg.Policy.MinRelayTxFee)
		if newRollingFee > mp.rollingFeeRate {
			mp.rollingFeeRate = newRollingFee
			mp.lastRollingFeeUpdate = time.Now()
		}

		log.Debugf("Evicting transaction %v (package fee rate %d) to "+
			"limit mempool size", victim.Tx.Hash(), victimRate)
		mp.removeTransaction(victim.Tx, true)
	}

	return nil
}

// Expire removes the transactions which have sat in the pool longer than the
// configured expiry, along with their descendants. It returns the number of
// transactions removed.
//
// This function is safe for concurrent access.
func (mp *TxPool) Expire() int {
	expiry := mp.cfg.Policy.MempoolExpiry
	if expiry <= 0 {
		return 0
	}

	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	cutoff := time.Now().Add(-expiry)
	var expired []*util.Tx
	for _, txD := range mp.pool {
		if txD.Added.Before(cutoff) {
			expired = append(expired, txD.Tx)
		}
	}
	for _, tx := range expired {
		log.Debugf("Expiring transaction %v from the mempool", tx.Hash())
		mp.removeTransaction(tx, true)
	}
	return len(expired)
}

// RemoveForReorg revalidates the whole pool after the chain tip changed to a
// different branch. Transactions that are no longer final, spend outputs
// that no longer exist, spend freshly immature coins, or whose sequence locks
// are no longer satisfied are removed together with their descendants. Lock
// points cached on the entries are reused while the block they were computed
// against is still on the active chain and recomputed otherwise.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveForReorg() {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	bestHeight := mp.cfg.BestHeight()
	nextBlockHeight := bestHeight + 1
	medianTimePast := mp.cfg.MedianTimePast()

	var invalid []*util.Tx
	for _, txD := range mp.pool {
		tx := txD.Tx
		if !blockchain.IsFinalizedTransaction(tx, nextBlockHeight,
			medianTimePast) {
			invalid = append(invalid, tx)
			continue
		}

		utxoView, err := mp.fetchInputUtxos(tx)
		if err != nil {
			invalid = append(invalid, tx)
			continue
		}
		_, err = blockchain.CheckTxInputs(tx, nextBlockHeight,
			utxoView, mp.cfg.ChainParams, bestHeight,
			mp.cfg.MoneySupply())
		if err != nil {
			invalid = append(invalid, tx)
			continue
		}

		// The cached lock points remain authoritative while the block
		// they were computed against is still on the active chain.
		// After a reorg past that block the sequence locks have to be
		// evaluated again from the new branch.
		lp := txD.LockPoints
		if lp == nil || mp.cfg.LockPointsValid == nil ||
			!mp.cfg.LockPointsValid(lp) {
			_, freshLp, err := mp.cfg.CalcSequenceLock(tx, utxoView)
			if err != nil {
				invalid = append(invalid, tx)
				continue
			}
			txD.LockPoints = freshLp
			lp = freshLp
		}
		seqLock := &blockchain.SequenceLock{
			Seconds:     lp.Time,
			BlockHeight: lp.Height,
		}
		if !blockchain.SequenceLockActive(seqLock, nextBlockHeight,
			medianTimePast) {
			invalid = append(invalid, tx)
		}
	}

	for _, tx := range invalid {
		log.Debugf("Removing transaction %v invalidated by reorg",
			tx.Hash())
		mp.removeTransaction(tx, true)
	}
}

// Count returns the number of transactions in the main pool. It does not
// include the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	count := len(mp.pool)
	mp.mtx.RUnlock()

	return count
}

// TxHashes returns a slice of hashes for all of the transactions in the
// memory pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxHashes() []*chainhash.Hash {
	mp.mtx.RLock()
	hashes := make([]*chainhash.Hash, len(mp.pool))
	i := 0
	for hash := range mp.pool {
		hashCopy := hash
		hashes[i] = &hashCopy
		i++
	}
	mp.mtx.RUnlock()

	return hashes
}

// TxDescs returns a slice of descriptors for all the transactions in the
// pool. The descriptors are to be treated as read only.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxDescs() []*TxDesc {
	mp.mtx.RLock()
	descs := make([]*TxDesc, len(mp.pool))
	i := 0
	for _, desc := range mp.pool {
		descs[i] = desc
		i++
	}
	mp.mtx.RUnlock()

	return descs
}

// LastUpdated returns the last time a transaction was added to or removed
// from the main pool. It does not include the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(atomic.LoadInt64(&mp.lastUpdated), 0)
}
