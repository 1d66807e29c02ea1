// Copyright (c) 2013-2018 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"container/list"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/database"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
)

// ServiceTxPool gives the chain access to the side pool of service
// transactions that version 2 transactions reference by hash. Resolution
// failures never invalidate a block.
type ServiceTxPool interface {
	// Have returns whether the pool holds the service transaction with
	// the given hash.
	Have(hash *chainhash.Hash) bool

	// Check verifies the service transaction with the given hash against
	// the transaction paying for it.
	Check(hash *chainhash.Hash, payer *util.Tx) error
}

// TxRequester requests missing service transactions from the network.
type TxRequester interface {
	// RequestServiceTransaction asks connected peers for the service
	// transaction with the given hash.
	RequestServiceTransaction(hash *chainhash.Hash)
}

// BestState houses information about the current best block and other info
// related to the state of the main chain as it exists from the point of view
// of the current best block.
//
// The BestSnapshot method can be used to obtain access to this information
// in a concurrent safe manner and the data will not be changed out from
// under the caller when chain state changes occur as the function name
// implies. However, the returned snapshot must be treated as immutable since
// it is shared by all callers.
type BestState struct {
	Hash        chainhash.Hash // The hash of the block.
	Height      int32          // The height of the block.
	Bits        uint32         // The difficulty bits of the block.
	BlockSize   uint64         // The size of the block.
	NumTxns     uint64         // The number of txns in the block.
	TotalTxns   uint64         // The total number of txns in the chain.
	MedianTime  time.Time      // Median time as per CalcPastMedianTime.
	MoneySupply int64          // Total coins minted up to this block.
}

// newBestState returns a new best stats instance for the given parameters.
func newBestState(node *blockNode, blockSize, numTxns, totalTxns uint64, medianTime time.Time) *BestState {
	return &BestState{
		Hash:        node.hash,
		Height:      node.height,
		Bits:        node.bits,
		BlockSize:   blockSize,
		NumTxns:     numTxns,
		TotalTxns:   totalTxns,
		MedianTime:  medianTime,
		MoneySupply: node.moneySupply,
	}
}

// Config is a descriptor which specifies the blockchain instance
// configuration.
type Config struct {
	// DB defines the database which houses the blocks and will be used to
	// store all metadata created by this package.
	//
	// This field is required.
	DB database.Database

	// BlockFileDir is the directory the flat block and undo files live
	// in.
	//
	// This field is required.
	BlockFileDir string

	// ChainParams identifies which chain parameters the chain is
	// associated with.
	//
	// This field is required.
	ChainParams *chaincfg.Params

	// TimeSource defines the median time source to use for things such
	// as block processing and determining whether or not the chain is
	// current.
	TimeSource MedianTimeSource

	// ScriptVerifier supplies script execution and signature operation
	// counting. When nil, script checks are skipped, which is only
	// acceptable for testing.
	ScriptVerifier ScriptVerifier

	// ServiceTxPool supplies lookups of the service transactions version
	// 2 transactions reference. May be nil.
	ServiceTxPool ServiceTxPool

	// TxRequester requests missing service transactions from peers. May
	// be nil.
	TxRequester TxRequester

	// UtxoCacheMaxSize is the maximum memory, in bytes, the utxo cache
	// holds before it is flushed to the database.
	UtxoCacheMaxSize uint64
}

// defaultUtxoCacheMaxSize is used when the config does not set a cache
// budget.
const defaultUtxoCacheMaxSize = 100 * 1024 * 1024

// ChainState provides functions for working with the block chain. It
// includes functionality such as rejecting duplicate blocks, ensuring blocks
// follow all rules, best chain selection with reorganization, and the
// persistence of the resulting state.
type ChainState struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	chainParams    *chaincfg.Params
	db             database.Database
	timeSource     MedianTimeSource
	scriptVerifier ScriptVerifier
	serviceTxPool  ServiceTxPool
	txRequester    TxRequester

	// chainLock protects concurrent access to the vast majority of the
	// fields in this struct below this point.
	chainLock sync.RWMutex

	// These fields are related to the memory block index. They both have
	// their own locks, however they are often also protected by the chain
	// lock to help prevent logic races when blocks are being processed.
	index     *blockIndex
	bestChain *chainView

	// blockFiles stores the raw block and undo data in flat files on
	// disk.
	blockFiles *blockFileStore

	// utxoCache caches the unspent transaction output set between
	// flushes.
	utxoCache *utxoCache

	// candidates holds the set of block nodes that are eligible to become
	// the chain tip. It is a superset containing the current tip.
	candidates map[*blockNode]struct{}

	// unlinked maps the hash of a missing parent to the nodes whose block
	// data arrived before the parent's did. Once the parent's
	// transactions are received the children become connectable.
	unlinked map[chainhash.Hash][]*blockNode

	// orphans holds blocks whose parent is entirely unknown until the
	// parent arrives or they expire.
	orphans orphanIndex

	// nextSequenceNum orders block arrival so ties between equal-work
	// chains resolve in favor of the first seen.
	nextSequenceNum int64

	// The state is used as a fairly efficient way to cache information
	// about the current best chain state that is returned to callers when
	// requested. It operates on the principle of MVCC such that any time
	// a new block becomes the best block, the state pointer is replaced
	// with a new struct and the old state is left untouched.
	stateLock     sync.RWMutex
	stateSnapshot *BestState

	// Callbacks registered through Subscribe are invoked on chain events.
	notificationsLock sync.RWMutex
	notifications     []NotificationCallback

	// lastFlush tracks when the chain state last reached stable storage.
	lastFlush time.Time
}

// New returns a ChainState instance using the provided configuration
// details.
func New(config *Config) (*ChainState, error) {
	// Enforce required config fields.
	if config.DB == nil {
		return nil, assertError("blockchain.New database is nil")
	}
	if config.ChainParams == nil {
		return nil, assertError("blockchain.New chain parameters nil")
	}
	if config.BlockFileDir == "" {
		return nil, assertError("blockchain.New block file dir empty")
	}

	params := config.ChainParams
	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = NewMedianTime()
	}
	cacheSize := config.UtxoCacheMaxSize
	if cacheSize == 0 {
		cacheSize = defaultUtxoCacheMaxSize
	}

	blockFiles, err := newBlockFileStore(config.BlockFileDir, params.Net)
	if err != nil {
		return nil, err
	}

	b := ChainState{
		chainParams:    params,
		db:             config.DB,
		timeSource:     timeSource,
		scriptVerifier: config.ScriptVerifier,
		serviceTxPool:  config.ServiceTxPool,
		txRequester:    config.TxRequester,
		index:          newBlockIndex(config.DB, params),
		blockFiles:     blockFiles,
		utxoCache:      newUtxoCache(config.DB, cacheSize),
		candidates:     make(map[*blockNode]struct{}),
		unlinked:       make(map[chainhash.Hash][]*blockNode),
		orphans: orphanIndex{
			orphans:     make(map[chainhash.Hash]*orphanBlock),
			prevOrphans: make(map[chainhash.Hash][]*orphanBlock),
		},
		lastFlush: time.Now(),
	}

	// Initialize the chain state from the passed database. When the db
	// does not yet contain any chain state, both it and the chain state
	// will be initialized to contain only the genesis block.
	if err := b.initChainState(); err != nil {
		return nil, err
	}

	bestNode := b.bestChain.Tip()
	log.Infof("Chain state (height %d, hash %v, totaltx %d, work %v)",
		bestNode.height, bestNode.hash, bestNode.chainTxNum,
		bestNode.workSum)

	return &b, nil
}

// initChainState attempts to load and initialize the chain state from the
// database. When the db does not yet contain any chain state, both it and
// the chain state are initialized to the genesis block.
func (b *ChainState) initChainState() error {
	bestHash, err := dbFetchUtxoSetState(b.db)
	if err != nil {
		return err
	}
	if bestHash == nil {
		return b.createChainState()
	}

	log.Infof("Loading block index...")

	// Load every block index entry. Parent links can only be resolved
	// after the full set is in memory since entries are keyed by hash.
	prevHashes := make(map[chainhash.Hash]chainhash.Hash)
	cursor := b.db.Cursor(blockIndexKeyPrefix)
	for cursor.Next() {
		header, status, numTx, file, dataPos, undoPos, moneySupply,
			proofOfStake, err := deserializeBlockIndexEntry(cursor.Value())
		if err != nil {
			cursor.Close()
			return err
		}

		node := newBlockNode(header, nil, proofOfStake)
		node.status = status
		node.numTx = numTx
		node.file = file
		node.dataPos = dataPos
		node.undoPos = undoPos
		node.moneySupply = moneySupply
		b.index.addNode(node)
		prevHashes[node.hash] = header.PrevBlock
	}
	if err := cursor.Error(); err != nil {
		cursor.Close()
		return err
	}
	cursor.Close()

	// Link parents and derive heights, cumulative work, and chain
	// transaction counts. Each node first climbs to its deepest
	// unresolved ancestor, then the collected path is unwound top down.
	resolve := func(start *blockNode) error {
		var path []*blockNode
		for n := start; n != nil && n.height < 0; {
			path = append(path, n)
			prevHash := prevHashes[n.hash]
			if prevHash == zeroHash {
				break
			}
			parent := b.index.LookupNode(&prevHash)
			if parent == nil {
				return assertError(fmt.Sprintf("block index "+
					"entry %v references unknown parent %v",
					n.hash, prevHash))
			}
			n.parent = parent
			n = parent
		}
		for i := len(path) - 1; i >= 0; i-- {
			n := path[i]
			parent := n.parent
			if parent == nil {
				n.height = 0
				n.workSum = CalcWork(n.bits)
				n.chainTxNum = uint64(n.numTx)
				continue
			}
			n.height = parent.height + 1
			n.workSum = new(big.Int).Add(parent.workSum, CalcWork(n.bits))
			n.chainTxNum = 0
			if parent.chainTxNum != 0 && n.status.HaveData() {
				n.chainTxNum = parent.chainTxNum + uint64(n.numTx)
			}
			if parent.status.KnownInvalid() {
				b.index.SetStatusFlags(n, statusInvalidAncestor)
			}
		}
		return nil
	}

	var resolveErr error
	b.index.forEachNode(func(node *blockNode) {
		node.height = -1
	})
	b.index.forEachNode(func(node *blockNode) {
		if resolveErr != nil {
			return
		}
		resolveErr = resolve(node)
	})
	if resolveErr != nil {
		return resolveErr
	}

	// Set the best chain to the stored best hash.
	tip := b.index.LookupNode(bestHash)
	if tip == nil {
		return assertError(fmt.Sprintf("best chain hash %v is not in "+
			"the block index", bestHash))
	}
	b.bestChain = newChainView(tip)

	// Every validated node with its full ancestry of transactions is a
	// candidate to become the best tip.
	b.index.forEachNode(func(node *blockNode) {
		if node.chainTxNum == 0 || node.status.KnownInvalid() {
			return
		}
		if !node.status.KnownValid(statusValidTransactions) {
			return
		}
		b.candidates[node] = struct{}{}
		if node.sequenceNum >= b.nextSequenceNum {
			b.nextSequenceNum = node.sequenceNum + 1
		}
		// Nodes with data but an unconnected parent wait in the
		// unlinked map.
		if node.parent != nil && node.parent.chainTxNum == 0 &&
			node.status.HaveData() {
			prevHash := node.parent.hash
			b.unlinked[prevHash] = append(b.unlinked[prevHash], node)
		}
	})
	b.pruneBlockIndexCandidates()

	// Load the block file allocation state.
	lastFileNum, err := dbFetchLastFileNum(b.db)
	if err != nil {
		return err
	}
	lastFileInfo, err := dbFetchBlockFileInfo(b.db, lastFileNum)
	if err != nil {
		return err
	}
	if lastFileInfo == nil {
		lastFileInfo = &blockFileInfo{}
	}
	b.blockFiles.setState(lastFileNum, lastFileInfo)

	// Initialize the state snapshot from the tip.
	block, err := b.fetchBlockByNode(tip)
	if err != nil {
		return err
	}
	blockSize := uint64(block.MsgBlock().SerializeSize())
	b.stateSnapshot = newBestState(tip, blockSize, uint64(tip.numTx),
		tip.chainTxNum, tip.CalcPastMedianTime())

	return nil
}

// createChainState initializes both the database and the chain state to the
// genesis block. This includes creating the necessary metadata, so it must
// only be called on an uninitialized database.
func (b *ChainState) createChainState() error {
	// Create a new node from the genesis block and set it as the best
	// node.
	genesisBlock := util.NewBlock(b.chainParams.GenesisBlock)
	genesisBlock.SetHeight(0)
	header := &genesisBlock.MsgBlock().Header
	node := newBlockNode(header, nil, false)
	node.status = statusDataStored | statusValidScripts
	node.numTx = uint32(len(genesisBlock.MsgBlock().Transactions))
	node.chainTxNum = uint64(node.numTx)

	// Store the genesis block in the first flat block file.
	serialized, err := genesisBlock.Bytes()
	if err != nil {
		return err
	}
	blockPos, err := b.blockFiles.findBlockPos(uint32(len(serialized)),
		0, uint64(header.Timestamp.Unix()), b.loadBlockFileInfo)
	if err != nil {
		return err
	}
	if err := b.blockFiles.writeBlock(blockPos, serialized); err != nil {
		return err
	}
	node.file = blockPos.file
	node.dataPos = blockPos.pos

	b.index.AddNode(node)
	b.bestChain = newChainView(node)
	b.candidates[node] = struct{}{}
	b.nextSequenceNum = 1

	blockSize := uint64(len(serialized))
	numTxns := uint64(len(genesisBlock.MsgBlock().Transactions))
	b.stateSnapshot = newBestState(node, blockSize, numTxns, numTxns,
		time.Unix(node.timestamp, 0))

	// Add the genesis outputs to the utxo set and force everything to
	// stable storage.
	view := NewUtxoViewpoint()
	view.SetBestHash(&zeroHash)
	var stxos []SpentTxOut
	if err := view.connectTransactions(genesisBlock, &stxos); err != nil {
		return err
	}
	view.SetBestHash(&node.hash)
	if err := b.utxoCache.commit(view); err != nil {
		return err
	}
	return b.flushStateToDisk(flushModeAlways)
}

// loadBlockFileInfo loads the file information entry of the given block file
// from the database. It is handed to the block file store which caches the
// results.
func (b *ChainState) loadBlockFileInfo(fileNum int32) (*blockFileInfo, error) {
	info, err := dbFetchBlockFileInfo(b.db, fileNum)
	if err != nil {
		return nil, err
	}
	if info == nil {
		info = &blockFileInfo{}
	}
	return info, nil
}

// fetchBlockByNode loads the raw block data for the given node from the flat
// block files and deserializes it.
func (b *ChainState) fetchBlockByNode(node *blockNode) (*util.Block, error) {
	if !node.status.HaveData() {
		return nil, assertError(fmt.Sprintf("block %v has no stored "+
			"data", node.hash))
	}
	serialized, err := b.blockFiles.readBlock(blockFilePos{
		file: node.file,
		pos:  node.dataPos,
	})
	if err != nil {
		return nil, err
	}
	block, err := util.NewBlockFromBytes(serialized)
	if err != nil {
		return nil, err
	}
	block.SetHeight(node.height)
	return block, nil
}

// BlockByHash returns the block from the main chain with the given hash.
//
// This function is safe for concurrent access.
func (b *ChainState) BlockByHash(hash *chainhash.Hash) (*util.Block, error) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node := b.index.LookupNode(hash)
	if node == nil || !node.status.HaveData() {
		return nil, errors.Errorf("block %s is not known", hash)
	}
	return b.fetchBlockByNode(node)
}

// BlockHashByHeight returns the hash of the block at the given height in the
// main chain.
//
// This function is safe for concurrent access.
func (b *ChainState) BlockHashByHeight(blockHeight int32) (*chainhash.Hash, error) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node := b.bestChain.NodeByHeight(blockHeight)
	if node == nil {
		return nil, errors.Errorf("no block at height %d exists",
			blockHeight)
	}
	return &node.hash, nil
}

// BlockHeightByHash returns the height of the block with the given hash in
// the main chain.
//
// This function is safe for concurrent access.
func (b *ChainState) BlockHeightByHash(hash *chainhash.Hash) (int32, error) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node := b.index.LookupNode(hash)
	if node == nil || !b.bestChain.Contains(node) {
		return 0, errors.Errorf("block %s is not in the main chain", hash)
	}
	return node.height, nil
}

// MainChainHasBlock returns whether or not the block with the given hash is
// in the main chain.
//
// This function is safe for concurrent access.
func (b *ChainState) MainChainHasBlock(hash *chainhash.Hash) bool {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node := b.index.LookupNode(hash)
	return node != nil && b.bestChain.Contains(node)
}

// HaveBlock returns whether or not the chain instance has the block
// represented by the passed hash. This includes checking the various places
// a block can be like part of the main chain or on a side chain.
//
// This function is safe for concurrent access.
func (b *ChainState) HaveBlock(hash *chainhash.Hash) bool {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node := b.index.LookupNode(hash)
	return node != nil && node.status.HaveData()
}

// BestSnapshot returns information about the current best chain block and
// related state as of the current point in time. The returned instance must
// be treated as immutable since it is shared by all callers.
//
// This function is safe for concurrent access.
func (b *ChainState) BestSnapshot() *BestState {
	b.stateLock.RLock()
	snapshot := b.stateSnapshot
	b.stateLock.RUnlock()
	return snapshot
}

// IsCurrent returns whether or not the chain believes it is current. Several
// factors are used to guess, but the key factors that allow the chain to
// believe it is current are:
//  - Latest block height is after the latest checkpoint (if enabled)
//  - Latest block has a timestamp newer than 24 hours ago
//
// This function is safe for concurrent access.
func (b *ChainState) IsCurrent() bool {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	// Not current if the latest main (best) chain height is before the
	// latest known good checkpoint.
	checkpoint := b.latestCheckpoint()
	tip := b.bestChain.Tip()
	if checkpoint != nil && tip.height < checkpoint.Height {
		return false
	}

	// Not current if the latest best block has a timestamp before 24
	// hours ago.
	minus24Hours := b.timeSource.AdjustedTime().Add(-24 * time.Hour).Unix()
	return tip.timestamp >= minus24Hours
}

// checkConnectBlock performs several checks to confirm connecting the passed
// block to the chain represented by the passed view does not violate any
// rules. In addition, the passed view is updated to spend all of the
// referenced outputs and add all of the new utxos created by block. Thus,
// the view will represent the state of the chain as if the block were
// actually connected.
//
// The CheckConnectBlockTemplate function makes use of this function to
// perform the bulk of its work.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) checkConnectBlock(node *blockNode, block *util.Block, view *UtxoViewpoint, stxos *[]SpentTxOut) error {
	// The coinbase for the genesis block is not spendable, so just return
	// an error now.
	if node.hash == *b.chainParams.GenesisHash {
		return ruleError(RejectInvalid, "bad-genesis",
			"the coinbase for the genesis block is not spendable")
	}

	// Ensure the view is for the node being checked.
	parentHash := &block.MsgBlock().Header.PrevBlock
	if !view.BestHash().IsEqual(parentHash) {
		return assertError(fmt.Sprintf("inconsistent view when "+
			"checking block connection: best hash is %v instead "+
			"of expected %v", view.BestHash(), parentHash))
	}

	// Load all of the utxos referenced by the inputs for all transactions
	// in the block don't already exist in the utxo view from the database.
	err := view.fetchInputUtxos(b.utxoCache, block)
	if err != nil {
		return err
	}

	transactions := block.Transactions()
	prevMedianTime := node.parent.CalcPastMedianTime()
	tipHeight := b.bestChain.Height()
	moneySupply := node.parent.moneySupply

	var totalFees int64
	var totalValueIn, totalValueOut int64
	var totalSigOps int
	for i, tx := range transactions {
		// The total number of signature operations in the block,
		// including the pay-to-script-hash ones which can only be
		// counted with the referenced output scripts available, must
		// stay within limits.
		if b.scriptVerifier != nil {
			sigOps := b.scriptVerifier.GetLegacySigOpCount(tx)
			if i > 0 {
				p2shSigOps, err := b.scriptVerifier.GetP2SHSigOpCount(tx, view)
				if err != nil {
					return err
				}
				sigOps += p2shSigOps
			}
			totalSigOps += sigOps
			if totalSigOps > MaxBlockSigOps {
				str := fmt.Sprintf("block contains too many "+
					"signature operations - got %v, max %v",
					totalSigOps, MaxBlockSigOps)
				return dosError(100, RejectInvalid, "bad-blk-sigops", str)
			}
		}

		for _, txOut := range tx.MsgTx().TxOut {
			totalValueOut += txOut.Value
		}

		if i > 0 {
			// Relative lock-times of version 2 transactions must
			// have matured.
			if tx.MsgTx().Version >= 2 {
				seqLock, err := b.calcSequenceLock(node.parent,
					tx, view, false)
				if err != nil {
					return err
				}
				if !SequenceLockActive(seqLock, node.height,
					prevMedianTime) {
					str := fmt.Sprintf("block contains "+
						"transaction %v whose input "+
						"sequence locks are not met",
						tx.Hash())
					return dosError(100, RejectInvalid,
						"bad-txns-nonfinal", str)
				}
			}

			for _, txIn := range tx.MsgTx().TxIn {
				entry := view.LookupEntry(txIn.PreviousOutPoint)
				if entry != nil && !entry.IsSpent() {
					totalValueIn += entry.Amount()
				}
			}

			txFee, err := CheckTxInputs(tx, node.height, view,
				b.chainParams, tipHeight, moneySupply)
			if err != nil {
				return err
			}

			// Sum the total fees and ensure we don't overflow the
			// accumulator.
			lastTotalFees := totalFees
			totalFees += txFee
			if totalFees < lastTotalFees {
				return dosError(100, RejectInvalid,
					"bad-txns-fee-outofrange",
					"total fees for block overflows accumulator")
			}
		}

		// Add all of the outputs for this transaction which are not
		// provably unspendable as available utxos. Also, the passed
		// spent txos slice is updated to contain an entry for each
		// spent txout in the order each transaction spends them.
		err = view.connectTransaction(tx, node.height, stxos)
		if err != nil {
			return err
		}
	}

	// A mined block must not claim more in its coinbase than the subsidy
	// its height earns plus the fees the block collects. The coinbase of
	// a staked block is empty, its reward was bounded through the
	// coinstake checks.
	if !block.IsProofOfStake() {
		var coinbaseValue int64
		for _, txOut := range transactions[0].MsgTx().TxOut {
			coinbaseValue += txOut.Value
		}
		expected := CalcProofOfWorkSubsidy(node.height,
			&node.parent.hash, b.chainParams.SubsidyHalvingHeight) +
			totalFees
		if coinbaseValue > expected {
			str := fmt.Sprintf("coinbase pays too much (actual=%d "+
				"vs limit=%d)", coinbaseValue, expected)
			return dosError(100, RejectInvalid, "bad-cb-amount", str)
		}
	}

	// The minted amount this block adds to the money supply is whatever
	// its transactions create out of thin air.
	node.moneySupply = moneySupply + (totalValueOut - totalValueIn)

	// Resolve the service transactions referenced by version 2
	// transactions. Failures are logged only.
	b.checkServiceTransactions(block)

	// The block signature binds a staked block to the key of its
	// coinstake.
	if err := b.checkBlockSignature(block); err != nil {
		return err
	}

	// Now that the inexpensive checks are done and have passed, verify
	// the transactions are actually allowed to spend the coins by running
	// the expensive script checks in parallel.
	if b.scriptVerifier != nil {
		err := checkBlockScripts(block, view, ScriptVerifyMandatory,
			b.scriptVerifier)
		if err != nil {
			return err
		}
	}

	// Update the best hash for view to include this block since all of
	// its transactions have been connected.
	view.SetBestHash(&node.hash)

	return nil
}

// connectBlock handles connecting the passed node/block to the end of the
// main (best) chain.
//
// This passed utxo view must have all referenced txos the block spends
// marked as spent and all of the new txos the block creates added to it. In
// addition, the passed stxos slice must be populated with all of the
// information for the spent txos.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) connectBlock(node *blockNode, block *util.Block, view *UtxoViewpoint, stxos []SpentTxOut) error {
	// Make sure it's extending the end of the best chain.
	prevHash := &block.MsgBlock().Header.PrevBlock
	if !prevHash.IsEqual(&b.bestChain.Tip().hash) {
		return assertError("connectBlock must be called with a block " +
			"that extends the main chain")
	}

	// Sanity check the correct number of stxos are provided.
	if len(stxos) != countSpentOutputs(block) {
		return assertError("connectBlock called with inconsistent " +
			"spent transaction out information")
	}

	// Write the undo data needed to disconnect the block again.
	serializedUndo, err := serializeSpentTxOuts(stxos)
	if err != nil {
		return err
	}
	// The stored undo record carries a trailing four byte checksum.
	undoPos, err := b.blockFiles.findUndoPos(node.file,
		uint32(len(serializedUndo))+4)
	if err != nil {
		return err
	}
	if err := b.blockFiles.writeUndo(undoPos, serializedUndo); err != nil {
		return err
	}
	node.undoPos = undoPos.pos
	b.index.SetStatusFlags(node, statusUndoStored)

	// Generate a new best state snapshot that will be used to update the
	// database and later memory if all database updates are successful.
	b.stateLock.RLock()
	curTotalTxns := b.stateSnapshot.TotalTxns
	b.stateLock.RUnlock()
	numTxns := uint64(len(block.MsgBlock().Transactions))
	blockSize := uint64(block.MsgBlock().SerializeSize())
	node.chainTxNum = curTotalTxns + numTxns
	state := newBestState(node, blockSize, numTxns, node.chainTxNum,
		node.CalcPastMedianTime())

	// Commit all modified utxo entries to the cache. The cache decides
	// when they reach the database.
	if err := b.utxoCache.commit(view); err != nil {
		return err
	}

	// This node is now the end of the best chain.
	b.bestChain.SetTip(node)
	b.index.RaiseValidity(node, statusValidScripts)

	// Update the state for the best block. Notice how this replaces the
	// entire struct instead of updating the existing one. This
	// effectively allows the old version to act as a snapshot which
	// callers can use freely without needing to hold a lock for the
	// duration.
	b.stateLock.Lock()
	b.stateSnapshot = state
	b.stateLock.Unlock()

	// Notify the caller that the block was connected to the main chain.
	// The caller would typically want to react with actions such as
	// updating wallets.
	b.chainLock.Unlock()
	b.sendNotification(NTBlockConnected, block)
	b.chainLock.Lock()

	// Periodically flush the in-memory chain state to stable storage.
	return b.flushStateToDisk(flushModePeriodic)
}

// disconnectBlock handles disconnecting the passed node/block from the end
// of the main (best) chain.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) disconnectBlock(node *blockNode, block *util.Block, view *UtxoViewpoint) error {
	// Make sure the node being disconnected is the end of the best chain.
	if !node.hash.IsEqual(&b.bestChain.Tip().hash) {
		return assertError("disconnectBlock must be called with the " +
			"block at the end of the main chain")
	}

	// Generate a new best state snapshot that will be used to update the
	// database and later memory if all database updates are successful.
	prevNode := node.parent
	prevBlock, err := b.fetchBlockByNode(prevNode)
	if err != nil {
		return err
	}
	b.stateLock.RLock()
	curTotalTxns := b.stateSnapshot.TotalTxns
	b.stateLock.RUnlock()
	numTxns := uint64(len(prevBlock.MsgBlock().Transactions))
	blockSize := uint64(prevBlock.MsgBlock().SerializeSize())
	newTotalTxns := curTotalTxns - uint64(len(block.MsgBlock().Transactions))
	state := newBestState(prevNode, blockSize, numTxns, newTotalTxns,
		prevNode.CalcPastMedianTime())

	// Commit all modified entries to the cache.
	if err := b.utxoCache.commit(view); err != nil {
		return err
	}

	// This node's parent is now the end of the best chain.
	b.bestChain.SetTip(node.parent)

	// Update the state for the best block.
	b.stateLock.Lock()
	b.stateSnapshot = state
	b.stateLock.Unlock()

	// Notify the caller that the block was disconnected from the main
	// chain. The caller would typically want to react with actions such
	// as updating wallets.
	b.chainLock.Unlock()
	b.sendNotification(NTBlockDisconnected, block)
	b.chainLock.Lock()

	return b.flushStateToDisk(flushModePeriodic)
}

// loadSpentTxOuts loads the undo data of the given node from the flat undo
// files.
func (b *ChainState) loadSpentTxOuts(node *blockNode) ([]SpentTxOut, error) {
	if !node.status.HaveUndo() {
		return nil, assertError(fmt.Sprintf("block %v has no stored "+
			"undo data", node.hash))
	}
	serialized, err := b.blockFiles.readUndo(blockFilePos{
		file: node.file,
		pos:  node.undoPos,
	})
	if err != nil {
		return nil, err
	}
	return deserializeSpentTxOuts(serialized)
}

// getReorganizeNodes finds the fork point between the main chain and the
// passed node and returns a list of block nodes that would need to be
// detached from the main chain and a list of block nodes that would need to
// be attached to the fork point (which will be the end of the main chain
// after detaching the returned list of block nodes) in order to reorganize
// the chain such that the passed node is the new end of the main chain. The
// lists will be empty if the passed node is not on a side chain.
//
// This function may modify node statuses in the block index without flushing.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *ChainState) getReorganizeNodes(node *blockNode) (*list.List, *list.List) {
	attachNodes := list.New()
	detachNodes := list.New()

	// Do not reorganize to a known invalid chain. Ancestors deeper than
	// the direct parent are checked below.
	if b.index.NodeStatus(node.parent).KnownInvalid() {
		b.index.SetStatusFlags(node, statusInvalidAncestor)
		return detachNodes, attachNodes
	}

	// Find the fork point (if any) adding each block to the list of nodes
	// to attach to the main tree. Push them onto the list in reverse
	// order so they are attached in the appropriate order when iterating
	// the list later.
	forkNode := b.bestChain.FindFork(node)
	invalidChain := false
	for n := node; n != nil && n != forkNode; n = n.parent {
		if b.index.NodeStatus(n).KnownInvalid() {
			invalidChain = true
			break
		}
		attachNodes.PushFront(n)
	}

	// If any of the node's ancestors are invalid, unwind attachNodes, marking
	// each one as invalid for future reference.
	if invalidChain {
		var next *list.Element
		for e := attachNodes.Front(); e != nil; e = next {
			next = e.Next()
			n := attachNodes.Remove(e).(*blockNode)
			b.index.SetStatusFlags(n, statusInvalidAncestor)
		}
		return detachNodes, attachNodes
	}

	// Start from the end of the main chain and work backwards until the
	// common ancestor adding each block to the list of nodes to detach
	// from the main chain.
	for n := b.bestChain.Tip(); n != nil && n != forkNode; n = n.parent {
		detachNodes.PushBack(n)
	}

	return detachNodes, attachNodes
}

// reorganizeChain reorganizes the block chain by disconnecting the nodes in
// the detachNodes list and connecting the nodes in the attach list. It
// expects that the lists are already in the correct order and are in sync
// with the end of the current best chain. Specifically, nodes that are being
// disconnected must be in reverse order (think of popping them off the end
// of the chain) and nodes the are being attached must be in forwards order
// (think pushing them onto the end of the chain).
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) reorganizeChain(detachNodes, attachNodes *list.List) error {
	// Nothing to do if no reorganize nodes were provided.
	if detachNodes.Len() == 0 && attachNodes.Len() == 0 {
		return nil
	}

	// Ensure the provided nodes match the current best chain.
	tip := b.bestChain.Tip()
	if detachNodes.Len() != 0 {
		firstDetachNode := detachNodes.Front().Value.(*blockNode)
		if firstDetachNode.hash != tip.hash {
			return assertError(fmt.Sprintf("reorganize nodes to "+
				"detach are not for the current best chain -- "+
				"first detach node %v, current chain %v",
				&firstDetachNode.hash, &tip.hash))
		}
	}

	// Ensure the provided nodes are for the same fork point.
	if attachNodes.Len() != 0 && detachNodes.Len() != 0 {
		firstAttachNode := attachNodes.Front().Value.(*blockNode)
		lastDetachNode := detachNodes.Back().Value.(*blockNode)
		if firstAttachNode.parent.hash != lastDetachNode.parent.hash {
			return assertError(fmt.Sprintf("reorganize nodes do "+
				"not have the same fork point -- first attach "+
				"parent %v, last detach parent %v",
				&firstAttachNode.parent.hash,
				&lastDetachNode.parent.hash))
		}
	}

	// Track the old and new best chains heads.
	oldBest := tip
	newBest := tip

	// All of the blocks to detach and related spend journal entries needed
	// to unspend transaction outputs in the blocks being disconnected must
	// be loaded from the database during the reorg check phase below and
	// then they are needed again when doing the actual database updates.
	// Rather than doing two loads, cache the loaded data into these slices.
	detachBlocks := make([]*util.Block, 0, detachNodes.Len())
	detachSpentTxOuts := make([][]SpentTxOut, 0, detachNodes.Len())
	attachBlocks := make([]*util.Block, 0, attachNodes.Len())

	// Disconnect all of the blocks back to the point of the fork. This
	// entails loading the blocks and their associated spent txos from the
	// database and using that information to unspend all of the spent txos
	// and remove the utxos created by the blocks.
	view := NewUtxoViewpoint()
	view.SetBestHash(&oldBest.hash)
	for e := detachNodes.Front(); e != nil; e = e.Next() {
		n := e.Value.(*blockNode)
		block, err := b.fetchBlockByNode(n)
		if err != nil {
			return err
		}
		if n.hash != *block.Hash() {
			return assertError(fmt.Sprintf("detach block node hash "+
				"%v (height %v) does not match block hash %v",
				&n.hash, n.height, block.Hash()))
		}

		// Load all of the utxos referenced by the block that aren't
		// already in the view.
		err = view.fetchInputUtxos(b.utxoCache, block)
		if err != nil {
			return err
		}

		// Load all of the spent txos for the block from the spend
		// journal.
		stxos, err := b.loadSpentTxOuts(n)
		if err != nil {
			return err
		}

		// Store the loaded block and spend journal entry for later.
		detachBlocks = append(detachBlocks, block)
		detachSpentTxOuts = append(detachSpentTxOuts, stxos)

		err = view.disconnectTransactions(block, stxos)
		if err != nil {
			return err
		}
		view.SetBestHash(&n.parent.hash)

		newBest = n.parent
	}

	// Set the fork point only if there are nodes to attach since otherwise
	// blocks are only being disconnected and thus there is no fork point.
	var forkNode *blockNode
	if attachNodes.Len() > 0 {
		forkNode = newBest
	}

	// Perform several checks to verify each block that needs to be attached
	// to the main chain can be connected without violating any rules and
	// without actually connecting the block.
	for e := attachNodes.Front(); e != nil; e = e.Next() {
		n := e.Value.(*blockNode)

		block, err := b.fetchBlockByNode(n)
		if err != nil {
			return err
		}

		// Store the loaded block for later.
		attachBlocks = append(attachBlocks, block)

		// Skip checks if node has already been fully validated. Although
		// checkConnectBlock gets skipped, we still need to update the
		// utxo view.
		if b.index.NodeStatus(n).KnownValid(statusValidScripts) {
			err = view.fetchInputUtxos(b.utxoCache, block)
			if err != nil {
				return err
			}
			err = view.connectTransactions(block, nil)
			if err != nil {
				return err
			}
			view.SetBestHash(&n.hash)

			newBest = n
			continue
		}

		// Notice the spent txout details are not requested here and
		// thus will not be generated. This is done because the state
		// is not being immediately written to the database, so it is
		// not needed.
		err = b.checkConnectBlock(n, block, view, nil)
		if err != nil {
			if IsRuleError(err) {
				b.index.SetStatusFlags(n, statusValidateFailed)
				for de := e.Next(); de != nil; de = de.Next() {
					dn := de.Value.(*blockNode)
					b.index.SetStatusFlags(dn, statusInvalidAncestor)
				}
			}
			return err
		}
		b.index.RaiseValidity(n, statusValidScripts)

		newBest = n
	}

	// Reset the view for the actual connection code below. This is
	// required because the view was previously modified when checking if
	// the reorg would be successful and the connection code requires the
	// view to be valid from the viewpoint of each block being connected or
	// disconnected.
	view = NewUtxoViewpoint()
	view.SetBestHash(&b.bestChain.Tip().hash)

	// Disconnect blocks from the main chain.
	for i, e := 0, detachNodes.Front(); e != nil; i, e = i+1, e.Next() {
		n := e.Value.(*blockNode)
		block := detachBlocks[i]

		// Load all of the utxos referenced by the block that aren't
		// already in the view.
		err := view.fetchInputUtxos(b.utxoCache, block)
		if err != nil {
			return err
		}

		// Update the view to unspend all of the spent txos and remove
		// the utxos created by the block.
		err = view.disconnectTransactions(block, detachSpentTxOuts[i])
		if err != nil {
			return err
		}
		view.SetBestHash(&n.parent.hash)

		// Update the database and chain state.
		err = b.disconnectBlock(n, block, view)
		if err != nil {
			return err
		}

		// A detached node with stored data remains a tip candidate.
		b.candidates[n] = struct{}{}
	}

	// Connect the new best chain blocks.
	for i, e := 0, attachNodes.Front(); e != nil; i, e = i+1, e.Next() {
		n := e.Value.(*blockNode)
		block := attachBlocks[i]

		// Load all of the utxos referenced by the block that aren't
		// already in the view.
		err := view.fetchInputUtxos(b.utxoCache, block)
		if err != nil {
			return err
		}

		// Update the view to mark all utxos referenced by the block
		// as spent and add all transactions being created by this block
		// to it. Also, provide an stxo slice so the spent txout
		// details are generated.
		stxos := make([]SpentTxOut, 0, countSpentOutputs(block))
		err = view.connectTransactions(block, &stxos)
		if err != nil {
			return err
		}
		view.SetBestHash(&n.hash)

		// Update the database and chain state.
		err = b.connectBlock(n, block, view, stxos)
		if err != nil {
			return err
		}
	}

	// Drop candidates the new tip now dominates.
	b.pruneBlockIndexCandidates()

	// Log the point where the chain forked and old and new best chain
	// heads.
	if forkNode != nil {
		log.Infof("REORGANIZE: Chain forks at %v (height %v)",
			forkNode.hash, forkNode.height)
	}
	log.Infof("REORGANIZE: Old best chain head was %v (height %v)",
		&oldBest.hash, oldBest.height)
	log.Infof("REORGANIZE: New best chain head is %v (height %v)",
		newBest.hash, newBest.height)

	return nil
}

// betterCandidate returns whether node a is a strictly better tip candidate
// than node b. More cumulative work wins, ties resolve in favor of the block
// that arrived first.
func betterCandidate(a, b *blockNode) bool {
	cmp := a.workSum.Cmp(b.workSum)
	if cmp != 0 {
		return cmp > 0
	}
	return a.sequenceNum < b.sequenceNum
}

// pruneBlockIndexCandidates removes tip candidates that can no longer become
// the best chain. The current tip always remains in the set.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) pruneBlockIndexCandidates() {
	tip := b.bestChain.Tip()
	if tip == nil {
		return
	}
	for node := range b.candidates {
		if node == tip {
			continue
		}
		if node.workSum.Cmp(tip.workSum) < 0 ||
			node.status.KnownInvalid() {
			delete(b.candidates, node)
		}
	}
	b.candidates[tip] = struct{}{}
}

// bestCandidate returns the best tip candidate, or nil when the set is
// empty.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *ChainState) bestCandidate() *blockNode {
	var best *blockNode
	for node := range b.candidates {
		if node.status.KnownInvalid() || !node.status.HaveData() {
			continue
		}
		if best == nil || betterCandidate(node, best) {
			best = node
		}
	}
	return best
}

// connectBestChain handles connecting the passed block to the chain while
// respecting proper chain selection according to the chain with the most
// proof of work. In the typical case, the new block simply extends the main
// chain. However, it may also be extending (or creating) a side chain
// (fork) which may or may not end up becoming the main chain depending on
// which fork cumulatively has the most proof of work. It returns whether or
// not the block ended up on the main chain (either due to extending the main
// chain or causing a reorganization to become the main chain).
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) connectBestChain(node *blockNode, block *util.Block, flags BehaviorFlags) (bool, error) {
	fastAdd := flags&BFFastAdd == BFFastAdd

	flushIndexState := func() {
		// Intentionally ignores errors writing updated node status to
		// DB. If it fails to write, it's not the end of the world. If
		// the block is valid, we flush in connectBlock and if the
		// block is invalid, the worst that can happen is we revalidate
		// the block after a restart.
		if err := b.flushStateToDisk(flushModeIfNeeded); err != nil {
			log.Warnf("Error flushing block index changes to disk: %v",
				err)
		}
	}

	// We are extending the main (best) chain with a new block. This is the
	// most common case.
	parentHash := &block.MsgBlock().Header.PrevBlock
	if parentHash.IsEqual(&b.bestChain.Tip().hash) {
		// Skip checks if node has already been fully validated.
		fastAdd = fastAdd || b.index.NodeStatus(node).KnownValid(statusValidScripts)

		// Perform several checks to verify the block can be connected
		// to the main chain without violating any rules and without
		// actually connecting the block.
		view := NewUtxoViewpoint()
		view.SetBestHash(parentHash)
		stxos := make([]SpentTxOut, 0, countSpentOutputs(block))
		if !fastAdd {
			err := b.checkConnectBlock(node, block, view, &stxos)
			if err == nil {
				b.index.RaiseValidity(node, statusValidScripts)
			} else if IsRuleError(err) {
				b.index.SetStatusFlags(node, statusValidateFailed)
				delete(b.candidates, node)
				flushIndexState()
				return false, err
			} else {
				return false, err
			}
		}

		// In the fast add case the code to check the block connection
		// was skipped, so the utxo view needs to load the referenced
		// utxos, spend them, and add the new utxos being created by
		// this block.
		if fastAdd {
			err := view.fetchInputUtxos(b.utxoCache, block)
			if err != nil {
				return false, err
			}
			err = view.connectTransactions(block, &stxos)
			if err != nil {
				return false, err
			}
			view.SetBestHash(&node.hash)
			node.moneySupply = node.parent.moneySupply +
				mintedValue(block, view)
		}

		// Connect the block to the main chain.
		err := b.connectBlock(node, block, view, stxos)
		if err != nil {
			// If we got hit with a rule error, then we'll mark
			// that status of the block as invalid and flush the
			// index state to disk before returning with the error.
			if IsRuleError(err) {
				b.index.SetStatusFlags(node, statusValidateFailed)
				delete(b.candidates, node)
			}
			flushIndexState()
			return false, err
		}

		b.pruneBlockIndexCandidates()
		return true, nil
	}
	if fastAdd {
		log.Warnf("fastAdd set in the side chain case? %v\n",
			block.Hash())
	}

	// We're extending (or creating) a side chain, but the cumulative work
	// for this new side chain is not enough to make it the new chain.
	if node.workSum.Cmp(b.bestChain.Tip().workSum) <= 0 {
		// Log information about how the block is forking the chain.
		fork := b.bestChain.FindFork(node)
		if fork.hash.IsEqual(parentHash) {
			log.Infof("FORK: Block %v forks the chain at height %d"+
				"/block %v, but does not cause a reorganize",
				node.hash, fork.height, fork.hash)
		} else {
			log.Infof("EXTEND FORK: Block %v extends a side chain "+
				"which forks the chain at height %d/block %v",
				node.hash, fork.height, fork.hash)
		}

		return false, nil
	}

	// We're extending (or creating) a side chain and the cumulative work
	// for this new side chain is more than the old best chain, so this side
	// chain needs to become the main chain. In order to accomplish that,
	// find the common ancestor of both sides of the fork, disconnect the
	// blocks that form the (now) old fork from the main chain, and attach
	// the blocks that form the new chain to the main chain starting at the
	// common ancestor (the point where the chain forked).
	detachNodes, attachNodes := b.getReorganizeNodes(node)

	// Reorganize the chain.
	log.Infof("REORGANIZE: Block %v is causing a reorganize", node.hash)
	err := b.reorganizeChain(detachNodes, attachNodes)

	// Either getReorganizeNodes or reorganizeChain could have made unsaved
	// changes to the block index, so flush regardless of whether there was
	// an error. The index would only be dirty if the block failed to
	// connect, so we can ignore any errors writing.
	flushIndexState()

	return err == nil, err
}

// mintedValue returns the amount of new coins the passed block creates. It
// requires the view to still hold the entries the block spends.
func mintedValue(block *util.Block, view *UtxoViewpoint) int64 {
	var valueIn, valueOut int64
	for i, tx := range block.Transactions() {
		for _, txOut := range tx.MsgTx().TxOut {
			valueOut += txOut.Value
		}
		if i == 0 {
			continue
		}
		for _, txIn := range tx.MsgTx().TxIn {
			entry := view.LookupEntry(txIn.PreviousOutPoint)
			if entry != nil {
				valueIn += entry.Amount()
			}
		}
	}
	return valueOut - valueIn
}

// InvalidateBlock manually marks the block with the given hash invalid. When
// the block is part of the best chain, the chain is rewound to its parent
// and the best remaining candidate becomes the new tip. Descendants of the
// block are marked as having an invalid ancestor.
//
// This function is safe for concurrent access.
func (b *ChainState) InvalidateBlock(hash *chainhash.Hash) error {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	node := b.index.LookupNode(hash)
	if node == nil {
		return errors.Errorf("block %s is not known", hash)
	}
	if node.height == 0 {
		return errors.Errorf("the genesis block cannot be invalidated")
	}

	// Mark the block itself and every descendant.
	b.index.SetStatusFlags(node, statusValidateFailed)
	delete(b.candidates, node)
	b.index.forEachNode(func(n *blockNode) {
		for p := n.parent; p != nil; p = p.parent {
			if p == node {
				b.index.SetStatusFlags(n, statusInvalidAncestor)
				delete(b.candidates, n)
				break
			}
			if p.height < node.height {
				break
			}
		}
	})

	// If the invalidated block is on the best chain, rewind to its parent
	// and reorganize to the best remaining candidate.
	if b.bestChain.Contains(node) {
		detachNodes := list.New()
		for n := b.bestChain.Tip(); n != nil && n.height >= node.height; n = n.parent {
			detachNodes.PushBack(n)
		}
		if err := b.reorganizeChain(detachNodes, list.New()); err != nil {
			return err
		}

		// The parent chain is valid again, so every ancestor is a
		// candidate.
		b.candidates[b.bestChain.Tip()] = struct{}{}
		if best := b.bestCandidate(); best != nil &&
			best != b.bestChain.Tip() {
			detach, attach := b.getReorganizeNodes(best)
			if err := b.reorganizeChain(detach, attach); err != nil {
				return err
			}
		}
	}

	return b.flushStateToDisk(flushModeAlways)
}

// ReconsiderBlock removes the invalidity markers from the block with the
// given hash, its ancestors, and all of its descendants, and retries best
// chain selection.
//
// This function is safe for concurrent access.
func (b *ChainState) ReconsiderBlock(hash *chainhash.Hash) error {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	node := b.index.LookupNode(hash)
	if node == nil {
		return errors.Errorf("block %s is not known", hash)
	}

	// Clear failure markers from the whole subtree rooted at the block
	// and from its ancestry.
	clearFlags := statusValidateFailed | statusInvalidAncestor
	b.index.forEachNode(func(n *blockNode) {
		for p := n; p != nil; p = p.parent {
			if p == node {
				b.index.UnsetStatusFlags(n, clearFlags)
				if n.chainTxNum != 0 &&
					n.status.KnownValid(statusValidTransactions) {
					b.candidates[n] = struct{}{}
				}
				break
			}
		}
	})
	for p := node; p != nil; p = p.parent {
		b.index.UnsetStatusFlags(p, clearFlags)
	}

	// Retry chain selection now that the subtree is eligible again.
	if best := b.bestCandidate(); best != nil && best != b.bestChain.Tip() &&
		best.workSum.Cmp(b.bestChain.Tip().workSum) > 0 {
		detach, attach := b.getReorganizeNodes(best)
		if err := b.reorganizeChain(detach, attach); err != nil {
			return err
		}
	}

	return b.flushStateToDisk(flushModeAlways)
}

// BlockLocatorFromHash traces the main chain back from the given hash with
// exponentially increasing gaps, producing a compact description of the
// chain's shape that a remote node can find a fork point against.
//
// This function is safe for concurrent access.
func (b *ChainState) BlockLocatorFromHash(hash *chainhash.Hash) []*chainhash.Hash {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node := b.index.LookupNode(hash)
	if node == nil {
		node = b.bestChain.Tip()
	}

	var locator []*chainhash.Hash
	step := int32(1)
	for node != nil {
		locator = append(locator, &node.hash)
		if node.height == 0 {
			break
		}
		height := node.height - step
		if height < 0 {
			height = 0
		}
		// Walk within the main chain when possible, otherwise follow
		// parent links.
		if b.bestChain.Contains(node) {
			node = b.bestChain.NodeByHeight(height)
		} else {
			node = node.Ancestor(height)
		}
		if len(locator) > 10 {
			step *= 2
		}
	}
	return locator
}
