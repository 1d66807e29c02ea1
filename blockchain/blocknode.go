// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"sort"
	"time"

	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// medianTimeBlocks is the number of previous blocks which should be
// used to calculate the median time used to validate block timestamps.
const medianTimeBlocks = 11

// blockStatus is a bit field representing the validation state of the block.
// The low bits hold how far the block's validity has been verified, the high
// bits are independent flags.
type blockStatus byte

const (
	// statusValidityMask selects the bits holding the validity level.
	statusValidityMask blockStatus = 0x07

	// statusValidUnknown means the validity of the block is unknown.
	statusValidUnknown blockStatus = 0

	// statusValidHeader means the block header is valid.
	statusValidHeader blockStatus = 1

	// statusValidTree means the header is valid and it connects to a known
	// valid ancestry.
	statusValidTree blockStatus = 2

	// statusValidTransactions means the block passed all context free
	// transaction checks. The block data is available for any block with
	// this level.
	statusValidTransactions blockStatus = 3

	// statusValidChain means the block's inputs were fully verified
	// against the chain state while it was part of the best chain.
	statusValidChain blockStatus = 4

	// statusValidScripts means all scripts in the block were verified.
	statusValidScripts blockStatus = 5

	// statusDataStored indicates the full block data is stored in a block
	// file.
	statusDataStored blockStatus = 1 << 3

	// statusUndoStored indicates the undo data for the block is stored in
	// an undo file.
	statusUndoStored blockStatus = 1 << 4

	// statusValidateFailed indicates the block failed validation.
	statusValidateFailed blockStatus = 1 << 5

	// statusInvalidAncestor indicates one of the block's ancestors has
	// has failed validation, thus the block is also invalid.
	statusInvalidAncestor blockStatus = 1 << 6
)

// HaveData returns whether the full block data is stored in the database.
// This will return false for a block node where only the header is stored or
// one that was reconstructed from a side chain.
func (status blockStatus) HaveData() bool {
	return status&statusDataStored != 0
}

// HaveUndo returns whether the undo data for the block is stored.
func (status blockStatus) HaveUndo() bool {
	return status&statusUndoStored != 0
}

// KnownValid returns whether the block has been verified at least up to the
// given validity level and is not known to be invalid.
func (status blockStatus) KnownValid(upTo blockStatus) bool {
	if status.KnownInvalid() {
		return false
	}
	return status&statusValidityMask >= upTo
}

// KnownInvalid returns whether the block is known to be invalid. This may be
// because the block itself failed validation or any of its ancestors is
// invalid. This will return false for invalid blocks that have not been
// proven invalid yet.
func (status blockStatus) KnownInvalid() bool {
	return status&(statusValidateFailed|statusInvalidAncestor) != 0
}

// blockNode represents a block within the block chain and is primarily used
// to aid in selecting the best chain to be the main chain. The main chain is
// stored into the block database.
type blockNode struct {
	// NOTE: Additions, deletions, or modifications to the order of the
	// definitions in this struct should not be changed without considering
	// how it affects alignment on 64-bit platforms. The current order is
	// specifically crafted to result in minimal padding. There will be
	// hundreds of thousands of these in memory, so a few extra bytes of
	// padding adds up.

	// parent is the parent block for this node.
	parent *blockNode

	// hash is the double sha 256 of the block.
	hash chainhash.Hash

	// workSum is the total amount of work in the chain up to and including
	// this node.
	workSum *big.Int

	// moneySupply is the total amount of coins minted in the chain up to
	// and including this node.
	moneySupply int64

	// sequenceNum orders blocks by arrival. It breaks work ties in favor
	// of the block seen first and is not persisted, blocks loaded from
	// disk all share sequence number zero.
	sequenceNum int64

	// height is the position in the block chain.
	height int32

	// numTx is the number of transactions in the block.
	numTx uint32

	// chainTxNum is the total number of transactions in the chain up to
	// and including this block, or zero when the count is not yet known
	// because block data is missing somewhere in the ancestry.
	chainTxNum uint64

	// file is the number of the block file holding the block data, and
	// dataPos and undoPos are the byte offsets of the block data and undo
	// data within their files. They are only meaningful when the
	// corresponding status flags are set.
	file    int32
	dataPos uint32
	undoPos uint32

	// Some fields from block headers to aid in best chain selection and
	// reconstructing headers from memory. These must be treated as
	// immutable and are intentionally ordered to avoid padding on 64-bit
	// platforms.
	version    int32
	bits       uint32
	nonce      uint32
	timestamp  int64
	merkleRoot chainhash.Hash

	// proofOfStake indicates the block is staked rather than mined. The
	// two kinds retarget difficulty independently.
	proofOfStake bool

	// status is a bitfield representing the validation state of the block.
	// The status field, unlike the other fields, may be written to and so
	// should only be accessed using the concurrent-safe blockIndex methods
	// once the node has been added to the index.
	status blockStatus
}

// initBlockNode initializes a block node from the given header and parent
// node, calculating the height and workSum from the respective fields on the
// parent. This function is NOT safe for concurrent access. It must only be
// called when initially creating a node.
func initBlockNode(node *blockNode, blockHeader *wire.BlockHeader, parent *blockNode, proofOfStake bool) {
	*node = blockNode{
		hash:         blockHeader.BlockHash(),
		workSum:      CalcWork(blockHeader.Bits),
		version:      blockHeader.Version,
		bits:         blockHeader.Bits,
		nonce:        blockHeader.Nonce,
		timestamp:    blockHeader.Timestamp.Unix(),
		merkleRoot:   blockHeader.MerkleRoot,
		proofOfStake: proofOfStake,
	}
	if parent != nil {
		node.parent = parent
		node.height = parent.height + 1
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
}

// newBlockNode returns a new block node for the given block header and parent
// node, calculating the height and workSum from the respective fields on the
// parent. This function is NOT safe for concurrent access.
func newBlockNode(blockHeader *wire.BlockHeader, parent *blockNode, proofOfStake bool) *blockNode {
	var node blockNode
	initBlockNode(&node, blockHeader, parent, proofOfStake)
	return &node
}

// Header constructs a block header from the node and returns it.
//
// This function is safe for concurrent access.
func (node *blockNode) Header() wire.BlockHeader {
	// No lock is needed because all accessed fields are immutable.
	prevHash := &zeroHash
	if node.parent != nil {
		prevHash = &node.parent.hash
	}
	return wire.BlockHeader{
		Version:    node.version,
		PrevBlock:  *prevHash,
		MerkleRoot: node.merkleRoot,
		Timestamp:  time.Unix(node.timestamp, 0),
		Bits:       node.bits,
		Nonce:      node.nonce,
	}
}

// Ancestor returns the ancestor block node at the provided height by
// following the chain backwards from this node. The returned block will be
// nil when a height is requested that is after the height of the passed node
// or is less than zero.
//
// This function is safe for concurrent access.
func (node *blockNode) Ancestor(height int32) *blockNode {
	if height < 0 || height > node.height {
		return nil
	}

	n := node
	for ; n != nil && n.height != height; n = n.parent {
		// Intentionally left blank
	}

	return n
}

// RelativeAncestor returns the ancestor block node a relative 'distance'
// blocks before this node. This is equivalent to calling Ancestor with the
// node's height minus provided distance.
//
// This function is safe for concurrent access.
func (node *blockNode) RelativeAncestor(distance int32) *blockNode {
	return node.Ancestor(node.height - distance)
}

// CalcPastMedianTime calculates the median time of the previous few blocks
// prior to, and including, the block node.
//
// This function is safe for concurrent access.
func (node *blockNode) CalcPastMedianTime() time.Time {
	// Create a slice of the previous few block timestamps used to calculate
	// the median per the number defined by the constant medianTimeBlocks.
	timestamps := make([]int64, medianTimeBlocks)
	numNodes := 0
	iterNode := node
	for i := 0; i < medianTimeBlocks && iterNode != nil; i++ {
		timestamps[i] = iterNode.timestamp
		numNodes++

		iterNode = iterNode.parent
	}

	// Prune the slice to the actual number of available timestamps which
	// will be fewer than desired near the beginning of the block chain
	// and sort them.
	timestamps = timestamps[:numNodes]
	sort.Sort(int64Sorter(timestamps))

	// NOTE: The consensus rules incorporate a median of 11 blocks. This
	// is an odd number so the median will always be the middle entry, but
	// near the beginning of the chain there might be an even number of
	// entries, in which case the upper of the two middle entries is taken
	// per the reference implementation.
	medianTimestamp := timestamps[numNodes/2]
	return time.Unix(medianTimestamp, 0)
}

// int64Sorter implements sort.Interface to allow a slice of 64-bit integers
// to be sorted.
type int64Sorter []int64

// Len returns the number of 64-bit integers in the slice. It is part of the
// sort.Interface implementation.
func (s int64Sorter) Len() int {
	return len(s)
}

// Swap swaps the 64-bit integers at the passed indices. It is part of the
// sort.Interface implementation.
func (s int64Sorter) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Less returns whether the 64-bit integer with index i should sort before the
// 64-bit integer with index j. It is part of the sort.Interface
// implementation.
func (s int64Sorter) Less(i, j int) bool {
	return s[i] < s[j]
}

// zeroHash is the zero value for a chainhash.Hash and is defined as
// a package level variable to avoid the need to create a new instance
// every time a check is needed.
var zeroHash chainhash.Hash
