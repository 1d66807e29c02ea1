// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/eccnet/eccd/util"
)

// maybeAcceptBlock potentially accepts a block into the block chain and, if
// accepted, returns whether or not it is on the main chain. It performs
// several validation checks which depend on its position within the block
// chain before adding it. The block is expected to have already gone through
// ProcessBlock before calling this function with it.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) maybeAcceptBlock(block *util.Block, flags BehaviorFlags) (bool, error) {
	// The height of this block is one more than the referenced previous
	// block.
	prevHash := &block.MsgBlock().Header.PrevBlock
	prevNode := b.index.LookupNode(prevHash)
	if prevNode == nil {
		str := fmt.Sprintf("previous block %s is unknown", prevHash)
		return false, ruleError(RejectInvalid, "bad-prevblk", str)
	}
	if b.index.NodeStatus(prevNode).KnownInvalid() {
		str := fmt.Sprintf("previous block %s is known to be invalid",
			prevHash)
		return false, dosError(100, RejectInvalid, "bad-prevblk", str)
	}

	blockHeight := prevNode.height + 1
	block.SetHeight(blockHeight)

	// A block must not fork the chain before the most recent checkpoint.
	if err := b.checkIndexAgainstCheckpoint(prevNode); err != nil {
		return false, err
	}

	// The block must pass all of the validation rules which depend on the
	// position of the block within the block chain.
	err := b.checkBlockContext(block, prevNode, flags)
	if err != nil {
		return false, err
	}

	// Store the raw block in a flat block file. Even if the block
	// ultimately fails to connect, it is not deleted, it takes a new
	// majority to reorganize away from it later.
	serialized, err := block.Bytes()
	if err != nil {
		return false, err
	}
	header := &block.MsgBlock().Header
	blockPos, err := b.blockFiles.findBlockPos(uint32(len(serialized)),
		blockHeight, uint64(header.Timestamp.Unix()), b.loadBlockFileInfo)
	if err != nil {
		return false, err
	}
	if err := b.blockFiles.writeBlock(blockPos, serialized); err != nil {
		return false, err
	}

	// Create a new block node for the block and add it to the block
	// index.
	newNode := newBlockNode(header, prevNode, block.IsProofOfStake())
	newNode.status = statusDataStored
	newNode.numTx = uint32(len(block.MsgBlock().Transactions))
	newNode.file = blockPos.file
	newNode.dataPos = blockPos.pos
	b.index.AddNode(newNode)
	b.index.RaiseValidity(newNode, statusValidTransactions)

	// Propagate the received transactions through any descendants that
	// were waiting on this block's data, making them tip candidates.
	b.receivedBlockTransactions(newNode)

	// Flush the new index entry so a crash does not lose track of the
	// stored block data.
	if err := b.flushStateToDisk(flushModeIfNeeded); err != nil {
		return false, err
	}

	if newNode.chainTxNum == 0 {
		// The parent's transactions have not arrived yet, the block
		// cannot connect.
		return false, nil
	}

	// Connect the passed block to the chain while respecting proper chain
	// selection according to the chain with the most proof of work. This
	// also handles validation of the transaction scripts.
	isMainChain, err := b.connectBestChain(newNode, block, flags)
	if err != nil {
		return false, err
	}

	// Notify the caller that the new block was accepted into the block
	// chain. The caller would typically want to react by relaying the
	// inventory to other peers.
	b.chainLock.Unlock()
	b.sendNotification(NTBlockAccepted, block)
	b.chainLock.Lock()

	return isMainChain, nil
}

// receivedBlockTransactions marks the transactions of the given node as
// received and walks the subtree of nodes that were waiting on them. Every
// node whose full ancestry of transactions is now available gets its chain
// transaction count, an arrival sequence number, and a spot in the tip
// candidate set.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) receivedBlockTransactions(node *blockNode) {
	if node.parent != nil && node.parent.chainTxNum == 0 {
		// The parent's data is still missing. Park the node until it
		// arrives.
		prevHash := node.parent.hash
		b.unlinked[prevHash] = append(b.unlinked[prevHash], node)
		return
	}

	queue := []*blockNode{node}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if n.parent != nil {
			n.chainTxNum = n.parent.chainTxNum + uint64(n.numTx)
		} else {
			n.chainTxNum = uint64(n.numTx)
		}
		n.sequenceNum = b.nextSequenceNum
		b.nextSequenceNum++

		if !n.status.KnownInvalid() {
			b.candidates[n] = struct{}{}
		}

		// Any children that were waiting on this node's data are now
		// connectable as well.
		if children, ok := b.unlinked[n.hash]; ok {
			delete(b.unlinked, n.hash)
			queue = append(queue, children...)
		}
	}
}
