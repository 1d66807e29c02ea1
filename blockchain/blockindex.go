// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"

	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/database"
	"github.com/eccnet/eccd/util/chainhash"
)

// blockIndex provides facilities for keeping track of an in-memory index of
// the block chain. Although the name block chain suggests a single chain of
// blocks, it is actually a tree-shaped structure where any node can have
// multiple children. However, there can only be one active branch which does
// indeed form a chain from the tip all the way back to the genesis block.
//
// The index owns every node it holds. Nodes are only ever added, never
// removed, so a looked-up node stays valid for the life of the index.
type blockIndex struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	db          database.Database
	chainParams *chaincfg.Params

	sync.RWMutex
	index map[chainhash.Hash]*blockNode
	dirty map[*blockNode]struct{}
}

// newBlockIndex returns a new empty instance of a block index. The index will
// be dynamically populated as block nodes are loaded from the database and
// manually added.
func newBlockIndex(db database.Database, chainParams *chaincfg.Params) *blockIndex {
	return &blockIndex{
		db:          db,
		chainParams: chainParams,
		index:       make(map[chainhash.Hash]*blockNode),
		dirty:       make(map[*blockNode]struct{}),
	}
}

// HaveBlock returns whether or not the block index contains the provided hash.
//
// This function is safe for concurrent access.
func (bi *blockIndex) HaveBlock(hash *chainhash.Hash) bool {
	bi.RLock()
	_, hasBlock := bi.index[*hash]
	bi.RUnlock()
	return hasBlock
}

// LookupNode returns the block node identified by the provided hash. It will
// return nil if there is no entry for the hash.
//
// This function is safe for concurrent access.
func (bi *blockIndex) LookupNode(hash *chainhash.Hash) *blockNode {
	bi.RLock()
	node := bi.index[*hash]
	bi.RUnlock()
	return node
}

// AddNode adds the provided node to the block index and marks it as dirty.
// Duplicate entries are not checked so it is up to caller to avoid adding
// them.
//
// This function is safe for concurrent access.
func (bi *blockIndex) AddNode(node *blockNode) {
	bi.Lock()
	bi.addNode(node)
	bi.dirty[node] = struct{}{}
	bi.Unlock()
}

// addNode adds the provided node to the block index, but does not mark it as
// dirty. This can be used while initializing the block index.
//
// This function is NOT safe for concurrent access.
func (bi *blockIndex) addNode(node *blockNode) {
	bi.index[node.hash] = node
}

// NodeStatus provides concurrent-safe access to the status field of a node.
//
// This function is safe for concurrent access.
func (bi *blockIndex) NodeStatus(node *blockNode) blockStatus {
	bi.RLock()
	status := node.status
	bi.RUnlock()
	return status
}

// SetStatusFlags flips the provided status flags on the block node to on,
// regardless of whether they were on or off previously. This does not unset
// any flags currently on.
//
// This function is safe for concurrent access.
func (bi *blockIndex) SetStatusFlags(node *blockNode, flags blockStatus) {
	bi.Lock()
	node.status |= flags
	bi.dirty[node] = struct{}{}
	bi.Unlock()
}

// UnsetStatusFlags flips the provided status flags on the block node to off,
// regardless of whether they were on or off previously.
//
// This function is safe for concurrent access.
func (bi *blockIndex) UnsetStatusFlags(node *blockNode, flags blockStatus) {
	bi.Lock()
	node.status &^= flags
	bi.dirty[node] = struct{}{}
	bi.Unlock()
}

// RaiseValidity raises the validity level of the block node to the given
// level if its current level is lower and the node is not known invalid. It
// returns whether the level was actually raised.
//
// This function is safe for concurrent access.
func (bi *blockIndex) RaiseValidity(node *blockNode, upTo blockStatus) bool {
	bi.Lock()
	defer bi.Unlock()

	if node.status.KnownInvalid() {
		return false
	}
	if node.status&statusValidityMask >= upTo {
		return false
	}
	node.status = (node.status &^ statusValidityMask) | upTo
	bi.dirty[node] = struct{}{}
	return true
}

// dirtyNodes returns the set of nodes modified since the last flush and
// clears the set. The returned nodes must be written to the database by the
// caller, the set is cleared eagerly so a concurrent modification during the
// write is not lost.
//
// This function is safe for concurrent access.
func (bi *blockIndex) dirtyNodes() []*blockNode {
	bi.Lock()
	nodes := make([]*blockNode, 0, len(bi.dirty))
	for node := range bi.dirty {
		nodes = append(nodes, node)
	}
	bi.dirty = make(map[*blockNode]struct{})
	bi.Unlock()
	return nodes
}

// markDirty adds the given nodes back to the dirty set. It is used to retry
// a failed flush.
//
// This function is safe for concurrent access.
func (bi *blockIndex) markDirty(nodes []*blockNode) {
	bi.Lock()
	for _, node := range nodes {
		bi.dirty[node] = struct{}{}
	}
	bi.Unlock()
}

// forEachNode runs fn over every node in the index. The index is snapshotted
// first so fn may call back into the index.
func (bi *blockIndex) forEachNode(fn func(*blockNode)) {
	bi.RLock()
	nodes := make([]*blockNode, 0, len(bi.index))
	for _, node := range bi.index {
		nodes = append(nodes, node)
	}
	bi.RUnlock()

	for _, node := range nodes {
		fn(node)
	}
}
