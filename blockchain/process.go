// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"time"

	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
)

const (
	// maxOrphanBlocks is the maximum number of orphan blocks that can be
	// queued.
	maxOrphanBlocks = 100

	// orphanExpireScanInterval is the minimum amount of time in between
	// scans of the orphan pool to evict expired blocks.
	orphanExpireScanInterval = time.Minute * 5
)

// orphanBlock represents a block that we don't yet have the parent for. It
// is a normal block plus an expiration time to prevent caching the orphan
// forever.
type orphanBlock struct {
	block      *util.Block
	expiration time.Time
}

// orphanIndex holds blocks whose parent is not yet known, keyed both by
// their own hash and by the missing parent's hash.
type orphanIndex struct {
	orphans      map[chainhash.Hash]*orphanBlock
	prevOrphans  map[chainhash.Hash][]*orphanBlock
	oldestOrphan *orphanBlock
	nextScan     time.Time
}

// IsKnownOrphan returns whether the passed hash is currently a known orphan.
//
// This function is safe for concurrent access.
func (b *ChainState) IsKnownOrphan(hash *chainhash.Hash) bool {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	_, exists := b.orphans.orphans[*hash]
	return exists
}

// GetOrphanRoot returns the head of the chain of orphans the passed hash
// belongs to, which is the hash whose parent should be requested from peers
// to resolve the whole chain.
//
// This function is safe for concurrent access.
func (b *ChainState) GetOrphanRoot(hash *chainhash.Hash) *chainhash.Hash {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	// Keep looping while the parent of each orphaned block is known and
	// is an orphan itself.
	orphanRoot := hash
	prevHash := hash
	for {
		orphan, exists := b.orphans.orphans[*prevHash]
		if !exists {
			break
		}
		orphanRoot = prevHash
		prevHash = &orphan.block.MsgBlock().Header.PrevBlock
	}

	return orphanRoot
}

// removeOrphanBlock removes the passed orphan block from the orphan pool and
// previous orphan index.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) removeOrphanBlock(orphan *orphanBlock) {
	orphanHash := orphan.block.Hash()
	delete(b.orphans.orphans, *orphanHash)

	// Remove the reference from the previous orphan index too.
	prevHash := &orphan.block.MsgBlock().Header.PrevBlock
	orphans := b.orphans.prevOrphans[*prevHash]
	for i := 0; i < len(orphans); i++ {
		if orphans[i].block.Hash().IsEqual(orphanHash) {
			orphans = append(orphans[:i], orphans[i+1:]...)
			i--
		}
	}
	b.orphans.prevOrphans[*prevHash] = orphans

	// Remove the map entry altogether if there are no longer any orphans
	// which depend on the parent hash.
	if len(b.orphans.prevOrphans[*prevHash]) == 0 {
		delete(b.orphans.prevOrphans, *prevHash)
	}
}

// addOrphanBlock adds the passed block (which is already determined to be an
// orphan prior calling this function) to the orphan pool. It lazily cleans
// up any expired blocks so a separate cleanup poller doesn't need to be run.
// It also imposes a maximum limit on the number of outstanding orphan blocks
// and will remove the oldest received orphan block if the limit is exceeded.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) addOrphanBlock(block *util.Block) {
	// Remove expired orphan blocks.
	if time.Now().After(b.orphans.nextScan) {
		for _, oBlock := range b.orphans.orphans {
			if time.Now().After(oBlock.expiration) {
				b.removeOrphanBlock(oBlock)
				continue
			}

			// Update the oldest orphan block pointer so it can be
			// discarded in case the orphan pool fills up.
			if b.orphans.oldestOrphan == nil ||
				oBlock.expiration.Before(b.orphans.oldestOrphan.expiration) {
				b.orphans.oldestOrphan = oBlock
			}
		}
		b.orphans.nextScan = time.Now().Add(orphanExpireScanInterval)
	}

	// Limit orphan blocks to prevent memory exhaustion.
	if len(b.orphans.orphans)+1 > maxOrphanBlocks {
		// Remove the oldest orphan to make room for the new one.
		b.removeOrphanBlock(b.orphans.oldestOrphan)
		b.orphans.oldestOrphan = nil
	}

	// Insert the block into the orphan map with an expiration time
	// 1 hour from now.
	expiration := time.Now().Add(time.Hour)
	oBlock := &orphanBlock{
		block:      block,
		expiration: expiration,
	}
	b.orphans.orphans[*block.Hash()] = oBlock

	// Add to previous hash lookup index for faster dependency lookups.
	prevHash := &block.MsgBlock().Header.PrevBlock
	b.orphans.prevOrphans[*prevHash] = append(b.orphans.prevOrphans[*prevHash], oBlock)
}

// processOrphans determines if there are any orphans which depend on the
// passed block hash (they are no longer orphans if true) and potentially
// accepts them. It repeats the process for the newly accepted blocks (to
// detect further orphans which may no longer be orphans) until there are no
// more.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) processOrphans(hash *chainhash.Hash, flags BehaviorFlags) error {
	// Start with processing at least the passed hash. Leave a little room
	// for additional orphan blocks that need to be processed without
	// needing to grow the array in the common case.
	processHashes := make([]*chainhash.Hash, 0, 10)
	processHashes = append(processHashes, hash)
	for len(processHashes) > 0 {
		// Pop the first hash to process from the slice.
		processHash := processHashes[0]
		processHashes[0] = nil // Prevent GC leak.
		processHashes = processHashes[1:]

		// Look up all orphans that are parented by the block we just
		// accepted.
		for i := 0; i < len(b.orphans.prevOrphans[*processHash]); i++ {
			orphan := b.orphans.prevOrphans[*processHash][i]
			if orphan == nil {
				log.Warnf("Found a nil entry at index %d in the "+
					"orphan dependency list for block %v", i,
					processHash)
				continue
			}

			// Remove the orphan from the orphan pool.
			orphanHash := orphan.block.Hash()
			b.removeOrphanBlock(orphan)
			i--

			// Potentially accept the block into the block chain.
			_, err := b.maybeAcceptBlock(orphan.block, flags)
			if err != nil {
				return err
			}

			// Add this block to the list of blocks to process so
			// any orphan blocks that depend on this block are
			// handled too.
			processHashes = append(processHashes, orphanHash)
		}
	}
	return nil
}

// ProcessBlock is the main workhorse for handling insertion of new blocks
// into the block chain. It includes functionality such as rejecting
// duplicate blocks, ensuring blocks follow all rules, orphan handling, and
// insertion into the block chain along with best chain selection and
// reorganization.
//
// When no errors occurred during processing, the first return value
// indicates whether or not the block is on the main chain and the second
// indicates whether or not the block is an orphan.
//
// This function is safe for concurrent access.
func (b *ChainState) ProcessBlock(block *util.Block, flags BehaviorFlags) (bool, bool, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	blockHash := block.Hash()
	log.Tracef("Processing block %v", blockHash)

	// The block must not already exist in the main chain or side chains.
	if node := b.index.LookupNode(blockHash); node != nil &&
		node.status.HaveData() {
		str := fmt.Sprintf("already have block %v", blockHash)
		return false, false, ruleError(RejectDuplicate, "duplicate", str)
	}

	// The block must not already exist as an orphan.
	if _, exists := b.orphans.orphans[*blockHash]; exists {
		str := fmt.Sprintf("already have block (orphan) %v", blockHash)
		return false, false, ruleError(RejectDuplicate, "duplicate", str)
	}

	// Perform preliminary sanity checks on the block and its transactions.
	err := checkBlockSanity(block, b.chainParams.PowLimit, b.timeSource, flags)
	if err != nil {
		return false, false, err
	}

	// Handle orphan blocks.
	prevHash := &block.MsgBlock().Header.PrevBlock
	prevNode := b.index.LookupNode(prevHash)
	if prevNode == nil || !prevNode.status.HaveData() {
		log.Infof("Adding orphan block %v with parent %v", blockHash,
			prevHash)
		b.addOrphanBlock(block)

		return false, true, nil
	}

	// The block has passed all context independent checks and appears
	// sane enough to potentially accept it into the block chain.
	isMainChain, err := b.maybeAcceptBlock(block, flags)
	if err != nil {
		return false, false, err
	}

	// Accept any orphan blocks that depend on this block (they are no
	// longer orphans) and repeat for those accepted blocks until there
	// are no more.
	err = b.processOrphans(blockHash, flags)
	if err != nil {
		return false, false, err
	}

	log.Debugf("Accepted block %v", blockHash)

	return isMainChain, false, nil
}
