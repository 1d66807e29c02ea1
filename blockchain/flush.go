package blockchain

import (
	"time"

	"github.com/pkg/errors"
)

// flushMode selects how aggressively flushStateToDisk pushes the in-memory
// chain state to stable storage.
type flushMode uint8

const (
	// flushModeAlways flushes unconditionally. Used at startup, on
	// shutdown, and after operations that must not be replayed.
	flushModeAlways flushMode = iota

	// flushModePeriodic flushes when the flush interval has elapsed or
	// the utxo cache is approaching its budget. Used after connecting or
	// disconnecting a block.
	flushModePeriodic

	// flushModeIfNeeded flushes only when the utxo cache exceeds its
	// budget.
	flushModeIfNeeded
)

// maxFlushInterval bounds how long connected blocks may sit in memory before
// the chain state reaches stable storage.
const maxFlushInterval = time.Hour

// flushStateToDisk writes the dirty portions of the block index, the block
// file metadata, and, when warranted by the mode, the cached utxo set to the
// database in a single atomic batch. The flat block and undo files are
// synced first so the metadata never references data that has not reached
// the disk.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *ChainState) flushStateToDisk(mode flushMode) error {
	// The cache is large once its memory with slack exceeds the budget,
	// critical once it exceeds the budget outright.
	cacheUsage := b.utxoCache.totalMemoryUsage()
	cacheLarge := cacheUsage*10/9 > b.utxoCache.maxTotalMemoryUsage
	cacheCritical := cacheUsage > b.utxoCache.maxTotalMemoryUsage
	periodicDue := time.Since(b.lastFlush) > maxFlushInterval

	flushUtxos := false
	switch mode {
	case flushModeAlways:
		flushUtxos = true
	case flushModePeriodic:
		flushUtxos = cacheLarge || cacheCritical || periodicDue
	case flushModeIfNeeded:
		flushUtxos = cacheCritical
	}

	dirtyNodes := b.index.dirtyNodes()
	dirtyInfos, lastFileNum := b.blockFiles.dirtyInfos()
	if !flushUtxos && len(dirtyNodes) == 0 && len(dirtyInfos) == 0 {
		return nil
	}

	// A metadata write that fails must not lose track of what is dirty.
	restoreDirty := func() {
		b.index.markDirty(dirtyNodes)
		b.blockFiles.markDirty(dirtyInfos)
	}

	// The flat files are synced before any metadata referencing their
	// contents is written.
	if err := b.blockFiles.syncFiles(); err != nil {
		restoreDirty()
		return b.abortNode(errors.Wrap(err, "failed to sync block files"))
	}

	batch := b.db.NewBatch()
	for fileNum, info := range dirtyInfos {
		batch.Put(fileInfoKey(fileNum), serializeBlockFileInfo(info))
	}
	if len(dirtyInfos) > 0 {
		batch.Put(lastFileKey, serializeLastFileNum(lastFileNum))
	}
	for _, node := range dirtyNodes {
		serialized, err := serializeBlockIndexEntry(node)
		if err != nil {
			restoreDirty()
			return err
		}
		batch.Put(blockIndexKey(&node.hash), serialized)
	}

	bestHash := b.bestChain.Tip().hash
	if flushUtxos {
		if err := b.utxoCache.appendFlush(batch, &bestHash); err != nil {
			restoreDirty()
			return b.abortNode(errors.Wrap(err,
				"failed to stage utxo set flush"))
		}
	}

	if err := b.db.WriteBatch(batch, true); err != nil {
		restoreDirty()
		return b.abortNode(errors.Wrap(err,
			"failed to write chain state batch"))
	}

	if flushUtxos {
		b.utxoCache.flushDone()
		b.lastFlush = time.Now()
		b.sendNotification(NTBestChainFlushed, &bestHash)
	}

	return nil
}

// FlushCachedState forces the cached chain state to stable storage. It is
// called on shutdown so the utxo set does not have to be reconstructed on
// the next start.
//
// This function is safe for concurrent access.
func (b *ChainState) FlushCachedState() error {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	return b.flushStateToDisk(flushModeAlways)
}

// abortNode logs a flush failure at critical level. A chain state that can
// no longer reach stable storage must not keep accepting blocks.
func (b *ChainState) abortNode(err error) error {
	log.Criticalf("Failed to flush chain state: %v", err)
	return err
}
