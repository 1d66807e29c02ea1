package blockchain

import (
	"github.com/eccnet/eccd/database"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// utxoCache is a cached utxo view in the chain state. It sits between the
// connect/disconnect logic and the database and absorbs writes until it is
// flushed. Entries created and spent between two flushes never touch the
// database at all.
type utxoCache struct {
	db database.Database

	// maxTotalMemoryUsage is the budget, in bytes, the cache tries to
	// stay under. The flush manager consults usage against it.
	maxTotalMemoryUsage uint64

	// cachedEntries holds the cached utxos. A nil entry means the output
	// is known to not exist in the utxo set, which avoids repeated
	// database misses for the same outpoint.
	cachedEntries    map[wire.OutPoint]*UtxoEntry
	totalEntryMemory uint64
}

// newUtxoCache initiates a new utxo cache instance with its memory usage
// limited to the given maximum.
func newUtxoCache(db database.Database, maxTotalMemoryUsage uint64) *utxoCache {
	return &utxoCache{
		db:                  db,
		maxTotalMemoryUsage: maxTotalMemoryUsage,
		cachedEntries:       make(map[wire.OutPoint]*UtxoEntry),
	}
}

// totalMemoryUsage returns the in-memory size of the cache in bytes.
func (s *utxoCache) totalMemoryUsage() uint64 {
	return s.totalEntryMemory
}

// fetchEntry returns the utxo entry for the given outpoint. It returns nil
// if the output is spent or does not exist. The returned entry is owned by
// the cache, callers that keep it must Clone it.
func (s *utxoCache) fetchEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	if entry, found := s.cachedEntries[outpoint]; found {
		if entry == nil || entry.IsSpent() {
			return nil, nil
		}
		return entry, nil
	}

	entry, err := dbFetchUtxoEntry(s.db, outpoint)
	if err != nil {
		return nil, err
	}

	s.cachedEntries[outpoint] = entry
	s.totalEntryMemory += entry.memoryUsage()
	return entry, nil
}

// commit absorbs all modified entries of the given view into the cache. The
// view must be based on this cache, committing a view built over a different
// state corrupts the utxo set. The view is drained by the call.
func (s *utxoCache) commit(view *UtxoViewpoint) error {
	for outpoint, entry := range view.entries {
		// No need to update the database if the entry was not
		// modified.
		if entry == nil || !entry.isModified() {
			delete(view.entries, outpoint)
			continue
		}

		cachedEntry := s.cachedEntries[outpoint]
		switch {
		case entry.isFresh() && entry.IsSpent():
			// The output was created and spent without ever being
			// flushed. If the cache holds a flushed version of it
			// something is badly wrong.
			if cachedEntry != nil && !cachedEntry.isFresh() &&
				!cachedEntry.IsSpent() {
				return assertError("attempted to drop a spend " +
					"of a stored output as never existing")
			}
			s.totalEntryMemory -= cachedEntry.memoryUsage()
			delete(s.cachedEntries, outpoint)

		case entry.IsSpent():
			// Keep a spent marker so the flush deletes the output
			// from the database. When the cached version never hit
			// the database, the marker can be dropped entirely.
			if cachedEntry != nil && cachedEntry.isFresh() {
				s.totalEntryMemory -= cachedEntry.memoryUsage()
				delete(s.cachedEntries, outpoint)
				break
			}
			s.totalEntryMemory -= cachedEntry.memoryUsage()
			spent := entry.Clone()
			spent.packedFlags &^= tfFresh
			s.cachedEntries[outpoint] = spent
			s.totalEntryMemory += spent.memoryUsage()

		default:
			// An unspent modified entry replaces whatever the cache
			// held. Freshness carries over from the cache when the
			// output is already known there.
			fresh := entry.isFresh()
			if cachedEntry != nil {
				fresh = fresh || cachedEntry.isFresh()
			}
			s.totalEntryMemory -= cachedEntry.memoryUsage()
			updated := entry.Clone()
			updated.packedFlags &^= tfFresh
			if fresh {
				updated.packedFlags |= tfFresh
			}
			s.cachedEntries[outpoint] = updated
			s.totalEntryMemory += updated.memoryUsage()
		}

		delete(view.entries, outpoint)
	}

	return nil
}

// appendFlush adds all pending utxo writes of the cache to the given batch.
// Spent entries become deletions, modified unspent entries become puts. The
// best hash the flushed utxo set corresponds to is recorded alongside.
//
// The cleanup of in-memory flags is deferred until the batch has been
// committed, callers must invoke flushDone afterwards.
func (s *utxoCache) appendFlush(batch database.Batch, bestHash *chainhash.Hash) error {
	for outpoint, entry := range s.cachedEntries {
		if entry == nil || !entry.isModified() {
			continue
		}

		if entry.IsSpent() {
			batch.Delete(utxoKey(outpoint))
			continue
		}

		serialized, err := serializeUtxoEntry(entry)
		if err != nil {
			return err
		}
		batch.Put(utxoKey(outpoint), serialized)
	}

	batch.Put(utxoSetStateKey, bestHash.CloneBytes())
	return nil
}

// flushDone clears the modified state of all cached entries after a
// successful flush. Spent entries are evicted, the rest stay cached but are
// no longer fresh or modified.
func (s *utxoCache) flushDone() {
	for outpoint, entry := range s.cachedEntries {
		if entry == nil {
			continue
		}
		if entry.IsSpent() {
			s.totalEntryMemory -= entry.memoryUsage()
			delete(s.cachedEntries, outpoint)
			continue
		}
		entry.packedFlags &^= tfFresh | tfModified
	}
}

// Uncache evicts the cache entries for the outputs the passed transaction
// spends, as long as they carry no unflushed state. The mempool calls it when
// it drops a transaction so the entries its validation pulled in do not pin
// cache memory.
//
// This function is safe for concurrent access.
func (b *ChainState) Uncache(tx *util.Tx) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	for _, txIn := range tx.MsgTx().TxIn {
		b.utxoCache.uncache(txIn.PreviousOutPoint)
	}
}

// uncache evicts the entry for the given outpoint as long as it carries no
// unflushed state. It is used to drop entries that were pulled in for a
// transaction that ended up rejected.
func (s *utxoCache) uncache(outpoint wire.OutPoint) {
	entry, found := s.cachedEntries[outpoint]
	if !found {
		return
	}
	if entry != nil && (entry.isModified() || entry.isFresh()) {
		return
	}
	s.totalEntryMemory -= entry.memoryUsage()
	delete(s.cachedEntries, outpoint)
}
