package ldb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbUtil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/eccnet/eccd/database"
)

// LevelDB defines a thin wrapper around leveldb.
type LevelDB struct {
	ldb *leveldb.DB
}

// NewLevelDB opens a leveldb instance defined by the given path.
func NewLevelDB(path string) (*LevelDB, error) {
	// Open leveldb. If it doesn't exist, create it.
	ldb, err := leveldb.OpenFile(path, Options())

	// If the database is corrupted, attempt to recover.
	if _, corrupted := err.(*ldbErrors.ErrCorrupted); corrupted {
		log.Warnf("LevelDB corruption detected for path %s: %s",
			path, err)
		var err error
		ldb, err = leveldb.RecoverFile(path, Options())
		if err != nil {
			return nil, err
		}
		log.Warnf("LevelDB recovered from corruption for path %s",
			path)
	}

	// If the database cannot be opened for any other
	// reason, return the error as-is.
	if err != nil {
		return nil, err
	}

	db := &LevelDB{
		ldb: ldb,
	}
	return db, nil
}

// Close closes the leveldb instance.
func (db *LevelDB) Close() error {
	return db.ldb.Close()
}

// Put sets the value for the given key. It overwrites
// any previous value for that key.
func (db *LevelDB) Put(key []byte, value []byte) error {
	return db.ldb.Put(key, value, nil)
}

// Get gets the value for the given key. It returns nil if
// the given key does not exist.
func (db *LevelDB) Get(key []byte) ([]byte, error) {
	data, err := db.ldb.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Has returns true if the database does contain the given key.
func (db *LevelDB) Has(key []byte) (bool, error) {
	return db.ldb.Has(key, nil)
}

// Delete deletes the value for the given key. Will not return an error if
// the key doesn't exist.
func (db *LevelDB) Delete(key []byte) error {
	return db.ldb.Delete(key, nil)
}

// Cursor returns a cursor over all keys that begin with the given prefix.
func (db *LevelDB) Cursor(prefix []byte) database.Cursor {
	iter := db.ldb.NewIterator(ldbUtil.BytesPrefix(prefix), nil)
	return &LevelDBCursor{iter: iter}
}

// LevelDBCursor iterates over a key range of a LevelDB instance.
type LevelDBCursor struct {
	iter iterator.Iterator
}

// Next moves the cursor to the next key/value pair. It returns false when
// the cursor is exhausted.
func (c *LevelDBCursor) Next() bool {
	return c.iter.Next()
}

// Key returns the key the cursor currently points at.
func (c *LevelDBCursor) Key() []byte {
	return c.iter.Key()
}

// Value returns the value the cursor currently points at.
func (c *LevelDBCursor) Value() []byte {
	return c.iter.Value()
}

// Error returns any accumulated iteration error.
func (c *LevelDBCursor) Error() error {
	return c.iter.Error()
}

// Close releases the resources held by the cursor.
func (c *LevelDBCursor) Close() {
	c.iter.Release()
}

// NewBatch returns an empty write batch for this database.
func (db *LevelDB) NewBatch() database.Batch {
	return &LevelDBBatch{batch: new(leveldb.Batch)}
}

// WriteBatch atomically applies all writes scheduled in the given batch.
// When sync is true the write is flushed to stable storage before returning.
func (db *LevelDB) WriteBatch(batch database.Batch, sync bool) error {
	ldbBatch, ok := batch.(*LevelDBBatch)
	if !ok {
		return errors.Errorf("batch is not a leveldb batch")
	}
	var wo *opt.WriteOptions
	if sync {
		wo = &opt.WriteOptions{Sync: true}
	}
	return db.ldb.Write(ldbBatch.batch, wo)
}

// LevelDBBatch is a collection of writes that are applied to a LevelDB
// atomically.
type LevelDBBatch struct {
	batch *leveldb.Batch
}

// Put schedules a write of the value for the given key.
func (b *LevelDBBatch) Put(key []byte, value []byte) {
	b.batch.Put(key, value)
}

// Delete schedules a deletion of the given key.
func (b *LevelDBBatch) Delete(key []byte) {
	b.batch.Delete(key)
}

// Reset discards all writes scheduled so far.
func (b *LevelDBBatch) Reset() {
	b.batch.Reset()
}
