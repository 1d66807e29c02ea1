package database

// DataAccessor defines the common interface by which data gets accessed in a
// generic key/value store.
type DataAccessor interface {
	// Put sets the value for the given key. It overwrites any previous
	// value for that key.
	Put(key []byte, value []byte) error

	// Get gets the value for the given key. It returns nil if the given
	// key does not exist.
	Get(key []byte) ([]byte, error)

	// Has returns true if the database does contain the given key.
	Has(key []byte) (bool, error)

	// Delete deletes the value for the given key. Will not return an
	// error if the key doesn't exist.
	Delete(key []byte) error
}

// Batch is a collection of writes that are applied to the database
// atomically.
type Batch interface {
	// Put schedules a write of the value for the given key.
	Put(key []byte, value []byte)

	// Delete schedules a deletion of the given key.
	Delete(key []byte)

	// Reset discards all writes scheduled so far.
	Reset()
}

// Cursor iterates over a range of database keys in lexicographic order.
type Cursor interface {
	// Next moves the cursor to the next key/value pair. It returns false
	// when the cursor is exhausted.
	Next() bool

	// Key returns the key the cursor currently points at. The returned
	// slice is only valid until the next call to Next.
	Key() []byte

	// Value returns the value the cursor currently points at. The
	// returned slice is only valid until the next call to Next.
	Value() []byte

	// Error returns any accumulated iteration error.
	Error() error

	// Close releases the resources held by the cursor.
	Close()
}

// Database defines the interface of a key/value database. All batch writes
// are atomic, and writes requested with sync reach stable storage before the
// call returns.
type Database interface {
	DataAccessor

	// Cursor returns a cursor over all keys that begin with the given
	// prefix.
	Cursor(prefix []byte) Cursor

	// NewBatch returns an empty write batch for this database.
	NewBatch() Batch

	// WriteBatch atomically applies all writes scheduled in the given
	// batch. When sync is true the write is flushed to stable storage
	// before returning.
	WriteBatch(batch Batch, sync bool) error

	// Close closes the database.
	Close() error
}
