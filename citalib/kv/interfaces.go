package kv

// Tx is one atomic unit of work against the store: a transaction object
// that buffers writes and deletes and is applied atomically.
// Per-column list-valued entries are exposed through AppendDup/DeleteDup.
type Tx interface {
	Get(table string, key []byte) ([]byte, error)
	Has(table string, key []byte) (bool, error)
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error

	// GetDup/AppendDup/DeleteDup operate on the list-valued entries a
	// dup-sorted table (e.g. Extras) holds per key.
	GetDup(table string, key []byte) ([][]byte, error)
	AppendDup(table string, key, value []byte) error
	DeleteDup(table string, key, value []byte) error

	// ForEach walks a table's keys in order starting at (or after) from;
	// it stops when walker returns false or an error.
	ForEach(table string, from []byte, walker func(k, v []byte) (bool, error)) error

	Commit() error
	Rollback()
}

// KV is the handle a component opens a Tx against; exactly one writer Tx
// may be outstanding at a time, matching "the store driver serializes
// writes through atomic batches".
type KV interface {
	View(f func(tx Tx) error) error
	Update(f func(tx Tx) error) error
	Close()
}
