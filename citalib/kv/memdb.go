package kv

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// memDB is the in-memory reference implementation of KV: one
// github.com/google/btree ordered tree per column, guarded by a single
// mutex for the whole update window ("writer must hold the write side for
// the entire cache-update window so that (db, cache) never diverge",
// in-memory tests). A real on-disk driver is an external collaborator;
// this is the store the rest of the system is tested against,
// the same role erigon's memdb package plays for its own unit tests.
type memDB struct {
	mu      sync.RWMutex
	columns map[string]*btree.BTreeG[kvItem]
}

type kvItem struct {
	key   []byte
	value []byte // for dup entries the key is key|0|value and value repeats the element; Has(key) does not see them
}

func lessItem(a, b kvItem) bool { return bytes.Compare(a.key, b.key) < 0 }

// NewMemDB constructs a store with one column per entry in cfg.
func NewMemDB(cfg TableCfg) KV {
	db := &memDB{columns: make(map[string]*btree.BTreeG[kvItem], len(cfg))}
	for name := range cfg {
		db.columns[name] = btree.NewG[kvItem](32, lessItem)
	}
	return db
}

func (db *memDB) column(name string) *btree.BTreeG[kvItem] {
	t, ok := db.columns[name]
	if !ok {
		t = btree.NewG[kvItem](32, lessItem)
		db.columns[name] = t
	}
	return t
}

func (db *memDB) View(f func(tx Tx) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return f(&memTx{db: db, writable: false})
}

func (db *memDB) Update(f func(tx Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	tx := &memTx{db: db, writable: true}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *memDB) Close() {}

// memTx applies writes directly (the mutex held across the whole Update
// call gives it the atomic-batch property callers rely on; there is
// no separate staging buffer to replay on Commit).
type memTx struct {
	db       *memDB
	writable bool
}

func dupKey(key, value []byte) []byte {
	out := make([]byte, 0, len(key)+1+len(value))
	out = append(out, key...)
	out = append(out, 0)
	out = append(out, value...)
	return out
}

func (tx *memTx) Get(table string, key []byte) ([]byte, error) {
	t := tx.db.column(table)
	item, ok := t.Get(kvItem{key: key})
	if !ok {
		return nil, nil
	}
	return item.value, nil
}

func (tx *memTx) Has(table string, key []byte) (bool, error) {
	_, ok := tx.db.column(table).Get(kvItem{key: key})
	return ok, nil
}

func (tx *memTx) Put(table string, key, value []byte) error {
	tx.db.column(table).ReplaceOrInsert(kvItem{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (tx *memTx) Delete(table string, key []byte) error {
	tx.db.column(table).Delete(kvItem{key: key})
	return nil
}

func (tx *memTx) GetDup(table string, key []byte) ([][]byte, error) {
	t := tx.db.column(table)
	var out [][]byte
	prefix := append(append([]byte(nil), key...), 0)
	t.AscendGreaterOrEqual(kvItem{key: prefix}, func(item kvItem) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		out = append(out, item.value)
		return true
	})
	return out, nil
}

func (tx *memTx) AppendDup(table string, key, value []byte) error {
	tx.db.column(table).ReplaceOrInsert(kvItem{key: dupKey(key, value), value: append([]byte(nil), value...)})
	return nil
}

func (tx *memTx) DeleteDup(table string, key, value []byte) error {
	tx.db.column(table).Delete(kvItem{key: dupKey(key, value)})
	return nil
}

func (tx *memTx) ForEach(table string, from []byte, walker func(k, v []byte) (bool, error)) error {
	t := tx.db.column(table)
	var walkErr error
	t.AscendGreaterOrEqual(kvItem{key: from}, func(item kvItem) bool {
		cont, err := walker(item.key, item.value)
		if err != nil {
			walkErr = err
			return false
		}
		return cont
	})
	return walkErr
}

func (tx *memTx) Commit() error { return nil }
func (tx *memTx) Rollback()     {}
