package kv

import "sync"

// CachePolicy selects how a cache entry is updated alongside a write,
// keeping a companion in-memory cache coherent under one of
// {Overwrite, Remove}".
type CachePolicy int

const (
	Overwrite CachePolicy = iota
	Remove
)

// AppendPolicy governs list-valued entries: one of
// {Overwrite, Update, Remove}".
type AppendPolicy int

const (
	AppendOverwrite AppendPolicy = iota
	AppendUpdate
	AppendRemove
)

// Cache is the read-through cache a Writable/Readable pair shares; it is
// guarded by a single RWMutex that each cache access takes on its own. A
// writer's store write and its cache update are two separate steps: the
// cache lock is not held across the store write.
type Cache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewCache() *Cache { return &Cache{data: make(map[string][]byte)} }

func (c *Cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *Cache) set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *Cache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Codec is the encode/decode pair a Writable/Readable column uses; callers
// supply marshal/unmarshal for their concrete value type (Header, Receipt,
// Account, ...).
type Codec[V any] struct {
	Encode func(V) []byte
	Decode func([]byte) (V, error)
}

// Writable performs atomic encode-and-put while keeping a companion cache
// coherent.
type Writable[V any] struct {
	table string
	codec Codec[V]
	cache *Cache
}

func NewWritable[V any](table string, codec Codec[V], cache *Cache) Writable[V] {
	return Writable[V]{table: table, codec: codec, cache: cache}
}

func (w Writable[V]) Write(tx Tx, key []byte, value V) error {
	enc := w.codec.Encode(value)
	if err := tx.Put(w.table, key, enc); err != nil {
		return err
	}
	if w.cache != nil {
		w.cache.set(string(key), enc)
	}
	return nil
}

func (w Writable[V]) WriteWithCache(tx Tx, key []byte, value V, policy CachePolicy) error {
	enc := w.codec.Encode(value)
	if err := tx.Put(w.table, key, enc); err != nil {
		return err
	}
	if w.cache != nil {
		switch policy {
		case Overwrite:
			w.cache.set(string(key), enc)
		case Remove:
			w.cache.remove(string(key))
		}
	}
	return nil
}

func (w Writable[V]) Delete(tx Tx, key []byte) error {
	if err := tx.Delete(w.table, key); err != nil {
		return err
	}
	if w.cache != nil {
		w.cache.remove(string(key))
	}
	return nil
}

// Append writes one more element of a list-valued entry, applying policy.
func (w Writable[V]) Append(tx Tx, key []byte, value V, policy AppendPolicy) error {
	enc := w.codec.Encode(value)
	switch policy {
	case AppendRemove:
		return tx.DeleteDup(w.table, key, enc)
	case AppendUpdate:
		if err := tx.DeleteDup(w.table, key, enc); err != nil {
			return err
		}
		return tx.AppendDup(w.table, key, enc)
	default: // AppendOverwrite
		return tx.AppendDup(w.table, key, enc)
	}
}

func (w Writable[V]) ExtendWithCache(tx Tx, key []byte, values []V, policy AppendPolicy) error {
	for _, v := range values {
		if err := w.Append(tx, key, v, policy); err != nil {
			return err
		}
	}
	if w.cache != nil {
		w.cache.remove(string(key))
	}
	return nil
}

func (w Writable[V]) ExtendWithOptionCache(tx Tx, key []byte, values []V, policy AppendPolicy, updateCache bool) error {
	if err := w.ExtendWithCache(tx, key, values, policy); err != nil {
		return err
	}
	if !updateCache && w.cache != nil {
		w.cache.remove(string(key))
	}
	return nil
}

// Readable decodes lazily and populates the cache on miss.
type Readable[V any] struct {
	table string
	codec Codec[V]
	cache *Cache
}

func NewReadable[V any](table string, codec Codec[V], cache *Cache) Readable[V] {
	return Readable[V]{table: table, codec: codec, cache: cache}
}

func (r Readable[V]) Read(tx Tx, key []byte) (V, bool, error) {
	var zero V
	if r.cache != nil {
		if enc, ok := r.cache.get(string(key)); ok {
			if enc == nil {
				return zero, false, nil
			}
			v, err := r.codec.Decode(enc)
			return v, err == nil, err
		}
	}
	enc, err := tx.Get(r.table, key)
	if err != nil {
		return zero, false, err
	}
	if enc == nil {
		if r.cache != nil {
			r.cache.set(string(key), nil)
		}
		return zero, false, nil
	}
	v, err := r.codec.Decode(enc)
	if err != nil {
		return zero, false, err
	}
	if r.cache != nil {
		r.cache.set(string(key), enc)
	}
	return v, true, nil
}

func (r Readable[V]) ReadWithCache(tx Tx, key []byte) (V, bool, error) { return r.Read(tx, key) }

func (r Readable[V]) ReadList(tx Tx, key []byte) ([]V, error) {
	raws, err := tx.GetDup(r.table, key)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(raws))
	for _, raw := range raws {
		v, err := r.codec.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r Readable[V]) Exists(tx Tx, key []byte) (bool, error) {
	return tx.Has(r.table, key)
}

func (r Readable[V]) ExistsWithCache(tx Tx, key []byte) (bool, error) {
	if r.cache != nil {
		if enc, ok := r.cache.get(string(key)); ok {
			return enc != nil, nil
		}
	}
	return r.Exists(tx, key)
}
