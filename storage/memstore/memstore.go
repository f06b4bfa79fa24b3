// Package memstore is an in-memory storage.Store for tests that must not
// touch disk I/O.
// Grounded on kvstore/memory.Store, which backs its KVStore interface
// with a sync.Map of hex-encoded keys.
package memstore

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Store is an in-memory storage.Store. All transactions share the same
// underlying map and take a coarse global lock, which is adequate for
// GroveDB's single-writer-at-a-time model.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte // hex(cfTag+key) -> value
}

// New creates a new in-memory Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Close() error { return nil }

func (s *Store) Begin(writable bool) (storage.Tx, error) {
	return &tx{store: s, writable: writable, writes: make(map[string][]byte), deletes: make(map[string]bool)}, nil
}

func taggedKey(cf storage.ColumnFamily, key []byte) string {
	buf := make([]byte, 0, 1+len(key))
	buf = append(buf, byte(cf))
	buf = append(buf, key...)
	return hex.EncodeToString(buf)
}

// tx buffers writes until Commit, so an in-flight transaction never
// mutates Store.data and Discard is always safe.
type tx struct {
	store    *Store
	writable bool
	writes   map[string][]byte
	deletes  map[string]bool
	done     bool
}

func (t *tx) Get(_ context.Context, cf storage.ColumnFamily, key []byte, acc *cost.OperationCost) ([]byte, error) {
	if acc != nil {
		acc.Seek()
	}
	tk := taggedKey(cf, key)
	if t.deletes[tk] {
		return nil, nil
	}
	if v, ok := t.writes[tk]; ok {
		if acc != nil {
			acc.Loaded(uint64(len(v)))
		}
		return v, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.store.data[tk]
	if !ok {
		return nil, nil
	}
	if acc != nil {
		acc.Loaded(uint64(len(v)))
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *tx) Put(_ context.Context, cf storage.ColumnFamily, key, value []byte, acc *cost.OperationCost) error {
	if acc != nil {
		acc.Seek()
	}
	tk := taggedKey(cf, key)
	v := make([]byte, len(value))
	copy(v, value)
	t.writes[tk] = v
	delete(t.deletes, tk)
	return nil
}

func (t *tx) Delete(_ context.Context, cf storage.ColumnFamily, key []byte, acc *cost.OperationCost) error {
	if acc != nil {
		acc.Seek()
	}
	tk := taggedKey(cf, key)
	delete(t.writes, tk)
	t.deletes[tk] = true
	return nil
}

func (t *tx) Iterate(cf storage.ColumnFamily, opts storage.RangeOpts) (storage.Iterator, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	type entry struct {
		key, value []byte
	}
	seen := make(map[string]bool)
	var all []entry

	collect := func(tk string, key, value []byte, deleted bool) {
		if seen[tk] {
			return
		}
		seen[tk] = true
		if deleted {
			return
		}
		all = append(all, entry{key: key, value: value})
	}

	for tk, v := range t.writes {
		raw, _ := hex.DecodeString(tk)
		if len(raw) == 0 || raw[0] != byte(cf) {
			continue
		}
		collect(tk, raw[1:], v, false)
	}
	for tk := range t.deletes {
		raw, _ := hex.DecodeString(tk)
		if len(raw) == 0 || raw[0] != byte(cf) {
			continue
		}
		collect(tk, raw[1:], nil, true)
	}
	for tk, v := range t.store.data {
		raw, _ := hex.DecodeString(tk)
		if len(raw) == 0 || raw[0] != byte(cf) {
			continue
		}
		collect(tk, raw[1:], v, false)
	}

	filtered := all[:0]
	for _, e := range all {
		if opts.Start != nil && compare(e.key, opts.Start) < 0 {
			continue
		}
		if opts.End != nil {
			c := compare(e.key, opts.End)
			if opts.EndInclusive {
				if c > 0 {
					continue
				}
			} else if c >= 0 {
				continue
			}
		}
		filtered = append(filtered, e)
	}

	sort.Slice(filtered, func(i, j int) bool {
		c := compare(filtered[i].key, filtered[j].key)
		if opts.Dir == storage.Reverse {
			return c > 0
		}
		return c < 0
	})

	kvs := make([]storage.KV, len(filtered))
	for i, e := range filtered {
		kvs[i] = storage.KV{Key: e.key, Value: e.value}
	}
	return &sliceIterator{items: kvs, idx: -1}, nil
}

func compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if !t.writable {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for tk := range t.deletes {
		delete(t.store.data, tk)
	}
	for tk, v := range t.writes {
		t.store.data[tk] = v
	}
	return nil
}

func (t *tx) Discard() {
	t.done = true
}

type sliceIterator struct {
	items []storage.KV
	idx   int
}

func (s *sliceIterator) Next() bool {
	s.idx++
	return s.idx < len(s.items)
}
func (s *sliceIterator) Item() storage.KV { return s.items[s.idx] }
func (s *sliceIterator) Close()           {}
func (s *sliceIterator) Err() error       { return nil }
