// Package badgerstore is the BadgerDB-backed storage.Store, a
// transactional embedded KV store. It generalizes kvstore/badger.Store
// (which wraps every call in its own db.Update closure) into a
// long-lived explicit transaction handle, since GroveDB batches span
// many Put/Delete calls that must commit atomically together.
package badgerstore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Config configures the BadgerDB-backed store, mirroring
// kvstore/badger.Config's shape.
type Config struct {
	DataDir  string // directory for data storage
	InMemory bool   // badger in-memory mode, useful for tests
}

// Store is a BadgerDB-backed storage.Store.
type Store struct {
	db *badger.DB
}

// New opens (or creates) a BadgerDB-backed Store at config.DataDir.
func New(config *Config) (*Store, error) {
	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DataDir == "" {
			return nil, fmt.Errorf("badgerstore: DataDir is required")
		}
		opts = badger.DefaultOptions(config.DataDir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: failed to open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Begin opens a new transaction. Writable transactions hold an explicit
// badger.Txn that the caller must Commit or Discard; read-only
// transactions see only committed state as of Begin.
func (s *Store) Begin(writable bool) (storage.Tx, error) {
	return &tx{txn: s.db.NewTransaction(writable)}, nil
}

// Close releases all BadgerDB resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunGC runs BadgerDB garbage collection, reclaiming space from
// deleted/updated entries. Call periodically, same as
// kvstore/badger.Store.RunGC.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// cfTag distinguishes GroveDB's four logical column families within a
// single badger keyspace (badger has no native column families).
func cfTag(cf storage.ColumnFamily) byte {
	return byte(cf)
}

func tagged(cf storage.ColumnFamily, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, cfTag(cf))
	return append(out, key...)
}

type tx struct {
	txn *badger.Txn
}

func (t *tx) Get(_ context.Context, cf storage.ColumnFamily, key []byte, acc *cost.OperationCost) ([]byte, error) {
	if acc != nil {
		acc.Seek()
	}
	item, err := t.txn.Get(tagged(cf, key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get failed: %w", err)
	}
	var value []byte
	err = item.Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: read value failed: %w", err)
	}
	if acc != nil {
		acc.Loaded(uint64(len(value)))
	}
	return value, nil
}

func (t *tx) Put(_ context.Context, cf storage.ColumnFamily, key, value []byte, acc *cost.OperationCost) error {
	if acc != nil {
		acc.Seek()
	}
	if err := t.txn.Set(tagged(cf, key), value); err != nil {
		return fmt.Errorf("badgerstore: put failed: %w", err)
	}
	return nil
}

func (t *tx) Delete(_ context.Context, cf storage.ColumnFamily, key []byte, acc *cost.OperationCost) error {
	if acc != nil {
		acc.Seek()
	}
	if err := t.txn.Delete(tagged(cf, key)); err != nil {
		return fmt.Errorf("badgerstore: delete failed: %w", err)
	}
	return nil
}

func (t *tx) Iterate(cf storage.ColumnFamily, opts storage.RangeOpts) (storage.Iterator, error) {
	badgerOpts := badger.DefaultIteratorOptions
	badgerOpts.Reverse = opts.Dir == storage.Reverse
	it := t.txn.NewIterator(badgerOpts)

	start := tagged(cf, opts.Start)
	var end []byte
	if opts.End != nil {
		end = tagged(cf, opts.End)
	}

	return &iterator{
		it:           it,
		start:        start,
		end:          end,
		endInclusive: opts.EndInclusive,
		reverse:      opts.Dir == storage.Reverse,
		cf:           cf,
		started:      false,
	}, nil
}

func (t *tx) Commit() error {
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("badgerstore: commit failed: %w", err)
	}
	return nil
}

func (t *tx) Discard() {
	t.txn.Discard()
}

type iterator struct {
	it           *badger.Iterator
	start, end   []byte
	endInclusive bool
	reverse      bool
	cf           storage.ColumnFamily
	started      bool
	err          error
}

func (i *iterator) Next() bool {
	if !i.started {
		i.it.Seek(i.start)
		i.started = true
	} else {
		i.it.Next()
	}
	if !i.it.ValidForPrefix([]byte{cfTag(i.cf)}) {
		return false
	}
	key := i.it.Item().KeyCopy(nil)
	if i.end != nil {
		cmp := compareBytes(key, i.end)
		if i.reverse {
			if i.endInclusive {
				if cmp < 0 {
					return false
				}
			} else if cmp <= 0 {
				return false
			}
		} else {
			if i.endInclusive {
				if cmp > 0 {
					return false
				}
			} else if cmp >= 0 {
				return false
			}
		}
	}
	return true
}

func (i *iterator) Item() storage.KV {
	item := i.it.Item()
	key := item.KeyCopy(nil)[1:] // strip cf tag
	var value []byte
	_ = item.Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	return storage.KV{Key: key, Value: value}
}

func (i *iterator) Close()     { i.it.Close() }
func (i *iterator) Err() error { return i.err }

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for idx := 0; idx < n; idx++ {
		if a[idx] != b[idx] {
			if a[idx] < b[idx] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
