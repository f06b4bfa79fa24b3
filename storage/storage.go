// Package storage implements the prefixed column-family abstraction over
// a transactional KV store: four logical column families (default, aux,
// roots, meta), with default/aux/roots keys transparently prefixed by
// the owning subtree's 32-byte blake3(path).
package storage

import (
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
)

// ColumnFamily identifies one of the four logical column families.
type ColumnFamily uint8

const (
	// CFDefault holds serialized Merk nodes: [prefix:32][key] -> node bytes.
	CFDefault ColumnFamily = iota
	// CFAux holds application-defined auxiliary bytes: [prefix:32][user_key] -> bytes.
	CFAux
	// CFRoots holds each subtree's root-key bytes: [prefix:32] -> root key.
	CFRoots
	// CFMeta holds global, unprefixed metadata: [key] -> bytes.
	CFMeta
)

// Direction controls iteration order.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// KV is a single key/value pair yielded by an Iterator.
type KV struct {
	Key   []byte
	Value []byte
}

// Iterator walks a contiguous key range within one column family.
type Iterator interface {
	Next() bool
	Item() KV
	Close()
	Err() error
}

// RangeOpts bounds an Iterator. Start is inclusive, End is exclusive
// unless EndInclusive is set. A nil End means "to the end of the CF" (or
// "to the start", when Dir is Reverse).
type RangeOpts struct {
	Start        []byte
	End          []byte
	EndInclusive bool
	Dir          Direction
}

// Tx is a single logical transaction over the underlying KV store,
// spanning possibly many subtrees' prefixed contexts. Every mutating
// GroveDB operation runs inside exactly one Tx; the caller
// must explicitly Commit or Discard it. Discarding (or letting it be
// garbage collected without committing) discards all pending writes.
type Tx interface {
	Get(ctx context.Context, cf ColumnFamily, key []byte, acc *cost.OperationCost) ([]byte, error)
	Put(ctx context.Context, cf ColumnFamily, key, value []byte, acc *cost.OperationCost) error
	Delete(ctx context.Context, cf ColumnFamily, key []byte, acc *cost.OperationCost) error
	Iterate(cf ColumnFamily, opts RangeOpts) (Iterator, error)

	Commit() error
	Discard()
}

// Store opens Tx handles against the backing KV store.
type Store interface {
	Begin(writable bool) (Tx, error)
	Close() error
}

// PrefixedContext wraps a Tx and transparently prepends a subtree's
// 32-byte prefix to every key in CFDefault/CFAux/CFRoots; CFMeta passes
// through unprefixed.
type PrefixedContext struct {
	tx     Tx
	prefix []byte // 32 bytes, or nil for the root grove (no path)
}

// NewPrefixedContext builds a PrefixedContext over tx for the given
// 32-byte subtree prefix.
func NewPrefixedContext(tx Tx, prefix []byte) *PrefixedContext {
	return &PrefixedContext{tx: tx, prefix: prefix}
}

func (p *PrefixedContext) prefixedKey(cf ColumnFamily, key []byte) []byte {
	if cf == CFMeta || len(p.prefix) == 0 {
		return key
	}
	out := make([]byte, 0, len(p.prefix)+len(key))
	out = append(out, p.prefix...)
	out = append(out, key...)
	return out
}

// Get retrieves a value, automatically namespaced to this context's prefix.
func (p *PrefixedContext) Get(ctx context.Context, cf ColumnFamily, key []byte, acc *cost.OperationCost) ([]byte, error) {
	return p.tx.Get(ctx, cf, p.prefixedKey(cf, key), acc)
}

// Put stores a value, automatically namespaced to this context's prefix.
func (p *PrefixedContext) Put(ctx context.Context, cf ColumnFamily, key, value []byte, acc *cost.OperationCost) error {
	return p.tx.Put(ctx, cf, p.prefixedKey(cf, key), value, acc)
}

// Delete removes a value, automatically namespaced to this context's prefix.
func (p *PrefixedContext) Delete(ctx context.Context, cf ColumnFamily, key []byte, acc *cost.OperationCost) error {
	return p.tx.Delete(ctx, cf, p.prefixedKey(cf, key), acc)
}

// Iterate walks keys within this context's prefix namespace, stripping
// the prefix from returned keys so callers see only the user-level key.
func (p *PrefixedContext) Iterate(cf ColumnFamily, opts RangeOpts) (Iterator, error) {
	prefixedOpts := opts
	prefixedOpts.Start = p.prefixedKey(cf, opts.Start)
	if opts.End != nil {
		prefixedOpts.End = p.prefixedKey(cf, opts.End)
	} else if cf != CFMeta && len(p.prefix) > 0 {
		// Bound iteration to this prefix's namespace by ending at the
		// lexicographic successor of the prefix.
		prefixedOpts.End = prefixSuccessor(p.prefix)
	}
	it, err := p.tx.Iterate(cf, prefixedOpts)
	if err != nil {
		return nil, err
	}
	return &stripPrefixIterator{inner: it, prefixLen: len(p.prefixedKey(cf, nil))}, nil
}

// Tx exposes the underlying transaction, e.g. to Commit/Discard it.
func (p *PrefixedContext) Tx() Tx { return p.tx }

// Prefix returns this context's 32-byte subtree prefix.
func (p *PrefixedContext) Prefix() []byte { return p.prefix }

func prefixSuccessor(prefix []byte) []byte {
	succ := make([]byte, len(prefix))
	copy(succ, prefix)
	for i := len(succ) - 1; i >= 0; i-- {
		if succ[i] < 0xff {
			succ[i]++
			return succ[:i+1]
		}
	}
	// All 0xff: no successor bound, caller should treat as unbounded.
	return nil
}

type stripPrefixIterator struct {
	inner     Iterator
	prefixLen int
}

func (s *stripPrefixIterator) Next() bool { return s.inner.Next() }
func (s *stripPrefixIterator) Close()     { s.inner.Close() }
func (s *stripPrefixIterator) Err() error { return s.inner.Err() }
func (s *stripPrefixIterator) Item() KV {
	kv := s.inner.Item()
	if len(kv.Key) >= s.prefixLen {
		kv.Key = kv.Key[s.prefixLen:]
	}
	return kv
}
