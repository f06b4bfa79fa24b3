package grove

import (
	"context"
	"fmt"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove/reference"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/storage"
)

// defaultRefCacheSize bounds how many resolved reference targets DB keeps
// cached in memory between lookups.
const defaultRefCacheSize = 4096

// NonMerkRootFunc computes the current type-specific root hash of a
// non-Merk tree (MMR/bulk-append/dense/commitment) living at path, or
// nil if that tree is still empty. Supplied per-tag by whichever
// nonmerk package owns that tag's storage format; grove itself has no
// dependency on any of them.
type NonMerkRootFunc func(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*gvhash.Hash, error)

// DB is the grove: a hierarchy of path-addressed Merk subtrees, each
// holding element.Element values, stitched together by Tree/Reference
// elements whose value_hash binds a parent key to its child subtree's
// root hash.
type DB struct {
	Store        storage.Store
	RefCache     *reference.Cache
	NonMerkRoots map[element.Tag]NonMerkRootFunc
}

// Open wraps an already-opened storage.Store as a grove, with a
// default-sized reference resolution cache.
func Open(store storage.Store) *DB {
	cache, err := reference.NewCache(defaultRefCacheSize)
	if err != nil {
		// defaultRefCacheSize is a positive constant; lru.New only fails
		// for size <= 0.
		panic(err)
	}
	return &DB{Store: store, RefCache: cache, NonMerkRoots: make(map[element.Tag]NonMerkRootFunc)}
}

// RegisterNonMerkRoot wires tag's type-specific root resolver into db,
// so inserts and batches binding a tag element can commit its real
// root hash instead of the zero placeholder. Call once per tag the
// application actually uses (e.g. nonmerk/mmr.RootHash for
// element.TagMmrTree) before running writes against it.
func (db *DB) RegisterNonMerkRoot(tag element.Tag, fn NonMerkRootFunc) {
	db.NonMerkRoots[tag] = fn
}

// NonMerkChildHash resolves the current root hash of the non-Merk tree
// owned by a tag element.Tag living at path, via whichever resolver
// RegisterNonMerkRoot wired in for that tag. Returns nil (binds to the
// zero hash) if no resolver is registered for tag, or if the tree is
// still empty.
func (db *DB) NonMerkChildHash(ctx context.Context, tx storage.Tx, path [][]byte, tag element.Tag, acc *cost.OperationCost) (*gvhash.Hash, error) {
	fn, ok := db.NonMerkRoots[tag]
	if !ok {
		return nil, nil
	}
	return fn(ctx, tx, path, acc)
}

// Update runs fn inside a writable transaction, committing on success and
// discarding on error or panic.
func (db *DB) Update(fn func(tx storage.Tx) error) (err error) {
	tx, err := db.Store.Begin(true)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Discard()
			panic(p)
		}
		if err != nil {
			tx.Discard()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn inside a read-only transaction, always discarding it.
func (db *DB) View(fn func(tx storage.Tx) error) error {
	tx, err := db.Store.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Discard()
	return fn(tx)
}

// childPath appends key to path without aliasing the caller's slice.
func childPath(path [][]byte, key []byte) [][]byte {
	out := make([][]byte, 0, len(path)+1)
	out = append(out, path...)
	return append(out, key)
}

// valueHashFor computes the value_hash a grove element binds into its
// Merk node's kv_hash: a plain value_hash of the serialized element for
// leaf-like elements, or combine_hash(value_hash(bytes), childHash) for
// tree-owning and reference elements. For a Reference, childHash is the
// resolved target's own value_hash (see referenceValueHash) — the zero
// hash if the target cannot be resolved yet (a forward reference to a
// key that doesn't exist). For a non-Merk tree (MMR/bulk-append/dense/
// commitment), childHash is that tree's own type-specific root, resolved
// via DB.NonMerkRoots — the zero hash if no resolver is registered for
// its tag, or the tree is still empty.
func valueHashFor(el element.Element, childHash *gvhash.Hash) (gvhash.Hash, error) {
	raw, err := el.Marshal()
	if err != nil {
		return gvhash.Hash{}, fmt.Errorf("grove: marshal element: %w", err)
	}
	if el.Tag.IsTree() || el.Tag.IsNonMerkTree() || el.Tag == element.TagReference {
		ch := gvhash.Zero
		if childHash != nil {
			ch = *childHash
		}
		return gvhash.SubtreeValueHash(raw, ch), nil
	}
	return gvhash.ValueHash(raw), nil
}

// contribFor derives the merk.SumContribution an element feeds into its
// parent subtree's aggregate, collapsing the "cached vs hash-committed" count distinction
// between plain and Provable count trees — see DESIGN.md.
func contribFor(el element.Element, childHash *gvhash.Hash) (merk.SumContribution, error) {
	vh, err := valueHashFor(el, childHash)
	if err != nil {
		return merk.SumContribution{}, err
	}
	c := merk.SumContribution{
		ValueHashOverride: &vh,
		OwnSum:            el.AggregateSum(),
		OwnCount:          el.AggregateCount(),
		OwnBigSum:         el.AggregateBigSum(),
	}
	switch el.Tag {
	case element.TagSumItem, element.TagItemWithSumItem, element.TagSumTree:
		c.Feature = merk.FeatureSum
	case element.TagCountTree, element.TagProvableCountTree:
		c.Feature = merk.FeatureCount
	case element.TagCountSumTree, element.TagProvableCountSumTree:
		c.Feature = merk.FeatureCountSum
	case element.TagBigSumTree:
		c.Feature = merk.FeatureBigSum
	default:
		c.Feature = merk.FeatureBasic
	}
	return c, nil
}

// childRootHash returns the current root hash of the Merk subtree living
// at childPath, or nil if that subtree is empty or has never been
// created.
func childRootHash(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*gvhash.Hash, error) {
	tr, _, err := openTree(ctx, tx, path, acc)
	if err != nil {
		return nil, err
	}
	if tr.IsEmpty() {
		return nil, nil
	}
	h := gvhash.Hash(tr.RootHash())
	return &h, nil
}

// rawLookup builds a reference.Lookup out of tx's raw subtree Get, for
// resolving a Reference element's target at write time.
func rawLookup(tx storage.Tx) reference.Lookup {
	return reference.LookupFromRaw(func(ctx context.Context, path [][]byte, key []byte, acc *cost.OperationCost) ([]byte, error) {
		tr, _, err := openTree(ctx, tx, path, acc)
		if err != nil {
			return nil, err
		}
		return tr.Get(ctx, key, acc)
	})
}

// referenceValueHash resolves el (a Reference rooted at path) to its
// terminal target and returns the target's own committed value_hash, the
// second argument valueHashFor's combine_hash binds a Reference's own
// bytes to. A target that cannot be resolved yet (absent key, not-yet
// created subtree) is tolerated and binds to the zero hash rather than
// failing the write — the reference simply commits as "dangling" until
// its target appears. Note that once bound, a reference's value_hash is
// not automatically recomputed if its target later changes; only a
// fresh write to the reference's own key re-resolves it (no
// reverse-dependency index is maintained — see DESIGN.md).
func (db *DB) referenceValueHash(ctx context.Context, tx storage.Tx, path [][]byte, key []byte, el element.Element, acc *cost.OperationCost) (gvhash.Hash, error) {
	resolved, err := reference.Resolve(ctx, rawLookup(tx), db.RefCache, childPath(path, key), el, acc)
	if err != nil {
		switch groveerr.Classify(err) {
		case groveerr.KindElementNotFound, groveerr.KindPathNotFound:
			return gvhash.Zero, nil
		default:
			return gvhash.Hash{}, err
		}
	}
	tr, _, err := openTree(ctx, tx, resolved.Path, acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	vh, ok, err := tr.ValueHashAt(ctx, resolved.Key, acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	if !ok {
		return gvhash.Zero, nil
	}
	return vh, nil
}

// Get looks up key within the subtree at path.
func (db *DB) Get(ctx context.Context, tx storage.Tx, path [][]byte, key []byte, acc *cost.OperationCost) (element.Element, error) {
	if len(path) > 0 {
		exists, err := subtreeExists(ctx, tx, path, acc)
		if err != nil {
			return element.Element{}, err
		}
		if !exists {
			return element.Element{}, groveerr.Wrap(groveerr.ErrPathNotFound, "grove: subtree %q does not exist", path)
		}
	}
	tr, _, err := openTree(ctx, tx, path, acc)
	if err != nil {
		return element.Element{}, err
	}
	raw, err := tr.Get(ctx, key, acc)
	if err != nil {
		return element.Element{}, err
	}
	if raw == nil {
		return element.Element{}, groveerr.Wrap(groveerr.ErrElementNotFound, "grove: key %x not found at path %q", key, path)
	}
	return element.Unmarshal(raw)
}

// GetResolved behaves like Get, but transparently follows a Reference
// element to its terminal target, returning the target's path/key
// alongside its element. Non-Reference elements resolve to themselves.
func (db *DB) GetResolved(ctx context.Context, tx storage.Tx, path [][]byte, key []byte, acc *cost.OperationCost) (resolvedPath [][]byte, resolvedKey []byte, el element.Element, err error) {
	el, err = db.Get(ctx, tx, path, key, acc)
	if err != nil {
		return nil, nil, element.Element{}, err
	}
	if el.Tag != element.TagReference {
		return path, key, el, nil
	}
	resolved, err := reference.Resolve(ctx, rawLookup(tx), db.RefCache, childPath(path, key), el, acc)
	if err != nil {
		return nil, nil, element.Element{}, err
	}
	return resolved.Path, resolved.Key, resolved.Elem, nil
}

// Insert stores el at key within the subtree at path, committing the
// subtree and propagating its new root hash to every ancestor's Tree
// element.
func (db *DB) Insert(ctx context.Context, tx storage.Tx, path [][]byte, key []byte, el element.Element, acc *cost.OperationCost) error {
	tr, prefix, err := openTree(ctx, tx, path, acc)
	if err != nil {
		return err
	}

	var childHash *gvhash.Hash
	switch {
	case el.Tag.IsTree() && el.HasChild():
		childHash, err = childRootHash(ctx, tx, childPath(path, key), acc)
		if err != nil {
			return err
		}
	case el.Tag == element.TagReference:
		h, err := db.referenceValueHash(ctx, tx, path, key, el, acc)
		if err != nil {
			return err
		}
		childHash = &h
	case el.Tag.IsNonMerkTree():
		childHash, err = db.NonMerkChildHash(ctx, tx, childPath(path, key), el.Tag, acc)
		if err != nil {
			return err
		}
	}

	raw, err := el.Marshal()
	if err != nil {
		return fmt.Errorf("grove: marshal element: %w", err)
	}
	contrib, err := contribFor(el, childHash)
	if err != nil {
		return err
	}
	if err := tr.Put(ctx, key, raw, contrib, acc); err != nil {
		return err
	}
	db.RefCache.Invalidate(path, key)
	root, err := commitTree(ctx, tx, prefix, tr, acc)
	if err != nil {
		return err
	}
	if err := markSubtreeExists(ctx, tx, path, acc); err != nil {
		return err
	}
	return db.propagate(ctx, tx, path, root, acc)
}

// propagate updates path's parent Tree element to point at root (the
// subtree's freshly committed root link) and re-commits the parent,
// recursing up to the grove root. It is the leaf-to-root half of
// deferred root-hash propagation; grove/batch drives the same primitive
// once per dirtied subtree instead of once per key.
func (db *DB) propagate(ctx context.Context, tx storage.Tx, path [][]byte, root *merk.Link, acc *cost.OperationCost) error {
	if len(path) == 0 {
		return nil
	}
	parentPath := path[:len(path)-1]
	key := path[len(path)-1]

	parentTr, parentPrefix, err := openTree(ctx, tx, parentPath, acc)
	if err != nil {
		return err
	}
	raw, err := parentTr.Get(ctx, key, acc)
	if err != nil {
		return err
	}
	if raw == nil {
		return groveerr.Wrap(groveerr.ErrPathNotFound, "grove: propagate: parent key %x missing at path %q", key, parentPath)
	}
	el, err := element.Unmarshal(raw)
	if err != nil {
		return err
	}
	if !el.Tag.IsTree() {
		return fmt.Errorf("grove: propagate: element at %x, path %q is not tree-owning (tag %s)", key, parentPath, el.Tag)
	}

	var childHash *gvhash.Hash
	if root == nil {
		el.ChildRootKey = nil
		el.Sum = 0
		el.Count = 0
		el.BigSum = nil
	} else {
		el.ChildRootKey = append([]byte{}, root.Key...)
		h := root.Hash
		childHash = &h
		el.Sum = root.Sum
		el.Count = root.Count
		el.BigSum = root.BigSum
	}

	newRaw, err := el.Marshal()
	if err != nil {
		return fmt.Errorf("grove: marshal element: %w", err)
	}
	contrib, err := contribFor(el, childHash)
	if err != nil {
		return err
	}
	if err := parentTr.Put(ctx, key, newRaw, contrib, acc); err != nil {
		return err
	}
	db.RefCache.Invalidate(parentPath, key)
	newParentRoot, err := commitTree(ctx, tx, parentPrefix, parentTr, acc)
	if err != nil {
		return err
	}
	return db.propagate(ctx, tx, parentPath, newParentRoot, acc)
}

// CreateSubtree inserts a tree-owning or non-Merk-tree-owning element at
// key and marks the child path it owns as an existing (if still empty)
// subtree, so a subsequent Get/Insert into that child path does not fail
// with "subtree does not exist" before anything has been written to it.
func (db *DB) CreateSubtree(ctx context.Context, tx storage.Tx, path [][]byte, key []byte, el element.Element, acc *cost.OperationCost) error {
	if !el.Tag.IsTree() && !el.Tag.IsNonMerkTree() {
		return fmt.Errorf("grove: CreateSubtree requires a tree-owning element, got %s", el.Tag)
	}
	if err := db.Insert(ctx, tx, path, key, el, acc); err != nil {
		return err
	}
	return markSubtreeExists(ctx, tx, childPath(path, key), acc)
}

// Delete removes key from the subtree at path. If key held a Tree
// element with a non-empty child, the entire child subtree (and,
// recursively, any further-nested subtrees it owns) is purged first. A
// non-Merk tree's data namespace is purged directly, without walking it
// as a Merk subtree.
func (db *DB) Delete(ctx context.Context, tx storage.Tx, path [][]byte, key []byte, acc *cost.OperationCost) error {
	tr, prefix, err := openTree(ctx, tx, path, acc)
	if err != nil {
		return err
	}
	raw, err := tr.Get(ctx, key, acc)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	el, err := element.Unmarshal(raw)
	if err != nil {
		return err
	}

	cp := childPath(path, key)
	switch {
	case el.Tag.IsTree() && el.HasChild():
		if err := db.deleteSubtreeRecursive(ctx, tx, cp, acc); err != nil {
			return err
		}
	case el.Tag.IsNonMerkTree():
		if err := purgeNonMerkNamespace(ctx, tx, cp, acc); err != nil {
			return err
		}
	}

	if err := tr.Delete(ctx, key, acc); err != nil {
		return err
	}
	// A purged subtree may hold cached targets, so drop the whole cache.
	if el.Tag.IsTree() || el.Tag.IsNonMerkTree() {
		db.RefCache.Clear()
	} else {
		db.RefCache.Invalidate(path, key)
	}
	root, err := commitTree(ctx, tx, prefix, tr, acc)
	if err != nil {
		return err
	}
	return db.propagate(ctx, tx, path, root, acc)
}

// deleteSubtreeRecursive purges the Merk subtree at path, first
// recursing into any Tree-element children it holds and purging any
// non-Merk-tree children's namespaces directly.
func (db *DB) deleteSubtreeRecursive(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) error {
	tr, prefix, err := openTree(ctx, tx, path, acc)
	if err != nil {
		return err
	}

	var treeChildren, nonMerkChildren [][][]byte
	walkErr := tr.Walk(ctx, acc, func(key, value []byte) error {
		el, err := element.Unmarshal(value)
		if err != nil {
			return err
		}
		switch {
		case el.Tag.IsTree() && el.HasChild():
			treeChildren = append(treeChildren, childPath(path, key))
		case el.Tag.IsNonMerkTree():
			nonMerkChildren = append(nonMerkChildren, childPath(path, key))
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	for _, cp := range treeChildren {
		if err := db.deleteSubtreeRecursive(ctx, tx, cp, acc); err != nil {
			return err
		}
	}
	for _, cp := range nonMerkChildren {
		if err := purgeNonMerkNamespace(ctx, tx, cp, acc); err != nil {
			return err
		}
	}
	return purgeSubtreeNamespace(ctx, tx, prefix, acc)
}

// purgeNonMerkNamespace removes a non-Merk tree's entire data namespace
// (MMR/bulk-append/dense-tree records addressed under its own subtree
// prefix) without interpreting its contents as Merk nodes.
func purgeNonMerkNamespace(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) error {
	return purgeSubtreeNamespace(ctx, tx, subtreePrefix(path), acc)
}

// purgeSubtreeNamespace deletes every key stored under prefix across the
// default, aux, roots and meta-marker namespaces.
func purgeSubtreeNamespace(ctx context.Context, tx storage.Tx, prefix []byte, acc *cost.OperationCost) error {
	pctx := storage.NewPrefixedContext(tx, prefix)
	for _, cf := range []storage.ColumnFamily{storage.CFDefault, storage.CFAux} {
		it, err := pctx.Iterate(cf, storage.RangeOpts{})
		if err != nil {
			return err
		}
		var keys [][]byte
		for it.Next() {
			keys = append(keys, append([]byte{}, it.Item().Key...))
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := pctx.Delete(ctx, cf, k, acc); err != nil {
				return err
			}
		}
	}
	if err := pctx.Delete(ctx, storage.CFRoots, rootRecordKey, acc); err != nil {
		return err
	}
	return pctx.Delete(ctx, storage.CFMeta, subtreeMarkerKey, acc)
}
