package grove

import (
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/storage"
)

// This file re-exports grove's package-private subtree/element primitives
// for grove/batch, which needs the same building blocks DB.Insert/Delete
// use but driven by its own multi-op, deferred-propagation loop instead
// of once per key.

// OpenTree opens (or creates) the Merk subtree at path, returning it
// alongside its storage prefix.
func OpenTree(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*merk.Tree, []byte, error) {
	return openTree(ctx, tx, path, acc)
}

// CommitTree commits tr's dirty nodes and persists its root metadata.
func CommitTree(ctx context.Context, tx storage.Tx, prefix []byte, tr *merk.Tree, acc *cost.OperationCost) (*merk.Link, error) {
	return commitTree(ctx, tx, prefix, tr, acc)
}

// ContribFor derives the merk.SumContribution el feeds into its parent
// subtree's aggregate, given the resolved child/target hash (nil if el
// is not tree-owning and not a Reference).
func ContribFor(el element.Element, childHash *gvhash.Hash) (merk.SumContribution, error) {
	return contribFor(el, childHash)
}

// ChildPath appends key to path without aliasing the caller's slice.
func ChildPath(path [][]byte, key []byte) [][]byte { return childPath(path, key) }

// ChildRootHash returns the current root hash of the Merk subtree living
// at path, or nil if empty/never created.
func ChildRootHash(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*gvhash.Hash, error) {
	return childRootHash(ctx, tx, path, acc)
}

// SubtreeExists reports whether path has ever been created.
func SubtreeExists(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (bool, error) {
	return subtreeExists(ctx, tx, path, acc)
}

// MarkSubtreeExists records path as an existing (possibly still empty)
// subtree.
func MarkSubtreeExists(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) error {
	return markSubtreeExists(ctx, tx, path, acc)
}

// DeleteSubtreeRecursive purges the Merk subtree at path and, recursively,
// every further subtree it owns.
func (db *DB) DeleteSubtreeRecursive(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) error {
	return db.deleteSubtreeRecursive(ctx, tx, path, acc)
}

// PurgeNonMerkNamespace removes a non-Merk tree's entire data namespace.
func PurgeNonMerkNamespace(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) error {
	return purgeNonMerkNamespace(ctx, tx, path, acc)
}

// ReferenceValueHash resolves a Reference element el (written at key
// within the subtree at path) to its target and returns the target's
// committed value_hash, exactly as DB.Insert uses internally.
func (db *DB) ReferenceValueHash(ctx context.Context, tx storage.Tx, path [][]byte, key []byte, el element.Element, acc *cost.OperationCost) (gvhash.Hash, error) {
	return db.referenceValueHash(ctx, tx, path, key, el, acc)
}

// InvalidateReference drops any cached reference resolution keyed by
// (path, key).
func (db *DB) InvalidateReference(path [][]byte, key []byte) {
	db.RefCache.Invalidate(path, key)
}

// SubtreePrefix computes the 32-byte blake3(path) storage prefix a
// subtree's data lives under — exported for nonmerk's Appenders, which
// address their own typed sub-namespace (e.g. 'm' ‖ position) within a
// non-Merk tree's path directly, without going through openTree/Merk at
// all.
func SubtreePrefix(path [][]byte) []byte { return subtreePrefix(path) }

// TreeFetch returns the merk.Fetch a Tree opened at path would use to
// lazily load unfetched children — exported for grove/proof, which
// descends a tree with merk/proof.GenerateProof rather than through
// Tree's own Get/WalkRange.
func TreeFetch(tx storage.Tx, path [][]byte) merk.Fetch {
	return txFetch(tx, subtreePrefix(path))
}
