// Package merk implements the self-balancing AVL Merkle tree that backs
// every GroveDB subtree. A Tree is a single authenticated key/value
// binary search tree with lazy-loaded children and deferred,
// batch-commit rehashing.
//
// Grounded on treebuilder/implementation.go (blake3 node hashing over a
// length-prefixed record) and kvstore.KVStore (the Fetch capability a
// Link uses to pull an unloaded child from storage).
package merk

import (
	"fmt"
	"math/big"

	"github.com/dashpay/grovedb-sub006/gvhash"
)

// Feature identifies what aggregate, if any, a node's subtree carries.
// FeatureCount and FeatureCountSum bind their count into the node hash
// via node_hash_with_count, making the aggregate provable rather than
// merely cached. FeatureBigSum is a cached-only i128 aggregate, the same
// as FeatureSum but widened to avoid int64 overflow.
type Feature uint8

const (
	FeatureBasic Feature = iota
	FeatureSum
	FeatureCount
	FeatureCountSum
	FeatureBigSum
)

func (f Feature) hasProvableCount() bool {
	return f == FeatureCount || f == FeatureCountSum
}

// MaxKeySize is the hard limit on a Merk key: the wire length prefix is
// a single byte.
const MaxKeySize = 255

// Node is one key/value pair plus its two child links. Value is opaque
// to merk — callers (the grove layer) store serialized element.Element
// bytes here.
type Node struct {
	Key   []byte
	Value []byte

	ValueHash gvhash.Hash
	KVHash    gvhash.Hash

	Feature  Feature
	Sum      int64    // subtree aggregate sum, valid when Feature is Sum/CountSum
	Count    uint64   // subtree aggregate count, valid when Feature is Count/CountSum
	BigSum   *big.Int // subtree aggregate i128 sum, valid when Feature is BigSum
	ownSum   int64
	ownCount uint64
	ownBig   *big.Int
	hashDone bool // true once KVHash/ValueHash/NodeHash reflect current Value

	// ValueHashOverride lets a caller that understands its Value's
	// semantics (the grove layer, for Tree/Reference elements whose
	// value_hash is combine_hash(own_bytes, child_or_target_hash) rather
	// than a plain blake3 of Value) supply the value_hash directly
	// instead of merk computing value_hash(Value) generically.
	ValueHashOverride *gvhash.Hash

	Left  *Link
	Right *Link
}

// SumContribution is the per-node input to the subtree aggregate,
// supplied by the caller at Put time since merk does not interpret
// Value itself. OwnCount lets a nested count/sum tree contribute its
// own already-aggregated count rather than a flat 1.
type SumContribution struct {
	Feature           Feature
	OwnSum            int64
	OwnCount          uint64
	OwnBigSum         *big.Int
	ValueHashOverride *gvhash.Hash
}

func newLeaf(key, value []byte, contrib SumContribution) *Node {
	n := &Node{Key: key, Value: value, ValueHashOverride: contrib.ValueHashOverride}
	n.recomputeAggregates(contrib)
	return n
}

// recomputeHashes refreshes ValueHash and KVHash given already-current
// child hashes. Callers must ensure
// children are up to date (commit walks bottom-up).
func (n *Node) recomputeHashes() {
	if n.ValueHashOverride != nil {
		n.ValueHash = *n.ValueHashOverride
	} else {
		n.ValueHash = gvhash.ValueHash(n.Value)
	}
	n.KVHash = gvhash.KVDigestToKVHash(n.Key, n.ValueHash)
	n.hashDone = true
}

func (n *Node) leftHash() *gvhash.Hash {
	if n.Left == nil {
		return nil
	}
	h := n.Left.Hash
	return &h
}

func (n *Node) rightHash() *gvhash.Hash {
	if n.Right == nil {
		return nil
	}
	h := n.Right.Hash
	return &h
}

// Hash computes this node's node_hash from its current KVHash and its
// children's (already committed) link hashes.
func (n *Node) Hash() gvhash.Hash {
	if n.Feature.hasProvableCount() {
		return gvhash.NodeHashWithCount(n.KVHash, n.leftHash(), n.rightHash(), n.Count)
	}
	return gvhash.NodeHash(n.KVHash, n.leftHash(), n.rightHash())
}

func (n *Node) leftHeight() uint8 {
	if n.Left == nil {
		return 0
	}
	return n.Left.Height
}

func (n *Node) rightHeight() uint8 {
	if n.Right == nil {
		return 0
	}
	return n.Right.Height
}

func (n *Node) height() uint8 {
	l, r := n.leftHeight(), n.rightHeight()
	if l > r {
		return l + 1
	}
	return r + 1
}

func (n *Node) balanceFactor() int {
	return int(n.rightHeight()) - int(n.leftHeight())
}

// OwnAggregate returns the node's own sum/count/big-sum contribution
// (before folding in children), so a caller persisting the node (the
// grove layer's node record) can store it alongside the folded
// Sum/Count/BigSum.
func (n *Node) OwnAggregate() (ownSum int64, ownCount uint64, ownBigSum *big.Int) {
	return n.ownSum, n.ownCount, n.ownBig
}

// RestoreAggregates sets a node's feature and own/folded aggregates
// directly, for a node rebuilt from storage rather than freshly
// inserted via newLeaf. Unlike recomputeAggregates, it does not re-fold
// from children: the folded sum/count/big-sum are read back from the
// record exactly as committed, so a later refreshAggregates (triggered
// by one of this node's children changing) re-folds the restored own
// contribution instead of a zero value.
func (n *Node) RestoreAggregates(feature Feature, ownSum int64, ownCount uint64, ownBigSum *big.Int, sum int64, count uint64, bigSum *big.Int) {
	n.Feature = feature
	n.ownSum = ownSum
	n.ownCount = ownCount
	n.ownBig = ownBigSum
	n.Sum = sum
	n.Count = count
	n.BigSum = bigSum
}

// recomputeAggregates records a new own-contribution (the node's value
// changed) and folds it with its children's subtree aggregates.
func (n *Node) recomputeAggregates(contrib SumContribution) {
	n.Feature = contrib.Feature
	n.ownSum = contrib.OwnSum
	n.ownCount = contrib.OwnCount
	n.ownBig = contrib.OwnBigSum
	if n.ownBig == nil {
		n.ownBig = big.NewInt(0)
	}
	n.ValueHashOverride = contrib.ValueHashOverride
	if n.ownCount == 0 {
		n.ownCount = 1
	}
	n.refreshAggregates()
}

// refreshAggregates re-folds the node's already-recorded own
// contribution with its (possibly just-changed) children's aggregates,
// without altering the own contribution itself.
func (n *Node) refreshAggregates() {
	count := n.ownCount
	sum := n.ownSum
	ownBig := n.ownBig
	if ownBig == nil {
		ownBig = big.NewInt(0)
	}
	bigSum := new(big.Int).Set(ownBig)
	if n.Left != nil {
		count += n.Left.Count
		sum += n.Left.Sum
		if n.Left.BigSum != nil {
			bigSum.Add(bigSum, n.Left.BigSum)
		}
	}
	if n.Right != nil {
		count += n.Right.Count
		sum += n.Right.Sum
		if n.Right.BigSum != nil {
			bigSum.Add(bigSum, n.Right.BigSum)
		}
	}
	n.Count = count
	n.Sum = sum
	n.BigSum = bigSum
}

func validateKeyValue(key, value []byte, maxValueSize int) error {
	if len(key) == 0 {
		return fmt.Errorf("merk: empty key")
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("merk: key length %d exceeds max %d", len(key), MaxKeySize)
	}
	if maxValueSize > 0 && len(value) > maxValueSize {
		return fmt.Errorf("merk: value length %d exceeds max %d", len(value), maxValueSize)
	}
	return nil
}
