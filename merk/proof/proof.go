// Package proof implements GroveDB's Merk proof stack machine: generation descends a Tree according to a query range, emitting
// Push/Parent/Child ops; verification replays those ops on a small
// stack and checks the reconstructed root hash.
//
// Grounded on merkle.MerkleProof/ProofNode and their recursive
// buildProof/VerifyProof walk (merkle/proof.go) — the
// "descend emitting sibling nodes, recombine bottom-up by hashing" shape
// carries over; GroveDB generalizes the binary counting-tree descent
// into a real BST range descent and the fixed 64-byte sibling pair into
// the tagged Node variant set this package defines.
package proof

import (
	"fmt"

	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/merk"
)

// OpCode is a stack-machine instruction.
type OpCode uint8

const (
	OpPush OpCode = iota
	OpPushInverted
	OpParent
	OpChild
	OpParentInverted
	OpChildInverted
)

// NodeKind discriminates what a pushed Node variant reveals.
type NodeKind uint8

const (
	KindHash NodeKind = iota
	KindKVHash
	KindKV
	KindKVValueHash
	KindKVValueHashFeatureType
	KindKVDigest
	KindKVRefValueHash
)

// Node is one proof-carried node, revealing only what kind requires
// .
type Node struct {
	Kind NodeKind

	Hash      gvhash.Hash // Hash, and the final combined hash of any kind after execution
	Key       []byte      // KV, KVValueHash, KVValueHashFeatureType, KVDigest, KVRefValueHash
	Value     []byte      // KV, KVValueHash, KVValueHashFeatureType
	ValueHash gvhash.Hash // KVValueHash, KVValueHashFeatureType, KVDigest
	Feature   merk.Feature
	Count     uint64 // valid when Feature carries a provable count
	RefValue  []byte // KVRefValueHash: the dereferenced target value
	RefHash   gvhash.Hash
}

// Op is one stack-machine instruction; Node is set only for Push and
// PushInverted.
type Op struct {
	Code OpCode
	Node *Node
}

// QueryItem is a single contiguous key range within one Merk subtree,
// the lower-level primitive the grove/query layer's richer QueryItem
// variants (Range, RangeAfter, ...) compile down to for proof purposes.
type QueryItem struct {
	Start          []byte // nil = unbounded below
	StartExclusive bool
	End            []byte // nil = unbounded above
	EndExclusive   bool
}

func (q QueryItem) belowStart(key []byte) bool {
	if q.Start == nil {
		return false
	}
	c := compareBytes(key, q.Start)
	if q.StartExclusive {
		return c <= 0
	}
	return c < 0
}

func (q QueryItem) aboveEnd(key []byte) bool {
	if q.End == nil {
		return false
	}
	c := compareBytes(key, q.End)
	if q.EndExclusive {
		return c >= 0
	}
	return c > 0
}

func (q QueryItem) inRange(key []byte) bool {
	return !q.belowStart(key) && !q.aboveEnd(key)
}

func compareBytes(a, b []byte) int {
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

func nodeHashOf(kvHash gvhash.Hash, left, right *gvhash.Hash, feature merk.Feature, count uint64) gvhash.Hash {
	if feature == merk.FeatureCount || feature == merk.FeatureCountSum {
		return gvhash.NodeHashWithCount(kvHash, left, right, count)
	}
	return gvhash.NodeHash(kvHash, left, right)
}

func kvHashFromNodeVariant(n *Node) (gvhash.Hash, error) {
	switch n.Kind {
	case KindKVHash:
		return n.Hash, nil
	case KindKV:
		return gvhash.KVHash(n.Key, n.Value), nil
	case KindKVValueHash, KindKVValueHashFeatureType:
		return gvhash.KVDigestToKVHash(n.Key, n.ValueHash), nil
	case KindKVDigest:
		return gvhash.KVDigestToKVHash(n.Key, n.ValueHash), nil
	case KindKVRefValueHash:
		return gvhash.KVDigestToKVHash(n.Key, n.ValueHash), nil
	default:
		return gvhash.Hash{}, fmt.Errorf("proof: node kind %d has no kv_hash", n.Kind)
	}
}
