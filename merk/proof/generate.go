package proof

import (
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/merk"
)

// Visitor receives every queried (in-range) key/value as generation
// descends, letting the caller collect results without a second pass.
type Visitor func(key, value []byte, feature merk.Feature, count uint64)

// subtreeResult is what descending into one side of a node yields: the
// ops to reconstruct that side's hash, the hash itself, and whether
// anything was emitted at all (nil links emit nothing).
type subtreeResult struct {
	ops     []Op
	hash    gvhash.Hash
	present bool
}

func opaque(hash gvhash.Hash) subtreeResult {
	return subtreeResult{ops: []Op{{Code: OpPush, Node: &Node{Kind: KindHash, Hash: hash}}}, hash: hash, present: true}
}

func absent() subtreeResult { return subtreeResult{} }

// combine assembles the stack-machine op sequence for parentPush with
// its (already-generated) left/right subtree results: Push(parent),
// then left's ops + Parent if left is present, then right's ops +
// Child if right is present. This is the exact operand order the
// verifier's stack execution expects.
func combine(parentPush Op, left, right subtreeResult, feature merk.Feature, count uint64) subtreeResult {
	ops := make([]Op, 0, 2+len(left.ops)+len(right.ops))
	ops = append(ops, parentPush)

	var leftHashPtr, rightHashPtr *gvhash.Hash
	if left.present {
		ops = append(ops, left.ops...)
		ops = append(ops, Op{Code: OpParent})
		h := left.hash
		leftHashPtr = &h
	}
	if right.present {
		ops = append(ops, right.ops...)
		ops = append(ops, Op{Code: OpChild})
		h := right.hash
		rightHashPtr = &h
	}

	kvHash, _ := kvHashFromNodeVariant(parentPush.Node)
	hash := nodeHashOf(kvHash, leftHashPtr, rightHashPtr, feature, count)
	return subtreeResult{ops: ops, hash: hash, present: true}
}

// GenerateProof descends tr according to item, emitting the ops that
// prove both presence of every in-range key and absence of any gaps at
// the range's boundary. Every queried key is forwarded to visit.
func GenerateProof(ctx context.Context, tr *merk.Tree, item QueryItem, fetch merk.Fetch, visit Visitor, acc *cost.OperationCost) ([]Op, error) {
	result, err := descend(ctx, tr.RootLink(), fetch, item, visit, acc)
	if err != nil {
		return nil, err
	}
	if !result.present {
		return nil, nil
	}
	return result.ops, nil
}

func descend(ctx context.Context, link *merk.Link, fetch merk.Fetch, item QueryItem, visit Visitor, acc *cost.OperationCost) (subtreeResult, error) {
	if link == nil {
		return absent(), nil
	}
	node, err := merk.FetchNode(ctx, link, fetch, acc)
	if err != nil {
		return subtreeResult{}, err
	}
	if acc != nil {
		acc.Seek()
	}

	switch {
	case item.inRange(node.Key):
		if visit != nil {
			visit(node.Key, node.Value, node.Feature, node.Count)
		}
		left, err := descend(ctx, node.Left, fetch, item, visit, acc)
		if err != nil {
			return subtreeResult{}, err
		}
		right, err := descend(ctx, node.Right, fetch, item, visit, acc)
		if err != nil {
			return subtreeResult{}, err
		}
		push := queriedPush(node)
		return combine(push, left, right, node.Feature, node.Count), nil

	case item.belowStart(node.Key):
		// node and its entire left subtree sort before the range; only
		// the right subtree can contain matches. node itself still must
		// be revealed (as a boundary / on-path marker) so the verifier
		// can recompute the hash up to the root.
		right, err := descend(ctx, node.Right, fetch, item, visit, acc)
		if err != nil {
			return subtreeResult{}, err
		}
		if !right.present {
			return opaque(node.Hash()), nil
		}
		left := absent()
		if node.Left != nil {
			left = opaque(node.Left.Hash)
		}
		push := boundaryPush(node)
		return combine(push, left, right, node.Feature, node.Count), nil

	default: // aboveEnd
		left, err := descend(ctx, node.Left, fetch, item, visit, acc)
		if err != nil {
			return subtreeResult{}, err
		}
		if !left.present {
			return opaque(node.Hash()), nil
		}
		right := absent()
		if node.Right != nil {
			right = opaque(node.Right.Hash)
		}
		push := boundaryPush(node)
		return combine(push, left, right, node.Feature, node.Count), nil
	}
}

func queriedPush(n *merk.Node) Op {
	kind := KindKVValueHash
	if n.Feature == merk.FeatureCount || n.Feature == merk.FeatureCountSum {
		kind = KindKVValueHashFeatureType
	}
	return Op{Code: OpPush, Node: &Node{
		Kind: kind, Key: n.Key, Value: n.Value, ValueHash: n.ValueHash,
		Feature: n.Feature, Count: n.Count,
	}}
}

// boundaryPush reveals key+value_hash (not the value) for an on-path
// node the query doesn't target — enough for the caller to confirm the
// search boundary without leaking the value.
func boundaryPush(n *merk.Node) Op {
	return Op{Code: OpPush, Node: &Node{
		Kind: KindKVDigest, Key: n.Key, ValueHash: n.ValueHash,
		Feature: n.Feature, Count: n.Count,
	}}
}
