package merk

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/gvhash"
)

// Config bounds a Tree's key/value sizes.
type Config struct {
	MaxValueSize int // 0 means unbounded
}

// Tree is one authenticated Merk subtree: a root link plus the Fetch
// capability used to lazily load unloaded children.
type Tree struct {
	root  *Link
	fetch Fetch
	cfg   Config
}

// New creates an empty Tree.
func New(fetch Fetch, cfg Config) *Tree {
	return &Tree{fetch: fetch, cfg: cfg}
}

// Open restores a Tree whose root is already on disk at rootKey with
// the given cached metadata (hash/height/aggregates), as an unfetched
// Reference link.
func Open(fetch Fetch, cfg Config, rootKey []byte, meta Link) *Tree {
	meta.State = LinkReference
	meta.Key = rootKey
	meta.Child = nil
	return &Tree{root: &meta, fetch: fetch, cfg: cfg}
}

// RootHash returns the tree's root node_hash, or the zero hash if
// empty.
func (t *Tree) RootHash() (h [32]byte) {
	if t.root == nil {
		return h
	}
	return [32]byte(t.root.Hash)
}

// RootKey returns the key of the root node, or nil if empty.
func (t *Tree) RootKey() []byte {
	if t.root == nil {
		return nil
	}
	return t.root.Key
}

// IsEmpty reports whether the tree has no nodes.
func (t *Tree) IsEmpty() bool { return t.root == nil }

// RootLink exposes the tree's root link for lower-level walkers (e.g.
// merk/proof's generator) that need to descend with their own Fetch.
func (t *Tree) RootLink() *Link { return t.root }

// Get fetches the value stored at key, or (nil, nil) if absent.
func (t *Tree) Get(ctx context.Context, key []byte, acc *cost.OperationCost) ([]byte, error) {
	link := t.root
	for link != nil {
		if acc != nil {
			acc.Seek()
		}
		n, err := detach(ctx, link, t.fetch, acc)
		if err != nil {
			return nil, err
		}
		switch bytes.Compare(key, n.Key) {
		case 0:
			return n.Value, nil
		case -1:
			link = n.Left
		default:
			link = n.Right
		}
	}
	return nil, nil
}

// ValueHashAt returns the committed value_hash bound into the node stored
// at key (ok is false if key is absent). Callers that need to bind a
// Reference's value_hash to its target's value_hash (rather than the
// target's raw bytes) use this instead of re-deriving the target's hash
// themselves.
func (t *Tree) ValueHashAt(ctx context.Context, key []byte, acc *cost.OperationCost) (gvhash.Hash, bool, error) {
	link := t.root
	for link != nil {
		if acc != nil {
			acc.Seek()
		}
		n, err := detach(ctx, link, t.fetch, acc)
		if err != nil {
			return gvhash.Hash{}, false, err
		}
		switch bytes.Compare(key, n.Key) {
		case 0:
			if !n.hashDone {
				n.recomputeHashes()
			}
			return n.ValueHash, true, nil
		case -1:
			link = n.Left
		default:
			link = n.Right
		}
	}
	return gvhash.Hash{}, false, nil
}

// Put inserts or replaces the value at key, rebalancing as needed.
// Hashes are left stale (Modified) until Commit runs.
func (t *Tree) Put(ctx context.Context, key, value []byte, contrib SumContribution, acc *cost.OperationCost) error {
	if err := validateKeyValue(key, value, t.cfg.MaxValueSize); err != nil {
		return err
	}
	root, err := t.insert(ctx, t.root, key, value, contrib, acc)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Tree) insert(ctx context.Context, link *Link, key, value []byte, contrib SumContribution, acc *cost.OperationCost) (*Link, error) {
	if link == nil {
		if acc != nil {
			acc.AddedBytes += uint32(len(key) + len(value))
		}
		return attach(newLeaf(key, value, contrib)), nil
	}
	n, err := detach(ctx, link, t.fetch, acc)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		acc.Seek()
	}
	switch bytes.Compare(key, n.Key) {
	case 0:
		if acc != nil {
			acc.UpdateValue(len(n.Value), len(value))
		}
		n.Value = value
		n.hashDone = false
		n.recomputeAggregates(contrib)
		return attach(n), nil
	case -1:
		newLeft, err := t.insert(ctx, n.Left, key, value, contrib, acc)
		if err != nil {
			return nil, err
		}
		n.Left = newLeft
	default:
		newRight, err := t.insert(ctx, n.Right, key, value, contrib, acc)
		if err != nil {
			return nil, err
		}
		n.Right = newRight
	}
	n.refreshAggregates()
	return attach(rebalance(n)), nil
}

// Delete removes key if present; it is a no-op if key is absent.
func (t *Tree) Delete(ctx context.Context, key []byte, acc *cost.OperationCost) error {
	root, removed, err := t.delete(ctx, t.root, key, acc)
	if err != nil {
		return err
	}
	if removed != nil && acc != nil {
		acc.RemovedBytes = acc.RemovedBytes.Add(cost.RemovedBytes{NormalBytes: uint32(len(removed.Key) + len(removed.Value))})
	}
	t.root = root
	return nil
}

func (t *Tree) delete(ctx context.Context, link *Link, key []byte, acc *cost.OperationCost) (*Link, *Node, error) {
	if link == nil {
		return nil, nil, nil
	}
	n, err := detach(ctx, link, t.fetch, acc)
	if err != nil {
		return nil, nil, err
	}
	if acc != nil {
		acc.Seek()
	}
	switch bytes.Compare(key, n.Key) {
	case -1:
		newLeft, removed, err := t.delete(ctx, n.Left, key, acc)
		if err != nil {
			return nil, nil, err
		}
		n.Left = newLeft
		n.refreshAggregates()
		return attach(rebalance(n)), removed, nil
	case 1:
		newRight, removed, err := t.delete(ctx, n.Right, key, acc)
		if err != nil {
			return nil, nil, err
		}
		n.Right = newRight
		n.refreshAggregates()
		return attach(rebalance(n)), removed, nil
	default:
		replacement, err := t.removeNode(ctx, n, acc)
		if err != nil {
			return nil, nil, err
		}
		return replacement, n, nil
	}
}

// removeNode removes n itself, promoting the edge successor from its
// taller child: leftmost of the right subtree if it is strictly taller,
// otherwise (including an exact height tie) the left subtree's rightmost
// node.
func (t *Tree) removeNode(ctx context.Context, n *Node, acc *cost.OperationCost) (*Link, error) {
	if n.Left == nil && n.Right == nil {
		return nil, nil
	}
	if n.Left == nil {
		return n.Right, nil
	}
	if n.Right == nil {
		return n.Left, nil
	}

	lh, rh := n.leftHeight(), n.rightHeight()
	var promoteFromRight bool
	if rh > lh {
		promoteFromRight = true
	} else {
		promoteFromRight = false // lh > rh, or tie: prefer left
	}

	if promoteFromRight {
		succ, newRight, err := t.removeLeftmost(ctx, n.Right, acc)
		if err != nil {
			return nil, err
		}
		succ.Left, succ.Right = n.Left, newRight
		succ.refreshAggregates()
		return attach(rebalance(succ)), nil
	}
	pred, newLeft, err := t.removeRightmost(ctx, n.Left, acc)
	if err != nil {
		return nil, err
	}
	pred.Left, pred.Right = newLeft, n.Right
	pred.refreshAggregates()
	return attach(rebalance(pred)), nil
}

func (t *Tree) removeLeftmost(ctx context.Context, link *Link, acc *cost.OperationCost) (*Node, *Link, error) {
	n, err := detach(ctx, link, t.fetch, acc)
	if err != nil {
		return nil, nil, err
	}
	if n.Left == nil {
		return n, n.Right, nil
	}
	leftmost, newLeft, err := t.removeLeftmost(ctx, n.Left, acc)
	if err != nil {
		return nil, nil, err
	}
	n.Left = newLeft
	n.refreshAggregates()
	return leftmost, attach(rebalance(n)), nil
}

func (t *Tree) removeRightmost(ctx context.Context, link *Link, acc *cost.OperationCost) (*Node, *Link, error) {
	n, err := detach(ctx, link, t.fetch, acc)
	if err != nil {
		return nil, nil, err
	}
	if n.Right == nil {
		return n, n.Left, nil
	}
	rightmost, newRight, err := t.removeRightmost(ctx, n.Right, acc)
	if err != nil {
		return nil, nil, err
	}
	n.Right = newRight
	n.refreshAggregates()
	return rightmost, attach(rebalance(n)), nil
}

// Walk visits every key/value pair in ascending key order. It changes no
// key, value or hash, but children it fetches stay attached to their
// links (marked Loaded).
func (t *Tree) Walk(ctx context.Context, acc *cost.OperationCost, visit func(key, value []byte) error) error {
	return t.walkLink(ctx, t.root, acc, visit)
}

func (t *Tree) walkLink(ctx context.Context, link *Link, acc *cost.OperationCost, visit func(key, value []byte) error) error {
	if link == nil {
		return nil
	}
	n, err := detach(ctx, link, t.fetch, acc)
	if err != nil {
		return err
	}
	if err := t.walkLink(ctx, n.Left, acc, visit); err != nil {
		return err
	}
	if err := visit(n.Key, n.Value); err != nil {
		return err
	}
	return t.walkLink(ctx, n.Right, acc, visit)
}

// RangeBounds prunes a WalkRange traversal to keys within [Lower, Upper]
// (or half-open/unbounded variants via the Exclude flags and nil
// bounds), letting an AVL walk skip whole subtrees it can prove lie
// entirely outside the window instead of visiting every key.
type RangeBounds struct {
	Lower        []byte // nil: unbounded below
	LowerExclude bool
	Upper        []byte // nil: unbounded above
	UpperExclude bool
}

// BelowLower reports whether key falls below b's lower bound (always
// false if b is unbounded below).
func (b RangeBounds) BelowLower(key []byte) bool {
	if b.Lower == nil {
		return false
	}
	c := bytes.Compare(key, b.Lower)
	if b.LowerExclude {
		return c <= 0
	}
	return c < 0
}

// AboveUpper reports whether key falls above b's upper bound (always
// false if b is unbounded above).
func (b RangeBounds) AboveUpper(key []byte) bool {
	if b.Upper == nil {
		return false
	}
	c := bytes.Compare(key, b.Upper)
	if b.UpperExclude {
		return c >= 0
	}
	return c > 0
}

// WalkRange visits every key within bounds, ascending if leftToRight
// else descending, pruning subtrees bounds proves cannot contain a
// match rather than visiting every node the way Walk does. visit
// returns false to stop early without error.
func (t *Tree) WalkRange(ctx context.Context, acc *cost.OperationCost, bounds RangeBounds, leftToRight bool, visit func(key, value []byte) (bool, error)) error {
	_, err := t.walkRangeLink(ctx, t.root, acc, bounds, leftToRight, visit)
	return err
}

func (t *Tree) walkRangeLink(ctx context.Context, link *Link, acc *cost.OperationCost, bounds RangeBounds, leftToRight bool, visit func(key, value []byte) (bool, error)) (bool, error) {
	if link == nil {
		return true, nil
	}
	n, err := detach(ctx, link, t.fetch, acc)
	if err != nil {
		return false, err
	}

	skipLeft := bounds.BelowLower(n.Key)
	skipRight := bounds.AboveUpper(n.Key)
	inRange := !skipLeft && !skipRight

	near, far := n.Left, n.Right
	skipNear, skipFar := skipLeft, skipRight
	if !leftToRight {
		near, far = n.Right, n.Left
		skipNear, skipFar = skipRight, skipLeft
	}

	if !skipNear {
		cont, err := t.walkRangeLink(ctx, near, acc, bounds, leftToRight, visit)
		if err != nil || !cont {
			return cont, err
		}
	}
	if inRange {
		cont, err := visit(n.Key, n.Value)
		if err != nil || !cont {
			return cont, err
		}
	}
	if !skipFar {
		return t.walkRangeLink(ctx, far, acc, bounds, leftToRight, visit)
	}
	return true, nil
}

// BatchEntry is one sorted-batch op target, resolved to a leaf insertion
// via the empty-subtree midpoint-build path.
type BatchEntry struct {
	Key, Value []byte
	Contrib    SumContribution
}

// BuildFromSorted constructs a perfectly balanced tree — height
// ceil(log2(n+1)) — from entries already sorted by key, via recursive
// midpoint selection. Used when applying a batch against an empty
// subtree.
func BuildFromSorted(fetch Fetch, cfg Config, entries []BatchEntry) (*Tree, error) {
	if !sort.SliceIsSorted(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 }) {
		return nil, fmt.Errorf("merk: BuildFromSorted requires sorted, deduplicated entries")
	}
	root := buildMidpoint(entries)
	return &Tree{root: root, fetch: fetch, cfg: cfg}, nil
}

func buildMidpoint(entries []BatchEntry) *Link {
	if len(entries) == 0 {
		return nil
	}
	mid := len(entries) / 2
	e := entries[mid]
	n := newLeaf(e.Key, e.Value, e.Contrib)
	n.Left = buildMidpoint(entries[:mid])
	n.Right = buildMidpoint(entries[mid+1:])
	n.refreshAggregates()
	return attach(n)
}

// Commit walks the dirty (Modified) subtree bottom-up, computing
// value_hash -> kv_hash -> node_hash for every stale node and writing
// committed records via put. Aggregates are already current from
// insert/delete; Commit only finalizes hashes and persists them.
func (t *Tree) Commit(ctx context.Context, put func(ctx context.Context, n *Node, acc *cost.OperationCost) error, acc *cost.OperationCost) error {
	root, err := t.commitLink(ctx, t.root, put, acc)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Tree) commitLink(ctx context.Context, link *Link, put func(context.Context, *Node, *cost.OperationCost) error, acc *cost.OperationCost) (*Link, error) {
	if link == nil {
		return nil, nil
	}
	if link.State == LinkLoaded || link.State == LinkReference {
		return link, nil
	}
	n := link.Child
	newLeft, err := t.commitLink(ctx, n.Left, put, acc)
	if err != nil {
		return nil, err
	}
	newRight, err := t.commitLink(ctx, n.Right, put, acc)
	if err != nil {
		return nil, err
	}
	n.Left, n.Right = newLeft, newRight

	if !n.hashDone {
		n.recomputeHashes()
		if acc != nil {
			acc.HashNode()
		}
	}
	hash := n.Hash()

	if err := put(ctx, n, acc); err != nil {
		return nil, err
	}
	return &Link{State: LinkLoaded, Hash: hash, Key: n.Key, Height: n.height(), Sum: n.Sum, Count: n.Count, BigSum: n.BigSum, Child: n}, nil
}
