package merk

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/gvhash"
)

// LinkState is one of the four states a child pointer can be in: an
// unfetched on-disk Reference, a Modified link whose hash is stale, an
// Uncommitted link whose hash is fresh but not yet written to storage,
// or a Loaded link mirroring committed on-disk state exactly.
type LinkState uint8

const (
	LinkReference LinkState = iota
	LinkModified
	LinkUncommitted
	LinkLoaded
)

func (s LinkState) String() string {
	switch s {
	case LinkReference:
		return "Reference"
	case LinkModified:
		return "Modified"
	case LinkUncommitted:
		return "Uncommitted"
	case LinkLoaded:
		return "Loaded"
	default:
		return "Unknown"
	}
}

// Link is a child pointer: either a lazily-loadable reference to an
// on-disk node, or an in-memory child awaiting (re)hash and commit.
type Link struct {
	State  LinkState
	Hash   gvhash.Hash
	Key    []byte // child's key, used to address it in storage
	Height uint8
	Sum    int64
	Count  uint64
	BigSum *big.Int
	Child  *Node // nil only while State == LinkReference and unfetched
}

func linkFor(n *Node) *Link {
	if n == nil {
		return nil
	}
	return &Link{
		State:  LinkModified,
		Key:    n.Key,
		Height: n.height(),
		Sum:    n.Sum,
		Count:  n.Count,
		BigSum: n.BigSum,
		Child:  n,
	}
}

// Fetch loads the node stored at key. Implementations come in three
// flavors: the real storage-backed fetch, a panicking stub
// for tests that must never touch I/O, and a scripted mock.
type Fetch func(ctx context.Context, key []byte, acc *cost.OperationCost) (*Node, error)

// PanickingFetch returns a Fetch that panics if ever invoked, for tests
// asserting a code path never triggers lazy loading.
func PanickingFetch() Fetch {
	return func(_ context.Context, key []byte, _ *cost.OperationCost) (*Node, error) {
		panic(fmt.Sprintf("merk: unexpected fetch of key %x", key))
	}
}

// detach resolves link into a loaded *Node, fetching from storage if
// necessary. A nil link yields (nil, nil).
func detach(ctx context.Context, link *Link, fetch Fetch, acc *cost.OperationCost) (*Node, error) {
	if link == nil {
		return nil, nil
	}
	if link.Child != nil {
		return link.Child, nil
	}
	n, err := fetch(ctx, link.Key, acc)
	if err != nil {
		return nil, fmt.Errorf("merk: detach fetch %x: %w", link.Key, err)
	}
	link.Child = n
	link.State = LinkLoaded
	return n, nil
}

// FetchNode resolves link into a loaded *Node, fetching from storage via
// fetch if necessary. Exported so merk/proof can walk an arbitrary
// (possibly partially unloaded) tree without reimplementing lazy load.
func FetchNode(ctx context.Context, link *Link, fetch Fetch, acc *cost.OperationCost) (*Node, error) {
	return detach(ctx, link, fetch, acc)
}

// attach installs child as the link on the given side, always
// producing a Modified link: the parent-child relationship changed, so
// the parent's hash is now stale regardless of whether child itself
// changed.
func attach(child *Node) *Link {
	return linkFor(child)
}

// prune converts a Loaded link back into an unfetched Reference,
// releasing the in-memory subtree while preserving hash, key and
// height — bounding working-set size for very large trees.
func prune(link *Link) *Link {
	if link == nil || link.State != LinkLoaded {
		return link
	}
	return &Link{State: LinkReference, Hash: link.Hash, Key: link.Key, Height: link.Height, Sum: link.Sum, Count: link.Count, BigSum: link.BigSum}
}
