// Package element implements GroveDB's tagged Element variant, its wire
// encoding, and the seven reference forms. The encoding follows
// indexnode.go's discipline: an explicit tag/flags byte scheme with
// big-endian multi-byte integers and strict trailing-byte rejection on
// decode.
package element

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/dashpay/grovedb-sub006/groveerr"
)

// Tag identifies one of the fifteen Element variants.
type Tag uint8

const (
	TagItem Tag = iota
	TagReference
	TagTree
	TagSumItem
	TagSumTree
	TagBigSumTree
	TagCountTree
	TagCountSumTree
	TagItemWithSumItem
	TagProvableCountTree
	TagProvableCountSumTree
	TagCommitmentTree
	TagMmrTree
	TagBulkAppendTree
	TagDenseFixedSizeTree
	tagCount // sentinel, not a valid tag
)

func (t Tag) String() string {
	names := [...]string{
		"Item", "Reference", "Tree", "SumItem", "SumTree", "BigSumTree",
		"CountTree", "CountSumTree", "ItemWithSumItem", "ProvableCountTree",
		"ProvableCountSumTree", "CommitmentTree", "MmrTree", "BulkAppendTree",
		"DenseFixedSizeTree",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("Tag(%d)", t)
}

// Valid reports whether t is one of the 15 defined tags.
func (t Tag) Valid() bool { return t < tagCount }

// IsTree reports whether t owns a child Merk subtree addressed by a root
// key (Tree, SumTree, BigSumTree, CountTree, CountSumTree,
// ProvableCountTree, ProvableCountSumTree).
func (t Tag) IsTree() bool {
	switch t {
	case TagTree, TagSumTree, TagBigSumTree, TagCountTree, TagCountSumTree,
		TagProvableCountTree, TagProvableCountSumTree:
		return true
	}
	return false
}

// IsNonMerkTree reports whether t owns a non-Merk specialized append-only
// structure (CommitmentTree, MmrTree, BulkAppendTree, DenseFixedSizeTree).
func (t Tag) IsNonMerkTree() bool {
	switch t {
	case TagCommitmentTree, TagMmrTree, TagBulkAppendTree, TagDenseFixedSizeTree:
		return true
	}
	return false
}

// ReferenceForm is one of the seven ways a Reference element can name its
// target.
type ReferenceForm interface {
	isReferenceForm()
	// Resolve computes the absolute path this form names, relative to
	// currentPath (the path of the element carrying the Reference).
	Resolve(currentPath [][]byte) ([][]byte, error)
}

type Absolute struct{ Path [][]byte }
type UpstreamRootHeight struct {
	N      uint32
	Suffix [][]byte
}
type UpstreamRootHeightWithParent struct {
	N      uint32
	Suffix [][]byte
}
type UpstreamFromElement struct {
	N      uint32
	Suffix [][]byte
}
type Cousin struct{ Key []byte }
type RemovedCousin struct{ Path [][]byte }
type Sibling struct{ Key []byte }

func (Absolute) isReferenceForm()                     {}
func (UpstreamRootHeight) isReferenceForm()           {}
func (UpstreamRootHeightWithParent) isReferenceForm() {}
func (UpstreamFromElement) isReferenceForm()          {}
func (Cousin) isReferenceForm()                       {}
func (RemovedCousin) isReferenceForm()                {}
func (Sibling) isReferenceForm()                      {}

func (a Absolute) Resolve(_ [][]byte) ([][]byte, error) {
	return clonePath(a.Path), nil
}

func (u UpstreamRootHeight) Resolve(current [][]byte) ([][]byte, error) {
	if int(u.N) > len(current) {
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "UpstreamRootHeight: n=%d exceeds path length %d", u.N, len(current))
	}
	out := clonePath(current[:u.N])
	return append(out, clonePath(u.Suffix)...), nil
}

func (u UpstreamRootHeightWithParent) Resolve(current [][]byte) ([][]byte, error) {
	if int(u.N) > len(current) || len(current) == 0 {
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "UpstreamRootHeightWithParent: n=%d invalid for path length %d", u.N, len(current))
	}
	out := clonePath(current[:u.N])
	out = append(out, clonePath(u.Suffix)...)
	out = append(out, current[len(current)-1])
	return out, nil
}

func (u UpstreamFromElement) Resolve(current [][]byte) ([][]byte, error) {
	if int(u.N) > len(current) {
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "UpstreamFromElement: n=%d exceeds path length %d", u.N, len(current))
	}
	keep := len(current) - int(u.N)
	out := clonePath(current[:keep])
	return append(out, clonePath(u.Suffix)...), nil
}

func (c Cousin) Resolve(current [][]byte) ([][]byte, error) {
	if len(current) < 2 {
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "Cousin: path too short (%d segments)", len(current))
	}
	out := clonePath(current[:len(current)-2])
	out = append(out, c.Key)
	return out, nil
}

func (r RemovedCousin) Resolve(current [][]byte) ([][]byte, error) {
	if len(current) < 2 {
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "RemovedCousin: path too short (%d segments)", len(current))
	}
	out := clonePath(current[:len(current)-2])
	return append(out, clonePath(r.Path)...), nil
}

func (s Sibling) Resolve(current [][]byte) ([][]byte, error) {
	if len(current) == 0 {
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "Sibling: empty path")
	}
	out := clonePath(current[:len(current)-1])
	out = append(out, s.Key)
	return out, nil
}

func clonePath(p [][]byte) [][]byte {
	out := make([][]byte, len(p))
	for i, seg := range p {
		cp := make([]byte, len(seg))
		copy(cp, seg)
		out[i] = cp
	}
	return out
}

// DefaultMaxHop is the default reference hop budget.
const DefaultMaxHop = 10

// Element is GroveDB's tagged variant, stored as the value
// of a Merk key.
type Element struct {
	Tag   Tag
	Flags []byte // optional length-prefixed flags byte string

	// TagItem / TagItemWithSumItem
	Bytes []byte
	// TagSumItem / TagItemWithSumItem
	SumItemValue int64
	// TagReference
	RefForm ReferenceForm
	MaxHop  uint32
	// Tree-owning variants (Tag.IsTree())
	ChildRootKey []byte // nil if the child subtree is empty
	// TagSumTree
	Sum int64
	// TagBigSumTree
	BigSum *big.Int
	// TagCountTree / TagCountSumTree / TagProvableCountTree / TagProvableCountSumTree
	Count uint64
	// TagCountSumTree / TagProvableCountSumTree additionally uses Sum
	// TagCommitmentTree
	CommitmentCount uint64
	ChunkPower      uint8
	// TagMmrTree
	MmrSize uint64
	// TagBulkAppendTree additionally uses CommitmentCount-shaped fields:
	BulkCount      uint64
	BulkChunkPower uint8
	// TagDenseFixedSizeTree
	DenseCount  uint16
	DenseHeight uint8
}

// NewItem constructs an Item element.
func NewItem(data []byte) Element { return Element{Tag: TagItem, Bytes: data} }

// NewSumItem constructs a SumItem element.
func NewSumItem(v int64) Element { return Element{Tag: TagSumItem, SumItemValue: v} }

// NewReference constructs a Reference element with the given form and hop
// limit (0 means DefaultMaxHop).
func NewReference(form ReferenceForm, maxHop uint32) Element {
	if maxHop == 0 {
		maxHop = DefaultMaxHop
	}
	return Element{Tag: TagReference, RefForm: form, MaxHop: maxHop}
}

// NewTree constructs an empty Tree element (no child root key yet).
func NewTree() Element { return Element{Tag: TagTree} }

// IsTreeLike reports whether e owns a child Merk subtree.
func (e Element) IsTreeLike() bool { return e.Tag.IsTree() }

// HasChild reports whether a tree-like element currently has a non-empty
// child subtree.
func (e Element) HasChild() bool { return e.Tag.IsTree() && len(e.ChildRootKey) > 0 }

// AggregateSum returns the aggregate i64 sum this element contributes to
// an ancestor SumTree/CountSumTree, for SumItem/ItemWithSumItem (their own
// value) and SumTree/CountSumTree/ProvableCountSumTree (their subtree Sum)
// elements (0 otherwise).
func (e Element) AggregateSum() int64 {
	switch e.Tag {
	case TagSumItem, TagItemWithSumItem:
		return e.SumItemValue
	case TagSumTree, TagCountSumTree, TagProvableCountSumTree:
		return e.Sum
	}
	return 0
}

// AggregateCount returns the aggregate count this element contributes to
// an ancestor CountTree/CountSumTree (1 for any item-like leaf, its own
// Count for a nested count tree).
func (e Element) AggregateCount() uint64 {
	switch e.Tag {
	case TagCountTree, TagCountSumTree, TagProvableCountTree, TagProvableCountSumTree:
		return e.Count
	case TagItem, TagSumItem, TagItemWithSumItem:
		return 1
	}
	return 0
}

// AggregateBigSum returns the i128 sum this element contributes to an
// ancestor BigSumTree: a SumItem/ItemWithSumItem's i64 value widened, a
// nested SumTree's already-folded i64 sum widened, or a nested
// BigSumTree's own folded i128 sum carried through unchanged. Zero
// (never nil) for anything else, so callers can add the result directly.
func (e Element) AggregateBigSum() *big.Int {
	switch e.Tag {
	case TagSumItem, TagItemWithSumItem:
		return big.NewInt(e.SumItemValue)
	case TagSumTree, TagCountSumTree, TagProvableCountSumTree:
		return big.NewInt(e.Sum)
	case TagBigSumTree:
		if e.BigSum == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Set(e.BigSum)
	}
	return big.NewInt(0)
}

func binaryUint32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func binaryUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func binaryInt64(v int64) []byte {
	return binaryUint64(uint64(v))
}
