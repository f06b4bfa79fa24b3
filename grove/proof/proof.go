// Package proof assembles and verifies GroveDB's multi-layer grove
// proofs: a recursive { root_layer, children: [(key, Proof)] } shape
// where most layers are a single Merk subtree's stack-machine proof
// (merk/proof) and a layer may instead be one of the non-Merk trees'
// own proof formats (nonmerk/mmr, nonmerk/bulkappend, nonmerk/dense) —
// disclosed in full when a caller asks to additionally prove a non-Merk
// leaf's own contents, not just its presence as a keyed element.
// Version V0 names are used when every layer encountered is Merk; V1
// is used as soon as one layer is a non-Merk kind.
//
// Grounded on merkle/proof.go's BuildBlockMerkleProof: proving a leaf
// within a forest of independently-rooted subtree proofs by recursing
// into whichever subtree covers it and composing the per-subtree proof
// results — generalized here from a flat forest of same-shaped trees
// into a hierarchy of differently-shaped ones (Merk subtrees nesting
// Merk or non-Merk subtrees to arbitrary depth).
package proof

import (
	"github.com/dashpay/grovedb-sub006/gvhash"
	merkproof "github.com/dashpay/grovedb-sub006/merk/proof"
	"github.com/dashpay/grovedb-sub006/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-sub006/nonmerk/dense"
	"github.com/dashpay/grovedb-sub006/nonmerk/mmr"
)

// Version names a grove proof's wire shape.
type Version uint8

const (
	V0 Version = iota
	V1
)

// LayerKind discriminates what a Layer's bytes encode.
type LayerKind uint8

const (
	LayerMerk LayerKind = iota
	LayerMMR
	LayerBulkAppendTree
	LayerDenseTree
	LayerCommitmentTree
)

// MaxLayerBytes is the upper bound on one layer's serialized size;
// implementations must reject anything larger before allocating.
const MaxLayerBytes = 100 * 1024 * 1024

// Layer is one node of the proof tree: a Merk subtree's stack-machine
// ops plus nested child layers (for Kind == LayerMerk), or one of the
// non-Merk trees' own proof structures as a leaf (any other Kind).
type Layer struct {
	Kind LayerKind

	MerkOps  []merkproof.Op
	Children []ChildLayer

	MmrProof       *mmr.Proof
	BulkProof      *bulkappend.Proof
	DenseProof     *dense.Proof
	CommitmentRoot *gvhash.Hash      // LayerCommitmentTree: the 32-byte external-hash root
	CommitmentBulk *bulkappend.Proof // LayerCommitmentTree: embedded bulk-append proof
}

// ChildLayer pairs the key a nested layer was reached through (within
// its parent Merk subtree) with that layer's proof.
type ChildLayer struct {
	Key   []byte
	Layer Layer
}

// Proof is a complete grove proof: a root layer plus, recursively, a
// nested layer for every key the caller asked to disclose further.
type Proof struct {
	Version Version
	Root    Layer
}

// NonMerkRequest names which non-Merk leaf at a given path+key the
// builder should additionally disclose a structural proof for, beyond
// the value_hash binding its owning Merk layer already commits to.
type NonMerkRequest struct {
	// Positions selects the leaf of an MmrTree (exactly one position) or
	// the positions of a DenseFixedSizeTree leaf.
	Positions []uint64
	// RangeStart/RangeEnd select a contiguous range for a
	// BulkAppendTree or CommitmentTree leaf (spec.md's bulk-range proof shape).
	RangeStart, RangeEnd uint64
}

// RequestKey builds the map key a caller of Build must use in its
// NonMerkRequest map to name the non-Merk leaf at (path, key) — exported
// since requests is keyed by this exact canonicalization and callers
// outside this package have no other way to produce it.
func RequestKey(path [][]byte, key []byte) string { return requestKey(path, key) }

// requestKey canonicalizes (path, key) into a map key unambiguous
// across segment-length variation (a plain separator-joined string
// could alias two different (path,key) pairs that happen to share
// byte content across a boundary).
func requestKey(path [][]byte, key []byte) string {
	buf := make([]byte, 0, 64)
	for _, seg := range path {
		buf = appendLenPrefixed(buf, seg)
	}
	buf = appendLenPrefixed(buf, key)
	return string(buf)
}

func appendLenPrefixed(buf, seg []byte) []byte {
	var lenBuf [8]byte
	n := uint64(len(seg))
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(n >> (56 - 8*i))
	}
	buf = append(buf, lenBuf[:]...)
	return append(buf, seg...)
}

// hasNonMerkLayer reports whether l or any of its descendants is a
// non-Merk kind, the rule that decides V0 vs V1.
func hasNonMerkLayer(l Layer) bool {
	if l.Kind != LayerMerk {
		return true
	}
	for _, c := range l.Children {
		if hasNonMerkLayer(c.Layer) {
			return true
		}
	}
	return false
}
