package mmr

import (
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Sibling is one hash emitted while climbing from a proved leaf to its
// peak: Left reports whether the sibling was the left child (so the
// node on the climbed path was the right child, and vice versa) — the
// order the two hashes must combine in at verification time.
type Sibling struct {
	Hash gvhash.Hash
	Left bool
}

// Proof is an inclusion proof for a single leaf: enough sibling hashes
// to recompute its peak, plus the other peaks' hashes (in their
// tallest-to-shortest bagging order, with OwnPeakIndex marking where the
// proved leaf's own peak belongs) to recompute the bagged root.
type Proof struct {
	MmrSize      uint64
	LeafIndex    uint64
	Value        []byte
	Siblings     []Sibling // bottom-up: nearest the leaf first
	OtherPeaks   []gvhash.Hash
	OwnPeakIndex int
}

// ProveLeaf builds an inclusion proof for the leafIndex'th (0-based)
// value appended to the MMR rooted at path.
func ProveLeaf(ctx context.Context, tx storage.Tx, path [][]byte, leafIndex uint64, acc *cost.OperationCost) (Proof, error) {
	pctx := pctxFor(tx, path)
	leaves, err := readLeafCount(ctx, pctx, acc)
	if err != nil {
		return Proof{}, err
	}
	if leafIndex >= leaves {
		return Proof{}, groveerr.Wrap(groveerr.ErrPathNotFound, "mmr: leaf index %d out of range (%d leaves)", leafIndex, leaves)
	}
	value, err := pctx.Get(ctx, storage.CFDefault, leafValueKey(leafIndex), acc)
	if err != nil {
		return Proof{}, err
	}
	if value == nil {
		return Proof{}, groveerr.Wrap(groveerr.ErrCorruptedData, "mmr: leaf %d value record missing", leafIndex)
	}

	specs := peakSpecs(leaves)
	ownIdx := -1
	for i, s := range specs {
		if leafIndex >= s.leafStart && leafIndex < s.leafStart+s.leafCount {
			ownIdx = i
			break
		}
	}
	if ownIdx < 0 {
		return Proof{}, groveerr.Wrap(groveerr.ErrCorruptedData, "mmr: leaf %d not covered by any peak", leafIndex)
	}
	own := specs[ownIdx]

	var siblings []Sibling
	if err := descend(ctx, pctx, own.pos, own.height, leafIndex-own.leafStart, &siblings, acc); err != nil {
		return Proof{}, err
	}

	otherPeaks := make([]gvhash.Hash, 0, len(specs)-1)
	for i, s := range specs {
		if i == ownIdx {
			continue
		}
		h, err := readNode(ctx, pctx, s.pos, acc)
		if err != nil {
			return Proof{}, err
		}
		otherPeaks = append(otherPeaks, h)
	}

	return Proof{
		MmrSize:      Size(leaves),
		LeafIndex:    leafIndex,
		Value:        append([]byte{}, value...),
		Siblings:     siblings,
		OtherPeaks:   otherPeaks,
		OwnPeakIndex: ownIdx,
	}, nil
}

// descend walks from (pos, height) down to the leaf at local (an offset
// within this peak's own leaf range), appending the sibling hash at
// every level bottom-up — modeled on merkle/proof.go's buildProof
// recursive mid-split, adapted from a fixed power-of-2 tree to an MMR
// peak's post-order position arithmetic (leftTop = top-2^height,
// rightTop = top-1).
func descend(ctx context.Context, pctx *storage.PrefixedContext, pos uint64, height uint, local uint64, siblings *[]Sibling, acc *cost.OperationCost) error {
	if height == 0 {
		return nil
	}
	half := uint64(1) << (height - 1)
	leftTop := pos - (uint64(1) << height)
	rightTop := pos - 1

	if local < half {
		if err := descend(ctx, pctx, leftTop, height-1, local, siblings, acc); err != nil {
			return err
		}
		rh, err := readNode(ctx, pctx, rightTop, acc)
		if err != nil {
			return err
		}
		*siblings = append(*siblings, Sibling{Hash: rh, Left: false})
		return nil
	}
	if err := descend(ctx, pctx, rightTop, height-1, local-half, siblings, acc); err != nil {
		return err
	}
	lh, err := readNode(ctx, pctx, leftTop, acc)
	if err != nil {
		return err
	}
	*siblings = append(*siblings, Sibling{Hash: lh, Left: true})
	return nil
}

// RootFromProof recomputes the bagged root p attests to: leaf hash
// climbed through p.Siblings to its peak, spliced back into p.OtherPeaks
// at p.OwnPeakIndex, then bagged.
func RootFromProof(p Proof, acc *cost.OperationCost) gvhash.Hash {
	cur := gvhash.RawHash(p.Value)
	if acc != nil {
		acc.HashNode()
	}
	for _, s := range p.Siblings {
		if s.Left {
			cur = gvhash.CombineHash(s.Hash, cur)
		} else {
			cur = gvhash.CombineHash(cur, s.Hash)
		}
		if acc != nil {
			acc.HashNode()
		}
	}

	peaks := make([]gvhash.Hash, len(p.OtherPeaks)+1)
	copy(peaks, p.OtherPeaks[:p.OwnPeakIndex])
	peaks[p.OwnPeakIndex] = cur
	copy(peaks[p.OwnPeakIndex+1:], p.OtherPeaks[p.OwnPeakIndex:])

	return bagPeaks(peaks, acc)
}

// VerifyLeaf reports whether p's recomputed root matches root.
func VerifyLeaf(p Proof, root gvhash.Hash, acc *cost.OperationCost) bool {
	return RootFromProof(p, acc) == root
}
