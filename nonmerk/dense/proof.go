package dense

import (
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Proof authenticates a set of positions within a dense tree of Count
// filled entries and the given Height: Entries carries the disclosed
// value at every position on the path from the root to a proved
// position (so the verifier can recurse through it); Siblings carries
// the precomputed subtree-root hash at every branch the proof does not
// need to open further.
type Proof struct {
	Count    uint64
	Height   uint8
	Entries  map[uint64][]byte
	Siblings map[uint64]gvhash.Hash
}

// ancestorOrSelf reports whether pos is target or an ancestor of target.
func ancestorOrSelf(pos, target uint64) bool {
	cur := target
	for {
		if cur == pos {
			return true
		}
		if cur == 0 {
			return false
		}
		cur = (cur - 1) / 2
	}
}

// ProveRange builds a Proof disclosing the values at the positions listed
// and at each of their ancestors, plus enough sibling hashes to recompute
// the root around them.
func ProveRange(ctx context.Context, tx storage.Tx, path [][]byte, positions []uint64, acc *cost.OperationCost) (Proof, error) {
	pctx := pctxFor(tx, path)
	count, err := readCount(ctx, pctx, acc)
	if err != nil {
		return Proof{}, err
	}
	proof := Proof{Count: count, Entries: make(map[uint64][]byte), Siblings: make(map[uint64]gvhash.Hash)}
	if count == 0 {
		return proof, nil
	}
	if err := buildProof(ctx, pctx, 0, count, positions, &proof, acc); err != nil {
		return Proof{}, err
	}
	return proof, nil
}

func buildProof(ctx context.Context, pctx *storage.PrefixedContext, pos, count uint64, requested []uint64, proof *Proof, acc *cost.OperationCost) error {
	if pos >= count {
		return nil
	}
	needed := false
	for _, r := range requested {
		if ancestorOrSelf(pos, r) {
			needed = true
			break
		}
	}
	if !needed {
		h, err := hashAt(ctx, pctx, pos, count, acc)
		if err != nil {
			return err
		}
		proof.Siblings[pos] = h
		return nil
	}
	value, err := readValue(ctx, pctx, pos, acc)
	if err != nil {
		return err
	}
	if value == nil {
		return groveerr.Wrap(groveerr.ErrCorruptedData, "dense: position %d within count %d has no stored value", pos, count)
	}
	proof.Entries[pos] = append([]byte{}, value...)
	if err := buildProof(ctx, pctx, left(pos), count, requested, proof, acc); err != nil {
		return err
	}
	return buildProof(ctx, pctx, right(pos), count, requested, proof, acc)
}

// RootFromEntries recomputes a dense tree's root purely from an
// in-memory set of values (no storage access), for verifiers that hold
// a full blob of entries — e.g. a sealed bulk-append chunk — rather
// than a proof's partial disclosure.
func RootFromEntries(count uint64, entries map[uint64][]byte, acc *cost.OperationCost) (gvhash.Hash, error) {
	if count == 0 {
		return gvhash.Zero, nil
	}
	proof := Proof{Count: count, Entries: entries, Siblings: map[uint64]gvhash.Hash{}}
	return verifyAt(proof, 0, acc)
}

// RootFromProof validates proof's internal structure (height/count
// bounds, no sibling hash at an ancestor of a disclosed entry — which
// would let a forged hash stand in for authenticated structure) and
// recomputes the root it attests to.
func RootFromProof(proof Proof, acc *cost.OperationCost) (gvhash.Hash, error) {
	if proof.Height == 0 || proof.Height > MaxHeight {
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "dense: height %d out of range [1,%d]", proof.Height, MaxHeight)
	}
	if proof.Count > Capacity(proof.Height) {
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "dense: count %d exceeds capacity %d for height %d", proof.Count, Capacity(proof.Height), proof.Height)
	}
	for sibPos := range proof.Siblings {
		for entryPos := range proof.Entries {
			if entryPos != sibPos && ancestorOrSelf(sibPos, entryPos) {
				return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "dense: sibling hash at %d is an ancestor of disclosed position %d", sibPos, entryPos)
			}
		}
	}
	if proof.Count == 0 {
		return gvhash.Zero, nil
	}
	return verifyAt(proof, 0, acc)
}

// Verify reports whether proof recomputes to root.
func Verify(proof Proof, root gvhash.Hash, acc *cost.OperationCost) (bool, error) {
	got, err := RootFromProof(proof, acc)
	if err != nil {
		return false, err
	}
	return got == root, nil
}

func verifyAt(proof Proof, pos uint64, acc *cost.OperationCost) (gvhash.Hash, error) {
	if pos >= proof.Count {
		return gvhash.Zero, nil
	}
	if h, ok := proof.Siblings[pos]; ok {
		return h, nil
	}
	value, ok := proof.Entries[pos]
	if !ok {
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "dense: proof has no record for required position %d", pos)
	}
	leftHash, err := verifyAt(proof, left(pos), acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	rightHash, err := verifyAt(proof, right(pos), acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	valueHash := gvhash.RawHash(value)
	if acc != nil {
		acc.HashNode()
		acc.HashNode()
	}
	return gvhash.NodeHash(valueHash, &leftHash, &rightHash), nil
}
