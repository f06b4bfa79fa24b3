package proof

import (
	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	merkproof "github.com/dashpay/grovedb-sub006/merk/proof"
	"github.com/dashpay/grovedb-sub006/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-sub006/nonmerk/commitment"
	"github.com/dashpay/grovedb-sub006/nonmerk/dense"
	"github.com/dashpay/grovedb-sub006/nonmerk/mmr"
)

// Verify checks p's internal structure — including that its declared
// Version matches what its layers actually contain — and returns the
// root hash it attests to. The caller compares the result against the
// subtree's independently known root.
func Verify(p *Proof, acc *cost.OperationCost) (gvhash.Hash, error) {
	wantVersion := V0
	if hasNonMerkLayer(p.Root) {
		wantVersion = V1
	}
	if p.Version != wantVersion {
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: declared version %d does not match its layer contents", p.Version)
	}
	return VerifyLayer(p.Root, acc)
}

// VerifyLayer recomputes the root hash one layer of a grove proof
// attests to: a Merk subtree's stack-machine replay (cross-checking
// every disclosed tree-owning/non-Merk key's value_hash against its
// nested child layer's own recomputed root, where one is attached) for
// Kind == LayerMerk, or the corresponding non-Merk tree's root
// recomputation otherwise.
func VerifyLayer(layer Layer, acc *cost.OperationCost) (gvhash.Hash, error) {
	switch layer.Kind {
	case LayerMerk:
		return verifyMerkLayer(layer, acc)

	case LayerMMR:
		if layer.MmrProof == nil {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: mmr layer missing its proof")
		}
		return mmr.RootFromProof(*layer.MmrProof, acc), nil

	case LayerDenseTree:
		if layer.DenseProof == nil {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: dense layer missing its proof")
		}
		return dense.RootFromProof(*layer.DenseProof, acc)

	case LayerBulkAppendTree:
		if layer.BulkProof == nil {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: bulk append layer missing its proof")
		}
		return bulkappend.RootFromProof(*layer.BulkProof, acc)

	case LayerCommitmentTree:
		if layer.CommitmentBulk == nil || layer.CommitmentRoot == nil {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: commitment layer missing its proof")
		}
		bulkRoot, err := bulkappend.RootFromProof(*layer.CommitmentBulk, acc)
		if err != nil {
			return gvhash.Hash{}, err
		}
		want := commitment.ExternalHash(bulkRoot, acc)
		if want != *layer.CommitmentRoot {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: commitment layer's disclosed root does not match its embedded bulk proof")
		}
		return want, nil

	default:
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: unknown layer kind %d", layer.Kind)
	}
}

// extractQueried returns every disclosed queried-node in ops (the Push
// variants a query actually targeted, not the boundary KVDigest nodes
// revealed only to fix the range's edges).
func extractQueried(ops []merkproof.Op) []*merkproof.Node {
	var out []*merkproof.Node
	for i := range ops {
		n := ops[i].Node
		if n == nil {
			continue
		}
		if n.Kind == merkproof.KindKVValueHash || n.Kind == merkproof.KindKVValueHashFeatureType {
			out = append(out, n)
		}
	}
	return out
}

// verifyMerkLayer replays layer.MerkOps to its root hash, then
// independently re-derives every disclosed key's value_hash and checks
// it against what the ops trusted, rather than trusting the prover's
// disclosed ValueHash outright: a plain leaf's value_hash must equal
// value_hash(raw), and a tree-owning or non-Merk key's value_hash must
// equal combine_hash(value_hash(raw), childRoot), where childRoot is
// the zero hash for a Tree with no child yet, or recomputed from the
// matching nested ChildLayer when one is attached. A tree-owning key
// with no nested ChildLayer (the caller did not ask to disclose it
// further) cannot be checked at this layer and is left untouched —
// merkproof.Verify already proved its on-chain committed bytes are
// internally consistent with the root, just not what its child commits
// to.
func verifyMerkLayer(layer Layer, acc *cost.OperationCost) (gvhash.Hash, error) {
	root, err := merkproof.Verify(layer.MerkOps, nil)
	if err != nil {
		return gvhash.Hash{}, err
	}

	children := make(map[string]Layer, len(layer.Children))
	for _, c := range layer.Children {
		children[string(c.Key)] = c.Layer
	}

	for _, n := range extractQueried(layer.MerkOps) {
		el, err := element.Unmarshal(n.Value)
		if err != nil {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: disclosed value at key %x does not decode: %v", n.Key, err)
		}

		if !el.Tag.IsTree() && !el.Tag.IsNonMerkTree() {
			if want := gvhash.ValueHash(n.Value); want != n.ValueHash {
				return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: value_hash mismatch at key %x", n.Key)
			}
			continue
		}

		if el.Tag.IsTree() && !el.HasChild() {
			if want := gvhash.SubtreeValueHash(n.Value, gvhash.Zero); want != n.ValueHash {
				return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: empty-child binding mismatch at key %x", n.Key)
			}
			continue
		}

		child, ok := children[string(n.Key)]
		if !ok {
			continue
		}
		childRoot, err := VerifyLayer(child, acc)
		if err != nil {
			return gvhash.Hash{}, err
		}
		if want := gvhash.SubtreeValueHash(n.Value, childRoot); want != n.ValueHash {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "proof: child binding mismatch at key %x", n.Key)
		}
	}

	return root, nil
}
