// Package mmr implements GroveDB's Merkle Mountain Range: an append-only
// forest of perfect binary trees ("peaks"), one per set bit of the leaf
// count, bagged right-to-left into a single root. It satisfies
// grove/batch's Appender interface (so it plugs into a Batch's non-Merk
// append phase) and grove.NonMerkRootFunc (so its root can be bound into
// a MmrTree element's value_hash).
//
// Grounded on merkle/proof.go's recursive binary-split descent for proof
// generation, generalized from a fixed power-of-2-padded transaction tree
// to an MMR's post-order position arithmetic, plus the append-cascade and
// peak-bagging rules a Merkle Mountain Range defines on its own.
package mmr

import (
	"context"
	"encoding/binary"
	"math/bits"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Storage layout within a MmrTree element's own subtree prefix, all in
// storage.CFDefault: node hashes keyed 'm' ‖ position_u64_be, raw leaf
// values keyed 'v' ‖ leaf_index_u64_be, and the persisted leaf count
// under the fixed single-byte key 'L'.
const (
	nodePrefix  = 'm'
	valuePrefix = 'v'
)

var leafCountKey = []byte{'L'}

func nodeKey(pos uint64) []byte {
	k := make([]byte, 9)
	k[0] = nodePrefix
	binary.BigEndian.PutUint64(k[1:], pos)
	return k
}

func leafValueKey(idx uint64) []byte {
	k := make([]byte, 9)
	k[0] = valuePrefix
	binary.BigEndian.PutUint64(k[1:], idx)
	return k
}

// Size computes mmr_size = 2·leaves − popcount(leaves), the total node
// count (leaves plus internal merges) of an MMR holding leaves entries.
func Size(leaves uint64) uint64 {
	return 2*leaves - uint64(bits.OnesCount64(leaves))
}

func pctxFor(tx storage.Tx, path [][]byte) *storage.PrefixedContext {
	return storage.NewPrefixedContext(tx, grove.SubtreePrefix(path))
}

func readLeafCount(ctx context.Context, pctx *storage.PrefixedContext, acc *cost.OperationCost) (uint64, error) {
	raw, err := pctx.Get(ctx, storage.CFDefault, leafCountKey, acc)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, groveerr.Wrap(groveerr.ErrCorruptedData, "mmr: leaf count record has %d bytes, want 8", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func writeLeafCount(ctx context.Context, pctx *storage.PrefixedContext, leaves uint64, acc *cost.OperationCost) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], leaves)
	return pctx.Put(ctx, storage.CFDefault, leafCountKey, buf[:], acc)
}

func readNode(ctx context.Context, pctx *storage.PrefixedContext, pos uint64, acc *cost.OperationCost) (gvhash.Hash, error) {
	raw, err := pctx.Get(ctx, storage.CFDefault, nodeKey(pos), acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	if len(raw) != gvhash.Size {
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrCorruptedData, "mmr: node %d record has %d bytes, want %d", pos, len(raw), gvhash.Size)
	}
	var h gvhash.Hash
	copy(h[:], raw)
	return h, nil
}

func writeNode(ctx context.Context, pctx *storage.PrefixedContext, pos uint64, h gvhash.Hash, acc *cost.OperationCost) error {
	return pctx.Put(ctx, storage.CFDefault, nodeKey(pos), h.Bytes(), acc)
}

// appendOne appends a single value to the MMR holding leaves entries so
// far, writing the new leaf node, cascading merges up through however
// many trailing peaks the append absorbs, and returning the new leaf
// count (leaves+1).
func appendOne(ctx context.Context, pctx *storage.PrefixedContext, leaves uint64, leafIndex uint64, value []byte, acc *cost.OperationCost) (uint64, error) {
	pos := Size(leaves)
	leafHash := gvhash.RawHash(value)
	if acc != nil {
		acc.HashNode()
	}
	if err := writeNode(ctx, pctx, pos, leafHash, acc); err != nil {
		return 0, err
	}
	if err := pctx.Put(ctx, storage.CFDefault, leafValueKey(leafIndex), value, acc); err != nil {
		return 0, err
	}

	cascades := bits.TrailingZeros64(^leaves)
	current := pos
	currentHash := leafHash
	for i := 0; i < cascades; i++ {
		leftSiblingPos := current - (uint64(1)<<uint(i+1) - 1)
		leftHash, err := readNode(ctx, pctx, leftSiblingPos, acc)
		if err != nil {
			return 0, err
		}
		parentPos := current + 1
		parentHash := gvhash.CombineHash(leftHash, currentHash)
		if acc != nil {
			acc.HashNode()
		}
		if err := writeNode(ctx, pctx, parentPos, parentHash, acc); err != nil {
			return 0, err
		}
		current = parentPos
		currentHash = parentHash
	}
	return leaves + 1, nil
}

// peakSpec describes one peak of the mountain range: its node position,
// height, and the half-open range of leaf indices it covers.
type peakSpec struct {
	pos       uint64
	height    uint
	leafStart uint64
	leafCount uint64
}

// peakSpecs enumerates leaves's peaks from tallest to shortest (MSB to
// LSB of leaves's bits), the order peak bagging and proof generation
// both rely on.
func peakSpecs(leaves uint64) []peakSpec {
	if leaves == 0 {
		return nil
	}
	var specs []peakSpec
	acc := int64(-1)
	leafStart := uint64(0)
	for h := 63; h >= 0; h-- {
		bit := uint(h)
		if leaves&(uint64(1)<<bit) == 0 {
			continue
		}
		acc += int64(uint64(1)<<(bit+1)) - 1
		count := uint64(1) << bit
		specs = append(specs, peakSpec{pos: uint64(acc), height: bit, leafStart: leafStart, leafCount: count})
		leafStart += count
	}
	return specs
}

// bagPeaks folds peak hashes right-to-left: root = fold_right(peaks,
// blake3(l ‖ acc)), with a single peak returning itself.
func bagPeaks(hashes []gvhash.Hash, acc *cost.OperationCost) gvhash.Hash {
	if len(hashes) == 0 {
		return gvhash.Zero
	}
	cur := hashes[len(hashes)-1]
	for i := len(hashes) - 2; i >= 0; i-- {
		cur = gvhash.CombineHash(hashes[i], cur)
		if acc != nil {
			acc.HashNode()
		}
	}
	return cur
}

// RootHash computes the MMR's current bagged root, or nil if it holds no
// leaves yet. It satisfies grove.NonMerkRootFunc.
func RootHash(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*gvhash.Hash, error) {
	pctx := pctxFor(tx, path)
	leaves, err := readLeafCount(ctx, pctx, acc)
	if err != nil {
		return nil, err
	}
	if leaves == 0 {
		return nil, nil
	}
	specs := peakSpecs(leaves)
	hashes := make([]gvhash.Hash, len(specs))
	for i, s := range specs {
		h, err := readNode(ctx, pctx, s.pos, acc)
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}
	root := bagPeaks(hashes, acc)
	return &root, nil
}

// Appender implements batch.Appender for MmrTree elements.
type Appender struct{}

// Tag returns element.TagMmrTree.
func (Appender) Tag() element.Tag { return element.TagMmrTree }

// Append applies values, in order, to the MMR rooted at path, returning
// the updated owning element (carrying the new mmr_size). The MMR
// carries no fixed shape parameters, so existing is unused.
func (Appender) Append(ctx context.Context, tx storage.Tx, path [][]byte, existing element.Element, values [][]byte, acc *cost.OperationCost) (element.Element, error) {
	pctx := pctxFor(tx, path)
	leaves, err := readLeafCount(ctx, pctx, acc)
	if err != nil {
		return element.Element{}, err
	}
	for _, v := range values {
		leaves, err = appendOne(ctx, pctx, leaves, leaves, v, acc)
		if err != nil {
			return element.Element{}, err
		}
	}
	if err := writeLeafCount(ctx, pctx, leaves, acc); err != nil {
		return element.Element{}, err
	}
	return element.Element{Tag: element.TagMmrTree, MmrSize: Size(leaves)}, nil
}
