// Package dense implements GroveDB's fixed-height dense tree: a complete
// binary tree of height h ∈ [1,16] (capacity 2^h−1), values stored at
// every filled position in level order, appended left-to-right with no
// rebalancing. The root hash is never persisted — it is recomputed
// bottom-up from stored values on every request — so this package only
// ever stores the leaf/internal values themselves plus the running
// count, both under the tree's own subtree prefix.
//
// Grounded on merkle/builder.go's buildTree recursion (recurse on
// halves, hash on the way back up) for RootHash's shape, generalized
// from a balanced-pair-folding transaction tree to a complete binary
// tree addressed by explicit level-order position.
package dense

import (
	"context"
	"encoding/binary"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/storage"
)

// MaxHeight is the largest height a dense tree may be created with
// (capacity 2^16−1).
const MaxHeight = 16

const valuePrefix = 'p'

var countKey = []byte{'C'}

func valueKey(pos uint16) []byte {
	k := make([]byte, 3)
	k[0] = valuePrefix
	binary.BigEndian.PutUint16(k[1:], pos)
	return k
}

// Capacity returns 2^height − 1, the number of positions a dense tree of
// the given height holds.
func Capacity(height uint8) uint64 {
	return (uint64(1) << height) - 1
}

func left(p uint64) uint64  { return 2*p + 1 }
func right(p uint64) uint64 { return 2*p + 2 }

func pctxFor(tx storage.Tx, path [][]byte) *storage.PrefixedContext {
	return storage.NewPrefixedContext(tx, grove.SubtreePrefix(path))
}

func readCount(ctx context.Context, pctx *storage.PrefixedContext, acc *cost.OperationCost) (uint64, error) {
	raw, err := pctx.Get(ctx, storage.CFDefault, countKey, acc)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, groveerr.Wrap(groveerr.ErrCorruptedData, "dense: count record has %d bytes, want 8", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func writeCount(ctx context.Context, pctx *storage.PrefixedContext, count uint64, acc *cost.OperationCost) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], count)
	return pctx.Put(ctx, storage.CFDefault, countKey, buf[:], acc)
}

func readValue(ctx context.Context, pctx *storage.PrefixedContext, pos uint64, acc *cost.OperationCost) ([]byte, error) {
	return pctx.Get(ctx, storage.CFDefault, valueKey(uint16(pos)), acc)
}

// RootHash recursively recomputes a dense tree's root hash from its
// stored values: h(p) = blake3(blake3(value_p) ‖ h(left(p)) ‖ h(right(p)))
// for a filled position and the zero hash for an unfilled or
// out-of-capacity position; an empty tree yields nil. It satisfies
// grove.NonMerkRootFunc.
func RootHash(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*gvhash.Hash, error) {
	pctx := pctxFor(tx, path)
	count, err := readCount(ctx, pctx, acc)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	h, err := hashAt(ctx, pctx, 0, count, acc)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func hashAt(ctx context.Context, pctx *storage.PrefixedContext, pos, count uint64, acc *cost.OperationCost) (gvhash.Hash, error) {
	if pos >= count {
		return gvhash.Zero, nil
	}
	value, err := readValue(ctx, pctx, pos, acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	if value == nil {
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrCorruptedData, "dense: position %d within count %d has no stored value", pos, count)
	}
	leftHash, err := hashAt(ctx, pctx, left(pos), count, acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	rightHash, err := hashAt(ctx, pctx, right(pos), count, acc)
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

// Appender implements batch.Appender for DenseFixedSizeTree elements.
type Appender struct{}

// Tag returns element.TagDenseFixedSizeTree.
func (Appender) Tag() element.Tag { return element.TagDenseFixedSizeTree }

// Append writes values into the next unfilled positions of the dense
// tree rooted at path, using existing.DenseHeight (fixed at tree
// creation) to enforce capacity, and returns the updated owning element.
func (Appender) Append(ctx context.Context, tx storage.Tx, path [][]byte, existing element.Element, values [][]byte, acc *cost.OperationCost) (element.Element, error) {
	if existing.DenseHeight == 0 || existing.DenseHeight > MaxHeight {
		return element.Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "dense: owning element has invalid height %d", existing.DenseHeight)
	}
	pctx := pctxFor(tx, path)
	count, err := readCount(ctx, pctx, acc)
	if err != nil {
		return element.Element{}, err
	}
	capacity := Capacity(existing.DenseHeight)
	if count+uint64(len(values)) > capacity {
		return element.Element{}, groveerr.Wrap(groveerr.ErrCapacityExceeded, "dense: append would exceed capacity %d (height %d)", capacity, existing.DenseHeight)
	}
	for _, v := range values {
		if err := pctx.Put(ctx, storage.CFDefault, valueKey(uint16(count)), v, acc); err != nil {
			return element.Element{}, err
		}
		count++
	}
	if err := writeCount(ctx, pctx, count, acc); err != nil {
		return element.Element{}, err
	}
	return element.Element{
		Tag:         element.TagDenseFixedSizeTree,
		DenseCount:  uint16(count),
		DenseHeight: existing.DenseHeight,
	}, nil
}
