// Package bulkappend implements GroveDB's bulk append tree: a layered
// append-only structure built by composing two simpler non-Merk trees
// instead of inventing new hashing primitives. A dense fixed-size tree
// of height chunk_power buffers incoming entries; whenever the buffer
// fills, it is sealed as a chunk (its dense Merkle root recorded, its
// raw values copied into durable chunk-blob storage) and that root
// becomes the next leaf of a Merkle Mountain Range indexing all sealed
// chunks. The tree's state root ties both layers together:
// blake3("bulk_state" ‖ chunk_mmr_root ‖ current_buffer_root).
//
// Grounded on the teacher's layering style of small composed packages
// (processor.go wires together cache + kvstore + treebuilder rather
// than reimplementing any of them) — this package wires nonmerk/dense
// (buffer and chunk roots) and nonmerk/mmr (chunk index) the same way.
package bulkappend

import (
	"context"
	"encoding/binary"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/nonmerk/dense"
	"github.com/dashpay/grovedb-sub006/nonmerk/mmr"
	"github.com/dashpay/grovedb-sub006/storage"
)

var stateDomain = []byte("bulk_state")

// chunkRootPrefix keys a sealed chunk's recorded dense root
// (chunkRootPrefix ‖ chunk_index_u64_be) in storage.CFDefault, and
// chunkValuePrefix keys that chunk's raw entry values
// (chunkValuePrefix ‖ chunk_index_u64_be ‖ local_position_u16_be) the
// same way. chunkCountKey holds the number of sealed chunks so far.
const (
	chunkRootPrefix  = 'r'
	chunkValuePrefix = 'c'
)

var chunkCountKey = []byte{'N'}

// bufferPath and chunkMMRPath namespace the buffer dense tree and the
// chunk-index MMR as distinct child paths under the bulk tree's own
// path, so each can reuse nonmerk/dense and nonmerk/mmr's storage
// layout unmodified instead of needing a bespoke key scheme here.
func bufferPath(path [][]byte) [][]byte {
	return append(append([][]byte{}, path...), []byte("buf"))
}

func chunkMMRPath(path [][]byte) [][]byte {
	return append(append([][]byte{}, path...), []byte("mmr"))
}

func pctxFor(tx storage.Tx, path [][]byte) *storage.PrefixedContext {
	return storage.NewPrefixedContext(tx, grove.SubtreePrefix(path))
}

func chunkRootKey(chunkIdx uint64) []byte {
	k := make([]byte, 9)
	k[0] = chunkRootPrefix
	binary.BigEndian.PutUint64(k[1:], chunkIdx)
	return k
}

func chunkValueKey(chunkIdx uint64, localPos uint16) []byte {
	k := make([]byte, 11)
	k[0] = chunkValuePrefix
	binary.BigEndian.PutUint64(k[1:9], chunkIdx)
	binary.BigEndian.PutUint16(k[9:], localPos)
	return k
}

func readChunkCount(ctx context.Context, pctx *storage.PrefixedContext, acc *cost.OperationCost) (uint64, error) {
	raw, err := pctx.Get(ctx, storage.CFDefault, chunkCountKey, acc)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, groveerr.Wrap(groveerr.ErrCorruptedData, "bulkappend: chunk count record has %d bytes, want 8", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func writeChunkCount(ctx context.Context, pctx *storage.PrefixedContext, count uint64, acc *cost.OperationCost) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], count)
	return pctx.Put(ctx, storage.CFDefault, chunkCountKey, buf[:], acc)
}

func readChunkRoot(ctx context.Context, pctx *storage.PrefixedContext, chunkIdx uint64, acc *cost.OperationCost) (gvhash.Hash, error) {
	raw, err := pctx.Get(ctx, storage.CFDefault, chunkRootKey(chunkIdx), acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	if len(raw) != gvhash.Size {
		return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrCorruptedData, "bulkappend: chunk %d root record has %d bytes, want %d", chunkIdx, len(raw), gvhash.Size)
	}
	var h gvhash.Hash
	copy(h[:], raw)
	return h, nil
}

// stateRoot composes the state root from a chunk-MMR root (nil if no
// chunks are sealed yet) and a buffer root (nil if the buffer is
// empty), substituting the zero hash for either side that is absent.
func stateRoot(mmrRoot, bufferRoot *gvhash.Hash, acc *cost.OperationCost) gvhash.Hash {
	m := gvhash.Zero
	if mmrRoot != nil {
		m = *mmrRoot
	}
	b := gvhash.Zero
	if bufferRoot != nil {
		b = *bufferRoot
	}
	if acc != nil {
		acc.HashNode()
	}
	buf := make([]byte, 0, len(stateDomain)+gvhash.Size*2)
	buf = append(buf, stateDomain...)
	buf = append(buf, m[:]...)
	buf = append(buf, b[:]...)
	return gvhash.RawHash(buf)
}

// RootHash computes the bulk append tree's current state root. It
// satisfies grove.NonMerkRootFunc.
func RootHash(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*gvhash.Hash, error) {
	pctx := pctxFor(tx, path)
	chunkCount, err := readChunkCount(ctx, pctx, acc)
	if err != nil {
		return nil, err
	}
	var mmrRoot *gvhash.Hash
	if chunkCount > 0 {
		mmrRoot, err = mmr.RootHash(ctx, tx, chunkMMRPath(path), acc)
		if err != nil {
			return nil, err
		}
	}
	bufferRoot, err := dense.RootHash(ctx, tx, bufferPath(path), acc)
	if err != nil {
		return nil, err
	}
	root := stateRoot(mmrRoot, bufferRoot, acc)
	return &root, nil
}

// chunkCapacity is 2^chunkPower − 1, the dense buffer's capacity,
// which also defines how many positions one sealed chunk occupies.
func chunkCapacity(chunkPower uint8) uint64 {
	return dense.Capacity(chunkPower)
}

// Appender implements batch.Appender for BulkAppendTree elements.
type Appender struct{}

// Tag returns element.TagBulkAppendTree.
func (Appender) Tag() element.Tag { return element.TagBulkAppendTree }

// Append adds values, in order, to the bulk tree rooted at path: each
// value goes into the buffer; whenever the buffer reaches capacity it
// is sealed into a chunk blob, its root becomes the chunk MMR's next
// leaf, the sealed-chunk counter advances, and the buffer's namespace is
// purged so the next value starts again at buffer position 0.
// existing.BulkChunkPower is the buffer height fixed at
// tree creation, since one Appender instance serves every path of its
// tag and so cannot otherwise learn it.
func (Appender) Append(ctx context.Context, tx storage.Tx, path [][]byte, existing element.Element, values [][]byte, acc *cost.OperationCost) (element.Element, error) {
	if existing.BulkChunkPower == 0 || existing.BulkChunkPower > dense.MaxHeight {
		return element.Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "bulkappend: owning element has invalid chunk power %d", existing.BulkChunkPower)
	}
	pctx := pctxFor(tx, path)
	chunkCount, err := readChunkCount(ctx, pctx, acc)
	if err != nil {
		return element.Element{}, err
	}
	capacity := chunkCapacity(existing.BulkChunkPower)
	bufPath := bufferPath(path)
	bufEl := element.Element{Tag: element.TagDenseFixedSizeTree, DenseHeight: existing.BulkChunkPower}
	denseAppender := dense.Appender{}

	for _, v := range values {
		var err error
		bufEl, err = denseAppender.Append(ctx, tx, bufPath, bufEl, [][]byte{v}, acc)
		if err != nil {
			return element.Element{}, err
		}
		if uint64(bufEl.DenseCount) == capacity {
			if err := sealBuffer(ctx, tx, path, bufPath, chunkCount, capacity, acc); err != nil {
				return element.Element{}, err
			}
			chunkCount++
			if err := writeChunkCount(ctx, pctx, chunkCount, acc); err != nil {
				return element.Element{}, err
			}
			bufEl.DenseCount = 0
		}
	}

	return element.Element{
		Tag:            element.TagBulkAppendTree,
		BulkCount:      chunkCount*capacity + uint64(bufEl.DenseCount),
		BulkChunkPower: existing.BulkChunkPower,
	}, nil
}

// sealBuffer records the full buffer's dense root as the given chunk's
// root, copies its values into durable chunk-blob storage, appends
// that root as the chunk MMR's next leaf, and resets the buffer by
// purging its namespace so the next value starts a fresh tree at
// position 0.
func sealBuffer(ctx context.Context, tx storage.Tx, path, bufPath [][]byte, chunkIdx, capacity uint64, acc *cost.OperationCost) error {
	root, err := dense.RootHash(ctx, tx, bufPath, acc)
	if err != nil {
		return err
	}
	if root == nil {
		return groveerr.Wrap(groveerr.ErrCorruptedData, "bulkappend: sealBuffer called on an empty buffer")
	}
	proof, err := dense.ProveRange(ctx, tx, bufPath, allPositions(capacity), acc)
	if err != nil {
		return err
	}
	pctx := pctxFor(tx, path)
	if err := pctx.Put(ctx, storage.CFDefault, chunkRootKey(chunkIdx), root.Bytes(), acc); err != nil {
		return err
	}
	for pos, v := range proof.Entries {
		if err := pctx.Put(ctx, storage.CFDefault, chunkValueKey(chunkIdx, uint16(pos)), v, acc); err != nil {
			return err
		}
	}
	mmrAppender := mmr.Appender{}
	if _, err := mmrAppender.Append(ctx, tx, chunkMMRPath(path), element.Element{}, [][]byte{root.Bytes()}, acc); err != nil {
		return err
	}
	return grove.PurgeNonMerkNamespace(ctx, tx, bufPath, acc)
}

func allPositions(count uint64) []uint64 {
	positions := make([]uint64, count)
	for i := range positions {
		positions[i] = uint64(i)
	}
	return positions
}

// GetByPosition resolves a single entry by its overall bulk-tree
// position: positions below chunkCount·capacity resolve to a sealed
// chunk blob, the remainder to the current buffer.
func GetByPosition(ctx context.Context, tx storage.Tx, path [][]byte, chunkPower uint8, position uint64, acc *cost.OperationCost) ([]byte, error) {
	pctx := pctxFor(tx, path)
	chunkCount, err := readChunkCount(ctx, pctx, acc)
	if err != nil {
		return nil, err
	}
	capacity := chunkCapacity(chunkPower)
	sealedTotal := chunkCount * capacity
	if position < sealedTotal {
		chunkIdx := position / capacity
		localPos := uint16(position % capacity)
		return pctx.Get(ctx, storage.CFDefault, chunkValueKey(chunkIdx, localPos), acc)
	}
	localPos := position - sealedTotal
	proof, err := dense.ProveRange(ctx, tx, bufferPath(path), []uint64{localPos}, acc)
	if err != nil {
		return nil, err
	}
	return proof.Entries[localPos], nil
}
