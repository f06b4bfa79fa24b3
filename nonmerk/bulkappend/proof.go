package bulkappend

import (
	"bytes"
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/nonmerk/dense"
	"github.com/dashpay/grovedb-sub006/nonmerk/mmr"
	"github.com/dashpay/grovedb-sub006/storage"
)

// ChunkProof carries one sealed chunk's full blob (so its dense root
// can be recomputed independently) plus an MMR membership proof tying
// that root to the chunk index.
type ChunkProof struct {
	Index      uint64
	Entries    map[uint64][]byte
	Membership mmr.Proof
}

// Proof authenticates a range of positions in a bulk append tree: every
// sealed chunk the range intersects, disclosed as a whole blob plus its
// chunk-MMR membership proof, and the current buffer's full contents
// (small enough to disclose outright rather than build a partial dense
// proof for).
type Proof struct {
	ChunkPower    uint8
	Chunks        []ChunkProof
	BufferCount   uint64
	BufferEntries map[uint64][]byte
}

// ProveRange builds a Proof covering every position in [start,end).
func ProveRange(ctx context.Context, tx storage.Tx, path [][]byte, chunkPower uint8, start, end uint64, acc *cost.OperationCost) (Proof, error) {
	pctx := pctxFor(tx, path)
	chunkCount, err := readChunkCount(ctx, pctx, acc)
	if err != nil {
		return Proof{}, err
	}
	capacity := chunkCapacity(chunkPower)
	proof := Proof{ChunkPower: chunkPower}

	firstChunk := start / capacity
	lastSealedPos := chunkCount * capacity
	for idx := firstChunk; idx < chunkCount && idx*capacity < end; idx++ {
		entries, err := chunkBlob(ctx, pctx, idx, capacity, acc)
		if err != nil {
			return Proof{}, err
		}
		membership, err := mmr.ProveLeaf(ctx, tx, chunkMMRPath(path), idx, acc)
		if err != nil {
			return Proof{}, err
		}
		proof.Chunks = append(proof.Chunks, ChunkProof{Index: idx, Entries: entries, Membership: membership})
	}

	if end > lastSealedPos {
		bufProof, err := dense.ProveRange(ctx, tx, bufferPath(path), allPositions(capacity), acc)
		if err != nil {
			return Proof{}, err
		}
		proof.BufferCount = bufProof.Count
		proof.BufferEntries = bufProof.Entries
	}
	return proof, nil
}

func chunkBlob(ctx context.Context, pctx *storage.PrefixedContext, chunkIdx, capacity uint64, acc *cost.OperationCost) (map[uint64][]byte, error) {
	entries := make(map[uint64][]byte, capacity)
	for pos := uint64(0); pos < capacity; pos++ {
		v, err := pctx.Get(ctx, storage.CFDefault, chunkValueKey(chunkIdx, uint16(pos)), acc)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "bulkappend: chunk %d missing value at position %d", chunkIdx, pos)
		}
		entries[pos] = v
	}
	return entries, nil
}

// RootFromProof recomputes the state root proof attests to: every
// chunk's membership proof must independently recompute the same
// chunk-MMR root, and each chunk's disclosed blob must match the value
// that proof committed it to; the buffer root is recomputed directly
// from its disclosed entries via dense.RootFromEntries.
func RootFromProof(proof Proof, acc *cost.OperationCost) (gvhash.Hash, error) {
	capacity := chunkCapacity(proof.ChunkPower)

	var mmrRoot *gvhash.Hash
	for i, cp := range proof.Chunks {
		chunkRoot, err := dense.RootFromEntries(capacity, cp.Entries, acc)
		if err != nil {
			return gvhash.Hash{}, err
		}
		if !bytes.Equal(chunkRoot.Bytes(), cp.Membership.Value) {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "bulkappend: chunk %d blob does not match its membership leaf", cp.Index)
		}
		got := mmr.RootFromProof(cp.Membership, acc)
		if i == 0 {
			mmrRoot = &got
		} else if got != *mmrRoot {
			return gvhash.Hash{}, groveerr.Wrap(groveerr.ErrInvalidProof, "bulkappend: chunk membership proofs disagree on the chunk-MMR root")
		}
	}

	bufferRoot, err := dense.RootFromEntries(proof.BufferCount, proof.BufferEntries, acc)
	if err != nil {
		return gvhash.Hash{}, err
	}
	var bufferRootPtr *gvhash.Hash
	if proof.BufferCount > 0 {
		bufferRootPtr = &bufferRoot
	}

	return stateRoot(mmrRoot, bufferRootPtr, acc), nil
}

// Verify reports whether proof recomputes to root.
func Verify(proof Proof, root gvhash.Hash, acc *cost.OperationCost) (bool, error) {
	got, err := RootFromProof(proof, acc)
	if err != nil {
		return false, err
	}
	return got == root, nil
}
