// Package commitment implements GroveDB's CommitmentTree: a
// ZK-friendly append log whose externally-computed root sits in front
// of an ordinary bulk append tree. The external hash primitive itself
// (e.g. Sinsemilla, Poseidon) and its cost calibration are out of
// scope — spec.md tracks that separately as an open question — so this
// package reuses nonmerk/bulkappend verbatim for storage and structure
// and stands in a domain-tagged blake3 hash where the real external
// primitive would run, keeping the layering (and cost.OperationCost's
// sinsemilla_hash_calls counter) wired for whatever primitive is
// plugged in later.
package commitment

import (
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-sub006/storage"
)

var externalDomain = []byte("commitment_root")

// externalHash stands in for the ZK-friendly external hash primitive:
// domain-tagged blake3 over the underlying bulk tree's state root.
func externalHash(bulkRoot gvhash.Hash, acc *cost.OperationCost) gvhash.Hash {
	buf := make([]byte, 0, len(externalDomain)+gvhash.Size)
	buf = append(buf, externalDomain...)
	buf = append(buf, bulkRoot[:]...)
	if acc != nil {
		acc.SinsemillaHash()
	}
	return gvhash.RawHash(buf)
}

// ExternalHash applies the domain-tagged stand-in hash to an
// already-known bulk append tree state root — exported for grove/proof,
// which recomputes a CommitmentTree's root from an embedded bulk-append
// proof rather than live storage.
func ExternalHash(bulkRoot gvhash.Hash, acc *cost.OperationCost) gvhash.Hash {
	return externalHash(bulkRoot, acc)
}

// RootHash computes a CommitmentTree's external-hash root over its
// underlying bulk append tree's state root. An empty tree also gets a
// root: the external hash of the bulk tree's zero-state root. It
// satisfies grove.NonMerkRootFunc.
func RootHash(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*gvhash.Hash, error) {
	bulkRoot, err := bulkappend.RootHash(ctx, tx, path, acc)
	if err != nil {
		return nil, err
	}
	if bulkRoot == nil {
		return nil, nil
	}
	h := externalHash(*bulkRoot, acc)
	return &h, nil
}

// Appender implements batch.Appender for CommitmentTree elements,
// delegating entirely to bulkappend.Appender: existing.ChunkPower is
// passed on as the underlying bulk tree's BulkChunkPower, the same
// fixed shape parameter a bulk tree needs.
type Appender struct{}

// Tag returns element.TagCommitmentTree.
func (Appender) Tag() element.Tag { return element.TagCommitmentTree }

// Append delegates to bulkappend.Appender using existing.ChunkPower as
// the underlying bulk tree's chunk power, and returns a
// CommitmentTree-tagged element carrying the same count/power fields.
func (Appender) Append(ctx context.Context, tx storage.Tx, path [][]byte, existing element.Element, values [][]byte, acc *cost.OperationCost) (element.Element, error) {
	if existing.ChunkPower == 0 {
		return element.Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "commitment: owning element has invalid chunk power %d", existing.ChunkPower)
	}
	bulkExisting := element.Element{Tag: element.TagBulkAppendTree, BulkChunkPower: existing.ChunkPower}
	bulkResult, err := (bulkappend.Appender{}).Append(ctx, tx, path, bulkExisting, values, acc)
	if err != nil {
		return element.Element{}, err
	}
	return element.Element{
		Tag:             element.TagCommitmentTree,
		CommitmentCount: bulkResult.BulkCount,
		ChunkPower:      existing.ChunkPower,
	}, nil
}
