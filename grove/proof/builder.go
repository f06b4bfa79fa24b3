package proof

import (
	"context"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/grove/query"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/merk"
	merkproof "github.com/dashpay/grovedb-sub006/merk/proof"
	"github.com/dashpay/grovedb-sub006/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-sub006/nonmerk/commitment"
	"github.com/dashpay/grovedb-sub006/nonmerk/dense"
	"github.com/dashpay/grovedb-sub006/nonmerk/mmr"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Build generates a grove proof for pq: a root Merk layer covering
// pq.Path's single query item, recursing into a nested layer for every
// yielded Tree element that has an applicable subquery, and attaching a
// non-Merk structural sub-proof wherever requests names the (path, key)
// of a yielded MmrTree/BulkAppendTree/DenseFixedSizeTree/CommitmentTree
// leaf. Every Query encountered, including pq's own, must carry exactly
// one Item — GenerateProof proves a single contiguous range per subtree,
// so a multi-item query has no single-layer proof representation.
func Build(ctx context.Context, tx storage.Tx, pq query.PathQuery, requests map[string]NonMerkRequest, acc *cost.OperationCost) (*Proof, error) {
	if pq.SizedQuery.Query == nil {
		return nil, groveerr.Wrap(groveerr.ErrNotSupported, "proof: path query requires a non-nil Query")
	}
	root, err := buildLayer(ctx, tx, pq.Path, pq.SizedQuery.Query, requests, acc)
	if err != nil {
		return nil, err
	}
	version := V0
	if hasNonMerkLayer(root) {
		version = V1
	}
	return &Proof{Version: version, Root: root}, nil
}

type visitedEntry struct {
	key, value []byte
}

func buildLayer(ctx context.Context, tx storage.Tx, path [][]byte, q *query.Query, requests map[string]NonMerkRequest, acc *cost.OperationCost) (Layer, error) {
	if len(q.Items) != 1 {
		return Layer{}, groveerr.Wrap(groveerr.ErrNotSupported, "proof: query at path %x must have exactly one item, got %d", path, len(q.Items))
	}
	tr, _, err := grove.OpenTree(ctx, tx, path, acc)
	if err != nil {
		return Layer{}, err
	}

	bounds, isKey, key := q.Items[0].Bounds()
	item := merkproof.QueryItem{Start: bounds.Lower, StartExclusive: bounds.LowerExclude, End: bounds.Upper, EndExclusive: bounds.UpperExclude}
	if isKey {
		item = merkproof.QueryItem{Start: key, End: key}
	}

	var entries []visitedEntry
	visit := func(k, v []byte, _ merk.Feature, _ uint64) {
		entries = append(entries, visitedEntry{key: append([]byte(nil), k...), value: append([]byte(nil), v...)})
	}

	ops, err := merkproof.GenerateProof(ctx, tr, item, grove.TreeFetch(tx, path), visit, acc)
	if err != nil {
		return Layer{}, err
	}
	if n := estimateOpsBytes(ops); n > MaxLayerBytes {
		return Layer{}, groveerr.Wrap(groveerr.ErrCapacityExceeded, "proof: layer at path %x serializes to %d bytes, exceeds the %d limit", path, n, MaxLayerBytes)
	}

	layer := Layer{Kind: LayerMerk, MerkOps: ops}
	for _, e := range entries {
		el, err := element.Unmarshal(e.value)
		if err != nil {
			return Layer{}, err
		}

		switch {
		case el.Tag.IsTree():
			if !el.HasChild() {
				continue
			}
			sub := q.subqueryFor(e.key)
			if sub == nil {
				continue
			}
			child, err := buildLayer(ctx, tx, grove.ChildPath(path, e.key), sub, requests, acc)
			if err != nil {
				return Layer{}, err
			}
			layer.Children = append(layer.Children, ChildLayer{Key: append([]byte(nil), e.key...), Layer: child})

		case el.Tag.IsNonMerkTree():
			req, ok := requests[requestKey(path, e.key)]
			if !ok {
				continue
			}
			child, err := buildNonMerkLayer(ctx, tx, grove.ChildPath(path, e.key), el, req, acc)
			if err != nil {
				return Layer{}, err
			}
			layer.Children = append(layer.Children, ChildLayer{Key: append([]byte(nil), e.key...), Layer: child})
		}
	}
	return layer, nil
}

func buildNonMerkLayer(ctx context.Context, tx storage.Tx, path [][]byte, el element.Element, req NonMerkRequest, acc *cost.OperationCost) (Layer, error) {
	switch el.Tag {
	case element.TagMmrTree:
		if len(req.Positions) != 1 {
			return Layer{}, groveerr.Wrap(groveerr.ErrNotSupported, "proof: mmr request at path %x must name exactly one leaf position", path)
		}
		p, err := mmr.ProveLeaf(ctx, tx, path, req.Positions[0], acc)
		if err != nil {
			return Layer{}, err
		}
		return Layer{Kind: LayerMMR, MmrProof: &p}, nil

	case element.TagDenseFixedSizeTree:
		p, err := dense.ProveRange(ctx, tx, path, req.Positions, acc)
		if err != nil {
			return Layer{}, err
		}
		return Layer{Kind: LayerDenseTree, DenseProof: &p}, nil

	case element.TagBulkAppendTree:
		p, err := bulkappend.ProveRange(ctx, tx, path, el.BulkChunkPower, req.RangeStart, req.RangeEnd, acc)
		if err != nil {
			return Layer{}, err
		}
		return Layer{Kind: LayerBulkAppendTree, BulkProof: &p}, nil

	case element.TagCommitmentTree:
		p, err := bulkappend.ProveRange(ctx, tx, path, el.ChunkPower, req.RangeStart, req.RangeEnd, acc)
		if err != nil {
			return Layer{}, err
		}
		bulkRoot, err := bulkappend.RootFromProof(p, acc)
		if err != nil {
			return Layer{}, err
		}
		root := commitment.ExternalHash(bulkRoot, acc)
		return Layer{Kind: LayerCommitmentTree, CommitmentRoot: &root, CommitmentBulk: &p}, nil

	default:
		return Layer{}, groveerr.Wrap(groveerr.ErrNotSupported, "proof: %s is not a non-Merk tree", el.Tag)
	}
}

// estimateOpsBytes bounds ops' eventual wire size without serializing
// it, so an oversized layer is rejected before any encoding allocation.
func estimateOpsBytes(ops []merkproof.Op) int {
	n := 0
	for _, op := range ops {
		n += 2 // op code + node kind
		if op.Node == nil {
			continue
		}
		n += len(op.Node.Key) + len(op.Node.Value) + len(op.Node.RefValue) + 3*32
	}
	return n
}
