package merk

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/dashpay/grovedb-sub006/cost"
)

// OpKind distinguishes the batch mutation kinds a Merk tree applies.
// Patch is a delta against the existing value; the grove batch layer
// resolves it to a concrete Put before it reaches merk.
type OpKind uint8

const (
	OpPut OpKind = iota
	OpReplace
	OpDelete
)

// Op is one (key, mutation) entry in a sorted batch.
type Op struct {
	Key     []byte
	Kind    OpKind
	Value   []byte
	Contrib SumContribution
}

// ApplyBatch applies a batch of already key-sorted, duplicate-free ops
// (duplicate rejection is the grove layer's responsibility). An empty
// tree uses the midpoint-build strategy; a non-empty tree applies each
// op via binary-search insert/delete, rebalancing on every return to the
// recursive caller.
func (t *Tree) ApplyBatch(ctx context.Context, ops []Op, acc *cost.OperationCost) error {
	if !sort.SliceIsSorted(ops, func(i, j int) bool { return bytes.Compare(ops[i].Key, ops[j].Key) < 0 }) {
		return fmt.Errorf("merk: ApplyBatch requires sorted ops")
	}
	for i := 1; i < len(ops); i++ {
		if bytes.Equal(ops[i].Key, ops[i-1].Key) {
			return fmt.Errorf("merk: duplicate key %x in batch", ops[i].Key)
		}
	}

	if t.IsEmpty() {
		var entries []BatchEntry
		for _, op := range ops {
			if op.Kind == OpDelete {
				continue
			}
			entries = append(entries, BatchEntry{Key: op.Key, Value: op.Value, Contrib: op.Contrib})
		}
		built, err := BuildFromSorted(t.fetch, t.cfg, entries)
		if err != nil {
			return err
		}
		t.root = built.root
		return nil
	}

	for _, op := range ops {
		switch op.Kind {
		case OpPut, OpReplace:
			if err := t.Put(ctx, op.Key, op.Value, op.Contrib, acc); err != nil {
				return err
			}
		case OpDelete:
			if err := t.Delete(ctx, op.Key, acc); err != nil {
				return err
			}
		default:
			return fmt.Errorf("merk: unknown op kind %d", op.Kind)
		}
	}
	return nil
}
