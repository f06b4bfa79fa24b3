package grove

import (
	"context"
	"fmt"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/storage"
)

// subtreePrefix computes the blake3(path) key prefix a subtree's data
// lives under.
func subtreePrefix(path [][]byte) []byte {
	h := gvhash.PathPrefix(path)
	return h.Bytes()
}

func txFetch(tx storage.Tx, prefix []byte) merk.Fetch {
	return func(ctx context.Context, key []byte, acc *cost.OperationCost) (*merk.Node, error) {
		pctx := storage.NewPrefixedContext(tx, prefix)
		data, err := pctx.Get(ctx, storage.CFDefault, key, acc)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, fmt.Errorf("grove: node %x not found under prefix %x", key, prefix)
		}
		return decodeNodeRecord(key, data)
	}
}

func txPut(tx storage.Tx, prefix []byte) func(context.Context, *merk.Node, *cost.OperationCost) error {
	return func(ctx context.Context, n *merk.Node, acc *cost.OperationCost) error {
		pctx := storage.NewPrefixedContext(tx, prefix)
		return pctx.Put(ctx, storage.CFDefault, n.Key, encodeNodeRecord(n), acc)
	}
}

// openTree opens (or creates, if absent) the Merk subtree at path
// within tx, returning the tree and its storage prefix.
func openTree(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (*merk.Tree, []byte, error) {
	prefix := subtreePrefix(path)
	pctx := storage.NewPrefixedContext(tx, prefix)
	rootRec, err := pctx.Get(ctx, storage.CFRoots, rootRecordKey, acc)
	if err != nil {
		return nil, nil, err
	}
	fetch := txFetch(tx, prefix)
	if rootRec == nil {
		return merk.New(fetch, merk.Config{}), prefix, nil
	}
	link, err := decodeRootRecord(rootRec)
	if err != nil {
		return nil, nil, err
	}
	if link == nil {
		return merk.New(fetch, merk.Config{}), prefix, nil
	}
	return merk.Open(fetch, merk.Config{}, link.Key, *link), prefix, nil
}

// subtreeExists reports whether path has ever been created, distinct
// from "exists but empty" — a non-existent subtree must surface a
// distinct error rather than reading back as empty.
func subtreeExists(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) (bool, error) {
	prefix := subtreePrefix(path)
	pctx := storage.NewPrefixedContext(tx, prefix)
	rec, err := pctx.Get(ctx, storage.CFMeta, subtreeMarkerKey, acc)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

func markSubtreeExists(ctx context.Context, tx storage.Tx, path [][]byte, acc *cost.OperationCost) error {
	prefix := subtreePrefix(path)
	pctx := storage.NewPrefixedContext(tx, prefix)
	return pctx.Put(ctx, storage.CFMeta, subtreeMarkerKey, []byte{1}, acc)
}

var subtreeMarkerKey = []byte("exists")

// commitTree commits tr's dirty nodes and persists its new root
// metadata, returning the resulting root link (nil if the tree ended
// up empty).
func commitTree(ctx context.Context, tx storage.Tx, prefix []byte, tr *merk.Tree, acc *cost.OperationCost) (*merk.Link, error) {
	put := txPut(tx, prefix)
	if err := tr.Commit(ctx, put, acc); err != nil {
		return nil, err
	}
	root := tr.RootLink()
	pctx := storage.NewPrefixedContext(tx, prefix)
	if root == nil {
		if err := pctx.Delete(ctx, storage.CFRoots, rootRecordKey, acc); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := pctx.Put(ctx, storage.CFRoots, rootRecordKey, encodeRootRecord(root), acc); err != nil {
		return nil, err
	}
	return root, nil
}
