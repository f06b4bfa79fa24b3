package main

import (
	"fmt"
	"strings"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/grove/batch"
	"github.com/dashpay/grovedb-sub006/internal/gvlog"
	"github.com/dashpay/grovedb-sub006/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-sub006/nonmerk/commitment"
	"github.com/dashpay/grovedb-sub006/nonmerk/dense"
	"github.com/dashpay/grovedb-sub006/nonmerk/mmr"
	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/badgerstore"
	"github.com/dashpay/grovedb-sub006/storage/memstore"
)

// splitPath parses a "/"-separated path string into grove path segments,
// trimming whitespace and dropping empty segments so "" and "/" both
// address the root grove.
func splitPath(s string) [][]byte {
	parts := strings.Split(s, "/")
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, []byte(trimmed))
		}
	}
	return out
}

// openStore opens the storage.Store named by the --data-dir/--in-memory
// persistent flags.
func openStore() (storage.Store, error) {
	if inMemory {
		return memstore.New(), nil
	}
	return badgerstore.New(&badgerstore.Config{DataDir: dataDir})
}

// openDB opens the backing store and wires a grove.DB with every
// non-Merk tree kind's root function registered, so value_hash binding
// works uniformly regardless of which tree kinds a given invocation
// actually touches.
func openDB() (*grove.DB, storage.Store, error) {
	gvlog.SetDefault(gvlog.ParseLevel(logLevel), nil)

	store, err := openStore()
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	db := grove.Open(store)
	db.RegisterNonMerkRoot(element.TagMmrTree, mmr.RootHash)
	db.RegisterNonMerkRoot(element.TagDenseFixedSizeTree, dense.RootHash)
	db.RegisterNonMerkRoot(element.TagBulkAppendTree, bulkappend.RootHash)
	db.RegisterNonMerkRoot(element.TagCommitmentTree, commitment.RootHash)
	return db, store, nil
}

// newBatch returns a batch.Batch wired with every non-Merk tree kind's
// Appender, so Batch.Append works regardless of which tag the target
// subtree was created with.
func newBatch(db *grove.DB) *batch.Batch {
	return batch.New(db, mmr.Appender{}, dense.Appender{}, bulkappend.Appender{}, commitment.Appender{})
}

// parseTag maps the --tag flag's name to an element.Tag for the subset
// of tags mktreeCmd can create.
func parseTag(name string) (element.Tag, error) {
	switch name {
	case "tree":
		return element.TagTree, nil
	case "sumtree":
		return element.TagSumTree, nil
	case "bigsumtree":
		return element.TagBigSumTree, nil
	case "counttree":
		return element.TagCountTree, nil
	case "countsumtree":
		return element.TagCountSumTree, nil
	case "mmrtree":
		return element.TagMmrTree, nil
	case "bulkappendtree":
		return element.TagBulkAppendTree, nil
	case "densetree":
		return element.TagDenseFixedSizeTree, nil
	case "commitmenttree":
		return element.TagCommitmentTree, nil
	default:
		return 0, fmt.Errorf("unknown tree tag %q", name)
	}
}
