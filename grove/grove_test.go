package grove

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/memstore"
)

func TestInsertReferenceBindsValueHashToTarget(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.Insert(ctx, tx, nil, []byte("target"), element.NewItem([]byte("v1")), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, nil, []byte("ref"), element.NewReference(element.Sibling{Key: []byte("target")}, 0), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	var resolvedPath [][]byte
	var resolvedKey []byte
	var resolvedEl element.Element
	err = db.View(func(tx storage.Tx) error {
		var err error
		resolvedPath, resolvedKey, resolvedEl, err = db.GetResolved(ctx, tx, nil, []byte("ref"), nil)
		return err
	})
	if err != nil {
		t.Fatalf("GetResolved: %v", err)
	}
	if len(resolvedPath) != 0 || !bytes.Equal(resolvedKey, []byte("target")) {
		t.Fatalf("resolved to path %q key %q, want root/target", resolvedPath, resolvedKey)
	}
	if resolvedEl.Tag != element.TagItem || !bytes.Equal(resolvedEl.Bytes, []byte("v1")) {
		t.Fatalf("resolved element = %+v, want Item(v1)", resolvedEl)
	}
}

func TestInsertReferenceChainResolves(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.Insert(ctx, tx, nil, []byte("final"), element.NewItem([]byte("v")), nil); err != nil {
			return err
		}
		if err := db.Insert(ctx, tx, nil, []byte("mid"), element.NewReference(element.Sibling{Key: []byte("final")}, 0), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, nil, []byte("start"), element.NewReference(element.Sibling{Key: []byte("mid")}, 0), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	var resolvedEl element.Element
	err = db.View(func(tx storage.Tx) error {
		var err error
		_, _, resolvedEl, err = db.GetResolved(ctx, tx, nil, []byte("start"), nil)
		return err
	})
	if err != nil {
		t.Fatalf("GetResolved: %v", err)
	}
	if resolvedEl.Tag != element.TagItem || !bytes.Equal(resolvedEl.Bytes, []byte("v")) {
		t.Fatalf("resolved element = %+v, want Item(v)", resolvedEl)
	}
}

func TestGetResolvedCyclicReferenceFails(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.Insert(ctx, tx, nil, []byte("x"), element.NewReference(element.Sibling{Key: []byte("y")}, 0), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, nil, []byte("y"), element.NewReference(element.Sibling{Key: []byte("x")}, 0), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.View(func(tx storage.Tx) error {
		_, _, _, err := db.GetResolved(ctx, tx, nil, []byte("x"), nil)
		return err
	})
	if !errors.Is(err, groveerr.ErrCyclicReference) {
		t.Fatalf("err = %v, want ErrCyclicReference", err)
	}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	return Open(memstore.New())
}

func TestInsertGetItemAtRoot(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		return db.Insert(ctx, tx, nil, []byte("hello"), element.NewItem([]byte("world")), nil)
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var got element.Element
	err = db.View(func(tx storage.Tx) error {
		var err error
		got, err = db.Get(ctx, tx, nil, []byte("hello"), nil)
		return err
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Tag != element.TagItem || !bytes.Equal(got.Bytes, []byte("world")) {
		t.Fatalf("got %+v, want Item(world)", got)
	}
}

func TestGetMissingKeyReturnsElementNotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.View(func(tx storage.Tx) error {
		_, err := db.Get(ctx, tx, nil, []byte("nope"), nil)
		return err
	})
	if !errors.Is(err, groveerr.ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound", err)
	}
}

func TestGetFromNonExistentSubtreeReturnsPathNotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.View(func(tx storage.Tx) error {
		_, err := db.Get(ctx, tx, [][]byte{[]byte("nope")}, []byte("x"), nil)
		return err
	})
	if !errors.Is(err, groveerr.ErrPathNotFound) {
		t.Fatalf("err = %v, want ErrPathNotFound", err)
	}
}

func TestCreateSubtreeAndInsertPropagatesRootHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.CreateSubtree(ctx, tx, nil, []byte("books"), element.NewTree(), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, [][]byte{[]byte("books")}, []byte("1984"), element.NewItem([]byte("orwell")), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	var parentEl, childEl element.Element
	err = db.View(func(tx storage.Tx) error {
		var err error
		parentEl, err = db.Get(ctx, tx, nil, []byte("books"), nil)
		if err != nil {
			return err
		}
		childEl, err = db.Get(ctx, tx, [][]byte{[]byte("books")}, []byte("1984"), nil)
		return err
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if parentEl.Tag != element.TagTree || len(parentEl.ChildRootKey) == 0 {
		t.Fatalf("parent element not updated with a child root key: %+v", parentEl)
	}
	if !bytes.Equal(parentEl.ChildRootKey, []byte("1984")) {
		t.Fatalf("child root key = %q, want %q", parentEl.ChildRootKey, "1984")
	}
	if childEl.Tag != element.TagItem || !bytes.Equal(childEl.Bytes, []byte("orwell")) {
		t.Fatalf("child element = %+v", childEl)
	}
}

func TestPropagationChangesRootHashAcrossLevels(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	var rootHashBefore, rootHashAfter [32]byte

	err := db.Update(func(tx storage.Tx) error {
		if err := db.CreateSubtree(ctx, tx, nil, []byte("shelf"), element.NewTree(), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, [][]byte{[]byte("shelf")}, []byte("a"), element.NewItem([]byte("1")), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	err = db.View(func(tx storage.Tx) error {
		tr, _, err := openTree(ctx, tx, nil, nil)
		if err != nil {
			return err
		}
		rootHashBefore = tr.RootHash()
		return nil
	})
	if err != nil {
		t.Fatalf("read root before: %v", err)
	}

	err = db.Update(func(tx storage.Tx) error {
		return db.Insert(ctx, tx, [][]byte{[]byte("shelf")}, []byte("b"), element.NewItem([]byte("2")), nil)
	})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	err = db.View(func(tx storage.Tx) error {
		tr, _, err := openTree(ctx, tx, nil, nil)
		if err != nil {
			return err
		}
		rootHashAfter = tr.RootHash()
		return nil
	})
	if err != nil {
		t.Fatalf("read root after: %v", err)
	}

	if rootHashBefore == rootHashAfter {
		t.Fatalf("root subtree hash unchanged after inserting into a nested subtree")
	}
}

func TestDeleteItemRemovesKey(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		return db.Insert(ctx, tx, nil, []byte("k"), element.NewItem([]byte("v")), nil)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = db.Update(func(tx storage.Tx) error {
		return db.Delete(ctx, tx, nil, []byte("k"), nil)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = db.View(func(tx storage.Tx) error {
		_, err := db.Get(ctx, tx, nil, []byte("k"), nil)
		return err
	})
	if !errors.Is(err, groveerr.ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound after delete", err)
	}
}

func TestDeleteTreeElementPurgesChildSubtree(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.CreateSubtree(ctx, tx, nil, []byte("box"), element.NewTree(), nil); err != nil {
			return err
		}
		if err := db.Insert(ctx, tx, [][]byte{[]byte("box")}, []byte("x"), element.NewItem([]byte("1")), nil); err != nil {
			return err
		}
		if err := db.CreateSubtree(ctx, tx, [][]byte{[]byte("box")}, []byte("nested"), element.NewTree(), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, [][]byte{[]byte("box"), []byte("nested")}, []byte("y"), element.NewItem([]byte("2")), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.Update(func(tx storage.Tx) error {
		return db.Delete(ctx, tx, nil, []byte("box"), nil)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	err = db.View(func(tx storage.Tx) error {
		_, err := db.Get(ctx, tx, nil, []byte("box"), nil)
		return err
	})
	if !errors.Is(err, groveerr.ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound", err)
	}

	err = db.View(func(tx storage.Tx) error {
		exists, err := subtreeExists(ctx, tx, [][]byte{[]byte("box")}, nil)
		if err != nil {
			return err
		}
		if exists {
			t.Fatalf("child subtree %q still marked as existing after parent delete", "box")
		}
		exists, err = subtreeExists(ctx, tx, [][]byte{[]byte("box"), []byte("nested")}, nil)
		if err != nil {
			return err
		}
		if exists {
			t.Fatalf("grandchild subtree still marked as existing after recursive delete")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify purge: %v", err)
	}
}

func TestSumTreeAggregatesAcrossInserts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.CreateSubtree(ctx, tx, nil, []byte("ledger"), element.Element{Tag: element.TagSumTree}, nil); err != nil {
			return err
		}
		if err := db.Insert(ctx, tx, [][]byte{[]byte("ledger")}, []byte("a"), element.NewSumItem(10), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, [][]byte{[]byte("ledger")}, []byte("b"), element.NewSumItem(32), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.View(func(tx storage.Tx) error {
		tr, _, err := openTree(ctx, tx, [][]byte{[]byte("ledger")}, nil)
		if err != nil {
			return err
		}
		if tr.RootLink().Sum != 42 {
			t.Fatalf("ledger sum = %d, want 42", tr.RootLink().Sum)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify sum: %v", err)
	}
}

// TestBigSumTreeAggregatesAcrossInserts mirrors
// TestSumTreeAggregatesAcrossInserts for the i128 aggregator: each insert
// reopens the subtree from storage, so a node decoded from a prior
// insert must still fold its own contribution correctly.
func TestBigSumTreeAggregatesAcrossInserts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.CreateSubtree(ctx, tx, nil, []byte("ledger"), element.Element{Tag: element.TagBigSumTree}, nil); err != nil {
			return err
		}
		if err := db.Insert(ctx, tx, [][]byte{[]byte("ledger")}, []byte("a"), element.NewSumItem(10), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, [][]byte{[]byte("ledger")}, []byte("b"), element.NewSumItem(32), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.View(func(tx storage.Tx) error {
		tr, _, err := openTree(ctx, tx, [][]byte{[]byte("ledger")}, nil)
		if err != nil {
			return err
		}
		if tr.RootLink().BigSum == nil || tr.RootLink().BigSum.Cmp(big.NewInt(42)) != 0 {
			t.Fatalf("ledger big sum = %v, want 42", tr.RootLink().BigSum)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify big sum: %v", err)
	}
}

// TestPropagateRefreshesParentAggregate exercises the propagate path
// directly: a SumTree and a BigSumTree nested under a plain Tree must
// both report their children's folded aggregate through Get, not the
// zero value they were created with.
func TestPropagateRefreshesParentAggregate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Update(func(tx storage.Tx) error {
		if err := db.CreateSubtree(ctx, tx, nil, []byte("accounts"), element.NewTree(), nil); err != nil {
			return err
		}
		accounts := [][]byte{[]byte("accounts")}
		sumsPath := [][]byte{[]byte("accounts"), []byte("sums")}
		bigSumsPath := [][]byte{[]byte("accounts"), []byte("bigsums")}
		if err := db.CreateSubtree(ctx, tx, accounts, []byte("sums"), element.Element{Tag: element.TagSumTree}, nil); err != nil {
			return err
		}
		if err := db.CreateSubtree(ctx, tx, accounts, []byte("bigsums"), element.Element{Tag: element.TagBigSumTree}, nil); err != nil {
			return err
		}
		if err := db.Insert(ctx, tx, sumsPath, []byte("a"), element.NewSumItem(7), nil); err != nil {
			return err
		}
		if err := db.Insert(ctx, tx, sumsPath, []byte("b"), element.NewSumItem(35), nil); err != nil {
			return err
		}
		if err := db.Insert(ctx, tx, bigSumsPath, []byte("a"), element.NewSumItem(100), nil); err != nil {
			return err
		}
		return db.Insert(ctx, tx, bigSumsPath, []byte("b"), element.NewSumItem(23), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.View(func(tx storage.Tx) error {
		accounts := [][]byte{[]byte("accounts")}
		sums, err := db.Get(ctx, tx, accounts, []byte("sums"), nil)
		if err != nil {
			return err
		}
		if sums.Sum != 42 {
			t.Fatalf("sums element reports Sum=%d, want 42", sums.Sum)
		}
		bigSums, err := db.Get(ctx, tx, accounts, []byte("bigsums"), nil)
		if err != nil {
			return err
		}
		if bigSums.BigSum == nil || bigSums.BigSum.Cmp(big.NewInt(123)) != 0 {
			t.Fatalf("bigsums element reports BigSum=%v, want 123", bigSums.BigSum)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify propagated aggregates: %v", err)
	}
}
