package batch

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/grove"
	"github.com/dashpay/grovedb-sub006/groveerr"
	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/memstore"
)

func newTestDB(t *testing.T) *grove.DB {
	t.Helper()
	return grove.Open(memstore.New())
}

func mustGet(t *testing.T, db *grove.DB, path [][]byte, key []byte) element.Element {
	t.Helper()
	var el element.Element
	err := db.View(func(tx storage.Tx) error {
		var err error
		el, err = db.Get(context.Background(), tx, path, key, nil)
		return err
	})
	if err != nil {
		t.Fatalf("Get(%q, %q): %v", path, key, err)
	}
	return el
}

func TestApplyFlatInsertsCommitTogether(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Update(func(tx storage.Tx) error {
		b := New(db)
		b.Insert(nil, []byte("a"), element.NewItem([]byte("1")))
		b.Insert(nil, []byte("b"), element.NewItem([]byte("2")))
		b.Insert(nil, []byte("c"), element.NewItem([]byte("3")))
		return b.Apply(ctx, tx, nil)
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for k, v := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		el := mustGet(t, db, nil, []byte(k))
		if !bytes.Equal(el.Bytes, []byte(v)) {
			t.Fatalf("key %q = %q, want %q", k, el.Bytes, v)
		}
	}
}

func TestApplyRejectsDuplicateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Update(func(tx storage.Tx) error {
		b := New(db)
		b.Insert(nil, []byte("a"), element.NewItem([]byte("1")))
		b.Insert(nil, []byte("a"), element.NewItem([]byte("2")))
		return b.Apply(ctx, tx, nil)
	})
	if groveerr.Classify(err) != groveerr.KindTypeMismatch {
		t.Fatalf("err = %v, want KindTypeMismatch", err)
	}
}

func TestApplyPropagatesNestedSubtreeRoot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Update(func(tx storage.Tx) error {
		if err := db.CreateSubtree(ctx, tx, nil, []byte("sub"), element.NewTree(), nil); err != nil {
			return err
		}
		b := New(db)
		b.Insert([][]byte{[]byte("sub")}, []byte("x"), element.NewItem([]byte("1")))
		b.Insert([][]byte{[]byte("sub")}, []byte("y"), element.NewItem([]byte("2")))
		return b.Apply(ctx, tx, nil)
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var rootEl element.Element
	err = db.View(func(tx storage.Tx) error {
		var err error
		rootEl, err = db.Get(ctx, tx, nil, []byte("sub"), nil)
		return err
	})
	if err != nil {
		t.Fatalf("Get(sub): %v", err)
	}
	if len(rootEl.ChildRootKey) == 0 {
		t.Fatalf("sub's ChildRootKey is empty after batch insert into it, want non-empty")
	}

	sub := mustGet(t, db, [][]byte{[]byte("sub")}, []byte("x"))
	if !bytes.Equal(sub.Bytes, []byte("1")) {
		t.Fatalf("sub/x = %q, want 1", sub.Bytes)
	}
}

func TestApplyDeleteQueuedAlongsideInsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Update(func(tx storage.Tx) error {
		return db.Insert(ctx, tx, nil, []byte("old"), element.NewItem([]byte("gone")), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = db.Update(func(tx storage.Tx) error {
		b := New(db)
		b.Delete(nil, []byte("old"))
		b.Insert(nil, []byte("new"), element.NewItem([]byte("here")))
		return b.Apply(ctx, tx, nil)
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	err = db.View(func(tx storage.Tx) error {
		_, err := db.Get(ctx, tx, nil, []byte("old"), nil)
		return err
	})
	if groveerr.Classify(err) != groveerr.KindElementNotFound {
		t.Fatalf("Get(old) err = %v, want KindElementNotFound", err)
	}

	newEl := mustGet(t, db, nil, []byte("new"))
	if !bytes.Equal(newEl.Bytes, []byte("here")) {
		t.Fatalf("new = %q, want here", newEl.Bytes)
	}
}

func TestApplyReferenceInsertResolvesAgainstAlreadyAppliedSibling(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Update(func(tx storage.Tx) error {
		b := New(db)
		b.Insert(nil, []byte("target"), element.NewItem([]byte("payload")))
		b.Insert(nil, []byte("ref"), element.NewReference(element.Sibling{Key: []byte("target")}, 0))
		return b.Apply(ctx, tx, nil)
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var resolvedEl element.Element
	err = db.View(func(tx storage.Tx) error {
		var err error
		_, _, resolvedEl, err = db.GetResolved(ctx, tx, nil, []byte("ref"), nil)
		return err
	})
	if err != nil {
		t.Fatalf("GetResolved: %v", err)
	}
	if !bytes.Equal(resolvedEl.Bytes, []byte("payload")) {
		t.Fatalf("resolved = %q, want payload", resolvedEl.Bytes)
	}
}

func TestApplyAppendWithoutOwningElementFails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Update(func(tx storage.Tx) error {
		b := New(db, fakeAppender{tag: element.TagMmrTree})
		b.Append([][]byte{[]byte("ledger")}, []byte("entry"))
		return b.Apply(ctx, tx, nil)
	})
	if err == nil || !errors.Is(err, groveerr.ErrPathNotFound) {
		t.Fatalf("err = %v, want ErrPathNotFound", err)
	}
}

func TestApplyAppendCoalescesAndReplacesOwningElement(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Update(func(tx storage.Tx) error {
		return db.CreateSubtree(ctx, tx, nil, []byte("ledger"), element.Element{Tag: element.TagMmrTree, MmrSize: 0}, nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	fa := &countingAppender{tag: element.TagMmrTree}
	err = db.Update(func(tx storage.Tx) error {
		b := New(db, fa)
		b.Append([][]byte{[]byte("ledger")}, []byte("e1"))
		b.Append([][]byte{[]byte("ledger")}, []byte("e2"))
		return b.Apply(ctx, tx, nil)
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if fa.calls != 1 {
		t.Fatalf("Append called %d times, want 1 (coalesced)", fa.calls)
	}
	if len(fa.lastValues) != 2 {
		t.Fatalf("Append saw %d values, want 2", len(fa.lastValues))
	}

	el := mustGet(t, db, nil, []byte("ledger"))
	if el.MmrSize != 2 {
		t.Fatalf("ledger MmrSize = %d, want 2", el.MmrSize)
	}
}

type fakeAppender struct{ tag element.Tag }

func (f fakeAppender) Tag() element.Tag { return f.tag }
func (f fakeAppender) Append(ctx context.Context, tx storage.Tx, path [][]byte, existing element.Element, values [][]byte, acc *cost.OperationCost) (element.Element, error) {
	return element.Element{}, nil
}

type countingAppender struct {
	tag        element.Tag
	calls      int
	lastValues [][]byte
}

func (c *countingAppender) Tag() element.Tag { return c.tag }
func (c *countingAppender) Append(ctx context.Context, tx storage.Tx, path [][]byte, existing element.Element, values [][]byte, acc *cost.OperationCost) (element.Element, error) {
	c.calls++
	c.lastValues = values
	return element.Element{Tag: element.TagMmrTree, MmrSize: uint64(len(values))}, nil
}
