package dense

import (
	"context"
	"testing"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/memstore"
)

func newTx(t *testing.T) storage.Tx {
	t.Helper()
	tx, err := memstore.New().Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

func mustAppend(t *testing.T, tx storage.Tx, path [][]byte, height uint8, values ...[]byte) element.Element {
	t.Helper()
	a := Appender{}
	el := element.Element{Tag: element.TagDenseFixedSizeTree, DenseHeight: height}
	var err error
	el, err = a.Append(context.Background(), tx, path, el, values, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return el
}

func TestCapacity(t *testing.T) {
	if got := Capacity(1); got != 1 {
		t.Errorf("Capacity(1) = %d, want 1", got)
	}
	if got := Capacity(3); got != 7 {
		t.Errorf("Capacity(3) = %d, want 7", got)
	}
}

func TestAppendRejectsOverCapacity(t *testing.T) {
	tx := newTx(t)
	path := [][]byte{[]byte("d")}
	a := Appender{}
	el := element.Element{Tag: element.TagDenseFixedSizeTree, DenseHeight: 1}
	if _, err := a.Append(context.Background(), tx, path, el, [][]byte{[]byte("a")}, nil); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := a.Append(context.Background(), tx, path, el, [][]byte{[]byte("b")}, nil); err == nil {
		t.Fatal("append beyond height-1 capacity (1 slot) succeeded")
	}
}

func TestRootHashEmptyIsNil(t *testing.T) {
	tx := newTx(t)
	root, err := RootHash(context.Background(), tx, [][]byte{[]byte("d")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if root != nil {
		t.Fatalf("RootHash on empty tree = %v, want nil", root)
	}
}

func TestProveRangeRoundTrips(t *testing.T) {
	tx := newTx(t)
	path := [][]byte{[]byte("d")}
	values := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	mustAppend(t, tx, path, 2, values...)

	root, err := RootHash(context.Background(), tx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if root == nil {
		t.Fatal("nil root after filling tree")
	}

	proof, err := ProveRange(context.Background(), tx, path, []uint64{1}, nil)
	if err != nil {
		t.Fatalf("ProveRange: %v", err)
	}
	proof.Height = 2
	ok, err := Verify(proof, *root, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("Verify rejected a valid proof")
	}
}

func TestVerifyRejectsSiblingAtAncestorOfEntry(t *testing.T) {
	tx := newTx(t)
	path := [][]byte{[]byte("d")}
	values := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	mustAppend(t, tx, path, 2, values...)
	root, err := RootHash(context.Background(), tx, path, nil)
	if err != nil {
		t.Fatal(err)
	}

	proof, err := ProveRange(context.Background(), tx, path, []uint64{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	proof.Height = 2
	// Forge: claim a sibling hash at the root, which is an ancestor of
	// the disclosed position 1.
	proof.Siblings[0] = gvhash.Zero
	ok, err := Verify(proof, *root, nil)
	if err == nil && ok {
		t.Fatal("Verify accepted a forged ancestor sibling hash")
	}
}
