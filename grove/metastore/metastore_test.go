package metastore

import (
	"context"
	"os"
	"testing"

	"github.com/dashpay/grovedb-sub006/element"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	tmpFile := "/tmp/test_metastore.db"
	os.Remove(tmpFile)
	t.Cleanup(func() { os.Remove(tmpFile) })

	store, err := New(Config{DBPath: tmpFile})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGetRoundTrips(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	path := [][]byte{[]byte("a"), []byte("b")}
	prefix := []byte{1, 2, 3, 4}

	if err := s.Put(ctx, path, prefix, element.TagTree); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("Get returned nil for a catalogued path")
	}
	if string(rec.Prefix) != string(prefix) {
		t.Fatalf("Prefix = %x, want %x", rec.Prefix, prefix)
	}
	if rec.Tag != element.TagTree {
		t.Fatalf("Tag = %s, want TagTree", rec.Tag)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newStore(t)
	rec, err := s.Get(context.Background(), [][]byte{[]byte("nope")})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatal("Get returned a record for an uncatalogued path")
	}
}

func TestPutOverwritesExisting(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	path := [][]byte{[]byte("a")}

	if err := s.Put(ctx, path, []byte{1}, element.TagTree); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, path, []byte{2}, element.TagSumTree); err != nil {
		t.Fatalf("Put (overwrite): %v", err)
	}

	rec, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Tag != element.TagSumTree || string(rec.Prefix) != string([]byte{2}) {
		t.Fatalf("Get after overwrite = %+v, want updated record", rec)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	path := [][]byte{[]byte("a")}

	if err := s.Put(ctx, path, []byte{1}, element.TagTree); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rec, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatal("Get returned a record after Delete")
	}
}

func TestChildrenListsDirectDescendants(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	parent := [][]byte{[]byte("p")}
	childA := [][]byte{[]byte("p"), []byte("a")}
	childB := [][]byte{[]byte("p"), []byte("b")}
	grandchild := [][]byte{[]byte("p"), []byte("a"), []byte("z")}

	for i, path := range [][][]byte{parent, childA, childB, grandchild} {
		if err := s.Put(ctx, path, []byte{byte(i)}, element.TagTree); err != nil {
			t.Fatalf("Put %x: %v", path, err)
		}
	}

	children, err := s.Children(ctx, parent)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("Children(parent) returned %d entries, want 2: %v", len(children), children)
	}
}
