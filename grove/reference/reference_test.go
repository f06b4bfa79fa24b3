package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/groveerr"
)

// memDB is a minimal in-memory (path,key) -> Element table for exercising
// Resolve without pulling in storage/grove.
type memDB map[pathKey]element.Element

func (m memDB) lookup(_ context.Context, path [][]byte, key []byte, _ *cost.OperationCost) (element.Element, error) {
	el, ok := m[makeKey(path, key)]
	if !ok {
		return element.Element{}, groveerr.Wrap(groveerr.ErrElementNotFound, "not found")
	}
	return el, nil
}

func p(segs ...string) [][]byte {
	out := make([][]byte, len(segs))
	for i, s := range segs {
		out[i] = []byte(s)
	}
	return out
}

func TestResolveSingleHop(t *testing.T) {
	db := memDB{}
	db[makeKey(p("a"), []byte("target"))] = element.NewItem([]byte("value"))
	ref := element.NewReference(element.Sibling{Key: []byte("target")}, 0)

	cache, err := NewCache(16)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Resolve(context.Background(), db.lookup, cache, p("a", "source"), ref, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(got.Key) != "target" || got.Elem.Tag != element.TagItem {
		t.Fatalf("unexpected resolution: %+v", got)
	}
}

func TestResolveChain(t *testing.T) {
	db := memDB{}
	db[makeKey(p("a"), []byte("final"))] = element.NewItem([]byte("value"))
	db[makeKey(p("a"), []byte("mid"))] = element.NewReference(element.Sibling{Key: []byte("final")}, 0)
	ref := element.NewReference(element.Sibling{Key: []byte("mid")}, 0)

	got, err := Resolve(context.Background(), db.lookup, nil, p("a", "source"), ref, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(got.Key) != "final" {
		t.Fatalf("expected chain to land on final, got %q", got.Key)
	}
}

func TestResolveCycleFails(t *testing.T) {
	db := memDB{}
	db[makeKey(p("a"), []byte("x"))] = element.NewReference(element.Sibling{Key: []byte("y")}, 0)
	db[makeKey(p("a"), []byte("y"))] = element.NewReference(element.Sibling{Key: []byte("x")}, 0)
	ref := element.NewReference(element.Sibling{Key: []byte("x")}, 0)

	_, err := Resolve(context.Background(), db.lookup, nil, p("a", "source"), ref, nil)
	if !errors.Is(err, groveerr.ErrCyclicReference) {
		t.Fatalf("expected ErrCyclicReference, got %v", err)
	}
}

func TestResolveHopLimitExceeded(t *testing.T) {
	db := memDB{}
	// A chain of references each one hop longer than the next key, never
	// terminating in a non-Reference within the 3-hop budget.
	db[makeKey(p("a"), []byte("k0"))] = element.NewReference(element.Sibling{Key: []byte("k1")}, 3)
	db[makeKey(p("a"), []byte("k1"))] = element.NewReference(element.Sibling{Key: []byte("k2")}, 3)
	db[makeKey(p("a"), []byte("k2"))] = element.NewReference(element.Sibling{Key: []byte("k3")}, 3)
	db[makeKey(p("a"), []byte("k3"))] = element.NewItem([]byte("value"))
	ref := element.NewReference(element.Sibling{Key: []byte("k0")}, 3)

	_, err := Resolve(context.Background(), db.lookup, nil, p("a", "source"), ref, nil)
	if !errors.Is(err, groveerr.ErrReferenceLimitExceeded) {
		t.Fatalf("expected ErrReferenceLimitExceeded, got %v", err)
	}
}

func TestResolveUsesCache(t *testing.T) {
	db := memDB{}
	db[makeKey(p("a"), []byte("target"))] = element.NewItem([]byte("value"))
	ref := element.NewReference(element.Sibling{Key: []byte("target")}, 0)

	cache, err := NewCache(16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve(context.Background(), db.lookup, cache, p("a", "source"), ref, nil); err != nil {
		t.Fatal(err)
	}
	delete(db, makeKey(p("a"), []byte("target")))
	got, err := Resolve(context.Background(), db.lookup, cache, p("a", "source"), ref, nil)
	if err != nil {
		t.Fatalf("expected cached hit despite deleted target, got error: %v", err)
	}
	if string(got.Key) != "target" {
		t.Fatalf("unexpected cached resolution: %+v", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache, err := NewCache(16)
	if err != nil {
		t.Fatal(err)
	}
	cache.put(p("a"), []byte("k"), Resolved{Path: p("a"), Key: []byte("k"), Elem: element.NewItem([]byte("v"))})
	if _, ok := cache.get(p("a"), []byte("k")); !ok {
		t.Fatal("expected cache hit before invalidate")
	}
	cache.Invalidate(p("a"), []byte("k"))
	if _, ok := cache.get(p("a"), []byte("k")); ok {
		t.Fatal("expected cache miss after invalidate")
	}
}
