package query

import (
	"context"
	"testing"

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

func putItems(t *testing.T, db *grove.DB, path [][]byte, kv map[string]string) {
	t.Helper()
	ctx := context.Background()
	err := db.Update(func(tx storage.Tx) error {
		for k, v := range kv {
			if err := db.Insert(ctx, tx, path, []byte(k), element.NewItem([]byte(v)), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func run(t *testing.T, db *grove.DB, pq PathQuery) []Result {
	t.Helper()
	var out []Result
	err := db.View(func(tx storage.Tx) error {
		var err error
		out, err = Execute(context.Background(), db, tx, pq, nil)
		return err
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return out
}

func keys(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = string(r.Key)
	}
	return out
}

func TestExecuteRangeAscending(t *testing.T) {
	db := newTestDB(t)
	putItems(t, db, nil, map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"})

	q := &Query{
		Items:       []Item{{Kind: ItemRange, Start: []byte("b"), End: []byte("d")}},
		LeftToRight: true,
	}
	got := keys(run(t, db, PathQuery{SizedQuery: SizedQuery{Query: q}}))
	want := []string{"b", "c"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExecuteRangeDescending(t *testing.T) {
	db := newTestDB(t)
	putItems(t, db, nil, map[string]string{"a": "1", "b": "2", "c": "3"})

	q := &Query{
		Items:       []Item{{Kind: ItemRangeFull}},
		LeftToRight: false,
	}
	got := keys(run(t, db, PathQuery{SizedQuery: SizedQuery{Query: q}}))
	want := []string{"c", "b", "a"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExecuteKeyItem(t *testing.T) {
	db := newTestDB(t)
	putItems(t, db, nil, map[string]string{"a": "1", "b": "2"})

	q := &Query{Items: []Item{{Kind: ItemKey, Key: []byte("b")}}, LeftToRight: true}
	got := run(t, db, PathQuery{SizedQuery: SizedQuery{Query: q}})
	if len(got) != 1 || string(got[0].Key) != "b" {
		t.Fatalf("got %+v, want single result b", got)
	}
}

func TestExecuteOffsetAndLimit(t *testing.T) {
	db := newTestDB(t)
	putItems(t, db, nil, map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"})

	offset, limit := uint64(1), uint64(2)
	q := &Query{Items: []Item{{Kind: ItemRangeFull}}, LeftToRight: true}
	got := keys(run(t, db, PathQuery{SizedQuery: SizedQuery{Query: q, Offset: &offset, Limit: &limit}}))
	want := []string{"b", "c"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExecuteRecursesDefaultSubquery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	err := db.Update(func(tx storage.Tx) error {
		return db.CreateSubtree(ctx, tx, nil, []byte("sub"), element.NewTree(), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	putItems(t, db, [][]byte{[]byte("sub")}, map[string]string{"x": "1", "y": "2"})

	q := &Query{
		Items:           []Item{{Kind: ItemKey, Key: []byte("sub")}},
		DefaultSubquery: &Query{Items: []Item{{Kind: ItemRangeFull}}, LeftToRight: true},
		LeftToRight:     true,
	}
	got := run(t, db, PathQuery{SizedQuery: SizedQuery{Query: q}})
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 (recursed into sub)", len(got))
	}
	for _, r := range got {
		if len(r.Path) != 1 || string(r.Path[0]) != "sub" {
			t.Fatalf("result path = %q, want [sub]", r.Path)
		}
	}
}

func TestExecuteAddParentTreeOnSubquery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	err := db.Update(func(tx storage.Tx) error {
		return db.CreateSubtree(ctx, tx, nil, []byte("sub"), element.NewTree(), nil)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	putItems(t, db, [][]byte{[]byte("sub")}, map[string]string{"x": "1"})

	q := &Query{
		Items:                   []Item{{Kind: ItemKey, Key: []byte("sub")}},
		DefaultSubquery:         &Query{Items: []Item{{Kind: ItemRangeFull}}, LeftToRight: true},
		LeftToRight:             true,
		AddParentTreeOnSubquery: true,
	}
	got := run(t, db, PathQuery{SizedQuery: SizedQuery{Query: q}})
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 (parent tree + child)", len(got))
	}
	if string(got[0].Key) != "sub" || got[0].Element.Tag != element.TagTree {
		t.Fatalf("first result = %+v, want the parent Tree element", got[0])
	}
}

func TestExecuteCapacityExceeded(t *testing.T) {
	db := newTestDB(t)
	putItems(t, db, nil, map[string]string{"a": "1"})

	q := &Query{Items: []Item{{Kind: ItemRangeFull}}, LeftToRight: true}
	err := db.View(func(tx storage.Tx) error {
		state := &execState{maxResults: 0, maxBytes: DefaultMaxResultBytes}
		return executeAt(context.Background(), db, tx, nil, q, state, nil)
	})
	if groveerr.Classify(err) != groveerr.KindCapacityExceeded {
		t.Fatalf("err = %v, want KindCapacityExceeded", err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
