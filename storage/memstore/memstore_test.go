package memstore

import (
	"context"
	"testing"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/storage"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	var acc cost.OperationCost

	txn, err := s.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn.Put(ctx, storage.CFDefault, []byte("k"), []byte("v"), &acc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	txn2, _ := s.Begin(false)
	v, err := txn2.Get(ctx, storage.CFDefault, []byte("k"), &acc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("got %q, want %q", v, "v")
	}
}

func TestDiscardDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	s := New()

	txn, _ := s.Begin(true)
	_ = txn.Put(ctx, storage.CFDefault, []byte("k"), []byte("v"), nil)
	txn.Discard()

	txn2, _ := s.Begin(false)
	v, err := txn2.Get(ctx, storage.CFDefault, []byte("k"), nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != nil {
		t.Fatalf("discarded write became visible: %q", v)
	}
}

func TestPrefixedContextIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	txn, _ := s.Begin(true)

	p1 := storage.NewPrefixedContext(txn, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	p2 := storage.NewPrefixedContext(txn, []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))

	if err := p1.Put(ctx, storage.CFDefault, []byte("key"), []byte("one"), nil); err != nil {
		t.Fatalf("p1.Put: %v", err)
	}
	if err := p2.Put(ctx, storage.CFDefault, []byte("key"), []byte("two"), nil); err != nil {
		t.Fatalf("p2.Put: %v", err)
	}

	v1, _ := p1.Get(ctx, storage.CFDefault, []byte("key"), nil)
	v2, _ := p2.Get(ctx, storage.CFDefault, []byte("key"), nil)
	if string(v1) != "one" || string(v2) != "two" {
		t.Fatalf("prefix isolation broken: v1=%q v2=%q", v1, v2)
	}
}

func TestMetaIsUnprefixed(t *testing.T) {
	ctx := context.Background()
	s := New()
	txn, _ := s.Begin(true)

	p1 := storage.NewPrefixedContext(txn, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	p2 := storage.NewPrefixedContext(txn, []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))

	if err := p1.Put(ctx, storage.CFMeta, []byte("version"), []byte("1"), nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := p2.Get(ctx, storage.CFMeta, []byte("version"), nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "1" {
		t.Fatalf("CFMeta should be unprefixed/shared across subtrees, got %q", v)
	}
}
