package element

import (
	"bytes"
	"math/big"
	"testing"
)

func roundTrip(t *testing.T, e Element) Element {
	t.Helper()
	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	data2, err := got.Marshal()
	if err != nil {
		t.Fatalf("re-Marshal: %v", err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatalf("round trip not stable: %x != %x", data, data2)
	}
	return got
}

func TestItemRoundTrip(t *testing.T) {
	e := NewItem([]byte("hello world"))
	got := roundTrip(t, e)
	if !bytes.Equal(got.Bytes, e.Bytes) {
		t.Fatalf("Bytes mismatch: %q != %q", got.Bytes, e.Bytes)
	}
}

func TestItemRoundTripEmpty(t *testing.T) {
	e := NewItem(nil)
	got := roundTrip(t, e)
	if len(got.Bytes) != 0 {
		t.Fatalf("expected empty bytes, got %q", got.Bytes)
	}
}

func TestSumItemRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1 << 40, -(1 << 40)} {
		e := NewSumItem(v)
		got := roundTrip(t, e)
		if got.SumItemValue != v {
			t.Fatalf("SumItemValue: got %d want %d", got.SumItemValue, v)
		}
	}
}

func TestTreeRoundTripNilAndSetRoot(t *testing.T) {
	e := NewTree()
	got := roundTrip(t, e)
	if got.ChildRootKey != nil {
		t.Fatalf("expected nil child root key, got %x", got.ChildRootKey)
	}

	e2 := Element{Tag: TagTree, ChildRootKey: []byte("rootkey")}
	got2 := roundTrip(t, e2)
	if !bytes.Equal(got2.ChildRootKey, e2.ChildRootKey) {
		t.Fatalf("ChildRootKey mismatch: %x != %x", got2.ChildRootKey, e2.ChildRootKey)
	}
}

func TestReferenceFormsRoundTrip(t *testing.T) {
	forms := []ReferenceForm{
		Absolute{Path: [][]byte{[]byte("a"), []byte("b")}},
		UpstreamRootHeight{N: 2, Suffix: [][]byte{[]byte("x")}},
		UpstreamRootHeightWithParent{N: 1, Suffix: nil},
		UpstreamFromElement{N: 3, Suffix: [][]byte{[]byte("y"), []byte("z")}},
		Cousin{Key: []byte("cousin-key")},
		RemovedCousin{Path: [][]byte{[]byte("p1"), []byte("p2")}},
		Sibling{Key: []byte("sib-key")},
	}
	for _, f := range forms {
		e := NewReference(f, 5)
		got := roundTrip(t, e)
		if got.MaxHop != 5 {
			t.Fatalf("MaxHop: got %d want 5", got.MaxHop)
		}
		if got.RefForm == nil {
			t.Fatalf("RefForm is nil after round trip")
		}
	}
}

func TestReferenceDefaultMaxHop(t *testing.T) {
	e := NewReference(Cousin{Key: []byte("k")}, 0)
	if e.MaxHop != DefaultMaxHop {
		t.Fatalf("expected default max hop %d, got %d", DefaultMaxHop, e.MaxHop)
	}
}

func TestBigSumTreeRoundTrip(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(12345),
		big.NewInt(-98765),
		new(big.Int).Lsh(big.NewInt(1), 100),
		new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 100)),
	}
	for _, v := range cases {
		e := Element{Tag: TagBigSumTree, ChildRootKey: []byte("root"), BigSum: v}
		got := roundTrip(t, e)
		if got.BigSum.Cmp(v) != 0 {
			t.Fatalf("BigSum: got %s want %s", got.BigSum, v)
		}
	}
}

func TestCountSumTreeRoundTrip(t *testing.T) {
	e := Element{Tag: TagCountSumTree, ChildRootKey: []byte("r"), Count: 42, Sum: -7}
	got := roundTrip(t, e)
	if got.Count != 42 || got.Sum != -7 {
		t.Fatalf("got Count=%d Sum=%d", got.Count, got.Sum)
	}
}

func TestMmrTreeRoundTrip(t *testing.T) {
	e := Element{Tag: TagMmrTree, MmrSize: 1000000}
	got := roundTrip(t, e)
	if got.MmrSize != 1000000 {
		t.Fatalf("MmrSize: got %d", got.MmrSize)
	}
}

func TestBulkAppendTreeRoundTrip(t *testing.T) {
	e := Element{Tag: TagBulkAppendTree, BulkCount: 999, BulkChunkPower: 10}
	got := roundTrip(t, e)
	if got.BulkCount != 999 || got.BulkChunkPower != 10 {
		t.Fatalf("got BulkCount=%d BulkChunkPower=%d", got.BulkCount, got.BulkChunkPower)
	}
}

func TestDenseFixedSizeTreeRoundTrip(t *testing.T) {
	e := Element{Tag: TagDenseFixedSizeTree, DenseCount: 300, DenseHeight: 9}
	got := roundTrip(t, e)
	if got.DenseCount != 300 || got.DenseHeight != 9 {
		t.Fatalf("got DenseCount=%d DenseHeight=%d", got.DenseCount, got.DenseHeight)
	}
}

func TestCommitmentTreeRoundTrip(t *testing.T) {
	e := Element{Tag: TagCommitmentTree, CommitmentCount: 77, ChunkPower: 4}
	got := roundTrip(t, e)
	if got.CommitmentCount != 77 || got.ChunkPower != 4 {
		t.Fatalf("got CommitmentCount=%d ChunkPower=%d", got.CommitmentCount, got.ChunkPower)
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	e := NewItem([]byte("v"))
	e.Flags = []byte("some-flags")
	got := roundTrip(t, e)
	if !bytes.Equal(got.Flags, e.Flags) {
		t.Fatalf("Flags mismatch: %q != %q", got.Flags, e.Flags)
	}
}

func TestFlagsNilVsEmptyDistinguished(t *testing.T) {
	e := NewItem([]byte("v")) // Flags is nil
	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Flags != nil {
		t.Fatalf("expected nil flags, got %q", got.Flags)
	}

	e2 := NewItem([]byte("v"))
	e2.Flags = []byte{}
	data2, err := e2.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got2, err := Unmarshal(data2)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got2.Flags == nil || len(got2.Flags) != 0 {
		t.Fatalf("expected empty non-nil flags, got %v", got2.Flags)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	e := NewItem([]byte("v"))
	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data = append(data, 0xFF)
	if _, err := Unmarshal(data); err == nil {
		t.Fatalf("expected error for trailing bytes, got nil")
	}
}

func TestUnmarshalRejectsInvalidTag(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFE}); err == nil {
		t.Fatalf("expected error for invalid tag")
	}
}

func TestUnmarshalRejectsTruncatedData(t *testing.T) {
	e := NewSumItem(42)
	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	truncated := data[:len(data)-3]
	if _, err := Unmarshal(truncated); err == nil {
		t.Fatalf("expected error for truncated data")
	}
}
