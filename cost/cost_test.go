package cost

import "testing"

func TestUpdateValueShrink(t *testing.T) {
	var c OperationCost
	c.UpdateValue(10, 4)
	if c.ReplacedBytes != 4 {
		t.Fatalf("replaced = %d, want 4", c.ReplacedBytes)
	}
	if c.RemovedBytes.NormalBytes != 6 {
		t.Fatalf("removed = %d, want 6", c.RemovedBytes.NormalBytes)
	}
}

func TestUpdateValueGrow(t *testing.T) {
	var c OperationCost
	c.UpdateValue(4, 10)
	if c.ReplacedBytes != 4 {
		t.Fatalf("replaced = %d, want 4", c.ReplacedBytes)
	}
	if c.AddedBytes != 6 {
		t.Fatalf("added = %d, want 6", c.AddedBytes)
	}
}

func TestUpdateValueSame(t *testing.T) {
	var c OperationCost
	c.UpdateValue(7, 7)
	if c.ReplacedBytes != 7 || c.AddedBytes != 0 || c.RemovedBytes.NormalBytes != 0 {
		t.Fatalf("unexpected cost for same-size update: %+v", c)
	}
}

func TestMonotonicity(t *testing.T) {
	// Cost of a composite operation equals the sum of its constituent
	// primitives' costs.
	a := OperationCost{SeekCount: 1, HashNodeCalls: 3}
	b := OperationCost{SeekCount: 2, HashNodeCalls: 1}

	composite := OperationCost{}
	composite.Add(a)
	composite.Add(b)

	sumSeeks := a.SeekCount + b.SeekCount
	sumHashes := a.HashNodeCalls + b.HashNodeCalls
	if composite.SeekCount != sumSeeks || composite.HashNodeCalls != sumHashes {
		t.Fatalf("composite cost %+v does not equal sum of parts", composite)
	}
}

func TestUnwrapAccumulatesOnError(t *testing.T) {
	var acc OperationCost
	r := Err[int](OperationCost{SeekCount: 5}, errTest)
	_, err := Unwrap(&acc, r)
	if err != errTest {
		t.Fatalf("expected errTest, got %v", err)
	}
	if acc.SeekCount != 5 {
		t.Fatalf("cost not accumulated on error path: %+v", acc)
	}
}

func TestAVLHeight(t *testing.T) {
	cases := []struct {
		n    uint64
		want uint32
	}{
		{0, 0},
		{1, 2},
		{1024, 16},
	}
	for _, c := range cases {
		if got := AVLHeight(c.n); got != c.want {
			t.Errorf("AVLHeight(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

var errTest = fmtError("boom")

func fmtError(s string) error { return simpleErr(s) }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
