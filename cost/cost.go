// Package cost implements GroveDB's deterministic per-operation resource
// vector and the monadic plumbing that threads it through
// every layer: storage, merk, grove, proofs.
package cost

import "fmt"

// RemovedBytes sections removed-byte counts by the retention class they
// came from, since different classes (e.g. a pruned Merk subtree vs a
// single overwritten value) have different fee implications downstream.
type RemovedBytes struct {
	NormalBytes  uint32
	TreeBytes    uint32 // bytes removed because a child Tree subtree was purged
	NonMerkBytes uint32 // bytes removed from MMR/bulk/dense data namespaces
}

// Add sums two RemovedBytes sections.
func (r RemovedBytes) Add(o RemovedBytes) RemovedBytes {
	return RemovedBytes{
		NormalBytes:  r.NormalBytes + o.NormalBytes,
		TreeBytes:    r.TreeBytes + o.TreeBytes,
		NonMerkBytes: r.NonMerkBytes + o.NonMerkBytes,
	}
}

// OperationCost is the resource vector accumulated by every GroveDB
// operation.
type OperationCost struct {
	SeekCount           uint32
	AddedBytes          uint32
	ReplacedBytes       uint32
	RemovedBytes        RemovedBytes
	StorageLoadedBytes  uint64
	HashNodeCalls       uint32
	SinsemillaHashCalls uint32
}

// Add accumulates o into c in place and returns c for chaining.
func (c *OperationCost) Add(o OperationCost) *OperationCost {
	c.SeekCount += o.SeekCount
	c.AddedBytes += o.AddedBytes
	c.ReplacedBytes += o.ReplacedBytes
	c.RemovedBytes = c.RemovedBytes.Add(o.RemovedBytes)
	c.StorageLoadedBytes += o.StorageLoadedBytes
	c.HashNodeCalls += o.HashNodeCalls
	c.SinsemillaHashCalls += o.SinsemillaHashCalls
	return c
}

// Seek records a single storage seek (one Get/iterator step).
func (c *OperationCost) Seek() { c.SeekCount++ }

// HashNode records one hash-primitive call (value_hash/kv_hash/node_hash/
// combine_hash/node_hash_with_count each count as one call).
func (c *OperationCost) HashNode() { c.HashNodeCalls++ }

// Loaded records bytes read back from storage.
func (c *OperationCost) Loaded(n uint64) { c.StorageLoadedBytes += n }

// SinsemillaHash records one call to the ZK-friendly external hash
// primitive a CommitmentTree's root uses in place of blake3 — tracked
// separately since its calibration is outside this core (spec.md open
// question).
func (c *OperationCost) SinsemillaHash() { c.SinsemillaHashCalls++ }

// UpdateValue records an added/replaced/removed delta for a value that
// shrank, grew, or stayed the same size.
func (c *OperationCost) UpdateValue(oldLen, newLen int) {
	switch {
	case newLen < oldLen:
		c.ReplacedBytes += uint32(newLen)
		c.RemovedBytes.NormalBytes += uint32(oldLen - newLen)
	case newLen > oldLen:
		c.ReplacedBytes += uint32(oldLen)
		c.AddedBytes += uint32(newLen - oldLen)
	default:
		c.ReplacedBytes += uint32(newLen)
	}
}

// Result is the monadic wrapper every GroveDB operation returns:
// (value, accumulated cost, error). Early returns on error still carry
// whatever cost was accumulated up to the failure point.
type Result[T any] struct {
	Value T
	Cost  OperationCost
	Err   error
}

// Ok constructs a successful Result with the given cost.
func Ok[T any](v T, c OperationCost) Result[T] {
	return Result[T]{Value: v, Cost: c}
}

// Err constructs a failed Result, still carrying whatever cost accrued
// before the failure.
func Err[T any](c OperationCost, err error) Result[T] {
	return Result[T]{Cost: c, Err: err}
}

// Unwrap adds r's cost into acc and returns r's value and error. This is
// the monadic "bind": every layer calls Unwrap on the Result of the layer
// below it so cost composes additively regardless of success or failure.
func Unwrap[T any](acc *OperationCost, r Result[T]) (T, error) {
	acc.Add(r.Cost)
	return r.Value, r.Err
}

// Estimator bounds the worst-case cost of an AVL operation over n elements
// before execution, for fee prediction.
type Estimator struct {
	MaxNodeSize uint32 // largest possible serialized node size
}

// AVLHeight returns a worst-case AVL height bound for n elements:
// floor(1.44 * b) + 1, where b is the bit length of n (floor(log2(n)) + 1),
// so AVLHeight(1) = 2 and AVLHeight(1024) = 16 (n=0 has height 0).
func AVLHeight(n uint64) uint32 {
	if n == 0 {
		return 0
	}
	// 1.44 * log2(n), computed without floating-point log to stay
	// deterministic: count bits and apply the 1.44 factor as a ratio.
	bits := uint32(0)
	for v := n; v > 0; v >>= 1 {
		bits++
	}
	// bits ~= log2(n)+1; apply 1.44 factor scaled by 100 to avoid floats.
	return (bits*144)/100 + 1
}

// WorstCasePut bounds the cost of a single Put into a tree of n existing
// elements: one node write, plus up to two extra node rewrites per level
// of AVL height for cascading rotations.
func (e Estimator) WorstCasePut(n uint64) OperationCost {
	height := AVLHeight(n)
	nodesRewritten := uint64(height)*2 + 1
	return OperationCost{
		SeekCount:     height + 1,
		AddedBytes:    e.MaxNodeSize,
		ReplacedBytes: uint32(nodesRewritten) * e.MaxNodeSize,
		HashNodeCalls: uint32(nodesRewritten) * 3, // value_hash, kv_hash, node_hash
	}
}

// String renders a compact human-readable summary, useful in logs.
func (c OperationCost) String() string {
	return fmt.Sprintf(
		"seeks=%d added=%d replaced=%d removed=%d loaded=%d hashes=%d sinsemilla=%d",
		c.SeekCount, c.AddedBytes, c.ReplacedBytes,
		c.RemovedBytes.NormalBytes+c.RemovedBytes.TreeBytes+c.RemovedBytes.NonMerkBytes,
		c.StorageLoadedBytes, c.HashNodeCalls, c.SinsemillaHashCalls,
	)
}
