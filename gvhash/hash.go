// Package gvhash implements the five BLAKE3 hash primitives that bind
// GroveDB's hierarchy together: value_hash, kv_hash,
// kv_digest_to_kv_hash, node_hash (with its node_hash_with_count variant),
// and combine_hash.
//
// All length-prefix encoding uses an unsigned LEB128 varint. Plain
// concatenation is never used: it would admit trivial key/value
// boundary collisions (e.g. ("ab","c") and ("a","bc") hashing
// identically).
package gvhash

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// Size is the fixed digest size of every GroveDB hash.
const Size = 32

// Hash is a 32-byte BLAKE3 digest, used for value_hash, kv_hash, node_hash
// and combine_hash results throughout the hierarchy.
type Hash [Size]byte

// Zero is the all-zero hash used in place of an absent child in node_hash.
var Zero Hash

// IsZero reports whether h is the all-zero placeholder hash.
func (h Hash) IsZero() bool { return h == Zero }

// Bytes returns h as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

func sum(parts ...[]byte) Hash {
	hasher := blake3.New(Size, nil)
	for _, p := range parts {
		hasher.Write(p)
	}
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// appendVarint appends v to buf as an unsigned LEB128 varint and returns
// the extended slice.
func appendVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func lengthPrefixed(b []byte) []byte {
	out := appendVarint(make([]byte, 0, len(b)+binary.MaxVarintLen64), uint64(len(b)))
	return append(out, b...)
}

// ValueHash computes value_hash(v) = blake3(varint(|v|) ‖ v).
func ValueHash(v []byte) Hash {
	return sum(lengthPrefixed(v))
}

// KVHash computes kv_hash(k, v) = blake3(varint(|k|) ‖ k ‖ value_hash(v)).
func KVHash(k, v []byte) Hash {
	vh := ValueHash(v)
	return KVDigestToKVHash(k, vh)
}

// KVDigestToKVHash computes kv_hash from a precomputed value_hash, used
// when the caller already has vh (proofs, subtree/reference bindings):
// blake3(varint(|k|) ‖ k ‖ vh).
func KVDigestToKVHash(k []byte, vh Hash) Hash {
	return sum(lengthPrefixed(k), vh[:])
}

// absentOr32 returns 32 zero bytes for a nil child hash, or the hash's
// bytes otherwise — the "absent children replaced by 32 zero bytes" rule.
func absentOr32(h *Hash) []byte {
	if h == nil {
		return Zero[:]
	}
	return h[:]
}

// NodeHash computes node_hash(kv_hash, left, right) = blake3(kv_hash ‖
// left ‖ right), with absent children (nil) replaced by 32 zero bytes.
func NodeHash(kvHash Hash, left, right *Hash) Hash {
	return sum(kvHash[:], absentOr32(left), absentOr32(right))
}

// NodeHashWithCount computes node_hash_with_count(kv_hash, left, right,
// count_be) = blake3(kv_hash ‖ left ‖ right ‖ count_be), used when the
// node's feature_type carries a provable count that must be committed
// to the node hash itself.
func NodeHashWithCount(kvHash Hash, left, right *Hash, count uint64) Hash {
	var countBE [8]byte
	binary.BigEndian.PutUint64(countBE[:], count)
	return sum(kvHash[:], absentOr32(left), absentOr32(right), countBE[:])
}

// CombineHash computes combine_hash(a, b) = blake3(a ‖ b), binding an
// element's bytes to its child root hash (Tree, Reference, and the
// non-Merk tree roots).
func CombineHash(a, b Hash) Hash {
	return sum(a[:], b[:])
}

// ElementBytesHash computes blake3(varint(|bytes|) ‖ bytes), the first
// argument CombineHash takes when binding a Tree/Reference element's own
// serialized bytes to its child root.
func ElementBytesHash(elementBytes []byte) Hash {
	return sum(lengthPrefixed(elementBytes))
}

// SubtreeValueHash computes the value_hash of a Tree/Reference/aggregate
// element: combine_hash(ElementBytesHash(bytes), childHash).
func SubtreeValueHash(elementBytes []byte, childHash Hash) Hash {
	return CombineHash(ElementBytesHash(elementBytes), childHash)
}

// RawHash computes a plain blake3(b) with no length prefix, used by the
// non-Merk append-only structures (MMR leaves, dense-tree leaves, bulk
// chunk entries) whose own wire formats already fix each value's
// boundary, unlike Merk's variable-shape key/value encoding.
func RawHash(b []byte) Hash {
	return sum(b)
}

// PathPrefix computes the 32-byte subtree storage prefix blake3(path),
// where path segments are length-prefixed and concatenated.
func PathPrefix(path [][]byte) Hash {
	parts := make([][]byte, 0, len(path))
	for _, seg := range path {
		parts = append(parts, lengthPrefixed(seg))
	}
	return sum(parts...)
}
