package gvhash

import (
	"fmt"

	mh "github.com/multiformats/go-multihash"
	_ "github.com/multiformats/go-multihash/register/blake3"
)

// RootMultihash is a self-describing multihash wrapper around a GroveDB
// root hash, used when a root hash crosses a layer boundary on the wire
// (e.g. a non-Merk tree's root embedded in a V1 grove proof), following
// multihash.IndexHash's wrapping pattern.
type RootMultihash []byte

// WrapRoot encodes h as a BLAKE3 multihash.
func WrapRoot(h Hash) (RootMultihash, error) {
	encoded, err := mh.Encode(h[:], mh.BLAKE3)
	if err != nil {
		return nil, fmt.Errorf("gvhash: failed to encode root multihash: %w", err)
	}
	return RootMultihash(encoded), nil
}

// Unwrap decodes a RootMultihash back into a plain 32-byte Hash, verifying
// the multihash code is BLAKE3 and the digest is exactly 32 bytes.
func (m RootMultihash) Unwrap() (Hash, error) {
	decoded, err := mh.Decode(mh.Multihash(m))
	if err != nil {
		return Hash{}, fmt.Errorf("gvhash: invalid root multihash: %w", err)
	}
	if decoded.Code != mh.BLAKE3 {
		return Hash{}, fmt.Errorf("gvhash: expected BLAKE3 multihash, got code 0x%x", decoded.Code)
	}
	if len(decoded.Digest) != Size {
		return Hash{}, fmt.Errorf("gvhash: expected %d-byte digest, got %d", Size, len(decoded.Digest))
	}
	var out Hash
	copy(out[:], decoded.Digest)
	return out, nil
}

// Bytes returns the raw multihash bytes.
func (m RootMultihash) Bytes() []byte { return []byte(m) }
