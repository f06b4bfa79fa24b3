// Package grove implements GroveDB's subtree management layer:
// path-addressed Merk subtrees composed into a tree of trees,
// opened/created/deleted by blake3(path) prefix, with deferred
// bottom-up root-hash propagation after a batch commits.
//
// Grounded on treebuilder.Builder (a path-free analog:
// build one index tree per subtree, store it, return its root hash) and
// metadata's BlockMeta hierarchy (block -> subtree -> tx, the same
// nesting shape GroveDB generalizes to arbitrary path depth).
package grove

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/dashpay/grovedb-sub006/gvhash"
	"github.com/dashpay/grovedb-sub006/merk"
)

// nodeRecord is the on-disk encoding of one merk.Node: its value plus
// enough metadata about each child link to reconstruct it as an
// unfetched merk.Link{State: Reference} without touching the child.
func encodeNodeRecord(n *merk.Node) []byte {
	ownSum, ownCount, ownBig := n.OwnAggregate()
	buf := make([]byte, 0, 64+len(n.Value))
	buf = appendBytesWithLen(buf, n.Value)
	buf = append(buf, n.ValueHash[:]...)
	buf = append(buf, byte(n.Feature))
	buf = appendU64(buf, uint64(n.Sum))
	buf = appendU64(buf, n.Count)
	buf = appendBigInt(buf, n.BigSum)
	buf = appendU64(buf, uint64(ownSum))
	buf = appendU64(buf, ownCount)
	buf = appendBigInt(buf, ownBig)
	buf = appendLink(buf, n.Left)
	buf = appendLink(buf, n.Right)
	return buf
}

func appendLink(buf []byte, l *merk.Link) []byte {
	if l == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendBytesWithLen(buf, l.Key)
	buf = append(buf, l.Hash[:]...)
	buf = append(buf, l.Height)
	buf = appendU64(buf, uint64(l.Sum))
	buf = appendU64(buf, l.Count)
	buf = appendBigInt(buf, l.BigSum)
	return buf
}

func appendBytesWithLen(buf, b []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	buf = append(buf, tmp[:n]...)
	return append(buf, b...)
}

// appendBigInt stores v (nil treated as zero) as a sign byte followed by
// its big-endian magnitude, matching element/wire.go's encodeBigInt.
func appendBigInt(buf []byte, v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return appendBytesWithLen(buf, v.Bytes())
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) bytesWithLen() ([]byte, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return nil, fmt.Errorf("grove: bad varint in node record")
	}
	r.pos += n
	if r.pos+int(v) > len(r.buf) {
		return nil, fmt.Errorf("grove: truncated node record")
	}
	out := r.buf[r.pos : r.pos+int(v)]
	r.pos += int(v)
	return append([]byte{}, out...), nil
}

func (r *reader) hash() (gvhash.Hash, error) {
	if r.pos+32 > len(r.buf) {
		return gvhash.Hash{}, fmt.Errorf("grove: truncated hash in node record")
	}
	var h gvhash.Hash
	copy(h[:], r.buf[r.pos:r.pos+32])
	r.pos += 32
	return h, nil
}

func (r *reader) byteField() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("grove: truncated byte in node record")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("grove: truncated u64 in node record")
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) bigInt() (*big.Int, error) {
	sign, err := r.byteField()
	if err != nil {
		return nil, err
	}
	magnitude, err := r.bytesWithLen()
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(magnitude)
	if sign != 0 {
		v.Neg(v)
	}
	return v, nil
}

func (r *reader) link() (*merk.Link, error) {
	present, err := r.byteField()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	key, err := r.bytesWithLen()
	if err != nil {
		return nil, err
	}
	h, err := r.hash()
	if err != nil {
		return nil, err
	}
	height, err := r.byteField()
	if err != nil {
		return nil, err
	}
	sum, err := r.u64()
	if err != nil {
		return nil, err
	}
	count, err := r.u64()
	if err != nil {
		return nil, err
	}
	bigSum, err := r.bigInt()
	if err != nil {
		return nil, err
	}
	return &merk.Link{State: merk.LinkReference, Key: key, Hash: h, Height: height, Sum: int64(sum), Count: count, BigSum: bigSum}, nil
}

// decodeNodeRecord rebuilds a *merk.Node (with unfetched child links)
// from its stored bytes and the key it was stored under.
func decodeNodeRecord(key []byte, data []byte) (*merk.Node, error) {
	r := &reader{buf: data}
	value, err := r.bytesWithLen()
	if err != nil {
		return nil, err
	}
	valueHash, err := r.hash()
	if err != nil {
		return nil, err
	}
	featureByte, err := r.byteField()
	if err != nil {
		return nil, err
	}
	sum, err := r.u64()
	if err != nil {
		return nil, err
	}
	count, err := r.u64()
	if err != nil {
		return nil, err
	}
	bigSum, err := r.bigInt()
	if err != nil {
		return nil, err
	}
	ownSum, err := r.u64()
	if err != nil {
		return nil, err
	}
	ownCount, err := r.u64()
	if err != nil {
		return nil, err
	}
	ownBig, err := r.bigInt()
	if err != nil {
		return nil, err
	}
	left, err := r.link()
	if err != nil {
		return nil, err
	}
	right, err := r.link()
	if err != nil {
		return nil, err
	}
	n := &merk.Node{
		Key: append([]byte{}, key...), Value: value,
		ValueHash: valueHash, Left: left, Right: right,
	}
	n.RestoreAggregates(merk.Feature(featureByte), int64(ownSum), ownCount, ownBig, int64(sum), count, bigSum)
	n.KVHash = gvhash.KVDigestToKVHash(n.Key, n.ValueHash)
	return n, nil
}

// rootRecordKey is the conventional slot a subtree's root-link metadata
// is stored under within its own CFRoots namespace.
var rootRecordKey = []byte("root")

func encodeRootRecord(l *merk.Link) []byte {
	return appendLink(nil, l)
}

func decodeRootRecord(data []byte) (*merk.Link, error) {
	r := &reader{buf: data}
	return r.link()
}
