package element

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/dashpay/grovedb-sub006/groveerr"
)

// refFormTag is the wire discriminator for each of the 7 ReferenceForm
// variants.
type refFormTag uint8

const (
	refAbsolute refFormTag = iota
	refUpstreamRootHeight
	refUpstreamRootHeightWithParent
	refUpstreamFromElement
	refCousin
	refRemovedCousin
	refSibling
)

type encoder struct {
	buf []byte
}

func (e *encoder) byte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) varint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf = append(e.buf, tmp[:n]...)
}

func (e *encoder) bytesWithLen(b []byte) {
	e.varint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u32(v uint32) {
	e.buf = append(e.buf, binaryUint32(v)...)
}

func (e *encoder) u64(v uint64) {
	e.buf = append(e.buf, binaryUint64(v)...)
}

func (e *encoder) i64(v int64) {
	e.buf = append(e.buf, binaryInt64(v)...)
}

func (e *encoder) optionalBytes(present bool, b []byte) {
	if present {
		e.byte(1)
		e.bytesWithLen(b)
	} else {
		e.byte(0)
	}
}

func encodeRefForm(e *encoder, f ReferenceForm) error {
	switch v := f.(type) {
	case Absolute:
		e.byte(byte(refAbsolute))
		encodePath(e, v.Path)
	case UpstreamRootHeight:
		e.byte(byte(refUpstreamRootHeight))
		e.varint(uint64(v.N))
		encodePath(e, v.Suffix)
	case UpstreamRootHeightWithParent:
		e.byte(byte(refUpstreamRootHeightWithParent))
		e.varint(uint64(v.N))
		encodePath(e, v.Suffix)
	case UpstreamFromElement:
		e.byte(byte(refUpstreamFromElement))
		e.varint(uint64(v.N))
		encodePath(e, v.Suffix)
	case Cousin:
		e.byte(byte(refCousin))
		e.bytesWithLen(v.Key)
	case RemovedCousin:
		e.byte(byte(refRemovedCousin))
		encodePath(e, v.Path)
	case Sibling:
		e.byte(byte(refSibling))
		e.bytesWithLen(v.Key)
	default:
		return groveerr.Wrap(groveerr.ErrCorruptedData, "unknown reference form %T", f)
	}
	return nil
}

func encodePath(e *encoder, path [][]byte) {
	e.varint(uint64(len(path)))
	for _, seg := range path {
		e.bytesWithLen(seg)
	}
}

// Marshal serializes e to GroveDB's wire format: tag byte, optional
// length-prefixed flags, then variant-specific fields.
func (e Element) Marshal() ([]byte, error) {
	if !e.Tag.Valid() {
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "invalid element tag %d", e.Tag)
	}
	enc := &encoder{}
	enc.byte(byte(e.Tag))
	enc.optionalBytes(e.Flags != nil, e.Flags)

	switch e.Tag {
	case TagItem:
		enc.bytesWithLen(e.Bytes)
	case TagReference:
		if err := encodeRefForm(enc, e.RefForm); err != nil {
			return nil, err
		}
		enc.u32(e.MaxHop)
	case TagTree:
		enc.optionalBytes(e.ChildRootKey != nil, e.ChildRootKey)
	case TagSumItem:
		enc.i64(e.SumItemValue)
	case TagSumTree:
		enc.optionalBytes(e.ChildRootKey != nil, e.ChildRootKey)
		enc.i64(e.Sum)
	case TagBigSumTree:
		enc.optionalBytes(e.ChildRootKey != nil, e.ChildRootKey)
		encodeBigInt(enc, e.BigSum)
	case TagCountTree:
		enc.optionalBytes(e.ChildRootKey != nil, e.ChildRootKey)
		enc.u64(e.Count)
	case TagCountSumTree:
		enc.optionalBytes(e.ChildRootKey != nil, e.ChildRootKey)
		enc.u64(e.Count)
		enc.i64(e.Sum)
	case TagItemWithSumItem:
		enc.bytesWithLen(e.Bytes)
		enc.i64(e.SumItemValue)
	case TagProvableCountTree:
		enc.optionalBytes(e.ChildRootKey != nil, e.ChildRootKey)
		enc.u64(e.Count)
	case TagProvableCountSumTree:
		enc.optionalBytes(e.ChildRootKey != nil, e.ChildRootKey)
		enc.u64(e.Count)
		enc.i64(e.Sum)
	case TagCommitmentTree:
		enc.u64(e.CommitmentCount)
		enc.byte(e.ChunkPower)
	case TagMmrTree:
		enc.u64(e.MmrSize)
	case TagBulkAppendTree:
		enc.u64(e.BulkCount)
		enc.byte(e.BulkChunkPower)
	case TagDenseFixedSizeTree:
		enc.u16(e.DenseCount)
		enc.byte(e.DenseHeight)
	default:
		return nil, groveerr.Wrap(groveerr.ErrCorruptedData, "unhandled element tag %s", e.Tag)
	}
	return enc.buf, nil
}

func encodeBigInt(e *encoder, v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 {
		e.byte(1)
	} else {
		e.byte(0)
	}
	e.bytesWithLen(v.Bytes())
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() []byte { return d.buf[d.pos:] }

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, fmt.Errorf("element: unexpected end of data")
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readVarint() (uint64, error) {
	v, n := binary.Uvarint(d.remaining())
	if n <= 0 {
		return 0, fmt.Errorf("element: invalid varint")
	}
	d.pos += n
	return v, nil
}

func (d *decoder) readBytesWithLen() ([]byte, error) {
	n, err := d.readVarint()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, fmt.Errorf("element: truncated byte string")
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out, nil
}

func (d *decoder) readOptionalBytes() ([]byte, error) {
	present, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	return d.readBytesWithLen()
}

func (d *decoder) readU16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, fmt.Errorf("element: truncated u16")
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos : d.pos+2])
	d.pos += 2
	return v, nil
}

func (d *decoder) readU32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, fmt.Errorf("element: truncated u32")
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) readU64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("element: truncated u64")
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *decoder) readI64() (int64, error) {
	v, err := d.readU64()
	return int64(v), err
}

func (d *decoder) readPath() ([][]byte, error) {
	n, err := d.readVarint()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := range out {
		seg, err := d.readBytesWithLen()
		if err != nil {
			return nil, err
		}
		out[i] = seg
	}
	return out, nil
}

func (d *decoder) readRefForm() (ReferenceForm, error) {
	tagByte, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch refFormTag(tagByte) {
	case refAbsolute:
		path, err := d.readPath()
		if err != nil {
			return nil, err
		}
		return Absolute{Path: path}, nil
	case refUpstreamRootHeight:
		n, err := d.readVarint()
		if err != nil {
			return nil, err
		}
		suffix, err := d.readPath()
		if err != nil {
			return nil, err
		}
		return UpstreamRootHeight{N: uint32(n), Suffix: suffix}, nil
	case refUpstreamRootHeightWithParent:
		n, err := d.readVarint()
		if err != nil {
			return nil, err
		}
		suffix, err := d.readPath()
		if err != nil {
			return nil, err
		}
		return UpstreamRootHeightWithParent{N: uint32(n), Suffix: suffix}, nil
	case refUpstreamFromElement:
		n, err := d.readVarint()
		if err != nil {
			return nil, err
		}
		suffix, err := d.readPath()
		if err != nil {
			return nil, err
		}
		return UpstreamFromElement{N: uint32(n), Suffix: suffix}, nil
	case refCousin:
		key, err := d.readBytesWithLen()
		if err != nil {
			return nil, err
		}
		return Cousin{Key: key}, nil
	case refRemovedCousin:
		path, err := d.readPath()
		if err != nil {
			return nil, err
		}
		return RemovedCousin{Path: path}, nil
	case refSibling:
		key, err := d.readBytesWithLen()
		if err != nil {
			return nil, err
		}
		return Sibling{Key: key}, nil
	default:
		return nil, fmt.Errorf("element: unknown reference form tag %d", tagByte)
	}
}

func (d *decoder) readBigInt() (*big.Int, error) {
	sign, err := d.readByte()
	if err != nil {
		return nil, err
	}
	magnitude, err := d.readBytesWithLen()
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(magnitude)
	if sign == 1 {
		v.Neg(v)
	}
	return v, nil
}

// Unmarshal deserializes an Element from GroveDB's wire format. Strict:
// any trailing bytes after the expected fields are a hard error.
func Unmarshal(data []byte) (Element, error) {
	d := &decoder{buf: data}
	tagByte, err := d.readByte()
	if err != nil {
		return Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "element: %v", err)
	}
	tag := Tag(tagByte)
	if !tag.Valid() {
		return Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "element: invalid tag %d", tagByte)
	}
	flags, err := d.readOptionalBytes()
	if err != nil {
		return Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "element: %v", err)
	}

	e := Element{Tag: tag, Flags: flags}

	decodeErr := func() error {
		switch tag {
		case TagItem:
			b, err := d.readBytesWithLen()
			if err != nil {
				return err
			}
			e.Bytes = b
		case TagReference:
			form, err := d.readRefForm()
			if err != nil {
				return err
			}
			hop, err := d.readU32()
			if err != nil {
				return err
			}
			e.RefForm = form
			e.MaxHop = hop
		case TagTree:
			root, err := d.readOptionalBytes()
			if err != nil {
				return err
			}
			e.ChildRootKey = root
		case TagSumItem:
			v, err := d.readI64()
			if err != nil {
				return err
			}
			e.SumItemValue = v
		case TagSumTree:
			root, err := d.readOptionalBytes()
			if err != nil {
				return err
			}
			sum, err := d.readI64()
			if err != nil {
				return err
			}
			e.ChildRootKey, e.Sum = root, sum
		case TagBigSumTree:
			root, err := d.readOptionalBytes()
			if err != nil {
				return err
			}
			big, err := d.readBigInt()
			if err != nil {
				return err
			}
			e.ChildRootKey, e.BigSum = root, big
		case TagCountTree:
			root, err := d.readOptionalBytes()
			if err != nil {
				return err
			}
			count, err := d.readU64()
			if err != nil {
				return err
			}
			e.ChildRootKey, e.Count = root, count
		case TagCountSumTree:
			root, err := d.readOptionalBytes()
			if err != nil {
				return err
			}
			count, err := d.readU64()
			if err != nil {
				return err
			}
			sum, err := d.readI64()
			if err != nil {
				return err
			}
			e.ChildRootKey, e.Count, e.Sum = root, count, sum
		case TagItemWithSumItem:
			b, err := d.readBytesWithLen()
			if err != nil {
				return err
			}
			v, err := d.readI64()
			if err != nil {
				return err
			}
			e.Bytes, e.SumItemValue = b, v
		case TagProvableCountTree:
			root, err := d.readOptionalBytes()
			if err != nil {
				return err
			}
			count, err := d.readU64()
			if err != nil {
				return err
			}
			e.ChildRootKey, e.Count = root, count
		case TagProvableCountSumTree:
			root, err := d.readOptionalBytes()
			if err != nil {
				return err
			}
			count, err := d.readU64()
			if err != nil {
				return err
			}
			sum, err := d.readI64()
			if err != nil {
				return err
			}
			e.ChildRootKey, e.Count, e.Sum = root, count, sum
		case TagCommitmentTree:
			count, err := d.readU64()
			if err != nil {
				return err
			}
			power, err := d.readByte()
			if err != nil {
				return err
			}
			e.CommitmentCount, e.ChunkPower = count, power
		case TagMmrTree:
			size, err := d.readU64()
			if err != nil {
				return err
			}
			e.MmrSize = size
		case TagBulkAppendTree:
			count, err := d.readU64()
			if err != nil {
				return err
			}
			power, err := d.readByte()
			if err != nil {
				return err
			}
			e.BulkCount, e.BulkChunkPower = count, power
		case TagDenseFixedSizeTree:
			count, err := d.readU16()
			if err != nil {
				return err
			}
			height, err := d.readByte()
			if err != nil {
				return err
			}
			e.DenseCount, e.DenseHeight = count, height
		}
		return nil
	}()
	if decodeErr != nil {
		return Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "element: %v", decodeErr)
	}
	if d.pos != len(d.buf) {
		return Element{}, groveerr.Wrap(groveerr.ErrCorruptedData, "element: %d trailing bytes", len(d.buf)-d.pos)
	}
	return e, nil
}
