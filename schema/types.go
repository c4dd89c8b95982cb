package schema

import (
	"encoding/binary"
	"math"
	"math/big"
	"net"

	"github.com/nogodb/mcsstable/internal/errs"
)

// Type is a column's CQL-level data type. Only the fixed-width and
// variable-width scalar encodings spec.md §2 lists are modeled; collection
// types carry an element/key/value Type via CollectionOf.
type Type byte

const (
	TypeBlob Type = iota
	TypeUTF8
	TypeAscii
	TypeBoolean
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeUUID
	TypeTimeUUID
	TypeInet
	TypeTimestamp
	TypeDecimal
	TypeVarint
	TypeDuration
	TypeCounter
	TypeList
	TypeSet
	TypeMap
)

func (t Type) IsCollection() bool {
	return t == TypeList || t == TypeSet || t == TypeMap
}

// CollectionType describes a List/Set/Map column's element type(s).
type CollectionType struct {
	Kind  Type // TypeList, TypeSet or TypeMap
	Key   Type // used only when Kind == TypeMap
	Value Type
}

// EncodeValue serializes a scalar CQL value into its "mc"-format
// fixed/variable byte representation. Collection types are handled by the
// row/cell codec directly (they need per-element framing, not a single
// value blob), so EncodeValue rejects TypeList/TypeSet/TypeMap.
func EncodeValue(t Type, v any) ([]byte, error) {
	switch t {
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeInt32:
		i, ok := v.(int32)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(i))
		return buf, nil
	case TypeInt64, TypeTimestamp, TypeCounter:
		i, ok := v.(int64)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i))
		return buf, nil
	case TypeFloat32:
		f, ok := v.(float32)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(f))
		return buf, nil
	case TypeFloat64:
		f, ok := v.(float64)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case TypeUTF8, TypeAscii, TypeBlob, TypeVarint:
		switch s := v.(type) {
		case string:
			return []byte(s), nil
		case []byte:
			return s, nil
		default:
			return nil, typeMismatch(t, v)
		}
	case TypeUUID, TypeTimeUUID:
		b, ok := v.([16]byte)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return b[:], nil
	case TypeInet:
		ip, ok := v.(net.IP)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return ip.To16(), nil
	case TypeDuration:
		d, ok := v.(Duration)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return encodeDuration(d), nil
	case TypeDecimal:
		d, ok := v.(Decimal)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return encodeDecimal(d), nil
	default:
		return nil, errs.Newf(errs.Unsupported, "schema: EncodeValue: type %d has no scalar encoding", t)
	}
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(t Type, b []byte) (any, error) {
	switch t {
	case TypeBoolean:
		if len(b) != 1 {
			return nil, errs.Newf(errs.Malformed, "boolean: want 1 byte, got %d", len(b))
		}
		return b[0] != 0, nil
	case TypeInt32:
		if len(b) != 4 {
			return nil, errs.Newf(errs.Malformed, "int32: want 4 bytes, got %d", len(b))
		}
		return int32(binary.BigEndian.Uint32(b)), nil
	case TypeInt64, TypeTimestamp, TypeCounter:
		if len(b) != 8 {
			return nil, errs.Newf(errs.Malformed, "int64: want 8 bytes, got %d", len(b))
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case TypeFloat32:
		if len(b) != 4 {
			return nil, errs.Newf(errs.Malformed, "float32: want 4 bytes, got %d", len(b))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case TypeFloat64:
		if len(b) != 8 {
			return nil, errs.Newf(errs.Malformed, "float64: want 8 bytes, got %d", len(b))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case TypeUTF8, TypeAscii, TypeBlob, TypeVarint:
		return append([]byte(nil), b...), nil
	case TypeUUID, TypeTimeUUID:
		if len(b) != 16 {
			return nil, errs.Newf(errs.Malformed, "uuid: want 16 bytes, got %d", len(b))
		}
		var out [16]byte
		copy(out[:], b)
		return out, nil
	case TypeInet:
		if len(b) != 4 && len(b) != 16 {
			return nil, errs.Newf(errs.Malformed, "inet: want 4 or 16 bytes, got %d", len(b))
		}
		return net.IP(append([]byte(nil), b...)), nil
	case TypeDuration:
		return decodeDuration(b)
	case TypeDecimal:
		return decodeDecimal(b)
	default:
		return nil, errs.Newf(errs.Unsupported, "schema: DecodeValue: type %d has no scalar decoding", t)
	}
}

// Duration models CQL's DURATION type: months and days are calendar units,
// nanos is the sub-day remainder, matching Cassandra's representation.
type Duration struct {
	Months      int32
	Days        int32
	Nanoseconds int64
}

func encodeDuration(d Duration) []byte {
	buf := make([]byte, 0, 3*binary.MaxVarintLen64)
	buf = appendZigZag(buf, int64(d.Months))
	buf = appendZigZag(buf, int64(d.Days))
	buf = appendZigZag(buf, d.Nanoseconds)
	return buf
}

func decodeDuration(b []byte) (Duration, error) {
	months, n := zigZagVarint(b)
	if n == 0 {
		return Duration{}, errs.New(errs.Malformed)
	}
	b = b[n:]
	days, n := zigZagVarint(b)
	if n == 0 {
		return Duration{}, errs.New(errs.Malformed)
	}
	b = b[n:]
	nanos, n := zigZagVarint(b)
	if n == 0 {
		return Duration{}, errs.New(errs.Malformed)
	}
	return Duration{Months: int32(months), Days: int32(days), Nanoseconds: nanos}, nil
}

// Decimal models CQL's DECIMAL type: an arbitrary-precision unscaled
// integer plus the power-of-ten scale it's divided by, matching Java
// BigDecimal's representation.
type Decimal struct {
	Scale    int32
	Unscaled *big.Int
}

func encodeDecimal(d Decimal) []byte {
	unscaled := d.Unscaled
	if unscaled == nil {
		unscaled = new(big.Int)
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(d.Scale))
	return append(buf, bigIntBytes(unscaled)...)
}

func decodeDecimal(b []byte) (Decimal, error) {
	if len(b) < 4 {
		return Decimal{}, errs.Newf(errs.Malformed, "decimal: want at least 4 bytes, got %d", len(b))
	}
	scale := int32(binary.BigEndian.Uint32(b[:4]))
	unscaled := new(big.Int)
	setBigIntBytes(unscaled, b[4:])
	return Decimal{Scale: scale, Unscaled: unscaled}, nil
}

// bigIntBytes returns v's minimal two's-complement big-endian encoding,
// matching Java BigInteger.toByteArray.
func bigIntBytes(v *big.Int) []byte {
	if v.Sign() == 0 {
		return []byte{0}
	}
	if v.Sign() > 0 {
		b := v.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	// two's complement of a negative value: invert magnitude bytes of
	// (2^(8*n) + v), i.e. add 1 to the bitwise-NOT of the magnitude.
	mag := new(big.Int).Neg(v)
	n := len(mag.Bytes())
	full := new(big.Int).Lsh(big.NewInt(1), uint(n)*8)
	full.Sub(full, mag)
	b := full.Bytes()
	for len(b) < n {
		b = append([]byte{0xff}, b...)
	}
	if b[0]&0x80 == 0 {
		b = append([]byte{0xff}, b...)
	}
	return b
}

func setBigIntBytes(dst *big.Int, b []byte) {
	if len(b) == 0 {
		dst.SetInt64(0)
		return
	}
	if b[0]&0x80 == 0 {
		dst.SetBytes(b)
		return
	}
	mag := make([]byte, len(b))
	copy(mag, b)
	for i := range mag {
		mag[i] = ^mag[i]
	}
	dst.SetBytes(mag)
	dst.Add(dst, big.NewInt(1))
	dst.Neg(dst)
}

func appendZigZag(dst []byte, v int64) []byte {
	u := uint64((v << 1) ^ (v >> 63))
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], u)
	return append(dst, tmp[:n]...)
}

func zigZagVarint(b []byte) (int64, int) {
	u, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0
	}
	return int64(u>>1) ^ -int64(u&1), n
}

func typeMismatch(t Type, v any) error {
	return errs.Newf(errs.Malformed, "schema: value %T does not match type %d", v, t)
}
