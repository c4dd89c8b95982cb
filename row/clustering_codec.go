package row

import (
	"io"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
	"github.com/nogodb/mcsstable/schema"
)

// fixedWidth reports the on-disk width of t when it is serialized without a
// per-component vint length (spec.md §4.1: "no per-component length for
// fixed-length types whose size is declared in the serialization header").
// 0 means variable-length (always vint-length-prefixed).
func fixedWidth(t schema.Type) int {
	switch t {
	case schema.TypeBoolean:
		return 1
	case schema.TypeInt32, schema.TypeFloat32:
		return 4
	case schema.TypeInt64, schema.TypeFloat64, schema.TypeTimestamp, schema.TypeCounter:
		return 8
	case schema.TypeUUID, schema.TypeTimeUUID:
		return 16
	default:
		return 0
	}
}

// EncodeClusteringPrefix writes a leading null-mask byte marking which
// components are null, followed by c's non-null values in order, each
// either bare fixed-width bytes (schema-declared fixed types) or
// vint-length-prefixed (variable types); a null component contributes no
// wire bytes beyond its mask bit, per spec.md §4.1. The mask leads rather
// than trails so a single forward pass over the reader can tell, before
// consuming any component, whether that component's bytes are present on
// the wire at all — a trailing mask would leave a null-skipping decoder
// unable to find the boundary between components without already knowing
// which of them were skipped. types must have at least len(c.Values)
// entries (callers pass the full clustering-column type list; trailing
// columns not present in a non-full prefix are simply not iterated).
func EncodeClusteringPrefix(w io.Writer, c ClusteringPrefix, types []schema.Type) error {
	if len(c.Values) > len(types) {
		return errs.Newf(errs.Malformed, "clustering prefix has %d components, schema declares %d", len(c.Values), len(types))
	}
	if len(c.Values) > 8 {
		return errs.Newf(errs.Overflow, "clustering prefix: null-mask only covers 8 components, got %d", len(c.Values))
	}
	var nullMask byte
	for i, v := range c.Values {
		if v == nil {
			nullMask |= 1 << uint(i)
		}
	}
	if _, err := w.Write([]byte{nullMask}); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		if fw := fixedWidth(types[i]); fw != 0 {
			if len(v) != fw {
				return errs.Newf(errs.Malformed, "clustering component %d: want %d bytes for fixed type, got %d", i, fw, len(v))
			}
			if _, err := w.Write(v); err != nil {
				return errs.Wrap(errs.Io, err)
			}
		} else {
			if err := format.WriteVIntBytes(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeClusteringPrefix reads back a prefix of numComponents values
// encoded by EncodeClusteringPrefix: the leading null-mask byte first, so
// a null component's absent wire bytes are never mistakenly consumed as
// the next component's. kind is supplied by the caller (it is carried in
// the row/marker flags byte, not inside the prefix encoding itself).
func DecodeClusteringPrefix(r io.Reader, types []schema.Type, numComponents int, kind BoundKind) (ClusteringPrefix, error) {
	if numComponents > 8 {
		return ClusteringPrefix{}, errs.Newf(errs.Overflow, "clustering prefix: null-mask only covers 8 components, got %d", numComponents)
	}
	nullMask, err := format.ReadUint8(r)
	if err != nil {
		return ClusteringPrefix{}, err
	}
	values := make([][]byte, numComponents)
	for i := 0; i < numComponents; i++ {
		if nullMask&(1<<uint(i)) != 0 {
			continue
		}
		if fw := fixedWidth(types[i]); fw != 0 {
			buf := make([]byte, fw)
			if err := format.ReadFull(r, buf); err != nil {
				return ClusteringPrefix{}, err
			}
			values[i] = buf
		} else {
			b, err := format.ReadVIntBytes(r)
			if err != nil {
				return ClusteringPrefix{}, err
			}
			values[i] = b
		}
	}
	return ClusteringPrefix{Kind: kind, Values: values}, nil
}

// EncodedLen reports the byte length EncodeClusteringPrefix would write,
// without actually allocating a writer — used by the promoted-index
// sampler (C5) to track block size without a full encode pass.
func EncodedLen(c ClusteringPrefix, types []schema.Type) int {
	n := 1 // null-mask
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		if fw := fixedWidth(types[i]); fw != 0 {
			n += fw
		} else {
			n += format.UvarintLen(uint64(len(v))) + len(v)
		}
	}
	return n
}
