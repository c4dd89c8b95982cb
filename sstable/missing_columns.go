package sstable

import (
	"io"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
)

// missing-columns bitmap encodings, spec.md §4.3's "Missing-columns
// bitmap": for N <= 64 a single vint bitmask; for N > 64 one of three
// encodings chosen by whichever is smallest. Readers must accept any of
// the four shapes regardless of which one a given writer prefers.
const (
	missingSmallBitmask byte = iota // N <= 64: vint bitmask directly, no tag byte
	missingMinorityPresent
	missingMinorityMissing
	missingDense
)

// writeMissingColumns writes which of the columnCount declared columns are
// absent from this row, given missing (the sorted list of absent column
// positions).
func writeMissingColumns(w io.Writer, columnCount int, missing []int) error {
	if columnCount <= 64 {
		var mask uint64
		for _, m := range missing {
			mask |= 1 << uint(m)
		}
		return format.WriteUvarint(w, mask)
	}

	present := columnCount - len(missing)
	dense := (columnCount + 7) / 8
	minorityMissingSize := format.UvarintLen(uint64(len(missing)))
	for _, m := range missing {
		minorityMissingSize += format.UvarintLen(uint64(m))
	}
	minorityPresentSize := format.UvarintLen(uint64(present))
	presentIdx := presentIndices(columnCount, missing)
	for _, p := range presentIdx {
		minorityPresentSize += format.UvarintLen(uint64(p))
	}

	tag := missingDense
	best := dense
	if minorityMissingSize < best {
		tag, best = missingMinorityMissing, minorityMissingSize
	}
	if minorityPresentSize < best {
		tag, best = missingMinorityPresent, minorityPresentSize
	}
	_ = best

	if _, err := w.Write([]byte{tag}); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	switch tag {
	case missingMinorityMissing:
		if err := format.WriteUvarint(w, uint64(len(missing))); err != nil {
			return err
		}
		for _, m := range missing {
			if err := format.WriteUvarint(w, uint64(m)); err != nil {
				return err
			}
		}
	case missingMinorityPresent:
		if err := format.WriteUvarint(w, uint64(len(presentIdx))); err != nil {
			return err
		}
		for _, p := range presentIdx {
			if err := format.WriteUvarint(w, uint64(p)); err != nil {
				return err
			}
		}
	case missingDense:
		bits := make([]byte, dense)
		for _, m := range missing {
			bits[m/8] |= 1 << uint(m%8)
		}
		if _, err := w.Write(bits); err != nil {
			return errs.Wrap(errs.Io, err)
		}
	}
	return nil
}

func presentIndices(columnCount int, missing []int) []int {
	isMissing := make([]bool, columnCount)
	for _, m := range missing {
		isMissing[m] = true
	}
	present := make([]int, 0, columnCount-len(missing))
	for i := 0; i < columnCount; i++ {
		if !isMissing[i] {
			present = append(present, i)
		}
	}
	return present
}

// readMissingColumns returns the set of absent column indices, decoding
// whichever of the four encodings is present.
func readMissingColumns(r io.Reader, columnCount int) (map[int]bool, error) {
	missing := make(map[int]bool)
	if columnCount <= 64 {
		mask, err := format.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		for i := 0; i < columnCount; i++ {
			if mask&(1<<uint(i)) != 0 {
				missing[i] = true
			}
		}
		return missing, nil
	}

	tag, err := format.ReadUint8(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case missingMinorityMissing:
		count, err := format.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < count; i++ {
			idx, err := format.ReadUvarint(r)
			if err != nil {
				return nil, err
			}
			missing[int(idx)] = true
		}
	case missingMinorityPresent:
		count, err := format.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		present := make(map[int]bool, count)
		for i := uint64(0); i < count; i++ {
			idx, err := format.ReadUvarint(r)
			if err != nil {
				return nil, err
			}
			present[int(idx)] = true
		}
		for i := 0; i < columnCount; i++ {
			if !present[i] {
				missing[i] = true
			}
		}
	case missingDense:
		dense := (columnCount + 7) / 8
		buf := make([]byte, dense)
		if err := format.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for i := 0; i < columnCount; i++ {
			if buf[i/8]&(1<<uint(i%8)) != 0 {
				missing[i] = true
			}
		}
	default:
		return nil, errs.Newf(errs.Malformed, "missing-columns: unknown encoding tag %d", tag)
	}
	return missing, nil
}
