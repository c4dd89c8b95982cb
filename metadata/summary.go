package metadata

import (
	"io"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
)

// BaseSamplingLevel is the full (undownsampled) Summary sampling level,
// grounded on original_source/sstables/sstables.cc's
// downsampling::BASE_SAMPLING_LEVEL: every Summary this engine writes is
// built at full sampling, since it has no runtime downsampling path (see
// SPEC_FULL.md's E7).
const BaseSamplingLevel = 128

// SummaryHeader carries the sampling parameters a Summary was built with,
// per spec.md §4.2.
type SummaryHeader struct {
	MinIndexInterval    int32
	Size                int32
	MemorySize          int64
	SamplingLevel       int32
	SizeAtFullSampling  int32
}

// SummaryEntry is one sampled partition: its token, a prefix of its key
// bytes (enough to disambiguate it from its neighbours in the sample), and
// the byte offset of the corresponding entry in the Index file.
type SummaryEntry struct {
	Token          uint64
	KeyPrefix      []byte
	IndexFilePosition int64
}

// Summary is the Summary.db component: a sampled top-level index from
// partition key to Index-file position, regenerable from the Index file
// when missing or corrupt (spec.md §4.2, §7 "missing Summary triggers
// regeneration").
type Summary struct {
	Header    SummaryHeader
	Entries   []SummaryEntry
	FirstKey  []byte
	LastKey   []byte
}

// WriteTo serializes the component: header, a little-endian positions
// array (byte offset of each entry within the entries block, enabling
// binary search without decoding every entry), the entries themselves,
// then first_key/last_key.
func (s *Summary) WriteTo(w io.Writer) error {
	var hdr [4 + 4 + 8 + 4 + 4]byte
	format.PutUint32(hdr[0:4], uint32(s.Header.MinIndexInterval))
	format.PutUint32(hdr[4:8], uint32(s.Header.Size))
	format.PutUint64(hdr[8:16], uint64(s.Header.MemorySize))
	format.PutUint32(hdr[16:20], uint32(s.Header.SamplingLevel))
	format.PutUint32(hdr[20:24], uint32(s.Header.SizeAtFullSampling))
	if _, err := w.Write(hdr[:]); err != nil {
		return errs.Wrap(errs.Io, err)
	}

	entryBytes := make([][]byte, len(s.Entries))
	positions := make([]uint32, len(s.Entries))
	var cur uint32
	for i, e := range s.Entries {
		b := make([]byte, 0, 8+2+len(e.KeyPrefix)+8)
		var tok [8]byte
		format.PutUint64(tok[:], e.Token)
		b = append(b, tok[:]...)
		var klen [2]byte
		format.PutUint16(klen[:], uint16(len(e.KeyPrefix)))
		b = append(b, klen[:]...)
		b = append(b, e.KeyPrefix...)
		var pos [8]byte
		format.PutUint64(pos[:], uint64(e.IndexFilePosition))
		b = append(b, pos[:]...)
		entryBytes[i] = b
		positions[i] = cur
		cur += uint32(len(b))
	}

	if err := format.WriteDiskArrayCount(w, uint32(len(positions))); err != nil {
		return err
	}
	for _, p := range positions {
		var b [4]byte
		// little-endian per spec.md §4.2 "positions array (little-endian)"
		b[0], b[1], b[2], b[3] = byte(p), byte(p>>8), byte(p>>16), byte(p>>24)
		if _, err := w.Write(b[:]); err != nil {
			return errs.Wrap(errs.Io, err)
		}
	}
	for _, b := range entryBytes {
		if _, err := w.Write(b); err != nil {
			return errs.Wrap(errs.Io, err)
		}
	}

	if err := format.WriteDiskString16(w, s.FirstKey); err != nil {
		return err
	}
	if err := format.WriteDiskString16(w, s.LastKey); err != nil {
		return err
	}
	return nil
}

// ReadSummary parses a full Summary component from a buffer.
func ReadSummary(buf []byte) (*Summary, error) {
	const hdrLen = 24
	if len(buf) < hdrLen+4 {
		return nil, errs.New(errs.Truncated)
	}
	s := &Summary{
		Header: SummaryHeader{
			MinIndexInterval:   int32(format.GetUint32(buf[0:4])),
			Size:               int32(format.GetUint32(buf[4:8])),
			MemorySize:         int64(format.GetUint64(buf[8:16])),
			SamplingLevel:      int32(format.GetUint32(buf[16:20])),
			SizeAtFullSampling: int32(format.GetUint32(buf[20:24])),
		},
	}
	pos := hdrLen
	n := format.GetUint32(buf[pos : pos+4])
	pos += 4
	positions := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		if pos+4 > len(buf) {
			return nil, errs.New(errs.Truncated)
		}
		positions[i] = uint32(buf[pos]) | uint32(buf[pos+1])<<8 | uint32(buf[pos+2])<<16 | uint32(buf[pos+3])<<24
		pos += 4
	}
	entriesStart := pos
	entries := make([]SummaryEntry, n)
	for i, p := range positions {
		ep := entriesStart + int(p)
		if ep+8+2 > len(buf) {
			return nil, errs.New(errs.Truncated)
		}
		tok := format.GetUint64(buf[ep : ep+8])
		klen := int(format.GetUint16(buf[ep+8 : ep+10]))
		keyStart := ep + 10
		if keyStart+klen+8 > len(buf) {
			return nil, errs.New(errs.Truncated)
		}
		prefix := append([]byte(nil), buf[keyStart:keyStart+klen]...)
		posField := int64(format.GetUint64(buf[keyStart+klen : keyStart+klen+8]))
		entries[i] = SummaryEntry{Token: tok, KeyPrefix: prefix, IndexFilePosition: posField}
	}
	s.Entries = entries

	// advance pos to end of the entries block: the last entry's end.
	tail := entriesStart
	if len(positions) > 0 {
		last := entries[len(entries)-1]
		tail = entriesStart + int(positions[len(positions)-1]) + 8 + 2 + len(last.KeyPrefix) + 8
	}
	r := buf[tail:]
	firstKey, rest, err := readDiskString16Slice(r)
	if err != nil {
		return nil, err
	}
	lastKey, _, err := readDiskString16Slice(rest)
	if err != nil {
		return nil, err
	}
	s.FirstKey = firstKey
	s.LastKey = lastKey
	return s, nil
}

func readDiskString16Slice(b []byte) (value, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, errs.New(errs.Truncated)
	}
	n := int(format.GetUint16(b[:2]))
	if len(b) < 2+n {
		return nil, nil, errs.New(errs.Truncated)
	}
	return append([]byte(nil), b[2:2+n]...), b[2+n:], nil
}

// summaryEntryByteCost estimates one Summary entry's on-disk size (token +
// key-prefix-length + a short key prefix + index position), used to convert
// summary_ratio into a partition sampling stride.
const summaryEntryByteCost = 32

// SampleStride picks how many partitions to skip between Summary entries so
// that data-bytes / summary-bytes approximately matches 1/ratio (spec.md
// §4.2's "entry count is chosen at write time so that data-bytes /
// summary-bytes ≈ configured summary_ratio", where summary_ratio is stored
// as its reciprocal fraction per §6's sstable_summary_ratio default of
// 0.0005 == 1/2000). Never samples more densely than minIndexInterval.
func SampleStride(avgPartitionBytes float64, ratio float64, minIndexInterval int) int {
	stride := minIndexInterval
	if avgPartitionBytes > 0 && ratio > 0 {
		wanted := int(summaryEntryByteCost / (ratio * avgPartitionBytes))
		if wanted > stride {
			stride = wanted
		}
	}
	if stride < 1 {
		stride = 1
	}
	return stride
}
