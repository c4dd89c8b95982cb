package metadata

import (
	"io"
	"math"
	"sort"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
)

func doubleBits(f float64) uint64   { return math.Float64bits(f) }
func doubleFromBits(u uint64) float64 { return math.Float64frombits(u) }

// StatTag identifies one of the Statistics component's four sub-entries.
type StatTag uint32

const (
	TagValidation StatTag = iota
	TagCompaction
	TagStats
	TagSerializationHeader
)

// Validation records the partitioner and the bloom filter FP chance the
// sstable was built with.
type Validation struct {
	Partitioner         string
	BloomFilterFPChance float64
}

// Compaction records compaction-ancestor bookkeeping.
type Compaction struct {
	AncestorGenerations []uint64
}

// TombstoneDropBucket is one bucket of the tombstone-drop-time histogram:
// the count of cells whose local-deletion-time equals Time, grounded on
// original_source/sstables/sstables.cc's estimated_tombstone_drop_time
// histogram.
type TombstoneDropBucket struct {
	Time  int64
	Count int64
}

// Stats carries the summary statistics a compaction strategy or query
// planner consults: row/cell counts, min/max timestamps, min/max
// local-deletion-times, the partition size histogram bounds.
type Stats struct {
	PartitionCount    int64
	RowCount          int64
	CellCount         int64
	MinTimestamp      int64
	MaxTimestamp      int64
	MinLocalDeletionTime int32
	MaxLocalDeletionTime int32
	MaxPartitionSize  int64
	TotalUncompressedSize int64

	// MinColumnNames/MaxColumnNames hold, per clustering-column position,
	// the smallest and largest byte-encoded value observed across every row
	// in the table (original_source's min_column_names/max_column_names).
	MinColumnNames [][]byte
	MaxColumnNames [][]byte

	// EstimatedCellsCountMean/EstimatedCellsCountCount reproduce the two
	// inputs original_source's estimate_droppable_tombstone_ratio combines
	// via mean()*count(); this engine computes them exactly (mean cells per
	// partition, partition count) rather than from a sampled histogram,
	// since the writer sees every partition up front (spec.md §4.3).
	EstimatedCellsCountMean  float64
	EstimatedCellsCountCount int64

	// TombstoneDropHistogram is the exact per-local-deletion-time cell
	// tombstone count, the accumulation this engine substitutes for
	// original_source's sampled estimated_tombstone_drop_time histogram.
	TombstoneDropHistogram []TombstoneDropBucket
}

// ValidateMinMaxColumnNames mirrors original_source's
// sstable::validate_min_max_metadata: the recorded clustering min/max
// bounds are meaningless, and are cleared, when the schema has no
// clustering columns but bounds were recorded anyway, or when the min and
// max bound counts disagree. The original's additional rules (a column
// name mistakenly stored as a clustering value, or a composite-encoded
// clustering component) detect corruption only a legacy or third-party
// writer could introduce; this engine is the sole writer of its own files
// and never composite-encodes a clustering bound, so those two rules have
// no reachable failure case here (see DESIGN.md's C3 entry).
func (s *Stats) ValidateMinMaxColumnNames(clusteringColumnCount int) {
	if len(s.MinColumnNames) == 0 && len(s.MaxColumnNames) == 0 {
		return
	}
	if (clusteringColumnCount == 0 && (len(s.MinColumnNames) != 0 || len(s.MaxColumnNames) != 0)) ||
		len(s.MinColumnNames) != len(s.MaxColumnNames) {
		s.MinColumnNames = nil
		s.MaxColumnNames = nil
	}
}

// EstimateDroppableTombstoneRatio mirrors original_source's
// sstable::estimate_droppable_tombstone_ratio: the fraction of the table's
// cells whose local-deletion-time is at or before gcBefore, out of the
// estimated total cell count.
func (s *Stats) EstimateDroppableTombstoneRatio(gcBefore int64) float64 {
	estimatedCount := s.EstimatedCellsCountMean * float64(s.EstimatedCellsCountCount)
	if estimatedCount <= 0 {
		return 0
	}
	var droppable float64
	for _, b := range s.TombstoneDropHistogram {
		if b.Time <= gcBefore {
			droppable += float64(b.Count)
		}
	}
	return droppable / estimatedCount
}

// SerializationHeader holds the minimum timestamp, minimum local-deletion
// time, and minimum TTL used as the zero-points for the data-file codec's
// delta encodings (spec.md §4.3's "delta-encoded relative to serialization
// header minima").
type SerializationHeader struct {
	MinTimestamp         int64
	MinLocalDeletionTime int32
	MinTTL               int32
	// ClusteringTypes/StaticColumns/RegularColumns are recorded here in a
	// full implementation so a reader can decode without an external
	// schema; this engine instead requires the caller to supply a
	// schema.Definition (spec.md's schema-provider collaborator), so only
	// the numeric minima are persisted.
}

// Statistics is the Statistics.db component: a small set of named
// sub-entries, each independently offset-addressed by a sorted
// tag->offset header, adapted in spirit from the teacher's single
// block-handle footer (row_block/footer.go) but widened to a table of
// entries instead of one.
type Statistics struct {
	Validation          Validation
	Compaction          Compaction
	Stats               Stats
	SerializationHeader SerializationHeader
}

type tagOffset struct {
	tag    StatTag
	offset uint32
}

// WriteTo serializes the component: a count, a header of (tag, offset)
// pairs sorted by tag, then the four bodies back to back. Readers must not
// assume the header arrives pre-sorted (see ReadStatistics) — this mirrors
// real Cassandra's tolerance for out-of-order legacy files.
func (s *Statistics) WriteTo(w io.Writer) error {
	bodies := [4][]byte{
		encodeValidation(s.Validation),
		encodeCompaction(s.Compaction),
		encodeStats(s.Stats),
		encodeSerializationHeader(s.SerializationHeader),
	}
	tags := []StatTag{TagValidation, TagCompaction, TagStats, TagSerializationHeader}

	headerLen := 4 + len(tags)*8 // count (u32) + per-entry (tag u32, offset u32)
	offsets := make([]tagOffset, len(tags))
	cur := uint32(headerLen)
	for i, tag := range tags {
		offsets[i] = tagOffset{tag: tag, offset: cur}
		cur += uint32(len(bodies[i]))
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i].tag < offsets[j].tag })

	if err := format.WriteDiskArrayCount(w, uint32(len(offsets))); err != nil {
		return err
	}
	for _, o := range offsets {
		var buf [8]byte
		format.PutUint32(buf[:4], uint32(o.tag))
		format.PutUint32(buf[4:], o.offset)
		if _, err := w.Write(buf[:]); err != nil {
			return errs.Wrap(errs.Io, err)
		}
	}
	for _, b := range bodies {
		if _, err := w.Write(b); err != nil {
			return errs.Wrap(errs.Io, err)
		}
	}
	return nil
}

// ReadStatistics parses the full component from a buffer (Statistics is
// always small enough to read whole, unlike Data/Index).
func ReadStatistics(buf []byte) (*Statistics, error) {
	if len(buf) < 4 {
		return nil, errs.New(errs.Truncated)
	}
	n := format.GetUint32(buf[:4])
	entries := make([]tagOffset, n)
	pos := 4
	for i := uint32(0); i < n; i++ {
		if pos+8 > len(buf) {
			return nil, errs.New(errs.Truncated)
		}
		entries[i] = tagOffset{
			tag:    StatTag(format.GetUint32(buf[pos : pos+4])),
			offset: format.GetUint32(buf[pos+4 : pos+8]),
		}
		pos += 8
	}
	// tolerate an unsorted header by re-sorting before use, rather than
	// failing: a reader must cope with legacy files written by an older
	// (or buggy) writer that didn't maintain sort order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	bodyFor := func(tag StatTag) ([]byte, bool) {
		for i, e := range entries {
			if e.tag != tag {
				continue
			}
			end := len(buf)
			if i+1 < len(entries) {
				end = int(entries[i+1].offset)
			}
			if int(e.offset) > len(buf) || end > len(buf) || int(e.offset) > end {
				return nil, false
			}
			return buf[e.offset:end], true
		}
		return nil, false
	}

	s := &Statistics{}
	if b, ok := bodyFor(TagValidation); ok {
		v, err := decodeValidation(b)
		if err != nil {
			return nil, err
		}
		s.Validation = v
	}
	if b, ok := bodyFor(TagCompaction); ok {
		c, err := decodeCompaction(b)
		if err != nil {
			return nil, err
		}
		s.Compaction = c
	}
	if b, ok := bodyFor(TagStats); ok {
		st, err := decodeStats(b)
		if err != nil {
			return nil, err
		}
		s.Stats = st
	} else {
		return nil, errs.Wrap(errs.MissingComponent, errs.Newf(errs.MissingComponent, "Statistics: missing Stats entry"))
	}
	if b, ok := bodyFor(TagSerializationHeader); ok {
		h, err := decodeSerializationHeader(b)
		if err != nil {
			return nil, err
		}
		s.SerializationHeader = h
	} else {
		return nil, errs.Wrap(errs.MissingComponent, errs.Newf(errs.MissingComponent, "Statistics: missing SerializationHeader entry"))
	}
	return s, nil
}

func encodeValidation(v Validation) []byte {
	buf := make([]byte, 0, 32)
	var lenBuf [format.MaxVIntLen]byte
	n := format.PutUvarint(lenBuf[:], uint64(len(v.Partitioner)))
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, v.Partitioner...)
	var f [8]byte
	format.PutUint64(f[:], doubleBits(v.BloomFilterFPChance))
	return append(buf, f[:]...)
}

func decodeValidation(b []byte) (Validation, error) {
	n, consumed := format.Uvarint(b)
	if consumed == 0 || consumed+int(n)+8 > len(b) {
		return Validation{}, errs.New(errs.Truncated)
	}
	partitioner := string(b[consumed : consumed+int(n)])
	fp := doubleFromBits(format.GetUint64(b[consumed+int(n):]))
	return Validation{Partitioner: partitioner, BloomFilterFPChance: fp}, nil
}

func encodeCompaction(c Compaction) []byte {
	buf := make([]byte, 0, 8+8*len(c.AncestorGenerations))
	var tmp [format.MaxVIntLen]byte
	n := format.PutUvarint(tmp[:], uint64(len(c.AncestorGenerations)))
	buf = append(buf, tmp[:n]...)
	for _, g := range c.AncestorGenerations {
		n := format.PutUvarint(tmp[:], g)
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

func decodeCompaction(b []byte) (Compaction, error) {
	count, n := format.Uvarint(b)
	if n == 0 {
		return Compaction{}, errs.New(errs.Truncated)
	}
	b = b[n:]
	gens := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		g, n := format.Uvarint(b)
		if n == 0 {
			return Compaction{}, errs.New(errs.Truncated)
		}
		gens = append(gens, g)
		b = b[n:]
	}
	return Compaction{AncestorGenerations: gens}, nil
}

func encodeStats(s Stats) []byte {
	buf := make([]byte, 64)
	format.PutInt64(buf[0:8], s.PartitionCount)
	format.PutInt64(buf[8:16], s.RowCount)
	format.PutInt64(buf[16:24], s.CellCount)
	format.PutInt64(buf[24:32], s.MinTimestamp)
	format.PutInt64(buf[32:40], s.MaxTimestamp)
	format.PutInt32(buf[40:44], s.MinLocalDeletionTime)
	format.PutInt32(buf[44:48], s.MaxLocalDeletionTime)
	format.PutInt64(buf[48:56], s.MaxPartitionSize)
	format.PutInt64(buf[56:64], s.TotalUncompressedSize)

	var tmp [format.MaxVIntLen]byte
	appendBytesList := func(list [][]byte) {
		n := format.PutUvarint(tmp[:], uint64(len(list)))
		buf = append(buf, tmp[:n]...)
		for _, v := range list {
			n := format.PutUvarint(tmp[:], uint64(len(v)))
			buf = append(buf, tmp[:n]...)
			buf = append(buf, v...)
		}
	}
	appendBytesList(s.MinColumnNames)
	appendBytesList(s.MaxColumnNames)

	var f [8]byte
	format.PutUint64(f[:], doubleBits(s.EstimatedCellsCountMean))
	buf = append(buf, f[:]...)
	n := format.PutUvarint(tmp[:], uint64(s.EstimatedCellsCountCount))
	buf = append(buf, tmp[:n]...)

	n = format.PutUvarint(tmp[:], uint64(len(s.TombstoneDropHistogram)))
	buf = append(buf, tmp[:n]...)
	for _, bucket := range s.TombstoneDropHistogram {
		n := format.PutVarint(tmp[:], bucket.Time)
		buf = append(buf, tmp[:n]...)
		n = format.PutUvarint(tmp[:], uint64(bucket.Count))
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

func decodeStats(b []byte) (Stats, error) {
	if len(b) < 64 {
		return Stats{}, errs.New(errs.Truncated)
	}
	s := Stats{
		PartitionCount:        int64(format.GetUint64(b[0:8])),
		RowCount:              int64(format.GetUint64(b[8:16])),
		CellCount:             int64(format.GetUint64(b[16:24])),
		MinTimestamp:          int64(format.GetUint64(b[24:32])),
		MaxTimestamp:          int64(format.GetUint64(b[32:40])),
		MinLocalDeletionTime:  int32(format.GetUint32(b[40:44])),
		MaxLocalDeletionTime:  int32(format.GetUint32(b[44:48])),
		MaxPartitionSize:      int64(format.GetUint64(b[48:56])),
		TotalUncompressedSize: int64(format.GetUint64(b[56:64])),
	}
	rest := b[64:]
	if len(rest) == 0 {
		// legacy-shaped short record (or one built by an older writer):
		// tolerate it exactly as spec.md §7 tolerates missing optional
		// metadata, leaving the extended fields at their zero value.
		return s, nil
	}

	readBytesList := func() ([][]byte, error) {
		count, n := format.Uvarint(rest)
		if n == 0 {
			return nil, errs.New(errs.Truncated)
		}
		rest = rest[n:]
		list := make([][]byte, 0, count)
		for i := uint64(0); i < count; i++ {
			l, n := format.Uvarint(rest)
			if n == 0 || n+int(l) > len(rest) {
				return nil, errs.New(errs.Truncated)
			}
			list = append(list, append([]byte(nil), rest[n:n+int(l)]...))
			rest = rest[n+int(l):]
		}
		return list, nil
	}

	var err error
	if s.MinColumnNames, err = readBytesList(); err != nil {
		return Stats{}, err
	}
	if s.MaxColumnNames, err = readBytesList(); err != nil {
		return Stats{}, err
	}

	if len(rest) < 8 {
		return Stats{}, errs.New(errs.Truncated)
	}
	s.EstimatedCellsCountMean = doubleFromBits(format.GetUint64(rest[:8]))
	rest = rest[8:]
	count, n := format.Uvarint(rest)
	if n == 0 {
		return Stats{}, errs.New(errs.Truncated)
	}
	s.EstimatedCellsCountCount = int64(count)
	rest = rest[n:]

	bucketCount, n := format.Uvarint(rest)
	if n == 0 {
		return Stats{}, errs.New(errs.Truncated)
	}
	rest = rest[n:]
	buckets := make([]TombstoneDropBucket, 0, bucketCount)
	for i := uint64(0); i < bucketCount; i++ {
		t, n := format.Varint(rest)
		if n == 0 {
			return Stats{}, errs.New(errs.Truncated)
		}
		rest = rest[n:]
		c, n := format.Uvarint(rest)
		if n == 0 {
			return Stats{}, errs.New(errs.Truncated)
		}
		rest = rest[n:]
		buckets = append(buckets, TombstoneDropBucket{Time: t, Count: int64(c)})
	}
	s.TombstoneDropHistogram = buckets
	return s, nil
}

func encodeSerializationHeader(h SerializationHeader) []byte {
	buf := make([]byte, 16)
	format.PutInt64(buf[0:8], h.MinTimestamp)
	format.PutInt32(buf[8:12], h.MinLocalDeletionTime)
	format.PutInt32(buf[12:16], h.MinTTL)
	return buf
}

func decodeSerializationHeader(b []byte) (SerializationHeader, error) {
	if len(b) < 16 {
		return SerializationHeader{}, errs.New(errs.Truncated)
	}
	return SerializationHeader{
		MinTimestamp:         int64(format.GetUint64(b[0:8])),
		MinLocalDeletionTime: int32(format.GetUint32(b[8:12])),
		MinTTL:               int32(format.GetUint32(b[12:16])),
	}, nil
}
