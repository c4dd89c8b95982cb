// Reader state machine (C6): produces the {partition_start, static_row,
// row, range_tombstone, partition_end, eos} stream spec.md §4.5 describes,
// with clustering-slice filtering and promoted-index-backed forwarding.
// Grounded on the teacher's row_block/data_block_iter.go First/Next/SeekGE
// shape (a lazy, single-direction cursor over a byte-addressed sequence of
// records) generalized from one flat block to a partition tree spanning
// many promoted-index blocks.
package sstable

import (
	"io"

	"github.com/nogodb/mcsstable/internal/format"
	"github.com/nogodb/mcsstable/row"
)

// randomAccess is the minimal surface Scanner needs from the Data
// component, satisfied by both a plain storage.Readable and a chunkReader.
type randomAccess interface {
	ReadAt(p []byte, off int64) (int, error)
}

// countingReaderAt wraps a randomAccess and counts calls to ReadAt, so
// tests can assert the promoted-index speedup property (spec.md §8).
type countingReaderAt struct {
	ra    randomAccess
	reads int
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.reads++
	return c.ra.ReadAt(p, off)
}

// sectionReader adapts a randomAccess plus a moving cursor into an
// io.Reader, the shape every C4 decode helper expects.
type sectionReader struct {
	ra  randomAccess
	pos int64
}

func (s *sectionReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.ra.ReadAt(p, s.pos)
	s.pos += int64(n)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// openRT is the range-tombstone bound currently open while the scanner
// walks a partition's row stream: recorded when a bound/boundary marker
// opens a range, consumed (and turned into an Event) when the matching
// close is seen.
type openRT struct {
	start    row.ClusteringPrefix
	deletion row.DeletionTime
}

// ScannerOptions configures one Scanner. The zero value scans every
// partition with the full clustering slice.
type ScannerOptions struct {
	// Slice restricts emitted rows/range-tombstones to these clustering
	// ranges (spec.md §4.5's "clustering slice filter"). Nil/empty means
	// FullSlice.
	Slice Slice
	// Lower/Upper bound the partition range scanned, by decorated key.
	// A nil Lower starts at the first partition; a nil Upper scans to the
	// last.
	Lower, Upper *row.DecoratedKey
}

// Scanner is a lazy, finite, non-restartable cursor over one Reader's
// partition stream (spec.md §4.5/§9 "Iterator/stream surface"). Open a new
// Scanner (via Reader.NewScanner) to restart.
type Scanner struct {
	r    *Reader
	cc   *codecContext
	data *countingReaderAt

	slice   Slice
	hiEntry int
	nextIdx int // index into r.entries of the next partition to open

	sr                 *sectionReader
	entry              indexEntry
	pi                 *decodedPromotedIndex
	partitionStart     int64
	key                row.DecoratedKey
	partitionDeletion  row.DeletionTime
	numClusteringCols  int

	inPartition bool // between partition_start and partition_end
	staticEmitted bool
	sawEndOfPartition bool
	open              *openRT
	finished          bool

}

// NewScanner opens a Scanner over r using opts.
func (r *Reader) NewScanner(opts ScannerOptions) (*Scanner, error) {
	slice := opts.Slice
	if len(slice) == 0 {
		slice = FullSlice
	}
	lo := 0
	if opts.Lower != nil {
		lo = r.partitionIndex(*opts.Lower)
	}
	hi := len(r.entries)
	if opts.Upper != nil {
		hi = r.partitionIndex(*opts.Upper)
		// partitionIndex returns the first entry >= Upper and the scan
		// stops before it, so Upper itself is always excluded; a caller
		// wanting an inclusive bound should pass the key just after it.
		// Kept simple and documented rather than guessing intent from a
		// bound-kind we don't carry here.
	}
	ra, _ := r.dataReaderAt()
	s := &Scanner{
		r:                 r,
		cc:                r.cc,
		data:              &countingReaderAt{ra: ra},
		slice:             slice,
		hiEntry:           hi,
		nextIdx:           lo,
		numClusteringCols: len(r.schema.ClusteringColumns),
	}
	return s, nil
}

// ReadCount reports how many ReadAt calls this Scanner has issued against
// the Data component so far, for the promoted-index speedup property
// (spec.md §8).
func (s *Scanner) ReadCount() int { return s.data.reads }

// Next returns the next event in the stream. Once it returns an
// EventEOS-kind Event, every subsequent call does the same.
func (s *Scanner) Next() (Event, error) {
	for {
		if s.finished {
			return Event{Kind: EventEOS}, nil
		}
		if !s.inPartition {
			if s.nextIdx >= s.hiEntry {
				s.finished = true
				return Event{Kind: EventEOS}, nil
			}
			if err := s.openPartition(s.nextIdx); err != nil {
				return Event{}, err
			}
			s.nextIdx++
			return Event{Kind: EventPartitionStart, PartitionKey: s.key, PartitionDeletion: s.partitionDeletion}, nil
		}
		if !s.staticEmitted {
			s.staticEmitted = true
			r, ok, err := s.maybeReadStatic()
			if err != nil {
				return Event{}, err
			}
			if ok {
				return Event{Kind: EventStaticRow, Row: r}, nil
			}
			continue
		}
		ev, ok, err := s.step()
		if err != nil {
			return Event{}, err
		}
		if ok {
			return ev, nil
		}
		// step returned no event (e.g. a row/RT filtered out by the
		// slice, or end-of-partition consumed): loop to fetch the next
		// raw item, or close the partition out.
		if s.sawEndOfPartition {
			s.inPartition = false
			return Event{Kind: EventPartitionEnd}, nil
		}
	}
}

// FastForwardTo narrows the active clustering slice to r and repositions
// within the current partition using the promoted index when available
// (spec.md §4.5/§4.4). It is only meaningful while inPartition; calling it
// outside a partition just narrows the slice used for the next partition
// opened (row-forwarding semantics per spec.md §4.5).
func (s *Scanner) FastForwardTo(r ClusteringRange) error {
	s.slice = Slice{r}
	if !s.inPartition || s.pi == nil {
		return nil
	}
	idx := findBlock(s.pi.Blocks, r.Start)
	if idx <= 0 || idx >= len(s.pi.Blocks) {
		return nil
	}
	// jump to the block covering r.Start; only worth it if that's ahead
	// of our current read position.
	blk := s.pi.Blocks[idx]
	target := s.partitionStart + int64(blk.OffsetIntoPartition)
	if target <= s.sr.pos {
		return nil
	}
	s.sr.pos = target
	s.sawEndOfPartition = false
	prev := s.pi.Blocks[idx-1]
	if prev.OpenMarker != nil {
		// spec.md §3: a range tombstone open at the start of a block must
		// be re-emitted at block entry. We don't retain the tombstone's
		// original start bound once its block has been skipped, so the
		// re-emitted marker starts at this block's first clustering
		// position, per spec.md §4.4's block-checkpoint semantics.
		s.open = &openRT{start: row.ClusteringPrefix{Kind: row.BoundInclStart, Values: blk.First.Values}, deletion: *prev.OpenMarker}
	} else {
		s.open = nil
	}
	return nil
}

// NextPartition abandons the rest of the current partition (if any). It
// does not reset the slice: a range set by FastForwardTo stays in effect
// for the partitions that follow.
func (s *Scanner) NextPartition() {
	s.inPartition = false
	s.sawEndOfPartition = false
}

func (s *Scanner) openPartition(idx int) error {
	s.entry = s.r.entries[idx]
	s.sr = &sectionReader{ra: s.data, pos: int64(s.entry.DataOffset)}
	s.partitionStart = int64(s.entry.DataOffset)
	key, deletion, err := readPartitionHeader(s.sr)
	if err != nil {
		return err
	}
	s.key = row.DecoratedKey{Token: s.r.token(key), PartitionKey: key}
	s.partitionDeletion = deletion
	pi, err := decodeIndexEntryPromotedIndex(s.entry, s.cc.clusteringTypes())
	if err != nil {
		return err
	}
	s.pi = pi
	s.inPartition = true
	s.staticEmitted = false
	s.sawEndOfPartition = false
	s.open = nil
	return nil
}

// maybeReadStatic peeks at the next item's flags (and, if present, its
// extension byte); only a row whose extension flags mark it IsStatic is
// consumed and decoded here. Any other flags&byte combination — a plain
// clustered row, a range-tombstone marker, end-of-partition, or a
// clustered row that merely happens to carry HasShadowableDeletionScylla
// without IsStatic — is fully rewound for step() to read instead.
func (s *Scanner) maybeReadStatic() (row.Row, bool, error) {
	startPos := s.sr.pos
	fb, err := format.ReadUint8(s.sr)
	if err != nil {
		return row.Row{}, false, err
	}
	flags := rowFlags(fb)
	if flags&flagEndOfPartition != 0 || flags&flagIsMarker != 0 {
		s.sr.pos = startPos
		return row.Row{}, false, nil
	}
	ext, err := s.readExtension(flags)
	if err != nil {
		return row.Row{}, false, err
	}
	if ext&extIsStatic == 0 {
		s.sr.pos = startPos
		return row.Row{}, false, nil
	}
	r, err := s.cc.decodeRow(s.sr, flags, ext, row.ClusteringPrefix{Kind: row.BoundStaticClustering}, true)
	if err != nil {
		return row.Row{}, false, err
	}
	return r, true, nil
}

func (s *Scanner) readExtension(flags rowFlags) (extendedFlags, error) {
	if flags&flagExtension == 0 {
		return 0, nil
	}
	b, err := format.ReadUint8(s.sr)
	if err != nil {
		return 0, err
	}
	return extendedFlags(b), nil
}

// step decodes exactly one raw item (row, bound marker, boundary marker,
// or end-of-partition) from the current position and returns the Event it
// produces, if any survives slice filtering. ok is false when the item was
// consumed but produced no visible event (filtered out, or it was the
// end-of-partition byte, recorded via s.sawEndOfPartition).
func (s *Scanner) step() (Event, bool, error) {
	fb, err := format.ReadUint8(s.sr)
	if err != nil {
		return Event{}, false, err
	}
	flags := rowFlags(fb)
	if flags&flagEndOfPartition != 0 {
		s.sawEndOfPartition = true
		if s.open != nil {
			// An RT still open at end-of-partition never closes on disk;
			// nothing further to emit for it here (spec.md's grammar has
			// no "still open" event — a consumer that needs the tail
			// treats partition_end as an implicit close).
			s.open = nil
		}
		return Event{}, false, nil
	}
	ext, err := s.readExtension(flags)
	if err != nil {
		return Event{}, false, err
	}

	if flags&flagIsMarker != 0 {
		bound, err := decodeBoundPrefix(s.sr, s.cc.clusteringTypes())
		if err != nil {
			return Event{}, false, err
		}
		// A marker that opens a new range strictly after the active slice's
		// last range can never produce a visible event (nor can anything
		// after it, since positions are monotonic): stop here instead of
		// decoding its body and continuing to read the rest of the
		// partition. A marker that *closes* a range must still be decoded,
		// since it may close a range that started inside the slice.
		if bound.Kind.IsStart() && s.slice.PastEnd(bound) {
			s.sawEndOfPartition = true
			return Event{}, false, nil
		}
		single, boundary, err := s.cc.decodeMarkerBody(s.sr, bound)
		if err != nil {
			return Event{}, false, err
		}
		return s.applyMarker(&single, boundary)
	}

	clustering, err := row.DecodeClusteringPrefix(s.sr, s.cc.clusteringTypes(), s.numClusteringCols, row.BoundClustering)
	if err != nil {
		return Event{}, false, err
	}
	// Once the decoded position is past every range in the active slice, no
	// later row in this partition can match either (spec.md §4.4's "each
	// fast_forward_to(x,y) must cause ≤ (blocks overlapping [x,y]+1) data
	// reads" — without this, a forwarded scan of a wide partition keeps
	// decoding every remaining row all the way to end-of-partition instead
	// of stopping once it runs past the target range). We stop without
	// decoding the row body: leaving sr misaligned mid-row is safe, since
	// nothing reads from it again until either a fresh FastForwardTo
	// repositions it directly or the partition is abandoned.
	if s.slice.PastEnd(clustering) {
		s.sawEndOfPartition = true
		return Event{}, false, nil
	}
	r, err := s.cc.decodeRow(s.sr, flags, ext, clustering, false)
	if err != nil {
		return Event{}, false, err
	}
	if !s.inActiveRange(clustering) {
		return Event{}, false, nil
	}
	return Event{Kind: EventRow, Row: r}, true, nil
}

// applyMarker folds a decoded bound/boundary marker into the open-range
// state machine, emitting a range_tombstone Event whenever a range closes
// (spec.md §4.4's boundary-merge semantics, mirrored on the read side).
func (s *Scanner) applyMarker(single *boundMarker, boundary *boundaryMarker) (Event, bool, error) {
	switch {
	case boundary != nil:
		closeKind, openKind := row.BoundExclEnd, row.BoundInclStart
		if boundary.Bound.Kind == row.BoundInclEndExclStart {
			closeKind, openKind = row.BoundInclEnd, row.BoundExclStart
		}
		var ev Event
		var ok bool
		if s.open != nil {
			end := row.ClusteringPrefix{Kind: closeKind, Values: boundary.Bound.Values}
			ev, ok = s.emitRT(s.open.start, end, s.open.deletion)
		}
		s.open = &openRT{
			start:    row.ClusteringPrefix{Kind: openKind, Values: boundary.Bound.Values},
			deletion: boundary.Opening,
		}
		return ev, ok, nil
	case single.Bound.Kind.IsStart():
		s.open = &openRT{start: single.Bound, deletion: single.Deletion}
		return Event{}, false, nil
	default: // IsEnd
		if s.open == nil {
			return Event{}, false, nil
		}
		ev, ok := s.emitRT(s.open.start, single.Bound, single.Deletion)
		s.open = nil
		return ev, ok, nil
	}
}

// emitRT builds a range_tombstone Event, trimming (start, end) to the
// active slice range and reporting ok=false if they don't intersect it at
// all (spec.md §4.5 "the emitted tombstone carries the intersected
// bounds").
func (s *Scanner) emitRT(start, end row.ClusteringPrefix, deletion row.DeletionTime) (Event, bool) {
	for _, rg := range s.slice {
		ns, ne, ok := intersect(start, end, rg)
		if ok {
			return Event{Kind: EventRangeTombstone, RTStart: ns, RTEnd: ne, RTDeletion: deletion}, true
		}
	}
	return Event{}, false
}

// inActiveRange reports whether a row's clustering position lies in one of
// the scanner's active slice ranges.
func (s *Scanner) inActiveRange(c row.ClusteringPrefix) bool {
	_, _, ok := s.slice.rangeFor(c)
	return ok
}
