// Reader (C3/C6): opens one generation's component family and exposes it
// as decoded partitions plus the membership/metadata collaborators a query
// path needs. Grounded on the teacher's go-sstable/reader.go open sequence
// (read the footer, then the index, then hand back block iterators),
// generalized from one flat block index to the "mc" TOC+Summary+Index
// trio.
package sstable

import (
	"hash/fnv"
	"io"

	"github.com/nogodb/mcsstable/compression"
	"github.com/nogodb/mcsstable/filter"
	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/filenames"
	"github.com/nogodb/mcsstable/metadata"
	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
	"github.com/nogodb/mcsstable/storage"
)

// Reader holds one generation's open component handles and parsed
// metadata, shared by every Scanner opened over it.
type Reader struct {
	storage    storage.Storage
	generation string
	schema     *schema.Definition
	token      func([]byte) uint64
	opts       ReaderOptions

	toc        *metadata.TOC
	statistics *metadata.Statistics
	compInfo   *metadata.CompressionInfo
	filterBuf  []byte
	summary    *metadata.Summary
	sharding   metadata.Sharding
	features   metadata.Features

	dataHandle  storage.Readable
	indexHandle storage.Readable

	cc      *codecContext
	entries []indexEntry
}

// Open reads generation's TOC and every component it lists, failing with
// errs.MissingComponent if Data, Index or Statistics is absent (spec.md §7
// "a TOC without its mandatory components is corrupt, not recoverable").
func Open(s storage.Storage, generation string, def *schema.Definition, token func([]byte) uint64, opts ...ReaderOption) (*Reader, error) {
	o := DefaultReaderOptions
	for _, fn := range opts {
		fn(&o)
	}

	tocName := filenames.TOCName(generation)
	tocHandle, err := s.Open(tocName)
	if err != nil {
		return nil, err
	}
	tocBuf, err := readAllReadable(tocHandle)
	_ = tocHandle.Close()
	if err != nil {
		return nil, err
	}
	toc, err := metadata.ReadTOC(bytesReader(tocBuf))
	if err != nil {
		return nil, err
	}
	if !toc.Has(metadata.ComponentData) || !toc.Has(metadata.ComponentIndex) || !toc.Has(metadata.ComponentStatistics) {
		return nil, errs.Newf(errs.MissingComponent, "sstable %s: TOC missing a mandatory component", generation)
	}

	r := &Reader{storage: s, generation: generation, schema: def, token: token, opts: o, toc: toc}

	statBuf, err := r.readComponent(metadata.ComponentStatistics)
	if err != nil {
		return nil, err
	}
	stats, err := metadata.ReadStatistics(statBuf)
	if err != nil {
		return nil, err
	}
	r.statistics = stats
	r.cc = &codecContext{schema: def, header: stats.SerializationHeader}

	if toc.Has(metadata.ComponentCompressionInfo) {
		ciBuf, err := r.readComponent(metadata.ComponentCompressionInfo)
		if err != nil {
			return nil, err
		}
		ci, err := metadata.ReadCompressionInfo(ciBuf)
		if err != nil {
			return nil, err
		}
		r.compInfo = ci
	}

	if toc.Has(metadata.ComponentFilter) {
		fb, err := r.readComponent(metadata.ComponentFilter)
		if err != nil {
			return nil, err
		}
		r.filterBuf = fb
	}

	if toc.Has(metadata.ComponentScyllaSharding) {
		scb, err := r.readComponent(metadata.ComponentScyllaSharding)
		if err != nil {
			return nil, err
		}
		sharding, features, err := metadata.ReadScyllaComponent(scb)
		if err != nil {
			return nil, err
		}
		if err := features.Validate(); err != nil {
			return nil, err
		}
		r.sharding = sharding
		r.features = features
	}

	if toc.Has(metadata.ComponentSummary) {
		sb, err := r.readComponent(metadata.ComponentSummary)
		if err != nil {
			return nil, err
		}
		summary, err := metadata.ReadSummary(sb)
		if err != nil {
			return nil, err
		}
		r.summary = summary
	}

	dataHandle, err := s.Open(filenames.Format(generation, metadata.ComponentData))
	if err != nil {
		return nil, err
	}
	r.dataHandle = dataHandle

	indexHandle, err := s.Open(filenames.Format(generation, metadata.ComponentIndex))
	if err != nil {
		_ = dataHandle.Close()
		return nil, err
	}
	r.indexHandle = indexHandle

	indexBuf, err := readAllReadable(indexHandle)
	if err != nil {
		return nil, err
	}
	entries, err := readAllIndexEntries(indexBuf)
	if err != nil {
		return nil, err
	}
	r.entries = entries
	if r.summary == nil {
		// regeneration path (spec.md §7): a missing Summary never blocks
		// reads, since the full Index is already loaded in memory above.
		r.summary = regenerateSummary(entries, def.MinIndexInterval)
	}

	return r, nil
}

func (r *Reader) readComponent(c metadata.ComponentName) ([]byte, error) {
	name := filenames.Format(r.generation, c)
	h, err := r.storage.Open(name)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return readAllReadable(h)
}

func readAllReadable(h storage.Readable) ([]byte, error) {
	size := h.Size()
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	n, err := h.ReadAt(buf, 0)
	if err != nil && int64(n) != size {
		return nil, errs.Wrap(errs.Truncated, err)
	}
	return buf, nil
}

// Close releases the reader's open file handles.
func (r *Reader) Close() error {
	var firstErr error
	if r.dataHandle != nil {
		if err := r.dataHandle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.indexHandle != nil {
		if err := r.indexHandle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MayContainKey reports whether the partition key may be present, per the
// Filter component (spec.md §4.2). Always true when no Filter was written.
func (r *Reader) MayContainKey(key []byte) bool {
	if len(r.filterBuf) == 0 {
		return true
	}
	return filter.MayContain(r.filterBuf, key)
}

// Statistics returns the sstable's parsed Statistics component.
func (r *Reader) Statistics() metadata.Statistics { return *r.statistics }

// Sharding returns the Scylla.db sharding record, or the zero value if this
// generation carries no Scylla.db component.
func (r *Reader) Sharding() metadata.Sharding { return r.sharding }

// Features returns the Scylla.db feature bitmask, or the zero value
// (KnownFeatures-safe, since no bit means no extension is relied on) if this
// generation carries no Scylla.db component.
func (r *Reader) Features() metadata.Features { return r.features }

func (r *Reader) dataReaderAt() (interface{ ReadAt([]byte, int64) (int, error) }, int64) {
	if r.compInfo != nil {
		var codec compression.Codec
		if r.compInfo.Type != compression.None {
			codec = compression.New(r.compInfo.Type)
		}
		if r.opts.PageCache != nil {
			cr := newCachedChunkReader(r.dataHandle, r.compInfo, codec, r.opts.PageCache, r.fileID())
			return cr, r.compInfo.UncompressedLength
		}
		return newChunkReader(r.dataHandle, r.compInfo, codec), r.compInfo.UncompressedLength
	}
	return r.dataHandle, r.dataHandle.Size()
}

// fileID derives the page cache's file identity from an FNV-64a hash of
// this generation's name, so distinct generations get distinct IDs in a
// cache shared across Readers (barring a hash collision).
func (r *Reader) fileID() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(r.generation))
	return h.Sum64()
}

// partitionIndex returns the position in r.entries of the first entry
// whose decorated key is >= target (spec.md §6's partition-range scan via
// binary search), using the Summary-regenerated-or-not entry list equally.
func (r *Reader) partitionIndex(target row.DecoratedKey) int {
	lo, hi := 0, len(r.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		dk := decoratedKeyFor(r.entries[mid], r.token)
		if dk.Compare(target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func regenerateSummary(entries []indexEntry, minIndexInterval int) *metadata.Summary {
	if minIndexInterval < 1 {
		minIndexInterval = 1
	}
	s := &metadata.Summary{Header: metadata.SummaryHeader{MinIndexInterval: int32(minIndexInterval)}}
	if len(entries) > 0 {
		s.FirstKey = entries[0].PartitionKey
		s.LastKey = entries[len(entries)-1].PartitionKey
	}
	return s
}

func bytesReader(b []byte) *bytesReaderT { return &bytesReaderT{b: b} }

// bytesReaderT is a minimal io.Reader over a byte slice, used instead of
// bytes.NewReader at call sites that only need Read (avoids importing
// bytes into files that otherwise wouldn't need it).
type bytesReaderT struct {
	b   []byte
	pos int
}

func (r *bytesReaderT) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, errEOFReader
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

var errEOFReader = io.EOF
