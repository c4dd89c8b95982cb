// Writer orchestration (C4/C5/C3/C7 tied together): spec.md §1's "Writers
// that consume an ordered stream of partition/row events and emit a
// bit-exact family of files." Grounded on the teacher's writer.go
// (go-sstable/writer.go), whose Add/Close shape over a row_block.Writer
// plus a MetadataCollector this generalizes to the wide-column partition
// model and the full "mc" component set.
package sstable

import (
	"bytes"
	"context"

	"github.com/nogodb/mcsstable/block"
	"github.com/nogodb/mcsstable/compression"
	"github.com/nogodb/mcsstable/filter"
	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/filenames"
	"github.com/nogodb/mcsstable/internal/jobs"
	"github.com/nogodb/mcsstable/internal/logging"
	"github.com/nogodb/mcsstable/metadata"
	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
	"github.com/nogodb/mcsstable/storage"
	"go.uber.org/zap"
)

// scyllaHashVersion is the murmur3 token-ring hash scheme version recorded
// in every Scylla.db Sharding record; this engine only ever partitions with
// Murmur3Partitioner (see the Statistics component's Validation.Partitioner
// below), so the version is fixed rather than configurable.
const scyllaHashVersion = 1

// Writer builds one generation's "mc" component family from a fully
// materialized, token-ordered stream of partitions. Unlike a pure
// single-pass codec, it needs the serialization header's delta-encoding
// minima before it can emit a single cell (spec.md §3 "min_*... are the
// minima actually present in the file"), so — mirroring how the teacher's
// memtable flush path first scans the memtable to build a
// MetadataCollector before writing a byte — Write takes the whole ordered
// partition slice up front rather than a push-style per-row API.
type Writer struct {
	storage    storage.Storage
	generation string
	schema     *schema.Definition
	token      func([]byte) uint64
	opts       WriterOptions
}

// NewWriter returns a Writer that will publish its component family into s
// under generation. token is the partitioner's key->token function (spec.md
// §6 "Partitioner").
func NewWriter(s storage.Storage, generation string, def *schema.Definition, token func([]byte) uint64, opts ...WriterOption) *Writer {
	o := DefaultWriterOptions
	for _, fn := range opts {
		fn(&o)
	}
	return &Writer{storage: s, generation: generation, schema: def, token: token, opts: o}
}

// Result summarizes a successful Write.
type Result struct {
	Generation string
	Components []metadata.ComponentName
	Statistics metadata.Statistics
}

// createdFile tracks one component's handle so a failed Write can abort
// every file it had already opened, per spec.md §4.6/§7 "write-path errors
// abort the writer and delete any partial files".
type createdFile struct {
	name      string
	component metadata.ComponentName
	w         storage.Writable
}

// Write consumes partitions (already in strictly increasing token/key
// order, spec.md §3 invariant) and publishes the full "mc" component
// family, sealing it atomically (C7) before returning.
func (w *Writer) Write(partitions []row.Partition) (*Result, error) {
	if w.opts.Shards != nil {
		lock := w.opts.Shards.ForShard(w.opts.ShardIndex)
		if err := lock.AcquireCtx(context.Background()); err != nil {
			return nil, errs.Wrap(errs.Io, err)
		}
		defer lock.ReleaseCtx(context.Background())
	}

	if err := validatePartitionOrder(partitions); err != nil {
		return nil, err
	}

	header, stats := computeStatsAndHeader(partitions)
	cc := &codecContext{schema: w.schema, header: header}

	var created []createdFile
	abortAll := func() {
		for i := len(created) - 1; i >= 0; i-- {
			created[i].w.Abort()
			logging.L().Warn("sstable write aborted, removing partial component",
				zap.String("component", created[i].name),
				zap.Stringer("kind", block.KindForComponent(created[i].component)))
		}
	}
	create := func(component metadata.ComponentName) (storage.Writable, error) {
		name := filenames.Format(w.generation, component)
		wf, err := w.storage.Create(name)
		if err != nil {
			abortAll()
			return nil, err
		}
		created = append(created, createdFile{name: name, component: component, w: wf})
		return wf, nil
	}

	dataRaw, err := create(metadata.ComponentData)
	if err != nil {
		return nil, err
	}
	digestW := metadata.NewChecksumWriter(dataRaw)
	var dataCodec compression.Codec
	if w.opts.Compression != compression.None {
		dataCodec = compression.New(w.opts.Compression)
	}
	chunks := newChunkWriter(digestW, dataCodec, w.opts.DataChunkSize)

	indexW, err := create(metadata.ComponentIndex)
	if err != nil {
		return nil, err
	}

	bloom := filter.NewWriter()
	var summaryEntries []metadata.SummaryEntry
	var indexOffset int64
	var avgPartitionBytes float64
	if stats.PartitionCount > 0 {
		avgPartitionBytes = float64(stats.TotalUncompressedSize) / float64(stats.PartitionCount)
	}
	sampleEvery := metadata.SampleStride(avgPartitionBytes, w.opts.SummaryRatio, w.opts.MinIndexInterval)

	for i, p := range partitions {
		partitionStart := chunks.CurrentUncompressedOffset()
		if err := writePartitionHeader(chunks, p.Key.PartitionKey, p.Deletion); err != nil {
			abortAll()
			return nil, err
		}
		headerEnd := chunks.CurrentUncompressedOffset()

		pib := newPIBuilder(partitionStart, w.opts.PromotedIndexBlockSize)
		if p.Static != nil && !p.Static.IsEmpty() {
			if _, err := cc.encodeRow(chunks, *p.Static, true, 0); err != nil {
				abortAll()
				return nil, err
			}
		}

		events, err := buildEventSequence(p)
		if err != nil {
			abortAll()
			return nil, err
		}
		var prevBodySize uint64
		for _, ev := range events {
			switch {
			case ev.row != nil:
				sz, err := cc.encodeRow(chunks, *ev.row, false, prevBodySize)
				if err != nil {
					abortAll()
					return nil, err
				}
				prevBodySize = sz
				pib.Observe(ev.row.Clustering, chunks.CurrentUncompressedOffset(), nil)
			case ev.boundary != nil:
				if err := cc.encodeBoundaryMarker(chunks, *ev.boundary); err != nil {
					abortAll()
					return nil, err
				}
				prevBodySize = 0
				open := ev.boundary.Opening
				pib.Observe(ev.boundary.Bound, chunks.CurrentUncompressedOffset(), &open)
			case ev.single != nil:
				if err := cc.encodeBoundMarker(chunks, ev.single.boundMarker); err != nil {
					abortAll()
					return nil, err
				}
				prevBodySize = 0
				if ev.single.isOpen {
					open := ev.single.Deletion
					pib.Observe(ev.single.Bound, chunks.CurrentUncompressedOffset(), &open)
				} else {
					pib.Observe(ev.single.Bound, chunks.CurrentUncompressedOffset(), nil)
				}
			}
		}
		if err := writeEndOfPartition(chunks); err != nil {
			abortAll()
			return nil, err
		}

		blocks := pib.Finish(chunks.CurrentUncompressedOffset())
		var piBytes []byte
		if len(blocks) >= 2 {
			var buf bytes.Buffer
			if err := encodePromotedIndex(&buf, cc, uint64(headerEnd-partitionStart), p.Deletion, blocks); err != nil {
				abortAll()
				return nil, err
			}
			piBytes = buf.Bytes()
		}

		entry := indexEntry{PartitionKey: p.Key.PartitionKey, DataOffset: uint64(partitionStart), PromotedIndex: piBytes}
		if err := writeIndexEntry(indexW, entry); err != nil {
			abortAll()
			return nil, err
		}
		bloom.Add(p.Key.PartitionKey)

		if i%sampleEvery == 0 {
			summaryEntries = append(summaryEntries, metadata.SummaryEntry{
				Token:             p.Key.Token,
				KeyPrefix:         summaryKeyPrefix(p.Key.PartitionKey),
				IndexFilePosition: indexOffset,
			})
		}
		indexOffset += int64(indexEntryEncodedLen(entry))
	}

	compInfo, err := chunks.Finish(w.opts.Compression, compressorOptions(w.schema))
	if err != nil {
		abortAll()
		return nil, err
	}

	if err := indexW.Sync(); err != nil {
		abortAll()
		return nil, err
	}

	var filterBuf []byte
	bloom.Build(&filterBuf)
	filterW, err := create(metadata.ComponentFilter)
	if err != nil {
		return nil, err
	}
	if _, err := filterW.Write(filterBuf); err != nil {
		abortAll()
		return nil, err
	}

	var firstKey, lastKey []byte
	if len(partitions) > 0 {
		firstKey = partitions[0].Key.PartitionKey
		lastKey = partitions[len(partitions)-1].Key.PartitionKey
	}
	summary := &metadata.Summary{
		Header: metadata.SummaryHeader{
			MinIndexInterval:   int32(w.opts.MinIndexInterval),
			Size:               int32(len(summaryEntries)),
			SamplingLevel:      metadata.BaseSamplingLevel,
			SizeAtFullSampling: int32(len(summaryEntries)),
		},
		Entries:  summaryEntries,
		FirstKey: firstKey,
		LastKey:  lastKey,
	}
	summaryW, err := create(metadata.ComponentSummary)
	if err != nil {
		return nil, err
	}
	if err := summary.WriteTo(summaryW); err != nil {
		abortAll()
		return nil, err
	}

	stats.ValidateMinMaxColumnNames(len(w.schema.ClusteringColumns))
	statistics := metadata.Statistics{
		Validation:          metadata.Validation{Partitioner: "org.apache.cassandra.dht.Murmur3Partitioner", BloomFilterFPChance: w.schema.BloomFilterFPChance},
		Compaction:          metadata.Compaction{},
		Stats:               stats,
		SerializationHeader: header,
	}
	statsW, err := create(metadata.ComponentStatistics)
	if err != nil {
		return nil, err
	}
	if err := statistics.WriteTo(statsW); err != nil {
		abortAll()
		return nil, err
	}

	// The Scylla.db component (sharding record + feature bitmask) is
	// written unconditionally alongside the other components, mirroring
	// original_source/sstables.cc's create_sharding_metadata/
	// write_scylla_metadata (SPEC_FULL.md's E7).
	scyllaW, err := create(metadata.ComponentScyllaSharding)
	if err != nil {
		return nil, err
	}
	sharding := metadata.Sharding{ShardCount: w.opts.ShardCount, HashVersion: scyllaHashVersion}
	if err := sharding.WriteTo(scyllaW); err != nil {
		abortAll()
		return nil, err
	}
	features := metadata.Features{Flags: w.opts.Features}
	if err := features.WriteTo(scyllaW); err != nil {
		abortAll()
		return nil, err
	}

	components := []metadata.ComponentName{
		metadata.ComponentData, metadata.ComponentIndex, metadata.ComponentFilter,
		metadata.ComponentSummary, metadata.ComponentStatistics, metadata.ComponentScyllaSharding,
	}

	if compInfo != nil && w.opts.Compression != compression.None {
		ciW, err := create(metadata.ComponentCompressionInfo)
		if err != nil {
			return nil, err
		}
		if err := compInfo.WriteTo(ciW); err != nil {
			abortAll()
			return nil, err
		}
		components = append(components, metadata.ComponentCompressionInfo)
	} else if w.opts.EnableDataIntegrityCheck {
		crcW, err := create(metadata.ComponentCRC)
		if err != nil {
			return nil, err
		}
		crcComp := &metadata.CRCComponent{ChunkSize: uint32(w.opts.DataChunkSize), ChunkCRCs: chunks.ChunkCRCs()}
		if err := crcComp.WriteTo(crcW); err != nil {
			abortAll()
			return nil, err
		}
		components = append(components, metadata.ComponentCRC)
	}

	if err := dataRaw.Sync(); err != nil {
		abortAll()
		return nil, err
	}
	if w.opts.EnableDataIntegrityCheck {
		digestW2, err := create(metadata.ComponentDigest)
		if err != nil {
			return nil, err
		}
		if err := metadata.WriteDigest(digestW2, digestW.Sum32()); err != nil {
			abortAll()
			return nil, err
		}
		components = append(components, metadata.ComponentDigest)
	}

	// finish every created component before sealing (spec.md §4.6 step 2).
	// Their Finish (fsync + close) calls run on the background-jobs
	// barrier's goroutine, one after another, while Write waits for all of
	// them.
	if err := finishAll(created); err != nil {
		abortAll()
		return nil, err
	}

	if err := sealTOC(w.storage, w.generation, components); err != nil {
		return nil, err
	}

	return &Result{Generation: w.generation, Components: components, Statistics: statistics}, nil
}

// finishTask adapts one component's Finish call to jobs.Task.
type finishTask struct {
	w storage.Writable
}

func (t finishTask) Execute() error { return t.w.Finish() }

// finishAll runs every component's Finish on a jobs.Barrier's background
// goroutine and waits for all of them, returning the first error
// encountered.
func finishAll(created []createdFile) error {
	b := jobs.New(len(created), false)
	for _, cf := range created {
		b.Submit(finishTask{w: cf.w})
	}
	return b.Close()
}

func validatePartitionOrder(partitions []row.Partition) error {
	for i := 1; i < len(partitions); i++ {
		if partitions[i-1].Key.Compare(partitions[i].Key) >= 0 {
			return errs.Newf(errs.OutOfOrder, "partition %d (%x) does not sort strictly after partition %d (%x)",
				i, partitions[i].Key.PartitionKey, i-1, partitions[i-1].Key.PartitionKey)
		}
	}
	for pi, p := range partitions {
		for i := 1; i < len(p.Rows); i++ {
			if p.Rows[i-1].Clustering.Compare(p.Rows[i].Clustering) >= 0 {
				return errs.Newf(errs.OutOfOrder, "partition %d: row %d does not sort strictly after row %d", pi, i, i-1)
			}
		}
	}
	return nil
}

// summaryKeyPrefix truncates a partition key to a short disambiguating
// prefix for the Summary's sampled entries (spec.md §4.2).
func summaryKeyPrefix(key []byte) []byte {
	const maxPrefix = 16
	if len(key) <= maxPrefix {
		return append([]byte(nil), key...)
	}
	return append([]byte(nil), key[:maxPrefix]...)
}

func indexEntryEncodedLen(e indexEntry) int {
	var buf bytes.Buffer
	_ = writeIndexEntry(&buf, e)
	return buf.Len()
}

func compressorOptions(def *schema.Definition) map[string]string {
	if def.Compressor.Class == "" {
		return nil
	}
	return map[string]string{"class": def.Compressor.Class}
}
