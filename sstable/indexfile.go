// Index-file entry codec (part of C3/C6): one entry per partition, per
// spec.md §6 "(partition-key-disk-string, vint(data-offset),
// vint(promoted-index-size), promoted-index?)". Grounded on datafile.go's
// vint-length-prefixed body shape, generalized to a flat per-partition
// record instead of a per-row one.
package sstable

import (
	"bytes"
	"io"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
)

// indexEntry is one partition's Index-file record.
type indexEntry struct {
	PartitionKey        []byte
	DataOffset          uint64
	PromotedIndex       []byte // pre-encoded via encodePromotedIndex, nil when < 2 blocks
}

func writeIndexEntry(w io.Writer, e indexEntry) error {
	if err := format.WriteDiskString16(w, e.PartitionKey); err != nil {
		return err
	}
	if err := format.WriteUvarint(w, e.DataOffset); err != nil {
		return err
	}
	if err := format.WriteUvarint(w, uint64(len(e.PromotedIndex))); err != nil {
		return err
	}
	if len(e.PromotedIndex) == 0 {
		return nil
	}
	if _, err := w.Write(e.PromotedIndex); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

// readIndexEntry reads one entry starting at the current reader position.
func readIndexEntry(r io.Reader) (indexEntry, error) {
	key, err := format.ReadDiskString16(r)
	if err != nil {
		return indexEntry{}, err
	}
	dataOffset, err := format.ReadUvarint(r)
	if err != nil {
		return indexEntry{}, err
	}
	piLen, err := format.ReadUvarint(r)
	if err != nil {
		return indexEntry{}, err
	}
	var pi []byte
	if piLen > 0 {
		pi = make([]byte, piLen)
		if err := format.ReadFull(r, pi); err != nil {
			return indexEntry{}, err
		}
	}
	return indexEntry{PartitionKey: key, DataOffset: dataOffset, PromotedIndex: pi}, nil
}

// decodeIndexEntryPromotedIndex parses an entry's embedded promoted-index
// bytes, if any.
func decodeIndexEntryPromotedIndex(e indexEntry, clusteringTypes []schema.Type) (*decodedPromotedIndex, error) {
	if len(e.PromotedIndex) == 0 {
		return nil, nil
	}
	return decodePromotedIndex(e.PromotedIndex, clusteringTypes)
}

// readAllIndexEntries parses a whole Index.db buffer into memory, used by
// both Summary regeneration and (for now) the reader's partition scan: the
// "mc" format allows streaming the Index file, but an in-memory scan is
// simplest for a from-scratch binary-search path and is what Summary
// regeneration needs anyway.
func readAllIndexEntries(buf []byte) ([]indexEntry, error) {
	r := bytes.NewReader(buf)
	var out []indexEntry
	for r.Len() > 0 {
		e, err := readIndexEntry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// decoratedKeyFor re-derives a row.DecoratedKey for an index entry given a
// partitioner's token function (the reader/writer's schema collaborator
// supplies this; spec.md §6 "Partitioner").
func decoratedKeyFor(e indexEntry, token func([]byte) uint64) row.DecoratedKey {
	return row.DecoratedKey{Token: token(e.PartitionKey), PartitionKey: e.PartitionKey}
}
