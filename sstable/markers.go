package sstable

import (
	"bytes"
	"io"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
	"github.com/nogodb/mcsstable/row"
)

// writeEndOfPartition writes the single flags byte that closes a
// partition's row stream, spec.md §4.3's "End-of-partition marker".
func writeEndOfPartition(w io.Writer) error {
	_, err := w.Write([]byte{byte(flagEndOfPartition)})
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

// boundMarker is a single range-tombstone bound: open or close one range,
// written as an IsMarker row whose body carries exactly one deletion time.
type boundMarker struct {
	Bound     row.ClusteringPrefix
	Deletion  row.DeletionTime
}

// boundaryMarker closes one range tombstone and opens the next at the same
// clustering prefix (spec.md §4.4's "Boundary marker"), carrying two
// deletion times: the closing tombstone then the opening one.
type boundaryMarker struct {
	Bound   row.ClusteringPrefix
	Closing row.DeletionTime
	Opening row.DeletionTime
}

func (c *codecContext) encodeBoundMarker(w io.Writer, m boundMarker) error {
	flags := flagIsMarker
	if _, err := w.Write([]byte{byte(flags)}); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	if err := encodeBoundPrefix(w, m.Bound, c.clusteringTypes()); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := writeDeletionTimeDelta(&buf, m.Deletion, c.header); err != nil {
		return err
	}
	body := buf.Bytes()
	if err := format.WriteUvarint(w, uint64(len(body))); err != nil {
		return err
	}
	if err := format.WriteUvarint(w, 0); err != nil { // prev_row_size
		return err
	}
	if _, err := w.Write(body); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (c *codecContext) encodeBoundaryMarker(w io.Writer, m boundaryMarker) error {
	flags := flagIsMarker
	if _, err := w.Write([]byte{byte(flags)}); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	if err := encodeBoundPrefix(w, m.Bound, c.clusteringTypes()); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := writeDeletionTimeDelta(&buf, m.Closing, c.header); err != nil {
		return err
	}
	if err := writeDeletionTimeDelta(&buf, m.Opening, c.header); err != nil {
		return err
	}
	body := buf.Bytes()
	if err := format.WriteUvarint(w, uint64(len(body))); err != nil {
		return err
	}
	if err := format.WriteUvarint(w, 0); err != nil {
		return err
	}
	_, err := w.Write(body)
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

// isBoundaryKind reports whether kind is one of the two merged boundary kinds
// (spec.md §4.4).
func isBoundaryKind(k row.BoundKind) bool {
	return k == row.BoundExclEndInclStart || k == row.BoundInclEndExclStart
}

// decodeMarkerBody reads a marker's body (already positioned after the
// clustering prefix) and reports whether it is a boundary (two deletion
// times) based on the prefix's bound kind.
func (c *codecContext) decodeMarkerBody(r io.Reader, bound row.ClusteringPrefix) (boundMarker, *boundaryMarker, error) {
	bodySize, err := format.ReadUvarint(r)
	if err != nil {
		return boundMarker{}, nil, err
	}
	if _, err := format.ReadUvarint(r); err != nil { // prev_row_size
		return boundMarker{}, nil, err
	}
	body := make([]byte, bodySize)
	if err := format.ReadFull(r, body); err != nil {
		return boundMarker{}, nil, err
	}
	br := bytes.NewReader(body)

	dt1, err := readDeletionTimeDelta(br, c.header)
	if err != nil {
		return boundMarker{}, nil, err
	}
	if !isBoundaryKind(bound.Kind) {
		return boundMarker{Bound: bound, Deletion: dt1}, nil, nil
	}
	dt2, err := readDeletionTimeDelta(br, c.header)
	if err != nil {
		return boundMarker{}, nil, err
	}
	return boundMarker{}, &boundaryMarker{Bound: bound, Closing: dt1, Opening: dt2}, nil
}
