// Data-file codec (C4): partition header, static row, clustered rows and
// range-tombstone markers, cell encoding, per spec.md §4.3. Grounded on the
// teacher's row_block/row_oriented.go for the "buffer, prefix with a vint
// size, remember the previous size" shape (there it is shared/unshared key
// prefixing; here it is the body_size/prev_row_size pair spec.md calls
// for), generalized from a flat key/value row to the wide-column
// partition/row/cell tree spec.md §2–§4 describes.
package sstable

import (
	"bytes"
	"io"
	"math"

	"github.com/nogodb/mcsstable/internal/errs"
	"github.com/nogodb/mcsstable/internal/format"
	"github.com/nogodb/mcsstable/metadata"
	"github.com/nogodb/mcsstable/row"
	"github.com/nogodb/mcsstable/schema"
)

const (
	sentinelLocalDeletionTime = int32(0x7FFFFFFF)
	sentinelMarkedForDeleteAt = int64(math.MinInt64)
)

func writeDeletionTimeRaw(w io.Writer, dt row.DeletionTime) error {
	local, marked := dt.LocalDeletionTime, dt.MarkedForDeleteAt
	if dt.Live() {
		local, marked = sentinelLocalDeletionTime, sentinelMarkedForDeleteAt
	}
	var buf [12]byte
	format.PutInt32(buf[0:4], local)
	format.PutInt64(buf[4:12], marked)
	if _, err := w.Write(buf[:]); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func readDeletionTimeRaw(r io.Reader) (row.DeletionTime, error) {
	local, err := format.ReadInt32(r)
	if err != nil {
		return row.DeletionTime{}, err
	}
	marked, err := format.ReadInt64(r)
	if err != nil {
		return row.DeletionTime{}, err
	}
	if local == sentinelLocalDeletionTime {
		return row.LiveDeletionTime, nil
	}
	return row.DeletionTime{LocalDeletionTime: local, MarkedForDeleteAt: marked}, nil
}

func writeDeletionTimeDelta(w io.Writer, dt row.DeletionTime, base metadata.SerializationHeader) error {
	if err := format.WriteVarint(w, int64(dt.LocalDeletionTime)-int64(base.MinLocalDeletionTime)); err != nil {
		return err
	}
	return format.WriteVarint(w, dt.MarkedForDeleteAt-base.MinTimestamp)
}

func readDeletionTimeDelta(r io.Reader, base metadata.SerializationHeader) (row.DeletionTime, error) {
	ldelta, err := format.ReadVarint(r)
	if err != nil {
		return row.DeletionTime{}, err
	}
	mdelta, err := format.ReadVarint(r)
	if err != nil {
		return row.DeletionTime{}, err
	}
	return row.DeletionTime{
		LocalDeletionTime: int32(int64(base.MinLocalDeletionTime) + ldelta),
		MarkedForDeleteAt: base.MinTimestamp + mdelta,
	}, nil
}

// writePartitionHeader writes the disk_string<u16> partition key followed
// by the (possibly sentinel) partition deletion time, spec.md §4.3.1.
func writePartitionHeader(w io.Writer, key []byte, deletion row.DeletionTime) error {
	if err := format.WriteDiskString16(w, key); err != nil {
		return err
	}
	return writeDeletionTimeRaw(w, deletion)
}

func readPartitionHeader(r io.Reader) ([]byte, row.DeletionTime, error) {
	key, err := format.ReadDiskString16(r)
	if err != nil {
		return nil, row.DeletionTime{}, err
	}
	dt, err := readDeletionTimeRaw(r)
	if err != nil {
		return nil, row.DeletionTime{}, err
	}
	return key, dt, nil
}

// codecContext bundles the schema/header information the row and cell
// codec needs; both writer and reader build one of these once per sstable.
type codecContext struct {
	schema *schema.Definition
	header metadata.SerializationHeader
}

func (c *codecContext) clusteringTypes() []schema.Type {
	types := make([]schema.Type, len(c.schema.ClusteringColumns))
	for i, col := range c.schema.ClusteringColumns {
		types[i] = col.Type
	}
	return types
}

func columnsFor(def *schema.Definition, static bool) []schema.Column {
	if static {
		return def.StaticColumns
	}
	return def.RegularColumns
}

// encodeRow writes flags, clustering prefix (for clustered/marker
// rows; omitted for the static row, whose identity is its ExtensionFlag),
// and the vint(body_size)+vint(prev_row_size)+body triplet, returning the
// body size recorded for the *next* call's prev_row_size field.
func (c *codecContext) encodeRow(w io.Writer, r row.Row, static bool, prevBodySize uint64) (uint64, error) {
	cols := columnsFor(c.schema, static)

	byColumn := groupCells(r.Cells)
	var missing []int
	for i, col := range cols {
		_, hasCells := byColumn[col.Name]
		hasComplexDel := col.Type.IsCollection() && r.ComplexDeletions[col.Name].Present
		if !hasCells && !hasComplexDel {
			missing = append(missing, i)
		}
	}

	hasComplexDeletion := false
	for _, col := range cols {
		if col.Type.IsCollection() {
			if d, ok := r.ComplexDeletions[col.Name]; ok && d.Present {
				hasComplexDeletion = true
			}
		}
	}

	var flags rowFlags
	if r.Marker.Present {
		flags |= flagHasTimestamp
	}
	if r.Marker.HasTTL() {
		flags |= flagHasTTL
	}
	if r.HasDeletion() || r.Shadowable {
		flags |= flagHasDeletion
	}
	if len(missing) == 0 {
		flags |= flagHasAllColumns
	}
	if hasComplexDeletion {
		flags |= flagHasComplexDeletion
	}
	var ext extendedFlags
	if static {
		ext |= extIsStatic
	}
	if r.Shadowable {
		ext |= extHasShadowableDeletionScylla
	}
	if ext != 0 {
		flags |= flagExtension
	}

	if _, err := w.Write([]byte{byte(flags)}); err != nil {
		return 0, errs.Wrap(errs.Io, err)
	}
	if flags&flagExtension != 0 {
		if _, err := w.Write([]byte{byte(ext)}); err != nil {
			return 0, errs.Wrap(errs.Io, err)
		}
	}
	if !static {
		if err := row.EncodeClusteringPrefix(w, r.Clustering, c.clusteringTypes()); err != nil {
			return 0, err
		}
	}

	var body bytes.Buffer
	if r.Marker.Present {
		if err := format.WriteVarint(&body, r.Marker.Timestamp-c.header.MinTimestamp); err != nil {
			return 0, err
		}
		if r.Marker.HasTTL() {
			if err := format.WriteVarint(&body, int64(r.Marker.TTLSeconds)-int64(c.header.MinTTL)); err != nil {
				return 0, err
			}
			if err := format.WriteVarint(&body, int64(r.Marker.LocalDeletionTime)-int64(c.header.MinLocalDeletionTime)); err != nil {
				return 0, err
			}
		}
	}
	if flags&flagHasDeletion != 0 {
		if err := writeDeletionTimeDelta(&body, r.Deletion, c.header); err != nil {
			return 0, err
		}
	}
	if err := writeMissingColumns(&body, len(cols), missing); err != nil {
		return 0, err
	}
	// scalar cells first, then collection cells trail (spec.md §4.3.3
	// "then trailing collection cells").
	for _, col := range cols {
		if col.Type.IsCollection() {
			continue
		}
		g, ok := byColumn[col.Name]
		if !ok || len(g.cells) == 0 {
			continue
		}
		cell := g.cells[0]
		var err error
		if cell.Kind == row.CellCounter {
			err = encodeCounterCell(&body, cell)
		} else {
			err = encodeAtomicCell(&body, cell, r.Marker, c.header)
		}
		if err != nil {
			return 0, err
		}
	}
	for _, col := range cols {
		if !col.Type.IsCollection() {
			continue
		}
		g, hasCells := byColumn[col.Name]
		cd, hasComplexDel := r.ComplexDeletions[col.Name]
		hasComplexDel = hasComplexDel && cd.Present
		if !hasCells && !hasComplexDel {
			continue
		}
		if flags&flagHasComplexDeletion != 0 {
			t := row.LiveDeletionTime
			if hasComplexDel {
				t = cd.Time
			}
			if err := writeDeletionTimeDelta(&body, t, c.header); err != nil {
				return 0, err
			}
		}
		var cells []row.Cell
		if hasCells {
			cells = g.cells
		}
		if err := format.WriteUvarint(&body, uint64(len(cells))); err != nil {
			return 0, err
		}
		for _, cell := range cells {
			if err := format.WriteVIntBytes(&body, cell.Path); err != nil {
				return 0, err
			}
			if err := encodeAtomicCell(&body, cell, row.Liveness{}, c.header); err != nil {
				return 0, err
			}
		}
	}

	if err := format.WriteUvarint(w, uint64(body.Len())); err != nil {
		return 0, err
	}
	if err := format.WriteUvarint(w, prevBodySize); err != nil {
		return 0, err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return 0, errs.Wrap(errs.Io, err)
	}
	return uint64(body.Len()), nil
}

type cellGroup struct {
	cells []row.Cell
}

func groupCells(cells []row.Cell) map[string]*cellGroup {
	out := make(map[string]*cellGroup)
	for _, cell := range cells {
		g, ok := out[cell.Column]
		if !ok {
			g = &cellGroup{}
			out[cell.Column] = g
		}
		g.cells = append(g.cells, cell)
	}
	return out
}

func encodeAtomicCell(w io.Writer, cell row.Cell, rowMarker row.Liveness, base metadata.SerializationHeader) error {
	if cell.Kind == row.CellCounter {
		return encodeCounterCell(w, cell)
	}
	var flags cellFlags
	if cell.IsTombstone {
		flags |= cellIsDeleted
	} else if cell.HasTTL() {
		flags |= cellIsExpiring
	}
	if len(cell.Value) == 0 && !cell.IsTombstone {
		flags |= cellHasEmptyValue
	}
	useRowTimestamp := rowMarker.Present && rowMarker.Timestamp == cell.Timestamp
	if useRowTimestamp {
		flags |= cellUseRowTimestamp
	}
	useRowTTL := rowMarker.HasTTL() && cell.HasTTL() &&
		rowMarker.TTLSeconds == cell.TTLSeconds && rowMarker.LocalDeletionTime == cell.LocalDeletionTime
	if useRowTTL {
		flags |= cellUseRowTTL
	}

	if _, err := w.Write([]byte{byte(flags)}); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	if !useRowTimestamp {
		if err := format.WriteVarint(w, cell.Timestamp-base.MinTimestamp); err != nil {
			return err
		}
	}
	if flags&cellIsExpiring != 0 && !useRowTTL {
		if err := format.WriteVarint(w, int64(cell.TTLSeconds)-int64(base.MinTTL)); err != nil {
			return err
		}
		if err := format.WriteVarint(w, int64(cell.LocalDeletionTime)-int64(base.MinLocalDeletionTime)); err != nil {
			return err
		}
	}
	if flags&cellIsDeleted != 0 {
		if err := format.WriteVarint(w, int64(cell.LocalDeletionTime)-int64(base.MinLocalDeletionTime)); err != nil {
			return err
		}
		return nil
	}
	if flags&cellHasEmptyValue != 0 {
		return nil
	}
	return format.WriteVIntBytes(w, cell.Value)
}

func decodeAtomicCell(r io.Reader, column string, rowMarker row.Liveness, base metadata.SerializationHeader) (row.Cell, error) {
	fb, err := format.ReadUint8(r)
	if err != nil {
		return row.Cell{}, err
	}
	flags := cellFlags(fb)
	if flags&^knownCellFlags != 0 {
		return row.Cell{}, errs.Newf(errs.Unsupported, "cell: unknown flag bits %#x", flags&^knownCellFlags)
	}
	cell := row.Cell{Column: column, Kind: row.CellAtomic}
	if flags&cellUseRowTimestamp != 0 {
		cell.Timestamp = rowMarker.Timestamp
	} else {
		d, err := format.ReadVarint(r)
		if err != nil {
			return row.Cell{}, err
		}
		cell.Timestamp = base.MinTimestamp + d
	}
	if flags&cellIsExpiring != 0 {
		if flags&cellUseRowTTL != 0 {
			cell.TTLSeconds = rowMarker.TTLSeconds
			cell.LocalDeletionTime = rowMarker.LocalDeletionTime
		} else {
			td, err := format.ReadVarint(r)
			if err != nil {
				return row.Cell{}, err
			}
			ld, err := format.ReadVarint(r)
			if err != nil {
				return row.Cell{}, err
			}
			cell.TTLSeconds = int32(int64(base.MinTTL) + td)
			cell.LocalDeletionTime = int32(int64(base.MinLocalDeletionTime) + ld)
		}
	}
	if flags&cellIsDeleted != 0 {
		ld, err := format.ReadVarint(r)
		if err != nil {
			return row.Cell{}, err
		}
		cell.IsTombstone = true
		cell.LocalDeletionTime = int32(int64(base.MinLocalDeletionTime) + ld)
		return cell, nil
	}
	if flags&cellHasEmptyValue != 0 {
		return cell, nil
	}
	v, err := format.ReadVIntBytes(r)
	if err != nil {
		return row.Cell{}, err
	}
	cell.Value = v
	return cell, nil
}

// encodeCounterCell writes a counter cell's shards, spec.md §4.3's
// vint(payload_size) + i16 shard-count + placeholder headers + shards.
func encodeCounterCell(w io.Writer, cell row.Cell) error {
	var payload bytes.Buffer
	var hdr [4]byte // i16 shard-count + i16 placeholder header, both zeroed except count
	format.PutUint16(hdr[0:2], uint16(len(cell.Shards)))
	payload.Write(hdr[:])
	for _, s := range cell.Shards {
		var sb [32]byte
		copy(sb[0:16], s.CounterID[:])
		format.PutInt64(sb[16:24], s.LogicalClock)
		format.PutInt64(sb[24:32], s.Value)
		payload.Write(sb[:])
	}
	if err := format.WriteUvarint(w, uint64(payload.Len())); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func decodeCounterCell(r io.Reader, column string) (row.Cell, error) {
	size, err := format.ReadUvarint(r)
	if err != nil {
		return row.Cell{}, err
	}
	buf := make([]byte, size)
	if err := format.ReadFull(r, buf); err != nil {
		return row.Cell{}, err
	}
	if len(buf) < 4 {
		return row.Cell{}, errs.New(errs.Truncated)
	}
	count := format.GetUint16(buf[0:2])
	pos := 4
	cell := row.Cell{Column: column, Kind: row.CellCounter}
	for i := uint16(0); i < count; i++ {
		if pos+32 > len(buf) {
			return row.Cell{}, errs.New(errs.Truncated)
		}
		var shard row.CounterShard
		copy(shard.CounterID[:], buf[pos:pos+16])
		shard.LogicalClock = int64(format.GetUint64(buf[pos+16 : pos+24]))
		shard.Value = int64(format.GetUint64(buf[pos+24 : pos+32]))
		cell.Shards = append(cell.Shards, shard)
		pos += 32
	}
	return cell, nil
}

// decodeRow reads the flags byte already consumed by the caller (the
// reader's state machine peeks at flags before dispatching to a row, a
// marker, or end-of-partition) and reconstructs the row's clustering,
// marker, deletion and cells. static is true when the caller already knows
// (from the extension flag) that this is the static row, in which case no
// clustering prefix is present on the wire.
func (c *codecContext) decodeRow(r io.Reader, flags rowFlags, ext extendedFlags, clustering row.ClusteringPrefix, static bool) (row.Row, error) {
	cols := columnsFor(c.schema, static)

	bodySize, err := format.ReadUvarint(r)
	if err != nil {
		return row.Row{}, err
	}
	_, err = format.ReadUvarint(r) // prev_row_size, unused for forward decode
	if err != nil {
		return row.Row{}, err
	}
	body := make([]byte, bodySize)
	if err := format.ReadFull(r, body); err != nil {
		return row.Row{}, err
	}
	br := bytes.NewReader(body)

	out := row.Row{Clustering: clustering, Deletion: row.LiveDeletionTime}
	if flags&flagHasTimestamp != 0 {
		d, err := format.ReadVarint(br)
		if err != nil {
			return row.Row{}, err
		}
		out.Marker = row.Liveness{Present: true, Timestamp: c.header.MinTimestamp + d}
		if flags&flagHasTTL != 0 {
			td, err := format.ReadVarint(br)
			if err != nil {
				return row.Row{}, err
			}
			ld, err := format.ReadVarint(br)
			if err != nil {
				return row.Row{}, err
			}
			out.Marker.TTLSeconds = int32(int64(c.header.MinTTL) + td)
			out.Marker.LocalDeletionTime = int32(int64(c.header.MinLocalDeletionTime) + ld)
		}
	}
	if flags&flagHasDeletion != 0 {
		dt, err := readDeletionTimeDelta(br, c.header)
		if err != nil {
			return row.Row{}, err
		}
		out.Deletion = dt
		out.Shadowable = ext&extHasShadowableDeletionScylla != 0
	}

	missing, err := readMissingColumns(br, len(cols))
	if err != nil {
		return row.Row{}, err
	}

	for i, col := range cols {
		if col.Type.IsCollection() || missing[i] {
			continue
		}
		var cell row.Cell
		if col.Type == schema.TypeCounter {
			cell, err = decodeCounterCell(br, col.Name)
		} else {
			cell, err = decodeAtomicCell(br, col.Name, out.Marker, c.header)
		}
		if err != nil {
			return row.Row{}, err
		}
		out.Cells = append(out.Cells, cell)
	}
	for i, col := range cols {
		if !col.Type.IsCollection() || missing[i] {
			continue
		}
		if flags&flagHasComplexDeletion != 0 {
			dt, err := readDeletionTimeDelta(br, c.header)
			if err != nil {
				return row.Row{}, err
			}
			if !dt.Live() {
				if out.ComplexDeletions == nil {
					out.ComplexDeletions = make(map[string]row.ComplexDeletion)
				}
				out.ComplexDeletions[col.Name] = row.ComplexDeletion{Present: true, Time: dt}
			}
		}
		count, err := format.ReadUvarint(br)
		if err != nil {
			return row.Row{}, err
		}
		for j := uint64(0); j < count; j++ {
			path, err := format.ReadVIntBytes(br)
			if err != nil {
				return row.Row{}, err
			}
			cell, err := decodeAtomicCell(br, col.Name, row.Liveness{}, c.header)
			if err != nil {
				return row.Row{}, err
			}
			cell.Kind = row.CellCollectionElement
			cell.Path = path
			out.Cells = append(out.Cells, cell)
		}
	}
	return out, nil
}
