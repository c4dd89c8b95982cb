package row

// Liveness captures a row marker's timestamp and optional expiry, per
// spec.md §4.3's delta-encoded-timestamp row marker.
type Liveness struct {
	Present   bool
	Timestamp int64
	// TTLSeconds is 0 when the marker does not expire.
	TTLSeconds         int32
	LocalDeletionTime  int32 // valid only when TTLSeconds != 0
}

func (l Liveness) HasTTL() bool { return l.Present && l.TTLSeconds != 0 }

// DeletionTime is Cassandra's two-field tombstone marker: the timestamp at
// which the delete occurred, and the local (server wall-clock) time it can
// be purged after gc_grace_seconds.
type DeletionTime struct {
	MarkedForDeleteAt int64
	LocalDeletionTime int32
}

// Live reports whether d represents "no deletion" (spec.md's sentinel: a
// maximally-future local deletion time means live).
func (d DeletionTime) Live() bool {
	return d.LocalDeletionTime == 0x7FFFFFFF
}

// LiveDeletionTime is the canonical "not deleted" sentinel.
var LiveDeletionTime = DeletionTime{LocalDeletionTime: 0x7FFFFFFF}

// CellKind distinguishes the three cell encodings spec.md §4.3.3
// enumerates.
type CellKind byte

const (
	CellAtomic CellKind = iota
	CellCounter
	CellCollectionElement
)

// Cell is a single column value within a row.
type Cell struct {
	Column    string
	Kind      CellKind
	Timestamp int64
	// TTLSeconds/LocalDeletionTime mirror Liveness for expiring cells.
	TTLSeconds        int32
	LocalDeletionTime int32
	// IsTombstone marks a cell tombstone (the value is absent/ignored).
	IsTombstone bool
	Value       []byte
	// Path is non-nil for a CellCollectionElement: the element's key
	// within the collection (map key, or the UUID/timeuuid cell-path for
	// lists/sets).
	Path []byte
	// Shards is non-empty for a CellCounter: one entry per originator
	// that has contributed to this counter's value.
	Shards []CounterShard
}

func (c Cell) HasTTL() bool { return c.TTLSeconds != 0 }

// CounterShard is one originator's contribution to a counter cell's value:
// an identity (typically the writing node's UUID), a logical clock used to
// deduplicate replayed shards, and the originator's local delta.
type CounterShard struct {
	CounterID    [16]byte
	LogicalClock int64
	Value        int64
}

// ComplexDeletion is the "tombstone the whole collection before applying
// these elements" marker a collection's cell group may carry (spec.md
// §4.3.3 "complex deletion").
type ComplexDeletion struct {
	Present bool
	Time    DeletionTime
}

// RangeTombstone deletes every row whose clustering key falls within
// [Start, End] (bounds per their BoundKind), per spec.md §4.4.
type RangeTombstone struct {
	Start     ClusteringPrefix
	End       ClusteringPrefix
	Deletion  DeletionTime
}

// Row is one clustered row (or the static row, when Clustering.Static()):
// an optional liveness marker, an optional row-level tombstone (regular or
// shadowable), and the row's cells.
type Row struct {
	Clustering ClusteringPrefix
	Marker     Liveness
	// Deletion is the row tombstone. Shadowable marks it as a shadowable
	// row deletion (spec.md §4.3.2): superseded by any row marker/cell at
	// a higher timestamp written after it, used for Materialized Views.
	Deletion   DeletionTime
	Shadowable bool
	Cells      []Cell
	// ComplexDeletions holds, per collection column present in Cells, the
	// "tombstone the whole collection before applying these elements"
	// marker spec.md §4.3.3 calls a complex deletion. A column absent from
	// this map has no collection-level tombstone.
	ComplexDeletions map[string]ComplexDeletion
}

func (r Row) HasDeletion() bool { return !r.Deletion.Live() }

// IsEmpty reports whether the row carries no liveness, no deletion and no
// cells — such rows must not be serialized (spec.md §4.3 edge case).
func (r Row) IsEmpty() bool {
	if !r.Marker.Present && r.Deletion.Live() && len(r.Cells) == 0 {
		for _, d := range r.ComplexDeletions {
			if d.Present {
				return false
			}
		}
		return true
	}
	return false
}
