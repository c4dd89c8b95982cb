// Package schema is the schema-provider collaborator spec.md §4 assumes:
// column definitions, their types, and the per-table knobs (bloom filter
// false-positive rate, min index interval, compressor params) that the
// writer and reader consult while building or reading an sstable. It has no
// teacher analogue — go-sstable is schema-less, a flat byte-key/byte-value
// store — so this package is written from spec.md §2/§4 directly, in the
// teacher's plain-struct, low-comment style.
package schema

// Kind classifies a column's role in the partition/clustering/cell layout.
type Kind byte

const (
	PartitionKey Kind = iota
	ClusteringColumn
	Static
	Regular
)

// Column describes one column of a table.
type Column struct {
	Name string
	Type Type
	Kind Kind
	// Position is the column's index within its Kind's ordered group
	// (e.g. the second clustering column has Position 1). Used to derive
	// the missing-columns bitmap ordering in the data-file codec.
	Position int
}

// Definition is the schema-provider contract: everything the codec needs to
// know about a table's shape and storage knobs.
type Definition struct {
	Keyspace string
	Table    string

	PartitionKeyColumns    []Column
	ClusteringColumns      []Column
	StaticColumns          []Column
	RegularColumns         []Column

	IsCounter  bool
	IsCompound bool // true when there is more than one clustering column
	IsDense    bool // true when the table has no named regular columns (COMPACT STORAGE)

	MinIndexInterval   int
	MaxIndexInterval   int
	BloomFilterFPChance float64

	Compressor CompressorParams
}

// CompressorParams names the compression algorithm and chunk length
// recorded in the CompressionInfo component (spec.md §4.2).
type CompressorParams struct {
	Class      string // e.g. "LZ4Compressor", "ZstdCompressor", "" for none
	ChunkBytes int
}

// AllColumnsInOrder returns every non-key column (static then regular) in
// the fixed order the missing-columns bitmap and cell stream use.
func (d *Definition) AllColumnsInOrder() []Column {
	out := make([]Column, 0, len(d.StaticColumns)+len(d.RegularColumns))
	out = append(out, d.StaticColumns...)
	out = append(out, d.RegularColumns...)
	return out
}

// ColumnByName looks up a column across every group.
func (d *Definition) ColumnByName(name string) (Column, bool) {
	for _, groups := range [][]Column{d.PartitionKeyColumns, d.ClusteringColumns, d.StaticColumns, d.RegularColumns} {
		for _, c := range groups {
			if c.Name == name {
				return c, true
			}
		}
	}
	return Column{}, false
}

func (d *Definition) validateDerived() {
	d.IsCompound = len(d.ClusteringColumns) > 1
	d.IsDense = len(d.RegularColumns) == 0
	if d.MinIndexInterval == 0 {
		d.MinIndexInterval = 128
	}
	if d.MaxIndexInterval == 0 {
		d.MaxIndexInterval = 2048
	}
	if d.BloomFilterFPChance == 0 {
		d.BloomFilterFPChance = 0.01
	}
}

// NewDefinition builds a Definition and fills in derived fields
// (IsCompound, IsDense) and defaulted knobs, mirroring the teacher's
// pattern of a constructor that normalizes optional fields
// (see go-sstable/options/block_options.go's defaulting).
func NewDefinition(keyspace, table string, partitionKey, clustering, static, regular []Column) *Definition {
	d := &Definition{
		Keyspace:            keyspace,
		Table:               table,
		PartitionKeyColumns: partitionKey,
		ClusteringColumns:   clustering,
		StaticColumns:       static,
		RegularColumns:      regular,
	}
	d.validateDerived()
	return d
}
