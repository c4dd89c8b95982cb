package block

import "github.com/nogodb/mcsstable/metadata"

// Kind names an "mc" sstable component file, adapted from the teacher's
// block/block_kind.go (which only distinguished Data/Index/Filter) and
// widened to the full component set spec.md §4.2 describes.
type Kind byte

const (
	KindUnknown Kind = iota
	KindData
	KindIndex // the promoted (per-partition block) index, C5
	KindSummary
	KindFilter
	KindStatistics
	KindCompressionInfo
	KindTOC
	KindDigest
	KindCRC
	KindScyllaSharding
	KindScyllaFeatures
)

var kindNames = map[Kind]string{
	KindData:            "Data",
	KindIndex:           "Index",
	KindSummary:         "Summary",
	KindFilter:          "Filter",
	KindStatistics:      "Statistics",
	KindCompressionInfo: "CompressionInfo",
	KindTOC:             "TOC",
	KindDigest:          "Digest",
	KindCRC:             "CRC",
	KindScyllaSharding:  "Scylla.Sharding",
	KindScyllaFeatures:  "Scylla.Features",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

var kindByComponent = map[metadata.ComponentName]Kind{
	metadata.ComponentData:            KindData,
	metadata.ComponentIndex:           KindIndex,
	metadata.ComponentSummary:         KindSummary,
	metadata.ComponentFilter:          KindFilter,
	metadata.ComponentStatistics:      KindStatistics,
	metadata.ComponentCompressionInfo: KindCompressionInfo,
	metadata.ComponentDigest:          KindDigest,
	metadata.ComponentCRC:             KindCRC,
	metadata.ComponentScyllaSharding:  KindScyllaSharding,
}

// KindForComponent maps a component filename suffix to its Kind, for
// diagnostics that want the short human name rather than the on-disk
// suffix (e.g. "Data" instead of "Data.db").
func KindForComponent(c metadata.ComponentName) Kind {
	return kindByComponent[c]
}
