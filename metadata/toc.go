// Package metadata implements the non-Data, non-Index "mc" sstable
// components: TOC, Statistics, CompressionInfo, Scylla.Sharding,
// Scylla.Features, Digest and CRC (spec.md §4.2/C3). None of these have a
// teacher analogue (go-sstable's only metadata is its single-block
// footer, see row_block/footer.go); the tag-sorted-header convention
// below is adapted from that footer's table of offsets, generalized to the
// richer "mc" component set. No component here carries a magic number or
// a format version.
package metadata

import (
	"bufio"
	"io"
	"sort"
	"strings"

	"github.com/nogodb/mcsstable/internal/errs"
)

// ComponentName enumerates the sibling files/components an sstable may
// list in its TOC.
type ComponentName string

const (
	ComponentData            ComponentName = "Data.db"
	ComponentIndex           ComponentName = "Index.db"
	ComponentSummary         ComponentName = "Summary.db"
	ComponentFilter          ComponentName = "Filter.db"
	ComponentStatistics      ComponentName = "Statistics.db"
	ComponentCompressionInfo ComponentName = "CompressionInfo.db"
	ComponentDigest          ComponentName = "Digest.crc32"
	ComponentCRC             ComponentName = "CRC.db"
	ComponentScyllaSharding  ComponentName = "Scylla.db"
)

// TOC is the plain-text list of component names that together make up one
// sstable, written last during a seal (spec.md §4.6/C7) so its presence
// signals a complete, crash-safe sstable.
type TOC struct {
	Components []ComponentName
}

// WriteTo writes one component name per line, sorted, so two TOCs listing
// the same set always produce byte-identical output (useful for the
// Digest's own integrity story and for tests).
func (t *TOC) WriteTo(w io.Writer) (int64, error) {
	names := make([]string, len(t.Components))
	for i, c := range t.Components {
		names[i] = string(c)
	}
	sort.Strings(names)
	var total int64
	bw := bufio.NewWriter(w)
	for _, n := range names {
		nn, err := bw.WriteString(n + "\n")
		total += int64(nn)
		if err != nil {
			return total, errs.Wrap(errs.Io, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return total, errs.Wrap(errs.Io, err)
	}
	return total, nil
}

// ReadTOC parses a TOC file. Order in the source is not significant; the
// returned Components are sorted, matching WriteTo's canonical form.
func ReadTOC(r io.Reader) (*TOC, error) {
	scanner := bufio.NewScanner(r)
	var names []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.Io, err)
	}
	sort.Strings(names)
	t := &TOC{Components: make([]ComponentName, len(names))}
	for i, n := range names {
		t.Components[i] = ComponentName(n)
	}
	return t, nil
}

// Has reports whether the TOC lists c.
func (t *TOC) Has(c ComponentName) bool {
	for _, existing := range t.Components {
		if existing == c {
			return true
		}
	}
	return false
}
