// Package filter implements the Filter metadata component (spec.md §4.2): a
// blocked Bloom filter keyed on decorated partition keys, adapted from the
// teacher's filter/bloom.go and go-blocked-bloom-filter/bloom.go. Unlike the
// teacher, which hashes with a hand-rolled LevelDB-style function, this
// filter hashes with real murmur3 (github.com/twmb/murmur3) to match the
// "mc" format's documented hash choice, while keeping the teacher's
// cache-line-blocked bit layout and double-hashing probe scheme.
package filter

import (
	"encoding/binary"
	"sync"

	"github.com/twmb/murmur3"
)

const (
	defaultBitsPerKey = 10
	hashBlockLen      = 0x4000
	cacheLineBytes    = 64
	cacheLineBits     = 8 * cacheLineBytes
	murmurSeed        = 0xbc9f1d34
)

type hashBlock [hashBlockLen]uint32

var hashBlockPool = sync.Pool{
	New: func() interface{} { return &hashBlock{} },
}

func hash(key []byte) uint32 {
	h := murmur3.SeedNew32(murmurSeed)
	_, _ = h.Write(key)
	return h.Sum32()
}

// Writer accumulates keys and builds the encoded filter bitset.
type Writer struct {
	bitsPerKey int
	blocks     []*hashBlock
	numKeys    int
	lastHash   uint32
	hasLast    bool
}

// NewWriter returns a filter builder using the default bits-per-key budget.
func NewWriter() *Writer {
	return &Writer{bitsPerKey: defaultBitsPerKey}
}

// Add registers a key. Keys must be added in the filter's natural iteration
// order; consecutive duplicates are coalesced, matching the teacher's
// dedup-by-last-hash behaviour.
func (w *Writer) Add(key []byte) {
	h := hash(key)
	if w.hasLast && w.lastHash == h {
		return
	}
	pos := w.numKeys % hashBlockLen
	if pos == 0 {
		w.blocks = append(w.blocks, hashBlockPool.Get().(*hashBlock))
	}
	w.blocks[len(w.blocks)-1][pos] = h
	w.lastHash = h
	w.hasLast = true
	w.numKeys++
}

// Build appends the encoded filter to *dst and resets the writer for reuse.
func (w *Writer) Build(dst *[]byte) {
	nLines := (w.numKeys*w.bitsPerKey + cacheLineBits - 1) / cacheLineBits
	if nLines%2 == 0 {
		nLines++
	}
	if nLines == 0 {
		nLines = 1
	}
	nBytes := nLines * cacheLineBytes

	wantSize := nBytes + 5 + len(*dst)
	var free []byte
	if wantSize <= cap(*dst) {
		base := len(*dst)
		*dst = (*dst)[:wantSize]
		free = (*dst)[base:]
		clear(free)
	} else {
		neededSize := 1024
		for neededSize < wantSize {
			neededSize += neededSize / 4
		}
		tmp := *dst
		*dst = make([]byte, wantSize, neededSize)
		copy(*dst, tmp)
		free = (*dst)[len(tmp):]
	}

	nProbes := probesFor(w.bitsPerKey)
	for idx, block := range w.blocks {
		n := hashBlockLen
		if idx == len(w.blocks)-1 && w.numKeys%hashBlockLen != 0 {
			n = w.numKeys % hashBlockLen
		}
		for _, h := range block[:n] {
			delta := h>>17 | h<<15
			startPos := (h % uint32(nLines)) * cacheLineBits
			for p := byte(0); p < nProbes; p++ {
				bitPos := startPos + (h % cacheLineBits)
				free[bitPos/8] |= 1 << (bitPos % 8)
				h += delta
			}
		}
	}
	free[nBytes] = nProbes
	binary.LittleEndian.PutUint32(free[nBytes+1:], uint32(nLines))

	for i, block := range w.blocks {
		hashBlockPool.Put(block)
		w.blocks[i] = nil
	}
	w.blocks = w.blocks[:0]
	w.numKeys = 0
	w.hasLast = false
}

// MayContain reports whether the encoded filter may contain key. False
// positives are possible; false negatives are not.
func MayContain(encoded, key []byte) bool {
	if len(encoded) <= 5 {
		return false
	}
	n := len(encoded) - 5
	nProbes := encoded[n]
	nLines := binary.LittleEndian.Uint32(encoded[n+1:])
	if nLines == 0 {
		return false
	}
	bitsPerLine := 8 * (uint32(n) / nLines)
	if bitsPerLine == 0 {
		return false
	}

	h := hash(key)
	delta := h>>17 | h<<15
	base := (h % nLines) * bitsPerLine

	for p := byte(0); p < nProbes; p++ {
		bitPos := base + (h % bitsPerLine)
		if encoded[bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

func probesFor(bitsPerKey int) byte {
	n := byte(float64(bitsPerKey) * 0.69)
	if n < 1 {
		n = 1
	}
	if n > 30 {
		n = 30
	}
	return n
}
