// Package bufpool is a size-classed []byte pool, adapted from the
// teacher's lib/go-bytesbufferpool (predictable_size variant): callers
// that know the size they need up front (a block's uncompressed payload,
// a compression scratch buffer) get a reused slice of the right capacity
// class instead of allocating fresh every time.
package bufpool

import (
	"math/bits"
	"sync"
)

const maximumPoolCnt = 24

var pools [maximumPoolCnt]sync.Pool

// Get returns a zero-length slice with capacity at least dataLen, reused
// from the pool when one of the right size class is available.
func Get(dataLen int) []byte {
	id, poolCap := classFor(dataLen)
	if b, ok := pools[id].Get().([]byte); ok {
		return b
	}
	return make([]byte, 0, poolCap)
}

// Put returns buf to the pool sized by its capacity, not its length.
func Put(buf []byte) {
	id, poolCap := classFor(cap(buf))
	if cap(buf) < poolCap {
		return
	}
	pools[id].Put(buf[:0])
}

func classFor(size int) (id, poolCap int) {
	size--
	if size < 0 {
		size = 0
	}
	size >>= 8
	id = bits.Len(uint(size))
	if id > maximumPoolCnt-1 {
		id = maximumPoolCnt - 1
	}
	return id, 1 << (id + 8)
}
