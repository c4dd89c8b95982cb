// Package pagecache is the shared index-page cache spec.md §5 describes:
// "A shared index-page cache maps (file, page-offset) → page, with LRU
// eviction." Adapted from the teacher's go-block-cache (a sharded,
// Fibonacci-hashed, lock-free hash map with a doubly-linked LRU list per
// shard) but deliberately simplified: this cache's key space is a plain
// (fileID, pageOffset) pair rather than an open-ended (fileNum, key)
// pair, and there is no need for the teacher's lock-free resize machinery
// at this scale, so each shard is a plain mutex-guarded map plus the
// teacher's dummy-sentinel doubly-linked LRU list (lru.go), not its
// atomic-refcounted kv nodes.
package pagecache

import (
	"sync"
)

// Key addresses one page: a file identifier (a storage object, e.g. one
// sstable generation's Data.db) and the page's byte offset within it.
type Key struct {
	FileID     uint64
	PageOffset int64
}

type node struct {
	key        Key
	value      []byte
	prev, next *node
}

type shard struct {
	mu       sync.Mutex
	capacity int64
	inUse    int64
	index    map[Key]*node
	// recent is a dummy sentinel; recent.next is the most recently used.
	recent *node
}

func newShard(capacity int64) *shard {
	dummy := &node{}
	dummy.next = dummy
	dummy.prev = dummy
	return &shard{capacity: capacity, index: make(map[Key]*node), recent: dummy}
}

func (l *node) unlink() {
	l.prev.next = l.next
	l.next.prev = l.prev
}

func (s *shard) insertFront(n *node) {
	first := s.recent.next
	n.prev = s.recent
	n.next = first
	s.recent.next = n
	first.prev = n
}

func (s *shard) get(k Key) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[k]
	if !ok {
		return nil, false
	}
	n.unlink()
	s.insertFront(n)
	return n.value, true
}

func (s *shard) set(k Key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.index[k]; ok {
		s.inUse += int64(len(value) - len(n.value))
		n.value = value
		n.unlink()
		s.insertFront(n)
		s.evict()
		return
	}
	n := &node{key: k, value: value}
	s.index[k] = n
	s.insertFront(n)
	s.inUse += int64(len(value))
	s.evict()
}

func (s *shard) delete(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[k]
	if !ok {
		return
	}
	n.unlink()
	delete(s.index, k)
	s.inUse -= int64(len(n.value))
}

// evict drops least-recently-used pages until inUse <= capacity. Caller
// must hold s.mu.
func (s *shard) evict() {
	for s.inUse > s.capacity && s.recent.prev != s.recent {
		victim := s.recent.prev
		victim.unlink()
		delete(s.index, victim.key)
		s.inUse -= int64(len(victim.value))
	}
}

const shardCount = 16

// Cache is the shared (file, page-offset) → page cache, sharded by file ID
// the way the teacher shards by key hash, to spread lock contention across
// concurrently-reading shards (spec.md §5's per-shard cooperative
// scheduling model).
type Cache struct {
	shards [shardCount]*shard
}

// New returns a Cache with the given total capacity in bytes, split evenly
// across shards.
func New(capacityBytes int64) *Cache {
	c := &Cache{}
	perShard := capacityBytes / shardCount
	if perShard < 1 {
		perShard = 1
	}
	for i := range c.shards {
		c.shards[i] = newShard(perShard)
	}
	return c
}

func (c *Cache) shardFor(k Key) *shard {
	return c.shards[fibonacciHash(k.FileID)%shardCount]
}

// fibonacciHash spreads file IDs across shards the way the teacher's
// hashMap routes keys to shards (shard.go), using the 64-bit golden-ratio
// multiplicative constant instead of re-deriving a hash function here.
func fibonacciHash(x uint64) uint64 {
	const golden64 = 0x9E3779B97F4A7C15
	return (x * golden64) >> 32
}

// Get returns the cached page for k, if present.
func (c *Cache) Get(k Key) ([]byte, bool) {
	return c.shardFor(k).get(k)
}

// Set stores value as the page for k, evicting older pages in the same
// shard if needed to stay within capacity.
func (c *Cache) Set(k Key, value []byte) {
	c.shardFor(k).set(k, value)
}

// Delete drops k from the cache, e.g. when the underlying file is removed.
func (c *Cache) Delete(k Key) {
	c.shardFor(k).delete(k)
}
