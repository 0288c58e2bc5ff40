// Package lrublock is a fixed-capacity LRU cache of fixed-size byte-range
// blocks fetched from a remote object, used by s3reader to avoid re-issuing a
// ranged GetObject for bytes already read once.
//
// Cache never copies a Block's bytes out from under a caller still holding
// it: a *Block is immutable once constructed, so a Find result stays valid
// even after the Cache itself has since evicted it. Go's garbage collector
// keeps the backing array alive for as long as any caller holds the pointer,
// which is the refcounting the design asks for, for free.
package lrublock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nguyengg/s3stream/s3bridge"
)

// Block is one fetched, immutable byte range of the backing object.
type Block struct {
	// Start is the offset of Data[0] in the backing object.
	Start int64

	// Data is the bytes of this block. Never mutated after construction.
	Data []byte
}

// End returns the offset one past the last byte of the block.
func (b *Block) End() int64 {
	return b.Start + int64(len(b.Data))
}

// Source is the backing fetch the Cache reads through on a miss.
type Source interface {
	// GetBytes returns the bytes of the object in [start, endInclusive].
	GetBytes(ctx context.Context, start, endInclusive int64) ([]byte, error)

	// Length returns the total size of the backing object.
	Length(ctx context.Context) (int64, error)
}

// DefaultCapacity is the default number of blocks a Cache holds at once.
const DefaultCapacity = 10

type entry struct {
	block    *Block
	lastUsed int64
}

// Cache is a fixed-capacity, least-recently-used cache of Blocks fetched
// blockSize bytes at a time from source.
//
// Cache is safe for concurrent use. Concurrent Find calls that miss on the
// same block collapse into a single fetch via the backing s3bridge.Bridge:
// the second caller observes the first insertion rather than issuing a
// redundant fetch.
type Cache struct {
	source    Source
	blockSize int64
	capacity  int
	bridge    *s3bridge.Bridge
	id        uint64

	mu     sync.Mutex
	blocks []*entry
}

// nextCacheID allocates the instance discriminator used to scope
// Bridge.Do keys when multiple Caches share one Bridge.
var nextCacheID atomic.Uint64

// New returns a Cache reading blockSize-sized blocks from source, holding at
// most capacity of them at once.
//
// capacity <= 0 defaults to DefaultCapacity. Misses are deduplicated through
// s3bridge.Default() unless overridden with WithBridge.
func New(source Source, blockSize int64, capacity int, optFns ...func(*Cache)) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	c := &Cache{
		source:    source,
		blockSize: blockSize,
		capacity:  capacity,
		bridge:    s3bridge.Default(),
		id:        nextCacheID.Add(1),
	}
	for _, fn := range optFns {
		fn(c)
	}

	return c
}

// WithBridge overrides the s3bridge.Bridge used to collapse concurrent
// misses on the same block, instead of the process-wide default.
func WithBridge(bridge *s3bridge.Bridge) func(*Cache) {
	return func(c *Cache) {
		c.bridge = bridge
	}
}

// Find returns the Block containing offset, fetching and caching it first if
// necessary.
func (c *Cache) Find(ctx context.Context, offset int64) (*Block, error) {
	if b := c.lookupLocked(offset); b != nil {
		return b, nil
	}

	start := (offset / c.blockSize) * c.blockSize

	// the Bridge may be shared by many Caches (s3bridge.Default() is process-wide), so the
	// dedup key must be scoped to this Cache instance, not just the block's start offset.
	key := strconv.FormatUint(c.id, 36) + ":" + strconv.FormatInt(start, 10)

	v, err := c.bridge.Do(key, func() (any, error) {
		// another goroutine may have inserted this exact block while we were
		// waiting to join the singleflight call.
		if b := c.lookupLocked(start); b != nil {
			return b, nil
		}

		endInclusive := start + c.blockSize - 1
		if length, lerr := c.source.Length(ctx); lerr == nil && endInclusive > length-1 {
			endInclusive = length - 1
		}

		data, gerr := c.source.GetBytes(ctx, start, endInclusive)
		if gerr != nil {
			return nil, fmt.Errorf("fetch block at offset %d error: %w", start, gerr)
		}

		block := &Block{Start: start, Data: data}
		c.insert(block)
		return block, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Block), nil
}

// lookupLocked scans the cache for the block containing offset, bumping its
// lastUsed timestamp on a hit.
func (c *Cache) lookupLocked(offset int64) *Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.blocks {
		if offset >= e.block.Start && offset < e.block.End() {
			e.lastUsed = time.Now().UnixNano()
			return e.block
		}
	}

	return nil
}

// insert adds block to the cache, evicting the least-recently-used entry
// first if the cache is already at capacity.
func (c *Cache) insert(block *Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.blocks {
		if e.block.Start == block.Start {
			e.lastUsed = time.Now().UnixNano()
			return
		}
	}

	if len(c.blocks) >= c.capacity {
		lru := 0
		for i, e := range c.blocks {
			if e.lastUsed < c.blocks[lru].lastUsed {
				lru = i
			}
		}
		c.blocks = append(c.blocks[:lru], c.blocks[lru+1:]...)
	}

	c.blocks = append(c.blocks, &entry{block: block, lastUsed: time.Now().UnixNano()})
}

// Len returns the number of blocks currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// BlockSize returns the configured block size.
func (c *Cache) BlockSize() int64 {
	return c.blockSize
}
