package block

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Pool recycles block buffers. It never holds more than its capacity; when
// empty, Acquire allocates. A nil *Pool is valid and always allocates.
type Pool struct {
	free      *xsync.MPMCQueue[*Block]
	capacity  int
	blockSize int

	size   *xsync.Counter
	hits   *xsync.Counter
	misses *xsync.Counter
}

// NewPool returns a pool holding up to capacity blocks whose buffers have
// blockSize bytes of capacity.
func NewPool(capacity, blockSize int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		free:      xsync.NewMPMCQueue[*Block](capacity),
		capacity:  capacity,
		blockSize: blockSize,
		size:      xsync.NewCounter(),
		hits:      xsync.NewCounter(),
		misses:    xsync.NewCounter(),
	}
}

// Acquire returns an empty block owned by the caller. It never blocks.
func (p *Pool) Acquire() *Block {
	if p == nil {
		return New(0)
	}
	if b, ok := p.free.TryDequeue(); ok {
		p.size.Dec()
		p.hits.Inc()
		b.pool = p
		return b
	}
	p.misses.Inc()
	b := New(p.blockSize)
	b.pool = p
	return b
}

func (p *Pool) put(b *Block) {
	b.Reset()
	if p.free.TryEnqueue(b) {
		p.size.Inc()
	}
	// Pool full: b is dropped.
}

// Len returns the number of blocks currently held by the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return int(p.size.Value())
}

// Cap returns the maximum number of blocks the pool holds.
func (p *Pool) Cap() int {
	if p == nil {
		return 0
	}
	return p.capacity
}

// Hits returns how many Acquire calls were served from the pool.
func (p *Pool) Hits() int64 {
	if p == nil {
		return 0
	}
	return p.hits.Value()
}

// Misses returns how many Acquire calls had to allocate.
func (p *Pool) Misses() int64 {
	if p == nil {
		return 0
	}
	return p.misses.Value()
}
