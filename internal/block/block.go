// Package block provides the unit of work moved through the pipeline and a
// bounded pool that recycles block buffers.
package block

import (
	"io"

	"github.com/cockroachdb/errors"
)

// Block is one independently processed chunk of a stream. A Block is owned
// by exactly one pipeline stage at a time; handing it to a queue hands over
// ownership.
type Block struct {
	buf []byte

	Seq     uint64 // position in the source stream, starting at 0
	Address int64  // byte offset in the source stream where the block began
	SrcLen  int    // bytes the block occupied in the source stream
	Lane    int    // worker lane the block was routed to
	RawLen  int    // uncompressed length, set once the block is processed

	pool *Pool
}

// New allocates a block with the given buffer capacity and no pool. Release
// on such a block simply drops it.
func New(capacity int) *Block {
	return &Block{buf: make([]byte, 0, capacity)}
}

// Bytes returns the block's current contents.
func (b *Block) Bytes() []byte { return b.buf }

// Len returns the logical length of the block.
func (b *Block) Len() int { return len(b.buf) }

// Cap returns the capacity of the block's buffer.
func (b *Block) Cap() int { return cap(b.buf) }

// Swap replaces the block's buffer with p and returns the previous buffer.
// Workers use it to trade a transformed scratch buffer for the input one.
func (b *Block) Swap(p []byte) []byte {
	old := b.buf
	b.buf = p
	return old
}

// Fill reads up to n bytes from r into the block, growing its buffer if
// needed. It keeps reading until n bytes arrive or r is exhausted. A clean
// end of input with nothing read returns io.EOF; a short fill is the final
// block of the stream and returns no error.
func (b *Block) Fill(r io.Reader, n int) (int, error) {
	if cap(b.buf) < n {
		b.buf = make([]byte, 0, n)
	}
	got, err := io.ReadFull(r, b.buf[:n])
	b.buf = b.buf[:got]
	switch {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF):
		return got, nil
	case errors.Is(err, io.EOF):
		return 0, io.EOF
	default:
		return got, err
	}
}

// Reset clears the block's contents and metadata, keeping its buffer.
func (b *Block) Reset() {
	b.buf = b.buf[:0]
	b.Seq = 0
	b.Address = 0
	b.SrcLen = 0
	b.Lane = 0
	b.RawLen = 0
}

// Release hands the block back to the pool it came from. The block must not
// be used afterwards. Releasing a block twice, or one without a pool, is a
// no-op.
func (b *Block) Release() {
	if b == nil || b.pool == nil {
		return
	}
	p := b.pool
	b.pool = nil
	p.put(b)
}
