package pipeline

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/vertti/pbgzip/internal/bgzf"
	"github.com/vertti/pbgzip/internal/block"
)

// read splits r into blocks and deals them over the input queues. It is the
// only adder of every input queue.
func (p *pipeline) read(r io.Reader) error {
	defer func() {
		for _, q := range p.in {
			q.RemoveAdder()
		}
	}()

	lanes := uint64(len(p.in))
	var offset int64
	for seq := uint64(0); ; seq++ {
		b := p.pool.Acquire()
		n, err := p.fill(b, r)
		if errors.Is(err, io.EOF) {
			b.Release()
			break
		}
		if err != nil {
			b.Release()
			return errors.Wrapf(err, "reading block %d at offset %d", seq, offset)
		}

		b.Seq = seq
		b.Address = offset
		b.SrcLen = n
		b.Lane = int(seq % lanes) //nolint:gosec // lanes fits in an int
		offset += int64(n)

		ok, err := send(p.in[b.Lane], b)
		if err != nil {
			b.Release()
			return err
		}
		if !ok {
			// The worker has gone away; the writer asked to stop.
			p.log.Debug("reader stopped early", slog.Uint64("seq", seq), slog.Int("lane", b.Lane))
			b.Release()
			break
		}
		p.readerStats.blocks++
		p.readerStats.bytes += int64(n)
	}

	p.log.Debug("reader finished",
		slog.Int64("blocks", p.readerStats.blocks),
		slog.Int64("bytes", p.readerStats.bytes))
	return nil
}

// fill loads the next unit of input into b: raw bytes when compressing, one
// framed block when decompressing.
func (p *pipeline) fill(b *block.Block, r io.Reader) (int, error) {
	if p.opts.Compress {
		return b.Fill(r, p.opts.BlockSize)
	}
	framed, err := bgzf.ReadBlock(r, b.Bytes())
	b.Swap(framed)
	if err != nil {
		return 0, err
	}
	return len(framed), nil
}
