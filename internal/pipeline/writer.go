package pipeline

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/vertti/pbgzip/internal/bgzf"
	"github.com/vertti/pbgzip/internal/block"
)

type flusher interface {
	Flush() error
}

// write drains the output queues in lane order and writes each block to w.
func (p *pipeline) write(w io.Writer) error {
	lanes := len(p.out)
	exhausted := make([]bool, lanes)
	live := lanes

	var next uint64
	var offset int64
	for lane := 0; live > 0; lane = (lane + 1) % lanes {
		if exhausted[lane] {
			continue
		}
		b, err := receive(p.out[lane])
		if err != nil {
			return err
		}
		if b == nil {
			exhausted[lane] = true
			live--
			continue
		}
		if b.Seq != next {
			seq := b.Seq
			b.Release()
			return errors.AssertionFailedf("pipeline: lane %d delivered block %d, expected %d", lane, seq, next)
		}
		next++

		info := p.blockInfo(b, offset)
		n := b.Len()
		if err := writeFull(w, b.Bytes()); err != nil {
			b.Release()
			return errors.Wrapf(err, "writing block %d", info.Seq)
		}
		b.Release()
		offset += int64(n)
		p.writerStats.blocks++
		p.writerStats.bytes += int64(n)

		if p.opts.OnBlock != nil {
			if err := p.opts.OnBlock(info); err != nil {
				if !errors.Is(err, ErrStop) {
					return errors.Wrapf(err, "block %d", info.Seq)
				}
				p.log.Debug("writer stopping early", slog.Uint64("seq", info.Seq))
				for _, q := range p.out {
					q.Close()
				}
				break
			}
		}
	}

	if p.opts.Compress {
		if err := writeFull(w, bgzf.EOFMarker[:]); err != nil {
			return errors.Wrap(err, "writing EOF marker")
		}
		p.writerStats.bytes += int64(len(bgzf.EOFMarker))
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, "flushing output")
		}
	}

	p.log.Debug("writer finished",
		slog.Int64("blocks", p.writerStats.blocks),
		slog.Int64("bytes", p.writerStats.bytes))
	return nil
}

// blockInfo describes b, which is about to be written at offset in the
// output stream.
func (p *pipeline) blockInfo(b *block.Block, offset int64) BlockInfo {
	info := BlockInfo{Seq: b.Seq, Lane: b.Lane}
	if p.opts.Compress {
		info.CompressedOffset, info.CompressedLen = offset, b.Len()
		info.UncompressedOffset, info.UncompressedLen = b.Address, b.RawLen
	} else {
		info.CompressedOffset, info.CompressedLen = b.Address, b.SrcLen
		info.UncompressedOffset, info.UncompressedLen = offset, b.Len()
	}
	return info
}

// writeFull retries short writes until p is written. A write that makes no
// progress is io.ErrShortWrite.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
