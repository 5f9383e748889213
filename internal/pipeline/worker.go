package pipeline

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vertti/pbgzip/internal/bgzf"
	"github.com/vertti/pbgzip/internal/block"
)

// work runs the codec for one lane. Worker i is the only consumer of input
// queue i and the only adder of output queue i.
func (p *pipeline) work(lane int) error {
	in, out := p.in[lane], p.out[lane]
	defer out.RemoveAdder()

	stats := &p.workerStats[lane]
	scratch := make([]byte, 0, bgzf.MaxBlockSize)
	for {
		b, err := receive(in)
		if err != nil {
			return err
		}
		if b == nil {
			break
		}

		if p.opts.beforeTransform != nil {
			p.opts.beforeTransform(lane, b.Seq)
		}

		start := time.Now()
		res, err := p.transform(lane, scratch[:0], b)
		if err != nil {
			err = errors.Wrapf(err, "block %d at offset %d", b.Seq, b.Address)
			b.Release()
			return err
		}
		stats.record(time.Since(start))
		scratch = b.Swap(res)

		ok, err := send(out, b)
		if err != nil {
			b.Release()
			return err
		}
		if !ok {
			// The writer is done; tell the reader nothing more is wanted.
			in.Close()
			p.log.Debug("worker stopped early", slog.Int("lane", lane), slog.Uint64("seq", b.Seq))
			b.Release()
			return nil
		}
	}

	p.log.Debug("worker finished", slog.Int("lane", lane), slog.Int64("blocks", stats.blocks))
	return nil
}

// transform compresses or decompresses b into dst and records the
// uncompressed length on b.
func (p *pipeline) transform(lane int, dst []byte, b *block.Block) ([]byte, error) {
	if p.opts.Compress {
		b.RawLen = b.Len()
		return bgzf.Encode(dst, p.compressors[lane], b.Bytes())
	}
	res, err := bgzf.Decode(dst, p.decompressors[lane], b.Bytes())
	if err != nil {
		return dst, err
	}
	b.RawLen = len(res)
	return res, nil
}
