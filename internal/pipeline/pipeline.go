// Package pipeline runs parallel BGZF compression and decompression.
//
// A run has one reader, N workers and one writer. The reader splits the
// input into blocks and deals them round-robin over N lanes; worker i owns
// lane i's input and output queues; the writer visits the output queues in
// the same fixed order. Each lane receives blocks i, i+N, i+2N, ... and
// keeps them in FIFO order, so the writer reproduces the input order
// without any central sequencing structure.
//
// Shutdown flows front to back: when the reader runs out of input it removes
// itself as an adder from every input queue, each worker then drains its
// lane and removes itself from its output queue, and the writer finishes
// once every lane reports EOF. An early stop requested by the writer flows
// back to front by closing queues. Any fatal error stops every queue.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vertti/pbgzip/internal/bgzf"
	"github.com/vertti/pbgzip/internal/block"
	"github.com/vertti/pbgzip/internal/codec"
	"github.com/vertti/pbgzip/internal/queue"
)

// errStopped is returned by stages that were woken by a stopped queue. The
// error that caused the stop is the one Run reports.
var errStopped = errors.New("pipeline: stopped")

type blockQueue = *queue.Queue[*block.Block]

// pipeline is the state shared by the stages of one run.
type pipeline struct {
	opts Options
	log  *slog.Logger
	pool *block.Pool

	in  []blockQueue
	out []blockQueue

	compressors   []codec.Compressor
	decompressors []codec.Decompressor

	readerStats readerStats
	writerStats writerStats
	workerStats []workerStats
}

// Compress reads r and writes a BGZF stream to w.
func Compress(r io.Reader, w io.Writer, opts *Options) error {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.Compress = true
	_, err := Run(context.Background(), r, w, &o)
	return err
}

// Decompress reads a BGZF stream from r and writes the uncompressed data to
// w.
func Decompress(r io.Reader, w io.Writer, opts *Options) error {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.Compress = false
	_, err := Run(context.Background(), r, w, &o)
	return err
}

// Run executes one pipeline over r and w. Configuration errors are returned
// before any goroutine starts. The first fatal error of any stage ends the
// run; cancelling ctx ends it with ctx.Err().
func Run(ctx context.Context, r io.Reader, w io.Writer, opts *Options) (*Stats, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	p, err := newPipeline(o)
	if err != nil {
		return nil, err
	}
	defer p.closeCodecs()
	return p.run(ctx, r, w)
}

// run drives the stages of p to completion.
func (p *pipeline) run(ctx context.Context, r io.Reader, w io.Writer) (*Stats, error) {
	o := p.opts
	start := time.Now()
	p.log.Debug("pipeline starting",
		slog.Bool("compress", o.Compress),
		slog.String("codec", o.Codec.String()),
		slog.Int("workers", o.Workers),
		slog.Int("queue_capacity", o.QueueCapacity),
		slog.Int("block_size", o.BlockSize))

	g, gctx := errgroup.WithContext(ctx)

	finished := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-gctx.Done():
			p.stop()
		case <-finished:
		}
	}()

	g.Go(func() error { return p.read(r) })
	for i := range o.Workers {
		g.Go(func() error { return p.work(i) })
	}
	g.Go(func() error { return p.write(w) })

	err := g.Wait()
	close(finished)
	<-watcherDone

	stats := p.stats(time.Since(start))
	if err != nil {
		if errors.Is(err, errStopped) && ctx.Err() != nil {
			err = ctx.Err()
		}
		p.log.Debug("pipeline failed", slog.Any("error", err))
		return stats, err
	}
	p.log.Debug("pipeline finished", slog.Any("stats", stats))
	return stats, nil
}

func newPipeline(o Options) (*pipeline, error) {
	p := &pipeline{
		opts:        o,
		log:         o.Logger,
		pool:        block.NewPool(o.PoolSize, bgzf.MaxBlockSize),
		in:          make([]blockQueue, o.Workers),
		out:         make([]blockQueue, o.Workers),
		workerStats: make([]workerStats, o.Workers),
	}
	for i := range o.Workers {
		// The reader is the only adder of every input queue; worker i is the
		// only adder of output queue i.
		p.in[i] = queue.New[*block.Block](o.QueueCapacity, 1)
		p.out[i] = queue.New[*block.Block](o.QueueCapacity, 1)
		p.workerStats[i] = newWorkerStats()
	}

	for range o.Workers {
		if o.Compress {
			c, err := codec.NewCompressor(o.Codec, o.Level)
			if err != nil {
				p.closeCodecs()
				return nil, errors.Mark(err, ErrInvalidOptions)
			}
			p.compressors = append(p.compressors, c)
		} else {
			d, err := codec.NewDecompressor(o.Codec)
			if err != nil {
				p.closeCodecs()
				return nil, errors.Mark(err, ErrInvalidOptions)
			}
			p.decompressors = append(p.decompressors, d)
		}
	}
	return p, nil
}

// stop wakes and terminates every stage.
func (p *pipeline) stop() {
	for i := range p.in {
		p.in[i].Stop()
		p.out[i].Stop()
	}
}

func (p *pipeline) closeCodecs() {
	for _, c := range p.compressors {
		_ = c.Close()
	}
	for _, d := range p.decompressors {
		_ = d.Close()
	}
}

// send hands b to q, blocking while q is full. It returns false if the
// consumer side has declared EOF, in which case the caller still owns b.
func send(q blockQueue, b *block.Block) (bool, error) {
	for {
		if q.Add(b, true) == queue.Done {
			return true, nil
		}
		switch st := q.State(); st {
		case queue.EOF:
			return false, nil
		case queue.Flush:
			q.WaitUntilNotFlush()
		case queue.OK:
			// A flush ended between the add and the state check.
		case queue.Stop:
			return false, errStopped
		default:
			return false, errors.AssertionFailedf("pipeline: blocking add failed with queue in state %s", st)
		}
	}
}

// receive takes the next block from q, blocking while q is empty. It
// returns nil once q is drained and at EOF.
func receive(q blockQueue) (*block.Block, error) {
	b, res := q.Get(true)
	if res == queue.Done {
		return b, nil
	}
	switch st := q.State(); st {
	case queue.EOF:
		return nil, nil
	case queue.Stop:
		return nil, errStopped
	default:
		return nil, errors.AssertionFailedf("pipeline: blocking get failed with queue in state %s", st)
	}
}
