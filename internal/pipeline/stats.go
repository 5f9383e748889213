package pipeline

import (
	"log/slog"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Per-block codec latencies are recorded in microseconds, up to a minute.
const (
	latencyLowest  = 1
	latencyHighest = int64(time.Minute / time.Microsecond)
	latencySigFigs = 3
)

// Stats summarizes a run.
type Stats struct {
	BlocksRead    int64
	BlocksWritten int64
	BytesRead     int64
	BytesWritten  int64
	PoolHits      int64
	PoolMisses    int64
	Elapsed       time.Duration

	// Latency holds the time workers spent in the codec per block, in
	// microseconds.
	Latency *hdrhistogram.Histogram
}

// LogValue implements slog.LogValuer.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("blocks_read", s.BlocksRead),
		slog.Int64("blocks_written", s.BlocksWritten),
		slog.Int64("bytes_read", s.BytesRead),
		slog.Int64("bytes_written", s.BytesWritten),
		slog.Int64("pool_hits", s.PoolHits),
		slog.Int64("pool_misses", s.PoolMisses),
		slog.Duration("elapsed", s.Elapsed),
		slog.Int64("codec_p50_us", s.Latency.ValueAtQuantile(50)),
		slog.Int64("codec_p99_us", s.Latency.ValueAtQuantile(99)),
		slog.Int64("codec_max_us", s.Latency.Max()),
	)
}

// readerStats is written only by the reader goroutine.
type readerStats struct {
	blocks int64
	bytes  int64
}

// writerStats is written only by the writer goroutine.
type writerStats struct {
	blocks int64
	bytes  int64
}

// workerStats is written only by its worker goroutine.
type workerStats struct {
	blocks  int64
	latency *hdrhistogram.Histogram
}

func newWorkerStats() workerStats {
	return workerStats{latency: newLatencyHistogram()}
}

func newLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(latencyLowest, latencyHighest, latencySigFigs)
}

func (ws *workerStats) record(d time.Duration) {
	ws.blocks++
	us := max(d.Microseconds(), latencyLowest)
	_ = ws.latency.RecordValue(min(us, latencyHighest))
}

// stats merges the per-stage counters. It must only be called once every
// stage has returned.
func (p *pipeline) stats(elapsed time.Duration) *Stats {
	s := &Stats{
		BlocksRead:    p.readerStats.blocks,
		BlocksWritten: p.writerStats.blocks,
		BytesRead:     p.readerStats.bytes,
		BytesWritten:  p.writerStats.bytes,
		PoolHits:      p.pool.Hits(),
		PoolMisses:    p.pool.Misses(),
		Elapsed:       elapsed,
		Latency:       newLatencyHistogram(),
	}
	for i := range p.workerStats {
		s.Latency.Merge(p.workerStats[i].latency)
	}
	return s
}
