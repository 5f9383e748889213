package pipeline

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/vertti/pbgzip/internal/bgzf"
	"github.com/vertti/pbgzip/internal/codec"
	"github.com/vertti/pbgzip/internal/cpus"
	"github.com/vertti/pbgzip/internal/queue"
)

// DefaultQueueCapacity is the per-lane queue bound used when none is set.
const DefaultQueueCapacity = queue.DefaultCapacity

// maxDefaultPoolSize caps the number of idle block buffers kept by default.
const maxDefaultPoolSize = 1024

// NoCompression requests level 0 (stored deflate blocks). A zero Level
// selects the codec default instead.
const NoCompression = -2

// ErrInvalidOptions marks configuration errors. They are reported before any
// goroutine starts.
var ErrInvalidOptions = errors.New("pipeline: invalid options")

// ErrStop can be returned by an OnBlock callback to end the run early. The
// run then shuts down cleanly and Run returns no error.
var ErrStop = errors.New("pipeline: stop")

// Options configures a pipeline run.
type Options struct {
	Workers       int      // Worker goroutines, one lane each (default: available CPUs)
	QueueCapacity int      // Bound of every lane queue (default: 1000)
	BlockSize     int      // Uncompressed bytes per block when compressing (default: bgzf.DefaultBlockSize)
	PoolSize      int      // Idle block buffers kept for reuse (default: derived from Workers and QueueCapacity)
	Compress      bool     // Compress the input; otherwise decompress it
	Codec         codec.ID // Block payload codec
	Level         int      // Compression level 1-9, or NoCompression (default: codec default)

	// Logger receives stage lifecycle records at debug level. Nil discards.
	Logger *slog.Logger

	// OnBlock, if set, is called by the writer after each block has been
	// written. Returning ErrStop ends the run early; any other error fails it.
	OnBlock func(BlockInfo) error

	// beforeTransform is a test hook run by a worker before it processes a
	// block.
	beforeTransform func(lane int, seq uint64)
}

// BlockInfo describes one block as it was written.
type BlockInfo struct {
	Seq  uint64 // position in the stream
	Lane int    // worker lane that processed the block

	CompressedOffset   int64 // offset of the block in the compressed stream
	CompressedLen      int   // framed size, possibly spanning several BGZF members
	UncompressedOffset int64 // offset of the block's data in the uncompressed stream
	UncompressedLen    int
}

// VirtualOffset returns the virtual offset of the first uncompressed byte of
// the block.
func (bi BlockInfo) VirtualOffset() bgzf.VirtualOffset {
	return bgzf.MakeVirtualOffset(bi.CompressedOffset, 0)
}

func invalidOptionsf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidOptions)
}

// withDefaults returns a copy of opts with defaults applied, or an error if
// the configuration cannot be run.
func (opts *Options) withDefaults() (Options, error) {
	var o Options
	if opts != nil {
		o = *opts
	}

	switch {
	case o.Workers < 0:
		return o, invalidOptionsf("workers must not be negative, got %d", o.Workers)
	case o.Workers == 0:
		o.Workers = cpus.Detect()
	}

	switch {
	case o.QueueCapacity < 0:
		return o, invalidOptionsf("queue capacity must not be negative, got %d", o.QueueCapacity)
	case o.QueueCapacity == 0:
		o.QueueCapacity = DefaultQueueCapacity
	}

	switch {
	case o.BlockSize > bgzf.MaxBlockSize:
		return o, invalidOptionsf("block size %d is too big; must be less than or equal to %d",
			o.BlockSize, bgzf.MaxBlockSize)
	case o.BlockSize <= 0:
		o.BlockSize = bgzf.DefaultBlockSize
	}

	switch {
	case o.PoolSize < 0:
		return o, invalidOptionsf("pool size must not be negative, got %d", o.PoolSize)
	case o.PoolSize == 0:
		o.PoolSize = min(2*o.Workers*o.QueueCapacity+o.Workers+2, maxDefaultPoolSize)
	}

	switch o.Level {
	case 0:
		o.Level = codec.DefaultLevel
	case NoCompression:
		o.Level = codec.MinLevel
	}
	if o.Compress {
		if err := codec.ValidateLevel(o.Codec, o.Level); err != nil {
			return o, errors.Mark(err, ErrInvalidOptions)
		}
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o, nil
}
