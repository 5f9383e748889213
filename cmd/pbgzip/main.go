// pbgzip compresses and decompresses BGZF files in parallel.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/vertti/pbgzip/internal/bgzf"
	"github.com/vertti/pbgzip/internal/codec"
	"github.com/vertti/pbgzip/internal/pipeline"
)

var version = "dev"

const (
	exitSuccess = 0
	exitError   = 1
)

// logLevelEnv overrides the log level when -v is not given.
const logLevelEnv = "PBGZIP_LOG_LEVEL"

type config struct {
	toStdout      bool
	decompress    bool
	force         bool
	fast          bool
	verbose       bool
	workers       int
	queueCapacity int
	blockSize     int
	level         int
	codec         string
}

// streams are the process's standard streams, replaced in tests.
type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, s streams) int {
	root := newRootCommand(s)
	root.SetArgs(args)
	root.SetIn(s.stdin)
	root.SetOut(s.stdout)
	root.SetErr(s.stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(s.stderr, "pbgzip: %v\n", err)
		return exitError
	}
	return exitSuccess
}

func newRootCommand(s streams) *cobra.Command {
	var cfg config
	root := &cobra.Command{
		Use:   "pbgzip [flags] [file]",
		Short: "Parallel BGZF compression",
		Long: `pbgzip compresses and decompresses BGZF files using several threads.

With no file, or when file is -, pbgzip reads standard input and writes
standard output. Otherwise it writes file.gz (or file.bz2 with -t bz2),
or strips that suffix when decompressing, and removes the source file
unless -c is given.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return execute(cmd.Context(), cfg, file, s)
		},
	}

	pf := root.PersistentFlags()
	pf.IntVarP(&cfg.workers, "threads", "n", 0, "number of worker threads (default: available CPUs)")
	pf.StringVarP(&cfg.codec, "type", "t", "gz", "block codec: gz (0) or bz2 (1)")
	pf.IntVarP(&cfg.queueCapacity, "queue", "q", pipeline.DefaultQueueCapacity, "blocks buffered per worker queue")
	pf.BoolVarP(&cfg.verbose, "verbose", "v", false, "log pipeline progress to stderr")

	f := root.Flags()
	f.BoolVarP(&cfg.toStdout, "stdout", "c", false, "write on standard output, keep original files unchanged")
	f.BoolVarP(&cfg.decompress, "decompress", "d", false, "decompress")
	f.BoolVarP(&cfg.force, "force", "f", false, "overwrite files without asking")
	f.BoolVarP(&cfg.fast, "fast", "i", false, "use the fast stateless deflate backend for compression")
	f.IntVarP(&cfg.level, "level", "l", codec.DefaultLevel, "compression level 0-9, -1 for the codec default (also -0 .. -9)")
	for n := codec.MinLevel; n <= codec.MaxLevel; n++ {
		name := strconv.Itoa(n)
		flag := f.VarPF(&levelShorthand{level: &cfg.level, n: n}, "level-"+name, name, "compression level "+name)
		flag.NoOptDefVal = "true"
		flag.Hidden = true
	}
	f.IntVarP(&cfg.blockSize, "block-size", "S", -1,
		fmt.Sprintf("uncompressed block size when compressing (at most %d; -1 is auto)", bgzf.MaxBlockSize))

	root.AddCommand(newBlocksCommand(&cfg, s))
	return root
}

// levelShorthand is a boolean flag such as -6 that sets the level to n.
type levelShorthand struct {
	level *int
	n     int
}

func (l *levelShorthand) Set(v string) error {
	on, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	if on {
		*l.level = l.n
	}
	return nil
}

func (l *levelShorthand) String() string { return "false" }

func (l *levelShorthand) Type() string { return "bool" }

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if env := os.Getenv(logLevelEnv); env != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(env))); err != nil {
			level = slog.LevelInfo
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// codecID returns the codec used for the block payloads.
func (cfg config) codecID() (codec.ID, error) {
	id, err := codec.Parse(cfg.codec)
	if err != nil {
		return id, err
	}
	if cfg.fast {
		if cfg.decompress || id != codec.Gzip {
			return id, errors.New("-i only applies to gz compression")
		}
		return codec.FastDeflate, nil
	}
	return id, nil
}

func (cfg config) options(log *slog.Logger) (*pipeline.Options, error) {
	id, err := cfg.codecID()
	if err != nil {
		return nil, err
	}
	if cfg.blockSize > bgzf.MaxBlockSize {
		return nil, errors.Newf("-S (%d) was too big; must be less than or equal to %d", cfg.blockSize, bgzf.MaxBlockSize)
	}
	level := cfg.level
	switch {
	case level < codec.DefaultLevel || level > codec.MaxLevel:
		return nil, errors.Newf("invalid compression level %d; want 0-9 or -1", level)
	case level == 0:
		level = pipeline.NoCompression
	}
	return &pipeline.Options{
		Workers:       cfg.workers,
		QueueCapacity: cfg.queueCapacity,
		BlockSize:     max(cfg.blockSize, 0),
		Compress:      !cfg.decompress,
		Codec:         id,
		Level:         level,
		Logger:        log,
	}, nil
}

func execute(ctx context.Context, cfg config, file string, s streams) error {
	log := newLogger(s.stderr, cfg.verbose)
	opts, err := cfg.options(log)
	if err != nil {
		return err
	}

	useStdio := file == "" || file == "-"
	input, closeInput, err := openInput(file, s.stdin)
	if err != nil {
		return err
	}
	defer closeInput()

	var output io.Writer
	var closeOutput func() error
	if useStdio || cfg.toStdout {
		output, closeOutput = openStdout(s.stdout)
	} else {
		name, err := outputName(file, opts.Codec, cfg.decompress)
		if err != nil {
			return err
		}
		output, closeOutput, err = openOutput(name, cfg.force, s)
		if err != nil {
			return err
		}
	}

	stats, err := pipeline.Run(ctx, input, output, opts)
	if cerr := closeOutput(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "closing output")
	}
	if err != nil {
		return err
	}
	log.Debug("done", slog.String("file", file), slog.Any("stats", stats))

	if !useStdio && !cfg.toStdout {
		closeInput()
		if err := os.Remove(file); err != nil {
			return errors.Wrapf(err, "removing %s", file)
		}
	}
	return nil
}
