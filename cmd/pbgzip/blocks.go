package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/vertti/pbgzip/internal/pipeline"
)

func newBlocksCommand(cfg *config, s streams) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "blocks [flags] [file]",
		Short: "List the blocks of a BGZF file",
		Long: `blocks decompresses a BGZF file and prints one line per block: its
sequence number, the worker lane that decoded it, its address and virtual
offset in the compressed file, its compressed size, and the offset and size
of its data in the uncompressed stream.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return listBlocks(cmd.Context(), *cfg, file, limit, s)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many blocks (0 lists all)")
	return cmd
}

func listBlocks(ctx context.Context, cfg config, file string, limit int, s streams) error {
	if limit < 0 {
		return errors.Newf("--limit must not be negative, got %d", limit)
	}
	cfg.decompress = true
	log := newLogger(s.stderr, cfg.verbose)
	opts, err := cfg.options(log)
	if err != nil {
		return err
	}

	input, closeInput, err := openInput(file, s.stdin)
	if err != nil {
		return err
	}
	defer closeInput()

	out := bufio.NewWriter(s.stdout)
	fmt.Fprintln(out, "seq\tlane\taddress\tvoffset\tcsize\tuoffset\tusize")
	listed := 0
	opts.OnBlock = func(bi pipeline.BlockInfo) error {
		fmt.Fprintf(out, "%d\t%d\t%d\t%s\t%d\t%d\t%d\n",
			bi.Seq, bi.Lane, bi.CompressedOffset, bi.VirtualOffset(),
			bi.CompressedLen, bi.UncompressedOffset, bi.UncompressedLen)
		listed++
		if limit > 0 && listed >= limit {
			return pipeline.ErrStop
		}
		return nil
	}

	stats, err := pipeline.Run(ctx, input, io.Discard, opts)
	if ferr := out.Flush(); err == nil && ferr != nil {
		err = errors.Wrap(ferr, "writing block list")
	}
	if err != nil {
		return err
	}
	log.Debug("listed blocks", slog.Int("blocks", listed), slog.Any("stats", stats))
	return nil
}
