package main

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vertti/pbgzip/internal/codec"
)

const ioBufferSize = 1 << 20

var errNotOverwritten = errors.New("not overwritten")

// openInput opens path for reading, or returns stdin for "" and "-". The
// returned cleanup may be called more than once.
func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return bufio.NewReaderSize(stdin, ioBufferSize), func() {}, nil
	}

	f, err := os.Open(path) //nolint:gosec // CLI tool needs to open user-specified files
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot open input")
	}
	var once sync.Once
	cleanup := func() { once.Do(func() { _ = f.Close() }) }
	return bufio.NewReaderSize(f, ioBufferSize), cleanup, nil
}

// outputName derives the output path from the input path: compressing adds
// the codec's extension, decompressing requires and strips it.
func outputName(path string, id codec.ID, decompress bool) (string, error) {
	ext := id.Extension()
	if !decompress {
		return path + ext, nil
	}
	if len(path) <= len(ext) || !strings.HasSuffix(path, ext) {
		return "", errors.Newf("the input file %s did not end in %s", path, ext)
	}
	return strings.TrimSuffix(path, ext), nil
}

func openStdout(stdout io.Writer) (io.Writer, func() error) {
	bw := bufio.NewWriterSize(stdout, ioBufferSize)
	return bw, bw.Flush
}

// openOutput creates path. Unless force is set, an existing file is only
// truncated after the user confirms on stdin.
func openOutput(path string, force bool, s streams) (io.Writer, func() error, error) {
	var f *os.File
	var err error
	if !force {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_EXCL, 0o666) //nolint:gosec // user-specified output
		if errors.Is(err, fs.ErrExist) {
			ok, perr := confirmOverwrite(path, s)
			if perr != nil {
				return nil, nil, perr
			}
			if !ok {
				return nil, nil, errNotOverwritten
			}
			f, err = nil, nil
		} else if err != nil {
			return nil, nil, errors.Wrap(err, "cannot create output")
		}
	}
	if f == nil {
		f, err = os.Create(path) //nolint:gosec // CLI tool needs to create user-specified files
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot create output")
		}
	}

	bw := bufio.NewWriterSize(f, ioBufferSize)
	return bw, func() error {
		ferr := bw.Flush()
		cerr := f.Close()
		return errors.CombineErrors(ferr, cerr)
	}, nil
}

func confirmOverwrite(path string, s streams) (bool, error) {
	fmt.Fprintf(s.stderr, "pbgzip: %s already exists; do you wish to overwrite (y or n)? ", path)
	answer, err := bufio.NewReader(s.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, errors.Wrap(err, "reading answer")
	}
	answer = strings.TrimSpace(answer)
	return answer != "" && (answer[0] == 'y' || answer[0] == 'Y'), nil
}
