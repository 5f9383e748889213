// Package codec provides the per-block byte codecs used inside BGZF framing.
//
// A Compressor or Decompressor is not safe for concurrent use; each pipeline
// worker owns its own instance.
package codec

import (
	"bytes"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// ID selects a codec.
type ID uint8

// Supported codecs.
const (
	Gzip        ID = iota // raw deflate, klauspost/compress/flate
	Bzip2                 // bzip2 streams
	FastDeflate           // stateless deflate; decodes as Gzip
)

// Compression levels accepted by NewCompressor.
const (
	DefaultLevel = -1
	MinLevel     = 0
	MaxLevel     = 9
)

// ErrUnknown is returned for codec names or IDs that are not supported.
var ErrUnknown = errors.New("codec: unknown codec")

func (id ID) String() string {
	switch id {
	case Gzip:
		return "gz"
	case Bzip2:
		return "bz2"
	case FastDeflate:
		return "fast"
	default:
		return "unknown"
	}
}

// Extension returns the file suffix for streams written with this codec.
func (id ID) Extension() string {
	if id == Bzip2 {
		return ".bz2"
	}
	return ".gz"
}

// Parse maps a codec name, or a numeric compress type (0 gz, 1 bz2), to an
// ID.
func Parse(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "gz", "gzip", "deflate":
		return Gzip, nil
	case "1", "bz2", "bzip2":
		return Bzip2, nil
	case "fast", "igzip", "stateless":
		return FastDeflate, nil
	default:
		return 0, errors.Wrapf(ErrUnknown, "%q", s)
	}
}

// Compressor compresses one block at a time.
type Compressor interface {
	// Compress appends the compressed form of src to dst.
	Compress(dst, src []byte) ([]byte, error)
	Close() error
}

// Decompressor decompresses one block at a time.
type Decompressor interface {
	// Decompress appends the decompressed form of src to dst. At most
	// limit+1 bytes are produced, so an oversized payload shows up as output
	// longer than limit without being inflated in full.
	Decompress(dst, src []byte, limit int) ([]byte, error)
	Close() error
}

// ValidateLevel reports whether level is usable with the codec.
func ValidateLevel(id ID, level int) error {
	if level == DefaultLevel || (level >= MinLevel && level <= MaxLevel) {
		return nil
	}
	return errors.Newf("codec: %s: invalid compression level %d (want %d..%d or %d)",
		id, level, MinLevel, MaxLevel, DefaultLevel)
}

// NewCompressor returns a compressor for id at the given level.
func NewCompressor(id ID, level int) (Compressor, error) {
	if err := ValidateLevel(id, level); err != nil {
		return nil, err
	}
	switch id {
	case Gzip:
		return newDeflater(level)
	case Bzip2:
		return newBzip2Compressor(level), nil
	case FastDeflate:
		return statelessDeflater{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknown, "id %d", id)
	}
}

// NewDecompressor returns a decompressor for id.
func NewDecompressor(id ID) (Decompressor, error) {
	switch id {
	case Gzip, FastDeflate:
		return &inflater{}, nil
	case Bzip2:
		return bzip2Decompressor{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknown, "id %d", id)
	}
}

// appendWriter is an io.Writer that appends to a byte slice.
type appendWriter struct {
	b []byte
}

func (w *appendWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// readAppend reads r to exhaustion or until more than limit bytes arrived,
// appending to dst.
func readAppend(dst []byte, r io.Reader, limit int) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	if _, err := buf.ReadFrom(io.LimitReader(r, int64(limit)+1)); err != nil {
		return dst, err
	}
	return buf.Bytes(), nil
}
