package codec

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/dsnet/compress/bzip2"
)

type bzip2Compressor struct {
	level int
}

// bzip2 has no stored mode, so level 0 compresses at BestSpeed.
func newBzip2Compressor(level int) bzip2Compressor {
	switch {
	case level == DefaultLevel:
		level = bzip2.DefaultCompression
	case level < bzip2.BestSpeed:
		level = bzip2.BestSpeed
	}
	return bzip2Compressor{level: level}
}

func (c bzip2Compressor) Compress(dst, src []byte) ([]byte, error) {
	out := appendWriter{b: dst}
	zw, err := bzip2.NewWriter(&out, &bzip2.WriterConfig{Level: c.level})
	if err != nil {
		return dst, errors.Wrap(err, "creating bzip2 writer")
	}
	if _, err := zw.Write(src); err != nil {
		return dst, errors.Wrap(err, "bzip2")
	}
	if err := zw.Close(); err != nil {
		return dst, errors.Wrap(err, "bzip2")
	}
	return out.b, nil
}

func (bzip2Compressor) Close() error { return nil }

type bzip2Decompressor struct{}

func (bzip2Decompressor) Decompress(dst, src []byte, limit int) ([]byte, error) {
	zr, err := bzip2.NewReader(bytes.NewReader(src), nil)
	if err != nil {
		return dst, errors.Wrap(err, "creating bzip2 reader")
	}
	defer zr.Close() //nolint:errcheck // read side close

	out, err := readAppend(dst, zr, limit)
	if err != nil {
		return dst, errors.Wrap(err, "bunzip2")
	}
	return out, nil
}

func (bzip2Decompressor) Close() error { return nil }
