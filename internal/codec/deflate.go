package codec

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
)

// deflater reuses one flate.Writer across blocks.
type deflater struct {
	fw  *flate.Writer
	out appendWriter
}

func newDeflater(level int) (*deflater, error) {
	d := &deflater{}
	fw, err := flate.NewWriter(&d.out, level)
	if err != nil {
		return nil, errors.Wrap(err, "creating deflate writer")
	}
	d.fw = fw
	return d, nil
}

func (d *deflater) Compress(dst, src []byte) ([]byte, error) {
	d.out.b = dst
	d.fw.Reset(&d.out)
	if _, err := d.fw.Write(src); err != nil {
		return dst, errors.Wrap(err, "deflate")
	}
	if err := d.fw.Close(); err != nil {
		return dst, errors.Wrap(err, "deflate")
	}
	out := d.out.b
	d.out.b = nil
	return out, nil
}

func (d *deflater) Close() error { return nil }

// statelessDeflater compresses without keeping encoder state between calls.
// It trades ratio for speed and ignores the compression level.
type statelessDeflater struct{}

func (statelessDeflater) Compress(dst, src []byte) ([]byte, error) {
	out := appendWriter{b: dst}
	if err := flate.StatelessDeflate(&out, src, true, nil); err != nil {
		return dst, errors.Wrap(err, "stateless deflate")
	}
	return out.b, nil
}

func (statelessDeflater) Close() error { return nil }

// inflater reuses one flate reader across blocks.
type inflater struct {
	src bytes.Reader
	fr  io.ReadCloser
}

func (d *inflater) Decompress(dst, src []byte, limit int) ([]byte, error) {
	d.src.Reset(src)
	if d.fr == nil {
		d.fr = flate.NewReader(&d.src)
	} else if err := d.fr.(flate.Resetter).Reset(&d.src, nil); err != nil { //nolint:errcheck // flate readers implement Resetter
		return dst, errors.Wrap(err, "inflate")
	}
	out, err := readAppend(dst, d.fr, limit)
	if err != nil {
		return dst, errors.Wrap(err, "inflate")
	}
	return out, nil
}

func (d *inflater) Close() error {
	if d.fr == nil {
		return nil
	}
	return d.fr.Close()
}
