package bgzf

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"slices"

	"github.com/cockroachdb/errors"
)

// Compressor produces a block payload from uncompressed bytes, appending to
// dst.
type Compressor interface {
	Compress(dst, src []byte) ([]byte, error)
}

// Decompressor recovers uncompressed bytes from a block payload, appending to
// dst.
type Decompressor interface {
	Decompress(dst, src []byte, limit int) ([]byte, error)
}

// ReadBlock reads one framed block from r into dst, reusing its storage. It
// returns io.EOF if r is exhausted before any byte of a new block. A partial
// or malformed block is an ErrCorrupt error.
func ReadBlock(r io.Reader, dst []byte) ([]byte, error) {
	dst = slices.Grow(dst[:0], HeaderLen)[:HeaderLen]
	n, err := io.ReadFull(r, dst)
	switch {
	case err == nil:
	case n == 0 && errors.Is(err, io.EOF):
		return dst[:0], io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return dst[:0], corruptionErrorf("bgzf: truncated block header (%d of %d bytes)", n, HeaderLen)
	default:
		return dst[:0], errors.Wrap(err, "reading block header")
	}

	if err := CheckHeader(dst); err != nil {
		return dst[:0], err
	}
	blockLen := BlockLen(dst)
	if blockLen < MinBlockLen {
		return dst[:0], corruptionErrorf("bgzf: block length %d shorter than header and trailer", blockLen)
	}

	dst = slices.Grow(dst, blockLen-HeaderLen)[:blockLen]
	if n, err := io.ReadFull(r, dst[HeaderLen:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return dst[:0], corruptionErrorf("bgzf: truncated block (%d of %d bytes)", HeaderLen+n, blockLen)
		}
		return dst[:0], errors.Wrap(err, "reading block")
	}
	return dst, nil
}

// Encode compresses raw with c and appends the framed result to dst. If the
// framed block would exceed MaxBlockSize, raw is split and emitted as
// several consecutive blocks.
func Encode(dst []byte, c Compressor, raw []byte) ([]byte, error) {
	if len(raw) > MaxBlockSize {
		return dst, errors.Newf("bgzf: uncompressed block of %d bytes exceeds %d", len(raw), MaxBlockSize)
	}

	start := len(dst)
	dst = slices.Grow(dst, HeaderLen)[:start+HeaderLen]
	dst, err := c.Compress(dst, raw)
	if err != nil {
		return dst[:start], errors.Wrap(err, "compressing block")
	}
	blockLen := len(dst) - start + TrailerLen
	if blockLen > MaxBlockSize {
		if len(raw) < 2 {
			return dst[:start], errors.AssertionFailedf("bgzf: %d-byte input compressed to %d bytes", len(raw), blockLen)
		}
		half := len(raw) / 2
		dst, err = Encode(dst[:start], c, raw[:half])
		if err != nil {
			return dst[:start], err
		}
		return Encode(dst, c, raw[half:])
	}

	PutHeader(dst[start:], blockLen)
	dst = binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(raw))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(raw))) //nolint:gosec // len(raw) <= MaxBlockSize
	return dst, nil
}

// Decode verifies and decompresses every block in framed, appending the
// uncompressed bytes to dst.
func Decode(dst []byte, d Decompressor, framed []byte) ([]byte, error) {
	for len(framed) > 0 {
		if err := CheckHeader(framed); err != nil {
			return dst, err
		}
		blockLen := BlockLen(framed)
		if blockLen < MinBlockLen || blockLen > len(framed) {
			return dst, corruptionErrorf("bgzf: block length %d out of range (have %d bytes)", blockLen, len(framed))
		}
		var err error
		dst, err = decodeOne(dst, d, framed[:blockLen])
		if err != nil {
			return dst, err
		}
		framed = framed[blockLen:]
	}
	return dst, nil
}

func decodeOne(dst []byte, d Decompressor, blk []byte) ([]byte, error) {
	trailer := blk[len(blk)-TrailerLen:]
	wantCRC := binary.LittleEndian.Uint32(trailer[0:4])
	wantSize := binary.LittleEndian.Uint32(trailer[4:8])

	if wantSize > MaxBlockSize {
		return dst, corruptionErrorf("bgzf: uncompressed size %d exceeds %d", wantSize, MaxBlockSize)
	}
	if wantSize == 0 {
		// Empty members, the EOF marker among them, carry no data whatever
		// the codec, so the payload is not decoded.
		if wantCRC != 0 {
			return dst, corruptionErrorf("bgzf: checksum mismatch: got 00000000, want %08x", wantCRC)
		}
		return dst, nil
	}

	start := len(dst)
	dst = slices.Grow(dst, int(wantSize))
	dst, err := d.Decompress(dst, blk[HeaderLen:len(blk)-TrailerLen], int(wantSize))
	if err != nil {
		return dst[:start], errors.Mark(errors.Wrap(err, "decompressing block"), ErrCorrupt)
	}

	got := dst[start:]
	if uint32(len(got)) != wantSize { //nolint:gosec // bounded by block size
		return dst[:start], corruptionErrorf("bgzf: uncompressed size %d, trailer says %d", len(got), wantSize)
	}
	if crc := crc32.ChecksumIEEE(got); crc != wantCRC {
		return dst[:start], corruptionErrorf("bgzf: checksum mismatch: got %08x, want %08x", crc, wantCRC)
	}
	return dst, nil
}
