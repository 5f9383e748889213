// Package bgzf implements the BGZF block framing: every block is a complete
// gzip member whose extra field records the total on-disk block size, so a
// stream can be split at block boundaries without decompressing it.
package bgzf

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Block layout sizes.
const (
	HeaderLen  = 18 // fixed gzip header including the BC extra subfield
	TrailerLen = 8  // CRC32 + ISIZE

	// MinBlockLen is the size of a block with an empty payload.
	MinBlockLen = HeaderLen + TrailerLen

	// MaxBlockSize is the largest total on-disk size of a block. It is also
	// the largest uncompressed chunk a block may carry.
	MaxBlockSize = 1 << 16

	// DefaultBlockSize is the uncompressed chunk size used when none is
	// configured, leaving room for deflate overhead on incompressible data.
	DefaultBlockSize = 0xff00
)

// Header field values.
const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	cmDeflate   = 8
	flagFExtra  = 4
	osUnknown   = 0xff
	extraLen    = 6
	subfieldID1 = 'B'
	subfieldID2 = 'C'
	subfieldLen = 2
)

// ErrCorrupt marks framing errors: bad magic, truncated blocks and checksum
// mismatches. A corrupt block invalidates the framing of everything after it.
var ErrCorrupt = errors.New("bgzf: corrupt block")

func corruptionErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorrupt)
}

// EOFMarker is the empty block that terminates a BGZF stream.
var EOFMarker = [28]byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00,
	0x00, 0xff, 0x06, 0x00, 0x42, 0x43, 0x02, 0x00,
	0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// PutHeader writes a block header for a block of blockLen total bytes into
// h, which must be at least HeaderLen long.
func PutHeader(h []byte, blockLen int) {
	_ = h[HeaderLen-1]
	h[0] = gzipID1
	h[1] = gzipID2
	h[2] = cmDeflate
	h[3] = flagFExtra
	binary.LittleEndian.PutUint32(h[4:8], 0) // MTIME
	h[8] = 0                                 // XFL
	h[9] = osUnknown
	binary.LittleEndian.PutUint16(h[10:12], extraLen)
	h[12] = subfieldID1
	h[13] = subfieldID2
	binary.LittleEndian.PutUint16(h[14:16], subfieldLen)
	binary.LittleEndian.PutUint16(h[16:18], uint16(blockLen-1)) //nolint:gosec // blockLen <= MaxBlockSize
}

// CheckHeader validates the magic and extra field of a block header. The
// length field is only meaningful once CheckHeader has passed.
func CheckHeader(h []byte) error {
	if len(h) < HeaderLen {
		return corruptionErrorf("bgzf: truncated block header (%d bytes)", len(h))
	}
	if h[0] != gzipID1 || h[1] != gzipID2 {
		return corruptionErrorf("bgzf: invalid magic bytes %#x %#x", h[0], h[1])
	}
	if h[2] != cmDeflate || h[3]&flagFExtra == 0 {
		return corruptionErrorf("bgzf: not a BGZF block (method %d, flags %#x)", h[2], h[3])
	}
	if binary.LittleEndian.Uint16(h[10:12]) != extraLen ||
		h[12] != subfieldID1 || h[13] != subfieldID2 ||
		binary.LittleEndian.Uint16(h[14:16]) != subfieldLen {
		return corruptionErrorf("bgzf: missing BC extra subfield")
	}
	return nil
}

// BlockLen returns the total on-disk size recorded in a checked header.
func BlockLen(h []byte) int {
	return int(binary.LittleEndian.Uint16(h[16:18])) + 1
}

// VirtualOffset addresses a byte of uncompressed data: the upper 48 bits
// hold the on-disk address of its block, the lower 16 the offset within the
// uncompressed block.
type VirtualOffset uint64

// MakeVirtualOffset combines a block address and an offset within the block.
func MakeVirtualOffset(blockAddress int64, within int) VirtualOffset {
	return VirtualOffset(uint64(blockAddress)<<16 | uint64(within&0xffff)) //nolint:gosec // addresses are non-negative
}

// BlockAddress returns the on-disk address of the block.
func (v VirtualOffset) BlockAddress() int64 { return int64(v >> 16) } //nolint:gosec // 48-bit value

// Within returns the offset within the uncompressed block.
func (v VirtualOffset) Within() int { return int(v & 0xffff) }

func (v VirtualOffset) String() string {
	return fmt.Sprintf("%d:%d", v.BlockAddress(), v.Within())
}
