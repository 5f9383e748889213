package bgzf

import (
	"bytes"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertti/pbgzip/internal/codec"
)

func newCodecs(t *testing.T, id codec.ID) (codec.Compressor, codec.Decompressor) {
	t.Helper()
	c, err := codec.NewCompressor(id, codec.DefaultLevel)
	require.NoError(t, err)
	d, err := codec.NewDecompressor(id)
	require.NoError(t, err)
	return c, d
}

func randomBytes(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Uint32())
	}
	return b
}

func TestHeader_PutCheck(t *testing.T) {
	t.Parallel()

	h := make([]byte, HeaderLen)
	PutHeader(h, 1234)
	require.NoError(t, CheckHeader(h))
	assert.Equal(t, 1234, BlockLen(h))
	assert.Equal(t, []byte{0x1f, 0x8b, 0x08, 0x04}, h[:4])
	assert.Equal(t, []byte{'B', 'C'}, h[12:14])
}

func TestHeader_Invalid(t *testing.T) {
	t.Parallel()

	valid := make([]byte, HeaderLen)
	PutHeader(valid, 100)

	tests := []struct {
		name   string
		mutate func(h []byte) []byte
	}{
		{"truncated", func(h []byte) []byte { return h[:10] }},
		{"bad magic", func(h []byte) []byte { h[0] = 'X'; return h }},
		{"not deflate", func(h []byte) []byte { h[2] = 7; return h }},
		{"no extra flag", func(h []byte) []byte { h[3] = 0; return h }},
		{"wrong subfield", func(h []byte) []byte { h[12] = 'Z'; return h }},
		{"wrong xlen", func(h []byte) []byte { h[10] = 8; return h }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := tt.mutate(append([]byte(nil), valid...))
			err := CheckHeader(h)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorrupt))
		})
	}
}

func TestEOFMarker(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckHeader(EOFMarker[:]))
	assert.Equal(t, len(EOFMarker), BlockLen(EOFMarker[:]))

	_, d := newCodecs(t, codec.Gzip)
	got, err := Decode(nil, d, EOFMarker[:])
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEOFMarker_AnyCodec(t *testing.T) {
	t.Parallel()

	for _, id := range []codec.ID{codec.Gzip, codec.Bzip2, codec.FastDeflate} {
		_, d := newCodecs(t, id)
		got, err := Decode([]byte("kept"), d, EOFMarker[:])
		require.NoError(t, err, id.String())
		assert.Equal(t, "kept", string(got), id.String())
	}
}

func TestDecode_EmptyMemberBadChecksum(t *testing.T) {
	t.Parallel()

	marker := append([]byte(nil), EOFMarker[:]...)
	marker[len(marker)-TrailerLen] = 0x01
	_, d := newCodecs(t, codec.Bzip2)
	_, err := Decode(nil, d, marker)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestDecode_ExpansionIsBounded(t *testing.T) {
	t.Parallel()

	// A 1 MiB run of zeroes deflates to about a kilobyte. Framed with a
	// trailer claiming 100 bytes, it must fail on size.
	c, d := newCodecs(t, codec.Gzip)
	payload, err := c.Compress(nil, make([]byte, 1<<20))
	require.NoError(t, err)
	blk := make([]byte, HeaderLen, HeaderLen+len(payload)+TrailerLen)
	blk = append(blk, payload...)
	blk = append(blk, 0, 0, 0, 0, 100, 0, 0, 0)
	PutHeader(blk, len(blk))

	got, err := Decode(nil, d, blk)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Contains(t, err.Error(), "uncompressed size 101")
	assert.Empty(t, got)
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	payloads := map[string][]byte{
		"empty":      {},
		"text":       bytes.Repeat([]byte("the quick brown fox "), 1000),
		"random":     randomBytes(DefaultBlockSize, 7),
		"max random": randomBytes(MaxBlockSize, 8),
	}
	for _, id := range []codec.ID{codec.Gzip, codec.Bzip2, codec.FastDeflate} {
		for name, raw := range payloads {
			t.Run(id.String()+"/"+name, func(t *testing.T) {
				t.Parallel()

				c, d := newCodecs(t, id)
				framed, err := Encode(nil, c, raw)
				require.NoError(t, err)

				// Every member respects the size ceiling.
				for rest := framed; len(rest) > 0; {
					require.NoError(t, CheckHeader(rest))
					n := BlockLen(rest)
					require.LessOrEqual(t, n, MaxBlockSize)
					rest = rest[n:]
				}

				got, err := Decode(nil, d, framed)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(raw, got))
			})
		}
	}
}

func TestEncodeSplitsIncompressibleMaxBlock(t *testing.T) {
	t.Parallel()

	c, _ := newCodecs(t, codec.Gzip)
	framed, err := Encode(nil, c, randomBytes(MaxBlockSize, 3))
	require.NoError(t, err)

	members := 0
	for rest := framed; len(rest) > 0; rest = rest[BlockLen(rest):] {
		members++
	}
	assert.Greater(t, members, 1, "64 KiB of random data does not fit one block")
}

func TestEncodeRejectsOversizedInput(t *testing.T) {
	t.Parallel()

	c, _ := newCodecs(t, codec.Gzip)
	_, err := Encode(nil, c, make([]byte, MaxBlockSize+1))
	require.Error(t, err)
}

func TestEncodeIsValidGzip(t *testing.T) {
	t.Parallel()

	c, _ := newCodecs(t, codec.Gzip)
	first := bytes.Repeat([]byte("block one "), 500)
	second := randomBytes(1000, 11)

	var stream []byte
	var err error
	stream, err = Encode(stream, c, first)
	require.NoError(t, err)
	stream, err = Encode(stream, c, second)
	require.NoError(t, err)
	stream = append(stream, EOFMarker[:]...)

	zr, err := gzip.NewReader(bytes.NewReader(stream))
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), first...), second...), got)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	c, d := newCodecs(t, codec.Gzip)
	framed, err := Encode(nil, c, []byte("checksummed payload"))
	require.NoError(t, err)

	framed[len(framed)-TrailerLen] ^= 0xff
	_, err = Decode(nil, d, framed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Contains(t, err.Error(), "checksum")
}

func TestDecode_SizeMismatch(t *testing.T) {
	t.Parallel()

	c, d := newCodecs(t, codec.Gzip)
	framed, err := Encode(nil, c, []byte("sized payload"))
	require.NoError(t, err)

	framed[len(framed)-1] = 0x7f
	_, err = Decode(nil, d, framed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestDecode_CorruptPayload(t *testing.T) {
	t.Parallel()

	c, d := newCodecs(t, codec.Gzip)
	framed, err := Encode(nil, c, bytes.Repeat([]byte("abc"), 100))
	require.NoError(t, err)

	framed[HeaderLen] = 0xff // reserved deflate block type
	_, err = Decode(nil, d, framed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestDecode_LengthBeyondInput(t *testing.T) {
	t.Parallel()

	c, d := newCodecs(t, codec.Gzip)
	framed, err := Encode(nil, c, []byte("short"))
	require.NoError(t, err)

	_, err = Decode(nil, d, framed[:len(framed)-3])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestReadBlock(t *testing.T) {
	t.Parallel()

	c, _ := newCodecs(t, codec.Gzip)
	one, err := Encode(nil, c, []byte("first"))
	require.NoError(t, err)
	two, err := Encode(nil, c, []byte("second block"))
	require.NoError(t, err)

	stream := bytes.NewReader(append(append(append([]byte(nil), one...), two...), EOFMarker[:]...))
	buf := make([]byte, 0, MaxBlockSize)

	got, err := ReadBlock(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, one, got)

	got, err = ReadBlock(stream, got)
	require.NoError(t, err)
	assert.Equal(t, two, got)

	got, err = ReadBlock(stream, got)
	require.NoError(t, err)
	assert.Equal(t, EOFMarker[:], got)

	_, err = ReadBlock(stream, got)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadBlock_Errors(t *testing.T) {
	t.Parallel()

	c, _ := newCodecs(t, codec.Gzip)
	framed, err := Encode(nil, c, []byte("payload for truncation"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		input []byte
	}{
		{"truncated header", framed[:HeaderLen-5]},
		{"truncated payload", framed[:len(framed)-2]},
		{"bad magic", append([]byte("XX"), framed[2:]...)},
		{"length too small", func() []byte {
			b := append([]byte(nil), framed...)
			PutHeader(b, 10)
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadBlock(bytes.NewReader(tt.input), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
		})
	}
}

func TestVirtualOffset(t *testing.T) {
	t.Parallel()

	v := MakeVirtualOffset(123456, 789)
	assert.Equal(t, int64(123456), v.BlockAddress())
	assert.Equal(t, 789, v.Within())
	assert.Equal(t, VirtualOffset(123456<<16|789), v)
	assert.Equal(t, "123456:789", v.String())
	assert.Less(t, MakeVirtualOffset(10, 65535), MakeVirtualOffset(11, 0))
}
