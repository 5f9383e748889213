package codec

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayloads() map[string][]byte {
	rng := rand.New(rand.NewPCG(1, 2))
	random := make([]byte, 32<<10)
	for i := range random {
		random[i] = byte(rng.Uint32())
	}
	return map[string][]byte{
		"empty":      {},
		"one byte":   {'x'},
		"repetitive": bytes.Repeat([]byte("ACGTACGTNNNN"), 4096),
		"random":     random,
	}
}

func TestCodecRoundtrip(t *testing.T) {
	t.Parallel()

	for _, id := range []ID{Gzip, Bzip2, FastDeflate} {
		for _, level := range []int{DefaultLevel, 1, 9} {
			for name, payload := range testPayloads() {
				t.Run(id.String()+"/"+name, func(t *testing.T) {
					t.Parallel()

					c, err := NewCompressor(id, level)
					require.NoError(t, err)
					defer c.Close() //nolint:errcheck // test cleanup

					compressed, err := c.Compress(nil, payload)
					require.NoError(t, err)

					d, err := NewDecompressor(id)
					require.NoError(t, err)
					defer d.Close() //nolint:errcheck // test cleanup

					got, err := d.Decompress(nil, compressed, len(payload))
					require.NoError(t, err)
					assert.True(t, bytes.Equal(payload, got), "roundtrip mismatch")
				})
			}
		}
	}
}

func TestCodecAppendsToDst(t *testing.T) {
	t.Parallel()

	payload := []byte("append me please, append me please")
	for _, id := range []ID{Gzip, Bzip2, FastDeflate} {
		t.Run(id.String(), func(t *testing.T) {
			t.Parallel()

			c, err := NewCompressor(id, DefaultLevel)
			require.NoError(t, err)
			prefix := []byte("HDR")
			out, err := c.Compress(append([]byte(nil), prefix...), payload)
			require.NoError(t, err)
			require.Equal(t, prefix, out[:3])

			d, err := NewDecompressor(id)
			require.NoError(t, err)
			got, err := d.Decompress([]byte("pre:"), out[3:], len(payload))
			require.NoError(t, err)
			assert.Equal(t, "pre:"+string(payload), string(got))
		})
	}
}

func TestCompressorReuse(t *testing.T) {
	t.Parallel()

	c, err := NewCompressor(Gzip, 6)
	require.NoError(t, err)
	d, err := NewDecompressor(Gzip)
	require.NoError(t, err)

	for i := range 10 {
		payload := bytes.Repeat([]byte{byte('a' + i)}, 1000*(i+1))
		compressed, err := c.Compress(nil, payload)
		require.NoError(t, err)
		got, err := d.Decompress(nil, compressed, len(payload))
		require.NoError(t, err)
		require.Equal(t, payload, got, "block %d", i)
	}
}

func TestDecompressCorrupt(t *testing.T) {
	t.Parallel()

	garbage := bytes.Repeat([]byte{0xff, 0x13, 0x37}, 100)
	for _, id := range []ID{Gzip, Bzip2} {
		t.Run(id.String(), func(t *testing.T) {
			t.Parallel()

			d, err := NewDecompressor(id)
			require.NoError(t, err)
			_, err = d.Decompress(nil, garbage, 1<<16)
			require.Error(t, err)
		})
	}
}

func TestDecompressStopsPastLimit(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("z"), 1<<20)
	for _, id := range []ID{Gzip, Bzip2} {
		t.Run(id.String(), func(t *testing.T) {
			t.Parallel()

			c, err := NewCompressor(id, DefaultLevel)
			require.NoError(t, err)
			compressed, err := c.Compress(nil, payload)
			require.NoError(t, err)

			d, err := NewDecompressor(id)
			require.NoError(t, err)
			got, err := d.Decompress(nil, compressed, 100)
			require.NoError(t, err)
			assert.Len(t, got, 101)
		})
	}
}

func TestLevelZero(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("stored "), 2000)
	for _, id := range []ID{Gzip, Bzip2} {
		c, err := NewCompressor(id, 0)
		require.NoError(t, err, id.String())
		compressed, err := c.Compress(nil, payload)
		require.NoError(t, err, id.String())
		if id == Gzip {
			assert.Greater(t, len(compressed), len(payload), "level 0 deflate stores the input")
		}

		d, err := NewDecompressor(id)
		require.NoError(t, err)
		got, err := d.Decompress(nil, compressed, len(payload))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want ID
	}{
		{"", Gzip},
		{"0", Gzip},
		{"gz", Gzip},
		{"GZIP", Gzip},
		{"1", Bzip2},
		{"bz2", Bzip2},
		{"bzip2", Bzip2},
		{"fast", FastDeflate},
		{"igzip", FastDeflate},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := Parse("lzma")
	require.ErrorIs(t, err, ErrUnknown)
}

func TestExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".gz", FastDeflate.Extension())
	assert.Equal(t, ".bz2", Bzip2.Extension())
}

func TestInvalidLevel(t *testing.T) {
	t.Parallel()

	for _, level := range []int{-2, 10, 100} {
		_, err := NewCompressor(Gzip, level)
		require.Error(t, err, "level %d", level)
	}
	_, err := NewCompressor(ID(99), DefaultLevel)
	require.ErrorIs(t, err, ErrUnknown)
	_, err = NewDecompressor(ID(99))
	require.ErrorIs(t, err, ErrUnknown)
}
