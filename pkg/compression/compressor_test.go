package compression

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() []byte {
	// Representative state snapshot payload: JSON with repeated keys.
	var sb strings.Builder
	sb.WriteString(`{"v":1,"grids":[`)
	for i := 0; i < 64; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"pagination":{"page":3,"pageSize":25},"sort":{"field":"name","direction":"asc"},"filters":{"status":"active"}}`)
	}
	sb.WriteString(`]}`)
	return []byte(sb.String())
}

func TestRoundTrip(t *testing.T) {
	algorithms := []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2}
	data := sampleSnapshot()

	for _, alg := range algorithms {
		t.Run(string(alg), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
			require.NoError(t, err)
			assert.Equal(t, alg, c.Algorithm())

			compressed, err := c.Compress(data)
			require.NoError(t, err)

			decompressed, err := c.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, data, decompressed)

			if alg != None {
				assert.Less(t, len(compressed), len(data), "repetitive payload should shrink")
			}
		})
	}
}

func TestRoundTripStream(t *testing.T) {
	algorithms := []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2}
	data := sampleSnapshot()

	for _, alg := range algorithms {
		t.Run(string(alg), func(t *testing.T) {
			c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
			require.NoError(t, err)

			var compressed bytes.Buffer
			require.NoError(t, c.CompressStream(&compressed, bytes.NewReader(data)))

			var decompressed bytes.Buffer
			require.NoError(t, c.DecompressStream(&decompressed, &compressed))
			assert.Equal(t, data, decompressed.Bytes())
		})
	}
}

func TestLevels(t *testing.T) {
	data := sampleSnapshot()

	for _, level := range []Level{Fastest, Default, Better, Best} {
		c, err := NewCompressor(&Config{Algorithm: Zstd, Level: level})
		require.NoError(t, err)
		assert.Equal(t, level, c.Level())

		compressed, err := c.Compress(data)
		require.NoError(t, err)

		decompressed, err := c.Decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, data, decompressed)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, Gzip, cfg.Algorithm)
	assert.Equal(t, Default, cfg.Level)

	c, err := NewCompressor(nil)
	require.NoError(t, err)
	assert.Equal(t, Gzip, c.Algorithm())
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := NewCompressor(&Config{Algorithm: "brotli"})
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, alg)

	alg, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, alg)

	_, err = ParseAlgorithm("xz")
	assert.Error(t, err)
}

func TestEmptyPayload(t *testing.T) {
	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
		require.NoError(t, err)

		compressed, err := c.Compress([]byte{})
		require.NoError(t, err)

		decompressed, err := c.Decompress(compressed)
		require.NoError(t, err)
		assert.Empty(t, decompressed)
	}
}

func BenchmarkCompress(b *testing.B) {
	data := sampleSnapshot()

	for _, alg := range []Algorithm{Gzip, Snappy, LZ4, Zstd, S2} {
		c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
		if err != nil {
			b.Fatal(err)
		}

		b.Run(string(alg), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.Compress(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
