package checksum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumParallel(t *testing.T) {
	data := randomBytes(t, 99, 1<<16+13)
	want := Checksum(data)

	tests := []struct {
		name      string
		chunkSize int
		workers   int
	}{
		{"defaults", 0, 0},
		{"one worker", 1000, 1},
		{"small chunks", 97, 4},
		{"block aligned", 64, 8},
		{"chunk larger than input", len(data) + 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChecksumParallel(context.Background(), data, tt.chunkSize, tt.workers)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestChecksumParallelEmpty(t *testing.T) {
	got, err := ChecksumParallel(context.Background(), nil, 16, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got)
}

func TestChecksumParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ChecksumParallel(ctx, randomBytes(t, 1, 4096), 64, 2)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = ChecksumParallel(ctx, []byte("short"), 64, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkChecksumParallel(b *testing.B) {
	data := randomBytes(b, 3, 8<<20)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ChecksumParallel(context.Background(), data, 1<<20, 0); err != nil {
			b.Fatal(err)
		}
	}
}
