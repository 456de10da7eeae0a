package checksum

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the range size ChecksumParallel uses when none is given.
const DefaultChunkSize = 1 << 20

// ChecksumParallel returns Checksum(p), hashing chunkSize ranges of p on up to
// workers goroutines and joining the partial checksums with Combine.
// chunkSize <= 0 selects DefaultChunkSize and workers <= 0 selects
// GOMAXPROCS. It returns ctx.Err() if ctx is cancelled before every range has
// been hashed.
func ChecksumParallel(ctx context.Context, p []byte, chunkSize, workers int) (uint32, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if len(p) <= chunkSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return Checksum(p), nil
	}

	parts := make([]State, (len(p)+chunkSize-1)/chunkSize)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range parts {
		start := i * chunkSize
		end := min(start+chunkSize, len(p))
		part := &parts[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			part.Append(p[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := parts[0]
	for i := 1; i < len(parts); i++ {
		total.Combine(&parts[i])
	}
	return total.Checksum(), nil
}
