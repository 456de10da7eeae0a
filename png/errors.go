package png

import "github.com/cockroachdb/errors"

var (
	ErrBadSignature      = errors.New("png: bad signature")
	ErrTruncated         = errors.New("png: truncated stream")
	ErrChunkTooLarge     = errors.New("png: chunk too large")
	ErrInvalidChunkType  = errors.New("png: invalid chunk type")
	ErrMissingEnd        = errors.New("png: missing IEND chunk")
	ErrMissingHeader     = errors.New("png: missing IHDR chunk")
	ErrInvalidDimensions = errors.New("png: invalid image dimensions")
	ErrUnsupportedPixels = errors.New("png: unsupported pixel format")
)
