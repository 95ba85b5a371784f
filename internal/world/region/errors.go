package region

import "errors"

// Chunk payload (ChunkCodec) errors.
var (
	ErrTruncated             = errors.New("region: truncated chunk payload")
	ErrBadMagic              = errors.New("region: bad chunk magic")
	ErrUnsupportedVersion    = errors.New("region: unsupported chunk format version")
	ErrDecompressionMismatch = errors.New("region: decompressed size mismatch")
	ErrPaletteBounds         = errors.New("region: palette code out of bounds")
	ErrWordCountMismatch     = errors.New("region: packed word count mismatch")
)

// RegionFile errors.
var (
	ErrRegionFull  = errors.New("region: chunk payload exceeds 255 sectors")
	ErrSlotInvalid = errors.New("region: slot coordinates out of range")
)
