package region

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

const (
	chunkMagic      uint32 = 0x564F5831 // "VOX1"
	chunkVersion    uint16 = 1
	chunkHeaderSize        = 32

	flagDirty             byte = 1 << 0
	flagPlayerModified    byte = 1 << 1
	flagFeaturesPopulated byte = 1 << 2
	flagCompressed        byte = 1 << 3

	// compressionSavingsThreshold is the "10% savings" rule from §8.3: a
	// compressed form is adopted only if it is strictly smaller than 90%
	// of the uncompressed size.
	compressionSavingsThreshold = 0.9
)

// ChunkHeader is the fixed 32-byte header that precedes every chunk
// payload. Bytes 30-31 are reserved and always written as zero.
type ChunkHeader struct {
	Magic             uint32
	Version           uint16
	CX, CZ            int32
	PaletteLen        uint16
	BitsPerBlock      uint8
	Flags             byte
	UncompressedSize  uint32
	LastModifiedMs    int64
}

func (h *ChunkHeader) compressed() bool             { return h.Flags&flagCompressed != 0 }
func (h *ChunkHeader) dirty() bool                  { return h.Flags&flagDirty != 0 }
func (h *ChunkHeader) playerModified() bool         { return h.Flags&flagPlayerModified != 0 }
func (h *ChunkHeader) featuresPopulated() bool       { return h.Flags&flagFeaturesPopulated != 0 }

func (h *ChunkHeader) marshal() []byte {
	buf := make([]byte, chunkHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint32(buf[6:10], uint32(h.CX))
	binary.BigEndian.PutUint32(buf[10:14], uint32(h.CZ))
	binary.BigEndian.PutUint16(buf[14:16], h.PaletteLen)
	buf[16] = h.BitsPerBlock
	buf[17] = h.Flags
	binary.BigEndian.PutUint32(buf[18:22], h.UncompressedSize)
	binary.BigEndian.PutUint64(buf[22:30], uint64(h.LastModifiedMs))
	// buf[30:32] reserved, left zero.
	return buf
}

func unmarshalChunkHeader(buf []byte) (ChunkHeader, error) {
	var h ChunkHeader
	if len(buf) < chunkHeaderSize {
		return h, fmt.Errorf("%w: header is %d bytes", ErrTruncated, len(buf))
	}
	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	if h.Magic != chunkMagic {
		return h, fmt.Errorf("%w: got 0x%08X", ErrBadMagic, h.Magic)
	}
	h.Version = binary.BigEndian.Uint16(buf[4:6])
	if h.Version != chunkVersion {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	h.CX = int32(binary.BigEndian.Uint32(buf[6:10]))
	h.CZ = int32(binary.BigEndian.Uint32(buf[10:14]))
	h.PaletteLen = binary.BigEndian.Uint16(buf[14:16])
	h.BitsPerBlock = buf[16]
	h.Flags = buf[17]
	h.UncompressedSize = binary.BigEndian.Uint32(buf[18:22])
	h.LastModifiedMs = int64(binary.BigEndian.Uint64(buf[22:30]))
	return h, nil
}

// Encode builds a self-describing byte blob for a chunk: header + palette
// + packed blocks, LZ4-compressed if that shrinks the payload by at least
// 10%.
func Encode(c world.Chunk) ([]byte, error) {
	palette, err := BuildFromChunk(c)
	if err != nil {
		return nil, err
	}

	words := palette.EncodeWords(c)
	uncompressed := append(palette.Serialize(), SerializeWords(words)...)

	flags := byte(0)
	if c.IsDirty() {
		flags |= flagDirty
	}
	if c.PlayerModified() {
		flags |= flagPlayerModified
	}
	if c.FeaturesPopulated() {
		flags |= flagFeaturesPopulated
	}

	payload := uncompressed
	compressed, ok := tryCompress(uncompressed)
	if ok {
		flags |= flagCompressed
		payload = compressed
	}

	header := ChunkHeader{
		Magic:            chunkMagic,
		Version:          chunkVersion,
		CX:               c.ChunkX(),
		CZ:               c.ChunkZ(),
		PaletteLen:       uint16(palette.Len()),
		BitsPerBlock:     uint8(palette.BitsPerBlock()),
		Flags:            flags,
		UncompressedSize: uint32(len(uncompressed)),
		LastModifiedMs:   c.LastModified(),
	}

	return append(header.marshal(), payload...), nil
}

// tryCompress attempts LZ4 block compression and returns the compressed
// bytes only if they are smaller than 90% of the input (the §8.3 "10%
// savings" threshold). pierrec/lz4 also reports n=0 when the input is
// judged incompressible, which this treats the same as "no savings".
func tryCompress(src []byte) ([]byte, bool) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil || n == 0 {
		return nil, false
	}
	if float64(n) >= compressionSavingsThreshold*float64(len(src)) {
		return nil, false
	}
	return dst[:n], true
}

// Decode parses a byte blob produced by Encode back into a fresh chunk.
func Decode(data []byte) (*world.MemoryChunk, error) {
	header, err := unmarshalChunkHeader(data)
	if err != nil {
		return nil, err
	}

	body := data[chunkHeaderSize:]

	var uncompressed []byte
	if header.compressed() {
		uncompressed = make([]byte, header.UncompressedSize)
		n, err := lz4.UncompressBlock(body, uncompressed)
		if err != nil || uint32(n) != header.UncompressedSize {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDecompressionMismatch, n, header.UncompressedSize)
		}
	} else {
		if uint32(len(body)) < header.UncompressedSize {
			return nil, fmt.Errorf("%w: body shorter than uncompressed_size", ErrTruncated)
		}
		uncompressed = body[:header.UncompressedSize]
	}

	palette, consumed, err := DeserializePalette(uncompressed)
	if err != nil {
		return nil, err
	}
	if palette.Len() != int(header.PaletteLen) {
		return nil, fmt.Errorf("%w: palette length %d != header %d", ErrPaletteBounds, palette.Len(), header.PaletteLen)
	}

	words, _, err := DeserializeWords(uncompressed[consumed:])
	if err != nil {
		return nil, err
	}

	c := world.NewMemoryChunk(header.CX, header.CZ)
	if err := palette.DecodeWords(words, c); err != nil {
		return nil, err
	}

	c.SetLastModified(header.LastModifiedMs)
	c.SetFeaturesPopulated(header.featuresPopulated())
	c.SetPlayerModified(header.playerModified())
	if header.dirty() {
		c.MarkDirty()
	} else {
		c.MarkClean()
	}

	return c, nil
}
