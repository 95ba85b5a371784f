// Package region implements the on-disk chunk representation (palette,
// codec) and the region-file container that gives O(1) random access to
// up to 1024 chunks per file.
package region

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

// ErrPaletteOverflow is returned when a chunk has more than 256 distinct
// block types; the palette format cannot index more than that.
var ErrPaletteOverflow = errors.New("region: palette overflow, more than 256 distinct block types")

const maxPaletteSize = 256

// Palette is the per-chunk ordered set of distinct block types, in
// encounter order, used to bit-pack a chunk's blocks.
type Palette struct {
	entries []world.BlockType
	index   map[world.BlockType]int
}

// BuildFromChunk scans every cell of the chunk in the fixed on-disk order
// (y outer, x middle, z inner) and collects distinct block types in
// encounter order.
func BuildFromChunk(c world.Chunk) (*Palette, error) {
	p := &Palette{index: make(map[world.BlockType]int)}

	for y := 0; y < world.WorldHeight; y++ {
		for x := 0; x < world.ChunkSize; x++ {
			for z := 0; z < world.ChunkSize; z++ {
				t := c.GetBlock(x, y, z)
				if _, ok := p.index[t]; ok {
					continue
				}
				if len(p.entries) >= maxPaletteSize {
					return nil, ErrPaletteOverflow
				}
				p.index[t] = len(p.entries)
				p.entries = append(p.entries, t)
			}
		}
	}

	return p, nil
}

// Len returns the number of distinct block types in the palette.
func (p *Palette) Len() int { return len(p.entries) }

// BitsPerBlock returns the smallest b in {1,...,8} with 2^b >= len(palette).
// A single-entry palette always uses 1 bit, never 0.
func (p *Palette) BitsPerBlock() int {
	return bitsForCount(len(p.entries))
}

func bitsForCount(n int) int {
	if n <= 1 {
		return 1
	}
	b := 1
	for (1 << uint(b)) < n {
		b++
	}
	return b
}

// codeOf returns the palette index for a block type, which must already be
// present (callers always build the palette from the same chunk first).
func (p *Palette) codeOf(t world.BlockType) int {
	return p.index[t]
}

func (p *Palette) typeAt(code int) world.BlockType {
	return p.entries[code]
}

// EncodeWords bit-packs every block of the chunk, in the fixed on-disk
// order, into ceil(N*b/64) 64-bit words. A value that spans a word
// boundary has its low (64-bitOffset) bits placed low-aligned in the
// current word and its remaining high bits placed low-aligned in the next
// word.
func (p *Palette) EncodeWords(c world.Chunk) []uint64 {
	b := p.BitsPerBlock()
	wordCount := wordCountFor(world.BlockCount, b)
	words := make([]uint64, wordCount)

	i := 0
	for y := 0; y < world.WorldHeight; y++ {
		for x := 0; x < world.ChunkSize; x++ {
			for z := 0; z < world.ChunkSize; z++ {
				code := uint64(p.codeOf(c.GetBlock(x, y, z)))

				bitIndex := i * b
				wordIdx := bitIndex / 64
				bitOffset := uint(bitIndex % 64)

				words[wordIdx] |= code << bitOffset
				if bitOffset+uint(b) > 64 {
					words[wordIdx+1] |= code >> (64 - bitOffset)
				}

				i++
			}
		}
	}

	return words
}

// DecodeWords is the inverse of EncodeWords: it fills the chunk's blocks in
// the same fixed order from the packed words.
func (p *Palette) DecodeWords(words []uint64, c world.Chunk) error {
	b := p.BitsPerBlock()
	wordCount := wordCountFor(world.BlockCount, b)
	if len(words) != wordCount {
		return fmt.Errorf("%w: got %d words, want %d", ErrWordCountMismatch, len(words), wordCount)
	}

	mask := uint64(1)<<uint(b) - 1

	i := 0
	for y := 0; y < world.WorldHeight; y++ {
		for x := 0; x < world.ChunkSize; x++ {
			for z := 0; z < world.ChunkSize; z++ {
				bitIndex := i * b
				wordIdx := bitIndex / 64
				bitOffset := uint(bitIndex % 64)

				value := words[wordIdx] >> bitOffset
				if bitOffset+uint(b) > 64 {
					value |= words[wordIdx+1] << (64 - bitOffset)
				}
				value &= mask

				code := int(value)
				if code >= len(p.entries) {
					return fmt.Errorf("%w: palette code %d out of range (len %d)", ErrPaletteBounds, code, len(p.entries))
				}

				c.SetBlock(x, y, z, p.typeAt(code))
				i++
			}
		}
	}

	return nil
}

func wordCountFor(n, bitsPerBlock int) int {
	total := n * bitsPerBlock
	return (total + 63) / 64
}

// Serialize writes the palette as u32 count + count*u32 block IDs.
func (p *Palette) Serialize() []byte {
	buf := make([]byte, 4+4*len(p.entries))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(p.entries)))
	for idx, t := range p.entries {
		off := 4 + idx*4
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(t))
	}
	return buf
}

// DeserializePalette parses a serialized palette and returns it along with
// the number of bytes consumed.
func DeserializePalette(data []byte) (*Palette, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: palette header", ErrTruncated)
	}
	count := int(binary.BigEndian.Uint32(data[0:4]))
	if count > maxPaletteSize {
		return nil, 0, fmt.Errorf("%w: palette count %d exceeds max %d", ErrPaletteBounds, count, maxPaletteSize)
	}
	need := 4 + count*4
	if len(data) < need {
		return nil, 0, fmt.Errorf("%w: palette entries", ErrTruncated)
	}

	p := &Palette{index: make(map[world.BlockType]int, count)}
	for i := 0; i < count; i++ {
		off := 4 + i*4
		t := world.BlockType(binary.BigEndian.Uint32(data[off : off+4]))
		p.index[t] = len(p.entries)
		p.entries = append(p.entries, t)
	}

	return p, need, nil
}

// SerializeWords writes the packed-blocks block: u32 count + count*u64.
func SerializeWords(words []uint64) []byte {
	buf := make([]byte, 4+8*len(words))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(words)))
	for i, w := range words {
		off := 4 + i*8
		binary.BigEndian.PutUint64(buf[off:off+8], w)
	}
	return buf
}

// DeserializeWords parses the packed-blocks block and returns the words
// along with the number of bytes consumed.
func DeserializeWords(data []byte) ([]uint64, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: word count header", ErrTruncated)
	}
	count := int(binary.BigEndian.Uint32(data[0:4]))
	need := 4 + count*8
	if len(data) < need {
		return nil, 0, fmt.Errorf("%w: packed words", ErrTruncated)
	}

	words := make([]uint64, count)
	for i := 0; i < count; i++ {
		off := 4 + i*8
		words[i] = binary.BigEndian.Uint64(data[off : off+8])
	}

	return words, need, nil
}
