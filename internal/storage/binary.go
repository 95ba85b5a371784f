package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// leWriter accumulates a little-endian byte buffer, matching the native
// ByteBuffer order world.dat and player.dat are written in.
type leWriter struct {
	buf []byte
}

func (w *leWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *leWriter) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *leWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *leWriter) i64(v int64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }
func (w *leWriter) f32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *leWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// str16 writes a u16-length-prefixed string, the framing §4.7 specifies
// for EntityCodec's variant-length fields (as opposed to the u32-prefixed
// strings used by world.dat/player.dat).
func (w *leWriter) str16(s string) {
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// leReader reads sequentially from a little-endian byte buffer, failing
// closed with ErrTruncatedString / io.ErrUnexpectedEOF-style bounds
// checks on any short read.
type leReader struct {
	buf []byte
	pos int
}

func newLEReader(buf []byte) *leReader { return &leReader{buf: buf} }

func (r *leReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedString, n, r.pos, len(r.buf))
	}
	return nil
}

func (r *leReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *leReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *leReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *leReader) i64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *leReader) f32() (float32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *leReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// str16 reads a u16-length-prefixed string (EntityCodec's variant-length
// fields; see leWriter.str16).
func (r *leReader) str16() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *leReader) remaining() int { return len(r.buf) - r.pos }
