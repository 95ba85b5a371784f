package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// SaveEntities atomically writes a sequence of entity records to path.
// Each record is framed with a little-endian u32 length prefix so
// entities.dat can be read back one record at a time without needing to
// re-derive variant lengths from their contents.
func SaveEntities(path string, entities []any) error {
	var buf bytes.Buffer
	for _, e := range entities {
		data, err := EncodeEntity(e)
		if err != nil {
			return err
		}
		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(data)))
		buf.Write(lenPrefix[:])
		buf.Write(data)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// LoadEntities reads entities.dat. A missing file yields an empty slice:
// the entities file is optional.
func LoadEntities(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}

	var entities []any
	r := newLEReader(data)
	for r.remaining() > 0 {
		length, err := r.u32()
		if err != nil {
			return nil, err
		}
		if err := r.need(int(length)); err != nil {
			return nil, err
		}
		record := data[r.pos : r.pos+int(length)]
		r.pos += int(length)

		e, err := DecodeEntity(record)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return entities, nil
}
