package storage

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

const (
	worldMetaMagic   uint32 = 0x53544F4E // "STON"
	worldMetaVersion uint32 = 1
)

// WorldMetadata is the file-level record persisted in world.dat.
type WorldMetadata struct {
	CreatedTimeMs   int64
	LastPlayedMs    int64
	TotalPlayTimeMs int64

	Seed           int64
	WorldName      string
	SpawnX         float32
	SpawnY         float32
	SpawnZ         float32
	GameMode       uint32
	CheatsEnabled  bool
	Properties     []world.Property
}

func encodeWorldMetadata(m *WorldMetadata) []byte {
	var payload leWriter
	payload.i64(m.Seed)
	payload.str(m.WorldName)
	payload.f32(m.SpawnX)
	payload.f32(m.SpawnY)
	payload.f32(m.SpawnZ)
	payload.u32(m.GameMode)
	if m.CheatsEnabled {
		payload.u8(1)
	} else {
		payload.u8(0)
	}
	payload.u32(uint32(len(m.Properties)))
	for _, p := range m.Properties {
		payload.str(p.Key)
		payload.str(p.Value)
	}

	var header leWriter
	header.u32(worldMetaMagic)
	header.u32(worldMetaVersion)
	header.i64(m.CreatedTimeMs)
	header.i64(m.LastPlayedMs)
	header.i64(m.TotalPlayTimeMs)
	header.u32(uint32(len(payload.buf)))

	return append(header.buf, payload.buf...)
}

func decodeWorldMetadata(data []byte) (*WorldMetadata, error) {
	r := newLEReader(data)

	magic, err := r.u32()
	if err != nil {
		return nil, err
	}
	if magic != worldMetaMagic {
		return nil, fmt.Errorf("%w: got 0x%08X", ErrBadMagic, magic)
	}

	version, err := r.u32()
	if err != nil {
		return nil, err
	}
	if version != worldMetaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	m := &WorldMetadata{}
	if m.CreatedTimeMs, err = r.i64(); err != nil {
		return nil, err
	}
	if m.LastPlayedMs, err = r.i64(); err != nil {
		return nil, err
	}
	if m.TotalPlayTimeMs, err = r.i64(); err != nil {
		return nil, err
	}

	payloadSize, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.remaining() != int(payloadSize) {
		return nil, fmt.Errorf("%w: header says %d, body has %d", ErrPayloadSizeMismatch, payloadSize, r.remaining())
	}

	if m.Seed, err = r.i64(); err != nil {
		return nil, err
	}
	if m.WorldName, err = r.str(); err != nil {
		return nil, err
	}
	if m.SpawnX, err = r.f32(); err != nil {
		return nil, err
	}
	if m.SpawnY, err = r.f32(); err != nil {
		return nil, err
	}
	if m.SpawnZ, err = r.f32(); err != nil {
		return nil, err
	}
	if m.GameMode, err = r.u32(); err != nil {
		return nil, err
	}
	cheats, err := r.u8()
	if err != nil {
		return nil, err
	}
	m.CheatsEnabled = cheats != 0

	propCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	m.Properties = make([]world.Property, 0, propCount)
	for i := uint32(0); i < propCount; i++ {
		key, err := r.str()
		if err != nil {
			return nil, err
		}
		value, err := r.str()
		if err != nil {
			return nil, err
		}
		m.Properties = append(m.Properties, world.Property{Key: key, Value: value})
	}

	return m, nil
}

// SaveWorldMetadata writes m to path using the temp-file-plus-rename
// protocol: the rename is the linearization point, so a crash mid-write
// never leaves a half-written world.dat visible.
func SaveWorldMetadata(path string, m *WorldMetadata) error {
	data := encodeWorldMetadata(m)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// LoadWorldMetadata reads and validates world.dat. A missing file
// surfaces as ErrNotFound, which callers treat as "no world yet" rather
// than a structural fault.
func LoadWorldMetadata(path string) (*WorldMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return decodeWorldMetadata(data)
}
