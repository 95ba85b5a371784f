package storage

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

// player.dat carries no magic/version header, unlike world.dat; a
// leading u32 total-length prefix is the only framing, so a short read
// is detectable as truncation rather than silently parsing garbage.

func encodePlayerState(p *world.PlayerState) []byte {
	var w leWriter
	w.f32(p.PosX)
	w.f32(p.PosY)
	w.f32(p.PosZ)
	w.f32(p.VelX)
	w.f32(p.VelY)
	w.f32(p.VelZ)
	w.f32(p.Pitch)
	w.f32(p.Yaw)
	w.f32(p.Health)
	w.u32(p.HotbarIndex)
	w.u32(p.SelectedSlot)

	w.u32(uint32(len(p.Inventory)))
	for _, slot := range p.Inventory {
		w.u16(slot.SlotIndex)
		w.u16(slot.ItemID)
		w.u16(slot.Count)
	}

	w.u32(uint32(len(p.Properties)))
	for _, prop := range p.Properties {
		w.str(prop.Key)
		w.str(prop.Value)
	}

	var framed leWriter
	framed.u32(uint32(len(w.buf)))
	framed.buf = append(framed.buf, w.buf...)
	return framed.buf
}

func decodePlayerState(data []byte) (*world.PlayerState, error) {
	outer := newLEReader(data)
	length, err := outer.u32()
	if err != nil {
		return nil, err
	}
	if outer.remaining() != int(length) {
		return nil, fmt.Errorf("%w: header says %d, body has %d", ErrPayloadSizeMismatch, length, outer.remaining())
	}

	r := newLEReader(data[4:])
	p := &world.PlayerState{}

	for _, dst := range []*float32{&p.PosX, &p.PosY, &p.PosZ, &p.VelX, &p.VelY, &p.VelZ, &p.Pitch, &p.Yaw, &p.Health} {
		v, err := r.f32()
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	if p.HotbarIndex, err = r.u32(); err != nil {
		return nil, err
	}
	if p.SelectedSlot, err = r.u32(); err != nil {
		return nil, err
	}

	slotCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Inventory = make([]world.Slot, 0, slotCount)
	for i := uint32(0); i < slotCount; i++ {
		var s world.Slot
		if s.SlotIndex, err = r.u16(); err != nil {
			return nil, err
		}
		if s.ItemID, err = r.u16(); err != nil {
			return nil, err
		}
		if s.Count, err = r.u16(); err != nil {
			return nil, err
		}
		p.Inventory = append(p.Inventory, s)
	}

	propCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.Properties = make([]world.Property, 0, propCount)
	for i := uint32(0); i < propCount; i++ {
		key, err := r.str()
		if err != nil {
			return nil, err
		}
		value, err := r.str()
		if err != nil {
			return nil, err
		}
		p.Properties = append(p.Properties, world.Property{Key: key, Value: value})
	}

	return p, nil
}

// SavePlayerState atomically writes p to path.
func SavePlayerState(path string, p *world.PlayerState) error {
	data := encodePlayerState(p)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// LoadPlayerState reads player.dat. A missing file is not an error: the
// spec treats it as "use defaults" rather than a load failure.
func LoadPlayerState(path string) (*world.PlayerState, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: read %s: %w", path, err)
	}
	p, err := decodePlayerState(data)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}
