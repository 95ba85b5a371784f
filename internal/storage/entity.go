package storage

import "fmt"

// EntityKind is the wire-format discriminant for a persisted entity
// record.
type EntityKind uint8

const (
	EntityBlockDrop EntityKind = 0
	EntityItemDrop  EntityKind = 1
	EntityCow       EntityKind = 2
)

const entityRecordVersion uint8 = 1

// EntityBasis holds the fields every entity kind carries regardless of
// variant.
type EntityBasis struct {
	PosX, PosY, PosZ float32
	VelX, VelY, VelZ float32
	Pitch, Yaw, Roll float32
	Health           float32
	MaxHealth        float32
	Age              float32
	Alive            bool
}

// BlockDropEntity is a dropped block (e.g. a mined block awaiting pickup).
type BlockDropEntity struct {
	EntityBasis
	BlockID       uint32
	DespawnTimer  float32
	StackCount    uint32
}

// ItemDropEntity is a dropped inventory item.
type ItemDropEntity struct {
	EntityBasis
	ItemID       uint32
	IsBlockType  bool
	ItemCount    uint32
	DespawnTimer float32
	StackCount   uint32
}

// CowEntity is a passive mob with milk-related state.
type CowEntity struct {
	EntityBasis
	TextureVariant  string
	CanBeMilked     bool
	MilkRegenTimer  float32
	AIState         string
}

func encodeBasis(w *leWriter, b EntityBasis) {
	w.f32(b.PosX)
	w.f32(b.PosY)
	w.f32(b.PosZ)
	w.f32(b.VelX)
	w.f32(b.VelY)
	w.f32(b.VelZ)
	w.f32(b.Pitch)
	w.f32(b.Yaw)
	w.f32(b.Roll)
	w.f32(b.Health)
	w.f32(b.MaxHealth)
	w.f32(b.Age)
	if b.Alive {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func decodeBasis(r *leReader) (EntityBasis, error) {
	var b EntityBasis
	var err error
	for _, dst := range []*float32{
		&b.PosX, &b.PosY, &b.PosZ,
		&b.VelX, &b.VelY, &b.VelZ,
		&b.Pitch, &b.Yaw, &b.Roll,
		&b.Health, &b.MaxHealth, &b.Age,
	} {
		if *dst, err = r.f32(); err != nil {
			return b, err
		}
	}
	alive, err := r.u8()
	if err != nil {
		return b, err
	}
	b.Alive = alive != 0
	return b, nil
}

// EncodeEntity serializes any of the supported entity variants to its
// versioned wire record: version byte, kind byte, basis, variant data.
func EncodeEntity(e any) ([]byte, error) {
	var w leWriter
	w.u8(entityRecordVersion)

	switch v := e.(type) {
	case *BlockDropEntity:
		w.u8(uint8(EntityBlockDrop))
		encodeBasis(&w, v.EntityBasis)
		w.u32(v.BlockID)
		w.f32(v.DespawnTimer)
		w.u32(v.StackCount)
	case *ItemDropEntity:
		w.u8(uint8(EntityItemDrop))
		encodeBasis(&w, v.EntityBasis)
		w.u32(v.ItemID)
		if v.IsBlockType {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.u32(v.ItemCount)
		w.f32(v.DespawnTimer)
		w.u32(v.StackCount)
	case *CowEntity:
		w.u8(uint8(EntityCow))
		encodeBasis(&w, v.EntityBasis)
		w.str16(v.TextureVariant)
		if v.CanBeMilked {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.f32(v.MilkRegenTimer)
		w.str16(v.AIState)
	default:
		return nil, fmt.Errorf("storage: unsupported entity type %T", e)
	}

	return w.buf, nil
}

// DecodeEntity parses a single versioned entity record and returns the
// concrete variant (one of *BlockDropEntity, *ItemDropEntity, *CowEntity).
func DecodeEntity(data []byte) (any, error) {
	r := newLEReader(data)

	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if version != entityRecordVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	kindByte, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch EntityKind(kindByte) {
	case EntityBlockDrop:
		basis, err := decodeBasis(r)
		if err != nil {
			return nil, err
		}
		e := &BlockDropEntity{EntityBasis: basis}
		if e.BlockID, err = r.u32(); err != nil {
			return nil, err
		}
		if e.DespawnTimer, err = r.f32(); err != nil {
			return nil, err
		}
		if e.StackCount, err = r.u32(); err != nil {
			return nil, err
		}
		return e, nil

	case EntityItemDrop:
		basis, err := decodeBasis(r)
		if err != nil {
			return nil, err
		}
		e := &ItemDropEntity{EntityBasis: basis}
		if e.ItemID, err = r.u32(); err != nil {
			return nil, err
		}
		isBlock, err := r.u8()
		if err != nil {
			return nil, err
		}
		e.IsBlockType = isBlock != 0
		if e.ItemCount, err = r.u32(); err != nil {
			return nil, err
		}
		if e.DespawnTimer, err = r.f32(); err != nil {
			return nil, err
		}
		if e.StackCount, err = r.u32(); err != nil {
			return nil, err
		}
		return e, nil

	case EntityCow:
		basis, err := decodeBasis(r)
		if err != nil {
			return nil, err
		}
		e := &CowEntity{EntityBasis: basis}
		if e.TextureVariant, err = r.str16(); err != nil {
			return nil, err
		}
		canBeMilked, err := r.u8()
		if err != nil {
			return nil, err
		}
		e.CanBeMilked = canBeMilked != 0
		if e.MilkRegenTimer, err = r.f32(); err != nil {
			return nil, err
		}
		if e.AIState, err = r.str16(); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntityKind, kindByte)
	}
}
