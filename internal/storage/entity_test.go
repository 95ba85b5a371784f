package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestEntityCodecRoundTripEachVariant(t *testing.T) {
	drop := &BlockDropEntity{
		EntityBasis: EntityBasis{PosX: 1, PosY: 2, PosZ: 3, Health: 1, MaxHealth: 1, Alive: true},
		BlockID:     42,
		DespawnTimer: 5.5,
		StackCount:  3,
	}
	item := &ItemDropEntity{
		EntityBasis:  EntityBasis{PosX: 4, Alive: true},
		ItemID:       7,
		IsBlockType:  false,
		ItemCount:    2,
		DespawnTimer: 1.25,
		StackCount:   2,
	}
	cow := &CowEntity{
		EntityBasis:    EntityBasis{PosX: -1, Health: 10, MaxHealth: 10, Alive: true},
		TextureVariant: "brown",
		CanBeMilked:    true,
		MilkRegenTimer: 30,
		AIState:        "idle",
	}

	for _, e := range []any{drop, item, cow} {
		data, err := EncodeEntity(e)
		if err != nil {
			t.Fatalf("EncodeEntity(%T): %v", e, err)
		}
		decoded, err := DecodeEntity(data)
		if err != nil {
			t.Fatalf("DecodeEntity(%T): %v", e, err)
		}

		switch want := e.(type) {
		case *BlockDropEntity:
			got, ok := decoded.(*BlockDropEntity)
			if !ok || got.BlockID != want.BlockID || got.StackCount != want.StackCount {
				t.Fatalf("BlockDropEntity mismatch: %+v vs %+v", got, want)
			}
		case *ItemDropEntity:
			got, ok := decoded.(*ItemDropEntity)
			if !ok || got.ItemID != want.ItemID || got.IsBlockType != want.IsBlockType {
				t.Fatalf("ItemDropEntity mismatch: %+v vs %+v", got, want)
			}
		case *CowEntity:
			got, ok := decoded.(*CowEntity)
			if !ok || got.TextureVariant != want.TextureVariant || got.AIState != want.AIState {
				t.Fatalf("CowEntity mismatch: %+v vs %+v", got, want)
			}
		}
	}
}

func TestCowEntityStringsAreU16Prefixed(t *testing.T) {
	cow := &CowEntity{
		EntityBasis:    EntityBasis{Alive: true},
		TextureVariant: "brown",
		AIState:        "idle",
	}

	data, err := EncodeEntity(cow)
	if err != nil {
		t.Fatalf("EncodeEntity: %v", err)
	}

	// version(1) + kind(1) + basis (12*f32 + 1 u8 = 49) = 51 bytes before
	// the texture-variant string's u16 length prefix.
	const basisEnd = 1 + 1 + 12*4 + 1
	r := newLEReader(data[basisEnd:])
	n, err := r.u16()
	if err != nil {
		t.Fatalf("u16 length prefix: %v", err)
	}
	if int(n) != len("brown") {
		t.Fatalf("texture variant length prefix = %d, want %d", n, len("brown"))
	}
}

func TestDecodeEntityUnknownKind(t *testing.T) {
	data := []byte{entityRecordVersion, 0xFF}
	if _, err := DecodeEntity(data); !errors.Is(err, ErrUnknownEntityKind) {
		t.Fatalf("got %v, want ErrUnknownEntityKind", err)
	}
}

func TestDecodeEntityUnsupportedVersion(t *testing.T) {
	data := []byte{0xFF, 0x00}
	if _, err := DecodeEntity(data); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
}

func TestEntitiesFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.dat")
	entities := []any{
		&BlockDropEntity{BlockID: 1, StackCount: 1},
		&CowEntity{TextureVariant: "white", AIState: "wander"},
	}

	if err := SaveEntities(path, entities); err != nil {
		t.Fatalf("SaveEntities: %v", err)
	}

	got, err := LoadEntities(path)
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entities, want 2", len(got))
	}
	if cow, ok := got[1].(*CowEntity); !ok || cow.TextureVariant != "white" {
		t.Fatalf("second entity mismatch: %+v", got[1])
	}
}

func TestLoadEntitiesMissingFileIsEmpty(t *testing.T) {
	got, err := LoadEntities(filepath.Join(t.TempDir(), "missing-entities.dat"))
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d entities, want 0", len(got))
	}
}
