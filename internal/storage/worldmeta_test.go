package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

func TestWorldMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.dat")

	m := &WorldMetadata{
		CreatedTimeMs:   1000,
		LastPlayedMs:    2000,
		TotalPlayTimeMs: 3000,
		Seed:            -42,
		WorldName:       "Overworld",
		SpawnX:          1.5,
		SpawnY:          64,
		SpawnZ:          -3.25,
		GameMode:        1,
		CheatsEnabled:   true,
		Properties:      []world.Property{{Key: "difficulty", Value: "normal"}},
	}

	if err := SaveWorldMetadata(path, m); err != nil {
		t.Fatalf("SaveWorldMetadata: %v", err)
	}

	got, err := LoadWorldMetadata(path)
	if err != nil {
		t.Fatalf("LoadWorldMetadata: %v", err)
	}

	if got.Seed != m.Seed || got.WorldName != m.WorldName || got.GameMode != m.GameMode {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, m)
	}
	if !got.CheatsEnabled {
		t.Fatal("CheatsEnabled should round-trip true")
	}
	if len(got.Properties) != 1 || got.Properties[0].Value != "normal" {
		t.Fatalf("properties mismatch: %+v", got.Properties)
	}
}

func TestLoadWorldMetadataMissingIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-world.dat")
	if _, err := LoadWorldMetadata(path); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLoadWorldMetadataBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.dat")
	m := &WorldMetadata{WorldName: "x"}
	if err := SaveWorldMetadata(path, m); err != nil {
		t.Fatalf("SaveWorldMetadata: %v", err)
	}

	data := encodeWorldMetadata(m)
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write corrupted file: %v", err)
	}

	if _, err := LoadWorldMetadata(path); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("got %v, want ErrBadMagic", err)
	}
}
