package storage

import (
	"path/filepath"
	"testing"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

func TestPlayerStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player.dat")

	p := &world.PlayerState{
		PosX: 1, PosY: 64, PosZ: -1,
		VelX: 0, VelY: -0.5, VelZ: 0,
		Pitch: 10, Yaw: 180,
		Health:       18.5,
		HotbarIndex:  3,
		SelectedSlot: 3,
		Inventory: []world.Slot{
			{SlotIndex: 0, ItemID: 5, Count: 64},
			{SlotIndex: 1, ItemID: 9, Count: 1},
		},
		Properties: []world.Property{{Key: "gamemode", Value: "survival"}},
	}

	if err := SavePlayerState(path, p); err != nil {
		t.Fatalf("SavePlayerState: %v", err)
	}

	got, ok, err := LoadPlayerState(path)
	if err != nil {
		t.Fatalf("LoadPlayerState: %v", err)
	}
	if !ok {
		t.Fatal("expected player state to be found")
	}

	if got.PosX != p.PosX || got.Health != p.Health || got.SelectedSlot != p.SelectedSlot {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, p)
	}
	if len(got.Inventory) != 2 || got.Inventory[0].ItemID != 5 {
		t.Fatalf("inventory mismatch: %+v", got.Inventory)
	}
	if len(got.Properties) != 1 || got.Properties[0].Value != "survival" {
		t.Fatalf("properties mismatch: %+v", got.Properties)
	}
}

func TestLoadPlayerStateMissingIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-player.dat")
	p, ok, err := LoadPlayerState(path)
	if err != nil {
		t.Fatalf("LoadPlayerState: %v", err)
	}
	if ok || p != nil {
		t.Fatal("expected ok=false, p=nil for a missing player.dat")
	}
}
