package region

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestRegion(t *testing.T) *RegionFile {
	t.Helper()
	rf, err := Open(filepath.Join(t.TempDir(), "r.0.0.vkr"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { rf.Close() })
	return rf
}

func TestRegionFileWriteReadRoundTrip(t *testing.T) {
	rf := openTestRegion(t)

	payload := bytes.Repeat([]byte{0xAB}, 200)
	if err := rf.Write(3, 5, payload, 1000); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !rf.Has(3, 5) {
		t.Fatal("Has should report true after Write")
	}

	got, ok, err := rf.Read(3, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatal("Read should find the slot")
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("read payload does not match written payload")
	}
}

func TestRegionFileMissingSlot(t *testing.T) {
	rf := openTestRegion(t)
	_, ok, err := rf.Read(1, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ok {
		t.Fatal("expected empty slot")
	}
	if rf.Has(1, 1) {
		t.Fatal("Has should report false for an empty slot")
	}
}

func TestRegionFileOverwriteShrink(t *testing.T) {
	rf := openTestRegion(t)

	big := bytes.Repeat([]byte{1}, 4*sectorSize-100)
	if err := rf.Write(0, 0, big, 1); err != nil {
		t.Fatalf("Write big: %v", err)
	}
	_, bigCount := unpackEntry(rf.dirTable[SlotIndex(0, 0)])
	if bigCount != 4 {
		t.Fatalf("expected 4 sectors for big payload, got %d", bigCount)
	}

	small := bytes.Repeat([]byte{2}, 500)
	if err := rf.Write(0, 0, small, 2); err != nil {
		t.Fatalf("Write small: %v", err)
	}
	_, smallCount := unpackEntry(rf.dirTable[SlotIndex(0, 0)])
	if smallCount != 1 {
		t.Fatalf("expected shrink to 1 sector, got %d", smallCount)
	}

	got, _, err := rf.Read(0, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, small) {
		t.Fatal("should read back the shrunk payload")
	}

	// The freed 3 sectors (right after slot (0,0)'s remaining sector)
	// should be reusable by a later insert rather than growing the file.
	reuse := bytes.Repeat([]byte{3}, 3*sectorSize-200)
	if err := rf.Write(1, 0, reuse, 3); err != nil {
		t.Fatalf("Write reuse: %v", err)
	}
	reuseStart, _ := unpackEntry(rf.dirTable[SlotIndex(1, 0)])
	if reuseStart != headerSectors+1 {
		t.Fatalf("expected reused slot to land at sector %d, got %d", headerSectors+1, reuseStart)
	}
}

func TestRegionFileRemoveFreesSectors(t *testing.T) {
	rf := openTestRegion(t)

	payload := bytes.Repeat([]byte{9}, 100)
	if err := rf.Write(2, 2, payload, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rf.Remove(2, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if rf.Has(2, 2) {
		t.Fatal("slot should be empty after Remove")
	}
	_, ok, err := rf.Read(2, 2)
	if err != nil {
		t.Fatalf("Read after remove: %v", err)
	}
	if ok {
		t.Fatal("Read should report missing after Remove")
	}
}

func TestRegionFileNoOverlappingSectors(t *testing.T) {
	rf := openTestRegion(t)

	for i := 0; i < 10; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, 1000+i*37)
		if err := rf.Write(i, 0, payload, int64(i)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	type occ struct{ start, count uint32 }
	var runs []occ
	for i := 0; i < 10; i++ {
		entry := rf.dirTable[SlotIndex(i, 0)]
		start, count := unpackEntry(entry)
		runs = append(runs, occ{start, uint32(count)})
	}

	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			a, b := runs[i], runs[j]
			if a.start < b.start+b.count && b.start < a.start+a.count {
				t.Fatalf("overlapping sector runs: %+v and %+v", a, b)
			}
		}
		if runs[i].start < headerSectors {
			t.Fatalf("slot run starts inside header: %+v", runs[i])
		}
	}
}

func TestRegionFileReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.vkr")

	rf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := bytes.Repeat([]byte{0x42}, 300)
	if err := rf.Write(7, 9, payload, 123); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Read(7, 9)
	if err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if !ok || !bytes.Equal(got, payload) {
		t.Fatal("reopened region file lost its data")
	}
}

func TestRegionOfNegativeCoordinates(t *testing.T) {
	coord, lx, lz := RegionOf(-1, -33)
	if coord.RX != -1 || coord.RZ != -2 {
		t.Fatalf("RegionOf(-1,-33) coord = %+v, want {-1,-2}", coord)
	}
	if lx != 31 || lz != 31 {
		t.Fatalf("RegionOf(-1,-33) local = %d,%d, want 31,31", lx, lz)
	}
}

func TestRegionFileRejectsInvalidSlot(t *testing.T) {
	rf := openTestRegion(t)
	if err := rf.Write(32, 0, []byte{1}, 1); err != ErrSlotInvalid {
		t.Fatalf("Write with lx=32: got %v, want ErrSlotInvalid", err)
	}
	if _, _, err := rf.Read(-1, 0); err != ErrSlotInvalid {
		t.Fatalf("Read with lx=-1: got %v, want ErrSlotInvalid", err)
	}
}
