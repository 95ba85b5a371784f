package region

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	sectorSize     = 4096
	headerSectors  = 2
	headerSize     = headerSectors * sectorSize
	slotsPerRegion = 32 * 32
	maxSectors     = 255

	// compressionMarkerNone is always written: the region layer treats the
	// chunk payload as opaque bytes and never compresses at the sector
	// level. Compression, if any, already happened inside the payload
	// produced by Encode.
	compressionMarkerNone byte = 0
)

// SlotIndex returns the region-local directory slot for chunk-local
// coordinates lx, lz (both in [0,32)).
func SlotIndex(lx, lz int) int { return lx + lz*32 }

func validSlot(lx, lz int) bool {
	return lx >= 0 && lx < 32 && lz >= 0 && lz < 32
}

// RegionCoord identifies a 32x32 chunk region by dividing chunk
// coordinates by 32 (arithmetic shift, so it works for negative inputs).
type RegionCoord struct {
	RX, RZ int32
}

// RegionOf returns the region coordinate and local slot position for a
// chunk coordinate pair.
func RegionOf(cx, cz int32) (coord RegionCoord, lx, lz int) {
	return RegionCoord{RX: cx >> 5, RZ: cz >> 5}, int(cx & 31), int(cz & 31)
}

type freeRun struct {
	start uint32
	count uint32
}

// RegionFile is a single-file random-access container for up to 1024
// chunks. All directory and sector-allocation state is guarded by mu:
// many concurrent readers are allowed, but allocation and directory
// mutation require the exclusive lock.
type RegionFile struct {
	path string
	f    *os.File

	mu       sync.RWMutex
	dirTable [slotsPerRegion]uint32 // (startSector<<8)|sectorCount, 0 = empty
	tsTable  [slotsPerRegion]uint32
	free     []freeRun
	tail     uint32 // first never-allocated sector
}

// Open opens or creates a region file at path, rebuilding its in-memory
// directory and free-sector list from the on-disk header.
func Open(path string) (*RegionFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("region: open %s: %w", path, err)
	}

	rf := &RegionFile{path: path, f: f, tail: headerSectors}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("region: stat %s: %w", path, err)
	}

	if info.Size() < headerSize {
		if err := rf.writeBlankHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := rf.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}

	rf.rebuildFreeList()
	return rf, nil
}

func (rf *RegionFile) writeBlankHeader() error {
	if err := rf.f.Truncate(headerSize); err != nil {
		return fmt.Errorf("region: truncate header: %w", err)
	}
	return nil
}

func (rf *RegionFile) loadHeader() error {
	header := make([]byte, headerSize)
	if _, err := rf.f.ReadAt(header, 0); err != nil && err != io.EOF {
		return fmt.Errorf("region: read header: %w", err)
	}

	maxSector := uint32(headerSectors)
	for i := 0; i < slotsPerRegion; i++ {
		off := i * 4
		entry := binary.BigEndian.Uint32(header[off : off+4])
		rf.dirTable[i] = entry
		rf.tsTable[i] = binary.BigEndian.Uint32(header[sectorSize+off : sectorSize+off+4])

		if entry == 0 {
			continue
		}
		start, count := unpackEntry(entry)
		if end := start + uint32(count); end > maxSector {
			maxSector = end
		}
	}
	rf.tail = maxSector
	return nil
}

func packEntry(start uint32, count uint8) uint32 {
	return (start << 8) | uint32(count)
}

func unpackEntry(entry uint32) (start uint32, count uint8) {
	return entry >> 8, uint8(entry & 0xFF)
}

// run is an occupied sector range, used only while rebuilding the free
// list from the on-disk directory.
type run struct{ start, count uint32 }

// rebuildFreeList scans the directory and derives the gaps between
// occupied sector runs, sorted by start sector, merging adjacent gaps.
func (rf *RegionFile) rebuildFreeList() {
	occupied := make([]run, 0, slotsPerRegion)
	for _, entry := range rf.dirTable {
		if entry == 0 {
			continue
		}
		start, count := unpackEntry(entry)
		occupied = append(occupied, run{start, uint32(count)})
	}

	sortRuns(occupied)

	rf.free = rf.free[:0]
	cursor := uint32(headerSectors)
	for _, r := range occupied {
		if r.start > cursor {
			rf.free = append(rf.free, freeRun{start: cursor, count: r.start - cursor})
		}
		if r.start+r.count > cursor {
			cursor = r.start + r.count
		}
	}
}

func sortRuns(runs []run) {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j-1].start > runs[j].start; j-- {
			runs[j-1], runs[j] = runs[j], runs[j-1]
		}
	}
}

// Has reports whether slot (lx,lz) is occupied.
func (rf *RegionFile) Has(lx, lz int) bool {
	if !validSlot(lx, lz) {
		return false
	}
	rf.mu.RLock()
	defer rf.mu.RUnlock()
	return rf.dirTable[SlotIndex(lx, lz)] != 0
}

// Read returns the stored payload for (lx,lz), or nil, false if the slot
// is empty.
func (rf *RegionFile) Read(lx, lz int) ([]byte, bool, error) {
	if !validSlot(lx, lz) {
		return nil, false, ErrSlotInvalid
	}

	rf.mu.RLock()
	entry := rf.dirTable[SlotIndex(lx, lz)]
	rf.mu.RUnlock()

	if entry == 0 {
		return nil, false, nil
	}
	start, _ := unpackEntry(entry)

	prefix := make([]byte, 5)
	if _, err := rf.f.ReadAt(prefix, int64(start)*sectorSize); err != nil {
		return nil, false, fmt.Errorf("region: read sector prefix: %w", err)
	}
	payloadLen := binary.BigEndian.Uint32(prefix[0:4])
	// prefix[4] is the compression marker, always 0 (see compressionMarkerNone).

	payload := make([]byte, payloadLen)
	if _, err := rf.f.ReadAt(payload, int64(start)*sectorSize+5); err != nil {
		return nil, false, fmt.Errorf("region: read payload: %w", err)
	}
	return payload, true, nil
}

// Write stores payload at (lx,lz), allocating or reusing sectors as
// needed, and updates the directory last. now is the Unix-seconds
// timestamp recorded in the timestamp table.
func (rf *RegionFile) Write(lx, lz int, payload []byte, now int64) error {
	if !validSlot(lx, lz) {
		return ErrSlotInvalid
	}

	total := int64(5) + int64(len(payload))
	sectors := (total + sectorSize - 1) / sectorSize
	if sectors > maxSectors {
		return fmt.Errorf("%w: payload needs %d sectors", ErrRegionFull, sectors)
	}
	s := uint32(sectors)

	rf.mu.Lock()
	defer rf.mu.Unlock()

	idx := SlotIndex(lx, lz)
	oldEntry := rf.dirTable[idx]

	var start uint32
	if oldEntry != 0 {
		oldStart, oldCount := unpackEntry(oldEntry)
		if uint32(oldCount) >= s {
			start = oldStart
			if uint32(oldCount) > s {
				rf.freeRange(oldStart+s, uint32(oldCount)-s)
			}
		} else {
			rf.freeRange(oldStart, uint32(oldCount))
			start = rf.allocate(s)
		}
	} else {
		start = rf.allocate(s)
	}

	buf := make([]byte, sectors*sectorSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	buf[4] = compressionMarkerNone
	copy(buf[5:], payload)

	if _, err := rf.f.WriteAt(buf, int64(start)*sectorSize); err != nil {
		return fmt.Errorf("region: write sectors: %w", err)
	}

	rf.dirTable[idx] = packEntry(start, uint8(s))
	rf.tsTable[idx] = uint32(now)

	if err := rf.flushDirectoryEntry(idx); err != nil {
		return err
	}

	return nil
}

// allocate finds or creates a contiguous run of s free sectors, removing
// it from the free list (or extending the tail if nothing fits).
func (rf *RegionFile) allocate(s uint32) uint32 {
	for i, r := range rf.free {
		if r.count < s {
			continue
		}
		start := r.start
		if r.count == s {
			rf.free = append(rf.free[:i], rf.free[i+1:]...)
		} else {
			rf.free[i] = freeRun{start: r.start + s, count: r.count - s}
		}
		return start
	}

	start := rf.tail
	rf.tail += s
	return start
}

// freeRange returns a sector run to the free list, keeping it sorted by
// start and merging with adjacent runs.
func (rf *RegionFile) freeRange(start, count uint32) {
	if count == 0 {
		return
	}
	if start+count == rf.tail {
		rf.tail = start
		return
	}

	rf.free = append(rf.free, freeRun{start: start, count: count})
	for i := 1; i < len(rf.free); i++ {
		for j := i; j > 0 && rf.free[j-1].start > rf.free[j].start; j-- {
			rf.free[j-1], rf.free[j] = rf.free[j], rf.free[j-1]
		}
	}

	merged := rf.free[:0]
	for _, r := range rf.free {
		if n := len(merged); n > 0 && merged[n-1].start+merged[n-1].count == r.start {
			merged[n-1].count += r.count
		} else {
			merged = append(merged, r)
		}
	}
	rf.free = merged
}

// flushDirectoryEntry writes a single slot's Table A and Table B entries.
// This is the linearization point: a crash before this write leaves the
// previous directory entry intact. The old payload behind that entry
// survives only when Write placed the new one in sectors the old run did
// not use; when the slot's run is reused in place, a partially written
// run is visible through the old entry.
func (rf *RegionFile) flushDirectoryEntry(idx int) error {
	off := idx * 4
	var buf [4]byte

	binary.BigEndian.PutUint32(buf[:], rf.dirTable[idx])
	if _, err := rf.f.WriteAt(buf[:], int64(off)); err != nil {
		return fmt.Errorf("region: write location entry: %w", err)
	}

	binary.BigEndian.PutUint32(buf[:], rf.tsTable[idx])
	if _, err := rf.f.WriteAt(buf[:], int64(sectorSize+off)); err != nil {
		return fmt.Errorf("region: write timestamp entry: %w", err)
	}

	return nil
}

// Remove zeroes the directory entry for (lx,lz) and returns its sectors
// to the free list. The underlying bytes are not scrubbed.
func (rf *RegionFile) Remove(lx, lz int) error {
	if !validSlot(lx, lz) {
		return ErrSlotInvalid
	}

	rf.mu.Lock()
	defer rf.mu.Unlock()

	idx := SlotIndex(lx, lz)
	entry := rf.dirTable[idx]
	if entry == 0 {
		return nil
	}
	start, count := unpackEntry(entry)

	rf.dirTable[idx] = 0
	rf.tsTable[idx] = 0
	if err := rf.flushDirectoryEntry(idx); err != nil {
		return err
	}

	rf.freeRange(start, uint32(count))
	return nil
}

// Sync flushes OS buffers for the underlying file.
func (rf *RegionFile) Sync() error {
	if err := rf.f.Sync(); err != nil {
		return fmt.Errorf("region: sync %s: %w", rf.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (rf *RegionFile) Close() error {
	if err := rf.Sync(); err != nil {
		return err
	}
	if err := rf.f.Close(); err != nil {
		return fmt.Errorf("region: close %s: %w", rf.path, err)
	}
	return nil
}

// Path returns the filesystem path backing this region file.
func (rf *RegionFile) Path() string { return rf.path }

// nowUnix is split out so tests can drive Write with a fixed clock value
// instead of depending on wall-clock time.
func nowUnix() int64 { return time.Now().Unix() }
