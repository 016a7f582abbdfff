package fat

import (
	"github.com/boljen/go-bitmap"
)

// Allocator mirrors the FAT's free/used state in a bitmap so the free-cluster
// scan doesn't have to re-read the FAT one entry at a time. It is rebuilt once
// from the on-disk FAT when a volume is opened and kept in sync by Table.Set;
// it never answers a question about chain contents, only free/used.
type Allocator struct {
	bm        bitmap.Bitmap
	total     uint32
	nextHint  ClusterID
	freeCount uint32
}

func newAllocator(vol *Volume) (*Allocator, error) {
	total := vol.BootSector.TotalClusters
	a := &Allocator{
		bm:       bitmap.New(int(total)),
		total:    total,
		nextHint: 2,
	}

	for c := ClusterID(2); c < ClusterID(total)+2; c++ {
		value, err := rawGet(vol, c)
		if err != nil {
			return nil, err
		}
		if value == free {
			a.freeCount++
		} else {
			a.bm.Set(int(c-2), true)
		}
	}
	return a, nil
}

// rawGet reads a FAT entry directly, bypassing Table so newAllocator can run
// before the Table's own allocator field is attached.
func rawGet(vol *Volume, c ClusterID) (ClusterID, error) {
	t := &Table{vol: vol}
	return t.Get(c)
}

func (a *Allocator) index(c ClusterID) int { return int(c - 2) }

func (a *Allocator) markUsed(c ClusterID) {
	idx := a.index(c)
	if idx < 0 || idx >= int(a.total) {
		return
	}
	if !a.bm.Get(idx) {
		a.bm.Set(idx, true)
		if a.freeCount > 0 {
			a.freeCount--
		}
	}
}

func (a *Allocator) free(c ClusterID) {
	idx := a.index(c)
	if idx < 0 || idx >= int(a.total) {
		return
	}
	if a.bm.Get(idx) {
		a.bm.Set(idx, false)
		a.freeCount++
		if c < a.nextHint {
			a.nextHint = c
		}
	}
}

// allocate finds the lowest-numbered free cluster at or after nextHint,
// wrapping around to 2 if the scan reaches the end. This mirrors
// get_free_fat's linear scan, accelerated by the bitmap instead of
// re-reading the FAT one entry at a time.
func (a *Allocator) allocate() (ClusterID, bool) {
	if a.freeCount == 0 {
		return 0, false
	}

	start := a.nextHint
	if start < 2 {
		start = 2
	}

	for c := start; c < ClusterID(a.total)+2; c++ {
		if !a.bm.Get(a.index(c)) {
			a.bm.Set(a.index(c), true)
			a.freeCount--
			a.nextHint = c + 1
			return c, true
		}
	}
	for c := ClusterID(2); c < start; c++ {
		if !a.bm.Get(a.index(c)) {
			a.bm.Set(a.index(c), true)
			a.freeCount--
			a.nextHint = c + 1
			return c, true
		}
	}
	return 0, false
}

// FreeClusters reports the number of clusters this allocator currently
// believes are free.
func (a *Allocator) FreeClusters() uint32 { return a.freeCount }
