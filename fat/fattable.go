package fat

import (
	"github.com/dosimage/fatimage/errors"
)

// EOC is the canonical end-of-chain marker this engine writes. Readers must
// accept any value in the implementation-defined EOC range for the relevant
// flavor (0xFF8-0xFFF for FAT12, 0xFFF8-0xFFFF for FAT16, 0x0FFFFFF8-
// 0x0FFFFFFF for FAT32); this engine always writes the all-ones form.
const (
	eoc12 = ClusterID(0x0FFF)
	eoc16 = ClusterID(0xFFFF)
	eoc32 = ClusterID(0x0FFFFFFF)

	// bad is the "bad cluster" sentinel value for each flavor.
	bad12 = ClusterID(0x0FF7)
	bad16 = ClusterID(0xFFF7)
	bad32 = ClusterID(0x0FFFFFF7)

	free = ClusterID(0)
)

// Table is the in-memory view of a volume's FAT region: the geometry needed
// to compute byte offsets (through its Volume) and a free-cluster bitmap
// index rebuilt from the on-disk FAT at open time.
//
// The index exists purely to make Allocate sub-linear; it is never
// used to satisfy a read the caller didn't ask for, so it doesn't violate
// the "no read caching beyond one scratch sector" constraint.
type Table struct {
	vol       *Volume
	allocator *Allocator
}

func newTable(vol *Volume) (*Table, error) {
	t := &Table{vol: vol}
	a, err := newAllocator(vol)
	if err != nil {
		return nil, err
	}
	t.allocator = a
	return t, nil
}

func (t *Table) eoc() ClusterID {
	switch t.vol.BootSector.SizeFAT {
	case 12:
		return eoc12
	case 16:
		return eoc16
	default:
		return eoc32
	}
}

func (t *Table) bad() ClusterID {
	switch t.vol.BootSector.SizeFAT {
	case 12:
		return bad12
	case 16:
		return bad16
	default:
		return bad32
	}
}

// IsEOC reports whether value marks the end of a cluster chain, accepting
// the whole implementation-defined EOC range rather than just this engine's
// canonical value.
func (t *Table) IsEOC(value ClusterID) bool {
	switch t.vol.BootSector.SizeFAT {
	case 12:
		return value >= 0x0FF8 && value <= 0x0FFF
	case 16:
		return value >= 0xFFF8 && value <= 0xFFFF
	default:
		return value&0x0FFFFFFF >= 0x0FFFFFF8
	}
}

// entrySector returns the sector (relative to the start of FAT copy 0) and
// in-sector byte offset holding cluster c's entry.
func (t *Table) entrySector(c ClusterID) (SectorID, uint32) {
	byteOffset := t.vol.BootSector.fatByteOffset(c)
	return SectorID(byteOffset / BytesPerSector), byteOffset % BytesPerSector
}

// Get reads cluster c's entry from FAT copy 0.
func (t *Table) Get(c ClusterID) (ClusterID, error) {
	bs := t.vol.BootSector
	sec, off := t.entrySector(c)
	fatStart := SectorID(bs.ReservedSectors)

	switch bs.SizeFAT {
	case 12:
		cur, err := t.vol.readSector(fatStart + sec)
		if err != nil {
			return 0, err
		}
		var lo, hi byte
		if off == BytesPerSector-1 {
			// The entry straddles this sector and the next.
			next, err := t.vol.readSector(fatStart + sec + 1)
			if err != nil {
				return 0, err
			}
			lo, hi = cur[off], next[0]
		} else {
			lo, hi = cur[off], cur[off+1]
		}
		value := uint16(lo) | uint16(hi)<<8
		if c%2 == 0 {
			return ClusterID(value & 0x0FFF), nil
		}
		return ClusterID(value >> 4), nil

	case 16:
		buf, err := t.vol.readSector(fatStart + sec)
		if err != nil {
			return 0, err
		}
		return ClusterID(getUint16(buf[off : off+2])), nil

	default:
		buf, err := t.vol.readSector(fatStart + sec)
		if err != nil {
			return 0, err
		}
		return ClusterID(getUint32(buf[off:off+4]) & 0x0FFFFFFF), nil
	}
}

// Set writes value into cluster c's entry, replicated across every FAT copy.
// FAT32 entries preserve their reserved top 4 bits.
func (t *Table) Set(c ClusterID, value ClusterID) error {
	bs := t.vol.BootSector
	sec, off := t.entrySector(c)
	fatStart := SectorID(bs.ReservedSectors)

	for copyIdx := uint8(0); copyIdx < bs.NumFATs; copyIdx++ {
		copyBase := fatStart + SectorID(uint32(copyIdx)*bs.SectorsPerFAT)

		switch bs.SizeFAT {
		case 12:
			cur, err := t.vol.readSector(copyBase + sec)
			if err != nil {
				return err
			}
			packed := uint16(value & 0x0FFF)

			if off == BytesPerSector-1 {
				next, err := t.vol.readSector(copyBase + sec + 1)
				if err != nil {
					return err
				}
				var existing uint16
				if c%2 == 0 {
					existing = uint16(cur[off]) | uint16(next[0])<<8
					existing = (existing &^ 0x0FFF) | packed
				} else {
					existing = uint16(cur[off]) | uint16(next[0])<<8
					existing = (existing & 0x000F) | (packed << 4)
				}
				cur[off] = byte(existing)
				next[0] = byte(existing >> 8)
				if err := t.vol.writeSector(copyBase+sec, cur); err != nil {
					return err
				}
				if err := t.vol.writeSector(copyBase+sec+1, next); err != nil {
					return err
				}
				continue
			}

			existing := getUint16(cur[off : off+2])
			if c%2 == 0 {
				existing = (existing &^ 0x0FFF) | packed
			} else {
				existing = (existing & 0x000F) | (packed << 4)
			}
			putUint16(cur[off:off+2], existing)
			if err := t.vol.writeSector(copyBase+sec, cur); err != nil {
				return err
			}

		case 16:
			buf, err := t.vol.readSector(copyBase + sec)
			if err != nil {
				return err
			}
			putUint16(buf[off:off+2], uint16(value))
			if err := t.vol.writeSector(copyBase+sec, buf); err != nil {
				return err
			}

		default:
			buf, err := t.vol.readSector(copyBase + sec)
			if err != nil {
				return err
			}
			existing := getUint32(buf[off : off+4])
			existing = (existing & 0xF0000000) | (uint32(value) & 0x0FFFFFFF)
			putUint32(buf[off:off+4], existing)
			if err := t.vol.writeSector(copyBase+sec, buf); err != nil {
				return err
			}
		}
	}

	switch {
	case value == free:
		t.allocator.free(c)
		if t.vol.FSInfo != nil {
			t.vol.FSInfo.onFree(c)
		}
	default:
		t.allocator.markUsed(c)
	}
	return nil
}

// MarkEOC writes this engine's canonical end-of-chain marker into c's entry.
func (t *Table) MarkEOC(c ClusterID) error {
	return t.Set(c, t.eoc())
}

// Chain walks the cluster chain starting at first, returning every cluster
// in order. It stops at the first EOC marker or at a link to cluster 0, and
// rejects cycles and links to the reserved cluster 1.
func (t *Table) Chain(first ClusterID) ([]ClusterID, error) {
	var chain []ClusterID
	seen := map[ClusterID]bool{}

	cur := first
	for cur != 0 {
		if cur < 2 {
			return nil, errors.BadImage.WithMessage("cluster chain references a reserved cluster")
		}
		if seen[cur] {
			return nil, errors.BadImage.WithMessage("cluster chain contains a cycle")
		}
		seen[cur] = true
		chain = append(chain, cur)

		if t.IsEOC(cur) {
			break
		}

		next, err := t.Get(cur)
		if err != nil {
			return nil, err
		}
		if t.IsEOC(next) {
			break
		}
		cur = next
	}
	return chain, nil
}

// FreeChain walks the chain starting at first and marks every cluster in it
// free, in both the FAT and the allocator index.
func (t *Table) FreeChain(first ClusterID) error {
	cur := first
	for cur != 0 && !t.IsEOC(cur) {
		next, err := t.Get(cur)
		if err != nil {
			return err
		}
		if err := t.Set(cur, free); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// Allocate reserves one free cluster, marks it EOC, and returns its number.
// It returns errors.NoSpace if the volume is full.
func (t *Table) Allocate() (ClusterID, error) {
	c, ok := t.allocator.allocate()
	if !ok {
		return 0, errors.NoSpace.WithMessage("no free clusters remain on this volume")
	}
	if err := t.MarkEOC(c); err != nil {
		return 0, err
	}
	if t.vol.FSInfo != nil {
		t.vol.FSInfo.onAllocate(c)
	}
	return c, nil
}

// Extend appends a freshly allocated cluster after prev, the last cluster of
// a chain, linking prev -> new -> EOC. The new
// cluster is marked EOC before the link from prev is written, so a crash
// mid-extend never leaves prev pointing at an entry with stale contents.
func (t *Table) Extend(prev ClusterID) (ClusterID, error) {
	next, err := t.Allocate()
	if err != nil {
		return 0, err
	}
	if err := t.Set(prev, next); err != nil {
		return 0, err
	}
	return next, nil
}
