package fat

import (
	"bytes"
	"encoding/binary"

	"github.com/dosimage/fatimage/errors"
	"github.com/noxer/bytewriter"
)

// FSInfo is the FAT32 free-cluster hint sector: a cache of the free-cluster
// count and the next cluster to probe when allocating, both of which are
// advisory. A reader that ignores it and recomputes from the FAT is always
// correct; this engine keeps it current because dosfstools-compatible tools
// expect it to be.
type FSInfo struct {
	sector        SectorID
	freeClusters  uint32
	nextFreeClust uint32
	dirty         bool
}

const (
	fsInfoLeadSig   = 0x41615252
	fsInfoStructSig = 0x61417272
	fsInfoTrailSig  = 0xAA550000
)

func readFSInfo(v *Volume) (*FSInfo, error) {
	sector := SectorID(v.BootSector.FSInfoSector)
	buf, err := v.readSector(sector)
	if err != nil {
		return nil, err
	}

	if getUint32(buf[0:4]) != fsInfoLeadSig || getUint32(buf[484:488]) != fsInfoStructSig {
		return nil, errors.BadImage.WithMessage("FSInfo sector signatures are invalid")
	}
	if getUint32(buf[508:512]) != fsInfoTrailSig {
		return nil, errors.BadImage.WithMessage("FSInfo sector trail signature is invalid")
	}

	return &FSInfo{
		sector:        sector,
		freeClusters:  getUint32(buf[488:492]),
		nextFreeClust: getUint32(buf[492:496]),
	}, nil
}

// NewFSInfo builds an FSInfo for a just-formatted volume.
func NewFSInfo(sector SectorID, freeClusters, nextFree uint32) *FSInfo {
	return &FSInfo{sector: sector, freeClusters: freeClusters, nextFreeClust: nextFree, dirty: true}
}

// FreeClusters returns the last-known free-cluster count.
func (f *FSInfo) FreeClusters() uint32 { return f.freeClusters }

// onAllocate is called by Table whenever it hands out cluster c, keeping
// the hint fields in sync so Flush writes a consistent sector.
func (f *FSInfo) onAllocate(c ClusterID) {
	if f.freeClusters != 0xFFFFFFFF && f.freeClusters > 0 {
		f.freeClusters--
	}
	f.nextFreeClust = uint32(c) + 1
	f.dirty = true
}

// onFree is called whenever a cluster is returned to the free pool.
func (f *FSInfo) onFree(c ClusterID) {
	if f.freeClusters != 0xFFFFFFFF {
		f.freeClusters++
	}
	if uint32(c) < f.nextFreeClust {
		f.nextFreeClust = uint32(c)
	}
	f.dirty = true
}

// Serialize renders f into a 512-byte FSInfo sector image.
func (f *FSInfo) Serialize() []byte {
	buf := make([]byte, BytesPerSector)
	writer := bytewriter.New(buf)

	binary.Write(writer, binary.LittleEndian, uint32(fsInfoLeadSig))
	writer.Write(bytes.Repeat([]byte{0}, 480)) // reserved
	binary.Write(writer, binary.LittleEndian, uint32(fsInfoStructSig))
	binary.Write(writer, binary.LittleEndian, f.freeClusters)
	binary.Write(writer, binary.LittleEndian, f.nextFreeClust)
	writer.Write(bytes.Repeat([]byte{0}, 12)) // reserved
	binary.Write(writer, binary.LittleEndian, uint32(fsInfoTrailSig))

	return buf
}

func (f *FSInfo) flush(v *Volume) error {
	if err := v.writeSector(f.sector, f.Serialize()); err != nil {
		return err
	}
	f.dirty = false
	return nil
}
