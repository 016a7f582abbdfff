// Package fat implements the on-disk structures and operations of FAT12,
// FAT16, and FAT32 volumes: boot sector parsing and construction, the file
// allocation table, the FAT32 FSInfo sector, 8.3 directories, and file data
// streams. All state lives in a Volume handle that every operation takes
// explicitly, so one process can work on several images at once.
package fat

import (
	"io"

	"github.com/dosimage/fatimage/errors"
)

// Volume is a handle on an open FAT image: its geometry, its backing store,
// and the in-memory structures (FAT allocator index, FSInfo hint) derived
// from it. Every fat operation takes a *Volume explicitly instead of
// reaching into ambient state.
type Volume struct {
	backing       io.ReadWriteSeeker
	offsetSectors SectorID

	BootSector *BootSector
	Table      *Table
	FSInfo     *FSInfo
	Clock      Clock

	scratch [BytesPerSector]byte
}

// OpenOptions parameterizes Open.
type OpenOptions struct {
	// Offset is the number of sectors to skip at the start of backing
	// before the volume itself starts (the --offset CLI flag).
	Offset uint32
	// Clock supplies timestamps for directory entries written during this
	// session. Defaults to SystemClock.
	Clock Clock
}

// Open parses the boot sector (and, for FAT32, the FSInfo sector) from an
// already-formatted image and returns a ready-to-use Volume.
func Open(backing io.ReadWriteSeeker, opts OpenOptions) (*Volume, error) {
	vol := &Volume{
		backing:       backing,
		offsetSectors: SectorID(opts.Offset),
		Clock:         opts.Clock,
	}
	if vol.Clock == nil {
		vol.Clock = SystemClock{}
	}

	raw, err := vol.readSector(0)
	if err != nil {
		return nil, err
	}
	bs, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	vol.BootSector = bs

	table, err := newTable(vol)
	if err != nil {
		return nil, err
	}
	vol.Table = table

	if bs.IsFAT32() && bs.FSInfoSector != 0 {
		fsinfo, err := readFSInfo(vol)
		if err != nil {
			return nil, err
		}
		vol.FSInfo = fsinfo
	}

	return vol, nil
}

// NewFromFormatted wraps a backing store that Format already wrote a valid
// boot sector (and, if applicable, FSInfo sector) into, avoiding a second
// parse of structures the caller just built in memory.
func NewFromFormatted(backing io.ReadWriteSeeker, bs *BootSector, clock Clock) (*Volume, error) {
	vol := &Volume{backing: backing, BootSector: bs, Clock: clock}
	if vol.Clock == nil {
		vol.Clock = SystemClock{}
	}
	table, err := newTable(vol)
	if err != nil {
		return nil, err
	}
	vol.Table = table

	if bs.IsFAT32() && bs.FSInfoSector != 0 {
		fsinfo, err := readFSInfo(vol)
		if err != nil {
			return nil, err
		}
		vol.FSInfo = fsinfo
	}
	return vol, nil
}

// readSector reads absolute sector id (relative to the start of the
// volume, i.e. already past any --offset shift) and returns a fresh copy
// of its 512 bytes. Internally it reads through the volume's one scratch
// buffer; the copy returned to the caller is what lets call sites like
// Table.Set hold two sectors' worth of data at once without them aliasing.
func (v *Volume) readSector(id SectorID) ([]byte, error) {
	absolute := int64(id+v.offsetSectors) * BytesPerSector
	if _, err := v.backing.Seek(absolute, io.SeekStart); err != nil {
		return nil, errors.IoError.Wrap(err)
	}
	if _, err := io.ReadFull(v.backing, v.scratch[:]); err != nil {
		return nil, errors.IoError.Wrap(err)
	}
	out := make([]byte, BytesPerSector)
	copy(out, v.scratch[:])
	return out, nil
}

// writeSector writes exactly one 512-byte sector at absolute sector id.
func (v *Volume) writeSector(id SectorID, data []byte) error {
	if len(data) != BytesPerSector {
		return errors.BadArgument.WithMessage("writeSector requires exactly 512 bytes")
	}
	absolute := int64(id+v.offsetSectors) * BytesPerSector
	if _, err := v.backing.Seek(absolute, io.SeekStart); err != nil {
		return errors.IoError.Wrap(err)
	}
	if _, err := v.backing.Write(data); err != nil {
		return errors.IoError.Wrap(err)
	}
	return nil
}

// ReadClusterSector reads the n'th (0-based) sector of cluster c.
func (v *Volume) ReadClusterSector(c ClusterID, n uint32) ([]byte, error) {
	if n >= uint32(v.BootSector.SectorsPerCluster) {
		return nil, errors.BadArgument.WithMessage("sector index exceeds sectors per cluster")
	}
	return v.readSector(v.BootSector.ClusterToSector(c) + SectorID(n))
}

// WriteClusterSector writes the n'th (0-based) sector of cluster c.
func (v *Volume) WriteClusterSector(c ClusterID, n uint32, data []byte) error {
	if n >= uint32(v.BootSector.SectorsPerCluster) {
		return errors.BadArgument.WithMessage("sector index exceeds sectors per cluster")
	}
	return v.writeSector(v.BootSector.ClusterToSector(c)+SectorID(n), data)
}

// Flush writes back any deferred volume state, currently just a dirty
// FSInfo sector. Sector data itself is written through synchronously.
func (v *Volume) Flush() error {
	if fsinfo := v.FSInfo; fsinfo != nil && fsinfo.dirty {
		return fsinfo.flush(v)
	}
	return nil
}

// RootDirCluster returns the first cluster of the root directory on a
// FAT32 volume. Callers must not call this on FAT12/16 volumes, where the
// root directory is a fixed-size area, not a cluster chain; check
// BootSector.IsFAT32 first.
func (v *Volume) RootDirCluster() ClusterID {
	return ClusterID(v.BootSector.RootCluster)
}
