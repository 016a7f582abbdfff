package fat

import (
	"strings"

	"github.com/dosimage/fatimage/errors"
)

// dirLocation identifies a directory: either the FAT12/16 root (a fixed
// region of sectors with no cluster chain) or an ordinary cluster chain
// (every subdirectory, and the FAT32 root).
type dirLocation struct {
	isFixedRoot bool
	cluster     ClusterID
}

// DirIterator walks the entries of one directory in on-disk order, crossing
// sector and cluster boundaries transparently. Its state mirrors the
// current_cluster/current_sector/current_entry state machine every FAT
// directory reader needs, kept here instead of duplicated per caller.
type DirIterator struct {
	vol   *Volume
	loc   dirLocation
	chain []ClusterID

	chainIdx  int
	sectorIdx uint32
	entryIdx  int

	sector    []byte
	sectorAbs SectorID
	loaded    bool
}

func newRootIterator(vol *Volume) (*DirIterator, error) {
	if vol.BootSector.IsFAT32() {
		return newDirIterator(vol, vol.RootDirCluster())
	}
	return &DirIterator{vol: vol, loc: dirLocation{isFixedRoot: true}}, nil
}

func newDirIterator(vol *Volume, cluster ClusterID) (*DirIterator, error) {
	chain, err := vol.Table.Chain(cluster)
	if err != nil {
		return nil, err
	}
	return &DirIterator{vol: vol, loc: dirLocation{cluster: cluster}, chain: chain}, nil
}

func (it *DirIterator) currentSector() (SectorID, bool) {
	if it.loc.isFixedRoot {
		if it.sectorIdx >= it.vol.BootSector.RootDirSectors {
			return 0, false
		}
		return it.vol.BootSector.RootDirStart + SectorID(it.sectorIdx), true
	}
	if it.chainIdx >= len(it.chain) {
		return 0, false
	}
	return it.vol.BootSector.ClusterToSector(it.chain[it.chainIdx]) + SectorID(it.sectorIdx), true
}

func (it *DirIterator) advanceSector() bool {
	it.sectorIdx++
	it.entryIdx = 0
	it.loaded = false
	if it.loc.isFixedRoot {
		return it.sectorIdx < it.vol.BootSector.RootDirSectors
	}
	if it.sectorIdx >= uint32(it.vol.BootSector.SectorsPerCluster) {
		it.sectorIdx = 0
		it.chainIdx++
	}
	return it.chainIdx < len(it.chain)
}

// Next returns the next entry in the directory, skipping deleted slots but
// not the end-of-directory marker: when it reaches a 0x00 first byte, it
// reports the end of iteration, matching every FAT directory reader's
// "stop at the first never-used slot" rule.
func (it *DirIterator) Next() (*Dirent, error) {
	for {
		sec, ok := it.currentSector()
		if !ok {
			return nil, nil
		}
		if !it.loaded || it.sectorAbs != sec {
			buf, err := it.vol.readSector(sec)
			if err != nil {
				return nil, err
			}
			it.sector, it.sectorAbs, it.loaded = buf, sec, true
		}

		entriesPerSector := BytesPerSector / DirentSize
		if it.entryIdx >= entriesPerSector {
			if !it.advanceSector() {
				return nil, nil
			}
			continue
		}

		raw := DecodeRawDirent(it.sector[it.entryIdx*DirentSize : (it.entryIdx+1)*DirentSize])
		if raw.IsEndOfDirectory() {
			return nil, nil
		}

		d := &Dirent{Raw: raw, SectorIdx: uint32(sec), EntryIndex: it.entryIdx}
		if !it.loc.isFixedRoot {
			d.Cluster = it.chain[it.chainIdx]
		}
		it.entryIdx++

		if raw.Name[0] == direntFreeMarker {
			continue
		}
		return d, nil
	}
}

// writeDirent rewrites the 32 bytes backing d's current location.
func writeDirent(vol *Volume, d *Dirent) error {
	sec := SectorID(d.SectorIdx)
	buf, err := vol.readSector(sec)
	if err != nil {
		return err
	}
	copy(buf[d.EntryIndex*DirentSize:(d.EntryIndex+1)*DirentSize], d.Raw.Encode())
	return vol.writeSector(sec, buf)
}

// splitPath breaks a path into its components. Both "/" and "\" separate
// components, and empty segments are dropped so leading/trailing/doubled
// separators are tolerated.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// ResolvePath walks path component by component from the root directory
// and returns the entry it names. An empty path (or "/") names the root,
// which has no backing dirent, and is rejected with errors.BadArgument.
func ResolvePath(vol *Volume, path string) (*Dirent, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return nil, errors.BadArgument.WithMessage("path must name a file or directory, not the root")
	}

	it, err := newRootIterator(vol)
	if err != nil {
		return nil, err
	}

	var current *Dirent
	for i, comp := range components {
		name, ext, err := ToShortName(comp)
		if err != nil {
			return nil, err
		}

		var found *Dirent
		for {
			d, err := it.Next()
			if err != nil {
				return nil, err
			}
			if d == nil {
				break
			}
			// Volume labels and long-name noise can collide with an 8.3
			// name byte-for-byte; neither is addressable by path.
			if d.Raw.Attributes&AttrVolumeID != 0 {
				continue
			}
			if d.Raw.Name == name && d.Raw.Extension == ext {
				found = d
				break
			}
		}
		if found == nil {
			return nil, errors.BadArgument.WithMessage(pathNotFoundMessage(path))
		}
		current = found

		if i < len(components)-1 {
			if !found.Raw.IsDirectory() {
				return nil, errors.BadArgument.WithMessage(found.DisplayNameOrPath(comp) + " is not a directory")
			}
			it, err = newDirIterator(vol, found.Raw.FirstCluster())
			if err != nil {
				return nil, err
			}
		}
	}
	return current, nil
}

func pathNotFoundMessage(path string) string {
	return "path not found: " + path
}

// DisplayNameOrPath is a small helper so error messages can name either the
// decoded short name or the path component the caller was looking for.
func (d *Dirent) DisplayNameOrPath(fallback string) string {
	if d == nil {
		return fallback
	}
	return d.Raw.DisplayName()
}

// ListDirectory returns every live entry in the directory named by path
// ("" or "/" for the root).
func ListDirectory(vol *Volume, path string) ([]*Dirent, error) {
	var it *DirIterator
	var err error

	components := splitPath(path)
	if len(components) == 0 {
		it, err = newRootIterator(vol)
	} else {
		target, rerr := ResolvePath(vol, path)
		if rerr != nil {
			return nil, rerr
		}
		if !target.Raw.IsDirectory() {
			return nil, errors.BadArgument.WithMessage(path + " is not a directory")
		}
		it, err = newDirIterator(vol, target.Raw.FirstCluster())
	}
	if err != nil {
		return nil, err
	}

	var entries []*Dirent
	for {
		d, err := it.Next()
		if err != nil {
			return nil, err
		}
		if d == nil {
			return entries, nil
		}
		entries = append(entries, d)
	}
}

// getFreeDirent finds the first free (deleted, or past the highest used
// entry) slot in the directory rooted at loc, extending the directory by
// one cluster if it's a cluster chain and every existing slot is in use.
// The fixed-size FAT12/16 root cannot be extended, so callers targeting it
// get errors.NoSpace once it's full: this mirrors mdir's own "directory
// full" failure rather than silently succeeding.
//
// The caller must check the returned error directly; an earlier generation
// of this scan tested the assignment of the lookup's result instead of its
// return value, which always evaluated true.
func getFreeDirent(vol *Volume, loc dirLocation) (*Dirent, error) {
	var it *DirIterator
	var err error
	if loc.isFixedRoot {
		it = &DirIterator{vol: vol, loc: dirLocation{isFixedRoot: true}}
	} else {
		it, err = newDirIterator(vol, loc.cluster)
		if err != nil {
			return nil, err
		}
	}

	entriesPerSector := BytesPerSector / DirentSize
	for {
		sec, ok := it.currentSector()
		if !ok {
			break
		}
		buf, err := vol.readSector(sec)
		if err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerSector; i++ {
			raw := DecodeRawDirent(buf[i*DirentSize : (i+1)*DirentSize])
			if raw.IsFree() {
				d := &Dirent{SectorIdx: uint32(sec), EntryIndex: i}
				if !loc.isFixedRoot {
					d.Cluster = it.chain[it.chainIdx]
				}
				return d, nil
			}
		}
		if !it.advanceSector() {
			break
		}
	}

	if loc.isFixedRoot {
		return nil, errors.NoSpace.WithMessage("root directory is full")
	}

	last := it.chain[len(it.chain)-1]
	newCluster, err := vol.Table.Extend(last)
	if err != nil {
		return nil, err
	}
	if err := zeroCluster(vol, newCluster); err != nil {
		return nil, err
	}

	firstSector := vol.BootSector.ClusterToSector(newCluster)
	return &Dirent{Cluster: newCluster, SectorIdx: uint32(firstSector), EntryIndex: 0}, nil
}

func zeroCluster(vol *Volume, c ClusterID) error {
	zero := make([]byte, BytesPerSector)
	for s := uint32(0); s < uint32(vol.BootSector.SectorsPerCluster); s++ {
		if err := vol.WriteClusterSector(c, s, zero); err != nil {
			return err
		}
	}
	return nil
}

// Mkdir creates a new, empty subdirectory named by path. It fails with
// errors.AlreadyExists if an entry of that name already exists, and
// errors.BadArgument if the parent doesn't exist or isn't a directory.
func Mkdir(vol *Volume, path string) error {
	components := splitPath(path)
	if len(components) == 0 {
		return errors.BadArgument.WithMessage("cannot create the root directory")
	}
	leaf := components[len(components)-1]
	name, ext, err := ToShortName(leaf)
	if err != nil {
		return err
	}

	parentLoc := dirLocation{isFixedRoot: !vol.BootSector.IsFAT32()}
	if len(components) > 1 {
		parentPath := strings.Join(components[:len(components)-1], "/")
		parent, err := ResolvePath(vol, parentPath)
		if err != nil {
			return err
		}
		if !parent.Raw.IsDirectory() {
			return errors.BadArgument.WithMessage(parentPath + " is not a directory")
		}
		parentLoc = dirLocation{cluster: parent.Raw.FirstCluster()}
	} else if vol.BootSector.IsFAT32() {
		parentLoc = dirLocation{cluster: vol.RootDirCluster()}
	}

	if existing, _ := ResolvePath(vol, path); existing != nil {
		return errors.AlreadyExists.WithMessage(path + " already exists")
	}

	newCluster, err := vol.Table.Allocate()
	if err != nil {
		return err
	}
	if err := zeroCluster(vol, newCluster); err != nil {
		return err
	}

	date, timeVal := PackDateTime(vol.Clock)

	dot := RawDirent{Attributes: AttrDirectory, CreatedDate: date, CreatedTime: timeVal, LastModifiedDate: date, LastModifiedTime: timeVal, LastAccessedDate: date}
	dot.Name = [8]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dot.Extension = [3]byte{' ', ' ', ' '}
	dot.SetFirstCluster(newCluster)

	dotdot := dot
	dotdot.Name = [8]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' '}
	if parentLoc.isFixedRoot {
		dotdot.SetFirstCluster(0)
	} else {
		dotdot.SetFirstCluster(parentLoc.cluster)
	}

	buf := make([]byte, BytesPerSector)
	copy(buf[0:DirentSize], dot.Encode())
	copy(buf[DirentSize:2*DirentSize], dotdot.Encode())
	if err := vol.WriteClusterSector(newCluster, 0, buf); err != nil {
		return err
	}

	slot, err := getFreeDirent(vol, parentLoc)
	if err != nil {
		return err
	}
	slot.Raw = RawDirent{
		Name: name, Extension: ext, Attributes: AttrDirectory,
		CreatedDate: date, CreatedTime: timeVal,
		LastModifiedDate: date, LastModifiedTime: timeVal,
		LastAccessedDate: date,
	}
	slot.Raw.SetFirstCluster(newCluster)
	if err := writeDirent(vol, slot); err != nil {
		return err
	}
	return vol.Flush()
}
