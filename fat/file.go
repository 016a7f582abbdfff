package fat

import (
	"bytes"
	"io"
	"math"
	"strings"

	"github.com/dosimage/fatimage/errors"
)

// OverwritePrompt is the collaborator consulted before an existing file is
// replaced. Implementations return false to abort the operation without
// error (the caller chose not to overwrite) or true to proceed.
type OverwritePrompt interface {
	Confirm(path string) bool
}

// AlwaysOverwrite is an OverwritePrompt that never asks.
type AlwaysOverwrite struct{}

func (AlwaysOverwrite) Confirm(string) bool { return true }

// NeverOverwrite is an OverwritePrompt that always declines, so an existing
// file is left untouched and CreateFile returns without error.
type NeverOverwrite struct{}

func (NeverOverwrite) Confirm(string) bool { return false }

// CreateFile writes data as the contents of path, creating it if it
// doesn't exist and, if it does, consulting prompt before overwriting.
// The file's existing cluster chain (if any) is freed only after the new
// one has been fully written and linked in, so a crash mid-write leaves
// either the old contents or the new ones intact, never a partial mix.
func CreateFile(vol *Volume, path string, data io.Reader, prompt OverwritePrompt) error {
	components := splitPath(path)
	if len(components) == 0 {
		return errors.BadArgument.WithMessage("path must name a file")
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

	existing, _ := ResolvePath(vol, path)
	if existing != nil {
		if existing.Raw.IsDirectory() {
			return errors.Conflict.WithMessage(path + " is a directory")
		}
		if !prompt.Confirm(path) {
			return nil
		}
	}

	firstCluster, size, err := writeStream(vol, data)
	if err != nil {
		return err
	}

	date, timeVal := PackDateTime(vol.Clock)

	if existing != nil {
		oldChain := existing.Raw.FirstCluster()
		existing.Raw.SetFirstCluster(firstCluster)
		existing.Raw.FileSize = size
		existing.Raw.LastModifiedDate, existing.Raw.LastModifiedTime = date, timeVal
		if err := writeDirent(vol, existing); err != nil {
			return err
		}
		if oldChain != 0 {
			if err := vol.Table.FreeChain(oldChain); err != nil {
				return err
			}
		}
		return vol.Flush()
	}

	slot, err := getFreeDirent(vol, parentLoc)
	if err != nil {
		return err
	}
	cdate, ctime, chund := PackTimestamp(vol.Clock)
	slot.Raw = RawDirent{
		Name: name, Extension: ext, Attributes: AttrArchive,
		CreatedDate: cdate, CreatedTime: ctime, CreatedTimeTenths: chund,
		LastModifiedDate: date, LastModifiedTime: timeVal,
		LastAccessedDate: date,
		FileSize:         size,
	}
	slot.Raw.SetFirstCluster(firstCluster)
	if err := writeDirent(vol, slot); err != nil {
		return err
	}
	return vol.Flush()
}

// writeStream copies data into a freshly allocated cluster chain and
// returns its first cluster (0 if data was empty) and total byte count.
// Each new cluster is marked end-of-chain before the link from the
// previous cluster is written, so an interrupted write never leaves a
// cluster in the chain with stale or uninitialized successor data.
func writeStream(vol *Volume, data io.Reader) (ClusterID, uint32, error) {
	clusterSize := int(vol.BootSector.BytesPerCluster)
	buf := make([]byte, clusterSize)

	var first, prev ClusterID
	var total uint64

	for {
		n, readErr := io.ReadFull(data, buf)
		if n > 0 {
			if total+uint64(n) > math.MaxUint32 {
				if first != 0 {
					_ = vol.Table.FreeChain(first)
				}
				return 0, 0, errors.BadArgument.WithMessage("source is larger than a FAT volume can address")
			}

			c, err := vol.Table.Allocate()
			if err != nil {
				if first != 0 {
					_ = vol.Table.FreeChain(first)
				}
				return 0, 0, err
			}
			if first == 0 {
				first = c
			} else {
				if err := vol.Table.Set(prev, c); err != nil {
					return 0, 0, err
				}
			}
			prev = c

			// Write every sector of the cluster, not just the ones the
			// final short read touched: bytes past n must land on disk as
			// zero padding, never whatever the backing store held before.
			chunk := buf[:n]
			spc := uint32(vol.BootSector.SectorsPerCluster)
			for sectorIdx := uint32(0); sectorIdx < spc; sectorIdx++ {
				start := int(sectorIdx) * BytesPerSector
				end := start + BytesPerSector
				sectorBuf := make([]byte, BytesPerSector)
				if start < len(chunk) {
					if end > len(chunk) {
						copy(sectorBuf, chunk[start:])
					} else {
						copy(sectorBuf, chunk[start:end])
					}
				}
				if err := vol.WriteClusterSector(c, sectorIdx, sectorBuf); err != nil {
					return 0, 0, err
				}
			}
			total += uint64(n)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			if first != 0 {
				_ = vol.Table.FreeChain(first)
			}
			return 0, 0, errors.IoError.Wrap(readErr)
		}
	}

	return first, uint32(total), nil
}

// ReadFile returns the full contents of the file named by path.
func ReadFile(vol *Volume, path string) ([]byte, error) {
	dirent, err := ResolvePath(vol, path)
	if err != nil {
		return nil, err
	}
	if dirent.Raw.IsDirectory() {
		return nil, errors.Conflict.WithMessage(path + " is a directory")
	}

	var out bytes.Buffer
	remaining := dirent.Raw.FileSize
	cluster := dirent.Raw.FirstCluster()

	for remaining > 0 && cluster != 0 {
		for sectorIdx := uint32(0); sectorIdx < uint32(vol.BootSector.SectorsPerCluster) && remaining > 0; sectorIdx++ {
			buf, err := vol.ReadClusterSector(cluster, sectorIdx)
			if err != nil {
				return nil, err
			}
			take := uint32(len(buf))
			if take > remaining {
				take = remaining
			}
			out.Write(buf[:take])
			remaining -= take
		}
		if remaining == 0 {
			break
		}
		next, err := vol.Table.Get(cluster)
		if err != nil {
			return nil, err
		}
		if vol.Table.IsEOC(next) {
			break
		}
		cluster = next
	}
	return out.Bytes(), nil
}

// Truncate frees every cluster past the first newSize bytes of path's
// chain and updates its directory entry's size. Growing a file is not
// supported; callers that need that should use CreateFile to replace the
// whole stream instead.
func Truncate(vol *Volume, path string, newSize uint32) error {
	dirent, err := ResolvePath(vol, path)
	if err != nil {
		return err
	}
	if dirent.Raw.IsDirectory() {
		return errors.Conflict.WithMessage(path + " is a directory")
	}
	if newSize > dirent.Raw.FileSize {
		return errors.BadArgument.WithMessage("truncate cannot grow a file")
	}

	if newSize == 0 {
		if first := dirent.Raw.FirstCluster(); first != 0 {
			if err := vol.Table.FreeChain(first); err != nil {
				return err
			}
		}
		dirent.Raw.SetFirstCluster(0)
		dirent.Raw.FileSize = 0
		if err := writeDirent(vol, dirent); err != nil {
			return err
		}
		return vol.Flush()
	}

	clustersNeeded := (newSize + vol.BootSector.BytesPerCluster - 1) / vol.BootSector.BytesPerCluster
	cluster := dirent.Raw.FirstCluster()
	for i := uint32(1); i < clustersNeeded; i++ {
		next, err := vol.Table.Get(cluster)
		if err != nil {
			return err
		}
		cluster = next
	}

	tail, err := vol.Table.Get(cluster)
	if err != nil {
		return err
	}
	if !vol.Table.IsEOC(tail) {
		if err := vol.Table.FreeChain(tail); err != nil {
			return err
		}
	}
	if err := vol.Table.MarkEOC(cluster); err != nil {
		return err
	}

	dirent.Raw.FileSize = newSize
	if err := writeDirent(vol, dirent); err != nil {
		return err
	}
	return vol.Flush()
}
