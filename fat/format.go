package fat

import (
	"io"
)

// FormatOptions parameterizes an end-to-end format operation.
type FormatOptions struct {
	// TotalSectors is the size of the volume region of the image, in
	// 512-byte sectors, not counting any --offset shift.
	TotalSectors uint32
	// Offset is the number of sectors to skip at the start of the image
	// before the volume begins (a partition table, say).
	Offset uint32
	// SizeFATHint forces 12, 16, or 32; 0 auto-selects.
	SizeFATHint int
	// NumFATs is the number of FAT copies; 0 means 2.
	NumFATs uint8
	// VolumeLabel, if non-empty, is written as a volume-ID entry in the
	// root directory.
	VolumeLabel string
	// BootCode, if non-nil, must be exactly 512 bytes and is overlaid
	// under the BPB fields in the boot sector (the --boot flag).
	BootCode []byte
	// OEMName is recorded in the boot sector's OEM field.
	OEMName string
	Clock   Clock
}

// Format writes a complete, empty FAT volume into backing, which must
// already be sized to hold at least (Offset+TotalSectors)*512 bytes.
// It wipes the reserved region, every FAT copy, and the root directory
// area, writes the boot sector (and, for FAT32, the FSInfo sector and
// their backup copies), seeds the first two reserved FAT entries, and
// optionally records a volume label. It returns a Volume ready for
// immediate use.
func Format(backing io.ReadWriteSeeker, opts FormatOptions) (*Volume, error) {
	bs, err := Establish(EstablishOptions{
		TotalSectors:  opts.TotalSectors,
		SizeFATHint:   opts.SizeFATHint,
		NumFATs:       opts.NumFATs,
		HiddenSectors: opts.Offset,
		OEMName:       opts.OEMName,
	})
	if err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	vol := &Volume{backing: backing, offsetSectors: SectorID(opts.Offset), BootSector: bs, Clock: clock}

	wipeThrough := bs.FirstDataSector
	if bs.IsFAT32() {
		// The root directory is cluster 2 of the data area on FAT32; wipe
		// it along with the reserved region and FAT copies.
		wipeThrough += SectorID(bs.SectorsPerCluster)
	}
	zero := make([]byte, BytesPerSector)
	for s := SectorID(0); s < wipeThrough; s++ {
		if err := vol.writeSector(s, zero); err != nil {
			return nil, err
		}
	}

	bootImage, err := bs.Serialize(opts.BootCode)
	if err != nil {
		return nil, err
	}
	if err := vol.writeSector(0, bootImage); err != nil {
		return nil, err
	}

	var fsinfo *FSInfo
	if bs.IsFAT32() {
		fsinfo = NewFSInfo(SectorID(bs.FSInfoSector), bs.TotalClusters-1, 3)
		if err := vol.writeSector(fsinfo.sector, fsinfo.Serialize()); err != nil {
			return nil, err
		}
		if bs.BackupBootSector != 0 {
			if err := vol.writeSector(SectorID(bs.BackupBootSector), bootImage); err != nil {
				return nil, err
			}
			backupInfoSector := SectorID(bs.BackupBootSector) + 1
			if backupInfoSector != SectorID(bs.FSInfoSector) && uint32(backupInfoSector) < uint32(bs.ReservedSectors) {
				if err := vol.writeSector(backupInfoSector, fsinfo.Serialize()); err != nil {
					return nil, err
				}
			}
		}
	}
	vol.FSInfo = fsinfo

	table, err := newTable(vol)
	if err != nil {
		return nil, err
	}
	vol.Table = table

	entry0 := ClusterID(0x0FFFFF00 | uint32(bs.MediaDescriptor))
	if err := table.Set(0, entry0); err != nil {
		return nil, err
	}
	if err := table.MarkEOC(1); err != nil {
		return nil, err
	}

	if bs.IsFAT32() {
		if err := table.Set(ClusterID(bs.RootCluster), table.eoc()); err != nil {
			return nil, err
		}
	}

	if opts.VolumeLabel != "" {
		label, err := ToVolumeLabel(opts.VolumeLabel)
		if err != nil {
			return nil, err
		}
		loc := dirLocation{isFixedRoot: !bs.IsFAT32(), cluster: ClusterID(bs.RootCluster)}
		slot, err := getFreeDirent(vol, loc)
		if err != nil {
			return nil, err
		}
		date, timeVal := PackDateTime(clock)
		slot.Raw = RawDirent{
			Extension:  [3]byte{label[8], label[9], label[10]},
			Attributes: AttrVolumeID, CreatedDate: date, CreatedTime: timeVal,
		}
		copy(slot.Raw.Name[:], label[:8])
		if err := writeDirent(vol, slot); err != nil {
			return nil, err
		}
	}

	if err := vol.Flush(); err != nil {
		return nil, err
	}
	return vol, nil
}

// RequiredImageSize returns the byte size an image must already have
// before Format is called with these options.
func RequiredImageSize(opts FormatOptions) uint64 {
	return uint64(opts.Offset+opts.TotalSectors) * BytesPerSector
}
