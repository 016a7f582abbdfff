package fat

import (
	"fmt"
	"strings"

	"github.com/dosimage/fatimage/errors"
)

// Cluster-count brackets that separate the three FAT flavors. The gap
// 4085-4086 is intentionally unallocatable: Windows' fastfat.sys and Linux's
// msdos.ko/vfat.ko disagree about which flavor a disk in that range is.
const (
	MaxClust12 = 4084
	MinClust16 = 4087
	MaxClust16 = 65524
	MinClust32 = 65525
	MaxClust32 = 268435446
)

// BootSector holds both the raw BPB fields and the values derived from them
// at parse or establish time.
type BootSector struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntries       uint16
	TotalSectors16    uint16
	MediaDescriptor   uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	// FAT32-only fields. Zero for FAT12/16.
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16

	// Common extended fields, present on every flavor once boot_jump[1]
	// gates them in.
	DriveNumber uint8
	BootSig     uint8
	VolumeID    uint32
	VolumeLabel [11]byte
	FSTypeLabel [8]byte

	// Derived, not stored on disk.
	SizeFAT           int
	SectorsPerFAT     uint32
	RootDirSectors    uint32
	RootDirStart      SectorID
	FirstDataSector   SectorID
	TotalClusters     uint32
	BytesPerCluster   uint32
	DirentsPerCluster int
	TotalSectors      uint32
}

// totalSectorsRaw returns whichever of TotalSectors16/TotalSectors32 is
// authoritative.
func (bs *BootSector) totalSectorsRaw() uint32 {
	if bs.TotalSectors16 != 0 {
		return uint32(bs.TotalSectors16)
	}
	return bs.TotalSectors32
}

// IsFAT32 reports whether this volume uses the FAT32 layout (root directory
// is a cluster chain, not a fixed-size area).
func (bs *BootSector) IsFAT32() bool { return bs.RootEntries == 0 }

// ClusterToSector returns the first sector of cluster c in the data area.
func (bs *BootSector) ClusterToSector(c ClusterID) SectorID {
	return bs.FirstDataSector + SectorID(uint32(c-2)*uint32(bs.SectorsPerCluster))
}

// fatByteOffset returns the byte offset of cluster c's entry from the start
// of a FAT copy (not from the start of a sector).
func (bs *BootSector) fatByteOffset(c ClusterID) uint32 {
	switch bs.SizeFAT {
	case 12:
		return uint32(c) + uint32(c)/2
	case 16:
		return uint32(c) * 2
	default:
		return uint32(c) * 4
	}
}

// determineSizeFAT classifies a volume by its cluster count, per Microsoft's
// FAT specification (fatgen103, p.14): this is the only correct way to tell
// the flavors apart.
func determineSizeFAT(totalClusters uint32) int {
	if totalClusters <= MaxClust12 {
		return 12
	}
	if totalClusters <= MaxClust16 {
		return 16
	}
	return 32
}

func alignUp(value, align uint32) uint32 {
	if align == 0 {
		return value
	}
	return (value + align - 1) / align * align
}

func cdiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

func computeCHS(totalSectors uint32) (heads, spt uint16) {
	if uint64(totalSectors) > uint64(65535)*16*63 {
		return 255, 63
	}

	spt = 17
	cylTimesHeads := totalSectors / uint32(spt)
	h := (cylTimesHeads + 1023) >> 10
	if h < 4 {
		h = 4
	}

	if cylTimesHeads >= h<<10 || h > 16 {
		spt = 31
		h = 16
		cylTimesHeads = totalSectors / uint32(spt)
	}

	if cylTimesHeads >= h<<10 {
		spt = 63
		h = 16
	}

	return uint16(h), spt
}

// EstablishOptions parameterizes BPB construction for a newly formatted
// volume. Zero values request the implementation's default behavior.
type EstablishOptions struct {
	// TotalSectors is the size of the volume portion of the image, in
	// 512-byte sectors; it already accounts for any --offset shift.
	TotalSectors uint32
	// SizeFATHint forces the FAT flavor to 12, 16, or 32. 0 means "choose
	// automatically".
	SizeFATHint int
	// NumFATs is the number of FAT copies; 0 means 2.
	NumFATs uint8
	// ReservedSectors overrides the default reserved-sector count; 0 means
	// "derive" (1 for FAT12/16, 32 for FAT32).
	ReservedSectors uint16
	// InfoSector and BackupBootSector override FAT32 reserved-region
	// placement; 0 means "derive".
	InfoSector       uint16
	BackupBootSector uint16
	// HiddenSectors is recorded verbatim; it corresponds to the --offset
	// input.
	HiddenSectors uint32
	// OEMName is copied, space-padded/truncated to 8 bytes.
	OEMName string
}

// Establish computes a complete BootSector for a brand-new volume of the
// requested size, following the same sizing ladder as mkfs.fat: try
// progressively larger clusters until one FAT flavor's cluster count fits
// its bracket, then lock in geometry, alignment, and FAT32 reserved-region
// placement.
func Establish(opts EstablishOptions) (*BootSector, error) {
	if opts.TotalSectors == 0 {
		return nil, errors.BadArgument.WithMessage("total sector count must be nonzero")
	}

	numFATs := opts.NumFATs
	if numFATs == 0 {
		numFATs = 2
	}

	bs := &BootSector{
		JumpBoot:        [3]byte{0xEB, 0x00, 0x90},
		BytesPerSector:  BytesPerSector,
		NumFATs:         numFATs,
		HiddenSectors:   opts.HiddenSectors,
		MediaDescriptor: 0xF8,
		RootEntries:     512,
		TotalSectors:    opts.TotalSectors,
	}
	copy(bs.OEMName[:], padRight(opts.OEMName, 8))

	heads, spt := computeCHS(opts.TotalSectors)
	bs.Heads, bs.SectorsPerTrack = heads, spt

	sectorsPerCluster := uint32(4)
	if geom, ok := lookupFloppyGeometry(uint(opts.TotalSectors)); ok {
		sectorsPerCluster = uint32(geom.SectorsPerCluster)
		bs.RootEntries = geom.RootEntries
		bs.MediaDescriptor = uint8(geom.MediaDescriptor)
		bs.SectorsPerTrack = geom.SectorsPerTrack
		bs.Heads = geom.Heads
	}

	sizeFAT := opts.SizeFATHint
	const bytesPerMiB = 1024 * 1024
	if sizeFAT == 0 && uint64(opts.TotalSectors)*BytesPerSector >= 512*bytesPerMiB {
		sizeFAT = 32
	}

	if sizeFAT == 32 {
		bs.RootEntries = 0
		switch {
		case opts.TotalSectors > 32*1024*1024*2:
			sectorsPerCluster = 64
		case opts.TotalSectors > 16*1024*1024*2:
			sectorsPerCluster = 32
		case opts.TotalSectors > 8*1024*1024*2:
			sectorsPerCluster = 16
		case opts.TotalSectors > 260*1024*2:
			sectorsPerCluster = 8
		default:
			sectorsPerCluster = 1
		}
	}

	reservedSectors := uint32(opts.ReservedSectors)
	if reservedSectors == 0 {
		if sizeFAT == 32 {
			reservedSectors = 32
		} else {
			reservedSectors = 1
		}
	}

	alignStructures := opts.TotalSectors > 8192
	align := func(sectors, clustSize uint32) uint32 {
		if !alignStructures {
			return sectors
		}
		return alignUp(sectors, clustSize)
	}

	rootDirSectors := cdiv(uint32(bs.RootEntries)*DirentSize, BytesPerSector)

	var clust12, clust16, clust32 uint32
	var fatlen12, fatlen16, fatlen32 uint32

	for ; sectorsPerCluster <= 128; sectorsPerCluster <<= 1 {
		fatdata32 := opts.TotalSectors - align(reservedSectors, sectorsPerCluster)
		fatdata1216 := fatdata32 - align(rootDirSectors, sectorsPerCluster)

		clust12 = 2 * (fatdata1216*512 + uint32(numFATs)*3) / (2*sectorsPerCluster*512 + uint32(numFATs)*3)
		fatlen12 = align(cdiv(((clust12+2)*3+1)>>1, BytesPerSector), sectorsPerCluster)
		clust12 = (fatdata1216 - uint32(numFATs)*fatlen12) / sectorsPerCluster
		maxclust12 := uint32(fatlen12 * 2 * 512 / 3)
		if maxclust12 > MaxClust12 {
			maxclust12 = MaxClust12
		}
		if clust12 > maxclust12 {
			clust12 = 0
		}

		clust16 = (fatdata1216*512 + uint32(numFATs)*4) / (sectorsPerCluster*512 + uint32(numFATs)*2)
		fatlen16 = align(cdiv((clust16+2)*2, BytesPerSector), sectorsPerCluster)
		clust16 = (fatdata1216 - uint32(numFATs)*fatlen16) / sectorsPerCluster
		maxclust16 := uint32(fatlen16 * 512 / 2)
		if maxclust16 > MaxClust16 {
			maxclust16 = MaxClust16
		}
		if clust16 > maxclust16 {
			clust16 = 0
		}
		if clust16 != 0 && clust16 < MinClust16 {
			clust16 = 0
		}

		clust32 = (fatdata32*512 + uint32(numFATs)*8) / (sectorsPerCluster*512 + uint32(numFATs)*4)
		fatlen32 = align(cdiv((clust32+2)*4, BytesPerSector), sectorsPerCluster)
		clust32 = (fatdata32 - uint32(numFATs)*fatlen32) / sectorsPerCluster
		maxclust32 := uint32(fatlen32 * 512 / 4)
		if maxclust32 > MaxClust32 {
			maxclust32 = MaxClust32
		}
		if clust32 > maxclust32 {
			clust32 = 0
		}
		if clust32 != 0 && clust32 < MinClust32 && sizeFAT != 32 {
			clust32 = 0
		}

		ok12 := clust12 != 0 && (sizeFAT == 0 || sizeFAT == 12)
		ok16 := clust16 != 0 && (sizeFAT == 0 || sizeFAT == 16)
		ok32 := clust32 != 0 && sizeFAT == 32
		if ok12 || ok16 || ok32 {
			break
		}
	}

	if sizeFAT == 0 {
		if clust16 > clust12 {
			sizeFAT = 16
		} else {
			sizeFAT = 12
		}
	}

	var clusterCount, sectorsPerFAT uint32
	switch sizeFAT {
	case 12:
		clusterCount, sectorsPerFAT = clust12, fatlen12
	case 16:
		clusterCount, sectorsPerFAT = clust16, fatlen16
	case 32:
		clusterCount, sectorsPerFAT = clust32, fatlen32
	}
	if clusterCount == 0 {
		return nil, errors.NoSpace.WithMessage("not enough clusters to make a viable file system")
	}

	reservedSectors = align(reservedSectors, sectorsPerCluster)
	if alignStructures {
		bs.RootEntries = uint16(alignUp(rootDirSectors, sectorsPerCluster) * (BytesPerSector / DirentSize))
	}

	bs.SectorsPerCluster = uint8(sectorsPerCluster)
	bs.ReservedSectors = uint16(reservedSectors)
	bs.SizeFAT = sizeFAT
	bs.SectorsPerFAT = sectorsPerFAT
	bs.TotalClusters = clusterCount

	if opts.TotalSectors > 0xFFFF {
		bs.TotalSectors32 = opts.TotalSectors
	} else {
		bs.TotalSectors16 = uint16(opts.TotalSectors)
	}

	if sizeFAT == 32 {
		bs.SectorsPerFAT32 = sectorsPerFAT
	} else {
		bs.SectorsPerFAT16 = uint16(sectorsPerFAT)
	}

	copy(bs.VolumeLabel[:], padRight("NO NAME", 11))
	copy(bs.FSTypeLabel[:], padRight(fmt.Sprintf("FAT%d", sizeFAT), 8))

	if sizeFAT == 32 {
		bs.RootCluster = 2
		bs.JumpBoot[1] = 0x58

		infoSector := opts.InfoSector
		if infoSector == 0 {
			infoSector = 1
		}
		bs.FSInfoSector = infoSector

		backupBoot := opts.BackupBootSector
		if backupBoot == 0 {
			switch {
			case reservedSectors >= 7 && infoSector != 6:
				backupBoot = 6
			case reservedSectors > uint32(3+infoSector) &&
				infoSector != uint16(reservedSectors-2) && infoSector != uint16(reservedSectors-1):
				backupBoot = uint16(reservedSectors - 2)
			case reservedSectors >= 3 && infoSector != uint16(reservedSectors-1):
				backupBoot = uint16(reservedSectors - 1)
			}
		}
		if backupBoot != 0 {
			if backupBoot == infoSector {
				return nil, errors.BadArgument.WithMessage("backup boot sector must not be the same as the info sector")
			}
			if uint32(backupBoot) >= reservedSectors {
				return nil, errors.BadArgument.WithMessage("backup boot sector must be a reserved sector")
			}
		}
		bs.BackupBootSector = backupBoot
	} else {
		bs.JumpBoot[1] = 0x3C
	}

	bs.rederive()
	return bs, nil
}

// rederive recomputes every field that is a deterministic function of the
// others. Called after Establish and after Parse.
func (bs *BootSector) rederive() {
	bs.TotalSectors = bs.totalSectorsRaw()
	bs.RootDirSectors = cdiv(uint32(bs.RootEntries)*DirentSize, BytesPerSector)

	if bs.IsFAT32() {
		bs.SectorsPerFAT = bs.SectorsPerFAT32
		bs.RootDirStart = 0
		bs.FirstDataSector = SectorID(uint32(bs.ReservedSectors) + uint32(bs.NumFATs)*bs.SectorsPerFAT)
	} else {
		if bs.SectorsPerFAT16 != 0 {
			bs.SectorsPerFAT = uint32(bs.SectorsPerFAT16)
		}
		bs.RootDirStart = SectorID(uint32(bs.ReservedSectors) + uint32(bs.NumFATs)*bs.SectorsPerFAT)
		bs.FirstDataSector = bs.RootDirStart + SectorID(bs.RootDirSectors)
	}

	bs.BytesPerCluster = uint32(bs.BytesPerSector) * uint32(bs.SectorsPerCluster)
	bs.DirentsPerCluster = int(bs.BytesPerCluster) / DirentSize

	dataSectors := bs.TotalSectors - uint32(bs.FirstDataSector)
	if bs.SectorsPerCluster > 0 {
		bs.TotalClusters = dataSectors / uint32(bs.SectorsPerCluster)
	}
	bs.SizeFAT = determineSizeFAT(bs.TotalClusters)
	if bs.IsFAT32() {
		bs.SizeFAT = 32
	}
}

// Parse validates and decodes a 512-byte boot sector read from an existing
// image.
func Parse(sector []byte) (*BootSector, error) {
	if len(sector) != BytesPerSector {
		return nil, errors.BadImage.WithMessage(
			fmt.Sprintf("boot sector must be %d bytes, got %d", BytesPerSector, len(sector)))
	}

	bs := &BootSector{}
	copy(bs.JumpBoot[:], sector[0:3])
	copy(bs.OEMName[:], sector[3:11])
	bs.BytesPerSector = getUint16(sector[11:13])
	bs.SectorsPerCluster = sector[13]
	bs.ReservedSectors = getUint16(sector[14:16])
	bs.NumFATs = sector[16]
	bs.RootEntries = getUint16(sector[17:19])
	bs.TotalSectors16 = getUint16(sector[19:21])
	bs.MediaDescriptor = sector[21]
	bs.SectorsPerFAT16 = getUint16(sector[22:24])
	bs.SectorsPerTrack = getUint16(sector[24:26])
	bs.Heads = getUint16(sector[26:28])
	bs.HiddenSectors = getUint32(sector[28:32])
	bs.TotalSectors32 = getUint32(sector[32:36])

	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, errors.BadImage.WithMessage("missing 0x55AA boot sector signature")
	}
	if bs.JumpBoot[0] != 0xEB || bs.JumpBoot[2] != 0x90 {
		return nil, errors.BadImage.WithMessage("bad boot_jump sequence")
	}
	if bs.JumpBoot[1] < 0x16 {
		return nil, errors.BadImage.WithMessage("boot_jump[1] too small to carry a BPB")
	}
	if bs.SectorsPerCluster == 0 || bs.ReservedSectors == 0 || bs.NumFATs == 0 {
		return nil, errors.BadImage.WithMessage("required BPB field is zero")
	}

	switch bs.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return nil, errors.BadImage.WithMessage(
			fmt.Sprintf("sectors_per_cluster must be a power of 2 in 1-128, got %d", bs.SectorsPerCluster))
	}

	extendedOffset := 36

	if bs.RootEntries == 0 {
		if bs.JumpBoot[1] < 0x58 {
			return nil, errors.BadImage.WithMessage("FAT32 volume missing FAT32-specific BPB fields")
		}
		bs.SectorsPerFAT32 = getUint32(sector[36:40])
		bs.ExtFlags = getUint16(sector[40:42])
		bs.FSVersion = getUint16(sector[42:44])
		bs.RootCluster = getUint32(sector[44:48])
		bs.FSInfoSector = getUint16(sector[48:50])
		bs.BackupBootSector = getUint16(sector[50:52])
		extendedOffset = 64
	} else if bs.JumpBoot[1] < 0x22 {
		return nil, errors.BadImage.WithMessage("boot_jump[1] too small for extended BPB")
	}

	if bs.TotalSectors16 == 0 {
		if bs.JumpBoot[1] < 0x22 {
			return nil, errors.BadImage.WithMessage("boot_jump[1] too small to carry total_sectors32")
		}
	}

	if len(sector) >= extendedOffset+26 {
		bs.DriveNumber = sector[extendedOffset]
		bs.BootSig = sector[extendedOffset+2]
		if bs.BootSig == 0x29 {
			bs.VolumeID = getUint32(sector[extendedOffset+3 : extendedOffset+7])
			copy(bs.VolumeLabel[:], sector[extendedOffset+7:extendedOffset+18])
			copy(bs.FSTypeLabel[:], sector[extendedOffset+18:extendedOffset+26])
		}
	}

	switch bs.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, errors.BadImage.WithMessage(
			fmt.Sprintf("bytes_per_sector must be 512/1024/2048/4096, got %d", bs.BytesPerSector))
	}

	bs.rederive()

	if bs.TotalClusters > MaxClust12 && bs.TotalClusters < MinClust16 {
		return nil, errors.BadImage.WithMessage(
			fmt.Sprintf("cluster count %d falls in the unallocatable 4085-4086 gap", bs.TotalClusters))
	}
	if bs.SizeFAT == 32 && bs.TotalClusters > MaxClust32 {
		return nil, errors.BadImage.WithMessage("cluster count exceeds FAT32 maximum")
	}
	if bs.SizeFAT == 32 && bs.RootDirSectors != 0 {
		return nil, errors.BadImage.WithMessage("root_entries is nonzero on a FAT32 volume")
	}

	return bs, nil
}

// Serialize renders bs into a 512-byte boot sector image. If overlay is
// non-nil, it must be exactly 512 bytes of caller-supplied boot code; bytes
// [0, extended-area-start+26) and the 0x55AA signature at 510-511 are still
// taken from bs so the BPB itself is never clobbered by the overlay.
func (bs *BootSector) Serialize(overlay []byte) ([]byte, error) {
	buf := make([]byte, BytesPerSector)
	if overlay != nil {
		if len(overlay) != BytesPerSector {
			return nil, errors.BadArgument.WithMessage("boot image overlay must be exactly 512 bytes")
		}
		copy(buf, overlay)
	}

	copy(buf[0:3], bs.JumpBoot[:])
	copy(buf[3:11], bs.OEMName[:])
	putUint16(buf[11:13], bs.BytesPerSector)
	buf[13] = bs.SectorsPerCluster
	putUint16(buf[14:16], bs.ReservedSectors)
	buf[16] = bs.NumFATs
	putUint16(buf[17:19], bs.RootEntries)
	putUint16(buf[19:21], bs.TotalSectors16)
	buf[21] = bs.MediaDescriptor
	putUint16(buf[22:24], bs.SectorsPerFAT16)
	putUint16(buf[24:26], bs.SectorsPerTrack)
	putUint16(buf[26:28], bs.Heads)
	putUint32(buf[28:32], bs.HiddenSectors)
	putUint32(buf[32:36], bs.TotalSectors32)

	extendedOffset := 36
	if bs.IsFAT32() {
		putUint32(buf[36:40], bs.SectorsPerFAT32)
		putUint16(buf[40:42], bs.ExtFlags)
		putUint16(buf[42:44], bs.FSVersion)
		putUint32(buf[44:48], bs.RootCluster)
		putUint16(buf[48:50], bs.FSInfoSector)
		putUint16(buf[50:52], bs.BackupBootSector)
		extendedOffset = 64
	}

	buf[extendedOffset] = bs.DriveNumber
	buf[extendedOffset+1] = 0
	buf[extendedOffset+2] = 0x29
	putUint32(buf[extendedOffset+3:extendedOffset+7], bs.VolumeID)
	copy(buf[extendedOffset+7:extendedOffset+18], bs.VolumeLabel[:])
	copy(buf[extendedOffset+18:extendedOffset+26], bs.FSTypeLabel[:])

	buf[510] = 0x55
	buf[511] = 0xAA
	return buf, nil
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
