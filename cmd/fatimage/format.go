package main

import (
	"math"
	"os"

	"github.com/dosimage/fatimage/diag"
	"github.com/dosimage/fatimage/fat"
	"github.com/urfave/cli/v2"
)

func formatCommand() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "create or overwrite a FAT file system in an image file",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "F", Usage: "FAT flavor: 12, 16, or 32 (default: auto)"},
			&cli.StringFlag{Name: "n", Usage: "volume label"},
			&cli.BoolFlag{Name: "v", Usage: "verbose"},
			&cli.StringFlag{Name: "boot", Usage: "512-byte boot code to embed"},
			&cli.Uint64Flag{Name: "blocks", Usage: "image size in KiB (default: derive from an existing image)"},
			&cli.Uint64Flag{Name: "offset", Usage: "sectors to skip at the start of the image"},
		},
		Action: runFormat,
	}
}

func runFormat(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fatal("format requires exactly one IMAGE argument")
	}
	imagePath := context.Args().Get(0)
	sink := diag.NewStderrSink()

	sizeFATHint := 0
	switch f := context.Int("F"); f {
	case 0:
	case 12, 16, 32:
		sizeFATHint = f
	default:
		return fatal("-F must be 12, 16, or 32")
	}

	var bootCode []byte
	if path := context.String("boot"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fatal("%s: %s", path, err)
		}
		if len(data) != fat.BytesPerSector {
			return fatal("--boot file must be exactly %d bytes, got %d", fat.BytesPerSector, len(data))
		}
		bootCode = data
	}

	blocksSet := context.IsSet("blocks")
	blocks := context.Uint64("blocks")
	offset := context.Uint64("offset")
	requestedSize := int64(blocks*1024 + offset*512)

	if !blocksSet {
		if _, err := os.Stat(imagePath); os.IsNotExist(err) {
			return fatal("%s: no existing image to derive a size from; pass --blocks", imagePath)
		}
	}

	// Open an existing image read-write in place so any partition table
	// before --offset and any data after the formatted region survive;
	// only a brand-new image is created and zero-extended to size.
	f, err := os.OpenFile(imagePath, os.O_RDWR, 0o666)
	createdNew := false
	if err != nil {
		if !os.IsNotExist(err) {
			return fatal("%s: %s", imagePath, err)
		}
		f, err = os.OpenFile(imagePath, os.O_RDWR|os.O_CREATE, 0o666)
		if err != nil {
			return fatal("%s: %s", imagePath, err)
		}
		createdNew = true
		if err := zeroExtend(f, requestedSize); err != nil {
			f.Close()
			os.Remove(imagePath)
			return fatal("%s: %s", imagePath, err)
		}
	}

	fail := func(format string, args ...interface{}) error {
		f.Close()
		if createdNew {
			os.Remove(imagePath)
		}
		return fatal(format, args...)
	}

	imageSize := requestedSize
	if !createdNew {
		st, statErr := f.Stat()
		if statErr != nil {
			return fail("%s: %s", imagePath, statErr)
		}
		imageSize = st.Size()
	}

	if int64(offset)*512 > imageSize {
		return fail("size (%d) of %s is less than the requested offset (%d)", imageSize, imagePath, offset*512)
	}
	imageSize -= int64(offset) * 512

	if blocks != 0 {
		if int64(blocks*1024) > imageSize {
			return fail("size (%d) of %s is less than the requested size (%d)", imageSize, imagePath, blocks*1024)
		}
		imageSize = int64(blocks * 1024)
	}

	orphanedSectors := (imageSize % 1024) / fat.BytesPerSector
	sectors := imageSize/fat.BytesPerSector + orphanedSectors
	if sectors > math.MaxUint32 {
		sink.Report(diag.WARNING, imagePath, "target too large, space at end will be left unused")
		sectors = math.MaxUint32
	}
	totalSectors := uint32(sectors)

	opts := fat.FormatOptions{
		TotalSectors: totalSectors,
		Offset:       uint32(offset),
		SizeFATHint:  sizeFATHint,
		VolumeLabel:  context.String("n"),
		BootCode:     bootCode,
	}

	if opts.VolumeLabel != "" {
		if _, err := fat.ToVolumeLabel(opts.VolumeLabel); err != nil {
			return fail("%s", err)
		}
	}

	vol, err := fat.Format(f, opts)
	if err != nil {
		return fail("%s: %s", imagePath, err)
	}
	defer f.Close()

	if context.Bool("v") {
		sink.Report(diag.WARNING, imagePath,
			"formatted with size_fat="+fatFlavorLabel(vol))
	}
	return nil
}

// zeroExtend writes size bytes of zeros to a freshly created image, 512
// bytes at a time.
func zeroExtend(f *os.File, size int64) error {
	zero := make([]byte, fat.BytesPerSector)
	for written := int64(0); written < size; written += fat.BytesPerSector {
		if _, err := f.Write(zero); err != nil {
			return err
		}
	}
	return nil
}

func fatFlavorLabel(vol *fat.Volume) string {
	switch vol.BootSector.SizeFAT {
	case 12:
		return "12"
	case 16:
		return "16"
	default:
		return "32"
	}
}
