package main

import (
	"os"

	"github.com/dosimage/fatimage/fat"
	"github.com/urfave/cli/v2"
)

// openVolume opens an existing image file for read-write access and parses
// its boot sector. The caller is responsible for closing the returned file
// once it's done with the volume.
func openVolume(context *cli.Context) (*os.File, *fat.Volume, error) {
	imagePath := context.String("i")
	if imagePath == "" {
		return nil, nil, fatal("-i IMAGE is required")
	}

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fatal("%s: %s", imagePath, err)
	}

	vol, err := fat.Open(f, fat.OpenOptions{Offset: uint32(context.Uint64("offset"))})
	if err != nil {
		f.Close()
		return nil, nil, fatal("%s: %s", imagePath, err)
	}
	return f, vol, nil
}

// imageFlags returns the -i/--offset flags shared by copy, list, and mkdir.
func imageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "i", Usage: "path to the disk image"},
		&cli.Uint64Flag{Name: "offset", Usage: "sectors to skip at the start of the image"},
	}
}
