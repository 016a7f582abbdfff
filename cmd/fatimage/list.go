package main

import (
	"fmt"
	"os"

	"github.com/dosimage/fatimage/fat"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "list the entries of a directory on a FAT image",
		ArgsUsage: "[dir...]",
		Flags:     imageFlags(),
		Action:    runList,
	}
}

func runList(context *cli.Context) error {
	f, vol, err := openVolume(context)
	if err != nil {
		return err
	}
	defer f.Close()

	dirs := context.Args().Slice()
	if len(dirs) == 0 {
		dirs = []string{"/"}
	}

	var result *multierror.Error
	for _, dir := range dirs {
		entries, err := fat.ListDirectory(vol, dir)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, e := range entries {
			if e.Raw.Attributes&fat.AttrVolumeID != 0 {
				continue
			}
			printEntry(e)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fatal("%s", err)
	}
	return nil
}

func printEntry(e *fat.Dirent) {
	size := "<DIR>"
	if !e.Raw.IsDirectory() {
		size = fmt.Sprintf("%d", e.Raw.FileSize)
	}
	modified := fat.UnpackTimestamp(e.Raw.LastModifiedDate, e.Raw.LastModifiedTime, 0)
	fmt.Fprintf(os.Stdout, "%s  %s  %s  %s\n",
		e.Raw.DisplayName(), size,
		modified.Format("2006-01-02"), modified.Format("15:04:05"))
}
