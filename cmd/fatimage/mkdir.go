package main

import (
	"github.com/dosimage/fatimage/fat"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

func mkdirCommand() *cli.Command {
	return &cli.Command{
		Name:      "mkdir",
		Usage:     "create directories on a FAT image",
		ArgsUsage: "dir...",
		Flags:     imageFlags(),
		Action:    runMkdir,
	}
}

func runMkdir(context *cli.Context) error {
	dirs := context.Args().Slice()
	if len(dirs) == 0 {
		return fatal("mkdir requires at least one directory")
	}

	f, vol, err := openVolume(context)
	if err != nil {
		return err
	}
	defer f.Close()

	var result *multierror.Error
	for _, dir := range dirs {
		if err := fat.Mkdir(vol, dir); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fatal("%s", err)
	}
	return nil
}
