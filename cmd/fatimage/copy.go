package main

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dosimage/fatimage/diag"
	"github.com/dosimage/fatimage/fat"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

func copyCommand() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "copy files between the host and a FAT image",
		ArgsUsage: "[::]src... [::]dst",
		Flags:     imageFlags(),
		Action:    runCopy,
	}
}

const imagePrefix = "::"

func runCopy(context *cli.Context) error {
	args := context.Args().Slice()
	if len(args) < 2 {
		return fatal("copy requires at least one source and one destination")
	}

	dst := args[len(args)-1]
	srcs := args[:len(args)-1]
	dstToImage := strings.HasPrefix(dst, imagePrefix)

	if !dstToImage {
		// Copying from the image to the host: every source must carry the
		// "::" prefix, and a bare "::" with nothing after it is rejected
		// up front rather than after the image is already open.
		for _, s := range srcs {
			if s == imagePrefix {
				return fatal("bare \"::\" source requires a path on the image")
			}
			if !strings.HasPrefix(s, imagePrefix) {
				return fatal("%s: source must be prefixed with \"::\" when copying from the image", s)
			}
		}
	} else {
		for _, s := range srcs {
			if strings.HasPrefix(s, imagePrefix) {
				return fatal("%s: source must be a host path when copying to the image", s)
			}
		}
	}

	f, vol, err := openVolume(context)
	if err != nil {
		return err
	}
	defer f.Close()

	sink := diag.NewStderrSink()
	prompt := newPrompt(sink)

	var result *multierror.Error
	if dstToImage {
		result = copyToImage(vol, srcs, strings.TrimPrefix(dst, imagePrefix), prompt)
	} else {
		result = copyFromImage(vol, srcs, dst)
	}

	if err := result.ErrorOrNil(); err != nil {
		return fatal("%s", err)
	}
	return nil
}

func copyToImage(vol *fat.Volume, srcs []string, imageDst string, prompt fat.OverwritePrompt) *multierror.Error {
	if imageDst == "" {
		imageDst = "/"
	}
	multiSource := len(srcs) > 1 || strings.HasSuffix(imageDst, "/")

	var result *multierror.Error
	for _, src := range srcs {
		target := imageDst
		if multiSource {
			target = path.Join(imageDst, filepath.Base(src))
		}

		hostFile, err := os.Open(src)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		err = fat.CreateFile(vol, target, hostFile, prompt)
		hostFile.Close()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func copyFromImage(vol *fat.Volume, srcs []string, dst string) *multierror.Error {
	multiSource := len(srcs) > 1 || strings.HasSuffix(dst, "/")

	var result *multierror.Error
	for _, src := range srcs {
		imageSrc := strings.TrimPrefix(src, imagePrefix)
		if imageSrc == "" {
			imageSrc = "/"
		}

		data, err := fat.ReadFile(vol, imageSrc)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		hostDst := dst
		if multiSource {
			hostDst = filepath.Join(dst, path.Base(imageSrc))
		}

		if err := os.WriteFile(hostDst, data, 0o644); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
