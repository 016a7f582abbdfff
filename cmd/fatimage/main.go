// Command fatimage creates, inspects, and mutates FAT12/16/32 disk image
// files: format an image from scratch, copy files in and out, list a
// directory, and create subdirectories.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "fatimage",
		Usage: "create and manipulate FAT12/16/32 disk image files",
		Commands: []*cli.Command{
			formatCommand(),
			copyCommand(),
			listCommand(),
			mkdirCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatimage: %s\n", err)
		os.Exit(1)
	}
}

func fatal(format string, args ...interface{}) error {
	return cli.Exit(fmt.Sprintf(format, args...), 1)
}
