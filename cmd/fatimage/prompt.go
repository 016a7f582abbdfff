package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dosimage/fatimage/diag"
)

// interactivePrompt asks the user on stdin/stdout whether to overwrite an
// existing file, unless stdin isn't a terminal, in which case it proceeds
// and logs a warning instead of blocking forever on a pipe or redirect.
type interactivePrompt struct {
	sink diag.Sink
}

func newPrompt(sink diag.Sink) *interactivePrompt {
	return &interactivePrompt{sink: sink}
}

func (p *interactivePrompt) Confirm(path string) bool {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		p.sink.Report(diag.WARNING, path, "overwriting existing file (non-interactive session)")
		return true
	}

	fmt.Fprintf(os.Stdout, "overwrite %s? (y/n) ", path)
	reply, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	reply = strings.ToLower(strings.TrimSpace(reply))
	return reply == "y" || reply == "yes" || reply == "o"
}
