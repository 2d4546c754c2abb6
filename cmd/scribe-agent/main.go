// Package main provides the entry point for the Scribe agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/scribe-ide/scribe/cmd/scribe-agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
