// Package main is the entry point for the notcli tool.
package main

import (
	"os"

	"github.com/mbroton/notcli/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
