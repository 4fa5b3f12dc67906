// Package main is the entry point for the tether CLI.
package main

import (
	"os"

	"github.com/mrz1836/tether/internal/cli"
	"github.com/mrz1836/tether/internal/version"
)

func main() {
	err := cli.Execute(version.Current())
	os.Exit(cli.ExitCode(err))
}
