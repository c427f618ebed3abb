// Package main is the entry point for the sqlspeak binary.
package main

import (
	"os"

	"sqlspeak-console/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
