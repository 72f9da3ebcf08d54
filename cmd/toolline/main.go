package main

import (
	"os"

	"github.com/martinemde/toolline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
