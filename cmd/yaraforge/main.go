package main

import (
	"os"

	"github.com/gzhole/yaraforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
