package main

import (
	"os"

	"github.com/pysugar/homeauth/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
