package main

import (
	"os"

	"github.com/example/scan-check/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
