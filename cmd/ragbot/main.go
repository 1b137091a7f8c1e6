package main

import (
	"os"

	"github.com/aihub/ragbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
