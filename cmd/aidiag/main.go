package main

import (
	"os"

	"aidiagnos/internal/aidiagcli"
)

func main() {
	if err := aidiagcli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
