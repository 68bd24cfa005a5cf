package main

import (
	"os"

	"github.com/uswork-ny/godzilla-community/cmd/godzilla/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
