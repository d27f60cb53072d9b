package main

import (
	"os"

	"github.com/rustyeddy/voitrader/cmd/voitrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
