package main

import (
	"os"

	"github.com/medbox/dispenser/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
