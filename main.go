package main

import (
	"os"

	"github.com/kurnia-dev/smartenergy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
