package main

import (
	"os"

	"github.com/webosbrew/devman/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
