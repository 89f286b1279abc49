package main

import (
	"os"

	"github.com/abhisek/qbankgen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
