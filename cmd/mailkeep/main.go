package main

import (
	"fmt"
	"os"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(archiveerr.ExitCode(archiveerr.ClassifyOf(err)))
	}
}
