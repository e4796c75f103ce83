// Package main provides the entry point for the vidfuse CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vidfuse/vidfuse/cmd/vidfuse/cmd"
	vferrors "github.com/vidfuse/vidfuse/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, vferrors.FormatForCLI(err))
		os.Exit(1)
	}
}
