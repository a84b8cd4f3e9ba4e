// Package main provides the entry point for the notevault CLI.
package main

import (
	"fmt"
	"os"

	"github.com/mayank-meragi/notevault/cmd/notevault/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
