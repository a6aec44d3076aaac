// Package main provides the entry point for statemesh-inspect, the
// command-line tool for listing, dumping and verifying checkpoint files.
package main

import (
	"fmt"
	"os"

	"github.com/statemesh/statemesh-go/internal/inspect"
)

func main() {
	if err := inspect.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
