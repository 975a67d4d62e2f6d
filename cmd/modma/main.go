// Package main is the entry point for the modma CLI.
//
// Usage:
//
//	modma [flags] <command> [args]
//
// Commands:
//
//	serve       - Run the HTTP and gRPC servers
//	preprocess  - Convert a raw EGI recording into an epoch archive
//	predict     - Classify an epoch archive
//	models pull - Download and validate the model artifacts
//	version     - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/ekisa-team/modma/cmd/modma/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
