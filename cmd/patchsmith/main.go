// Package main provides the patchsmith command line interface: a coding
// agent service that turns a natural-language task into an indexed
// repository, a plan, a set of edits, and an open pull request.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
