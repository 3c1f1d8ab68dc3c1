// Package main provides the entry point for the CodeSquad CLI.
package main

import (
	"fmt"
	"os"

	"github.com/codesquad-ai/codesquad/cmd/codesquad/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
