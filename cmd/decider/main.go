// Package main is the entrypoint of the decider command line and service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rafaeljc/decider/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
