package main

import (
	"fmt"
	"os"

	"github.com/docuvault/docuvault/pkg/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "docuvault-admin: %v\n", err)
		os.Exit(1)
	}
}
