package main

import (
	"os"

	"github.com/shehryarbajwa/scrollreel/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
