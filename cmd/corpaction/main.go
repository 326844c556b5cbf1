package main

import (
	"os"

	"github.com/supertypeai/sectors-corporate-actions/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
