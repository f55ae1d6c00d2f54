package main

import (
	"os"

	"github.com/odiumxp/ai-brain/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
