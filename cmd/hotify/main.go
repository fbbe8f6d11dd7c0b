package main

import (
	"os"

	"github.com/CfKu/Hotify/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
