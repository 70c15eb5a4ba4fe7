package main

import (
	"os"

	"github.com/mohammadpnp/user-migrate/internal/interfaces/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
