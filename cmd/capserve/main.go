package main

import (
	"os"

	"capserve/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
