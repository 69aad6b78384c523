package main

import (
	"os"

	"github.com/airperm/aptfit/mods/cli"
)

func main() {
	os.Exit(cli.Main())
}
