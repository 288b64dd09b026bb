package main

import (
	"os"

	"shelltree/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
