package main

import (
	"os"

	"github.com/clintjedwards/trampoline/internal/cli"
)

func main() {
	err := cli.Execute()
	if err != nil {
		os.Exit(1)
	}
}
