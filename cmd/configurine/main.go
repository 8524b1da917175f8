package main

import (
	"os"

	"github.com/mac-/configurine/pkg/cli/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
