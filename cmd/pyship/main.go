package main

import (
	"os"

	"github.com/psantana5/pyship/cmd/pyship/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
