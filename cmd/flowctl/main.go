package main

import (
	"os"

	"github.com/AaronLay10/FlowEngine/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
