package main

import (
	"github.com/wasmcov/wasmcov/cmd"
)

func main() {
	cmd.Execute()
}
