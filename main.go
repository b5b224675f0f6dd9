package main

import (
	"os"

	"lowerc/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
