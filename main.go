package main

import (
	"os"

	"github.com/zjrosen/stagehook/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
