package main

import (
	"os"

	"github.com/Automobile-System/backend-sub001/cmd/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
