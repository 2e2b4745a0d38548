package main

import (
	"fmt"
	"os"

	"github.com/ananthlk/Mobius-OS-sub002/cmd/mobius/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
