package main

import (
	"os"

	"conference-central/cmd/conferencectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
