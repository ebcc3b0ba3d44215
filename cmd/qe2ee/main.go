package main

import (
	"os"

	"qe2ee/cmd/qe2ee/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
