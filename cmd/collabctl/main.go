package main

import (
	"log"
	"os"

	"github.com/dalemusser/collabhub/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(os.Stdout).Execute(); err != nil {
		log.Fatalf("collabctl: %s", err)
	}
}
