package main

import (
	"log"
	"os"

	"github.com/woliveiras/cpdeploy/pkg/cli"
)

func main() {
	if err := cli.Run(os.Args); err != nil {
		log.Fatalf("cpdeploy: %v", err)
	}
}
