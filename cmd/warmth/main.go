package main

import (
	"os"

	"github.com/IsaiahDupree/EverReach-sub008/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
