package main

import (
	"os"

	"github.com/restaurant-platform/courierbroker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
