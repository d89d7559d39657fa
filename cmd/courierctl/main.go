package main

import (
	"os"

	"github.com/BearBump/CourierHub/cmd/courierctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
