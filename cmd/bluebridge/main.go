// Package main is the entry point for the BlueBridge gateway.
package main

import (
	"os"

	"github.com/bluebridge-dev/bluebridge/cmd/bluebridge/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
