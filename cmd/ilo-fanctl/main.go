// Package main is the entry point for ilo-fanctl.
package main

import (
	"errors"
	"os"
)

// errHostsFailed marks a completed run in which at least one host failed.
var errHostsFailed = errors.New("one or more hosts failed")

func main() {
	if err := Execute(); err != nil {
		if errors.Is(err, errHostsFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
