// Package main is the entry point for the ntpwire NTP packet tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/ntpwire/cmd"
	"firestige.xyz/ntpwire/internal/log"
)

func main() {
	err := cmd.Execute()
	log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
