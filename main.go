// Package main is the entry point for the shtdecode I2C transaction decoder.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/shtdecode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
